package protocol

import "fmt"

// FramingError represents a malformed response frame: bad magic, or a total
// body length inconsistent with the key/extras lengths (spec.md §4.C,
// §7 "Framing"). It is always fatal for the connection.
type FramingError struct {
	Message string
}

func (e *FramingError) Error() string { return "protocol: framing: " + e.Message }

// ShouldCloseConnection always returns true: framing errors leave the
// parser's byte-accounting in an unknown state.
func (e *FramingError) ShouldCloseConnection() bool { return true }

// ProtocolMismatchError is returned when a response's opcode doesn't match
// the head of the in-flight FIFO and the head is not a quiet command
// (spec.md §4.C READ_HEADER, §7 "ProtocolMismatch"). Fatal for the
// connection: positional correlation can no longer be trusted.
type ProtocolMismatchError struct {
	Expected Opcode
	Got      Opcode
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("protocol: response opcode %s does not match in-flight request %s", e.Got, e.Expected)
}

func (e *ProtocolMismatchError) ShouldCloseConnection() bool { return true }

// ErrorWithConnectionState is implemented by every protocol-level error so
// callers can decide whether the connection that produced it is still
// usable.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err requires the caller to close and
// discard the connection that produced it. Errors that don't implement
// ErrorWithConnectionState are treated conservatively as fatal.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(ErrorWithConnectionState); ok {
		return e.ShouldCloseConnection()
	}
	return true
}
