package protocol

// Response is a fully decoded response frame.
type Response struct {
	Opcode Opcode
	Status Status
	Key    []byte
	Flags  uint32 // decoded from a 4-byte extras segment (Get-family responses)
	Value  []byte
	Opaque uint32
	CAS    uint64
}

// IsError reports whether the response carries a non-success status.
func (r *Response) IsError() bool { return r.Status.IsError() }

// terminatesStatSequence implements spec.md §4.C's completion predicate: for
// Stat, only the terminating frame (empty key) completes the in-flight
// request; every other opcode completes on its first (and only) frame.
func terminatesStatSequence(opcode Opcode, keyLen int) bool {
	if opcode != OpStat {
		return true
	}
	return keyLen == 0
}
