// Package protocol implements the memcached binary protocol: the 24-byte
// request/response header, opcode and status tables, and the streaming
// response parser.
package protocol

// Opcode identifies a binary protocol command.
type Opcode uint8

// Supported opcodes (memcached binary protocol spec).
const (
	OpGet        Opcode = 0x00
	OpSet        Opcode = 0x01
	OpAdd        Opcode = 0x02
	OpReplace    Opcode = 0x03
	OpDelete     Opcode = 0x04
	OpIncrement  Opcode = 0x05
	OpDecrement  Opcode = 0x06
	OpQuit       Opcode = 0x07
	OpFlush      Opcode = 0x08
	OpGetQ       Opcode = 0x09
	OpNoop       Opcode = 0x0a
	OpVersion    Opcode = 0x0b
	OpGetK       Opcode = 0x0c
	OpGetKQ      Opcode = 0x0d
	OpAppend     Opcode = 0x0e
	OpPrepend    Opcode = 0x0f
	OpStat       Opcode = 0x10
	OpSetQ       Opcode = 0x11
	OpAddQ       Opcode = 0x12
	OpReplaceQ   Opcode = 0x13
	OpDeleteQ    Opcode = 0x14
	OpIncrementQ Opcode = 0x15
	OpDecrementQ Opcode = 0x16
	OpQuitQ      Opcode = 0x17
	OpFlushQ     Opcode = 0x18
	OpAppendQ    Opcode = 0x19
	OpPrependQ   Opcode = 0x1a
	OpVerbosity  Opcode = 0x1b
	OpTouch      Opcode = 0x1c
	OpGAT        Opcode = 0x1d
	OpGATQ       Opcode = 0x1e
	OpSASLList   Opcode = 0x20
	OpSASLAuth   Opcode = 0x21
	OpSASLStep   Opcode = 0x22

	// OpGets and OpGetsQ are not distinct wire opcodes: the binary protocol's
	// Get already returns the CAS token in every response, so "gets" is a
	// text-protocol-only distinction. They alias Get/GetQ so callers that
	// think in terms of spec.md's opcode list ("Get/GetQ/GetK/GetKQ/Gets/
	// GetsQ") get a name without a bogus extra wire opcode.
	OpGets  = OpGet
	OpGetsQ = OpGetQ
)

// IsQuiet reports whether opcode is a "quiet" (no-reply-on-success) variant.
func (o Opcode) IsQuiet() bool {
	switch o {
	case OpGetQ, OpGetKQ, OpSetQ, OpAddQ, OpReplaceQ, OpDeleteQ,
		OpIncrementQ, OpDecrementQ, OpQuitQ, OpFlushQ, OpAppendQ, OpPrependQ, OpGATQ:
		return true
	default:
		return false
	}
}

// NonQuiet returns o's non-quiet counterpart, or o unchanged if it already
// isn't quiet. Used to force the last request of a "quiet-except-last"
// batch (spec.md §4.D) so the server always sends exactly one terminating
// frame for the batch, regardless of which quiet family the batch is built
// from.
func (o Opcode) NonQuiet() Opcode {
	switch o {
	case OpGetQ:
		return OpGet
	case OpGetKQ:
		return OpGetK
	case OpSetQ:
		return OpSet
	case OpAddQ:
		return OpAdd
	case OpReplaceQ:
		return OpReplace
	case OpDeleteQ:
		return OpDelete
	case OpIncrementQ:
		return OpIncrement
	case OpDecrementQ:
		return OpDecrement
	case OpQuitQ:
		return OpQuit
	case OpFlushQ:
		return OpFlush
	case OpAppendQ:
		return OpAppend
	case OpPrependQ:
		return OpPrepend
	case OpGATQ:
		return OpGAT
	default:
		return o
	}
}

// String returns a short mnemonic for the opcode, useful in logs and errors.
func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return "Unknown"
}

var opcodeNames = map[Opcode]string{
	OpGet: "Get", OpSet: "Set", OpAdd: "Add", OpReplace: "Replace",
	OpDelete: "Delete", OpIncrement: "Increment", OpDecrement: "Decrement",
	OpQuit: "Quit", OpFlush: "Flush", OpGetQ: "GetQ", OpNoop: "Noop",
	OpVersion: "Version", OpGetK: "GetK", OpGetKQ: "GetKQ", OpAppend: "Append",
	OpPrepend: "Prepend", OpStat: "Stat", OpSetQ: "SetQ", OpAddQ: "AddQ",
	OpReplaceQ: "ReplaceQ", OpDeleteQ: "DeleteQ", OpIncrementQ: "IncrementQ",
	OpDecrementQ: "DecrementQ", OpQuitQ: "QuitQ", OpFlushQ: "FlushQ",
	OpAppendQ: "AppendQ", OpPrependQ: "PrependQ", OpVerbosity: "Verbosity",
	OpTouch: "Touch", OpGAT: "GAT", OpGATQ: "GATQ",
}

// Status is the 16-bit response status code.
type Status uint16

const (
	StatusNoError             Status = 0x0000
	StatusKeyNotFound          Status = 0x0001
	StatusKeyExists            Status = 0x0002
	StatusValueTooLarge        Status = 0x0003
	StatusInvalidArguments     Status = 0x0004
	StatusItemNotStored        Status = 0x0005
	StatusNonNumericValue      Status = 0x0006
	StatusAuthError            Status = 0x0020
	StatusAuthContinue         Status = 0x0021
	StatusUnknownCommand       Status = 0x0081
	StatusOutOfMemory          Status = 0x0082
	StatusNotSupported         Status = 0x0083
	StatusInternalError        Status = 0x0084
	StatusBusy                 Status = 0x0085
	StatusTemporaryFailure     Status = 0x0086
)

// IsError reports whether the status indicates a non-success response.
func (s Status) IsError() bool {
	return s != StatusNoError
}

func (s Status) String() string {
	switch s {
	case StatusNoError:
		return "NoError"
	case StatusKeyNotFound:
		return "KeyNotFound"
	case StatusKeyExists:
		return "KeyExists"
	case StatusValueTooLarge:
		return "ValueTooLarge"
	case StatusInvalidArguments:
		return "InvalidArguments"
	case StatusItemNotStored:
		return "ItemNotStored"
	case StatusNonNumericValue:
		return "NonNumericValue"
	case StatusAuthError:
		return "AuthError"
	case StatusAuthContinue:
		return "AuthContinue"
	case StatusUnknownCommand:
		return "UnknownCommand"
	case StatusOutOfMemory:
		return "OutOfMemory"
	case StatusNotSupported:
		return "NotSupported"
	case StatusInternalError:
		return "InternalError"
	case StatusBusy:
		return "Busy"
	case StatusTemporaryFailure:
		return "TemporaryFailure"
	default:
		return "Unknown"
	}
}

const (
	// ReqMagic and RespMagic are the fixed first byte of every frame.
	ReqMagic  = 0x80
	RespMagic = 0x81

	// HeaderLen is the fixed size of the request/response header.
	HeaderLen = 24

	// MaxKeyLength is the largest key memcached accepts.
	MaxKeyLength = 250

	// singleAllocThreshold is the largest batch size, in bytes, encoded with
	// the single contiguous-buffer strategy before falling back to the
	// composite (scatter/gather) encoding. See EncodeBatch in request.go.
	singleAllocThreshold = 1 << 20 // 1 MiB
)
