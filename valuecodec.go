package memcache

// ValueCodec maps an application value to and from the wire representation
// memcached stores: a 4-byte flags word (carried in the extras field of
// Set-family commands) plus an opaque byte slice (spec.md §6 "Value
// codec"). Callers needing typed values (JSON, gob, ...) implement this
// instead of working with raw bytes.
type ValueCodec interface {
	Encode(v any) (flags uint32, data []byte, err error)
	Decode(flags uint32, data []byte, v any) error
}

// RawCodec is the identity codec: values must already be []byte or string, flags are
// always 0. It is the zero-configuration default used when a Client isn't
// given one.
type RawCodec struct{}

func (RawCodec) Encode(v any) (uint32, []byte, error) {
	switch b := v.(type) {
	case []byte:
		return 0, b, nil
	case string:
		return 0, []byte(b), nil
	default:
		return 0, nil, &UnsupportedOperationError{Opcode: rawCodecType{}}
	}
}

func (RawCodec) Decode(flags uint32, data []byte, v any) error {
	switch p := v.(type) {
	case *[]byte:
		*p = data
		return nil
	case *string:
		*p = string(data)
		return nil
	default:
		return &UnsupportedOperationError{Opcode: rawCodecType{}}
	}
}

// rawCodecType satisfies fmt.Stringer so RawCodec can reuse
// UnsupportedOperationError without inventing a second error type.
type rawCodecType struct{}

func (rawCodecType) String() string { return "RawCodec: unsupported value type" }
