package protocol

import (
	"encoding/binary"
	"fmt"
)

// Header is the fixed 24-byte frame header shared by requests and responses.
//
//	Offset  Size  Field
//	0       1     magic
//	1       1     opcode
//	2       2     key length
//	4       1     extras length
//	5       1     data type
//	6       2     vbucket id (request) / status (response)
//	8       4     total body length
//	12      4     opaque
//	16      8     cas
type Header struct {
	Magic        uint8
	Opcode       Opcode
	KeyLength    uint16
	ExtrasLength uint8
	DataType     uint8
	VBucket      uint16 // request only
	Status       Status // response only
	BodyLength   uint32
	Opaque       uint32
	CAS          uint64
}

// ValueLength returns the length of the value segment implied by the header,
// after the extras and key segments. Negative results indicate a malformed
// frame (spec.md §4.C framing invariant).
func (h Header) ValueLength() int {
	return int(h.BodyLength) - int(h.KeyLength) - int(h.ExtrasLength)
}

// PutRequest encodes a request header into buf (must be HeaderLen bytes).
func (h Header) PutRequest(buf []byte) {
	h.put(buf, ReqMagic, h.VBucket)
}

// PutResponse encodes a response header into buf (must be HeaderLen bytes).
func (h Header) PutResponse(buf []byte) {
	h.put(buf, RespMagic, uint16(h.Status))
}

func (h Header) put(buf []byte, magic uint8, field6 uint16) {
	_ = buf[HeaderLen-1]
	buf[0] = magic
	buf[1] = uint8(h.Opcode)
	binary.BigEndian.PutUint16(buf[2:4], h.KeyLength)
	buf[4] = h.ExtrasLength
	buf[5] = h.DataType
	binary.BigEndian.PutUint16(buf[6:8], field6)
	binary.BigEndian.PutUint32(buf[8:12], h.BodyLength)
	binary.BigEndian.PutUint32(buf[12:16], h.Opaque)
	binary.BigEndian.PutUint64(buf[16:24], h.CAS)
}

// ParseResponseHeader decodes a 24-byte response header. It does not
// validate the magic byte; callers check that against the parser's expected
// state (see parser.go) so the error can be classified precisely.
func ParseResponseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, fmt.Errorf("protocol: short header: %d bytes", len(buf))
	}
	h := Header{
		Magic:        buf[0],
		Opcode:       Opcode(buf[1]),
		KeyLength:    binary.BigEndian.Uint16(buf[2:4]),
		ExtrasLength: buf[4],
		DataType:     buf[5],
		Status:       Status(binary.BigEndian.Uint16(buf[6:8])),
		BodyLength:   binary.BigEndian.Uint32(buf[8:12]),
		Opaque:       binary.BigEndian.Uint32(buf[12:16]),
		CAS:          binary.BigEndian.Uint64(buf[16:24]),
	}
	return h, nil
}
