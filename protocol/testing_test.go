package protocol

// fakeInFlight is a minimal Correlator test double: a FIFO of expected
// (opcode, opaque, quiet) triples, recording what the Decoder delivered.
type fakeInFlight struct {
	pending []fakeRequest
	delivered []deliveredFrame
	noReplies int
}

type fakeRequest struct {
	opcode Opcode
	opaque uint32
	quiet  bool
}

type deliveredFrame struct {
	resp *Response
	pop  bool
}

func (f *fakeInFlight) Head() (Opcode, uint32, bool, bool) {
	if len(f.pending) == 0 {
		return 0, 0, false, false
	}
	head := f.pending[0]
	return head.opcode, head.opaque, head.quiet, true
}

func (f *fakeInFlight) Deliver(resp *Response, pop bool) {
	f.delivered = append(f.delivered, deliveredFrame{resp: resp, pop: pop})
	if pop && len(f.pending) > 0 {
		f.pending = f.pending[1:]
	}
}

func (f *fakeInFlight) DeliverNoReply() {
	f.noReplies++
	if len(f.pending) > 0 {
		f.pending = f.pending[1:]
	}
}
