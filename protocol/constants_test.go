package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpcode_NonQuietMapsEveryQuietVariant(t *testing.T) {
	pairs := map[Opcode]Opcode{
		OpGetQ:       OpGet,
		OpGetKQ:      OpGetK,
		OpSetQ:       OpSet,
		OpAddQ:       OpAdd,
		OpReplaceQ:   OpReplace,
		OpDeleteQ:    OpDelete,
		OpIncrementQ: OpIncrement,
		OpDecrementQ: OpDecrement,
		OpQuitQ:      OpQuit,
		OpFlushQ:     OpFlush,
		OpAppendQ:    OpAppend,
		OpPrependQ:   OpPrepend,
		OpGATQ:       OpGAT,
	}
	for quiet, plain := range pairs {
		assert.True(t, quiet.IsQuiet(), "%s should be quiet", quiet)
		assert.False(t, plain.IsQuiet(), "%s should not be quiet", plain)
		assert.Equal(t, plain, quiet.NonQuiet())
	}
}

func TestOpcode_NonQuietIsNoOpOnNonQuietOpcode(t *testing.T) {
	assert.Equal(t, OpGet, OpGet.NonQuiet())
	assert.Equal(t, OpNoop, OpNoop.NonQuiet())
}
