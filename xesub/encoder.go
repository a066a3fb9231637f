package xesub

import (
	"github.com/cockroachdb/errors"
)

// Instruction words. The terminator's position and bit pattern are a hardware
// contract: opcode 0x0A in bits 31:23 of the instruction word ends the batch.
const (
	MIBatchBufferEnd uint32 = 0x0A << 23
	MINoop           uint32 = 0
)

// BatchEncoder appends instruction words to a mapped command buffer. A real
// workload would emit its payload before the terminator; this core only ever
// emits the terminator itself.
type BatchEncoder struct {
	view  *MemoryView
	words int
}

func NewBatchEncoder(view *MemoryView) *BatchEncoder {
	return &BatchEncoder{view: view}
}

// Emit appends one instruction word.
func (e *BatchEncoder) Emit(word uint32) error {
	if (e.words+1)*4 > e.view.Len() {
		return errors.Mark(
			errors.Newf("batch word %d does not fit the %d-byte command buffer", e.words, e.view.Len()),
			ErrResource)
	}

	e.view.PutWord(e.words, word)
	e.words++
	return nil
}

// Len returns the encoded batch length in bytes.
func (e *BatchEncoder) Len() int {
	return e.words * 4
}

// EncodeTerminator writes the minimal valid command stream at offset zero of
// the mapped command buffer: the batch-end instruction and one padding NOOP.
func EncodeTerminator(view *MemoryView) error {
	enc := NewBatchEncoder(view)
	if err := enc.Emit(MIBatchBufferEnd); err != nil {
		return err
	}
	return enc.Emit(MINoop)
}
