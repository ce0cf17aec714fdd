package asm

import "tlog.app/go/errors"

// Frame collects stack frame requirements while selecting one function.
type Frame struct {
	fixed  int
	spill  int
	ret    int
	align  int
	frozen bool
}

const slotSize = 8

func NewFrame(fixedSlots int) *Frame {
	return &Frame{fixed: fixedSlots}
}

// AllocateSpillSlot reserves width bytes aligned to alignment bytes and
// returns the index of the last slot occupied.
func (f *Frame) AllocateSpillSlot(width, alignment int) int {
	if f.frozen {
		panic(errors.New("frame is frozen"))
	}

	slots := (width + slotSize - 1) / slotSize

	if alignment > slotSize {
		a := alignment / slotSize
		total := f.fixed + f.spill

		if pad := (a - total%a) % a; pad != 0 {
			f.spill += pad
		}
	}

	f.spill += slots

	return f.fixed + f.spill - 1
}

func (f *Frame) EnsureReturnSlots(n int) {
	f.ret = max(f.ret, n)
}

func (f *Frame) AlignFrame(alignment int) {
	f.align = max(f.align, alignment)
}

func (f *Frame) Freeze() { f.frozen = true }

func (f *Frame) FixedSlots() int  { return f.fixed }
func (f *Frame) SpillSlots() int  { return f.spill }
func (f *Frame) ReturnSlots() int { return f.ret }

func (f *Frame) TotalSlots() int {
	return f.fixed + f.spill + f.ret
}
