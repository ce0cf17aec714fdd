package compiler

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/back"
	"github.com/slowlang/isel/compiler/front"
	"github.com/slowlang/isel/compiler/ir"
)

type (
	// Result of one function. Seq is nil when selection bailed out.
	Result struct {
		Func  *ir.Func
		Frame *asm.Frame
		Seq   *asm.Sequence

		Bailout back.BailoutReason
	}
)

func SelectFile(ctx context.Context, cfg back.Config, name string) (rs []Result, err error) {
	fs, err := front.LoadFile(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "load")
	}

	return Select(ctx, cfg, fs...)
}

// Select lowers each function independently. A bailout is reported
// in the function result and does not stop the others.
func Select(ctx context.Context, cfg back.Config, fs ...*ir.Func) (rs []Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "select funcs", "funcs", len(fs))
	defer tr.Finish("err", &err)

	for _, fn := range fs {
		r := Result{
			Func:  fn,
			Frame: asm.NewFrame(ir.FixedFrameSlots),
		}

		r.Seq, err = back.Select(ctx, cfg, fn, r.Frame)
		if b, ok := err.(back.BailoutReason); ok {
			tr.Printw("bailout", "func", fn.Name, "reason", b)

			r.Seq, r.Bailout, err = nil, b, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "func %v", fn.Name)
		}

		rs = append(rs, r)
	}

	return rs, nil
}
