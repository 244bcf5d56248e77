package scatter

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
)

// View writes a human-readable description of the context to w.
func (ctx *Context) View(w io.Writer) error {
	if ctx == nil || ctx.to == nil {
		exceptions.Panicf("scatter context is nil or was destroyed")
	}
	toKind, fromKind := ctx.FormatKinds()
	_, err := fmt.Fprintf(w, "scatter context %s: to=%s, from=%s, merged=%v, refs=%d\n",
		ctx.id, toKind, fromKind, ctx.merged, ctx.refCount)
	if err != nil {
		return err
	}
	if err = viewSide(w, "to", ctx.to); err != nil {
		return err
	}
	if err = viewSide(w, "from", ctx.from); err != nil {
		return err
	}
	mirror := "absent"
	if ctx.mirror != nil {
		mirror = fmt.Sprintf("present on device %q", ctx.mirror.dev.Name())
	}
	_, err = fmt.Fprintf(w, "  moves %s per cycle, device mirror %s\n",
		humanize.Bytes(uint64(ctx.scalarsPerCycle())*8), mirror)
	return err
}

func viewSide(w io.Writer, name string, f format) error {
	var err error
	switch d := f.(type) {
	case *distGeneral:
		_, err = fmt.Fprintf(w, "  %s side: %d indices in %d peer blocks (block size %d), %d same-rank slots, plan %s\n",
			name, d.totalIndices(), len(d.peers), d.bs, len(d.slots), planState(d.plan))
	case *localGeneral:
		_, err = fmt.Fprintf(w, "  %s side: %d index slots (block size %d), plan %s\n",
			name, len(d.slots), d.bs, planState(d.plan))
	case *localStride:
		_, err = fmt.Fprintf(w, "  %s side: stride first=%d step=%d count=%d\n",
			name, d.first, d.step, d.n)
	}
	return err
}

func planState(p *memcpyPlan) string {
	runs := 0
	if p == nil {
		return "absent"
	}
	for _, msg := range p.msgs {
		runs += len(msg)
	}
	return fmt.Sprintf("built (%d runs)", runs)
}

// scalarsPerCycle counts the scalar components one Begin/End cycle moves into the destination.
func (ctx *Context) scalarsPerCycle() int {
	switch d := ctx.from.(type) {
	case *distGeneral:
		return d.bs * (d.totalIndices() + len(d.slots))
	case *localGeneral:
		return d.bs * len(d.slots)
	case *localStride:
		return d.n
	}
	return 0
}
