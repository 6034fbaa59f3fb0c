package codegen

import (
	"github.com/docker/go-units"

	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/logger"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// minVariadicAlign is the floor alignment of the shared variadic buffer.
const minVariadicAlign = 16

type variadicSlot struct {
	sliceType types.Type
	base      ir.Value
	slice     Addr
}

// variadicSlice packs elems into a slice of sliceType. Call sites with an
// identical slice type share one slice descriptor, and all of them share a
// backing buffer sized by the declaration's precomputed bound.
func (p *Procedure) variadicSlice(sliceType types.Type, elems []Value) Value {
	if len(elems) == 0 {
		return p.Module.Zero(sliceType)
	}
	m := p.Module
	elem := types.Elem(sliceType)
	n := int64(len(elems))
	need := m.Sizes.SizeOf(elem) * n

	var base ir.Value
	var slice Addr
	if slot, ok := p.reuseSlot(sliceType, need); ok {
		base, slice = slot.base, slot.slice
	} else {
		base = p.AddLocal(&types.Array{Elem: elem, Len: n}, nil, false).Ptr
		slice = p.AddLocal(sliceType, nil, false)
	}

	et := m.IRType(elem)
	for i, v := range elems {
		v = p.Conv(v, elem)
		ptr := p.b.IndexGEP(et, base, ir.ConstIntOf(m.word(), int64(i)))
		p.b.Store(v.IR, ptr, m.alignOf(elem))
	}
	st := m.IRType(sliceType).(*ir.StructType)
	var desc ir.Value = ir.Undef(st)
	desc = p.b.InsertValue(desc, base, 0)
	desc = p.b.InsertValue(desc, ir.ConstIntOf(m.word(), n), 1)
	p.b.Store(desc, slice.Ptr, m.alignOf(sliceType))
	return p.Load(slice)
}

// reuseSlot returns the shared storage for sliceType, creating it on first
// use. It reports false when the procedure has no bound or the bound
// exceeds the target cap, in which case the caller uses private storage.
func (p *Procedure) reuseSlot(sliceType types.Type, need int64) (variadicSlot, bool) {
	decl := p.Decl()
	if decl == nil || decl.VariadicReuseMaxBytes <= 0 {
		return variadicSlot{}, false
	}
	if need > decl.VariadicReuseMaxBytes {
		p.fatalf("variadic call needs %d bytes, bound is %d", need, decl.VariadicReuseMaxBytes)
	}
	if limit := p.Module.Target.MaxVariadicBuffer; limit > 0 && decl.VariadicReuseMaxBytes > limit {
		logger.Debug("Variadic buffer over limit",
			"procedure", p.Name,
			"bound", units.BytesSize(float64(decl.VariadicReuseMaxBytes)),
			"limit", units.BytesSize(float64(limit)))
		return variadicSlot{}, false
	}

	for _, s := range p.variadicSlots {
		if types.Identical(s.sliceType, sliceType) {
			p.Module.stats.VariadicReuses.Inc()
			return s, true
		}
	}
	if p.variadicBase == nil {
		align := decl.VariadicReuseMaxAlign
		if align < minVariadicAlign {
			align = minVariadicAlign
		}
		cur := p.b.Block()
		p.b.SetBlock(p.decls)
		buf := p.b.Alloca(ir.Array(int(decl.VariadicReuseMaxBytes), ir.I8), int(align))
		buf.SetName("__.variadic_buffer")
		p.b.SetBlock(cur)
		p.variadicBase = buf
		p.Module.stats.VariadicBuffers.Inc()
		logger.Debug("Variadic buffer allocated",
			"procedure", p.Name,
			"size", units.BytesSize(float64(decl.VariadicReuseMaxBytes)))
	}
	s := variadicSlot{
		sliceType: sliceType,
		base:      p.variadicBase,
		slice:     p.AddLocal(sliceType, nil, false),
	}
	p.variadicSlots = append(p.variadicSlots, s)
	return s, true
}
