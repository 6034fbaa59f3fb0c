package codegen

import (
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

func (p *Procedure) lowerMemory(bc BuiltinCall) Value {
	m := p.Module
	b := p.b
	switch bc.ID {
	case MemCopy, MemCopyNonOverlapping:
		p.memCopy(p.arg(bc, 0).IR, p.arg(bc, 1).IR, p.arg(bc, 2).IR, bc.ID == MemCopy)
		return Value{}
	case MemZero, MemZeroVolatile:
		p.memZero(p.arg(bc, 0).IR, p.arg(bc, 1).IR, bc.ID == MemZeroVolatile)
		return Value{}
	case PtrOffset:
		ptr := p.arg(bc, 0)
		n := p.arg(bc, 1)
		elem := p.pointee(bc, ptr)
		idx := p.resize(n.IR, m.word(), !types.IsUnsigned(n.Type))
		return Value{IR: b.IndexGEP(m.IRType(elem), ptr.IR, idx), Type: ptr.Type}
	case PtrSub:
		x, y := p.arg(bc, 0), p.arg(bc, 1)
		elem := p.pointee(bc, x)
		w := m.word()
		diff := b.BinOp(ir.OpSub, b.Cast(ir.CastPtrToInt, x.IR, w), b.Cast(ir.CastPtrToInt, y.IR, w))
		var v ir.Value = diff
		if size := m.Sizes.SizeOf(elem); size > 1 {
			v = b.BinOp(ir.OpSDiv, diff, ir.ConstIntOf(w, size))
		}
		return p.result(bc, v, types.Int)
	case VolatileLoad, NonTemporalLoad, UnalignedLoad:
		ptr := p.arg(bc, 0)
		elem := p.pointee(bc, ptr)
		align := m.alignOf(elem)
		if bc.ID == UnalignedLoad {
			align = 1
		}
		ld := b.Load(m.IRType(elem), ptr.IR, align)
		ld.Volatile = bc.ID == VolatileLoad
		ld.NonTemporal = bc.ID == NonTemporalLoad
		return Value{IR: ld, Type: elem}
	case VolatileStore, NonTemporalStore, UnalignedStore:
		ptr := p.arg(bc, 0)
		elem := p.pointee(bc, ptr)
		v := p.Conv(p.arg(bc, 1), elem)
		align := m.alignOf(elem)
		if bc.ID == UnalignedStore {
			align = 1
		}
		st := b.Store(v.IR, ptr.IR, align)
		st.Volatile = bc.ID == VolatileStore
		st.NonTemporal = bc.ID == NonTemporalStore
		return Value{}
	case PrefetchReadData, PrefetchWriteData, PrefetchReadInstruction, PrefetchWriteInstruction:
		rw, cache := int64(0), int64(1)
		if bc.ID == PrefetchWriteData || bc.ID == PrefetchWriteInstruction {
			rw = 1
		}
		if bc.ID == PrefetchReadInstruction || bc.ID == PrefetchWriteInstruction {
			cache = 0
		}
		locality := p.constArg(bc, 1)
		if locality < 0 || locality > 3 {
			p.fatalf("%s: locality %d out of range", bc.ID, locality)
		}
		b.Intrinsic("llvm.prefetch", ir.Void, []ir.Type{ir.Ptr}, p.arg(bc, 0).IR,
			ir.ConstIntOf(ir.I32, rw), ir.ConstIntOf(ir.I32, locality), ir.ConstIntOf(ir.I32, cache))
		return Value{}
	}
	p.fatalf("unhandled builtin %s", bc.ID)
	return Value{}
}

func (p *Procedure) pointee(bc BuiltinCall, ptr Value) types.Type {
	pt, ok := ptr.Type.Underlying().(*types.Pointer)
	if !ok {
		p.fatalf("%s of non-pointer %s", bc.ID, ptr.Type)
	}
	return pt.Elem
}
