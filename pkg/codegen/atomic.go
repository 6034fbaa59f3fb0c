package codegen

import (
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// IROrdering maps a source memory order to the native one. Consume has no
// native counterpart and strengthens to acquire.
func IROrdering(o types.AtomicOrdering) ir.Ordering {
	switch o {
	case types.OrderRelaxed:
		return ir.Monotonic
	case types.OrderConsume, types.OrderAcquire:
		return ir.Acquire
	case types.OrderRelease:
		return ir.Release
	case types.OrderAcqRel:
		return ir.AcquireRelease
	}
	return ir.SequentiallyConsistent
}

// failureOrdering weakens a success order to one valid for a failed
// compare-exchange, which performs no store.
func failureOrdering(o ir.Ordering) ir.Ordering {
	switch o {
	case ir.Release:
		return ir.Monotonic
	case ir.AcquireRelease:
		return ir.Acquire
	}
	return o
}

func (p *Procedure) ordering(bc BuiltinCall, i int) ir.Ordering {
	if i < len(bc.Order) {
		return IROrdering(bc.Order[i])
	}
	return ir.SequentiallyConsistent
}

var rmwOps = map[BuiltinID]ir.RMWOp{
	AtomicAdd:      ir.RMWAdd,
	AtomicSub:      ir.RMWSub,
	AtomicAnd:      ir.RMWAnd,
	AtomicNand:     ir.RMWNand,
	AtomicOr:       ir.RMWOr,
	AtomicXor:      ir.RMWXor,
	AtomicExchange: ir.RMWXchg,
}

func (p *Procedure) lowerAtomic(bc BuiltinCall) Value {
	m := p.Module
	b := p.b
	switch bc.ID {
	case AtomicThreadFence, AtomicSignalFence:
		b.Fence(p.ordering(bc, 0), bc.ID == AtomicSignalFence)
		return Value{}
	}

	ptr := p.arg(bc, 0)
	elem := p.pointee(bc, ptr)
	it := m.IRType(elem)
	align := m.alignOf(elem)
	switch bc.ID {
	case AtomicLoad:
		ld := b.Load(it, ptr.IR, align)
		ld.Ordering = p.ordering(bc, 0)
		return Value{IR: ld, Type: elem}
	case AtomicStore:
		v := p.Conv(p.arg(bc, 1), elem)
		st := b.Store(v.IR, ptr.IR, align)
		st.Ordering = p.ordering(bc, 0)
		return Value{}
	case AtomicCompareExchangeStrong, AtomicCompareExchangeWeak:
		old := p.Conv(p.arg(bc, 1), elem)
		repl := p.Conv(p.arg(bc, 2), elem)
		success := p.ordering(bc, 0)
		failure := failureOrdering(success)
		if len(bc.Order) > 1 {
			failure = IROrdering(bc.Order[1])
		}
		if failure == ir.Release || failure == ir.AcquireRelease {
			p.fatalf("%s: invalid failure ordering %s", bc.ID, failure)
		}
		pair := b.CmpXchg(ptr.IR, old.IR, repl.IR, success, failure, bc.ID == AtomicCompareExchangeWeak)
		tup, ok := bc.Result.(*types.Tuple)
		if !ok || tup.Len() != 2 {
			tup = types.TupleOf(elem, types.Bool)
		}
		ok1 := Value{IR: b.ExtractValue(pair, 1), Type: types.LLVMBool}
		return p.makeTuple(tup, []Value{{IR: b.ExtractValue(pair, 0), Type: elem}, ok1})
	}
	if op, ok := rmwOps[bc.ID]; ok {
		v := p.Conv(p.arg(bc, 1), elem)
		return Value{IR: b.AtomicRMW(op, ptr.IR, v.IR, p.ordering(bc, 0)), Type: elem}
	}
	p.fatalf("unhandled builtin %s", bc.ID)
	return Value{}
}
