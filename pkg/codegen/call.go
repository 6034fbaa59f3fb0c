package codegen

import (
	"sort"

	"github.com/GriffinCanCode/callgen/pkg/abi"
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// EmitCall calls callee with one argument per declared parameter followed
// by the already promoted C variadic tail. Constant and type parameters are
// skipped. The result is the source-level result, a tuple for multiple
// results and an invalid Value for none.
func (p *Procedure) EmitCall(callee Value, args []Value, inlining types.Inlining) Value {
	if p.b.Block() == p.decls {
		p.fatalf("call emitted in the declarations block")
	}
	sig, ok := callee.Type.Underlying().(*types.Proc)
	if !ok {
		p.fatalf("call of non-procedure %s", callee.Type)
	}
	m := p.Module
	ft := m.ABI.Get(sig)
	params := sig.ParamVars()
	fixed := len(params)
	if sig.CVararg {
		fixed--
		if len(args) < fixed {
			p.fatalf("call passes %d args to %s", len(args), sig)
		}
	} else if len(args) != fixed {
		p.fatalf("call passes %d args to %s", len(args), sig)
	}

	rawSig := ft.RawType()
	raw := make([]ir.Value, 0, len(rawSig.Params)+len(args)-fixed)
	paramAttrs := map[int][]string{}

	var retSlot Addr
	if ft.ReturnByPointer() {
		retSlot = p.AddLocal(returnSlotType(sig, ft), nil, true)
		raw = append(raw, retSlot.Ptr)
	}
	for _, a := range ft.Args {
		if a.Kind == abi.Ignore {
			continue
		}
		e := params[a.ParamIndex]
		v := p.Conv(args[a.ParamIndex], e.Type)
		if a.Kind == abi.Direct {
			raw = append(raw, p.transmute(v.IR, a.ABIType()))
			continue
		}
		var ptr ir.Value
		switch {
		case a.IsByval:
			ptr = p.copyToLocal(v)
			paramAttrs[len(raw)] = sortedAttrs(a.Attrs)
		case sig.CC.IsOdinFamily() && ir.IsConstant(v.IR):
			ptr = p.constGlobal(v)
		case sig.CC.IsOdinFamily():
			ptr = p.AddressOf(v)
		default:
			ptr = p.copyToLocal(v)
		}
		raw = append(raw, ptr)
	}

	var splits []Addr
	if ft.IsSplit() {
		orig := ft.MultipleReturnOriginalType
		for i := range ft.SplitReturns {
			a := p.AddLocal(orig.Vars[i].Type, nil, true)
			splits = append(splits, a)
			raw = append(raw, a.Ptr)
		}
	}
	if ft.HasContext() {
		raw = append(raw, p.ContextPtr())
	}
	if len(raw) != len(rawSig.Params) {
		p.fatalf("call marshals %d native args, %s takes %d", len(raw), rawSig, len(rawSig.Params))
	}
	for _, v := range args[fixed:] {
		raw = append(raw, v.IR)
	}

	call := p.b.Call(rawSig, callee.IR, raw, m.callConv(sig.CC))
	switch inlining {
	case types.InliningInline:
		call.Attrs = append(call.Attrs, "alwaysinline")
	case types.InliningNoInline:
		call.Attrs = append(call.Attrs, "noinline")
	}
	if len(paramAttrs) > 0 {
		call.ParamAttrs = paramAttrs
	}
	m.stats.Calls.Inc()

	result := p.callResult(sig, ft, call, retSlot, splits)

	if e := m.calleeEntity(callee.IR); e != nil && e.Proc != nil && e.Proc.Deferred.Kind != types.DeferredNone {
		p.attachDeferred(e.Proc.Deferred, args, result)
	}
	if sig.Diverging {
		p.b.Unreachable()
	}
	return result
}

func (p *Procedure) callResult(sig *types.Proc, ft *abi.FunctionType, call ir.Value, retSlot Addr, splits []Addr) Value {
	rt := returnSlotType(sig, ft)
	var last Value
	switch {
	case rt == nil:
		return Value{}
	case ft.ReturnByPointer():
		last = p.Load(retSlot)
	case ft.Ret.Kind == abi.Ignore:
		last = p.Module.Zero(rt)
	default:
		last = Value{IR: p.transmute(call, ft.Ret.Type), Type: rt}
	}
	if !ft.IsSplit() {
		return last
	}

	orig := ft.MultipleReturnOriginalType
	vals := make([]Value, 0, orig.Len())
	for _, a := range splits {
		vals = append(vals, p.Load(a))
	}
	vals = append(vals, last)

	dummy := p.AddLocal(orig, nil, false)
	p.b.Store(p.makeTuple(orig, vals).IR, dummy.Ptr, p.Module.alignOf(orig))
	loaded := p.Load(dummy)
	p.tupleFix[dummy.Ptr] = vals
	p.tupleFix[loaded.IR] = vals
	return loaded
}

func (p *Procedure) copyToLocal(v Value) ir.Value {
	local := p.AddLocal(v.Type, nil, false)
	p.b.Store(v.IR, local.Ptr, p.Module.alignOf(v.Type))
	return local.Ptr
}

func (p *Procedure) constGlobal(v Value) ir.Value {
	g := p.Module.IR.AddGlobal("", p.Module.IRType(v.Type), v.IR)
	g.Linkage = ir.LinkagePrivate
	g.Constant = true
	g.Align = p.Module.alignOf(v.Type)
	return g
}

func sortedAttrs(a ir.Attrs) []string {
	out := make([]string, 0, len(a))
	for k, v := range a {
		if v != "" {
			k += "(" + v + ")"
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// calleeEntity resolves a statically known callee through bit casts.
func (m *Module) calleeEntity(v ir.Value) *types.Entity {
	for {
		c, ok := v.(*ir.Cast)
		if !ok || c.Op != ir.CastBitCast {
			break
		}
		v = c.X
	}
	fn, ok := v.(*ir.Function)
	if !ok {
		return nil
	}
	e, ok := m.procEntities.Load(fn)
	if !ok {
		return nil
	}
	return e.(*types.Entity)
}

// attachDeferred schedules the deferred companion of a callee with the
// call's inputs, outputs or both, passed by value or by address. Inputs
// include any C vararg tail.
func (p *Procedure) attachDeferred(d types.DeferredProcedure, in []Value, result Value) {
	var args []Value
	switch d.Kind {
	case types.DeferredIn, types.DeferredInByPtr:
		args = append(args, in...)
	case types.DeferredOut, types.DeferredOutByPtr:
		if result.Valid() {
			args = append(args, p.Values(result)...)
		}
	case types.DeferredInOut, types.DeferredInOutByPtr:
		args = append(args, in...)
		if result.Valid() {
			args = append(args, p.Values(result)...)
		}
	default:
		p.fatalf("unknown deferred kind %d", d.Kind)
	}
	if d.Kind.ByPtr() {
		for i, v := range args {
			if !v.Valid() {
				continue
			}
			args[i] = Value{IR: p.AddressOf(v), Type: types.NewPointer(v.Type)}
		}
	}
	companion := p.Module.ProcedureValue(d.Entity)
	p.AddDeferProc(companion, args)
	p.Module.stats.DeferredAttached.Inc()
}
