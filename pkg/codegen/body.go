package codegen

import (
	"github.com/GriffinCanCode/callgen/pkg/abi"
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/logger"
	"github.com/GriffinCanCode/callgen/pkg/optimizer"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// returnSlotType is the source type carried by the native return slot: the
// last result after a split, otherwise the whole result list.
func returnSlotType(sig *types.Proc, ft *abi.FunctionType) types.Type {
	if ft.IsSplit() {
		vars := ft.MultipleReturnOriginalType.Vars
		return vars[len(vars)-1].Type
	}
	return types.ReduceTuple(sig.Results)
}

// BeginBody creates the declaration and entry blocks and binds every native
// parameter to its source entity.
func (p *Procedure) BeginBody() {
	fn, ft := p.Fn, p.ABI
	p.b = ir.NewBuilder(fn)
	p.decls = fn.NewBlock("decls")
	p.entry = fn.NewBlock("entry")
	p.b.SetBlock(p.entry)
	p.locals = make(map[*types.Entity]Addr)
	p.tupleFix = make(map[ir.Value][]Value)
	p.Module.Debug.ProcedureEntry(p)

	if ft.HasContext() {
		p.context = Addr{Ptr: fn.Params[ft.ContextIndex], Type: types.Context}
	}
	if ft.ReturnByPointer() {
		p.returnPtr = Addr{Ptr: fn.Params[0], Type: returnSlotType(p.Sig, ft)}
	}

	params := p.Sig.ParamVars()
	for _, a := range ft.Args {
		e := params[a.ParamIndex]
		idx := a.ParamIndex + 1
		switch a.Kind {
		case abi.Ignore:
			p.addLocal(e.Type, e, true, idx)
		case abi.Direct:
			v := p.transmute(fn.Params[a.RawIndex], a.Type)
			local := p.addLocal(e.Type, e, false, idx)
			p.b.Store(v, local.Ptr, p.Module.alignOf(e.Type))
		case abi.Indirect:
			ptr := ir.Value(fn.Params[a.RawIndex])
			if a.DoCalleeCopy {
				local := p.addLocal(e.Type, nil, false, 0)
				p.memCopy(local.Ptr, ptr, p.sizeConst(e.Type), false)
				ptr = local.Ptr
			}
			p.locals[e] = Addr{Ptr: ptr, Type: e.Type}
			p.Module.Debug.Variable(p, e, ptr, idx)
		}
	}

	if p.Sig.HasNamedResults {
		p.bindNamedResults()
	}
}

// bindNamedResults gives every result variable storage. The native result
// slots are used directly only when the body is known to contain no defer;
// otherwise a deferred statement could observe a result before it is set.
func (p *Procedure) bindNamedResults() {
	ft := p.ABI
	results := p.Sig.ResultVars()
	n := len(results)
	decl := p.Decl()
	direct := decl != nil && decl.DeferUseChecked && decl.DeferUsed == 0

	p.results = make([]Addr, n)
	for i, r := range results {
		var a Addr
		if direct {
			switch {
			case ft.IsSplit() && i < n-1:
				a = Addr{Ptr: p.Fn.Params[ft.SplitReturns[i].RawIndex], Type: r.Type}
			case i == n-1 && ft.ReturnByPointer() && (ft.IsSplit() || n == 1):
				a = Addr{Ptr: p.returnPtr.Ptr, Type: r.Type}
			}
		}
		if a.Ptr == nil {
			a = p.addLocal(r.Type, r, true, 0)
		} else {
			p.b.Store(ir.Zero(p.Module.IRType(r.Type)), a.Ptr, p.Module.alignOf(r.Type))
			p.locals[r] = a
			p.Module.Debug.Variable(p, r, a.Ptr, 0)
		}
		p.results[i] = a
	}
}

func (p *Procedure) addLocal(t types.Type, e *types.Entity, zero bool, paramIndex int) Addr {
	if paramIndex == 0 {
		return p.AddLocal(t, e, zero)
	}
	a := p.AddLocal(t, nil, zero)
	p.locals[e] = a
	p.Module.Debug.Variable(p, e, a.Ptr, paramIndex)
	return a
}

// EndBody closes the body: falls off the end of a void procedure with its
// defers, links the declarations block and seals dead blocks.
func (p *Procedure) EndBody() {
	if cur := p.b.Block(); !cur.Terminated() {
		switch {
		case p.Sig.ResultCount() == 0:
			p.EmitReturn()
		case p.Sig.HasNamedResults:
			p.EmitReturn()
		}
	}
	p.b.SetBlock(p.decls)
	p.b.Br(p.entry)
	for _, blk := range p.Fn.Blocks {
		if !blk.Terminated() {
			blk.Term = &ir.Unreachable{}
		}
	}
	optimizer.OptimizeFunction(p.Fn)
	p.Module.Debug.ProcedureExit(p)

	if err := ir.VerifyFunction(p.Fn); err != nil {
		p.fatalf("malformed function: %v", err)
	}
	logger.LogCodeGen(string(p.Module.Target.Arch), p.Name, p.Fn.InstructionCount())
}

// EmitReturn returns values from the procedure. With no values a procedure
// with named results returns their current contents. Named results are
// assigned before defers run so deferred code observes the returned values.
func (p *Procedure) EmitReturn(values ...Value) {
	results := p.Sig.Results.Len()
	if len(values) == 1 && results > 1 && types.IsTuple(values[0].Type) {
		values = p.Values(values[0])
	}

	switch {
	case len(values) == 0 && results > 0:
		if !p.Sig.HasNamedResults {
			p.fatalf("bare return without named results")
		}
		p.EmitDefers(ExitReturn, 0)
		values = p.loadResults()
	case len(values) != results:
		p.fatalf("return of %d values from procedure with %d results", len(values), results)
	case p.Sig.HasNamedResults:
		for i, v := range values {
			p.Store(p.results[i], v)
		}
		p.EmitDefers(ExitReturn, 0)
		values = p.loadResults()
	default:
		for i, v := range values {
			values[i] = p.Conv(v, p.Sig.ResultVars()[i].Type)
		}
		p.EmitDefers(ExitReturn, 0)
	}
	p.returnValues(values)
}

func (p *Procedure) loadResults() []Value {
	out := make([]Value, len(p.results))
	for i, a := range p.results {
		out[i] = p.Load(a)
	}
	return out
}

func (p *Procedure) returnValues(values []Value) {
	ft := p.ABI
	n := len(values)
	if n == 0 {
		p.b.Ret(nil)
		return
	}
	if ft.IsSplit() {
		for i, s := range ft.SplitReturns {
			v := values[i]
			p.b.Store(v.IR, p.Fn.Params[s.RawIndex], p.Module.alignOf(v.Type))
		}
		p.returnOne(values[n-1])
		return
	}
	if n == 1 {
		p.returnOne(values[0])
		return
	}
	p.returnOne(p.makeTuple(p.Sig.Results, values))
}

func (p *Procedure) returnOne(v Value) {
	ft := p.ABI
	switch ft.Ret.Kind {
	case abi.Ignore:
		p.b.Ret(nil)
	case abi.Indirect:
		p.Store(p.returnPtr, v)
		p.b.Ret(nil)
	default:
		v = p.Conv(v, returnSlotType(p.Sig, ft))
		p.b.Ret(p.transmute(v.IR, ft.Ret.ABIType()))
	}
}

func (p *Procedure) makeTuple(tup *types.Tuple, values []Value) Value {
	var agg ir.Value = ir.Undef(p.Module.IRType(tup))
	for i, v := range values {
		v = p.Conv(v, tup.Vars[i].Type)
		agg = p.b.InsertValue(agg, v.IR, i)
	}
	return Value{IR: agg, Type: tup}
}

// Context returns the storage of the implicit context parameter. Only
// procedures whose convention passes a context have one.
func (p *Procedure) Context() Addr {
	if !p.ABI.HasContext() {
		p.fatalf("address of context pointer under %s convention", p.Sig.CC)
	}
	return p.context
}

// ContextPtr returns the context pointer to forward to a callee, creating a
// zeroed default context when p has none.
func (p *Procedure) ContextPtr() ir.Value {
	if p.context.Ptr != nil {
		return p.context.Ptr
	}
	if p.defaultCtx.Ptr == nil {
		it := p.Module.IRType(types.Context)
		align := p.Module.alignOf(types.Context)
		cur := p.b.Block()
		p.b.SetBlock(p.decls)
		ptr := p.b.Alloca(it, align)
		ptr.SetName("__.default_context")
		p.b.Store(ir.Zero(it), ptr, align)
		p.b.SetBlock(cur)
		p.defaultCtx = Addr{Ptr: ptr, Type: types.Context}
	}
	return p.defaultCtx.Ptr
}
