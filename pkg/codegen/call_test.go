package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/target"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

func pairStruct(n int) *types.Struct {
	fields := make([]types.Field, n)
	for i := range fields {
		fields[i] = types.Field{Type: types.Int64}
	}
	return &types.Struct{Fields: fields}
}

func result(t types.Type) []*types.Entity { return vars(types.NewParam("", t)) }

func callOf(p *Procedure, e *types.Entity, args ...Value) Value {
	return p.EmitCall(p.Module.ProcedureValue(e), args, types.InliningNone)
}

// storeField writes v into field i of the struct at a.
func storeField(p *Procedure, a Addr, i int, v int64) {
	st := p.Module.IRType(a.Type).(*ir.StructType)
	p.b.Store(ir.ConstIntOf(ir.I64, v), p.b.StructGEP(st, a.Ptr, i), 8)
}

func loadField(p *Procedure, a Addr, i int) ir.Value {
	st := p.Module.IRType(a.Type).(*ir.StructType)
	return p.b.Load(ir.I64, p.b.StructGEP(st, a.Ptr, i), 8)
}

func TestIndirectParameterCalleeCopy(t *testing.T) {
	tests := []struct {
		name     string
		fields   int
		isolated bool
	}{
		{"small aggregate is copied", 2, true},
		{"large aggregate is shared", 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testModule(target.ArchAMD64, target.OSLinux)
			st := pairStruct(tt.fields)
			s := types.NewParam("s", st)
			var bound, incoming ir.Value
			callee := declare("bump", types.CCOdin, vars(s), result(types.Int64), func(p *Procedure) {
				a, _ := p.Local(s)
				bound, incoming = a.Ptr, p.Fn.Params[0]
				storeField(p, a, 0, 99)
				p.EmitReturn(Value{IR: loadField(p, a, 0), Type: types.Int64})
			})
			caller := declare("main", types.CCCDecl, nil, result(types.Int64), func(p *Procedure) {
				x := p.AddLocal(st, nil, true)
				storeField(p, x, 0, 1)
				r := callOf(p, callee, p.Load(x))
				seen := p.b.Load(ir.I64, x.Ptr, 8)
				sum := p.b.BinOp(ir.OpAdd, p.b.BinOp(ir.OpMul, seen, ir.ConstIntOf(ir.I64, 1000)), r.IR)
				p.EmitReturn(Value{IR: sum, Type: types.Int64})
			})
			build(t, m, caller)

			if tt.isolated {
				assert.NotSame(t, incoming, bound, "callee binds a private copy")
				assert.Equal(t, uint64(1*1000+99), run(t, m, "main"))
			} else {
				assert.Same(t, incoming, bound, "callee binds the caller's storage")
				assert.Equal(t, uint64(99*1000+99), run(t, m, "main"))
			}
		})
	}
}

func TestInternalByValueForcesCalleeCopy(t *testing.T) {
	tgt := target.New(target.ArchAMD64, target.OSLinux)
	tgt.InternalByValue = true
	m := NewModule("test", tgt)

	s := types.NewParam("s", pairStruct(4))
	var bound, incoming ir.Value
	e := declare("f", types.CCOdin, vars(s), nil, func(p *Procedure) {
		a, _ := p.Local(s)
		bound, incoming = a.Ptr, p.Fn.Params[0]
	})
	build(t, m, e)
	assert.NotSame(t, incoming, bound)
}

func TestConstantIndirectArgumentIsHoisted(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	st := pairStruct(3)
	s := types.NewParam("s", st)
	callee := declare("second", types.CCOdin, vars(s), result(types.Int64), func(p *Procedure) {
		a, _ := p.Local(s)
		p.EmitReturn(Value{IR: loadField(p, a, 1), Type: types.Int64})
	})
	caller := declare("main", types.CCCDecl, nil, result(types.Int64), func(p *Procedure) {
		c := p.Module.ConstValue(st, []any{10, 20, 30})
		p.EmitReturn(callOf(p, callee, c))
	})
	build(t, m, caller)

	var hoisted int
	for _, g := range m.IR.Globals() {
		if g.Constant && g.Linkage == ir.LinkagePrivate && ir.Equal(g.Elem, m.IRType(st)) {
			hoisted++
		}
	}
	assert.Equal(t, 1, hoisted)
	assert.Equal(t, uint64(20), run(t, m, "main"))
}

func TestSplitReturnRoundTrip(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	three := vars(types.NewParam("", types.Int64), types.NewParam("", types.Int32), types.NewParam("", types.Int64))
	callee := declare("triple", types.CCOdin, nil, three, func(p *Procedure) {
		p.EmitReturn(p.Module.ConstInt(types.Int64, 7), p.Module.ConstInt(types.Int32, 8), p.Module.ConstInt(types.Int64, 9))
	})

	var fixed bool
	caller := declare("main", types.CCCDecl, nil, result(types.Int64), func(p *Procedure) {
		res := callOf(p, callee)
		_, fixed = p.TupleFix(res.IR)

		// Destructure through the tuple-fix map and through the aggregate.
		var viaFix, viaAgg ir.Value = ir.ConstIntOf(ir.I64, 0), ir.ConstIntOf(ir.I64, 0)
		for i := 0; i < 3; i++ {
			scale := ir.ConstIntOf(ir.I64, []int64{100, 10, 1}[i])
			a := p.Conv(p.TupleValue(res, i), types.Int64).IR
			b := p.Conv(Value{IR: p.b.ExtractValue(res.IR, i), Type: three[i].Type}, types.Int64).IR
			viaFix = p.b.BinOp(ir.OpAdd, viaFix, p.b.BinOp(ir.OpMul, a, scale))
			viaAgg = p.b.BinOp(ir.OpAdd, viaAgg, p.b.BinOp(ir.OpMul, b, scale))
		}
		diff := p.b.BinOp(ir.OpSub, viaFix, viaAgg)
		p.EmitReturn(Value{IR: p.b.BinOp(ir.OpAdd, p.b.BinOp(ir.OpMul, diff, ir.ConstIntOf(ir.I64, 10000)), viaFix), Type: types.Int64})
	})
	build(t, m, caller)

	ft := m.ABI.Get(callee.Signature())
	require.True(t, ft.IsSplit())
	assert.Len(t, ft.SplitReturns, 2)
	assert.True(t, fixed)
	assert.Equal(t, uint64(789), run(t, m, "main"))
}

func TestNamedResultsEndToEnd(t *testing.T) {
	tests := []struct {
		name      string
		defers    int
		want      uint64
		fastPath  bool
		deferBody func(p *Procedure, b *types.Entity)
	}{
		{name: "no defers", want: 4, fastPath: true},
		{
			name:   "with defer",
			defers: 1,
			want:   14,
			deferBody: func(p *Procedure, b *types.Entity) {
				a, _ := p.Local(b)
				v := p.b.BinOp(ir.OpAdd, p.Load(a).IR, ir.ConstIntOf(ir.I64, 10))
				p.Store(a, Value{IR: v, Type: types.Int64})
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testModule(target.ArchAMD64, target.OSLinux)
			ra := types.NewParam("a", types.Int64)
			rb := types.NewParam("b", types.Int64)
			var firstSlot ir.Value
			var splitParam ir.Value
			callee := declare("two", types.CCOdin, nil, vars(ra, rb), func(p *Procedure) {
				firstSlot = p.results[0].Ptr
				splitParam = p.Fn.Params[p.ABI.SplitReturns[0].RawIndex]
				if tt.deferBody != nil {
					p.AddDeferStmt(StmtFunc(func(p *Procedure) { tt.deferBody(p, rb) }))
				}
				p.Store(p.results[0], p.Module.ConstInt(types.Int64, 3))
				p.Store(p.results[1], p.Module.ConstInt(types.Int64, 4))
				p.EmitReturn()
			})
			callee.Proc.Decl = &types.DeclInfo{DeferUseChecked: true, DeferUsed: tt.defers}

			caller := declare("main", types.CCCDecl, nil, result(types.Int64), func(p *Procedure) {
				res := callOf(p, callee)
				p.EmitReturn(p.TupleValue(res, 1))
			})
			direct := declare("direct", types.CCCDecl, nil, result(types.Int64), func(p *Procedure) {
				res := callOf(p, callee)
				vals := p.Values(res)
				p.EmitReturn(vals[len(vals)-1])
			})
			build(t, m, caller, direct)

			if tt.fastPath {
				assert.Same(t, splitParam, firstSlot)
			} else {
				_, isAlloca := firstSlot.(*ir.Alloca)
				assert.True(t, isAlloca, "result bound to a zeroed local")
			}
			got := run(t, m, "main")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, run(t, m, "direct"), got)
		})
	}
}

func TestNamedResultsWithoutDeferInfoUseLocals(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	r := types.NewParam("r", pairStruct(4))
	var slot ir.Value
	e := declare("f", types.CCOdin, nil, vars(r), func(p *Procedure) {
		slot = p.results[0].Ptr
	})
	build(t, m, e)
	_, isAlloca := slot.(*ir.Alloca)
	assert.True(t, isAlloca)
}

func TestDeferredInByPtrSeesArgumentStorage(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	pv := types.NewParam("pv", types.NewPointer(types.Int64))
	companion := declare("end", types.CCOdin, vars(pv), nil, func(p *Procedure) {
		ptr := load(p, pv)
		p.b.Store(ir.ConstIntOf(ir.I64, 42), ptr.IR, 8)
	})
	x := types.NewParam("x", types.Int64)
	begin := declare("begin", types.CCOdin, vars(x), nil, func(p *Procedure) {})
	begin.Proc.Deferred = types.DeferredProcedure{Kind: types.DeferredInByPtr, Entity: companion}

	caller := declare("main", types.CCCDecl, nil, result(types.Int64), func(p *Procedure) {
		v := p.AddLocal(types.Int64, nil, false)
		p.Store(v, p.Module.ConstInt(types.Int64, 5))
		p.OpenScope()
		callOf(p, begin, p.Load(v))
		p.CloseScope(ExitDefault)
		p.EmitReturn(p.Load(v))
	})
	build(t, m, caller)

	assert.Equal(t, uint64(42), run(t, m, "main"))
	assert.EqualValues(t, 1, m.Stats().DeferredAttached)
}

func TestDeferredOutReplaysResults(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	g := m.IR.AddGlobal("seen", ir.I64, ir.ConstIntOf(ir.I64, 0))
	in := types.NewParam("v", types.Int64)
	companion := declare("record", types.CCOdin, vars(in), nil, func(p *Procedure) {
		p.b.Store(load(p, in).IR, g, 8)
	})
	produce := declare("produce", types.CCOdin, nil, result(types.Int64), func(p *Procedure) {
		p.EmitReturn(p.Module.ConstInt(types.Int64, 17))
	})
	produce.Proc.Deferred = types.DeferredProcedure{Kind: types.DeferredOut, Entity: companion}

	caller := declare("main", types.CCCDecl, nil, result(types.Int64), func(p *Procedure) {
		p.OpenScope()
		callOf(p, produce)
		p.CloseScope(ExitDefault)
		p.EmitReturn(Value{IR: p.b.Load(ir.I64, g, 8), Type: types.Int64})
	})
	build(t, m, caller)
	assert.Equal(t, uint64(17), run(t, m, "main"))
}

func TestDefersRunInReverseOrderOnReturn(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	main := declare("main", types.CCCDecl, nil, result(types.Int64), func(p *Procedure) {
		acc := p.AddLocal(types.Int64, nil, true)
		push := func(d int64) StmtFunc {
			return func(p *Procedure) {
				v := p.b.BinOp(ir.OpAdd, p.b.BinOp(ir.OpMul, p.Load(acc).IR, ir.ConstIntOf(ir.I64, 10)), ir.ConstIntOf(ir.I64, d))
				p.Store(acc, Value{IR: v, Type: types.Int64})
			}
		}
		p.AddDeferStmt(push(1))
		p.OpenScope()
		p.AddDeferStmt(push(2))
		p.AddDeferStmt(push(3))
		p.EmitDefers(ExitReturn, 0)
		p.CloseScope(ExitReturn)
		p.EmitReturn(p.Load(acc))
	})
	build(t, m, main)
	// The flush runs 3, 2, 1. The result is read before the return runs
	// the outer defer again.
	assert.Equal(t, uint64(321), run(t, m, "main"))
}

func TestEmitCallInvariants(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	x := types.NewParam("x", types.Int64)
	callee := declare("f", types.CCOdin, vars(x), nil, func(p *Procedure) {})
	host := declare("host", types.CCOdin, nil, nil, nil)
	p := m.CreateProcedure(host, false)
	p.Body = StmtFunc(func(*Procedure) {})
	p.BeginBody()
	fv := m.ProcedureValue(callee)

	requireFatal(t, "passes 0 args", func() { p.EmitCall(fv, nil, types.InliningNone) })
	requireFatal(t, "non-procedure", func() {
		p.EmitCall(m.ConstInt(types.Int64, 1), nil, types.InliningNone)
	})
	p.b.SetBlock(p.decls)
	requireFatal(t, "declarations block", func() {
		p.EmitCall(fv, []Value{m.ConstInt(types.Int64, 1)}, types.InliningNone)
	})
}

func TestContextAddressOutsideOdinIsFatal(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	e := declare("f", types.CCCDecl, nil, nil, nil)
	p := m.CreateProcedure(e, false)
	p.BeginBody()
	requireFatal(t, "context pointer", func() { p.Context() })
}

func TestInliningHintOnCall(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	callee := declare("leaf", types.CCContextless, nil, nil, func(p *Procedure) {})
	var call *ir.Call
	caller := declare("main", types.CCCDecl, nil, nil, func(p *Procedure) {
		p.EmitCall(p.Module.ProcedureValue(callee), nil, types.InliningNoInline)
		insts := p.b.Block().Insts
		call, _ = insts[len(insts)-1].(*ir.Call)
	})
	build(t, m, caller)
	require.NotNil(t, call)
	assert.Contains(t, call.Attrs, "noinline")
}

func TestByvalArgumentOnStackConvention(t *testing.T) {
	m := testModule(target.ArchI386, target.OSLinux)
	st := pairStruct(2)
	s := types.NewParam("s", st)
	callee := declare("first", types.CCCDecl, vars(s), result(types.Int64), func(p *Procedure) {
		a, _ := p.Local(s)
		p.EmitReturn(Value{IR: loadField(p, a, 0), Type: types.Int64})
	})
	var call *ir.Call
	caller := declare("main", types.CCCDecl, nil, result(types.Int64), func(p *Procedure) {
		x := p.AddLocal(st, nil, true)
		storeField(p, x, 0, 31)
		r := callOf(p, callee, p.Load(x))
		for _, in := range p.b.Block().Insts {
			if c, ok := in.(*ir.Call); ok {
				call = c
			}
		}
		p.EmitReturn(r)
	})
	build(t, m, caller)

	require.NotNil(t, call)
	require.Contains(t, call.ParamAttrs, 0)
	assert.Contains(t, call.ParamAttrs[0][0], "byval")
	assert.Equal(t, uint64(31), run(t, m, "main"))
}

func TestDeferredInReplaysCVarargTail(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	traceSig := func() *types.Proc {
		sig := types.NewProc(types.CCCDecl, vars(types.NewParam("tag", types.Int64), types.NewParam("args", &types.Slice{Elem: types.Any})), nil)
		sig.Variadic, sig.VariadicIndex, sig.CVararg = true, 1, true
		return sig
	}
	end := types.NewProcedure(nil, "trace_end", traceSig(), nil)
	end.Proc.IsForeign = true
	trace := types.NewProcedure(nil, "trace", traceSig(), nil)
	trace.Proc.IsForeign = true
	trace.Proc.Deferred = types.DeferredProcedure{Kind: types.DeferredIn, Entity: end}

	main := declare("main", types.CCCDecl, nil, nil, func(p *Procedure) {
		mod := p.Module
		p.OpenScope()
		callOf(p, trace, mod.ConstInt(types.Int64, 1), mod.ConstInt(types.Int64, 2), mod.ConstInt(types.Int64, 3))
		p.CloseScope(ExitDefault)
	})
	build(t, m, main)

	fn, ok := m.IR.Function("main")
	require.True(t, ok)
	endFn := m.ProcedureValue(end).IR
	var replay *ir.Call
	for _, blk := range fn.Blocks {
		for _, in := range blk.Insts {
			if c, isCall := in.(*ir.Call); isCall && c.Callee == endFn {
				replay = c
			}
		}
	}
	require.NotNil(t, replay)
	require.Len(t, replay.Args, 3)
	assert.Equal(t, "3", replay.Args[2].Ident())
}

func TestSignatureWithoutTuples(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	g := m.IR.AddGlobal("hit", ir.I64, ir.ConstIntOf(ir.I64, 0))
	bare := types.NewProcedure(nil, "bare", &types.Proc{CC: types.CCCDecl}, StmtFunc(func(p *Procedure) {
		p.b.Store(ir.ConstIntOf(ir.I64, 9), g, 8)
	}))
	main := declare("main", types.CCCDecl, nil, result(types.Int64), func(p *Procedure) {
		callOf(p, bare)
		p.EmitReturn(Value{IR: p.b.Load(ir.I64, g, 8), Type: types.Int64})
	})
	build(t, m, main)
	assert.Equal(t, uint64(9), run(t, m, "main"))
}
