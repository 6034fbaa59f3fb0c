package codegen

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/callgen/pkg/interp"
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/target"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

func testModule(arch target.Arch, os target.OS, features ...string) *Module {
	tgt := target.New(arch, os)
	tgt.EnableFeatures(features...)
	return NewModule("test", tgt)
}

func vars(es ...*types.Entity) []*types.Entity { return es }

func declare(name string, cc types.CallingConvention, params, results []*types.Entity, body func(p *Procedure)) *types.Entity {
	var node types.Node
	if body != nil {
		node = StmtFunc(body)
	}
	return types.NewProcedure(nil, name, types.NewProc(cc, params, results), node)
}

func build(t *testing.T, m *Module, roots ...*types.Entity) {
	t.Helper()
	for _, e := range roots {
		require.NotNil(t, m.CreateProcedure(e, false))
	}
	require.NoError(t, m.Generate(context.Background(), 4))
	require.NoError(t, ir.Verify(m.IR))
}

func run(t *testing.T, m *Module, name string, args ...interp.Val) interp.Val {
	t.Helper()
	got, err := interp.New(m.IR).Call(name, args...)
	require.NoError(t, err, "module:\n%s", m.IR)
	return got
}

// load reads the current value of a parameter or local.
func load(p *Procedure, e *types.Entity) Value {
	a, ok := p.Local(e)
	if !ok {
		p.fatalf("no storage for %s", e.Name)
	}
	return p.Load(a)
}

func requireFatal(t *testing.T, contains string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected an internal error")
		ie, ok := r.(*InternalError)
		require.True(t, ok, "panic value %v", r)
		assert.Contains(t, ie.Error(), contains)
	}()
	fn()
}

func TestCreateProcedureIsIdempotent(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	e := declare("f", types.CCOdin, nil, nil, func(p *Procedure) {})

	p1 := m.CreateProcedure(e, false)
	p2 := m.CreateProcedure(e, false)
	require.NotNil(t, p1)
	assert.Same(t, p1, p2)

	v, ok := m.Value("f")
	require.True(t, ok)
	assert.Same(t, p1.Fn, v)
	s := m.Stats()
	assert.EqualValues(t, 1, s.ProceduresBuilt)
	assert.EqualValues(t, 1, s.ProceduresReused)
}

func TestCreateProcedureConcurrentCallersConverge(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	e := declare("shared", types.CCOdin, nil, nil, func(p *Procedure) {})

	const n = 16
	got := make([]*Procedure, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = m.CreateProcedure(e, false)
		}(i)
	}
	wg.Wait()

	for _, p := range got {
		assert.Same(t, got[0], p)
	}
	assert.Len(t, m.IR.Functions(), 1)
	s := m.Stats()
	assert.EqualValues(t, 1, s.ProceduresBuilt)
	assert.EqualValues(t, n-1, s.ProceduresReused)
	require.NoError(t, m.Generate(context.Background(), 4))
}

func TestGenericTemplateIsSkipped(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	e := declare("generic", types.CCOdin, nil, nil, func(p *Procedure) {})
	e.Signature().Polymorphic = true

	assert.Nil(t, m.CreateProcedure(e, false))
	assert.Empty(t, m.IR.Functions())

	e.Signature().PolySpecialized = true
	assert.NotNil(t, m.CreateProcedure(e, false))
}

func TestLinkNameCollisionIsFatal(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	m.CreateDummyProcedure("taken", types.NewProc(types.CCCDecl, nil, nil))
	e := declare("taken", types.CCCDecl, nil, nil, nil)
	requireFatal(t, "already defined", func() { m.CreateProcedure(e, false) })
}

func TestFunctionAttributes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *types.Entity)
		tgt   func(tgt *target.Target)
		has   []string
		lacks []string
		attrs map[string]string
	}{
		{
			name:  "diverging",
			setup: func(e *types.Entity) { e.Signature().Diverging = true },
			has:   []string{"noreturn"},
		},
		{
			name:  "naked",
			setup: func(e *types.Entity) { e.Signature().CC = types.CCNaked },
			has:   []string{"naked"},
		},
		{
			name:  "inline hint",
			setup: func(e *types.Entity) { e.Proc.Inlining = types.InliningInline },
			has:   []string{"alwaysinline"},
		},
		{
			name:  "forced no inline",
			setup: func(e *types.Entity) { e.Proc.Inlining = types.InliningInline },
			tgt:   func(tgt *target.Target) { tgt.InternalNoInline = true },
			has:   []string{"noinline"},
			lacks: []string{"alwaysinline"},
		},
		{
			name:  "optimization none",
			setup: func(e *types.Entity) { e.Proc.Optimization = types.OptimizationNone },
			has:   []string{"optnone", "noinline"},
		},
		{
			name:  "favor size",
			setup: func(e *types.Entity) { e.Proc.Optimization = types.OptimizationFavorSize },
			has:   []string{"optsize"},
		},
		{
			name:  "target features",
			setup: func(e *types.Entity) { e.Signature().EnableTargetFeature = "avx2, +bmi2" },
			attrs: map[string]string{"target-features": "+avx2,+bmi2"},
		},
		{
			name:  "cold",
			setup: func(e *types.Entity) { e.Flags |= types.FlagCold },
			has:   []string{"cold"},
		},
		{
			name: "red zone disabled",
			tgt:  func(tgt *target.Target) { tgt.DisableRedZone = true },
			has:  []string{"noredzone"},
		},
		{
			name:  "address sanitizer",
			tgt:   func(tgt *target.Target) { tgt.Sanitizers = target.SanitizeAddress },
			has:   []string{"sanitize_address"},
			lacks: []string{"sanitize_memory"},
		},
		{
			name:  "address sanitizer opt out",
			setup: func(e *types.Entity) { e.Proc.NoSanitizeAddress = true },
			tgt:   func(tgt *target.Target) { tgt.Sanitizers = target.SanitizeAddress },
			lacks: []string{"sanitize_address"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testModule(target.ArchAMD64, target.OSLinux)
			if tt.tgt != nil {
				tt.tgt(m.Target)
			}
			e := declare("f", types.CCOdin, nil, nil, func(p *Procedure) {})
			if tt.setup != nil {
				tt.setup(e)
			}
			p := m.CreateProcedure(e, false)
			require.NotNil(t, p)
			for _, a := range tt.has {
				assert.True(t, p.Fn.Attrs.Has(a), "missing %s in %s", a, p.Fn.Attrs)
			}
			for _, a := range tt.lacks {
				assert.False(t, p.Fn.Attrs.Has(a), "unexpected %s in %s", a, p.Fn.Attrs)
			}
			for k, v := range tt.attrs {
				assert.Equal(t, v, p.Fn.Attrs[k])
			}
		})
	}
}

func TestLinkage(t *testing.T) {
	runtimePkg := &types.Package{Name: "runtime", Kind: types.PackageRuntime}
	tests := []struct {
		name      string
		os        target.OS
		arch      target.Arch
		setup     func(e *types.Entity)
		linkName  string
		want      ir.Linkage
		dllExport bool
		attrs     map[string]string
	}{
		{name: "default internal", want: ir.LinkageInternal},
		{
			name:  "export",
			setup: func(e *types.Entity) { e.Proc.IsExport = true },
			want:  ir.LinkageExternal,
		},
		{
			name:      "windows export",
			os:        target.OSWindows,
			setup:     func(e *types.Entity) { e.Proc.IsExport = true },
			want:      ir.LinkageExternal,
			dllExport: true,
		},
		{
			name:  "wasm export",
			arch:  target.ArchWasm32,
			os:    target.OSJS,
			setup: func(e *types.Entity) { e.Proc.IsExport = true },
			want:  ir.LinkageExternal,
			attrs: map[string]string{"wasm-export-name": "f"},
		},
		{
			name: "wasm import",
			arch: target.ArchWasm32,
			os:   target.OSJS,
			setup: func(e *types.Entity) {
				e.Proc.IsForeign = true
				e.Proc.ForeignLibrary = "env"
			},
			want:  ir.LinkageExternal,
			attrs: map[string]string{"wasm-import-name": "f", "wasm-import-module": "env"},
		},
		{
			name:  "weak override",
			setup: func(e *types.Entity) { e.Proc.Linkage = "weak" },
			want:  ir.LinkageWeakAny,
		},
		{
			name: "runtime custom name",
			setup: func(e *types.Entity) {
				e.Pkg = runtimePkg
				e.Flags |= types.FlagCustomLinkName
				e.Proc.LinkName = "__callgen_start"
			},
			linkName: "__callgen_start",
			want:     ir.LinkageExternal,
		},
		{
			name: "runtime ordinary name",
			setup: func(e *types.Entity) {
				e.Pkg = runtimePkg
				e.Flags |= types.FlagCustomLinkName
				e.Proc.LinkName = "callgen_helper"
			},
			linkName: "callgen_helper",
			want:     ir.LinkageInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arch, os := tt.arch, tt.os
			if arch == "" {
				arch = target.ArchAMD64
			}
			if os == "" {
				os = target.OSLinux
			}
			m := testModule(arch, os)
			e := declare("f", types.CCOdin, nil, nil, func(p *Procedure) {})
			if tt.setup != nil {
				tt.setup(e)
			}
			p := m.CreateProcedure(e, false)
			require.NotNil(t, p)
			name := tt.linkName
			if name == "" {
				name = "f"
			}
			assert.Equal(t, name, p.Name)
			assert.Equal(t, tt.want, p.Fn.Linkage)
			assert.Equal(t, tt.dllExport, p.Fn.DLLExport)
			for k, v := range tt.attrs {
				assert.Equal(t, v, p.Fn.Attrs[k])
			}
		})
	}
}

func TestParamAttributes(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	ptr := types.NewParam("dst", types.NewPointer(types.Int64))
	ptr.Flags |= types.FlagNoAlias | types.FlagNoCapture
	big := &types.Array{Elem: types.Int64, Len: 4}
	e := declare("f", types.CCOdin, vars(ptr), vars(types.NewParam("", big)), nil)

	p := m.CreateProcedure(e, false)
	require.NotNil(t, p)
	fn := p.Fn
	require.Len(t, fn.Params, 3, "sret, dst, context")

	assert.Equal(t, "agg.result", fn.Params[0].Name)
	assert.True(t, fn.ParamAttr(0).Has("sret"))
	assert.True(t, fn.ParamAttr(1).Has("noalias"))
	assert.True(t, fn.ParamAttr(1).Has("nocapture"))
	assert.Equal(t, "dst", fn.Params[1].Name)
	assert.Equal(t, "__.context_ptr", fn.Params[2].Name)
	assert.True(t, fn.ParamAttr(2).Has("nonnull"))
}

func TestCallingConventionMapping(t *testing.T) {
	tests := []struct {
		cc   types.CallingConvention
		arch target.Arch
		want ir.CallConv
	}{
		{types.CCOdin, target.ArchAMD64, ir.CallConvC},
		{types.CCContextless, target.ArchAMD64, ir.CallConvC},
		{types.CCStdCall, target.ArchI386, ir.CallConvX86StdCall},
		{types.CCStdCall, target.ArchAMD64, ir.CallConvC},
		{types.CCFastCall, target.ArchI386, ir.CallConvX86FastCall},
		{types.CCWin64, target.ArchAMD64, ir.CallConvWin64},
		{types.CCWin64, target.ArchARM64, ir.CallConvC},
		{types.CCSysV, target.ArchAMD64, ir.CallConvX8664SysV},
	}
	for _, tt := range tests {
		t.Run(tt.cc.String()+"/"+string(tt.arch), func(t *testing.T) {
			m := testModule(tt.arch, target.OSLinux)
			assert.Equal(t, tt.want, m.callConv(tt.cc))
		})
	}
}

func TestGenerateRecoversInternalErrors(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	good := declare("good", types.CCOdin, nil, nil, func(p *Procedure) {})
	bad := declare("bad", types.CCOdin, nil, nil, func(p *Procedure) {
		p.fatalf("broken invariant")
	})
	m.CreateProcedure(good, false)
	m.CreateProcedure(bad, false)

	err := m.Generate(context.Background(), 2)
	require.Error(t, err)
	var ie *InternalError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "bad", ie.Procedure)
	assert.Contains(t, ie.Message, "broken invariant")
}

func TestGenerateWrapsForeignPanics(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	e := declare("oops", types.CCOdin, nil, nil, func(p *Procedure) {
		var s []int
		_ = s[3]
	})
	m.CreateProcedure(e, false)

	err := m.Generate(context.Background(), 1)
	var ie *InternalError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "oops", ie.Procedure)
}

func TestGenerateHonorsCancellation(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	m.CreateProcedure(declare("f", types.CCOdin, nil, nil, func(p *Procedure) {}), false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Generate(ctx, 1), context.Canceled)
}

func TestNestedProcedureGeneratedWithParent(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	var child *types.Entity
	var generatedFirst bool
	parent := declare("outer", types.CCCDecl, nil, vars(types.NewParam("", types.Int64)), func(p *Procedure) {
		cp := p.BuildNestedProcedure(child)
		generatedFirst = cp.generated
		res := p.EmitCall(Value{IR: cp.Fn, Type: child.Type}, nil, types.InliningNone)
		p.EmitReturn(res)
	})
	child = declare("inner", types.CCOdin, nil, vars(types.NewParam("", types.Int64)), func(p *Procedure) {
		p.EmitReturn(p.Module.ConstInt(types.Int64, 41))
	})
	child.Proc.Parent = parent

	build(t, m, parent)
	p, ok := m.Procedure(parent)
	require.True(t, ok)
	assert.True(t, generatedFirst, "nested body generated before the parent references it")
	require.Len(t, p.Children, 1)
	assert.Equal(t, "outer.inner-0", p.Children[0].Name)
	assert.Equal(t, uint64(41), run(t, m, "outer"))
}

func TestNestedProcedureReferencedBeforeBuildIsFatal(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	parent := declare("outer", types.CCOdin, nil, nil, nil)
	child := declare("inner", types.CCOdin, nil, nil, func(p *Procedure) {})
	child.Proc.Parent = parent
	requireFatal(t, "before it was built", func() { m.ProcedureValue(child) })
}
