package codegen

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/callgen/pkg/abi"
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/logger"
	"github.com/GriffinCanCode/callgen/pkg/target"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// Procedure is the generation state of one native function. Everything
// below Fn is owned by the goroutine generating the body.
type Procedure struct {
	Module *Module
	Entity *types.Entity
	Name   string
	Sig    *types.Proc
	ABI    *abi.FunctionType
	Fn     *ir.Function
	Body   types.Node

	Parent   *Procedure
	Children []*Procedure

	b          *ir.Builder
	decls      *ir.Block
	entry      *ir.Block
	returnPtr  Addr
	context    Addr
	defaultCtx Addr
	locals     map[*types.Entity]Addr
	results    []Addr

	scopeIndex int
	defers     []deferEntry
	tupleFix   map[ir.Value][]Value

	variadicBase  ir.Value
	variadicSlots []variadicSlot

	generated bool
}

// Builder returns the instruction builder positioned in the body.
func (p *Procedure) Builder() *ir.Builder { return p.b }

// Decl returns the analysis facts of the procedure declaration, or nil.
func (p *Procedure) Decl() *types.DeclInfo {
	if p.Entity == nil || p.Entity.Proc == nil {
		return nil
	}
	return p.Entity.Proc.Decl
}

// LinkName resolves the native symbol of a procedure entity.
func LinkName(e *types.Entity) string {
	if pi := e.Proc; pi != nil {
		if pi.LinkName != "" {
			return pi.LinkName
		}
		if pi.IsForeign {
			return e.Name
		}
	}
	if e.Pkg != nil && e.Pkg.Name != "" {
		return e.Pkg.Name + "." + e.Name
	}
	return e.Name
}

// CreateProcedure returns the descriptor of e, creating its native function
// on first use. Concurrent callers for one link name converge on a single
// descriptor. Generic templates without a specialization yield nil.
func (m *Module) CreateProcedure(e *types.Entity, ignoreBody bool) *Procedure {
	sig := e.Signature()
	if sig == nil {
		fatalf("", "entity %s is not a procedure", e.Name)
	}
	if sig.Polymorphic && !sig.PolySpecialized {
		logger.LogProcedure(e.Name, "skipped generic template")
		return nil
	}

	name := LinkName(e)
	p, created := m.procs.GetOrInsert(name, func() *Procedure {
		if _, taken := m.values.Get(name); taken {
			fatalf(name, "link name already defined")
		}
		p := m.newProcedure(e, name, ignoreBody)
		m.register(p)
		if p.Body != nil {
			m.enqueue(p)
		}
		return p
	})
	if created {
		m.stats.ProceduresBuilt.Inc()
		logger.LogProcedure(name, "created")
	} else {
		m.stats.ProceduresReused.Inc()
		m.entities.LoadOrStore(e, p)
	}
	return p
}

func (m *Module) register(p *Procedure) {
	m.values.Insert(p.Name, p.Fn)
	m.entities.Store(p.Entity, p)
	m.procEntities.Store(p.Fn, p.Entity)
}

func (m *Module) newProcedure(e *types.Entity, name string, ignoreBody bool) *Procedure {
	sig := e.Signature()
	ft := m.ABI.Get(sig)
	fn := m.IR.AddFunction(name, ft.RawType())
	p := &Procedure{
		Module: m,
		Entity: e,
		Name:   name,
		Sig:    sig,
		ABI:    ft,
		Fn:     fn,
	}
	pi := e.Proc
	if pi == nil {
		pi = &types.ProcInfo{}
	}
	if !ignoreBody && !pi.IsForeign {
		p.Body = pi.Body
	}

	fn.CC = m.callConv(sig.CC)
	m.setFunctionAttrs(p, pi)
	m.setLinkage(p, pi, ignoreBody)
	m.setParamAttrs(p)
	if p.Body != nil {
		m.setSanitizers(p, pi)
		if pi.HasInstrumentation {
			if m.Target.InstrumentEnter != "" {
				fn.Attrs.Set("instrument-function-entry", m.Target.InstrumentEnter)
			}
			if m.Target.InstrumentExit != "" {
				fn.Attrs.Set("instrument-function-exit", m.Target.InstrumentExit)
			}
		}
	}
	return p
}

func (m *Module) callConv(cc types.CallingConvention) ir.CallConv {
	arch := m.Target.Arch
	switch cc {
	case types.CCStdCall:
		if arch == target.ArchI386 {
			return ir.CallConvX86StdCall
		}
	case types.CCFastCall:
		if arch == target.ArchI386 {
			return ir.CallConvX86FastCall
		}
	case types.CCWin64:
		if arch == target.ArchAMD64 {
			return ir.CallConvWin64
		}
	case types.CCSysV:
		if arch == target.ArchAMD64 {
			return ir.CallConvX8664SysV
		}
	}
	return ir.CallConvC
}

func (m *Module) setFunctionAttrs(p *Procedure, pi *types.ProcInfo) {
	a := p.Fn.Attrs
	if p.Sig.Diverging {
		a.Add("noreturn")
	}
	if p.Sig.CC == types.CCNaked {
		a.Add("naked")
	}
	if m.Target.DisableRedZone {
		a.Add("noredzone")
	}
	switch pi.Inlining {
	case types.InliningInline:
		a.Add("alwaysinline")
	case types.InliningNoInline:
		a.Add("noinline")
	}
	if m.Target.InternalNoInline {
		delete(a, "alwaysinline")
		a.Add("noinline")
	}
	switch pi.Optimization {
	case types.OptimizationNone:
		delete(a, "alwaysinline")
		a.Add("optnone")
		a.Add("noinline")
	case types.OptimizationFavorSize:
		a.Add("optsize")
	}
	if f := p.Sig.EnableTargetFeature; f != "" {
		var feats []string
		for _, s := range strings.Split(f, ",") {
			if s = strings.TrimPrefix(strings.TrimSpace(s), "+"); s != "" {
				feats = append(feats, "+"+s)
			}
		}
		a.Set("target-features", strings.Join(feats, ","))
	}
	if p.Entity.Has(types.FlagCold) {
		a.Add("cold")
	}
}

func (m *Module) setLinkage(p *Procedure, pi *types.ProcInfo, ignoreBody bool) {
	fn := p.Fn
	wasm := m.Target.Arch.IsWasm()
	switch {
	case pi.IsExport:
		fn.Linkage = ir.LinkageExternal
		if m.Target.OS == target.OSWindows {
			fn.DLLExport = true
		}
		if wasm {
			fn.Attrs.Set("wasm-export-name", p.Name)
		}
	case pi.IsForeign:
		fn.Linkage = ir.LinkageExternal
		if wasm {
			fn.Attrs.Set("wasm-import-name", p.Name)
			if pi.ForeignLibrary != "" {
				fn.Attrs.Set("wasm-import-module", pi.ForeignLibrary)
			}
		}
	case pi.Linkage != "":
		switch pi.Linkage {
		case "internal":
			fn.Linkage = ir.LinkageInternal
		case "strong":
			fn.Linkage = ir.LinkageExternal
		case "weak":
			fn.Linkage = ir.LinkageWeakAny
		case "link_once":
			fn.Linkage = ir.LinkageLinkOnceAny
		default:
			fatalf(p.Name, "unknown linkage %q", pi.Linkage)
		}
	case m.Target.SeparateModules || ignoreBody:
		fn.Linkage = ir.LinkageExternal
	case p.Entity.Pkg != nil && p.Entity.Pkg.Kind == types.PackageRuntime &&
		p.Entity.Has(types.FlagCustomLinkName) && strings.HasPrefix(p.Name, "__"):
		fn.Linkage = ir.LinkageExternal
	default:
		fn.Linkage = ir.LinkageInternal
	}
}

func (m *Module) setParamAttrs(p *Procedure) {
	ft, fn := p.ABI, p.Fn
	params := p.Sig.ParamVars()
	if ft.ReturnByPointer() {
		copyAttrs(fn.ParamAttr(0), ft.Ret.Attrs)
		fn.Params[0].Name = "agg.result"
	}
	for _, a := range ft.Args {
		if a.RawIndex < 0 {
			continue
		}
		e := params[a.ParamIndex]
		attrs := fn.ParamAttr(a.RawIndex)
		copyAttrs(attrs, a.Attrs)
		if e.Has(types.FlagNoAlias) {
			attrs.Add("noalias")
		}
		if e.Has(types.FlagNoCapture) {
			attrs.Add("nocapture")
		}
		if !e.IsBlank() {
			fn.Params[a.RawIndex].Name = e.Name
		}
	}
	for _, s := range ft.SplitReturns {
		copyAttrs(fn.ParamAttr(s.RawIndex), s.Attrs)
	}
	if ft.HasContext() {
		markContext(fn, ft.ContextIndex)
	}
}

func markContext(fn *ir.Function, idx int) {
	attrs := fn.ParamAttr(idx)
	attrs.Add("noalias")
	attrs.Add("nonnull")
	attrs.Add("nocapture")
	fn.Params[idx].Name = "__.context_ptr"
}

func copyAttrs(dst, src ir.Attrs) {
	for k, v := range src {
		dst[k] = v
	}
}

func (m *Module) setSanitizers(p *Procedure, pi *types.ProcInfo) {
	if pkg := p.Entity.Pkg; pkg != nil && pkg.Kind != types.PackageNormal && pkg.Kind != types.PackageInit {
		return
	}
	s := m.Target.Sanitizers
	if s&target.SanitizeAddress != 0 && !pi.NoSanitizeAddress {
		p.Fn.Attrs.Add("sanitize_address")
	}
	if s&target.SanitizeMemory != 0 && !pi.NoSanitizeMemory {
		p.Fn.Attrs.Add("sanitize_memory")
	}
	if s&target.SanitizeThread != 0 {
		p.Fn.Attrs.Add("sanitize_thread")
	}
}

// CreateDummyProcedure declares a bodiless native function under linkName
// that is not bound to any entity.
func (m *Module) CreateDummyProcedure(linkName string, sig *types.Proc) *Procedure {
	var p *Procedure
	_, created := m.values.GetOrInsert(linkName, func() ir.Value {
		ft := m.ABI.Get(sig)
		fn := m.IR.AddFunction(linkName, ft.RawType())
		fn.CC = m.callConv(sig.CC)
		if ft.ReturnByPointer() {
			copyAttrs(fn.ParamAttr(0), ft.Ret.Attrs)
		}
		if ft.HasContext() {
			markContext(fn, ft.ContextIndex)
		}
		p = &Procedure{Module: m, Name: linkName, Sig: sig, ABI: ft, Fn: fn}
		return fn
	})
	if !created {
		fatalf(linkName, "dummy procedure link name already used")
	}
	logger.LogProcedure(linkName, "dummy created")
	return p
}

// BuildNestedProcedure generates a procedure declared inside p. It runs
// synchronously so p can reference the result immediately. Entities outside
// the module's minimum dependency set are skipped.
func (p *Procedure) BuildNestedProcedure(e *types.Entity) *Procedure {
	m := p.Module
	if m.MinDepSet != nil && !m.MinDepSet[e] {
		return nil
	}
	if sig := e.Signature(); sig != nil && sig.Polymorphic && !sig.PolySpecialized {
		return nil
	}
	name := fmt.Sprintf("%s.%s-%d", p.Name, e.Name, len(p.Children))
	if e.Proc != nil && e.Proc.LinkName != "" {
		name = e.Proc.LinkName
	}
	child, created := m.procs.GetOrInsert(name, func() *Procedure {
		c := m.newProcedure(e, name, false)
		c.Parent = p
		m.register(c)
		return c
	})
	if !created {
		p.fatalf("nested procedure %s built twice", name)
	}
	m.stats.ProceduresBuilt.Inc()
	p.Children = append(p.Children, child)
	child.Generate()
	return child
}

// Generate lowers the body of p. It is a no-op for declarations and for
// procedures already generated.
func (p *Procedure) Generate() {
	if p.Body == nil || p.generated {
		return
	}
	p.generated = true
	logger.LogProcedure(p.Name, "generate")
	p.BeginBody()
	p.Module.Stmts.BuildStmt(p, p.Body)
	p.EndBody()
}
