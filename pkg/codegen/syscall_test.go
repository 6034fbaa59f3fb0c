package codegen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/GriffinCanCode/callgen/pkg/interp"
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/target"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

func TestSyscallTablesValidate(t *testing.T) {
	oses := []target.OS{target.OSLinux, target.OSDarwin, target.OSFreeBSD, target.OSOpenBSD, target.OSNetBSD}
	for _, arch := range target.Arches {
		for _, os := range oses {
			tgt := target.New(arch, os)
			if sc, ok := LinuxSyscallABI(tgt); ok {
				assert.NoError(t, sc.Validate(arch), "linux table for %s", tgt)
			}
			if sc, ok := BSDSyscallABI(tgt); ok {
				assert.NoError(t, sc.Validate(arch), "bsd table for %s", tgt)
				assert.Len(t, sc.Outputs, 2)
			}
		}
	}
}

func TestSyscallValidateCollectsEveryError(t *testing.T) {
	sc := SyscallABI{Outputs: []string{"rax"}, Registers: []string{"rax", "x0"}, Clobbers: []string{"memory", "xmm99"}}
	err := sc.Validate(target.ArchAMD64)
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), `unknown register "x0"`)
	assert.Contains(t, errs[1].Error(), `invalid clobber "xmm99"`)
}

func TestSyscallConstraints(t *testing.T) {
	tests := []struct {
		arch target.Arch
		os   target.OS
		bsd  bool
		n    int
		want string
	}{
		{target.ArchAMD64, target.OSLinux, false, 2, "={rax},{rax},{rdi},~{rcx},~{r11},~{memory}"},
		{target.ArchI386, target.OSLinux, false, 1, "={eax},{eax},~{memory}"},
		{target.ArchARM64, target.OSLinux, false, 2, "={x0},{x8},{x0},~{memory}"},
		{target.ArchARM64, target.OSDarwin, false, 1, "={x0},{x16},~{memory}"},
		{target.ArchARM32, target.OSLinux, false, 2, "={r0},{r7},{r0},~{memory}"},
		{target.ArchRISCV64, target.OSLinux, false, 4, "={a0},{a7},{a0},{a1},{a2},~{memory}"},
		{target.ArchAMD64, target.OSFreeBSD, true, 3, "={rax},={cl},{rax},{rdi},{rsi},~{r8},~{r9},~{r10},~{rdx},~{r11},~{cc},~{memory}"},
		{target.ArchAMD64, target.OSOpenBSD, true, 1, "={rax},={cl},{rax},~{rdx},~{r11},~{cc},~{memory}"},
		{target.ArchARM64, target.OSOpenBSD, true, 2, "={x0},={x8},{x8},{x0},~{x1},~{cc},~{memory}"},
		{target.ArchARM64, target.OSNetBSD, true, 1, "={x0},={x17},{x17},~{cc},~{memory}"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s-%s/%d", tt.arch, tt.os, tt.n), func(t *testing.T) {
			lookup := LinuxSyscallABI
			if tt.bsd {
				lookup = BSDSyscallABI
			}
			sc, ok := lookup(target.New(tt.arch, tt.os))
			require.True(t, ok)
			assert.Equal(t, tt.want, sc.Constraints(tt.n))
		})
	}
}

func TestSyscallUnsupportedTargets(t *testing.T) {
	_, ok := LinuxSyscallABI(target.New(target.ArchWasm32, target.OSWasi))
	assert.False(t, ok)
	_, ok = BSDSyscallABI(target.New(target.ArchRISCV64, target.OSFreeBSD))
	assert.False(t, ok)

	requireFatal(t, "unsupported on wasm32-wasi", func() {
		p := hostProcedure(testModule(target.ArchWasm32, target.OSWasi))
		p.LowerBuiltin(BuiltinCall{ID: Syscall, Args: []Value{p.Module.ConstInt(types.Uintptr, 1)}})
	})
}

func TestSyscallOperandCount(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	one := m.ConstInt(types.Uintptr, 1)
	requireFatal(t, "takes 1 to 7 operands on amd64-linux, got 0", func() {
		hostProcedure(m).LowerBuiltin(BuiltinCall{ID: Syscall})
	})
	requireFatal(t, "got 8", func() {
		args := make([]Value, 8)
		for i := range args {
			args[i] = one
		}
		hostProcedure(testModule(target.ArchAMD64, target.OSLinux)).LowerBuiltin(BuiltinCall{ID: Syscall, Args: args})
	})
}

// asmMachine runs mod with inline assembly answered by fn.
func asmMachine(t *testing.T, m *Module, name string, fn interp.AsmHandler, args ...interp.Val) interp.Val {
	t.Helper()
	mach := interp.New(m.IR)
	mach.Asm = fn
	got, err := mach.Call(name, args...)
	require.NoError(t, err, "module:\n%s", m.IR)
	return got
}

func TestLinuxSyscallLowering(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	nr := types.NewParam("nr", types.Uintptr)
	a := types.NewParam("a", types.Int32)
	b := types.NewParam("b", types.Uintptr)
	e := declare("sys", types.CCCDecl, vars(nr, a, b), result(types.Uintptr), func(p *Procedure) {
		p.EmitReturn(p.LowerBuiltin(BuiltinCall{ID: Syscall, Args: []Value{load(p, nr), load(p, a), load(p, b)}}))
	})
	build(t, m, e)

	var seen *ir.InlineAsm
	got := asmMachine(t, m, "sys", func(_ *interp.Machine, asm *ir.InlineAsm, args []interp.Val) interp.Val {
		seen = asm
		require.Len(t, args, 3)
		return args[0].(uint64)*100 + args[1].(uint64) + args[2].(uint64)
	}, uint64(60), uint64(3), uint64(4))
	assert.Equal(t, uint64(6007), got)

	require.NotNil(t, seen)
	assert.Equal(t, "syscall", seen.Template)
	assert.Equal(t, "={rax},{rax},{rdi},{rsi},~{rcx},~{r11},~{memory}", seen.Constraints)
	assert.True(t, seen.SideEffects)
	for _, pt := range seen.Sig.Params {
		assert.Equal(t, ir.I64, pt)
	}
}

func TestBSDSyscallLoweringReturnsCarry(t *testing.T) {
	for _, ok := range []bool{true, false} {
		t.Run(fmt.Sprint(ok), func(t *testing.T) {
			m := testModule(target.ArchAMD64, target.OSFreeBSD)
			nr := types.NewParam("nr", types.Uintptr)
			e := declare("sys", types.CCCDecl, vars(nr), result(types.Uintptr), func(p *Procedure) {
				v := p.LowerBuiltin(BuiltinCall{ID: SyscallBSD, Args: []Value{load(p, nr)}, Result: types.TupleOf(types.Uintptr, types.Bool)})
				vs := p.Values(v)
				flag := p.Conv(vs[1], types.Uintptr)
				w := m.IRType(types.Uintptr)
				scaled := p.b.BinOp(ir.OpMul, flag.IR, ir.ScalarConst(w, 1000))
				p.EmitReturn(Value{IR: p.b.BinOp(ir.OpAdd, vs[0].IR, scaled), Type: types.Uintptr})
			})
			build(t, m, e)

			got := asmMachine(t, m, "sys", func(_ *interp.Machine, asm *ir.InlineAsm, args []interp.Val) interp.Val {
				var carry uint64
				if ok {
					carry = 1
				}
				return []interp.Val{args[0], carry}
			}, uint64(7))
			want := uint64(7)
			if ok {
				want = 1007
			}
			assert.Equal(t, want, got)
		})
	}
}

func asmTemplates(fn *ir.Function) []string {
	var out []string
	for _, blk := range fn.Blocks {
		for _, in := range blk.Insts {
			if c, ok := in.(*ir.AsmCall); ok {
				out = append(out, c.Asm.Template)
			}
		}
	}
	return out
}

func TestCPURelaxTemplates(t *testing.T) {
	tests := []struct {
		arch target.Arch
		want string
	}{
		{target.ArchAMD64, "pause"},
		{target.ArchI386, "pause"},
		{target.ArchARM64, "isb"},
		{target.ArchRISCV64, ""},
		{target.ArchWasm32, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.arch), func(t *testing.T) {
			p := hostProcedure(testModule(tt.arch, target.OSLinux))
			p.LowerBuiltin(BuiltinCall{ID: CPURelax})
			assert.Equal(t, []string{tt.want}, asmTemplates(p.Fn))
		})
	}
}

func TestTrapTerminatesBlock(t *testing.T) {
	p := hostProcedure(testModule(target.ArchAMD64, target.OSLinux))
	p.LowerBuiltin(BuiltinCall{ID: Trap})
	blk := p.b.Block()
	require.NotNil(t, blk.Term)
	_, ok := blk.Term.(*ir.Unreachable)
	assert.True(t, ok)
	c, ok := blk.Insts[len(blk.Insts)-1].(*ir.IntrinsicCall)
	require.True(t, ok)
	assert.Equal(t, "llvm.trap", c.Name)
}

func TestReadCycleCounter(t *testing.T) {
	counter := func(id BuiltinID) func(p *Procedure) {
		return func(p *Procedure) { p.EmitReturn(p.LowerBuiltin(BuiltinCall{ID: id})) }
	}

	t.Run("amd64 uses the intrinsic", func(t *testing.T) {
		m := testModule(target.ArchAMD64, target.OSLinux)
		build(t, m, declare("cc", types.CCCDecl, nil, result(types.Int64), counter(ReadCycleCounter)))
		mach := interp.New(m.IR)
		mach.CycleCounter = 41
		got, err := mach.Call("cc")
		require.NoError(t, err)
		assert.Equal(t, uint64(42), got)
	})

	t.Run("arm64 reads system registers", func(t *testing.T) {
		m := testModule(target.ArchARM64, target.OSLinux)
		build(t, m,
			declare("cc", types.CCCDecl, nil, result(types.Int64), counter(ReadCycleCounter)),
			declare("freq", types.CCCDecl, nil, result(types.Int64), counter(ReadCycleCounterFrequency)))
		regs := func(_ *interp.Machine, asm *ir.InlineAsm, _ []interp.Val) interp.Val {
			switch {
			case strings.HasSuffix(asm.Template, "cntvct_el0"):
				return uint64(1234)
			case strings.HasSuffix(asm.Template, "cntfrq_el0"):
				return uint64(24_000_000)
			}
			return uint64(0)
		}
		assert.Equal(t, uint64(1234), asmMachine(t, m, "cc", regs))
		assert.Equal(t, uint64(24_000_000), asmMachine(t, m, "freq", regs))
	})
}

func TestX86CPUID(t *testing.T) {
	m := testModule(target.ArchAMD64, target.OSLinux)
	leaf := types.NewParam("leaf", types.Uint32)
	e := declare("id", types.CCCDecl, vars(leaf), result(types.Uint32), func(p *Procedure) {
		v := p.LowerBuiltin(BuiltinCall{ID: X86CPUID, Args: []Value{load(p, leaf), m.ConstInt(types.Uint32, 0)}})
		var acc ir.Value = ir.ConstIntOf(ir.I32, 0)
		for _, r := range p.Values(v) {
			acc = p.b.BinOp(ir.OpMul, acc, ir.ConstIntOf(ir.I32, 10))
			acc = p.b.BinOp(ir.OpAdd, acc, r.IR)
		}
		p.EmitReturn(Value{IR: acc, Type: types.Uint32})
	})
	build(t, m, e)

	got := asmMachine(t, m, "id", func(_ *interp.Machine, asm *ir.InlineAsm, args []interp.Val) interp.Val {
		if asm.Template != "cpuid" {
			return nil
		}
		l := args[0].(uint64)
		return []interp.Val{l, l + 1, l + 2, l + 3}
	}, uint64(1))
	assert.Equal(t, uint64(1234), got)
}

func TestArchSpecificBuiltinsAreFatalElsewhere(t *testing.T) {
	tests := []struct {
		name string
		arch target.Arch
		bc   func(m *Module) BuiltinCall
	}{
		{"frequency", target.ArchAMD64, func(*Module) BuiltinCall { return BuiltinCall{ID: ReadCycleCounterFrequency} }},
		{"cpuid", target.ArchARM64, func(m *Module) BuiltinCall {
			zero := m.ConstInt(types.Uint32, 0)
			return BuiltinCall{ID: X86CPUID, Args: []Value{zero, zero}}
		}},
		{"xgetbv", target.ArchRISCV64, func(m *Module) BuiltinCall {
			return BuiltinCall{ID: X86XGetBV, Args: []Value{m.ConstInt(types.Uint32, 0)}}
		}},
		{"wasm memory", target.ArchAMD64, func(m *Module) BuiltinCall {
			return BuiltinCall{ID: WasmMemorySize, Args: []Value{m.ConstInt(types.Uintptr, 0)}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testModule(tt.arch, target.OSLinux)
			requireFatal(t, "unsupported on "+string(tt.arch), func() {
				hostProcedure(m).LowerBuiltin(tt.bc(m))
			})
		})
	}
}

func TestWasmMemoryIntrinsics(t *testing.T) {
	p := hostProcedure(testModule(target.ArchWasm32, target.OSWasi))
	m := p.Module
	size := p.LowerBuiltin(BuiltinCall{ID: WasmMemorySize, Args: []Value{m.ConstInt(types.Uintptr, 0)}, Result: types.Int})
	assert.Equal(t, types.Int, size.Type)
	grow := p.LowerBuiltin(BuiltinCall{ID: WasmMemoryGrow, Args: []Value{m.ConstInt(types.Uintptr, 0), m.ConstInt(types.Uintptr, 2)}})
	assert.Equal(t, types.Int32, grow.Type)

	var names []string
	for _, in := range p.b.Block().Insts {
		if c, ok := in.(*ir.IntrinsicCall); ok {
			names = append(names, c.Name)
			assert.Equal(t, []ir.Type{ir.I32}, c.Overloads)
		}
	}
	assert.Equal(t, []string{"llvm.wasm.memory.size", "llvm.wasm.memory.grow"}, names)
}
