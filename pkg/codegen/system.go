package codegen

import (
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/target"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

func (p *Procedure) lowerSystem(bc BuiltinCall) Value {
	m := p.Module
	arch := m.Target.Arch
	b := p.b
	switch bc.ID {
	case Syscall, SyscallBSD:
		return p.lowerSyscall(bc)
	case CPURelax:
		tmpl := ""
		switch {
		case arch.IsX86():
			tmpl = "pause"
		case arch == target.ArchARM64:
			tmpl = "isb"
		}
		b.Asm(&ir.InlineAsm{Template: tmpl, SideEffects: true, Sig: &ir.FuncType{Ret: ir.Void}})
		return Value{}
	case Trap:
		b.Intrinsic("llvm.trap", ir.Void, nil)
		b.Unreachable()
		return Value{}
	case DebugTrap:
		b.Intrinsic("llvm.debugtrap", ir.Void, nil)
		return Value{}
	case Unreachable:
		b.Unreachable()
		return Value{}
	case ReadCycleCounter:
		if arch == target.ArchARM64 {
			return p.result(bc, p.readSystemRegister("cntvct_el0"), types.Int64)
		}
		return p.result(bc, b.Intrinsic("llvm.readcyclecounter", ir.I64, nil), types.Int64)
	case ReadCycleCounterFrequency:
		if arch != target.ArchARM64 {
			p.fatalf("%s unsupported on %s", bc.ID, m.Target)
		}
		return p.result(bc, p.readSystemRegister("cntfrq_el0"), types.Int64)
	case X86CPUID, X86XGetBV:
		if !arch.IsX86() {
			p.fatalf("%s unsupported on %s", bc.ID, m.Target)
		}
		return p.x86Query(bc)
	case WasmMemoryGrow, WasmMemorySize:
		if !arch.IsWasm() {
			p.fatalf("%s unsupported on %s", bc.ID, m.Target)
		}
		args := []ir.Value{p.Conv(p.arg(bc, 0), types.Uintptr).IR}
		name := "llvm.wasm.memory.size"
		if bc.ID == WasmMemoryGrow {
			name = "llvm.wasm.memory.grow"
			args = append(args, p.Conv(p.arg(bc, 1), types.Uintptr).IR)
		}
		v := Value{IR: b.Intrinsic(name, ir.I32, []ir.Type{ir.I32}, args...), Type: types.Int32}
		if bc.Result != nil {
			v = p.Conv(v, bc.Result)
		}
		return v
	}
	p.fatalf("unhandled builtin %s", bc.ID)
	return Value{}
}

func (p *Procedure) readSystemRegister(name string) ir.Value {
	return p.b.Asm(&ir.InlineAsm{
		Template:    "mrs $0, " + name,
		Constraints: "=r",
		Sig:         &ir.FuncType{Ret: ir.I64},
	})
}

// x86Query emits cpuid, yielding (eax, ebx, ecx, edx), or xgetbv, yielding
// (eax, edx).
func (p *Procedure) x86Query(bc BuiltinCall) Value {
	u32 := p.Module.IRType(types.Uint32)
	var asm *ir.InlineAsm
	var args []ir.Value
	var fields []types.Type
	if bc.ID == X86CPUID {
		fields = []types.Type{types.Uint32, types.Uint32, types.Uint32, types.Uint32}
		args = []ir.Value{p.Conv(p.arg(bc, 0), types.Uint32).IR, p.Conv(p.arg(bc, 1), types.Uint32).IR}
		asm = &ir.InlineAsm{
			Template:    "cpuid",
			Constraints: "={ax},={bx},={cx},={dx},{ax},{cx}",
			SideEffects: true,
			Sig:         &ir.FuncType{Params: []ir.Type{u32, u32}, Ret: ir.Struct(u32, u32, u32, u32)},
		}
	} else {
		fields = []types.Type{types.Uint32, types.Uint32}
		args = []ir.Value{p.Conv(p.arg(bc, 0), types.Uint32).IR}
		asm = &ir.InlineAsm{
			Template:    "xgetbv",
			Constraints: "={ax},={dx},{cx}",
			SideEffects: true,
			Sig:         &ir.FuncType{Params: []ir.Type{u32}, Ret: ir.Struct(u32, u32)},
		}
	}
	call := p.b.Asm(asm, args...)
	tup, ok := bc.Result.(*types.Tuple)
	if !ok || tup.Len() != len(fields) {
		tup = types.TupleOf(fields...)
	}
	vals := make([]Value, len(fields))
	for i, t := range fields {
		vals[i] = Value{IR: p.b.ExtractValue(call, i), Type: t}
	}
	return p.makeTuple(tup, vals)
}
