package codegen

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/target"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// SyscallABI is the inline machine code and register assignment of a raw
// system call on one target.
type SyscallABI struct {
	Template string
	// Outputs are the result registers: the value, then the error flag for
	// carry-reporting kernels.
	Outputs []string
	// Registers take the syscall number followed by its arguments.
	Registers []string
	Clobbers  []string
}

// Constraints renders the constraint string for n operands.
func (s SyscallABI) Constraints(n int) string {
	parts := make([]string, 0, len(s.Outputs)+n+len(s.Clobbers))
	for _, r := range s.Outputs {
		parts = append(parts, "={"+r+"}")
	}
	for _, r := range s.Registers[:n] {
		parts = append(parts, "{"+r+"}")
	}
	for _, c := range s.Clobbers {
		parts = append(parts, "~{"+c+"}")
	}
	return strings.Join(parts, ",")
}

// Validate checks every register and clobber name against arch.
func (s SyscallABI) Validate(arch target.Arch) error {
	var err error
	for _, r := range append(append([]string{}, s.Outputs...), s.Registers...) {
		if !arch.IsRegister(r) {
			err = multierr.Append(err, fmt.Errorf("%s: unknown register %q", arch, r))
		}
	}
	for _, c := range s.Clobbers {
		if !arch.IsClobber(c) {
			err = multierr.Append(err, fmt.Errorf("%s: invalid clobber %q", arch, c))
		}
	}
	return err
}

// LinuxSyscallABI returns the sign-reporting syscall sequence for t.
func LinuxSyscallABI(t *target.Target) (SyscallABI, bool) {
	switch t.Arch {
	case target.ArchRISCV64:
		return SyscallABI{
			Template:  "ecall",
			Outputs:   []string{"a0"},
			Registers: []string{"a7", "a0", "a1", "a2", "a3", "a4", "a5", "a6"},
			Clobbers:  []string{"memory"},
		}, true
	case target.ArchAMD64:
		return SyscallABI{
			Template:  "syscall",
			Outputs:   []string{"rax"},
			Registers: []string{"rax", "rdi", "rsi", "rdx", "r10", "r8", "r9"},
			Clobbers:  []string{"rcx", "r11", "memory"},
		}, true
	case target.ArchI386:
		return SyscallABI{
			Template:  "int $$0x80",
			Outputs:   []string{"eax"},
			Registers: []string{"eax", "ebx", "ecx", "edx", "esi", "edi"},
			Clobbers:  []string{"memory"},
		}, true
	case target.ArchARM64:
		if t.OS == target.OSDarwin {
			return SyscallABI{
				Template:  "svc #0x80",
				Outputs:   []string{"x0"},
				Registers: []string{"x16", "x0", "x1", "x2", "x3", "x4", "x5"},
				Clobbers:  []string{"memory"},
			}, true
		}
		return SyscallABI{
			Template:  "svc #0",
			Outputs:   []string{"x0"},
			Registers: []string{"x8", "x0", "x1", "x2", "x3", "x4", "x5"},
			Clobbers:  []string{"memory"},
		}, true
	case target.ArchARM32:
		return SyscallABI{
			Template:  "svc #0",
			Outputs:   []string{"r0"},
			Registers: []string{"r7", "r0", "r1", "r2", "r3", "r4", "r5", "r6"},
			Clobbers:  []string{"memory"},
		}, true
	}
	return SyscallABI{}, false
}

// BSDSyscallABI returns the carry-reporting syscall sequence for t. The
// second output is set when the call succeeded.
func BSDSyscallABI(t *target.Target) (SyscallABI, bool) {
	switch t.Arch {
	case target.ArchAMD64:
		var clobbers []string
		if t.OS == target.OSFreeBSD {
			clobbers = append(clobbers, "r8", "r9", "r10")
		}
		return SyscallABI{
			Template:  "syscall; setnb %cl",
			Outputs:   []string{"rax", "cl"},
			Registers: []string{"rax", "rdi", "rsi", "rdx", "r10", "r8", "r9"},
			Clobbers:  append(clobbers, "rdx", "r11", "cc", "memory"),
		}, true
	case target.ArchARM64:
		if t.OS == target.OSNetBSD {
			return SyscallABI{
				Template:  "svc #0; cset x17, cc",
				Outputs:   []string{"x0", "x17"},
				Registers: []string{"x17", "x0", "x1", "x2", "x3", "x4", "x5"},
				Clobbers:  []string{"cc", "memory"},
			}, true
		}
		return SyscallABI{
			Template:  "svc #0; cset x8, cc",
			Outputs:   []string{"x0", "x8"},
			Registers: []string{"x8", "x0", "x1", "x2", "x3", "x4", "x5"},
			Clobbers:  []string{"x1", "cc", "memory"},
		}, true
	}
	return SyscallABI{}, false
}

// lowerSyscall emits a raw system call. Operands are the syscall number
// and its arguments, each converted to uintptr.
func (p *Procedure) lowerSyscall(bc BuiltinCall) Value {
	m := p.Module
	bsd := bc.ID == SyscallBSD
	lookup := LinuxSyscallABI
	if bsd {
		lookup = BSDSyscallABI
	}
	sc, ok := lookup(m.Target)
	if !ok {
		p.fatalf("%s unsupported on %s", bc.ID, m.Target)
	}
	if err := sc.Validate(m.Target.Arch); err != nil {
		p.fatalf("%s: %v", bc.ID, err)
	}
	n := len(bc.Args)
	if n == 0 || n > len(sc.Registers) {
		p.fatalf("%s takes 1 to %d operands on %s, got %d", bc.ID, len(sc.Registers), m.Target, n)
	}

	w := m.IRType(types.Uintptr)
	args := make([]ir.Value, n)
	params := make([]ir.Type, n)
	for i, a := range bc.Args {
		args[i] = p.Conv(a, types.Uintptr).IR
		params[i] = w
	}
	var ret ir.Type = w
	if bsd {
		ret = ir.Struct(w, m.IRType(types.Bool))
	}
	asm := &ir.InlineAsm{
		Template:    sc.Template,
		Constraints: sc.Constraints(n),
		SideEffects: true,
		Sig:         &ir.FuncType{Params: params, Ret: ret},
	}
	call := p.b.Asm(asm, args...)
	if !bsd {
		return Value{IR: call, Type: types.Uintptr}
	}
	tup, ok := bc.Result.(*types.Tuple)
	if !ok || tup.Len() != 2 {
		tup = types.TupleOf(types.Uintptr, types.Bool)
	}
	val := Value{IR: p.b.ExtractValue(call, 0), Type: types.Uintptr}
	flag := Value{IR: p.b.ExtractValue(call, 1), Type: types.Bool}
	return p.makeTuple(tup, []Value{val, flag})
}
