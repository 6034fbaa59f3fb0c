package target

import "fmt"

var registerSets = map[Arch]map[string]bool{}

func init() {
	x86 := []string{
		"eax", "ebx", "ecx", "edx", "esi", "edi", "ebp", "esp",
		"ax", "bx", "cx", "dx", "al", "bl", "cl", "dl",
	}
	amd64 := append([]string{
		"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
	}, x86...)
	for i := 8; i <= 15; i++ {
		amd64 = append(amd64, fmt.Sprintf("r%d", i))
	}
	registerSets[ArchAMD64] = set(amd64)
	registerSets[ArchI386] = set(x86)

	var arm64 []string
	for i := 0; i <= 30; i++ {
		arm64 = append(arm64, fmt.Sprintf("x%d", i), fmt.Sprintf("w%d", i))
	}
	registerSets[ArchARM64] = set(append(arm64, "sp", "xzr", "wzr", "lr", "fp"))

	var arm32 []string
	for i := 0; i <= 15; i++ {
		arm32 = append(arm32, fmt.Sprintf("r%d", i))
	}
	registerSets[ArchARM32] = set(append(arm32, "sp", "lr", "pc"))

	riscv := []string{"zero", "ra", "sp", "gp", "tp"}
	for i := 0; i <= 7; i++ {
		riscv = append(riscv, fmt.Sprintf("a%d", i))
	}
	for i := 0; i <= 6; i++ {
		riscv = append(riscv, fmt.Sprintf("t%d", i))
	}
	for i := 0; i <= 11; i++ {
		riscv = append(riscv, fmt.Sprintf("s%d", i))
	}
	registerSets[ArchRISCV64] = set(riscv)
}

func set(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// IsRegister reports whether name is a general purpose register of a.
func (a Arch) IsRegister(name string) bool {
	return registerSets[a][name]
}

// IsClobber reports whether name may appear in a clobber list for a:
// a register or one of the pseudo clobbers.
func (a Arch) IsClobber(name string) bool {
	return name == "memory" || name == "cc" || a.IsRegister(name)
}
