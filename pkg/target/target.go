// Package target describes the machine code is generated for: architecture,
// operating system, enabled ISA features and build policy flags.
package target

import (
	"fmt"
	"sort"
	"strings"

	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// Arch is a target architecture.
type Arch string

const (
	ArchAMD64     Arch = "amd64"
	ArchI386      Arch = "i386"
	ArchARM64     Arch = "arm64"
	ArchARM32     Arch = "arm32"
	ArchRISCV64   Arch = "riscv64"
	ArchWasm32    Arch = "wasm32"
	ArchWasm64p32 Arch = "wasm64p32"
)

// Arches lists every supported architecture.
var Arches = []Arch{ArchAMD64, ArchI386, ArchARM64, ArchARM32, ArchRISCV64, ArchWasm32, ArchWasm64p32}

// WordSize returns the pointer size in bytes.
func (a Arch) WordSize() int64 {
	switch a {
	case ArchAMD64, ArchARM64, ArchRISCV64:
		return 8
	}
	return 4
}

// IsX86 reports whether a is an x86 variant.
func (a Arch) IsX86() bool { return a == ArchAMD64 || a == ArchI386 }

// IsWasm reports whether a is a WebAssembly variant.
func (a Arch) IsWasm() bool { return a == ArchWasm32 || a == ArchWasm64p32 }

// OS is a target operating system.
type OS string

const (
	OSLinux        OS = "linux"
	OSDarwin       OS = "darwin"
	OSWindows      OS = "windows"
	OSFreeBSD      OS = "freebsd"
	OSOpenBSD      OS = "openbsd"
	OSNetBSD       OS = "netbsd"
	OSHaiku        OS = "haiku"
	OSFreestanding OS = "freestanding"
	OSWasi         OS = "wasi"
	OSJS           OS = "js"
)

// IsBSD reports whether the kernel reports syscall errors via carry.
func (o OS) IsBSD() bool {
	return o == OSFreeBSD || o == OSOpenBSD || o == OSNetBSD || o == OSDarwin
}

// Sanitizer is a bit set of enabled sanitizers.
type Sanitizer uint8

const (
	SanitizeAddress Sanitizer = 1 << iota
	SanitizeMemory
	SanitizeThread
)

// Target is the immutable description shared by all workers of a module.
type Target struct {
	Arch     Arch
	OS       OS
	Features map[string]bool

	Sanitizers       Sanitizer
	DisableRedZone   bool
	InternalNoInline bool
	// InternalByValue forces callee copies for every indirect parameter.
	InternalByValue bool
	SeparateModules bool

	// MaxVariadicBuffer caps the per-procedure variadic backing buffer;
	// zero means unlimited.
	MaxVariadicBuffer int64

	// InstrumentEnter and InstrumentExit name the hooks attached to
	// procedures that request instrumentation.
	InstrumentEnter string
	InstrumentExit  string
}

// New returns a target with the baseline feature set of the architecture.
func New(arch Arch, os OS) *Target {
	t := &Target{Arch: arch, OS: os, Features: map[string]bool{}}
	switch arch {
	case ArchAMD64:
		t.EnableFeatures("sse", "sse2")
	case ArchARM64:
		t.EnableFeatures("neon")
	}
	return t
}

// EnableFeatures turns on ISA features.
func (t *Target) EnableFeatures(features ...string) {
	for _, f := range features {
		f = strings.TrimPrefix(strings.TrimSpace(f), "+")
		if f != "" {
			t.Features[f] = true
		}
	}
}

// HasFeature reports whether an ISA feature is enabled.
func (t *Target) HasFeature(f string) bool { return t.Features[f] }

// HasFeatures reports whether every listed feature is enabled.
func (t *Target) HasFeatures(fs ...string) bool {
	for _, f := range fs {
		if !t.Features[f] {
			return false
		}
	}
	return true
}

// FeatureList returns enabled features sorted.
func (t *Target) FeatureList() []string {
	out := make([]string, 0, len(t.Features))
	for f, on := range t.Features {
		if on {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// Sizes returns the type layout of the target.
func (t *Target) Sizes() types.Sizes { return types.Sizes{WordSize: t.Arch.WordSize()} }

// DataLayout returns the IR layout of the target.
func (t *Target) DataLayout() ir.DataLayout { return ir.DataLayout{PtrSize: int(t.Arch.WordSize())} }

func (t *Target) String() string { return fmt.Sprintf("%s-%s", t.Arch, t.OS) }
