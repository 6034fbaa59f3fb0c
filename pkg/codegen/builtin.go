package codegen

import (
	"fmt"

	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// BuiltinID identifies a builtin procedure. IDs are grouped into families
// delimited by unexported markers.
type BuiltinID int

const (
	BuiltinInvalid BuiltinID = iota

	simdBegin
	SimdAdd
	SimdSub
	SimdMul
	SimdDiv
	SimdRem
	SimdShl
	SimdShr
	SimdShlMasked
	SimdShrMasked
	SimdAddSat
	SimdSubSat
	SimdBitAnd
	SimdBitOr
	SimdBitXor
	SimdBitAndNot
	SimdNeg
	SimdAbs
	SimdMin
	SimdMax
	SimdClamp
	SimdLanesEq
	SimdLanesNe
	SimdLanesLt
	SimdLanesLe
	SimdLanesGt
	SimdLanesGe
	SimdExtract
	SimdReplace
	SimdReduceAddBisect
	SimdReduceMulBisect
	SimdReduceAddOrdered
	SimdReduceMulOrdered
	SimdReduceAddPairs
	SimdReduceMulPairs
	SimdReduceMin
	SimdReduceMax
	SimdReduceAnd
	SimdReduceOr
	SimdReduceXor
	SimdReduceAny
	SimdReduceAll
	SimdShuffle
	SimdSelect
	SimdRuntimeSwizzle
	SimdCeil
	SimdFloor
	SimdTrunc
	SimdNearest
	SimdToBits
	SimdLanesReverse
	SimdLanesRotateLeft
	SimdLanesRotateRight
	SimdIndices
	SimdExtractLsbs
	SimdExtractMsbs
	SimdGather
	SimdScatter
	SimdMaskedLoad
	SimdMaskedStore
	SimdMaskedExpandLoad
	SimdMaskedCompressStore
	simdEnd

	arithBegin
	OverflowAdd
	OverflowSub
	OverflowMul
	SaturatingAdd
	SaturatingSub
	FixedPointMul
	FixedPointDiv
	FixedPointMulSat
	FixedPointDivSat
	CountOnes
	CountZeros
	CountTrailingZeros
	CountLeadingZeros
	ReverseBits
	ByteSwap
	Sqrt
	FusedMulAdd
	Expect
	arithEnd

	memoryBegin
	MemCopy
	MemCopyNonOverlapping
	MemZero
	MemZeroVolatile
	PtrOffset
	PtrSub
	VolatileLoad
	VolatileStore
	NonTemporalLoad
	NonTemporalStore
	UnalignedLoad
	UnalignedStore
	PrefetchReadData
	PrefetchWriteData
	PrefetchReadInstruction
	PrefetchWriteInstruction
	memoryEnd

	atomicBegin
	AtomicLoad
	AtomicStore
	AtomicAdd
	AtomicSub
	AtomicAnd
	AtomicNand
	AtomicOr
	AtomicXor
	AtomicExchange
	AtomicCompareExchangeStrong
	AtomicCompareExchangeWeak
	AtomicThreadFence
	AtomicSignalFence
	atomicEnd

	systemBegin
	Syscall
	SyscallBSD
	CPURelax
	Trap
	DebugTrap
	Unreachable
	ReadCycleCounter
	ReadCycleCounterFrequency
	X86CPUID
	X86XGetBV
	WasmMemoryGrow
	WasmMemorySize
	systemEnd
)

var builtinNames = map[BuiltinID]string{
	SimdAdd: "simd_add", SimdSub: "simd_sub", SimdMul: "simd_mul", SimdDiv: "simd_div", SimdRem: "simd_rem",
	SimdShl: "simd_shl", SimdShr: "simd_shr", SimdShlMasked: "simd_shl_masked", SimdShrMasked: "simd_shr_masked",
	SimdAddSat: "simd_saturating_add", SimdSubSat: "simd_saturating_sub",
	SimdBitAnd: "simd_bit_and", SimdBitOr: "simd_bit_or", SimdBitXor: "simd_bit_xor", SimdBitAndNot: "simd_bit_and_not",
	SimdNeg: "simd_neg", SimdAbs: "simd_abs", SimdMin: "simd_min", SimdMax: "simd_max", SimdClamp: "simd_clamp",
	SimdLanesEq: "simd_lanes_eq", SimdLanesNe: "simd_lanes_ne", SimdLanesLt: "simd_lanes_lt",
	SimdLanesLe: "simd_lanes_le", SimdLanesGt: "simd_lanes_gt", SimdLanesGe: "simd_lanes_ge",
	SimdExtract: "simd_extract", SimdReplace: "simd_replace",
	SimdReduceAddBisect: "simd_reduce_add_bisect", SimdReduceMulBisect: "simd_reduce_mul_bisect",
	SimdReduceAddOrdered: "simd_reduce_add_ordered", SimdReduceMulOrdered: "simd_reduce_mul_ordered",
	SimdReduceAddPairs: "simd_reduce_add_pairs", SimdReduceMulPairs: "simd_reduce_mul_pairs",
	SimdReduceMin: "simd_reduce_min", SimdReduceMax: "simd_reduce_max", SimdReduceAnd: "simd_reduce_and",
	SimdReduceOr: "simd_reduce_or", SimdReduceXor: "simd_reduce_xor", SimdReduceAny: "simd_reduce_any",
	SimdReduceAll: "simd_reduce_all", SimdShuffle: "simd_shuffle", SimdSelect: "simd_select",
	SimdRuntimeSwizzle: "simd_runtime_swizzle", SimdCeil: "simd_ceil", SimdFloor: "simd_floor",
	SimdTrunc: "simd_trunc", SimdNearest: "simd_nearest", SimdToBits: "simd_to_bits",
	SimdLanesReverse: "simd_lanes_reverse", SimdLanesRotateLeft: "simd_lanes_rotate_left",
	SimdLanesRotateRight: "simd_lanes_rotate_right", SimdIndices: "simd_indices",
	SimdExtractLsbs: "simd_extract_lsbs", SimdExtractMsbs: "simd_extract_msbs",
	SimdGather: "simd_gather", SimdScatter: "simd_scatter", SimdMaskedLoad: "simd_masked_load",
	SimdMaskedStore: "simd_masked_store", SimdMaskedExpandLoad: "simd_masked_expand_load",
	SimdMaskedCompressStore: "simd_masked_compress_store",

	OverflowAdd: "overflow_add", OverflowSub: "overflow_sub", OverflowMul: "overflow_mul",
	SaturatingAdd: "saturating_add", SaturatingSub: "saturating_sub",
	FixedPointMul: "fixed_point_mul", FixedPointDiv: "fixed_point_div",
	FixedPointMulSat: "fixed_point_mul_sat", FixedPointDivSat: "fixed_point_div_sat",
	CountOnes: "count_ones", CountZeros: "count_zeros", CountTrailingZeros: "count_trailing_zeros",
	CountLeadingZeros: "count_leading_zeros", ReverseBits: "reverse_bits", ByteSwap: "byte_swap",
	Sqrt: "sqrt", FusedMulAdd: "fused_mul_add", Expect: "expect",

	MemCopy: "mem_copy", MemCopyNonOverlapping: "mem_copy_non_overlapping", MemZero: "mem_zero",
	MemZeroVolatile: "mem_zero_volatile", PtrOffset: "ptr_offset", PtrSub: "ptr_sub",
	VolatileLoad: "volatile_load", VolatileStore: "volatile_store",
	NonTemporalLoad: "non_temporal_load", NonTemporalStore: "non_temporal_store",
	UnalignedLoad: "unaligned_load", UnalignedStore: "unaligned_store",
	PrefetchReadData: "prefetch_read_data", PrefetchWriteData: "prefetch_write_data",
	PrefetchReadInstruction: "prefetch_read_instruction", PrefetchWriteInstruction: "prefetch_write_instruction",

	AtomicLoad: "atomic_load", AtomicStore: "atomic_store", AtomicAdd: "atomic_add", AtomicSub: "atomic_sub",
	AtomicAnd: "atomic_and", AtomicNand: "atomic_nand", AtomicOr: "atomic_or", AtomicXor: "atomic_xor",
	AtomicExchange: "atomic_exchange", AtomicCompareExchangeStrong: "atomic_compare_exchange_strong",
	AtomicCompareExchangeWeak: "atomic_compare_exchange_weak",
	AtomicThreadFence: "atomic_thread_fence", AtomicSignalFence: "atomic_signal_fence",

	Syscall: "syscall", SyscallBSD: "syscall_bsd", CPURelax: "cpu_relax", Trap: "trap", DebugTrap: "debug_trap",
	Unreachable: "unreachable", ReadCycleCounter: "read_cycle_counter",
	ReadCycleCounterFrequency: "read_cycle_counter_frequency", X86CPUID: "x86_cpuid", X86XGetBV: "x86_xgetbv",
	WasmMemoryGrow: "wasm_memory_grow", WasmMemorySize: "wasm_memory_size",
}

func (id BuiltinID) String() string {
	if s, ok := builtinNames[id]; ok {
		return s
	}
	return fmt.Sprintf("builtin(%d)", int(id))
}

// LookupBuiltin resolves a builtin by name.
func LookupBuiltin(name string) (BuiltinID, bool) {
	for id, n := range builtinNames {
		if n == name {
			return id, true
		}
	}
	return BuiltinInvalid, false
}

// BuiltinCall is one builtin invocation with lowered operands.
type BuiltinCall struct {
	ID   BuiltinID
	Args []Value
	// Result is the requested result type, nil when the value is unused.
	// Overflow builtins return the value alone unless Result is a
	// (value, bool) tuple.
	Result types.Type
	// Order holds explicit memory orderings, success then failure for
	// compare-exchange. Empty means sequentially consistent.
	Order []types.AtomicOrdering
}

// LowerBuiltin lowers a builtin call. Unknown ids and unsupported operand
// or target combinations are fatal.
func (p *Procedure) LowerBuiltin(bc BuiltinCall) Value {
	switch {
	case bc.ID > simdBegin && bc.ID < simdEnd:
		return p.lowerSimd(bc)
	case bc.ID > arithBegin && bc.ID < arithEnd:
		return p.lowerArith(bc)
	case bc.ID > memoryBegin && bc.ID < memoryEnd:
		return p.lowerMemory(bc)
	case bc.ID > atomicBegin && bc.ID < atomicEnd:
		return p.lowerAtomic(bc)
	case bc.ID > systemBegin && bc.ID < systemEnd:
		return p.lowerSystem(bc)
	}
	p.fatalf("unhandled builtin %s", bc.ID)
	return Value{}
}

func (p *Procedure) arg(bc BuiltinCall, i int) Value {
	if i >= len(bc.Args) {
		p.fatalf("%s: missing operand %d", bc.ID, i)
	}
	return bc.Args[i]
}

// constArg returns the value of a constant integer operand.
func (p *Procedure) constArg(bc BuiltinCall, i int) int64 {
	c, ok := p.arg(bc, i).IR.(*ir.ConstInt)
	if !ok {
		p.fatalf("%s: operand %d must be constant", bc.ID, i)
	}
	return c.Signed()
}

func (p *Procedure) result(bc BuiltinCall, v ir.Value, fallback types.Type) Value {
	t := bc.Result
	if t == nil {
		t = fallback
	}
	return Value{IR: v, Type: t}
}
