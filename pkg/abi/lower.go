package abi

import (
	"fmt"

	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// IRType lowers a source type to its in-memory IR representation.
func IRType(t types.Type, s types.Sizes) ir.Type {
	word := ir.Int(int(s.WordSize * 8))
	switch u := t.Underlying().(type) {
	case *types.Basic:
		switch u.Kind {
		case types.BoolKind, types.Int8Kind, types.Uint8Kind:
			return ir.I8
		case types.LLVMBoolKind:
			return ir.I1
		case types.Int16Kind, types.Uint16Kind:
			return ir.I16
		case types.Int32Kind, types.Uint32Kind:
			return ir.I32
		case types.Int64Kind, types.Uint64Kind, types.TypeidKind:
			return ir.I64
		case types.IntKind, types.UintKind, types.UintptrKind:
			return word
		case types.Float16Kind:
			return ir.FloatType{Bits: 16}
		case types.Float32Kind:
			return ir.F32
		case types.Float64Kind:
			return ir.F64
		case types.RawptrKind, types.CstringKind, types.UntypedNilKind:
			return ir.Ptr
		case types.StringKind:
			return ir.Struct(ir.Ptr, word)
		case types.AnyKind:
			return ir.Struct(ir.Ptr, ir.I64)
		}
	case *types.Pointer, *types.Proc:
		return ir.Ptr
	case *types.Slice:
		return ir.Struct(ir.Ptr, word)
	case *types.Array:
		return ir.Array(int(u.Len), IRType(u.Elem, s))
	case *types.SimdVector:
		return ir.Vector(int(u.Len), IRType(u.Elem, s))
	case *types.Struct:
		fields := make([]ir.Type, len(u.Fields))
		for i, f := range u.Fields {
			fields[i] = IRType(f.Type, s)
		}
		return ir.Struct(fields...)
	case *types.Tuple:
		fields := make([]ir.Type, len(u.Vars))
		for i, v := range u.Vars {
			fields[i] = IRType(v.Type, s)
		}
		return ir.Struct(fields...)
	}
	panic(fmt.Sprintf("abi: cannot lower type %s", t))
}

// isRegisterType reports whether t travels in a single machine register
// class without reinterpretation.
func isRegisterType(t types.Type) bool {
	switch u := t.Underlying().(type) {
	case *types.Basic:
		switch u.Kind {
		case types.StringKind, types.AnyKind:
			return false
		}
		return true
	case *types.Pointer, *types.Proc, *types.SimdVector:
		return true
	}
	return false
}
