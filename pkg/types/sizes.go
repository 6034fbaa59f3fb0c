package types

import (
	"fmt"
	"strings"
)

// Sizes computes layout for a target word size.
type Sizes struct {
	WordSize int64
}

// SizeOf returns the allocation size of t in bytes.
func (s Sizes) SizeOf(t Type) int64 {
	switch t := t.Underlying().(type) {
	case *Basic:
		return s.basicSize(t)
	case *Pointer, *Proc:
		return s.WordSize
	case *Slice:
		return 2 * s.WordSize
	case *Array:
		return s.SizeOf(t.Elem) * t.Len
	case *SimdVector:
		return s.SizeOf(t.Elem) * t.Len
	case *Struct:
		fields := make([]Type, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = f.Type
		}
		size, _ := s.record(fields)
		return size
	case *Tuple:
		size, _ := s.record(tupleTypes(t))
		return size
	}
	panic(fmt.Sprintf("types: size of unsupported type %s", t))
}

// AlignOf returns the alignment of t in bytes.
func (s Sizes) AlignOf(t Type) int64 {
	switch t := t.Underlying().(type) {
	case *Basic:
		switch t.Kind {
		case StringKind:
			return s.WordSize
		case AnyKind:
			return 8
		}
		a := s.basicSize(t)
		if a < 1 {
			return 1
		}
		return a
	case *Pointer, *Proc, *Slice:
		return s.WordSize
	case *Array:
		return s.AlignOf(t.Elem)
	case *SimdVector:
		return vectorAlign(s.SizeOf(t))
	case *Struct:
		fields := make([]Type, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = f.Type
		}
		_, align := s.record(fields)
		return align
	case *Tuple:
		_, align := s.record(tupleTypes(t))
		return align
	}
	panic(fmt.Sprintf("types: align of unsupported type %s", t))
}

// Offsetsof returns the byte offset of each field of a struct or tuple.
func (s Sizes) Offsetsof(t Type) []int64 {
	var fields []Type
	switch t := t.Underlying().(type) {
	case *Struct:
		for _, f := range t.Fields {
			fields = append(fields, f.Type)
		}
	case *Tuple:
		fields = tupleTypes(t)
	default:
		panic(fmt.Sprintf("types: offsets of non-record type %s", t))
	}
	offsets := make([]int64, len(fields))
	var off int64
	for i, f := range fields {
		off = alignUp(off, s.AlignOf(f))
		offsets[i] = off
		off += s.SizeOf(f)
	}
	return offsets
}

func (s Sizes) record(fields []Type) (size, align int64) {
	align = 1
	for _, f := range fields {
		a := s.AlignOf(f)
		size = alignUp(size, a) + s.SizeOf(f)
		if a > align {
			align = a
		}
	}
	return alignUp(size, align), align
}

func (s Sizes) basicSize(b *Basic) int64 {
	switch b.Kind {
	case BoolKind, Int8Kind, Uint8Kind, LLVMBoolKind:
		return 1
	case Int16Kind, Uint16Kind, Float16Kind:
		return 2
	case Int32Kind, Uint32Kind, Float32Kind:
		return 4
	case Int64Kind, Uint64Kind, Float64Kind, TypeidKind:
		return 8
	case IntKind, UintKind, UintptrKind, RawptrKind, CstringKind, UntypedNilKind:
		return s.WordSize
	case StringKind:
		return 2 * s.WordSize
	case AnyKind:
		return alignUp(s.WordSize+8, 8)
	}
	panic(fmt.Sprintf("types: size of invalid basic type %s", b.Name))
}

func vectorAlign(size int64) int64 {
	a := int64(1)
	for a < size && a < 64 {
		a <<= 1
	}
	return a
}

func alignUp(n, a int64) int64 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

func tupleTypes(t *Tuple) []Type {
	out := make([]Type, len(t.Vars))
	for i, v := range t.Vars {
		out[i] = v.Type
	}
	return out
}

// IsZeroSized reports whether t occupies no storage.
func (s Sizes) IsZeroSized(t Type) bool { return s.SizeOf(t) == 0 }

// Identical reports structural identity.
func Identical(a, b Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return TypeString(a) == TypeString(b)
}

// TypeString returns a canonical spelling suitable for cache keys.
func TypeString(t Type) string {
	var sb strings.Builder
	writeType(&sb, t)
	return sb.String()
}

func writeType(sb *strings.Builder, t Type) {
	switch t := t.(type) {
	case *Named:
		sb.WriteString(t.Name)
	case *Proc:
		fmt.Fprintf(sb, "proc[%s", t.CC)
		if t.Variadic {
			fmt.Fprintf(sb, ",variadic=%d", t.VariadicIndex)
		}
		if t.CVararg {
			sb.WriteString(",c_vararg")
		}
		if t.Diverging {
			sb.WriteString(",noreturn")
		}
		sb.WriteString("](")
		for i, v := range tupleVars(t.Params) {
			if i > 0 {
				sb.WriteString(",")
			}
			if v.Kind != EntityVariable {
				sb.WriteString(v.Kind.String() + ":")
			}
			if v.Type != nil {
				writeType(sb, v.Type)
			}
		}
		sb.WriteString(")(")
		for i, v := range tupleVars(t.Results) {
			if i > 0 {
				sb.WriteString(",")
			}
			writeType(sb, v.Type)
		}
		sb.WriteString(")")
	case *Tuple:
		sb.WriteString("(")
		for i, v := range t.Vars {
			if i > 0 {
				sb.WriteString(",")
			}
			writeType(sb, v.Type)
		}
		sb.WriteString(")")
	case *Struct:
		sb.WriteString("struct{")
		for i, f := range t.Fields {
			if i > 0 {
				sb.WriteString(",")
			}
			writeType(sb, f.Type)
		}
		sb.WriteString("}")
	case *Pointer:
		sb.WriteString("^")
		writeType(sb, t.Elem)
	case *Slice:
		sb.WriteString("[]")
		writeType(sb, t.Elem)
	case *Array:
		fmt.Fprintf(sb, "[%d]", t.Len)
		writeType(sb, t.Elem)
	case *SimdVector:
		fmt.Fprintf(sb, "#simd[%d]", t.Len)
		writeType(sb, t.Elem)
	default:
		sb.WriteString(t.String())
	}
}
