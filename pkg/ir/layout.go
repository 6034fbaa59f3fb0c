package ir

import "fmt"

// DataLayout computes sizes for a target pointer width.
type DataLayout struct {
	PtrSize int
}

// SizeOf returns the allocation size of t in bytes.
func (dl DataLayout) SizeOf(t Type) int {
	switch t := t.(type) {
	case VoidType:
		return 0
	case IntType:
		return (t.Bits + 7) / 8
	case FloatType:
		return t.Bits / 8
	case PtrType:
		return dl.PtrSize
	case *VectorType:
		if IntBits(t) == 1 {
			return (t.Len + 7) / 8
		}
		return t.Len * dl.SizeOf(t.Elem)
	case *ArrayType:
		return t.Len * dl.SizeOf(t.Elem)
	case *StructType:
		var off int
		for _, f := range t.Fields {
			off = alignTo(off, dl.AlignOf(f)) + dl.SizeOf(f)
		}
		return alignTo(off, dl.AlignOf(t))
	}
	panic(fmt.Sprintf("ir: size of %s", t))
}

// AlignOf returns the ABI alignment of t.
func (dl DataLayout) AlignOf(t Type) int {
	switch t := t.(type) {
	case VoidType:
		return 1
	case IntType:
		return pow2Ceil(dl.SizeOf(t), 8)
	case FloatType:
		return t.Bits / 8
	case PtrType:
		return dl.PtrSize
	case *VectorType:
		return pow2Ceil(dl.SizeOf(t), 64)
	case *ArrayType:
		return dl.AlignOf(t.Elem)
	case *StructType:
		a := 1
		for _, f := range t.Fields {
			if fa := dl.AlignOf(f); fa > a {
				a = fa
			}
		}
		return a
	}
	panic(fmt.Sprintf("ir: align of %s", t))
}

// FieldOffset returns the byte offset of field i.
func (dl DataLayout) FieldOffset(st *StructType, i int) int {
	var off int
	for j, f := range st.Fields {
		off = alignTo(off, dl.AlignOf(f))
		if j == i {
			return off
		}
		off += dl.SizeOf(f)
	}
	panic(fmt.Sprintf("ir: field %d out of range in %s", i, st))
}

func pow2Ceil(n, limit int) int {
	a := 1
	for a < n && a < limit {
		a <<= 1
	}
	return a
}

func alignTo(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}
