package ir

import (
	"fmt"
	"strings"
)

// Type is an IR type.
type Type interface {
	String() string
	typ()
}

// VoidType is the empty result.
type VoidType struct{}

// IntType is an integer of arbitrary bit width up to 64.
type IntType struct{ Bits int }

// FloatType is an IEEE float of 16, 32 or 64 bits.
type FloatType struct{ Bits int }

// PtrType is an opaque address.
type PtrType struct{}

// VectorType is a fixed-length SIMD vector.
type VectorType struct {
	Len  int
	Elem Type
}

// ArrayType is a fixed-length array.
type ArrayType struct {
	Len  int
	Elem Type
}

// StructType is a naturally aligned record.
type StructType struct {
	Fields []Type
}

// FuncType is a native function signature.
type FuncType struct {
	Params   []Type
	Ret      Type
	Variadic bool
}

func (VoidType) typ()    {}
func (IntType) typ()     {}
func (FloatType) typ()   {}
func (PtrType) typ()     {}
func (*VectorType) typ() {}
func (*ArrayType) typ()  {}
func (*StructType) typ() {}
func (*FuncType) typ()   {}

func (VoidType) String() string    { return "void" }
func (t IntType) String() string   { return fmt.Sprintf("i%d", t.Bits) }
func (PtrType) String() string     { return "ptr" }
func (t *VectorType) String() string { return fmt.Sprintf("<%d x %s>", t.Len, t.Elem) }
func (t *ArrayType) String() string  { return fmt.Sprintf("[%d x %s]", t.Len, t.Elem) }

func (t FloatType) String() string {
	switch t.Bits {
	case 16:
		return "half"
	case 32:
		return "float"
	}
	return "double"
}

func (t *StructType) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = f.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (t *FuncType) String() string {
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = p.String()
	}
	if t.Variadic {
		parts = append(parts, "...")
	}
	return fmt.Sprintf("%s (%s)", t.Ret, strings.Join(parts, ", "))
}

// Common types.
var (
	Void = VoidType{}
	I1   = IntType{1}
	I8   = IntType{8}
	I16  = IntType{16}
	I32  = IntType{32}
	I64  = IntType{64}
	F32  = FloatType{32}
	F64  = FloatType{64}
	Ptr  = PtrType{}
)

// Int returns the integer type of the given width.
func Int(bits int) IntType { return IntType{Bits: bits} }

// Vector returns <n x elem>.
func Vector(n int, elem Type) *VectorType { return &VectorType{Len: n, Elem: elem} }

// Array returns [n x elem].
func Array(n int, elem Type) *ArrayType { return &ArrayType{Len: n, Elem: elem} }

// Struct returns {fields...}.
func Struct(fields ...Type) *StructType { return &StructType{Fields: fields} }

// Equal reports structural type equality.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

// IsVoid reports whether t is void.
func IsVoid(t Type) bool {
	_, ok := t.(VoidType)
	return ok
}

// IsAggregate reports whether t is a struct or array.
func IsAggregate(t Type) bool {
	switch t.(type) {
	case *StructType, *ArrayType:
		return true
	}
	return false
}

// ScalarOf returns the element type of a vector and t otherwise.
func ScalarOf(t Type) Type {
	if v, ok := t.(*VectorType); ok {
		return v.Elem
	}
	return t
}

// IntBits returns the width of an integer (or integer vector) type, or 0.
func IntBits(t Type) int {
	if it, ok := ScalarOf(t).(IntType); ok {
		return it.Bits
	}
	return 0
}

// IsFloat reports whether t is a float or float vector.
func IsFloat(t Type) bool {
	_, ok := ScalarOf(t).(FloatType)
	return ok
}

// WithScalar returns t with its scalar replaced, preserving vector shape.
func WithScalar(t Type, scalar Type) Type {
	if v, ok := t.(*VectorType); ok {
		return Vector(v.Len, scalar)
	}
	return scalar
}
