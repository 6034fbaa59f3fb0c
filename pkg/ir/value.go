package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is anything usable as an operand.
type Value interface {
	Type() Type
	Ident() string
}

// ConstInt is an integer (or boolean) constant stored as raw bits.
type ConstInt struct {
	Typ IntType
	V   uint64
}

// ConstFloat is a floating point constant.
type ConstFloat struct {
	Typ FloatType
	V   float64
}

// ConstNull is the null pointer.
type ConstNull struct{}

// ConstZero is the all-zero value of any type.
type ConstZero struct{ Typ Type }

// ConstUndef is an unspecified value of any type.
type ConstUndef struct{ Typ Type }

// ConstVector is a vector literal.
type ConstVector struct {
	Typ   *VectorType
	Elems []Value
}

// ConstStruct is a struct literal.
type ConstStruct struct {
	Typ    *StructType
	Fields []Value
}

// ConstArray is an array literal.
type ConstArray struct {
	Typ   *ArrayType
	Elems []Value
}

func (c *ConstInt) Type() Type    { return c.Typ }
func (c *ConstFloat) Type() Type  { return c.Typ }
func (*ConstNull) Type() Type     { return Ptr }
func (c *ConstZero) Type() Type   { return c.Typ }
func (c *ConstUndef) Type() Type  { return c.Typ }
func (c *ConstVector) Type() Type { return c.Typ }
func (c *ConstStruct) Type() Type { return c.Typ }
func (c *ConstArray) Type() Type  { return c.Typ }

func (c *ConstInt) Ident() string {
	if c.Typ.Bits == 1 {
		return strconv.FormatBool(c.V != 0)
	}
	return strconv.FormatInt(c.Signed(), 10)
}
func (c *ConstFloat) Ident() string  { return strconv.FormatFloat(c.V, 'g', -1, 64) }
func (*ConstNull) Ident() string     { return "null" }
func (*ConstZero) Ident() string     { return "zeroinitializer" }
func (*ConstUndef) Ident() string    { return "undef" }
func (c *ConstVector) Ident() string { return "<" + typedList(c.Elems) + ">" }
func (c *ConstStruct) Ident() string { return "{" + typedList(c.Fields) + "}" }
func (c *ConstArray) Ident() string  { return "[" + typedList(c.Elems) + "]" }

// Signed returns the value sign-extended from its width.
func (c *ConstInt) Signed() int64 {
	if c.Typ.Bits >= 64 {
		return int64(c.V)
	}
	shift := 64 - uint(c.Typ.Bits)
	return int64(c.V<<shift) >> shift
}

func typedList(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.Type().String() + " " + v.Ident()
	}
	return strings.Join(parts, ", ")
}

// ConstIntOf returns an integer constant truncated to the type width.
func ConstIntOf(t IntType, v int64) *ConstInt {
	return &ConstInt{Typ: t, V: Mask(uint64(v), t.Bits)}
}

// ConstFloatOf returns a float constant.
func ConstFloatOf(t FloatType, v float64) *ConstFloat {
	return &ConstFloat{Typ: t, V: v}
}

// ConstBool returns an i1 constant.
func ConstBool(b bool) *ConstInt {
	if b {
		return &ConstInt{Typ: I1, V: 1}
	}
	return &ConstInt{Typ: I1, V: 0}
}

// Null returns the null pointer.
func Null() *ConstNull { return &ConstNull{} }

// Zero returns the zero value of t.
func Zero(t Type) Value {
	switch t := t.(type) {
	case IntType:
		return &ConstInt{Typ: t}
	case FloatType:
		return &ConstFloat{Typ: t}
	case PtrType:
		return Null()
	}
	return &ConstZero{Typ: t}
}

// Undef returns an undefined value of t.
func Undef(t Type) *ConstUndef { return &ConstUndef{Typ: t} }

// Splat returns a constant vector with every lane set to v.
func Splat(t *VectorType, v Value) *ConstVector {
	elems := make([]Value, t.Len)
	for i := range elems {
		elems[i] = v
	}
	return &ConstVector{Typ: t, Elems: elems}
}

// ScalarConst returns a constant of scalar or splatted vector type t.
func ScalarConst(t Type, v int64) Value {
	if vt, ok := t.(*VectorType); ok {
		return Splat(vt, ScalarConst(vt.Elem, v))
	}
	switch st := t.(type) {
	case IntType:
		return ConstIntOf(st, v)
	case FloatType:
		return ConstFloatOf(st, float64(v))
	}
	panic(fmt.Sprintf("ir: scalar constant of %s", t))
}

// Mask truncates v to bits.
func Mask(v uint64, bits int) uint64 {
	if bits >= 64 {
		return v
	}
	return v & (1<<uint(bits) - 1)
}

// IsConstant reports whether v is known at link time.
func IsConstant(v Value) bool {
	switch v.(type) {
	case *ConstInt, *ConstFloat, *ConstNull, *ConstZero, *ConstUndef,
		*ConstVector, *ConstStruct, *ConstArray, *Global, *Function:
		return true
	}
	return false
}

// Linkage is the symbol binding of a global or function.
type Linkage int

const (
	LinkageExternal Linkage = iota
	LinkageInternal
	LinkagePrivate
	LinkageDLLExport
	LinkageWeakAny
	LinkageLinkOnceAny
)

func (l Linkage) String() string {
	switch l {
	case LinkageInternal:
		return "internal"
	case LinkagePrivate:
		return "private"
	case LinkageDLLExport:
		return "dllexport"
	case LinkageWeakAny:
		return "weak"
	case LinkageLinkOnceAny:
		return "linkonce"
	}
	return "external"
}

// Global is a module-level variable; its value is its address.
type Global struct {
	Name     string
	Elem     Type
	Init     Value
	Linkage  Linkage
	Constant bool
	Align    int
}

func (*Global) Type() Type       { return Ptr }
func (g *Global) Ident() string { return "@" + quoteName(g.Name) }

// Param is a native function parameter.
type Param struct {
	Name  string
	Typ   Type
	Index int
}

func (p *Param) Type() Type { return p.Typ }
func (p *Param) Ident() string {
	if p.Name != "" {
		return "%" + quoteName(p.Name)
	}
	return fmt.Sprintf("%%arg%d", p.Index)
}

func quoteName(s string) string {
	for _, r := range s {
		if !(r == '_' || r == '.' || r == '$' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return strconv.Quote(s)
		}
	}
	return s
}
