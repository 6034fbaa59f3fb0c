// Package types is the read-only view of the semantic layer consumed by the
// code generator: type shapes, sizes, entities and per-procedure facts.
package types

import (
	"fmt"
	"strings"
)

// Type is a source-level type.
type Type interface {
	String() string
	Underlying() Type
}

// BasicKind enumerates the predeclared types.
type BasicKind int

const (
	InvalidKind BasicKind = iota
	BoolKind
	Int8Kind
	Int16Kind
	Int32Kind
	Int64Kind
	IntKind
	Uint8Kind
	Uint16Kind
	Uint32Kind
	Uint64Kind
	UintKind
	UintptrKind
	Float16Kind
	Float32Kind
	Float64Kind
	RawptrKind
	StringKind
	CstringKind
	AnyKind
	TypeidKind
	// LLVMBoolKind is the one-bit boolean produced by comparisons and
	// overflow flags; it never appears in source.
	LLVMBoolKind
	UntypedNilKind
)

// Basic is a predeclared type.
type Basic struct {
	Kind BasicKind
	Name string
}

func (b *Basic) String() string   { return b.Name }
func (b *Basic) Underlying() Type { return b }

var (
	Bool       = &Basic{BoolKind, "bool"}
	Int8       = &Basic{Int8Kind, "i8"}
	Int16      = &Basic{Int16Kind, "i16"}
	Int32      = &Basic{Int32Kind, "i32"}
	Int64      = &Basic{Int64Kind, "i64"}
	Int        = &Basic{IntKind, "int"}
	Uint8      = &Basic{Uint8Kind, "u8"}
	Uint16     = &Basic{Uint16Kind, "u16"}
	Uint32     = &Basic{Uint32Kind, "u32"}
	Uint64     = &Basic{Uint64Kind, "u64"}
	Uint       = &Basic{UintKind, "uint"}
	Uintptr    = &Basic{UintptrKind, "uintptr"}
	Float16    = &Basic{Float16Kind, "f16"}
	Float32    = &Basic{Float32Kind, "f32"}
	Float64    = &Basic{Float64Kind, "f64"}
	Rawptr     = &Basic{RawptrKind, "rawptr"}
	String     = &Basic{StringKind, "string"}
	Cstring    = &Basic{CstringKind, "cstring"}
	Any        = &Basic{AnyKind, "any"}
	Typeid     = &Basic{TypeidKind, "typeid"}
	LLVMBool   = &Basic{LLVMBoolKind, "llvm_bool"}
	UntypedNil = &Basic{UntypedNilKind, "untyped nil"}
)

// Pointer is ^Elem.
type Pointer struct{ Elem Type }

func (p *Pointer) String() string   { return "^" + p.Elem.String() }
func (p *Pointer) Underlying() Type { return p }

// NewPointer returns ^elem.
func NewPointer(elem Type) *Pointer { return &Pointer{Elem: elem} }

// Slice is []Elem, laid out as {data, len}.
type Slice struct{ Elem Type }

func (s *Slice) String() string   { return "[]" + s.Elem.String() }
func (s *Slice) Underlying() Type { return s }

// Array is [Len]Elem.
type Array struct {
	Elem Type
	Len  int64
}

func (a *Array) String() string   { return fmt.Sprintf("[%d]%s", a.Len, a.Elem) }
func (a *Array) Underlying() Type { return a }

// SimdVector is #simd[Len]Elem.
type SimdVector struct {
	Elem Type
	Len  int64
}

func (v *SimdVector) String() string   { return fmt.Sprintf("#simd[%d]%s", v.Len, v.Elem) }
func (v *SimdVector) Underlying() Type { return v }

// Field is one struct member.
type Field struct {
	Name string
	Type Type
}

// Struct is an ordered record.
type Struct struct{ Fields []Field }

func (s *Struct) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + ": " + f.Type.String()
	}
	return "struct{" + strings.Join(parts, ", ") + "}"
}
func (s *Struct) Underlying() Type { return s }

// Tuple is the parameter or result list of a procedure.
type Tuple struct{ Vars []*Entity }

func (t *Tuple) String() string {
	parts := make([]string, len(t.Vars))
	for i, v := range t.Vars {
		if v.Type == nil {
			parts[i] = v.Name
			continue
		}
		parts[i] = v.Type.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
func (t *Tuple) Underlying() Type { return t }

// Len returns the number of members, treating nil as empty.
func (t *Tuple) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Vars)
}

// NewTuple builds a tuple from variables.
func NewTuple(vars ...*Entity) *Tuple { return &Tuple{Vars: vars} }

// Named is a declared type.
type Named struct {
	Name  string
	Under Type
}

func (n *Named) String() string   { return n.Name }
func (n *Named) Underlying() Type { return n.Under.Underlying() }

// Proc is a procedure signature.
type Proc struct {
	Params  *Tuple
	Results *Tuple
	CC      CallingConvention

	Variadic      bool
	VariadicIndex int
	CVararg       bool

	Diverging       bool
	Polymorphic     bool
	PolySpecialized bool
	HasNamedResults bool

	// EnableTargetFeature is a comma separated list without leading '+'.
	EnableTargetFeature string
}

func (p *Proc) String() string {
	var sb strings.Builder
	sb.WriteString("proc")
	if p.CC != CCOdin {
		fmt.Fprintf(&sb, " %q", p.CC.String())
	}
	sb.WriteString("(")
	for i, v := range tupleVars(p.Params) {
		if i > 0 {
			sb.WriteString(", ")
		}
		if p.Variadic && i == p.VariadicIndex {
			sb.WriteString("..")
		}
		if v.Kind != EntityVariable {
			sb.WriteString(v.Kind.String() + " ")
		}
		if v.Type != nil {
			sb.WriteString(v.Type.String())
		}
	}
	sb.WriteString(")")
	if p.Results.Len() > 0 {
		sb.WriteString(" -> ")
		sb.WriteString(p.Results.String())
	}
	if p.Diverging {
		sb.WriteString(" -> !")
	}
	return sb.String()
}
func (p *Proc) Underlying() Type { return p }

// ParamCount returns the number of declared parameters.
func (p *Proc) ParamCount() int { return p.Params.Len() }

// ResultCount returns the number of declared results.
func (p *Proc) ResultCount() int { return p.Results.Len() }

// ParamVars returns the declared parameters, nil for a signature without a
// parameter tuple.
func (p *Proc) ParamVars() []*Entity { return tupleVars(p.Params) }

// ResultVars returns the declared results.
func (p *Proc) ResultVars() []*Entity { return tupleVars(p.Results) }

func tupleVars(t *Tuple) []*Entity {
	if t == nil {
		return nil
	}
	return t.Vars
}

// NewProc builds a signature from parameter and result variables.
func NewProc(cc CallingConvention, params []*Entity, results []*Entity) *Proc {
	p := &Proc{CC: cc, Params: NewTuple(params...), Results: NewTuple(results...)}
	for _, r := range results {
		if r.Name != "" && r.Name != "_" {
			p.HasNamedResults = true
		}
	}
	return p
}

// SourceCodeLocation is the runtime's call-site location record.
var SourceCodeLocation = &Named{
	Name: "runtime.Source_Code_Location",
	Under: &Struct{Fields: []Field{
		{"file_path", String},
		{"line", Int32},
		{"column", Int32},
		{"procedure", String},
	}},
}

// Context is the implicit context passed to Odin-convention procedures.
var Context = &Named{
	Name: "runtime.Context",
	Under: &Struct{Fields: []Field{
		{"allocator", &Struct{Fields: []Field{{"procedure", Rawptr}, {"data", Rawptr}}}},
		{"temp_allocator", &Struct{Fields: []Field{{"procedure", Rawptr}, {"data", Rawptr}}}},
		{"assertion_failure_proc", Rawptr},
		{"logger", &Struct{Fields: []Field{{"procedure", Rawptr}, {"data", Rawptr}}}},
		{"user_ptr", Rawptr},
		{"user_index", Int},
	}},
}
