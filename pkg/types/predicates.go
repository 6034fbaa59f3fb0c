package types

// IsInteger reports whether t is an integer type.
func IsInteger(t Type) bool {
	b, ok := t.Underlying().(*Basic)
	if !ok {
		return false
	}
	switch b.Kind {
	case Int8Kind, Int16Kind, Int32Kind, Int64Kind, IntKind,
		Uint8Kind, Uint16Kind, Uint32Kind, Uint64Kind, UintKind, UintptrKind:
		return true
	}
	return false
}

// IsUnsigned reports whether t is an unsigned integer type.
func IsUnsigned(t Type) bool {
	b, ok := t.Underlying().(*Basic)
	if !ok {
		return false
	}
	switch b.Kind {
	case Uint8Kind, Uint16Kind, Uint32Kind, Uint64Kind, UintKind, UintptrKind:
		return true
	}
	return false
}

// IsFloat reports whether t is a floating point type.
func IsFloat(t Type) bool {
	b, ok := t.Underlying().(*Basic)
	return ok && (b.Kind == Float16Kind || b.Kind == Float32Kind || b.Kind == Float64Kind)
}

// IsBoolean reports whether t is a boolean type.
func IsBoolean(t Type) bool {
	b, ok := t.Underlying().(*Basic)
	return ok && (b.Kind == BoolKind || b.Kind == LLVMBoolKind)
}

// IsPointerLike reports whether t is represented as a single address.
func IsPointerLike(t Type) bool {
	switch u := t.Underlying().(type) {
	case *Pointer, *Proc:
		return true
	case *Basic:
		return u.Kind == RawptrKind || u.Kind == CstringKind
	}
	return false
}

// IsSimdVector reports whether t is a SIMD vector.
func IsSimdVector(t Type) bool {
	_, ok := t.Underlying().(*SimdVector)
	return ok
}

// IsUntypedNil reports whether t is the type of the untyped nil literal.
func IsUntypedNil(t Type) bool {
	b, ok := t.Underlying().(*Basic)
	return ok && b.Kind == UntypedNilKind
}

// IsTuple reports whether t is a tuple.
func IsTuple(t Type) bool {
	_, ok := t.Underlying().(*Tuple)
	return ok
}

// Elem returns the element type of a vector, array, slice or pointer.
func Elem(t Type) Type {
	switch u := t.Underlying().(type) {
	case *SimdVector:
		return u.Elem
	case *Array:
		return u.Elem
	case *Slice:
		return u.Elem
	case *Pointer:
		return u.Elem
	}
	return t
}

// ScalarOf returns the element type for vectors and t itself otherwise.
func ScalarOf(t Type) Type {
	if v, ok := t.Underlying().(*SimdVector); ok {
		return v.Elem
	}
	return t
}

// VectorLen returns the lane count of a SIMD vector, or 0.
func VectorLen(t Type) int64 {
	if v, ok := t.Underlying().(*SimdVector); ok {
		return v.Len
	}
	return 0
}

// ReduceTuple collapses a single-element tuple to its element and an empty
// tuple to nil.
func ReduceTuple(t *Tuple) Type {
	switch t.Len() {
	case 0:
		return nil
	case 1:
		return t.Vars[0].Type
	}
	return t
}

// TupleOf builds an anonymous tuple from types.
func TupleOf(ts ...Type) *Tuple {
	vars := make([]*Entity, len(ts))
	for i, t := range ts {
		vars[i] = &Entity{Kind: EntityVariable, Type: t}
	}
	return &Tuple{Vars: vars}
}
