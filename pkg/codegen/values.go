package codegen

import (
	"math"

	"github.com/GriffinCanCode/callgen/pkg/abi"
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// Value is a lowered value together with its source type.
type Value struct {
	IR   ir.Value
	Type types.Type
}

// Valid reports whether v holds a value.
func (v Value) Valid() bool { return v.IR != nil }

// Addr is addressable storage holding a value of Type.
type Addr struct {
	Ptr  ir.Value
	Type types.Type
}

// IRType lowers a source type for this module's target.
func (m *Module) IRType(t types.Type) ir.Type { return abi.IRType(t, m.Sizes) }

func (m *Module) alignOf(t types.Type) int { return int(m.Sizes.AlignOf(t)) }

func (m *Module) word() ir.IntType { return ir.Int(int(m.Sizes.WordSize * 8)) }

// Zero returns the zero value of t.
func (m *Module) Zero(t types.Type) Value {
	return Value{IR: ir.Zero(m.IRType(t)), Type: t}
}

// ConstInt returns an integer, float or boolean constant of t.
func (m *Module) ConstInt(t types.Type, v int64) Value {
	return Value{IR: ir.ScalarConst(m.IRType(t), v), Type: t}
}

// ConstValue lowers an exact constant of t. Aggregates are given as []any
// in field or element order.
func (m *Module) ConstValue(t types.Type, v any) Value {
	it := m.IRType(t)
	switch x := v.(type) {
	case nil:
		return m.Zero(t)
	case Value:
		return x
	case bool:
		if x {
			return Value{IR: ir.ScalarConst(it, 1), Type: t}
		}
		return Value{IR: ir.ScalarConst(it, 0), Type: t}
	case int:
		return m.ConstInt(t, int64(x))
	case int32:
		return m.ConstInt(t, int64(x))
	case int64:
		return m.ConstInt(t, x)
	case uint64:
		if st, ok := it.(ir.IntType); ok {
			return Value{IR: &ir.ConstInt{Typ: st, V: ir.Mask(x, st.Bits)}, Type: t}
		}
		return m.ConstInt(t, int64(x))
	case float64:
		switch st := ir.ScalarOf(it).(type) {
		case ir.FloatType:
			c := ir.ConstFloatOf(st, x)
			if vt, ok := it.(*ir.VectorType); ok {
				return Value{IR: ir.Splat(vt, c), Type: t}
			}
			return Value{IR: c, Type: t}
		}
		return m.ConstInt(t, int64(math.Trunc(x)))
	case string:
		if types.Identical(t, types.Cstring) {
			return Value{IR: m.cstringGlobal(x), Type: t}
		}
		return Value{IR: m.ConstString(x).IR, Type: t}
	case []any:
		return Value{IR: m.constAggregate(t, it, x), Type: t}
	}
	fatalf("", "constant %v (%T) of type %s", v, v, t)
	return Value{}
}

func (m *Module) constAggregate(t types.Type, it ir.Type, elems []any) ir.Value {
	vals := make([]ir.Value, len(elems))
	for i, e := range elems {
		vals[i] = m.ConstValue(memberType(t, i), e).IR
	}
	switch it := it.(type) {
	case *ir.StructType:
		return &ir.ConstStruct{Typ: it, Fields: vals}
	case *ir.ArrayType:
		return &ir.ConstArray{Typ: it, Elems: vals}
	case *ir.VectorType:
		return &ir.ConstVector{Typ: it, Elems: vals}
	}
	fatalf("", "aggregate constant of %s", t)
	return nil
}

func memberType(t types.Type, i int) types.Type {
	switch u := t.Underlying().(type) {
	case *types.Struct:
		return u.Fields[i].Type
	case *types.Tuple:
		return u.Vars[i].Type
	}
	return types.Elem(t)
}

// ConstString returns a string constant backed by a pooled global.
func (m *Module) ConstString(s string) Value {
	g := m.stringData(s)
	st := m.IRType(types.String).(*ir.StructType)
	return Value{
		IR:   &ir.ConstStruct{Typ: st, Fields: []ir.Value{g, ir.ConstIntOf(m.word(), int64(len(s)))}},
		Type: types.String,
	}
}

func (m *Module) cstringGlobal(s string) ir.Value { return m.stringData(s) }

func (m *Module) stringData(s string) *ir.Global {
	g, _ := m.strings.GetOrInsert(s, func() *ir.Global {
		bytes := make([]ir.Value, len(s)+1)
		for i := 0; i < len(s); i++ {
			bytes[i] = ir.ConstIntOf(ir.I8, int64(s[i]))
		}
		bytes[len(s)] = ir.ConstIntOf(ir.I8, 0)
		at := ir.Array(len(bytes), ir.I8)
		g := m.IR.AddGlobal("", at, &ir.ConstArray{Typ: at, Elems: bytes})
		g.Linkage = ir.LinkagePrivate
		g.Constant = true
		g.Align = 1
		return g
	})
	return g
}

// AddLocal reserves a stack slot for t in the declarations block and binds
// it to e when e is non-nil.
func (p *Procedure) AddLocal(t types.Type, e *types.Entity, zero bool) Addr {
	it := p.Module.IRType(t)
	align := p.Module.alignOf(t)
	cur := p.b.Block()
	p.b.SetBlock(p.decls)
	ptr := p.b.Alloca(it, align)
	p.b.SetBlock(cur)
	if e != nil && !e.IsBlank() {
		ptr.SetName(e.Name)
	}
	if zero {
		p.b.Store(ir.Zero(it), ptr, align)
	}
	a := Addr{Ptr: ptr, Type: t}
	if e != nil {
		p.locals[e] = a
		p.Module.Debug.Variable(p, e, ptr, 0)
	}
	return a
}

// Local returns the storage bound to e.
func (p *Procedure) Local(e *types.Entity) (Addr, bool) {
	a, ok := p.locals[e]
	return a, ok
}

// Load reads the value stored at a.
func (p *Procedure) Load(a Addr) Value {
	return Value{IR: p.b.Load(p.Module.IRType(a.Type), a.Ptr, p.Module.alignOf(a.Type)), Type: a.Type}
}

// Store converts v to the type of a and writes it.
func (p *Procedure) Store(a Addr, v Value) {
	v = p.Conv(v, a.Type)
	p.b.Store(v.IR, a.Ptr, p.Module.alignOf(a.Type))
}

// AddressOf returns the address v was loaded from, or spills v to a fresh
// local.
func (p *Procedure) AddressOf(v Value) ir.Value {
	if ld, ok := v.IR.(*ir.Load); ok {
		return ld.Ptr
	}
	local := p.AddLocal(v.Type, nil, false)
	p.b.Store(v.IR, local.Ptr, p.Module.alignOf(v.Type))
	return local.Ptr
}

// transmute reinterprets the bits of x as type to.
func (p *Procedure) transmute(x ir.Value, to ir.Type) ir.Value {
	from := x.Type()
	if ir.Equal(from, to) {
		return x
	}
	dl := p.Module.IR.DL
	if !ir.IsAggregate(from) && !ir.IsAggregate(to) && dl.SizeOf(from) == dl.SizeOf(to) {
		_, fromPtr := from.(ir.PtrType)
		_, toPtr := to.(ir.PtrType)
		switch {
		case fromPtr && !toPtr:
			return p.b.Cast(ir.CastPtrToInt, x, to)
		case toPtr && !fromPtr:
			return p.b.Cast(ir.CastIntToPtr, x, to)
		}
		return p.b.Cast(ir.CastBitCast, x, to)
	}

	big, align := from, dl.AlignOf(from)
	if dl.SizeOf(to) > dl.SizeOf(from) {
		big = to
	}
	if a := dl.AlignOf(to); a > align {
		align = a
	}
	cur := p.b.Block()
	p.b.SetBlock(p.decls)
	tmp := p.b.Alloca(big, align)
	p.b.SetBlock(cur)
	p.b.Store(x, tmp, align)
	return p.b.Load(to, tmp, align)
}

// Conv converts v to t.
func (p *Procedure) Conv(v Value, t types.Type) Value {
	if !v.Valid() {
		p.fatalf("conversion of missing value to %s", t)
	}
	if v.Type == t || types.Identical(v.Type, t) {
		return Value{IR: v.IR, Type: t}
	}
	if types.IsUntypedNil(v.Type) {
		return p.Module.Zero(t)
	}
	from, to := p.Module.IRType(v.Type), p.Module.IRType(t)
	src, dst := types.ScalarOf(v.Type), types.ScalarOf(t)

	switch {
	case types.IsBoolean(dst) && !types.IsBoolean(src) && types.IsInteger(src):
		nz := p.b.ICmp(ir.IntNE, v.IR, ir.ScalarConst(from, 0))
		return Value{IR: p.resize(nz, to, false), Type: t}
	case (types.IsInteger(src) || types.IsBoolean(src)) && (types.IsInteger(dst) || types.IsBoolean(dst)):
		signed := types.IsInteger(src) && !types.IsUnsigned(src)
		return Value{IR: p.resize(v.IR, to, signed), Type: t}
	case types.IsFloat(src) && types.IsFloat(dst):
		fb, tb := ir.ScalarOf(from).(ir.FloatType).Bits, ir.ScalarOf(to).(ir.FloatType).Bits
		switch {
		case fb < tb:
			return Value{IR: p.b.Cast(ir.CastFPExt, v.IR, to), Type: t}
		case fb > tb:
			return Value{IR: p.b.Cast(ir.CastFPTrunc, v.IR, to), Type: t}
		}
		return Value{IR: v.IR, Type: t}
	case types.IsInteger(src) && types.IsFloat(dst):
		op := ir.CastSIToFP
		if types.IsUnsigned(src) {
			op = ir.CastUIToFP
		}
		return Value{IR: p.b.Cast(op, v.IR, to), Type: t}
	case types.IsFloat(src) && types.IsInteger(dst):
		op := ir.CastFPToSI
		if types.IsUnsigned(dst) {
			op = ir.CastFPToUI
		}
		return Value{IR: p.b.Cast(op, v.IR, to), Type: t}
	case types.IsPointerLike(src) && types.IsInteger(dst):
		return Value{IR: p.b.Cast(ir.CastPtrToInt, v.IR, to), Type: t}
	case types.IsInteger(src) && types.IsPointerLike(dst):
		return Value{IR: p.b.Cast(ir.CastIntToPtr, v.IR, to), Type: t}
	case ir.Equal(from, to):
		return Value{IR: v.IR, Type: t}
	}
	p.fatalf("cannot convert %s to %s", v.Type, t)
	return Value{}
}

// resize truncates or extends an integer (vector) value to type to.
func (p *Procedure) resize(x ir.Value, to ir.Type, signed bool) ir.Value {
	fb, tb := ir.IntBits(x.Type()), ir.IntBits(to)
	switch {
	case fb > tb:
		return p.b.Cast(ir.CastTrunc, x, to)
	case fb < tb && signed:
		return p.b.Cast(ir.CastSExt, x, to)
	case fb < tb:
		return p.b.Cast(ir.CastZExt, x, to)
	}
	return x
}

// TupleValue returns element i of a tuple-typed value, consulting the
// tuple-fix map for reconstructed split results.
func (p *Procedure) TupleValue(v Value, i int) Value {
	if fix, ok := p.tupleFix[v.IR]; ok {
		return fix[i]
	}
	tup, ok := v.Type.Underlying().(*types.Tuple)
	if !ok {
		p.fatalf("tuple element %d of %s", i, v.Type)
	}
	return Value{IR: p.b.ExtractValue(v.IR, i), Type: tup.Vars[i].Type}
}

// Values expands a tuple into its elements; other values yield themselves.
func (p *Procedure) Values(v Value) []Value {
	if v.Type == nil {
		return []Value{v}
	}
	tup, ok := v.Type.Underlying().(*types.Tuple)
	if !ok {
		return []Value{v}
	}
	out := make([]Value, tup.Len())
	for i := range out {
		out[i] = p.TupleValue(v, i)
	}
	return out
}

// TupleFix returns the components recorded for a split-return handle.
func (p *Procedure) TupleFix(v ir.Value) ([]Value, bool) {
	fix, ok := p.tupleFix[v]
	return fix, ok
}

func (p *Procedure) memCopy(dst, src ir.Value, size ir.Value, overlapping bool) {
	name := "llvm.memcpy"
	if overlapping {
		name = "llvm.memmove"
	}
	w := p.Module.word()
	p.b.Intrinsic(name, ir.Void, []ir.Type{ir.Ptr, ir.Ptr, w}, dst, src, p.resize(size, w, false), ir.ConstBool(false))
}

func (p *Procedure) memZero(dst ir.Value, size ir.Value, volatile bool) {
	w := p.Module.word()
	p.b.Intrinsic("llvm.memset", ir.Void, []ir.Type{ir.Ptr, w}, dst, ir.ConstIntOf(ir.I8, 0), p.resize(size, w, false), ir.ConstBool(volatile))
}

func (p *Procedure) sizeConst(t types.Type) ir.Value {
	return ir.ConstIntOf(p.Module.word(), p.Module.Sizes.SizeOf(t))
}
