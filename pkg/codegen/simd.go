package codegen

import (
	"math"

	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

func (p *Procedure) lowerSimd(bc BuiltinCall) Value {
	switch bc.ID {
	case SimdIndices:
		return p.simdIndices(bc)
	case SimdGather, SimdScatter, SimdMaskedLoad, SimdMaskedStore, SimdMaskedExpandLoad, SimdMaskedCompressStore:
		return p.simdMasked(bc)
	}

	x := p.arg(bc, 0)
	if !types.IsSimdVector(x.Type) {
		p.fatalf("%s of non-vector %s", bc.ID, x.Type)
	}
	elem := types.ScalarOf(x.Type)
	isFloat, unsigned := types.IsFloat(elem), types.IsUnsigned(elem)
	vt := p.Module.IRType(x.Type).(*ir.VectorType)
	b := p.b
	same := func(v ir.Value) Value { return Value{IR: v, Type: x.Type} }

	switch bc.ID {
	case SimdAdd, SimdSub, SimdMul, SimdDiv:
		y := p.Conv(p.arg(bc, 1), x.Type)
		return same(b.BinOp(arithOp(bc.ID, isFloat, unsigned), x.IR, y.IR))
	case SimdRem:
		if isFloat {
			p.fatalf("%s of float vector %s", bc.ID, x.Type)
		}
		y := p.Conv(p.arg(bc, 1), x.Type)
		op := ir.OpSRem
		if unsigned {
			op = ir.OpURem
		}
		return same(b.BinOp(op, x.IR, y.IR))
	case SimdShl, SimdShr, SimdShlMasked, SimdShrMasked:
		if isFloat {
			p.fatalf("%s of float vector %s", bc.ID, x.Type)
		}
		return same(p.simdShift(bc.ID, x.IR, p.arg(bc, 1).IR, unsigned))
	case SimdAddSat, SimdSubSat:
		if isFloat {
			p.fatalf("%s of float vector %s", bc.ID, x.Type)
		}
		y := p.Conv(p.arg(bc, 1), x.Type)
		name := "llvm." + signPrefix(unsigned) + "add.sat"
		if bc.ID == SimdSubSat {
			name = "llvm." + signPrefix(unsigned) + "sub.sat"
		}
		return same(b.Intrinsic(name, vt, []ir.Type{vt}, x.IR, y.IR))
	case SimdBitAnd, SimdBitOr, SimdBitXor, SimdBitAndNot:
		y := p.Conv(p.arg(bc, 1), x.Type)
		return same(p.simdBitwise(bc.ID, x.IR, y.IR))
	case SimdNeg:
		if isFloat {
			return same(b.UnOp(ir.OpFNeg, x.IR))
		}
		return same(b.UnOp(ir.OpNeg, x.IR))
	case SimdAbs:
		switch {
		case isFloat:
			return same(b.Intrinsic("llvm.fabs", vt, []ir.Type{vt}, x.IR))
		case unsigned:
			return x
		}
		return same(b.Intrinsic("llvm.abs", vt, []ir.Type{vt}, x.IR, ir.ConstBool(false)))
	case SimdMin, SimdMax:
		y := p.Conv(p.arg(bc, 1), x.Type)
		return same(p.minMax(bc.ID == SimdMin, x.IR, y.IR, isFloat, unsigned))
	case SimdClamp:
		lo := p.Conv(p.arg(bc, 1), x.Type)
		hi := p.Conv(p.arg(bc, 2), x.Type)
		v := p.minMax(false, x.IR, lo.IR, isFloat, unsigned)
		return same(p.minMax(true, v, hi.IR, isFloat, unsigned))
	case SimdLanesEq, SimdLanesNe, SimdLanesLt, SimdLanesLe, SimdLanesGt, SimdLanesGe:
		y := p.Conv(p.arg(bc, 1), x.Type)
		return p.simdCompare(bc, x, y.IR, isFloat, unsigned)
	case SimdExtract:
		idx := p.resize(p.arg(bc, 1).IR, ir.I32, false)
		return Value{IR: b.ExtractElement(x.IR, idx), Type: elem}
	case SimdReplace:
		idx := p.resize(p.arg(bc, 1).IR, ir.I32, false)
		v := p.Conv(p.arg(bc, 2), elem)
		return same(b.InsertElement(x.IR, v.IR, idx))
	case SimdReduceAddBisect, SimdReduceMulBisect, SimdReduceAddOrdered, SimdReduceMulOrdered,
		SimdReduceAddPairs, SimdReduceMulPairs, SimdReduceMin, SimdReduceMax,
		SimdReduceAnd, SimdReduceOr, SimdReduceXor, SimdReduceAny, SimdReduceAll:
		return p.simdReduce(bc, x, isFloat, unsigned)
	case SimdShuffle:
		y := p.Conv(p.arg(bc, 1), x.Type)
		mask := make([]int, len(bc.Args)-2)
		for i := range mask {
			mask[i] = int(p.constArg(bc, i+2))
			if mask[i] < 0 || mask[i] >= 2*vt.Len {
				p.fatalf("%s: index %d out of range", bc.ID, mask[i])
			}
		}
		t := &types.SimdVector{Elem: elem, Len: int64(len(mask))}
		return Value{IR: b.ShuffleVector(x.IR, y.IR, mask), Type: t}
	case SimdSelect:
		cond := p.toMask(x.IR)
		a := p.arg(bc, 1)
		c := p.Conv(p.arg(bc, 2), a.Type)
		return Value{IR: b.Select(cond, a.IR, c.IR), Type: a.Type}
	case SimdRuntimeSwizzle:
		idx := p.Conv(p.arg(bc, 1), x.Type)
		return same(p.runtimeSwizzle(x.IR, idx.IR, elem))
	case SimdCeil, SimdFloor, SimdTrunc, SimdNearest:
		if !isFloat {
			return x
		}
		return same(b.Intrinsic(roundingIntrinsic[bc.ID], vt, []ir.Type{vt}, x.IR))
	case SimdToBits:
		t := bc.Result
		if t == nil {
			t = &types.SimdVector{Elem: unsignedOfSize(p.Module.Sizes.SizeOf(elem)), Len: int64(vt.Len)}
		}
		return Value{IR: p.transmute(x.IR, p.Module.IRType(t)), Type: t}
	case SimdLanesReverse:
		mask := make([]int, vt.Len)
		for i := range mask {
			mask[i] = vt.Len - 1 - i
		}
		return same(b.ShuffleVector(x.IR, x.IR, mask))
	case SimdLanesRotateLeft, SimdLanesRotateRight:
		k := int(p.constArg(bc, 1))
		if bc.ID == SimdLanesRotateRight {
			k = -k
		}
		n := vt.Len
		mask := make([]int, n)
		for i := range mask {
			mask[i] = ((i+k)%n + n) % n
		}
		return same(b.ShuffleVector(x.IR, x.IR, mask))
	case SimdExtractLsbs, SimdExtractMsbs:
		return p.simdExtractBits(bc, x, vt)
	}
	p.fatalf("unhandled builtin %s", bc.ID)
	return Value{}
}

var roundingIntrinsic = map[BuiltinID]string{
	SimdCeil:    "llvm.ceil",
	SimdFloor:   "llvm.floor",
	SimdTrunc:   "llvm.trunc",
	SimdNearest: "llvm.nearbyint",
}

func signPrefix(unsigned bool) string {
	if unsigned {
		return "u"
	}
	return "s"
}

func unsignedOfSize(size int64) types.Type {
	switch size {
	case 1:
		return types.Uint8
	case 2:
		return types.Uint16
	case 4:
		return types.Uint32
	}
	return types.Uint64
}

func arithOp(id BuiltinID, isFloat, unsigned bool) ir.BinaryOp {
	switch id {
	case SimdAdd:
		if isFloat {
			return ir.OpFAdd
		}
		return ir.OpAdd
	case SimdSub:
		if isFloat {
			return ir.OpFSub
		}
		return ir.OpSub
	case SimdMul:
		if isFloat {
			return ir.OpFMul
		}
		return ir.OpMul
	}
	switch {
	case isFloat:
		return ir.OpFDiv
	case unsigned:
		return ir.OpUDiv
	}
	return ir.OpSDiv
}

// simdShift shifts x by y. The masked forms reduce the amount modulo the
// lane width; the checked forms yield zero for amounts of at least the
// lane width.
func (p *Procedure) simdShift(id BuiltinID, x, y ir.Value, unsigned bool) ir.Value {
	t := x.Type()
	bits := int64(ir.IntBits(t))
	amt := p.resize(y, t, false)
	op := ir.OpShl
	if id == SimdShr || id == SimdShrMasked {
		op = ir.OpAShr
		if unsigned {
			op = ir.OpLShr
		}
	}
	if id == SimdShlMasked || id == SimdShrMasked {
		amt = p.b.BinOp(ir.OpAnd, amt, ir.ScalarConst(t, bits-1))
		return p.b.BinOp(op, x, amt)
	}
	shifted := p.b.BinOp(op, x, amt)
	// Range check the amount before truncation can fold it into range.
	checked := amt
	if ir.IntBits(y.Type()) > ir.IntBits(t) {
		checked = y
	}
	inRange := p.b.ICmp(ir.IntULT, checked, ir.ScalarConst(checked.Type(), bits))
	return p.b.Select(inRange, shifted, ir.Zero(t))
}

func (p *Procedure) simdBitwise(id BuiltinID, x, y ir.Value) ir.Value {
	t := x.Type()
	it := t
	if ir.IsFloat(t) {
		it = ir.WithScalar(t, ir.Int(ir.ScalarOf(t).(ir.FloatType).Bits))
		x = p.b.Cast(ir.CastBitCast, x, it)
		y = p.b.Cast(ir.CastBitCast, y, it)
	}
	var r ir.Value
	switch id {
	case SimdBitAnd:
		r = p.b.BinOp(ir.OpAnd, x, y)
	case SimdBitOr:
		r = p.b.BinOp(ir.OpOr, x, y)
	case SimdBitXor:
		r = p.b.BinOp(ir.OpXor, x, y)
	default:
		r = p.b.BinOp(ir.OpAnd, x, p.b.UnOp(ir.OpNot, y))
	}
	if it != t {
		r = p.b.Cast(ir.CastBitCast, r, t)
	}
	return r
}

func (p *Procedure) minMax(isMin bool, x, y ir.Value, isFloat, unsigned bool) ir.Value {
	t := x.Type()
	var name string
	switch {
	case isFloat && isMin:
		name = "llvm.minnum"
	case isFloat:
		name = "llvm.maxnum"
	case isMin:
		name = "llvm." + signPrefix(unsigned) + "min"
	default:
		name = "llvm." + signPrefix(unsigned) + "max"
	}
	return p.b.Intrinsic(name, t, []ir.Type{t}, x, y)
}

var (
	intPreds = map[BuiltinID][2]ir.IntPredicate{
		SimdLanesEq: {ir.IntEQ, ir.IntEQ},
		SimdLanesNe: {ir.IntNE, ir.IntNE},
		SimdLanesLt: {ir.IntSLT, ir.IntULT},
		SimdLanesLe: {ir.IntSLE, ir.IntULE},
		SimdLanesGt: {ir.IntSGT, ir.IntUGT},
		SimdLanesGe: {ir.IntSGE, ir.IntUGE},
	}
	floatPreds = map[BuiltinID]ir.FloatPredicate{
		SimdLanesEq: ir.FloatOEQ,
		SimdLanesNe: ir.FloatUNE,
		SimdLanesLt: ir.FloatOLT,
		SimdLanesLe: ir.FloatOLE,
		SimdLanesGt: ir.FloatOGT,
		SimdLanesGe: ir.FloatOGE,
	}
)

// simdCompare yields an all-ones lane where the comparison holds.
func (p *Procedure) simdCompare(bc BuiltinCall, x Value, y ir.Value, isFloat, unsigned bool) Value {
	var cmp ir.Value
	if isFloat {
		cmp = p.b.FCmp(floatPreds[bc.ID], x.IR, y)
	} else {
		preds := intPreds[bc.ID]
		pred := preds[0]
		if unsigned {
			pred = preds[1]
		}
		cmp = p.b.ICmp(pred, x.IR, y)
	}
	t := bc.Result
	if t == nil {
		elem := types.ScalarOf(x.Type)
		t = &types.SimdVector{Elem: unsignedOfSize(p.Module.Sizes.SizeOf(elem)), Len: types.VectorLen(x.Type)}
	}
	return Value{IR: p.b.Cast(ir.CastSExt, cmp, p.Module.IRType(t)), Type: t}
}

// toMask converts a vector of booleans or integers to a lane mask.
func (p *Procedure) toMask(v ir.Value) ir.Value {
	if ir.IntBits(v.Type()) == 1 {
		return v
	}
	return p.b.ICmp(ir.IntNE, v, ir.Zero(v.Type()))
}

func (p *Procedure) simdReduce(bc BuiltinCall, x Value, isFloat, unsigned bool) Value {
	vt := p.Module.IRType(x.Type).(*ir.VectorType)
	elem := types.ScalarOf(x.Type)
	et := vt.Elem
	out := func(v ir.Value) Value { return Value{IR: v, Type: elem} }
	op := func(mul bool) ir.BinaryOp {
		switch {
		case isFloat && mul:
			return ir.OpFMul
		case isFloat:
			return ir.OpFAdd
		case mul:
			return ir.OpMul
		}
		return ir.OpAdd
	}

	switch bc.ID {
	case SimdReduceAddBisect, SimdReduceMulBisect:
		return out(p.reduceTree(bc, x.IR, op(bc.ID == SimdReduceMulBisect), false))
	case SimdReduceAddPairs, SimdReduceMulPairs:
		return out(p.reduceTree(bc, x.IR, op(bc.ID == SimdReduceMulPairs), true))
	case SimdReduceAddOrdered, SimdReduceMulOrdered:
		mul := bc.ID == SimdReduceMulOrdered
		if isFloat {
			ft := et.(ir.FloatType)
			start := ir.ConstFloatOf(ft, math.Copysign(0, -1))
			name := "llvm.vector.reduce.fadd"
			if mul {
				start = ir.ConstFloatOf(ft, 1)
				name = "llvm.vector.reduce.fmul"
			}
			return out(p.b.Intrinsic(name, et, []ir.Type{vt}, start, x.IR))
		}
		name := "llvm.vector.reduce.add"
		if mul {
			name = "llvm.vector.reduce.mul"
		}
		return out(p.b.Intrinsic(name, et, []ir.Type{vt}, x.IR))
	case SimdReduceMin, SimdReduceMax:
		kind := "min"
		if bc.ID == SimdReduceMax {
			kind = "max"
		}
		name := "llvm.vector.reduce." + signPrefix(unsigned) + kind
		if isFloat {
			name = "llvm.vector.reduce.f" + kind
		}
		return out(p.b.Intrinsic(name, et, []ir.Type{vt}, x.IR))
	case SimdReduceAnd, SimdReduceOr, SimdReduceXor:
		if isFloat {
			p.fatalf("%s of float vector %s", bc.ID, x.Type)
		}
		name := map[BuiltinID]string{
			SimdReduceAnd: "llvm.vector.reduce.and",
			SimdReduceOr:  "llvm.vector.reduce.or",
			SimdReduceXor: "llvm.vector.reduce.xor",
		}[bc.ID]
		return out(p.b.Intrinsic(name, et, []ir.Type{vt}, x.IR))
	case SimdReduceAny, SimdReduceAll:
		if isFloat {
			p.fatalf("%s of float vector %s", bc.ID, x.Type)
		}
		mask := p.toMask(x.IR)
		name := "llvm.vector.reduce.or"
		if bc.ID == SimdReduceAll {
			name = "llvm.vector.reduce.and"
		}
		bit := p.b.Intrinsic(name, ir.I1, []ir.Type{mask.Type()}, mask)
		t := bc.Result
		if t == nil {
			t = types.Bool
		}
		return Value{IR: p.resize(bit, p.Module.IRType(t), false), Type: t}
	}
	p.fatalf("unhandled builtin %s", bc.ID)
	return Value{}
}

// reduceTree combines halves of the vector until one lane remains: low and
// high halves for bisect, even and odd lanes for pairs.
func (p *Procedure) reduceTree(bc BuiltinCall, v ir.Value, op ir.BinaryOp, pairs bool) ir.Value {
	n := v.Type().(*ir.VectorType).Len
	if n&(n-1) != 0 {
		p.fatalf("%s needs a power of two lane count, got %d", bc.ID, n)
	}
	for n > 1 {
		half := n / 2
		lo, hi := make([]int, half), make([]int, half)
		for i := 0; i < half; i++ {
			if pairs {
				lo[i], hi[i] = 2*i, 2*i+1
			} else {
				lo[i], hi[i] = i, half+i
			}
		}
		a := p.b.ShuffleVector(v, v, lo)
		c := p.b.ShuffleVector(v, v, hi)
		v = p.b.BinOp(op, a, c)
		n = half
	}
	return p.b.ExtractElement(v, ir.ConstIntOf(ir.I32, 0))
}

func (p *Procedure) simdIndices(bc BuiltinCall) Value {
	t := bc.Result
	if !types.IsSimdVector(t) {
		p.fatalf("%s needs a vector result, got %v", bc.ID, t)
	}
	n := types.VectorLen(t)
	elems := make([]any, n)
	for i := range elems {
		elems[i] = i
	}
	return p.Module.ConstValue(t, elems)
}

// simdExtractBits packs the low or sign bit of each lane into an integer,
// lane 0 in bit 0.
func (p *Procedure) simdExtractBits(bc BuiltinCall, x Value, vt *ir.VectorType) Value {
	v := x.IR
	if ir.IsFloat(vt) {
		v = p.b.Cast(ir.CastBitCast, v, ir.WithScalar(vt, ir.Int(vt.Elem.(ir.FloatType).Bits)))
	}
	bitsT := ir.Vector(vt.Len, ir.I1)
	var lanes ir.Value
	if bc.ID == SimdExtractLsbs {
		lanes = p.b.Cast(ir.CastTrunc, v, bitsT)
	} else {
		lanes = p.b.ICmp(ir.IntSLT, v, ir.Zero(v.Type()))
	}
	packed := p.b.Cast(ir.CastBitCast, lanes, ir.Int(vt.Len))
	t := bc.Result
	if t == nil {
		t = unsignedOfSize(int64(max(1, (vt.Len+7)/8)))
	}
	return Value{IR: p.resize(packed, p.Module.IRType(t), false), Type: t}
}

// simdMasked lowers the gather, scatter and masked memory builtins. The
// operand order is (address, values, mask).
func (p *Procedure) simdMasked(bc BuiltinCall) Value {
	addr, val, mask := p.arg(bc, 0), p.arg(bc, 1), p.arg(bc, 2)
	if !types.IsSimdVector(val.Type) {
		p.fatalf("%s of non-vector %s", bc.ID, val.Type)
	}
	vt := p.Module.IRType(val.Type)
	m := p.toMask(mask.IR)
	align := ir.ConstIntOf(ir.I32, int64(p.Module.alignOf(types.ScalarOf(val.Type))))
	b := p.b
	switch bc.ID {
	case SimdGather:
		pt := addr.IR.Type()
		return Value{IR: b.Intrinsic("llvm.masked.gather", vt, []ir.Type{vt, pt}, addr.IR, align, m, val.IR), Type: val.Type}
	case SimdScatter:
		pt := addr.IR.Type()
		b.Intrinsic("llvm.masked.scatter", ir.Void, []ir.Type{vt, pt}, val.IR, addr.IR, align, m)
		return Value{}
	case SimdMaskedLoad:
		return Value{IR: b.Intrinsic("llvm.masked.load", vt, []ir.Type{vt, ir.Ptr}, addr.IR, align, m, val.IR), Type: val.Type}
	case SimdMaskedStore:
		b.Intrinsic("llvm.masked.store", ir.Void, []ir.Type{vt, ir.Ptr}, val.IR, addr.IR, align, m)
		return Value{}
	case SimdMaskedExpandLoad:
		return Value{IR: b.Intrinsic("llvm.masked.expandload", vt, []ir.Type{vt}, addr.IR, m, val.IR), Type: val.Type}
	case SimdMaskedCompressStore:
		b.Intrinsic("llvm.masked.compressstore", ir.Void, []ir.Type{vt}, val.IR, addr.IR, m)
		return Value{}
	}
	p.fatalf("unhandled builtin %s", bc.ID)
	return Value{}
}
