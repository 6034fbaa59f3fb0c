package codegen

import (
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

func (p *Procedure) lowerArith(bc BuiltinCall) Value {
	x := p.arg(bc, 0)
	scalar := types.ScalarOf(x.Type)
	isFloat, unsigned := types.IsFloat(scalar), types.IsUnsigned(scalar)
	t := p.Module.IRType(x.Type)
	b := p.b
	same := func(v ir.Value) Value { return Value{IR: v, Type: x.Type} }
	intOnly := func() {
		if isFloat {
			p.fatalf("%s of float %s", bc.ID, x.Type)
		}
	}
	second := func() ir.Value { return p.Conv(p.arg(bc, 1), x.Type).IR }

	switch bc.ID {
	case OverflowAdd, OverflowSub, OverflowMul:
		intOnly()
		return p.overflowOp(bc, x, second(), unsigned)
	case SaturatingAdd, SaturatingSub:
		intOnly()
		op := "add.sat"
		if bc.ID == SaturatingSub {
			op = "sub.sat"
		}
		return same(b.Intrinsic("llvm."+signPrefix(unsigned)+op, t, []ir.Type{t}, x.IR, second()))
	case FixedPointMul, FixedPointDiv, FixedPointMulSat, FixedPointDivSat:
		intOnly()
		y := second()
		scale := p.constArg(bc, 2)
		if bits := int64(ir.IntBits(t)); scale < 0 || scale >= bits {
			p.fatalf("%s: scale %d out of range for %s", bc.ID, scale, x.Type)
		}
		return same(b.Intrinsic(fixedPointIntrinsic(bc.ID, unsigned), t, []ir.Type{t}, x.IR, y, ir.ConstIntOf(ir.I32, scale)))
	case CountOnes:
		intOnly()
		return same(b.Intrinsic("llvm.ctpop", t, []ir.Type{t}, x.IR))
	case CountZeros:
		intOnly()
		ones := b.Intrinsic("llvm.ctpop", t, []ir.Type{t}, x.IR)
		return same(b.BinOp(ir.OpSub, ir.ScalarConst(t, int64(ir.IntBits(t))), ones))
	case CountTrailingZeros:
		intOnly()
		return same(b.Intrinsic("llvm.cttz", t, []ir.Type{t}, x.IR, ir.ConstBool(false)))
	case CountLeadingZeros:
		intOnly()
		return same(b.Intrinsic("llvm.ctlz", t, []ir.Type{t}, x.IR, ir.ConstBool(false)))
	case ReverseBits:
		intOnly()
		return same(b.Intrinsic("llvm.bitreverse", t, []ir.Type{t}, x.IR))
	case ByteSwap:
		intOnly()
		if ir.IntBits(t)%16 != 0 {
			return x
		}
		return same(b.Intrinsic("llvm.bswap", t, []ir.Type{t}, x.IR))
	case Sqrt:
		if !isFloat {
			p.fatalf("%s of non-float %s", bc.ID, x.Type)
		}
		return same(b.Intrinsic("llvm.sqrt", t, []ir.Type{t}, x.IR))
	case FusedMulAdd:
		if !isFloat {
			p.fatalf("%s of non-float %s", bc.ID, x.Type)
		}
		c := p.Conv(p.arg(bc, 2), x.Type).IR
		return same(b.Intrinsic("llvm.fma", t, []ir.Type{t}, x.IR, second(), c))
	case Expect:
		intOnly()
		return same(b.Intrinsic("llvm.expect", t, []ir.Type{t}, x.IR, second()))
	}
	p.fatalf("unhandled builtin %s", bc.ID)
	return Value{}
}

func fixedPointIntrinsic(id BuiltinID, unsigned bool) string {
	name := "llvm." + signPrefix(unsigned)
	switch id {
	case FixedPointMul:
		return name + "mul.fix"
	case FixedPointDiv:
		return name + "div.fix"
	case FixedPointMulSat:
		return name + "mul.fix.sat"
	}
	return name + "div.fix.sat"
}

// overflowOp returns the wrapped result, paired with the overflow flag when
// the caller asked for a two-value result.
func (p *Procedure) overflowOp(bc BuiltinCall, x Value, y ir.Value, unsigned bool) Value {
	op := map[BuiltinID]string{OverflowAdd: "add", OverflowSub: "sub", OverflowMul: "mul"}[bc.ID]
	t := p.Module.IRType(x.Type)
	ret := ir.Struct(t, ir.WithScalar(t, ir.I1))
	pair := p.b.Intrinsic("llvm."+signPrefix(unsigned)+op+".with.overflow", ret, []ir.Type{t}, x.IR, y)
	val := Value{IR: p.b.ExtractValue(pair, 0), Type: x.Type}

	tup, ok := bc.Result.(*types.Tuple)
	if !ok || tup.Len() != 2 {
		return val
	}
	flag := Value{IR: p.b.ExtractValue(pair, 1), Type: types.LLVMBool}
	return p.makeTuple(tup, []Value{val, p.Conv(flag, tup.Vars[1].Type)})
}
