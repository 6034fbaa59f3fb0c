package interp

import (
	"math"

	"github.com/GriffinCanCode/callgen/pkg/ir"
)

type frame struct {
	m    *Machine
	fn   *ir.Function
	vals map[ir.Value]Val
}

func (m *Machine) call(f *ir.Function, args []Val) Val {
	if f.IsDeclaration() {
		ext, ok := m.Externals[f.Name]
		if !ok {
			trapf("call to undefined function %s", f.Name)
		}
		return ext(m, args)
	}
	if len(args) < len(f.Params) {
		trapf("%s: %d arguments for %d parameters", f.Name, len(args), len(f.Params))
	}
	fr := &frame{m: m, fn: f, vals: make(map[ir.Value]Val)}
	for i, p := range f.Params {
		fr.vals[p] = args[i]
	}
	blk := f.Blocks[0]
	for {
		for _, in := range blk.Insts {
			m.steps++
			if m.MaxSteps > 0 && m.steps > m.MaxSteps {
				trapf("step limit exceeded in %s", f.Name)
			}
			fr.exec(in)
		}
		switch t := blk.Term.(type) {
		case *ir.Ret:
			if t.Val == nil {
				return nil
			}
			return fr.get(t.Val)
		case *ir.Br:
			blk = t.Dest
		case *ir.CondBr:
			if fr.get(t.Cond).(uint64) != 0 {
				blk = t.Then
			} else {
				blk = t.Else
			}
		case *ir.Unreachable:
			trapf("reached unreachable in %s", f.Name)
		default:
			trapf("block %s in %s has no terminator", blk.Name, f.Name)
		}
	}
}

func (fr *frame) get(v ir.Value) Val {
	switch v.(type) {
	case *ir.ConstInt, *ir.ConstFloat, *ir.ConstNull, *ir.ConstZero, *ir.ConstUndef,
		*ir.ConstVector, *ir.ConstStruct, *ir.ConstArray, *ir.Global, *ir.Function:
		return fr.m.constant(v)
	}
	r, ok := fr.vals[v]
	if !ok {
		trapf("%s: use of undefined value %s", fr.fn.Name, v.Ident())
	}
	return r
}

func (fr *frame) args(vs []ir.Value) []Val {
	out := make([]Val, len(vs))
	for i, v := range vs {
		out[i] = fr.get(v)
	}
	return out
}

func (fr *frame) exec(in ir.Inst) {
	m := fr.m
	switch i := in.(type) {
	case *ir.Alloca:
		align := i.Align
		if a := m.dl.AlignOf(i.Elem); a > align {
			align = a
		}
		fr.vals[i] = m.alloc(m.dl.SizeOf(i.Elem), align)
	case *ir.Load:
		fr.vals[i] = m.Load(i.Type(), fr.get(i.Ptr).(uint64))
	case *ir.Store:
		m.Store(i.Val.Type(), fr.get(i.Ptr).(uint64), fr.get(i.Val))
	case *ir.BinOp:
		fr.vals[i] = lanewise(i.Type(), func(t ir.Type, l int) Val {
			return binop(i.Op, t, lane(fr.get(i.X), l), lane(fr.get(i.Y), l))
		})
	case *ir.UnOp:
		fr.vals[i] = lanewise(i.Type(), func(t ir.Type, l int) Val {
			x := lane(fr.get(i.X), l)
			switch i.Op {
			case ir.OpNeg:
				return mask(-x.(uint64), t)
			case ir.OpFNeg:
				return -x.(float64)
			}
			return mask(^x.(uint64), t)
		})
	case *ir.ICmp:
		st := ir.ScalarOf(i.X.Type())
		fr.vals[i] = lanewise(i.Type(), func(_ ir.Type, l int) Val {
			return icmp(i.Pred, st, lane(fr.get(i.X), l).(uint64), lane(fr.get(i.Y), l).(uint64))
		})
	case *ir.FCmp:
		fr.vals[i] = lanewise(i.Type(), func(_ ir.Type, l int) Val {
			return fcmp(i.Pred, lane(fr.get(i.X), l).(float64), lane(fr.get(i.Y), l).(float64))
		})
	case *ir.Select:
		cond := fr.get(i.Cond)
		if c, ok := cond.(uint64); ok {
			if c != 0 {
				fr.vals[i] = fr.get(i.X)
			} else {
				fr.vals[i] = fr.get(i.Y)
			}
			return
		}
		fr.vals[i] = lanewise(i.Type(), func(_ ir.Type, l int) Val {
			if lane(cond, l).(uint64) != 0 {
				return lane(fr.get(i.X), l)
			}
			return lane(fr.get(i.Y), l)
		})
	case *ir.Cast:
		fr.vals[i] = fr.cast(i)
	case *ir.ExtractElement:
		vec := fr.get(i.Vec).([]Val)
		idx := fr.get(i.Index).(uint64)
		if idx >= uint64(len(vec)) {
			trapf("extractelement index %d out of range", idx)
		}
		fr.vals[i] = vec[idx]
	case *ir.InsertElement:
		vec := append([]Val(nil), fr.get(i.Vec).([]Val)...)
		idx := fr.get(i.Index).(uint64)
		if idx >= uint64(len(vec)) {
			trapf("insertelement index %d out of range", idx)
		}
		vec[idx] = fr.get(i.Elem)
		fr.vals[i] = vec
	case *ir.ShuffleVector:
		src := append(append([]Val(nil), fr.get(i.X).([]Val)...), fr.get(i.Y).([]Val)...)
		elem := i.Type().(*ir.VectorType).Elem
		out := make([]Val, len(i.Mask))
		for j, k := range i.Mask {
			if k < 0 {
				out[j] = zeroOf(elem)
			} else {
				out[j] = src[k]
			}
		}
		fr.vals[i] = out
	case *ir.ExtractValue:
		fr.vals[i] = fr.get(i.Agg).([]Val)[i.Index]
	case *ir.InsertValue:
		agg := append([]Val(nil), fr.get(i.Agg).([]Val)...)
		agg[i.Index] = fr.get(i.Val)
		fr.vals[i] = agg
	case *ir.StructGEP:
		fr.vals[i] = fr.get(i.Ptr).(uint64) + uint64(m.dl.FieldOffset(i.Struct, i.Field))
	case *ir.IndexGEP:
		idx := signed(fr.get(i.Index).(uint64), ir.IntBits(i.Index.Type()))
		fr.vals[i] = fr.get(i.Ptr).(uint64) + uint64(idx*int64(m.dl.SizeOf(i.Elem)))
	case *ir.Call:
		addr := fr.get(i.Callee).(uint64)
		callee, ok := m.funcByAddr[addr]
		if !ok {
			trapf("call through invalid function pointer %#x", addr)
		}
		fr.vals[i] = m.call(callee, fr.args(i.Args))
	case *ir.IntrinsicCall:
		fr.vals[i] = m.intrinsic(i, fr.args(i.Args))
	case *ir.AsmCall:
		if m.Asm == nil {
			trapf("inline assembly %q without a handler", i.Asm.Template)
		}
		fr.vals[i] = m.Asm(m, i.Asm, fr.args(i.Args))
	case *ir.AtomicRMW:
		ptr := fr.get(i.Ptr).(uint64)
		t := i.Type()
		old := m.Load(t, ptr).(uint64)
		v := fr.get(i.Val).(uint64)
		var nv uint64
		switch i.Op {
		case ir.RMWXchg:
			nv = v
		case ir.RMWAdd:
			nv = old + v
		case ir.RMWSub:
			nv = old - v
		case ir.RMWAnd:
			nv = old & v
		case ir.RMWNand:
			nv = ^(old & v)
		case ir.RMWOr:
			nv = old | v
		case ir.RMWXor:
			nv = old ^ v
		}
		m.Store(t, ptr, mask(nv, t))
		fr.vals[i] = old
	case *ir.CmpXchg:
		ptr := fr.get(i.Ptr).(uint64)
		t := i.Old.Type()
		cur := m.Load(t, ptr).(uint64)
		ok := cur == fr.get(i.Old).(uint64)
		if ok {
			m.Store(t, ptr, fr.get(i.New))
		}
		fr.vals[i] = []Val{cur, boolVal(ok)}
	case *ir.Fence:
	default:
		trapf("unsupported instruction %T", in)
	}
}

func (fr *frame) cast(i *ir.Cast) Val {
	x := fr.get(i.X)
	from, to := i.X.Type(), i.Type()
	if i.Op == ir.CastBitCast {
		return fr.m.reinterpret(from, to, x)
	}
	sfrom := ir.ScalarOf(from)
	return lanewise(to, func(t ir.Type, l int) Val {
		v := lane(x, l)
		switch i.Op {
		case ir.CastTrunc, ir.CastZExt, ir.CastIntToPtr:
			return mask(v.(uint64), t)
		case ir.CastPtrToInt:
			return mask(v.(uint64), t)
		case ir.CastSExt:
			return mask(uint64(signed(v.(uint64), ir.IntBits(sfrom))), t)
		case ir.CastFPTrunc, ir.CastFPExt:
			return roundFloat(t, v.(float64))
		case ir.CastFPToSI:
			return mask(uint64(int64(v.(float64))), t)
		case ir.CastFPToUI:
			f := v.(float64)
			if f >= math.MaxInt64 {
				return mask(uint64(f), t)
			}
			return mask(uint64(int64(f)), t)
		case ir.CastSIToFP:
			return roundFloat(t, float64(signed(v.(uint64), ir.IntBits(sfrom))))
		case ir.CastUIToFP:
			return roundFloat(t, float64(v.(uint64)))
		}
		trapf("unsupported cast %s", i.Op)
		return nil
	})
}

// lanewise applies fn to each lane of a vector type, or once to a scalar
// with lane index -1.
func lanewise(t ir.Type, fn func(scalar ir.Type, lane int) Val) Val {
	vt, ok := t.(*ir.VectorType)
	if !ok {
		return fn(t, -1)
	}
	out := make([]Val, vt.Len)
	for l := range out {
		out[l] = fn(vt.Elem, l)
	}
	return out
}

func lane(v Val, l int) Val {
	if l < 0 {
		return v
	}
	return v.([]Val)[l]
}

func mask(v uint64, t ir.Type) uint64 {
	switch t := t.(type) {
	case ir.IntType:
		return ir.Mask(v, t.Bits)
	}
	return v
}

func bitsOf(t ir.Type) int {
	if b := ir.IntBits(t); b > 0 {
		return b
	}
	return 64
}

func signed(v uint64, bits int) int64 {
	if bits >= 64 || bits == 0 {
		return int64(v)
	}
	shift := 64 - uint(bits)
	return int64(v<<shift) >> shift
}

func boolVal(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func binop(op ir.BinaryOp, t ir.Type, x, y Val) Val {
	switch op {
	case ir.OpFAdd:
		return roundFloat(t, x.(float64)+y.(float64))
	case ir.OpFSub:
		return roundFloat(t, x.(float64)-y.(float64))
	case ir.OpFMul:
		return roundFloat(t, x.(float64)*y.(float64))
	case ir.OpFDiv:
		return roundFloat(t, x.(float64)/y.(float64))
	case ir.OpFRem:
		return roundFloat(t, math.Mod(x.(float64), y.(float64)))
	}
	a, b := x.(uint64), y.(uint64)
	bits := bitsOf(t)
	switch op {
	case ir.OpAdd:
		return mask(a+b, t)
	case ir.OpSub:
		return mask(a-b, t)
	case ir.OpMul:
		return mask(a*b, t)
	case ir.OpSDiv, ir.OpSRem:
		if b == 0 {
			trapf("integer division by zero")
		}
		sa, sb := signed(a, bits), signed(b, bits)
		if sb == -1 {
			if op == ir.OpSDiv {
				return mask(uint64(-sa), t)
			}
			return uint64(0)
		}
		if op == ir.OpSDiv {
			return mask(uint64(sa/sb), t)
		}
		return mask(uint64(sa%sb), t)
	case ir.OpUDiv:
		if b == 0 {
			trapf("integer division by zero")
		}
		return a / b
	case ir.OpURem:
		if b == 0 {
			trapf("integer division by zero")
		}
		return a % b
	case ir.OpShl:
		if b >= uint64(bits) {
			return uint64(0)
		}
		return mask(a<<b, t)
	case ir.OpLShr:
		if b >= uint64(bits) {
			return uint64(0)
		}
		return a >> b
	case ir.OpAShr:
		if b >= uint64(bits) {
			b = uint64(bits - 1)
		}
		return mask(uint64(signed(a, bits)>>b), t)
	case ir.OpAnd:
		return a & b
	case ir.OpOr:
		return a | b
	case ir.OpXor:
		return a ^ b
	}
	trapf("unsupported binary op %s", op)
	return nil
}

func icmp(p ir.IntPredicate, t ir.Type, a, b uint64) Val {
	bits := bitsOf(t)
	sa, sb := signed(a, bits), signed(b, bits)
	var r bool
	switch p {
	case ir.IntEQ:
		r = a == b
	case ir.IntNE:
		r = a != b
	case ir.IntUGT:
		r = a > b
	case ir.IntUGE:
		r = a >= b
	case ir.IntULT:
		r = a < b
	case ir.IntULE:
		r = a <= b
	case ir.IntSGT:
		r = sa > sb
	case ir.IntSGE:
		r = sa >= sb
	case ir.IntSLT:
		r = sa < sb
	case ir.IntSLE:
		r = sa <= sb
	}
	return boolVal(r)
}

func fcmp(p ir.FloatPredicate, a, b float64) Val {
	nan := math.IsNaN(a) || math.IsNaN(b)
	var r bool
	switch p {
	case ir.FloatOEQ:
		r = a == b
	case ir.FloatOGT:
		r = a > b
	case ir.FloatOGE:
		r = a >= b
	case ir.FloatOLT:
		r = a < b
	case ir.FloatOLE:
		r = a <= b
	case ir.FloatONE:
		r = !nan && a != b
	case ir.FloatUNE:
		r = nan || a != b
	}
	return boolVal(r)
}
