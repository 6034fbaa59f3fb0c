package interp

import (
	"math"
	"math/big"
	"math/bits"
	"strings"

	"github.com/GriffinCanCode/callgen/pkg/ir"
)

func (m *Machine) intrinsic(i *ir.IntrinsicCall, args []Val) Val {
	t := i.Type()
	argType := func(n int) ir.Type { return i.Args[n].Type() }

	switch name := i.Name; {
	case name == "llvm.memcpy" || name == "llvm.memmove":
		n := int(args[2].(uint64))
		if n > 0 {
			copy(m.bytes(args[0].(uint64), n), m.bytes(args[1].(uint64), n))
		}
		return nil
	case name == "llvm.memset":
		n := int(args[2].(uint64))
		if n > 0 {
			buf := m.bytes(args[0].(uint64), n)
			for j := range buf {
				buf[j] = byte(args[1].(uint64))
			}
		}
		return nil

	case strings.HasSuffix(name, ".sat") && !strings.Contains(name, ".fix"):
		op := strings.TrimSuffix(strings.TrimPrefix(name, "llvm."), ".sat")
		return lanewise(t, func(st ir.Type, l int) Val {
			return saturate(op, bitsOf(st), lane(args[0], l).(uint64), lane(args[1], l).(uint64))
		})
	case strings.HasSuffix(name, ".with.overflow"):
		op := strings.TrimSuffix(strings.TrimPrefix(name, "llvm."), ".with.overflow")
		vt := argType(0)
		val := lanewise(vt, func(st ir.Type, l int) Val {
			r, _ := overflow(op, bitsOf(st), lane(args[0], l).(uint64), lane(args[1], l).(uint64))
			return r
		})
		ovf := lanewise(ir.WithScalar(vt, ir.I1), func(_ ir.Type, l int) Val {
			_, o := overflow(op, bitsOf(ir.ScalarOf(vt)), lane(args[0], l).(uint64), lane(args[1], l).(uint64))
			return boolVal(o)
		})
		return []Val{val, ovf}
	case strings.Contains(name, ".fix"):
		scale := uint(args[2].(uint64))
		return lanewise(t, func(st ir.Type, l int) Val {
			return fixed(strings.TrimPrefix(name, "llvm."), bitsOf(st), scale, lane(args[0], l).(uint64), lane(args[1], l).(uint64))
		})

	case name == "llvm.ctpop" || name == "llvm.cttz" || name == "llvm.ctlz" ||
		name == "llvm.bitreverse" || name == "llvm.bswap":
		return lanewise(t, func(st ir.Type, l int) Val {
			return bitop(name, bitsOf(st), lane(args[0], l).(uint64))
		})
	case name == "llvm.abs":
		return lanewise(t, func(st ir.Type, l int) Val {
			v := lane(args[0], l).(uint64)
			if s := signed(v, bitsOf(st)); s < 0 {
				return mask(uint64(-s), st)
			}
			return v
		})
	case name == "llvm.smin" || name == "llvm.smax" || name == "llvm.umin" || name == "llvm.umax":
		return lanewise(t, func(st ir.Type, l int) Val {
			return minmax(name[5:], bitsOf(st), lane(args[0], l).(uint64), lane(args[1], l).(uint64))
		})

	case strings.HasPrefix(name, "llvm.vector.reduce."):
		return m.reduce(strings.TrimPrefix(name, "llvm.vector.reduce."), t, argType(len(args)-1), args)

	case name == "llvm.x86.ssse3.pshuf.b.128" || name == "llvm.x86.avx2.pshuf.b" || name == "llvm.x86.avx512.pshuf.b.512":
		return pshufb(args[0].([]Val), args[1].([]Val))
	case strings.HasPrefix(name, "llvm.aarch64.neon.tbl"):
		return tableLookup(args[:len(args)-1], args[len(args)-1].([]Val))
	case strings.HasPrefix(name, "llvm.arm.neon.vtbl"):
		return tableLookup(args[:len(args)-1], args[len(args)-1].([]Val))
	case name == "llvm.wasm.swizzle":
		return tableLookup(args[:1], args[1].([]Val))

	case name == "llvm.sqrt" || name == "llvm.ceil" || name == "llvm.floor" || name == "llvm.trunc" ||
		name == "llvm.nearbyint" || name == "llvm.fabs":
		return lanewise(t, func(st ir.Type, l int) Val {
			return roundFloat(st, unaryFloat(name, lane(args[0], l).(float64)))
		})
	case name == "llvm.fma":
		return lanewise(t, func(st ir.Type, l int) Val {
			return roundFloat(st, math.FMA(lane(args[0], l).(float64), lane(args[1], l).(float64), lane(args[2], l).(float64)))
		})
	case name == "llvm.minnum" || name == "llvm.maxnum":
		return lanewise(t, func(st ir.Type, l int) Val {
			a, b := lane(args[0], l).(float64), lane(args[1], l).(float64)
			if name == "llvm.minnum" {
				return math.Min(a, b)
			}
			return math.Max(a, b)
		})

	case name == "llvm.masked.load":
		ptr := args[0].(uint64)
		vt := t.(*ir.VectorType)
		es := uint64(m.dl.SizeOf(vt.Elem))
		out := make([]Val, vt.Len)
		for l := range out {
			if args[2].([]Val)[l].(uint64) != 0 {
				out[l] = m.Load(vt.Elem, ptr+uint64(l)*es)
			} else {
				out[l] = args[3].([]Val)[l]
			}
		}
		return out
	case name == "llvm.masked.store":
		vt := argType(0).(*ir.VectorType)
		ptr := args[1].(uint64)
		es := uint64(m.dl.SizeOf(vt.Elem))
		for l, v := range args[0].([]Val) {
			if args[3].([]Val)[l].(uint64) != 0 {
				m.Store(vt.Elem, ptr+uint64(l)*es, v)
			}
		}
		return nil
	case name == "llvm.masked.gather":
		vt := t.(*ir.VectorType)
		out := make([]Val, vt.Len)
		for l, p := range args[0].([]Val) {
			if args[2].([]Val)[l].(uint64) != 0 {
				out[l] = m.Load(vt.Elem, p.(uint64))
			} else {
				out[l] = args[3].([]Val)[l]
			}
		}
		return out
	case name == "llvm.masked.scatter":
		vt := argType(0).(*ir.VectorType)
		for l, v := range args[0].([]Val) {
			if args[3].([]Val)[l].(uint64) != 0 {
				m.Store(vt.Elem, args[1].([]Val)[l].(uint64), v)
			}
		}
		return nil
	case name == "llvm.masked.expandload":
		vt := t.(*ir.VectorType)
		ptr := args[0].(uint64)
		es := uint64(m.dl.SizeOf(vt.Elem))
		out := make([]Val, vt.Len)
		for l := range out {
			if args[1].([]Val)[l].(uint64) != 0 {
				out[l] = m.Load(vt.Elem, ptr)
				ptr += es
			} else {
				out[l] = args[2].([]Val)[l]
			}
		}
		return out
	case name == "llvm.masked.compressstore":
		vt := argType(0).(*ir.VectorType)
		ptr := args[1].(uint64)
		es := uint64(m.dl.SizeOf(vt.Elem))
		for l, v := range args[0].([]Val) {
			if args[2].([]Val)[l].(uint64) != 0 {
				m.Store(vt.Elem, ptr, v)
				ptr += es
			}
		}
		return nil

	case name == "llvm.expect":
		return args[0]
	case name == "llvm.trap":
		trapf("trap")
	case name == "llvm.debugtrap", name == "llvm.prefetch":
		return nil
	case name == "llvm.readcyclecounter":
		m.CycleCounter++
		return m.CycleCounter
	}
	trapf("unsupported intrinsic %s", i.Name)
	return nil
}

func bigOf(v uint64, bits int, sign bool) *big.Int {
	if sign {
		return big.NewInt(signed(v, bits))
	}
	return new(big.Int).SetUint64(v)
}

func limits(bits int, sign bool) (lo, hi *big.Int) {
	one := big.NewInt(1)
	if sign {
		hi = new(big.Int).Sub(new(big.Int).Lsh(one, uint(bits-1)), one)
		lo = new(big.Int).Neg(new(big.Int).Lsh(one, uint(bits-1)))
		return lo, hi
	}
	return big.NewInt(0), new(big.Int).Sub(new(big.Int).Lsh(one, uint(bits)), one)
}

func wrap(r *big.Int, bits int) uint64 {
	mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	return new(big.Int).Mod(r, mod).Uint64()
}

func clampBig(r *big.Int, bits int, sign bool) uint64 {
	lo, hi := limits(bits, sign)
	switch {
	case r.Cmp(lo) < 0:
		return wrap(lo, bits)
	case r.Cmp(hi) > 0:
		return wrap(hi, bits)
	}
	return wrap(r, bits)
}

// exact computes op on the mathematical values of a and b.
func exact(op string, bits int, sign bool, a, b uint64) *big.Int {
	x, y := bigOf(a, bits, sign), bigOf(b, bits, sign)
	switch op {
	case "add":
		return x.Add(x, y)
	case "sub":
		return x.Sub(x, y)
	case "mul":
		return x.Mul(x, y)
	case "shl":
		if b >= uint64(bits) {
			b = uint64(bits)
		}
		return x.Lsh(x, uint(b))
	}
	trapf("unsupported arithmetic %s", op)
	return nil
}

func saturate(op string, bits int, a, b uint64) uint64 {
	sign := op[0] == 's'
	return clampBig(exact(op[1:], bits, sign, a, b), bits, sign)
}

func overflow(op string, bits int, a, b uint64) (uint64, bool) {
	sign := op[0] == 's'
	r := exact(op[1:], bits, sign, a, b)
	lo, hi := limits(bits, sign)
	return wrap(r, bits), r.Cmp(lo) < 0 || r.Cmp(hi) > 0
}

func fixed(op string, bits int, scale uint, a, b uint64) uint64 {
	sign := op[0] == 's'
	sat := strings.HasSuffix(op, ".sat")
	x, y := bigOf(a, bits, sign), bigOf(b, bits, sign)
	var r *big.Int
	if strings.HasPrefix(op[1:], "mul") {
		r = x.Mul(x, y)
		r.Rsh(r, scale)
	} else {
		if y.Sign() == 0 {
			trapf("fixed point division by zero")
		}
		x.Lsh(x, scale)
		r = x.Quo(x, y)
	}
	if sat {
		return clampBig(r, bits, sign)
	}
	return wrap(r, bits)
}

func bitop(name string, width int, v uint64) uint64 {
	switch name {
	case "llvm.ctpop":
		return uint64(bits.OnesCount64(v))
	case "llvm.cttz":
		if v == 0 {
			return uint64(width)
		}
		return uint64(bits.TrailingZeros64(v))
	case "llvm.ctlz":
		return uint64(bits.LeadingZeros64(v) - (64 - width))
	case "llvm.bitreverse":
		return bits.Reverse64(v) >> (64 - uint(width))
	}
	return bits.ReverseBytes64(v) >> (64 - uint(width))
}

func minmax(op string, width int, a, b uint64) uint64 {
	less := a < b
	if op[0] == 's' {
		less = signed(a, width) < signed(b, width)
	}
	if (op[1:] == "min") == less {
		return a
	}
	return b
}

func unaryFloat(name string, v float64) float64 {
	switch name {
	case "llvm.sqrt":
		return math.Sqrt(v)
	case "llvm.ceil":
		return math.Ceil(v)
	case "llvm.floor":
		return math.Floor(v)
	case "llvm.trunc":
		return math.Trunc(v)
	case "llvm.nearbyint":
		return math.RoundToEven(v)
	}
	return math.Abs(v)
}

func (m *Machine) reduce(op string, t, vt ir.Type, args []Val) Val {
	switch op {
	case "fadd", "fmul":
		acc := args[0].(float64)
		for _, l := range args[1].([]Val) {
			if op == "fadd" {
				acc = roundFloat(t, acc+l.(float64))
			} else {
				acc = roundFloat(t, acc*l.(float64))
			}
		}
		return acc
	case "fmin", "fmax":
		lanes := args[0].([]Val)
		acc := lanes[0].(float64)
		for _, l := range lanes[1:] {
			if op == "fmin" {
				acc = math.Min(acc, l.(float64))
			} else {
				acc = math.Max(acc, l.(float64))
			}
		}
		return acc
	}
	width := bitsOf(ir.ScalarOf(vt))
	lanes := args[0].([]Val)
	acc := lanes[0].(uint64)
	for _, l := range lanes[1:] {
		v := l.(uint64)
		switch op {
		case "add":
			acc = ir.Mask(acc+v, width)
		case "mul":
			acc = ir.Mask(acc*v, width)
		case "and":
			acc &= v
		case "or":
			acc |= v
		case "xor":
			acc ^= v
		case "smin", "smax", "umin", "umax":
			acc = minmax(op, width, acc, v)
		default:
			trapf("unsupported reduction %s", op)
		}
	}
	return acc
}

// pshufb shuffles within each 16-byte lane; a set high bit selects zero.
func pshufb(src, idx []Val) Val {
	out := make([]Val, len(idx))
	for i, x := range idx {
		k := x.(uint64)
		if k&0x80 != 0 {
			out[i] = uint64(0)
			continue
		}
		base := i / 16 * 16
		out[i] = src[base+int(k&0x0f)]
	}
	return out
}

// tableLookup indexes the concatenated tables; out of range selects zero.
func tableLookup(tables []Val, idx []Val) Val {
	var table []Val
	for _, t := range tables {
		table = append(table, t.([]Val)...)
	}
	out := make([]Val, len(idx))
	for i, x := range idx {
		if k := x.(uint64); k < uint64(len(table)) {
			out[i] = table[k]
		} else {
			out[i] = uint64(0)
		}
	}
	return out
}
