// Package interp executes IR modules on a flat byte-addressed memory. It is
// the reference semantics used to test generated code.
package interp

import (
	"fmt"
	"math"

	"github.com/GriffinCanCode/callgen/pkg/ir"
)

// Val is a runtime value: uint64 for integers and pointers, float64 for
// floats, []Val for vectors and aggregates, nil for void.
type Val = any

// External implements a function that has no body in the module.
type External func(m *Machine, args []Val) Val

// AsmHandler executes an inline assembly call.
type AsmHandler func(m *Machine, asm *ir.InlineAsm, args []Val) Val

// Trap is a runtime fault raised by executed code.
type Trap struct{ Msg string }

func (t *Trap) Error() string { return "interp: " + t.Msg }

func trapf(format string, args ...any) {
	panic(&Trap{Msg: fmt.Sprintf(format, args...)})
}

const funcBase = 1 << 40

// Machine holds memory and global state for one module.
type Machine struct {
	Externals    map[string]External
	Asm          AsmHandler
	CycleCounter uint64
	MaxSteps     int

	mod        *ir.Module
	dl         ir.DataLayout
	mem        []byte
	globals    map[*ir.Global]uint64
	funcAddr   map[*ir.Function]uint64
	funcByAddr map[uint64]*ir.Function
	steps      int
}

// New loads mod, laying out and initializing its globals.
func New(mod *ir.Module) *Machine {
	m := &Machine{
		Externals:  map[string]External{},
		MaxSteps:   1 << 20,
		mod:        mod,
		dl:         mod.DL,
		mem:        make([]byte, 16),
		globals:    map[*ir.Global]uint64{},
		funcAddr:   map[*ir.Function]uint64{},
		funcByAddr: map[uint64]*ir.Function{},
	}
	for i, f := range mod.Functions() {
		addr := uint64(funcBase + i*16)
		m.funcAddr[f] = addr
		m.funcByAddr[addr] = f
	}
	globals := mod.Globals()
	for _, g := range globals {
		align := g.Align
		if a := m.dl.AlignOf(g.Elem); a > align {
			align = a
		}
		m.globals[g] = m.alloc(m.dl.SizeOf(g.Elem), align)
	}
	for _, g := range globals {
		if g.Init != nil {
			m.Store(g.Elem, m.globals[g], m.constant(g.Init))
		}
	}
	return m
}

// Call runs the named function.
func (m *Machine) Call(name string, args ...Val) (res Val, err error) {
	f, ok := m.mod.Function(name)
	if !ok {
		return nil, fmt.Errorf("interp: no function %q", name)
	}
	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(*Trap)
			if !ok {
				panic(r)
			}
			err = t
		}
	}()
	m.steps = 0
	return m.call(f, args), nil
}

// Alloc reserves zeroed memory for a value of type t.
func (m *Machine) Alloc(t ir.Type) uint64 {
	return m.alloc(m.dl.SizeOf(t), m.dl.AlignOf(t))
}

// GlobalAddr returns the address of a global.
func (m *Machine) GlobalAddr(name string) uint64 {
	g, ok := m.mod.Global(name)
	if !ok {
		panic(fmt.Sprintf("interp: no global %q", name))
	}
	return m.globals[g]
}

// FuncAddr returns the address assigned to a function.
func (m *Machine) FuncAddr(name string) uint64 {
	f, ok := m.mod.Function(name)
	if !ok {
		panic(fmt.Sprintf("interp: no function %q", name))
	}
	return m.funcAddr[f]
}

func (m *Machine) alloc(size, align int) uint64 {
	if align < 1 {
		align = 1
	}
	addr := (len(m.mem) + align - 1) / align * align
	if size < 1 {
		size = 1
	}
	need := addr + size
	if need > len(m.mem) {
		m.mem = append(m.mem, make([]byte, need-len(m.mem))...)
	}
	return uint64(addr)
}

func (m *Machine) bytes(addr uint64, n int) []byte {
	if addr == 0 || addr+uint64(n) > uint64(len(m.mem)) {
		trapf("memory access out of bounds at %#x (+%d)", addr, n)
	}
	return m.mem[addr : addr+uint64(n)]
}

// Load reads a value of type t at addr.
func (m *Machine) Load(t ir.Type, addr uint64) Val {
	return m.decode(t, m.bytes(addr, m.dl.SizeOf(t)))
}

// Store writes v as type t at addr.
func (m *Machine) Store(t ir.Type, addr uint64, v Val) {
	m.encode(t, v, m.bytes(addr, m.dl.SizeOf(t)))
}

func putUint(buf []byte, v uint64) {
	for i := range buf {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}

func getUint(buf []byte) uint64 {
	var v uint64
	for i := len(buf) - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

func (m *Machine) encode(t ir.Type, v Val, buf []byte) {
	switch t := t.(type) {
	case ir.IntType:
		putUint(buf[:m.dl.SizeOf(t)], v.(uint64))
	case ir.PtrType:
		putUint(buf[:m.dl.PtrSize], v.(uint64))
	case ir.FloatType:
		switch t.Bits {
		case 32:
			putUint(buf[:4], uint64(math.Float32bits(float32(v.(float64)))))
		case 64:
			putUint(buf[:8], math.Float64bits(v.(float64)))
		default:
			trapf("unsupported float width %d", t.Bits)
		}
	case *ir.VectorType:
		lanes := v.([]Val)
		if ir.IntBits(t) == 1 {
			for i := range buf[:m.dl.SizeOf(t)] {
				buf[i] = 0
			}
			for i, l := range lanes {
				if l.(uint64) != 0 {
					buf[i/8] |= 1 << uint(i%8)
				}
			}
			return
		}
		es := m.dl.SizeOf(t.Elem)
		for i, l := range lanes {
			m.encode(t.Elem, l, buf[i*es:])
		}
	case *ir.ArrayType:
		es := m.dl.SizeOf(t.Elem)
		for i, l := range v.([]Val) {
			m.encode(t.Elem, l, buf[i*es:])
		}
	case *ir.StructType:
		for i, f := range v.([]Val) {
			m.encode(t.Fields[i], f, buf[m.dl.FieldOffset(t, i):])
		}
	default:
		trapf("cannot store %s", t)
	}
}

func (m *Machine) decode(t ir.Type, buf []byte) Val {
	switch t := t.(type) {
	case ir.IntType:
		return ir.Mask(getUint(buf[:m.dl.SizeOf(t)]), t.Bits)
	case ir.PtrType:
		return getUint(buf[:m.dl.PtrSize])
	case ir.FloatType:
		switch t.Bits {
		case 32:
			return float64(math.Float32frombits(uint32(getUint(buf[:4]))))
		case 64:
			return math.Float64frombits(getUint(buf[:8]))
		}
		trapf("unsupported float width %d", t.Bits)
	case *ir.VectorType:
		lanes := make([]Val, t.Len)
		if ir.IntBits(t) == 1 {
			for i := range lanes {
				lanes[i] = uint64(buf[i/8]>>uint(i%8)) & 1
			}
			return lanes
		}
		es := m.dl.SizeOf(t.Elem)
		for i := range lanes {
			lanes[i] = m.decode(t.Elem, buf[i*es:])
		}
		return lanes
	case *ir.ArrayType:
		elems := make([]Val, t.Len)
		es := m.dl.SizeOf(t.Elem)
		for i := range elems {
			elems[i] = m.decode(t.Elem, buf[i*es:])
		}
		return elems
	case *ir.StructType:
		fields := make([]Val, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = m.decode(f, buf[m.dl.FieldOffset(t, i):])
		}
		return fields
	}
	trapf("cannot load %s", t)
	return nil
}

// reinterpret reuses the bytes of v as type to.
func (m *Machine) reinterpret(from, to ir.Type, v Val) Val {
	n := m.dl.SizeOf(from)
	if s := m.dl.SizeOf(to); s > n {
		n = s
	}
	buf := make([]byte, n)
	m.encode(from, v, buf)
	return m.decode(to, buf)
}

func zeroOf(t ir.Type) Val {
	switch t := t.(type) {
	case ir.IntType, ir.PtrType:
		return uint64(0)
	case ir.FloatType:
		return float64(0)
	case *ir.VectorType:
		out := make([]Val, t.Len)
		for i := range out {
			out[i] = zeroOf(t.Elem)
		}
		return out
	case *ir.ArrayType:
		out := make([]Val, t.Len)
		for i := range out {
			out[i] = zeroOf(t.Elem)
		}
		return out
	case *ir.StructType:
		out := make([]Val, len(t.Fields))
		for i, f := range t.Fields {
			out[i] = zeroOf(f)
		}
		return out
	}
	return nil
}

func (m *Machine) constant(v ir.Value) Val {
	switch c := v.(type) {
	case *ir.ConstInt:
		return c.V
	case *ir.ConstFloat:
		return roundFloat(c.Typ, c.V)
	case *ir.ConstNull:
		return uint64(0)
	case *ir.ConstZero:
		return zeroOf(c.Typ)
	case *ir.ConstUndef:
		return zeroOf(c.Typ)
	case *ir.ConstVector:
		return m.constants(c.Elems)
	case *ir.ConstStruct:
		return m.constants(c.Fields)
	case *ir.ConstArray:
		return m.constants(c.Elems)
	case *ir.Global:
		return m.globals[c]
	case *ir.Function:
		return m.funcAddr[c]
	}
	trapf("not a constant: %T", v)
	return nil
}

func (m *Machine) constants(vs []ir.Value) []Val {
	out := make([]Val, len(vs))
	for i, v := range vs {
		out[i] = m.constant(v)
	}
	return out
}

func roundFloat(t ir.Type, v float64) float64 {
	if ft, ok := t.(ir.FloatType); ok && ft.Bits == 32 {
		return float64(float32(v))
	}
	return v
}
