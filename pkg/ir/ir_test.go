package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestDataLayout(t *testing.T) {
	dl64 := DataLayout{PtrSize: 8}
	dl32 := DataLayout{PtrSize: 4}
	tests := []struct {
		name  string
		dl    DataLayout
		typ   Type
		size  int
		align int
	}{
		{"bool", dl64, I1, 1, 1},
		{"i64", dl64, I64, 8, 8},
		{"ptr64", dl64, Ptr, 8, 8},
		{"ptr32", dl32, Ptr, 4, 4},
		{"padded struct", dl64, Struct(I8, I64, I16), 24, 8},
		{"packed ints", dl64, Struct(I32, I16, I8), 8, 4},
		{"array", dl64, Array(3, I16), 6, 2},
		{"vector", dl64, Vector(4, F32), 16, 16},
		{"wide vector", dl64, Vector(32, I8), 32, 32},
		{"mask vector", dl64, Vector(16, I1), 2, 2},
		{"string header", dl32, Struct(Ptr, I32), 8, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.size, tt.dl.SizeOf(tt.typ))
			assert.Equal(t, tt.align, tt.dl.AlignOf(tt.typ))
		})
	}

	st := Struct(I8, I64, I16)
	assert.Equal(t, 0, dl64.FieldOffset(st, 0))
	assert.Equal(t, 8, dl64.FieldOffset(st, 1))
	assert.Equal(t, 16, dl64.FieldOffset(st, 2))
	assert.Panics(t, func() { dl64.FieldOffset(st, 3) })
}

func TestModuleTablesAreOrdered(t *testing.T) {
	m := NewModule("m", DataLayout{PtrSize: 8})
	sig := &FuncType{Ret: Void}
	for _, n := range []string{"zeta", "alpha", "mid"} {
		m.AddFunction(n, sig)
	}
	var names []string
	for _, f := range m.Functions() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
	assert.Panics(t, func() { m.AddFunction("mid", sig) })

	f, ok := m.Function("alpha")
	require.True(t, ok)
	assert.True(t, f.IsDeclaration())
	_, ok = m.Function("beta")
	assert.False(t, ok)

	g0 := m.AddGlobal("", I32, nil)
	g1 := m.AddGlobal("", I32, nil)
	assert.Equal(t, "ggv$0", g0.Name)
	assert.Equal(t, "ggv$1", g1.Name)
	assert.Equal(t, LinkageInternal, g0.Linkage)
	m.AddGlobal("named", I64, ConstIntOf(I64, 3))
	assert.Panics(t, func() { m.AddGlobal("named", I64, nil) })

	got, ok := m.Global("named")
	require.True(t, ok)
	assert.Equal(t, "3", got.Init.Ident())
}

func TestBuilderMovesPastTerminators(t *testing.T) {
	m := NewModule("m", DataLayout{PtrSize: 8})
	f := m.AddFunction("f", &FuncType{Params: []Type{I32}, Ret: I32})
	b := NewBuilder(f)
	b.SetBlock(b.NewBlock("entry"))
	sum := b.BinOp(OpAdd, f.Params[0], ConstIntOf(I32, 1))
	b.Ret(sum)
	b.BinOp(OpMul, sum, sum)
	b.Unreachable()

	require.Len(t, f.Blocks, 2)
	assert.Equal(t, "entry_0", f.Blocks[0].Name)
	assert.Len(t, f.Blocks[0].Insts, 1)
	assert.Equal(t, "dead_1", f.Blocks[1].Name)
	assert.Equal(t, 4, f.InstructionCount())
	assert.NoError(t, Verify(m))
}

func TestVerifyReportsEveryViolation(t *testing.T) {
	m := NewModule("m", DataLayout{PtrSize: 8})
	callee := m.AddFunction("callee", &FuncType{Params: []Type{I64}, Ret: Void})
	f := m.AddFunction("bad", &FuncType{Params: []Type{I32}, Ret: I64})
	b := NewBuilder(f)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)
	b.BinOp(OpAdd, f.Params[0], ConstIntOf(I64, 1))
	b.Call(callee.Sig, callee, nil, CallConvC)
	b.Load(I32, f.Params[0], 4)
	b.Ret(f.Params[0])
	b.SetBlock(b.NewBlock("open"))
	b.Store(ConstIntOf(I32, 0), ConstIntOf(I64, 0), 4)

	err := Verify(m)
	require.Error(t, err)
	errs := multierr.Errors(err)
	var msgs []string
	for _, e := range errs {
		var ve *VerifyError
		require.ErrorAs(t, e, &ve)
		assert.Equal(t, "bad", ve.Function)
		msgs = append(msgs, ve.Message)
	}
	assert.Contains(t, msgs, "add operands differ: i32 vs i64")
	assert.Contains(t, msgs, "call passes 0 args to void (i64)")
	assert.Contains(t, msgs, "load through non-pointer i32")
	assert.Contains(t, msgs, "ret i32 in function returning i64")
	assert.Contains(t, msgs, "block is not terminated")
	assert.Contains(t, msgs, "store through non-pointer i64")
}

func TestVariadicCallArity(t *testing.T) {
	m := NewModule("m", DataLayout{PtrSize: 8})
	printf := m.AddFunction("printf", &FuncType{Params: []Type{Ptr}, Ret: I32, Variadic: true})
	f := m.AddFunction("f", &FuncType{Ret: Void})
	b := NewBuilder(f)
	b.SetBlock(b.NewBlock("entry"))
	b.Call(printf.Sig, printf, []Value{Null(), ConstIntOf(I32, 1), ConstFloatOf(F64, 2)}, CallConvC)
	b.Ret(nil)
	assert.NoError(t, Verify(m))
}

func TestConstants(t *testing.T) {
	assert.Equal(t, uint64(0xff), ConstIntOf(I8, -1).V)
	assert.Equal(t, int64(-1), ConstIntOf(I8, -1).Signed())
	assert.Equal(t, uint64(0x7f), Mask(0x17f, 7))
	assert.Equal(t, ^uint64(0), Mask(^uint64(0), 64))

	splat := ScalarConst(Vector(4, I16), 7)
	cv, ok := splat.(*ConstVector)
	require.True(t, ok)
	assert.Len(t, cv.Elems, 4)
	assert.Equal(t, "<i16 7, i16 7, i16 7, i16 7>", cv.Ident())
	assert.Panics(t, func() { ScalarConst(Ptr, 1) })

	assert.Equal(t, Null(), Zero(Ptr))
	assert.IsType(t, &ConstZero{}, Zero(Struct(I8)))
	assert.True(t, IsConstant(ConstBool(true)))
	assert.False(t, IsConstant(&Param{Typ: I8}))
}

func TestTypeHelpers(t *testing.T) {
	v := Vector(8, I16)
	assert.Equal(t, 16, IntBits(v))
	assert.Equal(t, 0, IntBits(F32))
	assert.True(t, IsFloat(Vector(2, F64)))
	assert.Equal(t, "<8 x i1>", WithScalar(v, I1).String())
	assert.Equal(t, I1, WithScalar(I32, I1))
	assert.True(t, Equal(Struct(I8, Ptr), Struct(I8, Ptr)))
	assert.False(t, Equal(Struct(I8), nil))
	assert.True(t, IsAggregate(Array(2, I8)))
	assert.False(t, IsAggregate(v))
	assert.Equal(t, I8, MemberType(Struct(I32, I8), 1))
}

func TestIntrinsicNameMangling(t *testing.T) {
	tests := []struct {
		name      string
		overloads []Type
		want      string
	}{
		{"llvm.ctpop", []Type{I32}, "llvm.ctpop.i32"},
		{"llvm.fma", []Type{Vector(4, F32)}, "llvm.fma.v4f32"},
		{"llvm.masked.load", []Type{Vector(2, I64), Ptr}, "llvm.masked.load.v2i64.p0"},
		{"llvm.trap", nil, "llvm.trap"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IntrinsicName(tt.name, tt.overloads))
	}
}

func TestPrintFunction(t *testing.T) {
	m := NewModule("demo", DataLayout{PtrSize: 8})
	f := m.AddFunction("add one", &FuncType{Params: []Type{I64}, Ret: I64})
	f.Attrs.Add("nounwind")
	b := NewBuilder(f)
	b.SetBlock(b.NewBlock("entry"))
	b.Ret(b.BinOp(OpAdd, f.Params[0], ConstIntOf(I64, 1)))

	out := m.String()
	assert.Contains(t, out, "; module demo")
	assert.Contains(t, out, `@"add one"`)
	assert.Contains(t, out, "nounwind")
	assert.Contains(t, out, "entry_0:")
	assert.Contains(t, out, "add i64 %arg0, 1")
}
