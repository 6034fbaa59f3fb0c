package ir

import "fmt"

// Builder appends instructions to a function.
type Builder struct {
	fn    *Function
	block *Block
}

// NewBuilder creates a builder positioned nowhere.
func NewBuilder(fn *Function) *Builder {
	return &Builder{fn: fn}
}

// Function returns the function being built.
func (b *Builder) Function() *Function { return b.fn }

// Block returns the current insertion block.
func (b *Builder) Block() *Block { return b.block }

// SetBlock moves the insertion point to the end of blk.
func (b *Builder) SetBlock(blk *Block) { b.block = blk }

// NewBlock creates a block in the current function.
func (b *Builder) NewBlock(name string) *Block { return b.fn.NewBlock(name) }

func (b *Builder) current() *Block {
	if b.block == nil {
		panic(fmt.Sprintf("ir: builder for %s has no insertion block", b.fn.Name))
	}
	if b.block.Terminated() {
		// Code after a terminator is dead; keep it out of the live block.
		b.block = b.fn.NewBlock("dead")
	}
	return b.block
}

func (b *Builder) emit(i Inst) {
	blk := b.current()
	blk.Insts = append(blk.Insts, i)
}

func (b *Builder) res(t Type) result {
	return result{id: b.fn.newTemp(), typ: t}
}

// Alloca reserves a stack slot.
func (b *Builder) Alloca(elem Type, align int) *Alloca {
	i := &Alloca{result: b.res(Ptr), Elem: elem, Align: align}
	b.emit(i)
	return i
}

// Load reads t from ptr.
func (b *Builder) Load(t Type, ptr Value, align int) *Load {
	i := &Load{result: b.res(t), Ptr: ptr, Align: align}
	b.emit(i)
	return i
}

// Store writes val to ptr.
func (b *Builder) Store(val, ptr Value, align int) *Store {
	i := &Store{Ptr: ptr, Val: val, Align: align}
	b.emit(i)
	return i
}

// BinOp applies op to x and y.
func (b *Builder) BinOp(op BinaryOp, x, y Value) *BinOp {
	i := &BinOp{result: b.res(x.Type()), Op: op, X: x, Y: y}
	b.emit(i)
	return i
}

// UnOp applies op to x.
func (b *Builder) UnOp(op UnaryOp, x Value) *UnOp {
	i := &UnOp{result: b.res(x.Type()), Op: op, X: x}
	b.emit(i)
	return i
}

// ICmp compares integers yielding i1 (or a vector of i1).
func (b *Builder) ICmp(pred IntPredicate, x, y Value) *ICmp {
	i := &ICmp{result: b.res(WithScalar(x.Type(), I1)), Pred: pred, X: x, Y: y}
	b.emit(i)
	return i
}

// FCmp compares floats yielding i1 (or a vector of i1).
func (b *Builder) FCmp(pred FloatPredicate, x, y Value) *FCmp {
	i := &FCmp{result: b.res(WithScalar(x.Type(), I1)), Pred: pred, X: x, Y: y}
	b.emit(i)
	return i
}

// Select chooses between x and y.
func (b *Builder) Select(cond, x, y Value) *Select {
	i := &Select{result: b.res(x.Type()), Cond: cond, X: x, Y: y}
	b.emit(i)
	return i
}

// Cast converts x to t.
func (b *Builder) Cast(op CastOp, x Value, t Type) *Cast {
	i := &Cast{result: b.res(t), Op: op, X: x}
	b.emit(i)
	return i
}

// ExtractElement reads lane idx.
func (b *Builder) ExtractElement(vec, idx Value) *ExtractElement {
	vt := vec.Type().(*VectorType)
	i := &ExtractElement{result: b.res(vt.Elem), Vec: vec, Index: idx}
	b.emit(i)
	return i
}

// InsertElement writes lane idx.
func (b *Builder) InsertElement(vec, elem, idx Value) *InsertElement {
	i := &InsertElement{result: b.res(vec.Type()), Vec: vec, Elem: elem, Index: idx}
	b.emit(i)
	return i
}

// ShuffleVector builds a vector from lanes of x and y.
func (b *Builder) ShuffleVector(x, y Value, mask []int) *ShuffleVector {
	vt := x.Type().(*VectorType)
	i := &ShuffleVector{result: b.res(Vector(len(mask), vt.Elem)), X: x, Y: y, Mask: mask}
	b.emit(i)
	return i
}

// ExtractValue reads member idx of an aggregate.
func (b *Builder) ExtractValue(agg Value, idx int) *ExtractValue {
	i := &ExtractValue{result: b.res(MemberType(agg.Type(), idx)), Agg: agg, Index: idx}
	b.emit(i)
	return i
}

// InsertValue writes member idx of an aggregate.
func (b *Builder) InsertValue(agg, val Value, idx int) *InsertValue {
	i := &InsertValue{result: b.res(agg.Type()), Agg: agg, Val: val, Index: idx}
	b.emit(i)
	return i
}

// StructGEP addresses field idx of the struct at ptr.
func (b *Builder) StructGEP(st *StructType, ptr Value, idx int) *StructGEP {
	i := &StructGEP{result: b.res(Ptr), Ptr: ptr, Struct: st, Field: idx}
	b.emit(i)
	return i
}

// IndexGEP addresses element idx of elem-typed storage at ptr.
func (b *Builder) IndexGEP(elem Type, ptr, idx Value) *IndexGEP {
	i := &IndexGEP{result: b.res(Ptr), Ptr: ptr, Elem: elem, Index: idx}
	b.emit(i)
	return i
}

// Call invokes callee with the given signature.
func (b *Builder) Call(sig *FuncType, callee Value, args []Value, cc CallConv) *Call {
	i := &Call{result: b.res(sig.Ret), Callee: callee, Sig: sig, Args: args, CC: cc}
	b.emit(i)
	return i
}

// Intrinsic invokes a named target intrinsic returning ret.
func (b *Builder) Intrinsic(name string, ret Type, overloads []Type, args ...Value) *IntrinsicCall {
	i := &IntrinsicCall{result: b.res(ret), Name: name, Overloads: overloads, Args: args}
	b.emit(i)
	return i
}

// Asm executes inline assembly.
func (b *Builder) Asm(asm *InlineAsm, args ...Value) *AsmCall {
	i := &AsmCall{result: b.res(asm.Sig.Ret), Asm: asm, Args: args}
	b.emit(i)
	return i
}

// AtomicRMW atomically applies op.
func (b *Builder) AtomicRMW(op RMWOp, ptr, val Value, ord Ordering) *AtomicRMW {
	i := &AtomicRMW{result: b.res(val.Type()), Op: op, Ptr: ptr, Val: val, Ordering: ord}
	b.emit(i)
	return i
}

// CmpXchg atomically compares and swaps.
func (b *Builder) CmpXchg(ptr, old, repl Value, success, failure Ordering, weak bool) *CmpXchg {
	i := &CmpXchg{
		result:  b.res(Struct(old.Type(), I1)),
		Ptr:     ptr,
		Old:     old,
		New:     repl,
		Success: success,
		Failure: failure,
		Weak:    weak,
	}
	b.emit(i)
	return i
}

// Fence emits a memory fence.
func (b *Builder) Fence(ord Ordering, singleThread bool) {
	b.emit(&Fence{Ordering: ord, SingleThread: singleThread})
}

func (b *Builder) terminate(t Terminator) {
	b.current().Term = t
}

// Ret returns val, or nothing when val is nil.
func (b *Builder) Ret(val Value) { b.terminate(&Ret{Val: val}) }

// Br jumps to dest.
func (b *Builder) Br(dest *Block) { b.terminate(&Br{Dest: dest}) }

// CondBr jumps on cond.
func (b *Builder) CondBr(cond Value, then, els *Block) {
	b.terminate(&CondBr{Cond: cond, Then: then, Else: els})
}

// Unreachable terminates with unreachable.
func (b *Builder) Unreachable() { b.terminate(&Unreachable{}) }

// MemberType returns the type of member idx of a struct or array.
func MemberType(t Type, idx int) Type {
	switch t := t.(type) {
	case *StructType:
		return t.Fields[idx]
	case *ArrayType:
		return t.Elem
	}
	panic(fmt.Sprintf("ir: member %d of non-aggregate %s", idx, t))
}
