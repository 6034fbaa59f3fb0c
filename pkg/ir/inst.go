package ir

import "fmt"

// Inst is an instruction inside a block.
type Inst interface {
	inst()
}

// Terminator ends a block.
type Terminator interface {
	term()
}

// result is embedded by every value-producing instruction.
type result struct {
	id   int
	typ  Type
	name string
}

func (r *result) Type() Type { return r.typ }

func (r *result) Ident() string {
	if r.name != "" {
		return fmt.Sprintf("%%%s.%d", r.name, r.id)
	}
	return fmt.Sprintf("%%%d", r.id)
}

// SetName attaches a readable name to the result.
func (r *result) SetName(name string) { r.name = name }

// BinaryOp is an arithmetic or bitwise operation.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpSRem
	OpURem
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFRem
	OpShl
	OpLShr
	OpAShr
	OpAnd
	OpOr
	OpXor
)

var binaryOpNames = [...]string{
	"add", "sub", "mul", "sdiv", "udiv", "srem", "urem",
	"fadd", "fsub", "fmul", "fdiv", "frem",
	"shl", "lshr", "ashr", "and", "or", "xor",
}

func (op BinaryOp) String() string { return binaryOpNames[op] }

// UnaryOp is a single-operand arithmetic operation.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpFNeg
	OpNot
)

func (op UnaryOp) String() string {
	switch op {
	case OpNeg:
		return "neg"
	case OpFNeg:
		return "fneg"
	}
	return "not"
}

// IntPredicate is an integer comparison.
type IntPredicate int

const (
	IntEQ IntPredicate = iota
	IntNE
	IntUGT
	IntUGE
	IntULT
	IntULE
	IntSGT
	IntSGE
	IntSLT
	IntSLE
)

var intPredNames = [...]string{"eq", "ne", "ugt", "uge", "ult", "ule", "sgt", "sge", "slt", "sle"}

func (p IntPredicate) String() string { return intPredNames[p] }

// FloatPredicate is a floating point comparison.
type FloatPredicate int

const (
	FloatOEQ FloatPredicate = iota
	FloatOGT
	FloatOGE
	FloatOLT
	FloatOLE
	FloatONE
	FloatUNE
)

var floatPredNames = [...]string{"oeq", "ogt", "oge", "olt", "ole", "one", "une"}

func (p FloatPredicate) String() string { return floatPredNames[p] }

// CastOp is a conversion.
type CastOp int

const (
	CastBitCast CastOp = iota
	CastTrunc
	CastZExt
	CastSExt
	CastFPTrunc
	CastFPExt
	CastFPToSI
	CastFPToUI
	CastSIToFP
	CastUIToFP
	CastPtrToInt
	CastIntToPtr
)

var castOpNames = [...]string{
	"bitcast", "trunc", "zext", "sext", "fptrunc", "fpext",
	"fptosi", "fptoui", "sitofp", "uitofp", "ptrtoint", "inttoptr",
}

func (op CastOp) String() string { return castOpNames[op] }

// Ordering is an atomic memory order.
type Ordering int

const (
	NotAtomic Ordering = iota
	Monotonic
	Acquire
	Release
	AcquireRelease
	SequentiallyConsistent
)

var orderingNames = [...]string{"", "monotonic", "acquire", "release", "acq_rel", "seq_cst"}

func (o Ordering) String() string { return orderingNames[o] }

// RMWOp is an atomic read-modify-write operation.
type RMWOp int

const (
	RMWXchg RMWOp = iota
	RMWAdd
	RMWSub
	RMWAnd
	RMWNand
	RMWOr
	RMWXor
)

var rmwNames = [...]string{"xchg", "add", "sub", "and", "nand", "or", "xor"}

func (op RMWOp) String() string { return rmwNames[op] }

// CallConv is a native calling convention.
type CallConv int

const (
	CallConvC CallConv = iota
	CallConvFast
	CallConvCold
	CallConvX86StdCall
	CallConvX86FastCall
	CallConvWin64
	CallConvX8664SysV
)

var callConvNames = [...]string{"ccc", "fastcc", "coldcc", "x86_stdcallcc", "x86_fastcallcc", "win64cc", "x86_64_sysvcc"}

func (cc CallConv) String() string { return callConvNames[cc] }

// Alloca reserves stack storage.
type Alloca struct {
	result
	Elem  Type
	Align int
}

// Load reads memory.
type Load struct {
	result
	Ptr         Value
	Align       int
	Volatile    bool
	NonTemporal bool
	Ordering    Ordering
}

// Store writes memory.
type Store struct {
	Ptr         Value
	Val         Value
	Align       int
	Volatile    bool
	NonTemporal bool
	Ordering    Ordering
}

// BinOp is a binary operation on scalars or vectors.
type BinOp struct {
	result
	Op   BinaryOp
	X, Y Value
}

// UnOp is a unary operation on scalars or vectors.
type UnOp struct {
	result
	Op UnaryOp
	X  Value
}

// ICmp compares integers or pointers.
type ICmp struct {
	result
	Pred IntPredicate
	X, Y Value
}

// FCmp compares floats.
type FCmp struct {
	result
	Pred FloatPredicate
	X, Y Value
}

// Select picks X where Cond is true and Y elsewhere.
type Select struct {
	result
	Cond, X, Y Value
}

// Cast converts X to the result type.
type Cast struct {
	result
	Op CastOp
	X  Value
}

// ExtractElement reads one vector lane.
type ExtractElement struct {
	result
	Vec, Index Value
}

// InsertElement replaces one vector lane.
type InsertElement struct {
	result
	Vec, Elem, Index Value
}

// ShuffleVector permutes lanes of X and Y; -1 in Mask is undefined.
type ShuffleVector struct {
	result
	X, Y Value
	Mask []int
}

// ExtractValue reads one aggregate member.
type ExtractValue struct {
	result
	Agg   Value
	Index int
}

// InsertValue replaces one aggregate member.
type InsertValue struct {
	result
	Agg, Val Value
	Index    int
}

// StructGEP addresses a struct field.
type StructGEP struct {
	result
	Ptr    Value
	Struct *StructType
	Field  int
}

// IndexGEP addresses element Index of an array of Elem starting at Ptr.
type IndexGEP struct {
	result
	Ptr   Value
	Elem  Type
	Index Value
}

// Call invokes a function value.
type Call struct {
	result
	Callee Value
	Sig    *FuncType
	Args   []Value
	CC     CallConv
	// Attrs are call-site function attributes.
	Attrs []string
	// ParamAttrs are call-site argument attributes keyed by argument index.
	ParamAttrs map[int][]string
}

// IntrinsicCall invokes a target intrinsic by name.
type IntrinsicCall struct {
	result
	Name      string
	Overloads []Type
	Args      []Value
}

// InlineAsm is a raw machine-code sequence.
type InlineAsm struct {
	Template    string
	Constraints string
	SideEffects bool
	Sig         *FuncType
}

// AsmCall executes inline assembly.
type AsmCall struct {
	result
	Asm  *InlineAsm
	Args []Value
}

// AtomicRMW atomically updates memory and yields the old value.
type AtomicRMW struct {
	result
	Op       RMWOp
	Ptr, Val Value
	Ordering Ordering
	Volatile bool
}

// CmpXchg atomically compares and swaps, yielding {old, success}.
type CmpXchg struct {
	result
	Ptr, Old, New    Value
	Success, Failure Ordering
	Weak             bool
	Volatile         bool
}

// Fence orders memory operations.
type Fence struct {
	Ordering     Ordering
	SingleThread bool
}

func (*Alloca) inst()         {}
func (*Load) inst()           {}
func (*Store) inst()          {}
func (*BinOp) inst()          {}
func (*UnOp) inst()           {}
func (*ICmp) inst()           {}
func (*FCmp) inst()           {}
func (*Select) inst()         {}
func (*Cast) inst()           {}
func (*ExtractElement) inst() {}
func (*InsertElement) inst()  {}
func (*ShuffleVector) inst()  {}
func (*ExtractValue) inst()   {}
func (*InsertValue) inst()    {}
func (*StructGEP) inst()      {}
func (*IndexGEP) inst()       {}
func (*Call) inst()           {}
func (*IntrinsicCall) inst()  {}
func (*AsmCall) inst()        {}
func (*AtomicRMW) inst()      {}
func (*CmpXchg) inst()        {}
func (*Fence) inst()          {}

// Ret returns from the function; Val is nil for void.
type Ret struct{ Val Value }

// Br jumps unconditionally.
type Br struct{ Dest *Block }

// CondBr jumps on an i1 condition.
type CondBr struct {
	Cond       Value
	Then, Else *Block
}

// Unreachable marks a point control never reaches.
type Unreachable struct{}

func (*Ret) term()         {}
func (*Br) term()          {}
func (*CondBr) term()      {}
func (*Unreachable) term() {}
