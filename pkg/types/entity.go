package types

// Node is an opaque statement or expression owned by the statement layer.
type Node = any

// Pos is a source position.
type Pos struct {
	File   string
	Line   int
	Column int
}

// PackageKind distinguishes privileged packages.
type PackageKind int

const (
	PackageNormal PackageKind = iota
	PackageRuntime
	PackageInit
)

// Package owns entities.
type Package struct {
	Name string
	Kind PackageKind
}

// EntityKind is the kind of a declared entity.
type EntityKind int

const (
	EntityInvalid EntityKind = iota
	EntityVariable
	EntityConstant
	EntityTypeName
	EntityProcedure
	EntityBuiltin
)

func (k EntityKind) String() string {
	switch k {
	case EntityVariable:
		return "var"
	case EntityConstant:
		return "const"
	case EntityTypeName:
		return "type"
	case EntityProcedure:
		return "proc"
	case EntityBuiltin:
		return "builtin"
	}
	return "invalid"
}

// EntityFlags are per-entity guarantees recorded by the checker.
type EntityFlags uint32

const (
	FlagParam EntityFlags = 1 << iota
	FlagResult
	FlagNoAlias
	FlagNoCapture
	FlagValue
	FlagCold
	FlagCustomLinkName
	FlagBodyChecked
	FlagUsingParam
)

// ParamValueKind is the default-value policy of a parameter.
type ParamValueKind int

const (
	ParamValueInvalid ParamValueKind = iota
	ParamValueConstant
	ParamValueNil
	ParamValueLocation
	ParamValueExpression
	ParamValueValue
)

// ParamValue describes how a missing argument is synthesized.
type ParamValue struct {
	Kind ParamValueKind
	// Value holds the exact constant for ParamValueConstant.
	Value any
	// Expr is evaluated by the expression layer for ParamValueValue.
	Expr Node
	// Target names the parameter whose argument text is stringified for
	// ParamValueExpression; empty means the whole call expression.
	Target string
}

// Entity is a declared name.
type Entity struct {
	Kind  EntityKind
	Name  string
	Type  Type
	Flags EntityFlags
	Pos   Pos
	Pkg   *Package

	// Value is the exact value of a constant.
	Value      any
	ParamValue ParamValue
	Proc       *ProcInfo
}

// IsBlank reports whether the entity is the blank identifier.
func (e *Entity) IsBlank() bool { return e.Name == "_" || e.Name == "" }

// Has reports whether all flags in f are set.
func (e *Entity) Has(f EntityFlags) bool { return e.Flags&f == f }

// Signature returns the procedure type of a procedure entity.
func (e *Entity) Signature() *Proc {
	p, _ := e.Type.Underlying().(*Proc)
	return p
}

// Inlining is the declared inlining policy.
type Inlining int

const (
	InliningNone Inlining = iota
	InliningInline
	InliningNoInline
)

// OptimizationMode is the per-procedure optimization override.
type OptimizationMode int

const (
	OptimizationDefault OptimizationMode = iota
	OptimizationNone
	OptimizationFavorSize
)

// DeferredKind is the argument binding mode of a deferred companion.
type DeferredKind int

const (
	DeferredNone DeferredKind = iota
	DeferredIn
	DeferredOut
	DeferredInOut
	DeferredInByPtr
	DeferredOutByPtr
	DeferredInOutByPtr
)

// ByPtr reports whether arguments are passed by address.
func (k DeferredKind) ByPtr() bool {
	return k == DeferredInByPtr || k == DeferredOutByPtr || k == DeferredInOutByPtr
}

// DeferredProcedure names the companion invoked after each call.
type DeferredProcedure struct {
	Kind   DeferredKind
	Entity *Entity
}

// DeclInfo holds per-declaration facts computed by analysis passes.
type DeclInfo struct {
	// DeferUseChecked is set once the checker has counted defer statements.
	DeferUseChecked bool
	DeferUsed       int

	// VariadicReuses lists the slice types of every non-C variadic call
	// site in the body; the max fields bound their backing storage.
	VariadicReuses        []Type
	VariadicReuseMaxBytes int64
	VariadicReuseMaxAlign int64
}

// ProcInfo carries procedure-only entity facts.
type ProcInfo struct {
	LinkName string
	// Linkage is an explicit override: internal, strong, weak or link_once.
	Linkage        string
	IsForeign      bool
	IsExport       bool
	ForeignLibrary string

	Inlining     Inlining
	Optimization OptimizationMode
	Deferred     DeferredProcedure

	NoSanitizeAddress  bool
	NoSanitizeMemory   bool
	HasInstrumentation bool

	Decl *DeclInfo
	Body Node
	// Parent is set for procedures declared inside another procedure.
	Parent *Entity
}

// NewParam declares a parameter or result variable.
func NewParam(name string, t Type) *Entity {
	return &Entity{Kind: EntityVariable, Name: name, Type: t, Flags: FlagParam}
}

// NewConstParam declares a compile-time constant parameter.
func NewConstParam(name string, t Type, v any) *Entity {
	return &Entity{Kind: EntityConstant, Name: name, Type: t, Value: v, Flags: FlagParam}
}

// NewProcedure declares a procedure entity with a checked body.
func NewProcedure(pkg *Package, name string, sig *Proc, body Node) *Entity {
	return &Entity{
		Kind:  EntityProcedure,
		Name:  name,
		Type:  sig,
		Pkg:   pkg,
		Flags: FlagBodyChecked,
		Proc:  &ProcInfo{Body: body},
	}
}

// NewBuiltin declares a builtin procedure. Builtins have no signature of
// their own; each call is lowered by name.
func NewBuiltin(name string) *Entity {
	return &Entity{Kind: EntityBuiltin, Name: name}
}

// CallingConvention tags a procedure signature.
type CallingConvention int

const (
	CCInvalid CallingConvention = iota
	CCOdin
	CCContextless
	CCCDecl
	CCStdCall
	CCFastCall
	CCNone
	CCNaked
	CCWin64
	CCSysV
)

func (cc CallingConvention) String() string {
	switch cc {
	case CCOdin:
		return "odin"
	case CCContextless:
		return "contextless"
	case CCCDecl:
		return "c"
	case CCStdCall:
		return "stdcall"
	case CCFastCall:
		return "fastcall"
	case CCNone:
		return "none"
	case CCNaked:
		return "naked"
	case CCWin64:
		return "win64"
	case CCSysV:
		return "sysv"
	}
	return "invalid"
}

// HasContext reports whether the convention passes the implicit context.
func (cc CallingConvention) HasContext() bool { return cc == CCOdin }

// IsOdinFamily reports whether the convention follows the native source ABI
// rather than the platform C ABI.
func (cc CallingConvention) IsOdinFamily() bool {
	return cc == CCOdin || cc == CCContextless
}

// AtomicOrdering is a source-level memory order.
type AtomicOrdering int

const (
	OrderRelaxed AtomicOrdering = iota
	OrderConsume
	OrderAcquire
	OrderRelease
	OrderAcqRel
	OrderSeqCst
)
