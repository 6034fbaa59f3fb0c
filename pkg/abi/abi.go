// Package abi classifies procedure signatures into native calling sequences:
// how each parameter and result travels (Direct, Indirect or Ignore), which
// hidden parameters exist, and the resulting raw native signature.
package abi

import (
	"fmt"

	"github.com/GriffinCanCode/callgen/pkg/cache"
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/target"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// ArgKind is the passing class of one value.
type ArgKind int

const (
	Direct ArgKind = iota
	Indirect
	Ignore
)

func (k ArgKind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Indirect:
		return "indirect"
	}
	return "ignore"
}

// CalleeCopyThreshold is the largest indirect parameter the callee copies
// under the native source convention.
const CalleeCopyThreshold = 16

// ArgType is the classification of one parameter or result.
type ArgType struct {
	Kind ArgKind
	// Type is the natural IR type of the value.
	Type ir.Type
	// CastType is the register type when it differs from Type.
	CastType ir.Type
	Size     int64

	IsByval      bool
	ByvalAlign   int64
	DoCalleeCopy bool

	// Attrs are native parameter attributes.
	Attrs ir.Attrs
	// ParamIndex is the index of the declared parameter this entry
	// classifies; -1 for results and hidden parameters.
	ParamIndex int
	// RawIndex is the native parameter index; -1 when ignored.
	RawIndex int
}

// ABIType returns the type as it crosses the call boundary.
func (a *ArgType) ABIType() ir.Type {
	switch a.Kind {
	case Indirect:
		return ir.Ptr
	case Ignore:
		return ir.Void
	}
	if a.CastType != nil {
		return a.CastType
	}
	return a.Type
}

// FunctionType is the immutable classification of one signature.
type FunctionType struct {
	CC   types.CallingConvention
	Args []ArgType
	Ret  ArgType
	// SplitReturns are the hidden trailing pointers carrying all results
	// but the last when a multi-value result is split.
	SplitReturns []ArgType
	// MultipleReturnOriginalType is the pre-split result tuple, nil when
	// no split occurred.
	MultipleReturnOriginalType *types.Tuple
	OriginalArgCount           int
	CVararg                    bool
	// ContextIndex is the native index of the implicit context pointer,
	// -1 when the convention carries none.
	ContextIndex int

	raw *ir.FuncType
}

// ReturnByPointer reports whether the result is written through hidden
// parameter 0.
func (ft *FunctionType) ReturnByPointer() bool { return ft.Ret.Kind == Indirect }

// IsSplit reports whether a multi-value result was split.
func (ft *FunctionType) IsSplit() bool { return ft.MultipleReturnOriginalType != nil }

// HasContext reports whether the signature carries the implicit context.
func (ft *FunctionType) HasContext() bool { return ft.ContextIndex >= 0 }

// RawType returns the native signature.
func (ft *FunctionType) RawType() *ir.FuncType { return ft.raw }

// Classify computes the function type of sig for tgt.
func Classify(sig *types.Proc, tgt *target.Target) *FunctionType {
	c := classifier{tgt: tgt, sizes: tgt.Sizes(), cc: sig.CC}
	if sig.CC == types.CCInvalid {
		panic(fmt.Sprintf("abi: signature %s has no calling convention", sig))
	}

	ft := &FunctionType{CC: sig.CC, CVararg: sig.CVararg, ContextIndex: -1}
	ft.Ret = ArgType{Kind: Ignore, Type: ir.Void, ParamIndex: -1, RawIndex: -1}

	results := sig.ResultVars()
	switch {
	case len(results) == 0:
	case len(results) > 1 && sig.CC.IsOdinFamily():
		for _, r := range results[:len(results)-1] {
			ft.SplitReturns = append(ft.SplitReturns, ArgType{
				Kind:       Direct,
				Type:       ir.Ptr,
				Size:       c.sizes.SizeOf(r.Type),
				Attrs:      ir.Attrs{"noalias": "", "nonnull": ""},
				ParamIndex: -1,
			})
		}
		ft.Ret = c.result(results[len(results)-1].Type)
		ft.MultipleReturnOriginalType = sig.Results
	case len(results) > 1:
		ft.Ret = c.result(sig.Results)
	default:
		ft.Ret = c.result(results[0].Type)
	}

	params := sig.ParamVars()
	for i, p := range params {
		if p.Kind != types.EntityVariable {
			continue
		}
		if sig.CVararg && i == len(params)-1 {
			continue
		}
		a := c.arg(p.Type)
		a.ParamIndex = i
		ft.Args = append(ft.Args, a)
	}
	ft.OriginalArgCount = len(ft.Args)

	ft.assignRawIndices()
	return ft
}

func (ft *FunctionType) assignRawIndices() {
	raw := &ir.FuncType{Ret: ir.Void, Variadic: ft.CVararg}
	if ft.Ret.Kind == Indirect {
		ft.Ret.RawIndex = 0
		raw.Params = append(raw.Params, ir.Ptr)
	} else if ft.Ret.Kind == Direct {
		raw.Ret = ft.Ret.ABIType()
	}
	for i := range ft.Args {
		a := &ft.Args[i]
		if a.Kind == Ignore {
			a.RawIndex = -1
			continue
		}
		a.RawIndex = len(raw.Params)
		raw.Params = append(raw.Params, a.ABIType())
	}
	for i := range ft.SplitReturns {
		ft.SplitReturns[i].RawIndex = len(raw.Params)
		raw.Params = append(raw.Params, ir.Ptr)
	}
	if ft.CC.HasContext() {
		ft.ContextIndex = len(raw.Params)
		raw.Params = append(raw.Params, ir.Ptr)
	}
	ft.raw = raw
}

// Cache memoizes classifications per signature for one target.
type Cache struct {
	tgt *target.Target
	m   *cache.Map[*FunctionType]
}

// NewCache creates an empty cache for tgt.
func NewCache(tgt *target.Target) *Cache {
	return &Cache{tgt: tgt, m: cache.New[*FunctionType]()}
}

// Get returns the classification of sig, computing it at most once.
func (c *Cache) Get(sig *types.Proc) *FunctionType {
	ft, _ := c.m.GetOrInsert(types.TypeString(sig), func() *FunctionType {
		return Classify(sig, c.tgt)
	})
	return ft
}

// Len returns the number of cached signatures.
func (c *Cache) Len() int { return c.m.Len() }
