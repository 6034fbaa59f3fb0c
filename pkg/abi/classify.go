package abi

import (
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/target"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// cABI is the platform C aggregate-passing scheme.
type cABI int

const (
	abiSysV cABI = iota
	abiWin64
	abiAAPCS64
	abiStack32
	abiWasm
)

type classifier struct {
	tgt   *target.Target
	sizes types.Sizes
	cc    types.CallingConvention
}

func (c *classifier) scheme() cABI {
	switch c.cc {
	case types.CCWin64:
		return abiWin64
	case types.CCSysV:
		return abiSysV
	}
	switch c.tgt.Arch {
	case target.ArchAMD64:
		if c.tgt.OS == target.OSWindows {
			return abiWin64
		}
		return abiSysV
	case target.ArchARM64, target.ArchRISCV64:
		return abiAAPCS64
	case target.ArchI386, target.ArchARM32:
		return abiStack32
	}
	return abiWasm
}

func (c *classifier) direct(t types.Type) ArgType {
	return ArgType{Kind: Direct, Type: IRType(t, c.sizes), Size: c.sizes.SizeOf(t), ParamIndex: -1}
}

func (c *classifier) coerced(t types.Type, cast ir.Type) ArgType {
	a := c.direct(t)
	if !ir.Equal(a.Type, cast) {
		a.CastType = cast
	}
	return a
}

func (c *classifier) indirect(t types.Type) ArgType {
	return ArgType{Kind: Indirect, Type: IRType(t, c.sizes), Size: c.sizes.SizeOf(t), ParamIndex: -1}
}

func (c *classifier) ignore(t types.Type) ArgType {
	return ArgType{Kind: Ignore, Type: IRType(t, c.sizes), ParamIndex: -1, RawIndex: -1}
}

// arg classifies one declared parameter.
func (c *classifier) arg(t types.Type) ArgType {
	size := c.sizes.SizeOf(t)
	if size == 0 {
		return c.ignore(t)
	}
	if isRegisterType(t) {
		return c.direct(t)
	}
	if c.cc.IsOdinFamily() {
		if size <= c.sizes.WordSize {
			return c.coerced(t, ir.Int(int(size*8)))
		}
		a := c.indirect(t)
		a.DoCalleeCopy = size <= CalleeCopyThreshold || c.tgt.InternalByValue
		a.ByvalAlign = c.sizes.AlignOf(t)
		return a
	}

	switch c.scheme() {
	case abiSysV, abiAAPCS64:
		if size <= 16 {
			return c.coerced(t, coerceInts(size))
		}
		if c.scheme() == abiSysV {
			return c.byval(t, 8)
		}
		return c.indirect(t)
	case abiWin64:
		if size == 1 || size == 2 || size == 4 || size == 8 {
			return c.coerced(t, ir.Int(int(size*8)))
		}
		return c.indirect(t)
	case abiStack32:
		return c.byval(t, 4)
	}
	return c.indirect(t)
}

func (c *classifier) byval(t types.Type, minAlign int64) ArgType {
	a := c.indirect(t)
	a.IsByval = true
	a.ByvalAlign = c.sizes.AlignOf(t)
	if a.ByvalAlign < minAlign {
		a.ByvalAlign = minAlign
	}
	a.Attrs = ir.Attrs{"byval": a.Type.String()}
	return a
}

// result classifies the value returned in the native return slot.
func (c *classifier) result(t types.Type) ArgType {
	size := c.sizes.SizeOf(t)
	if size == 0 {
		return c.ignore(t)
	}
	var a ArgType
	switch {
	case isRegisterType(t):
		a = c.direct(t)
	case c.cc.IsOdinFamily():
		if size <= c.sizes.WordSize {
			a = c.coerced(t, ir.Int(int(size*8)))
		} else {
			a = c.indirect(t)
		}
	default:
		a = c.cResult(t, size)
	}
	if a.Kind == Indirect {
		a.Attrs = ir.Attrs{"sret": a.Type.String(), "noalias": ""}
	}
	return a
}

func (c *classifier) cResult(t types.Type, size int64) ArgType {
	switch c.scheme() {
	case abiSysV, abiAAPCS64:
		if size <= 16 {
			return c.coerced(t, coerceInts(size))
		}
	case abiWin64:
		if size == 1 || size == 2 || size == 4 || size == 8 {
			return c.coerced(t, ir.Int(int(size*8)))
		}
	case abiStack32:
		if c.tgt.Arch == target.ArchARM32 && size <= 4 {
			return c.coerced(t, ir.Int(int(size*8)))
		}
	}
	return c.indirect(t)
}

// coerceInts returns the integer register tuple carrying size bytes.
func coerceInts(size int64) ir.Type {
	if size <= 8 {
		return ir.Int(int(size * 8))
	}
	return ir.Struct(ir.I64, ir.Int(int((size-8)*8)))
}
