package main

import (
	"fmt"

	"github.com/GriffinCanCode/callgen/pkg/abi"
	"github.com/GriffinCanCode/callgen/pkg/codegen"
	"github.com/GriffinCanCode/callgen/pkg/target"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// SwizzleRow describes one hardware swizzle lowering.
type SwizzleRow struct {
	Lanes     int      `json:"lanes"`
	Intrinsic string   `json:"intrinsic"`
	Features  []string `json:"features"`
	Enabled   bool     `json:"enabled"`
	MinWidth  int      `json:"min_vector_width,omitempty"`
}

func swizzleReport(t *target.Target) []SwizzleRow {
	var rows []SwizzleRow
	for _, l := range codegen.SwizzleLowerings(t.Arch) {
		rows = append(rows, SwizzleRow{
			Lanes:     l.Count,
			Intrinsic: l.Intrinsic,
			Features:  l.Features,
			Enabled:   t.HasFeatures(l.Features...),
			MinWidth:  l.MinVectorWidth,
		})
	}
	return rows
}

// SyscallRow is the inline sequence of one syscall flavor.
type SyscallRow struct {
	Flavor      string `json:"flavor"`
	Template    string `json:"template"`
	MaxOperands int    `json:"max_operands"`
	Constraints string `json:"constraints"`
	Error       string `json:"error,omitempty"`
}

func syscallReport(t *target.Target) []SyscallRow {
	var rows []SyscallRow
	flavors := []struct {
		name   string
		lookup func(*target.Target) (codegen.SyscallABI, bool)
	}{
		{"linux", codegen.LinuxSyscallABI},
		{"bsd", codegen.BSDSyscallABI},
	}
	for _, f := range flavors {
		sc, ok := f.lookup(t)
		if !ok {
			continue
		}
		row := SyscallRow{
			Flavor:      f.name,
			Template:    sc.Template,
			MaxOperands: len(sc.Registers),
			Constraints: sc.Constraints(len(sc.Registers)),
		}
		if err := sc.Validate(t.Arch); err != nil {
			row.Error = err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

// ABIRow is the classification of f(x T) -> T under one convention.
type ABIRow struct {
	Convention string `json:"convention"`
	Type       string `json:"type"`
	Param      string `json:"param"`
	Result     string `json:"result"`
	CalleeCopy bool   `json:"callee_copy,omitempty"`
	Byval      bool   `json:"byval,omitempty"`
}

func words(n int) *types.Struct {
	fs := make([]types.Field, n)
	for i := range fs {
		fs[i] = types.Field{Name: fmt.Sprintf("w%d", i), Type: types.Int64}
	}
	return &types.Struct{Fields: fs}
}

var abiSamples = []types.Type{
	types.Int,
	types.Float64,
	types.String,
	words(2),
	words(3),
	&types.Array{Elem: types.Uint8, Len: 24},
	&types.SimdVector{Elem: types.Float32, Len: 4},
}

func describe(a abi.ArgType) string {
	s := a.Kind.String()
	if a.CastType != nil {
		s += " as " + a.CastType.String()
	}
	return s
}

func abiReport(t *target.Target) []ABIRow {
	cache := abi.NewCache(t)
	var rows []ABIRow
	for _, cc := range []types.CallingConvention{types.CCOdin, types.CCCDecl} {
		for _, st := range abiSamples {
			sig := types.NewProc(cc, []*types.Entity{types.NewParam("x", st)}, []*types.Entity{types.NewParam("", st)})
			ft := cache.Get(sig)
			p := ft.Args[0]
			rows = append(rows, ABIRow{
				Convention: cc.String(),
				Type:       st.String(),
				Param:      describe(p),
				Result:     describe(ft.Ret),
				CalleeCopy: p.DoCalleeCopy,
				Byval:      p.IsByval,
			})
		}
	}
	return rows
}
