package codegen

import (
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/target"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// SwizzleLowering is a hardware byte table lookup for one lane count.
type SwizzleLowering struct {
	Count     int
	Intrinsic string
	// Features must all be enabled for the lowering to apply.
	Features []string
	// Attr is the target-features value the calling function needs.
	Attr string
	// MinVectorWidth is the min-legal-vector-width the function needs, or 0.
	MinVectorWidth int
	// PartSize splits the source into table registers of this many bytes;
	// 0 passes the source whole.
	PartSize int
	// OverloadResult marks intrinsics overloaded on their result type.
	OverloadResult bool
	// Block is the span in bytes of a lane-local lookup, or 0 when every
	// lane can read the whole source.
	Block int
}

type swizzleFamily int

const (
	swizzleNone swizzleFamily = iota
	swizzleX86
	swizzleARM64
	swizzleARM32
	swizzleWasm
)

func familyOf(a target.Arch) swizzleFamily {
	switch {
	case a.IsX86():
		return swizzleX86
	case a == target.ArchARM64:
		return swizzleARM64
	case a == target.ArchARM32:
		return swizzleARM32
	case a.IsWasm():
		return swizzleWasm
	}
	return swizzleNone
}

var swizzleTable = map[swizzleFamily][]SwizzleLowering{
	swizzleX86: {
		{Count: 16, Intrinsic: "llvm.x86.ssse3.pshuf.b.128", Features: []string{"ssse3"},
			Attr: "+ssse3", MinVectorWidth: 128, Block: 16},
		{Count: 32, Intrinsic: "llvm.x86.avx2.pshuf.b", Features: []string{"ssse3", "avx2"},
			Attr: "+avx,+avx2,+ssse3", MinVectorWidth: 256, Block: 16},
		{Count: 64, Intrinsic: "llvm.x86.avx512.pshuf.b.512", Features: []string{"ssse3", "avx2", "avx512f", "avx512bw"},
			Attr: "+avx,+avx2,+avx512f,+avx512bw,+ssse3", MinVectorWidth: 512, Block: 16},
	},
	swizzleARM64: {
		{Count: 16, Intrinsic: "llvm.aarch64.neon.tbl1", Features: []string{"neon"}, Attr: "+neon", PartSize: 16, OverloadResult: true},
		{Count: 32, Intrinsic: "llvm.aarch64.neon.tbl2", Features: []string{"neon"}, Attr: "+neon", MinVectorWidth: 256, PartSize: 16, OverloadResult: true},
		{Count: 48, Intrinsic: "llvm.aarch64.neon.tbl3", Features: []string{"neon"}, Attr: "+neon", MinVectorWidth: 256, PartSize: 16, OverloadResult: true},
		{Count: 64, Intrinsic: "llvm.aarch64.neon.tbl4", Features: []string{"neon"}, Attr: "+neon", MinVectorWidth: 256, PartSize: 16, OverloadResult: true},
	},
	swizzleARM32: {
		{Count: 8, Intrinsic: "llvm.arm.neon.vtbl1", Features: []string{"neon"}, Attr: "+neon", PartSize: 8},
		{Count: 16, Intrinsic: "llvm.arm.neon.vtbl2", Features: []string{"neon"}, Attr: "+neon", PartSize: 8},
		{Count: 24, Intrinsic: "llvm.arm.neon.vtbl3", Features: []string{"neon"}, Attr: "+neon", PartSize: 8},
		{Count: 32, Intrinsic: "llvm.arm.neon.vtbl4", Features: []string{"neon"}, Attr: "+neon", PartSize: 8},
	},
	swizzleWasm: {
		{Count: 16, Intrinsic: "llvm.wasm.swizzle", Features: []string{"simd128"}, Attr: "+simd128"},
	},
}

// SwizzleLowerings returns the hardware lowerings known for arch, ordered
// by lane count.
func SwizzleLowerings(arch target.Arch) []SwizzleLowering {
	return swizzleTable[familyOf(arch)]
}

// SwizzleLoweringFor returns the hardware lowering for a byte swizzle of
// count lanes on arch, ignoring enabled features.
func SwizzleLoweringFor(arch target.Arch, count int) (SwizzleLowering, bool) {
	return lo.Find(SwizzleLowerings(arch), func(l SwizzleLowering) bool { return l.Count == count })
}

// runtimeSwizzle selects src[idx[i]] per lane. Byte vectors with a matching
// hardware table use it when the features are enabled for the target or
// the current procedure; everything else is emulated lane by lane.
func (p *Procedure) runtimeSwizzle(src, idx ir.Value, elem types.Type) ir.Value {
	vt := src.Type().(*ir.VectorType)
	if p.Module.Sizes.SizeOf(elem) == 1 {
		if l, ok := SwizzleLoweringFor(p.Module.Target.Arch, vt.Len); ok && p.hasFeatures(l.Features) {
			p.Module.stats.SwizzleHardware.Inc()
			return p.hardwareSwizzle(l, src, idx)
		}
	}
	p.Module.stats.SwizzleEmulated.Inc()
	return p.emulateSwizzle(src, idx)
}

func (p *Procedure) hasFeatures(fs []string) bool {
	local := map[string]bool{}
	if p.Sig != nil {
		for _, f := range strings.Split(p.Sig.EnableTargetFeature, ",") {
			if f = strings.TrimPrefix(strings.TrimSpace(f), "+"); f != "" {
				local[f] = true
			}
		}
	}
	for _, f := range fs {
		if !p.Module.Target.HasFeature(f) && !local[f] {
			return false
		}
	}
	return true
}

// hardwareSwizzle reduces the indices modulo the lane count first, since
// the table instructions zero lanes for out of range indices.
func (p *Procedure) hardwareSwizzle(l SwizzleLowering, src, idx ir.Value) ir.Value {
	vt := src.Type().(*ir.VectorType)
	p.mergeFeatureAttrs(l.Attr, l.MinVectorWidth)
	idx = p.swizzleIndex(idx, vt.Len)
	if l.Block > 0 && vt.Len > l.Block {
		return p.blockSwizzle(l, src, idx)
	}

	args := []ir.Value{src}
	if l.PartSize > 0 {
		args = args[:0]
		for off := 0; off < vt.Len; off += l.PartSize {
			mask := make([]int, l.PartSize)
			for i := range mask {
				mask[i] = off + i
			}
			args = append(args, p.b.ShuffleVector(src, src, mask))
		}
	}
	args = append(args, idx)
	var overloads []ir.Type
	if l.OverloadResult {
		overloads = []ir.Type{vt}
	}
	return p.b.Intrinsic(l.Intrinsic, vt, overloads, args...)
}

// blockSwizzle runs a lane-local lookup once per source block, each time
// with that block copied into every block of the table, and keeps the
// result for lanes whose index falls in the block.
func (p *Procedure) blockSwizzle(l SwizzleLowering, src, idx ir.Value) ir.Value {
	vt := src.Type().(*ir.VectorType)
	it := idx.Type()
	which := p.b.BinOp(ir.OpUDiv, idx, ir.ScalarConst(it, int64(l.Block)))
	var out ir.Value
	for blk := 0; blk < vt.Len/l.Block; blk++ {
		mask := make([]int, vt.Len)
		for i := range mask {
			mask[i] = blk*l.Block + i%l.Block
		}
		table := p.b.ShuffleVector(src, src, mask)
		r := p.b.Intrinsic(l.Intrinsic, vt, nil, table, idx)
		if out == nil {
			out = r
			continue
		}
		hit := p.b.ICmp(ir.IntEQ, which, ir.ScalarConst(it, int64(blk)))
		out = p.b.Select(hit, r, out)
	}
	return out
}

// swizzleIndex reduces k modulo n lanes.
func (p *Procedure) swizzleIndex(k ir.Value, n int) ir.Value {
	t := k.Type()
	if n&(n-1) == 0 {
		return p.b.BinOp(ir.OpAnd, k, ir.ScalarConst(t, int64(n-1)))
	}
	return p.b.BinOp(ir.OpURem, k, ir.ScalarConst(t, int64(n)))
}

// mergeFeatureAttrs adds features to the function's target-features and
// raises its min-legal-vector-width.
func (p *Procedure) mergeFeatureAttrs(features string, width int) {
	a := p.Fn.Attrs
	var all []string
	if cur, ok := a["target-features"]; ok && cur != "" {
		all = strings.Split(cur, ",")
	}
	all = lo.Uniq(append(all, strings.Split(features, ",")...))
	sort.Strings(all)
	a.Set("target-features", strings.Join(all, ","))

	if width > 0 {
		if cur, err := strconv.Atoi(a["min-legal-vector-width"]); err != nil || cur < width {
			a.Set("min-legal-vector-width", strconv.Itoa(width))
		}
	}
}

// emulateSwizzle masks each index into range and moves one lane at a time.
func (p *Procedure) emulateSwizzle(src, idx ir.Value) ir.Value {
	vt := src.Type().(*ir.VectorType)
	n := vt.Len
	var out ir.Value = ir.Undef(vt)
	for i := 0; i < n; i++ {
		lane := ir.ConstIntOf(ir.I32, int64(i))
		k := p.b.ExtractElement(idx, lane)
		pick := p.resize(p.swizzleIndex(k, n), ir.I32, false)
		out = p.b.InsertElement(out, p.b.ExtractElement(src, pick), lane)
	}
	return out
}
