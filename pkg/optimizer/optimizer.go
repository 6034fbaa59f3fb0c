// Package optimizer - IR-level cleanup passes
// Design: Cheap control-flow passes run on each function as it is finished
package optimizer

import (
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/logger"
)

// Result counts what the passes removed from one function.
type Result struct {
	Threaded int
	Removed  int
}

// OptimizeFunction threads jumps through empty blocks, then drops blocks
// that became unreachable.
func OptimizeFunction(fn *ir.Function) Result {
	if fn.IsDeclaration() {
		return Result{}
	}
	r := Result{Threaded: ThreadJumps(fn)}
	r.Removed = DeadCodeElimination(fn)
	if r.Threaded > 0 || r.Removed > 0 {
		logger.Debug("Optimized function", "function", fn.Name, "threaded", r.Threaded, "removed", r.Removed)
	}
	return r
}

// ThreadJumps retargets branches that land on an empty block ending in an
// unconditional branch. The entry block is never bypassed.
func ThreadJumps(fn *ir.Function) int {
	entry := fn.Blocks[0]
	forward := func(b *ir.Block) *ir.Block {
		seen := map[*ir.Block]bool{}
		for b != entry && len(b.Insts) == 0 && !seen[b] {
			br, ok := b.Term.(*ir.Br)
			if !ok {
				break
			}
			seen[b] = true
			b = br.Dest
		}
		return b
	}

	n := 0
	for _, block := range fn.Blocks {
		switch term := block.Term.(type) {
		case *ir.Br:
			if d := forward(term.Dest); d != term.Dest {
				term.Dest = d
				n++
			}
		case *ir.CondBr:
			if d := forward(term.Then); d != term.Then {
				term.Then = d
				n++
			}
			if d := forward(term.Else); d != term.Else {
				term.Else = d
				n++
			}
		}
	}
	return n
}

// DeadCodeElimination removes blocks unreachable from the entry block and
// returns how many were dropped.
func DeadCodeElimination(fn *ir.Function) int {
	reachable := make(map[*ir.Block]bool)
	worklist := []*ir.Block{fn.Blocks[0]}

	for len(worklist) > 0 {
		block := worklist[0]
		worklist = worklist[1:]

		if reachable[block] {
			continue
		}
		reachable[block] = true

		switch term := block.Term.(type) {
		case *ir.Br:
			worklist = append(worklist, term.Dest)
		case *ir.CondBr:
			worklist = append(worklist, term.Then, term.Else)
		}
	}

	newBlocks := make([]*ir.Block, 0, len(fn.Blocks))
	for _, block := range fn.Blocks {
		if reachable[block] {
			newBlocks = append(newBlocks, block)
		}
	}
	removed := len(fn.Blocks) - len(newBlocks)
	fn.Blocks = newBlocks
	return removed
}
