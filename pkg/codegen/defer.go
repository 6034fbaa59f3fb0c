package codegen

import "github.com/GriffinCanCode/callgen/pkg/types"

// ExitKind selects which pending defers run when control leaves a scope.
type ExitKind int

const (
	// ExitDefault runs the defers of the innermost scope.
	ExitDefault ExitKind = iota
	// ExitReturn runs every pending defer.
	ExitReturn
	// ExitBranch runs the defers of scopes deeper than the branch target.
	ExitBranch
)

type deferEntry struct {
	scope  int
	stmt   types.Node
	callee Value
	args   []Value
}

// OpenScope enters a lexical scope.
func (p *Procedure) OpenScope() { p.scopeIndex++ }

// CloseScope leaves the innermost scope, running its defers on fallthrough.
func (p *Procedure) CloseScope(exit ExitKind) {
	if exit == ExitDefault && !p.b.Block().Terminated() {
		p.EmitDefers(ExitDefault, 0)
	}
	for len(p.defers) > 0 && p.defers[len(p.defers)-1].scope >= p.scopeIndex {
		p.defers = p.defers[:len(p.defers)-1]
	}
	p.scopeIndex--
}

// ScopeIndex returns the current lexical depth.
func (p *Procedure) ScopeIndex() int { return p.scopeIndex }

// AddDeferStmt schedules a statement for the current scope.
func (p *Procedure) AddDeferStmt(stmt types.Node) {
	p.defers = append(p.defers, deferEntry{scope: p.scopeIndex, stmt: stmt})
}

// AddDeferProc schedules a call for the current scope. The arguments are
// evaluated now.
func (p *Procedure) AddDeferProc(callee Value, args []Value) {
	p.defers = append(p.defers, deferEntry{scope: p.scopeIndex, callee: callee, args: args})
}

// EmitDefers emits pending defers in reverse registration order without
// popping them. targetScope is the depth of the branch target for
// ExitBranch and ignored otherwise.
func (p *Procedure) EmitDefers(exit ExitKind, targetScope int) {
	for i := len(p.defers) - 1; i >= 0; i-- {
		d := p.defers[i]
		switch exit {
		case ExitDefault:
			if d.scope < p.scopeIndex {
				return
			}
			if d.scope > p.scopeIndex {
				continue
			}
		case ExitBranch:
			if d.scope <= targetScope {
				return
			}
		}
		p.emitDefer(d)
	}
}

func (p *Procedure) emitDefer(d deferEntry) {
	if d.callee.Valid() {
		p.EmitCall(d.callee, d.args, types.InliningNone)
		return
	}
	p.Module.Stmts.BuildStmt(p, d.stmt)
}
