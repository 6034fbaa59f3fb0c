// Package codegen lowers procedures and call expressions to IR while
// enforcing the native ABI of each calling convention, and lowers builtin
// procedures to intrinsics or inline machine code per target.
package codegen

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/callgen/pkg/abi"
	"github.com/GriffinCanCode/callgen/pkg/cache"
	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/logger"
	"github.com/GriffinCanCode/callgen/pkg/target"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// StmtBuilder lowers statements owned by the statement layer.
type StmtBuilder interface {
	BuildStmt(p *Procedure, stmt types.Node)
}

// ExprBuilder lowers expressions owned by the expression layer.
type ExprBuilder interface {
	BuildExpr(p *Procedure, expr types.Node) Value
	ExprString(expr types.Node) string
}

// DebugEmitter receives debug-info hooks at procedure entry and exit and
// for every bound parameter or local. paramIndex is 1-based for
// parameters and 0 for locals.
type DebugEmitter interface {
	ProcedureEntry(p *Procedure)
	ProcedureExit(p *Procedure)
	Variable(p *Procedure, e *types.Entity, ptr ir.Value, paramIndex int)
}

// StmtFunc is a statement lowered by calling it.
type StmtFunc func(p *Procedure)

// ExprFunc is an expression lowered by calling it.
type ExprFunc func(p *Procedure) Value

type funcStmts struct{}

func (funcStmts) BuildStmt(p *Procedure, stmt types.Node) {
	switch s := stmt.(type) {
	case nil:
	case StmtFunc:
		s(p)
	case []StmtFunc:
		for _, f := range s {
			f(p)
		}
	default:
		p.fatalf("no statement builder for %T", stmt)
	}
}

type funcExprs struct{}

func (funcExprs) BuildExpr(p *Procedure, expr types.Node) Value {
	f, ok := expr.(ExprFunc)
	if !ok {
		p.fatalf("no expression builder for %T", expr)
	}
	return f(p)
}

func (funcExprs) ExprString(expr types.Node) string {
	if s, ok := expr.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(expr)
}

type noDebug struct{}

func (noDebug) ProcedureEntry(*Procedure)                           {}
func (noDebug) ProcedureExit(*Procedure)                            {}
func (noDebug) Variable(*Procedure, *types.Entity, ir.Value, int) {}

// Stats counts generation events across all workers.
type Stats struct {
	ProceduresBuilt  atomic.Int64
	ProceduresReused atomic.Int64
	Calls            atomic.Int64
	DeferredAttached atomic.Int64
	SwizzleHardware  atomic.Int64
	SwizzleEmulated  atomic.Int64
	VariadicBuffers  atomic.Int64
	VariadicReuses   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	ProceduresBuilt  int64 `json:"procedures_built"`
	ProceduresReused int64 `json:"procedures_reused"`
	Calls            int64 `json:"calls"`
	DeferredAttached int64 `json:"deferred_attached"`
	SwizzleHardware  int64 `json:"swizzle_hardware"`
	SwizzleEmulated  int64 `json:"swizzle_emulated"`
	VariadicBuffers  int64 `json:"variadic_buffers"`
	VariadicReuses   int64 `json:"variadic_reuses"`
}

// Module is the per-module generation state shared by all workers.
type Module struct {
	Target *target.Target
	IR     *ir.Module
	Sizes  types.Sizes
	ABI    *abi.Cache

	Stmts StmtBuilder
	Exprs ExprBuilder
	Debug DebugEmitter
	// MinDepSet restricts which nested procedures are generated; nil
	// admits every entity.
	MinDepSet map[*types.Entity]bool

	values       *cache.Map[ir.Value]
	procs        *cache.Map[*Procedure]
	strings      *cache.Map[*ir.Global]
	entities     sync.Map // *types.Entity -> *Procedure
	procEntities sync.Map // *ir.Function -> *types.Entity

	mu    sync.Mutex
	queue []*Procedure

	stats Stats
}

// NewModule creates an empty module for tgt.
func NewModule(name string, tgt *target.Target) *Module {
	return &Module{
		Target:  tgt,
		IR:      ir.NewModule(name, tgt.DataLayout()),
		Sizes:   tgt.Sizes(),
		ABI:     abi.NewCache(tgt),
		Stmts:   funcStmts{},
		Exprs:   funcExprs{},
		Debug:   noDebug{},
		values:  cache.New[ir.Value](),
		procs:   cache.New[*Procedure](),
		strings: cache.New[*ir.Global](),
	}
}

// Value returns the native value registered under a link name.
func (m *Module) Value(linkName string) (ir.Value, bool) {
	return m.values.Get(linkName)
}

// Procedure returns the descriptor built for an entity.
func (m *Module) Procedure(e *types.Entity) (*Procedure, bool) {
	v, ok := m.entities.Load(e)
	if !ok {
		return nil, false
	}
	return v.(*Procedure), true
}

// ProcedureValue returns the callable of e, building its descriptor when
// needed. Nested procedures must have been built by their parent.
func (m *Module) ProcedureValue(e *types.Entity) Value {
	if p, ok := m.Procedure(e); ok {
		return Value{IR: p.Fn, Type: e.Type}
	}
	if e.Proc != nil && e.Proc.Parent != nil {
		fatalf("", "nested procedure %s referenced before it was built", e.Name)
	}
	p := m.CreateProcedure(e, false)
	if p == nil {
		fatalf("", "procedure %s has no instantiation", e.Name)
	}
	return Value{IR: p.Fn, Type: e.Type}
}

// Stats returns a snapshot of the generation counters.
func (m *Module) Stats() StatsSnapshot {
	s := &m.stats
	return StatsSnapshot{
		ProceduresBuilt:  s.ProceduresBuilt.Load(),
		ProceduresReused: s.ProceduresReused.Load(),
		Calls:            s.Calls.Load(),
		DeferredAttached: s.DeferredAttached.Load(),
		SwizzleHardware:  s.SwizzleHardware.Load(),
		SwizzleEmulated:  s.SwizzleEmulated.Load(),
		VariadicBuffers:  s.VariadicBuffers.Load(),
		VariadicReuses:   s.VariadicReuses.Load(),
	}
}

func (m *Module) enqueue(p *Procedure) {
	m.mu.Lock()
	m.queue = append(m.queue, p)
	m.mu.Unlock()
}

func (m *Module) drain() []*Procedure {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.queue
	m.queue = nil
	return batch
}

// Generate generates every queued procedure body on up to workers
// goroutines, repeating until procedures referenced along the way are
// generated too. An internal error aborts the whole module.
func (m *Module) Generate(ctx context.Context, workers int) error {
	if workers < 1 {
		workers = 1
	}
	logger.LogPhase("codegen")
	total := 0
	for {
		batch := m.drain()
		if len(batch) == 0 {
			break
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, p := range batch {
			p := p
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return p.generateRecovered()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		total += len(batch)
	}
	logger.LogPhaseComplete("codegen", total)
	return nil
}

func (p *Procedure) generateRecovered() (err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*InternalError)
			if !ok {
				ie = &InternalError{Procedure: p.Name, Message: fmt.Sprint(r)}
				logger.LogFatal(p.Name, ie.Message)
			}
			err = ie
		}
	}()
	p.Generate()
	return nil
}
