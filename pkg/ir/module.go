// Package ir defines the target-independent output of code generation:
// modules of functions built from basic blocks of typed instructions.
package ir

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/btree"
)

// Attrs is a set of string attributes with optional values.
type Attrs map[string]string

// Set adds or replaces an attribute.
func (a Attrs) Set(key, value string) { a[key] = value }

// Add adds a valueless attribute.
func (a Attrs) Add(key string) { a[key] = "" }

// Has reports whether key is present.
func (a Attrs) Has(key string) bool {
	_, ok := a[key]
	return ok
}

func (a Attrs) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		if v := a[k]; v != "" {
			parts[i] = fmt.Sprintf("%q=%q", k, v)
		} else {
			parts[i] = k
		}
	}
	return strings.Join(parts, " ")
}

// Block is a basic block.
type Block struct {
	Name   string
	Insts  []Inst
	Term   Terminator
	Parent *Function
}

// Terminated reports whether the block has a terminator.
func (b *Block) Terminated() bool { return b.Term != nil }

// Function is a native callable.
type Function struct {
	Name       string
	Sig        *FuncType
	Params     []*Param
	Blocks     []*Block
	CC         CallConv
	Linkage    Linkage
	DLLExport  bool
	Visibility string
	Attrs      Attrs
	ParamAttrs map[int]Attrs

	nextID    int
	nextBlock int
}

func (*Function) Type() Type       { return Ptr }
func (f *Function) Ident() string { return "@" + quoteName(f.Name) }

// IsDeclaration reports whether the function has no body.
func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

// ParamAttr returns the attribute set of parameter i, creating it.
func (f *Function) ParamAttr(i int) Attrs {
	if f.ParamAttrs == nil {
		f.ParamAttrs = make(map[int]Attrs)
	}
	a, ok := f.ParamAttrs[i]
	if !ok {
		a = Attrs{}
		f.ParamAttrs[i] = a
	}
	return a
}

// NewBlock appends a new block.
func (f *Function) NewBlock(name string) *Block {
	b := &Block{Name: fmt.Sprintf("%s_%d", name, f.nextBlock), Parent: f}
	f.nextBlock++
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Function) newTemp() int {
	id := f.nextID
	f.nextID++
	return id
}

// InstructionCount returns the number of instructions including terminators.
func (f *Function) InstructionCount() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Insts)
		if b.Term != nil {
			n++
		}
	}
	return n
}

// Module is a collection of functions and globals. Its tables may be
// mutated from several goroutines; function bodies may not.
type Module struct {
	Name string
	DL   DataLayout

	mu       sync.Mutex
	funcs    *btree.BTreeG[*Function]
	globals  *btree.BTreeG[*Global]
	nextAnon int
}

// NewModule creates an empty module.
func NewModule(name string, dl DataLayout) *Module {
	return &Module{
		Name:    name,
		DL:      dl,
		funcs:   btree.NewG(8, func(a, b *Function) bool { return a.Name < b.Name }),
		globals: btree.NewG(8, func(a, b *Global) bool { return a.Name < b.Name }),
	}
}

// AddFunction declares a function. It panics if the name is taken.
func (m *Module) AddFunction(name string, sig *FuncType) *Function {
	f := &Function{Name: name, Sig: sig, Attrs: Attrs{}}
	for i, t := range sig.Params {
		f.Params = append(f.Params, &Param{Typ: t, Index: i})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.funcs.Get(&Function{Name: name}); ok {
		panic(fmt.Sprintf("ir: function %q already defined", name))
	}
	m.funcs.ReplaceOrInsert(f)
	return f
}

// Function looks up a function by name.
func (m *Module) Function(name string) (*Function, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.funcs.Get(&Function{Name: name})
}

// Functions returns all functions ordered by name.
func (m *Module) Functions() []*Function {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Function, 0, m.funcs.Len())
	m.funcs.Ascend(func(f *Function) bool {
		out = append(out, f)
		return true
	})
	return out
}

// AddGlobal defines a global. An empty name allocates a unique private name.
func (m *Module) AddGlobal(name string, elem Type, init Value) *Global {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == "" {
		name = fmt.Sprintf("ggv$%d", m.nextAnon)
		m.nextAnon++
	}
	g := &Global{Name: name, Elem: elem, Init: init, Linkage: LinkageInternal}
	if _, ok := m.globals.Get(g); ok {
		panic(fmt.Sprintf("ir: global %q already defined", name))
	}
	m.globals.ReplaceOrInsert(g)
	return g
}

// Global looks up a global by name.
func (m *Module) Global(name string) (*Global, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.globals.Get(&Global{Name: name})
}

// Globals returns all globals ordered by name.
func (m *Module) Globals() []*Global {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Global, 0, m.globals.Len())
	m.globals.Ascend(func(g *Global) bool {
		out = append(out, g)
		return true
	})
	return out
}
