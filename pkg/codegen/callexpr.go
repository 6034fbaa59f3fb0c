package codegen

import (
	"github.com/samber/lo"

	"github.com/GriffinCanCode/callgen/pkg/ir"
	"github.com/GriffinCanCode/callgen/pkg/types"
)

// NamedArg is an argument bound to a parameter by name.
type NamedArg struct {
	Name  string
	Value Value
	Expr  types.Node
}

// CallSite is a checked call expression with its operands already lowered.
type CallSite struct {
	Callee Value
	// Entity is the callee's declaration when it is named. Builtin
	// entities are lowered in place and Callee is ignored.
	Entity *types.Entity
	// Args are the positional arguments; tuple values expand in place.
	Args []Value
	// ArgExprs are the source expressions of Args, used when a default
	// parameter stringifies its argument.
	ArgExprs []types.Node
	Named    []NamedArg
	// Expand passes the final positional slice as the variadic parameter.
	Expand bool
	Expr   types.Node
	Pos    types.Pos

	Inlining types.Inlining
	// OptionalOK selects the first result of a multi-value call.
	OptionalOK bool

	// Result and Order are the builtin result type and memory orderings.
	Result types.Type
	Order  []types.AtomicOrdering
}

// BuildCall marshals a call expression into one argument per declared
// parameter and emits the call.
func (p *Procedure) BuildCall(cs CallSite) Value {
	if cs.Entity != nil && cs.Entity.Kind == types.EntityBuiltin {
		return p.buildBuiltinCall(cs)
	}
	sig, ok := cs.Callee.Type.Underlying().(*types.Proc)
	if !ok {
		p.fatalf("call of non-procedure %s", cs.Callee.Type)
	}
	params := sig.ParamVars()
	n := len(params)

	var pos []Value
	var posExprs []types.Node
	for i, a := range cs.Args {
		var expr types.Node
		if i < len(cs.ArgExprs) {
			expr = cs.ArgExprs[i]
		}
		for _, v := range p.Values(a) {
			pos = append(pos, v)
			posExprs = append(posExprs, expr)
		}
	}

	args := make([]Value, n)
	exprs := make([]types.Node, n)
	vi := -1
	if sig.Variadic {
		vi = sig.VariadicIndex
	}
	for i, v := range pos {
		if i == vi {
			break
		}
		if i >= n {
			p.fatalf("%d positional args to %s", len(pos), sig)
		}
		args[i] = p.fixedArg(params[i], v)
		exprs[i] = posExprs[i]
	}

	var tail []Value
	if vi >= 0 {
		var vargs []Value
		if len(pos) > vi {
			vargs = pos[vi:]
		}
		vparam := params[vi]
		switch {
		case sig.CVararg:
			for _, v := range vargs {
				tail = append(tail, p.cVararg(v))
			}
		case cs.Expand:
			if len(vargs) != 1 {
				p.fatalf("expanded variadic call passes %d values", len(vargs))
			}
			args[vi] = p.Conv(vargs[0], vparam.Type)
		default:
			args[vi] = p.variadicSlice(vparam.Type, vargs)
		}
	}

	for _, na := range cs.Named {
		_, idx, found := lo.FindIndexOf(params, func(e *types.Entity) bool { return e.Name == na.Name })
		if !found {
			p.fatalf("no parameter %q in %s", na.Name, sig)
		}
		args[idx] = p.fixedArg(params[idx], na.Value)
		exprs[idx] = na.Expr
	}

	for i, e := range params {
		if args[i].Valid() || i == vi {
			continue
		}
		switch e.Kind {
		case types.EntityTypeName:
		case types.EntityConstant:
			args[i] = p.Module.ConstValue(e.Type, e.Value)
		default:
			args[i] = p.paramDefault(e, cs, params, exprs)
		}
	}
	for i, e := range params {
		if e.Kind == types.EntityVariable && args[i].Valid() && i != vi {
			args[i] = p.Conv(args[i], e.Type)
		}
	}

	if sig.CVararg {
		args = append(args[:n-1:n-1], tail...)
	}
	res := p.EmitCall(cs.Callee, args, cs.Inlining)
	if cs.OptionalOK && res.Valid() && types.IsTuple(res.Type) {
		return p.TupleValue(res, 0)
	}
	return res
}

// buildBuiltinCall lowers a call of a builtin entity. Tuple arguments
// expand in place like ordinary positional arguments.
func (p *Procedure) buildBuiltinCall(cs CallSite) Value {
	id, ok := LookupBuiltin(cs.Entity.Name)
	if !ok {
		p.fatalf("unknown builtin %q", cs.Entity.Name)
	}
	var args []Value
	for _, a := range cs.Args {
		args = append(args, p.Values(a)...)
	}
	res := p.LowerBuiltin(BuiltinCall{ID: id, Args: args, Result: cs.Result, Order: cs.Order})
	if cs.OptionalOK && res.Valid() && types.IsTuple(res.Type) {
		return p.TupleValue(res, 0)
	}
	return res
}

func (p *Procedure) fixedArg(e *types.Entity, v Value) Value {
	switch e.Kind {
	case types.EntityTypeName:
		return Value{}
	case types.EntityConstant:
		return p.Module.ConstValue(e.Type, e.Value)
	}
	return v
}

// paramDefault synthesizes a missing argument from the parameter's default
// value policy.
func (p *Procedure) paramDefault(e *types.Entity, cs CallSite, params []*types.Entity, exprs []types.Node) Value {
	pv := e.ParamValue
	switch pv.Kind {
	case types.ParamValueConstant:
		return p.Module.ConstValue(e.Type, pv.Value)
	case types.ParamValueNil:
		return p.Module.Zero(e.Type)
	case types.ParamValueLocation:
		return p.Conv(p.SourceLocation(cs.Pos), e.Type)
	case types.ParamValueExpression:
		expr := cs.Expr
		if pv.Target != "" {
			_, idx, found := lo.FindIndexOf(params, func(q *types.Entity) bool { return q.Name == pv.Target })
			if !found {
				p.fatalf("default of %s names unknown parameter %q", e.Name, pv.Target)
			}
			expr = exprs[idx]
		}
		text := ""
		if expr != nil {
			text = p.Module.Exprs.ExprString(expr)
		}
		return p.Conv(p.Module.ConstString(text), e.Type)
	case types.ParamValueValue:
		return p.Conv(p.Module.Exprs.BuildExpr(p, pv.Expr), e.Type)
	}
	p.fatalf("parameter %s has no argument and no default", e.Name)
	return Value{}
}

// SourceLocation returns the runtime location record of pos inside p.
func (p *Procedure) SourceLocation(pos types.Pos) Value {
	name := p.Name
	if p.Entity != nil {
		name = p.Entity.Name
	}
	return p.Module.ConstValue(types.SourceCodeLocation, []any{pos.File, pos.Line, pos.Column, name})
}

// cVararg applies C default argument promotion.
func (p *Procedure) cVararg(v Value) Value {
	t := v.Type
	switch {
	case types.IsUntypedNil(t):
		return Value{IR: ir.Null(), Type: types.Rawptr}
	case types.IsBoolean(t), types.IsInteger(t) && p.Module.Sizes.SizeOf(t) < 4:
		return p.Conv(v, types.Int32)
	case types.IsFloat(t) && p.Module.Sizes.SizeOf(t) < 8:
		return p.Conv(v, types.Float64)
	}
	return v
}
