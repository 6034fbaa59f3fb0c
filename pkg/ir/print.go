package ir

import (
	"fmt"
	"sort"
	"strings"
)

// String renders the module in a readable assembly-like form.
func (m *Module) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; module %s\n", m.Name)
	for _, g := range m.Globals() {
		kind := "global"
		if g.Constant {
			kind = "constant"
		}
		init := "zeroinitializer"
		if g.Init != nil {
			init = g.Init.Ident()
		}
		fmt.Fprintf(&sb, "%s = %s %s %s %s, align %d\n", g.Ident(), g.Linkage, kind, g.Elem, init, g.Align)
	}
	for _, f := range m.Functions() {
		sb.WriteString("\n")
		sb.WriteString(f.String())
	}
	return sb.String()
}

// String renders the function.
func (f *Function) String() string {
	var sb strings.Builder
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		s := p.Typ.String()
		if a, ok := f.ParamAttrs[i]; ok && len(a) > 0 {
			s += " " + a.String()
		}
		params[i] = s + " " + p.Ident()
	}
	if f.Sig.Variadic {
		params = append(params, "...")
	}
	kw := "define"
	if f.IsDeclaration() {
		kw = "declare"
	}
	fmt.Fprintf(&sb, "%s %s %s %s %s(%s)", kw, f.Linkage, f.CC, f.Sig.Ret, f.Ident(), strings.Join(params, ", "))
	if f.DLLExport {
		sb.WriteString(" dllexport")
	}
	if len(f.Attrs) > 0 {
		sb.WriteString(" #{" + f.Attrs.String() + "}")
	}
	if f.IsDeclaration() {
		sb.WriteString("\n")
		return sb.String()
	}
	sb.WriteString(" {\n")
	for _, b := range f.Blocks {
		fmt.Fprintf(&sb, "%s:\n", b.Name)
		for _, i := range b.Insts {
			sb.WriteString("  " + FormatInst(i) + "\n")
		}
		if b.Term != nil {
			sb.WriteString("  " + formatTerm(b.Term) + "\n")
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func operand(v Value) string {
	if v == nil {
		return "<nil>"
	}
	return v.Type().String() + " " + v.Ident()
}

func operands(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = operand(v)
	}
	return strings.Join(parts, ", ")
}

func atomicSuffix(volatile bool, ord Ordering) string {
	var s string
	if volatile {
		s += " volatile"
	}
	if ord != NotAtomic {
		s += " atomic " + ord.String()
	}
	return s
}

// IntrinsicName returns the overload-mangled name of an intrinsic call.
func IntrinsicName(name string, overloads []Type) string {
	for _, t := range overloads {
		name += "." + mangle(t)
	}
	return name
}

func mangle(t Type) string {
	switch t := t.(type) {
	case *VectorType:
		return fmt.Sprintf("v%d%s", t.Len, mangle(t.Elem))
	case FloatType:
		return fmt.Sprintf("f%d", t.Bits)
	case PtrType:
		return "p0"
	}
	return t.String()
}

// FormatInst renders one instruction.
func FormatInst(i Inst) string {
	switch i := i.(type) {
	case *Alloca:
		return fmt.Sprintf("%s = alloca %s, align %d", i.Ident(), i.Elem, i.Align)
	case *Load:
		s := fmt.Sprintf("%s = load%s %s, %s, align %d", i.Ident(), atomicSuffix(i.Volatile, i.Ordering), i.typ, operand(i.Ptr), i.Align)
		if i.NonTemporal {
			s += ", !nontemporal"
		}
		return s
	case *Store:
		s := fmt.Sprintf("store%s %s, %s, align %d", atomicSuffix(i.Volatile, i.Ordering), operand(i.Val), operand(i.Ptr), i.Align)
		if i.NonTemporal {
			s += ", !nontemporal"
		}
		return s
	case *BinOp:
		return fmt.Sprintf("%s = %s %s, %s", i.Ident(), i.Op, operand(i.X), i.Y.Ident())
	case *UnOp:
		return fmt.Sprintf("%s = %s %s", i.Ident(), i.Op, operand(i.X))
	case *ICmp:
		return fmt.Sprintf("%s = icmp %s %s, %s", i.Ident(), i.Pred, operand(i.X), i.Y.Ident())
	case *FCmp:
		return fmt.Sprintf("%s = fcmp %s %s, %s", i.Ident(), i.Pred, operand(i.X), i.Y.Ident())
	case *Select:
		return fmt.Sprintf("%s = select %s, %s, %s", i.Ident(), operand(i.Cond), operand(i.X), operand(i.Y))
	case *Cast:
		return fmt.Sprintf("%s = %s %s to %s", i.Ident(), i.Op, operand(i.X), i.typ)
	case *ExtractElement:
		return fmt.Sprintf("%s = extractelement %s, %s", i.Ident(), operand(i.Vec), operand(i.Index))
	case *InsertElement:
		return fmt.Sprintf("%s = insertelement %s, %s, %s", i.Ident(), operand(i.Vec), operand(i.Elem), operand(i.Index))
	case *ShuffleVector:
		mask := make([]string, len(i.Mask))
		for k, m := range i.Mask {
			if m < 0 {
				mask[k] = "undef"
			} else {
				mask[k] = fmt.Sprint(m)
			}
		}
		return fmt.Sprintf("%s = shufflevector %s, %s, <%s>", i.Ident(), operand(i.X), operand(i.Y), strings.Join(mask, ", "))
	case *ExtractValue:
		return fmt.Sprintf("%s = extractvalue %s, %d", i.Ident(), operand(i.Agg), i.Index)
	case *InsertValue:
		return fmt.Sprintf("%s = insertvalue %s, %s, %d", i.Ident(), operand(i.Agg), operand(i.Val), i.Index)
	case *StructGEP:
		return fmt.Sprintf("%s = getelementptr %s, %s, i32 0, i32 %d", i.Ident(), i.Struct, operand(i.Ptr), i.Field)
	case *IndexGEP:
		return fmt.Sprintf("%s = getelementptr %s, %s, %s", i.Ident(), i.Elem, operand(i.Ptr), operand(i.Index))
	case *Call:
		s := fmt.Sprintf("%s = call %s %s %s(%s)", i.Ident(), i.CC, i.Sig.Ret, i.Callee.Ident(), callArgs(i.Args, i.ParamAttrs))
		if len(i.Attrs) > 0 {
			s += " #{" + strings.Join(i.Attrs, " ") + "}"
		}
		return s
	case *IntrinsicCall:
		return fmt.Sprintf("%s = call %s @%s(%s)", i.Ident(), i.typ, IntrinsicName(i.Name, i.Overloads), operands(i.Args))
	case *AsmCall:
		return fmt.Sprintf("%s = call %s asm sideeffect %q, %q(%s)", i.Ident(), i.typ, i.Asm.Template, i.Asm.Constraints, operands(i.Args))
	case *AtomicRMW:
		s := "atomicrmw"
		if i.Volatile {
			s += " volatile"
		}
		return fmt.Sprintf("%s = %s %s %s, %s %s", i.Ident(), s, i.Op, operand(i.Ptr), operand(i.Val), i.Ordering)
	case *CmpXchg:
		s := "cmpxchg"
		if i.Weak {
			s += " weak"
		}
		if i.Volatile {
			s += " volatile"
		}
		return fmt.Sprintf("%s = %s %s, %s, %s %s %s", i.Ident(), s, operand(i.Ptr), operand(i.Old), operand(i.New), i.Success, i.Failure)
	case *Fence:
		if i.SingleThread {
			return "fence syncscope(\"singlethread\") " + i.Ordering.String()
		}
		return "fence " + i.Ordering.String()
	}
	return fmt.Sprintf("<unknown %T>", i)
}

func callArgs(args []Value, attrs map[int][]string) string {
	parts := make([]string, len(args))
	for k, a := range args {
		s := a.Type().String()
		if as := attrs[k]; len(as) > 0 {
			sorted := append([]string(nil), as...)
			sort.Strings(sorted)
			s += " " + strings.Join(sorted, " ")
		}
		parts[k] = s + " " + a.Ident()
	}
	return strings.Join(parts, ", ")
}

func formatTerm(t Terminator) string {
	switch t := t.(type) {
	case *Ret:
		if t.Val == nil {
			return "ret void"
		}
		return "ret " + operand(t.Val)
	case *Br:
		return "br label %" + t.Dest.Name
	case *CondBr:
		return fmt.Sprintf("br %s, label %%%s, label %%%s", operand(t.Cond), t.Then.Name, t.Else.Name)
	case *Unreachable:
		return "unreachable"
	}
	return fmt.Sprintf("<unknown %T>", t)
}
