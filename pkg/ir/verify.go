package ir

import (
	"fmt"

	"go.uber.org/multierr"
)

// VerifyError describes one malformed construct.
type VerifyError struct {
	Function string
	Block    string
	Message  string
}

func (e *VerifyError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("%s: %s", e.Function, e.Message)
	}
	return fmt.Sprintf("%s/%s: %s", e.Function, e.Block, e.Message)
}

// Verify checks structural well-formedness of every defined function and
// returns all violations combined.
func Verify(m *Module) error {
	var err error
	for _, f := range m.Functions() {
		err = multierr.Append(err, VerifyFunction(f))
	}
	return err
}

// VerifyFunction checks one function.
func VerifyFunction(f *Function) error {
	var err error
	fail := func(b *Block, format string, args ...any) {
		name := ""
		if b != nil {
			name = b.Name
		}
		err = multierr.Append(err, &VerifyError{Function: f.Name, Block: name, Message: fmt.Sprintf(format, args...)})
	}

	if f.IsDeclaration() {
		return nil
	}
	if len(f.Params) != len(f.Sig.Params) {
		fail(nil, "has %d params, signature has %d", len(f.Params), len(f.Sig.Params))
	}
	for _, b := range f.Blocks {
		if b.Term == nil {
			fail(b, "block is not terminated")
		}
		for _, i := range b.Insts {
			switch i := i.(type) {
			case *Call:
				verifyArgs(i.Sig, i.Args, func(format string, args ...any) { fail(b, format, args...) })
			case *AsmCall:
				verifyArgs(i.Asm.Sig, i.Args, func(format string, args ...any) { fail(b, format, args...) })
			case *BinOp:
				if !Equal(i.X.Type(), i.Y.Type()) {
					fail(b, "%s operands differ: %s vs %s", i.Op, i.X.Type(), i.Y.Type())
				}
			case *Store:
				if !Equal(i.Ptr.Type(), Ptr) {
					fail(b, "store through non-pointer %s", i.Ptr.Type())
				}
			case *Load:
				if !Equal(i.Ptr.Type(), Ptr) {
					fail(b, "load through non-pointer %s", i.Ptr.Type())
				}
			}
		}
		if r, ok := b.Term.(*Ret); ok {
			switch {
			case r.Val == nil && !IsVoid(f.Sig.Ret):
				fail(b, "ret void in function returning %s", f.Sig.Ret)
			case r.Val != nil && !Equal(r.Val.Type(), f.Sig.Ret):
				fail(b, "ret %s in function returning %s", r.Val.Type(), f.Sig.Ret)
			}
		}
	}
	return err
}

func verifyArgs(sig *FuncType, args []Value, fail func(string, ...any)) {
	if len(args) < len(sig.Params) || (!sig.Variadic && len(args) != len(sig.Params)) {
		fail("call passes %d args to %s", len(args), sig)
		return
	}
	for k, p := range sig.Params {
		if !Equal(args[k].Type(), p) {
			fail("call arg %d is %s, want %s", k, args[k].Type(), p)
		}
	}
}
