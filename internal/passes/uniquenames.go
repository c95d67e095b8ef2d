package passes

import (
	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
)

// UniqueNames gives every local declaration a program-wide unique name.
// Declarations whose name is already unique keep it, so running the pass on
// its own output changes nothing.
type UniqueNames struct{}

// NewUniqueNames constructs the pass.
func NewUniqueNames() *UniqueNames {
	return &UniqueNames{}
}

// Name implements the Pass interface.
func (*UniqueNames) Name() string {
	return "unique-names"
}

// Run implements the Pass interface.
func (u *UniqueNames) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	return renameWhere(env, prog, u.Name(), func(parent ir.Decl, n ir.Node) bool {
		switch n.(type) {
		case *ir.Action, *ir.Table, *ir.Variable, *ir.ConstDecl, *ir.Instantiation:
			return true
		}
		return false
	})
}

// UniqueParameters gives every action parameter a program-wide unique name.
// It only makes sense once actions are no longer shared between users.
type UniqueParameters struct{}

// NewUniqueParameters constructs the pass.
func NewUniqueParameters() *UniqueParameters {
	return &UniqueParameters{}
}

// Name implements the Pass interface.
func (*UniqueParameters) Name() string {
	return "unique-parameters"
}

// Requires implements the Requirer interface.
func (*UniqueParameters) Requires() []string {
	return []string{"localize-all-actions"}
}

// Run implements the Pass interface.
func (u *UniqueParameters) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	return renameWhere(env, prog, u.Name(), func(parent ir.Decl, n ir.Node) bool {
		_, isParam := n.(*ir.Param)
		_, inAction := parent.(*ir.Action)
		return isParam && inAction
	})
}

// renameWhere renames every non-top-level declaration selected by pick whose
// name is declared more than once, and rewrites the paths resolving to it.
// pick receives the innermost enclosing declaration of the candidate.
func renameWhere(env *Env, prog *ir.Program, user string, pick func(parent ir.Decl, n ir.Node) bool) (*ir.Program, error) {
	refs, err := env.Maps.RefsFor(prog, user)
	if err != nil {
		return nil, err
	}
	counts := sema.DeclCounts(prog)
	gen := sema.NewNameGen(prog)
	renames := make(map[ir.Decl]string)
	for _, top := range prog.Decls {
		collectNested(top, top, func(parent ir.Decl, n ir.Node) {
			d, ok := n.(ir.Decl)
			if !ok || !pick(parent, n) || counts[d.DeclName()] < 2 {
				return
			}
			if _, done := renames[d]; !done {
				renames[d] = gen.Fresh(d.DeclName())
			}
		})
	}
	if len(renames) == 0 {
		return prog, nil
	}
	rw := &ir.Rewriter{
		Expr: func(e ir.Expr) ir.Expr {
			if p, ok := e.(*ir.PathExpr); ok {
				if name, ok := renames[refs.Decl(p)]; ok {
					return &ir.PathExpr{Name: name}
				}
			}
			return e
		},
		Rename: func(d ir.Decl) string { return renames[d] },
	}
	return rw.RewriteProgram(prog), nil
}

// collectNested visits every node nested in d together with its innermost
// enclosing declaration, in source order. d itself is not visited.
func collectNested(d ir.Decl, parent ir.Decl, visit func(parent ir.Decl, n ir.Node)) {
	ir.Inspect(d, func(n ir.Node) bool {
		if n == d {
			return true
		}
		visit(parent, n)
		switch x := n.(type) {
		case *ir.Action, *ir.Parser, *ir.Control:
			collectNested(x.(ir.Decl), x.(ir.Decl), visit)
			return false
		}
		return true
	})
}
