package passes

import (
	"p4fpga/internal/ir"
)

// ResetHeaders makes the initial state of header locals explicit: a header
// variable declared without initializer is invalid, so a setInvalid() call
// is placed right after its declaration. Struct locals get one call per
// nested header. Block-level locals are reset at the start of the parser's
// start state or of the control's apply body.
type ResetHeaders struct{}

// NewResetHeaders constructs the pass.
func NewResetHeaders() *ResetHeaders {
	return &ResetHeaders{}
}

// Name implements the Pass interface.
func (*ResetHeaders) Name() string {
	return "reset-headers"
}

// Run implements the Pass interface.
func (*ResetHeaders) Run(env *Env, prog *ir.Program) (*ir.Program, error) {
	r := &resetter{headers: headerNames(prog), structs: make(map[string]*ir.StructType)}
	for _, d := range prog.Decls {
		if s, ok := d.(*ir.StructType); ok {
			r.structs[s.Name] = s
		}
	}
	rw := blockHook(r.expand)
	return mapDecls(prog, func(d ir.Decl) ir.Decl {
		switch x := d.(type) {
		case *ir.Parser:
			states := rewriteStates(x, rw, r.expand)
			if resets := r.localResets(x.Locals); len(resets) > 0 {
				states = append([]*ir.ParserState(nil), states...)
				for i, st := range states {
					if st.Name == ir.StartState {
						comps := append(append([]ir.Stmt(nil), resets...), st.Components...)
						states[i] = &ir.ParserState{Name: st.Name, Components: comps, Transition: st.Transition}
					}
				}
			}
			locals, lc := mapList(x.Locals, func(l ir.Decl) ir.Decl { return rw.RewriteDecl(l) })
			if !lc && sameStates(states, x.States) {
				return x
			}
			return &ir.Parser{Name: x.Name, Params: x.Params, Locals: locals, States: states}
		case *ir.Control:
			locals, lc := mapList(x.Locals, func(l ir.Decl) ir.Decl { return rw.RewriteDecl(l) })
			body := rw.RewriteBlock(x.Body)
			if resets := r.localResets(x.Locals); len(resets) > 0 {
				var stmts []ir.Stmt
				if body != nil {
					stmts = body.Stmts
				}
				body = &ir.BlockStmt{Stmts: append(resets, stmts...)}
			}
			if !lc && body == x.Body {
				return x
			}
			return &ir.Control{Name: x.Name, Params: x.Params, Locals: locals, Body: body}
		case *ir.Action:
			return withBody(x, rw.RewriteBlock(x.Body))
		}
		return d
	}), nil
}

func sameStates(a, b []*ir.ParserState) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type resetter struct {
	headers map[string]*ir.HeaderType
	structs map[string]*ir.StructType
}

func (r *resetter) localResets(locals []ir.Decl) []ir.Stmt {
	var out []ir.Stmt
	for _, l := range locals {
		if v, ok := l.(*ir.Variable); ok && v.Init == nil {
			out = append(out, r.resets(ir.Path(v.Name), v.Type)...)
		}
	}
	return out
}

func (r *resetter) resets(target ir.Expr, t ir.Type) []ir.Stmt {
	nt, ok := t.(*ir.NamedType)
	if !ok {
		return nil
	}
	if _, ok := r.headers[nt.Name]; ok {
		call := &ir.MethodCall{Method: &ir.Member{Expr: target, Name: ir.MethodSetInvalid}}
		return []ir.Stmt{&ir.CallStmt{Call: call}}
	}
	s, ok := r.structs[nt.Name]
	if !ok {
		return nil
	}
	var out []ir.Stmt
	for _, f := range s.Fields {
		out = append(out, r.resets(&ir.Member{Expr: ir.CloneExpr(target), Name: f.Name}, f.Type)...)
	}
	return out
}

func (r *resetter) expand(list []ir.Stmt) ([]ir.Stmt, bool) {
	changed := false
	var out []ir.Stmt
	for i, s := range list {
		v, ok := s.(*ir.VarDeclStmt)
		var extra []ir.Stmt
		if ok && v.Var.Init == nil {
			extra = r.resets(ir.Path(v.Var.Name), v.Var.Type)
		}
		if len(extra) > 0 && !changed {
			changed = true
			out = append([]ir.Stmt(nil), list[:i]...)
		}
		if changed {
			out = append(out, s)
			out = append(out, extra...)
		}
	}
	if !changed {
		return list, false
	}
	return out, true
}
