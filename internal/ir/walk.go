package ir

import "math/big"

// Inspect traverses the tree rooted at n in depth-first order, calling f for
// each node. If f returns false the children of that node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch x := n.(type) {
	case *Program:
		for _, d := range x.Decls {
			Inspect(d, f)
		}
	case *HeaderType:
		for _, fl := range x.Fields {
			Inspect(fl, f)
		}
	case *StructType:
		for _, fl := range x.Fields {
			Inspect(fl, f)
		}
	case *ExternType:
		for _, m := range x.Methods {
			Inspect(m, f)
		}
	case *Method:
		for _, p := range x.Params {
			Inspect(p, f)
		}
	case *PackageType:
		for _, p := range x.Params {
			Inspect(p, f)
		}
	case *Parser:
		for _, p := range x.Params {
			Inspect(p, f)
		}
		for _, d := range x.Locals {
			Inspect(d, f)
		}
		for _, s := range x.States {
			Inspect(s, f)
		}
	case *ParserState:
		for _, s := range x.Components {
			Inspect(s, f)
		}
		if x.Transition != nil {
			Inspect(x.Transition, f)
		}
	case *Select:
		for _, k := range x.Keys {
			Inspect(k, f)
		}
		for _, c := range x.Cases {
			Inspect(c, f)
		}
	case *SelectCase:
		for _, k := range x.Keysets {
			Inspect(k, f)
		}
	case *Keyset:
		if x.Value != nil {
			Inspect(x.Value, f)
		}
		if x.Mask != nil {
			Inspect(x.Mask, f)
		}
	case *Control:
		for _, p := range x.Params {
			Inspect(p, f)
		}
		for _, d := range x.Locals {
			Inspect(d, f)
		}
		if x.Body != nil {
			Inspect(x.Body, f)
		}
	case *Action:
		for _, p := range x.Params {
			Inspect(p, f)
		}
		if x.Body != nil {
			Inspect(x.Body, f)
		}
	case *Table:
		for _, k := range x.Keys {
			Inspect(k, f)
		}
		for _, a := range x.Actions {
			Inspect(a, f)
		}
		if x.Default != nil {
			Inspect(x.Default, f)
		}
	case *KeyElement:
		Inspect(x.Expr, f)
	case *ActionRef:
		Inspect(x.Action, f)
		for _, a := range x.Args {
			Inspect(a, f)
		}
	case *Variable:
		if x.Init != nil {
			Inspect(x.Init, f)
		}
	case *ConstDecl:
		Inspect(x.Value, f)
	case *Instantiation:
		for _, a := range x.Args {
			Inspect(a, f)
		}
	case *Member:
		Inspect(x.Expr, f)
	case *Binary:
		Inspect(x.Left, f)
		Inspect(x.Right, f)
	case *Unary:
		Inspect(x.Expr, f)
	case *Cast:
		Inspect(x.Expr, f)
	case *Slice:
		Inspect(x.Expr, f)
	case *MethodCall:
		Inspect(x.Method, f)
		for _, a := range x.Args {
			Inspect(a, f)
		}
	case *ConstructorCall:
		for _, a := range x.Args {
			Inspect(a, f)
		}
	case *AssignStmt:
		Inspect(x.Left, f)
		Inspect(x.Right, f)
	case *CallStmt:
		Inspect(x.Call, f)
	case *IfStmt:
		Inspect(x.Cond, f)
		Inspect(x.Then, f)
		if x.Else != nil {
			Inspect(x.Else, f)
		}
	case *BlockStmt:
		for _, s := range x.Stmts {
			Inspect(s, f)
		}
	case *VarDeclStmt:
		Inspect(x.Var, f)
	}
}

// Rewriter rebuilds expression and statement trees bottom-up. Hooks receive a
// node whose children were already rewritten and return its replacement.
// Unchanged subtrees are shared with the input.
type Rewriter struct {
	Expr func(Expr) Expr
	Stmt func(Stmt) Stmt
	// Rename, when set, receives every declaration of the input (locals,
	// parameters, statement variables) and returns its new name, or "" to
	// keep it.
	Rename func(Decl) string
}

func (r *Rewriter) name(d Decl) string {
	if r.Rename != nil {
		if n := r.Rename(d); n != "" {
			return n
		}
	}
	return d.DeclName()
}

func (r *Rewriter) params(list []*Param) []*Param {
	if r.Rename == nil {
		return list
	}
	var out []*Param
	for i, p := range list {
		n := r.name(p)
		if n != p.Name && out == nil {
			out = make([]*Param, len(list))
			copy(out, list[:i])
		}
		if out != nil {
			if n != p.Name {
				out[i] = &Param{Name: n, Dir: p.Dir, Type: p.Type}
			} else {
				out[i] = p
			}
		}
	}
	if out == nil {
		return list
	}
	return out
}

// RewriteExpr rewrites e.
func (r *Rewriter) RewriteExpr(e Expr) Expr {
	if e == nil {
		return nil
	}
	var out Expr = e
	switch x := e.(type) {
	case *Member:
		if sub := r.RewriteExpr(x.Expr); sub != x.Expr {
			out = &Member{Expr: sub, Name: x.Name}
		}
	case *Binary:
		l, rr := r.RewriteExpr(x.Left), r.RewriteExpr(x.Right)
		if l != x.Left || rr != x.Right {
			out = &Binary{Op: x.Op, Left: l, Right: rr}
		}
	case *Unary:
		if sub := r.RewriteExpr(x.Expr); sub != x.Expr {
			out = &Unary{Op: x.Op, Expr: sub}
		}
	case *Cast:
		if sub := r.RewriteExpr(x.Expr); sub != x.Expr {
			out = &Cast{Type: x.Type, Expr: sub}
		}
	case *Slice:
		if sub := r.RewriteExpr(x.Expr); sub != x.Expr {
			out = &Slice{Expr: sub, Hi: x.Hi, Lo: x.Lo}
		}
	case *MethodCall:
		m := r.RewriteExpr(x.Method)
		args, changed := r.RewriteExprs(x.Args)
		if m != x.Method || changed {
			out = &MethodCall{Method: m, Args: args}
		}
	case *ConstructorCall:
		if args, changed := r.RewriteExprs(x.Args); changed {
			out = &ConstructorCall{Type: x.Type, Args: args}
		}
	}
	if r.Expr != nil {
		out = r.Expr(out)
	}
	return out
}

// RewriteExprs rewrites a list and reports whether any element changed.
func (r *Rewriter) RewriteExprs(list []Expr) ([]Expr, bool) {
	var out []Expr
	for i, e := range list {
		n := r.RewriteExpr(e)
		if n != e && out == nil {
			out = make([]Expr, len(list))
			copy(out, list[:i])
		}
		if out != nil {
			out[i] = n
		}
	}
	if out == nil {
		return list, false
	}
	return out, true
}

func (r *Rewriter) rewriteCall(c *MethodCall) *MethodCall {
	if c == nil {
		return nil
	}
	if n, ok := r.RewriteExpr(c).(*MethodCall); ok {
		return n
	}
	return c
}

// RewriteStmt rewrites s.
func (r *Rewriter) RewriteStmt(s Stmt) Stmt {
	if s == nil {
		return nil
	}
	var out Stmt = s
	switch x := s.(type) {
	case *AssignStmt:
		l, rr := r.RewriteExpr(x.Left), r.RewriteExpr(x.Right)
		if l != x.Left || rr != x.Right {
			out = &AssignStmt{Left: l, Right: rr}
		}
	case *CallStmt:
		if c := r.rewriteCall(x.Call); c != x.Call {
			out = &CallStmt{Call: c}
		}
	case *IfStmt:
		c := r.RewriteExpr(x.Cond)
		t := r.RewriteStmt(x.Then)
		e := r.RewriteStmt(x.Else)
		if c != x.Cond || t != x.Then || e != x.Else {
			out = &IfStmt{Cond: c, Then: t, Else: e}
		}
	case *BlockStmt:
		if stmts, changed := r.RewriteStmts(x.Stmts); changed {
			out = &BlockStmt{Stmts: stmts}
		}
	case *VarDeclStmt:
		if v := r.rewriteVariable(x.Var); v != x.Var {
			out = &VarDeclStmt{Var: v}
		}
	}
	if r.Stmt != nil {
		out = r.Stmt(out)
	}
	return out
}

// RewriteStmts rewrites a statement list.
func (r *Rewriter) RewriteStmts(list []Stmt) ([]Stmt, bool) {
	var out []Stmt
	for i, s := range list {
		n := r.RewriteStmt(s)
		if n != s && out == nil {
			out = make([]Stmt, len(list))
			copy(out, list[:i])
		}
		if out != nil {
			out[i] = n
		}
	}
	if out == nil {
		return list, false
	}
	return out, true
}

// RewriteBlock rewrites b and always returns a block.
func (r *Rewriter) RewriteBlock(b *BlockStmt) *BlockStmt {
	if b == nil {
		return nil
	}
	switch n := r.RewriteStmt(b).(type) {
	case *BlockStmt:
		return n
	case nil:
		return &BlockStmt{}
	default:
		return &BlockStmt{Stmts: []Stmt{n}}
	}
}

func (r *Rewriter) rewriteVariable(v *Variable) *Variable {
	if v == nil {
		return v
	}
	name := r.name(v)
	init := r.RewriteExpr(v.Init)
	if init != v.Init || name != v.Name {
		return &Variable{Name: name, Type: v.Type, Init: init}
	}
	return v
}

func (r *Rewriter) rewriteActionRef(a *ActionRef) *ActionRef {
	if a == nil {
		return nil
	}
	path := a.Action
	if p, ok := r.RewriteExpr(a.Action).(*PathExpr); ok {
		path = p
	}
	args, changed := r.RewriteExprs(a.Args)
	if path == a.Action && !changed {
		return a
	}
	return &ActionRef{Action: path, Args: args}
}

// RewriteDecl applies the rewriter to every expression and statement nested
// in d. Types are preserved; names change only through Rename.
func (r *Rewriter) RewriteDecl(d Decl) Decl {
	switch x := d.(type) {
	case *Parser:
		locals, lc := r.RewriteDecls(x.Locals)
		var states []*ParserState
		for i, s := range x.States {
			ns := r.rewriteState(s)
			if ns != s && states == nil {
				states = make([]*ParserState, len(x.States))
				copy(states, x.States[:i])
			}
			if states != nil {
				states[i] = ns
			}
		}
		name, params := r.name(x), r.params(x.Params)
		if !lc && states == nil && name == x.Name && sameParams(params, x.Params) {
			return x
		}
		if states == nil {
			states = x.States
		}
		return &Parser{Name: name, Params: params, Locals: locals, States: states}
	case *Control:
		locals, lc := r.RewriteDecls(x.Locals)
		body := r.RewriteBlock(x.Body)
		name, params := r.name(x), r.params(x.Params)
		if !lc && body == x.Body && name == x.Name && sameParams(params, x.Params) {
			return x
		}
		return &Control{Name: name, Params: params, Locals: locals, Body: body}
	case *Action:
		body := r.RewriteBlock(x.Body)
		name, params := r.name(x), r.params(x.Params)
		if body == x.Body && name == x.Name && sameParams(params, x.Params) {
			return x
		}
		return &Action{Name: name, Params: params, Body: body}
	case *Table:
		changed := false
		keys := make([]*KeyElement, len(x.Keys))
		for i, k := range x.Keys {
			e := r.RewriteExpr(k.Expr)
			if e != k.Expr {
				changed = true
				keys[i] = &KeyElement{Expr: e, MatchKind: k.MatchKind}
			} else {
				keys[i] = k
			}
		}
		actions := make([]*ActionRef, len(x.Actions))
		for i, a := range x.Actions {
			actions[i] = r.rewriteActionRef(a)
			if actions[i] != a {
				changed = true
			}
		}
		def := r.rewriteActionRef(x.Default)
		if def != x.Default {
			changed = true
		}
		name := r.name(x)
		if !changed && name == x.Name {
			return x
		}
		return &Table{Name: name, Keys: keys, Actions: actions, Default: def, Size: x.Size}
	case *Variable:
		return r.rewriteVariable(x)
	case *ConstDecl:
		v, name := r.RewriteExpr(x.Value), r.name(x)
		if v != x.Value || name != x.Name {
			return &ConstDecl{Name: name, Type: x.Type, Value: v}
		}
		return x
	case *Instantiation:
		args, changed := r.RewriteExprs(x.Args)
		name := r.name(x)
		if changed || name != x.Name {
			return &Instantiation{Name: name, Type: x.Type, Args: args}
		}
		return x
	default:
		return d
	}
}

func sameParams(a, b []*Param) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

// RewriteDecls rewrites a declaration list.
func (r *Rewriter) RewriteDecls(list []Decl) ([]Decl, bool) {
	var out []Decl
	for i, d := range list {
		n := r.RewriteDecl(d)
		if n != d && out == nil {
			out = make([]Decl, len(list))
			copy(out, list[:i])
		}
		if out != nil {
			out[i] = n
		}
	}
	if out == nil {
		return list, false
	}
	return out, true
}

// RewriteProgram rewrites every declaration of p. It returns p itself when
// nothing changed.
func (r *Rewriter) RewriteProgram(p *Program) *Program {
	decls, changed := r.RewriteDecls(p.Decls)
	if !changed {
		return p
	}
	return &Program{Decls: decls}
}

func (r *Rewriter) rewriteState(s *ParserState) *ParserState {
	comps, cc := r.RewriteStmts(s.Components)
	trans := s.Transition
	if sel, ok := s.Transition.(*Select); ok {
		keys, kc := r.RewriteExprs(sel.Keys)
		casesChanged := false
		cases := make([]*SelectCase, len(sel.Cases))
		for i, c := range sel.Cases {
			cases[i] = c
			var sets []*Keyset
			for j, ks := range c.Keysets {
				v, m := r.RewriteExpr(ks.Value), r.RewriteExpr(ks.Mask)
				if v == ks.Value && m == ks.Mask {
					continue
				}
				if sets == nil {
					sets = make([]*Keyset, len(c.Keysets))
					copy(sets, c.Keysets)
				}
				sets[j] = &Keyset{Value: v, Mask: m, Default: ks.Default}
			}
			if sets != nil {
				cases[i] = &SelectCase{Keysets: sets, State: c.State}
				casesChanged = true
			}
		}
		if kc || casesChanged {
			trans = &Select{Keys: keys, Cases: cases}
		}
	}
	if !cc && trans == s.Transition {
		return s
	}
	return &ParserState{Name: s.Name, Components: comps, Transition: trans}
}

func cloner() *Rewriter {
	return &Rewriter{
		Expr: func(e Expr) Expr {
			switch x := e.(type) {
			case *PathExpr:
				return &PathExpr{Name: x.Name}
			case *Constant:
				return &Constant{Value: new(big.Int).Set(x.Value), Type: x.Type}
			case *BoolLit:
				return &BoolLit{Value: x.Value}
			}
			return e
		},
		Stmt: func(s Stmt) Stmt {
			if v, ok := s.(*VarDeclStmt); ok {
				cp := *v.Var
				return &VarDeclStmt{Var: &cp}
			}
			return s
		},
	}
}

// CloneExpr returns a deep copy of e.
func CloneExpr(e Expr) Expr {
	return cloner().RewriteExpr(e)
}

// CloneStmt returns a deep copy of s. Declarations inside s are new nodes.
func CloneStmt(s Stmt) Stmt {
	return cloner().RewriteStmt(s)
}

// CloneBlock returns a deep copy of b.
func CloneBlock(b *BlockStmt) *BlockStmt {
	if b == nil {
		return nil
	}
	c := cloner().RewriteBlock(b)
	if c == b {
		return &BlockStmt{Stmts: append([]Stmt(nil), b.Stmts...)}
	}
	return c
}

// CloneParams copies a parameter list into fresh declarations.
func CloneParams(params []*Param) []*Param {
	out := make([]*Param, len(params))
	for i, p := range params {
		cp := *p
		out[i] = &cp
	}
	return out
}

// CloneDecl returns a deep copy of d. Every nested declaration is a new node,
// so references inside the copy can be resolved independently.
func CloneDecl(d Decl) Decl {
	c := cloner()
	switch x := d.(type) {
	case *Action:
		return &Action{Name: x.Name, Params: CloneParams(x.Params), Body: CloneBlock(x.Body)}
	case *Table:
		t := c.RewriteDecl(x).(*Table)
		if t == x {
			cp := *x
			return &cp
		}
		return t
	case *Variable:
		cp := *x
		if x.Init != nil {
			cp.Init = CloneExpr(x.Init)
		}
		return &cp
	case *ConstDecl:
		return &ConstDecl{Name: x.Name, Type: x.Type, Value: CloneExpr(x.Value)}
	case *Instantiation:
		args, _ := c.RewriteExprs(x.Args)
		return &Instantiation{Name: x.Name, Type: x.Type, Args: append([]Expr(nil), args...)}
	case *Control:
		locals := make([]Decl, len(x.Locals))
		for i, l := range x.Locals {
			locals[i] = CloneDecl(l)
		}
		return &Control{Name: x.Name, Params: CloneParams(x.Params), Locals: locals, Body: CloneBlock(x.Body)}
	case *Parser:
		locals := make([]Decl, len(x.Locals))
		for i, l := range x.Locals {
			locals[i] = CloneDecl(l)
		}
		states := make([]*ParserState, len(x.States))
		for i, s := range x.States {
			ns := c.rewriteState(s)
			if ns == s {
				cp := *s
				ns = &cp
			}
			states[i] = ns
		}
		return &Parser{Name: x.Name, Params: CloneParams(x.Params), Locals: locals, States: states}
	default:
		return d
	}
}

// Flatten returns the statements of s with nested blocks spliced in.
func Flatten(s Stmt) []Stmt {
	switch x := s.(type) {
	case nil:
		return nil
	case *BlockStmt:
		var out []Stmt
		for _, st := range x.Stmts {
			out = append(out, Flatten(st)...)
		}
		return out
	case *EmptyStmt:
		return nil
	default:
		return []Stmt{s}
	}
}
