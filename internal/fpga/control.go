package fpga

import (
	"fmt"
	"math/bits"
	"strings"

	"p4fpga/internal/evaluator"
	"p4fpga/internal/ir"
)

func (b *builder) control(n *evaluator.Node) *Control {
	decl := n.Decl.(*ir.Control)
	out := &Control{Name: n.Name, Type: decl.Name}
	roots := make(map[string]bool, len(decl.Params))
	for _, p := range decl.Params {
		roots[p.Name] = true
	}
	actions := make(map[string]*Action)
	tables := make(map[string]*ir.Table)
	for _, l := range decl.Locals {
		switch x := l.(type) {
		case *ir.Action:
			a := b.action(x, roots)
			actions[a.Name] = a
			out.Actions = append(out.Actions, a)
		case *ir.Table:
			tables[x.Name] = x
		}
	}
	g := &flow{builder: b, control: out, tables: tables, actions: actions}
	g.build(decl.Body)
	applied := make(map[string]bool)
	for _, blk := range out.Blocks {
		if blk.Kind == BlockTable && !applied[blk.Label] {
			applied[blk.Label] = true
			out.Tables = append(out.Tables, b.table(tables[blk.Label], actions))
		}
	}
	out.Deps = dependencies(out.Tables, actions)
	return out
}

func (b *builder) action(a *ir.Action, roots map[string]bool) *Action {
	out := &Action{Name: a.Name, Enum: CamelCase(a.Name)}
	for _, p := range a.Params {
		out.Params = append(out.Params, Param{Name: FieldName(p.Name), Width: b.types.Width(p.Type)})
	}
	stmts := ir.Flatten(a.Body)
	for _, s := range stmts {
		out.Body = append(out.Body, ir.StmtLines(s)...)
	}
	reads, writes := accesses(stmts, roots)
	out.Reads, out.Writes = sortedKeys(reads), sortedKeys(writes)
	return out
}

func (b *builder) table(t *ir.Table, actions map[string]*Action) *Table {
	out := &Table{
		Name:       t.Name,
		Block:      BlockName(t.Name),
		MatchType:  ir.MatchExact,
		Depth:      t.Size,
		Response:   TypeName(t.Name + "_resp"),
		ActionEnum: TypeName(t.Name + "_action"),
	}
	if out.Depth <= 0 {
		out.Depth = DefaultTableDepth
	}
	var reqFields []Field
	for _, k := range t.Keys {
		path := ir.ExprString(k.Expr)
		key := Key{Expr: path, Field: KeyField(path), Width: b.width(k.Expr), MatchKind: k.MatchKind}
		if k.MatchKind != ir.MatchExact {
			out.MatchType = ir.MatchTernary
		}
		out.Keys = append(out.Keys, key)
		reqFields = append(reqFields, Field{Name: key.Field, Width: key.Width})
		b.addMeta(key)
	}
	if len(reqFields) > 0 {
		out.Request = TypeName(t.Name + "_req")
		b.model.Structs = append(b.model.Structs, &Struct{Name: out.Request, Source: t.Name, Kind: KindRequest, Fields: reqFields})
	}

	enum := &Enum{Name: out.ActionEnum}
	var argFields []Field
	for _, ref := range t.Actions {
		out.Actions = append(out.Actions, ref.Action.Name)
		a := actions[ref.Action.Name]
		if a == nil {
			b.reporter.Error("table %1%: action %2% is not local to its control", t.Name, ref.Action.Name)
			continue
		}
		enum.Labels = append(enum.Labels, a.Enum)
		for _, p := range a.Params {
			argFields = append(argFields, Field{Name: FieldName(a.Name + "_" + p.Name), Width: p.Width})
		}
	}
	enum.Width = enumWidth(len(enum.Labels))
	b.model.Enums = append(b.model.Enums, enum)
	respFields := append([]Field{{Name: "act", Width: enum.Width, Type: enum.Name}}, argFields...)
	b.model.Structs = append(b.model.Structs, &Struct{Name: out.Response, Source: t.Name, Kind: KindResponse, Fields: respFields})

	if t.Default != nil {
		out.Default = t.Default.Action.Name
		for _, e := range t.Default.Args {
			out.DefaultArgs = append(out.DefaultArgs, ir.ExprString(e))
		}
	}
	return out
}

func enumWidth(n int) int {
	if n <= 1 {
		return 1
	}
	return bits.Len(uint(n - 1))
}

// flow splits a control body into basic blocks.
type flow struct {
	*builder
	control *Control
	tables  map[string]*ir.Table
	actions map[string]*Action
	pending []ir.Stmt
	nconds  int
	nstmts  int
}

// exit is a dangling edge waiting for its target.
type exit struct {
	from  string
	label string
}

func (g *flow) build(body *ir.BlockStmt) {
	preds := []exit{{}}
	if body != nil {
		preds = g.seq(ir.Flatten(body), preds)
	}
	preds = g.flush(preds)
	g.connect(preds, g.add(&Block{Name: "exit", Kind: BlockExit}))
}

func (g *flow) add(blk *Block) string {
	if g.block(blk.Name) != nil {
		base := blk.Name
		for i := 1; g.block(blk.Name) != nil; i++ {
			blk.Name = fmt.Sprintf("%s_%d", base, i)
		}
	}
	g.control.Blocks = append(g.control.Blocks, blk)
	return blk.Name
}

func (g *flow) block(name string) *Block {
	for _, blk := range g.control.Blocks {
		if blk.Name == name {
			return blk
		}
	}
	return nil
}

func (g *flow) connect(preds []exit, to string) {
	for _, p := range preds {
		if p.from == "" {
			if g.control.Entry == "" {
				g.control.Entry = to
			}
			continue
		}
		from := g.block(p.from)
		from.Succ = append(from.Succ, Edge{To: to, Label: p.label})
	}
}

// node appends a block after preds and returns its single exit.
func (g *flow) node(preds []exit, blk *Block) []exit {
	preds = g.flush(preds)
	name := g.add(blk)
	g.connect(preds, name)
	return []exit{{from: name}}
}

// flush closes the pending straight-line statements into a block.
func (g *flow) flush(preds []exit) []exit {
	if len(g.pending) == 0 {
		return preds
	}
	blk := &Block{Name: fmt.Sprintf("bb_stmts_%d", g.nstmts), Kind: BlockStmts}
	g.nstmts++
	for _, s := range g.pending {
		blk.Lines = append(blk.Lines, ir.StmtLines(s)...)
	}
	g.pending = nil
	g.connect(preds, g.add(blk))
	return []exit{{from: blk.Name}}
}

func (g *flow) seq(list []ir.Stmt, preds []exit) []exit {
	for _, s := range list {
		if preds == nil {
			// Unreachable after exit.
			return nil
		}
		preds = g.stmt(s, preds)
	}
	return preds
}

func (g *flow) stmt(s ir.Stmt, preds []exit) []exit {
	switch x := s.(type) {
	case *ir.CallStmt:
		if t := g.appliedTable(x.Call); t != "" {
			return g.node(preds, &Block{Name: BlockName(t), Kind: BlockTable, Label: t})
		}
		if p, ok := x.Call.Method.(*ir.PathExpr); ok && g.actions[p.Name] != nil {
			return g.node(preds, &Block{Name: BlockName(p.Name), Kind: BlockAction, Label: p.Name})
		}
	case *ir.IfStmt:
		ir.Inspect(x.Cond, func(n ir.Node) bool {
			if mc, ok := n.(*ir.MethodCall); ok {
				if t := g.appliedTable(mc); t != "" {
					preds = g.node(preds, &Block{Name: BlockName(t), Kind: BlockTable, Label: t})
				}
			}
			return true
		})
		name := fmt.Sprintf("bb_cond_%d", g.nconds)
		g.nconds++
		cond := g.node(preds, &Block{Name: name, Kind: BlockCond, Label: ir.ExprString(x.Cond)})
		then := g.flush(g.seq(ir.Flatten(x.Then), []exit{{from: cond[0].from, label: "true"}}))
		els := []exit{{from: cond[0].from, label: "false"}}
		if x.Else != nil {
			els = g.flush(g.seq(ir.Flatten(x.Else), els))
		}
		return append(then, els...)
	case *ir.ExitStmt, *ir.ReturnStmt:
		g.pending = append(g.pending, s)
		g.connect(g.flush(preds), "exit")
		return nil
	}
	g.pending = append(g.pending, s)
	return preds
}

// appliedTable returns the table call applies, or "".
func (g *flow) appliedTable(call *ir.MethodCall) string {
	m, ok := isMethod(call, ir.MethodApply)
	if !ok {
		return ""
	}
	p, ok := m.Expr.(*ir.PathExpr)
	if !ok {
		return ""
	}
	if t, ok := g.refs.Decl(p).(*ir.Table); ok && g.tables[t.Name] == t {
		return t.Name
	}
	return ""
}

// accesses collects the fields under roots that stmts read and write.
func accesses(stmts []ir.Stmt, roots map[string]bool) (reads, writes map[string]bool) {
	reads, writes = make(map[string]bool), make(map[string]bool)
	record := func(set map[string]bool, e ir.Expr) {
		path := ir.ExprString(e)
		if roots[strings.SplitN(path, ".", 2)[0]] {
			set[path] = true
		}
	}
	var read func(n ir.Node) bool
	read = func(n ir.Node) bool {
		switch x := n.(type) {
		case *ir.Member, *ir.PathExpr:
			record(reads, x.(ir.Expr))
			return false
		case *ir.MethodCall:
			if m, ok := x.Method.(*ir.Member); ok {
				switch m.Name {
				case ir.MethodSetValid, ir.MethodSetInvalid:
					record(writes, m.Expr)
				default:
					ir.Inspect(m.Expr, read)
				}
			}
			for _, a := range x.Args {
				ir.Inspect(a, read)
			}
			return false
		}
		return true
	}
	for _, s := range stmts {
		ir.Inspect(s, func(n ir.Node) bool {
			if as, ok := n.(*ir.AssignStmt); ok {
				record(writes, lvalueRoot(as.Left))
				ir.Inspect(as.Right, read)
				return false
			}
			if e, ok := n.(ir.Expr); ok {
				ir.Inspect(e, read)
				return false
			}
			return true
		})
	}
	return reads, writes
}

// lvalueRoot strips slices from an assignment target.
func lvalueRoot(e ir.Expr) ir.Expr {
	if s, ok := e.(*ir.Slice); ok {
		return lvalueRoot(s.Expr)
	}
	return e
}

// covers reports whether a write of w affects the field f.
func covers(w, f string) bool {
	return w == f || strings.HasPrefix(f, w+".") || strings.HasPrefix(w, f+".")
}

// dependencies orders tables by the fields earlier tables write and later
// tables match on or read.
func dependencies(tables []*Table, actions map[string]*Action) []Dep {
	written := func(t *Table) []string {
		var out []string
		for _, name := range t.Actions {
			if a := actions[name]; a != nil {
				out = append(out, a.Writes...)
			}
		}
		return out
	}
	var deps []Dep
	for i, from := range tables {
		writes := written(from)
		for _, to := range tables[i+1:] {
			if f, ok := firstCovered(writes, keyPaths(to)); ok {
				deps = append(deps, Dep{From: from.Block, To: to.Block, Kind: "match", Field: f})
				continue
			}
			var reads []string
			for _, name := range to.Actions {
				if a := actions[name]; a != nil {
					reads = append(reads, a.Reads...)
				}
			}
			if f, ok := firstCovered(writes, reads); ok {
				deps = append(deps, Dep{From: from.Block, To: to.Block, Kind: "action", Field: f})
			}
		}
	}
	return deps
}

func keyPaths(t *Table) []string {
	out := make([]string, len(t.Keys))
	for i, k := range t.Keys {
		out[i] = k.Expr
	}
	return out
}

func firstCovered(writes, fields []string) (string, bool) {
	for _, f := range fields {
		for _, w := range writes {
			if covers(w, f) {
				return f, true
			}
		}
	}
	return "", false
}
