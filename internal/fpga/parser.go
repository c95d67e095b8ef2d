package fpga

import (
	"p4fpga/internal/evaluator"
	"p4fpga/internal/ir"
	"p4fpga/internal/validate"
)

func (b *builder) parser(n *evaluator.Node) *Parser {
	decl := n.Decl.(*ir.Parser)
	out := &Parser{Name: n.Name}
	for _, st := range reachable(decl) {
		out.States = append(out.States, b.state(st))
	}
	return out
}

// reachable returns the states reachable from start in breadth-first order.
func reachable(p *ir.Parser) []*ir.ParserState {
	start := p.State(ir.StartState)
	if start == nil {
		return nil
	}
	seen := map[string]bool{start.Name: true}
	queue := []*ir.ParserState{start}
	for i := 0; i < len(queue); i++ {
		for _, next := range validate.Successors(queue[i]) {
			st := p.State(next)
			if st == nil || seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, st)
		}
	}
	return queue
}

func isMethod(call *ir.MethodCall, name string) (*ir.Member, bool) {
	m, ok := call.Method.(*ir.Member)
	return m, ok && m.Name == name
}

func (b *builder) state(st *ir.ParserState) *State {
	out := &State{Name: st.Name, Enum: StateEnum(st.Name)}
	for _, s := range st.Components {
		if cs, ok := s.(*ir.CallStmt); ok {
			if _, ok := isMethod(cs.Call, ir.MethodExtract); ok && len(cs.Call.Args) == 1 {
				arg := cs.Call.Args[0]
				typ, _ := b.headerType(arg)
				path := ir.ExprString(arg)
				out.Extracts = append(out.Extracts, Extract{Header: path, Type: typ, Width: b.width(arg), Valid: b.addValid(path)})
				if _, dup := b.stateOf[path]; !dup {
					b.stateOf[path] = st.Name
				}
				continue
			}
		}
		out.Instructions = append(out.Instructions, ir.StmtLines(s)...)
	}
	switch t := st.Transition.(type) {
	case *ir.Goto:
		out.Next = t.State
	case *ir.Select:
		for _, k := range t.Keys {
			path := ir.ExprString(k)
			key := Key{Expr: path, Field: KeyField(path), Width: b.width(k)}
			out.Keys = append(out.Keys, key)
			b.addMeta(key)
		}
		for _, cs := range t.Cases {
			c := Case{Next: cs.State}
			for i, ks := range cs.Keysets {
				if ks.Default {
					c.Values = append(c.Values, Match{Default: true})
					continue
				}
				width := 0
				if i < len(out.Keys) {
					width = out.Keys[i].Width
				}
				m := Match{}
				var err error
				if m.Value, err = b.hex(ks.Value, width); err != nil {
					b.reporter.Error("state %1%: select value %2%", st.Name, err)
					continue
				}
				if ks.Mask != nil {
					if m.Mask, err = b.hex(ks.Mask, width); err != nil {
						b.reporter.Error("state %1%: select mask %2%", st.Name, err)
						continue
					}
				}
				c.Values = append(c.Values, m)
			}
			out.Cases = append(out.Cases, c)
		}
	default:
		out.Next = ir.Reject
	}
	return out
}

func (b *builder) deparser(n *evaluator.Node) *Deparser {
	decl := n.Decl.(*ir.Control)
	out := &Deparser{Name: n.Name}
	used := make(map[string]bool)
	seen := make(map[string]bool)
	var visit func(list []ir.Stmt)
	visit = func(list []ir.Stmt) {
		for _, s := range list {
			switch x := s.(type) {
			case *ir.IfStmt:
				visit(ir.Flatten(x.Then))
				visit(ir.Flatten(x.Else))
			case *ir.CallStmt:
				if _, ok := isMethod(x.Call, ir.MethodEmit); !ok || len(x.Call.Args) != 1 {
					continue
				}
				arg := x.Call.Args[0]
				path := ir.ExprString(arg)
				if seen[path] {
					continue
				}
				seen[path] = true
				name := DeparseState(KeyField(path))
				if st, ok := b.stateOf[path]; ok {
					name = DeparseState(st)
				}
				if used[name] {
					name += "_" + KeyField(path)
				}
				used[name] = true
				typ, _ := b.headerType(arg)
				out.States = append(out.States, &EmitState{
					Name:   name,
					Enum:   StateEnum(name),
					Header: path,
					Type:   typ,
					Width:  b.width(arg),
					Valid:  b.addValid(path),
				})
			}
		}
	}
	if decl.Body != nil {
		visit(ir.Flatten(decl.Body))
	}
	return out
}
