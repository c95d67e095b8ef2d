// Package evaluator instantiates the top-level blocks of a program.
//
// The result is an arena of instance nodes addressed by Handle plus a
// separate edge table. A package instance owns the blocks constructed in its
// argument list and refers to blocks instantiated elsewhere by name; parsers
// and controls own their local instances. No node holds a pointer to another
// node.
package evaluator

import (
	"p4fpga/internal/diag"
	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
)

// Handle addresses a node of a Toplevel. The zero Handle is invalid.
type Handle uint32

// IsValid reports whether h addresses a node.
func (h Handle) IsValid() bool {
	return h != 0
}

// Kind classifies instance nodes.
type Kind int

const (
	KindPackage Kind = iota
	KindParser
	KindControl
	KindExtern
)

func (k Kind) String() string {
	switch k {
	case KindPackage:
		return "package"
	case KindParser:
		return "parser"
	case KindControl:
		return "control"
	case KindExtern:
		return "extern"
	default:
		return "unknown"
	}
}

// Node is one instantiated block.
type Node struct {
	Kind Kind
	// Name is the instance name; anonymous constructor calls are named after
	// their type.
	Name string
	Type string
	// Decl is the *ir.PackageType, *ir.Parser, *ir.Control or
	// *ir.ExternType the node instantiates.
	Decl ir.Decl
}

// EdgeKind distinguishes ownership from reference.
type EdgeKind int

const (
	// Owns links a block to an instance it constructed.
	Owns EdgeKind = iota
	// RefersTo links a package slot to an instance declared elsewhere.
	RefersTo
)

func (k EdgeKind) String() string {
	if k == Owns {
		return "owns"
	}
	return "refers-to"
}

// Edge connects two nodes. Label is the package parameter or local instance
// name the edge fills.
type Edge struct {
	From  Handle
	To    Handle
	Kind  EdgeKind
	Label string
}

// Toplevel is the evaluated instance graph of one program.
type Toplevel struct {
	Program *ir.Program

	nodes  []Node
	edges  []Edge
	byName map[string]Handle
	main   Handle
}

func newToplevel(prog *ir.Program) *Toplevel {
	return &Toplevel{
		Program: prog,
		nodes:   make([]Node, 1),
		byName:  make(map[string]Handle),
	}
}

func (t *Toplevel) add(n Node) Handle {
	t.nodes = append(t.nodes, n)
	return Handle(len(t.nodes) - 1)
}

func (t *Toplevel) link(from, to Handle, kind EdgeKind, label string) {
	t.edges = append(t.edges, Edge{From: from, To: to, Kind: kind, Label: label})
}

// Node returns the node h addresses, or nil.
func (t *Toplevel) Node(h Handle) *Node {
	if t == nil || !h.IsValid() || int(h) >= len(t.nodes) {
		return nil
	}
	return &t.nodes[h]
}

// Len returns the number of nodes.
func (t *Toplevel) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes) - 1
}

// Main returns the instance named main, or the zero Handle.
func (t *Toplevel) Main() Handle {
	if t == nil {
		return 0
	}
	return t.main
}

// Lookup returns the top-level instance with the given name.
func (t *Toplevel) Lookup(name string) Handle {
	if t == nil {
		return 0
	}
	return t.byName[name]
}

// Edges returns the edges leaving h in creation order.
func (t *Toplevel) Edges(h Handle) []Edge {
	if t == nil {
		return nil
	}
	var out []Edge
	for _, e := range t.edges {
		if e.From == h {
			out = append(out, e)
		}
	}
	return out
}

// Arg returns the node filling the package parameter label of h.
func (t *Toplevel) Arg(h Handle, label string) Handle {
	for _, e := range t.Edges(h) {
		if e.Label == label {
			return e.To
		}
	}
	return 0
}

// Evaluate instantiates every top-level instantiation of prog in declaration
// order. Problems are reported as errors; the returned graph then holds the
// instances that could be built.
func Evaluate(prog *ir.Program, refs *sema.RefMap, reporter *diag.Reporter) *Toplevel {
	ev := &evaluator{
		prog:     prog,
		refs:     refs,
		reporter: reporter,
		top:      newToplevel(prog),
		pending:  make(map[string]bool),
	}
	for _, d := range prog.Decls {
		if inst, ok := d.(*ir.Instantiation); ok {
			ev.global(inst)
		}
	}
	ev.top.main = ev.top.byName[ir.MainName]
	return ev.top
}

type evaluator struct {
	prog     *ir.Program
	refs     *sema.RefMap
	reporter *diag.Reporter
	top      *Toplevel
	pending  map[string]bool
}

// global instantiates a top-level instantiation once.
func (ev *evaluator) global(inst *ir.Instantiation) Handle {
	if h, ok := ev.top.byName[inst.Name]; ok {
		return h
	}
	if ev.pending[inst.Name] {
		ev.reporter.Error("%1%: instantiation refers to itself", inst.Name)
		return 0
	}
	ev.pending[inst.Name] = true
	h := ev.instantiate(inst.Name, inst.Type, inst.Args)
	delete(ev.pending, inst.Name)
	if h.IsValid() {
		ev.top.byName[inst.Name] = h
	}
	return h
}

func (ev *evaluator) instantiate(name, typeName string, args []ir.Expr) Handle {
	switch decl := ev.prog.Find(typeName).(type) {
	case *ir.PackageType:
		return ev.pkg(name, decl, args)
	case *ir.Parser:
		if !ev.arity(name, typeName, 0, len(args)) {
			return 0
		}
		h := ev.top.add(Node{Kind: KindParser, Name: name, Type: typeName, Decl: decl})
		ev.locals(h, decl.Locals)
		return h
	case *ir.Control:
		if !ev.arity(name, typeName, 0, len(args)) {
			return 0
		}
		h := ev.top.add(Node{Kind: KindControl, Name: name, Type: typeName, Decl: decl})
		ev.locals(h, decl.Locals)
		return h
	case *ir.ExternType:
		return ev.top.add(Node{Kind: KindExtern, Name: name, Type: typeName, Decl: decl})
	default:
		ev.reporter.Error("%1%: unknown constructor type %2%", name, typeName)
		return 0
	}
}

func (ev *evaluator) arity(name, typeName string, want, got int) bool {
	if want == got {
		return true
	}
	ev.reporter.Error("%1%: %2% expects %3% constructor arguments, got %4%", name, typeName, want, got)
	return false
}

func (ev *evaluator) locals(owner Handle, locals []ir.Decl) {
	for _, l := range locals {
		inst, ok := l.(*ir.Instantiation)
		if !ok {
			continue
		}
		if h := ev.instantiate(inst.Name, inst.Type, inst.Args); h.IsValid() {
			ev.top.link(owner, h, Owns, inst.Name)
		}
	}
}

func (ev *evaluator) pkg(name string, decl *ir.PackageType, args []ir.Expr) Handle {
	if !ev.arity(name, decl.Name, len(decl.Params), len(args)) {
		return 0
	}
	h := ev.top.add(Node{Kind: KindPackage, Name: name, Type: decl.Name, Decl: decl})
	for i, param := range decl.Params {
		child, kind := ev.arg(args[i])
		if !child.IsValid() {
			if kind == Owns {
				ev.reporter.Error("%1%: argument %2% of %3% is not a block", name, param.Name, decl.Name)
			}
			continue
		}
		want := KindParser
		if param.Kind == ir.ControlBlock {
			want = KindControl
		}
		if got := ev.top.Node(child).Kind; got != want {
			ev.reporter.Error("%1%: argument %2% of %3% must be a %4%, got %5%", name, param.Name, decl.Name, want, got)
			continue
		}
		ev.top.link(h, child, kind, param.Name)
	}
	return h
}

// arg evaluates one package argument. A failed reference reports its own
// error and yields RefersTo with the zero Handle.
func (ev *evaluator) arg(e ir.Expr) (Handle, EdgeKind) {
	switch x := e.(type) {
	case *ir.ConstructorCall:
		return ev.instantiate(x.Type, x.Type, x.Args), Owns
	case *ir.PathExpr:
		if inst, ok := ev.refs.Decl(x).(*ir.Instantiation); ok {
			return ev.global(inst), RefersTo
		}
	}
	return 0, Owns
}
