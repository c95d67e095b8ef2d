// Package validate rejects programs that evaluate correctly but use
// constructs the FPGA model cannot represent.
package validate

import (
	"fmt"

	"p4fpga/internal/diag"
	"p4fpga/internal/evaluator"
	"p4fpga/internal/ir"
)

// Stable codes of the unsupported constructs.
const (
	CodeParserCycle     = "U001"
	CodeUnboundedWidth  = "U002"
	CodeHeaderStack     = "U003"
	CodeExternInstance  = "U004"
	CodeNestedBlock     = "U005"
	CodePackageShape    = "U006"
	CodeFieldWidthRange = "U007"
)

// MaxFieldWidth is the widest field the model accepts.
const MaxFieldWidth = 2048

// Code describes one unsupported construct.
type Code struct {
	ID        string
	Construct string
}

// Codes lists every construct CheckToplevel rejects, in code order.
var Codes = []Code{
	{CodeParserCycle, "parser-state cycle"},
	{CodeUnboundedWidth, "varbit or arbitrary-precision int width"},
	{CodeHeaderStack, "header stack"},
	{CodeExternInstance, "extern instance other than packet_in or packet_out"},
	{CodeNestedBlock, "sub-parser or un-inlined control instance"},
	{CodePackageShape, "main package whose parameters are not parser, controls, deparser"},
	{CodeFieldWidthRange, "zero-width or over-wide field"},
}

// CheckToplevel walks every block reachable from main and reports each
// unsupported construct as a coded error. It returns an error when anything
// was reported.
func CheckToplevel(top *evaluator.Toplevel, reporter *diag.Reporter) error {
	if top == nil || !top.Main().IsValid() {
		return fmt.Errorf("no toplevel main to validate")
	}
	if reporter == nil {
		return fmt.Errorf("no reporter provided for validation")
	}
	c := &checker{
		reporter: reporter,
		top:      top,
		seenNode: make(map[evaluator.Handle]bool),
		seenType: make(map[string]bool),
	}
	c.checkMain(top.Main())
	c.visit(top.Main())
	if c.errCount > 0 {
		return fmt.Errorf("validation failed with %d issue(s)", c.errCount)
	}
	return nil
}

type checker struct {
	reporter *diag.Reporter
	errCount int
	top      *evaluator.Toplevel
	seenNode map[evaluator.Handle]bool
	seenType map[string]bool
}

func (c *checker) report(code, format string, args ...interface{}) {
	c.errCount++
	c.reporter.ErrorCode(code, format, args...)
}

func (c *checker) checkMain(h evaluator.Handle) {
	n := c.top.Node(h)
	pkg, ok := n.Decl.(*ir.PackageType)
	if !ok {
		c.report(CodePackageShape, "%1%: main must instantiate a package, got %2% %3%", n.Name, n.Kind, n.Type)
		return
	}
	if len(pkg.Params) < 2 {
		c.report(CodePackageShape, "%1%: package %2% needs a parser and a deparser, has %3% parameters", n.Name, pkg.Name, len(pkg.Params))
		return
	}
	for i, p := range pkg.Params {
		want := ir.ControlBlock
		if i == 0 {
			want = ir.ParserBlock
		}
		if p.Kind != want {
			c.report(CodePackageShape, "%1%: parameter %2% of %3% must be a %4%", n.Name, p.Name, pkg.Name, want)
		}
	}
}

func (c *checker) visit(h evaluator.Handle) {
	if c.seenNode[h] {
		return
	}
	c.seenNode[h] = true
	n := c.top.Node(h)
	switch decl := n.Decl.(type) {
	case *ir.Parser:
		c.params(n.Name, decl.Params)
		c.locals(n.Name, decl.Locals)
		c.checkStates(decl)
	case *ir.Control:
		c.params(n.Name, decl.Params)
		c.locals(n.Name, decl.Locals)
		c.variables(n.Name, decl.Body)
	case *ir.ExternType:
		if !ir.IsCoreExtern(decl.Name) {
			c.report(CodeExternInstance, "%1%: extern %2% cannot be mapped to hardware", n.Name, decl.Name)
		}
	}
	for _, e := range c.top.Edges(h) {
		child := c.top.Node(e.To)
		if n.Kind != evaluator.KindPackage && (child.Kind == evaluator.KindParser || child.Kind == evaluator.KindControl) {
			c.report(CodeNestedBlock, "%1%: instance %2% of %3% %4% is not supported", n.Name, e.Label, child.Kind, child.Type)
			continue
		}
		c.visit(e.To)
	}
}

func (c *checker) params(owner string, list []*ir.Param) {
	for _, p := range list {
		c.checkType(owner+"."+p.Name, p.Type)
	}
}

func (c *checker) locals(owner string, list []ir.Decl) {
	for _, l := range list {
		switch x := l.(type) {
		case *ir.Variable:
			c.checkType(owner+"."+x.Name, x.Type)
		case *ir.Action:
			c.params(owner+"."+x.Name, x.Params)
			c.variables(owner+"."+x.Name, x.Body)
		}
	}
}

func (c *checker) variables(owner string, body *ir.BlockStmt) {
	if body == nil {
		return
	}
	ir.Inspect(body, func(n ir.Node) bool {
		if v, ok := n.(*ir.Variable); ok {
			c.checkType(owner+"."+v.Name, v.Type)
		}
		return true
	})
}

func (c *checker) checkType(where string, t ir.Type) {
	switch x := t.(type) {
	case *ir.VarbitType:
		c.report(CodeUnboundedWidth, "%1%: varbit<%2%> has no fixed width", where, x.Width)
	case *ir.InfIntType:
		c.report(CodeUnboundedWidth, "%1%: int has no fixed width", where)
	case *ir.StackType:
		c.report(CodeHeaderStack, "%1%: header stack %2% is not supported", where, x)
		c.checkType(where, x.Elem)
	case *ir.BitsType:
		if x.Width == 0 || x.Width > MaxFieldWidth {
			c.report(CodeFieldWidthRange, "%1%: width %2% is outside 1..%3%", where, x.Width, MaxFieldWidth)
		}
	case *ir.NamedType:
		c.checkNamed(x.Name)
	}
}

func (c *checker) checkNamed(name string) {
	if c.seenType[name] {
		return
	}
	c.seenType[name] = true
	var fields []*ir.Field
	switch d := c.top.Program.Find(name).(type) {
	case *ir.HeaderType:
		fields = d.Fields
	case *ir.StructType:
		fields = d.Fields
	default:
		return
	}
	for _, f := range fields {
		c.checkType(name+"."+f.Name, f.Type)
	}
}

// checkStates reports every state that can reach itself.
func (c *checker) checkStates(p *ir.Parser) {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(p.States))
	var dfs func(st *ir.ParserState)
	dfs = func(st *ir.ParserState) {
		color[st.Name] = grey
		for _, next := range Successors(st) {
			succ := p.State(next)
			if succ == nil {
				continue
			}
			switch color[next] {
			case grey:
				c.report(CodeParserCycle, "%1%: state %2% transitions back to %3%", p.Name, st.Name, next)
			case white:
				dfs(succ)
			}
		}
		color[st.Name] = black
	}
	for _, st := range p.States {
		if color[st.Name] == white {
			dfs(st)
		}
	}
}

// Successors returns the states st may transition to, in case order and
// without duplicates. accept and reject are included when named.
func Successors(st *ir.ParserState) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	switch t := st.Transition.(type) {
	case *ir.Goto:
		add(t.State)
	case *ir.Select:
		for _, cs := range t.Cases {
			add(cs.State)
		}
	}
	return out
}
