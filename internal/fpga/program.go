// Package fpga derives the hardware model of a canonical program: the parse
// state machine, packed record layouts, match-action controls and the
// deparser emit order. The model is built once from the evaluated toplevel
// and is read-only afterwards; the artifact emitters only read the model.
package fpga

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"p4fpga/internal/diag"
	"p4fpga/internal/evaluator"
	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
	"p4fpga/internal/validate"
)

// ErrBuildFailed is returned by callers when Build reports false.
var ErrBuildFailed = errors.New("fpga: program model could not be built")

// DefaultTableDepth is the depth of tables declaring no size.
const DefaultTableDepth = 1024

// Program builds the model of one evaluated program.
type Program struct {
	top      *evaluator.Toplevel
	refs     *sema.RefMap
	types    *sema.TypeMap
	reporter *diag.Reporter
	model    *Model
}

// NewProgram binds the builder to a toplevel and the reference and type
// maps of its program.
func NewProgram(top *evaluator.Toplevel, refs *sema.RefMap, types *sema.TypeMap, reporter *diag.Reporter) *Program {
	return &Program{top: top, refs: refs, types: types, reporter: reporter}
}

// Model returns the model of the last successful Build, or nil.
func (p *Program) Model() *Model {
	return p.model
}

// Build validates the toplevel and derives the model. Problems are
// reported as errors; Build then returns false and keeps no model.
func (p *Program) Build() bool {
	p.model = nil
	if err := validate.CheckToplevel(p.top, p.reporter); err != nil {
		return false
	}
	before := p.reporter.ErrorCount()
	b := &builder{
		Program:     p,
		prog:        p.top.Program,
		model:       &Model{},
		stateOf:     make(map[string]string),
		neededTypes: make(map[string]bool),
		metaSeen:    make(map[string]bool),
	}
	b.build()
	if p.reporter.ErrorCount() > before {
		return false
	}
	p.model = b.model
	return true
}

type builder struct {
	*Program
	prog  *ir.Program
	model *Model
	// stateOf maps an extracted header path to the state extracting it.
	stateOf     map[string]string
	neededTypes map[string]bool
	meta        []Field
	metaSeen    map[string]bool
	// metaKeys are the metadata fields copied from header fields.
	metaKeys []Key
}

func (b *builder) build() {
	main := b.top.Node(b.top.Main())
	pkg := main.Decl.(*ir.PackageType)
	b.model.Name = pkg.Name
	edges := b.top.Edges(b.top.Main())
	if len(edges) != len(pkg.Params) {
		b.reporter.Error("%1%: package %2% has %3% unbound parameters", main.Name, pkg.Name, len(pkg.Params)-len(edges))
		return
	}
	parser := b.top.Node(edges[0].To)
	deparser := b.top.Node(edges[len(edges)-1].To)
	var controls []*evaluator.Node
	for _, e := range edges[1 : len(edges)-1] {
		controls = append(controls, b.top.Node(e.To))
	}

	b.need(parser.Decl)
	for _, c := range controls {
		b.need(c.Decl)
	}
	b.need(deparser.Decl)
	b.layout()

	b.model.Parser = b.parser(parser)
	for _, n := range controls {
		b.model.Controls = append(b.model.Controls, b.control(n))
	}
	b.model.Deparser = b.deparser(deparser)
	b.copyMeta()
	if len(b.meta) > 0 {
		b.model.Structs = append(b.model.Structs, &Struct{Name: TypeName("meta"), Kind: KindMetadata, Fields: b.meta})
	}
}

// need marks the header and struct types reachable from the parameters
// and variables of a block.
func (b *builder) need(block ir.Decl) {
	var visit func(t ir.Type)
	visit = func(t ir.Type) {
		nt, ok := t.(*ir.NamedType)
		if !ok || b.neededTypes[nt.Name] {
			return
		}
		switch d := b.prog.Find(nt.Name).(type) {
		case *ir.HeaderType:
			b.neededTypes[nt.Name] = true
		case *ir.StructType:
			b.neededTypes[nt.Name] = true
			for _, f := range d.Fields {
				visit(f.Type)
			}
		}
	}
	ir.Inspect(block, func(n ir.Node) bool {
		switch x := n.(type) {
		case *ir.Param:
			visit(x.Type)
		case *ir.Variable:
			visit(x.Type)
		}
		return true
	})
}

// layout records the needed types in declaration order.
func (b *builder) layout() {
	for _, d := range b.prog.Decls {
		if !b.neededTypes[d.DeclName()] {
			continue
		}
		switch x := d.(type) {
		case *ir.HeaderType:
			b.model.Structs = append(b.model.Structs, &Struct{Name: TypeName(x.Name), Source: x.Name, Kind: KindHeader, Fields: b.fields(x.Fields)})
		case *ir.StructType:
			b.model.Structs = append(b.model.Structs, &Struct{Name: TypeName(x.Name), Source: x.Name, Kind: KindStruct, Fields: b.fields(x.Fields)})
		}
	}
}

func (b *builder) fields(list []*ir.Field) []Field {
	out := make([]Field, 0, len(list))
	for _, f := range list {
		fd := Field{Name: FieldName(f.Name), Width: b.types.Width(f.Type)}
		if nt, ok := f.Type.(*ir.NamedType); ok {
			fd.Type = TypeName(nt.Name)
		}
		out = append(out, fd)
	}
	return out
}

// width returns the width of a value expression.
func (b *builder) width(e ir.Expr) int {
	return b.types.Width(b.types.Type(e))
}

// headerType returns the record name of a header-typed expression.
func (b *builder) headerType(e ir.Expr) (string, bool) {
	h := b.types.Header(b.types.Type(e))
	if h == nil {
		return "", false
	}
	return TypeName(h.Name), true
}

// addMeta adds a key to the metadata record once.
func (b *builder) addMeta(k Key) {
	if b.metaSeen[k.Field] {
		return
	}
	b.metaSeen[k.Field] = true
	b.meta = append(b.meta, Field{Name: k.Field, Width: k.Width})
	b.metaKeys = append(b.metaKeys, Key{Expr: k.Expr, Field: k.Field, Width: k.Width})
}

// addValid adds the validity bit of a header to the metadata record once.
func (b *builder) addValid(header string) string {
	name := ValidField(header)
	if !b.metaSeen[name] {
		b.metaSeen[name] = true
		b.meta = append(b.meta, Field{Name: name, Width: 1})
	}
	return name
}

// copyMeta assigns every metadata key read from a header field to the parse
// state that first extracts the header. Paths are compared without their
// leading parameter, which differs between blocks; the copied key is
// rewritten onto the parser's path.
func (b *builder) copyMeta() {
	if b.model.Parser == nil {
		return
	}
	for _, k := range b.metaKeys {
		rest := dropRoot(k.Expr)
		header, field := "", ""
		for path := range b.stateOf {
			hr := dropRoot(path)
			if f, ok := strings.CutPrefix(rest, hr+"."); ok && len(path) > len(header) {
				header, field = path, f
			}
		}
		if header == "" {
			continue
		}
		for _, st := range b.model.Parser.States {
			if st.Name == b.stateOf[header] {
				st.Meta = append(st.Meta, Key{Expr: header + "." + field, Field: k.Field, Width: k.Width})
				break
			}
		}
	}
}

func dropRoot(path string) string {
	if _, rest, ok := strings.Cut(path, "."); ok {
		return rest
	}
	return path
}

// hex renders a constant keyset value truncated to width bits.
func (b *builder) hex(e ir.Expr, width int) (string, error) {
	var v *big.Int
	switch x := e.(type) {
	case *ir.Constant:
		v = x.Value
	case *ir.BoolLit:
		v = big.NewInt(0)
		if x.Value {
			v = big.NewInt(1)
		}
	default:
		return "", fmt.Errorf("%s is not a constant", ir.ExprString(e))
	}
	return sema.Truncate(v, &ir.BitsType{Width: width}).Text(16), nil
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
