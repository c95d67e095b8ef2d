package sema

import (
	"fmt"

	"p4fpga/internal/ir"
)

// NameGen hands out names that do not clash with any declaration of the
// program it was created from, nor with names it generated before.
type NameGen struct {
	used map[string]bool
}

// NewNameGen collects every declared name of prog.
func NewNameGen(prog *ir.Program) *NameGen {
	g := &NameGen{used: make(map[string]bool)}
	for name := range DeclCounts(prog) {
		g.used[name] = true
	}
	return g
}

// Fresh returns base_N for the smallest N not yet in use.
func (g *NameGen) Fresh(base string) string {
	for i := 0; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if !g.used[name] {
			g.used[name] = true
			return name
		}
	}
}

// Reserve marks name as used.
func (g *NameGen) Reserve(name string) {
	g.used[name] = true
}

// Used reports whether name is taken.
func (g *NameGen) Used(name string) bool {
	return g.used[name]
}

// DeclCounts counts how many declarations carry each name, across every
// scope of the program: top-level declarations, block parameters and locals,
// action parameters, statement-level variables and parser states. Struct and
// header field names live in their own namespace and are not counted.
func DeclCounts(prog *ir.Program) map[string]int {
	counts := make(map[string]int)
	for _, d := range ir.CoreLibrary() {
		counts[d.DeclName()]++
	}
	if prog == nil {
		return counts
	}
	ir.Inspect(prog, func(n ir.Node) bool {
		switch x := n.(type) {
		case *ir.HeaderType, *ir.StructType, *ir.PackageType:
			counts[x.(ir.Decl).DeclName()]++
			return false
		case *ir.ExternType:
			counts[x.Name]++
			return false
		case *ir.Parser, *ir.Control, *ir.Action, *ir.Table, *ir.Variable,
			*ir.ConstDecl, *ir.Instantiation, *ir.ParserState:
			counts[x.(ir.Decl).DeclName()]++
		case *ir.Param:
			counts[x.Name]++
		}
		return true
	})
	return counts
}
