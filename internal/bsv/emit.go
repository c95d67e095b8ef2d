package bsv

import (
	"fmt"
	"strings"

	"p4fpga/internal/fpga"
)

// Output file names.
const (
	ParserFile   = "ParserGenerated.bsv"
	DeparserFile = "DeparserGenerated.bsv"
	StructFile   = "StructGenerated.bsv"
	GraphFile    = "graph.dot"
)

// Artifacts are the four texts emitted for one model.
type Artifacts struct {
	Parser   string
	Deparser string
	Struct   string
	Graph    string
}

// File is one named artifact.
type File struct {
	Name string
	Data string
}

// Files returns the artifacts in their fixed output order.
func (a *Artifacts) Files() []File {
	return []File{
		{Name: ParserFile, Data: a.Parser},
		{Name: DeparserFile, Data: a.Deparser},
		{Name: StructFile, Data: a.Struct},
		{Name: GraphFile, Data: a.Graph},
	}
}

// Emit renders every artifact of m. The texts depend only on the model.
func Emit(m *fpga.Model) *Artifacts {
	return &Artifacts{
		Parser:   emitParser(m),
		Deparser: emitDeparser(m),
		Struct:   emitStructs(m),
		Graph:    emitGraph(m),
	}
}

var libraryImports = []string{
	"DefaultValue",
	"FIFO",
	"FIFOF",
	"FShow",
	"GetPut",
	"List",
	"StmtFSM",
	"SpecialFIFOs",
	"Vector",
	"Pipe",
	"Ethernet",
	"P4Types",
}

func preamble(c *CodeBuilder, m *fpga.Model, imports []string) {
	c.Line("// Generated by p4fpga from package %s. Do not edit.", m.Name)
	c.Blank()
	for _, name := range imports {
		c.Line("import %s::*;", name)
	}
	c.Blank()
}

// bits renders a bit-vector type.
func bits(width int) string {
	return fmt.Sprintf("Bit#(%d)", width)
}

// literal renders a sized hexadecimal literal.
func literal(width int, hex string) string {
	return fmt.Sprintf("%d'h%s", width, hex)
}

// enum writes a typedef enum with one label per line.
func enum(c *CodeBuilder, name string, labels []string, deriving string) {
	c.Open("typedef enum {")
	for i, l := range labels {
		sep := ","
		if i == len(labels)-1 {
			sep = ""
		}
		c.Line("%s%s", l, sep)
	}
	c.Close("} %s deriving (%s);", name, deriving)
	c.Blank()
}

// fshow writes an FShow instance printing enum labels.
func fshow(c *CodeBuilder, typ string, labels []string) {
	c.Open("instance FShow#(%s);", typ)
	c.Open("function Fmt fshow(%s v);", typ)
	c.Open("case (v)")
	for _, l := range labels {
		c.Line("%s: return $format(%q);", l, l)
	}
	c.Close("endcase")
	c.Close("endfunction")
	c.Close("endinstance")
	c.Blank()
}

// lower renders a type name as a function-name suffix.
func lower(typ string) string {
	return strings.ToLower(typ)
}
