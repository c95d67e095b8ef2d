// Package bsv renders the hardware model as Bluespec SystemVerilog sources
// and a Graphviz view of its control flow.
package bsv

import (
	"fmt"
	"strings"
)

// CodeBuilder accumulates indented source lines.
type CodeBuilder struct {
	b      strings.Builder
	indent int
}

// Line writes one formatted line at the current indentation.
func (c *CodeBuilder) Line(format string, args ...interface{}) {
	c.b.WriteString(strings.Repeat("    ", c.indent))
	fmt.Fprintf(&c.b, format, args...)
	c.b.WriteByte('\n')
}

// Blank writes an empty line.
func (c *CodeBuilder) Blank() {
	c.b.WriteByte('\n')
}

// Open writes a line and indents what follows.
func (c *CodeBuilder) Open(format string, args ...interface{}) {
	c.Line(format, args...)
	c.indent++
}

// Close dedents and writes a line.
func (c *CodeBuilder) Close(format string, args ...interface{}) {
	if c.indent > 0 {
		c.indent--
	}
	c.Line(format, args...)
}

// String returns everything written so far.
func (c *CodeBuilder) String() string {
	return c.b.String()
}
