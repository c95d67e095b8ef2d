package bsv

import (
	"fmt"
	"strings"

	"p4fpga/internal/fpga"
	"p4fpga/internal/ir"
)

// quote renders a DOT string; lines are joined with the \n escape.
func quote(lines ...string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	escaped := make([]string, len(lines))
	for i, l := range lines {
		escaped[i] = r.Replace(l)
	}
	return `"` + strings.Join(escaped, `\n`) + `"`
}

func node(scope, name string) string {
	return quote(scope + "." + name)
}

func emitGraph(m *fpga.Model) string {
	c := &CodeBuilder{}
	c.Open("digraph %s {", quote(m.Name))
	c.Line("rankdir=TB;")
	c.Line("node [shape=box, fontname=\"Helvetica\"];")
	graphParser(c, m.Parser)
	for _, ctl := range m.Controls {
		graphControl(c, ctl)
	}
	graphDeparser(c, m.Deparser)
	c.Close("}")
	return c.String()
}

func graphParser(c *CodeBuilder, p *fpga.Parser) {
	c.Open("subgraph %s {", quote("cluster_"+p.Name))
	c.Line("label=%s;", quote("parser "+p.Name))
	for _, st := range p.States {
		lines := []string{st.Name}
		for _, ex := range st.Extracts {
			lines = append(lines, "extract "+ex.Header)
		}
		c.Line("%s [label=%s];", node(p.Name, st.Name), quote(lines...))
	}
	c.Line("%s [shape=doublecircle];", node(p.Name, ir.Accept))
	c.Line("%s [shape=doublecircle];", node(p.Name, ir.Reject))
	for _, st := range p.States {
		if len(st.Keys) == 0 {
			c.Line("%s -> %s;", node(p.Name, st.Name), node(p.Name, st.Next))
			continue
		}
		for _, cs := range st.Cases {
			c.Line("%s -> %s [label=%s];", node(p.Name, st.Name), node(p.Name, cs.Next), quote(caseLabel(cs)))
		}
	}
	c.Close("}")
}

func caseLabel(cs fpga.Case) string {
	parts := make([]string, len(cs.Values))
	for i, v := range cs.Values {
		switch {
		case v.Default:
			parts[i] = "default"
		case v.Mask != "":
			parts[i] = "0x" + v.Value + " &&& 0x" + v.Mask
		default:
			parts[i] = "0x" + v.Value
		}
	}
	return strings.Join(parts, ", ")
}

func graphControl(c *CodeBuilder, ctl *fpga.Control) {
	tables := make(map[string]*fpga.Table, len(ctl.Tables))
	for _, t := range ctl.Tables {
		tables[t.Block] = t
	}
	c.Open("subgraph %s {", quote("cluster_"+ctl.Name))
	c.Line("label=%s;", quote("control "+ctl.Name))
	c.Line("%s [shape=point];", node(ctl.Name, "entry"))
	for _, blk := range ctl.Blocks {
		switch blk.Kind {
		case fpga.BlockTable:
			lines := []string{blk.Label}
			if t := tables[blk.Name]; t != nil {
				lines = append(lines, fmt.Sprintf("%s depth=%d", t.MatchType, t.Depth))
				for _, k := range t.Keys {
					lines = append(lines, "key "+k.Expr+" : "+k.MatchKind)
				}
				for _, a := range t.Actions {
					lines = append(lines, "action "+a)
				}
			}
			c.Line("%s [label=%s];", node(ctl.Name, blk.Name), quote(lines...))
		case fpga.BlockAction:
			c.Line("%s [shape=ellipse, label=%s];", node(ctl.Name, blk.Name), quote("call "+blk.Label))
		case fpga.BlockCond:
			c.Line("%s [shape=diamond, label=%s];", node(ctl.Name, blk.Name), quote(blk.Label))
		case fpga.BlockStmts:
			c.Line("%s [shape=note, label=%s];", node(ctl.Name, blk.Name), quote(trimmed(blk.Lines)...))
		case fpga.BlockExit:
			c.Line("%s [shape=doublecircle];", node(ctl.Name, blk.Name))
		}
	}
	if ctl.Entry != "" {
		c.Line("%s -> %s;", node(ctl.Name, "entry"), node(ctl.Name, ctl.Entry))
	}
	for _, blk := range ctl.Blocks {
		for _, e := range blk.Succ {
			if e.Label != "" {
				c.Line("%s -> %s [label=%s];", node(ctl.Name, blk.Name), node(ctl.Name, e.To), quote(e.Label))
			} else {
				c.Line("%s -> %s;", node(ctl.Name, blk.Name), node(ctl.Name, e.To))
			}
		}
	}
	for _, d := range ctl.Deps {
		c.Line("%s -> %s [style=dashed, color=red, label=%s];", node(ctl.Name, d.From), node(ctl.Name, d.To), quote(d.Kind+" "+d.Field))
	}
	c.Close("}")
}

func trimmed(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimSpace(l)
	}
	return out
}

func graphDeparser(c *CodeBuilder, d *fpga.Deparser) {
	c.Open("subgraph %s {", quote("cluster_"+d.Name))
	c.Line("label=%s;", quote("deparser "+d.Name))
	prev := ""
	for _, st := range d.States {
		c.Line("%s [label=%s];", node(d.Name, st.Name), quote(st.Name, "emit "+st.Header))
		if prev != "" {
			c.Line("%s -> %s;", node(d.Name, prev), node(d.Name, st.Name))
		}
		prev = st.Name
	}
	c.Close("}")
}
