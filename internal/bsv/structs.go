package bsv

import "p4fpga/internal/fpga"

func emitStructs(m *fpga.Model) string {
	c := &CodeBuilder{}
	preamble(c, m, []string{"DefaultValue", "FShow"})
	for _, e := range m.Enums {
		labels := e.Labels
		if len(labels) == 0 {
			// A table without actions still needs a well-formed response.
			labels = []string{"NoAction" + e.Name}
		}
		enum(c, e.Name, labels, "Bits, Eq, FShow")
	}
	for _, s := range m.Structs {
		if s.Source != "" {
			c.Line("// %s %s", s.Kind, s.Source)
		} else {
			c.Line("// %s", s.Kind)
		}
		c.Open("typedef struct {")
		for _, f := range s.Fields {
			typ := f.Type
			if typ == "" {
				typ = bits(f.Width)
			}
			c.Line("%s %s;", typ, f.Name)
		}
		c.Close("} %s deriving (Bits, Eq, FShow);", s.Name)
		c.Blank()
	}
	return c.String()
}
