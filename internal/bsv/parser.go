package bsv

import (
	"strings"

	"p4fpga/internal/fpga"
	"p4fpga/internal/ir"
)

func parserImports() []string {
	return append(append([]string(nil), libraryImports...), "StructGenerated")
}

func parserLabels(p *fpga.Parser) []string {
	var labels []string
	for _, st := range p.States {
		labels = append(labels, st.Enum)
	}
	return append(labels, fpga.StateEnum(ir.Accept), fpga.StateEnum(ir.Reject))
}

func emitParser(m *fpga.Model) string {
	c := &CodeBuilder{}
	preamble(c, m, parserImports())
	p := m.Parser
	labels := parserLabels(p)
	enum(c, "ParserState", labels, "Bits, Eq")
	fshow(c, "ParserState", labels)

	seen := make(map[string]bool)
	for _, st := range p.States {
		for _, ex := range st.Extracts {
			if seen[ex.Type] {
				continue
			}
			seen[ex.Type] = true
			c.Open("function %s extract_%s(%s data);", ex.Type, lower(ex.Type), bits(ex.Width))
			c.Line("return unpack(data);")
			c.Close("endfunction")
			c.Blank()
		}
	}
	for _, st := range p.States {
		if len(st.Keys) > 0 {
			nextState(c, st)
		}
	}

	meta := m.Struct(fpga.TypeName("meta"))
	c.Open("interface Parser;")
	c.Line("interface Put#(EtherData) frameIn;")
	if meta != nil {
		c.Line("interface Get#(%s) meta;", meta.Name)
	}
	c.Close("endinterface")
	c.Blank()

	c.Line("(* synthesize *)")
	c.Open("module mkParser(Parser);")
	c.Line("Reg#(ParserState) curr_state <- mkReg(%s);", fpga.StateEnum(ir.StartState))
	c.Line("Reg#(Bool) started <- mkReg(False);")
	c.Line("FIFOF#(EtherData) data_in_ff <- mkFIFOF;")
	if meta != nil {
		c.Line("FIFOF#(%s) meta_out_ff <- mkFIFOF;", meta.Name)
		c.Line("Reg#(%s) meta_r <- mkRegU;", meta.Name)
	}
	c.Blank()
	c.Open("rule start_fsm if (!started && data_in_ff.notEmpty);")
	c.Line("curr_state <= %s;", fpga.StateEnum(ir.StartState))
	c.Line("started <= True;")
	if meta != nil {
		c.Line("meta_r <= unpack(0);")
	}
	c.Close("endrule")
	c.Blank()
	for _, st := range p.States {
		stateRule(c, st, meta != nil)
	}
	c.Open("rule state_accept if (started && curr_state == %s);", fpga.StateEnum(ir.Accept))
	if meta != nil {
		c.Line("meta_out_ff.enq(meta_r);")
	}
	c.Line("started <= False;")
	c.Close("endrule")
	c.Blank()
	c.Open("rule state_reject if (started && curr_state == %s);", fpga.StateEnum(ir.Reject))
	c.Line("started <= False;")
	c.Close("endrule")
	c.Blank()
	c.Line("interface frameIn = toPut(data_in_ff);")
	if meta != nil {
		c.Line("interface meta = toGet(meta_out_ff);")
	}
	c.Close("endmodule")
	return c.String()
}

// nextState writes the transition function of a selecting state. An
// unmatched key rejects.
func nextState(c *CodeBuilder, st *fpga.State) {
	params := make([]string, len(st.Keys))
	for i, k := range st.Keys {
		params[i] = bits(k.Width) + " " + k.Field
	}
	c.Open("function ParserState compute_next_state_%s(%s);", st.Name, strings.Join(params, ", "))
	c.Line("ParserState nextState = %s;", fpga.StateEnum(ir.Reject))
	first := true
	for _, cs := range st.Cases {
		var conds []string
		for i, v := range cs.Values {
			if v.Default || i >= len(st.Keys) {
				continue
			}
			k := st.Keys[i]
			if v.Mask != "" {
				conds = append(conds, "(("+k.Field+" & "+literal(k.Width, v.Mask)+") == "+literal(k.Width, v.Value)+")")
			} else {
				conds = append(conds, "("+k.Field+" == "+literal(k.Width, v.Value)+")")
			}
		}
		switch {
		case len(conds) == 0 && first:
			c.Line("nextState = %s;", fpga.StateEnum(cs.Next))
		case len(conds) == 0:
			c.Open("else begin")
			c.Line("nextState = %s;", fpga.StateEnum(cs.Next))
			c.Close("end")
		default:
			kw := "else if"
			if first {
				kw = "if"
			}
			c.Open("%s (%s) begin", kw, strings.Join(conds, " && "))
			c.Line("nextState = %s;", fpga.StateEnum(cs.Next))
			c.Close("end")
			first = false
			continue
		}
		// Later arms are shadowed by the default.
		break
	}
	c.Line("return nextState;")
	c.Close("endfunction")
	c.Blank()
}

// keySource renders where a select key is read from in st: a field of a
// header extracted by st, or the metadata register.
func keySource(st *fpga.State, k fpga.Key) string {
	for _, ex := range st.Extracts {
		if rest, ok := strings.CutPrefix(k.Expr, ex.Header+"."); ok {
			parts := strings.Split(rest, ".")
			for i, part := range parts {
				parts[i] = fpga.FieldName(part)
			}
			return fpga.KeyField(ex.Header) + "." + strings.Join(parts, ".")
		}
	}
	return "meta_r." + k.Field
}

func stateRule(c *CodeBuilder, st *fpga.State, hasMeta bool) {
	c.Open("rule state_%s if (started && curr_state == %s);", st.Name, st.Enum)
	if len(st.Extracts) > 0 {
		c.Line("let data <- toGet(data_in_ff).get;")
	}
	for _, ex := range st.Extracts {
		c.Line("%s %s = extract_%s(truncate(data.data));", ex.Type, fpga.KeyField(ex.Header), lower(ex.Type))
	}
	for _, line := range st.Instructions {
		c.Line("// %s", strings.TrimSpace(line))
	}
	var args []string
	for _, k := range st.Keys {
		args = append(args, keySource(st, k))
	}
	var updates []string
	if hasMeta {
		for _, ex := range st.Extracts {
			if ex.Valid != "" {
				updates = append(updates, "m."+ex.Valid+" = 1;")
			}
		}
		for _, k := range st.Meta {
			updates = append(updates, "m."+k.Field+" = "+keySource(st, k)+";")
		}
	}
	if len(updates) > 0 {
		c.Line("let m = meta_r;")
		for _, u := range updates {
			c.Line("%s", u)
		}
		c.Line("meta_r <= m;")
	}
	if len(st.Keys) > 0 {
		c.Line("curr_state <= compute_next_state_%s(%s);", st.Name, strings.Join(args, ", "))
	} else {
		c.Line("curr_state <= %s;", fpga.StateEnum(st.Next))
	}
	c.Close("endrule")
	c.Blank()
}
