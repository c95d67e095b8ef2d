package bsv

import (
	"p4fpga/internal/fpga"
)

const (
	deparseIdle    = "StateDeparseIdle"
	deparsePayload = "StateDeparsePayload"
)

func emitDeparser(m *fpga.Model) string {
	c := &CodeBuilder{}
	preamble(c, m, parserImports())
	d := m.Deparser
	labels := []string{deparseIdle}
	for _, st := range d.States {
		labels = append(labels, st.Enum)
	}
	labels = append(labels, deparsePayload)
	enum(c, "DeparserState", labels, "Bits, Eq")
	fshow(c, "DeparserState", labels)

	seen := make(map[string]bool)
	for _, st := range d.States {
		if seen[st.Type] {
			continue
		}
		seen[st.Type] = true
		c.Open("function %s deparse_%s(%s hdr);", bits(st.Width), lower(st.Type), st.Type)
		c.Line("return pack(hdr);")
		c.Close("endfunction")
		c.Blank()
	}

	meta := m.Struct(fpga.TypeName("meta"))
	c.Open("interface Deparser;")
	c.Line("interface Put#(EtherData) frameIn;")
	if meta != nil {
		c.Line("interface Put#(%s) meta;", meta.Name)
	}
	for _, st := range d.States {
		c.Line("interface Put#(%s) %s;", st.Type, fpga.KeyField(st.Header))
	}
	c.Line("interface Get#(EtherData) frameOut;")
	c.Close("endinterface")
	c.Blank()

	c.Line("(* synthesize *)")
	c.Open("module mkDeparser(Deparser);")
	c.Line("Reg#(DeparserState) deparse_state <- mkReg(%s);", deparseIdle)
	c.Line("FIFOF#(EtherData) data_in_ff <- mkFIFOF;")
	c.Line("FIFOF#(EtherData) data_out_ff <- mkFIFOF;")
	if meta != nil {
		c.Line("FIFOF#(%s) meta_in_ff <- mkFIFOF;", meta.Name)
		c.Line("Reg#(%s) meta_r <- mkRegU;", meta.Name)
	}
	for _, st := range d.States {
		c.Line("FIFOF#(%s) %s_ff <- mkFIFOF;", st.Type, fpga.KeyField(st.Header))
	}
	c.Blank()

	first := deparsePayload
	if len(d.States) > 0 {
		first = d.States[0].Enum
	}
	c.Open("rule deparse_idle if (deparse_state == %s && data_in_ff.notEmpty);", deparseIdle)
	if meta != nil {
		c.Line("let m <- toGet(meta_in_ff).get;")
		c.Line("meta_r <= m;")
	}
	c.Line("deparse_state <= %s;", first)
	c.Close("endrule")
	c.Blank()
	for i, st := range d.States {
		next := deparsePayload
		if i+1 < len(d.States) {
			next = d.States[i+1].Enum
		}
		field := fpga.KeyField(st.Header)
		// An invalid header takes the skip rule and is never dequeued.
		guard := ""
		if meta != nil && st.Valid != "" {
			guard = " && meta_r." + st.Valid + " == 1"
		}
		c.Open("rule %s if (deparse_state == %s%s);", st.Name, st.Enum, guard)
		c.Line("let hdr <- toGet(%s_ff).get;", field)
		c.Line("EtherData beat = defaultValue;")
		c.Line("beat.data = zeroExtend(deparse_%s(hdr));", lower(st.Type))
		c.Line("data_out_ff.enq(beat);")
		c.Line("deparse_state <= %s;", next)
		c.Close("endrule")
		c.Blank()
		if guard != "" {
			c.Open("rule skip_%s if (deparse_state == %s && meta_r.%s == 0);", st.Name, st.Enum, st.Valid)
			c.Line("deparse_state <= %s;", next)
			c.Close("endrule")
			c.Blank()
		}
	}
	c.Open("rule deparse_payload if (deparse_state == %s);", deparsePayload)
	c.Line("let beat <- toGet(data_in_ff).get;")
	c.Line("data_out_ff.enq(beat);")
	c.Line("deparse_state <= %s;", deparseIdle)
	c.Close("endrule")
	c.Blank()
	c.Line("interface frameIn = toPut(data_in_ff);")
	if meta != nil {
		c.Line("interface meta = toPut(meta_in_ff);")
	}
	for _, st := range d.States {
		field := fpga.KeyField(st.Header)
		c.Line("interface %s = toPut(%s_ff);", field, field)
	}
	c.Line("interface frameOut = toGet(data_out_ff);")
	c.Close("endmodule")
	return c.String()
}
