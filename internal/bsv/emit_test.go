package bsv

import (
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"p4fpga/internal/fpga"
)

func sampleModel() *fpga.Model {
	return &fpga.Model{
		Name: "Switch",
		Structs: []*fpga.Struct{
			{Name: "Ethernet_t", Source: "ethernet_t", Kind: fpga.KindHeader, Fields: []fpga.Field{
				{Name: "dstAddr", Width: 48}, {Name: "srcAddr", Width: 48}, {Name: "etherType", Width: 16},
			}},
			{Name: "Ipv4_t", Source: "ipv4_t", Kind: fpga.KindHeader, Fields: []fpga.Field{
				{Name: "ttl", Width: 8}, {Name: "protocol", Width: 8}, {Name: "srcAddr", Width: 32}, {Name: "dstAddr", Width: 32},
			}},
			{Name: "Forward_req_t", Source: "forward", Kind: fpga.KindRequest, Fields: []fpga.Field{
				{Name: "ethernet_dstAddr", Width: 48},
			}},
			{Name: "Forward_resp_t", Source: "forward", Kind: fpga.KindResponse, Fields: []fpga.Field{
				{Name: "act", Width: 1, Type: "Forward_action_t"}, {Name: "set_port_port_0", Width: 9},
			}},
			{Name: "Meta_t", Kind: fpga.KindMetadata, Fields: []fpga.Field{
				{Name: "ethernet_isValid", Width: 1}, {Name: "ethernet_etherType", Width: 16},
				{Name: "ipv4_isValid", Width: 1}, {Name: "ethernet_dstAddr", Width: 48},
			}},
		},
		Enums: []*fpga.Enum{
			{Name: "Forward_action_t", Width: 1, Labels: []string{"SetPort", "Drop"}},
		},
		Parser: &fpga.Parser{Name: "SwitchParser", States: []*fpga.State{
			{
				Name:     "start",
				Enum:     "StateStart",
				Extracts: []fpga.Extract{{Header: "hdr.ethernet", Type: "Ethernet_t", Width: 112, Valid: "ethernet_isValid"}},
				Meta: []fpga.Key{
					{Expr: "hdr.ethernet.etherType", Field: "ethernet_etherType", Width: 16},
					{Expr: "hdr.ethernet.dstAddr", Field: "ethernet_dstAddr", Width: 48},
				},
				Keys: []fpga.Key{{Expr: "hdr.ethernet.etherType", Field: "ethernet_etherType", Width: 16}},
				Cases: []fpga.Case{
					{Values: []fpga.Match{{Value: "800"}}, Next: "parse_ipv4"},
					{Values: []fpga.Match{{Default: true}}, Next: "accept"},
				},
			},
			{
				Name:     "parse_ipv4",
				Enum:     "StateParseIpv4",
				Extracts: []fpga.Extract{{Header: "hdr.ipv4", Type: "Ipv4_t", Width: 80, Valid: "ipv4_isValid"}},
				Next:     "accept",
			},
		}},
		Controls: []*fpga.Control{{
			Name:  "SwitchIngress",
			Type:  "SwitchIngress",
			Entry: "bb_forward",
			Tables: []*fpga.Table{{
				Name: "forward", Block: "bb_forward", MatchType: "exact", Depth: 1024,
				Keys:    []fpga.Key{{Expr: "hdr.ethernet.dstAddr", Field: "ethernet_dstAddr", Width: 48, MatchKind: "exact"}},
				Actions: []string{"set_port", "drop"}, Default: "drop",
				Request: "Forward_req_t", Response: "Forward_resp_t", ActionEnum: "Forward_action_t",
			}},
			Blocks: []*fpga.Block{
				{Name: "bb_forward", Kind: fpga.BlockTable, Label: "forward", Succ: []fpga.Edge{{To: "bb_cond_0"}}},
				{Name: "bb_cond_0", Kind: fpga.BlockCond, Label: "hdr.ipv4.isValid()", Succ: []fpga.Edge{
					{To: "bb_stmts_0", Label: "true"}, {To: "exit", Label: "false"},
				}},
				{Name: "bb_stmts_0", Kind: fpga.BlockStmts, Lines: []string{`hdr.ipv4.ttl = 8w63;`}, Succ: []fpga.Edge{{To: "exit"}}},
				{Name: "exit", Kind: fpga.BlockExit},
			},
		}},
		Deparser: &fpga.Deparser{Name: "SwitchDeparser", States: []*fpga.EmitState{
			{Name: "destart", Enum: "StateDestart", Header: "hdr.ethernet", Type: "Ethernet_t", Width: 112, Valid: "ethernet_isValid"},
			{Name: "deparse_ipv4", Enum: "StateDeparseIpv4", Header: "hdr.ipv4", Type: "Ipv4_t", Width: 80, Valid: "ipv4_isValid"},
		}},
	}
}

func TestEmitIsDeterministic(t *testing.T) {
	first, second := Emit(sampleModel()), Emit(sampleModel())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("two emissions differ (-first +second):\n%s", diff)
	}
	var names []string
	for _, f := range first.Files() {
		names = append(names, f.Name)
		if f.Data == "" {
			t.Errorf("%s is empty", f.Name)
		}
	}
	if diff := cmp.Diff([]string{ParserFile, DeparserFile, StructFile, GraphFile}, names); diff != "" {
		t.Fatalf("file order mismatch (-want +got):\n%s", diff)
	}
}

// Every record type the parser or deparser mentions must be defined in the
// struct file.
func TestReferencedTypesAreDefined(t *testing.T) {
	a := Emit(sampleModel())
	defined := make(map[string]bool)
	for _, m := range regexp.MustCompile(`(?m)^\} (\w+) deriving`).FindAllStringSubmatch(a.Struct, -1) {
		defined[m[1]] = true
	}
	used := regexp.MustCompile(`\b[A-Z]\w*_t\b`)
	for _, text := range []string{a.Parser, a.Deparser} {
		for _, name := range used.FindAllString(text, -1) {
			if !defined[name] {
				t.Errorf("%s is used but not defined in %s", name, StructFile)
			}
		}
	}
	if !defined["Forward_action_t"] || !defined["Meta_t"] {
		t.Fatalf("struct file lacks enum or metadata:\n%s", a.Struct)
	}
}

func TestEmitParser(t *testing.T) {
	text := Emit(sampleModel()).Parser
	for _, want := range []string{
		"import StructGenerated::*;",
		"StateParseIpv4,",
		"StateReject\n} ParserState deriving (Bits, Eq);",
		"function Ethernet_t extract_ethernet_t(Bit#(112) data);",
		"function ParserState compute_next_state_start(Bit#(16) ethernet_etherType);",
		"if ((ethernet_etherType == 16'h800)) begin",
		"    else begin\n        nextState = StateAccept;",
		"Ethernet_t ethernet = extract_ethernet_t(truncate(data.data));",
		"meta_r <= unpack(0);",
		"m.ethernet_isValid = 1;\n        m.ethernet_etherType = ethernet.etherType;\n        m.ethernet_dstAddr = ethernet.dstAddr;",
		"m.ipv4_isValid = 1;",
		"curr_state <= compute_next_state_start(ethernet.etherType);",
		"rule state_parse_ipv4 if (started && curr_state == StateParseIpv4);",
		"interface Get#(Meta_t) meta;",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("parser lacks %q", want)
		}
	}
	if t.Failed() {
		t.Logf("parser text:\n%s", text)
	}
}

func TestNextStateMasksAndShadowing(t *testing.T) {
	c := &CodeBuilder{}
	nextState(c, &fpga.State{
		Name: "s",
		Keys: []fpga.Key{{Field: "k", Width: 8}},
		Cases: []fpga.Case{
			{Values: []fpga.Match{{Value: "10", Mask: "f0"}}, Next: "a"},
			{Values: []fpga.Match{{Default: true}}, Next: "b"},
			{Values: []fpga.Match{{Value: "1"}}, Next: "never"},
		},
	})
	text := c.String()
	if !strings.Contains(text, "if (((k & 8'hf0) == 8'h10)) begin") {
		t.Fatalf("masked arm missing:\n%s", text)
	}
	if strings.Contains(text, "StateNever") {
		t.Fatalf("arm after default was emitted:\n%s", text)
	}
}

func TestEmitDeparser(t *testing.T) {
	text := Emit(sampleModel()).Deparser
	for _, want := range []string{
		"StateDeparseIdle,\n    StateDestart,\n    StateDeparseIpv4,\n    StateDeparsePayload\n} DeparserState",
		"function Bit#(112) deparse_ethernet_t(Ethernet_t hdr);",
		"rule destart if (deparse_state == StateDestart && meta_r.ethernet_isValid == 1);",
		"rule skip_deparse_ipv4 if (deparse_state == StateDeparseIpv4 && meta_r.ipv4_isValid == 0);\n        deparse_state <= StateDeparsePayload;",
		"let m <- toGet(meta_in_ff).get;",
		"interface Put#(Meta_t) meta;",
		"deparse_state <= StateDeparseIpv4;",
		"interface Put#(Ipv4_t) ipv4;",
		"interface ipv4 = toPut(ipv4_ff);",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("deparser lacks %q", want)
		}
	}
	if t.Failed() {
		t.Logf("deparser text:\n%s", text)
	}
}

func TestEmitStructs(t *testing.T) {
	m := sampleModel()
	m.Enums = append(m.Enums, &fpga.Enum{Name: "Empty_action_t", Width: 1})
	text := Emit(m).Struct
	for _, want := range []string{
		"// header ethernet_t\ntypedef struct {\n    Bit#(48) dstAddr;",
		"    Forward_action_t act;\n    Bit#(9) set_port_port_0;\n} Forward_resp_t deriving (Bits, Eq, FShow);",
		"// metadata\ntypedef struct {",
		"NoActionEmpty_action_t\n} Empty_action_t deriving (Bits, Eq, FShow);",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("struct file lacks %q", want)
		}
	}
	if t.Failed() {
		t.Logf("struct text:\n%s", text)
	}
}

func TestEmitGraph(t *testing.T) {
	text := Emit(sampleModel()).Graph
	for _, want := range []string{
		`digraph "Switch" {`,
		`"SwitchParser.start" -> "SwitchParser.parse_ipv4" [label="0x800"];`,
		`"SwitchParser.start" -> "SwitchParser.accept" [label="default"];`,
		`"SwitchIngress.entry" -> "SwitchIngress.bb_forward";`,
		`"SwitchIngress.bb_forward" [label="forward\nexact depth=1024\nkey hdr.ethernet.dstAddr : exact\naction set_port\naction drop"];`,
		`"SwitchIngress.bb_cond_0" -> "SwitchIngress.exit" [label="false"];`,
		`"SwitchDeparser.destart" -> "SwitchDeparser.deparse_ipv4";`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("graph lacks %s", want)
		}
	}
	if t.Failed() {
		t.Logf("graph text:\n%s", text)
	}
}

func TestQuote(t *testing.T) {
	if got := quote(`say "hi"`, `a\b`); got != `"say \"hi\"\na\\b"` {
		t.Fatalf("quote = %s", got)
	}
}

func TestCodeBuilderIndents(t *testing.T) {
	c := &CodeBuilder{}
	c.Open("a {")
	c.Line("b;")
	c.Close("}")
	c.Close("extra")
	if got, want := c.String(), "a {\n    b;\n}\nextra\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
