package frontend

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"p4fpga/internal/diag"
	"p4fpga/internal/ir"
)

func TestParseExpr(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"a + b * c", "(a + (b * c))"},
		{"(a + b) * c", "((a + b) * c)"},
		{"a == 1 && b != 2 || c", "(((a == 1) && (b != 2)) || c)"},
		{"x << 2 + 1", "(x << (2 + 1))"},
		{"a ++ b", "(a ++ b)"},
		{"16w0x800", "16w2048"},
		{"8s-5", "8s-5"},
		{"-x", "-x"},
		{"!hdr.ipv4.isValid()", "!hdr.ipv4.isValid()"},
		{"(bit<16>)meta.len + 1", "((bit<16>)meta.len + 1)"},
		{"hdr.eth.dst[47:40]", "hdr.eth.dst[47:40]"},
		{"pkt.extract(hdr.eth)", "pkt.extract(hdr.eth)"},
		{"true && false", "(true && false)"},
	}
	for _, tt := range tests {
		e, err := ParseExpr(tt.src)
		if err != nil {
			t.Errorf("ParseExpr(%q): %v", tt.src, err)
			continue
		}
		if got := ir.ExprString(e); got != tt.want {
			t.Errorf("ParseExpr(%q) = %s, want %s", tt.src, got, tt.want)
		}
	}
}

func TestParseExprErrors(t *testing.T) {
	for _, src := range []string{"a +", "(a", "a $ b", "x[3]", "a.", "0xzz"} {
		if _, err := ParseExpr(src); err == nil {
			t.Errorf("ParseExpr(%q) succeeded", src)
		}
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"bit<48>", "bit<48>"},
		{"int<8>", "int<8>"},
		{"bit", "bit<1>"},
		{"int", "int"},
		{"bool", "bool"},
		{"varbit<320>", "varbit<320>"},
		{"ipv4_t", "ipv4_t"},
		{"vlan_t[2]", "vlan_t[2]"},
	}
	for _, tt := range tests {
		typ, err := ParseType(tt.src)
		if err != nil {
			t.Errorf("ParseType(%q): %v", tt.src, err)
			continue
		}
		if got := typ.String(); got != tt.want {
			t.Errorf("ParseType(%q) = %s, want %s", tt.src, got, tt.want)
		}
	}
	if _, err := ParseType("bit<"); err == nil {
		t.Fatalf("ParseType accepted an unterminated width")
	}
}

func TestParseSimpleStmt(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"meta.port = 1;", "meta.port = 1;"},
		{"t.apply()", "t.apply();"},
		{"exit", "exit;"},
		{"return", "return;"},
		{"", ";"},
	}
	for _, tt := range tests {
		s, err := parseSimpleStmt(tt.src)
		if err != nil {
			t.Errorf("parseSimpleStmt(%q): %v", tt.src, err)
			continue
		}
		if got := strings.Join(ir.StmtLines(s), "\n"); got != tt.want {
			t.Errorf("parseSimpleStmt(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
	if _, err := parseSimpleStmt("a + b"); err == nil {
		t.Fatalf("expression statement was accepted")
	}
}

func TestParseKeyset(t *testing.T) {
	ks, err := parseKeyset("0x0800 &&& 0xff00")
	if err != nil {
		t.Fatalf("parseKeyset: %v", err)
	}
	if ks.Default || ir.ExprString(ks.Value) != "2048" || ir.ExprString(ks.Mask) != "65280" {
		t.Fatalf("unexpected masked keyset %+v", ks)
	}
	for _, src := range []string{"default", "_"} {
		ks, err := parseKeyset(src)
		if err != nil || !ks.Default {
			t.Fatalf("parseKeyset(%q) = %+v, %v", src, ks, err)
		}
	}
}

func loadSample(t *testing.T) *ir.Program {
	t.Helper()
	prog, err := Load(filepath.Join("testdata", "switch.yaml"), diag.NewReporter(nil, "text"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return prog
}

func TestLoadSample(t *testing.T) {
	prog := loadSample(t)
	ctl, ok := prog.Find("SwitchIngress").(*ir.Control)
	if !ok {
		t.Fatalf("SwitchIngress not found")
	}
	if len(ctl.Locals) != 4 {
		t.Fatalf("expected 4 locals, got %d", len(ctl.Locals))
	}
	route := ctl.Locals[3].(*ir.Table)
	if route.Size != 512 || route.Default == nil || len(route.Default.Args) != 1 {
		t.Fatalf("unexpected route table %+v", route)
	}
	p := prog.Find("SwitchParser").(*ir.Parser)
	sel, ok := p.State(ir.StartState).Transition.(*ir.Select)
	if !ok || len(sel.Cases) != 2 || !sel.Cases[1].Keysets[0].Default {
		t.Fatalf("unexpected start transition %+v", p.State(ir.StartState).Transition)
	}
	if g, ok := p.State("parse_ipv4").Transition.(*ir.Goto); !ok || g.State != ir.Accept {
		t.Fatalf("parse_ipv4 should go to accept")
	}
	main := prog.Find(ir.MainName).(*ir.Instantiation)
	if _, ok := main.Args[0].(*ir.ConstructorCall); !ok {
		t.Fatalf("main arguments should be constructor calls, got %T", main.Args[0])
	}
}

func TestRoundTrip(t *testing.T) {
	prog := loadSample(t)
	want := ir.String(prog)
	for _, format := range []string{FormatYAML, FormatMsgpack} {
		var buf bytes.Buffer
		if err := Encode(&buf, prog, format); err != nil {
			t.Fatalf("Encode %s: %v", format, err)
		}
		back, err := Decode(buf.Bytes(), format, diag.NewReporter(nil, "text"))
		if err != nil {
			t.Fatalf("Decode %s: %v", format, err)
		}
		if diff := cmp.Diff(want, ir.String(back)); diff != "" {
			t.Fatalf("%s round trip changed the program (-want +got):\n%s", format, diff)
		}
	}
}

func TestEncodeText(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, loadSample(t), FormatText); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(buf.String(), "parser SwitchParser(") {
		t.Fatalf("text listing lacks the parser:\n%s", buf.String())
	}
	if _, err := Decode(buf.Bytes(), FormatText, diag.NewReporter(nil, "text")); err == nil {
		t.Fatalf("text listings must not be decodable")
	}
}

func TestDecodeReportsMalformedElements(t *testing.T) {
	src := `decls:
  - header:
      name: h_t
      fields:
        - {name: a, type: "bit<"}
        - {name: b, type: bit<8>}
  - control:
      name: c
      params:
        - {name: x, dir: sideways, type: h_t}
  - {}
`
	var out bytes.Buffer
	r := diag.NewReporter(&out, "text")
	_, err := Decode([]byte(src), FormatYAML, r)
	if err == nil || !strings.Contains(err.Error(), "3 malformed element(s)") {
		t.Fatalf("unexpected error %v", err)
	}
	for _, want := range []string{"h_t.a:", `c.x: unknown direction "sideways"`, "empty declaration"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("diagnostics lack %q:\n%s", want, out.String())
		}
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode([]byte("decls:\n  - header: {name: h, feilds: []}\n"), FormatYAML, diag.NewReporter(nil, "text"))
	if err == nil || !strings.Contains(err.Error(), "decode yaml") {
		t.Fatalf("expected a yaml decode error, got %v", err)
	}
}

func TestFormatOf(t *testing.T) {
	for path, want := range map[string]string{
		"a.yaml": FormatYAML, "a.YML": FormatYAML, "a.msgpack": FormatMsgpack, "a.mpk": FormatMsgpack,
	} {
		got, err := FormatOf(path)
		if err != nil || got != want {
			t.Errorf("FormatOf(%q) = %q, %v", path, got, err)
		}
	}
	if _, err := FormatOf("prog.p4"); err == nil {
		t.Fatalf("FormatOf accepted .p4")
	}
}
