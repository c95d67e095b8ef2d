package fpga

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"p4fpga/internal/diag"
	"p4fpga/internal/frontend"
	"p4fpga/internal/ir"
	"p4fpga/internal/midend"
	"p4fpga/internal/passes"
	"p4fpga/internal/sema"
)

// buildModel runs the sample through the midend and builds its model.
func buildModel(t *testing.T) *Model {
	t.Helper()
	prog, err := frontend.Load(filepath.Join("testdata", "switch.yaml"), diag.NewReporter(nil, "text"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	m, out := build(t, prog)
	if m == nil {
		t.Fatalf("Build failed:\n%s", out)
	}
	return m
}

func build(t *testing.T, prog *ir.Program) (*Model, string) {
	t.Helper()
	var out bytes.Buffer
	r := diag.NewReporter(&out, "text")
	env := passes.NewEnv(r, sema.P4_16, nil)
	res, err := midend.Run(env, prog)
	if err != nil || res == nil {
		t.Fatalf("midend: %v (result %v)\n%s", err, res, out.String())
	}
	refs, err := env.Maps.RefsFor(res.Program, "test")
	if err != nil {
		t.Fatalf("refs: %v", err)
	}
	types, err := env.Maps.TypesFor(res.Program, "test")
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	p := NewProgram(res.Toplevel, refs, types, r)
	if !p.Build() {
		if p.Model() != nil {
			t.Fatalf("failed build kept a model")
		}
		return nil, out.String()
	}
	return p.Model(), out.String()
}

func TestParserModel(t *testing.T) {
	m := buildModel(t)
	if m.Name != "Switch" || m.Parser.Name != "SwitchParser" {
		t.Fatalf("unexpected names %q %q", m.Name, m.Parser.Name)
	}
	want := []*State{
		{
			Name:     "start",
			Enum:     "StateStart",
			Extracts: []Extract{{Header: "hdr.ethernet", Type: "Ethernet_t", Width: 112, Valid: "ethernet_isValid"}},
			Meta: []Key{
				{Expr: "hdr.ethernet.etherType", Field: "ethernet_etherType", Width: 16},
				{Expr: "hdr.ethernet.dstAddr", Field: "ethernet_dstAddr", Width: 48},
			},
			Keys: []Key{{Expr: "hdr.ethernet.etherType", Field: "ethernet_etherType", Width: 16}},
			Cases: []Case{
				{Values: []Match{{Value: "800"}}, Next: "parse_ipv4"},
				{Values: []Match{{Default: true}}, Next: ir.Accept},
			},
		},
		{
			Name:     "parse_ipv4",
			Enum:     "StateParseIpv4",
			Extracts: []Extract{{Header: "hdr.ipv4", Type: "Ipv4_t", Width: 80, Valid: "ipv4_isValid"}},
			Meta:     []Key{{Expr: "hdr.ipv4.dstAddr", Field: "ipv4_dstAddr", Width: 32}},
			Next:     ir.Accept,
		},
	}
	if diff := cmp.Diff(want, m.Parser.States); diff != "" {
		t.Fatalf("parser states mismatch (-want +got):\n%s", diff)
	}
}

func TestDeparserModel(t *testing.T) {
	m := buildModel(t)
	want := []*EmitState{
		{Name: "destart", Enum: "StateDestart", Header: "hdr.ethernet", Type: "Ethernet_t", Width: 112, Valid: "ethernet_isValid"},
		{Name: "deparse_ipv4", Enum: "StateDeparseIpv4", Header: "hdr.ipv4", Type: "Ipv4_t", Width: 80, Valid: "ipv4_isValid"},
	}
	if diff := cmp.Diff(want, m.Deparser.States); diff != "" {
		t.Fatalf("deparser states mismatch (-want +got):\n%s", diff)
	}
}

func TestControlModel(t *testing.T) {
	m := buildModel(t)
	if len(m.Controls) != 1 {
		t.Fatalf("expected one control, got %d", len(m.Controls))
	}
	ctl := m.Controls[0]
	if ctl.Entry != "bb_forward" {
		t.Fatalf("entry = %s, want bb_forward", ctl.Entry)
	}

	type blockView struct {
		Name string
		Kind BlockKind
		Succ []Edge
	}
	var blocks []blockView
	for _, b := range ctl.Blocks {
		blocks = append(blocks, blockView{b.Name, b.Kind, b.Succ})
	}
	wantBlocks := []blockView{
		{"bb_forward", BlockTable, []Edge{{To: "bb_cond_0"}}},
		{"bb_cond_0", BlockCond, []Edge{{To: "bb_stmts_0", Label: "true"}, {To: "exit", Label: "false"}}},
		{"bb_stmts_0", BlockStmts, []Edge{{To: "bb_route"}}},
		{"bb_route", BlockTable, []Edge{{To: "exit"}}},
		{"exit", BlockExit, nil},
	}
	if diff := cmp.Diff(wantBlocks, blocks); diff != "" {
		t.Fatalf("blocks mismatch (-want +got):\n%s", diff)
	}
	if got := ctl.Blocks[2].Lines; len(got) != 1 || got[0] != "hdr.ipv4.ttl = 8w63;" {
		t.Fatalf("straight-line block = %q", got)
	}

	if len(ctl.Tables) != 2 {
		t.Fatalf("expected two tables, got %d", len(ctl.Tables))
	}
	forward, route := ctl.Tables[0], ctl.Tables[1]
	if forward.MatchType != ir.MatchExact || forward.Depth != DefaultTableDepth || forward.Default != "drop" {
		t.Fatalf("unexpected forward table %+v", forward)
	}
	if route.MatchType != ir.MatchTernary || route.Depth != 512 {
		t.Fatalf("lpm table should be ternary with depth 512, got %+v", route)
	}
	if diff := cmp.Diff([]string{"9w1"}, route.DefaultArgs); diff != "" {
		t.Fatalf("default args mismatch (-want +got):\n%s", diff)
	}

	// Both tables list set_port, so each gets its own copy.
	if forward.Actions[0] == route.Actions[0] || !strings.HasPrefix(route.Actions[0], "set_port_") {
		t.Fatalf("tables share an action: %v %v", forward.Actions, route.Actions)
	}
	fresp, rresp := m.Struct(forward.Response), m.Struct(route.Response)
	if fresp == nil || rresp == nil {
		t.Fatalf("response records missing")
	}
	if fresp.Fields[1].Name == rresp.Fields[1].Name {
		t.Fatalf("response argument fields collide: %s", fresp.Fields[1].Name)
	}
	if !strings.HasPrefix(rresp.Fields[1].Name, route.Actions[0]+"_") || rresp.Fields[1].Width != 9 {
		t.Fatalf("unexpected route argument field %+v", rresp.Fields[1])
	}
	if len(ctl.Deps) != 0 {
		t.Fatalf("unexpected dependencies %+v", ctl.Deps)
	}
}

func TestStructs(t *testing.T) {
	m := buildModel(t)
	widths := make(map[string]int)
	kinds := make(map[string]StructKind)
	for _, s := range m.Structs {
		widths[s.Name] = s.Width()
		kinds[s.Name] = s.Kind
	}
	for name, want := range map[string]int{
		"Ethernet_t":    112,
		"Ipv4_t":        80,
		"Headers_t":     192,
		"Metadata_t":    9,
		"Forward_req_t": 48,
		"Route_req_t":   32,
		"Meta_t":        1 + 16 + 1 + 48 + 32,
	} {
		if widths[name] != want {
			t.Errorf("width of %s = %d, want %d", name, widths[name], want)
		}
	}
	if kinds["Meta_t"] != KindMetadata || kinds["Route_resp_t"] != KindResponse {
		t.Fatalf("unexpected kinds %v", kinds)
	}
	meta := m.Struct("Meta_t")
	var fields []string
	for _, f := range meta.Fields {
		fields = append(fields, f.Name)
	}
	want := []string{"ethernet_isValid", "ethernet_etherType", "ipv4_isValid", "ethernet_dstAddr", "ipv4_dstAddr"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Fatalf("metadata fields mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRejectsUnsupported(t *testing.T) {
	prog, err := frontend.Load(filepath.Join("testdata", "switch.yaml"), diag.NewReporter(nil, "text"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Prepend a field wider than the model accepts.
	eth := prog.Find("ethernet_t").(*ir.HeaderType)
	wide := &ir.HeaderType{Name: eth.Name, Fields: append([]*ir.Field{{Name: "pad", Type: ir.Bits(4096)}}, eth.Fields...)}
	decls := append([]ir.Decl(nil), prog.Decls...)
	for i, d := range decls {
		if d == eth {
			decls[i] = wide
		}
	}
	m, out := build(t, prog.WithDecls(decls))
	if m != nil {
		t.Fatalf("model built for an over-wide field")
	}
	if !strings.Contains(out, "error[U007]: ethernet_t.pad") {
		t.Fatalf("missing coded diagnostic:\n%s", out)
	}
}

func TestDumpRoundTrip(t *testing.T) {
	m := buildModel(t)
	var buf bytes.Buffer
	if err := Dump(m, &buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	var back Model
	if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(m, &back); diff != "" {
		t.Fatalf("dumped model differs (-built +decoded):\n%s", diff)
	}
}

func TestNaming(t *testing.T) {
	tests := []struct {
		fn   func(string) string
		in   string
		want string
	}{
		{TypeName, "ethernet_t", "Ethernet_t"},
		{TypeName, "headers", "Headers_t"},
		{TypeName, "forward_resp", "Forward_resp_t"},
		{CamelCase, "set_port_0", "SetPort_0"},
		{CamelCase, "hdr.ipv4", "HdrIpv4"},
		{StateEnum, "parse_ipv4", "StateParseIpv4"},
		{BlockName, "route", "bb_route"},
		{DeparseState, "start", "destart"},
		{FieldName, "DstAddr", "dstAddr"},
		{KeyField, "hdr.ethernet.etherType", "ethernet_etherType"},
		{KeyField, "meta", "meta"},
	}
	for _, tt := range tests {
		if got := tt.fn(tt.in); got != tt.want {
			t.Errorf("naming %q = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnumWidth(t *testing.T) {
	for n, want := range map[int]int{0: 1, 1: 1, 2: 1, 3: 2, 4: 2, 5: 3} {
		if got := enumWidth(n); got != want {
			t.Errorf("enumWidth(%d) = %d, want %d", n, got, want)
		}
	}
}
