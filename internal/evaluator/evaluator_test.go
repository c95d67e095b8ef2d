package evaluator

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"p4fpga/internal/diag"
	"p4fpga/internal/frontend"
	"p4fpga/internal/ir"
	"p4fpga/internal/passes"
	"p4fpga/internal/sema"
)

const mainArgs = "args: [SwitchParser(), SwitchIngress(), SwitchDeparser()]"

// sample returns the sample document with its main arguments line replaced
// by args, and any extra declarations appended.
func sample(t *testing.T, args string, extra string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "switch.yaml"))
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	src := string(data)
	if !strings.Contains(src, mainArgs) {
		t.Fatalf("sample lacks the main arguments line")
	}
	src = strings.Replace(src, mainArgs, args, 1)
	return strings.Replace(src, "  - instance:\n      name: main\n", extra+"  - instance:\n      name: main\n", 1)
}

func evaluate(t *testing.T, src string) (*Toplevel, string) {
	t.Helper()
	prog, err := frontend.Decode([]byte(src), frontend.FormatYAML, diag.NewReporter(nil, "text"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var out bytes.Buffer
	r := diag.NewReporter(&out, "text")
	refs := sema.Resolve(prog, sema.P4_16, r)
	return Evaluate(prog, refs, r), out.String()
}

type edgeView struct {
	Label string
	Kind  string
	Type  string
}

func edges(top *Toplevel, h Handle) []edgeView {
	var out []edgeView
	for _, e := range top.Edges(h) {
		out = append(out, edgeView{e.Label, e.Kind.String(), top.Node(e.To).Type})
	}
	return out
}

func TestEvaluateSample(t *testing.T) {
	top, diags := evaluate(t, sample(t, mainArgs, ""))
	if diags != "" {
		t.Fatalf("unexpected diagnostics:\n%s", diags)
	}
	main := top.Main()
	if !main.IsValid() || top.Lookup(ir.MainName) != main {
		t.Fatalf("main not found")
	}
	n := top.Node(main)
	if n.Kind != KindPackage || n.Type != "Switch" {
		t.Fatalf("unexpected main node %+v", n)
	}
	want := []edgeView{
		{"p", "owns", "SwitchParser"},
		{"ig", "owns", "SwitchIngress"},
		{"dep", "owns", "SwitchDeparser"},
	}
	if diff := cmp.Diff(want, edges(top, main)); diff != "" {
		t.Fatalf("edges mismatch (-want +got):\n%s", diff)
	}
	if top.Len() != 4 {
		t.Fatalf("Len = %d, want 4", top.Len())
	}
	ig := top.Node(top.Arg(main, "ig"))
	if ig.Kind != KindControl || ig.Name != "SwitchIngress" {
		t.Fatalf("constructor call should be named after its type, got %+v", ig)
	}
	if _, ok := ig.Decl.(*ir.Control); !ok {
		t.Fatalf("ig node does not carry its control")
	}
}

func TestEvaluateReference(t *testing.T) {
	extra := "  - instance:\n      name: ingress\n      type: SwitchIngress\n"
	top, diags := evaluate(t, sample(t, "args: [SwitchParser(), ingress, SwitchDeparser()]", extra))
	if diags != "" {
		t.Fatalf("unexpected diagnostics:\n%s", diags)
	}
	main := top.Main()
	ref := top.Lookup("ingress")
	if !ref.IsValid() || top.Arg(main, "ig") != ref {
		t.Fatalf("ig slot does not refer to the ingress instance")
	}
	for _, e := range top.Edges(main) {
		if e.Label == "ig" && e.Kind != RefersTo {
			t.Fatalf("ig edge kind = %s, want refers-to", e.Kind)
		}
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name  string
		args  string
		extra string
		want  string
	}{
		{
			name: "arity",
			args: "args: [SwitchParser(), SwitchIngress()]",
			want: "main: Switch expects 3 constructor arguments, got 2",
		},
		{
			name: "slot kind",
			args: "args: [SwitchParser(), SwitchParser(), SwitchDeparser()]",
			want: "main: argument ig of Switch must be a control, got parser",
		},
		{
			name: "unknown type",
			args: "args: [SwitchParser(), Missing(), SwitchDeparser()]",
			want: "Missing: unknown constructor type Missing",
		},
		{
			name: "block arguments",
			args: "args: [SwitchParser(1), SwitchIngress(), SwitchDeparser()]",
			want: "SwitchParser: SwitchParser expects 0 constructor arguments, got 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags := evaluate(t, sample(t, tt.args, tt.extra))
			if !strings.Contains(diags, tt.want) {
				t.Fatalf("diagnostics lack %q:\n%s", tt.want, diags)
			}
		})
	}
}

func TestNilToplevel(t *testing.T) {
	var top *Toplevel
	if top.Main().IsValid() || top.Len() != 0 || top.Node(1) != nil || top.Edges(1) != nil {
		t.Fatalf("nil toplevel should be empty")
	}
}

func TestPassRecordsToplevel(t *testing.T) {
	prog, err := frontend.Decode([]byte(sample(t, mainArgs, "")), frontend.FormatYAML, diag.NewReporter(nil, "text"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	env := passes.NewEnv(diag.NewReporter(nil, "text"), sema.P4_16, nil)
	p := NewPass()
	m := passes.NewManager("test")
	m.Add(p)
	next, err := m.Run(env, prog)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if next != prog {
		t.Fatalf("evaluate changed the program")
	}
	if p.Toplevel() == nil || p.Toplevel().Program != prog || !p.Toplevel().Main().IsValid() {
		t.Fatalf("pass did not record the evaluated toplevel")
	}
	if !env.Maps.Types.Valid(prog) {
		t.Fatalf("evaluate should leave a valid type map")
	}
}

func TestPassSkipsIllTypedProgram(t *testing.T) {
	prog, err := frontend.Decode([]byte(`decls:
  - struct:
      name: s
      fields:
        - {name: f, type: missing_t}
`), frontend.FormatYAML, diag.NewReporter(nil, "text"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	env := passes.NewEnv(diag.NewReporter(nil, "text"), sema.P4_16, nil)
	p := NewPass()
	if _, err := p.Run(env, prog); err != nil {
		t.Fatalf("run: %v", err)
	}
	if p.Toplevel() != nil {
		t.Fatalf("toplevel built despite type errors")
	}
	if !env.Reporter.HasErrors() {
		t.Fatalf("missing type was not reported")
	}
}
