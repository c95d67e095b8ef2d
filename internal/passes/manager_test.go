package passes_test

import (
	"bytes"
	"errors"
	"log/slog"
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

func newEnv(t *testing.T) (*passes.Env, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return passes.NewEnv(diag.NewReporter(&out, "text"), sema.P4_16, nil), &out
}

func decode(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := frontend.Decode([]byte(src), frontend.FormatYAML, diag.NewReporter(nil, "text"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return prog
}

func loadSample(t *testing.T) *ir.Program {
	t.Helper()
	prog, err := frontend.Load(filepath.Join("testdata", "switch.yaml"), diag.NewReporter(nil, "text"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return prog
}

// runStage runs ps as one stage and fails the test on any error.
func runStage(t *testing.T, env *passes.Env, prog *ir.Program, ps ...passes.Pass) *ir.Program {
	t.Helper()
	m := passes.NewManager("test")
	m.Add(ps...)
	next, err := m.Run(env, prog)
	if err != nil {
		t.Fatalf("run %v: %v", m.Names(), err)
	}
	return next
}

// stubPass reports an error or returns a shallow copy of its input when
// asked to, and records that it ran.
type stubPass struct {
	name   string
	report bool
	copy   bool
	ran    bool
}

func (s *stubPass) Name() string { return s.name }

func (s *stubPass) Run(env *passes.Env, prog *ir.Program) (*ir.Program, error) {
	s.ran = true
	if s.report {
		env.Reporter.Error("%1%: broken", s.name)
	}
	if s.copy {
		return prog.WithDecls(prog.Decls), nil
	}
	return prog, nil
}

func TestManagerRejectsOrdering(t *testing.T) {
	env, _ := newEnv(t)
	m := passes.NewManager("bad")
	m.Add(passes.NewUniqueParameters(), passes.NewLocalizeAllActions())

	if err := m.Validate(env); !errors.Is(err, passes.ErrOrdering) {
		t.Fatalf("Validate error = %v, want ErrOrdering", err)
	}
	if _, err := m.Run(env, loadSample(t)); !errors.Is(err, passes.ErrOrdering) {
		t.Fatalf("Run error = %v, want ErrOrdering", err)
	}
	if env.Ran("localize-all-actions") {
		t.Fatalf("no pass should run when the order is invalid")
	}
}

func TestManagerAcceptsRequirementFromEarlierStage(t *testing.T) {
	env, _ := newEnv(t)
	prog := runStage(t, env, loadSample(t), passes.NewTypeCheck(false), passes.NewLocalizeAllActions())

	m := passes.NewManager("later")
	m.Add(passes.NewTypeCheck(false), passes.NewUniqueParameters())
	if err := m.Validate(env); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := m.Run(env, prog); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestManagerAbortsOnError(t *testing.T) {
	env, out := newEnv(t)
	first := &stubPass{name: "first", report: true}
	second := &stubPass{name: "second"}
	m := passes.NewManager("stage")
	m.Add(first, second)

	next, err := m.Run(env, &ir.Program{})
	if !errors.Is(err, passes.ErrAborted) {
		t.Fatalf("Run error = %v, want ErrAborted", err)
	}
	if next != nil {
		t.Fatalf("aborted stage returned a program")
	}
	if !strings.Contains(err.Error(), "passes: stage: first:") {
		t.Fatalf("error does not name the failing pass: %v", err)
	}
	if !first.ran || second.ran {
		t.Fatalf("first ran=%v second ran=%v", first.ran, second.ran)
	}
	if !strings.Contains(out.String(), "error: first: broken") {
		t.Fatalf("diagnostic not printed: %q", out.String())
	}

	// A reporter that already holds errors stops the next stage up front.
	third := &stubPass{name: "third"}
	m = passes.NewManager("after")
	m.Add(third)
	if _, err := m.Run(env, &ir.Program{}); !errors.Is(err, passes.ErrAborted) || third.ran {
		t.Fatalf("stage ran after a fatal diagnostic: err=%v ran=%v", err, third.ran)
	}
}

func TestManagerInvalidatesStaleMaps(t *testing.T) {
	env, _ := newEnv(t)
	prog := runStage(t, env, loadSample(t), passes.NewTypeCheck(false))
	if !env.Maps.Refs.Valid(prog) || !env.Maps.Types.Valid(prog) {
		t.Fatalf("type-check did not fill both maps")
	}

	next := runStage(t, env, prog, &stubPass{name: "copy", copy: true})
	if next == prog {
		t.Fatalf("stub did not return a new program")
	}
	if env.Maps.Refs.Valid(prog) || env.Maps.Types.Valid(prog) {
		t.Fatalf("maps still describe the replaced program")
	}
	if _, err := env.Maps.RefsFor(next, "test"); !errors.Is(err, sema.ErrStale) {
		t.Fatalf("RefsFor(next) = %v, want ErrStale", err)
	}
	if !env.Ran("copy") || !env.Ran("type-check") {
		t.Fatalf("completed passes were not recorded")
	}
}

func TestManagerRejectsNilProgram(t *testing.T) {
	env, _ := newEnv(t)
	if _, err := passes.NewManager("empty").Run(env, nil); err == nil {
		t.Fatalf("expected an error for a nil program")
	}
}

func TestManagerLogsEachPass(t *testing.T) {
	var logs bytes.Buffer
	env := passes.NewEnv(diag.NewReporter(nil, "text"), sema.P4_16,
		slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	runStage(t, env, &ir.Program{}, &stubPass{name: "noop"}, &stubPass{name: "copy", copy: true})

	for _, want := range []string{"stage=test pass=noop changed=false", "stage=test pass=copy changed=true"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("log lacks %q:\n%s", want, logs.String())
		}
	}
}

const sharedNames = `decls:
  - struct:
      name: m_t
      fields:
        - {name: a, type: bit<8>}
  - control:
      name: c1
      params:
        - {name: m, dir: inout, type: m_t}
      locals:
        - action:
            name: set
            body:
              - do: m.a = 1
      body:
        - do: set()
  - control:
      name: c2
      params:
        - {name: m, dir: inout, type: m_t}
      locals:
        - action:
            name: set
            body:
              - do: m.a = 2
      body:
        - do: set()
`

func TestUniqueNames(t *testing.T) {
	env, _ := newEnv(t)
	prog := runStage(t, env, decode(t, sharedNames), passes.NewResolveReferences(), passes.NewUniqueNames())

	var names []string
	for _, c := range []string{"c1", "c2"} {
		ctl := prog.Find(c).(*ir.Control)
		act := ctl.Locals[0].(*ir.Action)
		call := ctl.Body.Stmts[0].(*ir.CallStmt).Call.Method.(*ir.PathExpr)
		if call.Name != act.Name {
			t.Fatalf("%s calls %s but declares %s", c, call.Name, act.Name)
		}
		names = append(names, act.Name)
	}
	if diff := cmp.Diff([]string{"set_0", "set_1"}, names); diff != "" {
		t.Fatalf("renamed actions mismatch (-want +got):\n%s", diff)
	}

	again := runStage(t, env, prog, passes.NewResolveReferences(), passes.NewUniqueNames())
	if again != prog {
		t.Fatalf("unique-names is not idempotent:\n%s", ir.String(again))
	}
}

func TestConstantFolding(t *testing.T) {
	env, _ := newEnv(t)
	prog := decode(t, `decls:
  - struct:
      name: m_t
      fields:
        - {name: a, type: bit<8>}
  - const: {name: K, type: bit<8>, value: "3"}
  - control:
      name: c
      params:
        - {name: m, dir: inout, type: m_t}
      body:
        - do: m.a = K + 1
        - if: K == 3
          then:
            - do: m.a = 7
          else:
            - do: m.a = 9
`)
	prog = runStage(t, env, prog, passes.NewTypeCheck(true), passes.NewConstantFolding())
	text := ir.String(prog)
	if prog.Find("K") != nil {
		t.Fatalf("folded constant declaration was kept:\n%s", text)
	}
	for _, want := range []string{"m.a = 8w4;", "m.a = 8w7;"} {
		if !strings.Contains(text, want) {
			t.Errorf("folded program lacks %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "8w9") || strings.Contains(text, "if (") {
		t.Fatalf("dead branch survived folding:\n%s", text)
	}
}

func TestConstantFoldingReportsDivisionByZero(t *testing.T) {
	env, out := newEnv(t)
	prog := decode(t, `decls:
  - struct:
      name: m_t
      fields:
        - {name: a, type: bit<8>}
  - control:
      name: c
      params:
        - {name: m, dir: inout, type: m_t}
      body:
        - do: m.a = 8w4 / 8w0
`)
	m := passes.NewManager("fold")
	m.Add(passes.NewTypeCheck(false), passes.NewConstantFolding())
	if _, err := m.Run(env, prog); !errors.Is(err, passes.ErrAborted) {
		t.Fatalf("Run error = %v, want ErrAborted", err)
	}
	if !strings.Contains(out.String(), "division by zero") {
		t.Fatalf("missing diagnostic: %q", out.String())
	}
}

func TestLocalizeAllActions(t *testing.T) {
	env, _ := newEnv(t)
	prog := runStage(t, env, loadSample(t), passes.NewTypeCheck(false), passes.NewLocalizeAllActions())
	ctl := prog.Find("SwitchIngress").(*ir.Control)

	var locals []string
	for _, l := range ctl.Locals {
		locals = append(locals, l.DeclName())
	}
	want := []string{"drop", "set_port", "forward", "set_port_0", "drop_0", "route"}
	if diff := cmp.Diff(want, locals); diff != "" {
		t.Fatalf("locals mismatch (-want +got):\n%s", diff)
	}

	route := ctl.Locals[5].(*ir.Table)
	var acts []string
	for _, a := range route.Actions {
		acts = append(acts, a.Action.Name)
	}
	if diff := cmp.Diff([]string{"set_port_0", "drop_0"}, acts); diff != "" {
		t.Fatalf("route actions mismatch (-want +got):\n%s", diff)
	}
	if route.Default.Action.Name != "set_port_0" {
		t.Fatalf("route default = %s, want set_port_0", route.Default.Action.Name)
	}
	forward := ctl.Locals[2].(*ir.Table)
	if forward.Actions[0].Action.Name != "set_port" || forward.Default.Action.Name != "drop" {
		t.Fatalf("first site lost the original names: %s", ir.String(prog))
	}
}

func TestUniqueParametersAfterLocalize(t *testing.T) {
	env, _ := newEnv(t)
	prog := runStage(t, env, loadSample(t),
		passes.NewTypeCheck(false),
		passes.NewLocalizeAllActions(),
		passes.NewTypeCheck(false),
		passes.NewUniqueParameters(),
	)
	ctl := prog.Find("SwitchIngress").(*ir.Control)
	a := ctl.Locals[1].(*ir.Action)
	b := ctl.Locals[3].(*ir.Action)
	if a.Params[0].Name == b.Params[0].Name {
		t.Fatalf("copies of set_port share parameter %s", a.Params[0].Name)
	}
	if got := ir.ExprString(b.Body.Stmts[0].(*ir.AssignStmt).Right); got != b.Params[0].Name {
		t.Fatalf("body of %s refers to %s, want %s", b.Name, got, b.Params[0].Name)
	}
}

func TestRemoveReturns(t *testing.T) {
	env, _ := newEnv(t)
	prog := decode(t, `decls:
  - struct:
      name: m_t
      fields:
        - {name: a, type: bit<8>}
  - control:
      name: c
      params:
        - {name: m, dir: inout, type: m_t}
      body:
        - if: m.a == 0
          then:
            - do: return
        - do: m.a = 1
`)
	prog = runStage(t, env, prog, passes.NewTypeCheck(false), passes.NewRemoveReturns())
	ctl := prog.Find("c").(*ir.Control)
	ir.Inspect(ctl, func(n ir.Node) bool {
		if _, ok := n.(*ir.ReturnStmt); ok {
			t.Fatalf("return survived:\n%s", ir.String(prog))
		}
		return true
	})
	if v, ok := ctl.Locals[len(ctl.Locals)-1].(*ir.Variable); !ok || v.Name != "hasReturned_0" {
		t.Fatalf("control lacks the hasReturned flag:\n%s", ir.String(prog))
	}
}
