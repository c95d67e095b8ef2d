package sema_test

import (
	"bytes"
	"errors"
	"math/big"
	"strings"
	"testing"

	"p4fpga/internal/diag"
	"p4fpga/internal/frontend"
	"p4fpga/internal/ir"
	"p4fpga/internal/sema"
)

func decode(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := frontend.Decode([]byte(src), frontend.FormatYAML, diag.NewReporter(nil, "text"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return prog
}

const lateAction = `decls:
  - struct:
      name: m_t
      fields:
        - {name: port, type: bit<9>}
  - control:
      name: c
      params:
        - {name: m, dir: inout, type: m_t}
      locals:
        - table:
            name: t
            keys:
              - {expr: m.port, match: exact}
            actions: [a]
        - action:
            name: a
            body:
              - do: m.port = 511
      body:
        - do: t.apply()
`

func TestResolveDialects(t *testing.T) {
	prog := decode(t, lateAction)

	var out bytes.Buffer
	r := diag.NewReporter(&out, "text")
	sema.Resolve(prog, sema.P4_16, r)
	if !strings.Contains(out.String(), "a: declaration not found") {
		t.Fatalf("p4-16 should require declaration before use, got %q", out.String())
	}

	r = diag.NewReporter(nil, "text")
	refs := sema.Resolve(prog, sema.P4_14, r)
	if r.HasErrors() {
		t.Fatalf("p4-14 should resolve in any order: %v", r.Diagnostics())
	}
	ctl := prog.Find("c").(*ir.Control)
	tbl := ctl.Locals[0].(*ir.Table)
	if refs.Decl(tbl.Actions[0].Action) != ctl.Locals[1] {
		t.Fatalf("action reference resolved to %v", refs.Decl(tbl.Actions[0].Action))
	}
	if refs.Owner(ctl.Locals[1]) != ctl {
		t.Fatalf("owner of a is not c")
	}
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]sema.Dialect{"": sema.P4_16, "p4-16": sema.P4_16, "P4_14": sema.P4_14, "14": sema.P4_14} {
		got, err := sema.ParseDialect(in)
		if err != nil || got != want {
			t.Errorf("ParseDialect(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := sema.ParseDialect("p4-18"); err == nil {
		t.Fatalf("ParseDialect accepted p4-18")
	}
}

func TestInferAndSpecialize(t *testing.T) {
	prog := decode(t, lateAction)
	r := diag.NewReporter(nil, "text")
	refs := sema.Resolve(prog, sema.P4_14, r)
	types := sema.Infer(prog, refs, r)
	if r.HasErrors() {
		t.Fatalf("unexpected errors: %v", r.Diagnostics())
	}
	if w := types.Width(&ir.NamedType{Name: "m_t"}); w != 9 {
		t.Fatalf("width of m_t = %d, want 9", w)
	}

	next := sema.Specialize(prog, refs, types)
	if next == prog {
		t.Fatalf("Specialize left an untyped literal alone")
	}
	act := next.Find("c").(*ir.Control).Locals[1].(*ir.Action)
	assign := act.Body.Stmts[0].(*ir.AssignStmt)
	if got := ir.ExprString(assign.Right); got != "9w511" {
		t.Fatalf("specialized literal = %s, want 9w511", got)
	}
	refs2 := sema.Resolve(next, sema.P4_14, r)
	if again := sema.Specialize(next, refs2, sema.Infer(next, refs2, r)); again != next {
		t.Fatalf("Specialize is not idempotent")
	}
}

func TestInferReportsMismatch(t *testing.T) {
	prog := decode(t, `decls:
  - struct:
      name: m_t
      fields:
        - {name: a, type: bit<8>}
        - {name: b, type: bit<16>}
  - control:
      name: c
      params:
        - {name: m, dir: inout, type: m_t}
      body:
        - do: m.a = m.b
        - if: m.a
          then: []
`)
	var out bytes.Buffer
	r := diag.NewReporter(&out, "text")
	sema.Infer(prog, sema.Resolve(prog, sema.P4_16, r), r)
	for _, want := range []string{"m.a: cannot use bit<16> as bit<8>", "if condition m.a has type bit<8>, want bool"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("diagnostics lack %q:\n%s", want, out.String())
		}
	}
}

func TestCacheStaleness(t *testing.T) {
	p1 := &ir.Program{}
	p2 := p1.WithDecls(nil)
	var maps sema.Maps
	refs := &sema.RefMap{}
	maps.Refs.Set(p1, refs)

	if got, err := maps.RefsFor(p1, "test"); err != nil || got != refs {
		t.Fatalf("RefsFor(p1) = %v, %v", got, err)
	}
	if _, err := maps.RefsFor(p2, "test"); !errors.Is(err, sema.ErrStale) {
		t.Fatalf("RefsFor(p2) error = %v, want ErrStale", err)
	}
	if _, err := maps.TypesFor(p1, "test"); !errors.Is(err, sema.ErrStale) {
		t.Fatalf("empty type cache should be stale, got %v", err)
	}
	maps.Invalidate()
	if maps.Refs.Valid(p1) {
		t.Fatalf("Invalidate kept the reference map")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		v    int64
		typ  *ir.BitsType
		want int64
	}{
		{256, ir.Bits(8), 0},
		{-1, ir.Bits(8), 255},
		{200, &ir.BitsType{Width: 8, Signed: true}, -56},
		{511, ir.Bits(9), 511},
	}
	for _, tt := range tests {
		if got := sema.Truncate(big.NewInt(tt.v), tt.typ); got.Int64() != tt.want {
			t.Errorf("Truncate(%d, %s) = %s, want %d", tt.v, tt.typ, got, tt.want)
		}
	}
}

func TestNameGen(t *testing.T) {
	prog := decode(t, `decls:
  - header:
      name: x
      fields: []
  - header:
      name: x_0
      fields: []
`)
	gen := sema.NewNameGen(prog)
	if got := gen.Fresh("x"); got != "x_1" {
		t.Fatalf("Fresh(x) = %s, want x_1", got)
	}
	if got := gen.Fresh("x"); got != "x_2" {
		t.Fatalf("second Fresh(x) = %s, want x_2", got)
	}
	if !gen.Used("packet_in") {
		t.Fatalf("core declarations must be reserved")
	}
}

func TestInferSelectDefault(t *testing.T) {
	const src = `decls:
  - header:
      name: h_t
      fields:
        - {name: f, type: bit<8>}
        - {name: g, type: bit<8>}
  - struct:
      name: hs
      fields:
        - {name: h, type: h_t}
  - parser:
      name: p
      params:
        - {name: pkt, type: packet_in}
        - {name: hdr, dir: out, type: hs}
      states:
        - name: start
          body:
            - do: pkt.extract(hdr.h)
          select:
            keys: [hdr.h.f, hdr.h.g]
            cases:
              - {keysets: ["1", "2"], next: accept}
              - {keysets: [default], next: reject}
`
	r := diag.NewReporter(nil, "text")
	prog := decode(t, src)
	sema.Infer(prog, sema.Resolve(prog, sema.P4_16, r), r)
	if r.HasErrors() {
		t.Fatalf("a lone default should match both keys: %v", r.Diagnostics())
	}

	var out bytes.Buffer
	r = diag.NewReporter(&out, "text")
	prog = decode(t, strings.Replace(src, `["1", "2"]`, `["1"]`, 1))
	sema.Infer(prog, sema.Resolve(prog, sema.P4_16, r), r)
	if !strings.Contains(out.String(), "state start: case has 1 keysets for 2 keys") {
		t.Fatalf("missing diagnostic: %q", out.String())
	}
}
