package ir

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleControl() *Control {
	return &Control{
		Name:   "ingress",
		Params: []*Param{{Name: "hdr", Dir: DirInOut, Type: &NamedType{Name: "headers"}}},
		Locals: []Decl{
			&Action{
				Name:   "set",
				Params: []*Param{{Name: "v", Type: Bits(8)}},
				Body: &BlockStmt{Stmts: []Stmt{
					&AssignStmt{Left: &Member{Expr: &Member{Expr: Path("hdr"), Name: "h"}, Name: "f"}, Right: Path("v")},
				}},
			},
		},
		Body: &BlockStmt{Stmts: []Stmt{
			&IfStmt{
				Cond: &MethodCall{Method: &Member{Expr: &Member{Expr: Path("hdr"), Name: "h"}, Name: MethodIsValid}},
				Then: &BlockStmt{Stmts: []Stmt{
					&CallStmt{Call: &MethodCall{Method: Path("set"), Args: []Expr{NewConstant(3, Bits(8))}}},
				}},
			},
		}},
	}
}

func TestRewriterSharesUnchangedTrees(t *testing.T) {
	c := sampleControl()
	rw := &Rewriter{Expr: func(e Expr) Expr { return e }}
	if got := rw.RewriteDecl(c); got != c {
		t.Fatalf("identity rewrite returned a new control")
	}
}

func TestRewriterRebuildsOnlyChangedPath(t *testing.T) {
	c := sampleControl()
	rw := &Rewriter{Expr: func(e Expr) Expr {
		if k, ok := e.(*Constant); ok && k.Value.Int64() == 3 {
			return NewConstant(4, k.Type)
		}
		return e
	}}
	got := rw.RewriteDecl(c).(*Control)
	if got == c {
		t.Fatalf("expected a new control")
	}
	if got.Locals[0] != c.Locals[0] {
		t.Fatalf("untouched action was not shared")
	}
	if got.Body == c.Body {
		t.Fatalf("body with a changed literal was shared")
	}
	if strings.Contains(String(&Program{Decls: []Decl{c}}), "8w4") {
		t.Fatalf("rewrite mutated its input")
	}
	if !strings.Contains(String(&Program{Decls: []Decl{got}}), "set(8w4);") {
		t.Fatalf("rewritten control lost the new literal:\n%s", String(&Program{Decls: []Decl{got}}))
	}
}

func TestRewriterRename(t *testing.T) {
	c := sampleControl()
	rw := &Rewriter{
		Rename: func(d Decl) string {
			if d.DeclName() == "v" {
				return "v_0"
			}
			return ""
		},
		Expr: func(e Expr) Expr {
			if p, ok := e.(*PathExpr); ok && p.Name == "v" {
				return Path("v_0")
			}
			return e
		},
	}
	got := rw.RewriteDecl(c).(*Control)
	act := got.Locals[0].(*Action)
	if act.Params[0].Name != "v_0" {
		t.Fatalf("parameter not renamed: %s", act.Params[0].Name)
	}
	if c.Locals[0].(*Action).Params[0].Name != "v" {
		t.Fatalf("input parameter was renamed in place")
	}
}

func TestCloneIsDeep(t *testing.T) {
	c := sampleControl()
	clone := CloneDecl(c).(*Control)
	if clone == c || clone.Body == c.Body {
		t.Fatalf("clone shares nodes with its input")
	}
	if diff := cmp.Diff(String(&Program{Decls: []Decl{c}}), String(&Program{Decls: []Decl{clone}})); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}
}

func TestFlatten(t *testing.T) {
	a := &AssignStmt{Left: Path("x"), Right: NewConstant(1, nil)}
	b := &ExitStmt{}
	s := &BlockStmt{Stmts: []Stmt{&EmptyStmt{}, &BlockStmt{Stmts: []Stmt{a, &BlockStmt{}}}, b}}
	got := Flatten(s)
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("unexpected flatten result %#v", got)
	}
}

func TestInspectVisitsInOrder(t *testing.T) {
	var names []string
	Inspect(sampleControl(), func(n Node) bool {
		if p, ok := n.(*PathExpr); ok {
			names = append(names, p.Name)
		}
		return true
	})
	want := []string{"hdr", "v", "hdr", "set"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("path order mismatch (-want +got):\n%s", diff)
	}
}

func TestExprString(t *testing.T) {
	tests := []struct {
		expr Expr
		want string
	}{
		{NewConstant(5, nil), "5"},
		{NewConstant(5, Bits(8)), "8w5"},
		{NewConstant(-5, &BitsType{Width: 8, Signed: true}), "8s-5"},
		{&Binary{Op: Add, Left: Path("a"), Right: NewConstant(1, nil)}, "(a + 1)"},
		{&Slice{Expr: Path("f"), Hi: 7, Lo: 4}, "f[7:4]"},
		{&Cast{Type: Bits(16), Expr: Path("x")}, "(bit<16>)x"},
		{&MethodCall{Method: &Member{Expr: Path("pkt"), Name: MethodExtract}, Args: []Expr{Path("h")}}, "pkt.extract(h)"},
	}
	for _, tt := range tests {
		if got := ExprString(tt.expr); got != tt.want {
			t.Errorf("ExprString = %q, want %q", got, tt.want)
		}
	}
}

func TestStmtLines(t *testing.T) {
	s := &IfStmt{
		Cond: &BoolLit{Value: true},
		Then: &BlockStmt{Stmts: []Stmt{&AssignStmt{Left: Path("x"), Right: NewConstant(1, nil)}}},
	}
	want := []string{"if (true) {", "    x = 1;", "}"}
	if diff := cmp.Diff(want, StmtLines(s)); diff != "" {
		t.Fatalf("lines mismatch (-want +got):\n%s", diff)
	}
}
