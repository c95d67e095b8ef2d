// Package midend assembles the two rewrite stages that canonicalize a
// program before the FPGA backend builds its model.
//
// Simplify establishes unique names, hoisted declarations and the absence of
// return statements, then evaluates the program. When the program has a main
// package, MidEnd inlines, localizes and simplifies it and evaluates it again.
// The pass order of both stages is part of their contract and is exposed as
// SimplifyPasses and MidEndPasses.
package midend

import (
	"fmt"

	"p4fpga/internal/evaluator"
	"p4fpga/internal/ir"
	"p4fpga/internal/passes"
)

// Stage names.
const (
	SimplifyStage = "Simplify"
	MidEndStage   = "MidEnd"
)

// SimplifyPasses is the pass order of the Simplify stage.
var SimplifyPasses = []string{
	"type-check",
	"reset-headers",
	"resolve-references",
	"unique-names",
	"move-declarations",
	"resolve-references",
	"remove-returns",
	"move-constructors",
	"resolve-references",
	"remove-unused-declarations",
	"type-check",
	"evaluate",
}

// MidEndPasses is the pass order of the MidEnd stage.
var MidEndPasses = []string{
	"discover-inlining",
	"inline-controls",
	"remove-all-unused-declarations",
	"type-check",
	"discover-actions-inlining",
	"inline-actions",
	"remove-all-unused-declarations",
	"localize-all-actions",
	"remove-all-unused-declarations",
	"unique-parameters",
	"type-check",
	"simplify-control-flow",
	"remove-parameters",
	"type-check",
	"remove-exits",
	"type-check",
	"constant-folding",
	"strength-reduction",
	"type-check",
	"local-copy-propagation",
	"move-declarations",
	"type-check",
	"simplify-control-flow",
	"evaluate",
}

// NewSimplify builds the Simplify stage ending in ev.
func NewSimplify(ev *evaluator.Pass) *passes.Manager {
	m := passes.NewManager(SimplifyStage)
	m.Add(
		passes.NewTypeCheck(false),
		passes.NewResetHeaders(),
		passes.NewResolveReferences(),
		passes.NewUniqueNames(),
		passes.NewMoveDeclarations(),
		passes.NewResolveReferences(),
		passes.NewRemoveReturns(),
		passes.NewMoveConstructors(),
		passes.NewResolveReferences(),
		passes.NewRemoveUnusedDeclarations(),
		passes.NewTypeCheck(true),
		ev,
	)
	return m
}

// NewMidEnd builds the MidEnd stage ending in ev.
func NewMidEnd(ev *evaluator.Pass) *passes.Manager {
	var toInline passes.InlineList
	var actionsToInline passes.ActionsInlineList

	m := passes.NewManager(MidEndStage)
	m.Add(
		passes.NewDiscoverInlining(&toInline),
		passes.NewInlineControls(&toInline),
		passes.NewRemoveAllUnusedDeclarations(),
		passes.NewTypeCheck(false),
		passes.NewDiscoverActionsInlining(&actionsToInline),
		passes.NewInlineActions(&actionsToInline),
		passes.NewRemoveAllUnusedDeclarations(),
		passes.NewLocalizeAllActions(),
		passes.NewRemoveAllUnusedDeclarations(),
		passes.NewUniqueParameters(),
		passes.NewTypeCheck(true),
		passes.NewSimplifyControlFlow(),
		passes.NewRemoveParameters(),
		passes.NewTypeCheck(true),
		passes.NewRemoveExits(),
		passes.NewTypeCheck(false),
		passes.NewConstantFolding(),
		passes.NewStrengthReduction(),
		passes.NewTypeCheck(false),
		passes.NewLocalCopyPropagation(),
		passes.NewMoveDeclarations(),
		passes.NewTypeCheck(false),
		passes.NewSimplifyControlFlow(),
		ev,
	)
	return m
}

// Result is the canonical program and its evaluated toplevel.
type Result struct {
	Program  *ir.Program
	Toplevel *evaluator.Toplevel
}

// Run executes Simplify and MidEnd. It returns (nil, nil) when prog is nil or
// has no main package; a fatal diagnostic yields a nil result and an error
// wrapping passes.ErrAborted.
func Run(env *passes.Env, prog *ir.Program) (*Result, error) {
	if prog == nil {
		return nil, nil
	}
	ev := evaluator.NewPass()
	simplified, err := NewSimplify(ev).Run(env, prog)
	if err != nil {
		return nil, fmt.Errorf("midend: %w", err)
	}
	if !ev.Toplevel().Main().IsValid() {
		env.Log.Info("no main package; nothing further to do")
		return nil, nil
	}
	canonical, err := NewMidEnd(ev).Run(env, simplified)
	if err != nil {
		return nil, fmt.Errorf("midend: %w", err)
	}
	return &Result{Program: canonical, Toplevel: ev.Toplevel()}, nil
}
