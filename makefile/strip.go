// Copyright 2015 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package makefile

import (
	"github.com/mozbuild/makeparse/parser"
)

// StripFalseConditionals returns a copy of statements with every condition
// branch that provably cannot run removed, and every branch that provably
// runs inlined.  vars supplies the externally known variable values and is
// updated as assignments are seen, so later conditions observe earlier
// assignments.  The transform is conservative: a condition is only decided
// when its outcome is certain, and a block that survives undecided is kept
// verbatim with every variable it might assign marked as unknowable.
//
// When evaluateIfeq is true, ifeq conditions whose sides are not provably
// deterministic are still evaluated against the current variable values,
// treating missing variables as empty.  This changes meaning when those
// variables vary at build time; it is intended for generated files like
// autoconf output whose values are fixed for the run.
//
// The input statement list is not modified.
func StripFalseConditionals(statements []parser.Statement, vars *Variables, evaluateIfeq bool) []parser.Statement {
	if vars == nil {
		vars = NewVariables()
	}
	s := stripper{evaluateIfeq: evaluateIfeq}
	return s.statements(statements, vars)
}

type stripper struct {
	evaluateIfeq bool
}

func (st stripper) statements(in []parser.Statement, vars *Variables) []parser.Statement {
	var out []parser.Statement
	for _, s := range in {
		switch s := s.(type) {
		case *parser.SetVariable:
			vars.Execute(s)
			out = append(out, s)
		case *parser.ConditionBlock:
			out = append(out, st.block(s, vars)...)
		default:
			out = append(out, s)
		}
	}
	return out
}

const (
	condFalse = iota
	condTrue
	condUnknown
)

func (st stripper) block(block *parser.ConditionBlock, vars *Variables) []parser.Statement {
	var kept []*parser.ConditionBranch
	for _, branch := range block.Branches {
		switch st.evalCondition(branch.Condition, vars) {
		case condFalse:
			// The branch can never run; drop it.

		case condTrue:
			if len(kept) == 0 {
				// Every earlier branch was provably false, so this
				// branch always runs; splice its body in.
				return st.statements(branch.Statements, vars)
			}
			// Earlier branches are undecided.  This branch runs
			// exactly when none of them do, which is what an else
			// branch expresses.
			kept = append(kept, &parser.ConditionBranch{
				Condition:  &parser.ElseCondition{ElsePos: branch.Condition.Pos()},
				Statements: branch.Statements,
			})
			return st.keepBlock(kept, vars)

		case condUnknown:
			kept = append(kept, branch)
		}
	}

	if len(kept) == 0 {
		// All branches provably false and no else branch.
		return nil
	}
	return st.keepBlock(kept, vars)
}

func (st stripper) keepBlock(branches []*parser.ConditionBranch, vars *Variables) []parser.Statement {
	if _, ok := branches[0].Condition.(*parser.ElseCondition); ok {
		// Only the else branch survived.
		return st.statements(branches[0].Statements, vars)
	}
	for _, branch := range branches {
		taintAssigned(branch.Statements, vars)
	}
	return []parser.Statement{&parser.ConditionBlock{Branches: branches}}
}

// taintAssigned marks every variable that statements might assign as
// unknowable.  It runs over the branches of condition blocks that could not
// be decided, where it is unknown whether the assignments execute.
func taintAssigned(statements []parser.Statement, vars *Variables) {
	for _, s := range statements {
		switch s := s.(type) {
		case *parser.SetVariable:
			if s.Target == nil && s.Name.IsStaticString() {
				vars.Taint(s.Name.Dump())
			}
		case *parser.ConditionBlock:
			for _, branch := range s.Branches {
				taintAssigned(branch.Statements, vars)
			}
		}
	}
}

// DetermineCondition reports which branch of block will be taken under
// vars.  taken is false when provably no branch runs.  decided is false
// when the outcome depends on information that is not statically known, in
// which case the other results are meaningless.  evaluateIfeq has the same
// meaning as in StripFalseConditionals.
func DetermineCondition(block *parser.ConditionBlock, vars *Variables, evaluateIfeq bool) (branch int, taken, decided bool) {
	st := stripper{evaluateIfeq: evaluateIfeq}
	for i, b := range block.Branches {
		switch st.evalCondition(b.Condition, vars) {
		case condTrue:
			return i, true, true
		case condUnknown:
			return 0, false, false
		}
	}
	return 0, false, true
}

func (st stripper) evalCondition(c parser.Condition, vars *Variables) int {
	switch c := c.(type) {
	case *parser.ElseCondition:
		return condTrue

	case *parser.IfdefCondition:
		if !c.Name.IsStaticString() {
			return condUnknown
		}
		def, ok := vars.Lookup(c.Name.Dump())
		var defined bool
		switch {
		case !ok:
			defined = false
		case def.Tainted:
			// The name is assigned, but ifdef tests for a non-empty
			// value and the value is unknown.
			return condUnknown
		default:
			// ifdef looks at the unexpanded definition text.
			defined = def.Value.Dump() != ""
		}
		return boolCond(defined == c.Expected)

	case *parser.IfeqCondition:
		if !st.evaluateIfeq &&
			(!c.Left.IsDeterministic(vars, true) || !c.Right.IsDeterministic(vars, true)) {
			return condUnknown
		}
		left, err := Resolve(c.Left, vars)
		if err != nil {
			return condUnknown
		}
		right, err := Resolve(c.Right, vars)
		if err != nil {
			return condUnknown
		}
		return boolCond((left == right) == c.Expected)

	default:
		return condUnknown
	}
}

func boolCond(b bool) int {
	if b {
		return condTrue
	}
	return condFalse
}
