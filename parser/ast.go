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

package parser

import (
	"fmt"
	"strings"
)

// A Statement is one parsed Makefile directive.  The set of implementations
// is closed; consumers switch over the concrete type and treat an unknown
// type as an UnsupportedError rather than silently dropping it.
type Statement interface {
	Pos() Pos
	statementNode()
}

// A Condition is the test heading one branch of a ConditionBlock.
type Condition interface {
	Statement
	conditionNode()
}

// An UnsupportedError reports a construct the engine does not understand.
// It keeps the boundary of supported Make syntax explicit: content is never
// silently dropped or mis-rendered.
type UnsupportedError struct {
	Construct string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported Makefile construct: %s", e.Construct)
}

// A Rule is "target: prerequisites", possibly with a double colon.
type Rule struct {
	Target        *Expansion
	Prerequisites *Expansion
	DoubleColon   bool
}

func (r *Rule) Pos() Pos       { return r.Target.Pos() }
func (r *Rule) statementNode() {}

func (r *Rule) Separator() string {
	if r.DoubleColon {
		return "::"
	}
	return ":"
}

// A StaticPatternRule is "targets: pattern: prerequisites".
type StaticPatternRule struct {
	Target        *Expansion
	Pattern       *Expansion
	Prerequisites *Expansion
	DoubleColon   bool
}

func (r *StaticPatternRule) Pos() Pos       { return r.Target.Pos() }
func (r *StaticPatternRule) statementNode() {}

func (r *StaticPatternRule) Separator() string {
	if r.DoubleColon {
		return "::"
	}
	return ":"
}

// A Command is one recipe line belonging to the preceding rule.
type Command struct {
	Recipe *Expansion
}

func (c *Command) Pos() Pos       { return c.Recipe.Pos() }
func (c *Command) statementNode() {}

// Name returns the program the command runs, with make's recipe prefix
// characters stripped.  It returns "" when the recipe is empty or its first
// word is a shell variable assignment rather than a program invocation.
func (c *Command) Name() string {
	words := c.Recipe.Split()
	if len(words) == 0 {
		return ""
	}
	if strings.ContainsRune(words[0], '=') {
		return ""
	}
	return strings.TrimLeft(words[0], "@-+")
}

// A SetVariable is a variable assignment.  Target is non-nil for
// target-specific assignments ("foo.o: CFLAGS += -g").
type SetVariable struct {
	Target *Expansion
	Name   *Expansion
	Token  string // one of "=", ":=", "+=", "?="
	Value  *Expansion
}

func (s *SetVariable) Pos() Pos       { return s.Name.Pos() }
func (s *SetVariable) statementNode() {}

// An Include is an "include" or "-include" directive.  Required is false for
// the latter: a missing file is then not an error.
type Include struct {
	Path     *Expansion
	Required bool
}

func (i *Include) Pos() Pos       { return i.Path.Pos() }
func (i *Include) statementNode() {}

// A VPath is a "vpath" directive.
type VPath struct {
	Value *Expansion
}

func (v *VPath) Pos() Pos       { return v.Value.Pos() }
func (v *VPath) statementNode() {}

// An Export is an "export" directive.
type Export struct {
	Value *Expansion
}

func (e *Export) Pos() Pos       { return e.Value.Pos() }
func (e *Export) statementNode() {}

// An Unexport is an "unexport" directive.
type Unexport struct {
	Value *Expansion
}

func (u *Unexport) Pos() Pos       { return u.Value.Pos() }
func (u *Unexport) statementNode() {}

// An EmptyDirective is a line holding a bare expansion, such as a top level
// $(error ...) or $(eval ...).
type EmptyDirective struct {
	Value *Expansion
}

func (e *EmptyDirective) Pos() Pos       { return e.Value.Pos() }
func (e *EmptyDirective) statementNode() {}

// An IfdefCondition tests whether a variable is defined.  Expected is false
// for ifndef.
type IfdefCondition struct {
	Name     *Expansion
	Expected bool
}

func (c *IfdefCondition) Pos() Pos       { return c.Name.Pos() }
func (c *IfdefCondition) statementNode() {}
func (c *IfdefCondition) conditionNode() {}

// An IfeqCondition compares two expansions for string equality after
// expansion.  Expected is false for ifneq.
type IfeqCondition struct {
	Left     *Expansion
	Right    *Expansion
	Expected bool
}

func (c *IfeqCondition) Pos() Pos       { return c.Left.Pos() }
func (c *IfeqCondition) statementNode() {}
func (c *IfeqCondition) conditionNode() {}

// An ElseCondition is the catch-all final branch of a ConditionBlock.
type ElseCondition struct {
	ElsePos Pos
}

func (c *ElseCondition) Pos() Pos       { return c.ElsePos }
func (c *ElseCondition) statementNode() {}
func (c *ElseCondition) conditionNode() {}

// A ConditionBranch is one (condition, body) pair of a ConditionBlock.
type ConditionBranch struct {
	Condition  Condition
	Statements []Statement
}

// A ConditionBlock is an ifdef/ifeq...else...endif group.  Branches are
// ordered; at most the last one carries an ElseCondition.
type ConditionBlock struct {
	Branches []*ConditionBranch
	EndPos   Pos // position of the endif line
}

func (b *ConditionBlock) Pos() Pos       { return b.Branches[0].Condition.Pos() }
func (b *ConditionBlock) statementNode() {}

// IsIfdefOnly reports whether every non-else branch tests definedness.
// Such blocks are decidable from variable presence alone, without
// evaluating any values.
func (b *ConditionBlock) IsIfdefOnly() bool {
	for _, branch := range b.Branches {
		if _, ok := branch.Condition.(*IfeqCondition); ok {
			return false
		}
	}
	return true
}

// Expansions returns every Expansion contained directly in s, in source
// order.  ConditionBlocks contribute the expansions of their conditions and
// of every nested statement.  It lets analyses walk a statement's content
// without per-kind branching.
func Expansions(s Statement) []*Expansion {
	switch s := s.(type) {
	case *Rule:
		return []*Expansion{s.Target, s.Prerequisites}
	case *StaticPatternRule:
		return []*Expansion{s.Target, s.Pattern, s.Prerequisites}
	case *Command:
		return []*Expansion{s.Recipe}
	case *SetVariable:
		var exps []*Expansion
		if s.Target != nil {
			exps = append(exps, s.Target)
		}
		return append(exps, s.Name, s.Value)
	case *Include:
		return []*Expansion{s.Path}
	case *VPath:
		return []*Expansion{s.Value}
	case *Export:
		return []*Expansion{s.Value}
	case *Unexport:
		return []*Expansion{s.Value}
	case *EmptyDirective:
		return []*Expansion{s.Value}
	case *IfdefCondition:
		return []*Expansion{s.Name}
	case *IfeqCondition:
		return []*Expansion{s.Left, s.Right}
	case *ElseCondition:
		return nil
	case *ConditionBlock:
		var exps []*Expansion
		for _, branch := range s.Branches {
			exps = append(exps, Expansions(branch.Condition)...)
			for _, child := range branch.Statements {
				exps = append(exps, Expansions(child)...)
			}
		}
		return exps
	default:
		panic(&UnsupportedError{Construct: fmt.Sprintf("statement type %T", s)})
	}
}

// StatementVariableReferences returns every variable reference appearing in
// s, including references nested in function call arguments.
func StatementVariableReferences(s Statement) []*Expansion {
	var refs []*Expansion
	for _, e := range Expansions(s) {
		refs = append(refs, e.VariableReferences(true)...)
	}
	return refs
}

// ExpansionsDeterministic reports whether every expansion in s is
// deterministic under scope.  Target-specific variable assignments would
// require per-target evaluation, which this model does not attempt, so they
// are never deterministic.
func ExpansionsDeterministic(s Statement, scope Scope) bool {
	if sv, ok := s.(*SetVariable); ok && sv.Target != nil {
		return false
	}
	for _, e := range Expansions(s) {
		if !e.IsDeterministic(scope, true) {
			return false
		}
	}
	return true
}

// Diff compares two statements structurally.  It returns nil when the
// statement kinds agree and every paired expansion agrees, otherwise the
// first substantive disagreement found left to right.  A whitespace-only
// disagreement is reported only when no substantive one exists.  Positions
// are never compared.
func Diff(a, b Statement) *Difference {
	if fmt.Sprintf("%T", a) != fmt.Sprintf("%T", b) {
		return &Difference{Reason: fmt.Sprintf("statement kinds differ: %T != %T", a, b)}
	}
	switch a := a.(type) {
	case *Rule:
		if a.DoubleColon != b.(*Rule).DoubleColon {
			return &Difference{Reason: "rule separators differ"}
		}
	case *StaticPatternRule:
		if a.DoubleColon != b.(*StaticPatternRule).DoubleColon {
			return &Difference{Reason: "rule separators differ"}
		}
	case *SetVariable:
		if a.Token != b.(*SetVariable).Token {
			return &Difference{Reason: "assignment tokens differ"}
		}
	case *Include:
		if a.Required != b.(*Include).Required {
			return &Difference{Reason: "include strictness differs"}
		}
	case *IfdefCondition:
		if a.Expected != b.(*IfdefCondition).Expected {
			return &Difference{Reason: "condition polarities differ"}
		}
	case *IfeqCondition:
		if a.Expected != b.(*IfeqCondition).Expected {
			return &Difference{Reason: "condition polarities differ"}
		}
	case *ConditionBlock:
		bb := b.(*ConditionBlock)
		if len(a.Branches) != len(bb.Branches) {
			return &Difference{Reason: "branch counts differ"}
		}
		var whitespace *Difference
		for i, branch := range a.Branches {
			other := bb.Branches[i]
			if d := Diff(branch.Condition, other.Condition); d != nil {
				if d.WhitespaceOnly && whitespace == nil {
					whitespace = d
					continue
				} else if d.WhitespaceOnly {
					continue
				}
				return d
			}
			if len(branch.Statements) != len(other.Statements) {
				return &Difference{Reason: "branch statement counts differ"}
			}
			for j, child := range branch.Statements {
				if d := Diff(child, other.Statements[j]); d != nil {
					if d.WhitespaceOnly {
						if whitespace == nil {
							whitespace = d
						}
						continue
					}
					return d
				}
			}
		}
		return whitespace
	}
	aExps := Expansions(a)
	bExps := Expansions(b)
	if len(aExps) != len(bExps) {
		return &Difference{Reason: "expansion counts differ"}
	}
	var whitespace *Difference
	for i, e := range aExps {
		if d := e.Diff(bExps[i]); d != nil {
			if d.WhitespaceOnly {
				if whitespace == nil {
					whitespace = d
				}
				continue
			}
			return d
		}
	}
	return whitespace
}
