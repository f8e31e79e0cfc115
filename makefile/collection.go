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

// Package makefile provides static analysis and rewriting of parsed
// Makefiles: walking statements with their surrounding conditions, deciding
// and pruning conditionals against known variable values, and evaluating
// deterministic expansions.
package makefile

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mozbuild/makeparse/parser"
)

// A StatementCollection wraps a parsed statement list with analysis
// queries.
type StatementCollection struct {
	Filename   string
	Statements []parser.Statement
}

// Load parses Makefile content into a collection.  The collection is
// returned even when there are parse errors, holding what could be parsed.
func Load(filename string, r io.Reader) (*StatementCollection, []error) {
	statements, errs := parser.Parse(filename, r)
	return &StatementCollection{Filename: filename, Statements: statements}, errs
}

// LoadString is Load on in-memory text.
func LoadString(filename, text string) (*StatementCollection, []error) {
	return Load(filename, strings.NewReader(text))
}

// A StatementContext pairs a statement with the stack of conditions
// guarding it, outermost first.  An unconditional statement has no
// conditions.
type StatementContext struct {
	Statement  parser.Statement
	Conditions []parser.Condition
}

// ExpandedStatements flattens condition blocks into a linear list of
// statements with their guarding conditions attached.  The condition stack
// records only each taken branch's own condition; which earlier branches
// must have failed is not encoded.  When suppressConditionBlocks is false
// the blocks themselves are also yielded, before their contents.
func (c *StatementCollection) ExpandedStatements(suppressConditionBlocks bool) []StatementContext {
	var out []StatementContext
	var descend func(statements []parser.Statement, conditions []parser.Condition)
	descend = func(statements []parser.Statement, conditions []parser.Condition) {
		for _, s := range statements {
			block, ok := s.(*parser.ConditionBlock)
			if !ok {
				out = append(out, StatementContext{Statement: s, Conditions: conditions})
				continue
			}
			if !suppressConditionBlocks {
				out = append(out, StatementContext{Statement: s, Conditions: conditions})
			}
			for _, branch := range block.Branches {
				descend(branch.Statements, append(conditions[:len(conditions):len(conditions)],
					branch.Condition))
			}
		}
	}
	descend(c.Statements, nil)
	return out
}

// A BoundRule is a rule together with the commands attached to it.
type BoundRule struct {
	Target        *parser.Expansion
	Pattern       *parser.Expansion // nil unless a static pattern rule
	Prerequisites *parser.Expansion
	DoubleColon   bool
	Commands      []*parser.Command
	Conditions    []parser.Condition
}

// Rules returns every rule with its recipe commands bound to it.  Commands
// nested deeper in conditionals than their rule are bound to that rule all
// the same, with their own condition stacks ignored.
func (c *StatementCollection) Rules() []*BoundRule {
	var rules []*BoundRule
	var current *BoundRule
	for _, ctx := range c.ExpandedStatements(true) {
		switch s := ctx.Statement.(type) {
		case *parser.Rule:
			current = &BoundRule{
				Target:        s.Target,
				Prerequisites: s.Prerequisites,
				DoubleColon:   s.DoubleColon,
				Conditions:    ctx.Conditions,
			}
			rules = append(rules, current)
		case *parser.StaticPatternRule:
			current = &BoundRule{
				Target:        s.Target,
				Pattern:       s.Pattern,
				Prerequisites: s.Prerequisites,
				DoubleColon:   s.DoubleColon,
				Conditions:    ctx.Conditions,
			}
			rules = append(rules, current)
		case *parser.Command:
			if current != nil {
				current.Commands = append(current.Commands, s)
			}
		}
	}
	return rules
}

// StaticPatternRules returns every static pattern rule with its guarding
// conditions.
func (c *StatementCollection) StaticPatternRules() []StatementContext {
	var out []StatementContext
	for _, ctx := range c.ExpandedStatements(true) {
		if _, ok := ctx.Statement.(*parser.StaticPatternRule); ok {
			out = append(out, ctx)
		}
	}
	return out
}

// Includes returns every include directive with its guarding conditions.
func (c *StatementCollection) Includes() []StatementContext {
	var out []StatementContext
	for _, ctx := range c.ExpandedStatements(true) {
		if _, ok := ctx.Statement.(*parser.Include); ok {
			out = append(out, ctx)
		}
	}
	return out
}

// Ifdefs returns every ifdef and ifndef condition in document order.
func (c *StatementCollection) Ifdefs() []*parser.IfdefCondition {
	var out []*parser.IfdefCondition
	for _, ctx := range c.ExpandedStatements(false) {
		block, ok := ctx.Statement.(*parser.ConditionBlock)
		if !ok {
			continue
		}
		for _, branch := range block.Branches {
			if ifdef, ok := branch.Condition.(*parser.IfdefCondition); ok {
				out = append(out, ifdef)
			}
		}
	}
	return out
}

// IfdefNames returns the sorted set of variable names tested by ifdef or
// ifndef conditions anywhere in the collection.
func (c *StatementCollection) IfdefNames() []string {
	seen := make(map[string]bool)
	for _, ifdef := range c.Ifdefs() {
		seen[ifdef.Name.Dump()] = true
	}
	return sortedKeys(seen)
}

// VariableAssignments returns every variable assignment, conditional or
// not, with its guarding conditions.
func (c *StatementCollection) VariableAssignments() []StatementContext {
	var out []StatementContext
	for _, ctx := range c.ExpandedStatements(true) {
		if _, ok := ctx.Statement.(*parser.SetVariable); ok {
			out = append(out, ctx)
		}
	}
	return out
}

// UnconditionalVariableAssignments returns the assignments that always
// execute.
func (c *StatementCollection) UnconditionalVariableAssignments() []*parser.SetVariable {
	var out []*parser.SetVariable
	for _, ctx := range c.VariableAssignments() {
		if len(ctx.Conditions) == 0 {
			out = append(out, ctx.Statement.(*parser.SetVariable))
		}
	}
	return out
}

// VariableReferences returns the sorted set of variable names referenced
// anywhere in the collection, including inside function call arguments.
// Computed names are returned in their unexpanded form.
func (c *StatementCollection) VariableReferences() []string {
	seen := make(map[string]bool)
	for _, s := range c.Statements {
		for _, ref := range parser.StatementVariableReferences(s) {
			seen[ref.Dump()] = true
		}
	}
	return sortedKeys(seen)
}

// FilesystemDependentStatements returns the statements whose expansions
// consult the filesystem.
func (c *StatementCollection) FilesystemDependentStatements() []StatementContext {
	return c.filterExpanded(func(e *parser.Expansion) bool {
		return e.IsFilesystemDependent()
	})
}

// ShellDependentStatements returns the statements whose expansions run
// shell commands.
func (c *StatementCollection) ShellDependentStatements() []StatementContext {
	return c.filterExpanded(func(e *parser.Expansion) bool {
		return e.IsShellDependent()
	})
}

func (c *StatementCollection) filterExpanded(pred func(*parser.Expansion) bool) []StatementContext {
	var out []StatementContext
	for _, ctx := range c.ExpandedStatements(true) {
		for _, e := range parser.Expansions(ctx.Statement) {
			if pred(e) {
				out = append(out, ctx)
				break
			}
		}
	}
	return out
}

// Lines returns the canonical Makefile lines for the collection.
func (c *StatementCollection) Lines() []string {
	return parser.Lines(c.Statements)
}

// Text returns the canonical Makefile text for the collection.
func (c *StatementCollection) Text() string {
	return parser.Print(c.Statements)
}

// A CollectionDifference locates the first mismatch between two
// collections: where it is, the statements involved, and the underlying
// expansion difference when there is one.
type CollectionDifference struct {
	Index        int
	Ours, Theirs parser.Statement
	Detail       *parser.Difference
}

func (d *CollectionDifference) String() string {
	if d.Detail != nil {
		return fmt.Sprintf("statement %d: %s", d.Index, d.Detail)
	}
	return fmt.Sprintf("statement %d differs", d.Index)
}

// Diff compares two collections statement by statement, with condition
// blocks flattened so only the guarded statements themselves are paired.
// Whitespace-only differences are reported only when no substantive ones
// exist.
func (c *StatementCollection) Diff(other *StatementCollection) *CollectionDifference {
	ours := c.ExpandedStatements(true)
	theirs := other.ExpandedStatements(true)

	var whitespace *CollectionDifference
	for i := range ours {
		if i >= len(theirs) {
			break
		}
		d := parser.Diff(ours[i].Statement, theirs[i].Statement)
		if d == nil {
			continue
		}
		found := &CollectionDifference{
			Index:  i,
			Ours:   ours[i].Statement,
			Theirs: theirs[i].Statement,
			Detail: d,
		}
		if d.WhitespaceOnly {
			if whitespace == nil {
				whitespace = found
			}
			continue
		}
		return found
	}
	if len(ours) != len(theirs) {
		d := &CollectionDifference{
			Index:  len(theirs),
			Detail: &parser.Difference{Reason: "statement counts differ"},
		}
		if len(ours) > len(theirs) {
			d.Ours = ours[len(theirs)].Statement
		} else {
			d.Index = len(ours)
			d.Theirs = theirs[len(ours)].Statement
		}
		return d
	}
	return whitespace
}

// StripFalseConditionals rewrites the collection with provably dead
// condition branches removed.  See the package level function for the
// semantics.  The receiver is unchanged.
func (c *StatementCollection) StripFalseConditionals(vars *Variables, evaluateIfeq bool) *StatementCollection {
	return &StatementCollection{
		Filename:   c.Filename,
		Statements: StripFalseConditionals(c.Statements, vars, evaluateIfeq),
	}
}

// RemoveVariableAssignments returns a copy of the collection without any
// assignment to the named variables.  Condition blocks are rebuilt with
// matching assignments removed from their branches; blocks are otherwise
// untouched.
func (c *StatementCollection) RemoveVariableAssignments(names map[string]bool) *StatementCollection {
	return &StatementCollection{
		Filename:   c.Filename,
		Statements: removeAssignments(c.Statements, names),
	}
}

func removeAssignments(in []parser.Statement, names map[string]bool) []parser.Statement {
	var out []parser.Statement
	for _, s := range in {
		switch s := s.(type) {
		case *parser.SetVariable:
			if s.Target == nil && names[s.Name.Dump()] {
				continue
			}
			out = append(out, s)
		case *parser.ConditionBlock:
			branches := make([]*parser.ConditionBranch, len(s.Branches))
			for i, branch := range s.Branches {
				branches[i] = &parser.ConditionBranch{
					Condition:  branch.Condition,
					Statements: removeAssignments(branch.Statements, names),
				}
			}
			out = append(out, &parser.ConditionBlock{Branches: branches, EndPos: s.EndPos})
		default:
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
