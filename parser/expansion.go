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

// An Expansion is a fragment of Makefile text that may contain function
// calls and variable references.  It can be considered as an alternating
// list of raw strings and function calls, where the first and last entries
// must be raw strings (possibly empty).  An Expansion that starts with a
// call has an empty first raw string, and two sequential calls have an empty
// raw string between them.
//
// The Expansion is stored as two lists, a list of raw strings and a list of
// calls.  The raw string list is always one longer than the call list.
// Literal "$$" in the source is stored as a single "$" in the raw strings.
type Expansion struct {
	StringPos Pos
	Strings   []string
	Calls     []*FunctionCall
}

// SimpleExpansion returns an Expansion holding a single raw string.
func SimpleExpansion(s string, pos Pos) *Expansion {
	return &Expansion{
		StringPos: pos,
		Strings:   []string{s},
	}
}

func (e *Expansion) Pos() Pos {
	return e.StringPos
}

func (e *Expansion) appendString(s string) {
	if len(e.Strings) == 0 {
		e.Strings = []string{s}
		return
	}
	e.Strings[len(e.Strings)-1] += s
}

func (e *Expansion) appendCall(c *FunctionCall) {
	if len(e.Strings) == 0 {
		e.Strings = []string{"", ""}
		e.Calls = []*FunctionCall{c}
		return
	}
	e.Strings = append(e.Strings, "")
	e.Calls = append(e.Calls, c)
}

// IsStaticString reports whether the expansion consists of raw string data
// only, with no function calls or variable references.
func (e *Expansion) IsStaticString() bool {
	return len(e.Calls) == 0
}

// Dump converts the expansion back to the form it had in the Makefile,
// without expanding anything.  Raw "$" characters are emitted as-is; use
// EscapedDump for contexts such as command lines where make requires "$$".
func (e *Expansion) Dump() string {
	return e.dump(false)
}

// EscapedDump is Dump with every raw "$" doubled.
func (e *Expansion) EscapedDump() string {
	return e.dump(true)
}

func (e *Expansion) dump(escape bool) string {
	if len(e.Strings) == 0 {
		return ""
	}
	escaped := func(s string) string {
		if escape {
			return strings.Replace(s, "$", "$$", -1)
		}
		return s
	}
	var sb strings.Builder
	sb.WriteString(escaped(e.Strings[0]))
	for i, c := range e.Calls {
		sb.WriteString(c.Dump())
		sb.WriteString(escaped(e.Strings[i+1]))
	}
	return sb.String()
}

// Split breaks the non-expanded string form into whitespace delimited words.
// Blank content yields a nil slice.
func (e *Expansion) Split() []string {
	words := strings.Fields(e.Dump())
	if len(words) == 0 {
		return nil
	}
	return words
}

// Functions returns the function calls contained in this expansion.  If
// descend is true, calls nested inside the arguments of other calls are
// included.  Variable and substitution reference name slots are variable
// lookups rather than content, so they are never descended into.
func (e *Expansion) Functions(descend bool) []*FunctionCall {
	var funcs []*FunctionCall
	for _, c := range e.Calls {
		funcs = append(funcs, c)
		if descend && c.Kind == CallBuiltin {
			for _, arg := range c.Args {
				funcs = append(funcs, arg.Functions(true)...)
			}
		}
	}
	return funcs
}

// VariableReferences returns the name expansions of every variable reference
// in this expansion.  The returned expansions are typically static strings,
// but computed variable names are possible.
func (e *Expansion) VariableReferences(descend bool) []*Expansion {
	var refs []*Expansion
	for _, c := range e.Functions(descend) {
		if c.Kind == CallVariableRef {
			refs = append(refs, c.VarName)
		}
	}
	return refs
}

// IsFilesystemDependent reports whether the value of this expansion depends
// on the state of the filesystem.
func (e *Expansion) IsFilesystemDependent() bool {
	for _, c := range e.Functions(true) {
		if c.Class() == FunctionFilesystem {
			return true
		}
	}
	return false
}

// IsShellDependent reports whether this expansion invokes a shell command.
func (e *Expansion) IsShellDependent() bool {
	for _, c := range e.Functions(true) {
		if c.Kind == CallBuiltin && c.Name == "shell" {
			return true
		}
	}
	return false
}

// A VariableDefinition is what a Scope knows about one variable.
type VariableDefinition struct {
	// Value is the definition text.  For simple (":=") variables it has
	// already been expanded.
	Value *Expansion

	// Simple is true for ":=" flavored variables.
	Simple bool

	// Tainted marks a variable whose real value is unknowable because it
	// was assigned from a non-deterministic expansion.
	Tainted bool
}

// A Scope supplies variable definitions to determinism analysis and
// evaluation.
type Scope interface {
	Lookup(name string) (VariableDefinition, bool)
}

// IsDeterministic reports whether this expansion is guaranteed to evaluate
// to the same value at build time as it would under static analysis now.
//
// A raw string is always deterministic.  Deterministic builtin calls are
// deterministic when all of their arguments are.  A variable reference is
// resolved against scope: simple variables are deterministic, recursive ones
// are checked by examining their definition under the same rules, tainted
// ones never are.  When the variable is not found (or scope is nil),
// missingIsDeterministic decides; analysis passes that assume a closed world
// pass true, treating an absent variable as the empty string.
//
// The predicate is conservative.  A false result is only a missed
// optimization; a true result is a promise that constant folding is safe.
func (e *Expansion) IsDeterministic(scope Scope, missingIsDeterministic bool) bool {
	return e.isDeterministic(scope, missingIsDeterministic, nil)
}

// active holds the recursive variable definitions currently being examined,
// so a definition that refers back to itself terminates instead of
// descending forever.
func (e *Expansion) isDeterministic(scope Scope, missingIsDeterministic bool, active map[string]bool) bool {
	for _, c := range e.Calls {
		switch c.Class() {
		case FunctionDeterministic:
			for _, arg := range c.Args {
				if !arg.isDeterministic(scope, missingIsDeterministic, active) {
					return false
				}
			}

		case FunctionNonDeterministic:
			if c.Kind != CallVariableRef {
				return false
			}
			if !c.VarName.IsStaticString() {
				// Computed variable names are beyond us.
				return false
			}
			name := c.VarName.Dump()
			if scope == nil {
				if !missingIsDeterministic {
					return false
				}
				continue
			}
			def, found := scope.Lookup(name)
			if !found {
				if !missingIsDeterministic {
					return false
				}
				continue
			}
			if def.Tainted {
				return false
			}
			if def.Simple {
				// Already expanded, captured by the current scope.
				continue
			}
			if active[name] {
				// The definition refers back to a variable still being
				// examined; its value cannot be constant folded.
				return false
			}
			if active == nil {
				active = make(map[string]bool)
			}
			active[name] = true
			ok := def.Value.isDeterministic(scope, missingIsDeterministic, active)
			delete(active, name)
			if !ok {
				return false
			}

		default:
			return false
		}
	}
	return true
}

// A Difference explains the first structural disagreement between two
// expansions or statements.  WhitespaceOnly distinguishes cosmetic
// differences from substantive ones when verifying that a rewritten
// Makefile is equivalent to its source.
type Difference struct {
	Reason         string
	WhitespaceOnly bool
	Ours           *Expansion
	Theirs         *Expansion
}

func (d *Difference) String() string {
	if d.Ours == nil || d.Theirs == nil {
		return d.Reason
	}
	return fmt.Sprintf("%s: %q != %q", d.Reason, d.Ours.Dump(), d.Theirs.Dump())
}

// Diff returns nil when the two expansions have the same literal and
// function shape, or a Difference describing the first mismatch.
func (e *Expansion) Diff(other *Expansion) *Difference {
	if len(e.Strings) != len(other.Strings) {
		return &Difference{
			Reason: "expansion lengths differ",
			Ours:   e,
			Theirs: other,
		}
	}
	var whitespace *Difference
	for i, s := range e.Strings {
		o := other.Strings[i]
		if s == o {
			continue
		}
		if strings.Join(strings.Fields(s), " ") == strings.Join(strings.Fields(o), " ") {
			if whitespace == nil {
				whitespace = &Difference{
					Reason:         "expansion string content differs (whitespace)",
					WhitespaceOnly: true,
					Ours:           e,
					Theirs:         other,
				}
			}
			continue
		}
		return &Difference{
			Reason: "expansion string content differs",
			Ours:   e,
			Theirs: other,
		}
	}
	for i, c := range e.Calls {
		if d := c.diff(other.Calls[i]); d != nil {
			return d
		}
	}
	// Substantive differences win over whitespace-only ones, so report
	// whitespace last.
	return whitespace
}

// CallKind discriminates the closed set of function call shapes.
type CallKind int

const (
	// CallBuiltin is a named builtin: $(subst a,b,c).
	CallBuiltin CallKind = iota
	// CallVariableRef is a variable reference: $(FOO) or $F.
	CallVariableRef
	// CallSubstitutionRef is a substitution reference: $(FOO:.c=.o).
	CallSubstitutionRef
)

// A FunctionCall is one "$(...)" element of an Expansion.
type FunctionCall struct {
	Kind    CallKind
	CallPos Pos

	// Name and Args are set for CallBuiltin.
	Name string
	Args []*Expansion

	// VarName is set for CallVariableRef and CallSubstitutionRef.
	VarName *Expansion

	// SubstFrom and SubstTo are set for CallSubstitutionRef.
	SubstFrom *Expansion
	SubstTo   *Expansion
}

func (c *FunctionCall) Pos() Pos {
	return c.CallPos
}

// Class returns the determinism classification for this call.  References
// are classified non-deterministic at this level; IsDeterministic refines
// variable references by inspecting the scope.
func (c *FunctionCall) Class() FunctionClass {
	switch c.Kind {
	case CallBuiltin:
		return builtinFunctions[c.Name].class
	case CallVariableRef, CallSubstitutionRef:
		return FunctionNonDeterministic
	default:
		panic(&UnsupportedError{Construct: fmt.Sprintf("function call kind %d", c.Kind)})
	}
}

// Variables that make provides automatically within rules.  References to
// these are written without parentheses.
var automaticVariables = map[string]bool{
	"@": true,
	"%": true,
	"<": true,
	"?": true,
	"^": true,
	"+": true,
	"|": true,
	"*": true,
}

// Dump converts the call back to Makefile syntax.
func (c *FunctionCall) Dump() string {
	switch c.Kind {
	case CallBuiltin:
		args := make([]string, len(c.Args))
		for i, arg := range c.Args {
			// Content inside "$(...)" is re-read by make's expander,
			// so raw "$" characters always need doubling there.
			args[i] = arg.EscapedDump()
		}
		if len(args) == 0 {
			return fmt.Sprintf("$(%s)", c.Name)
		}
		return fmt.Sprintf("$(%s %s)", c.Name, strings.Join(args, ","))

	case CallVariableRef:
		name := c.VarName.EscapedDump()
		// There is no way to recover whether a reference was written
		// with parentheses, so automatic variables are special cased.
		if automaticVariables[name] {
			return "$" + name
		}
		return fmt.Sprintf("$(%s)", name)

	case CallSubstitutionRef:
		return fmt.Sprintf("$(%s:%s=%s)", c.VarName.EscapedDump(),
			c.SubstFrom.EscapedDump(), c.SubstTo.EscapedDump())

	default:
		panic(&UnsupportedError{Construct: fmt.Sprintf("function call kind %d", c.Kind)})
	}
}

func (c *FunctionCall) diff(other *FunctionCall) *Difference {
	if c.Kind != other.Kind {
		return &Difference{Reason: "function call kinds differ"}
	}
	switch c.Kind {
	case CallBuiltin:
		if c.Name != other.Name {
			return &Difference{Reason: "function names differ"}
		}
		if len(c.Args) != len(other.Args) {
			return &Difference{Reason: "function argument counts differ"}
		}
		for i, arg := range c.Args {
			if d := arg.Diff(other.Args[i]); d != nil {
				return d
			}
		}
	case CallVariableRef:
		if d := c.VarName.Diff(other.VarName); d != nil {
			return d
		}
	case CallSubstitutionRef:
		if d := c.VarName.Diff(other.VarName); d != nil {
			return d
		}
		if d := c.SubstFrom.Diff(other.SubstFrom); d != nil {
			return d
		}
		if d := c.SubstTo.Diff(other.SubstTo); d != nil {
			return d
		}
	default:
		panic(&UnsupportedError{Construct: fmt.Sprintf("function call kind %d", c.Kind)})
	}
	return nil
}
