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
	"sort"

	"github.com/mozbuild/makeparse/parser"
)

// Variables tracks what is statically known about make variables while
// statements are processed in order.  It implements parser.Scope.
type Variables struct {
	defs map[string]parser.VariableDefinition
}

func NewVariables() *Variables {
	return &Variables{defs: make(map[string]parser.VariableDefinition)}
}

// NewEnvironmentVariables builds a scope from externally supplied values,
// as if each had been assigned with ":=".
func NewEnvironmentVariables(env map[string]string) *Variables {
	v := NewVariables()
	for name, value := range env {
		v.SetString(name, value)
	}
	return v
}

func (v *Variables) Lookup(name string) (parser.VariableDefinition, bool) {
	def, ok := v.defs[name]
	return def, ok
}

func (v *Variables) Defined(name string) bool {
	_, ok := v.defs[name]
	return ok
}

func (v *Variables) Tainted(name string) bool {
	def, ok := v.defs[name]
	return ok && def.Tainted
}

// SetString records a known verbatim value for name.
func (v *Variables) SetString(name, value string) {
	v.defs[name] = parser.VariableDefinition{
		Value:  parser.SimpleExpansion(value, parser.NoPos),
		Simple: true,
	}
}

// Taint marks name as defined with an unknowable value.
func (v *Variables) Taint(name string) {
	v.defs[name] = parser.VariableDefinition{
		Value:   parser.SimpleExpansion("", parser.NoPos),
		Tainted: true,
	}
}

// Names returns the defined variable names, sorted.
func (v *Variables) Names() []string {
	names := make([]string, 0, len(v.defs))
	for name := range v.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Copy returns an independent scope with the same definitions.
func (v *Variables) Copy() *Variables {
	defs := make(map[string]parser.VariableDefinition, len(v.defs))
	for name, def := range v.defs {
		defs[name] = def
	}
	return &Variables{defs: defs}
}

// Execute applies one variable assignment to the scope, following make's
// flavor rules.  Target-specific assignments do not touch the global scope.
// Assignments whose name is itself computed cannot be tracked and are
// ignored.
func (v *Variables) Execute(s *parser.SetVariable) {
	if s.Target != nil {
		return
	}
	if !s.Name.IsStaticString() {
		return
	}
	name := s.Name.Dump()

	switch s.Token {
	case ":=":
		// Simple variables capture their expansion at assignment time.
		// When that expansion cannot be computed statically, the name
		// is still defined but its value is unknowable.
		value, err := Resolve(s.Value, v)
		if err != nil {
			v.Taint(name)
			return
		}
		v.SetString(name, value)

	case "?=":
		if v.Defined(name) {
			return
		}
		v.defs[name] = parser.VariableDefinition{Value: s.Value}

	case "+=":
		existing, ok := v.defs[name]
		if !ok {
			v.defs[name] = parser.VariableDefinition{Value: s.Value}
			return
		}
		if existing.Tainted {
			return
		}
		if existing.Simple {
			value, err := Resolve(s.Value, v)
			if err != nil {
				v.Taint(name)
				return
			}
			v.SetString(name, existing.Value.Dump()+" "+value)
			return
		}
		v.defs[name] = parser.VariableDefinition{
			Value: concatExpansions(existing.Value, s.Value),
		}

	default:
		// Recursive assignment stores the definition unexpanded; its
		// determinism is judged at reference time.
		v.defs[name] = parser.VariableDefinition{Value: s.Value}
	}
}

// concatExpansions joins two expansions with a single space, the way "+="
// extends a recursive variable.
func concatExpansions(a, b *parser.Expansion) *parser.Expansion {
	out := &parser.Expansion{
		StringPos: a.StringPos,
		Strings:   append([]string(nil), a.Strings...),
		Calls:     append([]*parser.FunctionCall(nil), a.Calls...),
	}
	out.Strings[len(out.Strings)-1] += " " + b.Strings[0]
	out.Strings = append(out.Strings, b.Strings[1:]...)
	out.Calls = append(out.Calls, b.Calls...)
	return out
}
