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
	"fmt"
	"io/ioutil"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mozbuild/makeparse/parser"
)

// Autoconf-style substitution markers: @name@.
var substitutionRe = regexp.MustCompile(`@([A-Za-z0-9_]+?)@`)

// MissingVariableAction selects what PerformSubstitutions does with a
// marker whose variable has no value.
type MissingVariableAction int

const (
	// PreserveMissing leaves the @name@ marker in place.
	PreserveMissing MissingVariableAction = iota
	// RemoveMissing replaces the marker with the empty string.
	RemoveMissing
	// MarkMissing replaces the marker with an $(error ...) call, so a
	// later make run fails at the point of use.
	MarkMissing
	// ErrorOnMissing fails the substitution.
	ErrorOnMissing
)

// SubstitutionOptions controls PerformSubstitutions.  OnMissing, when set,
// is called once per marker whose variable has no value, whatever the
// Action.
type SubstitutionOptions struct {
	Action    MissingVariableAction
	OnMissing func(name string)
}

// A Makefile is Makefile content tied to a path, with template
// substitution, lazy parsing, and variable queries layered over the
// statement collection.  Build systems that preprocess Makefile.in
// templates apply PerformSubstitutions before analysis.
type Makefile struct {
	Filename  string
	Directory string

	text       string
	collection *StatementCollection
	parseErrs  []error
}

// Open reads a Makefile from disk.
func Open(path string) (*Makefile, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromText(string(data), path), nil
}

// FromText wraps in-memory Makefile content.  filename is used for
// positions and may name a file that does not exist.
func FromText(text, filename string) *Makefile {
	return &Makefile{
		Filename:  filename,
		Directory: filepath.Dir(filename),
		text:      text,
	}
}

// Text returns the current content, after any substitutions.
func (m *Makefile) Text() string {
	return m.text
}

// PerformSubstitutions replaces @name@ markers with values.  Any previously
// parsed statements are discarded, since the raw text changed underneath
// them.
func (m *Makefile) PerformSubstitutions(values map[string]string, opts SubstitutionOptions) error {
	var missing []string
	m.text = substitutionRe.ReplaceAllStringFunc(m.text, func(marker string) string {
		name := marker[1 : len(marker)-1]
		if value, ok := values[name]; ok {
			return value
		}
		missing = append(missing, name)
		if opts.OnMissing != nil {
			opts.OnMissing(name)
		}
		switch opts.Action {
		case RemoveMissing:
			return ""
		case MarkMissing:
			return fmt.Sprintf("$(error substitution variable %s is not defined)", name)
		}
		return marker
	})
	m.collection = nil
	m.parseErrs = nil

	if opts.Action == ErrorOnMissing && len(missing) > 0 {
		return fmt.Errorf("%s: no value for substitution %q", m.Filename, missing[0])
	}
	return nil
}

// Statements parses the content if needed and returns the collection.  The
// collection is usable even when parse errors are returned.
func (m *Makefile) Statements() (*StatementCollection, []error) {
	if m.collection == nil {
		m.collection, m.parseErrs = LoadString(m.Filename, m.text)
	}
	return m.collection, m.parseErrs
}

// Lines returns the canonical Makefile lines for the parsed content.
func (m *Makefile) Lines() []string {
	collection, _ := m.Statements()
	return collection.Lines()
}

// Variables plays the file's unconditional assignments over env and
// returns the resulting scope.  env may be nil.  Assignments inside
// condition blocks are not applied; a caller that needs them decided
// should strip conditionals first.
func (m *Makefile) Variables(env *Variables) *Variables {
	vars := NewVariables()
	if env != nil {
		vars = env.Copy()
	}
	collection, _ := m.Statements()
	for _, s := range collection.Statements {
		if sv, ok := s.(*parser.SetVariable); ok {
			vars.Execute(sv)
		}
	}
	return vars
}

// GetVariableString returns the fully expanded value of a variable, using
// the file's own unconditional assignments over env.  An undefined
// variable expands to "".
func (m *Makefile) GetVariableString(name string, env *Variables) (string, error) {
	vars := m.Variables(env)
	def, ok := vars.Lookup(name)
	if !ok {
		return "", nil
	}
	if def.Tainted {
		return "", fmt.Errorf("value of %q is not statically known", name)
	}
	if def.Simple {
		return def.Value.Dump(), nil
	}
	return Resolve(def.Value, vars)
}

// GetVariableSplit returns the expanded value of a variable broken into
// words.
func (m *Makefile) GetVariableSplit(name string, env *Variables) ([]string, error) {
	value, err := m.GetVariableString(name, env)
	if err != nil {
		return nil, err
	}
	return strings.Fields(value), nil
}

// OwnVariableNames returns the sorted names assigned in this file itself.
// When includeConditionals is false, assignments inside condition blocks
// are not counted.
func (m *Makefile) OwnVariableNames(includeConditionals bool) []string {
	collection, _ := m.Statements()
	seen := make(map[string]bool)
	for _, ctx := range collection.VariableAssignments() {
		if !includeConditionals && len(ctx.Conditions) > 0 {
			continue
		}
		sv := ctx.Statement.(*parser.SetVariable)
		if sv.Target == nil && sv.Name.IsStaticString() {
			seen[sv.Name.Dump()] = true
		}
	}
	return sortedKeys(seen)
}

// HasOwnVariable reports whether this file itself assigns name.
func (m *Makefile) HasOwnVariable(name string, includeConditionals bool) bool {
	for _, own := range m.OwnVariableNames(includeConditionals) {
		if own == name {
			return true
		}
	}
	return false
}

// VariableDefined reports whether name is defined once the file's
// unconditional assignments are applied over env.
func (m *Makefile) VariableDefined(name string, env *Variables) bool {
	return m.Variables(env).Defined(name)
}
