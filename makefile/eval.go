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
	"sort"
	"strconv"
	"strings"

	"github.com/mozbuild/makeparse/parser"
)

// Resolve evaluates an expansion to its literal value using statically
// known information only.  It fails when the expansion depends on the
// filesystem, the shell, or a variable whose value is unknowable.  Missing
// variables expand to the empty string, as they do in make.
func Resolve(e *parser.Expansion, scope *Variables) (string, error) {
	r := &resolver{scope: scope}
	return r.expansion(e)
}

type resolver struct {
	scope  *Variables
	locals map[string]string // foreach loop bindings
	active map[string]bool   // names currently being expanded
}

func (r *resolver) expansion(e *parser.Expansion) (string, error) {
	var sb strings.Builder
	sb.WriteString(e.Strings[0])
	for i, c := range e.Calls {
		value, err := r.call(c)
		if err != nil {
			return "", err
		}
		sb.WriteString(value)
		sb.WriteString(e.Strings[i+1])
	}
	return sb.String(), nil
}

func (r *resolver) lookup(name string) (string, error) {
	if value, ok := r.locals[name]; ok {
		return value, nil
	}
	def, ok := r.scope.Lookup(name)
	if !ok {
		return "", nil
	}
	if def.Tainted {
		return "", fmt.Errorf("value of %q is not statically known", name)
	}
	if def.Simple {
		return def.Value.Dump(), nil
	}
	if r.active[name] {
		return "", fmt.Errorf("variable %q references itself", name)
	}
	if r.active == nil {
		r.active = make(map[string]bool)
	}
	r.active[name] = true
	value, err := r.expansion(def.Value)
	delete(r.active, name)
	return value, err
}

func (r *resolver) call(c *parser.FunctionCall) (string, error) {
	switch c.Kind {
	case parser.CallVariableRef:
		name, err := r.expansion(c.VarName)
		if err != nil {
			return "", err
		}
		return r.lookup(name)

	case parser.CallSubstitutionRef:
		name, err := r.expansion(c.VarName)
		if err != nil {
			return "", err
		}
		value, err := r.lookup(name)
		if err != nil {
			return "", err
		}
		from, err := r.expansion(c.SubstFrom)
		if err != nil {
			return "", err
		}
		to, err := r.expansion(c.SubstTo)
		if err != nil {
			return "", err
		}
		// $(VAR:.c=.o) is shorthand for $(patsubst %.c,%.o,$(VAR)).
		if !strings.Contains(from, "%") {
			from, to = "%"+from, "%"+to
		}
		return patsubst(from, to, value), nil

	case parser.CallBuiltin:
		return r.builtin(c)

	default:
		return "", &parser.UnsupportedError{
			Construct: fmt.Sprintf("function call kind %d", c.Kind),
		}
	}
}

// arg resolves the i'th argument, or "" when absent.
func (r *resolver) arg(c *parser.FunctionCall, i int) (string, error) {
	if i >= len(c.Args) {
		return "", nil
	}
	return r.expansion(c.Args[i])
}

func (r *resolver) builtin(c *parser.FunctionCall) (string, error) {
	// Control flow functions evaluate their arguments selectively, so
	// they are handled before the common argument resolution below.
	switch c.Name {
	case "if":
		condition, err := r.arg(c, 0)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(condition) != "" {
			return r.arg(c, 1)
		}
		return r.arg(c, 2)

	case "or":
		for _, arg := range c.Args {
			value, err := r.expansion(arg)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(value) != "" {
				return value, nil
			}
		}
		return "", nil

	case "and":
		last := ""
		for _, arg := range c.Args {
			value, err := r.expansion(arg)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(value) == "" {
				return "", nil
			}
			last = value
		}
		return last, nil

	case "foreach":
		return r.foreach(c)
	}

	args := make([]string, len(c.Args))
	for i := range c.Args {
		value, err := r.expansion(c.Args[i])
		if err != nil {
			return "", err
		}
		args[i] = value
	}
	arg := func(i int) string {
		if i >= len(args) {
			return ""
		}
		return args[i]
	}

	switch c.Name {
	case "subst":
		return strings.Replace(arg(2), arg(0), arg(1), -1), nil

	case "patsubst":
		return patsubst(arg(0), arg(1), arg(2)), nil

	case "strip":
		return strings.Join(strings.Fields(arg(0)), " "), nil

	case "findstring":
		if strings.Contains(arg(1), arg(0)) {
			return arg(0), nil
		}
		return "", nil

	case "filter":
		return filterWords(arg(0), arg(1), true), nil

	case "filter-out":
		return filterWords(arg(0), arg(1), false), nil

	case "sort":
		words := strings.Fields(arg(0))
		sort.Strings(words)
		return strings.Join(uniqueWords(words), " "), nil

	case "word":
		n, err := wordIndex(c.Name, arg(0))
		if err != nil {
			return "", err
		}
		words := strings.Fields(arg(1))
		if n > len(words) {
			return "", nil
		}
		return words[n-1], nil

	case "wordlist":
		start, err := wordIndex(c.Name, arg(0))
		if err != nil {
			return "", err
		}
		end, err := strconv.Atoi(strings.TrimSpace(arg(1)))
		if err != nil {
			return "", fmt.Errorf("non-numeric second argument to wordlist: %q", arg(1))
		}
		words := strings.Fields(arg(2))
		if start > len(words) || end < start {
			return "", nil
		}
		if end > len(words) {
			end = len(words)
		}
		return strings.Join(words[start-1:end], " "), nil

	case "words":
		return strconv.Itoa(len(strings.Fields(arg(0)))), nil

	case "firstword":
		words := strings.Fields(arg(0))
		if len(words) == 0 {
			return "", nil
		}
		return words[0], nil

	case "lastword":
		words := strings.Fields(arg(0))
		if len(words) == 0 {
			return "", nil
		}
		return words[len(words)-1], nil

	case "dir":
		return mapWords(arg(0), func(w string) string {
			if i := strings.LastIndexByte(w, '/'); i >= 0 {
				return w[:i+1]
			}
			return "./"
		}), nil

	case "notdir":
		return mapWords(arg(0), func(w string) string {
			if i := strings.LastIndexByte(w, '/'); i >= 0 {
				return w[i+1:]
			}
			return w
		}), nil

	case "suffix":
		return mapWords(arg(0), wordSuffix), nil

	case "basename":
		return mapWords(arg(0), func(w string) string {
			return strings.TrimSuffix(w, wordSuffix(w))
		}), nil

	case "addsuffix":
		return mapWords(arg(1), func(w string) string { return w + arg(0) }), nil

	case "addprefix":
		return mapWords(arg(1), func(w string) string { return arg(0) + w }), nil

	case "join":
		return joinWords(arg(0), arg(1)), nil

	case "error":
		return "", fmt.Errorf("%s", arg(0))

	case "warning", "info":
		// Diagnostic output has no expansion value.
		return "", nil

	default:
		return "", fmt.Errorf("function %q cannot be evaluated statically", c.Name)
	}
}

func (r *resolver) foreach(c *parser.FunctionCall) (string, error) {
	name, err := r.arg(c, 0)
	if err != nil {
		return "", err
	}
	list, err := r.arg(c, 1)
	if err != nil {
		return "", err
	}
	if len(c.Args) < 3 {
		return "", nil
	}

	if r.locals == nil {
		r.locals = make(map[string]string)
	}
	saved, hadSaved := r.locals[name]

	var results []string
	for _, word := range strings.Fields(list) {
		r.locals[name] = word
		value, err := r.expansion(c.Args[2])
		if err != nil {
			return "", err
		}
		results = append(results, value)
	}

	if hadSaved {
		r.locals[name] = saved
	} else {
		delete(r.locals, name)
	}
	return strings.Join(results, " "), nil
}

func wordIndex(name, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("non-numeric first argument to %s: %q", name, s)
	}
	if n < 1 {
		return 0, fmt.Errorf("first argument to %s must be at least 1, got %d", name, n)
	}
	return n, nil
}

// wordSuffix returns the file suffix of w, including the period, or "".
// Only a period in the last path component counts.
func wordSuffix(w string) string {
	base := w
	if i := strings.LastIndexByte(w, '/'); i >= 0 {
		base = w[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		return base[i:]
	}
	return ""
}

func mapWords(text string, f func(string) string) string {
	words := strings.Fields(text)
	var out []string
	for _, w := range words {
		if mapped := f(w); mapped != "" {
			out = append(out, mapped)
		}
	}
	return strings.Join(out, " ")
}

func uniqueWords(sorted []string) []string {
	var out []string
	for i, w := range sorted {
		if i == 0 || w != sorted[i-1] {
			out = append(out, w)
		}
	}
	return out
}

// matchPattern reports whether word matches a make pattern, where the first
// "%" matches any sequence of characters and a pattern without "%" matches
// only itself.
func matchPattern(pattern, word string) bool {
	i := strings.IndexByte(pattern, '%')
	if i < 0 {
		return pattern == word
	}
	prefix, suffix := pattern[:i], pattern[i+1:]
	return len(word) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(word, prefix) &&
		strings.HasSuffix(word, suffix)
}

// patsubst rewrites each word of text matching the pattern, substituting
// the matched stem for the first "%" in the replacement.
func patsubst(pattern, replacement, text string) string {
	i := strings.IndexByte(pattern, '%')
	return mapWords(text, func(w string) string {
		if !matchPattern(pattern, w) {
			return w
		}
		if i < 0 {
			return replacement
		}
		stem := w[i : len(w)-len(pattern[i+1:])]
		return strings.Replace(replacement, "%", stem, 1)
	})
}

func filterWords(patterns, text string, keep bool) string {
	patternList := strings.Fields(patterns)
	return mapWords(text, func(w string) string {
		matched := false
		for _, pattern := range patternList {
			if matchPattern(pattern, w) {
				matched = true
				break
			}
		}
		if matched == keep {
			return w
		}
		return ""
	})
}

// joinWords concatenates the words of a and b pairwise; the longer list's
// leftover words pass through unchanged.
func joinWords(a, b string) string {
	aWords, bWords := strings.Fields(a), strings.Fields(b)
	n := len(aWords)
	if len(bWords) > n {
		n = len(bWords)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var w string
		if i < len(aWords) {
			w = aWords[i]
		}
		if i < len(bWords) {
			w += bWords[i]
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}
