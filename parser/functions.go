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

// FunctionClass describes how the output of a make builtin function relates
// to its inputs.  The classification drives the static analysis that decides
// whether a conditional can be evaluated ahead of time.
type FunctionClass int

const (
	// FunctionDeterministic functions are pure string transforms.  For a
	// given set of arguments the output is always the same, regardless of
	// the state of the machine the Makefile runs on.
	FunctionDeterministic FunctionClass = iota

	// FunctionFilesystem functions read the state of the filesystem, which
	// may change between analysis time and build time.
	FunctionFilesystem

	// FunctionNonDeterministic functions depend on the execution
	// environment (shell output, variable origin, makefile self
	// modification) and can never be evaluated statically.
	FunctionNonDeterministic
)

func (c FunctionClass) String() string {
	switch c {
	case FunctionDeterministic:
		return "deterministic"
	case FunctionFilesystem:
		return "filesystem"
	case FunctionNonDeterministic:
		return "nondeterministic"
	default:
		return "unknown"
	}
}

type builtinFunction struct {
	class FunctionClass

	// arity is the maximum number of arguments.  Commas beyond this count
	// are not argument separators and belong to the final argument.
	// 0 means varargs.
	arity int
}

// builtinFunctions classifies every supported make builtin.
// http://www.gnu.org/software/make/manual/make.html#Functions
var builtinFunctions = map[string]builtinFunction{
	"subst":      {FunctionDeterministic, 3},
	"patsubst":   {FunctionDeterministic, 3},
	"strip":      {FunctionDeterministic, 1},
	"findstring": {FunctionDeterministic, 2},
	"filter":     {FunctionDeterministic, 2},
	"filter-out": {FunctionDeterministic, 2},
	"sort":       {FunctionDeterministic, 1},
	"word":       {FunctionDeterministic, 2},
	"wordlist":   {FunctionDeterministic, 3},
	"words":      {FunctionDeterministic, 1},
	"firstword":  {FunctionDeterministic, 1},
	"lastword":   {FunctionDeterministic, 1},
	"dir":        {FunctionDeterministic, 1},
	"notdir":     {FunctionDeterministic, 1},
	"suffix":     {FunctionDeterministic, 1},
	"basename":   {FunctionDeterministic, 1},
	"addsuffix":  {FunctionDeterministic, 2},
	"addprefix":  {FunctionDeterministic, 2},
	"join":       {FunctionDeterministic, 2},
	"if":         {FunctionDeterministic, 3},
	"or":         {FunctionDeterministic, 0},
	"and":        {FunctionDeterministic, 0},
	"foreach":    {FunctionDeterministic, 3},
	"error":      {FunctionDeterministic, 1},
	"warning":    {FunctionDeterministic, 1},
	"info":       {FunctionDeterministic, 1},

	"wildcard": {FunctionFilesystem, 1},
	"realpath": {FunctionFilesystem, 1},
	"abspath":  {FunctionFilesystem, 1},

	// call might be safe depending on what it calls, but proving that is
	// more trouble than it is worth.
	"call": {FunctionNonDeterministic, 0},
	// value returns the unexpanded definition, which may be non-idempotent.
	"value": {FunctionNonDeterministic, 1},
	// eval rewrites the Makefile while it runs.
	"eval": {FunctionNonDeterministic, 1},
	// origin and flavor answer questions about the execution environment.
	"origin": {FunctionNonDeterministic, 1},
	"flavor": {FunctionNonDeterministic, 1},
	"shell":  {FunctionNonDeterministic, 1},
}

// IsBuiltinFunction reports whether name names a make builtin understood by
// this package.  $(foo bar) with an unknown foo is a variable reference named
// "foo bar", matching make's own behavior.
func IsBuiltinFunction(name string) bool {
	_, ok := builtinFunctions[name]
	return ok
}
