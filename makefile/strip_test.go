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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mozbuild/makeparse/parser"
)

func stripText(t *testing.T, input string, env map[string]string) string {
	t.Helper()
	collection, errs := LoadString("test.mk", input)
	if len(errs) > 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	stripped := collection.StripFalseConditionals(NewEnvironmentVariables(env), false)
	return stripped.Text()
}

func TestStripFalseConditionals(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
		in   string
		out  string
	}{
		{
			"ifdef of set variable inlined",
			map[string]string{"FOO": "bar"},
			"ifdef FOO\nRESULT = yes\nendif\n",
			"RESULT = yes\n",
		},
		{
			"ifdef of unset variable dropped",
			nil,
			"ifdef FOO\nRESULT = yes\nendif\n",
			"",
		},
		{
			"ifndef of unset variable inlined",
			nil,
			"ifndef FOO\nRESULT = yes\nendif\n",
			"RESULT = yes\n",
		},
		{
			"else branch taken",
			nil,
			"ifdef FOO\nRESULT = yes\nelse\nRESULT = no\nendif\n",
			"RESULT = no\n",
		},
		{
			"deterministic ifeq inlined",
			map[string]string{"OS_ARCH": "WINNT"},
			"ifeq ($(OS_ARCH),WINNT)\nDLL_SUFFIX = .dll\nendif\n",
			"DLL_SUFFIX = .dll\n",
		},
		{
			"deterministic ifneq dropped",
			map[string]string{"OS_ARCH": "WINNT"},
			"ifneq ($(OS_ARCH),WINNT)\nDLL_SUFFIX = .so\nendif\n",
			"",
		},
		{
			"assignment threads into later condition",
			nil,
			"FOO = 1\nifdef FOO\nRESULT = yes\nendif\n",
			"FOO = 1\nRESULT = yes\n",
		},
		{
			"undecidable ifdef preserved",
			nil,
			"FOO := $(shell echo maybe)\nifdef FOO\nRESULT = yes\nendif\n",
			"FOO := $(shell echo maybe)\nifdef FOO\nRESULT = yes\nendif\n",
		},
		{
			"undecidable ifeq preserved",
			nil,
			"ifeq ($(shell uname),Linux)\nOS = linux\nendif\n",
			"ifeq ($(shell uname),Linux)\nOS = linux\nendif\n",
		},
		{
			"multi branch all false no else dropped",
			map[string]string{"TOOLKIT": "gtk"},
			"ifeq ($(TOOLKIT),windows)\nA = 1\nelse ifeq ($(TOOLKIT),cocoa)\nA = 2\nendif\n",
			"",
		},
		{
			"later branch selected",
			map[string]string{"TOOLKIT": "cocoa"},
			"ifeq ($(TOOLKIT),windows)\nA = 1\nelse ifeq ($(TOOLKIT),cocoa)\nA = 2\nelse\nA = 3\nendif\n",
			"A = 2\n",
		},
		{
			"false branch removed from surviving block",
			map[string]string{"NEVER": ""},
			"ifeq ($(shell uname),Linux)\nA = 1\nelse ifdef NEVER\nA = 2\nelse\nA = 3\nendif\n",
			"ifeq ($(shell uname),Linux)\nA = 1\nelse\nA = 3\nendif\n",
		},
		{
			"true branch after unknown becomes else",
			map[string]string{"ALWAYS": "1"},
			"ifeq ($(shell uname),Linux)\nA = 1\nelse ifdef ALWAYS\nA = 2\nelse\nA = 3\nendif\n",
			"ifeq ($(shell uname),Linux)\nA = 1\nelse\nA = 2\nendif\n",
		},
		{
			"nested blocks",
			map[string]string{"OUTER": "1"},
			"ifdef OUTER\nifdef INNER\nA = 1\nendif\nB = 2\nendif\n",
			"B = 2\n",
		},
		{
			"empty variable is not defined for ifdef",
			map[string]string{"EMPTY": ""},
			"ifdef EMPTY\nA = 1\nelse\nA = 2\nendif\n",
			"A = 2\n",
		},
		{
			"non-conditional statements pass through",
			nil,
			"all: dep\n\ttouch $@\n",
			"all: dep\n\ttouch $@\n",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got := stripText(t, testCase.in, testCase.env)
			if diff := cmp.Diff(testCase.out, got); diff != "" {
				t.Errorf("unexpected output (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStripTaintPropagation(t *testing.T) {
	// BAR is assigned inside an undecidable block, so whether it is set
	// cannot be known afterwards and the later ifdef must survive.
	input := `ifeq ($(shell uname),Linux)
BAR = 1
endif
ifdef BAR
RESULT = yes
endif
`
	got := stripText(t, input, nil)
	if diff := cmp.Diff(input, got); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestStripIdempotent(t *testing.T) {
	input := `FOO = 1
ifdef FOO
A = 1
endif
ifeq ($(shell uname),Linux)
B = 2
endif
ifdef NEVER
C = 3
endif
`
	env := map[string]string{}
	once := stripText(t, input, env)
	twice := stripText(t, once, env)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("strip not idempotent (-once +twice):\n%s", diff)
	}
}

func TestStripDoesNotModifyInput(t *testing.T) {
	collection, errs := LoadString("test.mk", "ifdef NEVER\nA = 1\nendif\nB = 2\n")
	if len(errs) > 0 {
		t.Fatal(errs)
	}
	before := collection.Text()
	collection.StripFalseConditionals(NewVariables(), false)
	if diff := cmp.Diff(before, collection.Text()); diff != "" {
		t.Errorf("input collection changed (-before +after):\n%s", diff)
	}
}

func TestDetermineCondition(t *testing.T) {
	parseBlock := func(t *testing.T, input string) *parser.ConditionBlock {
		t.Helper()
		statements, errs := parser.ParseString("test.mk", input)
		if len(errs) > 0 {
			t.Fatal(errs)
		}
		return statements[0].(*parser.ConditionBlock)
	}

	vars := NewEnvironmentVariables(map[string]string{"SET": "1"})

	testCases := []struct {
		name    string
		input   string
		branch  int
		taken   bool
		decided bool
	}{
		{"first branch", "ifdef SET\nendif\n", 0, true, true},
		{"no branch", "ifdef UNSET\nendif\n", 0, false, true},
		{"else branch", "ifdef UNSET\nelse\nendif\n", 1, true, true},
		{"undecided", "ifeq ($(shell uname),Linux)\nendif\n", 0, false, false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			branch, taken, decided := DetermineCondition(parseBlock(t, testCase.input), vars, false)
			if branch != testCase.branch || taken != testCase.taken || decided != testCase.decided {
				t.Errorf("got (%d, %v, %v), want (%d, %v, %v)",
					branch, taken, decided,
					testCase.branch, testCase.taken, testCase.decided)
			}
		})
	}
}

func TestStripEvaluateIfeq(t *testing.T) {
	// A computed variable name is never provably deterministic, but it
	// can still be resolved against the current values.
	input := "SEL = DEBUG\nDEBUG = yes\nifeq ($($(SEL)),yes)\nA = 1\nelse\nB = 1\nendif\n"

	collection, errs := LoadString("test.mk", input)
	if len(errs) > 0 {
		t.Fatal(errs)
	}

	safe := collection.StripFalseConditionals(NewVariables(), false)
	if diff := cmp.Diff(input, safe.Text()); diff != "" {
		t.Errorf("safe mode changed the block (-want +got):\n%s", diff)
	}

	loose := collection.StripFalseConditionals(NewVariables(), true)
	if diff := cmp.Diff("SEL = DEBUG\nDEBUG = yes\nA = 1\n", loose.Text()); diff != "" {
		t.Errorf("evaluated mode (-want +got):\n%s", diff)
	}

	// Shell output is unknowable in either mode.
	shellInput := "ifeq ($(shell uname),Linux)\nA = 1\nendif\n"
	shell, errs := LoadString("test.mk", shellInput)
	if len(errs) > 0 {
		t.Fatal(errs)
	}
	got := shell.StripFalseConditionals(NewVariables(), true)
	if diff := cmp.Diff(shellInput, got.Text()); diff != "" {
		t.Errorf("shell condition pruned (-want +got):\n%s", diff)
	}
}

func TestStripSelfReferentialVariable(t *testing.T) {
	// A definition that feeds back into itself can never be decided; the
	// block must survive untouched instead of sending the walk into
	// endless descent.
	input := "FOO = $(FOO) extra\nifeq ($(FOO),x)\nX = 1\nendif\n"
	got := stripText(t, input, nil)
	if diff := cmp.Diff(input, got); diff != "" {
		t.Errorf("self-referential condition changed (-want +got):\n%s", diff)
	}

	loose, errs := LoadString("test.mk", input)
	if len(errs) > 0 {
		t.Fatal(errs)
	}
	stripped := loose.StripFalseConditionals(NewVariables(), true)
	if diff := cmp.Diff(input, stripped.Text()); diff != "" {
		t.Errorf("evaluated mode changed (-want +got):\n%s", diff)
	}
}
