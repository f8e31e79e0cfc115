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

const sampleMakefile = `DEPTH = ../..
topsrcdir = @top_srcdir@
VPATH = @srcdir@

include $(DEPTH)/config/autoconf.mk

MODULE = content
LIBRARY_NAME = gkconcvt_s
GENERATED = $(wildcard gen/*.h)

ifdef MOZ_DEBUG
DEFINES += -DDEBUG
else
OPTIMIZER = $(shell cat optimizer.flags)
endif

ifeq ($(OS_ARCH),WINNT)
DEFINES += -DXP_WIN
endif

include $(topsrcdir)/config/rules.mk

libs:: $(TARGETS)
	$(INSTALL) $(TARGETS) $(DIST)/bin
`

func loadSample(t *testing.T) *StatementCollection {
	t.Helper()
	collection, errs := LoadString("sample.mk", sampleMakefile)
	if len(errs) > 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	return collection
}

func TestExpandedStatements(t *testing.T) {
	collection := loadSample(t)

	flat := collection.ExpandedStatements(true)
	for _, ctx := range flat {
		if _, ok := ctx.Statement.(*parser.ConditionBlock); ok {
			t.Fatal("suppressed walk yielded a condition block")
		}
	}

	var conditional int
	for _, ctx := range flat {
		if len(ctx.Conditions) > 0 {
			conditional++
		}
	}
	// DEFINES += -DDEBUG, OPTIMIZER = ..., DEFINES += -DXP_WIN
	if conditional != 3 {
		t.Errorf("expected 3 conditional statements, got %d", conditional)
	}

	withBlocks := collection.ExpandedStatements(false)
	if len(withBlocks) != len(flat)+2 {
		t.Errorf("expected 2 condition blocks, got %d extra statements",
			len(withBlocks)-len(flat))
	}
}

func TestRules(t *testing.T) {
	collection := loadSample(t)
	rules := collection.Rules()
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	rule := rules[0]
	if rule.Target.Dump() != "libs" || !rule.DoubleColon {
		t.Errorf("unexpected rule target: %q", rule.Target.Dump())
	}
	if len(rule.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(rule.Commands))
	}
	if got := rule.Commands[0].Name(); got != "$(INSTALL)" {
		t.Errorf("command name: got %q", got)
	}
}

func TestStaticPatternRuleBinding(t *testing.T) {
	collection, errs := LoadString("test.mk", "$(objs): %.o: %.c\n\t$(CC) -c $<\n")
	if len(errs) > 0 {
		t.Fatal(errs)
	}
	rules := collection.Rules()
	if len(rules) != 1 || rules[0].Pattern == nil {
		t.Fatalf("expected 1 static pattern rule, got %#v", rules)
	}
	if rules[0].Pattern.Dump() != "%.o" || len(rules[0].Commands) != 1 {
		t.Errorf("unexpected binding: %q with %d commands",
			rules[0].Pattern.Dump(), len(rules[0].Commands))
	}
	if len(collection.StaticPatternRules()) != 1 {
		t.Errorf("expected 1 static pattern rule context, got %d",
			len(collection.StaticPatternRules()))
	}
	if len(collection.Rules()) != len(rules) {
		t.Error("Rules is not restartable")
	}
}

func TestIncludes(t *testing.T) {
	collection := loadSample(t)
	includes := collection.Includes()
	if len(includes) != 2 {
		t.Fatalf("expected 2 includes, got %d", len(includes))
	}
	want := []string{
		"$(DEPTH)/config/autoconf.mk",
		"$(topsrcdir)/config/rules.mk",
	}
	for i, ctx := range includes {
		include := ctx.Statement.(*parser.Include)
		if got := include.Path.Dump(); got != want[i] {
			t.Errorf("include %d: got %q, want %q", i, got, want[i])
		}
	}
}

func TestIfdefNames(t *testing.T) {
	collection := loadSample(t)
	if diff := cmp.Diff([]string{"MOZ_DEBUG"}, collection.IfdefNames()); diff != "" {
		t.Errorf("unexpected ifdef names (-want +got):\n%s", diff)
	}
	ifdefs := collection.Ifdefs()
	if len(ifdefs) != 1 || !ifdefs[0].Expected {
		t.Errorf("unexpected ifdefs: %#v", ifdefs)
	}
}

func TestVariableAssignments(t *testing.T) {
	collection := loadSample(t)

	all := collection.VariableAssignments()
	if len(all) != 9 {
		t.Errorf("expected 9 assignments, got %d", len(all))
	}

	unconditional := collection.UnconditionalVariableAssignments()
	if len(unconditional) != 6 {
		t.Errorf("expected 6 unconditional assignments, got %d", len(unconditional))
	}
	for _, sv := range unconditional {
		if sv.Name.Dump() == "DEFINES" || sv.Name.Dump() == "OPTIMIZER" {
			t.Errorf("conditional assignment %q reported as unconditional", sv.Name.Dump())
		}
	}
}

func TestVariableReferences(t *testing.T) {
	collection, errs := LoadString("test.mk",
		"A = $(B) $(strip $(C))\nifeq ($(D),x)\nE = $(F)\nendif\n")
	if len(errs) > 0 {
		t.Fatal(errs)
	}
	want := []string{"B", "C", "D", "F"}
	if diff := cmp.Diff(want, collection.VariableReferences()); diff != "" {
		t.Errorf("unexpected references (-want +got):\n%s", diff)
	}
}

func TestDependentStatements(t *testing.T) {
	collection := loadSample(t)

	filesystem := collection.FilesystemDependentStatements()
	if len(filesystem) != 1 {
		t.Fatalf("expected 1 filesystem dependent statement, got %d", len(filesystem))
	}
	if sv, ok := filesystem[0].Statement.(*parser.SetVariable); !ok || sv.Name.Dump() != "GENERATED" {
		t.Errorf("unexpected filesystem dependent statement: %#v", filesystem[0].Statement)
	}

	shell := collection.ShellDependentStatements()
	if len(shell) != 1 {
		t.Fatalf("expected 1 shell dependent statement, got %d", len(shell))
	}
	if sv, ok := shell[0].Statement.(*parser.SetVariable); !ok || sv.Name.Dump() != "OPTIMIZER" {
		t.Errorf("unexpected shell dependent statement: %#v", shell[0].Statement)
	}
}

func TestCollectionDiff(t *testing.T) {
	a, _ := LoadString("a.mk", "FOO = bar\nBAZ = qux\n")
	b, _ := LoadString("b.mk", "FOO = bar\nBAZ = qux\n")
	if d := a.Diff(b); d != nil {
		t.Errorf("expected no difference, got %s", d)
	}

	c, _ := LoadString("c.mk", "FOO = bar\nBAZ = other\n")
	if d := a.Diff(c); d == nil {
		t.Error("expected a difference")
	}

	d, _ := LoadString("d.mk", "FOO = bar\n")
	if diff := a.Diff(d); diff == nil || diff.Detail.Reason != "statement counts differ" {
		t.Errorf("unexpected diff: %v", diff)
	}
}

func TestCollectionRoundTrip(t *testing.T) {
	collection := loadSample(t)
	reparsed, errs := LoadString("sample.mk", collection.Text())
	if len(errs) > 0 {
		t.Fatal(errs)
	}
	if d := collection.Diff(reparsed); d != nil {
		t.Errorf("round trip changed the collection: %s", d)
	}
}

func TestRemoveVariableAssignments(t *testing.T) {
	input := `MODULE = content
DIRS = public src
ifdef MOZ_DEBUG
DIRS += test
endif
`
	collection, errs := LoadString("test.mk", input)
	if len(errs) > 0 {
		t.Fatal(errs)
	}

	removed := collection.RemoveVariableAssignments(map[string]bool{"DIRS": true})
	want := `MODULE = content
ifdef MOZ_DEBUG
endif
`
	if diff := cmp.Diff(want, removed.Text()); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}

	// The original collection is untouched.
	if diff := cmp.Diff(input, collection.Text()); diff != "" {
		t.Errorf("input collection changed (-want +got):\n%s", diff)
	}
}
