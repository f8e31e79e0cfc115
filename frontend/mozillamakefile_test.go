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

package frontend

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mozbuild/makeparse/makefile"
)

const contentMakefile = `DEPTH = ../..
topsrcdir = /src/mozilla
srcdir = /src/mozilla/content/base
VPATH = /src/mozilla/content/base

MODULE = content
LIBRARY_NAME = gkconbase_s
LIBXUL_LIBRARY = 1
XPIDL_MODULE = content_base

DIRS = public src
PARALLEL_DIRS = test

CPPSRCS = nsDocument.cpp nsRange.cpp
DEFINES += -DMOZILLA_INTERNAL_API -DNDEBUG
LOCAL_INCLUDES = -I$(srcdir)/../events

XPIDLSRCS = nsIDocument.idl nsIContent.idl

EXPORTS = nsIDocumentObserver.h
EXPORTS_NAMESPACES = mozilla/dom
EXPORTS_mozilla/dom = Element.h Element.h

_TEST_FILES = test_ranges.html
XPCSHELL_TESTS = unit

GARBAGE = generated.h

include $(topsrcdir)/config/rules.mk
`

func wrap(t *testing.T, text string) *MozillaMakefile {
	t.Helper()
	return New(makefile.FromText(text, "content/base/Makefile.in"), nil)
}

func TestTraits(t *testing.T) {
	m := wrap(t, contentMakefile)
	traits := m.Traits()

	for _, want := range []Traits{
		TraitModule, TraitLibrary, TraitDirs, TraitXPIDL, TraitExports, TraitTest,
	} {
		if !traits.Has(want) {
			t.Errorf("missing trait %s", want)
		}
	}
	if traits.Has(TraitProgram) {
		t.Error("unexpected program trait")
	}
}

func TestTraitsFromConditional(t *testing.T) {
	m := wrap(t, "ifdef MOZ_DEBUG\nLIBRARY_NAME = dbg\nendif\n")
	if !m.Traits().Has(TraitLibrary) {
		t.Error("conditional assignment should still set the trait")
	}
}

func TestModuleAndDirs(t *testing.T) {
	m := wrap(t, contentMakefile)
	if !m.IsModule() || m.Module() != "content" {
		t.Errorf("module: got %q", m.Module())
	}
	if diff := cmp.Diff([]string{"public", "src", "test"}, m.Dirs()); diff != "" {
		t.Errorf("dirs (-want +got):\n%s", diff)
	}
}

func dataObjects(t *testing.T, m *MozillaMakefile) []DataObject {
	t.Helper()
	objects, err := m.DataObjects()
	if err != nil {
		t.Fatal(err)
	}
	return objects
}

func TestDataObjects(t *testing.T) {
	m := wrap(t, contentMakefile)
	objects := dataObjects(t, m)

	var library *LibraryInfo
	var exports *ExportsInfo
	var idl *XPIDLInfo
	var tests *TestInfo
	var tracker *UsedVariableInfo
	var misc *MiscInfo
	for _, o := range objects {
		switch o := o.(type) {
		case *LibraryInfo:
			library = o
		case *ExportsInfo:
			exports = o
		case *XPIDLInfo:
			idl = o
		case *TestInfo:
			tests = o
		case *UsedVariableInfo:
			tracker = o
		case *MiscInfo:
			misc = o
		}
	}
	if library == nil || exports == nil || idl == nil || tests == nil ||
		tracker == nil || misc == nil {
		t.Fatalf("missing data objects: %#v", objects)
	}

	// Tracker and misc come last amid a stable order.
	if objects[len(objects)-2] != DataObject(tracker) || objects[len(objects)-1] != DataObject(misc) {
		t.Error("tracker and misc should be the final objects")
	}

	if library.Name != "gkconbase_s" {
		t.Errorf("library name: got %q", library.Name)
	}
	if !library.IsStatic {
		t.Error("LIBXUL_LIBRARY should imply a static library")
	}
	if diff := cmp.Diff([]string{"nsDocument.cpp", "nsRange.cpp"}, library.CPPSources); diff != "" {
		t.Errorf("cpp sources (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"MOZILLA_INTERNAL_API", "NDEBUG"}, library.Defines); diff != "" {
		t.Errorf("defines (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/src/mozilla/content/base/../events"}, library.LocalIncludes); diff != "" {
		t.Errorf("local includes (-want +got):\n%s", diff)
	}

	wantExports := []ExportEntry{
		{Source: "nsIDocumentObserver.h", Dest: "nsIDocumentObserver.h"},
		{Source: "Element.h", Dest: "mozilla/dom/Element.h"},
	}
	if diff := cmp.Diff(wantExports, exports.Exports); diff != "" {
		t.Errorf("exports (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"", "mozilla/dom"}, exports.Namespaces); diff != "" {
		t.Errorf("namespaces (-want +got):\n%s", diff)
	}

	if idl.Module != "content_base" {
		t.Errorf("idl module: got %q", idl.Module)
	}
	if diff := cmp.Diff([]string{"nsIContent.idl", "nsIDocument.idl"}, idl.Sources); diff != "" {
		t.Errorf("idl sources (-want +got):\n%s", diff)
	}
	if !idl.LinkTogether || !idl.WriteManifest {
		t.Error("unexpected idl flags")
	}

	if diff := cmp.Diff([]string{"test_ranges.html"}, tests.TestFiles); diff != "" {
		t.Errorf("test files (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"unit"}, tests.XPCShellTestDirs); diff != "" {
		t.Errorf("xpcshell dirs (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"generated.h"}, misc.Garbage); diff != "" {
		t.Errorf("garbage (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"$(topsrcdir)/config/rules.mk"}, misc.IncludedFiles); diff != "" {
		t.Errorf("included files (-want +got):\n%s", diff)
	}
	if misc.IsGREModule {
		t.Error("not a GRE module")
	}

	if !tracker.UsedVariables["DEPTH"] || !tracker.UsedVariables["MODULE"] {
		t.Errorf("tracker missing common variables: %v", tracker.UsedVariableNames())
	}
}

func TestDataObjectsModuleOnly(t *testing.T) {
	m := wrap(t, "MODULE = dom\nDIRS = src\n")
	objects := dataObjects(t, m)
	// Only the tracker and the misc catch-all.
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %d: %#v", len(objects), objects)
	}
}

func TestXPIDLModuleFallback(t *testing.T) {
	m := wrap(t, "MODULE = content\nXPIDLSRCS = nsIThing.idl\n")
	objects := dataObjects(t, m)
	for _, o := range objects {
		if idl, ok := o.(*XPIDLInfo); ok {
			if idl.Module != "content" {
				t.Errorf("fallback module: got %q", idl.Module)
			}
			return
		}
	}
	t.Fatal("no XPIDLInfo emitted")
}

func TestXPIDLWithoutModule(t *testing.T) {
	m := wrap(t, "XPIDLSRCS = nsIThing.idl\n")
	if _, err := m.DataObjects(); err == nil {
		t.Fatal("expected an error for xpidl sources without a module")
	}
}

func TestXPIDLEmptySourcesSuppressed(t *testing.T) {
	m := wrap(t, "MODULE = content\nifdef NEVER\nXPIDLSRCS = a.idl\nendif\n")
	for _, o := range dataObjects(t, m) {
		if _, ok := o.(*XPIDLInfo); ok {
			t.Fatal("empty idl info should be suppressed")
		}
	}
}
