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

// Package frontend extracts build system metadata from Mozilla-style
// Makefiles: which traits a file exhibits and typed descriptions of the
// libraries, exported headers, IDL files, and tests it defines.
package frontend

import (
	"sort"
)

// A DataObject is one typed piece of build metadata derived from a
// Makefile.  The set of implementations is closed.
type DataObject interface {
	dataObjectNode()
}

// Derived is the bookkeeping shared by every data object: where it came
// from and which variables produced it.  ExclusiveVariables are the subset
// of UsedVariables that no other data object also consumes.
type Derived struct {
	Directory    string
	SourceDir    string
	TopSourceDir string
	VPath        []string

	UsedVariables      map[string]bool
	ExclusiveVariables map[string]bool
}

func (d *Derived) use(names ...string) {
	if d.UsedVariables == nil {
		d.UsedVariables = make(map[string]bool)
	}
	for _, name := range names {
		d.UsedVariables[name] = true
	}
}

func (d *Derived) exclusive(names ...string) {
	d.use(names...)
	if d.ExclusiveVariables == nil {
		d.ExclusiveVariables = make(map[string]bool)
	}
	for _, name := range names {
		d.ExclusiveVariables[name] = true
	}
}

// UsedVariableNames returns the sorted names this object consumed.
func (d *Derived) UsedVariableNames() []string {
	names := make([]string, 0, len(d.UsedVariables))
	for name := range d.UsedVariables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LibraryInfo describes a static or shared library built by a Makefile.
type LibraryInfo struct {
	Derived

	Name         string
	ShortLibName string

	CSources      []string
	CPPSources    []string
	ObjCSources   []string
	ObjCPPSources []string

	Defines       []string
	CFlags        []string
	CXXFlags      []string
	NSPRCFlags    []string
	Includes      []string
	LocalIncludes []string

	SharedLibraryLibs []string

	IsComponent   bool
	IsStatic      bool
	IsShared      bool
	UseStaticLibs bool
	ExportLibrary bool
}

func (*LibraryInfo) dataObjectNode() {}

// An ExportEntry maps one exported header to its destination below the
// export directory.
type ExportEntry struct {
	Source string
	Dest   string
}

// ExportsInfo describes headers copied into the exported include tree,
// grouped by namespace ("" is the top level).
type ExportsInfo struct {
	Derived

	Exports    []ExportEntry
	Namespaces []string
}

func (*ExportsInfo) dataObjectNode() {}

// XPIDLInfo describes the XPCOM IDL files a Makefile generates interfaces
// from.
type XPIDLInfo struct {
	Derived

	Module  string
	Sources []string

	// WriteManifest is false when NO_INTERFACES_MANIFEST suppresses
	// interface manifest generation.
	WriteManifest bool

	// LinkTogether is false when the module's typelib needs no final
	// link because a single source already provides it.
	LinkTogether bool
}

func (*XPIDLInfo) dataObjectNode() {}

// TestInfo describes the tests a Makefile defines.
type TestInfo struct {
	Derived

	TestFiles        []string
	BrowserTestFiles []string
	ChromeTestFiles  []string
	XPCShellTestDirs []string
}

func (*TestInfo) dataObjectNode() {}

// UsedVariableInfo records variables that were consumed during extraction
// without producing their own data object, so unhandled variables can be
// detected.
type UsedVariableInfo struct {
	Derived
}

func (*UsedVariableInfo) dataObjectNode() {}

// MiscInfo holds the leftover metadata that has no dedicated object yet.
type MiscInfo struct {
	Derived

	Defines         []string
	ExtraComponents []string
	ExtraJSModules  []string
	Garbage         []string
	IncludedFiles   []string
	IsGREModule     bool
}

func (*MiscInfo) dataObjectNode() {}
