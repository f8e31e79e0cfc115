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
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/mozbuild/makeparse/makefile"
	"github.com/mozbuild/makeparse/parser"
)

// Traits are recognized patterns that invoke special functionality in
// Mozilla's Makefiles, identified by the presence of specific variables.
type Traits uint

const (
	TraitModule Traits = 1 << iota
	TraitLibrary
	TraitDirs
	TraitXPIDL
	TraitExports
	TraitTest
	TraitProgram
)

var traitNames = []struct {
	trait Traits
	name  string
}{
	{TraitModule, "module"},
	{TraitLibrary, "library"},
	{TraitDirs, "dirs"},
	{TraitXPIDL, "xpidl"},
	{TraitExports, "exports"},
	{TraitTest, "test"},
	{TraitProgram, "program"},
}

func (t Traits) Has(other Traits) bool {
	return t&other != 0
}

func (t Traits) String() string {
	var names []string
	for _, entry := range traitNames {
		if t.Has(entry.trait) {
			names = append(names, entry.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Variables common in most Makefiles that aren't really that special.
// Extraction counts them as consumed so they are not flagged as unhandled.
var commonVariables = []string{
	"DEPTH",
	"topsrcdir",
	"srcdir",
	"VPATH",
	"relativesrcdir",
	"DIRS",
	"PARALLEL_DIRS",
	"TOOL_DIRS",
}

// A MozillaMakefile is a Makefile with knowledge of Mozilla's build
// system, able to classify the file and extract typed metadata from it.
type MozillaMakefile struct {
	*makefile.Makefile

	// RelativeDirectory is the path of the file's directory within the
	// source tree.
	RelativeDirectory string

	env *makefile.Variables

	traits      Traits
	traitsValid bool
}

// New wraps a Makefile for metadata extraction.  env supplies the variable
// values the build configuration provides; it may be nil.
func New(m *makefile.Makefile, env *makefile.Variables) *MozillaMakefile {
	return &MozillaMakefile{Makefile: m, env: env}
}

func (m *MozillaMakefile) varString(name string) string {
	value, err := m.GetVariableString(name, m.env)
	if err != nil {
		return ""
	}
	return value
}

func (m *MozillaMakefile) varSplit(name string) []string {
	values, err := m.GetVariableSplit(name, m.env)
	if err != nil {
		return nil
	}
	return values
}

// Traits classifies the Makefile by the variables it assigns, including
// assignments inside conditionals.
func (m *MozillaMakefile) Traits() Traits {
	if m.traitsValid {
		return m.traits
	}
	for _, name := range m.OwnVariableNames(true) {
		switch name {
		case "MODULE":
			m.traits |= TraitModule
		case "LIBRARY_NAME":
			m.traits |= TraitLibrary
		case "DIRS", "PARALLEL_DIRS":
			m.traits |= TraitDirs
		case "XPIDL_MODULE", "XPIDLSRCS", "SDK_XPIDLSRCS":
			m.traits |= TraitXPIDL
		case "EXPORTS", "EXPORTS_NAMESPACES":
			m.traits |= TraitExports
		case "_TEST_FILES", "XPCSHELL_TESTS", "_BROWSER_TEST_FILES", "_CHROME_TEST_FILES":
			m.traits |= TraitTest
		case "PROGRAM":
			m.traits |= TraitProgram
		}
	}
	m.traitsValid = true
	return m.traits
}

func (m *MozillaMakefile) IsModule() bool {
	return m.Traits().Has(TraitModule)
}

// Module returns the module name this Makefile belongs to.
func (m *MozillaMakefile) Module() string {
	return m.varString("MODULE")
}

// Dirs returns the child directories the build descends into.
func (m *MozillaMakefile) Dirs() []string {
	return append(m.varSplit("DIRS"), m.varSplit("PARALLEL_DIRS")...)
}

func (m *MozillaMakefile) SourceDir() string {
	return m.varString("srcdir")
}

func (m *MozillaMakefile) TopSourceDir() string {
	return m.varString("topsrcdir")
}

func (m *MozillaMakefile) derived() Derived {
	return Derived{
		Directory:    m.Directory,
		SourceDir:    m.SourceDir(),
		TopSourceDir: m.TopSourceDir(),
		VPath:        m.varSplit("VPATH"),
	}
}

// DataObjects extracts the typed metadata this Makefile defines.  Objects
// are emitted in a stable order, with the variable usage tracker and the
// miscellaneous catch-all last.
func (m *MozillaMakefile) DataObjects() ([]DataObject, error) {
	var objects []DataObject

	misc := &MiscInfo{Derived: m.derived()}
	tracker := &UsedVariableInfo{Derived: m.derived()}
	tracker.use(commonVariables...)

	traits := m.Traits()

	if traits.Has(TraitModule) {
		tracker.use("MODULE")
	}

	if traits.Has(TraitLibrary) {
		objects = append(objects, m.libraryInfo())
	}

	// MODULE_NAME is only used for error checking, it appears.
	tracker.use("MODULE_NAME")

	if traits.Has(TraitExports) {
		objects = append(objects, m.exportsInfo())
	}

	if traits.Has(TraitXPIDL) {
		idl, err := m.xpidlInfo()
		if err != nil {
			return nil, err
		}
		// Some files give off the scent but don't actually define any
		// IDL files; suppress empty output.
		if idl != nil && len(idl.Sources) > 0 {
			objects = append(objects, idl)
		}
	}

	if traits.Has(TraitTest) {
		objects = append(objects, m.testInfo())
	}

	misc.use("GRE_MODULE")
	misc.IsGREModule = m.HasOwnVariable("GRE_MODULE", true)

	// DEFINES is also consumed by jar manifest processing, which cannot
	// be detected from the Makefile alone, so it is always carried.
	misc.use("DEFINES")
	misc.Defines = splitDefines(m.varSplit("DEFINES"))

	misc.use("EXTRA_JS_MODULES")
	misc.ExtraJSModules = m.varSplit("EXTRA_JS_MODULES")

	misc.use("EXTRA_COMPONENTS")
	misc.ExtraComponents = m.varSplit("EXTRA_COMPONENTS")

	misc.use("GARBAGE")
	misc.Garbage = m.varSplit("GARBAGE")

	collection, _ := m.Statements()
	for _, ctx := range collection.Includes() {
		include := ctx.Statement.(*parser.Include)
		misc.IncludedFiles = append(misc.IncludedFiles, include.Path.Dump())
	}

	objects = append(objects, tracker, misc)
	return objects, nil
}

func (m *MozillaMakefile) libraryInfo() *LibraryInfo {
	l := &LibraryInfo{Derived: m.derived()}

	// The name can be undefined when the trait came from a conditional
	// branch that is not active.
	l.use("LIBRARY_NAME")
	l.Name = m.varString("LIBRARY_NAME")

	l.use("DEFINES")
	l.Defines = splitDefines(m.varSplit("DEFINES"))

	l.use("HOST_CFLAGS")
	l.CFlags = m.varSplit("HOST_CFLAGS")
	l.use("HOST_CXXFLAGS")
	l.CXXFlags = m.varSplit("HOST_CXXFLAGS")
	l.use("NSPR_CFLAGS")
	l.NSPRCFlags = m.varSplit("NSPR_CFLAGS")

	l.exclusive("CPPSRCS")
	l.CPPSources = m.varSplit("CPPSRCS")
	l.exclusive("CSRCS")
	l.CSources = m.varSplit("CSRCS")
	l.exclusive("CMSRCS")
	l.ObjCSources = m.varSplit("CMSRCS")
	l.exclusive("CMMSRCS")
	l.ObjCPPSources = m.varSplit("CMMSRCS")

	// LIBXUL_LIBRARY implies static library generation and presence in
	// libxul.
	l.use("LIBXUL_LIBRARY", "FORCE_STATIC_LIB")
	if m.HasOwnVariable("LIBXUL_LIBRARY", true) || m.HasOwnVariable("FORCE_STATIC_LIB", true) {
		l.IsStatic = true
	}
	l.use("FORCE_SHARED_LIB")
	if m.HasOwnVariable("FORCE_SHARED_LIB", true) {
		l.IsShared = true
	}
	l.use("USE_STATIC_LIBS")
	if m.HasOwnVariable("USE_STATIC_LIBS", true) {
		l.UseStaticLibs = true
	}

	l.use("IS_COMPONENT")
	l.IsComponent = m.varString("IS_COMPONENT") == "1"
	l.use("EXPORT_LIBRARY")
	l.ExportLibrary = m.varString("EXPORT_LIBRARY") == "1"

	l.use("INCLUDES")
	l.Includes = splitIncludes(m.varSplit("INCLUDES"))
	l.use("LOCAL_INCLUDES")
	l.LocalIncludes = splitIncludes(m.varSplit("LOCAL_INCLUDES"))

	l.use("SHORT_LIBNAME")
	l.ShortLibName = m.varString("SHORT_LIBNAME")

	l.use("SHARED_LIBRARY_LIBS")
	l.SharedLibraryLibs = m.varSplit("SHARED_LIBRARY_LIBS")

	return l
}

func (m *MozillaMakefile) exportsInfo() *ExportsInfo {
	exports := &ExportsInfo{Derived: m.derived()}

	namespaces := make(map[string]bool)
	handle := func(namespace, filename string) {
		namespaces[namespace] = true
		exports.Exports = append(exports.Exports, ExportEntry{
			Source: filename,
			Dest:   path.Join(namespace, path.Base(filename)),
		})
	}

	exports.exclusive("EXPORTS")
	for _, export := range sortedUnique(m.varSplit("EXPORTS")) {
		handle("", export)
	}

	exports.exclusive("EXPORTS_NAMESPACES")
	for _, namespace := range m.varSplit("EXPORTS_NAMESPACES") {
		name := "EXPORTS_" + namespace
		exports.exclusive(name)
		// Duplicates exist in the wild, so collapse them.
		for _, export := range sortedUnique(m.varSplit(name)) {
			handle(namespace, export)
		}
	}

	exports.Namespaces = sortedUnique(namespaceList(namespaces))
	return exports
}

func (m *MozillaMakefile) xpidlInfo() (*XPIDLInfo, error) {
	idl := &XPIDLInfo{
		Derived:       m.derived(),
		WriteManifest: true,
		LinkTogether:  true,
	}

	idl.use("XPIDL_MODULE", "MODULE")
	switch {
	case m.HasOwnVariable("XPIDL_MODULE", true):
		idl.Module = m.varString("XPIDL_MODULE")
	case m.HasOwnVariable("MODULE", true):
		idl.Module = m.varString("MODULE")
	default:
		return nil, fmt.Errorf("%s: xpidl sources without XPIDL_MODULE or MODULE defined",
			m.Filename)
	}

	idl.use("NO_INTERFACES_MANIFEST")
	if m.HasOwnVariable("NO_INTERFACES_MANIFEST", true) {
		idl.WriteManifest = false
	}

	idl.exclusive("XPIDLSRCS")
	sources := m.varSplit("XPIDLSRCS")
	// The build rules merge SDK_XPIDLSRCS in, so it is treated the same.
	if m.HasOwnVariable("SDK_XPIDLSRCS", true) {
		idl.exclusive("SDK_XPIDLSRCS")
		sources = append(sources, m.varSplit("SDK_XPIDLSRCS")...)
	}
	idl.Sources = sortedUnique(sources)

	// No final link is needed when the typelib is already produced by a
	// lone source of the module's own name.
	if len(idl.Sources) < 2 && contains(idl.Sources, idl.Module) {
		idl.LinkTogether = false
	}
	return idl, nil
}

func (m *MozillaMakefile) testInfo() *TestInfo {
	ti := &TestInfo{Derived: m.derived()}

	ti.use("_TEST_FILES")
	ti.TestFiles = m.varSplit("_TEST_FILES")

	ti.use("XPCSHELL_TESTS")
	ti.XPCShellTestDirs = m.varSplit("XPCSHELL_TESTS")

	ti.use("_BROWSER_TEST_FILES")
	ti.BrowserTestFiles = m.varSplit("_BROWSER_TEST_FILES")

	ti.use("_CHROME_TEST_FILES")
	ti.ChromeTestFiles = m.varSplit("_CHROME_TEST_FILES")

	return ti
}

func splitDefines(values []string) []string {
	var out []string
	for _, value := range values {
		out = append(out, strings.TrimPrefix(value, "-D"))
	}
	return out
}

func splitIncludes(values []string) []string {
	var out []string
	for _, value := range values {
		out = append(out, strings.TrimPrefix(value, "-I"))
	}
	return out
}

func sortedUnique(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, value := range values {
		if !seen[value] {
			seen[value] = true
			out = append(out, value)
		}
	}
	sort.Strings(out)
	return out
}

func namespaceList(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	return names
}

func contains(values []string, wanted string) bool {
	for _, value := range values {
		if value == wanted {
			return true
		}
	}
	return false
}
