// Copyright 2014 Google Inc. All rights reserved.
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

// Print converts statements back to Makefile text.  The output is
// canonical, not byte identical to the input: comments are gone,
// continuations are joined, and rules are set off by blank lines.  Printing
// the result of parsing the output reproduces the output exactly.
func Print(statements []Statement) string {
	lines := Lines(statements)
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Lines converts statements to Makefile lines, without trailing newlines.
func Lines(statements []Statement) []string {
	var lines []string
	for _, s := range statements {
		switch s.(type) {
		case *Rule, *StaticPatternRule:
			if n := len(lines); n > 0 && lines[n-1] != "" {
				lines = append(lines, "")
			}
		}
		lines = append(lines, StatementLines(s)...)
	}
	return lines
}

// StatementLines converts a single statement to Makefile lines.
func StatementLines(s Statement) []string {
	switch s := s.(type) {
	case *Rule:
		return []string{ruleLine(s.Target, nil, s.Prerequisites, s.Separator())}

	case *StaticPatternRule:
		return []string{ruleLine(s.Target, s.Pattern, s.Prerequisites, s.Separator())}

	case *Command:
		// The recipe reaches the shell, where "$" must be written "$$"
		// and every physical line needs its tab back.
		return []string{"\t" + strings.Replace(s.Recipe.EscapedDump(), "\n", "\n\t", -1)}

	case *SetVariable:
		return setVariableLines(s)

	case *Include:
		keyword := "include"
		if !s.Required {
			keyword = "-include"
		}
		return []string{keyword + " " + s.Path.EscapedDump()}

	case *VPath:
		return []string{"vpath " + s.Value.EscapedDump()}

	case *Export:
		return []string{"export " + s.Value.EscapedDump()}

	case *Unexport:
		return []string{"unexport " + s.Value.EscapedDump()}

	case *EmptyDirective:
		return []string{s.Value.EscapedDump()}

	case *ConditionBlock:
		var lines []string
		for i, branch := range s.Branches {
			lines = append(lines, ConditionLine(branch.Condition, i > 0))
			for _, child := range branch.Statements {
				lines = append(lines, StatementLines(child)...)
			}
		}
		return append(lines, "endif")

	default:
		panic(&UnsupportedError{Construct: fmt.Sprintf("statement type %T", s)})
	}
}

// ConditionLine renders one condition heading.  chained marks branches
// after the first, which carry an "else" prefix.
func ConditionLine(c Condition, chained bool) string {
	var line string
	switch c := c.(type) {
	case *IfdefCondition:
		keyword := "ifdef"
		if !c.Expected {
			keyword = "ifndef"
		}
		line = keyword + " " + c.Name.EscapedDump()
	case *IfeqCondition:
		keyword := "ifeq"
		if !c.Expected {
			keyword = "ifneq"
		}
		line = fmt.Sprintf("%s (%s,%s)", keyword, c.Left.EscapedDump(), c.Right.EscapedDump())
	case *ElseCondition:
		return "else"
	default:
		panic(&UnsupportedError{Construct: fmt.Sprintf("condition type %T", c)})
	}
	if chained {
		return "else " + line
	}
	return line
}

func ruleLine(target, pattern, prerequisites *Expansion, separator string) string {
	var sb strings.Builder
	sb.WriteString(target.EscapedDump())
	sb.WriteString(separator)
	if pattern != nil {
		sb.WriteString(" ")
		sb.WriteString(pattern.EscapedDump())
		sb.WriteString(":")
	}
	if prereqs := prerequisites.EscapedDump(); prereqs != "" {
		sb.WriteString(" ")
		sb.WriteString(prereqs)
	}
	return sb.String()
}

func setVariableLines(s *SetVariable) []string {
	value := strings.Replace(s.Value.EscapedDump(), "#", "\\#", -1)

	if strings.Contains(value, "\n") {
		lines := []string{"define " + s.Name.EscapedDump()}
		lines = append(lines, strings.Split(value, "\n")...)
		return append(lines, "endef")
	}

	var sb strings.Builder
	if s.Target != nil {
		sb.WriteString(s.Target.EscapedDump())
		sb.WriteString(": ")
	}
	sb.WriteString(s.Name.EscapedDump())
	sb.WriteString(" ")
	sb.WriteString(s.Token)
	if value != "" {
		sb.WriteString(" ")
		sb.WriteString(value)
	}
	return []string{sb.String()}
}
