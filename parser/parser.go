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
	"bufio"
	"fmt"
	"io"
	"strings"
)

type ParseError struct {
	Err error
	Pos Pos
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Err)
}

// Parse reads Makefile text from r and returns its statements.  Parsing
// continues past errors so that the statement list is as complete as
// possible; the returned errors are *ParseError values in source order.
func Parse(filename string, r io.Reader) ([]Statement, []error) {
	p := &parser{
		filename: filename,
		reader:   bufio.NewReader(r),
	}
	p.parse()
	return p.statements, p.errors
}

// ParseString is Parse on in-memory text.
func ParseString(filename, text string) ([]Statement, []error) {
	return Parse(filename, strings.NewReader(text))
}

type parser struct {
	filename string
	reader   *bufio.Reader
	lineNum  int
	eof      bool

	statements []Statement
	ifStack    []*ifState
	errors     []error

	// inRecipe is true after a rule or command, when tab-led lines belong
	// to the rule's recipe.  Conditional directives do not end a recipe.
	inRecipe bool
}

type ifState struct {
	block   *ConditionBlock
	sawElse bool
}

func (p *parser) errorf(pos Pos, format string, args ...interface{}) {
	p.errors = append(p.errors, &ParseError{
		Err: fmt.Errorf(format, args...),
		Pos: pos,
	})
}

func (p *parser) pos() Pos {
	return Pos{Filename: p.filename, Line: p.lineNum}
}

// out returns the statement list currently being appended to: the top level
// list, or the body of the innermost open conditional branch.
func (p *parser) out() *[]Statement {
	if len(p.ifStack) == 0 {
		return &p.statements
	}
	block := p.ifStack[len(p.ifStack)-1].block
	return &block.Branches[len(block.Branches)-1].Statements
}

func (p *parser) emit(s Statement) {
	switch s.(type) {
	case *Rule, *StaticPatternRule, *Command:
		p.inRecipe = true
	case *ConditionBlock:
		// recipe context continues through conditionals
	default:
		p.inRecipe = false
	}
	out := p.out()
	*out = append(*out, s)
}

// readLine returns the next physical line without its newline, or ok=false
// at end of input.
func (p *parser) readLine() (string, bool) {
	if p.eof {
		return "", false
	}
	line, err := p.reader.ReadString('\n')
	if err != nil {
		p.eof = true
		if line == "" {
			return "", false
		}
	}
	p.lineNum++
	return strings.TrimSuffix(line, "\n"), true
}

// endsInBackslash reports whether s ends with an odd number of backslashes,
// meaning the newline that follows it is escaped.
func endsInBackslash(s string) bool {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

// removeComment cuts s at the first unescaped "#".  "\#" is unescaped to a
// literal "#".
func removeComment(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) && s[i+1] == '#' {
				sb.WriteByte('#')
				i++
			} else {
				sb.WriteByte('\\')
			}
		case '#':
			return sb.String()
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

func (p *parser) parse() {
	for {
		line, ok := p.readLine()
		if !ok {
			break
		}
		pos := p.pos()

		if strings.HasPrefix(line, "\t") && p.inRecipe {
			p.parseRecipe(line[1:], pos)
			continue
		}

		line = removeComment(line)
		for endsInBackslash(line) {
			next, ok := p.readLine()
			if !ok {
				p.errorf(pos, "backslash at end of input")
				line = line[:len(line)-1]
				break
			}
			line = strings.TrimRight(line[:len(line)-1], " \t") +
				" " + strings.TrimLeft(removeComment(next), " \t")
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		p.parseLogicalLine(strings.TrimLeft(line, " \t"), pos)
	}

	for len(p.ifStack) > 0 {
		p.errorf(p.ifStack[len(p.ifStack)-1].block.Pos(), "missing endif")
		p.ifStack = p.ifStack[:len(p.ifStack)-1]
	}
}

// parseRecipe handles a tab-prefixed command line.  Comments are not
// stripped; "#" belongs to the shell there.  Continuations keep their
// backslash-newline so the recipe reaches the shell unchanged.
func (p *parser) parseRecipe(text string, pos Pos) {
	for endsInBackslash(text) {
		next, ok := p.readLine()
		if !ok {
			break
		}
		text += "\n" + strings.TrimPrefix(next, "\t")
	}
	p.emit(&Command{Recipe: p.parseExpansion(text, pos)})
}

var conditionKeywords = map[string]bool{
	"ifdef":  true,
	"ifndef": true,
	"ifeq":   true,
	"ifneq":  true,
}

func (p *parser) parseLogicalLine(line string, pos Pos) {
	word := line
	rest := ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		word, rest = line[:i], strings.TrimSpace(line[i+1:])
	}

	switch {
	case conditionKeywords[word]:
		p.openCondition(word, rest, pos)
		return

	case word == "else":
		p.parseElse(rest, pos)
		return

	case word == "endif":
		if len(p.ifStack) == 0 {
			p.errorf(pos, "endif without matching condition")
			return
		}
		p.ifStack[len(p.ifStack)-1].block.EndPos = pos
		p.ifStack = p.ifStack[:len(p.ifStack)-1]
		return

	case word == "endef":
		p.errorf(pos, "endef without matching define")
		return

	case word == "define":
		p.parseDefine(rest, pos)
		return

	case word == "include" || word == "-include" || word == "sinclude":
		p.emit(&Include{
			Path:     p.parseExpansion(rest, pos),
			Required: word == "include",
		})
		return

	case word == "vpath":
		p.emit(&VPath{Value: p.parseExpansion(rest, pos)})
		return

	case word == "export":
		p.emit(&Export{Value: p.parseExpansion(rest, pos)})
		return

	case word == "unexport":
		p.emit(&Unexport{Value: p.parseExpansion(rest, pos)})
		return
	}

	kind, idx, token, doubleColon := scanSeparator(line)
	switch kind {
	case scanAssign:
		p.emit(&SetVariable{
			Name:  p.parseExpansion(assignmentName(line, idx, token), pos),
			Token: token,
			Value: p.parseExpansion(strings.TrimSpace(line[idx+1:]), pos),
		})

	case scanRule:
		target := line[:idx]
		after := idx + 1
		if doubleColon {
			after++
		}
		p.parseRuleRemainder(target, line[after:], doubleColon, pos)

	default:
		if strings.HasPrefix(line, "$") {
			p.emit(&EmptyDirective{Value: p.parseExpansion(line, pos)})
			return
		}
		p.errorf(pos, "missing separator")
	}
}

// parseRuleRemainder handles everything right of a rule's first colon: a
// plain prerequisite list, a second colon making a static pattern rule, an
// assignment making a target-specific variable, or a semicolon introducing
// an inline command.
func (p *parser) parseRuleRemainder(target, rest string, doubleColon bool, pos Pos) {
	var command string
	hasCommand := false
	if i := indexOutsideParens(rest, ';'); i >= 0 {
		rest, command = rest[:i], rest[i+1:]
		hasCommand = true
	}

	kind, idx, token, _ := scanSeparator(rest)
	if kind == scanAssign {
		p.emit(&SetVariable{
			Target: p.parseExpansion(strings.TrimSpace(target), pos),
			Name:   p.parseExpansion(assignmentName(rest, idx, token), pos),
			Token:  token,
			Value:  p.parseExpansion(strings.TrimSpace(rest[idx+1:]), pos),
		})
		return
	}

	if kind == scanRule {
		p.emit(&StaticPatternRule{
			Target:        p.parseExpansion(strings.TrimSpace(target), pos),
			Pattern:       p.parseExpansion(strings.TrimSpace(rest[:idx]), pos),
			Prerequisites: p.parseExpansion(strings.TrimSpace(rest[idx+1:]), pos),
			DoubleColon:   doubleColon,
		})
	} else {
		p.emit(&Rule{
			Target:        p.parseExpansion(strings.TrimSpace(target), pos),
			Prerequisites: p.parseExpansion(strings.TrimSpace(rest), pos),
			DoubleColon:   doubleColon,
		})
	}

	if hasCommand {
		p.emit(&Command{Recipe: p.parseExpansion(strings.TrimLeft(command, " \t"), pos)})
	}
}

func (p *parser) openCondition(keyword, rest string, pos Pos) {
	cond := p.parseCondition(keyword, rest, pos)
	if cond == nil {
		return
	}
	block := &ConditionBlock{
		Branches: []*ConditionBranch{{Condition: cond}},
	}
	p.emit(block)
	p.ifStack = append(p.ifStack, &ifState{block: block})
}

func (p *parser) parseElse(rest string, pos Pos) {
	if len(p.ifStack) == 0 {
		p.errorf(pos, "else without matching condition")
		return
	}
	top := p.ifStack[len(p.ifStack)-1]
	if top.sawElse {
		p.errorf(pos, "else after final else")
		return
	}

	var cond Condition
	if rest == "" {
		cond = &ElseCondition{ElsePos: pos}
		top.sawElse = true
	} else {
		word := rest
		condRest := ""
		if i := strings.IndexAny(rest, " \t"); i >= 0 {
			word, condRest = rest[:i], strings.TrimSpace(rest[i+1:])
		}
		if !conditionKeywords[word] {
			p.errorf(pos, "invalid syntax after else: %q", rest)
			return
		}
		cond = p.parseCondition(word, condRest, pos)
		if cond == nil {
			return
		}
	}
	top.block.Branches = append(top.block.Branches, &ConditionBranch{Condition: cond})
}

func (p *parser) parseCondition(keyword, rest string, pos Pos) Condition {
	switch keyword {
	case "ifdef", "ifndef":
		if rest == "" {
			p.errorf(pos, "%s requires a variable name", keyword)
			return nil
		}
		return &IfdefCondition{
			Name:     p.parseExpansion(rest, pos),
			Expected: keyword == "ifdef",
		}
	}

	left, right, ok := splitConditionArgs(rest)
	if !ok {
		p.errorf(pos, "invalid %s condition: %q", keyword, rest)
		return nil
	}
	return &IfeqCondition{
		Left:     p.parseExpansion(left, pos),
		Right:    p.parseExpansion(right, pos),
		Expected: keyword == "ifeq",
	}
}

// splitConditionArgs breaks an ifeq/ifneq argument into its two operands.
// Both the "(a,b)" form and the quoted '"a" "b"' form are accepted.
func splitConditionArgs(s string) (left, right string, ok bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		inner := s[1 : len(s)-1]
		i := indexOutsideParens(inner, ',')
		if i < 0 {
			return "", "", false
		}
		return strings.TrimSpace(inner[:i]), strings.TrimSpace(inner[i+1:]), true
	}

	first, remainder, ok := takeQuoted(s)
	if !ok {
		return "", "", false
	}
	second, remainder, ok := takeQuoted(strings.TrimSpace(remainder))
	if !ok || strings.TrimSpace(remainder) != "" {
		return "", "", false
	}
	return first, second, true
}

func takeQuoted(s string) (value, rest string, ok bool) {
	if len(s) < 2 || (s[0] != '"' && s[0] != '\'') {
		return "", "", false
	}
	end := strings.IndexByte(s[1:], s[0])
	if end < 0 {
		return "", "", false
	}
	return s[1 : 1+end], s[2+end:], true
}

// parseDefine handles "define NAME [token]".  The body is accumulated
// verbatim until the matching endef, with nested defines counted.
func (p *parser) parseDefine(rest string, pos Pos) {
	name := strings.TrimSpace(rest)
	token := "="
	for _, t := range []string{":=", "+=", "?=", "="} {
		if strings.HasSuffix(name, t) {
			token = t
			name = strings.TrimSpace(name[:len(name)-len(t)])
			break
		}
	}
	if name == "" {
		p.errorf(pos, "define requires a variable name")
		return
	}

	var lines []string
	depth := 1
	for {
		line, ok := p.readLine()
		if !ok {
			p.errorf(pos, "define without matching endef")
			break
		}
		trimmed := strings.TrimSpace(removeComment(line))
		if trimmed == "endef" {
			depth--
			if depth == 0 {
				break
			}
		} else if strings.HasPrefix(trimmed, "define ") || trimmed == "define" {
			depth++
		}
		lines = append(lines, line)
	}

	p.emit(&SetVariable{
		Name:  SimpleExpansion(name, pos),
		Token: token,
		Value: p.parseExpansion(strings.Join(lines, "\n"), pos),
	})
}

// assignmentName extracts the variable name left of an assignment token
// found by scanSeparator at eq.  The posix "::=" spelling carries an extra
// colon that the ":=" token does not account for.
func assignmentName(line string, eq int, token string) string {
	name := line[:eq-len(token)+1]
	name = strings.TrimSuffix(strings.TrimSpace(name), ":")
	return strings.TrimSpace(name)
}

const (
	scanNone = iota
	scanAssign
	scanRule
)

// scanSeparator finds the first top level separator in a line: an assignment
// token or a rule colon.  Characters inside "$(...)" and "${...}" groups are
// skipped.  For scanAssign, idx is the position of "=" and token is one of
// "=", ":=", "+=", "?=".  For scanRule, idx is the position of ":".
func scanSeparator(s string) (kind, idx int, token string, doubleColon bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '$':
			if i+1 < len(s) && (s[i+1] == '(' || s[i+1] == '{') {
				depth++
				i++
			} else if i+1 < len(s) {
				// $$ or a single character reference.
				i++
			}
		case '(', '{':
			if depth > 0 {
				depth++
			}
		case ')', '}':
			if depth > 0 {
				depth--
			}
		case '=':
			if depth != 0 {
				continue
			}
			if i > 0 {
				switch s[i-1] {
				case '+':
					return scanAssign, i, "+=", false
				case '?':
					return scanAssign, i, "?=", false
				}
			}
			return scanAssign, i, "=", false
		case ':':
			if depth != 0 {
				continue
			}
			if i+1 < len(s) && s[i+1] == '=' {
				return scanAssign, i + 1, ":=", false
			}
			if i+1 < len(s) && s[i+1] == ':' {
				if i+2 < len(s) && s[i+2] == '=' {
					return scanAssign, i + 2, ":=", false
				}
				return scanRule, i, "", true
			}
			return scanRule, i, "", false
		}
	}
	return scanNone, -1, "", false
}

// indexOutsideParens returns the index of the first ch at paren depth zero,
// or -1.
func indexOutsideParens(s string, ch byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '$':
			if i+1 < len(s) && (s[i+1] == '(' || s[i+1] == '{') {
				depth++
				i++
			} else if i+1 < len(s) {
				i++
			}
		case '(', '{':
			if depth > 0 {
				depth++
			}
		case ')', '}':
			if depth > 0 {
				depth--
			}
		case ch:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseExpansion converts raw Makefile text into the alternating
// string/call representation.  "$$" collapses to a raw "$".
func (p *parser) parseExpansion(s string, pos Pos) *Expansion {
	e := &Expansion{StringPos: pos, Strings: []string{""}}
	i := 0
	for i < len(s) {
		d := strings.IndexByte(s[i:], '$')
		if d < 0 {
			e.appendString(s[i:])
			break
		}
		e.appendString(s[i : i+d])
		i += d
		if i+1 >= len(s) {
			e.appendString("$")
			break
		}
		switch c := s[i+1]; c {
		case '$':
			e.appendString("$")
			i += 2
		case '(', '{':
			closer := byte(')')
			if c == '{' {
				closer = '}'
			}
			end := findClosing(s, i+2, c, closer)
			if end < 0 {
				p.errorf(pos, "unterminated reference: %q", s[i:])
				e.appendString(s[i:])
				i = len(s)
				break
			}
			e.appendCall(p.parseCall(s[i+2:end], pos))
			i = end + 1
		default:
			e.appendCall(&FunctionCall{
				Kind:    CallVariableRef,
				CallPos: pos,
				VarName: SimpleExpansion(string(c), pos),
			})
			i += 2
		}
	}
	if len(e.Strings) == 0 {
		e.Strings = []string{""}
	}
	return e
}

// findClosing returns the index of the close character matching an opener
// whose content starts at "from", or -1 when unbalanced.
func findClosing(s string, from int, open, close byte) int {
	depth := 1
	for i := from; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseCall classifies the content of one "$(...)" group as a builtin
// function call, a substitution reference, or a variable reference.
func (p *parser) parseCall(content string, pos Pos) *FunctionCall {
	ws := indexOutsideParensAny(content, " \t")
	colon := indexOutsideParens(content, ':')

	if colon >= 0 && (ws < 0 || colon < ws) {
		if eq := indexOutsideParens(content[colon+1:], '='); eq >= 0 {
			return &FunctionCall{
				Kind:      CallSubstitutionRef,
				CallPos:   pos,
				VarName:   p.parseExpansion(content[:colon], pos),
				SubstFrom: p.parseExpansion(content[colon+1:colon+1+eq], pos),
				SubstTo:   p.parseExpansion(content[colon+2+eq:], pos),
			}
		}
	}

	if ws >= 0 {
		name := content[:ws]
		if IsBuiltinFunction(name) {
			return &FunctionCall{
				Kind:    CallBuiltin,
				CallPos: pos,
				Name:    name,
				Args:    p.parseArgs(name, content[ws+1:], pos),
			}
		}
	}

	return &FunctionCall{
		Kind:    CallVariableRef,
		CallPos: pos,
		VarName: p.parseExpansion(content, pos),
	}
}

// parseArgs splits a builtin's argument text on top level commas.  A
// function with fixed arity keeps commas beyond its last argument, matching
// how make feeds "$(subst a,b,c,d)" a third argument of "c,d".  Leading
// whitespace of the first argument is insignificant.
func (p *parser) parseArgs(name, s string, pos Pos) []*Expansion {
	arity := builtinFunctions[name].arity
	s = strings.TrimLeft(s, " \t")

	var parts []string
	for arity == 0 || len(parts) < arity-1 {
		i := indexOutsideParens(s, ',')
		if i < 0 {
			break
		}
		parts = append(parts, s[:i])
		s = s[i+1:]
	}
	parts = append(parts, s)

	args := make([]*Expansion, len(parts))
	for i, part := range parts {
		args[i] = p.parseExpansion(part, pos)
	}
	return args
}

// indexOutsideParensAny is indexOutsideParens over a set of characters.
func indexOutsideParensAny(s, chars string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '$':
			if i+1 < len(s) && (s[i+1] == '(' || s[i+1] == '{') {
				depth++
				i++
			} else if i+1 < len(s) {
				i++
			}
		case '(', '{':
			if depth > 0 {
				depth++
			}
		case ')', '}':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 && strings.IndexByte(chars, s[i]) >= 0 {
				return i
			}
		}
	}
	return -1
}
