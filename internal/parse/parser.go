// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrCompile is wrapped by every error returned from Compile.
var ErrCompile = errors.New("cannot compile query")

// Parser turns a query template with ":name" placeholders into a
// CompiledQuery. A Parser can be reused but is not safe for concurrent use.
type Parser struct {
	input string
	pos   int
	// nextPos is start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches the
	// end of input.
	char rune
	// prevChar is the rune scanned before char.
	prevChar rune
	// paramStart is the position of the colon opening the placeholder under
	// the parser, or -1 outside of a placeholder.
	paramStart int
	params     []Parameter
	// lineNum is the number of the current line of the input.
	lineNum int
	// lineStart is the position of the first char of the current line in the
	// input.
	lineStart int
}

func NewParser() *Parser {
	return &Parser{}
}

// Compile is a convenience wrapper around Parser.Compile.
func Compile(input string, opts Options) (*CompiledQuery, error) {
	return NewParser().Compile(input, opts)
}

// Compile detects the statement kind of input, collects its placeholders in
// first occurrence order and rewrites them to positional "?" markers.
//
// Quoted literals are not recognised: a colon inside a string literal starts
// a placeholder like any other.
func (p *Parser) Compile(input string, opts Options) (cq *CompiledQuery, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("%w: %s", ErrCompile, err)
		}
	}()

	kind, err := statementKind(input)
	if err != nil {
		return nil, err
	}

	p.init(input)
	for p.pos < len(p.input) {
		switch p.char {
		case ':':
			if p.paramStart != -1 {
				return nil, errorAt(fmt.Errorf("unexpected colon inside parameter %q", p.input[p.paramStart+1:p.pos]), p.lineNum, p.colNum(), p.input)
			}
			if p.prevChar != ':' && p.nextPos < len(p.input) && p.input[p.nextPos] != ':' {
				p.paramStart = p.pos
			}
		case ' ', ',', ')':
			if err := p.endParam(); err != nil {
				return nil, err
			}
		case utf8.RuneError:
			if p.paramStart != -1 && p.nextPos-p.pos == 1 {
				return nil, errorAt(fmt.Errorf("invalid UTF-8 in parameter name"), p.lineNum, p.colNum(), p.input)
			}
		}
		p.advanceChar()
	}
	if err := p.endParam(); err != nil {
		return nil, err
	}

	return &CompiledQuery{
		Raw:                input,
		SQL:                rewrite(input, p.params),
		Kind:               kind,
		Params:             p.params,
		Scroll:             opts.Scroll,
		ReturnUpdateCount:  opts.ReturnUpdateCount,
		AutoCloseResult:    true,
		AutoCloseStatement: !opts.KeepStatement,
	}, nil
}

// statementKind matches the start of the lower-cased, trimmed input against
// the recognised statement prefixes.
func statementKind(input string) (Kind, error) {
	s := strings.TrimSpace(strings.ToLower(input))
	for _, kp := range kindPrefixes {
		if strings.HasPrefix(s, kp.prefix) {
			return kp.kind, nil
		}
	}
	return 0, fmt.Errorf("statement must start with one of select, insert, update or delete")
}

// rewrite replaces each placeholder with "?". The replacement is shorter than
// the placeholder so the offsets of later parameters shift left by the
// accumulated difference.
func rewrite(input string, params []Parameter) string {
	s := input
	shrink := 0
	for _, param := range params {
		start := param.Pos - shrink
		end := start + len(param.Name) + 1
		s = s[:start] + "?" + s[end:]
		shrink += len(param.Name)
	}
	return s
}

// init resets the state of the parser and sets the input string.
func (p *Parser) init(input string) {
	p.input = input
	p.pos = 0
	p.nextPos = 0
	p.char = 0
	p.prevChar = 0
	p.paramStart = -1
	p.params = nil
	p.lineNum = 1
	p.lineStart = 0
	p.advanceChar()
}

// endParam records the placeholder under the parser, if any.
func (p *Parser) endParam() error {
	if p.paramStart == -1 {
		return nil
	}
	// The name is sliced from the input so that its length in bytes matches
	// the placeholder text rewrite replaces.
	name := p.input[p.paramStart+1 : p.pos]
	if name == "" {
		return errorAt(fmt.Errorf("missing parameter name"), p.lineNum, p.paramStart-p.lineStart+1, p.input)
	}
	p.params = append(p.params, Parameter{Pos: p.paramStart, Name: name})
	p.paramStart = -1
	return nil
}

// colNum calculates the current column number taking into account line breaks.
func (p *Parser) colNum() int {
	return p.pos - p.lineStart + 1
}

// advanceChar moves the parser to the next character in the input. It also
// takes care of updating the line and column numbers if it encounters line
// breaks.
func (p *Parser) advanceChar() bool {
	p.prevChar = p.char
	if p.nextPos >= len(p.input) {
		p.char = 0
		p.pos = p.nextPos
		return false
	}
	if p.char == '\n' {
		p.lineStart = p.nextPos
		p.lineNum++
	}
	var size int
	p.char, size = utf8.DecodeRuneInString(p.input[p.nextPos:])
	p.pos = p.nextPos
	p.nextPos += size
	return true
}

// errorAt wraps an error with line and column information.
func errorAt(err error, line int, column int, input string) error {
	if strings.ContainsRune(input, '\n') {
		return fmt.Errorf("line %d, column %d: %w", line, column, err)
	}
	return fmt.Errorf("column %d: %w", column, err)
}
