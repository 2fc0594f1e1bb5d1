// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Placeholder is the positional marker style a driver expects.
type Placeholder int

const (
	// Question leaves "?" markers untouched.
	Question Placeholder = iota
	// Dollar numbers markers as $1, $2, ...
	Dollar
)

// Rebind rewrites the "?" markers of query in the given style. Markers
// inside quoted strings, quoted identifiers, dollar quoted strings and
// comments are left alone.
func Rebind(query string, style Placeholder) string {
	if style == Question || !strings.Contains(query, "?") {
		return query
	}
	out := make([]byte, 0, len(query)+16)
	i, arg := 0, 1
	for i < len(query) {
		r, w := utf8.DecodeRuneInString(query[i:])
		j := -1
		switch r {
		case '\'', '"', '`':
			j = skipQuoted(query, i+w, byte(r))
		case '-':
			if strings.HasPrefix(query[i:], "--") {
				j = skipLineComment(query, i+2)
			}
		case '/':
			if strings.HasPrefix(query[i:], "/*") {
				j = skipBlockComment(query, i+2)
			}
		case '$':
			j = skipDollarQuoted(query, i)
		case '?':
			out = append(out, '$')
			out = strconv.AppendInt(out, int64(arg), 10)
			arg++
			i += w
			continue
		}
		if j > i {
			out = append(out, query[i:j]...)
			i = j
			continue
		}
		out = append(out, query[i:i+w]...)
		i += w
	}
	return string(out)
}

// skipQuoted returns the position after the closing quote. A doubled quote
// is an escaped quote. An unterminated literal runs to the end of s.
func skipQuoted(s string, i int, quote byte) int {
	for i < len(s) {
		c := s[i]
		i++
		if c == quote {
			if i < len(s) && s[i] == quote {
				i++
				continue
			}
			return i
		}
	}
	return len(s)
}

func skipLineComment(s string, i int) int {
	for i < len(s) {
		if s[i] == '\n' {
			return i + 1
		}
		i++
	}
	return i
}

func skipBlockComment(s string, i int) int {
	if end := strings.Index(s[i:], "*/"); end >= 0 {
		return i + end + 2
	}
	return len(s)
}

// skipDollarQuoted handles $$...$$ and $tag$...$tag$. It returns -1 when s
// has no dollar quote at i.
func skipDollarQuoted(s string, i int) int {
	j := i + 1
	for j < len(s) && s[j] != '$' && isTagChar(rune(s[j])) {
		j++
	}
	if j >= len(s) || s[j] != '$' {
		return -1
	}
	tag := s[i : j+1]
	k := j + 1
	if end := strings.Index(s[k:], tag); end >= 0 {
		return k + end + len(tag)
	}
	return len(s)
}

func isTagChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
