// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"strconv"
	"strings"
)

// Kind is the kind of statement a query template holds.
type Kind int

const (
	Select Kind = iota
	Insert
	Update
	Delete
)

// kindPrefixes lists the recognised statement prefixes in match priority.
var kindPrefixes = []struct {
	prefix string
	kind   Kind
}{
	{"select", Select},
	{"insert", Insert},
	{"update", Update},
	{"delete", Delete},
}

func (k Kind) String() string {
	switch k {
	case Select:
		return "SELECT"
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// ScrollMode says whether the cursor of a query can be traversed more than
// once.
type ScrollMode int

const (
	ForwardOnly ScrollMode = iota
	ScrollInsensitive
)

// Options holds the per-query settings stored alongside the compiled
// template. The zero value closes statements automatically.
type Options struct {
	Scroll            ScrollMode
	ReturnUpdateCount bool
	KeepStatement     bool
}

// Parameter is a named placeholder found in a query template.
type Parameter struct {
	// Pos is the byte offset of the leading colon in the raw template.
	Pos int
	// Name is the text following the colon, possibly a dotted path such as
	// "user.name".
	Name string
}

// CompiledQuery is the immutable result of compiling a query template.
type CompiledQuery struct {
	// Raw is the template as written.
	Raw string
	// SQL is the template with every placeholder replaced by "?".
	SQL    string
	Kind   Kind
	Params []Parameter

	Scroll             ScrollMode
	ReturnUpdateCount  bool
	// AutoCloseResult is always set: database/sql releases rows once they
	// have been read to the end.
	AutoCloseResult    bool
	AutoCloseStatement bool
}

// String returns a textual representation of the compiled query meant for
// debugging purposes.
func (cq *CompiledQuery) String() string {
	var sb strings.Builder
	sb.WriteString("CompiledQuery[")
	sb.WriteString(cq.Kind.String())
	sb.WriteString(" ")
	sb.WriteString(strconv.Quote(cq.SQL))
	for _, p := range cq.Params {
		sb.WriteString(" Param[")
		sb.WriteString(p.Name)
		sb.WriteString("@")
		sb.WriteString(strconv.Itoa(p.Pos))
		sb.WriteString("]")
	}
	sb.WriteString("]")
	return sb.String()
}

// Names returns the parameter names in source order.
func (cq *CompiledQuery) Names() []string {
	names := make([]string, len(cq.Params))
	for i, p := range cq.Params {
		names[i] = p.Name
	}
	return names
}
