package parse

import "strings"

// SplitScript splits a script of semicolon separated statements into
// single-line statements. Empty statements are dropped.
func SplitScript(script string) []string {
	var stmts []string
	for _, chunk := range strings.Split(script, ";") {
		chunk = strings.TrimSpace(strings.ReplaceAll(chunk, "\n", " "))
		if chunk == "" {
			continue
		}
		stmts = append(stmts, chunk)
	}
	return stmts
}
