// Package main provides the sqlbind command, which runs SQL scripts against
// a configured database and demonstrates the library.
package main

import (
	"fmt"
	"os"

	"github.com/canonical/sqlbind/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
