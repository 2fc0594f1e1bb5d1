package sqlbind

import (
	"slices"
)

const TrackedDriverName = "sqlite3_stmtTracked"

// TrackedDSN returns the DSN of a private in-memory database whose
// statements are tracked under testName.
func TrackedDSN(testName string) string {
	return ":memory:?" + TestNameTag + "=" + testName
}

// Statements returns the queries of the statements prepared and closed on
// connections opened for testName.
func Statements(testName string) (opened, closed []string) {
	stmtRegistryMutex.RLock()
	defer stmtRegistryMutex.RUnlock()
	return slices.Clone(openedStmts[testName]), slices.Clone(closedStmts[testName])
}

func (h *Handle) KeptStatements() int {
	return len(h.stmts.stmts)
}

func (cfg Config) DataSource() string {
	return cfg.dataSource()
}
