package dqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/canonical/go-dqlite/client"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/sqlbind"
)

func TestLogFunc(t *testing.T) {
	var buf bytes.Buffer
	log := logFunc(zerolog.New(&buf).Level(zerolog.DebugLevel))

	log(client.LogDebug, "connected to %s", "node1")
	log(client.LogInfo, "leader is %s", "node2")
	log(client.LogWarn, "retry %d", 2)
	log(client.LogError, "gave up")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	expected := []struct{ level, message string }{
		{"debug", "connected to node1"},
		{"info", "leader is node2"},
		{"warn", "retry 2"},
		{"error", "gave up"},
	}
	for i, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, expected[i].level, entry["level"])
		assert.Equal(t, expected[i].message, entry["message"])
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	name := fmt.Sprintf("dqlite_test_%d", time.Now().UnixNano())

	err := Register(ctx, name, []string{"127.0.0.1:9001"}, zerolog.Nop())
	require.NoError(t, err)
	d, ok := sqlbind.DialectFor(name)
	require.True(t, ok)
	assert.Equal(t, sqlbind.Dqlite, d)

	// Opening does not contact the cluster.
	sqldb, err := sql.Open(name, "app.db")
	require.NoError(t, err)
	defer sqldb.Close()
	assert.Equal(t, sqlbind.Dqlite, sqlbind.NewDB(sqldb).Dialect())

	err = Register(ctx, name, []string{"127.0.0.1:9001"}, zerolog.Nop())
	assert.ErrorContains(t, err, "already registered")
}

func TestRegisterNoAddresses(t *testing.T) {
	err := Register(context.Background(), "dqlite_test_empty", nil, zerolog.Nop())
	assert.EqualError(t, err, "cannot register dqlite driver: no node addresses")
}
