package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	assert.Contains(t, names, "migrations/0001_orders.up.sql")
	assert.Contains(t, names, "migrations/0001_orders.down.sql")

	up, err := fs.ReadFile(migrationsFS, "migrations/0001_orders.up.sql")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(up), "orders_items_immutable"), "items must be guarded against updates")
}
