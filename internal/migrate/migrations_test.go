package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veribond/internal/db"
)

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	v, err := Version(ctx, conn)
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, Migrate(conn))
	first, err := Version(ctx, conn)
	require.NoError(t, err)
	assert.Positive(t, first)

	require.NoError(t, Migrate(conn))
	second, err := Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSetsAreIndependent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir(), Name: "oracle.db"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, MigrateOracle(conn))
	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name='claims'`).Scan(&n))
	assert.Zero(t, n)
}

func TestUnknownSet(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	assert.Error(t, Apply(context.Background(), conn, "nope"))
}
