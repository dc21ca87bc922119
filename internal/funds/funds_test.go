package funds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veribond/internal/db"
	"veribond/internal/fault"
	"veribond/internal/migrate"
	"veribond/internal/repo"
)

func newBank(t *testing.T) SQLBank {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return SQLBank{
		Repo: repo.Repo{DB: conn},
		Now:  func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestTransferFromMovesFunds(t *testing.T) {
	ctx := context.Background()
	b := newBank(t)
	require.NoError(t, b.Deposit(ctx, nil, "wallet-1", 100))
	require.NoError(t, b.TransferFrom(ctx, nil, "wallet-1", Escrow, 40))
	require.NoError(t, b.Transfer(ctx, nil, "treasury:protocol", 15))

	for account, want := range map[string]int64{"wallet-1": 60, Escrow: 25, "treasury:protocol": 15} {
		got, err := b.Balance(ctx, nil, account)
		require.NoError(t, err)
		assert.Equal(t, want, got, account)
	}
	assert.ErrorIs(t, b.TransferFrom(ctx, nil, "wallet-1", Escrow, 61), fault.ErrInsufficientFunds)
}

func TestEscrowCannotBePulledOrMinted(t *testing.T) {
	ctx := context.Background()
	b := newBank(t)
	assert.ErrorIs(t, b.TransferFrom(ctx, nil, Escrow, Escrow, 10), fault.ErrInvalidInput)
	assert.ErrorIs(t, b.TransferFrom(ctx, nil, Escrow, "wallet-1", 10), fault.ErrInvalidInput)
	assert.ErrorIs(t, b.Deposit(ctx, nil, Escrow, 10), fault.ErrInvalidInput)
}
