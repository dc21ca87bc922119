package app

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veribond/internal/config"
	"veribond/internal/engine"
)

const hashH = "0x2222222222222222222222222222222222222222222222222222222222222222"

func TestOpenSeedsOnce(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfg := config.Default()
	cfg.Operators = []string{"root"}

	var logs bytes.Buffer
	rt, err := Open(ctx, Options{Workspace: dir, Config: cfg, LogOut: &logs})
	require.NoError(t, err)
	p, err := rt.Engine.CurrentPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, "root", p.CreatedBy)
	assert.Contains(t, logs.String(), "ledger bootstrapped")
	_, err = rt.Engine.SetMinStake(ctx, "root", 25)
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	// Reopening with a different config must not reseed.
	cfg2 := config.Default()
	cfg2.Operators = []string{"intruder"}
	rt, err = Open(ctx, Options{Workspace: dir, Config: cfg2, LogOut: &logs})
	require.NoError(t, err)
	defer rt.Close()
	p, err = rt.Engine.CurrentPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Version)
	assert.Equal(t, int64(25), p.MinStake)
	ok, err := rt.Engine.IsOperator(ctx, "intruder")
	require.NoError(t, err)
	assert.False(t, ok)
	require.Positive(t, rt.Logs.Len())
	assert.Contains(t, strings.Join(rt.Logs.Tail(rt.Logs.Len()), "\n"), "ledger already seeded")
}

func TestSimVerdictReachesLedger(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Operators = []string{"root"}
	rt, err := Open(ctx, Options{Workspace: t.TempDir(), Config: cfg, LogOut: &bytes.Buffer{}})
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Engine.SetResolver(ctx, "root", "assertion")
	require.NoError(t, err)
	_, err = rt.Engine.Deposit(ctx, "root", "asserter", 100)
	require.NoError(t, err)
	rec, err := rt.Engine.RequestResolution(ctx, engine.AssertionRequest{ClaimHash: hashH, PredictedOutcome: true, Requester: "asserter"})
	require.NoError(t, err)

	require.NoError(t, rt.Sim.Dispute(ctx, rec.AssertionID, "challenger"))
	require.NoError(t, rt.Sim.RecordVerdict(ctx, rec.AssertionID, false))

	got, err := rt.Engine.GetAssertion(ctx, hashH)
	require.NoError(t, err)
	assert.False(t, got.Pending)
	assert.False(t, got.Outcome, "untruthful verdict flips the predicted outcome")
}

func TestOpenRejectsUnreachableRedis(t *testing.T) {
	cfg := config.Default()
	cfg.Locks.Backend = "redis"
	cfg.Locks.RedisAddr = "127.0.0.1:1"
	_, err := Open(context.Background(), Options{Workspace: t.TempDir(), Config: cfg, LogOut: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis lock backend")
}
