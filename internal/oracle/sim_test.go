package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veribond/internal/db"
	"veribond/internal/fault"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestSim(t *testing.T) (*Sim, *clock) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir(), Name: "oracle.db"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	sim, err := OpenSim(conn, 10)
	require.NoError(t, err)
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	sim.Now = c.now
	return sim, c
}

func TestSimUndisputedSettlesTruthfulAfterLiveness(t *testing.T) {
	sim, c := newTestSim(t)
	ctx := context.Background()
	id, err := sim.OpenAssertion(ctx, AssertionRequest{Claim: "x | predicted outcome: YES", Asserter: "0xabc", Currency: "USDC", Bond: 10, Liveness: 300 * time.Second})
	require.NoError(t, err)
	require.Len(t, id, 66)

	_, err = sim.SettleAndGetResult(ctx, id)
	require.ErrorIs(t, err, fault.ErrLivenessNotElapsed)

	c.t = c.t.Add(300 * time.Second)
	truthful, err := sim.SettleAndGetResult(ctx, id)
	require.NoError(t, err)
	assert.True(t, truthful)

	again, err := sim.SettleAndGetResult(ctx, id)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestSimDisputePushesVerdict(t *testing.T) {
	sim, c := newTestSim(t)
	ctx := context.Background()
	var gotID string
	var gotTruthful *bool
	sim.OnResolved = func(_ context.Context, id string, truthful bool) error {
		gotID = id
		gotTruthful = &truthful
		return nil
	}
	id, err := sim.OpenAssertion(ctx, AssertionRequest{Claim: "c", Asserter: "a", Currency: "USDC", Bond: 10, Liveness: time.Minute})
	require.NoError(t, err)

	require.NoError(t, sim.Dispute(ctx, id, "challenger"))
	require.ErrorIs(t, sim.Dispute(ctx, id, "other"), fault.ErrAssertionPending)

	c.t = c.t.Add(time.Hour)
	_, err = sim.SettleAndGetResult(ctx, id)
	require.ErrorIs(t, err, fault.ErrOracleUnavailable)

	require.NoError(t, sim.RecordVerdict(ctx, id, false))
	assert.Equal(t, id, gotID)
	require.NotNil(t, gotTruthful)
	assert.False(t, *gotTruthful)

	truthful, err := sim.SettleAndGetResult(ctx, id)
	require.NoError(t, err)
	assert.False(t, truthful)
	require.ErrorIs(t, sim.RecordVerdict(ctx, id, true), fault.ErrAssertionSettled)
}

func TestSimRejectsLowBondAndLateDispute(t *testing.T) {
	sim, c := newTestSim(t)
	ctx := context.Background()
	sim.BondByAsset = map[string]int64{"WETH": 50}

	_, err := sim.OpenAssertion(ctx, AssertionRequest{Claim: "c", Asserter: "a", Currency: "WETH", Bond: 10, Liveness: time.Minute})
	require.ErrorIs(t, err, fault.ErrInvalidInput)

	id, err := sim.OpenAssertion(ctx, AssertionRequest{Claim: "c", Asserter: "a", Currency: "USDC", Bond: 10, Liveness: time.Minute})
	require.NoError(t, err)
	c.t = c.t.Add(time.Minute)
	require.ErrorIs(t, sim.Dispute(ctx, id, "late"), fault.ErrInvalidInput)

	_, err = sim.Get(ctx, "0xmissing")
	require.ErrorIs(t, err, ErrUnknownAssertion)
}
