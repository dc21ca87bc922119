package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veribond/internal/config"
	"veribond/internal/db"
	"veribond/internal/domain"
	"veribond/internal/engine"
	"veribond/internal/fault"
	"veribond/internal/funds"
	"veribond/internal/lock"
	"veribond/internal/metrics"
	"veribond/internal/migrate"
	"veribond/internal/oracle"
	"veribond/internal/repo"
)

const (
	operator = "op-1"
	agent    = "agent-1"
	wallet   = "wallet-1"
	hashA    = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB    = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	hashC    = "0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
)

type stubOracle struct {
	mu       sync.Mutex
	bond     int64
	truthful bool
	n        int
}

func (o *stubOracle) MinimumBond(context.Context, string) (int64, error) { return o.bond, nil }

func (o *stubOracle) OpenAssertion(_ context.Context, req oracle.AssertionRequest) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.n++
	return fmt.Sprintf("0xassertion%d", o.n), nil
}

func (o *stubOracle) SettleAndGetResult(context.Context, string) (bool, error) {
	return o.truthful, nil
}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Oracle *stubOracle
	now    time.Time
	mu     sync.Mutex
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	env := &testEnv{
		Ctx:    context.Background(),
		Oracle: &stubOracle{bond: 5, truthful: true},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg := config.Default()
	env.Engine = engine.New(conn, cfg, env.Oracle, lock.NewLocal()).WithClock(env.clock)

	seeded, err := env.Engine.Bootstrap(env.Ctx, cfg.Policy, []string{operator}, operator)
	require.NoError(t, err)
	require.True(t, seeded)

	require.NoError(t, env.Engine.BindWallet(env.Ctx, operator, agent, wallet))
	_, err = env.Engine.Deposit(env.Ctx, operator, wallet, 1000)
	require.NoError(t, err)
	return env
}

func (e *testEnv) submit(t *testing.T, hash string, stake int64, predicted bool) domain.Claim {
	t.Helper()
	c, err := e.Engine.Submit(e.Ctx, engine.SubmitRequest{
		AgentID:          agent,
		ClaimHash:        hash,
		Stake:            stake,
		PredictedOutcome: predicted,
		ResolvesAt:       e.clock().Add(time.Hour),
		Submitter:        wallet,
	})
	require.NoError(t, err)
	return c
}

func (e *testEnv) balance(t *testing.T, account string) int64 {
	t.Helper()
	b, err := e.Engine.Balance(e.Ctx, account)
	require.NoError(t, err)
	return b
}

func (e *testEnv) requireBalanced(t *testing.T) {
	t.Helper()
	r, err := e.Engine.Audit(e.Ctx)
	require.NoError(t, err)
	require.True(t, r.Balanced, "escrow %d, open stake %d, reserves %d", r.Escrow, r.OpenStake, r.Reserves)
}

func TestBootstrapRunsOnce(t *testing.T) {
	env := newTestEnv(t)
	seeded, err := env.Engine.Bootstrap(env.Ctx, config.Default().Policy, []string{"someone-else"}, "someone-else")
	require.NoError(t, err)
	assert.False(t, seeded)
	ok, err := env.Engine.IsOperator(env.Ctx, "someone-else")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubmitEscrowsStake(t *testing.T) {
	env := newTestEnv(t)
	before := testutil.ToFloat64(metrics.ClaimsSubmitted)

	c := env.submit(t, hashA, 100, true)
	assert.Equal(t, domain.ClaimSubmitted, c.State)
	assert.Equal(t, engine.ClaimID(agent, hashA, env.clock(), wallet), c.ID)
	assert.Equal(t, int64(900), env.balance(t, wallet))
	assert.Equal(t, int64(100), env.balance(t, funds.Escrow))

	correct, total, err := env.Engine.AgentAccuracy(env.Ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, int64(0), correct)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ClaimsSubmitted))
	env.requireBalanced(t)
}

func TestSubmitRejections(t *testing.T) {
	env := newTestEnv(t)
	base := engine.SubmitRequest{
		AgentID:          agent,
		ClaimHash:        hashA,
		Stake:            100,
		PredictedOutcome: true,
		ResolvesAt:       env.clock().Add(time.Hour),
		Submitter:        wallet,
	}
	tests := []struct {
		name   string
		mutate func(r *engine.SubmitRequest)
		want   error
	}{
		{name: "stake below minimum", mutate: func(r *engine.SubmitRequest) { r.Stake = 9 }, want: fault.ErrStakeTooLow},
		{name: "resolves now", mutate: func(r *engine.SubmitRequest) { r.ResolvesAt = env.clock() }, want: fault.ErrInvalidResolutionTime},
		{name: "resolves in past", mutate: func(r *engine.SubmitRequest) { r.ResolvesAt = env.clock().Add(-time.Minute) }, want: fault.ErrInvalidResolutionTime},
		{name: "foreign wallet", mutate: func(r *engine.SubmitRequest) { r.Submitter = "mallory" }, want: fault.ErrUnauthorizedWallet},
		{name: "unbound agent", mutate: func(r *engine.SubmitRequest) { r.AgentID = "agent-unbound" }, want: fault.ErrUnauthorizedWallet},
		{name: "bad hash", mutate: func(r *engine.SubmitRequest) { r.ClaimHash = "0x1234" }, want: fault.ErrInvalidInput},
		{name: "blank agent", mutate: func(r *engine.SubmitRequest) { r.AgentID = "" }, want: fault.ErrInvalidInput},
		{name: "stake over balance", mutate: func(r *engine.SubmitRequest) { r.Stake = 5000 }, want: fault.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := env.Engine.Submit(env.Ctx, req)
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, int64(1000), env.balance(t, wallet))
	claims, err := env.Engine.ListClaims(env.Ctx, repo.ClaimFilters{})
	require.NoError(t, err)
	assert.Empty(t, claims)
	env.requireBalanced(t)
}

func TestSubmitDuplicateTupleRejected(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, hashA, 100, true)
	_, err := env.Engine.Submit(env.Ctx, engine.SubmitRequest{
		AgentID:          agent,
		ClaimHash:        hashA,
		Stake:            100,
		PredictedOutcome: false,
		ResolvesAt:       env.clock().Add(2 * time.Hour),
		Submitter:        wallet,
	})
	require.ErrorIs(t, err, fault.ErrDuplicateClaim)
	assert.Equal(t, int64(900), env.balance(t, wallet))

	// Same content one second later is a distinct claim.
	env.advance(time.Second)
	env.submit(t, hashA, 100, true)
	assert.Equal(t, int64(800), env.balance(t, wallet))
}

func TestIncorrectClaimIsSlashed(t *testing.T) {
	env := newTestEnv(t)
	c := env.submit(t, hashA, 100, true)
	_, err := env.Engine.SetOutcome(env.Ctx, operator, hashA, false)
	require.NoError(t, err)
	env.advance(time.Hour)

	res, err := env.Engine.Resolve(env.Ctx, c.ID, "keeper")
	require.NoError(t, err)
	s := res.Settlement
	assert.False(t, s.Correct)
	assert.Equal(t, int64(50), s.ReturnAmount)
	assert.Equal(t, int64(50), s.SlashAmount)
	assert.Equal(t, int64(25), s.RewardShare)
	assert.Equal(t, int64(25), s.ProtocolShare)
	assert.Equal(t, int64(0), s.MarketShare)
	assert.Equal(t, int64(1), s.PolicyVersion)

	assert.Equal(t, int64(950), env.balance(t, wallet))
	assert.Equal(t, int64(25), env.balance(t, "treasury:protocol"))
	a, err := env.Engine.GetAgent(env.Ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, int64(25), a.RewardReserve)
	assert.Equal(t, int64(50), a.TotalSlashed)
	assert.Equal(t, int64(0), a.CorrectCount)
	assert.Equal(t, int64(1), a.TotalCount)

	got, err := env.Engine.GetClaim(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimResolved, got.State)
	require.NotNil(t, got.WasCorrect)
	assert.False(t, *got.WasCorrect)
	env.requireBalanced(t)
}

func TestCorrectClaimEarnsBonusFromReserve(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Deposit(env.Ctx, operator, "sponsor", 30)
	require.NoError(t, err)
	_, err = env.Engine.FundReserve(env.Ctx, agent, "sponsor", 30)
	require.NoError(t, err)

	c := env.submit(t, hashB, 200, true)
	_, err = env.Engine.SetOutcome(env.Ctx, operator, hashB, true)
	require.NoError(t, err)
	env.advance(time.Hour)

	res, err := env.Engine.Resolve(env.Ctx, c.ID, "keeper")
	require.NoError(t, err)
	assert.True(t, res.Settlement.Correct)
	assert.Equal(t, int64(200), res.Settlement.ReturnAmount)
	assert.Equal(t, int64(10), res.Settlement.BonusAmount)
	assert.Equal(t, int64(1010), env.balance(t, wallet))

	a, err := env.Engine.GetAgent(env.Ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, int64(20), a.RewardReserve)
	assert.Equal(t, int64(10), a.TotalBonusPaid)
	correct, total, err := env.Engine.AgentAccuracy(env.Ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), correct)
	assert.Equal(t, int64(1), total)
	env.requireBalanced(t)
}

func TestResolveBeforeDueIsNotEligible(t *testing.T) {
	env := newTestEnv(t)
	c := env.submit(t, hashA, 100, true)
	_, err := env.Engine.SetOutcome(env.Ctx, operator, hashA, true)
	require.NoError(t, err)
	env.advance(time.Hour - time.Second)

	_, err = env.Engine.Resolve(env.Ctx, c.ID, "keeper")
	require.ErrorIs(t, err, fault.ErrNotYetEligible)
	assert.True(t, fault.IsRetryable(err))

	env.advance(time.Second)
	_, err = env.Engine.Resolve(env.Ctx, c.ID, "keeper")
	require.NoError(t, err)
}

func TestResolveWithoutOutcomeIsNotEligible(t *testing.T) {
	env := newTestEnv(t)
	c := env.submit(t, hashA, 100, true)
	env.advance(2 * time.Hour)
	_, err := env.Engine.Resolve(env.Ctx, c.ID, "keeper")
	require.ErrorIs(t, err, fault.ErrNotYetEligible)
	got, err := env.Engine.GetClaim(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimSubmitted, got.State)
}

func TestResolveIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	c := env.submit(t, hashA, 100, true)
	_, err := env.Engine.SetOutcome(env.Ctx, operator, hashA, true)
	require.NoError(t, err)
	env.advance(time.Hour)
	_, err = env.Engine.Resolve(env.Ctx, c.ID, "keeper")
	require.NoError(t, err)

	// A changed outcome cannot reopen a resolved claim.
	_, err = env.Engine.SetOutcome(env.Ctx, operator, hashA, false)
	require.NoError(t, err)
	_, err = env.Engine.Resolve(env.Ctx, c.ID, "keeper")
	require.ErrorIs(t, err, fault.ErrAlreadyResolved)
	assert.Equal(t, int64(1000), env.balance(t, wallet))

	_, err = env.Engine.Resolve(env.Ctx, "0xmissing", "keeper")
	require.ErrorIs(t, err, fault.ErrClaimNotFound)
}

func TestConcurrentResolveSettlesOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.submit(t, hashA, 100, true)
	_, err := env.Engine.SetOutcome(env.Ctx, operator, hashA, false)
	require.NoError(t, err)
	env.advance(time.Hour)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.Resolve(env.Ctx, c.ID, fmt.Sprintf("keeper-%d", i))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, fault.ErrAlreadyResolved)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(950), env.balance(t, wallet))
	env.requireBalanced(t)
}

func TestResolveDueProcessesReadyClaims(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t, hashA, 100, true)
	b := env.submit(t, hashB, 100, true)
	c := env.submit(t, hashC, 100, true)
	_, err := env.Engine.SetOutcome(env.Ctx, operator, hashA, true)
	require.NoError(t, err)
	_, err = env.Engine.SetOutcome(env.Ctx, operator, hashB, false)
	require.NoError(t, err)
	env.advance(time.Hour)

	results, err := env.Engine.ResolveDue(env.Ctx, 10, 2, "keeper")
	require.NoError(t, err)
	byID := map[string]engine.DueResult{}
	for _, r := range results {
		byID[r.ClaimID] = r
	}
	require.Len(t, byID, 3)
	assert.Equal(t, "resolved", byID[a.ID].Status)
	assert.Equal(t, "resolved", byID[b.ID].Status)
	assert.Equal(t, "skipped", byID[c.ID].Status)
	require.NotNil(t, byID[a.ID].Correct)
	assert.True(t, *byID[a.ID].Correct)
	assert.False(t, *byID[b.ID].Correct)
	env.requireBalanced(t)
}

func TestPolicyUpdatesAreVersioned(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.SetMinStake(env.Ctx, operator, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Version)
	assert.Equal(t, int64(20), p.MinStake)
	assert.Equal(t, operator, p.CreatedBy)

	p, err = env.Engine.SetSlashSplit(env.Ctx, operator, domain.SlashSplit{RewardBps: 2000, ProtocolBps: 3000, MarketBps: 5000})
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Version)
	assert.Equal(t, int64(20), p.MinStake)

	history, err := env.Engine.PolicyHistory(env.Ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)

	_, err = env.Engine.Submit(env.Ctx, engine.SubmitRequest{
		AgentID: agent, ClaimHash: hashA, Stake: 15, PredictedOutcome: true,
		ResolvesAt: env.clock().Add(time.Hour), Submitter: wallet,
	})
	require.ErrorIs(t, err, fault.ErrStakeTooLow)
}

func TestSettlementUsesLivePolicy(t *testing.T) {
	env := newTestEnv(t)
	c := env.submit(t, hashA, 100, true)
	_, err := env.Engine.SetTreasuries(env.Ctx, operator, "treasury:protocol", "treasury:market")
	require.NoError(t, err)
	_, err = env.Engine.SetSlashSplit(env.Ctx, operator, domain.SlashSplit{RewardBps: 2000, ProtocolBps: 3000, MarketBps: 5000})
	require.NoError(t, err)
	_, err = env.Engine.SetOutcome(env.Ctx, operator, hashA, false)
	require.NoError(t, err)
	env.advance(time.Hour)

	res, err := env.Engine.Resolve(env.Ctx, c.ID, "keeper")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Settlement.PolicyVersion)
	assert.Equal(t, int64(10), res.Settlement.RewardShare)
	assert.Equal(t, int64(15), res.Settlement.ProtocolShare)
	assert.Equal(t, int64(25), res.Settlement.MarketShare)
	assert.Equal(t, int64(25), env.balance(t, "treasury:market"))
	env.requireBalanced(t)
}

func TestPolicyUpdateRejections(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetMinStake(env.Ctx, "stranger", 1)
	require.ErrorIs(t, err, fault.ErrForbidden)

	_, err = env.Engine.SetSlashSplit(env.Ctx, operator, domain.SlashSplit{RewardBps: 5000, ProtocolBps: 4000})
	require.ErrorIs(t, err, fault.ErrInvalidPolicy)

	_, err = env.Engine.SetSlashFraction(env.Ctx, operator, 101)
	require.ErrorIs(t, err, fault.ErrInvalidPolicy)

	_, err = env.Engine.SetResolver(env.Ctx, operator, "coin-flip")
	require.ErrorIs(t, err, fault.ErrInvalidPolicy)

	p, err := env.Engine.CurrentPolicy(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Version)
}

func TestOutcomeRequiresOperator(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetOutcome(env.Ctx, "stranger", hashA, true)
	require.ErrorIs(t, err, fault.ErrForbidden)
	_, err = env.Engine.SetOutcome(env.Ctx, operator, "not-a-hash", true)
	require.ErrorIs(t, err, fault.ErrInvalidInput)
}

func TestAssertionResolverFlow(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetResolver(env.Ctx, operator, "assertion")
	require.NoError(t, err)
	c := env.submit(t, hashA, 100, true)

	req := engine.AssertionRequest{ClaimHash: hashA, PredictedOutcome: true, Requester: wallet}
	rec, err := env.Engine.RequestResolution(env.Ctx, req)
	require.NoError(t, err)
	assert.True(t, rec.Pending)
	assert.Equal(t, int64(5), rec.Bond)
	assert.Equal(t, int64(5), env.balance(t, "oracle:bond"))

	_, err = env.Engine.RequestResolution(env.Ctx, req)
	require.ErrorIs(t, err, fault.ErrAssertionPending)

	env.advance(time.Hour)
	_, err = env.Engine.Resolve(env.Ctx, c.ID, "keeper")
	require.ErrorIs(t, err, fault.ErrNotYetEligible)

	env.Oracle.truthful = false
	settled, err := env.Engine.SettleAssertion(env.Ctx, hashA, "keeper")
	require.NoError(t, err)
	assert.False(t, settled.Pending)
	assert.False(t, settled.Outcome)

	res, err := env.Engine.Resolve(env.Ctx, c.ID, "keeper")
	require.NoError(t, err)
	assert.False(t, res.Settlement.Correct)
	assert.False(t, res.Settlement.Outcome)
	env.requireBalanced(t)
}

func TestAssertionSettledThroughSimDispute(t *testing.T) {
	env := newTestEnv(t)
	simDB, err := db.Open(db.Config{Workspace: t.TempDir(), Name: "oracle.db"})
	require.NoError(t, err)
	t.Cleanup(func() { simDB.Close() })
	sim, err := oracle.OpenSim(simDB, 5)
	require.NoError(t, err)
	sim.Now = env.clock
	eng := env.Engine
	eng.Assertions.Oracle = sim
	eng = eng.WithClock(env.clock)
	sim.OnResolved = func(ctx context.Context, id string, truthful bool) error {
		_, err := eng.AssertionResolved(ctx, id, truthful, "oracle")
		return err
	}
	_, err = eng.SetResolver(env.Ctx, operator, "assertion")
	require.NoError(t, err)

	rec, err := eng.RequestResolution(env.Ctx, engine.AssertionRequest{ClaimHash: hashB, PredictedOutcome: true, Requester: wallet})
	require.NoError(t, err)
	require.NoError(t, sim.Dispute(env.Ctx, rec.AssertionID, "challenger"))

	_, err = eng.SettleAssertion(env.Ctx, hashB, "keeper")
	require.Error(t, err)

	require.NoError(t, sim.RecordVerdict(env.Ctx, rec.AssertionID, true))
	got, err := eng.GetAssertion(env.Ctx, hashB)
	require.NoError(t, err)
	assert.False(t, got.Pending)
	assert.True(t, got.Outcome)

	_, err = eng.AssertionResolved(env.Ctx, rec.AssertionID, false, "oracle")
	require.ErrorIs(t, err, fault.ErrAssertionSettled)
	_, err = eng.AssertionResolved(env.Ctx, "0xnope", true, "oracle")
	require.ErrorIs(t, err, fault.ErrAssertionNotFound)
}

func TestOperatorsAndKeys(t *testing.T) {
	env := newTestEnv(t)
	require.ErrorIs(t, env.Engine.GrantOperator(env.Ctx, "stranger", "stranger"), fault.ErrForbidden)
	err := env.Engine.RevokeOperator(env.Ctx, operator, operator)
	require.ErrorIs(t, err, fault.ErrInvalidInput)

	require.NoError(t, env.Engine.GrantOperator(env.Ctx, operator, "op-2"))
	ops, err := env.Engine.ListOperators(env.Ctx)
	require.NoError(t, err)
	assert.Len(t, ops, 2)
	require.NoError(t, env.Engine.RevokeOperator(env.Ctx, "op-2", operator))
	ok, err := env.Engine.IsOperator(env.Ctx, operator)
	require.NoError(t, err)
	assert.False(t, ok)

	key, secret, err := env.Engine.CreateAPIKey(env.Ctx, "alice", "", "laptop")
	require.NoError(t, err)
	assert.Equal(t, "alice", key.ActorID)
	assert.Equal(t, repo.HashAPIKey(secret), key.KeyHash)
	_, _, err = env.Engine.CreateAPIKey(env.Ctx, "alice", "bob", "")
	require.ErrorIs(t, err, fault.ErrForbidden)

	require.ErrorIs(t, env.Engine.RevokeAPIKey(env.Ctx, "bob", key.ID), fault.ErrForbidden)
	require.NoError(t, env.Engine.RevokeAPIKey(env.Ctx, "alice", key.ID))
	keys, err := env.Engine.ListAPIKeys(env.Ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestEventsRecordLifecycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.submit(t, hashA, 100, true)
	_, err := env.Engine.SetOutcome(env.Ctx, operator, hashA, true)
	require.NoError(t, err)
	env.advance(time.Hour)
	_, err = env.Engine.Resolve(env.Ctx, c.ID, "keeper")
	require.NoError(t, err)

	evts, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{EntityKind: "claim", EntityID: c.ID})
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "claim.resolved", evts[0].Type)
	assert.Equal(t, "claim.submitted", evts[1].Type)
}

func TestDepositRules(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Deposit(env.Ctx, operator, funds.Escrow, 10)
	require.ErrorIs(t, err, fault.ErrInvalidInput)
	_, err = env.Engine.Deposit(env.Ctx, "stranger", "x", 10)
	require.True(t, errors.Is(err, fault.ErrForbidden))
	_, err = env.Engine.FundReserve(env.Ctx, agent, "broke", 10)
	require.ErrorIs(t, err, fault.ErrInsufficientFunds)
}

func TestEscrowIsNeverAnExternalAccount(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, hashA, 100, true)

	err := env.Engine.BindWallet(env.Ctx, operator, "agent-x", funds.Escrow)
	assert.ErrorIs(t, err, fault.ErrInvalidInput)

	_, err = env.Engine.FundReserve(env.Ctx, agent, funds.Escrow, 50)
	assert.ErrorIs(t, err, fault.ErrInvalidInput)

	_, err = env.Engine.Submit(env.Ctx, engine.SubmitRequest{
		AgentID:    agent,
		ClaimHash:  hashB,
		Stake:      100,
		ResolvesAt: env.clock().Add(time.Hour),
		Submitter:  funds.Escrow,
	})
	assert.ErrorIs(t, err, fault.ErrInvalidInput)

	_, err = env.Engine.SetTreasuries(env.Ctx, operator, funds.Escrow, "")
	assert.ErrorIs(t, err, fault.ErrInvalidPolicy)
	_, err = env.Engine.SetTreasuries(env.Ctx, operator, "treasury:protocol", funds.Escrow)
	assert.ErrorIs(t, err, fault.ErrInvalidPolicy)

	p, err := env.Engine.CurrentPolicy(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, int64(100), env.balance(t, funds.Escrow))
	env.requireBalanced(t)
}

func TestSubmitComparesResolutionTimeExactly(t *testing.T) {
	env := newTestEnv(t)
	env.advance(250 * time.Millisecond)
	req := engine.SubmitRequest{
		AgentID:    agent,
		ClaimHash:  hashA,
		Stake:      100,
		ResolvesAt: env.clock(),
		Submitter:  wallet,
	}
	_, err := env.Engine.Submit(env.Ctx, req)
	require.ErrorIs(t, err, fault.ErrInvalidResolutionTime)

	req.ResolvesAt = env.clock().Add(500 * time.Millisecond)
	c, err := env.Engine.Submit(env.Ctx, req)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC), c.ResolvesAt)
	assert.True(t, c.ResolvesAt.After(c.SubmittedAt))
}

func TestSettleExpiredAssertionsReportsByClaimHash(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetResolver(env.Ctx, operator, "assertion")
	require.NoError(t, err)
	env.submit(t, hashA, 100, true)
	rec, err := env.Engine.RequestResolution(env.Ctx, engine.AssertionRequest{ClaimHash: hashA, PredictedOutcome: true, Requester: wallet})
	require.NoError(t, err)

	results, err := env.Engine.SettleExpiredAssertions(env.Ctx, 10, "keeper")
	require.NoError(t, err)
	assert.Empty(t, results, "liveness has not elapsed")

	env.advance(time.Hour)
	env.Oracle.truthful = false
	results, err = env.Engine.SettleExpiredAssertions(env.Ctx, 10, "keeper")
	require.NoError(t, err)
	require.Len(t, results, 1)
	got := results[0]
	assert.Equal(t, hashA, got.ClaimHash)
	assert.Equal(t, rec.AssertionID, got.AssertionID)
	assert.Equal(t, "settled", got.Status)
	require.NotNil(t, got.Outcome)
	assert.False(t, *got.Outcome, "untruthful assertion flips the predicted outcome")
}
