package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"veribond/internal/domain"
	"veribond/internal/events"
	"veribond/internal/fault"
	"veribond/internal/funds"
	"veribond/internal/lock"
	"veribond/internal/metrics"
	"veribond/internal/repo"
	"veribond/internal/settlement"
)

type SubmitRequest struct {
	AgentID          string
	ClaimHash        string
	ClaimText        string
	Stake            int64
	PredictedOutcome bool
	ResolvesAt       time.Time
	Submitter        string
}

// Submit escrows the stake and records a new claim. Every rejection happens
// before commit, so a failed submit leaves no trace.
func (e Engine) Submit(ctx context.Context, req SubmitRequest) (domain.Claim, error) {
	if err := ValidateIdentifier("agent_id", req.AgentID); err != nil {
		return domain.Claim{}, err
	}
	if err := ValidateAccount("submitter", req.Submitter); err != nil {
		return domain.Claim{}, err
	}
	hash, err := NormalizeHash(req.ClaimHash)
	if err != nil {
		return domain.Claim{}, err
	}
	exact := e.now()
	now := exact.Truncate(time.Second)
	id := ClaimID(req.AgentID, hash, now, req.Submitter)

	unlock, err := e.locker().Lock(ctx, lock.ClaimKey(id), lock.AgentKey(req.AgentID))
	if err != nil {
		return domain.Claim{}, err
	}
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Claim{}, err
	}
	defer tx.Rollback()

	policy, err := e.currentPolicy(ctx, tx)
	if err != nil {
		return domain.Claim{}, err
	}
	if req.Stake < policy.MinStake {
		return domain.Claim{}, fault.Wrapf(fault.ErrStakeTooLow, "stake %d below minimum %d", req.Stake, policy.MinStake)
	}
	if !req.ResolvesAt.After(exact) {
		return domain.Claim{}, fault.Wrapf(fault.ErrInvalidResolutionTime, "resolves_at %s is not after %s",
			req.ResolvesAt.UTC().Format(time.RFC3339Nano), exact.UTC().Format(time.RFC3339Nano))
	}
	wallet, err := e.Identity.AuthorizedWallet(ctx, tx, req.AgentID)
	if err != nil && !errors.Is(err, fault.ErrAgentNotFound) {
		return domain.Claim{}, err
	}
	if wallet == "" || wallet != req.Submitter {
		return domain.Claim{}, fault.Wrapf(fault.ErrUnauthorizedWallet, "%s may not stake for %s", req.Submitter, req.AgentID)
	}
	exists, err := e.Repo.ClaimExists(ctx, tx, id)
	if err != nil {
		return domain.Claim{}, err
	}
	if exists {
		return domain.Claim{}, fault.Wrapf(fault.ErrDuplicateClaim, "%s", id)
	}

	if err := e.Bank.TransferFrom(ctx, tx, req.Submitter, funds.Escrow, req.Stake); err != nil {
		return domain.Claim{}, err
	}
	if err := e.Repo.EnsureAgent(ctx, tx, req.AgentID, now); err != nil {
		return domain.Claim{}, fmt.Errorf("ensure agent: %w", err)
	}
	c := domain.Claim{
		ID:               id,
		AgentID:          req.AgentID,
		Submitter:        req.Submitter,
		ClaimHash:        hash,
		ClaimText:        req.ClaimText,
		Stake:            req.Stake,
		PredictedOutcome: req.PredictedOutcome,
		SubmittedAt:      now,
		ResolvesAt:       ceilSecond(req.ResolvesAt.UTC()),
		State:            domain.ClaimSubmitted,
	}
	if err := e.Repo.InsertClaim(ctx, tx, c); err != nil {
		return domain.Claim{}, fmt.Errorf("insert claim: %w", err)
	}
	if err := e.Repo.IncrementTotal(ctx, tx, req.AgentID, now); err != nil {
		return domain.Claim{}, fmt.Errorf("increment total: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ClaimSubmitted, "claim", c.ID, req.Submitter, events.EventPayload{
		"agent_id":          c.AgentID,
		"claim_hash":        c.ClaimHash,
		"stake":             c.Stake,
		"predicted_outcome": c.PredictedOutcome,
		"resolves_at":       c.ResolvesAt.Format(time.RFC3339),
	}); err != nil {
		return domain.Claim{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Claim{}, err
	}
	metrics.ClaimsSubmitted.Inc()
	metrics.StakedAmount.Add(float64(c.Stake))
	e.log().Info("claim submitted", "claim_id", c.ID, "agent_id", c.AgentID, "stake", c.Stake)
	return c, nil
}

type Resolution struct {
	Claim      domain.Claim      `json:"claim"`
	Settlement domain.Settlement `json:"settlement"`
}

// Resolve settles a due claim with the live resolver's outcome. Anyone may
// call it; only the first successful call mutates.
func (e Engine) Resolve(ctx context.Context, claimID, actorID string) (Resolution, error) {
	start := time.Now()
	res, err := e.resolve(ctx, claimID, actorID)
	if err != nil {
		code := "internal"
		if fe, ok := fault.As(err); ok {
			code = fe.Code
		}
		metrics.ResolveRejected.WithLabelValues(code).Inc()
		return res, err
	}
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	result := "incorrect"
	if res.Settlement.Correct {
		result = "correct"
	}
	metrics.ClaimsResolved.WithLabelValues(result).Inc()
	metrics.SlashedAmount.Add(float64(res.Settlement.SlashAmount))
	metrics.BonusPaid.Add(float64(res.Settlement.BonusAmount))
	e.log().Info("claim resolved", "claim_id", claimID, "correct", res.Settlement.Correct,
		"return", res.Settlement.ReturnAmount, "bonus", res.Settlement.BonusAmount, "slash", res.Settlement.SlashAmount)
	return res, nil
}

func (e Engine) resolve(ctx context.Context, claimID, actorID string) (Resolution, error) {
	peek, err := e.Repo.GetClaim(ctx, nil, claimID)
	if errors.Is(err, repo.ErrNotFound) {
		return Resolution{}, fault.Wrapf(fault.ErrClaimNotFound, "%s", claimID)
	}
	if err != nil {
		return Resolution{}, err
	}
	unlock, err := e.locker().Lock(ctx, lock.ClaimKey(claimID), lock.AgentKey(peek.AgentID))
	if err != nil {
		return Resolution{}, err
	}
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Resolution{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetClaim(ctx, tx, claimID)
	if err != nil {
		return Resolution{}, err
	}
	if c.State == domain.ClaimResolved {
		return Resolution{Claim: c}, fault.Wrapf(fault.ErrAlreadyResolved, "%s", claimID)
	}
	now := e.now()
	if now.Before(c.ResolvesAt) {
		return Resolution{Claim: c}, fault.Wrapf(fault.ErrNotYetEligible, "resolves at %s", c.ResolvesAt.Format(time.RFC3339))
	}
	policy, err := e.currentPolicy(ctx, tx)
	if err != nil {
		return Resolution{}, err
	}
	strategy, err := e.Resolvers.Get(policy.Resolver)
	if err != nil {
		return Resolution{}, err
	}
	ready, err := strategy.CanResolve(ctx, tx, c.ClaimHash)
	if err != nil {
		return Resolution{}, err
	}
	if !ready {
		return Resolution{Claim: c}, fault.Wrapf(fault.ErrNotYetEligible, "%s resolver has no outcome for %s", policy.Resolver, c.ClaimHash)
	}
	outcome, err := strategy.Resolve(ctx, tx, c.ClaimHash)
	if err != nil {
		return Resolution{}, err
	}
	agent, err := e.Repo.GetAgent(ctx, tx, c.AgentID)
	if err != nil {
		return Resolution{}, fmt.Errorf("load agent %s: %w", c.AgentID, err)
	}
	result, err := settlement.Compute(settlement.Input{
		Stake:         c.Stake,
		Predicted:     c.PredictedOutcome,
		Outcome:       outcome,
		ReserveBefore: agent.RewardReserve,
	}, policy)
	if err != nil {
		return Resolution{}, err
	}
	// Only the stake and the agent's own reserve may leave escrow.
	if out := result.Payout() + result.ProtocolShare + result.MarketShare; out > c.Stake+result.BonusAmount {
		return Resolution{}, fmt.Errorf("settlement of %s would release %d from escrow, limit %d", c.ID, out, c.Stake+result.BonusAmount)
	}

	if err := e.Repo.MarkClaimResolved(ctx, tx, c.ID, result.Correct, now, policy.Version); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Resolution{}, fault.Wrapf(fault.ErrAlreadyResolved, "%s", claimID)
		}
		return Resolution{}, err
	}
	if err := e.Bank.Transfer(ctx, tx, c.Submitter, result.Payout()); err != nil {
		return Resolution{}, fmt.Errorf("pay submitter: %w", err)
	}
	if err := e.Bank.Transfer(ctx, tx, policy.ProtocolTreasury, result.ProtocolShare); err != nil {
		return Resolution{}, fmt.Errorf("pay protocol treasury: %w", err)
	}
	if err := e.Bank.Transfer(ctx, tx, policy.MarketDestination(), result.MarketShare); err != nil {
		return Resolution{}, fmt.Errorf("pay market treasury: %w", err)
	}
	if err := e.Repo.ApplyAgentSettlement(ctx, tx, c.AgentID, repo.AgentDelta{
		Correct:      result.Correct,
		Slashed:      result.SlashAmount,
		BonusPaid:    result.BonusAmount,
		ReserveDelta: result.ReserveDelta(),
	}, now); err != nil {
		return Resolution{}, fmt.Errorf("update agent: %w", err)
	}
	s := domain.Settlement{
		ClaimID:       c.ID,
		PolicyVersion: policy.Version,
		Outcome:       outcome,
		Correct:       result.Correct,
		ReturnAmount:  result.ReturnAmount,
		BonusAmount:   result.BonusAmount,
		SlashAmount:   result.SlashAmount,
		RewardShare:   result.RewardShare,
		ProtocolShare: result.ProtocolShare,
		MarketShare:   result.MarketShare,
		SettledAt:     now,
	}
	if err := e.Repo.InsertSettlement(ctx, tx, s); err != nil {
		return Resolution{}, fmt.Errorf("insert settlement: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ClaimResolved, "claim", c.ID, actorID, events.EventPayload{
		"agent_id":       c.AgentID,
		"claim_hash":     c.ClaimHash,
		"outcome":        outcome,
		"correct":        result.Correct,
		"return_amount":  result.ReturnAmount,
		"bonus_amount":   result.BonusAmount,
		"slash_amount":   result.SlashAmount,
		"reward_share":   result.RewardShare,
		"protocol_share": result.ProtocolShare,
		"market_share":   result.MarketShare,
		"policy_version": policy.Version,
	}); err != nil {
		return Resolution{}, err
	}
	if err := tx.Commit(); err != nil {
		return Resolution{}, err
	}
	c.State = domain.ClaimResolved
	c.WasCorrect = &result.Correct
	c.ResolvedAt = &now
	c.PolicyVersion = &policy.Version
	return Resolution{Claim: c, Settlement: s}, nil
}

// DueResult reports one claim visited by ResolveDue.
type DueResult struct {
	ClaimID string `json:"claim_id"`
	Status  string `json:"status" enum:"resolved,skipped,failed"`
	Correct *bool  `json:"correct,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ResolveDue resolves every submitted claim past its resolution time, up to
// limit, with at most workers resolutions in flight.
func (e Engine) ResolveDue(ctx context.Context, limit, workers int, actorID string) ([]DueResult, error) {
	if workers <= 0 {
		workers = 4
	}
	due, err := e.Repo.ListDueClaims(ctx, e.now(), limit)
	if err != nil {
		return nil, err
	}
	results := make([]DueResult, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range due {
		g.Go(func() error {
			r := DueResult{ClaimID: c.ID}
			res, err := e.Resolve(gctx, c.ID, actorID)
			switch {
			case err == nil:
				r.Status = "resolved"
				r.Correct = &res.Settlement.Correct
			case errors.Is(err, fault.ErrNotYetEligible), errors.Is(err, fault.ErrAlreadyResolved):
				r.Status = "skipped"
				r.Error = err.Error()
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				r.Status = "failed"
				r.Error = err.Error()
				e.log().Warn("keeper resolve failed", "claim_id", c.ID, "error", err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (e Engine) GetClaim(ctx context.Context, id string) (domain.Claim, error) {
	c, err := e.Repo.GetClaim(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return c, fault.Wrapf(fault.ErrClaimNotFound, "%s", id)
	}
	return c, err
}

func (e Engine) GetSettlement(ctx context.Context, claimID string) (domain.Settlement, error) {
	s, err := e.Repo.GetSettlement(ctx, nil, claimID)
	if errors.Is(err, repo.ErrNotFound) {
		return s, fault.Wrapf(fault.ErrClaimNotFound, "no settlement for %s", claimID)
	}
	return s, err
}

func (e Engine) ListClaims(ctx context.Context, f repo.ClaimFilters) ([]domain.Claim, error) {
	if f.State != "" && f.State != domain.ClaimSubmitted && f.State != domain.ClaimResolved {
		return nil, fault.Wrapf(fault.ErrInvalidInput, "unknown state %q", f.State)
	}
	return e.Repo.ListClaims(ctx, f)
}

// AuditReport compares escrow with what it must hold.
type AuditReport struct {
	Escrow    int64 `json:"escrow"`
	OpenStake int64 `json:"open_stake"`
	Reserves  int64 `json:"reserves"`
	Balanced  bool  `json:"balanced"`
}

// Audit checks that escrow equals open stakes plus all reward reserves.
func (e Engine) Audit(ctx context.Context) (AuditReport, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return AuditReport{}, err
	}
	defer tx.Rollback()
	var r AuditReport
	if r.Escrow, err = e.Bank.Balance(ctx, tx, funds.Escrow); err != nil {
		return r, err
	}
	if r.OpenStake, err = e.Repo.OpenStake(ctx, tx); err != nil {
		return r, err
	}
	if r.Reserves, err = e.Repo.TotalReserves(ctx, tx); err != nil {
		return r, err
	}
	r.Balanced = r.Escrow == r.OpenStake+r.Reserves
	return r, nil
}

// ceilSecond rounds up to whole seconds, the precision claims are stored at,
// so a stored resolves_at is never earlier than the one requested.
func ceilSecond(t time.Time) time.Time {
	if r := t.Truncate(time.Second); r.Before(t) {
		return r.Add(time.Second)
	}
	return t
}
