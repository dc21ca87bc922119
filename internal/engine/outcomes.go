package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"veribond/internal/domain"
	"veribond/internal/engine/auth"
	"veribond/internal/events"
	"veribond/internal/fault"
	"veribond/internal/lock"
	"veribond/internal/metrics"
	"veribond/internal/repo"
	"veribond/internal/resolver"
)

// SetOutcome publishes an admin-resolver outcome. Operator only.
func (e Engine) SetOutcome(ctx context.Context, actorID, claimHash string, outcome bool) (domain.AdminOutcome, error) {
	out, err := e.SetOutcomes(ctx, actorID, []resolver.OutcomeEntry{{ClaimHash: claimHash, Outcome: outcome}})
	if err != nil {
		return domain.AdminOutcome{}, err
	}
	return out[0], nil
}

// SetOutcomes publishes a batch of outcomes atomically. Operator only.
func (e Engine) SetOutcomes(ctx context.Context, actorID string, batch []resolver.OutcomeEntry) ([]domain.AdminOutcome, error) {
	if len(batch) == 0 {
		return nil, fault.Wrapf(fault.ErrInvalidInput, "no outcomes given")
	}
	normalized := make([]resolver.OutcomeEntry, len(batch))
	for i, o := range batch {
		h, err := NormalizeHash(o.ClaimHash)
		if err != nil {
			return nil, err
		}
		normalized[i] = resolver.OutcomeEntry{ClaimHash: h, Outcome: o.Outcome}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.requireOperator(ctx, tx, actorID, auth.PermOutcomeWrite); err != nil {
		return nil, err
	}
	out, err := e.Admin.SetOutcomes(ctx, tx, normalized, actorID)
	if err != nil {
		return nil, err
	}
	for _, o := range out {
		if err := e.Events.Append(ctx, tx, events.OutcomeSet, "claim_hash", o.ClaimHash, actorID, events.EventPayload{"outcome": o.Outcome}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

type AssertionRequest struct {
	ClaimHash        string
	ClaimText        string
	PredictedOutcome bool
	Requester        string
}

// RequestResolution opens an oracle assertion for a claim hash, posting the
// requester's bond. Nothing is recorded if the oracle call fails.
func (e Engine) RequestResolution(ctx context.Context, req AssertionRequest) (domain.Assertion, error) {
	hash, err := NormalizeHash(req.ClaimHash)
	if err != nil {
		return domain.Assertion{}, err
	}
	if err := ValidateIdentifier("requester", req.Requester); err != nil {
		return domain.Assertion{}, err
	}
	if e.Assertions.Oracle == nil {
		return domain.Assertion{}, fault.Wrapf(fault.ErrOracleUnavailable, "no oracle configured")
	}
	unlock, err := e.locker().Lock(ctx, lock.AssertionKey(hash))
	if err != nil {
		return domain.Assertion{}, err
	}
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assertion{}, err
	}
	defer tx.Rollback()
	policy, err := e.currentPolicy(ctx, tx)
	if err != nil {
		return domain.Assertion{}, err
	}
	rec, err := e.Assertions.RequestResolution(ctx, tx, resolver.ResolutionRequest{
		ClaimHash:        hash,
		ClaimText:        req.ClaimText,
		PredictedOutcome: req.PredictedOutcome,
		Requester:        req.Requester,
	}, policy)
	if err != nil {
		metrics.Assertions.WithLabelValues("rejected").Inc()
		return rec, err
	}
	if err := e.Events.Append(ctx, tx, events.AssertionRequested, "assertion", rec.AssertionID, req.Requester, events.EventPayload{
		"claim_hash": rec.ClaimHash,
		"bond":       rec.Bond,
		"expires_at": rec.ExpiresAt.Unix(),
		"predicted":  rec.PredictedOutcome,
	}); err != nil {
		return domain.Assertion{}, err
	}
	if err := tx.Commit(); err != nil {
		// The oracle already holds an assertion nobody will settle through us.
		e.log().Error("assertion opened but not recorded", "assertion_id", rec.AssertionID, "error", err)
		return domain.Assertion{}, err
	}
	metrics.Assertions.WithLabelValues("requested").Inc()
	e.log().Info("assertion requested", "assertion_id", rec.AssertionID, "claim_hash", hash, "expires_at", rec.ExpiresAt)
	return rec, nil
}

// AssertionResolved is the oracle callback. An untruthful verdict flips the
// provisional outcome.
func (e Engine) AssertionResolved(ctx context.Context, assertionID string, truthful bool, actorID string) (domain.Assertion, error) {
	peek, err := e.Repo.GetAssertionByID(ctx, nil, assertionID)
	if errors.Is(err, repo.ErrNotFound) {
		return peek, fault.Wrapf(fault.ErrAssertionNotFound, "%s", assertionID)
	}
	if err != nil {
		return peek, err
	}
	return e.withAssertionTx(ctx, peek.ClaimHash, actorID, func(tx *sql.Tx) (domain.Assertion, error) {
		return e.Assertions.AssertionResolved(ctx, tx, assertionID, truthful)
	})
}

// SettleAssertion asks the oracle for the result of an expired assertion.
// Anyone may call it.
func (e Engine) SettleAssertion(ctx context.Context, claimHash, actorID string) (domain.Assertion, error) {
	hash, err := NormalizeHash(claimHash)
	if err != nil {
		return domain.Assertion{}, err
	}
	return e.withAssertionTx(ctx, hash, actorID, func(tx *sql.Tx) (domain.Assertion, error) {
		rec, _, err := e.Assertions.Settle(ctx, tx, hash)
		return rec, err
	})
}

func (e Engine) withAssertionTx(ctx context.Context, hash, actorID string, fn func(tx *sql.Tx) (domain.Assertion, error)) (domain.Assertion, error) {
	unlock, err := e.locker().Lock(ctx, lock.AssertionKey(hash))
	if err != nil {
		return domain.Assertion{}, err
	}
	defer unlock()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assertion{}, err
	}
	defer tx.Rollback()
	rec, err := fn(tx)
	if err != nil {
		return rec, err
	}
	if err := e.Events.Append(ctx, tx, events.AssertionSettled, "assertion", rec.AssertionID, actorID, events.EventPayload{
		"claim_hash": rec.ClaimHash,
		"outcome":    rec.Outcome,
		"predicted":  rec.PredictedOutcome,
	}); err != nil {
		return domain.Assertion{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assertion{}, fmt.Errorf("commit assertion settlement: %w", err)
	}
	flipped := "kept"
	if rec.Outcome != rec.PredictedOutcome {
		flipped = "flipped"
	}
	metrics.Assertions.WithLabelValues("settled_" + flipped).Inc()
	e.log().Info("assertion settled", "assertion_id", rec.AssertionID, "outcome", rec.Outcome, "result", flipped)
	return rec, nil
}

func (e Engine) GetAssertion(ctx context.Context, claimHash string) (domain.Assertion, error) {
	hash, err := NormalizeHash(claimHash)
	if err != nil {
		return domain.Assertion{}, err
	}
	rec, err := e.Repo.GetAssertionByHash(ctx, nil, hash)
	if errors.Is(err, repo.ErrNotFound) {
		return rec, fault.Wrapf(fault.ErrAssertionNotFound, "no assertion for %s", hash)
	}
	return rec, err
}

func (e Engine) PendingAssertions(ctx context.Context, limit int) ([]domain.Assertion, error) {
	return e.Repo.ListPendingAssertions(ctx, nil, limit)
}

// AssertionSettleResult reports one assertion visited by
// SettleExpiredAssertions. Outcome is the settled claim outcome.
type AssertionSettleResult struct {
	ClaimHash   string `json:"claim_hash"`
	AssertionID string `json:"assertion_id"`
	Status      string `json:"status" enum:"settled,skipped,failed"`
	Outcome     *bool  `json:"outcome,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SettleExpiredAssertions settles every pending assertion whose liveness has
// elapsed. Failures are reported per assertion.
func (e Engine) SettleExpiredAssertions(ctx context.Context, limit int, actorID string) ([]AssertionSettleResult, error) {
	now := e.now()
	pending, err := e.Repo.ListPendingAssertions(ctx, &now, limit)
	if err != nil {
		return nil, err
	}
	out := make([]AssertionSettleResult, 0, len(pending))
	for _, a := range pending {
		r := AssertionSettleResult{ClaimHash: a.ClaimHash, AssertionID: a.AssertionID, Status: "settled"}
		rec, err := e.SettleAssertion(ctx, a.ClaimHash, actorID)
		switch {
		case err == nil:
			outcome := rec.Outcome
			r.Outcome = &outcome
		case fault.IsRetryable(err):
			r.Status, r.Error = "skipped", err.Error()
		default:
			r.Status, r.Error = "failed", err.Error()
		}
		out = append(out, r)
	}
	return out, nil
}
