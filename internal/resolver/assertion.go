package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"veribond/internal/domain"
	"veribond/internal/fault"
	"veribond/internal/funds"
	"veribond/internal/oracle"
	"veribond/internal/repo"
)

// Assertion resolves claims through an optimistic oracle: the requester
// asserts the predicted outcome, and it stands unless shown untruthful.
type Assertion struct {
	Repo        repo.Repo
	Bank        funds.Bank
	Oracle      oracle.Service
	BondAccount string
	Now         func() time.Time
}

type ResolutionRequest struct {
	ClaimHash        string
	ClaimText        string
	PredictedOutcome bool
	Requester        string
}

func (a Assertion) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

// AssertionText renders the statement handed to the oracle.
func AssertionText(claimHash, claimText string, predicted bool) string {
	if claimText == "" {
		claimText = claimHash
	}
	verdict := "NO"
	if predicted {
		verdict = "YES"
	}
	return fmt.Sprintf("%s | predicted outcome: %s", claimText, verdict)
}

// RequestResolution posts the bond and opens an oracle assertion for the
// claim. The outcome is provisionally the prediction. On any error the caller
// must roll back tx; nothing is left half-opened.
func (a Assertion) RequestResolution(ctx context.Context, tx *sql.Tx, req ResolutionRequest, p domain.Policy) (domain.Assertion, error) {
	existing, err := a.Repo.GetAssertionByHash(ctx, tx, req.ClaimHash)
	switch {
	case err == nil && existing.Pending:
		return existing, fault.Wrapf(fault.ErrAssertionPending, "%s", existing.AssertionID)
	case err == nil:
		return existing, fault.Wrapf(fault.ErrAssertionSettled, "%s", existing.AssertionID)
	case !errors.Is(err, repo.ErrNotFound):
		return domain.Assertion{}, err
	}

	bond, err := a.Oracle.MinimumBond(ctx, p.BondCurrency)
	if err != nil {
		return domain.Assertion{}, fault.Cause(fault.ErrOracleUnavailable, err)
	}
	if err := a.Bank.TransferFrom(ctx, tx, req.Requester, a.BondAccount, bond); err != nil {
		return domain.Assertion{}, err
	}
	liveness := time.Duration(p.LivenessSeconds) * time.Second
	id, err := a.Oracle.OpenAssertion(ctx, oracle.AssertionRequest{
		Claim:    AssertionText(req.ClaimHash, req.ClaimText, req.PredictedOutcome),
		Asserter: req.Requester,
		Currency: p.BondCurrency,
		Bond:     bond,
		Liveness: liveness,
	})
	if err != nil {
		if _, ok := fault.As(err); ok {
			return domain.Assertion{}, err
		}
		return domain.Assertion{}, fault.Cause(fault.ErrOracleUnavailable, err)
	}
	now := a.now()
	rec := domain.Assertion{
		ClaimHash:        req.ClaimHash,
		AssertionID:      id,
		Requester:        req.Requester,
		ClaimText:        req.ClaimText,
		PredictedOutcome: req.PredictedOutcome,
		Bond:             bond,
		Pending:          true,
		Outcome:          req.PredictedOutcome,
		AssertedAt:       now,
		ExpiresAt:        now.Add(liveness),
	}
	if err := a.Repo.InsertAssertion(ctx, tx, rec); err != nil {
		return domain.Assertion{}, fmt.Errorf("insert assertion: %w", err)
	}
	return rec, nil
}

// AssertionResolved applies the oracle's verdict. An untruthful assertion
// flips the provisional outcome.
func (a Assertion) AssertionResolved(ctx context.Context, tx *sql.Tx, assertionID string, truthful bool) (domain.Assertion, error) {
	rec, err := a.Repo.GetAssertionByID(ctx, tx, assertionID)
	if errors.Is(err, repo.ErrNotFound) {
		return rec, fault.Wrapf(fault.ErrAssertionNotFound, "%s", assertionID)
	}
	if err != nil {
		return rec, err
	}
	if !rec.Pending {
		return rec, fault.Wrapf(fault.ErrAssertionSettled, "%s", assertionID)
	}
	outcome := rec.PredictedOutcome
	if !truthful {
		outcome = !outcome
	}
	now := a.now()
	if err := a.Repo.SettleAssertion(ctx, tx, assertionID, outcome, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return rec, fault.Wrapf(fault.ErrAssertionSettled, "%s", assertionID)
		}
		return rec, err
	}
	rec.Pending = false
	rec.OutcomeSet = true
	rec.Outcome = outcome
	rec.SettledAt = &now
	return rec, nil
}

// Settle finalises an assertion once its liveness window has passed. Anyone
// may call it.
func (a Assertion) Settle(ctx context.Context, tx *sql.Tx, claimHash string) (domain.Assertion, bool, error) {
	rec, err := a.Repo.GetAssertionByHash(ctx, tx, claimHash)
	if errors.Is(err, repo.ErrNotFound) {
		return rec, false, fault.Wrapf(fault.ErrAssertionNotFound, "no assertion for %s", claimHash)
	}
	if err != nil {
		return rec, false, err
	}
	if !rec.Pending {
		return rec, false, fault.Wrapf(fault.ErrAssertionSettled, "%s", rec.AssertionID)
	}
	if a.now().Before(rec.ExpiresAt) {
		return rec, false, fault.Wrapf(fault.ErrLivenessNotElapsed, "settleable at %s", rec.ExpiresAt.Format(time.RFC3339))
	}
	truthful, err := a.Oracle.SettleAndGetResult(ctx, rec.AssertionID)
	if err != nil {
		if _, ok := fault.As(err); ok {
			return rec, false, err
		}
		return rec, false, fault.Cause(fault.ErrOracleUnavailable, err)
	}
	rec, err = a.AssertionResolved(ctx, tx, rec.AssertionID, truthful)
	return rec, truthful, err
}

func (a Assertion) CanResolve(ctx context.Context, tx *sql.Tx, claimHash string) (bool, error) {
	rec, err := a.Repo.GetAssertionByHash(ctx, tx, claimHash)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.OutcomeSet, nil
}

func (a Assertion) Resolve(ctx context.Context, tx *sql.Tx, claimHash string) (bool, error) {
	rec, err := a.Repo.GetAssertionByHash(ctx, tx, claimHash)
	if errors.Is(err, repo.ErrNotFound) {
		return false, fault.Wrapf(fault.ErrOutcomeNotSet, "no assertion for %s", claimHash)
	}
	if err != nil {
		return false, err
	}
	if !rec.OutcomeSet {
		return false, fault.Wrapf(fault.ErrOutcomeNotSet, "assertion %s pending", rec.AssertionID)
	}
	return rec.Outcome, nil
}
