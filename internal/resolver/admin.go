package resolver

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"veribond/internal/domain"
	"veribond/internal/fault"
	"veribond/internal/repo"
)

// Admin resolves claims with outcomes an operator publishes directly. There
// is no liveness or dispute; it suits bootstrapping and tests.
type Admin struct {
	Repo repo.Repo
	Now  func() time.Time
}

type OutcomeEntry struct {
	ClaimHash string `json:"claim_hash"`
	Outcome   bool   `json:"outcome"`
}

func (a Admin) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

// SetOutcome publishes or replaces the outcome for claimHash.
func (a Admin) SetOutcome(ctx context.Context, tx *sql.Tx, claimHash string, outcome bool, actorID string) (domain.AdminOutcome, error) {
	o := domain.AdminOutcome{ClaimHash: claimHash, Outcome: outcome, SetBy: actorID, SetAt: a.now()}
	return o, a.Repo.UpsertAdminOutcome(ctx, tx, o)
}

// SetOutcomes applies a batch; the caller's transaction makes it all-or-nothing.
func (a Admin) SetOutcomes(ctx context.Context, tx *sql.Tx, batch []OutcomeEntry, actorID string) ([]domain.AdminOutcome, error) {
	out := make([]domain.AdminOutcome, 0, len(batch))
	for _, e := range batch {
		o, err := a.SetOutcome(ctx, tx, e.ClaimHash, e.Outcome, actorID)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (a Admin) CanResolve(ctx context.Context, tx *sql.Tx, claimHash string) (bool, error) {
	_, err := a.Repo.GetAdminOutcome(ctx, tx, claimHash)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (a Admin) Resolve(ctx context.Context, tx *sql.Tx, claimHash string) (bool, error) {
	o, err := a.Repo.GetAdminOutcome(ctx, tx, claimHash)
	if errors.Is(err, repo.ErrNotFound) {
		return false, fault.Wrapf(fault.ErrOutcomeNotSet, "%s", claimHash)
	}
	if err != nil {
		return false, err
	}
	return o.Outcome, nil
}
