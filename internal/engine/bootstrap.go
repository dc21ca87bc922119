package engine

import (
	"context"
	"errors"
	"time"

	"veribond/internal/domain"
	"veribond/internal/events"
	"veribond/internal/repo"
)

// Bootstrap seeds policy version 1 and the initial operators on an empty
// ledger. It reports false and changes nothing once a policy exists.
func (e Engine) Bootstrap(ctx context.Context, policy domain.Policy, operators []string, actorID string) (bool, error) {
	if err := e.ValidatePolicy(policy); err != nil {
		return false, err
	}
	for _, op := range operators {
		if err := ValidateIdentifier("operator", op); err != nil {
			return false, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.CurrentPolicy(ctx, tx); err == nil {
		return false, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return false, err
	}
	now := e.now()
	policy.CreatedBy = actorID
	policy.CreatedAt = now
	stored, err := e.Repo.InsertPolicy(ctx, tx, policy)
	if err != nil {
		return false, err
	}
	for _, op := range operators {
		if err := e.Repo.GrantOperator(ctx, tx, op, actorID, now.Format(time.RFC3339)); err != nil {
			return false, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.LedgerBootstrapped, "policy", "", actorID, events.EventPayload{
		"version":   stored.Version,
		"operators": operators,
	}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	e.log().Info("ledger bootstrapped", "policy_version", stored.Version, "operators", len(operators))
	return true, nil
}
