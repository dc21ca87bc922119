// Package identity binds agents to the wallet allowed to stake for them.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"veribond/internal/fault"
	"veribond/internal/repo"
)

type Registry interface {
	// AuthorizedWallet returns the wallet bound to agentID.
	AuthorizedWallet(ctx context.Context, tx *sql.Tx, agentID string) (string, error)
}

type SQLRegistry struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (r SQLRegistry) AuthorizedWallet(ctx context.Context, tx *sql.Tx, agentID string) (string, error) {
	wallet, err := r.Repo.WalletOf(ctx, tx, agentID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", fault.Wrapf(fault.ErrAgentNotFound, "no wallet bound to %s", agentID)
	}
	return wallet, err
}

func (r SQLRegistry) Bind(ctx context.Context, tx *sql.Tx, agentID, wallet, actorID string) error {
	if agentID == "" || wallet == "" {
		return fault.Wrapf(fault.ErrInvalidInput, "agent and wallet required")
	}
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	return r.Repo.BindWallet(ctx, tx, agentID, wallet, actorID, now)
}
