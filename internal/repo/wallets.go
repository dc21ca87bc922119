package repo

import (
	"context"
	"database/sql"
	"time"
)

func (r Repo) BindWallet(ctx context.Context, tx *sql.Tx, agentID, wallet, boundBy string, now time.Time) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO agent_wallets(agent_id,wallet,bound_by,bound_at) VALUES (?,?,?,?)
ON CONFLICT(agent_id) DO UPDATE SET wallet=excluded.wallet, bound_by=excluded.bound_by, bound_at=excluded.bound_at`,
		agentID, wallet, boundBy, unix(now))
	return err
}

func (r Repo) WalletOf(ctx context.Context, tx *sql.Tx, agentID string) (string, error) {
	var wallet string
	err := r.q(tx).QueryRowContext(ctx, `SELECT wallet FROM agent_wallets WHERE agent_id=?`, agentID).Scan(&wallet)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return wallet, err
}
