package repo

import (
	"context"
	"database/sql"

	"veribond/internal/domain"
)

// UpsertAdminOutcome publishes or replaces the operator-set outcome for a claim hash.
func (r Repo) UpsertAdminOutcome(ctx context.Context, tx *sql.Tx, o domain.AdminOutcome) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO admin_outcomes(claim_hash,outcome,set_by,set_at) VALUES (?,?,?,?)
ON CONFLICT(claim_hash) DO UPDATE SET outcome=excluded.outcome, set_by=excluded.set_by, set_at=excluded.set_at`,
		o.ClaimHash, boolInt(o.Outcome), o.SetBy, unix(o.SetAt))
	return err
}

func (r Repo) GetAdminOutcome(ctx context.Context, tx *sql.Tx, claimHash string) (domain.AdminOutcome, error) {
	var (
		o       domain.AdminOutcome
		outcome int
		setAt   int64
	)
	err := r.q(tx).QueryRowContext(ctx, `SELECT claim_hash,outcome,set_by,set_at FROM admin_outcomes WHERE claim_hash=?`, claimHash).
		Scan(&o.ClaimHash, &outcome, &o.SetBy, &setAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.Outcome = outcome != 0
	o.SetAt = fromUnix(setAt)
	return o, nil
}
