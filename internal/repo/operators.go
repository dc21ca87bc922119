package repo

import (
	"context"
	"database/sql"

	"veribond/internal/domain"
)

func (r Repo) GrantOperator(ctx context.Context, tx *sql.Tx, actorID, grantedBy, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO operators(actor_id, granted_by, created_at) VALUES (?,?,?)`, actorID, grantedBy, now)
	return err
}

func (r Repo) RevokeOperator(ctx context.Context, tx *sql.Tx, actorID string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM operators WHERE actor_id=?`, actorID)
	return affectedOne(res, err)
}

func (r Repo) ListOperators(ctx context.Context) ([]domain.Operator, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT actor_id, granted_by, created_at FROM operators ORDER BY actor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ops []domain.Operator
	for rows.Next() {
		var o domain.Operator
		if err := rows.Scan(&o.ActorID, &o.GrantedBy, &o.CreatedAt); err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}
	return ops, rows.Err()
}
