package repo

import (
	"context"
	"database/sql"
	"time"

	"veribond/internal/domain"
)

const assertionColumns = `claim_hash,assertion_id,requester,COALESCE(claim_text,''),predicted_outcome,bond,pending,outcome_set,outcome,asserted_at,expires_at,settled_at`

func scanAssertion(row rowScanner) (domain.Assertion, error) {
	var (
		a                           domain.Assertion
		predicted, pending, set, oc int
		assertedAt, expiresAt       int64
		settledAt                   sql.NullInt64
	)
	err := row.Scan(&a.ClaimHash, &a.AssertionID, &a.Requester, &a.ClaimText, &predicted, &a.Bond, &pending, &set, &oc,
		&assertedAt, &expiresAt, &settledAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.PredictedOutcome = predicted != 0
	a.Pending = pending != 0
	a.OutcomeSet = set != 0
	a.Outcome = oc != 0
	a.AssertedAt = fromUnix(assertedAt)
	a.ExpiresAt = fromUnix(expiresAt)
	a.SettledAt = fromNullUnix(settledAt)
	return a, nil
}

func (r Repo) InsertAssertion(ctx context.Context, tx *sql.Tx, a domain.Assertion) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO assertions(claim_hash,assertion_id,requester,claim_text,predicted_outcome,bond,pending,outcome_set,outcome,asserted_at,expires_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.ClaimHash, a.AssertionID, a.Requester, nullable(a.ClaimText), boolInt(a.PredictedOutcome), a.Bond,
		boolInt(a.Pending), boolInt(a.OutcomeSet), boolInt(a.Outcome), unix(a.AssertedAt), unix(a.ExpiresAt))
	return err
}

func (r Repo) GetAssertionByHash(ctx context.Context, tx *sql.Tx, claimHash string) (domain.Assertion, error) {
	return scanAssertion(r.q(tx).QueryRowContext(ctx, `SELECT `+assertionColumns+` FROM assertions WHERE claim_hash=?`, claimHash))
}

func (r Repo) GetAssertionByID(ctx context.Context, tx *sql.Tx, assertionID string) (domain.Assertion, error) {
	return scanAssertion(r.q(tx).QueryRowContext(ctx, `SELECT `+assertionColumns+` FROM assertions WHERE assertion_id=?`, assertionID))
}

// SettleAssertion records the final outcome of a pending assertion. It
// returns ErrNotFound when the assertion is not pending.
func (r Repo) SettleAssertion(ctx context.Context, tx *sql.Tx, assertionID string, outcome bool, at time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE assertions SET pending=0, outcome_set=1, outcome=?, settled_at=? WHERE assertion_id=? AND pending=1`,
		boolInt(outcome), unix(at), assertionID)
	return affectedOne(res, err)
}

// ListPendingAssertions returns pending assertions, optionally only those
// whose liveness window ended at or before expiredBy.
func (r Repo) ListPendingAssertions(ctx context.Context, expiredBy *time.Time, limit int) ([]domain.Assertion, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + assertionColumns + ` FROM assertions WHERE pending=1`
	args := []any{}
	if expiredBy != nil {
		query += ` AND expires_at<=?`
		args = append(args, unix(*expiredBy))
	}
	query += ` ORDER BY expires_at ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assertion
	for rows.Next() {
		a, err := scanAssertion(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
