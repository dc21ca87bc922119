package repo

import (
	"context"
	"database/sql"
	"time"
)

// Balance returns the account balance, zero for unknown accounts.
func (r Repo) Balance(ctx context.Context, tx *sql.Tx, account string) (int64, error) {
	var amount int64
	err := r.q(tx).QueryRowContext(ctx, `SELECT amount FROM balances WHERE account=?`, account).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

// Credit adds amount to account, creating it if needed.
func (r Repo) Credit(ctx context.Context, tx *sql.Tx, account string, amount int64, now time.Time) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO balances(account,amount,updated_at) VALUES (?,?,?)
ON CONFLICT(account) DO UPDATE SET amount=amount+excluded.amount, updated_at=excluded.updated_at`, account, amount, unix(now))
	return err
}

// Debit removes amount from account. It returns ErrNotFound when the account
// holds less than amount; the balance is left untouched.
func (r Repo) Debit(ctx context.Context, tx *sql.Tx, account string, amount int64, now time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE balances SET amount=amount-?, updated_at=? WHERE account=? AND amount>=?`,
		amount, unix(now), account, amount)
	return affectedOne(res, err)
}

type AccountBalance struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

func (r Repo) ListBalances(ctx context.Context) ([]AccountBalance, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT account,amount FROM balances ORDER BY account`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.Account, &b.Amount); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}
