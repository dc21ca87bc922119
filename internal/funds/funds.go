// Package funds moves value between ledger accounts.
package funds

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"veribond/internal/domain"
	"veribond/internal/fault"
	"veribond/internal/repo"
)

// Escrow is the ledger's own account. It holds open stakes and every agent's
// reward reserve.
const Escrow = domain.EscrowAccount

// Bank is the value-transfer collaborator. Implementations join the caller's
// transaction so a failed transfer rolls back with the ledger change.
type Bank interface {
	// Transfer moves amount out of Escrow.
	Transfer(ctx context.Context, tx *sql.Tx, to string, amount int64) error
	// TransferFrom pulls amount from an external account.
	TransferFrom(ctx context.Context, tx *sql.Tx, from, to string, amount int64) error
	Balance(ctx context.Context, tx *sql.Tx, account string) (int64, error)
}

// SQLBank keeps balances in the ledger database.
type SQLBank struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (b SQLBank) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b SQLBank) Transfer(ctx context.Context, tx *sql.Tx, to string, amount int64) error {
	return b.move(ctx, tx, Escrow, to, amount)
}

// TransferFrom refuses Escrow as the source: escrow only pays out through
// Transfer.
func (b SQLBank) TransferFrom(ctx context.Context, tx *sql.Tx, from, to string, amount int64) error {
	if from == Escrow {
		return fault.Wrapf(fault.ErrInvalidInput, "cannot pull from the escrow account")
	}
	return b.move(ctx, tx, from, to, amount)
}

func (b SQLBank) move(ctx context.Context, tx *sql.Tx, from, to string, amount int64) error {
	if amount < 0 {
		return fault.Wrapf(fault.ErrInvalidInput, "negative transfer %d", amount)
	}
	if amount == 0 || from == to {
		return nil
	}
	now := b.now()
	if err := b.Repo.Debit(ctx, tx, from, amount, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fault.Wrapf(fault.ErrInsufficientFunds, "%s cannot cover %d", from, amount)
		}
		return err
	}
	return b.Repo.Credit(ctx, tx, to, amount, now)
}

func (b SQLBank) Balance(ctx context.Context, tx *sql.Tx, account string) (int64, error) {
	return b.Repo.Balance(ctx, tx, account)
}

// Deposit mints amount into account. Used by dev tooling to fund wallets.
func (b SQLBank) Deposit(ctx context.Context, tx *sql.Tx, account string, amount int64) error {
	if amount <= 0 {
		return fault.Wrapf(fault.ErrInvalidInput, "deposit must be positive")
	}
	if account == Escrow {
		return fault.Wrapf(fault.ErrInvalidInput, "cannot deposit into the escrow account")
	}
	return b.Repo.Credit(ctx, tx, account, amount, b.now())
}
