package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"veribond/internal/domain"
	"veribond/internal/engine/auth"
	"veribond/internal/events"
	"veribond/internal/fault"
	"veribond/internal/funds"
	"veribond/internal/lock"
	"veribond/internal/repo"
)

func (e Engine) GetAgent(ctx context.Context, agentID string) (domain.AgentAccount, error) {
	a, err := e.Repo.GetAgent(ctx, nil, agentID)
	if errors.Is(err, repo.ErrNotFound) {
		return a, fault.Wrapf(fault.ErrAgentNotFound, "%s", agentID)
	}
	return a, err
}

// AgentAccuracy returns (correct, total). Unknown agents report (0, 0).
func (e Engine) AgentAccuracy(ctx context.Context, agentID string) (int64, int64, error) {
	a, err := e.Repo.GetAgent(ctx, nil, agentID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return a.CorrectCount, a.TotalCount, nil
}

// FundReserve moves amount from funder into escrow and credits the agent's
// reward reserve, creating the account if needed.
func (e Engine) FundReserve(ctx context.Context, agentID, funder string, amount int64) (domain.AgentAccount, error) {
	if err := ValidateIdentifier("agent_id", agentID); err != nil {
		return domain.AgentAccount{}, err
	}
	if err := ValidateAccount("funder", funder); err != nil {
		return domain.AgentAccount{}, err
	}
	if amount <= 0 {
		return domain.AgentAccount{}, fault.Wrapf(fault.ErrInvalidInput, "amount must be positive")
	}
	unlock, err := e.locker().Lock(ctx, lock.AgentKey(agentID))
	if err != nil {
		return domain.AgentAccount{}, err
	}
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AgentAccount{}, err
	}
	defer tx.Rollback()

	now := e.now()
	if err := e.Bank.TransferFrom(ctx, tx, funder, funds.Escrow, amount); err != nil {
		return domain.AgentAccount{}, err
	}
	if err := e.Repo.EnsureAgent(ctx, tx, agentID, now); err != nil {
		return domain.AgentAccount{}, fmt.Errorf("ensure agent: %w", err)
	}
	if err := e.Repo.AddReserve(ctx, tx, agentID, amount, now); err != nil {
		return domain.AgentAccount{}, fmt.Errorf("add reserve: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ReserveFunded, "agent", agentID, funder, events.EventPayload{"amount": amount}); err != nil {
		return domain.AgentAccount{}, err
	}
	a, err := e.Repo.GetAgent(ctx, tx, agentID)
	if err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return domain.AgentAccount{}, err
	}
	e.log().Info("reserve funded", "agent_id", agentID, "amount", amount, "reserve", a.RewardReserve)
	return a, nil
}

type walletBinder interface {
	Bind(ctx context.Context, tx *sql.Tx, agentID, wallet, actorID string) error
}

// BindWallet sets the wallet allowed to stake for agentID.
func (e Engine) BindWallet(ctx context.Context, actorID, agentID, wallet string) error {
	if err := ValidateIdentifier("agent_id", agentID); err != nil {
		return err
	}
	if err := ValidateAccount("wallet", wallet); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.requireOperator(ctx, tx, actorID, auth.PermWalletManage); err != nil {
		return err
	}
	b, ok := e.Identity.(walletBinder)
	if !ok {
		return fmt.Errorf("identity registry %T does not support binding", e.Identity)
	}
	if err := b.Bind(ctx, tx, agentID, wallet, actorID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.WalletBound, "agent", agentID, actorID, events.EventPayload{"wallet": wallet}); err != nil {
		return err
	}
	return tx.Commit()
}

type depositor interface {
	Deposit(ctx context.Context, tx *sql.Tx, account string, amount int64) error
}

// Deposit credits an external account. Only banks that can mint support it;
// the local SQL bank uses it to fund development wallets.
func (e Engine) Deposit(ctx context.Context, actorID, account string, amount int64) (int64, error) {
	if err := ValidateAccount("account", account); err != nil {
		return 0, err
	}
	d, ok := e.Bank.(depositor)
	if !ok {
		return 0, fmt.Errorf("bank %T does not support deposits", e.Bank)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if err := e.requireOperator(ctx, tx, actorID, auth.PermWalletManage); err != nil {
		return 0, err
	}
	if err := d.Deposit(ctx, tx, account, amount); err != nil {
		return 0, err
	}
	if err := e.Events.Append(ctx, tx, events.WalletDeposited, "account", account, actorID, events.EventPayload{"amount": amount}); err != nil {
		return 0, err
	}
	bal, err := e.Bank.Balance(ctx, tx, account)
	if err != nil {
		return 0, err
	}
	return bal, tx.Commit()
}

func (e Engine) Balance(ctx context.Context, account string) (int64, error) {
	return e.Bank.Balance(ctx, nil, account)
}
