// Package auth gates the operator-restricted parts of the ledger.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"veribond/internal/fault"
)

// Permissions checked by the engine. Every operator holds all of them; the
// names exist so errors say what was attempted.
const (
	PermPolicyWrite    = "policy.write"
	PermOutcomeWrite   = "outcome.write"
	PermOperatorManage = "operator.manage"
	PermWalletManage   = "wallet.manage"
	PermLogsManage     = "logs.manage"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	ActorID    string
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required for %s", e.Permission, e.ActorID)
}

// Is lets callers match any ForbiddenError with fault.ErrForbidden.
func (e ForbiddenError) Is(target error) bool {
	return target == fault.ErrForbidden
}

// Service answers operator membership from the operators table.
type Service struct {
	DB *sql.DB
}

func (s Service) IsOperator(ctx context.Context, tx *sql.Tx, actorID string) (bool, error) {
	if actorID == "" {
		return false, nil
	}
	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, `SELECT 1 FROM operators WHERE actor_id=?`, actorID)
	} else {
		row = s.DB.QueryRowContext(ctx, `SELECT 1 FROM operators WHERE actor_id=?`, actorID)
	}
	var n int
	err := row.Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Require returns ForbiddenError unless actorID is an operator.
func (s Service) Require(ctx context.Context, tx *sql.Tx, actorID, perm string) error {
	ok, err := s.IsOperator(ctx, tx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{ActorID: actorID, Permission: perm}
	}
	return nil
}
