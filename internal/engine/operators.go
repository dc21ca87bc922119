package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"veribond/internal/domain"
	"veribond/internal/engine/auth"
	"veribond/internal/events"
	"veribond/internal/fault"
	"veribond/internal/repo"
)

// GrantOperator adds actorID to the operator set.
func (e Engine) GrantOperator(ctx context.Context, actorID, grantee string) error {
	if err := ValidateIdentifier("actor_id", grantee); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.requireOperator(ctx, tx, actorID, auth.PermOperatorManage); err != nil {
		return err
	}
	if err := e.Repo.GrantOperator(ctx, tx, grantee, actorID, e.now().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.OperatorGranted, "operator", grantee, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// RevokeOperator removes grantee. The last operator cannot be removed.
func (e Engine) RevokeOperator(ctx context.Context, actorID, grantee string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.requireOperator(ctx, tx, actorID, auth.PermOperatorManage); err != nil {
		return err
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM operators`).Scan(&n); err != nil {
		return err
	}
	if n <= 1 {
		return fault.Wrapf(fault.ErrInvalidInput, "cannot revoke the last operator")
	}
	if err := e.Repo.RevokeOperator(ctx, tx, grantee); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fault.Wrapf(fault.ErrInvalidInput, "%s is not an operator", grantee)
		}
		return err
	}
	if err := e.Events.Append(ctx, tx, events.OperatorRevoked, "operator", grantee, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListOperators(ctx context.Context) ([]domain.Operator, error) {
	return e.Repo.ListOperators(ctx)
}

func (e Engine) IsOperator(ctx context.Context, actorID string) (bool, error) {
	return e.Auth.IsOperator(ctx, nil, actorID)
}

// CreateAPIKey issues a key for owner. The plaintext is returned once and
// only its hash is stored. Operators may issue keys for anyone; other actors
// only for themselves.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, owner, name string) (domain.APIKey, string, error) {
	if owner == "" {
		owner = actorID
	}
	if err := ValidateIdentifier("actor_id", owner); err != nil {
		return domain.APIKey{}, "", err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if owner != actorID {
		if err := e.requireOperator(ctx, tx, actorID, auth.PermOperatorManage); err != nil {
			return domain.APIKey{}, "", err
		}
	}
	var raw [24]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return domain.APIKey{}, "", err
	}
	secret := "vb_" + hex.EncodeToString(raw[:])
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   owner,
		Name:      name,
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.now().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyCreated, "api_key", key.ID, actorID, events.EventPayload{"owner": owner, "name": name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, actorID)
}

// RevokeAPIKey deletes a key. Owners may revoke their own keys.
func (e Engine) RevokeAPIKey(ctx context.Context, actorID, id string) error {
	keys, err := e.Repo.ListAPIKeys(ctx, actorID)
	if err != nil {
		return err
	}
	own := false
	for _, k := range keys {
		if k.ID == id {
			own = true
			break
		}
	}
	if !own {
		if err := e.requireOperator(ctx, nil, actorID, auth.PermOperatorManage); err != nil {
			return err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fault.Wrapf(fault.ErrInvalidInput, "unknown api key %s", id)
		}
		return err
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyRevoked, "api_key", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}

// RequireOperator returns a forbidden error unless actorID is an operator.
func (e Engine) RequireOperator(ctx context.Context, actorID, perm string) error {
	return e.requireOperator(ctx, nil, actorID, perm)
}
