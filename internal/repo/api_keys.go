package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"veribond/internal/domain"
)

const apiKeyColumns = `id, actor_id, COALESCE(name,''), key_hash, created_at`

// HashAPIKey is the digest a secret is stored and looked up under.
func HashAPIKey(secret string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(secret)))
	return hex.EncodeToString(sum[:])
}

func scanAPIKey(s rowScanner) (domain.APIKey, error) {
	var k domain.APIKey
	err := s.Scan(&k.ID, &k.ActorID, &k.Name, &k.KeyHash, &k.CreatedAt)
	return k, err
}

// InsertAPIKey stores key; KeyHash must already be a HashAPIKey digest.
func (r Repo) InsertAPIKey(ctx context.Context, tx *sql.Tx, key domain.APIKey) error {
	if key.ID == "" || key.ActorID == "" || key.KeyHash == "" || key.CreatedAt == "" {
		return errors.New("api key needs id, actor_id, key_hash and created_at")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO api_keys(id, actor_id, name, key_hash, created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.ActorID, nullable(key.Name), key.KeyHash, key.CreatedAt)
	return err
}

// APIKeyBySecret resolves a presented secret to its key.
func (r Repo) APIKeyBySecret(ctx context.Context, secret string) (domain.APIKey, error) {
	if strings.TrimSpace(secret) == "" {
		return domain.APIKey{}, ErrNotFound
	}
	k, err := scanAPIKey(r.DB.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash=?`, HashAPIKey(secret)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.APIKey{}, ErrNotFound
	}
	return k, err
}

// ListAPIKeys returns keys newest first; an empty actorID lists every key.
func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE (?='' OR actor_id=?) ORDER BY created_at DESC, id`, actorID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r Repo) DeleteAPIKey(ctx context.Context, tx *sql.Tx, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	return affectedOne(res, err)
}
