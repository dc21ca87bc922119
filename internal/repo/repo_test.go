package repo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return Repo{DB: db}, mock
}

func TestMarkClaimResolvedIsCompareAndSwap(t *testing.T) {
	r, mock := newMockRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta(`UPDATE claims SET state=?, was_correct=?, resolved_at=?, policy_version=? WHERE id=? AND state=?`)

	mock.ExpectExec(query).
		WithArgs("resolved", 1, at.Unix(), int64(2), "0xclaim", "submitted").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, r.MarkClaimResolved(ctx, nil, "0xclaim", true, at, 2))

	// The losing caller sees zero rows.
	mock.ExpectExec(query).
		WithArgs("resolved", 0, at.Unix(), int64(2), "0xclaim", "submitted").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, r.MarkClaimResolved(ctx, nil, "0xclaim", false, at, 2), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitRefusesOverdraft(t *testing.T) {
	r, mock := newMockRepo(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	query := regexp.QuoteMeta(`UPDATE balances SET amount=amount-?, updated_at=? WHERE account=? AND amount>=?`)

	mock.ExpectExec(query).
		WithArgs(int64(40), now.Unix(), "wallet-1", int64(40)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, r.Debit(ctx, nil, "wallet-1", 40, now))

	mock.ExpectExec(query).
		WithArgs(int64(400), now.Unix(), "wallet-1", int64(400)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, r.Debit(ctx, nil, "wallet-1", 400, now), ErrNotFound)

	boom := errors.New("disk I/O error")
	mock.ExpectExec(query).WillReturnError(boom)
	assert.ErrorIs(t, r.Debit(ctx, nil, "wallet-1", 1, now), boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceOfUnknownAccountIsZero(t *testing.T) {
	r, mock := newMockRepo(t)
	query := regexp.QuoteMeta(`SELECT amount FROM balances WHERE account=?`)

	mock.ExpectQuery(query).WithArgs("nobody").WillReturnRows(sqlmock.NewRows([]string{"amount"}))
	b, err := r.Balance(context.Background(), nil, "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b)

	mock.ExpectQuery(query).WithArgs("escrow").WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow(125))
	b, err = r.Balance(context.Background(), nil, "escrow")
	require.NoError(t, err)
	assert.Equal(t, int64(125), b)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleAssertionOnlyFromPending(t *testing.T) {
	r, mock := newMockRepo(t)
	at := time.Unix(1_700_000_300, 0)
	query := regexp.QuoteMeta(`UPDATE assertions SET pending=0, outcome_set=1, outcome=?, settled_at=? WHERE assertion_id=? AND pending=1`)

	mock.ExpectBegin()
	mock.ExpectExec(query).WithArgs(0, at.Unix(), "0xa1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(1, at.Unix(), "0xa1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := r.DB.Begin()
	require.NoError(t, err)
	assert.NoError(t, r.SettleAssertion(context.Background(), tx, "0xa1", false, at))
	assert.ErrorIs(t, r.SettleAssertion(context.Background(), tx, "0xa1", true, at), ErrNotFound)
	require.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAPIKeyUnknown(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM api_keys WHERE id=?`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, r.DeleteAPIKey(context.Background(), nil, "missing"), ErrNotFound)
	assert.Error(t, r.DeleteAPIKey(context.Background(), nil, " "))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyBySecretLooksUpDigest(t *testing.T) {
	r, mock := newMockRepo(t)
	query := regexp.QuoteMeta(`SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash=?`)

	mock.ExpectQuery(query).
		WithArgs(HashAPIKey("vb_secret")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_id", "name", "key_hash", "created_at"}).
			AddRow("k1", "alice", "laptop", HashAPIKey("vb_secret"), "2026-03-01T12:00:00Z"))
	key, err := r.APIKeyBySecret(context.Background(), " vb_secret ")
	require.NoError(t, err)
	assert.Equal(t, "alice", key.ActorID)

	mock.ExpectQuery(query).WithArgs(HashAPIKey("nope")).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = r.APIKeyBySecret(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.APIKeyBySecret(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
