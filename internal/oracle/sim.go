package oracle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"veribond/internal/fault"
	"veribond/internal/migrate"
)

var ErrUnknownAssertion = errors.New("oracle: unknown assertion")

// SimAssertion is the simulator's view of one assertion.
type SimAssertion struct {
	ID         string     `json:"id"`
	Claim      string     `json:"claim"`
	Asserter   string     `json:"asserter"`
	Currency   string     `json:"currency"`
	Bond       int64      `json:"bond"`
	Liveness   int64      `json:"liveness_seconds"`
	AssertedAt time.Time  `json:"asserted_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Disputed   bool       `json:"disputed"`
	Disputer   string     `json:"disputer,omitempty"`
	Verdict    *bool      `json:"verdict,omitempty"`
	Settled    bool       `json:"settled"`
	Truthful   *bool      `json:"truthful,omitempty"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
}

// Sim is a local optimistic oracle backed by its own SQLite database. It must
// not share the ledger's database: the ledger calls it while holding a write
// transaction.
type Sim struct {
	DB          *sql.DB
	Now         func() time.Time
	MinBond     int64
	BondByAsset map[string]int64
	// OnResolved is pushed the verdict of a disputed assertion. Undisputed
	// assertions are finalised by the caller through SettleAndGetResult.
	OnResolved ResolvedFunc
	Logger     *slog.Logger
}

// OpenSim migrates db and returns a simulator using it.
func OpenSim(db *sql.DB, minBond int64) (*Sim, error) {
	if err := migrate.MigrateOracle(db); err != nil {
		return nil, fmt.Errorf("migrate oracle db: %w", err)
	}
	return &Sim{DB: db, MinBond: minBond}, nil
}

func (s *Sim) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Sim) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Sim) MinimumBond(_ context.Context, currency string) (int64, error) {
	if v, ok := s.BondByAsset[currency]; ok {
		return v, nil
	}
	return s.MinBond, nil
}

func (s *Sim) OpenAssertion(ctx context.Context, req AssertionRequest) (string, error) {
	if req.Claim == "" || req.Asserter == "" {
		return "", fault.Wrapf(fault.ErrInvalidInput, "assertion needs claim and asserter")
	}
	minBond, _ := s.MinimumBond(ctx, req.Currency)
	if req.Bond < minBond {
		return "", fault.Wrapf(fault.ErrInvalidInput, "bond %d below minimum %d", req.Bond, minBond)
	}
	now := s.now()
	liveness := int64(req.Liveness / time.Second)
	id := crypto.Keccak256Hash(
		[]byte(req.Claim),
		[]byte(req.Asserter),
		[]byte(strconv.FormatInt(now.UnixNano(), 10)),
		[]byte(uuid.NewString()),
	).Hex()
	_, err := s.DB.ExecContext(ctx, `INSERT INTO oracle_assertions(id,claim,asserter,currency,bond,liveness_seconds,asserted_at,expires_at) VALUES (?,?,?,?,?,?,?,?)`,
		id, req.Claim, req.Asserter, req.Currency, req.Bond, liveness, now.Unix(), now.Unix()+liveness)
	if err != nil {
		return "", fault.Cause(fault.ErrOracleUnavailable, err)
	}
	s.logger().Info("oracle assertion opened", "assertion_id", id, "liveness_seconds", liveness)
	return id, nil
}

// Dispute challenges an assertion inside its liveness window. The assertion
// then waits for RecordVerdict.
func (s *Sim) Dispute(ctx context.Context, id, disputer string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case a.Settled:
		return fault.Wrapf(fault.ErrAssertionSettled, "%s", id)
	case a.Disputed:
		return fault.Wrapf(fault.ErrAssertionPending, "%s already disputed", id)
	case !s.now().Before(a.ExpiresAt):
		return fault.Wrapf(fault.ErrInvalidInput, "liveness window for %s has ended", id)
	}
	_, err = s.DB.ExecContext(ctx, `UPDATE oracle_assertions SET disputed=1, disputer=? WHERE id=? AND disputed=0`, disputer, id)
	return err
}

// RecordVerdict settles a disputed assertion and pushes the result to OnResolved.
func (s *Sim) RecordVerdict(ctx context.Context, id string, truthful bool) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !a.Disputed {
		return fault.Wrapf(fault.ErrInvalidInput, "%s is not disputed", id)
	}
	if a.Settled {
		return fault.Wrapf(fault.ErrAssertionSettled, "%s", id)
	}
	if _, err := s.DB.ExecContext(ctx, `UPDATE oracle_assertions SET verdict=?, settled=1, truthful=?, settled_at=? WHERE id=? AND settled=0`,
		boolInt(truthful), boolInt(truthful), s.now().Unix(), id); err != nil {
		return err
	}
	s.logger().Info("oracle verdict recorded", "assertion_id", id, "truthful", truthful)
	if s.OnResolved == nil {
		return nil
	}
	return s.OnResolved(ctx, id, truthful)
}

func (s *Sim) SettleAndGetResult(ctx context.Context, id string) (bool, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if a.Settled {
		return *a.Truthful, nil
	}
	if a.Disputed {
		return false, fault.Wrapf(fault.ErrOracleUnavailable, "dispute on %s awaiting verdict", id)
	}
	if s.now().Before(a.ExpiresAt) {
		return false, fault.Wrapf(fault.ErrLivenessNotElapsed, "%s expires at %s", id, a.ExpiresAt.Format(time.RFC3339))
	}
	if _, err := s.DB.ExecContext(ctx, `UPDATE oracle_assertions SET settled=1, truthful=1, settled_at=? WHERE id=? AND settled=0`, s.now().Unix(), id); err != nil {
		return false, fault.Cause(fault.ErrOracleUnavailable, err)
	}
	return true, nil
}

func (s *Sim) Get(ctx context.Context, id string) (SimAssertion, error) {
	var (
		a                     SimAssertion
		assertedAt, expiresAt int64
		disputed, settled     int
		disputer              sql.NullString
		verdict, truthful     sql.NullInt64
		settledAt             sql.NullInt64
	)
	err := s.DB.QueryRowContext(ctx, `SELECT id,claim,asserter,currency,bond,liveness_seconds,asserted_at,expires_at,disputed,disputer,verdict,settled,truthful,settled_at FROM oracle_assertions WHERE id=?`, id).
		Scan(&a.ID, &a.Claim, &a.Asserter, &a.Currency, &a.Bond, &a.Liveness, &assertedAt, &expiresAt, &disputed, &disputer, &verdict, &settled, &truthful, &settledAt)
	if err == sql.ErrNoRows {
		return a, fmt.Errorf("%w: %s", ErrUnknownAssertion, id)
	}
	if err != nil {
		return a, err
	}
	a.AssertedAt = time.Unix(assertedAt, 0).UTC()
	a.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	a.Disputed = disputed != 0
	a.Disputer = disputer.String
	a.Settled = settled != 0
	if verdict.Valid {
		v := verdict.Int64 != 0
		a.Verdict = &v
	}
	if truthful.Valid {
		v := truthful.Int64 != 0
		a.Truthful = &v
	}
	if settledAt.Valid {
		t := time.Unix(settledAt.Int64, 0).UTC()
		a.SettledAt = &t
	}
	return a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
