package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"veribond/internal/config"
	"veribond/internal/domain"
	"veribond/internal/engine/auth"
	"veribond/internal/events"
	"veribond/internal/fault"
	"veribond/internal/funds"
	"veribond/internal/identity"
	"veribond/internal/lock"
	"veribond/internal/oracle"
	"veribond/internal/repo"
	"veribond/internal/resolver"
)

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Auth       auth.Service
	Bank       funds.Bank
	Identity   identity.Registry
	Locks      lock.Locker
	Admin      resolver.Admin
	Assertions resolver.Assertion
	Resolvers  resolver.Registry
	Config     *config.Config
	Logger     *slog.Logger
	Now        func() time.Time
}

// New wires an engine over db. Collaborators default to the SQL-backed
// implementations sharing the ledger transaction.
func New(db *sql.DB, cfg *config.Config, orc oracle.Service, locker lock.Locker) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Auth:   auth.Service{DB: db},
		Locks:  locker,
		Config: cfg,
		Logger: slog.Default(),
	}
	e.Assertions.Oracle = orc
	return e.WithClock(time.Now)
}

// WithClock rebinds every clock-dependent collaborator to now.
func (e Engine) WithClock(now func() time.Time) Engine {
	e.Now = now
	e.Events = events.Writer{Now: now}
	bank := funds.SQLBank{Repo: e.Repo, Now: now}
	e.Bank = bank
	e.Identity = identity.SQLRegistry{Repo: e.Repo, Now: now}
	e.Admin = resolver.Admin{Repo: e.Repo, Now: now}
	orc := e.Assertions.Oracle
	e.Assertions = resolver.Assertion{
		Repo:        e.Repo,
		Bank:        bank,
		Oracle:      orc,
		BondAccount: e.Config.Oracle.BondAccount,
		Now:         now,
	}
	e.Resolvers = resolver.Registry{
		resolver.AdminName:     e.Admin,
		resolver.AssertionName: e.Assertions,
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) locker() lock.Locker {
	if e.Locks != nil {
		return e.Locks
	}
	return defaultLocker
}

var defaultLocker = lock.NewLocal()

func (e Engine) currentPolicy(ctx context.Context, tx *sql.Tx) (domain.Policy, error) {
	p, err := e.Repo.CurrentPolicy(ctx, tx)
	if errors.Is(err, repo.ErrNotFound) {
		return p, errors.New("no policy configured; run vb init")
	}
	return p, err
}

func (e Engine) requireOperator(ctx context.Context, tx *sql.Tx, actorID, perm string) error {
	if actorID == "" {
		return fault.Wrapf(fault.ErrForbidden, "actor required")
	}
	return e.Auth.Require(ctx, tx, actorID, perm)
}
