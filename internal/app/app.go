// Package app assembles a ledger runtime from a workspace: databases,
// migrations, config, logging, locks and the oracle simulator.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"veribond/internal/config"
	"veribond/internal/db"
	"veribond/internal/engine"
	"veribond/internal/lock"
	"veribond/internal/logging"
	"veribond/internal/migrate"
	"veribond/internal/oracle"
)

const (
	oracleDBName    = "oracle.db"
	redisLockPrefix = "veribond:lock:"
	// OracleActor is recorded as the actor of oracle callbacks.
	OracleActor = "oracle"
)

type Options struct {
	Workspace string
	// ActorID is recorded as the bootstrapping actor on a fresh ledger.
	ActorID string
	// Config overrides the workspace config file when set.
	Config *config.Config
	LogOut io.Writer
}

// Runtime is an opened workspace.
type Runtime struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	OracleDB  *sql.DB
	Sim       *oracle.Sim
	Engine    engine.Engine
	Logger    *slog.Logger
	Logs      *logging.Buffer
	redis     *redis.Client
}

// Open migrates the workspace databases and seeds the first policy version
// and operators from config when the ledger is empty.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadOrDefault(opts.Workspace); err != nil {
			return nil, err
		}
	}
	logger, buf, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		JSON:        cfg.Logging.JSON,
		Out:         opts.LogOut,
		BufferLines: cfg.Logging.BufferLines,
	})
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Workspace: opts.Workspace, Config: cfg, Logger: logger, Logs: buf}

	if rt.DB, err = db.Open(db.Config{Workspace: opts.Workspace}); err != nil {
		return nil, err
	}
	if err := migrate.Migrate(rt.DB); err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	if rt.OracleDB, err = db.Open(db.Config{Workspace: opts.Workspace, Name: oracleDBName}); err != nil {
		rt.Close()
		return nil, err
	}
	if rt.Sim, err = oracle.OpenSim(rt.OracleDB, cfg.Oracle.MinimumBond); err != nil {
		rt.Close()
		return nil, err
	}
	rt.Sim.BondByAsset = cfg.Oracle.BondByAsset
	rt.Sim.Logger = logger.With("component", "oracle-sim")

	locker, err := rt.locker(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	eng := engine.New(rt.DB, cfg, rt.Sim, locker)
	eng.Logger = logger
	rt.Engine = eng
	rt.Sim.OnResolved = func(ctx context.Context, assertionID string, truthful bool) error {
		_, err := rt.Engine.AssertionResolved(ctx, assertionID, truthful, OracleActor)
		return err
	}

	actor := opts.ActorID
	if actor == "" && len(cfg.Operators) > 0 {
		actor = cfg.Operators[0]
	}
	seeded, err := eng.Bootstrap(ctx, cfg.Policy, cfg.Operators, actor)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("bootstrap ledger: %w", err)
	}
	if !seeded {
		logger.Info("ledger already seeded; config policy and operators ignored", "workspace", opts.Workspace)
	}
	return rt, nil
}

func (rt *Runtime) locker(ctx context.Context) (lock.Locker, error) {
	switch rt.Config.Locks.Backend {
	case "redis":
		rt.redis = lock.NewRedisClient(rt.Config.Locks.RedisAddr, "", rt.Config.Locks.RedisDB)
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis lock backend %s: %w", rt.Config.Locks.RedisAddr, err)
		}
		return lock.NewRedis(rt.redis, redisLockPrefix, rt.Config.Locks.TTL), nil
	default:
		return lock.NewLocal(), nil
	}
}

func (rt *Runtime) Close() error {
	var errs []error
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	if rt.OracleDB != nil {
		errs = append(errs, rt.OracleDB.Close())
	}
	if rt.DB != nil {
		errs = append(errs, rt.DB.Close())
	}
	return errors.Join(errs...)
}
