package repo

import (
	"context"
	"database/sql"
	"time"

	"veribond/internal/domain"
)

// EnsureAgent creates the account with zeroed counters if it is missing.
func (r Repo) EnsureAgent(ctx context.Context, tx *sql.Tx, agentID string, now time.Time) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO agents(agent_id,created_at,updated_at) VALUES (?,?,?)`,
		agentID, unix(now), unix(now))
	return err
}

func (r Repo) GetAgent(ctx context.Context, tx *sql.Tx, agentID string) (domain.AgentAccount, error) {
	var (
		a                    domain.AgentAccount
		createdAt, updatedAt int64
	)
	err := r.q(tx).QueryRowContext(ctx, `SELECT agent_id,correct_count,total_count,total_slashed,total_bonus_paid,reward_reserve,created_at,updated_at FROM agents WHERE agent_id=?`, agentID).
		Scan(&a.AgentID, &a.CorrectCount, &a.TotalCount, &a.TotalSlashed, &a.TotalBonusPaid, &a.RewardReserve, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.CreatedAt = fromUnix(createdAt)
	a.UpdatedAt = fromUnix(updatedAt)
	return a, nil
}

func (r Repo) IncrementTotal(ctx context.Context, tx *sql.Tx, agentID string, now time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE agents SET total_count=total_count+1, updated_at=? WHERE agent_id=?`, unix(now), agentID)
	return affectedOne(res, err)
}

func (r Repo) AddReserve(ctx context.Context, tx *sql.Tx, agentID string, amount int64, now time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE agents SET reward_reserve=reward_reserve+?, updated_at=? WHERE agent_id=?`, amount, unix(now), agentID)
	return affectedOne(res, err)
}

// AgentDelta is the account change produced by one settlement.
type AgentDelta struct {
	Correct      bool
	Slashed      int64
	BonusPaid    int64
	ReserveDelta int64
}

func (r Repo) ApplyAgentSettlement(ctx context.Context, tx *sql.Tx, agentID string, d AgentDelta, now time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE agents SET
  correct_count=correct_count+?,
  total_slashed=total_slashed+?,
  total_bonus_paid=total_bonus_paid+?,
  reward_reserve=reward_reserve+?,
  updated_at=?
WHERE agent_id=?`, boolInt(d.Correct), d.Slashed, d.BonusPaid, d.ReserveDelta, unix(now), agentID)
	return affectedOne(res, err)
}

// TotalReserves sums every agent's reward reserve.
func (r Repo) TotalReserves(ctx context.Context, tx *sql.Tx) (int64, error) {
	var total int64
	err := r.q(tx).QueryRowContext(ctx, `SELECT COALESCE(SUM(reward_reserve),0) FROM agents`).Scan(&total)
	return total, err
}

func (r Repo) ListAgents(ctx context.Context, limit int) ([]domain.AgentAccount, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT agent_id,correct_count,total_count,total_slashed,total_bonus_paid,reward_reserve,created_at,updated_at FROM agents ORDER BY agent_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AgentAccount
	for rows.Next() {
		var a domain.AgentAccount
		var createdAt, updatedAt int64
		if err := rows.Scan(&a.AgentID, &a.CorrectCount, &a.TotalCount, &a.TotalSlashed, &a.TotalBonusPaid, &a.RewardReserve, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = fromUnix(createdAt)
		a.UpdatedAt = fromUnix(updatedAt)
		res = append(res, a)
	}
	return res, rows.Err()
}
