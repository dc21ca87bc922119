package repo

import (
	"context"
	"database/sql"

	"veribond/internal/domain"
)

const policyColumns = `version,min_stake,slash_percent,reward_bps,protocol_bps,market_bps,bonus_rate_bps,bonus_cap,resolver,liveness_seconds,bond_currency,protocol_treasury,COALESCE(market_treasury,''),COALESCE(created_by,''),created_at`

func scanPolicy(row rowScanner) (domain.Policy, error) {
	var p domain.Policy
	var createdAt int64
	err := row.Scan(&p.Version, &p.MinStake, &p.SlashPercent, &p.Split.RewardBps, &p.Split.ProtocolBps, &p.Split.MarketBps,
		&p.BonusRateBps, &p.BonusCap, &p.Resolver, &p.LivenessSeconds, &p.BondCurrency, &p.ProtocolTreasury, &p.MarketTreasury,
		&p.CreatedBy, &createdAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.CreatedAt = fromUnix(createdAt)
	return p, nil
}

// InsertPolicy appends p as the next version and returns the stored policy.
func (r Repo) InsertPolicy(ctx context.Context, tx *sql.Tx, p domain.Policy) (domain.Policy, error) {
	q := r.q(tx)
	var next int64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(version),0)+1 FROM policies`).Scan(&next); err != nil {
		return p, err
	}
	p.Version = next
	_, err := q.ExecContext(ctx, `INSERT INTO policies(version,min_stake,slash_percent,reward_bps,protocol_bps,market_bps,bonus_rate_bps,bonus_cap,resolver,liveness_seconds,bond_currency,protocol_treasury,market_treasury,created_by,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.Version, p.MinStake, p.SlashPercent, p.Split.RewardBps, p.Split.ProtocolBps, p.Split.MarketBps, p.BonusRateBps, p.BonusCap,
		p.Resolver, p.LivenessSeconds, p.BondCurrency, p.ProtocolTreasury, nullable(p.MarketTreasury), nullable(p.CreatedBy), unix(p.CreatedAt))
	return p, err
}

// CurrentPolicy returns the highest policy version.
func (r Repo) CurrentPolicy(ctx context.Context, tx *sql.Tx) (domain.Policy, error) {
	return scanPolicy(r.q(tx).QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies ORDER BY version DESC LIMIT 1`))
}

func (r Repo) GetPolicy(ctx context.Context, tx *sql.Tx, version int64) (domain.Policy, error) {
	return scanPolicy(r.q(tx).QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE version=?`, version))
}

func (r Repo) ListPolicies(ctx context.Context, limit int) ([]domain.Policy, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+policyColumns+` FROM policies ORDER BY version DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
