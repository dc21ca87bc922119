package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"veribond/internal/domain"
)

const claimColumns = `id,agent_id,submitter,claim_hash,COALESCE(claim_text,''),stake,predicted_outcome,submitted_at,resolves_at,state,was_correct,resolved_at,policy_version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (domain.Claim, error) {
	var (
		c                     domain.Claim
		predicted             int
		submittedAt, resolves int64
		wasCorrect, polVer    sql.NullInt64
		resolvedAt            sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.AgentID, &c.Submitter, &c.ClaimHash, &c.ClaimText, &c.Stake, &predicted,
		&submittedAt, &resolves, &c.State, &wasCorrect, &resolvedAt, &polVer)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.PredictedOutcome = predicted != 0
	c.SubmittedAt = fromUnix(submittedAt)
	c.ResolvesAt = fromUnix(resolves)
	if wasCorrect.Valid {
		v := wasCorrect.Int64 != 0
		c.WasCorrect = &v
	}
	c.ResolvedAt = fromNullUnix(resolvedAt)
	if polVer.Valid {
		v := polVer.Int64
		c.PolicyVersion = &v
	}
	return c, nil
}

func (r Repo) InsertClaim(ctx context.Context, tx *sql.Tx, c domain.Claim) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO claims(id,agent_id,submitter,claim_hash,claim_text,stake,predicted_outcome,submitted_at,resolves_at,state)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.AgentID, c.Submitter, c.ClaimHash, nullable(c.ClaimText), c.Stake, boolInt(c.PredictedOutcome),
		unix(c.SubmittedAt), unix(c.ResolvesAt), domain.ClaimSubmitted)
	return err
}

func (r Repo) ClaimExists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT 1 FROM claims WHERE id=?`, id).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) GetClaim(ctx context.Context, tx *sql.Tx, id string) (domain.Claim, error) {
	return scanClaim(r.q(tx).QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id=?`, id))
}

// MarkClaimResolved moves a claim from submitted to resolved. It returns
// ErrNotFound when no submitted claim with that id exists, so two concurrent
// resolutions cannot both win.
func (r Repo) MarkClaimResolved(ctx context.Context, tx *sql.Tx, id string, wasCorrect bool, at time.Time, policyVersion int64) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE claims SET state=?, was_correct=?, resolved_at=?, policy_version=? WHERE id=? AND state=?`,
		domain.ClaimResolved, boolInt(wasCorrect), unix(at), policyVersion, id, domain.ClaimSubmitted)
	return affectedOne(res, err)
}

type ClaimFilters struct {
	AgentID string
	State   string
	Limit   int
	// Cursor pages by (submitted_at, id) descending.
	CursorSubmittedAt int64
	CursorID          string
}

func (r Repo) ListClaims(ctx context.Context, f ClaimFilters) ([]domain.Claim, error) {
	var clauses []string
	var args []any
	if f.AgentID != "" {
		clauses = append(clauses, "agent_id=?")
		args = append(args, f.AgentID)
	}
	if f.State != "" {
		clauses = append(clauses, "state=?")
		args = append(args, f.State)
	}
	if f.CursorID != "" {
		clauses = append(clauses, "(submitted_at < ? OR (submitted_at = ? AND id < ?))")
		args = append(args, f.CursorSubmittedAt, f.CursorSubmittedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + claimColumns + ` FROM claims ` + where + ` ORDER BY submitted_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryClaims(ctx, query, args...)
}

// ListDueClaims returns submitted claims whose resolution time has passed,
// oldest first.
func (r Repo) ListDueClaims(ctx context.Context, now time.Time, limit int) ([]domain.Claim, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryClaims(ctx, `SELECT `+claimColumns+` FROM claims WHERE state=? AND resolves_at<=? ORDER BY resolves_at ASC, id ASC LIMIT ?`,
		domain.ClaimSubmitted, unix(now), limit)
}

// OpenStake sums the stakes of unresolved claims.
func (r Repo) OpenStake(ctx context.Context, tx *sql.Tx) (int64, error) {
	var total int64
	err := r.q(tx).QueryRowContext(ctx, `SELECT COALESCE(SUM(stake),0) FROM claims WHERE state=?`, domain.ClaimSubmitted).Scan(&total)
	return total, err
}

func (r Repo) queryClaims(ctx context.Context, query string, args ...any) ([]domain.Claim, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertSettlement(ctx context.Context, tx *sql.Tx, s domain.Settlement) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO settlements(claim_id,policy_version,outcome,correct,return_amount,bonus_amount,slash_amount,reward_share,protocol_share,market_share,settled_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.ClaimID, s.PolicyVersion, boolInt(s.Outcome), boolInt(s.Correct), s.ReturnAmount, s.BonusAmount, s.SlashAmount,
		s.RewardShare, s.ProtocolShare, s.MarketShare, unix(s.SettledAt))
	return err
}

func (r Repo) GetSettlement(ctx context.Context, tx *sql.Tx, claimID string) (domain.Settlement, error) {
	var (
		s                domain.Settlement
		outcome, correct int
		settledAt        int64
	)
	err := r.q(tx).QueryRowContext(ctx, `SELECT claim_id,policy_version,outcome,correct,return_amount,bonus_amount,slash_amount,reward_share,protocol_share,market_share,settled_at FROM settlements WHERE claim_id=?`, claimID).
		Scan(&s.ClaimID, &s.PolicyVersion, &outcome, &correct, &s.ReturnAmount, &s.BonusAmount, &s.SlashAmount,
			&s.RewardShare, &s.ProtocolShare, &s.MarketShare, &settledAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Outcome = outcome != 0
	s.Correct = correct != 0
	s.SettledAt = fromUnix(settledAt)
	return s, nil
}
