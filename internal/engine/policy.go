package engine

import (
	"context"

	"veribond/internal/config"
	"veribond/internal/domain"
	"veribond/internal/engine/auth"
	"veribond/internal/events"
	"veribond/internal/fault"
	"veribond/internal/settlement"
)

func (e Engine) CurrentPolicy(ctx context.Context) (domain.Policy, error) {
	return e.currentPolicy(ctx, nil)
}

func (e Engine) PolicyHistory(ctx context.Context, limit int) ([]domain.Policy, error) {
	return e.Repo.ListPolicies(ctx, limit)
}

// ValidatePolicy applies every rule a stored policy must satisfy.
func (e Engine) ValidatePolicy(p domain.Policy) error {
	if err := settlement.ValidatePolicy(p); err != nil {
		return err
	}
	if err := config.ValidatePolicy(p); err != nil {
		return fault.Wrapf(fault.ErrInvalidPolicy, "%v", err)
	}
	if _, err := e.Resolvers.Get(p.Resolver); err != nil {
		return fault.Wrapf(fault.ErrInvalidPolicy, "%v", err)
	}
	return nil
}

// updatePolicy writes a new policy version derived from the current one.
func (e Engine) updatePolicy(ctx context.Context, actorID, field string, mutate func(p *domain.Policy)) (domain.Policy, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Policy{}, err
	}
	defer tx.Rollback()
	if err := e.requireOperator(ctx, tx, actorID, auth.PermPolicyWrite); err != nil {
		return domain.Policy{}, err
	}
	cur, err := e.currentPolicy(ctx, tx)
	if err != nil {
		return domain.Policy{}, err
	}
	next := cur
	mutate(&next)
	if err := e.ValidatePolicy(next); err != nil {
		return domain.Policy{}, err
	}
	next.CreatedBy = actorID
	next.CreatedAt = e.now()
	stored, err := e.Repo.InsertPolicy(ctx, tx, next)
	if err != nil {
		return domain.Policy{}, err
	}
	if err := e.Events.Append(ctx, tx, events.PolicyUpdated, "policy", "", actorID, events.EventPayload{
		"field":    field,
		"version":  stored.Version,
		"previous": cur.Version,
	}); err != nil {
		return domain.Policy{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Policy{}, err
	}
	e.log().Info("policy updated", "field", field, "version", stored.Version, "actor_id", actorID)
	return stored, nil
}

func (e Engine) SetMinStake(ctx context.Context, actorID string, minStake int64) (domain.Policy, error) {
	return e.updatePolicy(ctx, actorID, "min_stake", func(p *domain.Policy) { p.MinStake = minStake })
}

func (e Engine) SetSlashFraction(ctx context.Context, actorID string, percent int64) (domain.Policy, error) {
	return e.updatePolicy(ctx, actorID, "slash_percent", func(p *domain.Policy) { p.SlashPercent = percent })
}

func (e Engine) SetSlashSplit(ctx context.Context, actorID string, split domain.SlashSplit) (domain.Policy, error) {
	return e.updatePolicy(ctx, actorID, "slash_split", func(p *domain.Policy) { p.Split = split })
}

func (e Engine) SetBonusPolicy(ctx context.Context, actorID string, rateBps, bonusCap int64) (domain.Policy, error) {
	return e.updatePolicy(ctx, actorID, "bonus", func(p *domain.Policy) {
		p.BonusRateBps = rateBps
		p.BonusCap = bonusCap
	})
}

func (e Engine) SetResolver(ctx context.Context, actorID, name string) (domain.Policy, error) {
	return e.updatePolicy(ctx, actorID, "resolver", func(p *domain.Policy) { p.Resolver = name })
}

func (e Engine) SetLiveness(ctx context.Context, actorID string, seconds int64) (domain.Policy, error) {
	return e.updatePolicy(ctx, actorID, "liveness_seconds", func(p *domain.Policy) { p.LivenessSeconds = seconds })
}

// SetTreasuries changes the slash destinations. An empty market treasury
// routes the market share to the protocol treasury.
func (e Engine) SetTreasuries(ctx context.Context, actorID, protocol, market string) (domain.Policy, error) {
	return e.updatePolicy(ctx, actorID, "treasuries", func(p *domain.Policy) {
		p.ProtocolTreasury = protocol
		p.MarketTreasury = market
	})
}
