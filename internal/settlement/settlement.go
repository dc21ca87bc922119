// Package settlement computes the amounts owed when a claim resolves. It does
// no I/O; the engine applies the result.
package settlement

import (
	"github.com/holiman/uint256"

	"veribond/internal/domain"
	"veribond/internal/fault"
)

type Input struct {
	Stake         int64
	Predicted     bool
	Outcome       bool
	ReserveBefore int64
}

type Result struct {
	Correct       bool  `json:"correct"`
	ReturnAmount  int64 `json:"return_amount"`
	BonusAmount   int64 `json:"bonus_amount"`
	SlashAmount   int64 `json:"slash_amount"`
	RewardShare   int64 `json:"reward_share"`
	ProtocolShare int64 `json:"protocol_share"`
	MarketShare   int64 `json:"market_share"`
}

// Payout is what leaves escrow to the submitter.
func (r Result) Payout() int64 { return r.ReturnAmount + r.BonusAmount }

// ReserveDelta is the signed change to the agent's reward reserve.
func (r Result) ReserveDelta() int64 {
	if r.Correct {
		return -r.BonusAmount
	}
	return r.RewardShare
}

// Compute settles one claim against policy p.
func Compute(in Input, p domain.Policy) (Result, error) {
	if in.Stake <= 0 || in.ReserveBefore < 0 {
		return Result{}, fault.Wrapf(fault.ErrInvalidInput, "stake %d reserve %d", in.Stake, in.ReserveBefore)
	}
	if err := ValidatePolicy(p); err != nil {
		return Result{}, err
	}
	if in.Predicted == in.Outcome {
		bonus := mulDiv(in.Stake, p.BonusRateBps, domain.BasisPoints)
		bonus = min(bonus, p.BonusCap, in.ReserveBefore)
		return Result{Correct: true, ReturnAmount: in.Stake, BonusAmount: bonus}, nil
	}
	slash := mulDiv(in.Stake, p.SlashPercent, 100)
	reward := mulDiv(slash, p.Split.RewardBps, domain.BasisPoints)
	protocol := mulDiv(slash, p.Split.ProtocolBps, domain.BasisPoints)
	return Result{
		ReturnAmount:  in.Stake - slash,
		SlashAmount:   slash,
		RewardShare:   reward,
		ProtocolShare: protocol,
		// Rounding dust lands in the market share.
		MarketShare: slash - reward - protocol,
	}, nil
}

// ValidatePolicy checks the arithmetic constraints Compute relies on.
func ValidatePolicy(p domain.Policy) error {
	switch {
	case p.MinStake <= 0:
		return fault.Wrapf(fault.ErrInvalidPolicy, "min_stake must be positive")
	case p.SlashPercent < 0 || p.SlashPercent > 100:
		return fault.Wrapf(fault.ErrInvalidPolicy, "slash_percent %d outside [0,100]", p.SlashPercent)
	case p.Split.RewardBps < 0 || p.Split.ProtocolBps < 0 || p.Split.MarketBps < 0:
		return fault.Wrapf(fault.ErrInvalidPolicy, "negative split component")
	case p.Split.Sum() != domain.BasisPoints:
		return fault.Wrapf(fault.ErrInvalidPolicy, "slash split sums to %d, want %d", p.Split.Sum(), domain.BasisPoints)
	case p.BonusRateBps < 0 || p.BonusRateBps > domain.BasisPoints:
		return fault.Wrapf(fault.ErrInvalidPolicy, "bonus_rate_bps %d outside [0,%d]", p.BonusRateBps, domain.BasisPoints)
	case p.BonusCap < 0:
		return fault.Wrapf(fault.ErrInvalidPolicy, "bonus_cap must not be negative")
	}
	return nil
}

// mulDiv returns a*b/d in 256-bit arithmetic. Callers guarantee b <= d, so the
// quotient never exceeds a and fits back into int64.
func mulDiv(a, b, d int64) int64 {
	x := uint256.NewInt(uint64(a))
	x.Mul(x, uint256.NewInt(uint64(b)))
	x.Div(x, uint256.NewInt(uint64(d)))
	return int64(x.Uint64())
}
