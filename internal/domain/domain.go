package domain

import "time"

const (
	ClaimSubmitted = "submitted"
	ClaimResolved  = "resolved"
)

// BasisPoints is the denominator for every bps-denominated field.
const BasisPoints = 10_000

type Claim struct {
	ID               string     `json:"id"`
	AgentID          string     `json:"agent_id"`
	Submitter        string     `json:"submitter"`
	ClaimHash        string     `json:"claim_hash"`
	ClaimText        string     `json:"claim_text,omitempty"`
	Stake            int64      `json:"stake"`
	PredictedOutcome bool       `json:"predicted_outcome"`
	SubmittedAt      time.Time  `json:"submitted_at" format:"date-time"`
	ResolvesAt       time.Time  `json:"resolves_at" format:"date-time"`
	State            string     `json:"state" enum:"submitted,resolved"`
	WasCorrect       *bool      `json:"was_correct,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty" format:"date-time"`
	PolicyVersion    *int64     `json:"policy_version,omitempty"`
}

type AgentAccount struct {
	AgentID        string    `json:"agent_id"`
	CorrectCount   int64     `json:"correct_count"`
	TotalCount     int64     `json:"total_count"`
	TotalSlashed   int64     `json:"total_slashed"`
	TotalBonusPaid int64     `json:"total_bonus_paid"`
	RewardReserve  int64     `json:"reward_reserve"`
	CreatedAt      time.Time `json:"created_at" format:"date-time"`
	UpdatedAt      time.Time `json:"updated_at" format:"date-time"`
}

type SlashSplit struct {
	RewardBps   int64 `json:"reward_bps" yaml:"reward_bps" validate:"gte=0,lte=10000"`
	ProtocolBps int64 `json:"protocol_bps" yaml:"protocol_bps" validate:"gte=0,lte=10000"`
	MarketBps   int64 `json:"market_bps" yaml:"market_bps" validate:"gte=0,lte=10000"`
}

func (s SlashSplit) Sum() int64 { return s.RewardBps + s.ProtocolBps + s.MarketBps }

// Policy is one version of the operator-controlled resolution policy.
// EscrowAccount is the ledger's own account. No external party may name it
// as a wallet, funder, treasury or bond account.
const EscrowAccount = "escrow"

type Policy struct {
	Version          int64      `json:"version" yaml:"-"`
	MinStake         int64      `json:"min_stake" yaml:"min_stake" validate:"gte=1"`
	SlashPercent     int64      `json:"slash_percent" yaml:"slash_percent" validate:"gte=0,lte=100"`
	Split            SlashSplit `json:"slash_split" yaml:"slash_split"`
	BonusRateBps     int64      `json:"bonus_rate_bps" yaml:"bonus_rate_bps" validate:"gte=0,lte=10000"`
	BonusCap         int64      `json:"bonus_cap" yaml:"bonus_cap" validate:"gte=0"`
	Resolver         string     `json:"resolver" yaml:"resolver" validate:"required"`
	LivenessSeconds  int64      `json:"liveness_seconds" yaml:"liveness_seconds" validate:"gte=60,lte=604800"`
	BondCurrency     string     `json:"bond_currency" yaml:"bond_currency" validate:"required"`
	ProtocolTreasury string     `json:"protocol_treasury" yaml:"protocol_treasury" validate:"required,external_account"`
	MarketTreasury   string     `json:"market_treasury,omitempty" yaml:"market_treasury" validate:"omitempty,external_account"`
	CreatedBy        string     `json:"created_by,omitempty" yaml:"-"`
	CreatedAt        time.Time  `json:"created_at" yaml:"-" format:"date-time"`
}

// MarketDestination is where the market share of a slash goes.
func (p Policy) MarketDestination() string {
	if p.MarketTreasury != "" {
		return p.MarketTreasury
	}
	return p.ProtocolTreasury
}

type Assertion struct {
	ClaimHash        string     `json:"claim_hash"`
	AssertionID      string     `json:"assertion_id"`
	Requester        string     `json:"requester"`
	ClaimText        string     `json:"claim_text,omitempty"`
	PredictedOutcome bool       `json:"predicted_outcome"`
	Bond             int64      `json:"bond"`
	Pending          bool       `json:"pending"`
	OutcomeSet       bool       `json:"outcome_set"`
	Outcome          bool       `json:"outcome"`
	AssertedAt       time.Time  `json:"asserted_at" format:"date-time"`
	ExpiresAt        time.Time  `json:"expires_at" format:"date-time"`
	SettledAt        *time.Time `json:"settled_at,omitempty" format:"date-time"`
}

type AdminOutcome struct {
	ClaimHash string    `json:"claim_hash"`
	Outcome   bool      `json:"outcome"`
	SetBy     string    `json:"set_by"`
	SetAt     time.Time `json:"set_at" format:"date-time"`
}

type Settlement struct {
	ClaimID       string    `json:"claim_id"`
	PolicyVersion int64     `json:"policy_version"`
	Outcome       bool      `json:"outcome"`
	Correct       bool      `json:"correct"`
	ReturnAmount  int64     `json:"return_amount"`
	BonusAmount   int64     `json:"bonus_amount"`
	SlashAmount   int64     `json:"slash_amount"`
	RewardShare   int64     `json:"reward_share"`
	ProtocolShare int64     `json:"protocol_share"`
	MarketShare   int64     `json:"market_share"`
	SettledAt     time.Time `json:"settled_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Operator struct {
	ActorID   string `json:"actor_id"`
	GrantedBy string `json:"granted_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
