package server

import (
	"time"

	"veribond/internal/domain"
	"veribond/internal/engine"
	"veribond/internal/oracle"
)

// Request payloads

type SubmitClaimRequest struct {
	AgentID          string    `json:"agent_id" minLength:"1" maxLength:"128"`
	ClaimHash        string    `json:"claim_hash" pattern:"^0x[0-9a-fA-F]{64}$" example:"0x1111111111111111111111111111111111111111111111111111111111111111"`
	ClaimText        string    `json:"claim_text,omitempty" maxLength:"4096"`
	Stake            int64     `json:"stake" minimum:"1"`
	PredictedOutcome bool      `json:"predicted_outcome"`
	ResolvesAt       time.Time `json:"resolves_at" format:"date-time"`
}

type ResolveDueRequest struct {
	Limit   int `json:"limit,omitempty" minimum:"0" maximum:"1000"`
	Workers int `json:"workers,omitempty" minimum:"0" maximum:"64"`
}

type AmountRequest struct {
	Amount int64 `json:"amount" minimum:"1"`
}

type BindWalletRequest struct {
	Wallet string `json:"wallet" minLength:"1" maxLength:"128"`
}

type IntValueRequest struct {
	Value int64 `json:"value"`
}

type BonusPolicyRequest struct {
	RateBps int64 `json:"rate_bps"`
	Cap     int64 `json:"cap"`
}

type ResolverRequest struct {
	Resolver string `json:"resolver" enum:"admin,assertion"`
}

type TreasuriesRequest struct {
	Protocol string `json:"protocol_treasury" minLength:"1"`
	Market   string `json:"market_treasury,omitempty"`
}

type OutcomeRequest struct {
	Outcome bool `json:"outcome"`
}

type OutcomeBatchItem struct {
	ClaimHash string `json:"claim_hash"`
	Outcome   bool   `json:"outcome"`
}

type OutcomeBatchRequest struct {
	Items []OutcomeBatchItem `json:"items" minItems:"1" maxItems:"500"`
}

type RequestResolutionRequest struct {
	ClaimHash        string `json:"claim_hash"`
	ClaimText        string `json:"claim_text,omitempty" maxLength:"4096"`
	PredictedOutcome bool   `json:"predicted_outcome"`
}

type AssertionCallbackRequest struct {
	AssertionID string `json:"assertion_id" minLength:"1"`
	Truthful    bool   `json:"truthful"`
}

type VerdictRequest struct {
	Truthful bool `json:"truthful"`
}

type GrantOperatorRequest struct {
	ActorID string `json:"actor_id" minLength:"1" maxLength:"128"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	Name    string `json:"name,omitempty" maxLength:"128"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id" minLength:"1"`
}

// Response payloads

type paginatedClaims struct {
	Items      []domain.Claim `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type AccuracyResponse struct {
	AgentID string `json:"agent_id"`
	Correct int64  `json:"correct"`
	Total   int64  `json:"total"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

type ResolveDueResponse struct {
	Claims     []engine.DueResult `json:"claims"`
	Assertions []engine.AssertionSettleResult `json:"assertions"`
}

type OracleAssertionResponse = oracle.SimAssertion

type APIKeyCreatedResponse struct {
	Key    domain.APIKey `json:"key"`
	Secret string        `json:"secret" doc:"Shown once; only its hash is stored."`
}

type LogsResponse struct {
	Lines []string `json:"lines"`
}

type WhoAmIResponse struct {
	ActorID  string `json:"actor_id"`
	Operator bool   `json:"operator"`
	Source   string `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}
