// Package veribondsdk is a small client for the VeriBond ledger HTTP API.
package veribondsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client calls the ledger API. Exactly one of BearerToken, APIKey or ActorID
// is sent, in that order of preference.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id, which servers only honour in local mode.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type Claim struct {
	ID               string     `json:"id"`
	AgentID          string     `json:"agent_id"`
	Submitter        string     `json:"submitter"`
	ClaimHash        string     `json:"claim_hash"`
	ClaimText        string     `json:"claim_text,omitempty"`
	Stake            int64      `json:"stake"`
	PredictedOutcome bool       `json:"predicted_outcome"`
	SubmittedAt      time.Time  `json:"submitted_at"`
	ResolvesAt       time.Time  `json:"resolves_at"`
	State            string     `json:"state"`
	WasCorrect       *bool      `json:"was_correct,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	PolicyVersion    *int64     `json:"policy_version,omitempty"`
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
	SettledAt     time.Time `json:"settled_at"`
}

type Resolution struct {
	Claim      Claim      `json:"claim"`
	Settlement Settlement `json:"settlement"`
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
	AssertedAt       time.Time  `json:"asserted_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
}

// Event represents a ledger log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type DueResult struct {
	ClaimID string `json:"claim_id"`
	Status  string `json:"status"`
	Correct *bool  `json:"correct,omitempty"`
	Error   string `json:"error,omitempty"`
}

type AssertionSettleResult struct {
	ClaimHash   string `json:"claim_hash"`
	AssertionID string `json:"assertion_id"`
	Status      string `json:"status"`
	Outcome     *bool  `json:"outcome,omitempty"`
	Error       string `json:"error,omitempty"`
}

type KeeperRun struct {
	Claims     []DueResult             `json:"claims"`
	Assertions []AssertionSettleResult `json:"assertions"`
}

type SubmitClaim struct {
	AgentID          string    `json:"agent_id"`
	ClaimHash        string    `json:"claim_hash"`
	ClaimText        string    `json:"claim_text,omitempty"`
	Stake            int64     `json:"stake"`
	PredictedOutcome bool      `json:"predicted_outcome"`
	ResolvesAt       time.Time `json:"resolves_at"`
}

// APIError wraps non-2xx responses. Code and Retryable come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SubmitClaim stakes on a claim as the authenticated wallet.
func (c *Client) SubmitClaim(ctx context.Context, in SubmitClaim) (Claim, error) {
	var resp Claim
	err := c.do(ctx, http.MethodPost, "claims", in, &resp)
	return resp, err
}

func (c *Client) GetClaim(ctx context.Context, id string) (Claim, error) {
	var resp Claim
	err := c.do(ctx, http.MethodGet, "claims/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ResolveClaim settles a due claim. Anyone may call it.
func (c *Client) ResolveClaim(ctx context.Context, id string) (Resolution, error) {
	var resp Resolution
	err := c.do(ctx, http.MethodPost, "claims/"+url.PathEscape(id)+"/resolve", nil, &resp)
	return resp, err
}

func (c *Client) Settlement(ctx context.Context, claimID string) (Settlement, error) {
	var resp Settlement
	err := c.do(ctx, http.MethodGet, "claims/"+url.PathEscape(claimID)+"/settlement", nil, &resp)
	return resp, err
}

// SetOutcome records an admin outcome. Operator only.
func (c *Client) SetOutcome(ctx context.Context, claimHash string, outcome bool) error {
	return c.do(ctx, http.MethodPut, "outcomes/"+url.PathEscape(claimHash), map[string]any{"outcome": outcome}, nil)
}

// RequestResolution posts the oracle bond from the caller's balance.
func (c *Client) RequestResolution(ctx context.Context, claimHash, claimText string, predicted bool) (Assertion, error) {
	var resp Assertion
	err := c.do(ctx, http.MethodPost, "assertions", map[string]any{
		"claim_hash":        claimHash,
		"claim_text":        claimText,
		"predicted_outcome": predicted,
	}, &resp)
	return resp, err
}

func (c *Client) SettleAssertion(ctx context.Context, claimHash string) (Assertion, error) {
	var resp Assertion
	err := c.do(ctx, http.MethodPost, "assertions/"+url.PathEscape(claimHash)+"/settle", nil, &resp)
	return resp, err
}

func (c *Client) Balance(ctx context.Context, account string) (int64, error) {
	var resp struct {
		Balance int64 `json:"balance"`
	}
	err := c.do(ctx, http.MethodGet, "accounts/"+url.PathEscape(account)+"/balance", nil, &resp)
	return resp.Balance, err
}

// RunKeeper settles expired assertions and resolves due claims server-side.
func (c *Client) RunKeeper(ctx context.Context, limit, workers int) (KeeperRun, error) {
	var resp KeeperRun
	err := c.do(ctx, http.MethodPost, "keeper/run", map[string]any{"limit": limit, "workers": workers}, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Retryable, _ = env.Error.Details["retryable"].(bool)
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
