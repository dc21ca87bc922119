package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the ledger.
const (
	ClaimSubmitted     = "claim.submitted"
	ClaimResolved      = "claim.resolved"
	ReserveFunded      = "reserve.funded"
	PolicyUpdated      = "policy.updated"
	OutcomeSet         = "outcome.set"
	AssertionRequested = "assertion.requested"
	AssertionSettled   = "assertion.settled"
	OperatorGranted    = "operator.granted"
	OperatorRevoked    = "operator.revoked"
	WalletBound        = "wallet.bound"
	WalletDeposited    = "wallet.deposited"
	APIKeyCreated      = "apikey.created"
	APIKeyRevoked      = "apikey.revoked"
	LedgerBootstrapped = "ledger.bootstrapped"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits or rolls back with the change.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), evtType, entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
