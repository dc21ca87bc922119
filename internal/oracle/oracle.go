// Package oracle is the contract the assertion resolver holds with an
// external optimistic oracle, plus a local simulator of one.
package oracle

import (
	"context"
	"time"
)

type AssertionRequest struct {
	Claim    string
	Asserter string
	Currency string
	Bond     int64
	Liveness time.Duration
}

// Service is an optimistic oracle. A claim asserted through it is taken as
// truthful unless disputed within the liveness window.
type Service interface {
	MinimumBond(ctx context.Context, currency string) (int64, error)
	OpenAssertion(ctx context.Context, req AssertionRequest) (string, error)
	// SettleAndGetResult finalises an assertion and reports whether it was truthful.
	SettleAndGetResult(ctx context.Context, assertionID string) (bool, error)
}

// ResolvedFunc receives the oracle's verdict for an assertion.
type ResolvedFunc func(ctx context.Context, assertionID string, truthful bool) error
