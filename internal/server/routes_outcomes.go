package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"veribond/internal/domain"
	"veribond/internal/engine"
	"veribond/internal/engine/auth"
	"veribond/internal/oracle"
	"veribond/internal/resolver"
)

func registerOutcomes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-outcome",
		Method:      http.MethodPut,
		Path:        "/outcomes/{claim_hash}",
		Summary:     "Record the outcome of a claim hash (admin resolver)",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ClaimHash string         `path:"claim_hash"`
		Body      OutcomeRequest `json:"body"`
	}) (*struct {
		Body domain.AdminOutcome `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.SetOutcome(ctx, actor, input.ClaimHash, input.Body.Outcome)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AdminOutcome `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-outcomes",
		Method:      http.MethodPost,
		Path:        "/outcomes",
		Summary:     "Record a batch of outcomes atomically",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body OutcomeBatchRequest `json:"body"`
	}) (*struct {
		Body []domain.AdminOutcome `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		batch := make([]resolver.OutcomeEntry, 0, len(input.Body.Items))
		for _, it := range input.Body.Items {
			batch = append(batch, resolver.OutcomeEntry{ClaimHash: it.ClaimHash, Outcome: it.Outcome})
		}
		out, err := e.SetOutcomes(ctx, actor, batch)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AdminOutcome `json:"body"`
		}{Body: out}, nil
	})
}

type assertionResponse struct {
	Body domain.Assertion `json:"body"`
}

func registerAssertions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "request-resolution",
		Method:        http.MethodPost,
		Path:          "/assertions",
		Summary:       "Post a bond and assert a claim's outcome to the oracle",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusPaymentRequired, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Body RequestResolutionRequest `json:"body"`
	}) (*assertionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RequestResolution(ctx, engine.AssertionRequest{
			ClaimHash:        input.Body.ClaimHash,
			ClaimText:        input.Body.ClaimText,
			PredictedOutcome: input.Body.PredictedOutcome,
			Requester:        actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &assertionResponse{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pending-assertions",
		Method:      http.MethodGet,
		Path:        "/assertions",
		Summary:     "Pending assertions, soonest expiry first",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []domain.Assertion `json:"body"`
	}, error) {
		items, err := e.PendingAssertions(ctx, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Assertion `json:"body"`
		}{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-assertion",
		Method:      http.MethodGet,
		Path:        "/assertions/{claim_hash}",
		Summary:     "Get the assertion for a claim hash",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClaimHash string `path:"claim_hash"`
	}) (*assertionResponse, error) {
		a, err := e.GetAssertion(ctx, input.ClaimHash)
		if err != nil {
			return nil, handleError(err)
		}
		return &assertionResponse{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "settle-assertion",
		Method:      http.MethodPost,
		Path:        "/assertions/{claim_hash}/settle",
		Summary:     "Finalise an assertion after its liveness window",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		ClaimHash string `path:"claim_hash"`
	}) (*assertionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.SettleAssertion(ctx, input.ClaimHash, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &assertionResponse{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assertion-callback",
		Method:      http.MethodPost,
		Path:        "/assertions/callback",
		Summary:     "Deliver an oracle verdict for an assertion (operator)",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body AssertionCallbackRequest `json:"body"`
	}) (*assertionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RequireOperator(ctx, actor, auth.PermOutcomeWrite); err != nil {
			return nil, handleError(err)
		}
		a, err := e.AssertionResolved(ctx, input.Body.AssertionID, input.Body.Truthful, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &assertionResponse{Body: a}, nil
	})
}

type oracleAssertionPath struct {
	ID string `path:"id"`
}

type oracleAssertionResponse struct {
	Body OracleAssertionResponse `json:"body"`
}

// registerOracleSim exposes the local oracle's dispute desk. A verdict is
// pushed back into the ledger by the simulator's callback.
func registerOracleSim(api huma.API, e engine.Engine, sim *oracle.Sim) {
	huma.Register(api, huma.Operation{
		OperationID: "get-oracle-assertion",
		Method:      http.MethodGet,
		Path:        "/oracle/assertions/{id}",
		Summary:     "Oracle-side view of an assertion",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *oracleAssertionPath) (*oracleAssertionResponse, error) {
		a, err := sim.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &oracleAssertionResponse{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dispute-assertion",
		Method:      http.MethodPost,
		Path:        "/oracle/assertions/{id}/dispute",
		Summary:     "Dispute an assertion inside its liveness window",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *oracleAssertionPath) (*oracleAssertionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := sim.Dispute(ctx, input.ID, actor); err != nil {
			return nil, handleError(err)
		}
		a, err := sim.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &oracleAssertionResponse{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-verdict",
		Method:      http.MethodPost,
		Path:        "/oracle/assertions/{id}/verdict",
		Summary:     "Record the verdict on a disputed assertion (operator)",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body VerdictRequest `json:"body"`
	}) (*oracleAssertionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RequireOperator(ctx, actor, auth.PermOutcomeWrite); err != nil {
			return nil, handleError(err)
		}
		if err := sim.RecordVerdict(ctx, input.ID, input.Body.Truthful); err != nil {
			return nil, handleError(err)
		}
		a, err := sim.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &oracleAssertionResponse{Body: a}, nil
	})
}
