package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"veribond/internal/domain"
	"veribond/internal/engine"
	"veribond/internal/repo"
)

func registerClaims(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-claim",
		Method:        http.MethodPost,
		Path:          "/claims",
		Summary:       "Stake on a claim",
		Description:   "The caller must be the agent's bound wallet. The stake moves into escrow.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict, http.StatusPaymentRequired},
	}, func(ctx context.Context, input *struct {
		Body SubmitClaimRequest `json:"body"`
	}) (*struct {
		Body domain.Claim `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.Submit(ctx, engine.SubmitRequest{
			AgentID:          input.Body.AgentID,
			ClaimHash:        input.Body.ClaimHash,
			ClaimText:        input.Body.ClaimText,
			Stake:            input.Body.Stake,
			PredictedOutcome: input.Body.PredictedOutcome,
			ResolvesAt:       input.Body.ResolvesAt,
			Submitter:        actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Claim `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-claims",
		Method:      http.MethodGet,
		Path:        "/claims",
		Summary:     "List claims, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AgentID string `query:"agent_id"`
		State   string `query:"state" enum:"submitted,resolved"`
		Limit   int    `query:"limit" default:"50"`
		Cursor  string `query:"cursor"`
	}) (*struct {
		Body paginatedClaims `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		f := repo.ClaimFilters{AgentID: input.AgentID, State: input.State, Limit: limit + 1}
		if input.Cursor != "" {
			ts, id, err := parseClaimCursor(input.Cursor)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "invalid_input", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			f.CursorSubmittedAt, f.CursorID = ts, id
		}
		items, err := e.ListClaims(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedClaims{Items: []domain.Claim{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = fmt.Sprintf("%d|%s", last.SubmittedAt.Unix(), last.ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedClaims `json:"body"`
		}{Body: resp}, nil
	})

	type claimPath struct {
		ID string `path:"claim_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-claim",
		Method:      http.MethodGet,
		Path:        "/claims/{claim_id}",
		Summary:     "Get claim",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *claimPath) (*struct {
		Body domain.Claim `json:"body"`
	}, error) {
		c, err := e.GetClaim(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Claim `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-claim",
		Method:      http.MethodPost,
		Path:        "/claims/{claim_id}/resolve",
		Summary:     "Resolve a due claim",
		Description: "Anyone may resolve. Rejected with not_yet_eligible (retryable) before the resolution time or before the resolver has an outcome.",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *claimPath) (*struct {
		Body engine.Resolution `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Resolve(ctx, input.ID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Resolution `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-settlement",
		Method:      http.MethodGet,
		Path:        "/claims/{claim_id}/settlement",
		Summary:     "Get the settlement of a resolved claim",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *claimPath) (*struct {
		Body domain.Settlement `json:"body"`
	}, error) {
		s, err := e.GetSettlement(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Settlement `json:"body"`
		}{Body: s}, nil
	})
}

func parseClaimCursor(cursor string) (int64, string, error) {
	ts, id, ok := strings.Cut(cursor, "|")
	if !ok || ts == "" || id == "" {
		return 0, "", fmt.Errorf("invalid cursor")
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, "", err
	}
	return n, id, nil
}

func registerKeeper(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "keeper-run",
		Method:      http.MethodPost,
		Path:        "/keeper/run",
		Summary:     "Settle expired assertions, then resolve due claims",
	}, func(ctx context.Context, input *struct {
		Body ResolveDueRequest `json:"body"`
	}) (*struct {
		Body ResolveDueResponse `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit, workers := input.Body.Limit, input.Body.Workers
		if e.Config != nil {
			if limit == 0 {
				limit = e.Config.Keeper.Batch
			}
			if workers == 0 {
				workers = e.Config.Keeper.Workers
			}
		}
		assertions, err := e.SettleExpiredAssertions(ctx, limit, actor)
		if err != nil {
			return nil, handleError(err)
		}
		claims, err := e.ResolveDue(ctx, limit, workers, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResolveDueResponse `json:"body"`
		}{Body: ResolveDueResponse{Claims: nonNil(claims), Assertions: nonNil(assertions)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Check escrow against open stakes and reserves",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.AuditReport `json:"body"`
	}, error) {
		r, err := e.Audit(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.AuditReport `json:"body"`
		}{Body: r}, nil
	})
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
