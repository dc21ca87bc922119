package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"veribond/internal/domain"
	"veribond/internal/engine"
)

type policyResponse struct {
	Body domain.Policy `json:"body"`
}

func registerPolicy(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-policy",
		Method:      http.MethodGet,
		Path:        "/policy",
		Summary:     "Current policy",
	}, func(ctx context.Context, _ *struct{}) (*policyResponse, error) {
		p, err := e.CurrentPolicy(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &policyResponse{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "policy-history",
		Method:      http.MethodGet,
		Path:        "/policy/history",
		Summary:     "Policy versions, newest first",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []domain.Policy `json:"body"`
	}, error) {
		items, err := e.PolicyHistory(ctx, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Policy `json:"body"`
		}{Body: nonNil(items)}, nil
	})

	registerPolicySetter(api, "set-min-stake", "/policy/min-stake", "Set the minimum stake",
		func(ctx context.Context, actor string, in IntValueRequest) (domain.Policy, error) {
			return e.SetMinStake(ctx, actor, in.Value)
		})
	registerPolicySetter(api, "set-slash-fraction", "/policy/slash-fraction", "Set the slashed percentage of a wrong stake",
		func(ctx context.Context, actor string, in IntValueRequest) (domain.Policy, error) {
			return e.SetSlashFraction(ctx, actor, in.Value)
		})
	registerPolicySetter(api, "set-slash-split", "/policy/slash-split", "Set the reward/protocol/market split in basis points",
		func(ctx context.Context, actor string, in domain.SlashSplit) (domain.Policy, error) {
			return e.SetSlashSplit(ctx, actor, in)
		})
	registerPolicySetter(api, "set-bonus", "/policy/bonus", "Set the bonus rate and cap",
		func(ctx context.Context, actor string, in BonusPolicyRequest) (domain.Policy, error) {
			return e.SetBonusPolicy(ctx, actor, in.RateBps, in.Cap)
		})
	registerPolicySetter(api, "set-resolver", "/policy/resolver", "Select the outcome resolver",
		func(ctx context.Context, actor string, in ResolverRequest) (domain.Policy, error) {
			return e.SetResolver(ctx, actor, in.Resolver)
		})
	registerPolicySetter(api, "set-liveness", "/policy/liveness", "Set the assertion liveness in seconds",
		func(ctx context.Context, actor string, in IntValueRequest) (domain.Policy, error) {
			return e.SetLiveness(ctx, actor, in.Value)
		})
	registerPolicySetter(api, "set-treasuries", "/policy/treasuries", "Set the protocol and market treasury accounts",
		func(ctx context.Context, actor string, in TreasuriesRequest) (domain.Policy, error) {
			return e.SetTreasuries(ctx, actor, in.Protocol, in.Market)
		})
}

// registerPolicySetter wires one operator-only policy update. Each call
// produces a new policy version.
func registerPolicySetter[T any](api huma.API, id, path, summary string, apply func(context.Context, string, T) (domain.Policy, error)) {
	huma.Register(api, huma.Operation{
		OperationID: id,
		Method:      http.MethodPost,
		Path:        path,
		Summary:     summary,
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body T `json:"body"`
	}) (*policyResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := apply(ctx, actor, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &policyResponse{Body: p}, nil
	})
}
