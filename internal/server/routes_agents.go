package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"veribond/internal/domain"
	"veribond/internal/engine"
)

type agentPath struct {
	AgentID string `path:"agent_id"`
}

func registerAgents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-agent",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}",
		Summary:     "Get agent account",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *agentPath) (*struct {
		Body domain.AgentAccount `json:"body"`
	}, error) {
		a, err := e.GetAgent(ctx, input.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AgentAccount `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "agent-accuracy",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}/accuracy",
		Summary:     "Correct and total resolved claims",
	}, func(ctx context.Context, input *agentPath) (*struct {
		Body AccuracyResponse `json:"body"`
	}, error) {
		correct, total, err := e.AgentAccuracy(ctx, input.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AccuracyResponse `json:"body"`
		}{Body: AccuracyResponse{AgentID: input.AgentID, Correct: correct, Total: total}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fund-reserve",
		Method:      http.MethodPost,
		Path:        "/agents/{agent_id}/reserve",
		Summary:     "Fund an agent's reward reserve from the caller's balance",
		Errors:      []int{http.StatusBadRequest, http.StatusPaymentRequired},
	}, func(ctx context.Context, input *struct {
		AgentID string        `path:"agent_id"`
		Body    AmountRequest `json:"body"`
	}) (*struct {
		Body domain.AgentAccount `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.FundReserve(ctx, input.AgentID, actor, input.Body.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AgentAccount `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "bind-wallet",
		Method:        http.MethodPut,
		Path:          "/agents/{agent_id}/wallet",
		Summary:       "Bind the wallet allowed to stake for an agent",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		AgentID string            `path:"agent_id"`
		Body    BindWalletRequest `json:"body"`
	}) (*struct{}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.BindWallet(ctx, actor, input.AgentID, input.Body.Wallet); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAccounts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-balance",
		Method:      http.MethodGet,
		Path:        "/accounts/{account}/balance",
		Summary:     "Account balance",
	}, func(ctx context.Context, input *struct {
		Account string `path:"account"`
	}) (*struct {
		Body BalanceResponse `json:"body"`
	}, error) {
		b, err := e.Balance(ctx, input.Account)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BalanceResponse `json:"body"`
		}{Body: BalanceResponse{Account: input.Account, Balance: b}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deposit",
		Method:      http.MethodPost,
		Path:        "/accounts/{account}/deposit",
		Summary:     "Credit an account (operator)",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Account string        `path:"account"`
		Body    AmountRequest `json:"body"`
	}) (*struct {
		Body BalanceResponse `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.Deposit(ctx, actor, input.Account, input.Body.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BalanceResponse `json:"body"`
		}{Body: BalanceResponse{Account: input.Account, Balance: b}}, nil
	})
}
