package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"veribond/internal/domain"
	"veribond/internal/engine"
	"veribond/internal/engine/auth"
	"veribond/internal/logging"
	"veribond/internal/repo"
)

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Resolve the calling actor",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, authErr := callerPrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		op, err := e.IsOperator(ctx, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{ActorID: p.ActorID, Operator: op, Source: p.Source}}, nil
	})
}

func registerDevAuth(api huma.API, cfg AuthConfig) {
	if !cfg.DevLogin {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Mint a short-lived token for any actor (development only)",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		token, err := signDevToken(cfg.JWTSecret, input.Body.ActorID, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "dev_login_unavailable", err.Error(), nil)
		}
		cfg.logger().Warn("dev token issued", "actor_id", input.Body.ActorID)
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func registerOperators(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-operators",
		Method:      http.MethodGet,
		Path:        "/operators",
		Summary:     "List operators",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Operator `json:"body"`
	}, error) {
		ops, err := e.ListOperators(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Operator `json:"body"`
		}{Body: nonNil(ops)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "grant-operator",
		Method:        http.MethodPost,
		Path:          "/operators",
		Summary:       "Grant operator rights",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body GrantOperatorRequest `json:"body"`
	}) (*struct{}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantOperator(ctx, actor, input.Body.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-operator",
		Method:        http.MethodDelete,
		Path:          "/operators/{actor_id}",
		Summary:       "Revoke operator rights",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
	}) (*struct{}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeOperator(ctx, actor, input.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create an API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyCreatedResponse `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, secret, err := e.CreateAPIKey(ctx, actor, input.Body.ActorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyCreatedResponse `json:"body"`
		}{Body: APIKeyCreatedResponse{Key: key, Secret: secret}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List the caller's API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: nonNil(keys)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeAPIKey(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Ledger events, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
		Cursor     string `query:"cursor" doc:"next_cursor from the previous page"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		var before int64
		if input.Cursor != "" {
			v, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || v <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "invalid_cursor", "cursor must be an event id", nil)
			}
			before = v
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     before,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		page := paginatedEvents{Items: nonNil(items)}
		if len(items) > limit {
			page.Items = items[:limit]
			page.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: page}, nil
	})
}

func registerLogs(api huma.API, e engine.Engine, logs *logging.Buffer) {
	huma.Register(api, huma.Operation{
		OperationID: "tail-logs",
		Method:      http.MethodGet,
		Path:        "/logs",
		Summary:     "Recent server log lines (operator)",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Tail int `query:"tail"`
	}) (*struct {
		Body LogsResponse `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RequireOperator(ctx, actor, auth.PermLogsManage); err != nil {
			return nil, handleError(err)
		}
		lines := []string{}
		if logs != nil {
			lines = nonNil(logs.Tail(logging.ClampTail(input.Tail)))
		}
		return &struct {
			Body LogsResponse `json:"body"`
		}{Body: LogsResponse{Lines: lines}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "clear-logs",
		Method:        http.MethodDelete,
		Path:          "/logs",
		Summary:       "Clear the in-memory log buffer (operator)",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RequireOperator(ctx, actor, auth.PermLogsManage); err != nil {
			return nil, handleError(err)
		}
		if logs != nil {
			logs.Clear()
		}
		return &struct{}{}, nil
	})
}
