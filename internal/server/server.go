package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"veribond/internal/engine"
	"veribond/internal/engine/auth"
	"veribond/internal/fault"
	"veribond/internal/logging"
	"veribond/internal/metrics"
	"veribond/internal/oracle"
	"veribond/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine engine.Engine
	// Sim, when set, exposes the simulator's dispute and verdict endpoints.
	Sim      *oracle.Sim
	Logs     *logging.Buffer
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"stake_too_low"`
	Message string         `json:"message" example:"stake below minimum: stake 5 below minimum 10"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"retryable\":false}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the ledger API under BasePath and
// Prometheus metrics at /metrics.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "invalid_input", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	hcfg := huma.DefaultConfig("VeriBond Ledger API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	hcfg.SchemasPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerClaims(group, cfg.Engine)
	registerKeeper(group, cfg.Engine)
	registerAgents(group, cfg.Engine)
	registerAccounts(group, cfg.Engine)
	registerPolicy(group, cfg.Engine)
	registerOutcomes(group, cfg.Engine)
	registerAssertions(group, cfg.Engine)
	if cfg.Sim != nil {
		registerOracleSim(group, cfg.Engine, cfg.Sim)
	}
	registerOperators(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerLogs(group, cfg.Engine, cfg.Logs)
	registerOpenAPI(router, api, basePath, cfg.Auth)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps ledger errors onto the envelope. Classified errors carry
// their code and retryability; anything else is an internal error.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	if ce, ok := fault.As(err); ok {
		details := map[string]any{"retryable": ce.Retryable, "kind": ce.Kind.String()}
		return newAPIError(statusForFault(ce), ce.Code, err.Error(), details)
	}
	if errors.Is(err, oracle.ErrUnknownAssertion) {
		return newAPIError(http.StatusNotFound, fault.ErrAssertionNotFound.Code, err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newAPIError(http.StatusServiceUnavailable, "unavailable", err.Error(), map[string]any{"retryable": true})
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func statusForFault(e *fault.Error) int {
	switch e.Kind {
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindAuthorization:
		return http.StatusForbidden
	case fault.KindExternal:
		return http.StatusBadGateway
	}
	switch e.Code {
	case fault.ErrClaimNotFound.Code, fault.ErrAgentNotFound.Code, fault.ErrAssertionNotFound.Code:
		return http.StatusNotFound
	case fault.ErrInsufficientFunds.Code:
		return http.StatusPaymentRequired
	}
	return http.StatusConflict
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	page := []byte(fmt.Sprintf(docsPage, path.Join("/", basePath, "openapi.json")))
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	})
}

// registerOpenAPI serves the generated document once it has been finalized.
func registerOpenAPI(r chi.Router, api huma.API, basePath string, auth AuthConfig) {
	var (
		once sync.Once
		doc  []byte
		err  error
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			finalizeOpenAPI(oas, publicPaths(basePath, auth))
			doc, err = json.Marshal(oas)
		})
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "", err.Error(), nil))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

// finalizeOpenAPI documents the error envelope on every operation and marks
// all routes outside open as requiring a bearer token or API key.
func finalizeOpenAPI(oas *huma.OpenAPI, open map[string]bool) {
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.Schemas == nil {
		oas.Components.Schemas = huma.NewMapRegistry("#/components/schemas/", huma.DefaultSchemaNamer)
	}
	registry := oas.Components.Schemas
	oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		"apiKey": {Type: "apiKey", In: "header", Name: "X-Api-Key"},
	}
	required := []map[string][]string{{"bearer": {}}, {"apiKey": {}}}
	envelope := &huma.Response{
		Description: "Error envelope",
		Content: map[string]*huma.MediaType{
			"application/json": {Schema: registry.Schema(reflect.TypeOf(apiError{}), true, "Error")},
		},
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = envelope
			if open[route] {
				op.Security = []map[string][]string{}
			} else {
				op.Security = required
			}
		}
	}
}

const docsPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>VeriBond ledger API</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>SwaggerUIBundle({url: %q, dom_id: "#ui", deepLinking: true});</script>
</body>
</html>
`

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
