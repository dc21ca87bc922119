package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"veribond/internal/repo"
)

const devTokenIssuer = "veribond-dev"

type AuthConfig struct {
	JWTSecret string
	// AllowActorHeader trusts X-Actor-Id without credentials. Local use only.
	AllowActorHeader bool
	// DevLogin exposes POST /auth/dev/login, which mints tokens for any actor.
	DevLogin bool
	Logger   *slog.Logger
}

func (c AuthConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Principal is the authenticated caller of a request.
type Principal struct {
	ActorID string
	// Source is "jwt", "api_key" or "actor_header".
	Source string
}

var errNoCredentials = errors.New("no credentials presented")

type ctxPrincipal struct{}

func callerPrincipal(ctx context.Context) (Principal, huma.StatusError) {
	if p, _ := ctx.Value(ctxPrincipal{}).(Principal); p.ActorID != "" {
		return p, nil
	}
	return Principal{}, newAPIError(http.StatusUnauthorized, "", "authentication required", nil)
}

// actorIDFromContext is the actor every handler acts as.
func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	p, err := callerPrincipal(ctx)
	return p.ActorID, err
}

// authenticator resolves request credentials in order: bearer JWT, X-Api-Key,
// then X-Actor-Id when trusted.
type authenticator struct {
	cfg  AuthConfig
	keys repo.Repo
	log  *slog.Logger
}

func (a authenticator) principal(req *http.Request) (Principal, error) {
	if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
		scheme, token, ok := strings.Cut(authz, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			return Principal{}, errors.New("authorization header is not a bearer token")
		}
		return a.verifyToken(token)
	}
	if secret := strings.TrimSpace(req.Header.Get("X-Api-Key")); secret != "" {
		key, err := a.keys.APIKeyBySecret(req.Context(), secret)
		if err != nil {
			return Principal{}, err
		}
		return Principal{ActorID: key.ActorID, Source: "api_key"}, nil
	}
	if actor := strings.TrimSpace(req.Header.Get("X-Actor-Id")); actor != "" && a.cfg.AllowActorHeader {
		a.log.Warn("trusting unauthenticated actor header", "actor_id", actor)
		return Principal{ActorID: actor, Source: "actor_header"}, nil
	}
	return Principal{}, errNoCredentials
}

func (a authenticator) verifyToken(token string) (Principal, error) {
	if a.cfg.JWTSecret == "" {
		return Principal{}, errors.New("bearer tokens disabled: no jwt secret")
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, err
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("token has no subject")
	}
	return Principal{ActorID: claims.Subject, Source: "jwt"}, nil
}

func signDevToken(secret, actorID string, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("dev login needs a jwt secret")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   actorID,
		Issuer:    devTokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(12 * time.Hour)),
	}).SignedString([]byte(secret))
}

// publicPaths are served without credentials.
func publicPaths(basePath string, cfg AuthConfig) map[string]bool {
	open := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "openapi.json"): true,
		path.Join(basePath, "docs"):         true,
	}
	if cfg.DevLogin {
		open[path.Join(basePath, "auth/dev/login")] = true
	}
	return open
}

// newAuthMiddleware attaches the caller's Principal to every request under
// basePath. Routes outside basePath, such as /metrics, pass through.
func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	a := authenticator{cfg: cfg, keys: r, log: cfg.logger()}
	open := publicPaths(basePath, cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if open[req.URL.Path] || !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			p, err := a.principal(req)
			switch {
			case errors.Is(err, errNoCredentials):
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "", "authentication required", nil))
				return
			case err != nil:
				a.log.Debug("rejected credentials", "path", req.URL.Path, "error", err)
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), ctxPrincipal{}, p)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
