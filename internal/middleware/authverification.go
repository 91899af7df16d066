package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cdcgov/blob-relay/internal/appconfig"
	"github.com/cdcgov/blob-relay/internal/health"
	"github.com/cdcgov/blob-relay/internal/oauth"
)

var ErrNoAuthHeader = errors.New("authorization header missing")
var ErrAuthHeaderInvalidFormat = errors.New("authorization header format is invalid")
var ErrTokenNotFound = errors.New("authorization token not found")
var ErrNoIssuer = errors.New("no issuer url provided")

type HTTPError struct {
	Code int
	Msg  string
}

func (e *HTTPError) Error() string {
	return e.Msg
}

func NewHTTPError(code int, msg string) *HTTPError {
	return &HTTPError{Code: code, Msg: msg}
}

func NewAuthMiddleware(config appconfig.OauthConfig) (*AuthMiddleware, error) {
	var validator oauth.Validator = oauth.PassthroughValidator{}
	if config.AuthEnabled {
		if config.IssuerUrl == "" {
			return nil, ErrNoIssuer
		}
		v := oauth.NewOAuthValidator(config.IssuerUrl, config.RequiredScopes)
		if err := health.Register(v); err != nil {
			slog.Error("error registering oauth validator health check", "error", err)
		}
		validator = v
	}

	return &AuthMiddleware{
		authEnabled: config.AuthEnabled,
		validator:   validator,
	}, nil
}

type AuthMiddleware struct {
	authEnabled bool
	validator   oauth.Validator
}

// VerifyOAuthTokenMiddleware rejects requests without a valid bearer token when auth is enabled.
func (a AuthMiddleware) VerifyOAuthTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.authEnabled {
			next.ServeHTTP(w, r)
			return
		}

		token, err := getAuthToken(r.Header)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if token == "" {
			http.Error(w, ErrTokenNotFound.Error(), http.StatusUnauthorized)
			return
		}

		if _, err := a.validator.ValidateJWT(r.Context(), token); err != nil {
			httpErr := toHTTPError(err)
			slog.Warn("request failed token validation", "path", r.URL.Path, "error", err)
			http.Error(w, httpErr.Msg, httpErr.Code)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a AuthMiddleware) Validator() oauth.Validator {
	return a.validator
}

func toHTTPError(err error) *HTTPError {
	switch {
	case errors.Is(err, oauth.ErrTokenVerificationFailed), errors.Is(err, oauth.ErrTokenClaimsFailed):
		return NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, oauth.ErrTokenScopesMismatch):
		return NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func getAuthToken(headers http.Header) (string, error) {
	authHeader := headers.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoAuthHeader
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrAuthHeaderInvalidFormat
	}

	return strings.TrimSpace(token), nil
}
