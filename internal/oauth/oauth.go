package oauth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/cdcgov/blob-relay/internal/models"
	"github.com/coreos/go-oidc/v3/oidc"
)

var ErrTokenVerificationFailed = errors.New("failed to verify token")
var ErrTokenClaimsFailed = errors.New("failed to parse token claims")
var ErrTokenScopesMismatch = errors.New("one or more required scopes not found")

type Claims struct {
	Expiry int64  `json:"exp"`
	Scopes string `json:"scope"`
}

type Validator interface {
	ValidateJWT(ctx context.Context, token string) (Claims, error)
}

type PassthroughValidator struct{}

func (v PassthroughValidator) ValidateJWT(_ context.Context, _ string) (Claims, error) {
	return Claims{}, nil
}

func NewOAuthValidator(issuerUrl string, requiredScopes string) *OAuthValidator {
	return &OAuthValidator{
		IssuerUrl:      issuerUrl,
		RequiredScopes: strings.Fields(requiredScopes),
	}
}

// OAuthValidator verifies bearer tokens against the issuer's published keys.
// The provider is discovered on first use and reused afterwards.
type OAuthValidator struct {
	IssuerUrl      string
	RequiredScopes []string

	mu       sync.Mutex
	provider *oidc.Provider
}

func (v *OAuthValidator) getProvider(ctx context.Context) (*oidc.Provider, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.provider != nil {
		return v.provider, nil
	}
	p, err := oidc.NewProvider(ctx, v.IssuerUrl)
	if err != nil {
		return nil, err
	}
	v.provider = p
	return p, nil
}

func (v *OAuthValidator) ValidateJWT(ctx context.Context, token string) (Claims, error) {
	var claims Claims

	provider, err := v.getProvider(ctx)
	if err != nil {
		return claims, err
	}
	verifier := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	idToken, err := verifier.Verify(ctx, token)
	if err != nil {
		return claims, errors.Join(ErrTokenVerificationFailed, err)
	}

	if err = idToken.Claims(&claims); err != nil {
		return claims, errors.Join(ErrTokenClaimsFailed, err)
	}

	if !hasRequiredScopes(strings.Fields(claims.Scopes), v.RequiredScopes) {
		return claims, ErrTokenScopesMismatch
	}

	return claims, nil
}

func (v *OAuthValidator) Health(ctx context.Context) (rsp models.ServiceHealthResp) {
	rsp.Service = "OAuth Issuer"
	if _, err := v.getProvider(ctx); err != nil {
		return rsp.BuildErrorResponse(fmt.Errorf("issuer %s discovery failed: %w", v.IssuerUrl, err))
	}
	rsp.Status = models.STATUS_UP
	rsp.HealthIssue = models.HEALTH_ISSUE_NONE
	return rsp
}

func hasRequiredScopes(actualScopes, requiredScopes []string) bool {
	for _, reqScope := range requiredScopes {
		if !slices.Contains(actualScopes, reqScope) {
			return false
		}
	}
	return true
}
