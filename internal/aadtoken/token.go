package aadtoken

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/cdcgov/blob-relay/internal/appconfig"
	"github.com/cdcgov/blob-relay/pkg/sloger"
)

// StorageScope is the only scope requested for blob reads.
const StorageScope = "https://storage.azure.com/.default"

var ErrAuthFailure = errors.New("failed to acquire access token from azure ad")

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

type AccessToken struct {
	Value     string
	Scope     string
	ExpiresOn time.Time
}

// Fingerprint identifies a token in logs without exposing it.
func (t AccessToken) Fingerprint() string {
	sum := sha256.Sum256([]byte(t.Value))
	return hex.EncodeToString(sum[:4])
}

func (t AccessToken) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("scope", t.Scope),
		slog.String("fingerprint", t.Fingerprint()),
		slog.Int("length", len(t.Value)),
		slog.Time("expires_on", t.ExpiresOn),
	)
}

type Acquirer interface {
	Acquire(ctx context.Context) (AccessToken, error)
}

// ClientCredentialAcquirer requests a fresh token on every call.
type ClientCredentialAcquirer struct {
	Credential azcore.TokenCredential
	Scope      string
	ClientID   string
}

func NewClientCredentialAcquirer(conf appconfig.AzureAppConfig, transport policy.Transporter) (*ClientCredentialAcquirer, error) {
	opts := &azidentity.ClientSecretCredentialOptions{
		ClientOptions: azcore.ClientOptions{
			Cloud: cloud.Configuration{
				ActiveDirectoryAuthorityHost: conf.AuthorityHost,
			},
			Transport: transport,
		},
	}

	logger.Info("creating confidential client credential", "client_id", conf.ClientID, "authority", conf.Authority())
	cred, err := azidentity.NewClientSecretCredential(conf.TenantID, conf.ClientID, conf.ClientSecret, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}

	return &ClientCredentialAcquirer{
		Credential: cred,
		Scope:      StorageScope,
		ClientID:   conf.ClientID,
	}, nil
}

func (a *ClientCredentialAcquirer) Acquire(ctx context.Context) (AccessToken, error) {
	logger := sloger.FromContext(ctx)
	logger.Info("acquire confidential client application access token", "client_id", a.ClientID)

	tk, err := a.Credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{a.Scope},
	})
	if err != nil {
		// the azidentity error carries the identity provider's response for operators
		logger.Error("failed to acquire access token from azure ad", "error", err)
		return AccessToken{}, fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	if tk.Token == "" {
		logger.Error("failed to acquire access token from azure ad", "error", "token response omitted access token")
		return AccessToken{}, fmt.Errorf("%w: token response omitted access token", ErrAuthFailure)
	}

	token := AccessToken{
		Value:     tk.Token,
		Scope:     a.Scope,
		ExpiresOn: tk.ExpiresOn,
	}
	logger.Debug("acquired access token", "token", token)
	return token, nil
}

// CachingAcquirer reuses a token until shortly before it expires.
type CachingAcquirer struct {
	Next Acquirer
	Skew time.Duration

	mu     sync.Mutex
	cached *AccessToken
	now    func() time.Time
}

const DefaultExpirySkew = 5 * time.Minute

func NewCachingAcquirer(next Acquirer) *CachingAcquirer {
	return &CachingAcquirer{
		Next: next,
		Skew: DefaultExpirySkew,
		now:  time.Now,
	}
}

func (c *CachingAcquirer) Acquire(ctx context.Context) (AccessToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.now().Add(c.Skew).Before(c.cached.ExpiresOn) {
		return *c.cached, nil
	}

	token, err := c.Next.Acquire(ctx)
	if err != nil {
		c.cached = nil
		return AccessToken{}, err
	}
	c.cached = &token
	return token, nil
}

// Invalidate drops the cached token, e.g. after the storage service rejected it.
func (c *CachingAcquirer) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}
