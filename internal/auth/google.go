package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/hitoshi/googlelogin/internal/model"
)

// DefaultGoogleIssuer はGoogleのOIDC issuer。
const DefaultGoogleIssuer = "https://accounts.google.com"

// defaultExchangeTimeout はトークン交換のタイムアウト。
const defaultExchangeTimeout = 10 * time.Second

// GoogleConfig はGoogleプロバイダーの設定。
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Issuer       string

	// HTTPClient はディスカバリ、JWKS取得、トークン交換に使用する。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client
	// ExchangeTimeout は0の場合10秒。
	ExchangeTimeout time.Duration
}

// GoogleProvider はGoogleのOpenID Connectによる認証を提供する。
type GoogleProvider struct {
	oauth2          *oauth2.Config
	verifier        *oidc.IDTokenVerifier
	httpClient      *http.Client
	exchangeTimeout time.Duration
}

// NewGoogleProvider はissuerのディスカバリ文書からGoogleProviderを生成する。
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultGoogleIssuer
	}
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", cfg.Issuer, err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return NewGoogleProviderWithEndpoint(cfg, provider.Endpoint(), verifier), nil
}

// NewGoogleProviderWithEndpoint はエンドポイントとID Token検証器を指定してGoogleProviderを生成する。
func NewGoogleProviderWithEndpoint(cfg GoogleConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *GoogleProvider {
	timeout := cfg.ExchangeTimeout
	if timeout <= 0 {
		timeout = defaultExchangeTimeout
	}
	return &GoogleProvider{
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier:        verifier,
		httpClient:      cfg.HTTPClient,
		exchangeTimeout: timeout,
	}
}

// BeginHandshake はGoogleの認可URLを生成する。
func (p *GoogleProvider) BeginHandshake(state, verifier string) string {
	return p.oauth2.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// googleClaims はID Tokenから取り出すクレーム。
type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// CompleteHandshake は認可コードをトークンに交換し、ID Tokenを検証してプロフィールを返す。
func (p *GoogleProvider) CompleteHandshake(ctx context.Context, params CallbackParams) (*model.ExternalProfile, error) {
	if params.Error != "" {
		return nil, handshakeError("provider returned error %q", params.Error)
	}
	if params.ExpectedState == "" || subtle.ConstantTimeCompare([]byte(params.State), []byte(params.ExpectedState)) != 1 {
		return nil, handshakeError("state mismatch")
	}
	if params.Code == "" {
		return nil, handshakeError("missing authorization code")
	}
	if params.Verifier == "" {
		return nil, handshakeError("missing PKCE verifier")
	}

	ctx, cancel := context.WithTimeout(ctx, p.exchangeTimeout)
	defer cancel()
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.oauth2.Exchange(ctx, params.Code, oauth2.VerifierOption(params.Verifier))
	if err != nil {
		// IdPがエラー応答を返した場合のみハンドシェイク失敗として扱う
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: token exchange: %v", ErrHandshakeFailed, err)
		}
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, handshakeError("no id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		// JWKS取得の通信障害はシステム障害
		if isTransportFault(err) {
			return nil, fmt.Errorf("id_token verification: %w", err)
		}
		return nil, fmt.Errorf("%w: id_token verification: %v", ErrHandshakeFailed, err)
	}
	if idToken.Subject == "" {
		return nil, handshakeError("empty subject in id_token")
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: id_token claims: %v", ErrHandshakeFailed, err)
	}

	profile := &model.ExternalProfile{
		Subject:     idToken.Subject,
		DisplayName: claims.Name,
		AvatarURL:   claims.Picture,
	}
	// email_verifiedがfalseのメールアドレスは保存しない
	if claims.EmailVerified {
		profile.Email = claims.Email
	}
	return profile, nil
}

// isTransportFault はIdPとの通信自体が失敗したエラーかを判定する。
func isTransportFault(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// compile-time interface check
var _ IdentityProvider = (*GoogleProvider)(nil)
