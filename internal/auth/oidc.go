package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Fabeuss/oasis/internal/config"
	"github.com/Fabeuss/oasis/internal/logging"
	"github.com/Fabeuss/oasis/internal/metrics"
)

// IDTokenVerifier verifies raw OIDC ID tokens.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// OIDCProvider validates OIDC ID tokens and maps them to local claims.
// Accounts are not persisted: the token is the identity.
type OIDCProvider struct {
	verifier   IDTokenVerifier
	adminClaim string
	adminValue string
}

// NewOIDCProvider creates an OIDC provider from config.
// Returns nil if IssuerURL is empty (OIDC disabled).
func NewOIDCProvider(ctx context.Context, cfg config.OIDCConfig) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}

	logging.Info("OIDC provider initialized",
		zap.String("issuer", cfg.IssuerURL),
		zap.String("client_id", cfg.ClientID))

	return newOIDCProvider(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), cfg), nil
}

func newOIDCProvider(v IDTokenVerifier, cfg config.OIDCConfig) *OIDCProvider {
	if cfg.AdminClaim == "" {
		cfg.AdminClaim = "is_admin"
	}
	if cfg.AdminValue == "" {
		cfg.AdminValue = "true"
	}
	return &OIDCProvider{
		verifier:   v,
		adminClaim: cfg.AdminClaim,
		adminValue: cfg.AdminValue,
	}
}

// ValidateToken verifies tokenStr as an OIDC ID token and returns claims.
func (o *OIDCProvider) ValidateToken(ctx context.Context, tokenStr string) (*Claims, error) {
	idToken, err := o.verifier.Verify(ctx, tokenStr)
	if err != nil {
		return nil, err
	}

	// Extract standard claims
	var oidcClaims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&oidcClaims); err != nil {
		return nil, fmt.Errorf("parse oidc claims: %w", err)
	}

	// Determine username: prefer preferred_username, fallback to email, then sub
	username := oidcClaims.PreferredUsername
	if username == "" {
		username = oidcClaims.Email
	}
	if username == "" {
		username = oidcClaims.Sub
	}

	// Check admin claim from raw claims
	var rawClaims map[string]interface{}
	if err := idToken.Claims(&rawClaims); err != nil {
		return nil, fmt.Errorf("parse oidc claims: %w", err)
	}
	isAdmin := false
	if val, ok := rawClaims[o.adminClaim]; ok {
		isAdmin = fmt.Sprintf("%v", val) == o.adminValue
	}

	metrics.RecordAuthAttempt(true)
	return &Claims{
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: oidcClaims.Sub,
			Issuer:  idToken.Issuer,
		},
	}, nil
}
