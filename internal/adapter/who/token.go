package who

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
)

// DefaultScope is the scope the ICD access management server grants API tokens for.
const DefaultScope = "icdapi_access"

// TokenConfig holds the client-credentials settings for the WHO token endpoint.
type TokenConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scope        string
}

// NewTokenSource exchanges client credentials for bearer tokens.
// Tokens are cached and refreshed when they expire.
func NewTokenSource(ctx context.Context, cfg TokenConfig) (oauth2.TokenSource, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, port.ErrMissingCredentials
	}
	scope := cfg.Scope
	if scope == "" {
		scope = DefaultScope
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cc.TokenSource(ctx), nil
}

// FetchToken returns a fresh access token string.
func FetchToken(ctx context.Context, cfg TokenConfig) (string, error) {
	ts, err := NewTokenSource(ctx, cfg)
	if err != nil {
		return "", err
	}
	tok, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("who: token exchange: %w", err)
	}
	return tok.AccessToken, nil
}

// StaticToken wraps a pre-issued bearer token, e.g. one pasted from the indexer token command.
func StaticToken(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}
