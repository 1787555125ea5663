// Package gmail is the boundary to Google's OAuth token endpoint and
// the Gmail drafts API.
package gmail

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoAccessToken indicates the token exchange response carried no
// access token. The caller must abort the whole run: credential errors
// are never per-record.
var ErrNoAccessToken = errors.New("gmail: token exchange returned no access token")

// CredentialConfig holds the refresh-token grant parameters.
type CredentialConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	// TokenURL overrides Google's token endpoint. Used by tests.
	TokenURL string
}

// Validate checks that all required grant parameters are present.
func (c CredentialConfig) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
		return fmt.Errorf("gmail: client id, client secret and refresh token are all required")
	}
	return nil
}

// Credentials exchanges a refresh token for fresh access tokens.
type Credentials struct {
	cfg CredentialConfig
}

// NewCredentials creates a credential source. The configuration is
// validated on first use, not here, so construction never fails.
func NewCredentials(cfg CredentialConfig) *Credentials {
	return &Credentials{cfg: cfg}
}

// AccessToken exchanges the refresh token for a fresh access token.
func (c *Credentials) AccessToken(ctx context.Context) (string, error) {
	if err := c.cfg.Validate(); err != nil {
		return "", err
	}

	tokenURL := c.cfg.TokenURL
	if tokenURL == "" {
		tokenURL = google.Endpoint.TokenURL
	}

	conf := &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: c.cfg.RefreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("gmail: exchanging refresh token: %w", err)
	}
	if token.AccessToken == "" {
		return "", ErrNoAccessToken
	}
	return token.AccessToken, nil
}
