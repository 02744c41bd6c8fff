// Package archive uploads pipeline artifacts to Google Drive or Google Cloud
// Storage and turns the returned identifiers into view URLs.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// AuthMode selects how the archive authenticates.
type AuthMode string

const (
	ModeServiceAccount AuthMode = "service_account"
	ModeRefreshToken   AuthMode = "refresh_token"
)

// Credentials is one of ServiceAccount or RefreshToken.
type Credentials interface {
	Mode() AuthMode
	TokenSource(ctx context.Context, scopes ...string) (oauth2.TokenSource, error)
}

// ServiceAccount authenticates with a service-account key file.
type ServiceAccount struct {
	JSON []byte
}

func (ServiceAccount) Mode() AuthMode { return ModeServiceAccount }

func (s ServiceAccount) TokenSource(ctx context.Context, scopes ...string) (oauth2.TokenSource, error) {
	cfg, err := google.JWTConfigFromJSON(s.JSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse service account json: %w", err)
	}
	return cfg.TokenSource(ctx), nil
}

// RefreshToken exchanges a long-lived refresh token for access tokens.
type RefreshToken struct {
	ClientID     string
	ClientSecret string
	Token        string
}

func (RefreshToken) Mode() AuthMode { return ModeRefreshToken }

func (r RefreshToken) TokenSource(ctx context.Context, scopes ...string) (oauth2.TokenSource, error) {
	cfg := OAuthConfig(r.ClientID, r.ClientSecret, "", scopes...)
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: r.Token}), nil
}

// OAuthConfig is the Google OAuth client used both for token refresh and for
// the consent flow that mints the refresh token.
func OAuthConfig(clientID, clientSecret, redirectURL string, scopes ...string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}
}

var (
	ErrNoCredentials        = errors.New("no google credentials configured")
	ErrAmbiguousCredentials = errors.New("both service account and refresh token credentials configured; set GOOGLE_AUTH_MODE")
)

// CredentialInput is the raw configuration the variant is chosen from.
type CredentialInput struct {
	Mode               string
	ServiceAccountJSON []byte
	ClientID           string
	ClientSecret       string
	RefreshToken       string
}

// ParseCredentials picks exactly one credential variant. An explicit mode
// wins; otherwise the mode is inferred from which values are present.
func ParseCredentials(in CredentialInput) (Credentials, error) {
	hasSA := len(in.ServiceAccountJSON) > 0
	hasRT := in.RefreshToken != ""

	mode := AuthMode(strings.ToLower(strings.TrimSpace(in.Mode)))
	if mode == "" {
		switch {
		case hasSA && hasRT:
			return nil, ErrAmbiguousCredentials
		case hasSA:
			mode = ModeServiceAccount
		case hasRT:
			mode = ModeRefreshToken
		default:
			return nil, ErrNoCredentials
		}
	}

	switch mode {
	case ModeServiceAccount:
		if !hasSA {
			return nil, fmt.Errorf("%s mode requires service account json", mode)
		}
		return ServiceAccount{JSON: in.ServiceAccountJSON}, nil
	case ModeRefreshToken:
		if in.ClientID == "" || in.ClientSecret == "" || !hasRT {
			return nil, fmt.Errorf("%s mode requires client id, client secret and refresh token", mode)
		}
		return RefreshToken{ClientID: in.ClientID, ClientSecret: in.ClientSecret, Token: in.RefreshToken}, nil
	default:
		return nil, fmt.Errorf("unknown google auth mode %q", in.Mode)
	}
}
