package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ── Token source ───────────────────────────────────────────
// Supplies a live access token for API calls: reads the stored token,
// refreshes it through the OAuth2 token endpoint when it is expired or
// about to expire, and persists the rotated credentials.

// Provider is the token-store key for the Whoop API.
const Provider = "whoop"

// refreshLeeway refreshes tokens that expire within the next minute.
const refreshLeeway = time.Minute

// AuthError means token acquisition or refresh failed. It halts the
// entire run before any record type is processed.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "auth: " + e.Op
	}
	return fmt.Sprintf("auth: %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TokenStore persists OAuth credentials between runs.
type TokenStore interface {
	GetToken(ctx context.Context, provider string) (access, refresh string, expiresAt time.Time, err error)
	SaveToken(ctx context.Context, provider, access, refresh string, expiresAt time.Time) error
}

// Config carries the OAuth2 client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURI  string
	Scope        string
}

func (c Config) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURI,
		Scopes:       strings.Fields(c.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURL,
			TokenURL: c.TokenURL,
		},
	}
}

// Source returns valid access tokens backed by a TokenStore.
// It is safe for concurrent use.
type Source struct {
	store TokenStore
	cfg   *oauth2.Config
	mu    sync.Mutex
}

// NewSource creates a Source.
func NewSource(store TokenStore, cfg Config) *Source {
	return &Source{store: store, cfg: cfg.oauth2Config()}
}

// AccessToken returns a live access token, refreshing first if the
// stored one is expired or expiring within the leeway window.
func (s *Source) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	access, refresh, expiresAt, err := s.store.GetToken(ctx, Provider)
	if err != nil {
		return "", &AuthError{Op: "load stored token", Err: err}
	}
	if access == "" {
		return "", &AuthError{Op: "no stored token; authorize first"}
	}

	if expiresAt.IsZero() || time.Now().Add(refreshLeeway).Before(expiresAt) {
		return access, nil
	}

	if refresh == "" {
		return "", &AuthError{Op: "token expired and no refresh token stored"}
	}

	tok, err := s.cfg.TokenSource(ctx, &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       expiresAt,
	}).Token()
	if err != nil {
		return "", &AuthError{Op: "refresh token", Err: err}
	}

	// Providers that do not rotate refresh tokens return an empty one;
	// keep the stored value in that case.
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refresh
	}
	if err := s.store.SaveToken(ctx, Provider, tok.AccessToken, newRefresh, tok.Expiry); err != nil {
		return "", &AuthError{Op: "persist refreshed token", Err: err}
	}
	return tok.AccessToken, nil
}
