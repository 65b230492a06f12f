package auth

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ── Interactive authorization ──────────────────────────────
// One-time authorization-code flow: print the consent URL, run a
// one-shot local listener on the redirect URI to capture the callback,
// exchange the code, and persist the resulting tokens.

// DefaultLoginTimeout bounds how long the local listener waits for the
// redirect callback.
const DefaultLoginTimeout = 180 * time.Second

type callback struct {
	code  string
	state string
	err   string
}

// Login runs the authorization-code flow and stores the tokens.
func (s *Source) Login(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultLoginTimeout
	}

	state := uuid.New().String()
	authURL := s.cfg.AuthCodeURL(state)
	log.Printf("auth: open this URL in a browser to authorize:\n%s", authURL)

	cb, err := s.waitForCallback(ctx, timeout, state)
	if err != nil {
		return err
	}

	// The token endpoint expects the offline scope on the exchange to
	// issue a refresh token.
	tok, err := s.cfg.Exchange(ctx, cb.code, oauth2.SetAuthURLParam("scope", "offline"))
	if err != nil {
		return &AuthError{Op: "exchange authorization code", Err: err}
	}

	if err := s.store.SaveToken(ctx, Provider, tok.AccessToken, tok.RefreshToken, tok.Expiry); err != nil {
		return &AuthError{Op: "persist tokens", Err: err}
	}
	log.Printf("auth: tokens stored for provider %s", Provider)
	return nil
}

// waitForCallback serves the redirect URI until exactly one callback
// arrives or the timeout elapses.
func (s *Source) waitForCallback(ctx context.Context, timeout time.Duration, expectedState string) (*callback, error) {
	redirect, err := url.Parse(s.cfg.RedirectURL)
	if err != nil {
		return nil, &AuthError{Op: "parse redirect URI", Err: err}
	}

	results := make(chan callback, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		cb := callback{
			code:  q.Get("code"),
			state: q.Get("state"),
			err:   q.Get("error"),
		}
		status := http.StatusOK
		if cb.code == "" {
			status = http.StatusBadRequest
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		fmt.Fprint(w, "<html><body><h1>You can close this window now.</h1></body></html>")
		select {
		case results <- cb:
		default:
		}
	})

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, &AuthError{Op: "listen on redirect URI", Err: err}
	}
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	defer srv.Close()

	select {
	case cb := <-results:
		if cb.err != "" {
			return nil, &AuthError{Op: "authorization denied: " + cb.err}
		}
		if cb.state != expectedState {
			return nil, &AuthError{Op: "state mismatch in callback"}
		}
		if cb.code == "" {
			return nil, &AuthError{Op: "no authorization code received"}
		}
		return &cb, nil
	case <-time.After(timeout):
		return nil, &AuthError{Op: "timed out waiting for authorization callback"}
	case <-ctx.Done():
		return nil, &AuthError{Op: "cancelled waiting for authorization callback", Err: ctx.Err()}
	}
}
