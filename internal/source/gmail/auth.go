package gmail

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/nhle/otp-autofill/internal/credential"
	"github.com/nhle/otp-autofill/internal/model"
)

// ErrNoToken is returned when no token has been stored yet.
var ErrNoToken = errors.New("not signed in to gmail")

const revokeURL = "https://oauth2.googleapis.com/revoke"

// TokenStore persists the OAuth token. credential.Vault satisfies it.
type TokenStore interface {
	GetJSON(key string, out any) error
	SetJSON(key string, value any) error
	Delete(key string) error
}

var _ TokenStore = (*credential.Vault)(nil)

// Auth drives the OAuth flow and hands out persisted tokens.
type Auth struct {
	config *oauth2.Config
	store  TokenStore
	logger *zap.Logger
}

// NewAuth creates an Auth for the configured OAuth client.
func NewAuth(cfg model.GmailConfig, store TokenStore, logger *zap.Logger) *Auth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gmail.GmailReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		store:  store,
		logger: logger,
	}
}

// Token returns the stored token.
func (a *Auth) Token() (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := a.store.GetJSON(credential.KeyGmailToken, &tok); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrNoToken
		}
		return nil, err
	}
	return &tok, nil
}

// TokenSource returns a source that refreshes the stored token and
// writes refreshed tokens back.
func (a *Auth) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := a.Token()
	if err != nil {
		return nil, err
	}
	base := a.config.TokenSource(ctx, tok)
	return &persistingSource{base: base, store: a.store, last: tok.AccessToken, logger: a.logger}, nil
}

// AuthCodeURL returns the consent URL for a manual flow. The caller
// passes verifier back to Exchange.
func (a *Auth) AuthCodeURL(state, verifier string) string {
	return a.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)
}

// Exchange trades an authorization code for a token and stores it.
func (a *Auth) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	tok, err := a.config.Exchange(ctx, strings.TrimSpace(code), oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	if err := a.store.SetJSON(credential.KeyGmailToken, tok); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}
	return tok, nil
}

// Loopback runs the flow against a temporary listener on 127.0.0.1.
// open receives the consent URL; the flow ends when the browser is
// redirected back or ctx is done.
func (a *Auth) Loopback(ctx context.Context, open func(authURL string)) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("starting callback listener: %w", err)
	}
	defer ln.Close()

	cfg := *a.config
	cfg.RedirectURL = "http://" + ln.Addr().String() + "/callback"
	flow := &Auth{config: &cfg, store: a.store, logger: a.logger}

	state := randomString()
	verifier := oauth2.GenerateVerifier()

	done := make(chan callback, 1)
	var once sync.Once
	finish := func(c callback) { once.Do(func() { done <- c }) }

	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/callback" {
				http.NotFound(w, r)
				return
			}
			res := callbackResult(r.URL.Query(), state)
			if res.err != nil {
				http.Error(w, res.err.Error(), http.StatusBadRequest)
			} else {
				fmt.Fprintln(w, "Signed in. You can close this tab.")
			}
			finish(res)
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	open(flow.AuthCodeURL(state, verifier))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return flow.Exchange(ctx, r.code, verifier)
	}
}

type callback struct {
	code string
	err  error
}

// callbackResult validates the redirect's query parameters.
func callbackResult(q url.Values, state string) callback {
	if e := q.Get("error"); e != "" {
		return callback{err: fmt.Errorf("authorization denied: %s", e)}
	}
	if q.Get("state") != state {
		return callback{err: errors.New("authorization state mismatch")}
	}
	code := q.Get("code")
	if code == "" {
		return callback{err: errors.New("authorization code missing")}
	}
	return callback{code: code}
}

// Revoke invalidates the stored token at Google and removes it locally.
// The local copy is removed even when revocation fails.
func (a *Auth) Revoke(ctx context.Context) error {
	tok, err := a.Token()
	if errors.Is(err, ErrNoToken) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := a.store.Delete(credential.KeyGmailToken); err != nil {
			a.logger.Error("removing stored token", zap.Error(err))
		}
	}()

	value := tok.RefreshToken
	if value == "" {
		value = tok.AccessToken
	}
	form := url.Values{"token": {value}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		// An already expired token is rejected with 400; it is gone either way.
		a.logger.Warn("token revocation rejected", zap.Int("status", resp.StatusCode))
	}
	return nil
}

// persistingSource saves each new access token it sees.
type persistingSource struct {
	base   oauth2.TokenSource
	store  TokenStore
	logger *zap.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.store.SetJSON(credential.KeyGmailToken, tok); err != nil {
			s.logger.Error("persisting refreshed token", zap.Error(err))
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

func randomString() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
