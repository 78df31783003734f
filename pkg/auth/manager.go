// Package auth obtains and refreshes Vectra API access tokens via the
// OAuth2 client-credentials flow.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mkorbi/vectra-host-export/pkg/config"
	"github.com/mkorbi/vectra-host-export/pkg/tokencache"
)

// Prometheus metrics for token operations.
var (
	tokenExchangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vectra_token_exchanges_total",
		Help: "Total token endpoint calls by grant type and outcome",
	}, []string{"grant", "outcome"})
)

// tokenPath is the OAuth2 token endpoint relative to the base URL.
const tokenPath = "oauth2/token"

// DefaultSafetyMargin is subtracted from the reported token lifetime so a
// token is never used when it could expire mid-request.
const DefaultSafetyMargin = 30 * time.Second

// Config holds the token manager configuration.
type Config struct {
	// HTTPTimeout bounds each token endpoint call.
	HTTPTimeout time.Duration

	// SafetyMargin is subtracted from expires_in when computing expiry.
	SafetyMargin time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		HTTPTimeout:  30 * time.Second,
		SafetyMargin: DefaultSafetyMargin,
	}
}

// Manager owns the token lifecycle: it consults the cache, performs the
// client-credentials exchange when the cache is empty or expired, and
// writes fresh tokens back.
type Manager struct {
	creds      *config.Credentials
	store      tokencache.Store
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
	now        func() time.Time
}

// NewManager creates a token manager for the given credentials and store.
func NewManager(creds *config.Credentials, store tokencache.Store, cfg Config) (*Manager, error) {
	if creds == nil {
		return nil, fmt.Errorf("credentials are required")
	}
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}

	return &Manager{
		creds:      creds,
		store:      store,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		config:     cfg,
		logger:     log.With().Str("component", "auth").Logger(),
		now:        time.Now,
	}, nil
}

// GetToken returns a usable access token. It prefers the cached token,
// then the refresh grant, then a full client-credentials exchange.
func (m *Manager) GetToken(ctx context.Context) (*tokencache.Token, error) {
	cached, err := m.store.Read(ctx)
	if err != nil && !errors.Is(err, tokencache.ErrCacheMiss) {
		m.logger.Warn().Err(err).Msg("Token cache read failed")
	}

	if cached.Valid() {
		m.logger.Info().
			Time("expires_at", cached.ExpiresAt).
			Msg("Using cached token")
		return cached, nil
	}

	if cached.CanRefresh() {
		m.logger.Info().Msg("Access token expired, trying refresh grant")
		token, err := m.refresh(ctx, cached.RefreshToken)
		if err == nil {
			return token, nil
		}
		// The refresh token is an optimization like the cache; fall
		// back to a full exchange rather than failing the run.
		m.logger.Warn().Err(err).Msg("Refresh grant failed, falling back to client-credentials exchange")
	}

	return m.exchange(ctx)
}

// ForceRefresh bypasses the cache and performs a fresh exchange.
// The pager calls this once when the API rejects the current token.
func (m *Manager) ForceRefresh(ctx context.Context) (*tokencache.Token, error) {
	m.logger.Info().Msg("Forcing new token exchange")
	return m.exchange(ctx)
}

// tokenResponse is the token endpoint's JSON body.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// exchange performs the OAuth2 client-credentials exchange.
// Failures surface as *AuthError and are never retried: retrying bad
// credentials wastes quota and cannot succeed.
func (m *Manager) exchange(ctx context.Context) (*tokencache.Token, error) {
	form := url.Values{"grant_type": []string{"client_credentials"}}
	token, err := m.postTokenRequest(ctx, "client_credentials", form)
	if err != nil {
		return nil, err
	}

	m.writeBack(ctx, token)
	return token, nil
}

// refresh exchanges a refresh token for a new access token.
func (m *Manager) refresh(ctx context.Context, refreshToken string) (*tokencache.Token, error) {
	form := url.Values{
		"grant_type":    []string{"refresh_token"},
		"refresh_token": []string{refreshToken},
	}
	token, err := m.postTokenRequest(ctx, "refresh_token", form)
	if err != nil {
		return nil, err
	}

	m.writeBack(ctx, token)
	return token, nil
}

// postTokenRequest issues a single POST to the token endpoint and
// converts the response into a Token with the safety margin applied.
func (m *Manager) postTokenRequest(ctx context.Context, grant string, form url.Values) (*tokencache.Token, error) {
	endpoint := m.creds.BaseURL + tokenPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Message: "create token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(m.creds.ClientID, m.creds.ClientSecret)

	m.logger.Debug().
		Str("grant", grant).
		Str("endpoint", endpoint).
		Msg("Calling token endpoint")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		tokenExchangesTotal.WithLabelValues(grant, "network_error").Inc()
		return nil, &AuthError{Message: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tokenExchangesTotal.WithLabelValues(grant, "read_error").Inc()
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: "read token response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		tokenExchangesTotal.WithLabelValues(grant, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		m.logger.Error().
			Int("status", resp.StatusCode).
			Str("grant", grant).
			Msg("Token exchange rejected")
		return nil, &AuthError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("token exchange failed: %s", strings.TrimSpace(string(body))),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		tokenExchangesTotal.WithLabelValues(grant, "bad_body").Inc()
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: "malformed token response", Err: err}
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		tokenExchangesTotal.WithLabelValues(grant, "bad_body").Inc()
		return nil, &AuthError{
			StatusCode: resp.StatusCode,
			Message:    "token response missing access_token or expires_in",
		}
	}

	now := m.now()
	token := &tokencache.Token{
		AccessToken: tr.AccessToken,
		ExpiresAt:   now.Add(time.Duration(tr.ExpiresIn)*time.Second - m.config.SafetyMargin),
	}
	if tr.RefreshToken != "" && tr.RefreshExpiresIn > 0 {
		token.RefreshToken = tr.RefreshToken
		token.RefreshExpiresAt = now.Add(time.Duration(tr.RefreshExpiresIn) * time.Second)
	}

	tokenExchangesTotal.WithLabelValues(grant, "success").Inc()
	m.logger.Info().
		Str("grant", grant).
		Time("expires_at", token.ExpiresAt).
		Msg("Token obtained")

	return token, nil
}

// writeBack persists the token. Cache writes are best effort.
func (m *Manager) writeBack(ctx context.Context, token *tokencache.Token) {
	if err := m.store.Write(ctx, token); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to write token cache")
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (m *Manager) SetHTTPClient(client *http.Client) {
	m.httpClient = client
}

// SetNow sets the clock used for expiry computation (for testing).
func (m *Manager) SetNow(now func() time.Time) {
	m.now = now
}
