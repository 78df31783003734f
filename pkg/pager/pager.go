// Package pager drives the request executor across successive pages of the
// hosts listing endpoint and aggregates the results.
package pager

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mkorbi/vectra-host-export/pkg/auth"
	"github.com/mkorbi/vectra-host-export/pkg/client"
	"github.com/mkorbi/vectra-host-export/pkg/hosts"
	"github.com/mkorbi/vectra-host-export/pkg/tokencache"
)

// MaxPageSize is the platform maximum; larger requests are clamped.
const MaxPageSize = 5000

// hostsPath is the listing endpoint relative to the base URL.
const hostsPath = "api/v3.4/hosts"

// Executor issues one resilient API call. Implemented by client.Client.
type Executor interface {
	Get(ctx context.Context, rawURL string, query url.Values, bearerToken string) ([]byte, error)
}

// TokenRefresher forces a new token exchange, bypassing the cache.
// Implemented by auth.Manager.
type TokenRefresher interface {
	ForceRefresh(ctx context.Context) (*tokencache.Token, error)
}

// Config holds the pager configuration.
type Config struct {
	// PageSize is the requested records per page, clamped to MaxPageSize.
	PageSize int

	// State filters hosts: "active", "inactive", or "all" (no filter).
	State string

	// MaxPages bounds the pagination loop in case the server never
	// returns an absent cursor.
	MaxPages int

	// PageDelay paces successive page requests.
	PageDelay time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:  100,
		State:     "active",
		MaxPages:  1000,
		PageDelay: 1 * time.Second,
	}
}

// Pager fetches all pages of the hosts listing sequentially, following the
// server-provided next cursor.
type Pager struct {
	executor  Executor
	refresher TokenRefresher
	baseURL   string
	config    Config
	logger    zerolog.Logger

	// sleep paces page requests; replaceable for deterministic tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a pager over the given executor and token refresher.
// baseURL must end with a slash, as config.Load guarantees.
func New(executor Executor, refresher TokenRefresher, baseURL string, cfg Config) *Pager {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1000
	}
	if cfg.State == "" {
		cfg.State = "active"
	}

	return &Pager{
		executor:  executor,
		refresher: refresher,
		baseURL:   baseURL,
		config:    cfg,
		logger:    log.With().Str("component", "pager").Logger(),
		sleep:     pace,
	}
}

// FetchAll retrieves every page of the hosts listing and returns the
// concatenated records in server order. Duplicate IDs across pages are not
// de-duplicated; the server's cursor contract is trusted to avoid overlap.
//
// On the first auth failure the pager forces exactly one token refresh and
// retries the same page; a second auth failure within this invocation is
// fatal.
func (p *Pager) FetchAll(ctx context.Context, token *tokencache.Token) ([]hosts.Record, error) {
	pageSize := p.config.PageSize
	if pageSize > MaxPageSize {
		p.logger.Warn().
			Int("requested", pageSize).
			Int("clamped", MaxPageSize).
			Msg("Page size exceeds platform maximum, clamping")
		pageSize = MaxPageSize
	}

	params := url.Values{"page_size": []string{strconv.Itoa(pageSize)}}
	if p.config.State != "all" {
		params.Set("state", p.config.State)
	}

	listURL := p.baseURL + hostsPath
	start := time.Now()

	var all []hosts.Record
	authRetried := false
	pageNum := 1

	for {
		body, err := p.executor.Get(ctx, listURL, params, token.AccessToken)
		if err != nil {
			var authErr *auth.AuthError
			if errors.As(err, &authErr) && !authRetried {
				// One forced re-authentication per fetch, then the
				// same page is retried once.
				authRetried = true
				p.logger.Warn().
					Int("page", pageNum).
					Int("status", authErr.StatusCode).
					Msg("Token rejected mid-fetch, forcing refresh")

				token, err = p.refresher.ForceRefresh(ctx)
				if err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		page, err := hosts.DecodePage(body)
		if err != nil {
			return nil, &client.APIError{
				ErrorClass: client.ErrorClassServer,
				Message:    fmt.Sprintf("page %d: unexpected response schema", pageNum),
				Err:        err,
			}
		}

		all = append(all, page.Records...)
		p.logger.Info().
			Int("page", pageNum).
			Int("records", len(page.Records)).
			Int("total", len(all)).
			Msg("Retrieved hosts page")

		if page.Next == "" {
			break
		}

		if pageNum >= p.config.MaxPages {
			return nil, &client.APIError{
				ErrorClass: client.ErrorClassServer,
				Message:    fmt.Sprintf("pagination did not terminate within %d pages", p.config.MaxPages),
			}
		}

		params, err = nextParams(params, page.Next)
		if err != nil {
			return nil, &client.APIError{
				ErrorClass: client.ErrorClassServer,
				Message:    fmt.Sprintf("page %d: invalid next cursor %q", pageNum, page.Next),
				Err:        err,
			}
		}
		pageNum++

		if err := p.sleep(ctx, p.config.PageDelay); err != nil {
			return nil, err
		}
	}

	p.logger.Info().
		Int("pages", pageNum).
		Int("records", len(all)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return all, nil
}

// nextParams merges the query parameters of the server's next cursor over
// the current request parameters. The cursor is opaque; whatever it
// carries wins.
func nextParams(current url.Values, next string) (url.Values, error) {
	u, err := url.Parse(next)
	if err != nil {
		return nil, err
	}

	merged := url.Values{}
	for key, values := range current {
		merged[key] = values
	}
	for key, values := range u.Query() {
		merged[key] = values
	}
	return merged, nil
}

// pace blocks between page requests with context cancellation support.
func pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetSleep replaces the pacing wait function (for testing).
func (p *Pager) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	p.sleep = sleep
}
