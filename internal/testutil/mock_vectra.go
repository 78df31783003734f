// Package testutil provides testing utilities for the Vectra host export tool.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// TokenPath is the OAuth2 token endpoint path served by the mock.
const TokenPath = "/oauth2/token"

// HostsPath is the hosts listing endpoint path served by the mock.
const HostsPath = "/api/v3.4/hosts"

// MockHost is one host served by the mock listing endpoint.
type MockHost struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	IP        string   `json:"ip"`
	State     string   `json:"state"`
	Threat    int      `json:"threat"`
	Certainty int      `json:"certainty"`
	Tags      []string `json:"tags"`
}

// MockVectra is a configurable mock Vectra platform for testing: it serves
// the OAuth2 client-credentials exchange and a paginated hosts listing.
type MockVectra struct {
	server *httptest.Server
	mu     sync.RWMutex

	// Behavior
	hosts       []MockHost
	pageSize    int
	accessToken string
	expiresIn   int64
	rejectToken bool
	handlers    map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	TokenCalls int
	HostsCalls int
	LastQuery  map[string]string
}

// NewMockVectra creates a mock platform serving the given hosts.
func NewMockVectra(hosts []MockHost) *MockVectra {
	mock := &MockVectra{
		hosts:       hosts,
		pageSize:    100,
		accessToken: "mock-access-token",
		expiresIn:   3600,
		handlers:    make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		switch r.URL.Path {
		case TokenPath:
			mock.tokenHandler(w, r)
		case HostsPath:
			mock.hostsHandler(w, r)
		default:
			http.NotFound(w, r)
		}
	}))

	return mock
}

// URL returns the mock server base URL (no trailing slash).
func (m *MockVectra) URL() string {
	return m.server.URL
}

// BaseURL returns the mock server base URL with a trailing slash, the form
// config.Load produces.
func (m *MockVectra) BaseURL() string {
	return m.server.URL + "/"
}

// Close shuts down the mock server.
func (m *MockVectra) Close() {
	m.server.Close()
}

// SetHandler overrides the handler for a specific path.
func (m *MockVectra) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetAccessToken changes the token the mock issues and accepts.
func (m *MockVectra) SetAccessToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessToken = token
}

// RejectBearer makes the hosts endpoint answer 401 until the next token
// exchange, simulating a token expiring server-side mid-fetch.
func (m *MockVectra) RejectBearer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectToken = true
}

// tokenHandler serves the client-credentials exchange.
func (m *MockVectra) tokenHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.TokenCalls++
	m.rejectToken = false
	token := m.accessToken
	expiresIn := m.expiresIn
	m.mu.Unlock()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, _, ok := r.BasicAuth(); !ok {
		http.Error(w, `{"error": "invalid_client"}`, http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
}

// hostsHandler serves one page of the listing per call.
func (m *MockVectra) hostsHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.HostsCalls++
	m.LastQuery = map[string]string{}
	for key := range r.URL.Query() {
		m.LastQuery[key] = r.URL.Query().Get(key)
	}
	reject := m.rejectToken
	token := m.accessToken
	allHosts := m.hosts
	m.mu.Unlock()

	if reject || r.Header.Get("Authorization") != "Bearer "+token {
		http.Error(w, `{"detail": "invalid token"}`, http.StatusUnauthorized)
		return
	}

	pageSize, err := strconv.Atoi(r.URL.Query().Get("page_size"))
	if err != nil || pageSize <= 0 {
		pageSize = 100
	}
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if page, err = strconv.Atoi(p); err != nil || page <= 0 {
			http.Error(w, `{"detail": "invalid page"}`, http.StatusBadRequest)
			return
		}
	}

	state := r.URL.Query().Get("state")
	filtered := make([]MockHost, 0, len(allHosts))
	for _, h := range allHosts {
		if state == "" || h.State == state {
			filtered = append(filtered, h)
		}
	}

	start := (page - 1) * pageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + pageSize
	if end > len(filtered) {
		end = len(filtered)
	}

	var next *string
	if end < len(filtered) {
		u := fmt.Sprintf("%s%s?page=%d&page_size=%d", m.server.URL, HostsPath, page+1, pageSize)
		if state != "" {
			u += "&state=" + state
		}
		next = &u
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"count":   len(filtered),
		"next":    next,
		"results": filtered[start:end],
	})
}

// GetTokenCalls returns the number of token exchanges performed.
func (m *MockVectra) GetTokenCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TokenCalls
}

// GetHostsCalls returns the number of listing requests served.
func (m *MockVectra) GetHostsCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.HostsCalls
}

// GenerateHosts produces n active mock hosts with deterministic fields.
func GenerateHosts(n int) []MockHost {
	hosts := make([]MockHost, 0, n)
	for i := 1; i <= n; i++ {
		hosts = append(hosts, MockHost{
			ID:        i,
			Name:      fmt.Sprintf("host-%03d", i),
			IP:        fmt.Sprintf("10.0.%d.%d", i/256, i%256),
			State:     "active",
			Threat:    i % 100,
			Certainty: (i * 7) % 100,
			Tags:      []string{"generated"},
		})
	}
	return hosts
}
