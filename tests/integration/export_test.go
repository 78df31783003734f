package integration

import (
	"context"
	"encoding/csv"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mkorbi/vectra-host-export/internal/testutil"
	"github.com/mkorbi/vectra-host-export/pkg/auth"
	"github.com/mkorbi/vectra-host-export/pkg/client"
	"github.com/mkorbi/vectra-host-export/pkg/config"
	"github.com/mkorbi/vectra-host-export/pkg/export"
	"github.com/mkorbi/vectra-host-export/pkg/hosts"
	"github.com/mkorbi/vectra-host-export/pkg/pager"
	"github.com/mkorbi/vectra-host-export/pkg/tokencache"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// writeEnvFile creates a credentials file pointing at the mock platform.
func writeEnvFile(t *testing.T, dir, baseURL string) string {
	t.Helper()

	path := filepath.Join(dir, "cred.env")
	content := "CLIENT_ID=integration-client\n" +
		"CLIENT_SECRET=integration-secret\n" +
		"VECTRA_URL=" + baseURL + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	return path
}

// buildPipeline wires config, auth, client, and pager against the mock
// platform, the same way the CLI does.
func buildPipeline(t *testing.T, mock *testutil.MockVectra, store tokencache.Store, pagerCfg pager.Config) (*auth.Manager, *pager.Pager) {
	t.Helper()

	envFile := writeEnvFile(t, t.TempDir(), mock.URL())
	creds, err := config.Load(envFile)
	if err != nil {
		t.Fatalf("Failed to load credentials: %v", err)
	}

	manager, err := auth.NewManager(creds, store, auth.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create auth manager: %v", err)
	}

	executor := client.New(client.DefaultConfig())

	p := pager.New(executor, manager, creds.BaseURL, pagerCfg)
	p.SetSleep(func(ctx context.Context, d time.Duration) error { return nil })

	return manager, p
}

// TestFullExportFlow tests the complete flow: Token Exchange → Paginated
// Fetch → CSV Export.
func TestFullExportFlow(t *testing.T) {
	mock := testutil.NewMockVectra(testutil.GenerateHosts(25))
	defer mock.Close()

	dir := t.TempDir()
	store := tokencache.NewFileStore(filepath.Join(dir, "vectra_token.json"))

	manager, p := buildPipeline(t, mock, store, pager.Config{
		PageSize: 10,
		State:    "active",
		MaxPages: 100,
	})

	ctx := context.Background()
	token, err := manager.GetToken(ctx)
	if err != nil {
		t.Fatalf("Failed to get token: %v", err)
	}

	records, err := p.FetchAll(ctx, token)
	if err != nil {
		t.Fatalf("Failed to fetch hosts: %v", err)
	}
	if len(records) != 25 {
		t.Errorf("Expected 25 records, got %d", len(records))
	}

	outPath := filepath.Join(dir, "active_hosts.csv")
	if err := export.WriteCSV(outPath, records); err != nil {
		t.Fatalf("Failed to write CSV: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("Failed to open CSV: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	if len(rows) != 26 {
		t.Fatalf("Expected header plus 25 rows, got %d", len(rows))
	}
	for i, name := range hosts.FieldNames {
		if rows[0][i] != name {
			t.Errorf("Header column %d: expected %q, got %q", i, name, rows[0][i])
		}
	}
	if rows[1][0] != "1" || rows[1][1] != "host-001" {
		t.Errorf("First data row mismatch: %v", rows[1])
	}
	if rows[25][1] != "host-025" {
		t.Errorf("Last data row mismatch: %v", rows[25])
	}

	if calls := mock.GetTokenCalls(); calls != 1 {
		t.Errorf("Expected 1 token exchange, got %d", calls)
	}
	if calls := mock.GetHostsCalls(); calls != 3 {
		t.Errorf("Expected 3 listing calls for 25 hosts at page size 10, got %d", calls)
	}

	// The token survives to disk for the next run.
	cached, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read cached token: %v", err)
	}
	if cached.AccessToken != token.AccessToken {
		t.Errorf("Cached token mismatch: %q vs %q", cached.AccessToken, token.AccessToken)
	}
}

// TestTokenRejectedMidFetch verifies that a token expiring server-side
// during pagination triggers exactly one forced refresh and the fetch
// still completes.
func TestTokenRejectedMidFetch(t *testing.T) {
	mock := testutil.NewMockVectra(testutil.GenerateHosts(25))
	defer mock.Close()

	store := tokencache.NewFileStore(filepath.Join(t.TempDir(), "vectra_token.json"))
	manager, p := buildPipeline(t, mock, store, pager.Config{
		PageSize: 10,
		State:    "active",
		MaxPages: 100,
	})

	ctx := context.Background()
	token, err := manager.GetToken(ctx)
	if err != nil {
		t.Fatalf("Failed to get token: %v", err)
	}

	// Platform stops accepting the bearer before the first page hits.
	mock.RejectBearer()

	records, err := p.FetchAll(ctx, token)
	if err != nil {
		t.Fatalf("Fetch should recover from a rejected bearer: %v", err)
	}
	if len(records) != 25 {
		t.Errorf("Expected 25 records, got %d", len(records))
	}

	if calls := mock.GetTokenCalls(); calls != 2 {
		t.Errorf("Expected 2 token exchanges (initial plus forced refresh), got %d", calls)
	}
	// One rejected call plus three successful pages.
	if calls := mock.GetHostsCalls(); calls != 4 {
		t.Errorf("Expected 4 listing calls, got %d", calls)
	}
}

// TestRateLimitRecovery verifies that a 429 with Retry-After delays the
// retry by the server hint and the fetch completes.
func TestRateLimitRecovery(t *testing.T) {
	mock := testutil.NewMockVectra(testutil.GenerateHosts(5))
	defer mock.Close()

	throttled := false
	mock.SetHandler(testutil.HostsPath, func(w http.ResponseWriter, r *http.Request) {
		if !throttled {
			throttled = true
			w.Header().Set("Retry-After", "2")
			http.Error(w, `{"detail": "throttled"}`, http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count": 1, "next": null, "results": [{"id": 1, "name": "host-001", "state": "active"}]}`))
	})

	store := tokencache.NewFileStore(filepath.Join(t.TempDir(), "vectra_token.json"))

	envFile := writeEnvFile(t, t.TempDir(), mock.URL())
	creds, err := config.Load(envFile)
	if err != nil {
		t.Fatalf("Failed to load credentials: %v", err)
	}
	manager, err := auth.NewManager(creds, store, auth.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create auth manager: %v", err)
	}

	executor := client.New(client.DefaultConfig())
	var waits []time.Duration
	executor.SetSleep(func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	})

	p := pager.New(executor, manager, creds.BaseURL, pager.Config{PageSize: 10, MaxPages: 10})
	p.SetSleep(func(ctx context.Context, d time.Duration) error { return nil })

	ctx := context.Background()
	token, err := manager.GetToken(ctx)
	if err != nil {
		t.Fatalf("Failed to get token: %v", err)
	}

	records, err := p.FetchAll(ctx, token)
	if err != nil {
		t.Fatalf("Fetch should recover from rate limiting: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(records))
	}

	if len(waits) != 1 {
		t.Fatalf("Expected 1 backoff wait, got %d", len(waits))
	}
	if waits[0] != 2*time.Second {
		t.Errorf("Expected Retry-After hint of 2s to override the backoff, got %v", waits[0])
	}
}

// TestRedisTokenStore verifies that a token cached in Redis is shared
// across manager instances, as it would be across export runs.
func TestRedisTokenStore(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockVectra(testutil.GenerateHosts(3))
	defer mock.Close()

	envFile := writeEnvFile(t, t.TempDir(), mock.URL())
	creds, err := config.Load(envFile)
	if err != nil {
		t.Fatalf("Failed to load credentials: %v", err)
	}

	store := tokencache.NewRedisStore(redisClient)
	ctx := context.Background()

	first, err := auth.NewManager(creds, store, auth.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create auth manager: %v", err)
	}
	token, err := first.GetToken(ctx)
	if err != nil {
		t.Fatalf("Failed to get token: %v", err)
	}
	if calls := mock.GetTokenCalls(); calls != 1 {
		t.Fatalf("Expected 1 token exchange, got %d", calls)
	}

	// Redis entry expires with the token.
	ttl, err := redisClient.TTL(ctx, tokencache.RedisKeyToken).Result()
	if err != nil {
		t.Fatalf("Failed to read key TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("Expected a positive TTL up to the token lifetime, got %v", ttl)
	}

	// A second run reuses the cached token without touching the platform.
	second, err := auth.NewManager(creds, store, auth.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create auth manager: %v", err)
	}
	reused, err := second.GetToken(ctx)
	if err != nil {
		t.Fatalf("Failed to get cached token: %v", err)
	}
	if reused.AccessToken != token.AccessToken {
		t.Errorf("Expected the cached token, got %q", reused.AccessToken)
	}
	if calls := mock.GetTokenCalls(); calls != 1 {
		t.Errorf("Expected no additional token exchange, got %d", calls)
	}
}
