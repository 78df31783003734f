// Command vectra-hosts retrieves host inventory records from a Vectra
// platform and exports them to CSV.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mkorbi/vectra-host-export/pkg/auth"
	"github.com/mkorbi/vectra-host-export/pkg/client"
	"github.com/mkorbi/vectra-host-export/pkg/config"
	"github.com/mkorbi/vectra-host-export/pkg/export"
	"github.com/mkorbi/vectra-host-export/pkg/logging"
	"github.com/mkorbi/vectra-host-export/pkg/pager"
	"github.com/mkorbi/vectra-host-export/pkg/tokencache"
)

// Command line flags
var (
	envFile       string
	outputPath    string
	pageSize      int
	stateFilter   string
	timeoutSecs   int
	maxRetries    int
	tokenFile     string
	tokenStore    string
	forceNewToken bool
	logLevel      string
	pretty        bool
)

// For testing
var osExit = os.Exit

var rootCmd = &cobra.Command{
	Use:   "vectra-hosts",
	Short: "Export Vectra host inventory to CSV",
	Long: `vectra-hosts retrieves all hosts from a Vectra platform via the
v3.4 REST API, handling OAuth2 authentication, token caching, retries,
and pagination, and writes the result to a CSV file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runExport,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&envFile, "env-file", "cred.env", "Path to environment file with credentials")
	flags.StringVar(&outputPath, "output", "", "Output file name (default: active_hosts-TIMESTAMP.csv)")
	flags.IntVar(&pageSize, "page-size", 100, "Number of hosts per page (max: 5000)")
	flags.StringVar(&stateFilter, "state", "active", "Filter hosts by state (active, inactive, all)")
	flags.IntVar(&timeoutSecs, "timeout", 120, "API request timeout in seconds")
	flags.IntVar(&maxRetries, "max-retries", 3, "Maximum number of retry attempts")
	flags.StringVar(&tokenFile, "token-file", "vectra_token.json", "Token cache file path")
	flags.StringVar(&tokenStore, "token-store", "file", "Token cache backend (file, redis)")
	flags.BoolVar(&forceNewToken, "force-new-token", false, "Ignore the cached token and authenticate fresh")
	flags.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.BoolVar(&pretty, "pretty", true, "Human-readable colored log output")
}

func runExport(cmd *cobra.Command, args []string) error {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(logLevel),
		Pretty: pretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("vectra-hosts")

	if err := validateFlags(); err != nil {
		return err
	}

	creds, err := config.Load(envFile)
	if err != nil {
		return err
	}
	logger.Info().Str("endpoint", creds.BaseURL).Msg("Loaded credentials")

	store, err := buildTokenStore()
	if err != nil {
		return err
	}

	authCfg := auth.DefaultConfig()
	authCfg.HTTPTimeout = time.Duration(timeoutSecs) * time.Second
	manager, err := auth.NewManager(creds, store, authCfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	token, err := getToken(ctx, manager)
	if err != nil {
		return err
	}

	executorCfg := client.DefaultConfig()
	executorCfg.Timeout = time.Duration(timeoutSecs) * time.Second
	executorCfg.Retry.MaxRetries = maxRetries
	executor := client.New(executorCfg)

	pagerCfg := pager.DefaultConfig()
	pagerCfg.PageSize = pageSize
	pagerCfg.State = stateFilter
	p := pager.New(executor, manager, creds.BaseURL, pagerCfg)

	records, err := p.FetchAll(ctx, token)
	if err != nil {
		return err
	}
	logger.Info().Int("records", len(records)).Msg("Retrieved all hosts")

	output := outputPath
	if output == "" {
		output = defaultOutputName(time.Now())
	}
	if err := export.WriteCSV(output, records); err != nil {
		return err
	}

	fmt.Printf("Exported %d hosts to %s\n", len(records), output)
	return nil
}

// validateFlags rejects flag combinations before any network work.
func validateFlags() error {
	switch stateFilter {
	case "active", "inactive", "all":
	default:
		return fmt.Errorf("invalid --state %q (want active, inactive, or all)", stateFilter)
	}

	if pageSize <= 0 || pageSize > pager.MaxPageSize {
		return fmt.Errorf("invalid --page-size %d (want 1-%d)", pageSize, pager.MaxPageSize)
	}
	if timeoutSecs <= 0 {
		return fmt.Errorf("invalid --timeout %d (want a positive number of seconds)", timeoutSecs)
	}
	if maxRetries < 0 {
		return fmt.Errorf("invalid --max-retries %d", maxRetries)
	}

	switch tokenStore {
	case "file", "redis":
	default:
		return fmt.Errorf("invalid --token-store %q (want file or redis)", tokenStore)
	}
	return nil
}

// buildTokenStore selects the token cache backend.
func buildTokenStore() (tokencache.Store, error) {
	switch tokenStore {
	case "redis":
		redisURL := getEnv("REDIS_URL", "localhost:6379")
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		log.Info().Str("redis", redisURL).Msg("Using Redis token store")
		return tokencache.NewRedisStore(redisClient), nil
	default:
		return tokencache.NewFileStore(tokenFile), nil
	}
}

// getToken obtains the access token, honoring --force-new-token.
func getToken(ctx context.Context, manager *auth.Manager) (*tokencache.Token, error) {
	if forceNewToken {
		return manager.ForceRefresh(ctx)
	}
	return manager.GetToken(ctx)
}

// defaultOutputName produces the timestamped output file name.
func defaultOutputName(now time.Time) string {
	return fmt.Sprintf("active_hosts-%s.csv", now.Format("20060102-150405"))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Export failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}
