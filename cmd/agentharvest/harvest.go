package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agentharvest/pkg/auth"
	"agentharvest/pkg/cache"
	"agentharvest/pkg/config"
	"agentharvest/pkg/fetch"
	"agentharvest/pkg/harvest"
	"agentharvest/pkg/identity"
	"agentharvest/pkg/logger"
	"agentharvest/pkg/output"
	"agentharvest/pkg/ratelimit"
)

var (
	// Harvest command flags
	outputFile  string
	cacheDir    string
	batchSize   int
	pageSize    int
	maxRetries  int
	cacheTTL    int
	baseURL     string
	profileName string
	noProxy     bool
)

// harvestCmd represents the harvest command
var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Run a full extraction of the agent directory",
	Long: `Run both extraction phases: enumerate the paginated listing API to
collect every agent identifier, then fetch each agent's detail record
and append the merged records to the output file as NDJSON.

Credentials are resolved from (in order):
  - A stored profile (use 'agentharvest auth login' to store one)
  - Environment variables (AGENTHARVEST_PROXY_API_TOKEN)
  - The configuration file`,
	Example: `  # Harvest with default settings
  agentharvest harvest

  # Write to a specific file with larger batches
  agentharvest harvest --output agents.ndjson --batch-size 10

  # Use a stored credential profile
  agentharvest harvest --profile staging

  # Fetch directly without the proxy pool
  agentharvest harvest --no-proxy`,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	harvestCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output NDJSON file")
	harvestCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "response cache directory")
	harvestCmd.Flags().IntVar(&batchSize, "batch-size", 0, "items fetched concurrently per batch")
	harvestCmd.Flags().IntVar(&pageSize, "page-size", 0, "listing page size")
	harvestCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "total attempts per item")
	harvestCmd.Flags().IntVar(&cacheTTL, "cache-ttl", 0, "cache TTL in seconds")
	harvestCmd.Flags().StringVar(&baseURL, "base-url", "", "directory API base URL")
	harvestCmd.Flags().StringVarP(&profileName, "profile", "p", "", "stored credential profile to use")
	harvestCmd.Flags().BoolVar(&noProxy, "no-proxy", false, "fetch directly instead of through the proxy pool")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("agentharvest starting")

	if err := resolveCredentials(cfg); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := cache.NewStore(cfg.Output.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to open response cache: %w", err)
	}

	var rotator fetch.Rotator
	if !noProxy && cfg.Proxy.APIToken != "" {
		provider := identity.NewServiceProvider(cfg.Proxy.ServiceURL, cfg.Proxy.APIToken, cfg.Proxy.PageSize)
		rotator = identity.NewRotator(provider)
	} else {
		log.Warn("no proxy credentials configured, fetching directly")
	}

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if cfg.Fetch.RequestsPerMinute > 0 {
		limiter = ratelimit.NewTokenBucket(cfg.Fetch.RequestsPerMinute, time.Minute)
	}

	client := fetch.NewClient(fetch.Options{
		Cache:   store,
		Rotator: rotator,
		Headers: identity.NewHeaderRotator(),
		Limiter: limiter,
		Timeout: cfg.Fetch.RequestTimeout,
		Logger:  log,
	})

	writer, err := output.NewWriter(cfg.Output.File)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := harvest.New(cfg, client, writer).Run(ctx)
	if err != nil {
		log.WithError(err).Error("harvest failed")
		return err
	}

	printSummary(summary)
	return nil
}

// loadConfig builds the flag override map and loads the configuration
func loadConfig() (*config.Config, error) {
	flags := make(map[string]interface{})
	if outputFile != "" {
		flags["output"] = outputFile
	}
	if cacheDir != "" {
		flags["cache-dir"] = cacheDir
	}
	if batchSize > 0 {
		flags["batch-size"] = batchSize
	}
	if pageSize > 0 {
		flags["page-size"] = pageSize
	}
	if maxRetries > 0 {
		flags["max-retries"] = maxRetries
	}
	if cacheTTL > 0 {
		flags["cache-ttl"] = cacheTTL
	}
	if baseURL != "" {
		flags["base-url"] = baseURL
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	return config.Load(configFile, flags)
}

// resolveCredentials fills in the proxy token and session cookie from
// the credential manager when the config does not already carry them.
func resolveCredentials(cfg *config.Config) error {
	manager, err := auth.NewManager()
	if err != nil {
		// No credential backends; config/env values are all we have
		return nil
	}

	var profile *auth.Profile
	if profileName != "" {
		profile, err = manager.Retrieve(profileName)
		if err != nil {
			return fmt.Errorf("credential profile %q not found, run 'agentharvest auth list'", profileName)
		}
	} else if cfg.Proxy.APIToken == "" {
		profile, _ = manager.RetrieveDefault()
	}

	if profile != nil {
		cfg.Proxy.APIToken = profile.ProxyToken
		if profile.SessionCookie != "" {
			cfg.Directory.SessionCookie = profile.SessionCookie
		}
		logger.GetLogger().WithField("profile", profile.Name).Info("Using stored credentials")
	}

	return nil
}

func printSummary(s *harvest.Summary) {
	fmt.Printf("\nHarvest complete (run %s)\n", s.RunID)
	fmt.Printf("  Total agents:    %d\n", s.TotalAgents)
	fmt.Printf("  Listing pages:   %d\n", s.PageCount)
	fmt.Printf("  IDs collected:   %d\n", s.IDsCollected)
	fmt.Printf("  Records written: %d\n", s.RecordsWritten)
	fmt.Printf("  Failures:        %d\n", s.FailureCount)
	fmt.Printf("  Duration:        %s\n", s.Duration.Round(time.Millisecond))

	if len(s.FirstErrors) > 0 {
		fmt.Printf("\nFirst %d errors:\n", len(s.FirstErrors))
		for _, line := range s.FirstErrors {
			fmt.Printf("  - %s\n", line)
		}
	}
}
