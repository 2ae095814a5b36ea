package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nao1215/linkforensics/internal/cache"
	"github.com/nao1215/linkforensics/internal/capture"
	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/database"
	"github.com/nao1215/linkforensics/internal/fingerprint"
	"github.com/nao1215/linkforensics/internal/location"
	applog "github.com/nao1215/linkforensics/internal/log"
	"github.com/nao1215/linkforensics/internal/metrics"
	"github.com/nao1215/linkforensics/internal/network"
	"github.com/nao1215/linkforensics/internal/provider"
	"github.com/nao1215/linkforensics/internal/report"
	"github.com/spf13/cobra"
)

// buildConfig reads the global flags and loads the data file.
// Command specific flags are applied by the commands themselves.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.Verbose, err = cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}

	cfg.DBDriver, err = cmd.Flags().GetString("db-driver")
	if err != nil {
		return nil, err
	}

	cfg.DBDir, err = cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}

	cfg.PostgresDSN, err = cmd.Flags().GetString("postgres-dsn")
	if err != nil {
		return nil, err
	}

	cfg.RedisAddress, err = cmd.Flags().GetString("redis")
	if err != nil {
		return nil, err
	}

	cfg.ProxyAddress, err = cmd.Flags().GetString("proxy")
	if err != nil {
		return nil, err
	}

	cfg.MaskIP, err = cmd.Flags().GetBool("mask-ip")
	if err != nil {
		return nil, err
	}

	cfg.JSONLog, err = cmd.Flags().GetBool("json-log")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If user explicitly specified a data file, error if not found.
	// Otherwise the built-in providers and tables are used.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.Data, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ConfigFilePath = configPath
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	return cfg, nil
}

// addReportFlags registers the report format and destination flags.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false, "Output report in JSON format")
	cmd.Flags().BoolP("markdown", "m", false, "Output report in Markdown format")
	cmd.Flags().StringP("output", "o", "", "Write report to file instead of stdout")
}

// applyReportFlags copies the report flags into cfg.
func applyReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	return nil
}

// addTimeoutFlags registers the flags that bound lookups and captures.
func addTimeoutFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("provider-timeout", config.DefaultProviderTimeout, "Timeout for each external lookup")
	cmd.Flags().Duration("branch-timeout", config.DefaultBranchTimeout, "Timeout for each capture branch (network, fingerprint, location)")
	cmd.Flags().Duration("cache-ttl", config.DefaultCacheTTL, "How long lookup answers are cached (0 disables caching)")
	cmd.Flags().Float64("rate-limit", config.DefaultProviderRateLimit, "Requests per second allowed per provider chain (0 disables throttling)")
}

// applyTimeoutFlags copies the timeout flags into cfg.
func applyTimeoutFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error

	cfg.ProviderTimeout, err = cmd.Flags().GetDuration("provider-timeout")
	if err != nil {
		return err
	}

	cfg.BranchTimeout, err = cmd.Flags().GetDuration("branch-timeout")
	if err != nil {
		return err
	}

	cfg.CacheTTL, err = cmd.Flags().GetDuration("cache-ttl")
	if err != nil {
		return err
	}

	cfg.ProviderRateLimit, err = cmd.Flags().GetFloat64("rate-limit")
	if err != nil {
		return err
	}

	return nil
}

// setupLogger creates the secure logger selected by cfg.
// Logs go to w, which is stderr outside of tests.
func setupLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.JSONLog {
		return applog.NewSecureJSONLogger(w, cfg.Verbose, applog.WithIPMasking(cfg.MaskIP))
	}
	return applog.NewSecureLogger(w, cfg.Verbose, applog.WithIPMasking(cfg.MaskIP))
}

// openStore opens the configured backend, instrumented with m.
func openStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (database.Store, error) {
	store, err := database.OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database.Instrument(store, m), nil
}

// openCaptureStore opens the store captured records are written to. An
// unreachable store is logged and replaced by database.Unconfigured, so
// captures still return their records.
func openCaptureStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (database.Store, error) {
	store, err := openStore(ctx, cfg, m)
	if err == nil {
		return store, nil
	}
	if !errors.Is(err, database.ErrPersistenceUnavailable) {
		return nil, err
	}
	logger.Warn("database unreachable, records will not be stored",
		"driver", cfg.DBDriver,
		"error", err)
	return database.Instrument(database.Unconfigured{}, m), nil
}

// newCache returns the shared Redis cache when an address is configured and
// an in-process cache otherwise.
func newCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Cache, error) {
	if cfg.RedisAddress == "" {
		return cache.NewMemory(), nil
	}
	r, err := cache.NewRedis(ctx, cfg.RedisAddress, cache.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// engine is the capture pipeline built from a Config.
type engine struct {
	assembler *capture.Assembler
	live      *config.Live
	cache     cache.Cache
}

// newEngine builds the provider chains, the three capture sources and the
// assembler. A nil store disables persistence of captured records.
func newEngine(ctx context.Context, cfg *config.Config, store database.Store, m *metrics.Metrics, logger *slog.Logger) (*engine, error) {
	data := cfg.DataFile()
	live := config.NewLive(data)

	client, err := provider.NewHTTPClient(
		provider.WithProxy(cfg.ProxyAddress),
		provider.WithClientTimeout(cfg.ProviderTimeout),
		provider.WithUserAgent(cfg.UserAgent),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	lookupCache, err := newCache(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	chainOpts := []provider.ChainOption{
		provider.WithTimeout(cfg.ProviderTimeout),
		provider.WithRateLimit(cfg.ProviderRateLimit, cfg.ProviderBurst),
		provider.WithLogger(logger),
		provider.WithMetrics(m),
	}

	identity := network.NewIdentityChain(client, data.Providers.Identity, chainOpts...)
	enrichment := network.NewLookupChain("enrichment", client, data.Providers.Enrichment, chainOpts...)
	wifi := location.NewWiFiChain(client, data.Providers.WiFi, chainOpts...)
	cell := location.NewCellChain(client, data.Providers.Cell, chainOpts...)
	ipGeo := location.NewIPChain(client, data.Providers.IPGeolocation, chainOpts...)

	if cfg.CacheTTL > 0 {
		identity.WithCache(lookupCache, cfg.CacheTTL, network.CacheKey)
		enrichment.WithCache(lookupCache, cfg.CacheTTL, network.CacheKey)
		wifi.WithCache(lookupCache, cfg.CacheTTL, location.WiFiCacheKey)
		cell.WithCache(lookupCache, cfg.CacheTTL, location.CellCacheKey)
		ipGeo.WithCache(lookupCache, cfg.CacheTTL, location.IPCacheKey)
	}

	probe := network.NewProbe(identity,
		network.WithTables(live),
		network.WithEnrichment(enrichment),
		network.WithLocalTimeout(cfg.ICETimeout),
		network.WithLogger(logger),
	)

	triangulator := location.NewTriangulator(
		location.WithTimeouts(location.Timeouts{
			GPS:       cfg.GPSTimeout,
			WiFi:      cfg.WiFiTimeout,
			Bluetooth: cfg.BluetoothTimeout,
			Cell:      cfg.CellTimeout,
			IP:        cfg.ProviderTimeout,
		}),
		location.WithGPSMaximumAge(cfg.GPSMaximumAge),
		location.WithWiFiChain(wifi),
		location.WithCellChain(cell),
		location.WithIPChain(ipGeo),
		location.WithBeaconRegistry(live),
		location.WithLogger(logger),
		location.WithMetrics(m),
	)

	fp := fingerprint.New(fingerprint.WithLogger(logger))

	opts := []capture.Option{
		capture.WithBranchTimeout(cfg.BranchTimeout),
		capture.WithStoreTimeout(cfg.StoreTimeout),
		capture.WithLogger(logger),
		capture.WithMetrics(m),
	}
	if store != nil {
		opts = append(opts, capture.WithStore(store))
	}

	return &engine{
		assembler: capture.NewAssembler(probe, fp, triangulator, opts...),
		live:      live,
		cache:     lookupCache,
	}, nil
}

// Close waits for pending store hand-offs and releases the lookup cache.
func (e *engine) Close() error {
	e.assembler.Wait()
	return e.cache.Close()
}

// openOutput returns the report destination: cfg.ReportFile when set,
// otherwise the command's stdout. The returned close function is never nil.
func openOutput(cmd *cobra.Command, cfg *config.Config) (io.Writer, func() error, error) {
	if cfg.ReportFile == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}

	// Create directories if they don't exist
	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports identify people; only the owner may read them.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// newReportWriter selects the writer for the configured format.
func newReportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(w, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}

// outputReport opens the destination, lets write render into it and closes it.
func outputReport(cmd *cobra.Command, cfg *config.Config, write func(report.Writer) (int, error)) (err error) {
	out, closeOut, err := openOutput(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeOut())
	}()

	_, err = write(newReportWriter(cfg, out))
	return err
}
