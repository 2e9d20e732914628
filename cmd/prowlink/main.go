// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/autobrr/prowlink/internal/api"
	"github.com/autobrr/prowlink/internal/buildinfo"
	"github.com/autobrr/prowlink/internal/config"
	"github.com/autobrr/prowlink/internal/database"
	"github.com/autobrr/prowlink/internal/domain"
	"github.com/autobrr/prowlink/internal/metrics"
	"github.com/autobrr/prowlink/internal/models"
	"github.com/autobrr/prowlink/internal/scheduler"
	"github.com/autobrr/prowlink/internal/services/prowlarr"
	"github.com/autobrr/prowlink/internal/update"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "prowlink",
		Short: "Prowlarr indexer sync and search delegation sidecar",
		Long: `prowlink - A headless sidecar that mirrors Prowlarr indexers into a
local site registry and answers delegated searches on their behalf.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunCreateAPIKeyCommand())
	rootCmd.AddCommand(RunTestConnectionCommand())
	rootCmd.AddCommand(RunSyncCommand())
	rootCmd.AddCommand(RunUpdateCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
		pprofFlag bool
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/prowlink/ or %APPDATA%\\prowlink\\). For backward compatibility, can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for database and other files (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")
	command.Flags().BoolVar(&pprofFlag, "pprof", false, "enable pprof server on :6060")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, dataDir, logPath, pprofFlag)
		app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of prowlink",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/prowlink/config.toml
- Windows: %APPDATA%\prowlink\config.toml

You can specify either a directory path or a direct file path:
- Directory: prowlink generate-config --config-dir /path/to/config/
- File: prowlink generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				defaultDir := config.GetDefaultConfigDir()
				configPath = filepath.Join(defaultDir, "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func RunCreateAPIKeyCommand() *cobra.Command {
	var configDir, dataDir, name string

	command := &cobra.Command{
		Use:   "create-apikey",
		Short: "Create an API key",
		Long: `Create an API key without starting the server.

The plaintext key is printed exactly once; only a hash is stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(configDir, buildinfo.Version)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			if dataDir != "" {
				cfg.SetDataDir(dataDir)
			}

			db, err := database.New(cfg.GetDatabasePath())
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer db.Close()

			if name == "" {
				fmt.Print("Enter key name: ")
				if _, err := fmt.Scanln(&name); err != nil {
					return fmt.Errorf("failed to read key name: %w", err)
				}
			}

			keyStore := models.NewAPIKeyStore(db.Conn())
			key, err := keyStore.Create(context.Background(), name)
			if err != nil {
				return fmt.Errorf("failed to create API key: %w", err)
			}

			cmd.Printf("API key '%s' created with ID %d\n", key.Name, key.ID)
			cmd.Printf("Key (shown once): %s\n", key.Key)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&dataDir, "data-dir", "",
		"data directory path (defaults to next to config file)")
	command.Flags().StringVar(&name, "name", "",
		"name for the new key")

	return command
}

func RunTestConnectionCommand() *cobra.Command {
	var configDir, prowlarrURL, apiKey string

	command := &cobra.Command{
		Use:   "test-connection",
		Short: "Probe the configured Prowlarr instance",
		Long: `Probe the Prowlarr instance and report reachability.

Connection settings come from the configuration file; --url and --api-key
override them for one-off probes. The API key is prompted for when a URL
is given without one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(configDir, buildinfo.Version)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			url := cfg.Config.ProwlarrURL
			key := cfg.Config.ProwlarrAPIKey
			if prowlarrURL != "" {
				url = prowlarrURL
				key = apiKey
				if key == "" {
					key, err = readSecret("Enter Prowlarr API key: ")
					if err != nil {
						return err
					}
				}
			}

			client, err := prowlarr.NewClient(prowlarr.Config{
				URL:            url,
				APIKey:         key,
				TimeoutSeconds: cfg.Config.ProwlarrTimeout,
				UserAgent:      buildinfo.UserAgent,
			})
			if err != nil {
				return fmt.Errorf("failed to build Prowlarr client: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			status := client.TestConnection(ctx)
			if !status.OK {
				return fmt.Errorf("connection failed: %s", status.Detail)
			}

			cmd.Printf("Connection OK: %s\n", status.Detail)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&prowlarrURL, "url", "",
		"Prowlarr URL to probe instead of the configured one")
	command.Flags().StringVar(&apiKey, "api-key", "",
		"Prowlarr API key (prompted when --url is set without it)")

	return command
}

func RunSyncCommand() *cobra.Command {
	var configDir, dataDir string

	command := &cobra.Command{
		Use:   "sync",
		Short: "Run one indexer synchronization pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(configDir, buildinfo.Version)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			if dataDir != "" {
				cfg.SetDataDir(dataDir)
			}

			cfg.ApplyLogConfig()

			db, err := database.New(cfg.GetDatabasePath())
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer db.Close()

			siteStore, err := models.NewSiteStore(db.Conn(), cfg.GetEncryptionKey())
			if err != nil {
				return fmt.Errorf("failed to initialize site store: %w", err)
			}
			runStore := models.NewSyncRunStore(db.Conn())

			client, err := prowlarr.NewClient(prowlarr.Config{
				URL:            cfg.Config.ProwlarrURL,
				APIKey:         cfg.Config.ProwlarrAPIKey,
				TimeoutSeconds: cfg.Config.ProwlarrTimeout,
				ProxyURL:       proxyURL(cfg.Config),
				UserAgent:      buildinfo.UserAgent,
			})
			if err != nil {
				return fmt.Errorf("failed to build Prowlarr client: %w", err)
			}

			overrides, err := prowlarr.LoadOverrides(cfg.Config.OverridesFile)
			if err != nil {
				return fmt.Errorf("failed to load domain overrides: %w", err)
			}

			cache := prowlarr.NewIndexerCache(time.Duration(cfg.Config.CacheTTLMinutes) * time.Minute)
			syncService := prowlarr.NewSyncService(client, cache, siteStore, runStore, overrides, cfg.Config.ProwlarrProxy, nil)

			run, err := syncService.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			out, err := json.MarshalIndent(run, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&dataDir, "data-dir", "",
		"data directory path (defaults to next to config file)")

	return command
}

func RunUpdateCommand() *cobra.Command {
	var command = &cobra.Command{
		Use:                   "update",
		Short:                 "Update prowlink",
		Long:                  `Update prowlink to the latest version.`,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			updater := update.NewUpdater(buildinfo.Version)
			return updater.Run(cmd.Context())
		},
	}

	command.SetUsageTemplate(`Usage:
  {{.CommandPath}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}
`)

	return command
}

func readSecret(prompt string) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print(prompt)
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return string(secret), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	var secret string
	if _, err := fmt.Scanln(&secret); err != nil {
		return "", fmt.Errorf("failed to read secret from stdin: %w", err)
	}
	return secret, nil
}

func proxyURL(conf *domain.Config) string {
	if !conf.ProwlarrProxy {
		return ""
	}
	return conf.ProwlarrProxyURL
}

type Application struct {
	configDir string
	dataDir   string
	logPath   string
	pprofFlag bool
}

func NewApplication(configDir, dataDir, logPath string, pprofFlag bool) *Application {
	return &Application{
		configDir: configDir,
		dataDir:   dataDir,
		logPath:   logPath,
		pprofFlag: pprofFlag,
	}
}

func (app *Application) runServer() {
	// Initialize configuration
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if app.dataDir != "" {
		os.Setenv("PROWLINK__DATA_DIR", app.dataDir)
		cfg.SetDataDir(app.dataDir)
	}
	if app.logPath != "" {
		os.Setenv("PROWLINK__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}

	if app.pprofFlag {
		cfg.Config.PprofEnabled = true
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting prowlink")

	// Initialize database
	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Initialize stores
	siteStore, err := models.NewSiteStore(db.Conn(), cfg.GetEncryptionKey())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize site store")
	}
	runStore := models.NewSyncRunStore(db.Conn())
	apiKeyStore := models.NewAPIKeyStore(db.Conn())

	// Initialize Prowlarr client
	prowlarrClient, err := prowlarr.NewClient(prowlarr.Config{
		URL:            cfg.Config.ProwlarrURL,
		APIKey:         cfg.Config.ProwlarrAPIKey,
		TimeoutSeconds: cfg.Config.ProwlarrTimeout,
		ProxyURL:       proxyURL(cfg.Config),
		UserAgent:      buildinfo.UserAgent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Prowlarr client")
	}
	if !prowlarrClient.Configured() {
		log.Warn().Msg("Prowlarr URL or API key not configured - sync and delegation will be inactive until set")
	}

	overrides, err := prowlarr.LoadOverrides(cfg.Config.OverridesFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Config.OverridesFile).Msg("Failed to load domain overrides")
	}

	var metricsManager *metrics.Manager
	if cfg.Config.MetricsEnabled {
		metricsManager = metrics.NewManager()
	}

	// Core services: mapping cache, delegator and sync
	indexerCache := prowlarr.NewIndexerCache(time.Duration(cfg.Config.CacheTTLMinutes) * time.Minute)
	delegator := prowlarr.NewDelegator(prowlarrClient, indexerCache, prowlarr.NewStoreResolver(siteStore), cfg.Config.SearchLimit, recorderOrNil(metricsManager))
	syncService := prowlarr.NewSyncService(prowlarrClient, indexerCache, siteStore, runStore, overrides, cfg.Config.ProwlarrProxy, recorderOrNil(metricsManager))

	// Periodic sync
	sched := scheduler.New()
	syncInterval := time.Duration(cfg.Config.SyncIntervalHours) * time.Hour
	err = sched.Register(scheduler.Job{
		Name:     scheduler.JobProwlarrSync,
		Interval: syncInterval,
		Run: func(ctx context.Context) {
			if _, err := syncService.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Scheduled indexer sync failed")
			}
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register sync job")
	}
	sched.Start()
	defer sched.Stop()

	if prowlarrClient.Configured() {
		if err := sched.Trigger(scheduler.JobProwlarrSync); err != nil {
			log.Error().Err(err).Msg("Failed to trigger startup sync")
		}
	}

	// Update checks
	updateService := update.NewService(buildinfo.Version, cfg.Config.CheckForUpdates)
	cfg.RegisterReloadListener(func(conf *domain.Config) {
		updateService.SetEnabled(conf.CheckForUpdates)
	})
	updateCtx, cancelUpdate := context.WithCancel(context.Background())
	defer cancelUpdate()
	go updateService.Start(updateCtx)

	// Start server in goroutine
	httpServer := api.NewServer(&api.Dependencies{
		Config:         cfg,
		Version:        buildinfo.Version,
		DB:             db,
		ProwlarrClient: prowlarrClient,
		Delegator:      delegator,
		IndexerCache:   indexerCache,
		SyncService:    syncService,
		SiteStore:      siteStore,
		SyncRunStore:   runStore,
		APIKeyStore:    apiKeyStore,
		UpdateService:  updateService,
		MetricsManager: metricsManager,
	})

	errorChannel := make(chan error)
	serverReady := make(chan struct{}, 1)
	go func() {
		if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	select {
	case <-serverReady:
	case err := <-errorChannel:
		log.Fatal().Err(err).Msg("failed to start HTTP server")
	}

	var metricsServer *metrics.Server
	if cfg.Config.MetricsEnabled {
		// Start metrics server on separate port
		metricsServer = metrics.NewServer(
			metricsManager,
			cfg.Config.MetricsHost,
			cfg.Config.MetricsPort,
			cfg.Config.MetricsBasicAuthUsers,
		)

		go func() {
			errorChannel <- metricsServer.ListenAndServe()
		}()
	}

	// Start profiling server if enabled
	if cfg.Config.PprofEnabled {
		go func() {
			log.Info().Msg("Starting pprof server on :6060")
			log.Info().Msg("Access profiling at: http://localhost:6060/debug/pprof/")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				log.Error().Err(err).Msg("Profiling server failed")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("got error during graceful metrics shutdown")
		}
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")

		os.Exit(1)
	}

	os.Exit(0)
}

// recorderOrNil keeps the services' nil-recorder contract when metrics are
// disabled: a typed nil pointer would defeat their nil checks.
func recorderOrNil(m *metrics.Manager) prowlarr.MetricsRecorder {
	if m == nil {
		return nil
	}
	return m
}
