// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config is the runtime configuration, loaded from config.toml and
// PROWLINK__ environment variables.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"baseUrl"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	DataDir string `mapstructure:"dataDir"`

	// APIToken is the static key accepted by the HTTP API alongside any
	// keys created at runtime. Generated into the config file on first run.
	APIToken string `mapstructure:"apiToken"`

	// EncryptionSecret derives the key that encrypts sensitive registry
	// columns at rest. Generated into the config file on first run.
	EncryptionSecret string `mapstructure:"encryptionSecret"`

	ProwlarrURL      string `mapstructure:"prowlarrUrl"`
	ProwlarrAPIKey   string `mapstructure:"prowlarrApiKey"`
	ProwlarrTimeout  int    `mapstructure:"prowlarrTimeout"`
	ProwlarrProxy    bool   `mapstructure:"prowlarrProxy"`
	ProwlarrProxyURL string `mapstructure:"prowlarrProxyUrl"`

	SyncIntervalHours int    `mapstructure:"syncIntervalHours"`
	CacheTTLMinutes   int    `mapstructure:"cacheTtlMinutes"`
	SearchLimit       int    `mapstructure:"searchLimit"`
	OverridesFile     string `mapstructure:"overridesFile"`

	CheckForUpdates bool `mapstructure:"checkForUpdates"`

	MetricsEnabled        bool   `mapstructure:"metricsEnabled"`
	MetricsHost           string `mapstructure:"metricsHost"`
	MetricsPort           int    `mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `mapstructure:"metricsBasicAuthUsers"`

	PprofEnabled bool `mapstructure:"pprofEnabled"`

	Version string
}
