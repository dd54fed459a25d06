package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Netrows    NetrowsConfig    `yaml:"netrows" mapstructure:"netrows"`
	NPI        NPIConfig        `yaml:"npi" mapstructure:"npi"`
	CMS        CMSConfig        `yaml:"cms" mapstructure:"cms"`
	Directory  DirectoryConfig  `yaml:"directory" mapstructure:"directory"`
	Network    NetworkConfig    `yaml:"network" mapstructure:"network"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Monitor    MonitorConfig    `yaml:"monitor" mapstructure:"monitor"`
	Score      ScoreConfig      `yaml:"score" mapstructure:"score"`
	Vocab      VocabConfig      `yaml:"vocab" mapstructure:"vocab"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Review     ReviewConfig     `yaml:"review" mapstructure:"review"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// SearchConfig holds web search API settings. The search API is credit-limited.
type SearchConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinIntervalMs int    `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	MaxResults    int    `yaml:"max_results" mapstructure:"max_results"`
	FetchPages    int    `yaml:"fetch_pages" mapstructure:"fetch_pages"`
}

// NetrowsConfig holds professional-profile API settings.
type NetrowsConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinIntervalMs int    `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
}

// NPIConfig holds NPI registry settings. The registry needs no credentials.
type NPIConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinIntervalMs int    `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	Limit         int    `yaml:"limit" mapstructure:"limit"`
}

// CMSConfig holds the clinician affiliation dataset settings.
type CMSConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	DatasetID   string `yaml:"dataset_id" mapstructure:"dataset_id"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// DirectoryConfig configures the provider-directory search.
type DirectoryConfig struct {
	Domain       string   `yaml:"domain" mapstructure:"domain"`
	PathSegments []string `yaml:"path_segments" mapstructure:"path_segments"`
}

// NetworkConfig configures professional-network candidate ranking.
type NetworkConfig struct {
	MinScore int `yaml:"min_score" mapstructure:"min_score"`
}

// ScrapeConfig configures page fetching.
type ScrapeConfig struct {
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBytes     int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	MaxRedirects int    `yaml:"max_redirects" mapstructure:"max_redirects"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
}

// MonitorConfig configures the run coordinator.
type MonitorConfig struct {
	PlacedStages      []string `yaml:"placed_stages" mapstructure:"placed_stages"`
	SourceTimeoutSecs int      `yaml:"source_timeout_secs" mapstructure:"source_timeout_secs"`
	Enrich            bool     `yaml:"enrich" mapstructure:"enrich"`
}

// ScoreConfig configures alert thresholds.
type ScoreConfig struct {
	MinConfidence string `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// VocabConfig points at an optional vocabulary override file.
type VocabConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SalesforceConfig holds Salesforce JWT auth settings and sync field mapping.
type SalesforceConfig struct {
	ClientID      string `yaml:"client_id" mapstructure:"client_id"`
	Username      string `yaml:"username" mapstructure:"username"`
	KeyPath       string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL      string `yaml:"login_url" mapstructure:"login_url"`
	SubmissionObj string `yaml:"submission_object" mapstructure:"submission_object"`
}

// NotionConfig holds Notion API credentials for the alert review queue.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// ReviewConfig configures new-alert notifications.
type ReviewConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLACEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.path", "placement-data.json")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("search.key", "")
	v.SetDefault("search.base_url", "https://serpapi.com")
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("search.min_interval_ms", 1000)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.fetch_pages", 3)
	v.SetDefault("netrows.key", "")
	v.SetDefault("netrows.base_url", "https://api.netrows.com/v1")
	v.SetDefault("netrows.timeout_secs", 20)
	v.SetDefault("netrows.min_interval_ms", 1000)
	v.SetDefault("npi.enabled", true)
	v.SetDefault("npi.base_url", "https://npiregistry.cms.hhs.gov/api")
	v.SetDefault("npi.timeout_secs", 15)
	v.SetDefault("npi.min_interval_ms", 500)
	v.SetDefault("npi.limit", 50)
	v.SetDefault("cms.enabled", true)
	v.SetDefault("cms.base_url", "https://data.cms.gov/provider-data/api/1/datastore/query")
	v.SetDefault("cms.dataset_id", "mj5m-pzi6")
	v.SetDefault("cms.timeout_secs", 15)
	v.SetDefault("directory.domain", "healthgrades.com")
	v.SetDefault("directory.path_segments", []string{"/physician/", "/dentist/", "/provider/"})
	v.SetDefault("network.min_score", 50)
	v.SetDefault("scrape.timeout_secs", 10)
	v.SetDefault("scrape.max_bytes", 512*1024)
	v.SetDefault("scrape.max_redirects", 2)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (compatible; PlacementMonitor/1.0)")
	v.SetDefault("monitor.placed_stages", []string{"Placed", "Hired", "Started", "Offer Accepted"})
	v.SetDefault("monitor.source_timeout_secs", 15)
	v.SetDefault("monitor.enrich", true)
	v.SetDefault("score.min_confidence", "medium")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.submission_object", "Submission__c")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "file", "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for the "+c.Store.Driver+" driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	switch mode {
	case "monitor":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "sync":
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			errs = append(errs, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.key_path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Network.MinScore < 0 || c.Network.MinScore > 100 {
		errs = append(errs, "network.min_score must be between 0 and 100")
	}
	switch strings.ToLower(c.Score.MinConfidence) {
	case "", "low", "medium", "high":
	default:
		errs = append(errs, "score.min_confidence must be one of low, medium, high")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
