// Package config loads and validates retriever configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	Links       LinksConfig       `mapstructure:"links"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Output      OutputConfig      `mapstructure:"output"`
	Raw         RawConfig         `mapstructure:"raw"`
	Bookkeeping BookkeepingConfig `mapstructure:"bookkeeping"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ResolverConfig controls the sharded job log lookup.
type ResolverConfig struct {
	DSN                   string   `mapstructure:"dsn"`
	ShardTables           []string `mapstructure:"shard_tables"`
	NumericPrefix         string   `mapstructure:"numeric_prefix"`
	ConnectTimeoutSeconds int      `mapstructure:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int      `mapstructure:"read_timeout_seconds"`
}

// LinkRule describes how to pull download links out of one task type's
// analysis response. Field values are JMESPath expressions.
type LinkRule struct {
	Enabled      bool   `mapstructure:"enabled"`
	CodeField    string `mapstructure:"code_field"`
	DataField    string `mapstructure:"data_field"`
	TaskIDField  string `mapstructure:"task_id_field"`
	SuccessCodes []int  `mapstructure:"success_codes"`
}

// LinksConfig lists link-parseable task types and the parse account host.
// Viper lower-cases map keys, so rule lookups are case-insensitive.
type LinksConfig struct {
	ParseHost string              `mapstructure:"parse_host"`
	Rules     map[string]LinkRule `mapstructure:"rules"`
}

// HTTPConfig configures direct-link downloads.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	// RateLimitRPS throttles downloads per host; 0 disables it.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// AccountConfig is one object storage account (a GCS bucket).
type AccountConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Base            string `mapstructure:"base"`
	Endpoint        string `mapstructure:"endpoint"`
	CredentialsFile string `mapstructure:"credentials_file"`
	WithoutAuth     bool   `mapstructure:"without_auth"`
}

// LocalStorageConfig roots the filesystem object store backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// StorageConfig selects the object storage backend and accounts.
type StorageConfig struct {
	Backend            string             `mapstructure:"backend"`
	Parse              AccountConfig      `mapstructure:"parse"`
	Raw                AccountConfig      `mapstructure:"raw"`
	Local              LocalStorageConfig `mapstructure:"local"`
	ReadTimeoutSeconds int                `mapstructure:"read_timeout_seconds"`
	ListTimeoutSeconds int                `mapstructure:"list_timeout_seconds"`
}

// OutputConfig controls where artifacts are written.
type OutputConfig struct {
	SaveRoot   string `mapstructure:"save_root"`
	Decompress bool   `mapstructure:"decompress"`
}

// RawConfig controls the raw input fetch.
type RawConfig struct {
	Format       string              `mapstructure:"format"`
	DefaultFiles []string            `mapstructure:"default_files"`
	TaskFiles    map[string][]string `mapstructure:"task_files"`
}

// BookkeepingConfig selects the mapping store.
type BookkeepingConfig struct {
	Backend   string `mapstructure:"backend"`
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	BadgerDir string `mapstructure:"badger_dir"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment. With an empty path it looks
// for config.{yaml,json,toml} in ., /etc/retriever and $HOME/.retriever and
// falls back to defaults plus RETRIEVER_* variables when none exists.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RETRIEVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/retriever/")
		v.AddConfigPath("$HOME/.retriever")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Empty defaults make these keys visible to AutomaticEnv during Unmarshal.
	for _, key := range []string{
		"auth.api_key", "logging.level", "resolver.dsn",
		"storage.parse.bucket", "storage.raw.bucket", "storage.local.base_dir",
		"bookkeeping.dsn", "pubsub.project_id", "pubsub.topic_name",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("auth.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 300)
	v.SetDefault("logging.development", true)
	v.SetDefault("resolver.shard_tables", []string{"log_a", "log_b", "log_c", "log_d"})
	v.SetDefault("resolver.numeric_prefix", "SL")
	v.SetDefault("resolver.connect_timeout_seconds", 10)
	v.SetDefault("resolver.read_timeout_seconds", 30)
	v.SetDefault("links.parse_host", "storage.googleapis.com")
	v.SetDefault("links.rules", map[string]any{
		"amazonreviewstarjob": defaultRule(),
		"amazonlistingjob":    defaultRule(),
	})
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "parse-artifact-retriever/0.1")
	v.SetDefault("http.rate_limit_rps", 0)
	v.SetDefault("http.rate_limit_burst", 1)
	v.SetDefault("storage.backend", "gcs")
	v.SetDefault("storage.parse.base", "parse")
	v.SetDefault("storage.raw.base", "compress")
	v.SetDefault("storage.read_timeout_seconds", 60)
	v.SetDefault("storage.list_timeout_seconds", 60)
	v.SetDefault("output.save_root", "downloads")
	v.SetDefault("output.decompress", true)
	v.SetDefault("raw.format", "html")
	v.SetDefault("raw.default_files", []string{"login.gz", "normal.gz"})
	v.SetDefault("raw.task_files", map[string]any{
		"amazonreviewstarjob": []string{"page_1.gz", "page_2.gz", "page_3.gz", "page_4.gz", "page_5.gz"},
	})
	v.SetDefault("bookkeeping.backend", "memory")
	v.SetDefault("bookkeeping.table", "task_mappings")
	v.SetDefault("bookkeeping.badger_dir", "data/bookkeeping")
}

func defaultRule() map[string]any {
	return map[string]any{
		"enabled":       true,
		"code_field":    "code",
		"data_field":    "data",
		"task_id_field": "meta.task_id",
		"success_codes": []int{200},
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Resolver.ConnectTimeoutSeconds <= 0 || c.Resolver.ReadTimeoutSeconds <= 0 {
		return fmt.Errorf("resolver timeouts must be > 0")
	}
	if len(c.Resolver.ShardTables) == 0 {
		return fmt.Errorf("resolver.shard_tables must not be empty")
	}
	if strings.TrimSpace(c.Output.SaveRoot) == "" {
		return fmt.Errorf("output.save_root is required")
	}
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.Parse.Bucket == "" {
			return fmt.Errorf("storage.parse.bucket is required for the gcs backend")
		}
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.Raw.Format {
	case "html", "txt", "json", "raw":
	default:
		return fmt.Errorf("raw.format %q is not supported", c.Raw.Format)
	}
	switch c.Bookkeeping.Backend {
	case "memory", "none":
	case "postgres":
		if c.Bookkeeping.DSN == "" {
			return fmt.Errorf("bookkeeping.dsn is required for the postgres backend")
		}
	case "badger":
		if c.Bookkeeping.BadgerDir == "" {
			return fmt.Errorf("bookkeeping.badger_dir is required for the badger backend")
		}
	default:
		return fmt.Errorf("bookkeeping.backend %q is not supported", c.Bookkeeping.Backend)
	}
	for name, rule := range c.Links.Rules {
		if rule.Enabled && (rule.CodeField == "" || rule.DataField == "") {
			return fmt.Errorf("links.rules.%s needs code_field and data_field", name)
		}
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// DownloadTimeout is the per-URL budget for direct-link downloads.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds one API request, which may run every stage.
func (c Config) RequestTimeout() time.Duration {
	if c.Server.TimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// RawFiles returns the raw input file names fetched for a task type.
func (c Config) RawFiles(taskType string) []string {
	if files, ok := c.Raw.TaskFiles[strings.ToLower(taskType)]; ok && len(files) > 0 {
		return append([]string(nil), files...)
	}
	return append([]string(nil), c.Raw.DefaultFiles...)
}
