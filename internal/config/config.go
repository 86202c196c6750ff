package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "DATASTORE"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultLogLevel        = "info"
	defaultLogFormat       = LogFormatJSON
	defaultIssuer          = "datastore"
	defaultAudience        = "datastore-api"
	defaultTokenTTLMinutes = 30

	// LogFormatJSON selects structured production logging.
	LogFormatJSON = "json"
	// LogFormatConsole selects human-readable development logging.
	LogFormatConsole = "console"
)

// ErrInvalidConfig indicates a configuration value that cannot be used.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// AppConfig captures runtime configuration for the datastore host.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
	SigningSecret  string
	Issuer         string
	Audience       string
	TokenTTL       time.Duration
	StoreID        uint32
	History        bool
	MaxHistory     int
	SnapshotPath   string
	Schemas        []SchemaDefinition
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.audience", defaultAudience)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("store.id", 0)
	configViper.SetDefault("store.history", true)
	configViper.SetDefault("store.max_history", 0)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	storeID, err := cast.ToUint32E(configViper.Get("store.id"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("%w: store.id: %v", ErrInvalidConfig, err)
	}

	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		AllowedOrigins: configViper.GetStringSlice("http.allowed_origins"),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		Issuer:         configViper.GetString("auth.issuer"),
		Audience:       configViper.GetString("auth.audience"),
		TokenTTL:       time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		StoreID:        storeID,
		History:        configViper.GetBool("store.history"),
		MaxHistory:     configViper.GetInt("store.max_history"),
		SnapshotPath:   strings.TrimSpace(configViper.GetString("store.snapshot_path")),
	}
	if err := configViper.UnmarshalKey("schemas", &cfg.Schemas); err != nil {
		return AppConfig{}, fmt.Errorf("%w: schemas: %v", ErrInvalidConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// RequireSigningSecret reports an error when no token signing secret is configured.
func (c AppConfig) RequireSigningSecret() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("%w: auth.signing_secret is required", ErrInvalidConfig)
	}
	return nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("%w: http.address is required", ErrInvalidConfig)
	}
	if c.LogFormat != LogFormatJSON && c.LogFormat != LogFormatConsole {
		return fmt.Errorf("%w: log.format must be %q or %q", ErrInvalidConfig, LogFormatJSON, LogFormatConsole)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%w: auth.token_ttl_minutes must be positive", ErrInvalidConfig)
	}
	if c.MaxHistory < 0 {
		return fmt.Errorf("%w: store.max_history must not be negative", ErrInvalidConfig)
	}
	if len(c.Schemas) == 0 {
		return fmt.Errorf("%w: at least one schema is required", ErrInvalidConfig)
	}
	return nil
}
