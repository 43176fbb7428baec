// Package config provides configuration loading and validation for the
// kcadmin tooling.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration constants.
const (
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultExpiryBuffer = 30 * time.Second
	DefaultRedisDB      = 0
)

// Config holds the complete tool configuration.
type Config struct {
	Keycloak   KeycloakConfig   `yaml:"keycloak"`
	TokenCache TokenCacheConfig `yaml:"token_cache"`
	Log        LogConfig        `yaml:"log"`
}

// KeycloakConfig holds Keycloak connection configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type KeycloakConfig struct {
	URL           string        `yaml:"url" env:"KEYCLOAK_URL"`
	Realm         string        `yaml:"realm" env:"KEYCLOAK_REALM"`
	AuthRealm     string        `yaml:"auth_realm" env:"KEYCLOAK_AUTH_REALM"`
	ClientID      string        `yaml:"client_id" env:"KEYCLOAK_CLIENT_ID"`
	ClientSecret  string        `yaml:"client_secret" env:"KEYCLOAK_CLIENT_SECRET"`
	AdminUsername string        `yaml:"admin_username" env:"KEYCLOAK_ADMIN_USERNAME"`
	AdminPassword string        `yaml:"admin_password" env:"KEYCLOAK_ADMIN_PASSWORD"`
	Token         string        `yaml:"token" env:"KEYCLOAK_TOKEN"`
	Timeout       time.Duration `yaml:"timeout" env:"KEYCLOAK_TIMEOUT"`
	ExpiryBuffer  time.Duration `yaml:"expiry_buffer" env:"KEYCLOAK_EXPIRY_BUFFER"`
}

// HasStaticToken reports whether a pre-supplied bearer token is
// configured, in which case no grant is performed.
func (c KeycloakConfig) HasStaticToken() bool {
	return c.Token != ""
}

// TokenCacheConfig holds token cache configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type TokenCacheConfig struct {
	Type          string `yaml:"type" env:"TOKEN_CACHE_TYPE"` // none | memory | redis
	RedisAddr     string `yaml:"redis_addr" env:"TOKEN_CACHE_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"TOKEN_CACHE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"TOKEN_CACHE_REDIS_DB"`
	RedisKey      string `yaml:"redis_key" env:"TOKEN_CACHE_REDIS_KEY"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // debug | info | warn | error
	Format string `yaml:"format" env:"LOG_FORMAT"` // json | text
}

// Configuration errors.
var (
	ErrConfigNotFound        = errors.New("configuration file not found")
	ErrConfigInvalid         = errors.New("invalid configuration")
	ErrInvalidDuration       = errors.New("invalid duration format")
	ErrInvalidLogLevel       = errors.New("invalid log level: must be debug, info, warn, or error")
	ErrInvalidLogFormat      = errors.New("invalid log format: must be json or text")
	ErrInvalidTokenCacheType = errors.New("invalid token cache type: must be none, memory, or redis")
	ErrNoCredentials         = errors.New("either keycloak.token or admin credentials are required")
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Keycloak: KeycloakConfig{
			URL:          "http://localhost:8080",
			Realm:        "master",
			AuthRealm:    "master",
			ClientID:     "admin-cli",
			Timeout:      DefaultHTTPTimeout,
			ExpiryBuffer: DefaultExpiryBuffer,
		},
		TokenCache: TokenCacheConfig{
			Type:    "none",
			RedisDB: DefaultRedisDB,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []error

	errs = c.validateKeycloak(errs)
	errs = c.validateTokenCache(errs)
	errs = c.validateLog(errs)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errs...))
	}
	return nil
}

func (c *Config) validateKeycloak(errs []error) []error {
	if c.Keycloak.URL == "" {
		errs = append(errs, errors.New("keycloak.url is required"))
	}
	if c.Keycloak.Realm == "" {
		errs = append(errs, errors.New("keycloak.realm is required"))
	}
	if !c.Keycloak.HasStaticToken() &&
		c.Keycloak.ClientSecret == "" &&
		(c.Keycloak.AdminUsername == "" || c.Keycloak.AdminPassword == "") {
		errs = append(errs, ErrNoCredentials)
	}
	if c.Keycloak.Timeout <= 0 {
		errs = append(errs, errors.New("keycloak.timeout must be positive"))
	}
	return errs
}

func (c *Config) validateTokenCache(errs []error) []error {
	switch strings.ToLower(c.TokenCache.Type) {
	case "none", "memory":
	case "redis":
		if c.TokenCache.RedisAddr == "" {
			errs = append(errs, errors.New("token_cache.redis_addr is required for redis cache"))
		}
	default:
		errs = append(errs, ErrInvalidTokenCacheType)
	}
	return errs
}

func (c *Config) validateLog(errs []error) []error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ErrInvalidLogLevel)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ErrInvalidLogFormat)
	}
	return errs
}

// Load loads configuration from the default config file locations and
// environment variables.
func Load() (*Config, error) {
	return LoadFromPath("")
}

// LoadFromPath loads configuration from a specific file path. If path is
// empty, standard locations and CONFIG_PATH are searched; a missing file
// then falls back to defaults plus environment variables.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := path
	if configPath == "" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			configPath = envPath
		} else {
			for _, p := range []string{"kcadmin.yaml", "configs/kcadmin.yaml", "/etc/kcadmin/config.yaml"} {
				if _, err := os.Stat(p); err == nil {
					configPath = p
					break
				}
			}
		}
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			// Only fatal when the path was asked for explicitly.
			if path != "" || os.Getenv("CONFIG_PATH") != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		}
	}

	if err := loadEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
		return fmt.Errorf("failed to parse config file: %w", unmarshalErr)
	}
	return nil
}

// loadEnvToStruct recursively overrides struct fields tagged with `env`
// from the environment.
func loadEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := range v.NumField() {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := loadEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}
		if err := setFieldFromEnv(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s from env %s: %w", fieldType.Name, envTag, err)
		}
	}
	return nil
}

//nolint:exhaustive // Only the kinds used by config fields are supported
func setFieldFromEnv(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeFor[time.Duration]() {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidDuration, value)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %s", value)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}
