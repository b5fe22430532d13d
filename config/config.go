// Package config loads service settings from the environment.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

const (
	BackendSQLite = "sqlite"
	BackendTables = "tables"
)

// Config is the collabnest-api configuration.
type Config struct {
	ListenAddr string
	Debug      bool

	StorageBackend          string
	SQLitePath              string
	StorageConnectionString string
	TasksTable              string
	MembersTable            string
	EventsQueue             string

	RedisConnectionString string
	CacheTTL              time.Duration
	DeduperTTL            time.Duration

	Auth0Domain   string
	Auth0Audience string
	TestMode      bool
	TestJWTSecret string
	JWKSCacheTTL  time.Duration

	PublishWorkers int
	PublishBuffer  int
	PublishTimeout time.Duration
	HandoffTimeout time.Duration
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("DEBUG", false)
	v.SetDefault("STORAGE_BACKEND", BackendSQLite)
	v.SetDefault("SQLITE_PATH", "collabnest.db")
	v.SetDefault("TASKS_TABLE", "Tasks")
	v.SetDefault("MEMBERS_TABLE", "OrgMembers")
	v.SetDefault("CACHE_TTL", time.Minute)
	v.SetDefault("DEDUPER_TTL", 24*time.Hour)
	v.SetDefault("JWKS_CACHE_TTL", 15*time.Minute)
	v.SetDefault("PUBLISH_WORKERS", 8)
	v.SetDefault("PUBLISH_BUFFER", 1024)
	v.SetDefault("PUBLISH_TIMEOUT", 10*time.Second)
	v.SetDefault("PUBLISH_HANDOFF_TIMEOUT", 15*time.Millisecond)
	return v
}

// Load reads the configuration from environment variables and validates it.
func Load() (Config, error) {
	v := newViper()

	cfg := Config{
		ListenAddr:              v.GetString("LISTEN_ADDR"),
		Debug:                   v.GetBool("DEBUG"),
		StorageBackend:          strings.ToLower(v.GetString("STORAGE_BACKEND")),
		SQLitePath:              v.GetString("SQLITE_PATH"),
		StorageConnectionString: v.GetString("STORAGE_CONNECTION_STRING"),
		TasksTable:              v.GetString("TASKS_TABLE"),
		MembersTable:            v.GetString("MEMBERS_TABLE"),
		EventsQueue:             v.GetString("EVENTS_QUEUE"),
		RedisConnectionString:   v.GetString("REDIS_CONNECTION_STRING"),
		CacheTTL:                v.GetDuration("CACHE_TTL"),
		DeduperTTL:              v.GetDuration("DEDUPER_TTL"),
		Auth0Domain:             v.GetString("AUTH0_DOMAIN"),
		Auth0Audience:           v.GetString("AUTH0_AUDIENCE"),
		JWKSCacheTTL:            v.GetDuration("JWKS_CACHE_TTL"),
		PublishWorkers:          v.GetInt("PUBLISH_WORKERS"),
		PublishBuffer:           v.GetInt("PUBLISH_BUFFER"),
		PublishTimeout:          v.GetDuration("PUBLISH_TIMEOUT"),
		HandoffTimeout:          v.GetDuration("PUBLISH_HANDOFF_TIMEOUT"),
	}
	if port := v.GetString("FUNCTIONS_CUSTOMHANDLER_PORT"); port != "" {
		cfg.ListenAddr = ":" + port
	}

	switch mode := strings.ToLower(v.GetString("LOCAL_AUTH_MODE")); {
	case mode == "hs256":
		cfg.TestMode = true
		cfg.TestJWTSecret = v.GetString("LOCAL_AUTH_SHARED_SECRET")
		if cfg.TestJWTSecret == "" {
			return Config{}, errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
	case mode != "":
		return Config{}, fmt.Errorf("unsupported LOCAL_AUTH_MODE value %q", mode)
	case v.GetString("AUTH0_TEST_MODE") == "1":
		cfg.TestMode = true
		cfg.TestJWTSecret = v.GetString("TEST_JWT_SECRET")
		if cfg.TestJWTSecret == "" {
			return Config{}, errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StorageBackend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	case BackendTables:
		if c.StorageConnectionString == "" || c.TasksTable == "" || c.MembersTable == "" {
			return errors.New("missing storage config")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.EventsQueue != "" && c.StorageConnectionString == "" {
		return errors.New("EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
	}
	if c.RedisConnectionString == "" {
		return errors.New("missing redis config")
	}
	if !c.TestMode && (c.Auth0Domain == "" || c.Auth0Audience == "") {
		return errors.New("missing Auth0 config")
	}
	for name, d := range map[string]time.Duration{
		"CACHE_TTL":      c.CacheTTL,
		"DEDUPER_TTL":    c.DeduperTTL,
		"JWKS_CACHE_TTL": c.JWKSCacheTTL,
	} {
		if d < 0 {
			return fmt.Errorf("invalid %s: %v", name, d)
		}
	}
	return nil
}

// JWKSURL is the Auth0 key set endpoint for the configured domain.
func (c Config) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Auth0Domain)
}

// Issuer is the expected token issuer for the configured domain.
func (c Config) Issuer() string {
	return "https://" + c.Auth0Domain + "/"
}

// RedisOptions parses a redis:// URL or the Azure
// "host:port,password=...,ssl=true" connection string form.
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	if opts.Addr == "" || strings.Contains(opts.Addr, "://") {
		return nil, fmt.Errorf("invalid redis connection string %q", conn)
	}
	for _, p := range parts[1:] {
		k, val, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "password":
			opts.Password = val
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(val), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
