package config

import (
	"strings"
	"testing"
	"time"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoadDefaultsInTestMode(t *testing.T) {
	setEnv(t, map[string]string{
		"REDIS_CONNECTION_STRING": "localhost:6379",
		"AUTH0_TEST_MODE":         "1",
		"TEST_JWT_SECRET":         "s3cret",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.StorageBackend != BackendSQLite || cfg.SQLitePath != "collabnest.db" || cfg.MembersTable != "OrgMembers" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.TestMode || cfg.TestJWTSecret != "s3cret" {
		t.Fatalf("expected test mode, got %+v", cfg)
	}
	if cfg.CacheTTL != time.Minute || cfg.DeduperTTL != 24*time.Hour || cfg.HandoffTimeout != 15*time.Millisecond {
		t.Fatalf("unexpected durations %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	setEnv(t, map[string]string{
		"REDIS_CONNECTION_STRING":      "redis://localhost:6379/0",
		"STORAGE_BACKEND":              "Tables",
		"STORAGE_CONNECTION_STRING":    "UseDevelopmentStorage=true",
		"TASKS_TABLE":                  "BoardTasks",
		"EVENTS_QUEUE":                 "task-events",
		"AUTH0_DOMAIN":                 "tenant.example.com",
		"AUTH0_AUDIENCE":               "api://collabnest",
		"CACHE_TTL":                    "30s",
		"PUBLISH_WORKERS":              "3",
		"FUNCTIONS_CUSTOMHANDLER_PORT": "7071",
		"DEBUG":                        "true",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageBackend != BackendTables || cfg.TasksTable != "BoardTasks" || cfg.EventsQueue != "task-events" {
		t.Fatalf("unexpected storage config %+v", cfg)
	}
	if cfg.ListenAddr != ":7071" || !cfg.Debug || cfg.PublishWorkers != 3 || cfg.CacheTTL != 30*time.Second {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if cfg.TestMode {
		t.Fatal("test mode should be off")
	}
	if cfg.JWKSURL() != "https://tenant.example.com/.well-known/jwks.json" || cfg.Issuer() != "https://tenant.example.com/" {
		t.Fatalf("unexpected auth endpoints %s %s", cfg.JWKSURL(), cfg.Issuer())
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missingRedis",
			env:     map[string]string{"AUTH0_TEST_MODE": "1", "TEST_JWT_SECRET": "s"},
			wantErr: "missing redis config",
		},
		{
			name:    "missingAuth0",
			env:     map[string]string{"REDIS_CONNECTION_STRING": "localhost:6379"},
			wantErr: "missing Auth0 config",
		},
		{
			name:    "testModeWithoutSecret",
			env:     map[string]string{"REDIS_CONNECTION_STRING": "localhost:6379", "AUTH0_TEST_MODE": "1"},
			wantErr: "TEST_JWT_SECRET must be set",
		},
		{
			name:    "localAuthMode",
			env:     map[string]string{"REDIS_CONNECTION_STRING": "localhost:6379", "LOCAL_AUTH_MODE": "rs512"},
			wantErr: "unsupported LOCAL_AUTH_MODE",
		},
		{
			name: "tablesWithoutConnection",
			env: map[string]string{
				"REDIS_CONNECTION_STRING":  "localhost:6379",
				"LOCAL_AUTH_MODE":          "hs256",
				"LOCAL_AUTH_SHARED_SECRET": "s",
				"STORAGE_BACKEND":          "tables",
			},
			wantErr: "missing storage config",
		},
		{
			name: "unknownBackend",
			env: map[string]string{
				"REDIS_CONNECTION_STRING": "localhost:6379",
				"AUTH0_TEST_MODE":         "1",
				"TEST_JWT_SECRET":         "s",
				"STORAGE_BACKEND":         "postgres",
			},
			wantErr: "unsupported STORAGE_BACKEND",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRedisOptions(t *testing.T) {
	opts, err := RedisOptions("redis://:pw@localhost:6380/2")
	if err != nil {
		t.Fatalf("url form: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("unexpected url options %+v", opts)
	}

	opts, err = RedisOptions("cache.redis.example.net:6380,password=abc=,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("azure form: %v", err)
	}
	if opts.Addr != "cache.redis.example.net:6380" || opts.Password != "abc=" || opts.TLSConfig == nil {
		t.Fatalf("unexpected azure options %+v", opts)
	}

	if _, err := RedisOptions(""); err == nil {
		t.Fatal("expected error for empty connection string")
	}
}
