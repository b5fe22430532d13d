package main

import (
	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"collabnest/api"
	"collabnest/config"
	"collabnest/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	redisOpts, err := config.RedisOptions(cfg.RedisConnectionString)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)

	var (
		backend storage.Backend
		members storage.Members
	)
	switch cfg.StorageBackend {
	case config.BackendTables:
		var tables *storage.Tables
		tables, err = storage.NewTables(cfg.StorageConnectionString, cfg.TasksTable, cfg.MembersTable)
		backend, members = tables, tables
	default:
		var db *storage.SQLite
		db, err = storage.NewSQLite(cfg.SQLitePath)
		backend, members = db, db
	}
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	if cfg.CacheTTL > 0 {
		backend = storage.NewCache(backend, rc, cfg.CacheTTL)
	}

	var sink api.EventSink
	if cfg.EventsQueue != "" {
		qs, err := storage.NewQueueSink(cfg.StorageConnectionString, cfg.EventsQueue)
		if err != nil {
			log.Fatalf("events queue: %v", err)
		}
		sink = qs
	}

	var auth *api.Auth
	if cfg.TestMode {
		auth = api.NewAuth(nil, api.AuthOptions{TestSecret: []byte(cfg.TestJWTSecret)})
	} else {
		jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, api.AuthOptions{
			Audience:    cfg.Auth0Audience,
			Issuer:      cfg.Issuer(),
			KeyCacheTTL: cfg.JWKSCacheTTL,
		})
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.HeaderIdempotencyKey},
	}))

	api.Register(e, api.Deps{
		Store:   backend,
		Members: members,
		Auth:    auth,
		Deduper: api.NewRedisDeduper(rc, cfg.DeduperTTL),
		Redis:   rc,
		Sink:    sink,
		Publisher: api.PublisherConfig{
			Workers:        cfg.PublishWorkers,
			Buffer:         cfg.PublishBuffer,
			PublishTimeout: cfg.PublishTimeout,
			HandoffTimeout: cfg.HandoffTimeout,
		},
		Log: logger,
	})

	logger.WithFields(log.Fields{"addr": cfg.ListenAddr, "backend": cfg.StorageBackend}).Info("collabnest api starting")
	e.Logger.Fatal(e.Start(cfg.ListenAddr))
}
