package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TobiSchelling/Supernova/internal/database"
	"github.com/TobiSchelling/Supernova/internal/facebook"
	"github.com/TobiSchelling/Supernova/internal/httpapi"
	"github.com/TobiSchelling/Supernova/internal/inbox"
	"github.com/TobiSchelling/Supernova/internal/instagram"
	"github.com/TobiSchelling/Supernova/internal/quota"
	"github.com/TobiSchelling/Supernova/internal/social"
	"github.com/TobiSchelling/Supernova/internal/youtube"
)

// app holds everything a command needs. Close releases it.
type app struct {
	db     *database.DB
	svc    *inbox.Service
	logger *zap.Logger
	rdb    *redis.Client
}

func newLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	zc.Level = level
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zc.Build()
}

func openApp() (*app, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.DBPath(), logger.Named("database"))
	if err != nil {
		return nil, err
	}

	a := &app{db: db, logger: logger}
	limiter := a.limiter()

	client := func(p social.Platform) *httpapi.Client {
		return httpapi.New(p, httpapi.Options{
			Timeout: cfg.HTTP.Timeout(),
			Limiter: limiter,
			Logger:  logger.Named("http"),
		})
	}
	adapters := []social.Adapter{
		facebook.New(cfg.Platforms.Facebook.BaseURL(), client(social.Facebook), logger.Named("facebook")),
		instagram.New(cfg.Platforms.Instagram.BaseURL(), client(social.Instagram), logger.Named("instagram")),
		youtube.New(client(social.YouTube), youtube.Options{
			BaseURL:  cfg.Platforms.YouTube.APIURL,
			FeedURL:  cfg.Platforms.YouTube.FeedURL,
			MaxPages: cfg.Platforms.YouTube.MaxPages,
			Logger:   logger.Named("youtube"),
		}),
	}

	defaults := inbox.Settings{
		AutoRefresh:       cfg.Settings.AutoRefreshMS,
		NotificationSound: cfg.Settings.NotificationSound,
	}
	if err := defaults.Validate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("settings in config: %w", err)
	}

	a.svc = inbox.New(db, adapters, inbox.Options{
		Logger:       logger,
		MaxComments:  cfg.Storage.MaxComments,
		GraphVersion: cfg.Platforms.Facebook.APIVersion,
		Defaults:     &defaults,
	})
	return a, nil
}

// limiter shares request counters through Redis when configured and keeps
// them in memory otherwise.
func (a *app) limiter() quota.Limiter {
	if cfg.Quota.RedisAddr == "" {
		return quota.NewMemory(cfg.Quota.DailyLimit, nil)
	}
	a.rdb = redis.NewClient(&redis.Options{Addr: cfg.Quota.RedisAddr})
	a.logger.Debug("using redis quota counters", zap.String("addr", cfg.Quota.RedisAddr))
	return quota.NewRedis(a.rdb, cfg.Quota.DailyLimit, a.logger.Named("quota"))
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
