package app

// pkg/app/server.go - bridges Application → internal/server.
// It validates config, attaches the optional Redis and MongoDB backends and
// hands the handler to internal/server for the listen+serve lifecycle.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shashiranjanraj/kashvi-ssr/config"
	"github.com/shashiranjanraj/kashvi-ssr/internal/server"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/cache"
	"github.com/shashiranjanraj/kashvi-ssr/pkg/logger"
)

func startServer(ctx context.Context, a *Application) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Certificate problems stop startup before anything connects or listens.
	srv, err := server.New(a.Handler(), server.OptionsFromConfig())
	if err != nil {
		return err
	}

	if closeSink := bootLogSink(); closeSink != nil {
		defer closeSink()
	}

	if err := cache.Connect(ctx); err != nil {
		logger.Warn("redis unavailable, sessions are per-request only", "addr", config.RedisAddr(), "error", err)
	} else {
		defer func() { _ = cache.Close() }()
	}

	return srv.ListenAndServe(ctx)
}

// bootLogSink tees logs into MongoDB when LOG_MONGO_URI is set. It returns
// the sink's Close, or nil when no sink was attached.
func bootLogSink() func() {
	uri := config.LogMongoURI()
	if uri == "" {
		return nil
	}

	h, err := logger.NewMongoHandler(uri, config.LogMongoDB(), config.LogMongoCollection(), slog.LevelInfo)
	if err != nil {
		logger.Warn("mongo log sink disabled", "error", err)
		return nil
	}

	restore := logger.Tee(h)
	logger.Info("mongo log sink attached", "db", config.LogMongoDB(), "collection", config.LogMongoCollection())
	return func() {
		restore()
		h.Close()
	}
}
