package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/bsturgis0/zoti/internal/app"
	"github.com/bsturgis0/zoti/internal/config"
	"github.com/bsturgis0/zoti/internal/document"
	"github.com/bsturgis0/zoti/internal/extract"
	"github.com/bsturgis0/zoti/internal/history"
	"github.com/bsturgis0/zoti/internal/ratelimit"
	"github.com/bsturgis0/zoti/internal/server"
	"github.com/bsturgis0/zoti/internal/session"
	"github.com/bsturgis0/zoti/internal/util"
	"github.com/bsturgis0/zoti/pkg/ai"
	"github.com/bsturgis0/zoti/pkg/kv"
	"github.com/bsturgis0/zoti/pkg/search"
	"github.com/bsturgis0/zoti/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	store := kv.New(cfg.RedisAddr, cfg.RedisPassword)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = store.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Fatalf("failed to reach redis at %s: %v", cfg.RedisAddr, err)
	}

	generator, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, app.SystemInstruction)
	if err != nil {
		log.Fatalf("failed to init gemini client: %v", err)
	}

	var searcher search.Provider
	if cfg.TavilyAPIKey != "" {
		client, err := search.NewClient(cfg.TavilyAPIKey)
		if err != nil {
			log.Fatalf("failed to init search client: %v", err)
		}
		searcher = client
	} else {
		slog.Info("web search disabled, no tavily API key configured")
	}

	var archive storage.Archive
	if cfg.MinioEndpoint != "" {
		minioArchive, err := storage.NewMinioArchive(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init upload archive: %v", err)
		}
		archive = minioArchive
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitPerMinute > 0 {
		redisLimiter, err := ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, "zoti:ratelimit:chat", cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
		limiter = redisLimiter
	}

	appCore, err := app.New(app.Config{
		Documents: document.NewStore(store, extract.ByExtension{}),
		Sessions:  session.NewManager(store),
		History:   history.NewStore(store),
		Generator: generator,
		Searcher:  searcher,
		Archive:   archive,
		Limiter:   limiter,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		TrustedProxies: trusted,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
