package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/faithful-rag/ragserve/internal/config"
	dbRedis "github.com/faithful-rag/ragserve/internal/db/redis"
	logpkg "github.com/faithful-rag/ragserve/internal/logger"
	"github.com/faithful-rag/ragserve/internal/metrics"
	"github.com/faithful-rag/ragserve/internal/repository/chunkindex"
	"github.com/faithful-rag/ragserve/internal/repository/embcache"
	runlogrepo "github.com/faithful-rag/ragserve/internal/repository/runlog"
	chiTransport "github.com/faithful-rag/ragserve/internal/transport/chi"
	openaiClient "github.com/faithful-rag/ragserve/internal/transport/openai"
	"github.com/faithful-rag/ragserve/internal/usecase/exporter"
	"github.com/faithful-rag/ragserve/internal/usecase/generator"
	"github.com/faithful-rag/ragserve/internal/usecase/indexer"
	"github.com/faithful-rag/ragserve/internal/usecase/query"
	"github.com/faithful-rag/ragserve/internal/usecase/retriever"
	runloguc "github.com/faithful-rag/ragserve/internal/usecase/runlog"
	"github.com/faithful-rag/ragserve/internal/usecase/scorer"
	"github.com/faithful-rag/ragserve/internal/version"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	env := config.GetEnv()
	cfg := config.MustLoad(env)

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragserve API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Embedder chain: OpenAI -> Cached
	baseEmbedder := openaiClient.NewEmbedder(&openaiClient.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	embedder := embcache.New(baseEmbedder, store, metrics.EmbeddingCacheTotal, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Chat client is optional: without an API key the generator falls
	// straight through to the offline template.
	var chat generator.ChatCompleter
	if cfg.LLM.APIKey != "" {
		chat = openaiClient.NewChatClient(&openaiClient.ChatConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: cfg.LLM.Temperature,
		})
	} else {
		logger.Warn("No LLM API key configured, answers will use the offline template")
	}

	// Repositories
	indexRepo := chunkindex.New(store, chunkindex.Config{
		Dimensions:      cfg.Embedding.Dimensions,
		HNSWM:           cfg.Index.HNSWM,
		HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
	})
	runRepo := runlogrepo.New(store, logger)

	// Use case services
	indexSvc := indexer.New(indexRepo, embedder, indexer.Config{
		Dir:            cfg.Corpus.Dir,
		Patterns:       cfg.Corpus.Patterns,
		ChunkSizeWords: cfg.Corpus.ChunkSizeWords,
		OverlapWords:   cfg.Corpus.OverlapWords,
		BatchSize:      cfg.Index.BatchSize,
	}, logger)
	retrieveSvc := retriever.New(embedder, indexRepo)
	scoreSvc := scorer.New(runRepo)
	generateSvc := generator.New(chat, generator.Config{
		BaseModel:             cfg.LLM.BaseModel,
		FinetunedModel:        cfg.LLM.FinetunedModel,
		UseFinetunedByDefault: cfg.LLM.UseFinetunedByDefault,
	}, logger)
	runSvc := runloguc.New(runRepo)
	querySvc := query.New(retrieveSvc, scoreSvc, generateSvc, runSvc, logger)
	exportSvc := exporter.New(runRepo, cfg.Export.Path, logger)

	if cfg.Corpus.BuildOnStart {
		built, err := indexSvc.EnsureIndex(ctx)
		if err != nil {
			logger.Fatal("Initial index build failed", zap.Error(err))
		}
		if built {
			logger.Info("Initial index built")
		}
	}

	server := chiTransport.NewServer(querySvc, runSvc, exportSvc, indexSvc, store, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
