package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediacore/cache"
	"mediacore/config"
	"mediacore/core/playcount"
	"mediacore/core/rating"
	"mediacore/core/stream"
	"mediacore/db"
	"mediacore/logger"
	"mediacore/metrics"
	"mediacore/repository"
	"mediacore/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 汇总路由需要的所有处理器
type Handlers struct {
	Stream    *StreamHandler
	Ratings   *RatingHandler
	JWTSecret []byte
	Gatherer  prometheus.Gatherer
}

// NewRouter registers every route. The returned handler already carries the
// CORS layer so preflight requests never reach method matching.
func NewRouter(h Handlers) http.Handler {
	router := mux.NewRouter()
	router.Use(requestMiddleware)

	requireUser := IdentityMiddleware(h.JWTSecret)

	// 音频流
	router.Handle("/stream/{filename:.+}", h.Stream).Methods(http.MethodGet, http.MethodHead)

	// 评分
	router.HandleFunc("/ratings", requireUser(h.Ratings.CreateRatingHandler)).Methods(http.MethodPost)
	router.HandleFunc("/ratings/{id:[0-9]+}", h.Ratings.GetRatingHandler).Methods(http.MethodGet)
	router.HandleFunc("/ratings/{id:[0-9]+}", requireUser(h.Ratings.UpdateRatingHandler)).Methods(http.MethodPut)
	router.HandleFunc("/ratings/{id:[0-9]+}", requireUser(h.Ratings.DeleteRatingHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/ratings/track/{trackId:[0-9]+}", h.Ratings.ListTrackRatingsHandler).Methods(http.MethodGet)
	router.HandleFunc("/ratings/track/{trackId:[0-9]+}/stats", h.Ratings.TrackStatsHandler).Methods(http.MethodGet)

	// 运维
	if h.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return corsMiddleware(router)
}

// newBlobStore 根据配置选择本地目录或 MinIO
func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.BlobBackend {
	case "minio":
		return storage.NewMinioBlobStore(cfg)
	case "local", "":
		if err := os.MkdirAll(cfg.ContentRoot, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create content root %s: %w", cfg.ContentRoot, err)
		}
		store, err := storage.NewLocalBlobStore(cfg.ContentRoot)
		if err != nil {
			return nil, err
		}
		if err := store.Watch(ctx); err != nil {
			// 没有监听也能工作，只是文件大小缓存不会自动失效
			logger.Warn("启动存储目录监听失败", logger.ErrorField(err))
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

// Start initializes every dependency and serves HTTP until SIGINT/SIGTERM.
func Start(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		return err
	}
	defer db.CloseGormDB()
	logger.Info("Successfully connected to database")

	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}

	// Redis 不可用时降级为不缓存
	var statsCache rating.StatsCache
	if client, err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis 不可用，评分统计不使用缓存", logger.ErrorField(err))
	} else {
		defer db.CloseRedis()
		statsCache = cache.NewStatsCache(client, cfg.StatsCacheTTL)
		logger.Info("Successfully connected to Redis")
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	trackRepo := repository.NewGormTrackRepository(gdb)
	ratingRepo := repository.NewGormRatingRepository(gdb)

	tracker := playcount.NewTracker(trackRepo, cfg.PlayCountWorkers, cfg.PlayCountQueueSize)
	tracker.Start(ctx)

	coordinator := rating.NewCoordinator(
		repository.NewGormTransactor(gdb), trackRepo, ratingRepo, statsCache, cfg.RatingWriteTimeout)
	reader := rating.NewReader(trackRepo, ratingRepo, statsCache)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(registry)

	handler := NewRouter(Handlers{
		Stream:    NewStreamHandler(stream.NewService(blobs, trackRepo, tracker), cfg.MaxConcurrentStreams),
		Ratings:   NewRatingHandler(coordinator, reader),
		JWTSecret: []byte(cfg.JWTSecret),
		Gatherer:  registry,
	})
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET 未设置，评分写接口将拒绝所有请求")
	}

	// 不设置 WriteTimeout，长音频流可能持续数分钟
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			logger.String("addr", cfg.HTTPAddr),
			logger.String("blobBackend", cfg.BlobBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		tracker.Stop()
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", logger.ErrorField(err))
	}

	tracker.Stop()
	logger.Info("Server stopped")
	return nil
}
