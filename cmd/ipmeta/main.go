package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/TomasB/ipmeta/internal/data"
	grpchandler "github.com/TomasB/ipmeta/internal/handler/grpc"
	"github.com/TomasB/ipmeta/internal/handler/health"
	"github.com/TomasB/ipmeta/internal/handler/lookup"
	"github.com/TomasB/ipmeta/internal/index"
	"github.com/TomasB/ipmeta/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"google.golang.org/grpc"
)

const requestIDHeader = "X-Request-ID"

type config struct {
	port     string
	grpcPort string
	services service.Config
	watch    bool

	// indexes select dated provider data sets published at a base URL.
	indexes []indexSource
	date    time.Time
}

type indexSource struct {
	provider string
	base     string
}

func main() {
	// Initialize structured logging
	logLevel := getLogLevel(os.Getenv("LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("service starting", "log_level", logLevel.String())

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Set Gin mode based on log level
	if logLevel == slog.LevelDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Load providers
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := resolveIndexes(ctx, &cfg); err != nil {
		slog.Error("failed to resolve data indexes", "error", err)
		os.Exit(1)
	}

	svc, err := service.New(ctx, cfg.services)
	if err != nil {
		slog.Error("failed to load providers", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	if cfg.watch {
		go func() {
			if err := svc.Watch(ctx, service.DefaultDebounce); err != nil {
				slog.Error("data file watcher stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.port,
		Handler: newRouter(logger, svc),
	}

	// Start server in a goroutine
	go func() {
		slog.Info("service started", "port", cfg.port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.grpcPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.grpcPort)
		if err != nil {
			slog.Error("failed to listen for grpc", "port", cfg.grpcPort, "error", err)
			os.Exit(1)
		}
		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(grpcLogger(logger)))
		grpchandler.Register(grpcSrv, grpchandler.NewHandler(svc))
		go func() {
			slog.Info("grpc service started", "port", cfg.grpcPort)
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("grpc server failed", "error", err)
				os.Exit(1)
			}
		}()
	}

	// Wait for interrupt signal for graceful shutdown
	<-ctx.Done()

	slog.Info("service shutting down")

	// Graceful shutdown with 30s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("service stopped")
}

func newRouter(logger *slog.Logger, svc *service.Service) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(requestID())
	router.Use(ginLogger(logger))
	router.Use(gin.Recovery())

	// Register health endpoints
	healthHandler := health.NewHandler(svc)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Register API endpoints
	lookupHandler := lookup.NewHandler(svc)
	api := router.Group("/api/v1")
	{
		api.POST("/lookup", lookupHandler.Lookup)
		api.GET("/lookup/:addr", lookupHandler.LookupAddr)
		api.GET("/lookup/:addr/:len", lookupHandler.LookupAddr)
		api.GET("/providers", lookupHandler.Providers)
	}
	return router
}

// loadConfig reads the service configuration from the environment.
func loadConfig(getenv func(string) string) (config, error) {
	cfg := config{
		port:     getenv("PORT"),
		grpcPort: getenv("GRPC_PORT"),
	}
	if cfg.port == "" {
		cfg.port = "8080"
	}

	kind, err := index.ParseKind(getenv("IPMETA_INDEX"))
	if err != nil {
		return config{}, err
	}
	cfg.services.Index = kind
	cfg.services.CacheDir = getenv("IPMETA_CACHE_DIR")

	for _, spec := range strings.Split(getenv("IPMETA_PROVIDERS"), ";") {
		if spec = strings.TrimSpace(spec); spec != "" {
			cfg.services.Providers = append(cfg.services.Providers, spec)
		}
	}
	if path := getenv("MMDB_PATH"); path != "" {
		cfg.services.Providers = append(cfg.services.Providers, "mmdb -f "+path)
	}
	for _, src := range strings.Split(getenv("IPMETA_DB_INDEX"), ";") {
		if src = strings.TrimSpace(src); src == "" {
			continue
		}
		provider, base, ok := strings.Cut(src, "=")
		if !ok || provider == "" || base == "" {
			return config{}, fmt.Errorf("invalid IPMETA_DB_INDEX entry %q, want provider=url", src)
		}
		cfg.indexes = append(cfg.indexes, indexSource{provider: strings.TrimSpace(provider), base: strings.TrimSpace(base)})
	}
	if d := getenv("IPMETA_DB_DATE"); d != "" {
		if cfg.date, err = time.Parse(time.DateOnly, d); err != nil {
			return config{}, fmt.Errorf("invalid IPMETA_DB_DATE %q: %w", d, err)
		}
	}
	if len(cfg.services.Providers) == 0 && len(cfg.indexes) == 0 {
		return config{}, errors.New("IPMETA_PROVIDERS, IPMETA_DB_INDEX or MMDB_PATH environment variable is required")
	}

	if w := getenv("IPMETA_WATCH"); w != "" {
		if cfg.watch, err = strconv.ParseBool(w); err != nil {
			return config{}, fmt.Errorf("invalid IPMETA_WATCH %q: %w", w, err)
		}
	}
	return cfg, nil
}

// resolveIndexes appends a provider spec for the data set each index holds
// for cfg.date, or the latest set when no date is configured.
func resolveIndexes(ctx context.Context, cfg *config) error {
	fetcher := data.NewFetcher(cfg.services.CacheDir)
	for _, src := range cfg.indexes {
		idx, err := data.NewIndex(fetcher, src.provider, src.base)
		if err != nil {
			return err
		}
		if err := idx.Load(ctx); err != nil {
			return err
		}
		date, _, err := idx.Best(cfg.date)
		if err != nil {
			return err
		}
		spec, err := idx.Spec(cfg.date)
		if err != nil {
			return err
		}
		slog.Info("selected data set", "provider", src.provider, "date", date.Format(time.DateOnly))
		cfg.services.Providers = append(cfg.services.Providers, spec)
	}
	return nil
}

// getLogLevel converts string log level to slog.Level
func getLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// requestID propagates or assigns an X-Request-ID for every request.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// ginLogger creates a Gin middleware that logs using slog
func ginLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		// Process request
		c.Next()

		// Log request
		duration := time.Since(start)
		statusCode := c.Writer.Status()

		attrs := []any{
			"request_id", c.GetString("request_id"),
			"method", method,
			"path", path,
			"status", statusCode,
			"duration_ms", duration.Milliseconds(),
		}

		if len(c.Errors) > 0 {
			logger.Error("request completed with errors", append(attrs, "errors", c.Errors.String())...)
		} else if statusCode >= 500 {
			logger.Error("request completed", attrs...)
		} else if statusCode >= 400 {
			logger.Warn("request completed", attrs...)
		} else {
			logger.Info("request completed", attrs...)
		}
	}
}

// grpcLogger logs unary calls the way ginLogger logs HTTP requests.
func grpcLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		attrs := []any{
			"request_id", uuid.NewString(),
			"method", info.FullMethod,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			logger.Warn("grpc call failed", append(attrs, "error", err)...)
		} else {
			logger.Info("grpc call completed", attrs...)
		}
		return resp, err
	}
}
