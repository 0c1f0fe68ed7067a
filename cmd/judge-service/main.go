package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"judgebox/internal/common/cache"
	"judgebox/internal/common/db"
	commonmw "judgebox/internal/common/http/middleware"
	"judgebox/internal/judge/controller"
	"judgebox/internal/judge/repository"
	"judgebox/internal/judge/sandbox"
	"judgebox/internal/judge/sandbox/engine"
	"judgebox/internal/judge/sandbox/observer"
	"judgebox/internal/judge/service"
	"judgebox/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	var metrics observer.MetricsRecorder = observer.Noop{}
	if appCfg.Metrics.Enabled {
		metrics = observer.NewPrometheus(nil)
	}

	eng, err := engine.New(appCfg.Sandbox.Config)
	if err != nil {
		return fmt.Errorf("init sandbox engine: %w", err)
	}
	if closer, ok := eng.(io.Closer); ok {
		defer closer.Close()
	}
	// Building the image blocks until done; a failure here ends the process.
	sb, err := sandbox.New(ctx, appCfg.Sandbox, eng, sandbox.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("init sandbox: %w", err)
	}
	logger.Info(ctx, "sandbox ready", zap.String("image", sb.Image().String()))

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database.MySQLConfig)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()
	if appCfg.Database.Migrate {
		if err := repository.Migrate(ctx, mysqlDB); err != nil {
			return err
		}
	}

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	judgeSvc, err := service.NewService(service.Config{
		Sandbox:      sb,
		Repo:         repository.NewSubmissionRepository(mysqlDB),
		Guard:        repository.NewInflightGuard(redisCache, appCfg.Judge.GuardTTL),
		Metrics:      metrics,
		JobTimeout:   appCfg.Judge.JobTimeout,
		MaxCodeBytes: appCfg.Judge.MaxCodeBytes,
	})
	if err != nil {
		return fmt.Errorf("init judge service: %w", err)
	}

	httpServer := buildHTTPServer(appCfg, judgeSvc)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

func buildHTTPServer(appCfg *AppConfig, judgeSvc controller.JudgeService) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())

	controller.NewJudgeController(judgeSvc).RegisterRoutes(router.Group("/api/v1/judge"))
	if appCfg.Metrics.Enabled {
		router.GET(appCfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	return &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
}
