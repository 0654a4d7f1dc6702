package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	gorm_mysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/wyfcoding/deepbsde/internal/deepbsde/application"
	"github.com/wyfcoding/deepbsde/internal/deepbsde/domain"
	"github.com/wyfcoding/deepbsde/internal/deepbsde/infrastructure/messaging"
	"github.com/wyfcoding/deepbsde/internal/deepbsde/infrastructure/persistence/mysql"
	redis_repo "github.com/wyfcoding/deepbsde/internal/deepbsde/infrastructure/persistence/redis"
	http_server "github.com/wyfcoding/deepbsde/internal/deepbsde/interfaces/http"
	"github.com/wyfcoding/deepbsde/pkg/metrics"
	"github.com/wyfcoding/deepbsde/pkg/middleware"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/deepbsde/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Sprintf("read config failed: %v", err))
	}

	// 2. Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 3. Database
	dsn := viper.GetString("database.source")
	db, err := gorm.Open(gorm_mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		panic(fmt.Sprintf("connect db failed: %v", err))
	}

	// Auto Migrate
	if err := db.AutoMigrate(
		&mysql.TrainingRunModel{},
		&mysql.LossSampleModel{},
		&messaging.OutboxMessage{},
	); err != nil {
		panic(fmt.Sprintf("migrate db failed: %v", err))
	}

	// 4. Infrastructure
	runRepo := mysql.NewTrainingRunRepository(db)

	var readRepo domain.TrainingRunReadRepository
	if addr := viper.GetString("redis.addr"); addr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		})
		readRepo = redis_repo.NewTrainingRunRedisRepository(rdb)
	}

	var producer *messaging.KafkaProducer
	if brokers := viper.GetStringSlice("kafka.brokers"); len(brokers) > 0 {
		producer = messaging.NewProducer(messaging.KafkaConfig{
			Brokers:      brokers,
			MaxRetries:   viper.GetInt("kafka.max_retries"),
			RetryBackoff: viper.GetInt("kafka.retry_backoff_ms"),
		})
		defer producer.Close()
	}
	publisher := messaging.NewOutboxEventPublisher(db, producer, viper.GetString("kafka.topic"))

	// Metrics
	metricsImpl := metrics.New("solver")
	if err := metricsImpl.Register(); err != nil {
		panic(fmt.Sprintf("register metrics failed: %v", err))
	}
	if metricsPort := viper.GetInt("server.metrics_port"); metricsPort > 0 {
		if err := metrics.StartHTTPServer(metricsPort, "/metrics"); err != nil {
			panic(fmt.Sprintf("start metrics server failed: %v", err))
		}
	}

	// 5. Application
	appService := application.NewSolverService(runRepo, readRepo, publisher, metricsImpl)

	// 6. Interfaces
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.GinRecoveryMiddleware(), middleware.GinLoggingMiddleware(), middleware.GinMetricsMiddleware(metricsImpl))
	handler := http_server.NewSolverHandler(appService)
	handler.RegisterRoutes(r.Group("/api"))

	// 7. Start
	g, ctx := errgroup.WithContext(context.Background())

	// Outbox 投递协程
	relayCtx, relayCancel := context.WithCancel(context.Background())
	defer relayCancel()
	if producer != nil {
		g.Go(func() error {
			publisher.RunRelay(relayCtx, 2*time.Second, 100)
			return nil
		})
	}

	httpPort := viper.GetString("server.http_port")
	if httpPort == "" {
		httpPort = "8086"
	}
	server := &http.Server{Addr: fmt.Sprintf(":%s", httpPort), Handler: r}
	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// 8. Graceful Shutdown
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down servers...")
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down...")
		}
		relayCancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
