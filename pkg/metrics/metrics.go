// Package metrics 提供 Prometheus helper，包含常用 counter/gauge/histogram 模板
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/pkg/logging"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal prometheus.Counter
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 数据库查询计数
	DBQueriesTotal prometheus.Counter
	// 数据库查询耗时
	DBQueryDuration prometheus.Histogram

	// 业务指标
	TrainingRunsTotal  prometheus.Counter
	TrainingRunsActive prometheus.Gauge
	TrainStepsTotal    prometheus.Counter
	TrainStepDuration  prometheus.Histogram
	TrainingLoss       prometheus.Gauge
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		// HTTP 指标
		HTTPRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deepbsde",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deepbsde",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// 数据库指标
		DBQueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deepbsde",
			Subsystem: serviceName,
			Name:      "db_queries_total",
			Help:      "Total database queries",
		}),
		DBQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deepbsde",
			Subsystem: serviceName,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// 业务指标
		TrainingRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deepbsde",
			Subsystem: serviceName,
			Name:      "training_runs_total",
			Help:      "Total training runs started",
		}),
		TrainingRunsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "deepbsde",
			Subsystem: serviceName,
			Name:      "training_runs_active",
			Help:      "Number of training runs currently executing",
		}),
		TrainStepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deepbsde",
			Subsystem: serviceName,
			Name:      "train_steps_total",
			Help:      "Total optimizer steps applied",
		}),
		TrainStepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deepbsde",
			Subsystem: serviceName,
			Name:      "train_step_duration_seconds",
			Help:      "Single training step duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		TrainingLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "deepbsde",
			Subsystem: serviceName,
			Name:      "training_loss",
			Help:      "Most recent training loss",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	metrics := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DBQueriesTotal,
		m.DBQueryDuration,
		m.TrainingRunsTotal,
		m.TrainingRunsActive,
		m.TrainStepsTotal,
		m.TrainStepDuration,
		m.TrainingLoss,
	}

	for _, metric := range metrics {
		if err := prometheus.DefaultRegisterer.Register(metric); err != nil {
			logging.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logging.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) error {
	if path == "" {
		path = "/metrics"
	}

	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logging.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logging.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()

	return nil
}
