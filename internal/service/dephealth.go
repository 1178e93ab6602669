// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Case Store мониторит:
//   - PostgreSQL (индекс метаданных и трекер сроков хранения) через
//     существующий pgxpool, critical: без базы сервис не работает
//   - NATS через HTTP-мониторинг сервера (/healthz), если задан
//     CS_NATS_MONITOR_URL; не critical: события публикуются best-effort
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// natsHealthPath — health endpoint HTTP-мониторинга NATS.
const natsHealthPath = "/healthz"

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках (CS_DEPHEALTH_GROUP)
	Group string
	// DB — *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool()
	DB *sql.DB
	// PostgresURL — URL PostgreSQL без пароля, только для лейблов
	PostgresURL string
	// NATSMonitorURL — HTTP-мониторинг NATS; пустое значение — NATS не проверяется
	NATSMonitorURL string
	// CheckInterval — интервал проверки (CS_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
	// IsEntry — лейбл isentry=yes для всех зависимостей (DEPHEALTH_ISENTRY)
	IsEntry bool
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh       *dephealth.DepHealth
	watching []string
	logger   *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	cfg DephealthConfig,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(cfg, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(cfg DephealthConfig, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	common := func(critical bool) []dephealth.DependencyOption {
		opts := []dephealth.DependencyOption{
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(critical),
		}
		if cfg.IsEntry {
			opts = append(opts, dephealth.WithLabel("isentry", "yes"))
		}
		return opts
	}

	pgOpts := append([]dephealth.DependencyOption{dephealth.FromURL(cfg.PostgresURL)}, common(true)...)
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)), pgOpts...),
	}
	watching := []string{"PostgreSQL"}

	if cfg.NATSMonitorURL != "" {
		natsOpts := append([]dephealth.DependencyOption{
			dephealth.FromURL(cfg.NATSMonitorURL),
			dephealth.WithHTTPHealthPath(natsHealthPath),
		}, common(false)...)
		if parsed, err := url.Parse(cfg.NATSMonitorURL); err == nil && parsed.Scheme == "https" {
			natsOpts = append(natsOpts, dephealth.WithHTTPTLSSkipVerify(false))
		}
		opts = append(opts, dephealth.HTTP("nats", natsOpts...))
		watching = append(watching, "NATS")
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:       dh,
		watching: watching,
		logger:   logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен",
		slog.String("dependencies", strings.Join(ds.watching, ", ")),
	)
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
