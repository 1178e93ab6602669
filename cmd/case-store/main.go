// Точка входа Case Store — хранилища расчётных кейсов энергосистемы
// с индексом метаданных и сроками хранения.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/case-store/internal/api/handlers"
	"github.com/bigkaa/goartstore/case-store/internal/config"
	"github.com/bigkaa/goartstore/case-store/internal/database"
	"github.com/bigkaa/goartstore/case-store/internal/importer"
	"github.com/bigkaa/goartstore/case-store/internal/notification"
	"github.com/bigkaa/goartstore/case-store/internal/parser"
	"github.com/bigkaa/goartstore/case-store/internal/server"
	"github.com/bigkaa/goartstore/case-store/internal/service"
	"github.com/bigkaa/goartstore/case-store/internal/storage/expiration"
	"github.com/bigkaa/goartstore/case-store/internal/storage/filestore"
	"github.com/bigkaa/goartstore/case-store/internal/storage/journal"
	"github.com/bigkaa/goartstore/case-store/internal/storage/metaindex"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}
	cfg.ServiceID = resolveServiceID(cfg.ServiceID)

	logger := config.SetupLogger(cfg)
	logger.Info("Case Store запускается",
		slog.String("service_id", cfg.ServiceID),
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_root", cfg.StorageRoot),
		slog.String("layout", cfg.StorageLayout),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Case Store остановлен с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Case Store остановлен")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Миграции БД
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("миграции БД: %w", err)
	}

	// 2. Подключение к PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	// 2.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 3. Файловое хранилище
	detector := importer.DefaultDetector()
	files := filestore.New(cfg.StorageRoot, filestore.Layout(cfg.StorageLayout), detector, logger)
	if err := files.Init(); err != nil {
		return fmt.Errorf("инициализация хранилища: %w", err)
	}

	// 4. Индекс метаданных и трекер сроков хранения
	index := metaindex.NewCachedIndex(metaindex.NewPostgresIndex(pool), cfg.CacheSize, cfg.CacheTTL)
	expirations := expiration.NewRepository(pool)
	parsers := parser.DefaultRegistry()

	// 5. Публикация событий
	var publisher notification.Publisher = notification.Noop{}
	if cfg.NATSURL != "" {
		natsPub, natsErr := notification.NewNATSPublisher(ctx, notification.NATSConfig{
			URL:           cfg.NATSURL,
			Stream:        cfg.NATSStream,
			SubjectPrefix: cfg.NATSSubjectPrefix,
			ClientName:    cfg.ServiceID,
		}, logger)
		if natsErr != nil {
			return fmt.Errorf("NATS: %w", natsErr)
		}
		publisher = natsPub
		logger.Info("Публикация событий в NATS включена",
			slog.String("url", cfg.NATSURL),
			slog.String("stream", cfg.NATSStream),
		)
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			logger.Warn("Ошибка закрытия publisher", slog.String("error", closeErr.Error()))
		}
	}()

	// 6. Сервисы
	ops, err := journal.New(cfg.JournalDir, logger)
	if err != nil {
		return fmt.Errorf("журнал операций: %w", err)
	}
	cases := service.NewCaseService(files, index, expirations, parsers, publisher, cfg.ExpirationTTL, logger).
		WithJournal(ops)

	// 6.1 Восстановление операций, прерванных аварийной остановкой
	recovered, err := cases.Recover(ctx)
	if err != nil {
		return fmt.Errorf("восстановление журнала: %w", err)
	}
	if recovered.RolledBack+recovered.Completed+recovered.Failed > 0 {
		logger.Warn("Журнал операций восстановлен",
			slog.Int("rolled_back", recovered.RolledBack),
			slog.Int("completed", recovered.Completed),
			slog.Int("failed", recovered.Failed),
		)
	}

	sweeper := service.NewSweeper(files, index, expirations, publisher, cfg.SweepSchedule, logger)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("запуск очистки: %w", err)
	}
	defer sweeper.Stop()

	reconciler := service.NewReconcileService(files, index, expirations, detector, parsers, cfg.ReconcileInterval, logger)
	if cfg.ReconcileInterval > 0 {
		reconciler.Start(ctx)
		defer reconciler.Stop()
	}

	// 7. topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:      cfg.ServiceID,
		Group:          cfg.DephealthGroup,
		DB:             pgDB,
		PostgresURL:    cfg.DatabaseURL(),
		NATSMonitorURL: cfg.NATSMonitorURL,
		CheckInterval:  cfg.DephealthCheckInterval,
		IsEntry:        cfg.DephealthIsEntry,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		defer dephealthSvc.Stop()
		logger.Info("topologymetrics запущен",
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 8. Handlers
	parserNames := make([]string, 0, len(parsers.Parsers()))
	for _, p := range parsers.Parsers() {
		parserNames = append(parserNames, p.Name())
	}
	apiHandler := handlers.NewAPIHandler(
		handlers.NewCasesHandler(cases, cfg.MaxFileSize, logger),
		handlers.NewMaintenanceHandler(sweeper, reconciler, logger),
		handlers.NewSystemHandler(cfg, detector.Formats(), parserNames, diskUsageFn(cfg.StorageRoot)),
		handlers.NewHealthHandler(cfg.StorageRoot, database.NewReadinessChecker(pool)),
	)

	// 9. HTTP-сервер; фоновые процессы останавливаются в defer после него
	srv := server.New(cfg, logger, apiHandler)
	return srv.Run(ctx)
}
