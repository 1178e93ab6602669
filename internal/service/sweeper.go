// sweeper.go — удаление кейсов с истёкшим сроком хранения.
//
// По расписанию cron (UTC) читает все записи трекера сроков хранения,
// отбирает истёкшие и последовательно удаляет для каждой:
//  1. файл кейса (отсутствие файла считается уже выполненным удалением)
//  2. метаданные в индексе
//  3. запись о сроке хранения
//
// Ошибка на одной записи не прерывает обработку остальных: запись
// остаётся в трекере и будет обработана на следующем запуске.
// Запуски не перекрываются.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
	"github.com/bigkaa/goartstore/case-store/internal/notification"
	"github.com/bigkaa/goartstore/case-store/internal/storage/expiration"
	"github.com/bigkaa/goartstore/case-store/internal/storage/metaindex"
)

var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cs_sweep_runs_total",
		Help: "Общее количество запусков очистки истёкших кейсов",
	})

	sweepDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cs_sweep_deleted_total",
		Help: "Общее количество кейсов, удалённых по сроку хранения",
	})

	sweepFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cs_sweep_failures_total",
		Help: "Общее количество ошибок удаления истёкших кейсов",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cs_sweep_duration_seconds",
		Help:    "Длительность очистки истёкших кейсов в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// CaseDeleter — удаление файла кейса.
type CaseDeleter interface {
	Delete(id uuid.UUID) error
}

// SweepResult — результат одного запуска очистки.
type SweepResult struct {
	// Checked — количество прочитанных записей трекера
	Checked int
	// Expired — количество истёкших записей
	Expired int
	// Deleted — количество успешно удалённых кейсов
	Deleted int
	// Failed — количество записей, оставленных до следующего запуска
	Failed int
	// Duration — длительность выполнения
	Duration time.Duration
}

// Sweeper — планировщик удаления истёкших кейсов.
type Sweeper struct {
	files       CaseDeleter
	index       metaindex.Index
	expirations expiration.Repository
	publisher   notification.Publisher
	schedule    string
	logger      *slog.Logger

	mu   sync.Mutex // запуски не перекрываются
	cron *cron.Cron
	now  func() time.Time
}

// NewSweeper создаёт планировщик. schedule — 5-польное выражение cron в UTC.
func NewSweeper(
	files CaseDeleter,
	index metaindex.Index,
	expirations expiration.Repository,
	publisher notification.Publisher,
	schedule string,
	logger *slog.Logger,
) *Sweeper {
	if publisher == nil {
		publisher = notification.Noop{}
	}
	return &Sweeper{
		files:       files,
		index:       index,
		expirations: expirations,
		publisher:   publisher,
		schedule:    schedule,
		logger:      logger.With(slog.String("component", "sweeper")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// cronLogger передаёт сообщения cron в slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}

// Start регистрирует задачу в cron и запускает планировщик.
func (s *Sweeper) Start(ctx context.Context) error {
	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("расписание %q: %w", s.schedule, err)
	}
	s.cron = c
	c.Start()

	s.logger.Info("Очистка истёкших кейсов запущена",
		slog.String("schedule", s.schedule),
	)
	return nil
}

// Stop останавливает планировщик и дожидается завершения текущего запуска.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Очистка истёкших кейсов остановлена")
}

// RunOnce выполняет один запуск очистки. Если запуск уже идёт,
// возвращает nil, true.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepResult, bool) {
	if !s.mu.TryLock() {
		s.logger.Warn("Очистка уже выполняется, пропуск")
		return nil, true
	}
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}
	defer func() {
		result.Duration = time.Since(start)
		sweepRunsTotal.Inc()
		sweepDeletedTotal.Add(float64(result.Deleted))
		sweepFailuresTotal.Add(float64(result.Failed))
		sweepDurationSeconds.Observe(result.Duration.Seconds())
	}()

	records, err := s.expirations.FindAll(ctx)
	if err != nil {
		s.logger.Error("Ошибка чтения сроков хранения", slog.String("error", err.Error()))
		result.Failed++
		return result, false
	}
	result.Checked = len(records)

	now := s.now()
	for _, rec := range records {
		if !rec.IsExpired(now) {
			continue
		}
		result.Expired++

		if err := s.sweepCase(ctx, rec.ID); err != nil {
			s.logger.Error("Ошибка удаления истёкшего кейса",
				slog.String("case_id", rec.ID.String()),
				slog.Time("expiration_date", *rec.ExpirationDate),
				slog.String("error", err.Error()),
			)
			result.Failed++
			continue
		}
		result.Deleted++
	}

	s.logger.Info("Очистка истёкших кейсов завершена",
		slog.Int("checked", result.Checked),
		slog.Int("expired", result.Expired),
		slog.Int("deleted", result.Deleted),
		slog.Int("failed", result.Failed),
	)
	return result, false
}

// sweepCase удаляет один кейс: файл, метаданные, запись о сроке.
// Запись трекера удаляется последней, чтобы неудачный кейс остался
// в выборке следующего запуска.
func (s *Sweeper) sweepCase(ctx context.Context, id uuid.UUID) error {
	if err := s.files.Delete(id); err != nil && !errors.Is(err, model.ErrFileNotFound) {
		return fmt.Errorf("удаление файла: %w", err)
	}
	if err := s.index.Delete(ctx, id); err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("удаление метаданных: %w", err)
	}
	if err := s.expirations.Delete(ctx, id); err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("удаление срока хранения: %w", err)
	}

	casesDeletedTotal.WithLabelValues(string(notification.ReasonExpired)).Inc()
	if err := s.publisher.Publish(ctx, notification.Deleted(id, notification.ReasonExpired)); err != nil {
		s.logger.Warn("Не удалось опубликовать событие",
			slog.String("case_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Debug("Истёкший кейс удалён", slog.String("case_id", id.String()))
	return nil
}

// Pending возвращает записи, которые удалит следующий запуск.
func (s *Sweeper) Pending(ctx context.Context) ([]*model.ExpirationRecord, error) {
	return s.expirations.FindExpired(ctx, s.now())
}
