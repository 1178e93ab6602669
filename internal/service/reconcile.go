// reconcile.go — сверка файлов кейсов, индекса метаданных и трекера сроков.
//
// Файлы, метаданные и сроки хранения живут в независимых хранилищах
// и могут разойтись после сбоя посреди импорта или удаления.
// Сверка обнаруживает:
//   - missing_metadata: файл есть, записи в индексе нет
//   - orphaned_metadata: запись в индексе без файла
//   - missing_expiration: файл есть, записи о сроке хранения нет
//   - orphaned_expiration: запись о сроке хранения без файла
//
// В режиме repair расхождения исправляются: недостающие записи
// создаются по файлу, лишние удаляются. Файлы сверка не трогает.
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

	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
	"github.com/bigkaa/goartstore/case-store/internal/parser"
	"github.com/bigkaa/goartstore/case-store/internal/storage/expiration"
	"github.com/bigkaa/goartstore/case-store/internal/storage/filestore"
	"github.com/bigkaa/goartstore/case-store/internal/storage/metaindex"
)

var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cs_reconcile_runs_total",
		Help: "Общее количество запусков сверки",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cs_reconcile_issues_total",
		Help: "Общее количество расхождений, обнаруженных сверкой",
	}, []string{"type"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cs_reconcile_duration_seconds",
		Help:    "Длительность сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// IssueType — вид расхождения.
type IssueType string

const (
	IssueMissingMetadata    IssueType = "missing_metadata"
	IssueOrphanedMetadata   IssueType = "orphaned_metadata"
	IssueMissingExpiration  IssueType = "missing_expiration"
	IssueOrphanedExpiration IssueType = "orphaned_expiration"
)

// ReconcileIssue — одно расхождение.
type ReconcileIssue struct {
	Type        IssueType `json:"type"`
	CaseID      uuid.UUID `json:"caseId"`
	Path        string    `json:"path,omitempty"`
	Description string    `json:"description"`
	Repaired    bool      `json:"repaired"`
}

// ReconcileSummary — количество расхождений по видам.
type ReconcileSummary struct {
	MissingMetadata     int `json:"missingMetadata"`
	OrphanedMetadata    int `json:"orphanedMetadata"`
	MissingExpiration   int `json:"missingExpiration"`
	OrphanedExpirations int `json:"orphanedExpirations"`
	Repaired            int `json:"repaired"`
	Ok                  int `json:"ok"`
}

// ReconcileResult — результат сверки.
type ReconcileResult struct {
	StartedAt    time.Time        `json:"startedAt"`
	CompletedAt  time.Time        `json:"completedAt"`
	FilesChecked int              `json:"filesChecked"`
	Issues       []ReconcileIssue `json:"issues"`
	Summary      ReconcileSummary `json:"summary"`
}

// CaseWalker — перечисление файлов кейсов.
type CaseWalker interface {
	Walk() ([]filestore.CaseFile, error)
}

// ReconcileService — сервис фоновой сверки хранилищ.
type ReconcileService struct {
	files       CaseWalker
	index       metaindex.Index
	expirations expiration.Repository
	detector    filestore.FormatDetector
	parsers     *parser.Registry
	interval    time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	inProcess bool
	cancel    context.CancelFunc
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	files CaseWalker,
	index metaindex.Index,
	expirations expiration.Repository,
	detector filestore.FormatDetector,
	parsers *parser.Registry,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		files:       files,
		index:       index,
		expirations: expirations,
		detector:    detector,
		parsers:     parsers,
		interval:    interval,
		logger:      logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает периодическую сверку с исправлением расхождений.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel

	go rs.run(rsCtx)

	rs.logger.Info("Сверка запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновую сверку.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("Сверка остановлена")
}

// IsInProgress возвращает true, если сверка или переиндексация выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

func (rs *ReconcileService) run(ctx context.Context) {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := rs.RunOnce(ctx, true); err != nil {
				rs.logger.Error("Ошибка сверки", slog.String("error", err.Error()))
			}
		}
	}
}

// acquire отмечает начало работы; false — уже выполняется.
func (rs *ReconcileService) acquire() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.inProcess {
		return false
	}
	rs.inProcess = true
	return true
}

func (rs *ReconcileService) release() {
	rs.mu.Lock()
	rs.inProcess = false
	rs.mu.Unlock()
}

// RunOnce выполняет одну сверку. Если сверка уже идёт, возвращает nil, true, nil.
func (rs *ReconcileService) RunOnce(ctx context.Context, repair bool) (*ReconcileResult, bool, error) {
	if !rs.acquire() {
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, true, nil
	}
	defer rs.release()

	result := &ReconcileResult{StartedAt: time.Now().UTC(), Issues: []ReconcileIssue{}}
	rs.logger.Info("Сверка начата", slog.Bool("repair", repair))

	files, err := rs.files.Walk()
	if err != nil {
		return nil, false, fmt.Errorf("перечисление файлов: %w", err)
	}
	indexed, err := rs.index.ListIDs(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("чтение индекса: %w", err)
	}
	records, err := rs.expirations.FindAll(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("чтение сроков хранения: %w", err)
	}

	onDisk := make(map[uuid.UUID]filestore.CaseFile, len(files))
	for _, cf := range files {
		onDisk[cf.ID] = cf
	}
	inIndex := make(map[uuid.UUID]bool, len(indexed))
	for _, id := range indexed {
		inIndex[id] = true
	}
	tracked := make(map[uuid.UUID]bool, len(records))
	for _, rec := range records {
		tracked[rec.ID] = true
	}

	for _, cf := range files {
		if !inIndex[cf.ID] {
			issue := ReconcileIssue{
				Type: IssueMissingMetadata, CaseID: cf.ID, Path: cf.Path,
				Description: "Файл кейса без записи в индексе метаданных",
			}
			if repair {
				issue.Repaired = rs.indexFile(ctx, cf)
			}
			result.Issues = append(result.Issues, issue)
		}
		if !tracked[cf.ID] {
			issue := ReconcileIssue{
				Type: IssueMissingExpiration, CaseID: cf.ID, Path: cf.Path,
				Description: "Файл кейса без записи о сроке хранения",
			}
			if repair {
				issue.Repaired = rs.track(ctx, cf.ID)
			}
			result.Issues = append(result.Issues, issue)
		}
	}

	for _, id := range indexed {
		if _, ok := onDisk[id]; ok {
			continue
		}
		issue := ReconcileIssue{
			Type: IssueOrphanedMetadata, CaseID: id,
			Description: "Запись в индексе метаданных без файла кейса",
		}
		if repair {
			issue.Repaired = rs.drop(id, rs.index.Delete(ctx, id))
		}
		result.Issues = append(result.Issues, issue)
	}

	for _, rec := range records {
		if _, ok := onDisk[rec.ID]; ok {
			continue
		}
		issue := ReconcileIssue{
			Type: IssueOrphanedExpiration, CaseID: rec.ID,
			Description: "Запись о сроке хранения без файла кейса",
		}
		if repair {
			issue.Repaired = rs.drop(rec.ID, rs.expirations.Delete(ctx, rec.ID))
		}
		result.Issues = append(result.Issues, issue)
	}

	result.CompletedAt = time.Now().UTC()
	result.FilesChecked = len(files)
	result.Summary = summarize(result.Issues, len(files))

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(result.CompletedAt.Sub(result.StartedAt).Seconds())
	for _, issue := range result.Issues {
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
	}

	rs.logger.Info("Сверка завершена",
		slog.Int("files_checked", result.FilesChecked),
		slog.Int("issues", len(result.Issues)),
		slog.Int("repaired", result.Summary.Repaired),
		slog.Duration("duration", result.CompletedAt.Sub(result.StartedAt)),
	)
	return result, false, nil
}

func summarize(issues []ReconcileIssue, filesChecked int) ReconcileSummary {
	var s ReconcileSummary
	broken := make(map[uuid.UUID]bool)
	for _, issue := range issues {
		switch issue.Type {
		case IssueMissingMetadata:
			s.MissingMetadata++
			broken[issue.CaseID] = true
		case IssueMissingExpiration:
			s.MissingExpiration++
			broken[issue.CaseID] = true
		case IssueOrphanedMetadata:
			s.OrphanedMetadata++
		case IssueOrphanedExpiration:
			s.OrphanedExpirations++
		}
		if issue.Repaired {
			s.Repaired++
		}
	}
	s.Ok = filesChecked - len(broken)
	return s
}

// indexFile определяет формат файла и добавляет метаданные в индекс.
func (rs *ReconcileService) indexFile(ctx context.Context, cf filestore.CaseFile) bool {
	format, err := rs.detector.DetectFile(cf.Path)
	if err != nil {
		rs.logger.Warn("Не удалось определить формат файла",
			slog.String("case_id", cf.ID.String()),
			slog.String("path", cf.Path),
			slog.String("error", err.Error()),
		)
		return false
	}
	if err := rs.index.Add(ctx, rs.parsers.BuildMetadata(cf.Name, cf.ID, format)); err != nil {
		rs.logger.Error("Ошибка индексации файла",
			slog.String("case_id", cf.ID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// track создаёт бессрочную запись о сроке хранения.
func (rs *ReconcileService) track(ctx context.Context, id uuid.UUID) bool {
	err := rs.expirations.Save(ctx, &model.ExpirationRecord{ID: id, CreationDate: time.Now().UTC()})
	if err != nil {
		rs.logger.Error("Ошибка создания срока хранения",
			slog.String("case_id", id.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

func (rs *ReconcileService) drop(id uuid.UUID, err error) bool {
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		rs.logger.Error("Ошибка удаления лишней записи",
			slog.String("case_id", id.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// Reindex заново строит метаданные всех файлов кейсов.
// Записи индекса без файлов удаляются.
func (rs *ReconcileService) Reindex(ctx context.Context) (int, bool, error) {
	if !rs.acquire() {
		rs.logger.Warn("Сверка уже выполняется, переиндексация пропущена")
		return 0, true, nil
	}
	defer rs.release()

	files, err := rs.files.Walk()
	if err != nil {
		return 0, false, fmt.Errorf("перечисление файлов: %w", err)
	}
	indexed, err := rs.index.ListIDs(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("чтение индекса: %w", err)
	}

	onDisk := make(map[uuid.UUID]bool, len(files))
	count := 0
	for _, cf := range files {
		onDisk[cf.ID] = true
		if rs.indexFile(ctx, cf) {
			count++
		}
	}
	for _, id := range indexed {
		if !onDisk[id] {
			rs.drop(id, rs.index.Delete(ctx, id))
		}
	}

	rs.logger.Info("Переиндексация завершена",
		slog.Int("files", len(files)),
		slog.Int("indexed", count),
	)
	return count, false, nil
}
