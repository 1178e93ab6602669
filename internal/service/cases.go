// Пакет service — бизнес-логика хранилища кейсов.
// cases.go — операции над кейсами: импорт, поиск, удаление, сроки хранения.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
	"github.com/bigkaa/goartstore/case-store/internal/notification"
	"github.com/bigkaa/goartstore/case-store/internal/parser"
	"github.com/bigkaa/goartstore/case-store/internal/storage/expiration"
	"github.com/bigkaa/goartstore/case-store/internal/storage/filestore"
	"github.com/bigkaa/goartstore/case-store/internal/storage/journal"
	"github.com/bigkaa/goartstore/case-store/internal/storage/metaindex"
)

var (
	// casesImportedTotal — импорты по формату.
	casesImportedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cs_cases_imported_total",
		Help: "Количество импортированных кейсов по формату",
	}, []string{"format"})

	// casesDeletedTotal — удаления по причине.
	casesDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cs_cases_deleted_total",
		Help: "Количество удалённых кейсов по причине",
	}, []string{"reason"})
)

// CaseFiles — файловое хранилище кейсов. Реализуется *filestore.FileStore.
type CaseFiles interface {
	Import(name string, r io.Reader, visibility model.Visibility) (*filestore.ImportResult, error)
	Get(id uuid.UUID) (*filestore.CaseFile, bool, error)
	Open(id uuid.UUID) (*os.File, *filestore.CaseFile, error)
	List(visibility model.Visibility) (map[string]string, error)
	Walk() ([]filestore.CaseFile, error)
	Delete(id uuid.UUID) error
	DeleteAll() ([]uuid.UUID, error)
	Duplicate(id uuid.UUID, visibility model.Visibility) (*filestore.ImportResult, error)
}

// OperationJournal — журнал незавершённых операций. Реализуется *journal.Journal.
type OperationJournal interface {
	Begin(op journal.Op, caseID uuid.UUID, name string) (*journal.Entry, error)
	Complete(e *journal.Entry) error
	Pending() ([]*journal.Entry, error)
}

// ImportParams — параметры импорта кейса.
type ImportParams struct {
	// Name — исходное имя файла
	Name string
	// Reader — содержимое
	Reader io.Reader
	// Visibility — раздел; пустое значение означает public
	Visibility model.Visibility
	// WithExpiration — удалить кейс по истечении TTL
	WithExpiration bool
}

// ImportResult — результат импорта.
type ImportResult struct {
	Metadata *model.CaseMetadata
	Checksum string
	// ExpirationDate — nil, если кейс хранится бессрочно
	ExpirationDate *time.Time
}

// CaseService — операции над кейсами поверх трёх хранилищ:
// файлов, индекса метаданных и трекера сроков хранения.
type CaseService struct {
	files       CaseFiles
	index       metaindex.Index
	expirations expiration.Repository
	parsers     *parser.Registry
	publisher   notification.Publisher
	journal     OperationJournal
	ttl         time.Duration
	logger      *slog.Logger

	now func() time.Time
}

// NewCaseService создаёт сервис кейсов.
func NewCaseService(
	files CaseFiles,
	index metaindex.Index,
	expirations expiration.Repository,
	parsers *parser.Registry,
	publisher notification.Publisher,
	ttl time.Duration,
	logger *slog.Logger,
) *CaseService {
	if publisher == nil {
		publisher = notification.Noop{}
	}
	return &CaseService{
		files:       files,
		index:       index,
		expirations: expirations,
		parsers:     parsers,
		publisher:   publisher,
		ttl:         ttl,
		logger:      logger.With(slog.String("component", "case_service")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithJournal включает журналирование импорта и удаления.
// Без журнала прерванные операции исправляет только сверка.
func (s *CaseService) WithJournal(j OperationJournal) *CaseService {
	s.journal = j
	return s
}

// Import сохраняет файл, строит метаданные по имени и формату
// и добавляет их в индекс. При ошибке индексации файл удаляется,
// чтобы хранилища не расходились.
func (s *CaseService) Import(ctx context.Context, p ImportParams) (*ImportResult, error) {
	res, err := s.files.Import(p.Name, p.Reader, p.Visibility)
	if err != nil {
		return nil, err
	}
	return s.register(ctx, res, p.WithExpiration)
}

// register индексирует уже сохранённый файл и создаёт запись о сроке хранения.
func (s *CaseService) register(ctx context.Context, res *filestore.ImportResult, withExpiration bool) (*ImportResult, error) {
	meta := s.parsers.BuildMetadata(res.Name, res.ID, res.Format)

	entry, err := s.begin(journal.OpImport, res.ID, res.Name)
	if err != nil {
		s.rollbackFile(res.ID)
		return nil, err
	}

	if err := s.index.Add(ctx, meta); err != nil {
		s.rollbackFile(res.ID)
		s.complete(entry)
		return nil, fmt.Errorf("индексация кейса %s: %w", res.ID, err)
	}

	rec := &model.ExpirationRecord{ID: res.ID, CreationDate: s.now()}
	if withExpiration {
		at := rec.CreationDate.Add(s.ttl)
		rec.ExpirationDate = &at
	}
	if err := s.expirations.Save(ctx, rec); err != nil {
		if delErr := s.index.Delete(ctx, res.ID); delErr != nil && !errors.Is(delErr, model.ErrNotFound) {
			s.logger.Error("Ошибка отката индекса",
				slog.String("case_id", res.ID.String()),
				slog.String("error", delErr.Error()),
			)
		}
		s.rollbackFile(res.ID)
		s.complete(entry)
		return nil, fmt.Errorf("сохранение срока хранения %s: %w", res.ID, err)
	}
	s.complete(entry)

	casesImportedTotal.WithLabelValues(res.Format).Inc()
	s.publish(ctx, notification.Imported(res.ID, res.Name, res.Format))

	s.logger.Info("Кейс импортирован",
		slog.String("case_id", res.ID.String()),
		slog.String("name", res.Name),
		slog.String("format", res.Format),
		slog.String("type", string(meta.Type)),
		slog.Bool("with_expiration", withExpiration),
	)

	return &ImportResult{Metadata: meta, Checksum: res.Checksum, ExpirationDate: rec.ExpirationDate}, nil
}

func (s *CaseService) rollbackFile(id uuid.UUID) {
	if err := s.files.Delete(id); err != nil {
		s.logger.Error("Ошибка отката файла кейса",
			slog.String("case_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
}

// begin открывает запись журнала; без журнала возвращает nil.
func (s *CaseService) begin(op journal.Op, id uuid.UUID, name string) (*journal.Entry, error) {
	if s.journal == nil {
		return nil, nil
	}
	e, err := s.journal.Begin(op, id, name)
	if err != nil {
		return nil, fmt.Errorf("журнал операций: %w", err)
	}
	return e, nil
}

// complete закрывает запись журнала. Незакрытая запись обработается
// при следующем восстановлении, поэтому ошибка только логируется.
func (s *CaseService) complete(e *journal.Entry) {
	if e == nil {
		return
	}
	if err := s.journal.Complete(e); err != nil {
		s.logger.Warn("Не удалось закрыть запись журнала",
			slog.String("case_id", e.CaseID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CaseService) publish(ctx context.Context, e notification.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("Не удалось опубликовать событие",
			slog.String("case_id", e.CaseID.String()),
			slog.String("type", string(e.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// Duplicate копирует кейс под новым идентификатором вместе с метаданными.
// Пустая видимость сохраняет раздел исходного кейса.
func (s *CaseService) Duplicate(ctx context.Context, id uuid.UUID, visibility model.Visibility, withExpiration bool) (*ImportResult, error) {
	res, err := s.files.Duplicate(id, visibility)
	if err != nil {
		return nil, err
	}
	return s.register(ctx, res, withExpiration)
}

// Exists сообщает, есть ли файл кейса.
func (s *CaseService) Exists(id uuid.UUID) (bool, error) {
	_, found, err := s.files.Get(id)
	return found, err
}

// Name возвращает исходное имя файла кейса.
func (s *CaseService) Name(id uuid.UUID) (string, error) {
	cf, found, err := s.files.Get(id)
	if err != nil {
		return "", err
	}
	if !found {
		return "", model.NewStorageError(model.ErrFileNotFound, id.String(), nil)
	}
	return cf.Name, nil
}

// Format возвращает формат кейса из индекса.
func (s *CaseService) Format(ctx context.Context, id uuid.UUID) (string, error) {
	meta, err := s.index.GetByUUID(ctx, id)
	if err != nil {
		return "", err
	}
	return meta.Format, nil
}

// Open открывает файл кейса. Вызывающий закрывает файл.
func (s *CaseService) Open(id uuid.UUID) (*os.File, *filestore.CaseFile, error) {
	return s.files.Open(id)
}

// List возвращает кейсы раздела: путь → имя файла.
func (s *CaseService) List(visibility model.Visibility) (map[string]string, error) {
	if visibility == "" {
		visibility = model.VisibilityPublic
	}
	return s.files.List(visibility)
}

// Metadata возвращает метаданные кейса.
func (s *CaseService) Metadata(ctx context.Context, id uuid.UUID) (*model.CaseMetadata, error) {
	return s.index.GetByUUID(ctx, id)
}

// MetadataOf возвращает метаданные нескольких кейсов; отсутствующие пропускаются.
func (s *CaseService) MetadataOf(ctx context.Context, ids []uuid.UUID) ([]*model.CaseMetadata, error) {
	if len(ids) == 0 {
		return []*model.CaseMetadata{}, nil
	}
	return s.index.GetMany(ctx, ids)
}

// Search ищет кейсы по запросу к индексу.
func (s *CaseService) Search(ctx context.Context, query string) ([]*model.CaseMetadata, error) {
	return s.index.Search(ctx, query)
}

// Delete удаляет кейс из всех хранилищ. Отсутствие файла — ErrFileNotFound;
// отсутствие записей в индексе или трекере не считается ошибкой.
// Если удалить записи не удалось, операция остаётся в журнале
// и доводится до конца при восстановлении.
func (s *CaseService) Delete(ctx context.Context, id uuid.UUID) error {
	entry, err := s.begin(journal.OpDelete, id, "")
	if err != nil {
		return err
	}
	if err := s.files.Delete(id); err != nil {
		s.complete(entry)
		return err
	}
	if err := s.dropRecords(ctx, id); err != nil {
		return err
	}
	s.complete(entry)

	casesDeletedTotal.WithLabelValues(string(notification.ReasonUser)).Inc()
	s.publish(ctx, notification.Deleted(id, notification.ReasonUser))

	s.logger.Info("Кейс удалён", slog.String("case_id", id.String()))
	return nil
}

// dropRecords удаляет метаданные и запись о сроке хранения.
func (s *CaseService) dropRecords(ctx context.Context, id uuid.UUID) error {
	if err := s.index.Delete(ctx, id); err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("удаление метаданных %s: %w", id, err)
	}
	if err := s.expirations.Delete(ctx, id); err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("удаление срока хранения %s: %w", id, err)
	}
	return nil
}

// DeleteAll удаляет все кейсы. Ошибка на одном файле не останавливает
// удаление остальных. Индекс и трекер очищаются полностью, только если
// удалены все файлы; иначе снимаются записи лишь удалённых кейсов.
// Возвращает количество удалённых файлов и объединение ошибок.
func (s *CaseService) DeleteAll(ctx context.Context) (int, error) {
	deleted, filesErr := s.files.DeleteAll()

	errs := []error{filesErr}
	if filesErr != nil {
		for _, id := range deleted {
			if err := s.dropRecords(ctx, id); err != nil {
				errs = append(errs, err)
			}
		}
	} else {
		if _, err := s.index.DeleteAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("очистка индекса: %w", err))
		}
		if _, err := s.expirations.DeleteAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("очистка трекера сроков: %w", err))
		}
	}

	casesDeletedTotal.WithLabelValues(string(notification.ReasonAll)).Add(float64(len(deleted)))
	for _, id := range deleted {
		s.publish(ctx, notification.Deleted(id, notification.ReasonAll))
	}

	err := errors.Join(errs...)
	s.logger.Info("Все кейсы удалены",
		slog.Int("deleted", len(deleted)),
		slog.Bool("with_errors", err != nil),
	)
	return len(deleted), err
}

// DisableExpiration снимает срок хранения: кейс хранится бессрочно.
func (s *CaseService) DisableExpiration(ctx context.Context, id uuid.UUID) error {
	return s.setExpiration(ctx, id, nil)
}

// ExpireIn устанавливает срок хранения now + ttl.
func (s *CaseService) ExpireIn(ctx context.Context, id uuid.UUID, ttl time.Duration) (time.Time, error) {
	if ttl <= 0 {
		return time.Time{}, fmt.Errorf("ttl должен быть положительным: %v", ttl)
	}
	at := s.now().Add(ttl)
	return at, s.setExpiration(ctx, id, &at)
}

// setExpiration меняет дату истечения. Если записи нет, но файл есть
// (кейс из раскладки flat или после сбоя), запись создаётся.
func (s *CaseService) setExpiration(ctx context.Context, id uuid.UUID, at *time.Time) error {
	err := s.expirations.SetExpiration(ctx, id, at)
	if !errors.Is(err, model.ErrNotFound) {
		return err
	}

	found, err := s.Exists(id)
	if err != nil {
		return err
	}
	if !found {
		return model.NewStorageError(model.ErrFileNotFound, id.String(), nil)
	}
	return s.expirations.Save(ctx, &model.ExpirationRecord{
		ID:             id,
		CreationDate:   s.now(),
		ExpirationDate: at,
	})
}

// Expiration возвращает запись о сроке хранения.
func (s *CaseService) Expiration(ctx context.Context, id uuid.UUID) (*model.ExpirationRecord, error) {
	return s.expirations.Get(ctx, id)
}

// RecoveryResult — итог восстановления прерванных операций.
type RecoveryResult struct {
	// RolledBack — откачено прерванных импортов
	RolledBack int
	// Completed — доведено до конца прерванных удалений
	Completed int
	// Failed — записей, оставленных до следующего запуска
	Failed int
}

// Recover обрабатывает записи журнала, оставшиеся после аварийной
// остановки. Прерванный импорт откатывается во всех хранилищах,
// прерванное удаление доводится до конца. Вызывается при старте
// до приёма запросов.
func (s *CaseService) Recover(ctx context.Context) (*RecoveryResult, error) {
	result := &RecoveryResult{}
	if s.journal == nil {
		return result, nil
	}

	pending, err := s.journal.Pending()
	if err != nil {
		return nil, err
	}

	for _, e := range pending {
		log := s.logger.With(
			slog.String("entry_id", e.ID.String()),
			slog.String("op", string(e.Op)),
			slog.String("case_id", e.CaseID.String()),
		)

		if err := s.purge(ctx, e.CaseID); err != nil {
			result.Failed++
			log.Error("Не удалось восстановить операцию", slog.String("error", err.Error()))
			continue
		}

		switch e.Op {
		case journal.OpImport:
			result.RolledBack++
			log.Warn("Прерванный импорт откачен", slog.String("name", e.Name))
		case journal.OpDelete:
			result.Completed++
			casesDeletedTotal.WithLabelValues(string(notification.ReasonUser)).Inc()
			s.publish(ctx, notification.Deleted(e.CaseID, notification.ReasonUser))
			log.Warn("Прерванное удаление завершено")
		default:
			log.Warn("Неизвестная операция в журнале, запись закрыта")
		}
		s.complete(e)
	}

	return result, nil
}

// purge удаляет кейс из всех хранилищ; отсутствие в любом из них не ошибка.
func (s *CaseService) purge(ctx context.Context, id uuid.UUID) error {
	if err := s.files.Delete(id); err != nil && !errors.Is(err, model.ErrFileNotFound) {
		return err
	}
	return s.dropRecords(ctx, id)
}
