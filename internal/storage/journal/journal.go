// Пакет journal — файловый журнал незавершённых операций над кейсами.
// Операция, затрагивающая несколько хранилищ (файл, индекс, трекер сроков),
// открывает запись перед первым изменением и закрывает после последнего.
// Каждая открытая запись — отдельный файл {id}.journal.json; запись,
// пережившая рестарт, означает прерванную операцию.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Op — вид журналируемой операции.
type Op string

const (
	// OpImport — регистрация нового файла в индексе и трекере.
	// Прерванный импорт откатывается.
	OpImport Op = "import"
	// OpDelete — удаление кейса из всех хранилищ.
	// Прерванное удаление доводится до конца.
	OpDelete Op = "delete"
)

const entrySuffix = ".journal.json"

// Entry — открытая запись журнала.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Op        Op        `json:"op"`
	CaseID    uuid.UUID `json:"caseId"`
	Name      string    `json:"name,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}

// Journal — журнал в директории на диске.
type Journal struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

// New создаёт журнал. Директория создаётся при необходимости
// и проверяется на запись.
func New(dir string, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию журнала %s: %w", dir, err)
	}

	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o640); err != nil {
		return nil, fmt.Errorf("директория журнала %s недоступна для записи: %w", dir, err)
	}
	_ = os.Remove(probe)

	return &Journal{
		dir:    dir,
		logger: logger.With(slog.String("component", "journal")),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Dir возвращает директорию журнала.
func (j *Journal) Dir() string {
	return j.dir
}

// Begin открывает запись. Запись сохраняется атомарно:
// temp файл → fsync → rename.
func (j *Journal) Begin(op Op, caseID uuid.UUID, name string) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e := &Entry{
		ID:        uuid.New(),
		Op:        op,
		CaseID:    caseID,
		Name:      name,
		StartedAt: j.now(),
	}
	if err := j.write(e); err != nil {
		return nil, fmt.Errorf("не удалось открыть запись журнала: %w", err)
	}

	j.logger.Debug("Операция начата",
		slog.String("entry_id", e.ID.String()),
		slog.String("op", string(op)),
		slog.String("case_id", caseID.String()),
	)
	return e, nil
}

// Complete закрывает запись. Закрытие уже закрытой записи не является ошибкой.
func (j *Journal) Complete(e *Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := os.Remove(j.path(e.ID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("не удалось закрыть запись журнала %s: %w", e.ID, err)
	}

	j.logger.Debug("Операция завершена",
		slog.String("entry_id", e.ID.String()),
		slog.String("op", string(e.Op)),
		slog.String("case_id", e.CaseID.String()),
		slog.Duration("duration", j.now().Sub(e.StartedAt)),
	)
	return nil
}

// Pending возвращает открытые записи в порядке начала операций.
// Нечитаемые записи пропускаются с предупреждением.
func (j *Journal) Pending() ([]*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(j.dir, "*"+entrySuffix))
	if err != nil {
		return nil, fmt.Errorf("не удалось сканировать директорию журнала: %w", err)
	}

	var pending []*Entry
	for _, path := range paths {
		e, err := readEntry(path)
		if err != nil {
			j.logger.Warn("Не удалось прочитать запись журнала",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		pending = append(pending, e)
	}

	sort.Slice(pending, func(a, b int) bool {
		return pending[a].StartedAt.Before(pending[b].StartedAt)
	})
	return pending, nil
}

func (j *Journal) path(id uuid.UUID) string {
	return filepath.Join(j.dir, id.String()+entrySuffix)
}

func (j *Journal) write(e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ошибка сериализации: %w", err)
	}

	target := j.path(e.ID)
	tmp := target + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("ошибка записи: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

func readEntry(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("ошибка десериализации: %w", err)
	}
	if e.ID.String() != strings.TrimSuffix(filepath.Base(path), entrySuffix) {
		return nil, fmt.Errorf("идентификатор записи %s не совпадает с именем файла", e.ID)
	}
	return &e, nil
}
