package journal

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// testLogger возвращает логгер для тестов (вывод подавляется).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func newJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(filepath.Join(t.TempDir(), "journal"), testLogger())
	if err != nil {
		t.Fatalf("ошибка создания журнала: %v", err)
	}
	return j
}

// TestNew_CreatesDirectory проверяет, что New создаёт директорию журнала.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "journal")

	j, err := New(dir, testLogger())
	if err != nil {
		t.Fatalf("ожидалось успешное создание журнала, получена ошибка: %v", err)
	}
	if j.Dir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, j.Dir())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("директория журнала не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь журнала не является директорией")
	}
}

// TestNew_ReadOnlyDir проверяет ошибку при недоступной для записи директории.
func TestNew_ReadOnlyDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root игнорирует права доступа")
	}
	dir := filepath.Join(t.TempDir(), "journal")
	if err := os.MkdirAll(dir, 0o550); err != nil {
		t.Fatalf("не удалось создать директорию: %v", err)
	}

	if _, err := New(dir, testLogger()); err == nil {
		t.Fatal("ожидалась ошибка при недоступной для записи директории")
	}
}

func TestBegin_PersistsEntry(t *testing.T) {
	j := newJournal(t)
	caseID := uuid.New()

	e, err := j.Begin(OpImport, caseID, "20170322_1844_SN3_FR2.uct")
	if err != nil {
		t.Fatalf("ошибка открытия записи: %v", err)
	}
	if e.ID == uuid.Nil {
		t.Error("ID записи не должен быть пустым")
	}
	if e.StartedAt.IsZero() || e.StartedAt.Location() != time.UTC {
		t.Errorf("StartedAt должен быть в UTC: %v", e.StartedAt)
	}

	if _, err := os.Stat(filepath.Join(j.Dir(), e.ID.String()+entrySuffix)); err != nil {
		t.Errorf("файл записи не создан: %v", err)
	}

	// Временные файлы не остаются после записи
	tmp, _ := filepath.Glob(filepath.Join(j.Dir(), "*.tmp"))
	if len(tmp) != 0 {
		t.Errorf("остались временные файлы: %v", tmp)
	}
}

func TestComplete_RemovesEntry(t *testing.T) {
	j := newJournal(t)

	e, err := j.Begin(OpDelete, uuid.New(), "")
	if err != nil {
		t.Fatalf("ошибка открытия записи: %v", err)
	}
	if err := j.Complete(e); err != nil {
		t.Fatalf("ошибка закрытия записи: %v", err)
	}

	pending, err := j.Pending()
	if err != nil {
		t.Fatalf("ошибка чтения журнала: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("после Complete не должно быть открытых записей, получено %d", len(pending))
	}

	// Повторное закрытие не ошибка
	if err := j.Complete(e); err != nil {
		t.Errorf("повторный Complete вернул ошибку: %v", err)
	}
}

func TestPending_OrderAndContent(t *testing.T) {
	j := newJournal(t)
	base := time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)
	tick := 0
	j.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, _ := j.Begin(OpImport, uuid.New(), "a.uct")
	second, _ := j.Begin(OpDelete, uuid.New(), "")
	third, _ := j.Begin(OpImport, uuid.New(), "b.uct")
	if err := j.Complete(second); err != nil {
		t.Fatalf("ошибка закрытия записи: %v", err)
	}

	// Журнал, открытый заново, видит те же записи
	reopened, err := New(j.Dir(), testLogger())
	if err != nil {
		t.Fatalf("ошибка повторного открытия: %v", err)
	}
	pending, err := reopened.Pending()
	if err != nil {
		t.Fatalf("ошибка чтения журнала: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("ожидалось 2 открытых записи, получено %d", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != third.ID {
		t.Errorf("порядок записей нарушен: %v, %v", pending[0].ID, pending[1].ID)
	}
	if pending[0].Op != OpImport || pending[0].Name != "a.uct" || pending[0].CaseID != first.CaseID {
		t.Errorf("содержимое записи искажено: %+v", pending[0])
	}
}

func TestPending_SkipsCorrupted(t *testing.T) {
	j := newJournal(t)
	if _, err := j.Begin(OpImport, uuid.New(), "a.uct"); err != nil {
		t.Fatalf("ошибка открытия записи: %v", err)
	}

	broken := filepath.Join(j.Dir(), uuid.New().String()+entrySuffix)
	if err := os.WriteFile(broken, []byte("{not json"), 0o640); err != nil {
		t.Fatalf("не удалось записать файл: %v", err)
	}
	// Запись с чужим идентификатором в имени файла
	if err := os.WriteFile(filepath.Join(j.Dir(), uuid.New().String()+entrySuffix),
		[]byte(`{"id":"`+uuid.New().String()+`","op":"import"}`), 0o640); err != nil {
		t.Fatalf("не удалось записать файл: %v", err)
	}

	pending, err := j.Pending()
	if err != nil {
		t.Fatalf("ошибка чтения журнала: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("повреждённые записи должны пропускаться, получено %d", len(pending))
	}
}

func TestConcurrentBegin(t *testing.T) {
	j := newJournal(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := j.Begin(OpImport, uuid.New(), "a.uct"); err != nil {
				t.Errorf("ошибка открытия записи: %v", err)
			}
		}()
	}
	wg.Wait()

	pending, err := j.Pending()
	if err != nil {
		t.Fatalf("ошибка чтения журнала: %v", err)
	}
	if len(pending) != 20 {
		t.Errorf("ожидалось 20 записей, получено %d", len(pending))
	}
}
