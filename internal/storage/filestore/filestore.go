// Пакет filestore — файлы кейсов на диске.
// Поддерживает две раскладки:
//   - uuid: {root}/{public|private}/{caseId}/{имя файла}
//   - flat: {root}/{имя файла}, идентификатор выводится из имени
//
// Запись идёт через временный файл с подсчётом SHA-256 на лету
// и атомарную жёсткую ссылку, которая не перезаписывает существующий файл.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/case-store/internal/domain/casename"
	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
	"github.com/bigkaa/goartstore/case-store/internal/importer"
)

// Layout — раскладка файлов в корне хранилища.
type Layout string

const (
	LayoutUUID Layout = "uuid"
	LayoutFlat Layout = "flat"
)

// ErrUnsupportedLayout — операция недоступна в текущей раскладке.
var ErrUnsupportedLayout = errors.New("операция не поддерживается в этой раскладке")

// flatNamespace — пространство имён для идентификаторов раскладки flat.
var flatNamespace = uuid.MustParse("5f0c7a0e-52b4-4f8e-9a43-3c3e0b1d9a61")

// FlatID возвращает идентификатор кейса для имени в раскладке flat.
func FlatID(name string) uuid.UUID {
	return uuid.NewSHA1(flatNamespace, []byte(name))
}

// FormatDetector определяет формат файла по содержимому.
type FormatDetector interface {
	DetectFile(path string) (string, error)
}

// FileStore — хранилище файлов кейсов.
// Внутренних блокировок нет: корректность конкурентных импортов
// обеспечивается атомарностью os.Mkdir и os.Link.
type FileStore struct {
	root     string
	layout   Layout
	detector FormatDetector
	logger   *slog.Logger
}

// CaseFile — расположение файла кейса.
type CaseFile struct {
	ID         uuid.UUID
	Name       string
	Path       string
	Visibility model.Visibility
	Size       int64
}

// ImportResult — результат импорта файла.
type ImportResult struct {
	CaseFile
	// Format — формат, определённый импортёром
	Format string
	// Checksum — SHA-256 содержимого
	Checksum string
}

// New создаёт FileStore. Корень не создаётся: для этого служит Init.
func New(root string, layout Layout, detector FormatDetector, logger *slog.Logger) *FileStore {
	if layout == "" {
		layout = LayoutUUID
	}
	return &FileStore{
		root:     root,
		layout:   layout,
		detector: detector,
		logger:   logger.With(slog.String("component", "filestore")),
	}
}

// Root возвращает корневую директорию.
func (s *FileStore) Root() string { return s.root }

// Layout возвращает раскладку.
func (s *FileStore) Layout() Layout { return s.layout }

// Init создаёт корень и разделы видимости.
func (s *FileStore) Init() error {
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return model.IOError(s.root, err)
	}
	if s.layout != LayoutUUID {
		return nil
	}
	for _, v := range []model.Visibility{model.VisibilityPublic, model.VisibilityPrivate} {
		if err := os.MkdirAll(filepath.Join(s.root, string(v)), 0o750); err != nil {
			return model.IOError(string(v), err)
		}
	}
	return nil
}

func (s *FileStore) checkInitialized() error {
	info, err := os.Stat(s.root)
	if err != nil || !info.IsDir() {
		return model.NewStorageError(model.ErrStorageNotInitialized, s.root, err)
	}
	return nil
}

// Import сохраняет файл кейса и определяет его формат.
// Если ни один импортёр не распознал файл, записанный файл удаляется
// и возвращается ErrFileNotImportable.
func (s *FileStore) Import(name string, r io.Reader, visibility model.Visibility) (*ImportResult, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}
	if err := casename.Validate(name); err != nil {
		return nil, err
	}
	if !visibility.Valid() {
		visibility = model.VisibilityPublic
	}

	var (
		id  uuid.UUID
		dir string
	)
	switch s.layout {
	case LayoutFlat:
		id = FlatID(name)
		dir = s.root
		if _, err := os.Lstat(filepath.Join(dir, name)); err == nil {
			return nil, model.NewStorageError(model.ErrFileAlreadyExists, name, nil)
		}
	default:
		id = uuid.New()
		dir = filepath.Join(s.root, string(visibility), id.String())
		if err := os.Mkdir(dir, 0o750); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return nil, model.NewStorageError(model.ErrFileAlreadyExists, id.String(), err)
			}
			return nil, model.IOError(name, err)
		}
	}

	target := filepath.Join(dir, name)
	size, checksum, err := writeNoReplace(dir, target, r)
	if err != nil {
		if s.layout != LayoutFlat {
			os.Remove(dir)
		}
		if errors.Is(err, fs.ErrExist) {
			return nil, model.NewStorageError(model.ErrFileAlreadyExists, name, err)
		}
		return nil, model.IOError(name, err)
	}

	format, err := s.detector.DetectFile(target)
	if err != nil {
		s.removeArtifact(id, target)
		if errors.Is(err, importer.ErrNotImportable) {
			return nil, model.NewStorageError(model.ErrFileNotImportable, name, nil)
		}
		return nil, model.IOError(name, err)
	}

	s.logger.Debug("Файл кейса сохранён",
		slog.String("case_id", id.String()),
		slog.String("name", name),
		slog.String("format", format),
		slog.Int64("size", size),
	)

	return &ImportResult{
		CaseFile: CaseFile{
			ID:         id,
			Name:       name,
			Path:       target,
			Visibility: s.visibilityOf(visibility),
			Size:       size,
		},
		Format:   format,
		Checksum: checksum,
	}, nil
}

// writeNoReplace записывает поток во временный файл в dir и ссылкой
// переносит его в target. Если target уже существует, возвращается
// ошибка fs.ErrExist, а существующий файл не изменяется.
func writeNoReplace(dir, target string, r io.Reader) (int64, string, error) {
	f, err := os.CreateTemp(dir, ".import-*.tmp")
	if err != nil {
		return 0, "", fmt.Errorf("создание временного файла: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(r, hasher))
	if err != nil {
		f.Close()
		return 0, "", fmt.Errorf("запись данных: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, "", fmt.Errorf("fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, "", fmt.Errorf("закрытие файла: %w", err)
	}

	if err := os.Link(tmp, target); err != nil {
		return 0, "", err
	}
	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// removeArtifact удаляет файл, записанный при неудачном импорте.
func (s *FileStore) removeArtifact(id uuid.UUID, path string) {
	var err error
	if s.layout == LayoutFlat {
		err = os.Remove(path)
	} else {
		err = os.RemoveAll(filepath.Dir(path))
	}
	if err != nil {
		s.logger.Warn("Не удалось удалить файл после неудачного импорта",
			slog.String("case_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *FileStore) visibilityOf(v model.Visibility) model.Visibility {
	if s.layout == LayoutFlat {
		return model.VisibilityPublic
	}
	return v
}

// locate находит файл кейса по идентификатору.
func (s *FileStore) locate(id uuid.UUID) (*CaseFile, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}
	if s.layout == LayoutFlat {
		return s.locateFlat(id)
	}

	for _, v := range []model.Visibility{model.VisibilityPublic, model.VisibilityPrivate} {
		dir := filepath.Join(s.root, string(v), id.String())
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, model.IOError(id.String(), err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || !casename.IsValid(e.Name()) {
				continue
			}
			return s.caseFile(id, e.Name(), filepath.Join(dir, e.Name()), v)
		}
		return nil, model.NewStorageError(model.ErrDirectoryEmpty, id.String(), nil)
	}
	return nil, model.NewStorageError(model.ErrFileNotFound, id.String(), nil)
}

func (s *FileStore) locateFlat(id uuid.UUID) (*CaseFile, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, model.IOError(s.root, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || !casename.IsValid(e.Name()) {
			continue
		}
		if FlatID(e.Name()) == id {
			return s.caseFile(id, e.Name(), filepath.Join(s.root, e.Name()), model.VisibilityPublic)
		}
	}
	return nil, model.NewStorageError(model.ErrFileNotFound, id.String(), nil)
}

func (s *FileStore) caseFile(id uuid.UUID, name, path string, v model.Visibility) (*CaseFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, model.IOError(name, err)
	}
	return &CaseFile{ID: id, Name: name, Path: path, Visibility: v, Size: info.Size()}, nil
}

// Exists сообщает, есть ли файл кейса. Пустая директория кейса
// считается отсутствием файла.
func (s *FileStore) Exists(id uuid.UUID) (bool, error) {
	_, found, err := s.Get(id)
	return found, err
}

// Get возвращает расположение файла кейса. found = false, если файла нет.
func (s *FileStore) Get(id uuid.UUID) (*CaseFile, bool, error) {
	cf, err := s.locate(id)
	switch {
	case err == nil:
		return cf, true, nil
	case errors.Is(err, model.ErrFileNotFound), errors.Is(err, model.ErrDirectoryEmpty):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Open открывает файл кейса на чтение. Вызывающий закрывает файл.
func (s *FileStore) Open(id uuid.UUID) (*os.File, *CaseFile, error) {
	cf, err := s.locate(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(cf.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, model.NewStorageError(model.ErrFileNotFound, id.String(), err)
		}
		return nil, nil, model.IOError(cf.Name, err)
	}
	return f, cf, nil
}

// List возвращает файлы раздела: путь → исходное имя.
// В раскладке flat раздел не учитывается.
func (s *FileStore) List(visibility model.Visibility) (map[string]string, error) {
	files, err := s.list(visibility)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(files))
	for _, cf := range files {
		out[cf.Path] = cf.Name
	}
	return out, nil
}

// Walk возвращает все файлы кейсов во всех разделах, отсортированные по пути.
func (s *FileStore) Walk() ([]CaseFile, error) {
	if s.layout == LayoutFlat {
		return s.list(model.VisibilityPublic)
	}
	var all []CaseFile
	for _, v := range []model.Visibility{model.VisibilityPublic, model.VisibilityPrivate} {
		files, err := s.list(v)
		if err != nil {
			return nil, err
		}
		all = append(all, files...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Path < all[j].Path })
	return all, nil
}

func (s *FileStore) list(visibility model.Visibility) ([]CaseFile, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}

	if s.layout == LayoutFlat {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			return nil, model.IOError(s.root, err)
		}
		var files []CaseFile
		for _, e := range entries {
			if !e.Type().IsRegular() || !casename.IsValid(e.Name()) {
				continue
			}
			files = append(files, CaseFile{
				ID:         FlatID(e.Name()),
				Name:       e.Name(),
				Path:       filepath.Join(s.root, e.Name()),
				Visibility: model.VisibilityPublic,
			})
		}
		return files, nil
	}

	partition := filepath.Join(s.root, string(visibility))
	dirs, err := os.ReadDir(partition)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.NewStorageError(model.ErrDirectoryNotFound, string(visibility), err)
	}
	if err != nil {
		return nil, model.IOError(partition, err)
	}

	var files []CaseFile
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		id, err := uuid.Parse(d.Name())
		if err != nil {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(partition, d.Name()))
		if err != nil {
			return nil, model.IOError(d.Name(), err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || !casename.IsValid(e.Name()) {
				continue
			}
			files = append(files, CaseFile{
				ID:         id,
				Name:       e.Name(),
				Path:       filepath.Join(partition, d.Name(), e.Name()),
				Visibility: visibility,
			})
		}
	}
	return files, nil
}

// Delete удаляет файл кейса. Возвращает ErrFileNotFound, если файла нет.
func (s *FileStore) Delete(id uuid.UUID) error {
	cf, err := s.locate(id)
	if err != nil {
		if errors.Is(err, model.ErrDirectoryEmpty) && s.layout == LayoutUUID {
			// директория без файла: убираем её, но сообщаем об отсутствии файла
			s.removeEmptyCaseDir(id)
			return model.NewStorageError(model.ErrFileNotFound, id.String(), nil)
		}
		return err
	}

	if s.layout == LayoutFlat {
		err = os.Remove(cf.Path)
	} else {
		err = os.RemoveAll(filepath.Dir(cf.Path))
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.NewStorageError(model.ErrFileNotFound, id.String(), err)
		}
		return model.IOError(cf.Name, err)
	}
	return nil
}

func (s *FileStore) removeEmptyCaseDir(id uuid.UUID) {
	for _, v := range []model.Visibility{model.VisibilityPublic, model.VisibilityPrivate} {
		os.Remove(filepath.Join(s.root, string(v), id.String()))
	}
}

// DeleteAll удаляет все файлы кейсов. Работает по снимку списка;
// ошибка на одном кейсе не останавливает удаление остальных.
// Возвращает идентификаторы удалённых кейсов и объединение всех ошибок.
func (s *FileStore) DeleteAll() ([]uuid.UUID, error) {
	files, err := s.Walk()
	if err != nil {
		return nil, err
	}

	var (
		deleted []uuid.UUID
		errs    []error
	)
	for _, cf := range files {
		if err := s.Delete(cf.ID); err != nil {
			s.logger.Error("Ошибка удаления файла кейса",
				slog.String("case_id", cf.ID.String()),
				slog.String("name", cf.Name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		deleted = append(deleted, cf.ID)
	}
	return deleted, errors.Join(errs...)
}

// Duplicate копирует файл кейса под новым идентификатором.
// Доступно только в раскладке uuid.
func (s *FileStore) Duplicate(id uuid.UUID, visibility model.Visibility) (*ImportResult, error) {
	if s.layout != LayoutUUID {
		return nil, ErrUnsupportedLayout
	}
	f, cf, err := s.Open(id)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !visibility.Valid() {
		visibility = cf.Visibility
	}
	return s.Import(cf.Name, f, visibility)
}

// Checksum вычисляет SHA-256 файла кейса.
func (s *FileStore) Checksum(id uuid.UUID) (string, error) {
	f, cf, err := s.Open(id)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", model.IOError(cf.Name, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
