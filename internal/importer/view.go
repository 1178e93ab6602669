// Пакет importer — граница с импортёрами сетевых моделей.
// Импортёр определяет формат кейса по содержимому; сам формат
// сетевой модели здесь не разбирается.
package importer

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ArchiveView — доступ только на чтение к содержимому кейса:
// одиночному файлу или записям zip-архива.
type ArchiveView interface {
	// BaseName — имя кейса без расширения
	BaseName() string
	// Exists сообщает, есть ли запись с именем name.
	Exists(name string) bool
	// ExistsExt сообщает, есть ли запись BaseName()+suffix+"."+ext.
	ExistsExt(suffix, ext string) bool
	// Open открывает запись по имени.
	Open(name string) (io.ReadCloser, error)
	// OpenExt открывает запись BaseName()+suffix+"."+ext.
	OpenExt(suffix, ext string) (io.ReadCloser, error)
	// ListNames возвращает имена записей, подходящие под выражение.
	ListNames(re *regexp.Regexp) []string
}

// OpenView создаёт представление для файла на диске: zip-архив
// открывается как набор записей, любой другой файл — как одна запись.
func OpenView(path string) (ArchiveView, io.Closer, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("определение типа %s: %w", path, err)
	}
	if isA(mt, "application/zip") {
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, nil, fmt.Errorf("открытие архива %s: %w", path, err)
		}
		return newZipView(filepath.Base(path), &zr.Reader), zr, nil
	}
	return &fileView{path: path}, nopCloser{}, nil
}

// isA проверяет MIME-тип с учётом иерархии mimetype (xml → text/plain и т.д.).
func isA(mt *mimetype.MIME, want string) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(want) {
			return true
		}
	}
	return false
}

// compressionExts — суффиксы сжатия, отрезаемые перед расширением формата.
var compressionExts = []string{".gz", ".bz2", ".xz"}

// baseName отрезает суффикс сжатия и последнее расширение:
// case.v2.xiidm.gz → case.v2.
func baseName(name string) string {
	for _, ext := range compressionExts {
		if trimmed, ok := strings.CutSuffix(name, ext); ok && trimmed != "" {
			name = trimmed
			break
		}
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fileView — одиночный файл.
type fileView struct {
	path string
}

func (v *fileView) name() string { return filepath.Base(v.path) }

func (v *fileView) BaseName() string { return baseName(v.name()) }

func (v *fileView) Exists(name string) bool { return name == v.name() }

func (v *fileView) ExistsExt(suffix, ext string) bool {
	return v.Exists(v.BaseName() + suffix + "." + ext)
}

func (v *fileView) Open(name string) (io.ReadCloser, error) {
	if !v.Exists(name) {
		return nil, fmt.Errorf("%s: %w", name, os.ErrNotExist)
	}
	return os.Open(v.path)
}

func (v *fileView) OpenExt(suffix, ext string) (io.ReadCloser, error) {
	return v.Open(v.BaseName() + suffix + "." + ext)
}

func (v *fileView) ListNames(re *regexp.Regexp) []string {
	if re.MatchString(v.name()) {
		return []string{v.name()}
	}
	return nil
}

// zipView — записи zip-архива. Директории внутри архива не учитываются,
// имена записей берутся без пути.
type zipView struct {
	base    string
	entries map[string]*zip.File
}

func newZipView(archiveName string, r *zip.Reader) *zipView {
	v := &zipView{base: baseName(archiveName), entries: make(map[string]*zip.File)}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		v.entries[filepath.Base(f.Name)] = f
	}
	return v
}

// NewZipViewFromBytes — представление zip-архива в памяти.
func NewZipViewFromBytes(archiveName string, data []byte) (ArchiveView, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("чтение архива %s: %w", archiveName, err)
	}
	return newZipView(archiveName, r), nil
}

func (v *zipView) BaseName() string { return v.base }

func (v *zipView) Exists(name string) bool {
	_, ok := v.entries[name]
	return ok
}

func (v *zipView) ExistsExt(suffix, ext string) bool {
	return v.Exists(v.base + suffix + "." + ext)
}

func (v *zipView) Open(name string) (io.ReadCloser, error) {
	f, ok := v.entries[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, os.ErrNotExist)
	}
	return f.Open()
}

func (v *zipView) OpenExt(suffix, ext string) (io.ReadCloser, error) {
	return v.Open(v.base + suffix + "." + ext)
}

func (v *zipView) ListNames(re *regexp.Regexp) []string {
	var names []string
	for name := range v.entries {
		if re.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
