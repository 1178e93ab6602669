package importer

import (
	"errors"
	"fmt"
)

// ErrNotImportable — ни один импортёр не распознал содержимое.
var ErrNotImportable = errors.New("ни один импортёр не распознал файл")

// Detector перебирает импортёры в порядке регистрации.
type Detector struct {
	importers []Importer
}

// NewDetector создаёт детектор с заданными импортёрами.
func NewDetector(importers ...Importer) *Detector {
	return &Detector{importers: importers}
}

// DefaultDetector — CGMES, XIIDM, UCTE, MATPOWER, IEEE-CDF, PSS/E.
func DefaultDetector() *Detector {
	return NewDetector(
		cgmesImporter{},
		xiidmImporter{},
		ucteImporter{},
		matpowerImporter{},
		ieeeCdfImporter{},
		psseImporter{},
	)
}

// Formats возвращает имена форматов в порядке проверки.
func (d *Detector) Formats() []string {
	out := make([]string, len(d.importers))
	for i, imp := range d.importers {
		out[i] = imp.Format()
	}
	return out
}

// Detect возвращает формат первого импортёра, распознавшего представление.
func (d *Detector) Detect(view ArchiveView) (string, error) {
	for _, imp := range d.importers {
		if imp.Exists(view) {
			return imp.Format(), nil
		}
	}
	return "", ErrNotImportable
}

// DetectFile открывает файл и определяет его формат.
func (d *Detector) DetectFile(path string) (string, error) {
	view, closer, err := OpenView(path)
	if err != nil {
		return "", err
	}
	defer closer.Close()

	format, err := d.Detect(view)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return format, nil
}
