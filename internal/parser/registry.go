// Пакет parser — разбор имён файлов кейсов по соглашениям об именовании.
// Registry хранит упорядоченный список парсеров; первый подходящий
// определяет вариант метаданных. Имя, не подходящее ни одному
// парсеру, даёт вариант generic.
package parser

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
)

// ErrParseNotImplemented — Parse вызван для имени, которое парсер не распознаёт.
// Это ошибка программирования: вызывающий обязан сначала проверить Exists.
var ErrParseNotImplemented = errors.New("разбор не реализован для этого имени")

// FileNameParser — парсер одного соглашения об именовании.
type FileNameParser interface {
	// Name — имя соглашения (ENTSOE, CGMES)
	Name() string
	// Exists сообщает, подходит ли имя под соглашение.
	Exists(baseName string) bool
	// Parse разбирает имя. Для неподходящего имени возвращает (zero, false).
	Parse(baseName string) (model.FileNameInfo, bool)
}

// Registry — упорядоченный набор парсеров. Заполняется один раз при старте,
// далее используется только на чтение и безопасен для конкурентного доступа.
type Registry struct {
	parsers []FileNameParser
}

// NewRegistry создаёт реестр с парсерами в порядке приоритета.
func NewRegistry(parsers ...FileNameParser) *Registry {
	return &Registry{parsers: append([]FileNameParser(nil), parsers...)}
}

// DefaultRegistry — ENTSOE, затем CGMES.
func DefaultRegistry() *Registry {
	return NewRegistry(NewEntsoe(), NewCgmes())
}

// Parsers возвращает копию списка парсеров.
func (r *Registry) Parsers() []FileNameParser {
	return append([]FileNameParser(nil), r.parsers...)
}

// FindParser возвращает первый парсер, распознающий имя.
func (r *Registry) FindParser(baseName string) (FileNameParser, bool) {
	for _, p := range r.parsers {
		if p.Exists(baseName) {
			return p, true
		}
	}
	return nil, false
}

// Parse разбирает имя первым подходящим парсером. Если ни один не подошёл,
// возвращается вариант generic.
func (r *Registry) Parse(baseName string) model.FileNameInfo {
	p, ok := r.FindParser(baseName)
	if !ok {
		return model.GenericInfo()
	}
	return MustParse(p, baseName)
}

// BuildMetadata собирает запись метаданных из имени файла, идентификатора
// и формата, определённого импортёром.
func (r *Registry) BuildMetadata(baseName string, id uuid.UUID, format string) *model.CaseMetadata {
	return &model.CaseMetadata{
		ID:           id,
		Name:         baseName,
		Format:       format,
		FileNameInfo: r.Parse(baseName),
	}
}

// MustParse вызывает Parse и паникует с ErrParseNotImplemented,
// если имя не распознано.
func MustParse(p FileNameParser, baseName string) model.FileNameInfo {
	info, ok := p.Parse(baseName)
	if !ok {
		panic(fmt.Errorf("%s: %q: %w", p.Name(), baseName, ErrParseNotImplemented))
	}
	return info
}
