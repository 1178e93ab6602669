// Пакет casename — проверка имён файлов кейсов.
// Вызывается перед любой записью в файловую систему по имени,
// полученному от клиента.
package casename

import (
	"regexp"

	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
)

// namePattern — имя без разделителей пути: сегменты из букв, цифр,
// подчёркиваний и дефисов, расширения из букв и цифр через одиночную точку.
var namePattern = regexp.MustCompile(`^[\w\-]+(\.\w+)*$`)

// Validate проверяет имя файла. Возвращает model.ErrIllegalName,
// если имя может выйти за пределы директории хранилища.
func Validate(name string) error {
	if !namePattern.MatchString(name) {
		return model.NewStorageError(model.ErrIllegalName, name, nil)
	}
	return nil
}

// IsValid — то же, что Validate, без ошибки.
func IsValid(name string) bool {
	return namePattern.MatchString(name)
}
