package model

import (
	"errors"
	"fmt"
)

// Виды ошибок хранилища кейсов. Проверяются через errors.Is.
var (
	ErrIllegalName           = errors.New("недопустимое имя файла")
	ErrFileAlreadyExists     = errors.New("файл уже существует")
	ErrFileNotImportable     = errors.New("формат файла не распознан")
	ErrFileNotFound          = errors.New("файл не найден")
	ErrDirectoryNotFound     = errors.New("директория не найдена")
	ErrDirectoryEmpty        = errors.New("директория пуста")
	ErrStorageNotInitialized = errors.New("хранилище не инициализировано")
	ErrIO                    = errors.New("ошибка ввода-вывода")

	// ErrNotFound — запись отсутствует в индексе или в трекере сроков хранения.
	ErrNotFound = errors.New("запись не найдена")
	// ErrInvalidQuery — поисковый запрос не разобран.
	ErrInvalidQuery = errors.New("некорректный поисковый запрос")
)

// StorageError — ошибка операции хранилища с видом и исходной причиной.
// errors.Is находит как Kind, так и любую ошибку в цепочке Err.
type StorageError struct {
	// Kind — один из Err* выше
	Kind error
	// Name — имя файла или идентификатор кейса
	Name string
	// Err — исходная ошибка (может быть nil)
	Err error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Name)
}

// Unwrap возвращает вид и причину.
func (e *StorageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewStorageError создаёт ошибку заданного вида.
func NewStorageError(kind error, name string, err error) *StorageError {
	return &StorageError{Kind: kind, Name: name, Err: err}
}

// IOError оборачивает ошибку файловой системы в ErrIO.
func IOError(name string, err error) *StorageError {
	return &StorageError{Kind: ErrIO, Name: name, Err: err}
}
