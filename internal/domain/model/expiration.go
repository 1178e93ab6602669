package model

import (
	"time"

	"github.com/google/uuid"
)

// Visibility — раздел хранилища, определяющий попадание кейса в листинг.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid проверяет значение видимости.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// ExpirationRecord — запись о сроке хранения кейса.
// Хранится отдельно от индекса метаданных.
type ExpirationRecord struct {
	// ID — идентификатор кейса
	ID uuid.UUID
	// CreationDate — момент импорта (UTC)
	CreationDate time.Time
	// ExpirationDate — момент истечения; nil — кейс хранится бессрочно
	ExpirationDate *time.Time
}

// IsExpired проверяет, истёк ли срок хранения к моменту now.
func (r *ExpirationRecord) IsExpired(now time.Time) bool {
	if r.ExpirationDate == nil {
		return false
	}
	return !r.ExpirationDate.After(now)
}
