package model

import (
	"fmt"
	"time"
)

// DateLayout — строковое представление дат на границе индекса:
// ISO-8601 с миллисекундами и явным смещением.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatDate кодирует дату в DateLayout в UTC. Точность — миллисекунды.
func FormatDate(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format(DateLayout)
}

// ParseDate — обратная операция к FormatDate. Принимает также RFC 3339
// без миллисекунд. Результат приводится к UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("некорректная дата %q: %w", s, err)
		}
	}
	return t.UTC(), nil
}
