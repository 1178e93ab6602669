// Пакет model — доменные модели Case Store.
// CaseMetadata — единая структура метаданных кейса: базовые поля
// плюс вариант, определяемый соглашением об именовании файла.
// Используется как формат JSON API и как строка таблицы case_metadata.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CaseType — дискриминатор варианта метаданных.
type CaseType string

const (
	// TypeGeneric — имя файла не распознано ни одним парсером
	TypeGeneric CaseType = "generic"
	// TypeEntsoe — имя файла в соглашении ENTSO-E (UCTE)
	TypeEntsoe CaseType = "entsoe"
	// TypeCgmes — имя файла в соглашении CGMES
	TypeCgmes CaseType = "cgmes"
)

// EntsoeInfo — поля, извлечённые из имени файла ENTSO-E.
type EntsoeInfo struct {
	// Date — момент, который описывает кейс
	Date time.Time
	// ForecastDistance — дистанция прогноза в минутах
	ForecastDistance int
	// GeographicalCode — код области из имени файла
	GeographicalCode GeographicalCode
	// Version — версия файла (одна цифра)
	Version int
}

// Country возвращает код страны, соответствующий географическому коду.
func (e *EntsoeInfo) Country() string {
	return e.GeographicalCode.Country()
}

// CgmesInfo — поля, извлечённые из имени файла CGMES.
type CgmesInfo struct {
	// Date — момент, который описывает кейс (UTC)
	Date time.Time
	// BusinessProcess — код бизнес-процесса (1D, 2D, YR, ...)
	BusinessProcess string
	// TSO — оператор, сформировавший файл
	TSO TsoCode
	// Version — версия файла
	Version int
}

// FileNameInfo — результат разбора имени файла. Не зависит от содержимого.
// Ровно одно из полей Entsoe/Cgmes заполнено в соответствии с Type;
// для TypeGeneric оба nil.
type FileNameInfo struct {
	Type   CaseType
	Entsoe *EntsoeInfo
	Cgmes  *CgmesInfo
}

// GenericInfo возвращает вариант без полей.
func GenericInfo() FileNameInfo {
	return FileNameInfo{Type: TypeGeneric}
}

// CaseMetadata — метаданные кейса. Создаются один раз при импорте,
// после этого не изменяются; удаляются вместе с файлом кейса.
type CaseMetadata struct {
	// ID — идентификатор кейса
	ID uuid.UUID
	// Name — исходное имя файла
	Name string
	// Format — формат, определённый по содержимому (UCTE, CGMES, XIIDM, ...)
	Format string
	FileNameInfo
}

// Equal сравнивает все поля, включая поля варианта.
func (m *CaseMetadata) Equal(o *CaseMetadata) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.ID != o.ID || m.Name != o.Name || m.Format != o.Format || m.Type != o.Type {
		return false
	}
	switch m.Type {
	case TypeEntsoe:
		if m.Entsoe == nil || o.Entsoe == nil {
			return m.Entsoe == o.Entsoe
		}
		return m.Entsoe.Date.Equal(o.Entsoe.Date) &&
			m.Entsoe.ForecastDistance == o.Entsoe.ForecastDistance &&
			m.Entsoe.GeographicalCode == o.Entsoe.GeographicalCode &&
			m.Entsoe.Version == o.Entsoe.Version
	case TypeCgmes:
		if m.Cgmes == nil || o.Cgmes == nil {
			return m.Cgmes == o.Cgmes
		}
		return m.Cgmes.Date.Equal(o.Cgmes.Date) &&
			m.Cgmes.BusinessProcess == o.Cgmes.BusinessProcess &&
			m.Cgmes.TSO == o.Cgmes.TSO &&
			m.Cgmes.Version == o.Cgmes.Version
	}
	return true
}

// Fingerprint возвращает стабильную строку по всем полям записи.
// Две записи равны по Equal тогда и только тогда, когда равны их отпечатки;
// используется как ключ map/set.
func (m *CaseMetadata) Fingerprint() string {
	parts := []string{m.ID.String(), m.Name, m.Format, string(m.Type)}
	switch {
	case m.Type == TypeEntsoe && m.Entsoe != nil:
		parts = append(parts,
			instant(m.Entsoe.Date),
			strconv.Itoa(m.Entsoe.ForecastDistance),
			string(m.Entsoe.GeographicalCode),
			strconv.Itoa(m.Entsoe.Version),
		)
	case m.Type == TypeCgmes && m.Cgmes != nil:
		parts = append(parts,
			instant(m.Cgmes.Date),
			m.Cgmes.BusinessProcess,
			string(m.Cgmes.TSO),
			strconv.Itoa(m.Cgmes.Version),
		)
	}
	for i, p := range parts {
		parts[i] = strconv.Quote(p)
	}
	return strings.Join(parts, "|")
}

// Date возвращает дату варианта или nil для generic.
func (m *CaseMetadata) Date() *time.Time {
	switch {
	case m.Type == TypeEntsoe && m.Entsoe != nil:
		return &m.Entsoe.Date
	case m.Type == TypeCgmes && m.Cgmes != nil:
		return &m.Cgmes.Date
	}
	return nil
}

// caseJSON — плоское JSON-представление, общее для всех вариантов.
type caseJSON struct {
	Type             CaseType  `json:"type"`
	ID               uuid.UUID `json:"uuid"`
	Name             string    `json:"name"`
	Format           string    `json:"format"`
	Date             *string   `json:"date,omitempty"`
	ForecastDistance *int      `json:"forecastDistance,omitempty"`
	GeographicalCode *string   `json:"geographicalCode,omitempty"`
	Country          *string   `json:"country,omitempty"`
	BusinessProcess  *string   `json:"businessProcess,omitempty"`
	TsoCode          *string   `json:"tsoCode,omitempty"`
	Version          *int      `json:"version,omitempty"`
}

// MarshalJSON сериализует запись в плоский объект с полем type.
func (m CaseMetadata) MarshalJSON() ([]byte, error) {
	out := caseJSON{
		Type:   m.Type,
		ID:     m.ID,
		Name:   m.Name,
		Format: m.Format,
	}
	if out.Type == "" {
		out.Type = TypeGeneric
	}

	switch m.Type {
	case TypeEntsoe:
		if m.Entsoe == nil {
			return nil, fmt.Errorf("вариант %s без полей", m.Type)
		}
		date := FormatDate(m.Entsoe.Date)
		code := string(m.Entsoe.GeographicalCode)
		country := m.Entsoe.Country()
		out.Date = &date
		out.ForecastDistance = &m.Entsoe.ForecastDistance
		out.GeographicalCode = &code
		out.Country = &country
		out.Version = &m.Entsoe.Version
	case TypeCgmes:
		if m.Cgmes == nil {
			return nil, fmt.Errorf("вариант %s без полей", m.Type)
		}
		date := FormatDate(m.Cgmes.Date)
		tso := string(m.Cgmes.TSO)
		out.Date = &date
		out.BusinessProcess = &m.Cgmes.BusinessProcess
		out.TsoCode = &tso
		out.Version = &m.Cgmes.Version
	}

	return json.Marshal(out)
}

// UnmarshalJSON восстанавливает вариант по полю type.
func (m *CaseMetadata) UnmarshalJSON(data []byte) error {
	var in caseJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*m = CaseMetadata{ID: in.ID, Name: in.Name, Format: in.Format}

	switch in.Type {
	case TypeGeneric, "":
		m.FileNameInfo = GenericInfo()
	case TypeEntsoe:
		date, err := parseOptionalDate(in.Date)
		if err != nil {
			return err
		}
		e := &EntsoeInfo{Date: date}
		if in.ForecastDistance != nil {
			e.ForecastDistance = *in.ForecastDistance
		}
		if in.GeographicalCode != nil {
			e.GeographicalCode = GeographicalCode(*in.GeographicalCode)
		}
		if in.Version != nil {
			e.Version = *in.Version
		}
		m.FileNameInfo = FileNameInfo{Type: TypeEntsoe, Entsoe: e}
	case TypeCgmes:
		date, err := parseOptionalDate(in.Date)
		if err != nil {
			return err
		}
		c := &CgmesInfo{Date: date}
		if in.BusinessProcess != nil {
			c.BusinessProcess = *in.BusinessProcess
		}
		if in.TsoCode != nil {
			c.TSO = TsoCode(*in.TsoCode)
		}
		if in.Version != nil {
			c.Version = *in.Version
		}
		m.FileNameInfo = FileNameInfo{Type: TypeCgmes, Cgmes: c}
	default:
		return fmt.Errorf("неизвестный тип метаданных %q", in.Type)
	}
	return nil
}

func instant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseOptionalDate(s *string) (time.Time, error) {
	if s == nil {
		return time.Time{}, nil
	}
	return ParseDate(*s)
}
