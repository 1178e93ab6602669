// Пакет metaindex — индекс метаданных кейсов в PostgreSQL.
// Таблица case_metadata хранит плоскую строку CaseMetadata;
// поиск выполняется по собственному языку запросов, который
// транслируется в параметризованное WHERE-условие.
package metaindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Index — операции индекса метаданных.
type Index interface {
	// Add добавляет или заменяет запись.
	Add(ctx context.Context, m *model.CaseMetadata) error
	// GetByUUID возвращает запись или model.ErrNotFound.
	GetByUUID(ctx context.Context, id uuid.UUID) (*model.CaseMetadata, error)
	// GetMany возвращает найденные записи в порядке ids; отсутствующие пропускаются.
	GetMany(ctx context.Context, ids []uuid.UUID) ([]*model.CaseMetadata, error)
	// Search выполняет запрос; некорректный запрос — model.ErrInvalidQuery.
	Search(ctx context.Context, query string) ([]*model.CaseMetadata, error)
	// Delete удаляет запись; отсутствие записи — model.ErrNotFound.
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteAll удаляет все записи и возвращает их количество.
	DeleteAll(ctx context.Context) (int64, error)
	// Count возвращает количество записей.
	Count(ctx context.Context) (int64, error)
	// ListIDs возвращает идентификаторы всех записей.
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// caseColumns — столбцы case_metadata для SELECT-запросов.
const caseColumns = `id, name, format, type, date, forecast_distance,
	geographical_code, country, business_process, tso_code, version`

// PostgresIndex — реализация Index через pgx.
type PostgresIndex struct {
	db DBTX
}

// NewPostgresIndex создаёт индекс поверх пула или транзакции.
func NewPostgresIndex(db DBTX) *PostgresIndex {
	return &PostgresIndex{db: db}
}

// row — строка case_metadata.
type row struct {
	ID               string
	Name             string
	Format           string
	Type             string
	Date             *time.Time
	ForecastDistance *int
	GeographicalCode *string
	Country          *string
	BusinessProcess  *string
	TsoCode          *string
	Version          *int
}

func toRow(m *model.CaseMetadata) row {
	r := row{ID: m.ID.String(), Name: m.Name, Format: m.Format, Type: string(m.Type)}
	if r.Type == "" {
		r.Type = string(model.TypeGeneric)
	}
	switch {
	case m.Type == model.TypeEntsoe && m.Entsoe != nil:
		d := storedDate(m.Entsoe.Date)
		code := string(m.Entsoe.GeographicalCode)
		country := m.Entsoe.Country()
		r.Date = &d
		r.ForecastDistance = &m.Entsoe.ForecastDistance
		r.GeographicalCode = &code
		r.Country = &country
		r.Version = &m.Entsoe.Version
	case m.Type == model.TypeCgmes && m.Cgmes != nil:
		d := storedDate(m.Cgmes.Date)
		tso := string(m.Cgmes.TSO)
		r.Date = &d
		r.BusinessProcess = &m.Cgmes.BusinessProcess
		r.TsoCode = &tso
		r.Version = &m.Cgmes.Version
	}
	return r
}

// storedDate — дата с точностью кодека дат индекса.
func storedDate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func (r *row) toModel() (*model.CaseMetadata, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("некорректный id %q: %w", r.ID, err)
	}
	m := &model.CaseMetadata{ID: id, Name: r.Name, Format: r.Format}

	switch model.CaseType(r.Type) {
	case model.TypeEntsoe:
		e := &model.EntsoeInfo{
			ForecastDistance: deref(r.ForecastDistance),
			Version:          deref(r.Version),
		}
		if r.Date != nil {
			e.Date = r.Date.UTC()
		}
		if r.GeographicalCode != nil {
			e.GeographicalCode = model.GeographicalCode(*r.GeographicalCode)
		}
		m.FileNameInfo = model.FileNameInfo{Type: model.TypeEntsoe, Entsoe: e}
	case model.TypeCgmes:
		c := &model.CgmesInfo{Version: deref(r.Version)}
		if r.Date != nil {
			c.Date = r.Date.UTC()
		}
		if r.BusinessProcess != nil {
			c.BusinessProcess = *r.BusinessProcess
		}
		if r.TsoCode != nil {
			c.TSO = model.TsoCode(*r.TsoCode)
		}
		m.FileNameInfo = model.FileNameInfo{Type: model.TypeCgmes, Cgmes: c}
	default:
		m.FileNameInfo = model.GenericInfo()
	}
	return m, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func scanCase(s pgx.Row) (*model.CaseMetadata, error) {
	var r row
	if err := s.Scan(
		&r.ID, &r.Name, &r.Format, &r.Type, &r.Date, &r.ForecastDistance,
		&r.GeographicalCode, &r.Country, &r.BusinessProcess, &r.TsoCode, &r.Version,
	); err != nil {
		return nil, err
	}
	return r.toModel()
}

// Add добавляет запись или заменяет существующую с тем же id.
func (x *PostgresIndex) Add(ctx context.Context, m *model.CaseMetadata) error {
	r := toRow(m)
	query := fmt.Sprintf(`
		INSERT INTO case_metadata (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			format = EXCLUDED.format,
			type = EXCLUDED.type,
			date = EXCLUDED.date,
			forecast_distance = EXCLUDED.forecast_distance,
			geographical_code = EXCLUDED.geographical_code,
			country = EXCLUDED.country,
			business_process = EXCLUDED.business_process,
			tso_code = EXCLUDED.tso_code,
			version = EXCLUDED.version,
			indexed_at = NOW()`, caseColumns)

	_, err := x.db.Exec(ctx, query,
		r.ID, r.Name, r.Format, r.Type, r.Date, r.ForecastDistance,
		r.GeographicalCode, r.Country, r.BusinessProcess, r.TsoCode, r.Version,
	)
	if err != nil {
		return fmt.Errorf("ошибка индексации кейса %s: %w", r.ID, err)
	}
	return nil
}

// GetByUUID возвращает запись по идентификатору.
func (x *PostgresIndex) GetByUUID(ctx context.Context, id uuid.UUID) (*model.CaseMetadata, error) {
	query := fmt.Sprintf(`SELECT %s FROM case_metadata WHERE id = $1`, caseColumns)

	m, err := scanCase(x.db.QueryRow(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения метаданных %s: %w", id, err)
	}
	return m, nil
}

// GetMany возвращает записи для набора идентификаторов.
func (x *PostgresIndex) GetMany(ctx context.Context, ids []uuid.UUID) ([]*model.CaseMetadata, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	query := fmt.Sprintf(`SELECT %s FROM case_metadata WHERE id = ANY($1::uuid[])`, caseColumns)

	found, err := x.queryCases(ctx, query, strIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*model.CaseMetadata, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}
	result := make([]*model.CaseMetadata, 0, len(found))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			result = append(result, m)
		}
	}
	return result, nil
}

// Search выполняет поисковый запрос. Результат отсортирован по имени и id.
func (x *PostgresIndex) Search(ctx context.Context, q string) ([]*model.CaseMetadata, error) {
	where, args, err := buildSearchWhere(q)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM case_metadata %s ORDER BY name, id`, caseColumns, where)
	return x.queryCases(ctx, query, args...)
}

func (x *PostgresIndex) queryCases(ctx context.Context, query string, args ...any) ([]*model.CaseMetadata, error) {
	rows, err := x.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска метаданных: %w", err)
	}
	defer rows.Close()

	var result []*model.CaseMetadata
	for rows.Next() {
		m, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования метаданных: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// Delete удаляет запись.
func (x *PostgresIndex) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := x.db.Exec(ctx, `DELETE FROM case_metadata WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("ошибка удаления метаданных %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteAll удаляет все записи.
func (x *PostgresIndex) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := x.db.Exec(ctx, `DELETE FROM case_metadata`)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки индекса: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count возвращает количество записей.
func (x *PostgresIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := x.db.QueryRow(ctx, `SELECT COUNT(*) FROM case_metadata`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}
	return n, nil
}

// ListIDs возвращает идентификаторы всех записей.
func (x *PostgresIndex) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := x.db.Query(ctx, `SELECT id::text FROM case_metadata ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения идентификаторов: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("ошибка сканирования id: %w", err)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("некорректный id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации идентификаторов: %w", err)
	}
	return ids, nil
}
