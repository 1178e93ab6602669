// Пакет expiration — сроки хранения кейсов в PostgreSQL.
// Таблица case_expiration не зависит от индекса метаданных:
// запись создаётся при импорте и удаляется вместе с кейсом.
package expiration

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
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository — операции над записями сроков хранения.
type Repository interface {
	// Save создаёт или заменяет запись.
	Save(ctx context.Context, r *model.ExpirationRecord) error
	// Get возвращает запись или model.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*model.ExpirationRecord, error)
	// FindAll возвращает все записи.
	FindAll(ctx context.Context) ([]*model.ExpirationRecord, error)
	// FindExpired возвращает записи с expiration_date <= now.
	FindExpired(ctx context.Context, now time.Time) ([]*model.ExpirationRecord, error)
	// SetExpiration меняет дату истечения; nil — хранить бессрочно.
	SetExpiration(ctx context.Context, id uuid.UUID, at *time.Time) error
	// Delete удаляет запись; отсутствие — model.ErrNotFound.
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteAll удаляет все записи.
	DeleteAll(ctx context.Context) (int64, error)
}

const expirationColumns = `id::text, creation_date, expiration_date`

type postgresRepo struct {
	db DBTX
}

// NewRepository создаёт репозиторий поверх пула или транзакции.
func NewRepository(db DBTX) Repository {
	return &postgresRepo{db: db}
}

func scanRecord(s pgx.Row) (*model.ExpirationRecord, error) {
	var (
		id  string
		rec model.ExpirationRecord
	)
	if err := s.Scan(&id, &rec.CreationDate, &rec.ExpirationDate); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("некорректный id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.CreationDate = rec.CreationDate.UTC()
	if rec.ExpirationDate != nil {
		utc := rec.ExpirationDate.UTC()
		rec.ExpirationDate = &utc
	}
	return &rec, nil
}

func (r *postgresRepo) Save(ctx context.Context, rec *model.ExpirationRecord) error {
	query := `
		INSERT INTO case_expiration (id, creation_date, expiration_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			creation_date = EXCLUDED.creation_date,
			expiration_date = EXCLUDED.expiration_date`

	if _, err := r.db.Exec(ctx, query, rec.ID.String(), rec.CreationDate.UTC(), utcPtr(rec.ExpirationDate)); err != nil {
		return fmt.Errorf("ошибка сохранения срока хранения %s: %w", rec.ID, err)
	}
	return nil
}

func (r *postgresRepo) Get(ctx context.Context, id uuid.UUID) (*model.ExpirationRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM case_expiration WHERE id = $1`, expirationColumns)

	rec, err := scanRecord(r.db.QueryRow(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения срока хранения %s: %w", id, err)
	}
	return rec, nil
}

func (r *postgresRepo) FindAll(ctx context.Context) ([]*model.ExpirationRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM case_expiration ORDER BY creation_date, id`, expirationColumns)
	return r.query(ctx, query)
}

func (r *postgresRepo) FindExpired(ctx context.Context, now time.Time) ([]*model.ExpirationRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM case_expiration
		WHERE expiration_date IS NOT NULL AND expiration_date <= $1
		ORDER BY expiration_date, id`, expirationColumns)
	return r.query(ctx, query, now.UTC())
}

func (r *postgresRepo) query(ctx context.Context, query string, args ...any) ([]*model.ExpirationRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сроков хранения: %w", err)
	}
	defer rows.Close()

	var result []*model.ExpirationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования срока хранения: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации сроков хранения: %w", err)
	}
	return result, nil
}

func (r *postgresRepo) SetExpiration(ctx context.Context, id uuid.UUID, at *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE case_expiration SET expiration_date = $2 WHERE id = $1`,
		id.String(), utcPtr(at),
	)
	if err != nil {
		return fmt.Errorf("ошибка изменения срока хранения %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM case_expiration WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("ошибка удаления срока хранения %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM case_expiration`)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки сроков хранения: %w", err)
	}
	return tag.RowsAffected(), nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
