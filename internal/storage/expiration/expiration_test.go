package expiration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/case-store/internal/database/dbtest"
	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
)

func ptr(t time.Time) *time.Time { return &t }

func TestRepository_CRUD(t *testing.T) {
	repo := NewRepository(dbtest.Pool(t))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := &model.ExpirationRecord{ID: uuid.New(), CreationDate: now, ExpirationDate: ptr(now.Add(48 * time.Hour))}

	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.CreationDate.Equal(rec.CreationDate) || !got.ExpirationDate.Equal(*rec.ExpirationDate) {
		t.Errorf("запись изменилась: %+v", got)
	}

	if err := repo.SetExpiration(ctx, rec.ID, nil); err != nil {
		t.Fatalf("SetExpiration(nil): %v", err)
	}
	got, _ = repo.Get(ctx, rec.ID)
	if got.ExpirationDate != nil {
		t.Errorf("ожидался бессрочный кейс, получено %v", got.ExpirationDate)
	}

	if err := repo.SetExpiration(ctx, uuid.New(), nil); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("SetExpiration неизвестного id: хотели ErrNotFound, получили %v", err)
	}

	if err := repo.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, rec.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Get после Delete: хотели ErrNotFound, получили %v", err)
	}
	if err := repo.Delete(ctx, rec.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("повторный Delete: хотели ErrNotFound, получили %v", err)
	}
}

// TestRepository_FindExpired проверяет выбор истёкших записей:
// бессрочная и будущая не выбираются, вчерашняя выбирается.
func TestRepository_FindExpired(t *testing.T) {
	repo := NewRepository(dbtest.Pool(t))
	ctx := context.Background()
	now := time.Now().UTC()

	never := &model.ExpirationRecord{ID: uuid.New(), CreationDate: now}
	yesterday := &model.ExpirationRecord{ID: uuid.New(), CreationDate: now.Add(-72 * time.Hour), ExpirationDate: ptr(now.Add(-24 * time.Hour))}
	future := &model.ExpirationRecord{ID: uuid.New(), CreationDate: now, ExpirationDate: ptr(now.Add(24 * time.Hour))}
	for _, r := range []*model.ExpirationRecord{never, yesterday, future} {
		if err := repo.Save(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	all, err := repo.FindAll(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("FindAll: хотели 3, получили %d, %v", len(all), err)
	}

	expired, err := repo.FindExpired(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0].ID != yesterday.ID {
		t.Errorf("FindExpired: хотели только вчерашнюю запись, получили %v", expired)
	}

	n, err := repo.DeleteAll(ctx)
	if err != nil || n != 3 {
		t.Errorf("DeleteAll: хотели 3, получили %d, %v", n, err)
	}
}
