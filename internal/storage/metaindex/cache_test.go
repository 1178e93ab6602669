package metaindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
)

// memIndex — Index в памяти, считает обращения к GetByUUID.
type memIndex struct {
	records map[uuid.UUID]*model.CaseMetadata
	gets    int
}

func newMemIndex() *memIndex {
	return &memIndex{records: make(map[uuid.UUID]*model.CaseMetadata)}
}

func (m *memIndex) Add(_ context.Context, c *model.CaseMetadata) error {
	m.records[c.ID] = c
	return nil
}

func (m *memIndex) GetByUUID(_ context.Context, id uuid.UUID) (*model.CaseMetadata, error) {
	m.gets++
	c, ok := m.records[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return c, nil
}

func (m *memIndex) GetMany(ctx context.Context, ids []uuid.UUID) ([]*model.CaseMetadata, error) {
	var out []*model.CaseMetadata
	for _, id := range ids {
		if c, ok := m.records[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memIndex) Search(context.Context, string) ([]*model.CaseMetadata, error) { return nil, nil }

func (m *memIndex) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memIndex) DeleteAll(context.Context) (int64, error) {
	n := int64(len(m.records))
	m.records = make(map[uuid.UUID]*model.CaseMetadata)
	return n, nil
}

func (m *memIndex) Count(context.Context) (int64, error) { return int64(len(m.records)), nil }

func (m *memIndex) ListIDs(context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func genericCase(name string) *model.CaseMetadata {
	return &model.CaseMetadata{ID: uuid.New(), Name: name, Format: "XIIDM", FileNameInfo: model.GenericInfo()}
}

// TestCachedIndex_Hit проверяет, что повторное чтение обслуживается кэшем.
func TestCachedIndex_Hit(t *testing.T) {
	ctx := context.Background()
	inner := newMemIndex()
	c := NewCachedIndex(inner, 100, 5*time.Minute)

	m := genericCase("a.xiidm")
	if err := c.Add(ctx, m); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetByUUID(ctx, m.ID)
		if err != nil {
			t.Fatalf("GetByUUID: %v", err)
		}
		if !got.Equal(m) {
			t.Errorf("получена другая запись: %+v", got)
		}
	}
	if inner.gets != 1 {
		t.Errorf("обращений к индексу: хотели 1, получили %d", inner.gets)
	}
}

// TestCachedIndex_InvalidateOnAdd проверяет сброс записи при замене.
func TestCachedIndex_InvalidateOnAdd(t *testing.T) {
	ctx := context.Background()
	inner := newMemIndex()
	c := NewCachedIndex(inner, 100, 5*time.Minute)

	m := genericCase("a.xiidm")
	_ = c.Add(ctx, m)
	_, _ = c.GetByUUID(ctx, m.ID)

	updated := *m
	updated.Format = "UCTE"
	_ = c.Add(ctx, &updated)

	got, err := c.GetByUUID(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Format != "UCTE" {
		t.Errorf("из кэша возвращена устаревшая запись: %s", got.Format)
	}
}

// TestCachedIndex_DeleteAndDeleteAll проверяет инвалидацию при удалении.
func TestCachedIndex_DeleteAndDeleteAll(t *testing.T) {
	ctx := context.Background()
	c := NewCachedIndex(newMemIndex(), 100, 5*time.Minute)

	a, b := genericCase("a.xiidm"), genericCase("b.xiidm")
	_ = c.Add(ctx, a)
	_ = c.Add(ctx, b)
	_, _ = c.GetByUUID(ctx, a.ID)
	_, _ = c.GetByUUID(ctx, b.ID)

	if err := c.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetByUUID(ctx, a.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("после Delete: хотели ErrNotFound, получили %v", err)
	}

	n, err := c.DeleteAll(ctx)
	if err != nil || n != 1 {
		t.Errorf("DeleteAll: %d, %v", n, err)
	}
	if c.Len() != 0 {
		t.Errorf("кэш после DeleteAll: %d записей", c.Len())
	}
	if _, err := c.GetByUUID(ctx, b.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("после DeleteAll: хотели ErrNotFound, получили %v", err)
	}
}

// TestCachedIndex_MissNotCached проверяет, что отсутствие записи не кэшируется.
func TestCachedIndex_MissNotCached(t *testing.T) {
	ctx := context.Background()
	inner := newMemIndex()
	c := NewCachedIndex(inner, 100, 5*time.Minute)

	id := uuid.New()
	_, _ = c.GetByUUID(ctx, id)

	m := genericCase("late.xiidm")
	m.ID = id
	inner.records[id] = m

	got, err := c.GetByUUID(ctx, id)
	if err != nil || got.Name != "late.xiidm" {
		t.Errorf("GetByUUID: %v, %v", got, err)
	}
}

// blockingIndex — индекс, в котором Delete ждёт сигнала release.
type blockingIndex struct {
	*memIndex
	entered chan struct{}
	release chan struct{}
}

func (b *blockingIndex) Delete(ctx context.Context, id uuid.UUID) error {
	close(b.entered)
	<-b.release
	return b.memIndex.Delete(ctx, id)
}

// TestCachedIndex_ReadDuringDelete проверяет, что чтение во время Delete
// не оставляет удалённую запись в кэше.
func TestCachedIndex_ReadDuringDelete(t *testing.T) {
	ctx := context.Background()
	inner := &blockingIndex{
		memIndex: newMemIndex(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	c := NewCachedIndex(inner, 100, 5*time.Minute)

	m := genericCase("a.xiidm")
	if err := c.Add(ctx, m); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Delete(ctx, m.ID) }()

	<-inner.entered
	if _, err := c.GetByUUID(ctx, m.ID); err != nil {
		t.Fatalf("GetByUUID во время Delete: %v", err)
	}
	close(inner.release)
	if err := <-done; err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := c.GetByUUID(ctx, m.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("после Delete: хотели ErrNotFound, получили %v", err)
	}
}
