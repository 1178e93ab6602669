package metaindex

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cs_metadata_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш метаданных.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cs_metadata_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша метаданных.",
	})
)

// CachedIndex — LRU-кэш с TTL перед GetByUUID.
// Записи инвалидируются при Add, Delete и DeleteAll этого экземпляра.
type CachedIndex struct {
	Index
	cache *expirable.LRU[uuid.UUID, *model.CaseMetadata]
}

// NewCachedIndex оборачивает индекс кэшем.
// maxSize — максимальное количество записей, ttl — время жизни записи.
func NewCachedIndex(inner Index, maxSize int, ttl time.Duration) *CachedIndex {
	return &CachedIndex{
		Index: inner,
		cache: expirable.NewLRU[uuid.UUID, *model.CaseMetadata](maxSize, nil, ttl),
	}
}

// GetByUUID возвращает запись из кэша или из индекса.
func (c *CachedIndex) GetByUUID(ctx context.Context, id uuid.UUID) (*model.CaseMetadata, error) {
	if m, ok := c.cache.Get(id); ok {
		cacheHitsTotal.Inc()
		return m, nil
	}
	cacheMissesTotal.Inc()

	m, err := c.Index.GetByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, m)
	return m, nil
}

// Add заменяет запись в индексе. Кэш сбрасывается и после записи:
// параллельный GetByUUID мог успеть закэшировать старое значение.
func (c *CachedIndex) Add(ctx context.Context, m *model.CaseMetadata) error {
	c.cache.Remove(m.ID)
	defer c.cache.Remove(m.ID)
	return c.Index.Add(ctx, m)
}

func (c *CachedIndex) Delete(ctx context.Context, id uuid.UUID) error {
	c.cache.Remove(id)
	defer c.cache.Remove(id)
	return c.Index.Delete(ctx, id)
}

func (c *CachedIndex) DeleteAll(ctx context.Context) (int64, error) {
	c.cache.Purge()
	defer c.cache.Purge()
	return c.Index.DeleteAll(ctx)
}

// Len — количество записей в кэше.
func (c *CachedIndex) Len() int {
	return c.cache.Len()
}
