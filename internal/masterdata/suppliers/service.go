package suppliers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ordina-erp/ordina-erp/internal/shared"
)

// Directory resolves supplier master data with a redis read-through cache.
// The cache is best-effort: redis failures fall back to the database.
type Directory struct {
	repo     RepositoryPort
	cache    *redis.Client
	cacheTTL time.Duration
}

// RepositoryPort describes the persistence operations the directory needs.
type RepositoryPort interface {
	Get(ctx context.Context, codigo string) (Supplier, error)
	List(ctx context.Context, limit, offset int) ([]Supplier, error)
}

// NewDirectory constructs a Directory. cache may be nil.
func NewDirectory(repo RepositoryPort, cache *redis.Client, cacheTTL time.Duration) *Directory {
	return &Directory{repo: repo, cache: cache, cacheTTL: cacheTTL}
}

func cacheKey(codigo string) string {
	return fmt.Sprintf("proveedor:%s", codigo)
}

// Get returns the supplier identified by codigo or shared.ErrNotFound.
func (d *Directory) Get(ctx context.Context, codigo string) (Supplier, error) {
	if d.cache != nil {
		if raw, err := d.cache.Get(ctx, cacheKey(codigo)).Bytes(); err == nil {
			var s Supplier
			if err := json.Unmarshal(raw, &s); err == nil {
				return s, nil
			}
		}
	}

	s, err := d.repo.Get(ctx, codigo)
	if err != nil {
		return Supplier{}, err
	}

	if d.cache != nil {
		if raw, err := json.Marshal(s); err == nil {
			_ = d.cache.Set(ctx, cacheKey(codigo), raw, d.cacheTTL).Err()
		}
	}
	return s, nil
}

// GetOrPlaceholder resolves codigo, substituting the documented placeholder
// when the master record is missing. Only genuine lookup failures propagate.
func (d *Directory) GetOrPlaceholder(ctx context.Context, codigo string) (Supplier, error) {
	s, err := d.Get(ctx, codigo)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Placeholder(codigo), nil
		}
		return Supplier{}, err
	}
	return s, nil
}

// List returns suppliers ordered by code.
func (d *Directory) List(ctx context.Context, limit, offset int) ([]Supplier, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.repo.List(ctx, limit, offset)
}
