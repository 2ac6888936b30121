package articles

import "context"

// Lookup resolves article master data for the purchasing flows.
type Lookup struct {
	repo RepositoryPort
}

// RepositoryPort describes the persistence operations the lookup needs.
type RepositoryPort interface {
	Get(ctx context.Context, codigoArticulo string, codigoEmpresa int) (Article, error)
}

// NewLookup constructs a Lookup.
func NewLookup(repo RepositoryPort) *Lookup {
	return &Lookup{repo: repo}
}

// Get returns the article identified by (codigo, empresa).
func (l *Lookup) Get(ctx context.Context, codigoArticulo string, codigoEmpresa int) (Article, error) {
	return l.repo.Get(ctx, codigoArticulo, codigoEmpresa)
}
