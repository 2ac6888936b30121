package reception

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"
)

// RemarksCapability reports which remarks column, if any, exists on the
// delivery-note header table. Production schemas have been observed with
// either name; the aggregator omits remarks entirely when neither exists.
type RemarksCapability struct {
	Present bool
	Column  string
}

// SchemaProber resolves the remarks-column variant of the current schema.
type SchemaProber interface {
	RemarksColumn(ctx context.Context) (RemarksCapability, error)
}

// Remarks column name variants, probed in order of preference.
var remarksColumns = []string{"ObservacionesAlbaran", "Observaciones"}

const sqlstateUndefinedColumn = "42703"

// SchemaProbe probes the delivery-note header table for its remarks column
// and caches the result for the process lifetime: the schema is static per
// deployment, so one probe per run suffices. Concurrent first calls collapse
// into a single query.
type SchemaProbe struct {
	pool *pgxpool.Pool

	group  singleflight.Group
	mu     sync.RWMutex
	cached *RemarksCapability
}

// NewSchemaProbe constructs a probe over the given pool.
func NewSchemaProbe(pool *pgxpool.Pool) *SchemaProbe {
	return &SchemaProbe{pool: pool}
}

// RemarksColumn resolves the remarks capability, probing at most once.
func (p *SchemaProbe) RemarksColumn(ctx context.Context) (RemarksCapability, error) {
	p.mu.RLock()
	if p.cached != nil {
		cap := *p.cached
		p.mu.RUnlock()
		return cap, nil
	}
	p.mu.RUnlock()

	result, err, _ := p.group.Do("remarks", func() (any, error) {
		cap, err := p.probe(ctx)
		if err != nil {
			return RemarksCapability{}, err
		}
		p.mu.Lock()
		p.cached = &cap
		p.mu.Unlock()
		return cap, nil
	})
	if err != nil {
		return RemarksCapability{}, err
	}
	return result.(RemarksCapability), nil
}

// probe issues a zero-row select per candidate column and inspects the
// SQLSTATE: 42703 (undefined column) means the variant is absent. Pure read,
// no mutation.
func (p *SchemaProbe) probe(ctx context.Context) (RemarksCapability, error) {
	for _, column := range remarksColumns {
		query := fmt.Sprintf(`SELECT %q FROM "CabeceraAlbaranProveedor" LIMIT 0`, column)
		rows, err := p.pool.Query(ctx, query)
		if err == nil {
			rows.Close()
			err = rows.Err()
			if err == nil {
				return RemarksCapability{Present: true, Column: column}, nil
			}
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == sqlstateUndefinedColumn {
			continue
		}
		return RemarksCapability{}, fmt.Errorf("reception: probe remarks column: %w", err)
	}
	return RemarksCapability{}, nil
}
