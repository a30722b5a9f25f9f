package warehouse

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/maccman/opentrack-sub000/pkg/errors"
	"github.com/maccman/opentrack-sub000/pkg/logger"
	"github.com/maccman/opentrack-sub000/pkg/metrics"
)

// DefaultCacheTTL is how long a cached table schema is trusted before the
// remote store is consulted again.
const DefaultCacheTTL = 5 * time.Minute

// datasetMetadata is the fixed descriptive metadata stamped on datasets the
// manager creates.
var datasetMetadata = DatasetMetadata{
	Description: "Analytics events delivered by opentrack",
	Labels:      map[string]string{"managed_by": "opentrack"},
}

// tableMetadata returns the fixed descriptive metadata for a new table
func tableMetadata(tableType string) TableMetadata {
	return TableMetadata{
		Description: "Analytics events delivered by opentrack",
		Labels: map[string]string{
			"managed_by": "opentrack",
			"table_type": tableType,
		},
	}
}

// tableKey is the flat composite cache key
type tableKey struct {
	dataset string
	table   string
}

// cacheEntry is one cached schema with its fetch time
type cacheEntry struct {
	schema      TableSchema
	lastUpdated time.Time
}

// TableManager ensures a destination table exists and its schema can hold a
// given row. It caches schemas per (dataset, table) with a TTL and tolerates
// concurrent create races by swallowing the store's conflict error and
// refetching the winner's schema. Staleness in the cache can only
// under-report columns, so a stale read triggers a corrective schema update
// on the next write rather than data loss. The manager does not retry; errors
// propagate to the destination adapter's retry wrapper.
type TableManager struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[tableKey]cacheEntry
}

// ManagerOption customizes a TableManager
type ManagerOption func(*TableManager)

// WithCacheTTL overrides the schema cache TTL
func WithCacheTTL(ttl time.Duration) ManagerOption {
	return func(m *TableManager) { m.ttl = ttl }
}

// WithClock overrides the manager clock, for tests
func WithClock(now func() time.Time) ManagerOption {
	return func(m *TableManager) { m.now = now }
}

// NewTableManager creates a table manager over the given store
func NewTableManager(store Store, opts ...ManagerOption) *TableManager {
	m := &TableManager{
		store:  store,
		ttl:    DefaultCacheTTL,
		logger: logger.With(zap.String("component", "table_manager")),
		now:    time.Now,
		cache:  make(map[tableKey]cacheEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureDatasetExists creates the dataset if the remote store does not have
// it. The existence check is the only race protection; a concurrent create
// surfaces as an error from the store.
func (m *TableManager) EnsureDatasetExists(ctx context.Context, dataset string) error {
	exists, err := m.store.DatasetExists(ctx, dataset)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return m.store.CreateDataset(ctx, dataset, datasetMetadata)
}

// TableInfo returns the table schema and whether the table exists. A cache
// hit within the TTL answers without a remote call; a miss checks existence
// and fetches the remote schema.
func (m *TableManager) TableInfo(ctx context.Context, dataset, table string) (TableSchema, bool, error) {
	if schema, ok := m.cachedSchema(dataset, table); ok {
		return schema, true, nil
	}

	exists, err := m.store.TableExists(ctx, dataset, table)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}

	schema, err := m.store.GetTableSchema(ctx, dataset, table)
	if err != nil {
		return nil, false, err
	}

	m.putCache(dataset, table, schema)
	return schema, true, nil
}

// CreateTable creates the table with the base template for its type widened
// by the sample row's inferred schema. If creation loses a race and the store
// reports a conflict, the now-existing remote schema is fetched and cached
// instead of propagating the error. Any other failure propagates unmodified.
func (m *TableManager) CreateTable(ctx context.Context, dataset, table, tableType string, sampleRow Row) error {
	base := BaseSchemaForTable(tableType)
	inferred := SchemaFromRow(sampleRow)
	schema, _ := MergeSchemas(base, inferred)

	err := m.store.CreateTable(ctx, dataset, table, schema, tableMetadata(tableType))
	if err != nil {
		if !errors.IsConflict(err) {
			return err
		}

		m.logger.Info("table created concurrently, adopting remote schema",
			zap.String("dataset", dataset),
			zap.String("table", table))

		remote, fetchErr := m.store.GetTableSchema(ctx, dataset, table)
		if fetchErr != nil {
			return fetchErr
		}
		m.putCache(dataset, table, remote)
		return nil
	}

	metrics.SchemaChanges.WithLabelValues("create").Inc()
	m.putCache(dataset, table, schema)
	return nil
}

// UpdateTableSchema widens the current schema to hold the new row. When the
// merge produces no changes, no remote call is made and false is returned.
func (m *TableManager) UpdateTableSchema(ctx context.Context, dataset, table string, newRow Row, current TableSchema) (bool, error) {
	inferred := SchemaFromRow(newRow)
	merged, changed := MergeSchemas(current, inferred)
	if !changed {
		return false, nil
	}

	if err := m.store.SetTableSchema(ctx, dataset, table, merged); err != nil {
		return false, err
	}

	m.logger.Info("table schema widened",
		zap.String("dataset", dataset),
		zap.String("table", table),
		zap.Int("column_count", len(merged)))

	metrics.SchemaChanges.WithLabelValues("widen").Inc()
	m.putCache(dataset, table, merged)
	return true, nil
}

// EnsureTableReady makes the table able to hold the sample row, creating it
// if missing and widening its schema if present. The schema is
// opportunistically re-checked on every write, not only at creation.
func (m *TableManager) EnsureTableReady(ctx context.Context, dataset, table, tableType string, sampleRow Row) error {
	if err := m.EnsureDatasetExists(ctx, dataset); err != nil {
		return err
	}

	schema, exists, err := m.TableInfo(ctx, dataset, table)
	if err != nil {
		return err
	}

	if !exists {
		return m.CreateTable(ctx, dataset, table, tableType, sampleRow)
	}

	_, err = m.UpdateTableSchema(ctx, dataset, table, sampleRow, schema)
	return err
}

// InsertWithAutoSchema readies the table and inserts the batch. An empty
// batch makes zero remote calls. Only the first row's shape drives schema
// evolution for the call; later rows with new or incompatible fields may be
// rejected by the remote store. That tradeoff keeps the sync cheap and is
// deliberate.
func (m *TableManager) InsertWithAutoSchema(ctx context.Context, dataset, table, tableType string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	if err := m.EnsureTableReady(ctx, dataset, table, tableType, rows[0]); err != nil {
		return err
	}

	return m.store.InsertRows(ctx, dataset, table, rows)
}

// ClearCache evicts cached schemas: everything, one dataset, or one table.
func (m *TableManager) ClearCache(dataset, table string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dataset == "" {
		m.cache = make(map[tableKey]cacheEntry)
		return
	}
	if table == "" {
		for key := range m.cache {
			if key.dataset == dataset {
				delete(m.cache, key)
			}
		}
		return
	}
	delete(m.cache, tableKey{dataset: dataset, table: table})
}

func (m *TableManager) cachedSchema(dataset, table string) (TableSchema, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.cache[tableKey{dataset: dataset, table: table}]
	if !ok {
		return nil, false
	}
	if m.now().Sub(entry.lastUpdated) > m.ttl {
		delete(m.cache, tableKey{dataset: dataset, table: table})
		return nil, false
	}
	return entry.schema, true
}

func (m *TableManager) putCache(dataset, table string, schema TableSchema) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache[tableKey{dataset: dataset, table: table}] = cacheEntry{
		schema:      schema,
		lastUpdated: m.now(),
	}
}
