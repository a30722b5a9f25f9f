package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maccman/opentrack-sub000/pkg/errors"
)

// fakeStore is an in-memory Store that records call counts and can be
// programmed to fail.
type fakeStore struct {
	datasets map[string]bool
	tables   map[string]TableSchema
	inserted map[string][]Row

	createTableErr error

	calls map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		datasets: make(map[string]bool),
		tables:   make(map[string]TableSchema),
		inserted: make(map[string][]Row),
		calls:    make(map[string]int),
	}
}

func (f *fakeStore) key(dataset, table string) string { return dataset + "." + table }

func (f *fakeStore) DatasetExists(ctx context.Context, dataset string) (bool, error) {
	f.calls["DatasetExists"]++
	return f.datasets[dataset], nil
}

func (f *fakeStore) CreateDataset(ctx context.Context, dataset string, meta DatasetMetadata) error {
	f.calls["CreateDataset"]++
	f.datasets[dataset] = true
	return nil
}

func (f *fakeStore) TableExists(ctx context.Context, dataset, table string) (bool, error) {
	f.calls["TableExists"]++
	_, ok := f.tables[f.key(dataset, table)]
	return ok, nil
}

func (f *fakeStore) GetTableSchema(ctx context.Context, dataset, table string) (TableSchema, error) {
	f.calls["GetTableSchema"]++
	schema, ok := f.tables[f.key(dataset, table)]
	if !ok {
		return nil, errors.New(errors.ErrorTypeUnknown, "table not found")
	}
	return schema, nil
}

func (f *fakeStore) CreateTable(ctx context.Context, dataset, table string, schema TableSchema, meta TableMetadata) error {
	f.calls["CreateTable"]++
	if f.createTableErr != nil {
		return f.createTableErr
	}
	f.tables[f.key(dataset, table)] = schema
	return nil
}

func (f *fakeStore) SetTableSchema(ctx context.Context, dataset, table string, schema TableSchema) error {
	f.calls["SetTableSchema"]++
	f.tables[f.key(dataset, table)] = schema
	return nil
}

func (f *fakeStore) InsertRows(ctx context.Context, dataset, table string, rows []Row) error {
	f.calls["InsertRows"]++
	key := f.key(dataset, table)
	f.inserted[key] = append(f.inserted[key], rows...)
	return nil
}

func TestTableManager_InsertWithAutoSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("empty batch makes zero remote calls", func(t *testing.T) {
		store := newFakeStore()
		m := NewTableManager(store)

		err := m.InsertWithAutoSchema(ctx, "analytics", "tracks", "tracks", nil)
		require.NoError(t, err)
		assert.Empty(t, store.calls)
	})

	t.Run("creates dataset and table on first write", func(t *testing.T) {
		store := newFakeStore()
		m := NewTableManager(store)

		err := m.InsertWithAutoSchema(ctx, "analytics", "signup", "signup",
			[]Row{{"id": "m1", "event": "signup", "count": 1}})
		require.NoError(t, err)

		assert.Equal(t, 1, store.calls["CreateDataset"])
		assert.Equal(t, 1, store.calls["CreateTable"])
		assert.Equal(t, 1, store.calls["InsertRows"])
		assert.Len(t, store.inserted["analytics.signup"], 1)

		schema := store.tables["analytics.signup"]
		col, ok := schema.Column("count")
		require.True(t, ok)
		assert.Equal(t, TypeInteger, col.Type)
	})

	t.Run("relaxes column type on conflicting write", func(t *testing.T) {
		store := newFakeStore()
		m := NewTableManager(store)

		require.NoError(t, m.InsertWithAutoSchema(ctx, "analytics", "signup", "signup",
			[]Row{{"id": "m1", "count": 1}}))
		require.NoError(t, m.InsertWithAutoSchema(ctx, "analytics", "signup", "signup",
			[]Row{{"id": "m2", "count": "x"}}))

		col, ok := store.tables["analytics.signup"].Column("count")
		require.True(t, ok)
		assert.Equal(t, TypeString, col.Type)
		assert.Equal(t, 1, store.calls["SetTableSchema"])

		// Same shape again: no further schema mutation.
		require.NoError(t, m.InsertWithAutoSchema(ctx, "analytics", "signup", "signup",
			[]Row{{"id": "m3", "count": "y"}}))
		assert.Equal(t, 1, store.calls["SetTableSchema"])
	})

	t.Run("only the first row drives schema evolution", func(t *testing.T) {
		store := newFakeStore()
		m := NewTableManager(store)

		err := m.InsertWithAutoSchema(ctx, "analytics", "signup", "signup", []Row{
			{"id": "m1", "count": 1},
			{"id": "m2", "brand_new": "value"},
		})
		require.NoError(t, err)

		_, ok := store.tables["analytics.signup"].Column("brand_new")
		assert.False(t, ok)
	})
}

func TestTableManager_SchemaCache(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit answers without remote calls", func(t *testing.T) {
		store := newFakeStore()
		m := NewTableManager(store)

		require.NoError(t, m.InsertWithAutoSchema(ctx, "analytics", "tracks", "tracks",
			[]Row{{"id": "m1"}}))

		existBefore := store.calls["TableExists"]
		fetchBefore := store.calls["GetTableSchema"]

		require.NoError(t, m.InsertWithAutoSchema(ctx, "analytics", "tracks", "tracks",
			[]Row{{"id": "m2"}}))

		assert.Equal(t, existBefore, store.calls["TableExists"])
		assert.Equal(t, fetchBefore, store.calls["GetTableSchema"])
	})

	t.Run("expired entries are refetched", func(t *testing.T) {
		store := newFakeStore()
		now := time.Now()
		m := NewTableManager(store, WithClock(func() time.Time { return now }))

		require.NoError(t, m.InsertWithAutoSchema(ctx, "analytics", "tracks", "tracks",
			[]Row{{"id": "m1"}}))

		now = now.Add(DefaultCacheTTL + time.Second)

		require.NoError(t, m.InsertWithAutoSchema(ctx, "analytics", "tracks", "tracks",
			[]Row{{"id": "m2"}}))

		assert.Equal(t, 1, store.calls["GetTableSchema"])
	})

	t.Run("clear cache forces a refetch", func(t *testing.T) {
		store := newFakeStore()
		m := NewTableManager(store)

		require.NoError(t, m.InsertWithAutoSchema(ctx, "analytics", "tracks", "tracks",
			[]Row{{"id": "m1"}}))

		m.ClearCache("analytics", "tracks")

		require.NoError(t, m.InsertWithAutoSchema(ctx, "analytics", "tracks", "tracks",
			[]Row{{"id": "m2"}}))
		assert.Equal(t, 1, store.calls["GetTableSchema"])
	})

	t.Run("cache keys do not collide across datasets", func(t *testing.T) {
		store := newFakeStore()
		m := NewTableManager(store)

		require.NoError(t, m.InsertWithAutoSchema(ctx, "ds1", "tracks", "tracks",
			[]Row{{"id": "m1"}}))
		require.NoError(t, m.InsertWithAutoSchema(ctx, "ds2", "tracks", "tracks",
			[]Row{{"id": "m2"}}))

		assert.Equal(t, 2, store.calls["CreateTable"])
	})
}

func TestTableManager_CreateRace(t *testing.T) {
	ctx := context.Background()

	t.Run("conflict is swallowed and remote schema adopted", func(t *testing.T) {
		store := newFakeStore()
		m := NewTableManager(store)

		// Simulate losing the create race: the store reports a conflict and
		// the winner's table is already present remotely.
		remote := BaseSchemaForTable("tracks")
		store.tables["analytics.tracks"] = remote
		store.createTableErr = errors.New(errors.ErrorTypeConflict, "table already exists")

		err := m.CreateTable(ctx, "analytics", "tracks", "tracks", Row{"id": "m1"})
		require.NoError(t, err)
		assert.Equal(t, 1, store.calls["GetTableSchema"])

		// The adopted schema is cached; the next lookup is local.
		schema, exists, err := m.TableInfo(ctx, "analytics", "tracks")
		require.NoError(t, err)
		assert.True(t, exists)
		assert.Equal(t, remote, schema)
		assert.Equal(t, 1, store.calls["GetTableSchema"])
	})

	t.Run("other create failures propagate", func(t *testing.T) {
		store := newFakeStore()
		m := NewTableManager(store)
		store.createTableErr = errors.New(errors.ErrorTypeServer, "backend unavailable")

		err := m.CreateTable(ctx, "analytics", "tracks", "tracks", Row{"id": "m1"})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeServer))
	})
}
