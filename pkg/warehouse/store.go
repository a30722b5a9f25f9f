package warehouse

import "context"

// Row is one flat row of column name to value, derived from exactly one event
// for exactly one destination table.
type Row map[string]interface{}

// DatasetMetadata carries descriptive attributes for dataset creation
type DatasetMetadata struct {
	Description string
	Labels      map[string]string
}

// TableMetadata carries descriptive attributes for table creation
type TableMetadata struct {
	Description string
	Labels      map[string]string
}

// Store is the remote warehouse contract the table manager drives. CreateTable
// must surface a duplicate-create as a conflict error recognizable by
// errors.IsConflict so concurrent creation races can be tolerated instead of
// propagated.
type Store interface {
	DatasetExists(ctx context.Context, dataset string) (bool, error)
	CreateDataset(ctx context.Context, dataset string, meta DatasetMetadata) error
	TableExists(ctx context.Context, dataset, table string) (bool, error)
	GetTableSchema(ctx context.Context, dataset, table string) (TableSchema, error)
	CreateTable(ctx context.Context, dataset, table string, schema TableSchema, meta TableMetadata) error
	SetTableSchema(ctx context.Context, dataset, table string, schema TableSchema) error
	InsertRows(ctx context.Context, dataset, table string, rows []Row) error
}
