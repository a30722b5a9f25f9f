package warehouse

import (
	"context"
	stderrors "errors"
	"net/http"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/maccman/opentrack-sub000/pkg/errors"
	"github.com/maccman/opentrack-sub000/pkg/logger"
)

// BigQueryStore implements Store against the BigQuery API
type BigQueryStore struct {
	client   *bigquery.Client
	location string
	logger   *zap.Logger
}

// NewBigQueryStore creates a BigQuery-backed store. credentialsFile may be
// empty, in which case application default credentials are used.
func NewBigQueryStore(ctx context.Context, projectID, location, credentialsFile string) (*BigQueryStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNetwork, "failed to create BigQuery client")
	}

	return &BigQueryStore{
		client:   client,
		location: location,
		logger:   logger.With(zap.String("component", "bigquery_store"), zap.String("project", projectID)),
	}, nil
}

// Close releases the underlying client
func (s *BigQueryStore) Close() error {
	return s.client.Close()
}

// DatasetExists checks whether the dataset exists
func (s *BigQueryStore) DatasetExists(ctx context.Context, dataset string) (bool, error) {
	_, err := s.client.Dataset(dataset).Metadata(ctx)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, errors.Classify(err)
	}
	return true, nil
}

// CreateDataset creates the dataset with its descriptive metadata
func (s *BigQueryStore) CreateDataset(ctx context.Context, dataset string, meta DatasetMetadata) error {
	err := s.client.Dataset(dataset).Create(ctx, &bigquery.DatasetMetadata{
		Location:    s.location,
		Description: meta.Description,
		Labels:      meta.Labels,
	})
	if err != nil {
		return errors.Classify(err)
	}

	s.logger.Info("dataset created", zap.String("dataset", dataset))
	return nil
}

// TableExists checks whether the table exists
func (s *BigQueryStore) TableExists(ctx context.Context, dataset, table string) (bool, error) {
	_, err := s.client.Dataset(dataset).Table(table).Metadata(ctx)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, errors.Classify(err)
	}
	return true, nil
}

// GetTableSchema fetches the remote table schema
func (s *BigQueryStore) GetTableSchema(ctx context.Context, dataset, table string) (TableSchema, error) {
	md, err := s.client.Dataset(dataset).Table(table).Metadata(ctx)
	if err != nil {
		return nil, errors.Classify(err)
	}
	return fromBigQuerySchema(md.Schema), nil
}

// CreateTable creates the table. A duplicate-create surfaces as a conflict
// error so the table manager can treat the race as success.
func (s *BigQueryStore) CreateTable(ctx context.Context, dataset, table string, schema TableSchema, meta TableMetadata) error {
	err := s.client.Dataset(dataset).Table(table).Create(ctx, &bigquery.TableMetadata{
		Schema:      toBigQuerySchema(schema),
		Description: meta.Description,
		Labels:      meta.Labels,
	})
	if err != nil {
		if isStatus(err, http.StatusConflict) {
			return errors.Wrap(err, errors.ErrorTypeConflict, "table already exists").
				WithStatusCode(http.StatusConflict)
		}
		return errors.Classify(err)
	}

	s.logger.Info("table created",
		zap.String("dataset", dataset),
		zap.String("table", table),
		zap.Int("column_count", len(schema)))
	return nil
}

// SetTableSchema pushes an updated schema to the remote table
func (s *BigQueryStore) SetTableSchema(ctx context.Context, dataset, table string, schema TableSchema) error {
	ref := s.client.Dataset(dataset).Table(table)

	md, err := ref.Metadata(ctx)
	if err != nil {
		return errors.Classify(err)
	}

	_, err = ref.Update(ctx, bigquery.TableMetadataToUpdate{
		Schema: toBigQuerySchema(schema),
	}, md.ETag)
	if err != nil {
		return errors.Classify(err)
	}

	s.logger.Info("table schema updated",
		zap.String("dataset", dataset),
		zap.String("table", table),
		zap.Int("column_count", len(schema)))
	return nil
}

// InsertRows streams rows into the table. Row ids double as insert ids so
// BigQuery can best-effort deduplicate retried sends.
func (s *BigQueryStore) InsertRows(ctx context.Context, dataset, table string, rows []Row) error {
	inserter := s.client.Dataset(dataset).Table(table).Inserter()

	savers := make([]*rowSaver, 0, len(rows))
	for _, row := range rows {
		savers = append(savers, &rowSaver{row: row})
	}

	if err := inserter.Put(ctx, savers); err != nil {
		return errors.Classify(err)
	}
	return nil
}

// rowSaver adapts a Row to the bigquery.ValueSaver interface
type rowSaver struct {
	row Row
}

func (r *rowSaver) Save() (map[string]bigquery.Value, string, error) {
	values := make(map[string]bigquery.Value, len(r.row))
	for k, v := range r.row {
		values[k] = v
	}

	insertID := ""
	if id, ok := r.row["id"].(string); ok {
		insertID = id
	}
	return values, insertID, nil
}

func toBigQuerySchema(schema TableSchema) bigquery.Schema {
	out := make(bigquery.Schema, 0, len(schema))
	for _, col := range schema {
		out = append(out, &bigquery.FieldSchema{
			Name:     col.Name,
			Type:     toBigQueryType(col.Type),
			Required: col.Required,
		})
	}
	return out
}

func toBigQueryType(t ColumnType) bigquery.FieldType {
	switch t {
	case TypeBoolean:
		return bigquery.BooleanFieldType
	case TypeInteger:
		return bigquery.IntegerFieldType
	case TypeFloat:
		return bigquery.FloatFieldType
	case TypeTimestamp:
		return bigquery.TimestampFieldType
	default:
		return bigquery.StringFieldType
	}
}

func fromBigQuerySchema(schema bigquery.Schema) TableSchema {
	out := make(TableSchema, 0, len(schema))
	for _, field := range schema {
		out = append(out, ColumnSchema{
			Name:     field.Name,
			Type:     fromBigQueryType(field.Type),
			Required: field.Required,
		})
	}
	return out
}

func fromBigQueryType(t bigquery.FieldType) ColumnType {
	switch t {
	case bigquery.BooleanFieldType:
		return TypeBoolean
	case bigquery.IntegerFieldType:
		return TypeInteger
	case bigquery.FloatFieldType:
		return TypeFloat
	case bigquery.TimestampFieldType:
		return TypeTimestamp
	default:
		return TypeString
	}
}

// isStatus reports whether err is a googleapi error with the given HTTP code
func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
