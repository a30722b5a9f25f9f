// Package warehouse contains the schema-synchronization core for the
// warehouse destination: column type inference from row values, schema
// merging along a fixed relaxation table, and a table manager that keeps
// remote tables wide enough to hold whatever rows arrive.
package warehouse

import (
	"math"
	"regexp"
	"sort"
	"time"
)

// ColumnType is a warehouse column type. The set is fixed; ordering from
// restrictive to permissive is BOOLEAN, INTEGER, FLOAT, TIMESTAMP, STRING.
type ColumnType string

const (
	TypeBoolean   ColumnType = "BOOLEAN"
	TypeInteger   ColumnType = "INTEGER"
	TypeFloat     ColumnType = "FLOAT"
	TypeTimestamp ColumnType = "TIMESTAMP"
	TypeString    ColumnType = "STRING"
)

// ColumnSchema describes one column
type ColumnSchema struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Required bool       `json:"required"`
}

// TableSchema is an ordered set of columns
type TableSchema []ColumnSchema

// Column returns the column with the given name, if present
func (s TableSchema) Column(name string) (ColumnSchema, bool) {
	for _, col := range s {
		if col.Name == name {
			return col, true
		}
	}
	return ColumnSchema{}, false
}

// Clone returns a copy the caller may mutate
func (s TableSchema) Clone() TableSchema {
	out := make(TableSchema, len(s))
	copy(out, s)
	return out
}

// relaxations is the explicit directional widening table. A pair absent from
// this table is left unchanged even where the lattice ordering would suggest
// a relaxation: BOOLEAN vs TIMESTAMP has no rule on purpose.
var relaxations = map[ColumnType][]ColumnType{
	TypeInteger:   {TypeFloat, TypeString},
	TypeFloat:     {TypeString},
	TypeBoolean:   {TypeString},
	TypeTimestamp: {TypeString},
}

// CanRelax reports whether a column may widen from one type to another
func CanRelax(from, to ColumnType) bool {
	for _, t := range relaxations[from] {
		if t == to {
			return true
		}
	}
	return false
}

var iso8601Pattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// DetectType infers the column type for a single value. Nulls default to
// STRING; integral floats are INTEGER because JSON decoding hands every
// number over as float64; strings that look like ISO-8601 and parse to a
// valid date are TIMESTAMP; objects and arrays land as STRING since they are
// stored JSON-encoded.
func DetectType(value interface{}) ColumnType {
	switch v := value.(type) {
	case nil:
		return TypeString
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32:
		return floatType(float64(v))
	case float64:
		return floatType(v)
	case time.Time, *time.Time:
		return TypeTimestamp
	case string:
		if iso8601Pattern.MatchString(v) && parsesAsTime(v) {
			return TypeTimestamp
		}
		return TypeString
	default:
		return TypeString
	}
}

// floatType distinguishes integral floats. JSON decoding produces float64 for
// every number, so 42.0 from the wire still means INTEGER. Values past 2^53
// stay FLOAT; their integral check is not meaningful.
func floatType(v float64) ColumnType {
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		return TypeInteger
	}
	return TypeFloat
}

func parsesAsTime(s string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// SchemaFromRow derives one nullable column per row key, sorted by name for
// deterministic output.
func SchemaFromRow(row Row) TableSchema {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	schema := make(TableSchema, 0, len(names))
	for _, name := range names {
		schema = append(schema, ColumnSchema{
			Name: name,
			Type: DetectType(row[name]),
		})
	}
	return schema
}

// MergeSchemas unions the incoming schema into the existing one. Columns only
// in the incoming schema are appended as nullable; columns present in both
// with differing types widen only along the relaxation table. Required flags
// from the existing schema are preserved. Repeated merges only ever widen a
// column, never narrow it.
func MergeSchemas(existing, incoming TableSchema) (TableSchema, bool) {
	merged := existing.Clone()
	changed := false

	index := make(map[string]int, len(merged))
	for i, col := range merged {
		index[col.Name] = i
	}

	for _, col := range incoming {
		i, ok := index[col.Name]
		if !ok {
			merged = append(merged, ColumnSchema{Name: col.Name, Type: col.Type})
			index[col.Name] = len(merged) - 1
			changed = true
			continue
		}
		if merged[i].Type != col.Type && CanRelax(merged[i].Type, col.Type) {
			merged[i].Type = col.Type
			changed = true
		}
	}

	return merged, changed
}

// commonColumns are shared by every table template
var commonColumns = TableSchema{
	{Name: "id", Type: TypeString, Required: true},
	{Name: "received_at", Type: TypeTimestamp},
	{Name: "sent_at", Type: TypeTimestamp},
	{Name: "timestamp", Type: TypeTimestamp},
	{Name: "uuid_ts", Type: TypeTimestamp},
	{Name: "loaded_at", Type: TypeTimestamp},
	{Name: "user_id", Type: TypeString},
	{Name: "anonymous_id", Type: TypeString},
}

// BaseSchemaForTable returns the canonical starter schema for a table. Any
// table name that is not one of the known kind tables gets the track-like
// template; that is how per-event-name tables pick up their base schema.
func BaseSchemaForTable(tableType string) TableSchema {
	base := commonColumns.Clone()

	switch tableType {
	case "identifies":
		base = requireColumn(base, "user_id")
	case "pages":
		base = append(base,
			ColumnSchema{Name: "name", Type: TypeString},
			ColumnSchema{Name: "url", Type: TypeString},
			ColumnSchema{Name: "path", Type: TypeString},
			ColumnSchema{Name: "referrer", Type: TypeString},
			ColumnSchema{Name: "search", Type: TypeString},
			ColumnSchema{Name: "title", Type: TypeString},
		)
	case "groups":
		base = append(base, ColumnSchema{Name: "group_id", Type: TypeString, Required: true})
	case "aliases":
		base = requireColumn(base, "user_id")
		base = append(base, ColumnSchema{Name: "previous_id", Type: TypeString, Required: true})
	default:
		// tracks and per-event tables
		base = append(base,
			ColumnSchema{Name: "event", Type: TypeString, Required: true},
			ColumnSchema{Name: "event_text", Type: TypeString, Required: true},
		)
	}

	return base
}

func requireColumn(schema TableSchema, name string) TableSchema {
	for i := range schema {
		if schema[i].Name == name {
			schema[i].Required = true
		}
	}
	return schema
}
