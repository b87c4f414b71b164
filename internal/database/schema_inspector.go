package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// SchemaInspector provides PostgreSQL schema introspection capabilities
type SchemaInspector struct {
	conn Executor
}

// TableInfo represents metadata about a database table
type TableInfo struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Comment     string       `json:"comment,omitempty"`
	Columns     []ColumnInfo `json:"columns"`
	PrimaryKey  []string     `json:"primary_key"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// ColumnInfo represents metadata about a table column
type ColumnInfo struct {
	Name            string   `json:"name"`
	DataType        string   `json:"data_type"`
	UDTName         string   `json:"udt_name"`
	IsNullable      bool     `json:"is_nullable"`
	IsPrimaryKey    bool     `json:"is_primary_key"`
	IsForeignKey    bool     `json:"is_foreign_key"`
	IsAutoIncrement bool     `json:"is_auto_increment"`
	MaxLength       *int     `json:"max_length"`
	Position        int      `json:"position"`
	Comment         string   `json:"comment,omitempty"`
	EnumValues      []string `json:"enum_values,omitempty"`
}

// ForeignKey represents a foreign key relationship
type ForeignKey struct {
	Name               string `json:"name"`
	ColumnName         string `json:"column_name"`
	ReferencedSchema   string `json:"referenced_schema"`
	ReferencedTable    string `json:"referenced_table"`
	ReferencedColumn   string `json:"referenced_column"`
	ReferencedIsPK     bool   `json:"referenced_is_pk"`
	ReferencedIsUnique bool   `json:"referenced_is_unique"`
}

// NewSchemaInspector creates a new schema inspector
func NewSchemaInspector(conn Executor) *SchemaInspector {
	return &SchemaInspector{conn: conn}
}

// GetAllTables retrieves information about all tables in the specified schemas.
// This uses batched queries to avoid N+1 query patterns.
func (si *SchemaInspector) GetAllTables(ctx context.Context, schemas ...string) ([]TableInfo, error) {
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}

	query := `
		SELECT
			n.nspname,
			c.relname,
			COALESCE(obj_description(c.oid, 'pg_class'), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = ANY($1)
			AND c.relkind IN ('r', 'p', 'v', 'm')
			AND c.relname NOT LIKE 'pg_%'
		ORDER BY n.nspname, c.relname
	`

	rows, err := si.conn.Query(ctx, query, schemas)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	tableMap := make(map[string]*TableInfo)
	var tableKeys []string

	for rows.Next() {
		var info TableInfo
		if err := rows.Scan(&info.Schema, &info.Name, &info.Comment); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		key := makeKey(info.Schema, info.Name)
		tableMap[key] = &info
		tableKeys = append(tableKeys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}

	if len(tableMap) == 0 {
		return []TableInfo{}, nil
	}

	if err := si.batchFetchTableMetadata(ctx, schemas, tableMap); err != nil {
		return nil, err
	}

	tables := make([]TableInfo, 0, len(tableKeys))
	for _, key := range tableKeys {
		tables = append(tables, *tableMap[key])
	}

	log.Debug().Strs("schemas", schemas).Int("tables", len(tables)).Msg("Inspected database schema")
	return tables, nil
}

func (si *SchemaInspector) batchFetchTableMetadata(ctx context.Context, schemas []string, tableMap map[string]*TableInfo) error {
	columns, err := si.batchGetColumns(ctx, schemas)
	if err != nil {
		return fmt.Errorf("failed to batch get columns: %w", err)
	}
	for key, cols := range columns {
		if info, ok := tableMap[key]; ok {
			info.Columns = cols
		}
	}

	enums, err := si.batchGetEnums(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch get enums: %w", err)
	}
	for _, info := range tableMap {
		for i := range info.Columns {
			if values, ok := enums[info.Columns[i].UDTName]; ok && info.Columns[i].DataType == "USER-DEFINED" {
				info.Columns[i].EnumValues = values
			}
		}
	}

	primaryKeys, err := si.batchGetPrimaryKeys(ctx, schemas)
	if err != nil {
		return fmt.Errorf("failed to batch get primary keys: %w", err)
	}
	for key, pks := range primaryKeys {
		if info, ok := tableMap[key]; ok {
			info.PrimaryKey = pks
			for i := range info.Columns {
				info.Columns[i].IsPrimaryKey = contains(pks, info.Columns[i].Name)
			}
		}
	}

	foreignKeys, err := si.batchGetForeignKeys(ctx, schemas)
	if err != nil {
		return fmt.Errorf("failed to batch get foreign keys: %w", err)
	}
	for key, fks := range foreignKeys {
		if info, ok := tableMap[key]; ok {
			info.ForeignKeys = fks
			for i := range info.Columns {
				for _, fk := range fks {
					if info.Columns[i].Name == fk.ColumnName {
						info.Columns[i].IsForeignKey = true
						break
					}
				}
			}
		}
	}

	return nil
}

// batchGetColumns retrieves columns for all tables in the specified schemas
// in a single query. Returns a map from "schema.table" to column list.
func (si *SchemaInspector) batchGetColumns(ctx context.Context, schemas []string) (map[string][]ColumnInfo, error) {
	result := make(map[string][]ColumnInfo)

	query := `
		SELECT
			c.table_schema,
			c.table_name,
			c.column_name,
			c.data_type,
			c.udt_name,
			c.is_nullable,
			(c.is_identity = 'YES' OR COALESCE(c.column_default, '') LIKE 'nextval(%'),
			c.character_maximum_length,
			c.ordinal_position,
			COALESCE(col_description(format('%I.%I', c.table_schema, c.table_name)::regclass::oid, c.ordinal_position), '')
		FROM information_schema.columns c
		WHERE c.table_schema = ANY($1)
		ORDER BY c.table_schema, c.table_name, c.ordinal_position
	`

	rows, err := si.conn.Query(ctx, query, schemas)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table, isNullable string
		var col ColumnInfo
		var maxLength *int32

		err := rows.Scan(
			&schema,
			&table,
			&col.Name,
			&col.DataType,
			&col.UDTName,
			&isNullable,
			&col.IsAutoIncrement,
			&maxLength,
			&col.Position,
			&col.Comment,
		)
		if err != nil {
			return nil, err
		}

		col.IsNullable = isNullable == "YES"
		if maxLength != nil {
			length := int(*maxLength)
			col.MaxLength = &length
		}

		key := makeKey(schema, table)
		result[key] = append(result[key], col)
	}

	return result, rows.Err()
}

// batchGetEnums returns the labels of every enum type, in declared order.
func (si *SchemaInspector) batchGetEnums(ctx context.Context) (map[string][]string, error) {
	result := make(map[string][]string)

	query := `
		SELECT t.typname, e.enumlabel
		FROM pg_enum e
		JOIN pg_type t ON t.oid = e.enumtypid
		ORDER BY t.typname, e.enumsortorder
	`

	rows, err := si.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var typ, label string
		if err := rows.Scan(&typ, &label); err != nil {
			return nil, err
		}
		result[typ] = append(result[typ], label)
	}

	return result, rows.Err()
}

// batchGetPrimaryKeys retrieves primary keys for all tables in the specified schemas.
func (si *SchemaInspector) batchGetPrimaryKeys(ctx context.Context, schemas []string) (map[string][]string, error) {
	result := make(map[string][]string)

	query := `
		SELECT
			n.nspname AS schema_name,
			c.relname AS table_name,
			a.attname AS column_name
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		JOIN pg_class c ON c.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = ANY($1)
			AND i.indisprimary
		ORDER BY n.nspname, c.relname, array_position(i.indkey, a.attnum)
	`

	rows, err := si.conn.Query(ctx, query, schemas)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table, column string
		if err := rows.Scan(&schema, &table, &column); err != nil {
			return nil, err
		}
		key := makeKey(schema, table)
		result[key] = append(result[key], column)
	}

	return result, rows.Err()
}

// batchGetForeignKeys retrieves single-column foreign keys for all tables in
// the specified schemas. Composite keys cannot back a relation field.
func (si *SchemaInspector) batchGetForeignKeys(ctx context.Context, schemas []string) (map[string][]ForeignKey, error) {
	result := make(map[string][]ForeignKey)

	query := `
		SELECT
			n.nspname,
			c.relname,
			con.conname,
			a.attname,
			rn.nspname,
			rc.relname,
			ra.attname,
			EXISTS (
				SELECT 1 FROM pg_index ri
				WHERE ri.indrelid = con.confrelid AND ri.indisprimary
					AND ri.indkey::int2[] = con.confkey
			),
			EXISTS (
				SELECT 1 FROM pg_index ri
				WHERE ri.indrelid = con.confrelid AND ri.indisunique
					AND ri.indkey::int2[] = con.confkey
			)
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_class rc ON rc.oid = con.confrelid
		JOIN pg_namespace rn ON rn.oid = rc.relnamespace
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = con.conkey[1]
		JOIN pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = con.confkey[1]
		WHERE con.contype = 'f'
			AND array_length(con.conkey, 1) = 1
			AND n.nspname = ANY($1)
		ORDER BY n.nspname, c.relname, a.attnum
	`

	rows, err := si.conn.Query(ctx, query, schemas)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table string
		var fk ForeignKey
		err := rows.Scan(
			&schema,
			&table,
			&fk.Name,
			&fk.ColumnName,
			&fk.ReferencedSchema,
			&fk.ReferencedTable,
			&fk.ReferencedColumn,
			&fk.ReferencedIsPK,
			&fk.ReferencedIsUnique,
		)
		if err != nil {
			return nil, err
		}

		key := makeKey(schema, table)
		result[key] = append(result[key], fk)
	}

	return result, rows.Err()
}

// GetSchemas retrieves all non-system schemas
func (si *SchemaInspector) GetSchemas(ctx context.Context) ([]string, error) {
	query := `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
			AND schema_name NOT LIKE 'pg_%'
		ORDER BY schema_name
	`

	rows, err := si.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query schemas: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan schema: %w", err)
		}
		schemas = append(schemas, name)
	}

	return schemas, rows.Err()
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
