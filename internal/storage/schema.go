package storage

// Logical column types. Backends map them to their own SQL types.
const (
	ColumnText  = "text"
	ColumnInt   = "int"
	ColumnFloat = "float"
	ColumnBool  = "bool"
	// ColumnHash holds a hex SHA-256 digest.
	ColumnHash = "hash"
)

// TableSpec describes a table EnsureTables should create.
type TableSpec struct {
	Name        string
	Columns     []ColumnSpec
	Constraints []ConstraintSpec
}

// ColumnSpec is one column of a TableSpec. Type is one of the Column* kinds.
type ColumnSpec struct {
	Name     string
	Type     string
	Nullable *bool
}

// IsNullable reports whether the column accepts NULL. Columns are nullable
// unless Nullable says otherwise.
func (c ColumnSpec) IsNullable() bool {
	return c.Nullable == nil || *c.Nullable
}

// ConstraintSpec is a table-level constraint. Only "unique" is supported.
type ConstraintSpec struct {
	Kind    string
	Columns []string
}
