package dataset

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DefaultName is used when a dataset is created without a name.
const DefaultName = "dataset"

var (
	// ErrNoColumns is returned when a dataset is built without columns.
	ErrNoColumns = errors.New("dataset has no columns")
	// ErrRaggedColumns is returned when columns differ in length.
	ErrRaggedColumns = errors.New("dataset columns have different lengths")
	// ErrDuplicateColumn is returned when two columns share a name.
	ErrDuplicateColumn = errors.New("duplicate column name")
)

// Kind is the value type of a column.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "string"
	}
}

// SQLType returns the SQLite column affinity used when loading the kind.
func (k Kind) SQLType() string {
	switch k {
	case KindInt, KindBool:
		return "INTEGER"
	case KindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Column is a named, typed column. Values hold int64, float64, bool,
// time.Time or string according to Kind; nil marks a missing value.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// Strings builds a string column.
func Strings(name string, vals ...string) Column {
	c := Column{Name: name, Kind: KindString, Values: make([]any, len(vals))}
	for i, v := range vals {
		c.Values[i] = v
	}
	return c
}

// Ints builds an integer column.
func Ints(name string, vals ...int64) Column {
	c := Column{Name: name, Kind: KindInt, Values: make([]any, len(vals))}
	for i, v := range vals {
		c.Values[i] = v
	}
	return c
}

// Floats builds a float column.
func Floats(name string, vals ...float64) Column {
	c := Column{Name: name, Kind: KindFloat, Values: make([]any, len(vals))}
	for i, v := range vals {
		c.Values[i] = v
	}
	return c
}

// Bools builds a boolean column.
func Bools(name string, vals ...bool) Column {
	c := Column{Name: name, Kind: KindBool, Values: make([]any, len(vals))}
	for i, v := range vals {
		c.Values[i] = v
	}
	return c
}

// Times builds a timestamp column.
func Times(name string, vals ...time.Time) Column {
	c := Column{Name: name, Kind: KindTime, Values: make([]any, len(vals))}
	for i, v := range vals {
		c.Values[i] = v
	}
	return c
}

// Dataset is an in-memory table of named columns. It is read-only once built;
// accessors return copies of the column headers but share value storage.
type Dataset struct {
	name    string
	columns []Column
	rows    int
}

// New validates the columns and returns a Dataset. An empty name becomes
// DefaultName.
func New(name string, cols ...Column) (*Dataset, error) {
	if len(cols) == 0 {
		return nil, ErrNoColumns
	}
	if name == "" {
		name = DefaultName
	}

	seen := make(map[string]struct{}, len(cols))
	rows := len(cols[0].Values)
	out := make([]Column, len(cols))
	for i, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		seen[c.Name] = struct{}{}
		if len(c.Values) != rows {
			return nil, fmt.Errorf("%w: %q has %d rows, want %d", ErrRaggedColumns, c.Name, len(c.Values), rows)
		}
		for j, v := range c.Values {
			if err := checkValue(c.Kind, v); err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", c.Name, j, err)
			}
		}
		vals := make([]any, rows)
		copy(vals, c.Values)
		out[i] = Column{Name: c.Name, Kind: c.Kind, Values: vals}
	}

	return &Dataset{name: name, columns: out, rows: rows}, nil
}

func checkValue(k Kind, v any) error {
	if v == nil {
		return nil
	}
	ok := false
	switch k {
	case KindString:
		_, ok = v.(string)
	case KindInt:
		_, ok = v.(int64)
	case KindFloat:
		_, ok = v.(float64)
	case KindBool:
		_, ok = v.(bool)
	case KindTime:
		_, ok = v.(time.Time)
	}
	if !ok {
		return fmt.Errorf("value %v (%T) does not match kind %s", v, v, k)
	}
	return nil
}

// Name returns the dataset name, used as the table name by query engines.
func (d *Dataset) Name() string { return d.name }

// Len returns the number of rows.
func (d *Dataset) Len() int { return d.rows }

// Columns returns the dataset columns in order.
func (d *Dataset) Columns() []Column {
	out := make([]Column, len(d.columns))
	copy(out, d.columns)
	return out
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// Row returns the values of row i in column order.
func (d *Dataset) Row(i int) []any {
	row := make([]any, len(d.columns))
	for j, c := range d.columns {
		row[j] = c.Values[i]
	}
	return row
}

// Head returns a dataset holding at most the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n < 0 || n >= d.rows {
		return d
	}
	cols := make([]Column, len(d.columns))
	for i, c := range d.columns {
		cols[i] = Column{Name: c.Name, Kind: c.Kind, Values: c.Values[:n]}
	}
	return &Dataset{name: d.name, columns: cols, rows: n}
}

// FormatValue renders a cell for text serializations. Missing values render
// as the empty string.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}
