package semantic

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidQuery is returned when a query does not fit the schema or uses
// unsupported operators.
var ErrInvalidQuery = errors.New("invalid semantic query")

// Query is a structured request over a Schema. Members are addressed as
// "Table.member" using semantic table names.
type Query struct {
	Measures       []string        `json:"measures,omitempty"`
	Dimensions     []string        `json:"dimensions,omitempty"`
	TimeDimensions []TimeDimension `json:"timeDimensions,omitempty"`
	Filters        []Filter        `json:"filters,omitempty"`
	Order          []Order         `json:"order,omitempty"`
	Limit          *int            `json:"limit,omitempty"`
}

// TimeDimension buckets a date dimension by Granularity and optionally
// restricts it to a DateRange. Without a granularity it only filters.
type TimeDimension struct {
	Dimension   string     `json:"dimension"`
	Granularity string     `json:"granularity,omitempty"`
	DateRange   *DateRange `json:"dateRange,omitempty"`
}

// DateRange is either a named range ("last week", "this year", ...) or an
// explicit [from, to] pair.
type DateRange struct {
	Named    string
	From, To string
}

func (r *DateRange) UnmarshalJSON(b []byte) error {
	var named string
	if err := json.Unmarshal(b, &named); err == nil {
		r.Named = named
		return nil
	}
	var pair []string
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("dateRange must be a string or a list of two dates: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: invalid date range, it should contain exactly two dates", ErrInvalidQuery)
	}
	r.From, r.To = pair[0], pair[1]
	return nil
}

func (r DateRange) MarshalJSON() ([]byte, error) {
	if r.Named != "" {
		return json.Marshal(r.Named)
	}
	return json.Marshal([]string{r.From, r.To})
}

// Filter restricts a member. Values are JSON scalars.
type Filter struct {
	Member   string `json:"member"`
	Operator string `json:"operator"`
	Values   []any  `json:"values,omitempty"`
}

// Order sorts the result by a member.
type Order struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
}

// ParseQuery decodes a JSON query document.
func ParseQuery(data []byte) (Query, error) {
	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return Query{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if len(q.Measures) == 0 && len(q.Dimensions) == 0 && len(q.TimeDimensions) == 0 {
		return Query{}, fmt.Errorf("%w: query selects nothing", ErrInvalidQuery)
	}
	return q, nil
}

var (
	aggregations  = map[string]bool{"sum": true, "count": true, "avg": true, "min": true, "max": true}
	granularities = map[string]bool{"year": true, "month": true, "day": true, "hour": true, "minute": true, "second": true}
	templateRe    = regexp.MustCompile(`\$\{([^}]+)\}`)
)

// QueryBuilder turns queries into SQL for one schema and dialect.
type QueryBuilder struct {
	schema  Schema
	dialect Dialect
}

// NewQueryBuilder creates a builder over schema s.
func NewQueryBuilder(s Schema, d Dialect) *QueryBuilder {
	return &QueryBuilder{schema: s, dialect: d}
}

// Build renders q as a single SELECT statement.
func (b *QueryBuilder) Build(q Query) (string, error) {
	columns, err := b.columns(q)
	if err != nil {
		return "", err
	}
	main, err := b.mainTable(q)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(columns, ", "))
	fmt.Fprintf(&sb, " FROM `%s`", main.Table)

	joins, err := b.joins(main, q)
	if err != nil {
		return "", err
	}
	sb.WriteString(joins)

	where, having, err := b.conditions(q)
	if err != nil {
		return "", err
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	groupBy, err := b.groupBy(q)
	if err != nil {
		return "", err
	}
	if len(groupBy) > 0 {
		sb.WriteString(" GROUP BY " + strings.Join(groupBy, ", "))
	}
	if len(having) > 0 {
		sb.WriteString(" HAVING " + strings.Join(having, " AND "))
	}

	order, err := b.orderBy(q)
	if err != nil {
		return "", err
	}
	sb.WriteString(order)

	if q.Limit != nil {
		if *q.Limit < 0 {
			return "", fmt.Errorf("%w: negative limit", ErrInvalidQuery)
		}
		fmt.Fprintf(&sb, " LIMIT %d", *q.Limit)
	}
	return sb.String(), nil
}

func (b *QueryBuilder) columns(q Query) ([]string, error) {
	var cols []string
	seen := make(map[string]bool)
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}

	for _, member := range q.Dimensions {
		t, d, ok := b.schema.FindDimension(member)
		if !ok {
			return nil, fmt.Errorf("%w: dimension %q not found in schema", ErrInvalidQuery, member)
		}
		if d.SQL != "" {
			add(fmt.Sprintf("`%s`.`%s` AS %s", t.Table, d.SQL, d.Name))
		} else {
			add(d.Name)
		}
	}

	for _, member := range q.Measures {
		t, m, ok := b.schema.FindMeasure(member)
		if !ok {
			return nil, fmt.Errorf("%w: measure %q not found in schema", ErrInvalidQuery, member)
		}
		expr, err := measureExpr(t, m)
		if err != nil {
			return nil, err
		}
		add(expr + " AS " + m.Name)
	}

	for _, td := range q.TimeDimensions {
		if td.Granularity == "" {
			continue
		}
		if !granularities[td.Granularity] {
			return nil, fmt.Errorf("%w: unsupported granularity %q, supported granularities are: %s",
				ErrInvalidQuery, td.Granularity, strings.Join(sortedKeys(granularities), ", "))
		}
		t, d, ok := b.schema.FindDimension(td.Dimension)
		if !ok {
			return nil, fmt.Errorf("%w: dimension %q not found in schema", ErrInvalidQuery, td.Dimension)
		}
		add(fmt.Sprintf("%s AS %s_by_%s", b.dialect.truncate(columnRef(t, d), td.Granularity), d.Name, td.Granularity))
	}

	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: query selects nothing", ErrInvalidQuery)
	}
	return cols, nil
}

func measureExpr(t Table, m Measure) (string, error) {
	if !aggregations[m.Type] {
		return "", fmt.Errorf("%w: unsupported aggregation type %q for measure %q, supported types are: %s",
			ErrInvalidQuery, m.Type, m.Name, strings.Join(sortedKeys(aggregations), ", "))
	}
	if m.Type == "count" && m.SQL == "" {
		return "COUNT(*)", nil
	}
	col := m.SQL
	if col == "" {
		col = m.Name
	}
	return fmt.Sprintf("%s(`%s`.`%s`)", strings.ToUpper(m.Type), t.Table, col), nil
}

func columnRef(t Table, d Dimension) string {
	col := d.SQL
	if col == "" {
		col = d.Name
	}
	return fmt.Sprintf("`%s`.`%s`", t.Table, col)
}

func (b *QueryBuilder) mainTable(q Query) (Table, error) {
	var member string
	switch {
	case len(q.Measures) > 0:
		member = q.Measures[0]
	case len(q.Dimensions) > 0:
		member = q.Dimensions[0]
	case len(q.TimeDimensions) > 0:
		member = q.TimeDimensions[0].Dimension
	}
	name, _, _ := strings.Cut(member, ".")
	t, ok := b.schema.FindTable(name)
	if !ok {
		return Table{}, fmt.Errorf("%w: table not found in schema", ErrInvalidQuery)
	}
	return t, nil
}

// referencedTables returns the semantic table names used by q, sorted.
func referencedTables(q Query) []string {
	set := make(map[string]bool)
	add := func(member string) {
		name, _, _ := strings.Cut(member, ".")
		set[name] = true
	}
	for _, m := range q.Measures {
		add(m)
	}
	for _, d := range q.Dimensions {
		add(d)
	}
	for _, td := range q.TimeDimensions {
		add(td.Dimension)
	}
	for _, f := range q.Filters {
		add(f.Member)
	}
	return sortedKeys(set)
}

func (b *QueryBuilder) joins(main Table, q Query) (string, error) {
	var sb strings.Builder
	for _, name := range referencedTables(q) {
		if name == main.Name {
			continue
		}
		entry, ok := b.schema.FindTable(name)
		if !ok {
			return "", fmt.Errorf("%w: table %q not found in schema", ErrInvalidQuery, name)
		}
		join, ok := findJoin(entry, main)
		if !ok {
			continue
		}
		cond, err := b.resolveTemplate(join.SQL)
		if err != nil {
			return "", err
		}
		joinType := strings.ToUpper(join.JoinType)
		if joinType == "" {
			joinType = "INNER"
		}
		fmt.Fprintf(&sb, " %s JOIN `%s` ON %s", joinType, entry.Table, cond)
	}
	return sb.String(), nil
}

func findJoin(entry, main Table) (Join, bool) {
	for _, j := range entry.Joins {
		if j.Name == main.Name || j.Name == entry.Name {
			return j, true
		}
	}
	for _, j := range main.Joins {
		if j.Name == entry.Name {
			return j, true
		}
	}
	return Join{}, false
}

// resolveTemplate replaces ${Table.dimension} references with physical
// column references.
func (b *QueryBuilder) resolveTemplate(tpl string) (string, error) {
	var firstErr error
	out := templateRe.ReplaceAllStringFunc(tpl, func(match string) string {
		member := templateRe.FindStringSubmatch(match)[1]
		tableName, _, _ := strings.Cut(member, ".")
		if _, ok := b.schema.FindTable(tableName); !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: table %q not found in schema", ErrInvalidQuery, tableName)
			}
			return match
		}
		t, d, ok := b.schema.FindDimension(member)
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: column %q not found in schema", ErrInvalidQuery, member)
			}
			return match
		}
		return columnRef(t, d)
	})
	return out, firstErr
}

func (b *QueryBuilder) conditions(q Query) (where, having []string, err error) {
	for _, f := range q.Filters {
		if _, _, ok := b.schema.FindDimension(f.Member); ok {
			cond, err := b.filter(f)
			if err != nil {
				return nil, nil, err
			}
			where = append(where, cond)
			continue
		}
		if _, _, ok := b.schema.FindMeasure(f.Member); ok {
			cond, err := b.filter(f)
			if err != nil {
				return nil, nil, err
			}
			having = append(having, cond)
			continue
		}
		return nil, nil, fmt.Errorf("%w: member %q not found in schema", ErrInvalidQuery, f.Member)
	}

	for _, td := range q.TimeDimensions {
		if td.DateRange == nil {
			continue
		}
		t, d, ok := b.schema.FindDimension(td.Dimension)
		if !ok {
			return nil, nil, fmt.Errorf("%w: dimension %q not found in schema", ErrInvalidQuery, td.Dimension)
		}
		cond, err := b.dateRange(columnRef(t, d), *td.DateRange)
		if err != nil {
			return nil, nil, err
		}
		where = append(where, cond)
	}
	return where, having, nil
}

func (b *QueryBuilder) dateRange(col string, r DateRange) (string, error) {
	if r.Named == "" {
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, quote(r.From), quote(r.To)), nil
	}
	cond, ok := b.dialect.namedRange(col, r.Named)
	if !ok {
		return "", fmt.Errorf("%w: unsupported date range %q", ErrInvalidQuery, r.Named)
	}
	return cond, nil
}

var (
	comparisonOps = map[string]string{
		"gt": ">", "gte": ">=", "lt": "<", "lte": "<=",
		"beforeDate": "<", "afterDate": ">",
	}
	patternOps = map[string]string{
		"contains": "LIKE", "notContains": "NOT LIKE", "startsWith": "LIKE", "endsWith": "LIKE",
	}
)

func (b *QueryBuilder) filter(f Filter) (string, error) {
	if f.Member == "" || f.Operator == "" {
		return "", fmt.Errorf("%w: invalid filter %+v", ErrInvalidQuery, f)
	}
	if len(f.Values) == 0 && f.Operator != "set" && f.Operator != "notSet" {
		return "", fmt.Errorf("%w: invalid filter %+v", ErrInvalidQuery, f)
	}

	var col string
	if t, d, ok := b.schema.FindDimension(f.Member); ok {
		col = columnRef(t, d)
	} else if t, m, ok := b.schema.FindMeasure(f.Member); ok {
		expr, err := measureExpr(t, m)
		if err != nil {
			return "", err
		}
		col = expr
	} else {
		return "", fmt.Errorf("%w: member %q not found in schema", ErrInvalidQuery, f.Member)
	}

	switch op := f.Operator; {
	case op == "equals" || op == "notEquals":
		if len(f.Values) == 1 {
			sym := "="
			if op == "notEquals" {
				sym = "!="
			}
			return fmt.Sprintf("%s %s %s", col, sym, quote(f.Values[0])), nil
		}
		kw := "IN"
		if op == "notEquals" {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, kw, quoteAll(f.Values)), nil

	case patternOps[op] != "":
		v := scalarText(f.Values[0])
		pattern := "%" + v + "%"
		switch op {
		case "startsWith":
			pattern = v + "%"
		case "endsWith":
			pattern = "%" + v
		}
		return fmt.Sprintf("%s %s %s", col, patternOps[op], quote(pattern)), nil

	case comparisonOps[op] != "":
		return fmt.Sprintf("%s %s %s", col, comparisonOps[op], literal(f.Values[0])), nil

	case op == "set":
		return col + " IS NOT NULL", nil
	case op == "notSet":
		return col + " IS NULL", nil

	case op == "inDateRange" || op == "notInDateRange":
		if len(f.Values) != 2 {
			return "", fmt.Errorf("%w: invalid number of values for %q operator", ErrInvalidQuery, op)
		}
		kw := "BETWEEN"
		if op == "notInDateRange" {
			kw = "NOT BETWEEN"
		}
		return fmt.Sprintf("%s %s %s AND %s", col, kw, quote(f.Values[0]), quote(f.Values[1])), nil
	}
	return "", fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Operator)
}

func (b *QueryBuilder) groupBy(q Query) ([]string, error) {
	var out []string
	for _, member := range q.Dimensions {
		_, d, ok := b.schema.FindDimension(member)
		if !ok {
			return nil, fmt.Errorf("%w: dimension %q not found in schema", ErrInvalidQuery, member)
		}
		out = append(out, d.Name)
	}
	for _, td := range q.TimeDimensions {
		if td.Granularity == "" {
			continue
		}
		_, d, _ := b.schema.FindDimension(td.Dimension)
		out = append(out, d.Name+"_by_"+td.Granularity)
	}
	return out, nil
}

func (b *QueryBuilder) orderBy(q Query) (string, error) {
	if len(q.Order) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(q.Order))
	for _, o := range q.Order {
		var name string
		if _, m, ok := b.schema.FindMeasure(o.ID); ok {
			name = m.Name
		} else if _, d, ok := b.schema.FindDimension(o.ID); ok {
			name = d.Name
		} else {
			return "", fmt.Errorf("%w: order member %q not found in schema", ErrInvalidQuery, o.ID)
		}
		dir := strings.ToUpper(o.Direction)
		if dir == "" {
			dir = "ASC"
		}
		if dir != "ASC" && dir != "DESC" {
			return "", fmt.Errorf("%w: invalid order direction %q", ErrInvalidQuery, o.Direction)
		}
		parts = append(parts, name+" "+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func scalarText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

func quote(v any) string {
	return "'" + strings.ReplaceAll(scalarText(v), "'", "''") + "'"
}

func quoteAll(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = quote(v)
	}
	return strings.Join(parts, ", ")
}

// literal leaves numbers bare and quotes everything else.
func literal(v any) string {
	switch v.(type) {
	case float64, int, int64:
		return scalarText(v)
	}
	return quote(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
