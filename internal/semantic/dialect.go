package semantic

import "fmt"

// Dialect selects the SQL flavor for date handling.
type Dialect int

const (
	// DialectPostgres emits EXTRACT/TO_CHAR/DATE_TRUNC expressions.
	DialectPostgres Dialect = iota
	// DialectSQLite emits strftime/date() expressions for the local engine.
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectSQLite:
		return "sqlite"
	}
	return fmt.Sprintf("dialect(%d)", int(d))
}

func (d Dialect) truncate(col, granularity string) string {
	if d == DialectSQLite {
		switch granularity {
		case "year":
			return fmt.Sprintf("CAST(strftime('%%Y', %s) AS INTEGER)", col)
		case "month":
			return fmt.Sprintf("strftime('%%Y-%%m', %s)", col)
		case "day":
			return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", col)
		case "hour":
			return fmt.Sprintf("CAST(strftime('%%H', %s) AS INTEGER)", col)
		case "minute":
			return fmt.Sprintf("CAST(strftime('%%M', %s) AS INTEGER)", col)
		case "second":
			return fmt.Sprintf("CAST(strftime('%%S', %s) AS INTEGER)", col)
		}
		return col
	}

	switch granularity {
	case "year":
		return fmt.Sprintf("EXTRACT(YEAR FROM %s)", col)
	case "month":
		return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM')", col)
	case "day":
		return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", col)
	case "hour":
		return fmt.Sprintf("EXTRACT(HOUR FROM %s)", col)
	case "minute":
		return fmt.Sprintf("EXTRACT(MINUTE FROM %s)", col)
	case "second":
		return fmt.Sprintf("EXTRACT(SECOND FROM %s)", col)
	}
	return col
}

// namedRange renders a half-open [start, end) condition for a named range.
func (d Dialect) namedRange(col, name string) (string, bool) {
	var start, end string
	if d == DialectSQLite {
		switch name {
		case "today":
			start, end = "date('now')", "date('now', '+1 day')"
		case "this week":
			start, end = "date('now', 'weekday 0', '-6 days')", "date('now', 'weekday 0', '+1 day')"
		case "last week":
			start, end = "date('now', '-7 days')", "date('now')"
		case "this month":
			start, end = "date('now', 'start of month')", "date('now', 'start of month', '+1 month')"
		case "last month":
			start, end = "date('now', '-1 month')", "date('now')"
		case "this year":
			start, end = "date('now', 'start of year')", "date('now', 'start of year', '+1 year')"
		case "last year":
			start, end = "date('now', 'start of year', '-1 year')", "date('now', 'start of year')"
		default:
			return "", false
		}
	} else {
		switch name {
		case "today":
			start, end = "DATE_TRUNC('day', CURRENT_DATE)", "DATE_TRUNC('day', CURRENT_DATE) + INTERVAL '1 day'"
		case "this week":
			start, end = "DATE_TRUNC('week', CURRENT_DATE)", "DATE_TRUNC('week', CURRENT_DATE) + INTERVAL '1 week'"
		case "last week":
			start, end = "CURRENT_DATE - INTERVAL '1 week'", "CURRENT_DATE"
		case "this month":
			start, end = "DATE_TRUNC('month', CURRENT_DATE)", "DATE_TRUNC('month', CURRENT_DATE) + INTERVAL '1 month'"
		case "last month":
			start, end = "CURRENT_DATE - INTERVAL '1 month'", "CURRENT_DATE"
		case "this year":
			start, end = "DATE_TRUNC('year', CURRENT_DATE)", "DATE_TRUNC('year', CURRENT_DATE) + INTERVAL '1 year'"
		case "last year":
			start, end = "DATE_TRUNC('year', CURRENT_DATE - INTERVAL '1 year')", "DATE_TRUNC('year', CURRENT_DATE)"
		default:
			return "", false
		}
	}
	return fmt.Sprintf("%s >= %s AND %s < %s", col, start, col, end), true
}
