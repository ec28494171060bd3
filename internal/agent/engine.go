package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kalambet/semagent/internal/dataset"
	"github.com/kalambet/semagent/internal/semantic"
	"github.com/kalambet/semagent/internal/storage"
)

// Result is the outcome of RunQuery.
type Result struct {
	LogID   string   `json:"log_id"`
	SQL     string   `json:"sql"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// queryEngine is a private in-memory SQLite database holding the agent's
// dataset plus one view per schema table mapped to another physical name.
type queryEngine struct {
	db *sql.DB
}

// InitQueryEngine loads the dataset into an in-memory SQL engine. Calling it
// again is a no-op.
func (a *SemanticAgent) InitQueryEngine(ctx context.Context) error {
	a.engineMu.Lock()
	defer a.engineMu.Unlock()
	if a.engine != nil {
		return nil
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("opening query engine: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := loadDataset(ctx, db, a.dataset); err != nil {
		db.Close()
		return err
	}
	if err := createViews(ctx, db, a.dataset.Name(), a.schema); err != nil {
		db.Close()
		return err
	}

	a.engine = &queryEngine{db: db}
	a.logger.Debug("query engine ready", "dataset", a.dataset.Name(), "rows", a.dataset.Len())
	return nil
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func loadDataset(ctx context.Context, db *sql.DB, ds *dataset.Dataset) error {
	cols := ds.Columns()
	defs := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quoteIdent(c.Name) + " " + c.Kind.SQLType()
		marks[i] = "?"
	}
	table := quoteIdent(ds.Name())
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < ds.Len(); i++ {
		row := ds.Row(i)
		for j, v := range row {
			row[j] = sqlValue(v)
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("inserting row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func sqlValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return dataset.FormatValue(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

// createViews aliases the dataset table under every physical name the
// schema uses, so generated SQL runs against the single loaded table.
func createViews(ctx context.Context, db *sql.DB, datasetName string, s semantic.Schema) error {
	seen := map[string]bool{strings.ToLower(datasetName): true}
	for _, t := range s {
		key := strings.ToLower(t.Table)
		if t.Table == "" || seen[key] {
			continue
		}
		seen[key] = true
		q := fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM %s", quoteIdent(t.Table), quoteIdent(datasetName))
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("creating view %s: %w", t.Table, err)
		}
	}
	return nil
}

// BuildSQL compiles a semantic query in JSON form to SQL for dialect d.
func (a *SemanticAgent) BuildSQL(queryJSON string, d semantic.Dialect) (string, error) {
	q, err := semantic.ParseQuery([]byte(queryJSON))
	if err != nil {
		return "", err
	}
	return semantic.NewQueryBuilder(a.schema, d).Build(q)
}

// RunQuery compiles queryJSON and executes it on the query engine, which is
// initialized on first use. The outcome is recorded as the agent's last
// query and, when a query log store is set, persisted.
func (a *SemanticAgent) RunQuery(ctx context.Context, queryJSON string) (*Result, error) {
	id := uuid.NewString()
	start := time.Now()

	res, sqlText, err := a.runQuery(ctx, queryJSON)
	a.tracker.record(id, err)

	entry := storage.QueryLog{
		ID:         id,
		CreatedAt:  start,
		Dataset:    a.dataset.Name(),
		QueryJSON:  queryJSON,
		SQL:        sqlText,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     storage.StatusSucceeded,
	}
	if err != nil {
		entry.Status, entry.Error = storage.StatusFailed, err.Error()
	} else {
		entry.RowCount = len(res.Rows)
		res.LogID = id
	}
	if a.logs != nil {
		if lerr := a.logs.SaveQueryLog(ctx, entry); lerr != nil {
			a.logger.Warn("saving query log failed", "id", id, "error", lerr)
		}
	}

	if err != nil {
		a.logger.Warn("query failed", "id", id, "error", err)
		return nil, err
	}
	a.logger.Info("query executed", "id", id, "rows", entry.RowCount, "duration_ms", entry.DurationMs)
	return res, nil
}

func (a *SemanticAgent) runQuery(ctx context.Context, queryJSON string) (*Result, string, error) {
	sqlText, err := a.BuildSQL(queryJSON, semantic.DialectSQLite)
	if err != nil {
		return nil, "", err
	}
	if err := a.InitQueryEngine(ctx); err != nil {
		return nil, sqlText, err
	}

	rows, err := a.engine.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, sqlText, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, sqlText, err
	}
	res := &Result{SQL: sqlText, Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, sqlText, fmt.Errorf("scanning row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlText, err
	}
	return res, sqlText, nil
}

// Close releases the query engine.
func (a *SemanticAgent) Close() error {
	a.engineMu.Lock()
	defer a.engineMu.Unlock()
	if a.engine == nil {
		return nil
	}
	err := a.engine.db.Close()
	a.engine = nil
	return err
}

// MarshalRows renders a result as a list of column-keyed objects.
func (r *Result) MarshalRows() ([]byte, error) {
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		m := make(map[string]any, len(r.Columns))
		for j, c := range r.Columns {
			m[c] = row[j]
		}
		out[i] = m
	}
	return json.Marshal(out)
}
