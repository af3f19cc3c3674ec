package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/sitebeacon/sitebeacon-go/internal/domain/analytics"
	"github.com/sitebeacon/sitebeacon-go/internal/infrastructure/persistence/database"
	"github.com/sitebeacon/sitebeacon-go/pkg/config"
)

// RunSQLQuery executes one guarded read-only query against the tenant's log.
// Only a single SELECT statement is accepted; anything else is rejected
// inline without touching the database. Row counts are capped regardless of
// the requested limit. Failures come back inside the result, never as an
// error, so a bad dashboard query cannot take the actor down.
func (s *EventStore) RunSQLQuery(query string, limit int) *analytics.SQLQueryResult {
	if limit <= 0 {
		limit = config.SQLQueryDefaultRows
	}
	if limit > config.SQLQueryMaxRows {
		limit = config.SQLQueryMaxRows
	}

	cleaned, err := validateSelectOnly(query)
	if err != nil {
		s.logger.Database().Warn("Rejected ad-hoc query",
			"siteId", s.siteID, "reason", err.Error())
		return &analytics.SQLQueryResult{Success: false, Limit: limit, Error: err.Error()}
	}

	wrapped := fmt.Sprintf("SELECT * FROM (%s) LIMIT %d", cleaned, limit)

	start := time.Now()
	rows, err := s.db.Query(wrapped)
	if err != nil {
		return &analytics.SQLQueryResult{Success: false, Limit: limit, Error: err.Error()}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return &analytics.SQLQueryResult{Success: false, Limit: limit, Error: err.Error()}
	}

	result := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return &analytics.SQLQueryResult{Success: false, Limit: limit, Error: err.Error()}
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return &analytics.SQLQueryResult{Success: false, Limit: limit, Error: err.Error()}
	}
	database.CheckAndLogSlowQuery(s.logger, wrapped, time.Since(start), s.siteID)

	return &analytics.SQLQueryResult{
		Success:  true,
		Rows:     result,
		RowCount: len(result),
		Limit:    limit,
	}
}

// validateSelectOnly accepts exactly one SELECT statement and returns it
// without a trailing semicolon.
func validateSelectOnly(query string) (string, error) {
	cleaned := strings.TrimSpace(query)
	cleaned = strings.TrimSuffix(cleaned, ";")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return "", fmt.Errorf("query is empty")
	}
	if strings.Contains(cleaned, ";") {
		return "", fmt.Errorf("only a single statement is allowed")
	}
	first := strings.ToUpper(strings.Fields(cleaned)[0])
	if first != "SELECT" {
		return "", fmt.Errorf("only SELECT queries are allowed")
	}
	return cleaned, nil
}

// GetSchema reflects the tenant log's tables and columns for the query UI.
func (s *EventStore) GetSchema() (*analytics.SchemaResult, error) {
	rows, err := s.db.Query(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table listing iteration failed: %w", err)
	}

	tables := []analytics.SchemaTable{}
	for _, name := range names {
		columns, err := s.tableColumns(name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, analytics.SchemaTable{Name: name, Columns: columns})
	}

	return &analytics.SchemaResult{Success: true, Tables: tables, SiteID: s.siteID}, nil
}

func (s *EventStore) tableColumns(table string) ([]analytics.SchemaColumn, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	columns := []analytics.SchemaColumn{}
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal any
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		columns = append(columns, analytics.SchemaColumn{Name: name, Type: typ})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("column iteration failed for %s: %w", table, err)
	}
	return columns, nil
}
