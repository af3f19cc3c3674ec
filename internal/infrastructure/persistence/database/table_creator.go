// Package database provides tenant log instantiation.
package database

import (
	"database/sql"
	"fmt"
)

var tables = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		site_id TEXT NOT NULL,
		tag_id TEXT NOT NULL,
		event TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		page_url TEXT,
		client_page_url TEXT,
		referer TEXT,
		rid TEXT,
		browser TEXT,
		operating_system TEXT,
		device_type TEXT,
		screen_width INTEGER,
		screen_height INTEGER,
		country TEXT,
		region TEXT,
		city TEXT,
		postal TEXT,
		bot_data TEXT,
		query_params TEXT,
		custom_data TEXT
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_rid ON events(rid)`,
	`CREATE INDEX IF NOT EXISTS idx_events_event ON events(event)`,
	`CREATE INDEX IF NOT EXISTS idx_events_event_created ON events(event, created_at)`,
}

// TableCreator handles the creation of the event log schema for a tenant.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tenant's event log
// tables and indexes. Idempotent; safe to run on every actor spawn.
func (tc *TableCreator) CreateSchema(db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.Exec(tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}
