package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			device_eui TEXT NOT NULL,
			device_id TEXT,
			victim_name TEXT,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			battery_level REAL NOT NULL,
			timestamp DATETIME NOT NULL,
			state TEXT NOT NULL,
			activation_count INTEGER NOT NULL,
			last_activation_at DATETIME NOT NULL,
			urgency_level TEXT NOT NULL,
			recurrent INTEGER NOT NULL DEFAULT 0,
			assigned_patrol_id TEXT,
			taken_at DATETIME,
			en_route_at DATETIME,
			resolved_at DATETIME,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS users (
			uid TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			name TEXT,
			role TEXT NOT NULL,
			dni TEXT,
			device_id TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_device_eui ON alerts(device_eui);
		CREATE INDEX IF NOT EXISTS idx_alerts_state ON alerts(state);
		CREATE INDEX IF NOT EXISTS idx_users_device_id ON users(device_id);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
