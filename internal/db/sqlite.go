// Package db opens the local SQLite audit store and applies its migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Mode selects how a store handle is tuned.
type Mode string

// Handle modes. The writer is a single connection with immediate
// transactions; readers share a small pool.
const (
	ModeWrite Mode = "write"
	ModeRead  Mode = "read"
)

const defaultReaders = 4

// Open opens a handle on the SQLite file at path. Every handle runs in WAL
// mode with a 5 s busy timeout and foreign keys on.
func Open(path string, mode Mode, maxReaders int) (*sql.DB, error) {
	if mode != ModeRead && mode != ModeWrite {
		return nil, fmt.Errorf("invalid store mode %q", mode)
	}

	db, err := sql.Open("sqlite3", dsn(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open audit store (%s): %w", mode, err)
	}

	conns := 1
	if mode == ModeRead {
		conns = maxReaders
		if conns <= 0 {
			conns = defaultReaders
		}
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit store (%s): %w", mode, err)
	}
	return db, nil
}

// OpenPair opens the writer and a reader pool on the same file.
func OpenPair(path string, maxReaders int) (writeDB, readDB *sql.DB, err error) {
	writeDB, err = Open(path, ModeWrite, 0)
	if err != nil {
		return nil, nil, err
	}
	readDB, err = Open(path, ModeRead, maxReaders)
	if err != nil {
		_ = writeDB.Close()
		return nil, nil, err
	}
	return writeDB, readDB, nil
}

func dsn(path string, mode Mode) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_synchronous", "NORMAL")
	params.Set("_foreign_keys", "on")
	if mode == ModeWrite {
		params.Set("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}
