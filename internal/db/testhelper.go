package db

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

// OpenTestStore opens a migrated audit store in t.TempDir() and closes it on
// cleanup.
func OpenTestStore(t *testing.T) (writeDB, readDB *sql.DB) {
	t.Helper()

	writeDB, readDB, err := OpenPair(filepath.Join(t.TempDir(), "audit.sqlite"), 2)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})

	if err := Migrate(context.Background(), writeDB, discardLogger()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	return writeDB, readDB
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
