// Package db persists tracking output in SQLite: confirmed falls, track
// lifecycle events, and per-frame observations. The schema is managed by
// versioned migrations embedded in the binary.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle with the fallwatch schema helpers.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// session pragmas. The schema is left untouched; see OpenAndMigrate.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &DB{sqlDB}, nil
}

// OpenAndMigrate opens the database and brings the schema up to the latest
// embedded migration version.
func OpenAndMigrate(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}

	fsys, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(fsys); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// TableCounts reports row counts for the event and observation tables.
func (db *DB) TableCounts() (map[string]int64, error) {
	counts := make(map[string]int64, 3)
	for _, table := range []string{"fall_events", "track_events", "track_observations"} {
		var n int64
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// AttachAdminRoutes mounts database maintenance endpoints on mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/db/backup", db.handleBackup)
}

// handleBackup snapshots the live database with VACUUM INTO and streams
// the snapshot back gzip-compressed. The snapshot file is removed once
// it has been sent.
func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	if _, err := db.DB.Exec("VACUUM INTO ?", name); err != nil {
		http.Error(w, fmt.Sprintf("backup failed: %v", err), http.StatusInternalServerError)
		return
	}

	snapshot, err := os.Open(name)
	if err != nil {
		http.Error(w, fmt.Sprintf("backup unreadable: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		snapshot.Close()
		if err := os.Remove(name); err != nil {
			log.Printf("Failed to remove backup snapshot %s: %v", name, err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	// Headers are out the door once the copy starts; a failure mid-stream
	// can only be logged.
	if _, err := io.Copy(gz, snapshot); err != nil {
		log.Printf("Backup download aborted: %v", err)
	}
}
