// Package testutil provides shared test helpers for setting up chart
// libraries and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/keyshift/internal/index"
	"github.com/starford/keyshift/internal/storage"
)

// SampleChart is a small valid 4K chart document: eight rows of taps and
// one hold.
const SampleChart = `title: Sample
artist: Tester
version: 4K Normal
keys: 4
bpm: 120
timing_points: [{time: 0, beat_length: 500}]
notes:
  - {time: 0, column: 0}
  - {time: 250, column: 1}
  - {time: 500, column: 2}
  - {time: 750, column: 3}
  - {time: 1000, end: 1500, column: 0}
  - {time: 1000, column: 2}
  - {time: 1250, column: 1}
  - {time: 1500, column: 3}
  - {time: 2000, column: 0}
`

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "keyshift-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLibrary creates a temporary library directory with a storage.Provider.
func TestLibrary(t *testing.T) (string, storage.Provider) {
	t.Helper()
	libDir := t.TempDir()
	store, err := storage.NewFS(libDir)
	if err != nil {
		t.Fatal(err)
	}
	return libDir, store
}

// WriteChart writes content to rel under dir, creating parent directories.
func WriteChart(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
