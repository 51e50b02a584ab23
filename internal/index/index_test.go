package index

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/keyshift/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "keyshift-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM charts`).Scan(&count); err != nil {
		t.Fatalf("charts table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM conversions`).Scan(&count); err != nil {
		t.Fatalf("conversions table missing: %v", err)
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := ChartRow{
		Path:     "songs/a.yaml",
		Title:    "Song A",
		Keys:     7,
		Notes:    120,
		Holds:    12,
		Checksum: "abc123",
	}
	if err := db.UpsertChart(row); err != nil {
		t.Fatalf("UpsertChart: %v", err)
	}
	cs, err := db.GetChecksum("songs/a.yaml")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}

	got, err := db.GetChart("songs/a.yaml")
	if err != nil {
		t.Fatalf("GetChart: %v", err)
	}
	if got.Title != "Song A" || got.Keys != 7 || got.Notes != 120 || got.Holds != 12 {
		t.Errorf("row = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("updated_at not set")
	}
}

func TestGetChart_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetChart("missing.yaml"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	cs, err := db.GetChecksum("missing.yaml")
	if err != nil || cs != "" {
		t.Errorf("GetChecksum = %q, %v", cs, err)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertChart(ChartRow{Path: "up.yaml", Title: "Old", Keys: 4, Checksum: "1"})
	_ = db.UpsertChart(ChartRow{Path: "up.yaml", Title: "New", Keys: 7, Checksum: "2"})

	got, err := db.GetChart("up.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "New" || got.Keys != 7 || got.Checksum != "2" {
		t.Errorf("row = %+v", got)
	}
}

func TestDeleteChart(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertChart(ChartRow{Path: "del.yaml", Checksum: "x"})
	if err := db.DeleteChart("del.yaml"); err != nil {
		t.Fatalf("DeleteChart: %v", err)
	}
	paths, _ := db.AllPaths()
	if _, ok := paths["del.yaml"]; ok {
		t.Error("deleted chart still listed")
	}
}

func TestListCharts(t *testing.T) {
	db := testDB(t)
	rows := []ChartRow{
		{Path: "c.yaml", Title: "charlie", Keys: 4, Notes: 10, Checksum: "c"},
		{Path: "a.yaml", Title: "alpha", Keys: 7, Notes: 30, Checksum: "a"},
		{Path: "b.yaml", Title: "Bravo", Keys: 4, Notes: 20, Checksum: "b"},
	}
	for _, r := range rows {
		if err := db.UpsertChart(r); err != nil {
			t.Fatal(err)
		}
	}

	all, total, err := db.ListCharts(10, 0, 0, "")
	if err != nil {
		t.Fatalf("ListCharts: %v", err)
	}
	if total != 3 || len(all) != 3 || all[0].Path != "a.yaml" {
		t.Errorf("list = %+v (total %d)", all, total)
	}

	fours, total, err := db.ListCharts(10, 0, 4, "notes")
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(fours) != 2 || fours[0].Path != "b.yaml" {
		t.Errorf("4K by notes = %+v", fours)
	}

	page, total, _ := db.ListCharts(1, 1, 0, "title")
	if total != 3 || len(page) != 1 || page[0].Title != "Bravo" {
		t.Errorf("page = %+v", page)
	}

	if _, _, err := db.ListCharts(10, 0, 0, "bogus"); !errors.Is(err, apperr.ErrInvalidOptions) {
		t.Error("unknown sort should fail")
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertChart(ChartRow{Path: "s.yaml", Title: "Uniqueword Anthem", Artist: "Someone", Version: "Hard", Checksum: "1"})
	_ = db.UpsertChart(ChartRow{Path: "t.yaml", Title: "Other", Checksum: "2"})

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.yaml" {
		t.Errorf("search results = %+v, want 1 hit for s.yaml", results)
	}
}

func TestConversions(t *testing.T) {
	db := testDB(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, src := range []string{"a.yaml", "b.yaml", "a.yaml"} {
		err := db.RecordConversion(ConversionRow{
			ID:        string(rune('x' + i)),
			Kind:      "keys",
			Source:    src,
			Target:    src + ".out",
			Seed:      int64(i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordConversion: %v", err)
		}
	}

	all, err := db.ListConversions("", 0)
	if err != nil {
		t.Fatalf("ListConversions: %v", err)
	}
	if len(all) != 3 || all[0].ID != "z" {
		t.Errorf("all = %+v", all)
	}
	if all[0].Options != "{}" {
		t.Errorf("default options = %q", all[0].Options)
	}

	forA, _ := db.ListConversions("a.yaml", 10)
	if len(forA) != 2 || forA[1].Seed != 0 {
		t.Errorf("a.yaml history = %+v", forA)
	}

	if err := db.RecordConversion(ConversionRow{ID: "x", Kind: "keys"}); err == nil {
		t.Error("duplicate id should fail")
	}
}
