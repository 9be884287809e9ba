package index

import (
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/starford/notebundle/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "notebundle-test-*.db")
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
	for _, table := range []string{"documents", "attachments", "refs"} {
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertAndGetDocument(t *testing.T) {
	db := testDB(t)
	row := DocumentRow{
		Path:        "trip.pkg",
		Title:       "Trip",
		Snippet:     "Packed bags",
		Tags:        []string{"travel"},
		Checksum:    "abc123",
		Attachments: 1,
		UpdatedAt:   time.Now(),
	}
	atts := []AttachmentRow{{Name: "map.loc", Type: "com.starford.notebundle.location", Size: 30, IsLocation: true}}
	if err := db.UpsertDocument(row, "Packed bags", nil, atts); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	cs, err := db.GetChecksum("trip.pkg")
	if err != nil || cs != "abc123" {
		t.Errorf("checksum = %q, %v", cs, err)
	}
	got, err := db.GetDocument("trip.pkg")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Title != "Trip" || got.Attachments != 1 || !slices.Equal(got.Tags, []string{"travel"}) {
		t.Errorf("document = %+v", got)
	}
	list, err := db.Attachments("trip.pkg")
	if err != nil || len(list) != 1 || !list[0].IsLocation || list[0].Document != "trip.pkg" {
		t.Errorf("attachments = %+v, %v", list, err)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetDocument("missing.pkg"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	cs, err := db.GetChecksum("missing.pkg")
	if err != nil || cs != "" {
		t.Errorf("checksum = %q, %v", cs, err)
	}
}

func TestUpsertReplacesChildren(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertDocument(DocumentRow{Path: "a.pkg", Title: "Old", Checksum: "1", UpdatedAt: now}, "old", []string{"X"},
		[]AttachmentRow{{Name: "one.txt"}, {Name: "two.txt"}})
	_ = db.UpsertDocument(DocumentRow{Path: "a.pkg", Title: "New", Checksum: "2", UpdatedAt: now}, "new", []string{"Y"},
		[]AttachmentRow{{Name: "three.txt"}})

	if bl, _ := db.Backlinks("X"); len(bl) != 0 {
		t.Error("old reference should be removed on upsert")
	}
	if bl, _ := db.Backlinks("Y"); !slices.Equal(bl, []string{"a.pkg"}) {
		t.Errorf("backlinks = %v", bl)
	}
	list, _ := db.Attachments("a.pkg")
	if len(list) != 1 || list[0].Name != "three.txt" {
		t.Errorf("attachments = %+v", list)
	}
}

func TestDeleteDocument(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{Path: "del.pkg", Checksum: "x", UpdatedAt: time.Now()}, "body", []string{"Target"},
		[]AttachmentRow{{Name: "map.loc", IsLocation: true}})

	if err := db.DeleteDocument("del.pkg"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if cs, _ := db.GetChecksum("del.pkg"); cs != "" {
		t.Errorf("deleted document still has checksum %q", cs)
	}
	if bl, _ := db.Backlinks("Target"); len(bl) != 0 {
		t.Errorf("expected 0 backlinks after delete, got %d", len(bl))
	}
	if locs, _ := db.Locations(); len(locs) != 0 {
		t.Errorf("expected no locations after delete, got %+v", locs)
	}
}

func TestListDocuments(t *testing.T) {
	db := testDB(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = db.UpsertDocument(DocumentRow{Path: "b.pkg", Title: "beta", Tags: []string{"work"}, Checksum: "1", UpdatedAt: base}, "", nil, nil)
	_ = db.UpsertDocument(DocumentRow{Path: "a.pkg", Title: "Alpha", Tags: []string{"home"}, Checksum: "2", UpdatedAt: base.Add(time.Hour)}, "", nil, nil)
	_ = db.UpsertDocument(DocumentRow{Path: "c.pkg", Title: "gamma", Tags: []string{"work", "home"}, Checksum: "3", UpdatedAt: base.Add(2 * time.Hour)}, "", nil, nil)

	rows, total, err := db.ListDocuments(10, 0, "", "")
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if total != 3 || len(rows) != 3 || rows[0].Path != "c.pkg" {
		t.Errorf("default order = %+v (total %d)", rows, total)
	}

	rows, _, _ = db.ListDocuments(10, 0, "", "title")
	if rows[0].Title != "Alpha" || rows[1].Title != "beta" {
		t.Errorf("title order = %v, %v", rows[0].Title, rows[1].Title)
	}

	rows, total, _ = db.ListDocuments(1, 0, "work", "title")
	if total != 2 || len(rows) != 1 || rows[0].Path != "b.pkg" {
		t.Errorf("tag page = %+v (total %d)", rows, total)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{Path: "s.pkg", Title: "Search Me", Checksum: "1", UpdatedAt: time.Now()}, "uniqueword appears here", nil, nil)

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.pkg" {
		t.Errorf("search results = %+v, want 1 hit for s.pkg", results)
	}
}

func TestSearch_AttachmentNames(t *testing.T) {
	db := testDB(t)
	atts := []AttachmentRow{{Name: "map.loc", Type: "com.starford.notebundle.location", Size: 24, IsLocation: true}}
	if err := db.UpsertDocument(DocumentRow{Path: "trip.pkg", Title: "Trip", Checksum: "1", UpdatedAt: time.Now()}, "pack sunscreen", nil, atts); err != nil {
		t.Fatal(err)
	}

	results, err := db.Search("map.loc", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "trip.pkg" {
		t.Errorf("search results = %+v, want trip.pkg", results)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{Path: "a.pkg", Title: "A", Checksum: "1", UpdatedAt: time.Now()}, "body", nil, nil)

	results, err := db.Search("   ", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("results = %#v, want empty slice", results)
	}
}
