package search

import (
	"testing"

	"orgpulse/internal/pipeline"
)

func testSignals() []pipeline.Signal {
	return []pipeline.Signal{
		{ID: "s1", Type: "slack", Title: "#infra", Content: "postgres failover drill scheduled for friday"},
		{ID: "s2", Type: "email", Title: "Budget", Content: "platform budget cut by twenty percent"},
		{ID: "s3", Type: "meeting", Title: "Q3 Planning", Content: "we agreed to ship the migration in june"},
	}
}

func TestAddAndSearch(t *testing.T) {
	idx, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	for _, sig := range testSignals() {
		if err := idx.Add(sig); err != nil {
			t.Fatalf("Add %s: %v", sig.ID, err)
		}
	}

	hits, err := idx.Search("postgres", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "s1" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestAddAllBatch(t *testing.T) {
	idx, err := NewIndex()
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.AddAll(testSignals()); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	hits, err := idx.Search("budget", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "s2" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestSearchTitleField(t *testing.T) {
	idx, _ := NewIndex()
	if err := idx.AddAll(testSignals()); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search("title:planning", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "s3" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestSearchLimit(t *testing.T) {
	idx, _ := NewIndex()
	signals := []pipeline.Signal{
		{ID: "a", Content: "deadline moved"},
		{ID: "b", Content: "deadline confirmed"},
		{ID: "c", Content: "deadline slipped"},
	}
	if err := idx.AddAll(signals); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search("deadline", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("limit not applied: %d hits", len(hits))
	}
}

func TestReindexReplacesDocument(t *testing.T) {
	idx, _ := NewIndex()
	sig := pipeline.Signal{ID: "s1", Content: "original wording"}
	if err := idx.Add(sig); err != nil {
		t.Fatal(err)
	}
	sig.Content = "revised wording"
	if err := idx.Add(sig); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search("original", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Fatalf("stale document still indexed: %+v", hits)
	}
}
