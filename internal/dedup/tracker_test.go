package dedup

import (
	"testing"

	"ghnotifyd/internal/github"
)

func items(ids ...string) []github.Notification {
	out := make([]github.Notification, 0, len(ids))
	for _, id := range ids {
		out = append(out, github.Notification{ID: id})
	}
	return out
}

func idsOf(in []github.Notification) []string {
	out := make([]string, 0, len(in))
	for _, it := range in {
		out = append(out, it.ID)
	}
	return out
}

func TestFilterNewPreservesOrder(t *testing.T) {
	tr := New()
	got := tr.FilterNew(items("c", "a", "b"))
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i, id := range idsOf(got) {
		if id != want[i] {
			t.Fatalf("position %d: got %q, want %q", i, id, want[i])
		}
	}
}

func TestFilterNewIdempotent(t *testing.T) {
	tr := New()
	if got := tr.FilterNew(items("1", "2")); len(got) != 2 {
		t.Fatalf("first pass: expected 2, got %d", len(got))
	}
	if got := tr.FilterNew(items("1", "2")); len(got) != 0 {
		t.Fatalf("second pass: expected 0, got %d", len(got))
	}
}

func TestFilterNewCollapsesIntraResponseDuplicates(t *testing.T) {
	tr := New()
	got := tr.FilterNew(items("1", "1", "2", "1"))
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d: %v", len(got), idsOf(got))
	}
}

func TestMarkSeenAndSeen(t *testing.T) {
	tr := New()
	if tr.Seen("x") {
		t.Fatalf("fresh tracker should not have seen x")
	}
	tr.MarkSeen("x")
	if !tr.Seen("x") {
		t.Fatalf("expected x seen after MarkSeen")
	}
	if got := tr.FilterNew(items("x", "y")); len(got) != 1 || got[0].ID != "y" {
		t.Fatalf("expected only y, got %v", idsOf(got))
	}
}

func TestSyncEvictsIdsGoneFromFeed(t *testing.T) {
	tr := New()
	tr.FilterNew(items("1", "2", "3"))
	if tr.Len() != 3 {
		t.Fatalf("expected 3 seen, got %d", tr.Len())
	}

	// Items 1 and 3 were read remotely; only 2 is still unread.
	tr.Sync(items("2"))
	if tr.Len() != 1 {
		t.Fatalf("expected 1 seen after sync, got %d", tr.Len())
	}
	if !tr.Seen("2") || tr.Seen("1") || tr.Seen("3") {
		t.Fatalf("wrong ids survived sync")
	}

	// An id that returns to the feed after eviction counts as new again.
	got := tr.FilterNew(items("1", "2"))
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("expected re-appeared 1 to be new, got %v", idsOf(got))
	}
}

func TestSyncWithEmptyListingClearsSet(t *testing.T) {
	tr := New()
	tr.FilterNew(items("1", "2"))
	tr.Sync(nil)
	if tr.Len() != 0 {
		t.Fatalf("expected empty set, got %d", tr.Len())
	}
}
