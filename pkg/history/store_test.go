package history

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SubmitAndComplete(t *testing.T) {
	store := openTestStore(t)

	rec := &Record{
		ID:      "task-1",
		Channel: "telegram",
		ChatID:  "chat-9",
		Model:   "kwaivgi/kling-v1.6-t2v-standard",
		Prompt:  "a red fox",
		Status:  "processing",
	}
	if err := store.RecordSubmission(rec); err != nil {
		t.Fatalf("RecordSubmission: %v", err)
	}

	outputs := []string{"https://cdn.example/a.mp4"}
	if err := store.MarkCompleted("task-1", outputs); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	got, err := store.Get("task-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "completed" {
		t.Fatalf("status not updated: %+v", got)
	}
	if !reflect.DeepEqual([]string(got.Outputs), outputs) {
		t.Fatalf("outputs not stored: %v", got.Outputs)
	}
	if got.Prompt != "a red fox" {
		t.Fatalf("prompt lost: %+v", got)
	}
}

func TestStore_MarkFailed(t *testing.T) {
	store := openTestStore(t)

	if err := store.RecordSubmission(&Record{ID: "task-2", Status: "processing"}); err != nil {
		t.Fatalf("RecordSubmission: %v", err)
	}
	if err := store.MarkFailed("task-2", "over quota"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	got, err := store.Get("task-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "failed" || got.Error != "over quota" {
		t.Fatalf("failure not recorded: %+v", got)
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get("absent"); err == nil {
		t.Fatalf("expected error for missing record")
	}
}

func TestStore_RecentFiltersAndOrders(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().Add(-time.Hour)
	rows := []Record{
		{ID: "t1", Channel: "telegram", ChatID: "a", CreatedAt: base},
		{ID: "t2", Channel: "telegram", ChatID: "a", CreatedAt: base.Add(time.Minute)},
		{ID: "t3", Channel: "telegram", ChatID: "b", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "t4", Channel: "feishu", ChatID: "a", CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range rows {
		if err := store.RecordSubmission(&rows[i]); err != nil {
			t.Fatalf("RecordSubmission: %v", err)
		}
	}

	recs, err := store.Recent("telegram", "a", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "t2" || recs[1].ID != "t1" {
		t.Fatalf("wrong filter or order: %+v", recs)
	}

	recs, err = store.Recent("", "", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "t4" {
		t.Fatalf("limit or order wrong: %+v", recs)
	}

	last, ok := store.LastForChat("telegram", "b")
	if !ok || last.ID != "t3" {
		t.Fatalf("LastForChat wrong: %+v ok=%v", last, ok)
	}
	if _, ok := store.LastForChat("telegram", "nope"); ok {
		t.Fatalf("expected no record")
	}
}
