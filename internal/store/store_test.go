package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return st
}

func TestQueueRoundTrip(t *testing.T) {
	st := newTestStore(t)

	items, err := st.LoadQueue()
	if err != nil {
		t.Fatalf("LoadQueue on empty store: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty queue, got %d items", len(items))
	}

	want := []QueueItem{
		{ID: "a", ChatID: 1, URL: "https://example.com/1", Status: QueueStatusQueued, CreatedAt: time.Now()},
		{ID: "b", ChatID: 2, URL: "https://example.com/2", Status: QueueStatusDone, CreatedAt: time.Now()},
	}
	if err := st.SaveQueue(want); err != nil {
		t.Fatalf("SaveQueue: %v", err)
	}

	got, err := st.LoadQueue()
	if err != nil {
		t.Fatalf("LoadQueue: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected queue after round trip: %#v", got)
	}
	if got[1].Status != QueueStatusDone {
		t.Errorf("status not preserved: %s", got[1].Status)
	}
}

func TestAppendDownloadIsAppendOnly(t *testing.T) {
	st := newTestStore(t)

	for i, status := range []RecordStatus{RecordStarted, RecordSent} {
		err := st.AppendDownload(DownloadRecord{ID: "job", Status: status, CreatedAt: time.Now().Add(time.Duration(i) * time.Second)})
		if err != nil {
			t.Fatalf("AppendDownload: %v", err)
		}
	}

	recs, err := st.Downloads()
	if err != nil {
		t.Fatalf("Downloads: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Status != RecordStarted || recs[1].Status != RecordSent {
		t.Errorf("records out of order: %v %v", recs[0].Status, recs[1].Status)
	}
}

func TestUpsertSettings(t *testing.T) {
	st := newTestStore(t)

	if err := st.UpsertSettings(42, "mp4"); err != nil {
		t.Fatalf("UpsertSettings: %v", err)
	}
	first, ok, err := st.Settings(42)
	if err != nil || !ok {
		t.Fatalf("Settings after insert: ok=%v err=%v", ok, err)
	}

	time.Sleep(10 * time.Millisecond)
	if err := st.UpsertSettings(42, "mp3"); err != nil {
		t.Fatalf("UpsertSettings update: %v", err)
	}
	second, ok, err := st.Settings(42)
	if err != nil || !ok {
		t.Fatalf("Settings after update: ok=%v err=%v", ok, err)
	}

	if second.Format != "mp3" {
		t.Errorf("format not updated: %s", second.Format)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on upsert")
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("UpdatedAt not advanced")
	}

	if _, ok, _ := st.Settings(99); ok {
		t.Error("Settings reported a record for an unknown chat")
	}
}

// Concurrent appenders must never corrupt the JSON document.
func TestConcurrentWritersDoNotCorrupt(t *testing.T) {
	st := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			st.AppendConversation(ConversationEntry{
				ID:        string(rune('a' + n)),
				ChatID:    int64(n),
				Direction: DirectionIn,
				Text:      "hello",
				Kind:      KindText,
				CreatedAt: time.Now(),
			})
		}(i)
	}
	wg.Wait()

	entries, err := st.Conversations()
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(entries) != 20 {
		t.Errorf("expected 20 entries, got %d", len(entries))
	}

	// The file itself must be valid JSON.
	data, err := os.ReadFile(filepath.Join(st.Dir(), conversationsFile))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("document corrupted: %v", err)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	st := newTestStore(t)
	if err := st.SaveQueue([]QueueItem{{ID: "x", Status: QueueStatusQueued}}); err != nil {
		t.Fatalf("SaveQueue: %v", err)
	}

	entries, err := os.ReadDir(st.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != queueFile {
			t.Errorf("unexpected leftover file: %s", e.Name())
		}
	}
}
