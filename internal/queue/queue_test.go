package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coldpaw/snatch/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return st
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestItemsRunInFIFOOrder(t *testing.T) {
	st := newTestStore(t)

	var mu sync.Mutex
	var order []string
	q, err := New(st, func(item store.QueueItem) error {
		mu.Lock()
		order = append(order, item.ID)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, id := range []string{"first", "second", "third"} {
		if err := q.Enqueue(store.QueueItem{ID: id, URL: "https://example.com/" + id}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Errorf("items ran out of order: %v", order)
	}
}

func TestOnlyOneItemRunsAtATime(t *testing.T) {
	st := newTestStore(t)

	var mu sync.Mutex
	running, maxRunning, done := 0, 0, 0
	release := make(chan struct{})

	q, err := New(st, func(store.QueueItem) error {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()

		<-release

		mu.Lock()
		running--
		done++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(store.QueueItem{ID: id}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return running == 1
	})
	for i := 0; i < 3; i++ {
		release <- struct{}{}
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return done == 3
	})

	mu.Lock()
	defer mu.Unlock()
	if maxRunning != 1 {
		t.Errorf("saw %d items running concurrently, want 1", maxRunning)
	}
}

func TestPosition(t *testing.T) {
	st := newTestStore(t)

	started := make(chan string, 3)
	release := make(chan struct{})
	q, err := New(st, func(item store.QueueItem) error {
		started <- item.ID
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(store.QueueItem{ID: id}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	// Wait until "a" is running; "b" and "c" are still queued.
	if got := <-started; got != "a" {
		t.Fatalf("first started item is %s, want a", got)
	}

	if _, ok := q.Position("a"); ok {
		t.Error("running item should have no position")
	}
	if pos, ok := q.Position("b"); !ok || pos != 1 {
		t.Errorf("Position(b) = %d, %v; want 1, true", pos, ok)
	}
	if pos, ok := q.Position("c"); !ok || pos != 2 {
		t.Errorf("Position(c) = %d, %v; want 2, true", pos, ok)
	}
	if _, ok := q.Position("missing"); ok {
		t.Error("unknown item should have no position")
	}
	if n := q.QueuedCount(); n != 2 {
		t.Errorf("QueuedCount = %d, want 2", n)
	}

	close(release)

	// Drain before the test returns so the worker's final persist does
	// not race with t.TempDir cleanup.
	waitFor(t, func() bool {
		items, _ := st.LoadQueue()
		if len(items) != 3 {
			return false
		}
		for _, it := range items {
			if it.Status != store.QueueStatusDone {
				return false
			}
		}
		return true
	})
}

func TestFailedRunnerMarksItemError(t *testing.T) {
	st := newTestStore(t)

	q, err := New(st, func(item store.QueueItem) error {
		if item.ID == "bad" {
			return errors.New("video unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	q.Enqueue(store.QueueItem{ID: "bad"})
	q.Enqueue(store.QueueItem{ID: "good"})

	waitFor(t, func() bool {
		for _, it := range q.Items() {
			if it.Status == store.QueueStatusQueued || it.Status == store.QueueStatusProcessing {
				return false
			}
		}
		return true
	})

	byID := map[string]store.QueueItem{}
	for _, it := range q.Items() {
		byID[it.ID] = it
	}
	if byID["bad"].Status != store.QueueStatusError || byID["bad"].Error != "video unavailable" {
		t.Errorf("bad item: %+v", byID["bad"])
	}
	if byID["good"].Status != store.QueueStatusDone {
		t.Errorf("good item: %+v", byID["good"])
	}

	// A failed item keeps its terminal status across snapshots.
	persisted, err := st.LoadQueue()
	if err != nil {
		t.Fatalf("LoadQueue: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("persisted %d items, want 2", len(persisted))
	}
}

func TestTransitionsArePersisted(t *testing.T) {
	st := newTestStore(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	q, err := New(st, func(store.QueueItem) error {
		close(entered)
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := q.Enqueue(store.QueueItem{ID: "job"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-entered

	// The processing transition lands on disk before the runner is
	// invoked.
	items, err := st.LoadQueue()
	if err != nil {
		t.Fatalf("LoadQueue: %v", err)
	}
	if len(items) != 1 || items[0].Status != store.QueueStatusProcessing {
		t.Fatalf("persisted snapshot during run: %+v", items)
	}

	close(release)
	waitFor(t, func() bool {
		items, _ := st.LoadQueue()
		return len(items) == 1 && items[0].Status == store.QueueStatusDone
	})
}

func TestInterruptedItemsFailOnStartup(t *testing.T) {
	st := newTestStore(t)
	err := st.SaveQueue([]store.QueueItem{
		{ID: "crashed", Status: store.QueueStatusProcessing},
		{ID: "waiting", Status: store.QueueStatusQueued},
		{ID: "finished", Status: store.QueueStatusDone},
	})
	if err != nil {
		t.Fatalf("SaveQueue: %v", err)
	}

	ran := make(chan string, 2)
	q, err := New(st, func(item store.QueueItem) error {
		ran <- item.ID
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	byID := map[string]store.QueueItem{}
	for _, it := range q.Items() {
		byID[it.ID] = it
	}
	if byID["crashed"].Status != store.QueueStatusError {
		t.Errorf("crashed item status = %s, want error", byID["crashed"].Status)
	}
	if byID["crashed"].Error != "interrupted by restart" {
		t.Errorf("crashed item error = %q", byID["crashed"].Error)
	}
	if byID["finished"].Status != store.QueueStatusDone {
		t.Errorf("finished item disturbed: %+v", byID["finished"])
	}

	// The recovery is persisted immediately, before Start.
	persisted, err := st.LoadQueue()
	if err != nil {
		t.Fatalf("LoadQueue: %v", err)
	}
	for _, it := range persisted {
		if it.ID == "crashed" && it.Status != store.QueueStatusError {
			t.Errorf("recovery not persisted: %+v", it)
		}
	}

	// Start drains the surviving queued item but never re-runs the
	// crashed one.
	q.Start()
	select {
	case id := <-ran:
		if id != "waiting" {
			t.Errorf("unexpected item ran: %s", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("queued item was not picked up")
	}
	select {
	case id := <-ran:
		t.Errorf("extra item ran: %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}
