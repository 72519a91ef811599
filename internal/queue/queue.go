// Package queue drives the download pipeline: a single-concurrency
// FIFO worker whose full item list is persisted after every state
// transition.
package queue

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coldpaw/snatch/internal/store"
	"github.com/coldpaw/snatch/internal/util"
)

// Runner processes one dequeued item. A returned error marks the item
// as failed; nil marks it done.
type Runner func(item store.QueueItem) error

type Queue struct {
	mu         sync.Mutex
	items      []store.QueueItem
	processing bool

	st  *store.Store
	run Runner
}

// New loads the persisted queue snapshot. Items left "processing" by
// an unclean shutdown are marked as errors here, before any worker
// runs: their files may be gone and re-running them unasked would
// surprise the user.
func New(st *store.Store, run Runner) (*Queue, error) {
	items, err := st.LoadQueue()
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}

	recovered := 0
	now := time.Now()
	for i := range items {
		if items[i].Status == store.QueueStatusProcessing {
			items[i].Status = store.QueueStatusError
			items[i].Error = "interrupted by restart"
			items[i].UpdatedAt = now
			recovered++
		}
	}

	q := &Queue{items: items, st: st, run: run}
	if recovered > 0 {
		log.Printf("[Queue] Marked %d interrupted item(s) as failed on startup", recovered)
		if err := q.persist(); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Enqueue admits an item, persists the snapshot synchronously, then
// wakes the worker loop if it is idle.
func (q *Queue) Enqueue(item store.QueueItem) error {
	now := time.Now()
	item.Status = store.QueueStatusQueued
	item.CreatedAt = now
	item.UpdatedAt = now

	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	if err := q.persist(); err != nil {
		return err
	}

	go q.work()
	return nil
}

// Position returns the 1-based rank of an item among currently queued
// items. Items already running or finished have no position.
func (q *Queue) Position(id string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rank := 0
	for _, it := range q.items {
		if it.Status != store.QueueStatusQueued {
			continue
		}
		rank++
		if it.ID == id {
			return rank, true
		}
	}
	return 0, false
}

// QueuedCount reports how many items are waiting.
func (q *Queue) QueuedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		if it.Status == store.QueueStatusQueued {
			n++
		}
	}
	return n
}

// Items returns a copy of the full item list, newest last.
func (q *Queue) Items() []store.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := make([]store.QueueItem, len(q.items))
	copy(cp, q.items)
	return cp
}

// Start wakes the worker loop, picking up items persisted from a
// previous run.
func (q *Queue) Start() {
	go q.work()
}

// work is the single worker loop. The processing flag guarantees one
// running job at a time no matter how many goroutines call in.
func (q *Queue) work() {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return
	}
	q.processing = true
	q.mu.Unlock()

	for {
		q.mu.Lock()
		idx := -1
		for i := range q.items {
			if q.items[i].Status == store.QueueStatusQueued {
				idx = i
				break
			}
		}
		if idx < 0 {
			q.processing = false
			q.mu.Unlock()
			return
		}
		q.items[idx].Status = store.QueueStatusProcessing
		q.items[idx].UpdatedAt = time.Now()
		item := q.items[idx]
		q.mu.Unlock()

		if err := q.persist(); err != nil {
			log.Printf("[Queue] Failed to persist snapshot: %v", err)
		}

		err := q.run(item)

		q.mu.Lock()
		for i := range q.items {
			if q.items[i].ID != item.ID {
				continue
			}
			if err != nil {
				q.items[i].Status = store.QueueStatusError
				q.items[i].Error = err.Error()
			} else {
				q.items[i].Status = store.QueueStatusDone
			}
			q.items[i].UpdatedAt = time.Now()
			break
		}
		q.mu.Unlock()

		if perr := q.persist(); perr != nil {
			log.Printf("[Queue] Failed to persist snapshot: %v", perr)
		}

		if err != nil {
			log.Printf("[Queue] Job %s failed: %v", util.ShortID(item.ID), err)
		} else {
			log.Printf("[Queue] Job %s done", util.ShortID(item.ID))
		}
	}
}

// persist writes the full item list. The queue lock is held across
// the write so concurrent persists cannot land out of order.
func (q *Queue) persist() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	snapshot := make([]store.QueueItem, len(q.items))
	copy(snapshot, q.items)
	return q.st.SaveQueue(snapshot)
}
