// Package epoch implements epoch-based reclamation for the channel
// registry and IPC peer tables, grounded on the ck_epoch usage pattern in
// jbpf_io_channel.c: per-thread epoch records mark a reader's critical
// section, and a writer's Barrier defers freeing a retired object until
// every reader has been observed to have left (or never entered) a
// critical section that could have seen it.
//
// No epoch or hazard-pointer reclamation library appears anywhere in the
// retrieved example pack, so this is built directly on sync/atomic -- see
// DESIGN.md for the justification.
package epoch

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Record is a per-thread token. A thread must Begin before touching a
// structure protected by this domain and End immediately after, bracketing
// the smallest possible critical section (typically one hash-table
// lookup).
type Record struct {
	active     atomic.Bool
	localEpoch atomic.Uint64
}

// Begin marks the record as inside a critical section at the domain's
// current epoch.
func (r *Record) Begin(d *Domain) {
	r.localEpoch.Store(d.epoch.Load())
	r.active.Store(true)
}

// End marks the record as outside any critical section.
func (r *Record) End() {
	r.active.Store(false)
}

// Domain is one reclamation domain (the channel registry keeps one per
// direction; the IPC peer table keeps its own).
type Domain struct {
	epoch    atomic.Uint64
	mu       sync.Mutex
	records  []*Record
	deferred [3][]func()
}

// NewDomain creates an empty reclamation domain.
func NewDomain() *Domain {
	return &Domain{}
}

// Register creates a new record tracked by this domain. The caller keeps
// the returned record for the lifetime of its registration (normally the
// lifetime of a thread.Handle).
func (d *Domain) Register() *Record {
	r := &Record{}
	d.mu.Lock()
	d.records = append(d.records, r)
	d.mu.Unlock()
	return r
}

// Unregister drops a record from the domain, e.g. when a thread is
// removed from the process-wide registry.
func (d *Domain) Unregister(r *Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.records {
		if existing == r {
			d.records = append(d.records[:i], d.records[i+1:]...)
			return
		}
	}
}

// Call defers fn until Barrier has proven no reader could still observe
// the object fn releases.
func (d *Domain) Call(fn func()) {
	bucket := d.epoch.Load() % 3
	d.mu.Lock()
	d.deferred[bucket] = append(d.deferred[bucket], fn)
	d.mu.Unlock()
}

// Barrier blocks until every currently-active record has crossed two
// epoch boundaries, then runs and clears the oldest bucket of deferred
// callbacks. Exactly one writer is expected to call Barrier at a time
// (the registry's single-writer discipline, spec.md §5).
func (d *Domain) Barrier() {
	for round := 0; round < 2; round++ {
		target := d.epoch.Add(1)
		d.mu.Lock()
		snapshot := append([]*Record(nil), d.records...)
		d.mu.Unlock()
		for _, r := range snapshot {
			for r.active.Load() && r.localEpoch.Load() < target {
				runtime.Gosched()
			}
		}
	}

	bucket := (d.epoch.Load() + 1) % 3
	d.mu.Lock()
	pending := d.deferred[bucket]
	d.deferred[bucket] = nil
	d.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}
