// Package dedupe tracks client idempotency keys so a retried write returns
// the original result instead of recording twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State is the outcome of Claim.
type State int

const (
	// Claimed means the key is new and now reserved for the caller, who must
	// follow up with Complete or Release.
	Claimed State = iota
	// InFlight means another caller holds the key and has not finished.
	InFlight
	// Completed means the key finished earlier; Claim returns its value.
	Completed
	// Mismatch means the key is held for a request with another fingerprint.
	Mismatch
)

// Deduper records idempotency keys and the value each one produced.
type Deduper interface {
	// Claim atomically reserves key for the request identified by
	// fingerprint, or reports the key's current state.
	Claim(ctx context.Context, key, fingerprint string) (string, State)
	// Complete stores value for a claimed key.
	Complete(ctx context.Context, key, value string)
	// Release drops a claimed key so the write can be retried.
	Release(ctx context.Context, key string)
	Size() int64
}

type entry struct {
	key         string
	fingerprint string
	value       string
	done        bool
	at          time.Time
}

// inMemoryDeduper keeps at most maxSize keys, evicting the oldest first.
// Completed keys older than ttl are treated as unseen.
type inMemoryDeduper struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is newest
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
		ttl:     24 * time.Hour,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.entries = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) Claim(ctx context.Context, key, fingerprint string) (string, State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if el, ok := d.entries[key]; ok {
		e := el.Value.(*entry)
		live := !e.done || d.ttl <= 0 || now.Sub(e.at) < d.ttl
		switch {
		case live && e.fingerprint != fingerprint:
			return "", Mismatch
		case !e.done:
			return "", InFlight
		case live:
			return e.value, Completed
		}
		d.remove(el)
	}

	if d.maxSize > 0 && len(d.entries) >= d.maxSize {
		d.evictOldest()
	}
	d.entries[key] = d.order.PushFront(&entry{key: key, fingerprint: fingerprint, at: now})
	d.size.Add(1)
	return "", Claimed
}

func (d *inMemoryDeduper) Complete(ctx context.Context, key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.entries[key]
	if !ok {
		return
	}
	e := el.Value.(*entry)
	e.value = value
	e.done = true
	e.at = d.now()
}

func (d *inMemoryDeduper) Release(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.entries[key]; ok && !el.Value.(*entry).done {
		d.remove(el)
	}
}

// evictOldest must be called with d.mu held. In-flight keys are skipped
// when a completed one is available.
func (d *inMemoryDeduper) evictOldest() {
	for el := d.order.Back(); el != nil; el = el.Prev() {
		if el.Value.(*entry).done {
			d.remove(el)
			return
		}
	}
	if el := d.order.Back(); el != nil {
		d.remove(el)
	}
}

func (d *inMemoryDeduper) remove(el *list.Element) {
	e := d.order.Remove(el).(*entry)
	delete(d.entries, e.key)
	d.size.Add(-1)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
