// Package reply holds transformed words between their asynchronous arrival
// and the HTTP poll that hands them out.
package reply

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Policy selects what the buffer keeps when replies arrive faster than they
// are polled.
type Policy int

const (
	// PolicyStack keeps every reply and hands out the most recent first.
	PolicyStack Policy = iota
	// PolicyLatest keeps a single reply; each Offer replaces the held one.
	PolicyLatest
)

// ParsePolicy accepts "stack" (or "lifo") and "latest" (or "overwrite").
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stack", "lifo":
		return PolicyStack, nil
	case "latest", "overwrite":
		return PolicyLatest, nil
	default:
		return PolicyStack, fmt.Errorf("unknown reply policy %q", s)
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyLatest:
		return "latest"
	default:
		return "stack"
	}
}

// DropReason says why a held reply was discarded without being taken.
type DropReason string

const (
	DropOverwritten DropReason = "overwritten"
	DropEvicted     DropReason = "evicted"
	DropExpired     DropReason = "expired"
)

// Options configures a Buffer.
type Options struct {
	Policy Policy

	// Limit bounds a stack buffer; the oldest reply is evicted when full.
	// Zero means unbounded.
	Limit int

	// MaxAge discards replies held longer than this. Zero disables expiry.
	MaxAge time.Duration

	// OnDrop is called, outside the lock, once per discarded reply.
	OnDrop func(reason DropReason)

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Stats are cumulative counters.
type Stats struct {
	Offered uint64
	Taken   uint64
	Dropped uint64
	Held    int
}

type entry struct {
	data []byte
	at   time.Time
}

// Buffer is safe for concurrent use. Neither Offer nor TakeOne waits for the
// other side: TakeOne on an empty buffer reports empty immediately.
type Buffer struct {
	mu      sync.Mutex
	entries []entry // oldest first
	opts    Options

	offered uint64
	taken   uint64
	dropped uint64
}

// New creates a Buffer.
func New(opts Options) *Buffer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	return &Buffer{opts: opts}
}

// Policy returns the configured policy.
func (b *Buffer) Policy() Policy { return b.opts.Policy }

// Offer stores a copy of payload.
func (b *Buffer) Offer(payload []byte) {
	e := entry{data: append([]byte(nil), payload...), at: b.opts.Now()}

	var drops []DropReason
	b.mu.Lock()
	b.offered++
	drops = b.expireLocked(e.at, drops)

	switch b.opts.Policy {
	case PolicyLatest:
		for range b.entries {
			drops = append(drops, DropOverwritten)
		}
		b.entries = append(b.entries[:0], e)
	default:
		if b.opts.Limit > 0 && len(b.entries) >= b.opts.Limit {
			n := len(b.entries) - b.opts.Limit + 1
			for i := 0; i < n; i++ {
				drops = append(drops, DropEvicted)
			}
			b.trimLocked(n)
		}
		b.entries = append(b.entries, e)
	}
	b.dropped += uint64(len(drops))
	b.mu.Unlock()

	b.notify(drops)
}

// TakeOne removes and returns one payload. ok is false when nothing is held.
func (b *Buffer) TakeOne() (payload []byte, ok bool) {
	var drops []DropReason
	b.mu.Lock()
	drops = b.expireLocked(b.opts.Now(), drops)
	if n := len(b.entries); n > 0 {
		payload = b.entries[n-1].data
		b.entries[n-1] = entry{}
		b.entries = b.entries[:n-1]
		b.taken++
		ok = true
	}
	b.dropped += uint64(len(drops))
	b.mu.Unlock()

	b.notify(drops)
	return payload, ok
}

// Len returns the number of held replies.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Stats returns cumulative counters and the current depth.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Offered: b.offered,
		Taken:   b.taken,
		Dropped: b.dropped,
		Held:    len(b.entries),
	}
}

// expireLocked drops the prefix of entries older than MaxAge. Entries are
// appended in arrival order so expired ones are always a prefix.
func (b *Buffer) expireLocked(now time.Time, drops []DropReason) []DropReason {
	if b.opts.MaxAge <= 0 {
		return drops
	}
	cutoff := now.Add(-b.opts.MaxAge)
	n := 0
	for n < len(b.entries) && !b.entries[n].at.After(cutoff) {
		n++
	}
	for i := 0; i < n; i++ {
		drops = append(drops, DropExpired)
	}
	b.trimLocked(n)
	return drops
}

func (b *Buffer) trimLocked(n int) {
	if n <= 0 {
		return
	}
	remaining := copy(b.entries, b.entries[n:])
	for i := remaining; i < len(b.entries); i++ {
		b.entries[i] = entry{}
	}
	b.entries = b.entries[:remaining]
}

func (b *Buffer) notify(drops []DropReason) {
	if b.opts.OnDrop == nil {
		return
	}
	for _, r := range drops {
		b.opts.OnDrop(r)
	}
}
