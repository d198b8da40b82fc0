package reply

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/fluxorio/wordbridge/pkg/words"
)

func TestBuffer_EmptyTakeIsIdempotent(t *testing.T) {
	for _, policy := range []Policy{PolicyStack, PolicyLatest} {
		b := New(Options{Policy: policy})
		for i := 0; i < 3; i++ {
			if p, ok := b.TakeOne(); ok || p != nil {
				t.Errorf("%s: TakeOne() on empty = (%q, %v)", policy, p, ok)
			}
		}
	}
}

func TestBuffer_OfferThenTake(t *testing.T) {
	for _, policy := range []Policy{PolicyStack, PolicyLatest} {
		b := New(Options{Policy: policy})
		b.Offer([]byte(`{"word":"P"}`))

		p, ok := b.TakeOne()
		if !ok || string(p) != `{"word":"P"}` {
			t.Errorf("%s: TakeOne() = (%q, %v)", policy, p, ok)
		}
		if _, ok := b.TakeOne(); ok {
			t.Errorf("%s: second TakeOne() should be empty", policy)
		}
	}
}

func TestBuffer_StackIsLIFO(t *testing.T) {
	b := New(Options{Policy: PolicyStack})
	for _, w := range []string{"a", "b", "c"} {
		b.Offer([]byte(w))
	}
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}

	for _, want := range []string{"c", "b", "a"} {
		p, ok := b.TakeOne()
		if !ok || string(p) != want {
			t.Errorf("TakeOne() = (%q, %v), want %q", p, ok, want)
		}
	}
}

func TestBuffer_LatestOverwrites(t *testing.T) {
	var dropped []DropReason
	b := New(Options{Policy: PolicyLatest, OnDrop: func(r DropReason) { dropped = append(dropped, r) }})

	b.Offer([]byte("first"))
	b.Offer([]byte("second"))

	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
	p, ok := b.TakeOne()
	if !ok || string(p) != "second" {
		t.Errorf("TakeOne() = (%q, %v), want second", p, ok)
	}
	if len(dropped) != 1 || dropped[0] != DropOverwritten {
		t.Errorf("drops = %v, want [overwritten]", dropped)
	}
}

func TestBuffer_OfferCopiesPayload(t *testing.T) {
	b := New(Options{})
	src := []byte("abc")
	b.Offer(src)
	src[0] = 'x'

	p, _ := b.TakeOne()
	if string(p) != "abc" {
		t.Errorf("TakeOne() = %q, want abc", p)
	}
}

func TestBuffer_LimitEvictsOldest(t *testing.T) {
	var dropped int
	b := New(Options{Limit: 2, OnDrop: func(r DropReason) {
		if r == DropEvicted {
			dropped++
		}
	}})
	b.Offer([]byte("1"))
	b.Offer([]byte("2"))
	b.Offer([]byte("3"))

	if dropped != 1 {
		t.Errorf("evicted = %d, want 1", dropped)
	}
	for _, want := range []string{"3", "2"} {
		if p, _ := b.TakeOne(); string(p) != want {
			t.Errorf("TakeOne() = %q, want %q", p, want)
		}
	}
	if _, ok := b.TakeOne(); ok {
		t.Error("oldest entry should have been evicted")
	}
}

func TestBuffer_MaxAgeExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	b := New(Options{MaxAge: time.Minute, Now: func() time.Time { return now }})

	b.Offer([]byte("old"))
	now = now.Add(30 * time.Second)
	b.Offer([]byte("new"))
	now = now.Add(45 * time.Second)

	p, ok := b.TakeOne()
	if !ok || string(p) != "new" {
		t.Fatalf("TakeOne() = (%q, %v), want new", p, ok)
	}
	if _, ok := b.TakeOne(); ok {
		t.Error("expired entry was returned")
	}

	stats := b.Stats()
	if stats.Dropped != 1 || stats.Taken != 1 || stats.Offered != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestBuffer_JSONRoundTrip(t *testing.T) {
	b := New(Options{})
	in := words.ReplyPayload{Text: "ALPHA", Origin: "Go:1"}
	data, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	b.Offer(data)

	p, ok := b.TakeOne()
	if !ok {
		t.Fatal("TakeOne() empty")
	}
	var out words.ReplyPayload
	if err := core.JSONDecode(p, &out); err != nil {
		t.Fatalf("JSONDecode() error = %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestBuffer_ConcurrentOfferAndTake(t *testing.T) {
	const producers, perProducer, consumers = 8, 250, 6

	for _, policy := range []Policy{PolicyStack, PolicyLatest} {
		t.Run(policy.String(), func(t *testing.T) {
			b := New(Options{Policy: policy})

			var (
				mu    sync.Mutex
				seen  = make(map[string]int)
				wg    sync.WaitGroup
				stop  = make(chan struct{})
				cwg   sync.WaitGroup
				taken = func(p []byte) {
					mu.Lock()
					seen[string(p)]++
					mu.Unlock()
				}
			)

			for c := 0; c < consumers; c++ {
				cwg.Add(1)
				go func() {
					defer cwg.Done()
					for {
						select {
						case <-stop:
							return
						default:
						}
						if p, ok := b.TakeOne(); ok {
							taken(p)
						}
					}
				}()
			}

			for p := 0; p < producers; p++ {
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					for i := 0; i < perProducer; i++ {
						b.Offer([]byte(fmt.Sprintf("%d-%d", p, i)))
					}
				}(p)
			}
			wg.Wait()
			close(stop)
			cwg.Wait()

			for {
				p, ok := b.TakeOne()
				if !ok {
					break
				}
				taken(p)
			}

			for k, n := range seen {
				if n != 1 {
					t.Errorf("payload %s taken %d times", k, n)
				}
			}

			stats := b.Stats()
			total := uint64(producers * perProducer)
			if stats.Offered != total {
				t.Errorf("Offered = %d, want %d", stats.Offered, total)
			}
			if uint64(len(seen)) != stats.Taken {
				t.Errorf("distinct taken %d != Taken %d", len(seen), stats.Taken)
			}
			if stats.Taken+stats.Dropped != total {
				t.Errorf("Taken %d + Dropped %d != %d", stats.Taken, stats.Dropped, total)
			}
			if policy == PolicyStack && stats.Dropped != 0 {
				t.Errorf("stack policy dropped %d replies", stats.Dropped)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	tests := map[string]Policy{
		"":          PolicyStack,
		"stack":     PolicyStack,
		"LIFO":      PolicyStack,
		"latest":    PolicyLatest,
		"overwrite": PolicyLatest,
	}
	for in, want := range tests {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = (%v, %v), want %v", in, got, err, want)
		}
	}
	if _, err := ParsePolicy("fifo"); err == nil {
		t.Error("ParsePolicy(fifo) should fail")
	}
}
