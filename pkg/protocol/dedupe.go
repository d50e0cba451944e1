package protocol

import "sync"

const DefaultDeduperSize = 10000

// Deduper remembers the signatures of the last processed events, so that
// events delivered more than once by different relays are handled once.
type Deduper struct {
	lock  sync.Mutex
	seen  map[string]struct{}
	order []string
	next  int
}

func NewDeduper(size int) *Deduper {
	if size <= 0 {
		size = DefaultDeduperSize
	}
	return &Deduper{
		seen:  make(map[string]struct{}, size),
		order: make([]string, size),
	}
}

// Seen records the event and reports whether it was already recorded.
func (d *Deduper) Seen(event VerifiedEvent) bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	key := event.Sig()
	if _, ok := d.seen[key]; ok {
		return true
	}

	if evicted := d.order[d.next]; len(evicted) > 0 {
		delete(d.seen, evicted)
	}
	d.order[d.next] = key
	d.next = (d.next + 1) % len(d.order)
	d.seen[key] = struct{}{}
	return false
}

// Has reports whether the event was recorded, without recording it.
func (d *Deduper) Has(event VerifiedEvent) bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	_, ok := d.seen[event.Sig()]
	return ok
}

func (d *Deduper) Len() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.seen)
}
