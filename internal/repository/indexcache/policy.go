package indexcache

import (
	"container/list"
	"sync"

	"github.com/kailas-cloud/docqa/internal/domain/fingerprint"
)

// EvictionPolicy decides which entries leave the cache. Added, Removed and
// Victims are called under the cache write lock; Touched may be called
// concurrently from readers.
type EvictionPolicy interface {
	Added(fp fingerprint.Fingerprint)
	Touched(fp fingerprint.Fingerprint)
	Removed(fp fingerprint.Fingerprint)
	Victims() []fingerprint.Fingerprint
}

// NoEviction keeps every entry until Clear or process exit.
type NoEviction struct{}

func (NoEviction) Added(fingerprint.Fingerprint)      {}
func (NoEviction) Touched(fingerprint.Fingerprint)    {}
func (NoEviction) Removed(fingerprint.Fingerprint)    {}
func (NoEviction) Victims() []fingerprint.Fingerprint { return nil }

// LRU evicts the least recently used entries above a fixed count.
type LRU struct {
	mu    sync.Mutex
	max   int
	order *list.List // front = most recent
	items map[fingerprint.Fingerprint]*list.Element
}

// NewLRU creates a policy that keeps at most maxEntries indexes.
func NewLRU(maxEntries int) *LRU {
	return &LRU{
		max:   maxEntries,
		order: list.New(),
		items: make(map[fingerprint.Fingerprint]*list.Element),
	}
}

func (l *LRU) Added(fp fingerprint.Fingerprint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.items[fp]; ok {
		l.order.MoveToFront(el)
		return
	}
	l.items[fp] = l.order.PushFront(fp)
}

func (l *LRU) Touched(fp fingerprint.Fingerprint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.items[fp]; ok {
		l.order.MoveToFront(el)
	}
}

func (l *LRU) Removed(fp fingerprint.Fingerprint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.items[fp]; ok {
		l.order.Remove(el)
		delete(l.items, fp)
	}
}

// Victims returns the oldest entries beyond the limit, least recent first.
func (l *LRU) Victims() []fingerprint.Fingerprint {
	l.mu.Lock()
	defer l.mu.Unlock()

	excess := l.order.Len() - l.max
	if l.max <= 0 || excess <= 0 {
		return nil
	}
	out := make([]fingerprint.Fingerprint, 0, excess)
	for el := l.order.Back(); el != nil && len(out) < excess; el = el.Prev() {
		out = append(out, el.Value.(fingerprint.Fingerprint))
	}
	return out
}
