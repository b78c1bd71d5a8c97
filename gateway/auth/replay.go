package auth

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// HeaderIdempotencyKey lets clients mark a write so a retried submission
	// is rejected instead of applied twice.
	HeaderIdempotencyKey = "Idempotency-Key"

	maxKeyLength             = 128
	maxReplayWindow          = 24 * time.Hour
	defaultReplayWindow      = 10 * time.Minute
	defaultReplayCapacity    = 4096
	maxReplayCapacity        = 65536
	persistencePruneInterval = time.Minute
)

var (
	ErrDuplicateRequest = errors.New("auth: idempotency key already used")
	ErrInvalidKey       = errors.New("auth: invalid idempotency key")
)

// Record captures one persisted idempotency key usage.
type Record struct {
	Subject    string
	Key        string
	ObservedAt time.Time
}

// Persistence provides durable storage for idempotency keys so duplicates are
// caught across restarts.
type Persistence interface {
	Ensure(ctx context.Context, record Record) (bool, error)
	Recent(ctx context.Context, cutoff time.Time) ([]Record, error)
	Prune(ctx context.Context, cutoff time.Time) error
}

// ReplayGuard remembers idempotency keys per subject for a bounded window.
type ReplayGuard struct {
	ttl      time.Duration
	capacity int
	nowFn    func() time.Time

	mu     sync.Mutex
	stores map[string]*keyStore

	persistence Persistence
	pruneMu     sync.Mutex
	lastPruned  time.Time
}

// NewReplayGuard builds a guard. Non-positive values select defaults and
// oversized values are clamped.
func NewReplayGuard(ttl time.Duration, capacity int, nowFn func() time.Time, persistence Persistence) *ReplayGuard {
	if nowFn == nil {
		nowFn = time.Now
	}
	ttl, capacity = clampWindow(ttl, capacity)
	return &ReplayGuard{
		ttl:         ttl,
		capacity:    capacity,
		nowFn:       nowFn,
		stores:      make(map[string]*keyStore),
		persistence: persistence,
	}
}

func clampWindow(ttl time.Duration, capacity int) (time.Duration, int) {
	if ttl <= 0 {
		ttl = defaultReplayWindow
	}
	if ttl > maxReplayWindow {
		ttl = maxReplayWindow
	}
	if capacity <= 0 {
		capacity = defaultReplayCapacity
	}
	if capacity > maxReplayCapacity {
		capacity = maxReplayCapacity
	}
	return ttl, capacity
}

// Hydrate warms the in-memory cache with persisted keys observed after cutoff.
func (g *ReplayGuard) Hydrate(ctx context.Context, cutoff time.Time) error {
	if g == nil || g.persistence == nil {
		return nil
	}
	records, err := g.persistence.Recent(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load persistent keys: %w", err)
	}
	for _, rec := range records {
		if strings.TrimSpace(rec.Subject) == "" || strings.TrimSpace(rec.Key) == "" {
			continue
		}
		observed := rec.ObservedAt
		if observed.IsZero() {
			observed = cutoff
		}
		g.store(rec.Subject).Add(rec.Key, observed)
	}
	return nil
}

// Check records key for subject and reports ErrDuplicateRequest when it was
// already used inside the window.
func (g *ReplayGuard) Check(ctx context.Context, subject, key string) error {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > maxKeyLength || strings.Contains(key, "|") {
		return ErrInvalidKey
	}
	now := g.nowFn().UTC()
	cache := g.store(subject)
	if cache.Contains(key, now) {
		return ErrDuplicateRequest
	}
	if g.persistence != nil {
		if err := g.prunePersistent(ctx, now); err != nil {
			return err
		}
		existed, err := g.persistence.Ensure(ctx, Record{Subject: subject, Key: key, ObservedAt: now})
		if err != nil {
			return fmt.Errorf("persist key: %w", err)
		}
		if existed {
			cache.Add(key, now)
			return ErrDuplicateRequest
		}
	}
	if cache.Seen(key, now) {
		return ErrDuplicateRequest
	}
	return nil
}

// Middleware rejects requests that reuse an idempotency key. Requests
// without the header pass through. subjectFn identifies the caller, usually
// from the authenticated token.
func (g *ReplayGuard) Middleware(subjectFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if g == nil || strings.TrimSpace(key) == "" {
				next.ServeHTTP(w, r)
				return
			}
			subject := "anonymous"
			if subjectFn != nil {
				if s := strings.TrimSpace(subjectFn(r)); s != "" {
					subject = s
				}
			}
			switch err := g.Check(r.Context(), subject, key); {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrDuplicateRequest):
				http.Error(w, "duplicate request", http.StatusConflict)
			case errors.Is(err, ErrInvalidKey):
				http.Error(w, "invalid idempotency key", http.StatusBadRequest)
			default:
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		})
	}
}

func (g *ReplayGuard) prunePersistent(ctx context.Context, now time.Time) error {
	g.pruneMu.Lock()
	defer g.pruneMu.Unlock()
	if !g.lastPruned.IsZero() && now.Sub(g.lastPruned) < persistencePruneInterval {
		return nil
	}
	if err := g.persistence.Prune(ctx, now.Add(-g.ttl)); err != nil {
		return fmt.Errorf("prune persistent keys: %w", err)
	}
	g.lastPruned = now
	return nil
}

func (g *ReplayGuard) store(subject string) *keyStore {
	g.mu.Lock()
	defer g.mu.Unlock()
	cache, ok := g.stores[subject]
	if ok {
		return cache
	}
	cache = newKeyStore(g.ttl, g.capacity)
	g.stores[subject] = cache
	return cache
}

// keyStore is a TTL-bounded LRU of observed keys.
type keyStore struct {
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

type keyEntry struct {
	key string
	ts  time.Time
}

func newKeyStore(ttl time.Duration, capacity int) *keyStore {
	ttl, capacity = clampWindow(ttl, capacity)
	return &keyStore{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Seen returns true if key was already observed within the TTL window and
// records it otherwise.
func (n *keyStore) Seen(key string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evictExpired(now.Add(-n.ttl))
	if _, exists := n.entries[key]; exists {
		return true
	}
	n.insertLocked(key, now)
	return false
}

// Contains reports whether key has been observed without recording it.
func (n *keyStore) Contains(key string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evictExpired(now.Add(-n.ttl))
	_, exists := n.entries[key]
	return exists
}

// Add registers key, applying eviction as required.
func (n *keyStore) Add(key string, now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evictExpired(now.Add(-n.ttl))
	n.insertLocked(key, now)
}

func (n *keyStore) insertLocked(key string, now time.Time) {
	if elem, exists := n.entries[key]; exists {
		elem.Value = keyEntry{key: key, ts: now}
		n.order.MoveToBack(elem)
		return
	}
	for n.order.Len() >= n.capacity {
		n.evictFront()
	}
	n.entries[key] = n.order.PushBack(keyEntry{key: key, ts: now})
}

func (n *keyStore) evictExpired(cutoff time.Time) {
	for {
		front := n.order.Front()
		if front == nil {
			return
		}
		entry := front.Value.(keyEntry)
		if !entry.ts.Before(cutoff) {
			return
		}
		n.order.Remove(front)
		delete(n.entries, entry.key)
	}
}

func (n *keyStore) evictFront() {
	front := n.order.Front()
	if front == nil {
		return
	}
	entry := front.Value.(keyEntry)
	n.order.Remove(front)
	delete(n.entries, entry.key)
}
