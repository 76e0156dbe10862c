package authstore

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// l2WriteInterval bounds how often one key is re-written to L2, avoiding a
// write on every single L1 backfill.
const l2WriteInterval = 60 * time.Second

// Store is the tiered authorization cache: L1 (always present) -> L2
// (optional) -> providers (settle-all fetch, priority-ordered merge).
type Store struct {
	log *slog.Logger

	l1         *TTLCache
	l2         *L2 // nil means "L2 disabled", a first-class variant
	providers  []Provider
	defaultTTL time.Duration

	mu            sync.Mutex
	lastL2Write   map[string]time.Time
}

// New builds a Store. l2 may be nil. providers are sorted ascending by
// Priority() once here so FetchAll never needs to re-sort per fetch.
func New(log *slog.Logger, l1 *TTLCache, l2 *L2, providers []Provider, defaultTTL time.Duration) *Store {
	sorted := append([]Provider(nil), providers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Store{
		log:         log,
		l1:          l1,
		l2:          l2,
		providers:   sorted,
		defaultTTL:  defaultTTL,
		lastL2Write: map[string]time.Time{},
	}
}

// IsAuthorized reports whether normalizedUUID is currently authorized,
// consulting L1, then L2 (backfilling L1 on hit), then forcing a provider
// refresh as a last resort.
func (s *Store) IsAuthorized(ctx context.Context, normalizedUUID string) bool {
	key := strings.ToLower(normalizedUUID)

	if _, ok := s.l1.Get(key); ok {
		return true
	}

	if s.l2 != nil {
		if providerName, residual, ok := s.l2.Get(key); ok {
			s.l1.SetTTL(key, providerName, residual)
			return true
		}
	}

	merged, err := s.FetchAll(ctx)
	if err != nil {
		s.log.Warn("authstore: provider fetch failed", "error", err)
	}
	_, ok := merged[key]
	return ok
}

// Validator returns a wire.UUIDValidator-compatible closure bound to this
// store's current IsAuthorized check, using a background context (auth
// lookups are fast cache reads in the common case; a provider round-trip is
// bounded by each provider's own Fetch timeout).
func (s *Store) Validator() func(string) bool {
	return func(uuid string) bool {
		return s.IsAuthorized(context.Background(), uuid)
	}
}

// FetchAll runs every provider in parallel (settle-all semantics: one
// provider's error never aborts the others), merges results in ascending
// priority order, writes L1 for every merged UUID, and stages an L2 write
// respecting l2WriteInterval per key.
func (s *Store) FetchAll(ctx context.Context) (map[string]string, error) {
	if len(s.providers) == 0 {
		return nil, ErrNoProviders
	}

	results := make([][]string, len(s.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.providers {
		i, p := i, p
		g.Go(func() error {
			if !p.Available() {
				return nil
			}
			uuids, err := p.Fetch(gctx)
			if err != nil {
				s.log.Warn("authstore: provider fetch failed", "provider", p.Name(), "error", err)
				return nil // settle-all: do not abort sibling fetches
			}
			results[i] = uuids
			return nil
		})
	}
	// errgroup.WithContext's g.Wait only returns non-nil if a Go func
	// returned an error; this loop never does, by design (settle-all).
	_ = g.Wait()

	merged := make(map[string]string)
	for i, p := range s.providers {
		for _, uuid := range results[i] {
			key := strings.ToLower(uuid)
			if _, exists := merged[key]; exists {
				continue // earlier (higher-priority) writer wins
			}
			merged[key] = p.Name()
		}
	}

	now := time.Now()
	for uuid, providerName := range merged {
		s.l1.Set(uuid, providerName)
		s.maybeWriteL2(uuid, providerName, now)
	}

	return merged, nil
}

// maybeWriteL2 writes uuid->providerName to L2 at most once per
// l2WriteInterval, tracked per key.
func (s *Store) maybeWriteL2(uuid, providerName string, now time.Time) {
	if s.l2 == nil {
		return
	}

	s.mu.Lock()
	last, ok := s.lastL2Write[uuid]
	if ok && now.Sub(last) < l2WriteInterval {
		s.mu.Unlock()
		return
	}
	s.lastL2Write[uuid] = now
	s.mu.Unlock()

	if err := s.l2.Set(uuid, providerName, s.defaultTTL); err != nil {
		s.log.Warn("authstore: l2 write failed", "uuid", uuid, "error", err)
	}
}

// Refresh clears the merged L1 view and forces a full provider re-fetch.
func (s *Store) Refresh(ctx context.Context) (map[string]string, error) {
	s.l1.Clear()
	return s.FetchAll(ctx)
}

// Snapshot returns every currently L1-cached uuid->provider pair, used by
// GET /api/uuids.
func (s *Store) Snapshot() map[string]string {
	return s.l1.Snapshot()
}
