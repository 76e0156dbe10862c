package authstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProvider struct {
	name      string
	priority  int
	uuids     []string
	err       error
	available bool
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Priority() int    { return f.priority }
func (f *fakeProvider) Available() bool  { return f.available }
func (f *fakeProvider) Fetch(_ context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.uuids, nil
}

func TestStoreFetchAllMergesByPriority(t *testing.T) {
	low := &fakeProvider{name: "low", priority: 0, uuids: []string{"01234567-89ab-cdef-0123-456789abcdef"}, available: true}
	high := &fakeProvider{name: "high", priority: 5, uuids: []string{"01234567-89ab-cdef-0123-456789abcdef"}, available: true}

	s := New(discardLogger(), NewTTLCache(time.Minute), nil, []Provider{high, low}, time.Minute)

	merged, err := s.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "low", merged["01234567-89ab-cdef-0123-456789abcdef"])
}

func TestStoreFetchAllSettlesDespiteOneProviderError(t *testing.T) {
	failing := &fakeProvider{name: "failing", priority: 0, err: assert.AnError, available: true}
	ok := &fakeProvider{name: "ok", priority: 1, uuids: []string{"11234567-89ab-cdef-0123-456789abcdef"}, available: true}

	s := New(discardLogger(), NewTTLCache(time.Minute), nil, []Provider{failing, ok}, time.Minute)

	merged, err := s.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", merged["11234567-89ab-cdef-0123-456789abcdef"])
}

func TestStoreFetchAllNoProviders(t *testing.T) {
	s := New(discardLogger(), NewTTLCache(time.Minute), nil, nil, time.Minute)
	_, err := s.FetchAll(context.Background())
	require.ErrorIs(t, err, ErrNoProviders)
}

func TestStoreIsAuthorizedL1Hit(t *testing.T) {
	l1 := NewTTLCache(time.Minute)
	l1.Set("01234567-89ab-cdef-0123-456789abcdef", "static")

	s := New(discardLogger(), l1, nil, nil, time.Minute)
	assert.True(t, s.IsAuthorized(context.Background(), "01234567-89ab-cdef-0123-456789abcdef"))
}

func TestStoreIsAuthorizedFallsThroughToProviders(t *testing.T) {
	p := &fakeProvider{name: "static", priority: 0, uuids: []string{"01234567-89ab-cdef-0123-456789abcdef"}, available: true}
	s := New(discardLogger(), NewTTLCache(time.Minute), nil, []Provider{p}, time.Minute)

	assert.True(t, s.IsAuthorized(context.Background(), "01234567-89ab-cdef-0123-456789abcdef"))
	assert.False(t, s.IsAuthorized(context.Background(), "00000000-0000-0000-0000-000000000000"))
}

func TestStoreValidatorClosure(t *testing.T) {
	p := &fakeProvider{name: "static", priority: 0, uuids: []string{"01234567-89ab-cdef-0123-456789abcdef"}, available: true}
	s := New(discardLogger(), NewTTLCache(time.Minute), nil, []Provider{p}, time.Minute)

	validate := s.Validator()
	assert.True(t, validate("01234567-89ab-cdef-0123-456789abcdef"))
}

func TestStoreRefreshClearsAndRefetches(t *testing.T) {
	p := &fakeProvider{name: "static", priority: 0, uuids: []string{"01234567-89ab-cdef-0123-456789abcdef"}, available: true}
	s := New(discardLogger(), NewTTLCache(time.Minute), nil, []Provider{p}, time.Minute)

	_, err := s.FetchAll(context.Background())
	require.NoError(t, err)

	p.uuids = nil
	merged, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, merged)
	assert.Empty(t, s.Snapshot())
}
