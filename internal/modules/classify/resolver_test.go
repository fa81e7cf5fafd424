package classify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/custodian/internal/domain"
)

// fakeStore is an in-memory PersistentStore with injectable failures.
type fakeStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	puts    []Entry
	getErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]Entry)}
}

func (s *fakeStore) GetIfFresh(ticker string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	e, ok := s.entries[ticker]
	if !ok || e.Stale(time.Now()) {
		return nil, nil
	}
	out := e
	return &out, nil
}

func (s *fakeStore) Get(ticker string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	e, ok := s.entries[ticker]
	if !ok {
		return nil, nil
	}
	out := e
	return &out, nil
}

func (s *fakeStore) Put(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Ticker] = entry
	s.puts = append(s.puts, entry)
	return nil
}

func (s *fakeStore) ListStale(maxAge time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	var out []string
	for ticker, e := range s.entries {
		if e.ResolvedAt.Before(cutoff) {
			out = append(out, ticker)
		}
	}
	return out, nil
}

func (s *fakeStore) Delete(ticker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, ticker)
	return nil
}

func (s *fakeStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

// fakeClient is an AuthoritativeClient with scripted answers.
type fakeClient struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]*LookupResult
	err     error
	delay   time.Duration
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls:   make(map[string]int),
		results: make(map[string]*LookupResult),
	}
}

func (c *fakeClient) Lookup(ctx context.Context, ticker string) (*LookupResult, error) {
	c.mu.Lock()
	c.calls[ticker]++
	err := c.err
	result := c.results[ticker]
	delay := c.delay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	return &LookupResult{Ticker: ticker}, nil
}

func (c *fakeClient) callCount(ticker string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[ticker]
}

func testResolver(store PersistentStore, client AuthoritativeClient) *Resolver {
	return NewResolver(ResolverConfig{
		MemorySize:        64,
		EntryTTL:          time.Hour,
		HeuristicTTL:      time.Minute,
		LookupConcurrency: 4,
		BatchTimeout:      2 * time.Second,
	}, store, client, zerolog.Nop())
}

func warningCodes(warnings []domain.Warning) []domain.WarningCode {
	codes := make([]domain.WarningCode, 0, len(warnings))
	for _, w := range warnings {
		codes = append(codes, w.Code)
	}
	return codes
}

func TestResolveAuthoritativeTierWritesThrough(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	client.results["VWCE.DE"] = &LookupResult{Ticker: "VWCE.DE", IsEtf: true}

	r := testResolver(store, client)

	types, warnings := r.Resolve(context.Background(), []string{"VWCE.DE"}, nil)

	assert.Empty(t, warnings)
	assert.Equal(t, domain.SecurityTypeETF, types["VWCE.DE"])
	assert.Equal(t, 1, client.callCount("VWCE.DE"))

	// Persisted with the authoritative tier tag.
	require.Equal(t, 1, store.putCount())
	assert.Equal(t, TierAuthoritative, store.puts[0].SourceTier)

	// Second resolve hits the memory tier, no new external call.
	types, warnings = r.Resolve(context.Background(), []string{"VWCE.DE"}, nil)
	assert.Empty(t, warnings)
	assert.Equal(t, domain.SecurityTypeETF, types["VWCE.DE"])
	assert.Equal(t, 1, client.callCount("VWCE.DE"))
}

func TestResolvePersistentTierHit(t *testing.T) {
	store := newFakeStore()
	store.entries["AAPL.US"] = Entry{
		Ticker:       "AAPL.US",
		SecurityType: domain.SecurityTypeEquity,
		SourceTier:   TierAuthoritative,
		ResolvedAt:   time.Now(),
		TTL:          time.Hour,
	}
	client := newFakeClient()

	r := testResolver(store, client)

	types, warnings := r.Resolve(context.Background(), []string{"AAPL.US"}, nil)

	assert.Empty(t, warnings)
	assert.Equal(t, domain.SecurityTypeEquity, types["AAPL.US"])
	assert.Equal(t, 0, client.callCount("AAPL.US"), "persistent hit must not reach the authoritative tier")
}

func TestResolveFallsBackToHeuristicOnLookupFailure(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	client.err = errors.New("connection refused")

	r := testResolver(store, client)

	types, warnings := r.Resolve(context.Background(), []string{"VFIAX"}, nil)

	assert.Equal(t, domain.SecurityTypeMutualFund, types["VFIAX"])
	require.Len(t, warnings, 1)
	assert.Equal(t, domain.WarnAuthoritativeLookupFailure, warnings[0].Code)

	// Heuristic answers are never persisted.
	assert.Equal(t, 0, store.putCount())
}

func TestResolveTimeoutWarningCode(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	client.err = context.DeadlineExceeded

	r := testResolver(store, client)

	_, warnings := r.Resolve(context.Background(), []string{"SLOW.US"}, nil)

	require.Len(t, warnings, 1)
	assert.Equal(t, domain.WarnAuthoritativeLookupTimeout, warnings[0].Code)
}

func TestResolveStalePersistentBeatsHeuristicWhenLookupFails(t *testing.T) {
	store := newFakeStore()
	store.entries["4GLD.DE"] = Entry{
		Ticker:       "4GLD.DE",
		SecurityType: domain.SecurityTypeETC,
		SourceTier:   TierAuthoritative,
		ResolvedAt:   time.Now().Add(-2 * time.Hour),
		TTL:          time.Hour, // expired
	}
	client := newFakeClient()
	client.err = errors.New("service down")

	r := testResolver(store, client)

	types, warnings := r.Resolve(context.Background(), []string{"4GLD.DE"}, nil)

	// The stale stored answer wins over a fresh guess. The heuristic would
	// have said equity for this ticker.
	assert.Equal(t, domain.SecurityTypeETC, types["4GLD.DE"])
	require.Len(t, warnings, 1)
	assert.Equal(t, domain.WarnAuthoritativeLookupFailure, warnings[0].Code)
	assert.Equal(t, 0, store.putCount(), "stale fallback must not rewrite the store")
}

func TestResolveStoreDownSkipsTierWithSingleWarning(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("disk I/O error")
	client := newFakeClient()
	client.results["A.US"] = &LookupResult{IsEtf: true}

	r := testResolver(store, client)

	types, warnings := r.Resolve(context.Background(), []string{"A.US", "B.US", "C.US"}, nil)

	// One warning for the whole run, not one per ticker.
	codes := warningCodes(warnings)
	storeWarnings := 0
	for _, c := range codes {
		if c == domain.WarnPersistentStoreUnavailable {
			storeWarnings++
		}
	}
	assert.Equal(t, 1, storeWarnings)

	// Every ticker still resolved through the authoritative tier.
	assert.Equal(t, domain.SecurityTypeETF, types["A.US"])
	assert.Equal(t, domain.SecurityTypeEquity, types["B.US"])
	assert.Equal(t, domain.SecurityTypeEquity, types["C.US"])
}

func TestResolveDeduplicatesTickersInBatch(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()

	r := testResolver(store, client)

	types, _ := r.Resolve(context.Background(), []string{"AAPL.US", "AAPL.US", "AAPL.US"}, nil)

	assert.Len(t, types, 1)
	assert.Equal(t, 1, client.callCount("AAPL.US"))
}

func TestResolveNoTiersConfiguredUsesHeuristic(t *testing.T) {
	r := testResolver(nil, nil)

	hints := map[string]domain.SecurityType{"XYZ.US": domain.SecurityTypeBond}
	types, warnings := r.Resolve(context.Background(), []string{"XYZ.US", "CUR:USD"}, hints)

	assert.Empty(t, warnings)
	assert.Equal(t, domain.SecurityTypeBond, types["XYZ.US"])
	assert.Equal(t, domain.SecurityTypeCash, types["CUR:USD"])
}

func TestResolveBatchTimeoutFallsThroughToHeuristic(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	client.delay = time.Second

	r := NewResolver(ResolverConfig{
		MemorySize:        64,
		EntryTTL:          time.Hour,
		HeuristicTTL:      time.Minute,
		LookupConcurrency: 4,
		BatchTimeout:      30 * time.Millisecond,
	}, store, client, zerolog.Nop())

	types, warnings := r.Resolve(context.Background(), []string{"AAPL.US"}, nil)

	// The ticker is not lost: the heuristic answers after the budget expires.
	assert.Equal(t, domain.SecurityTypeEquity, types["AAPL.US"])
	require.Len(t, warnings, 1)
	assert.Equal(t, domain.WarnAuthoritativeLookupTimeout, warnings[0].Code)
}

func TestResolveEmptyAndBlankInput(t *testing.T) {
	r := testResolver(nil, nil)

	types, warnings := r.Resolve(context.Background(), []string{"", ""}, nil)
	assert.Empty(t, types)
	assert.Empty(t, warnings)

	types, warnings = r.Resolve(context.Background(), nil, nil)
	assert.Empty(t, types)
	assert.Empty(t, warnings)
}

func TestForceRefreshBypassesCaches(t *testing.T) {
	store := newFakeStore()
	store.entries["AAPL.US"] = Entry{
		Ticker:       "AAPL.US",
		SecurityType: domain.SecurityTypeUnknown,
		SourceTier:   TierAuthoritative,
		ResolvedAt:   time.Now(),
		TTL:          time.Hour,
	}
	client := newFakeClient()
	client.results["AAPL.US"] = &LookupResult{Ticker: "AAPL.US"}

	r := testResolver(store, client)

	entry, err := r.ForceRefresh(context.Background(), "AAPL.US")
	require.NoError(t, err)

	assert.Equal(t, domain.SecurityTypeEquity, entry.SecurityType)
	assert.Equal(t, 1, client.callCount("AAPL.US"), "fresh cache entry must not short-circuit a forced refresh")
	assert.Equal(t, domain.SecurityTypeEquity, store.entries["AAPL.US"].SecurityType)
}

func TestForceRefreshWithoutClient(t *testing.T) {
	r := testResolver(newFakeStore(), nil)

	_, err := r.ForceRefresh(context.Background(), "AAPL.US")
	require.Error(t, err)
}

func TestRefreshStale(t *testing.T) {
	store := newFakeStore()
	store.entries["OLD.US"] = Entry{
		Ticker:       "OLD.US",
		SecurityType: domain.SecurityTypeEquity,
		SourceTier:   TierAuthoritative,
		ResolvedAt:   time.Now().Add(-48 * time.Hour),
		TTL:          30 * 24 * time.Hour,
	}
	store.entries["NEW.US"] = Entry{
		Ticker:       "NEW.US",
		SecurityType: domain.SecurityTypeEquity,
		SourceTier:   TierAuthoritative,
		ResolvedAt:   time.Now(),
		TTL:          30 * 24 * time.Hour,
	}
	client := newFakeClient()

	r := testResolver(store, client)

	refreshed, err := r.RefreshStale(context.Background(), 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 1, client.callCount("OLD.US"))
	assert.Equal(t, 0, client.callCount("NEW.US"))
}

func TestCachedEntryAndInvalidate(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	client.results["VWCE.DE"] = &LookupResult{IsEtf: true}

	r := testResolver(store, client)

	// Nothing cached yet.
	entry, err := r.CachedEntry("VWCE.DE")
	require.NoError(t, err)
	assert.Nil(t, entry)

	r.Resolve(context.Background(), []string{"VWCE.DE"}, nil)

	entry, err = r.CachedEntry("VWCE.DE")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.SecurityTypeETF, entry.SecurityType)

	require.NoError(t, r.Invalidate("VWCE.DE"))

	entry, err = r.CachedEntry("VWCE.DE")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestResolveConcurrentCallersShareOneLookup(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	client.delay = 100 * time.Millisecond
	client.results["VWCE.DE"] = &LookupResult{Ticker: "VWCE.DE", IsEtf: true}

	r := testResolver(store, client)

	var wg sync.WaitGroup
	results := make([]map[string]domain.SecurityType, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			types, warnings := r.Resolve(context.Background(), []string{"VWCE.DE"}, nil)
			assert.Empty(t, warnings)
			results[i] = types
		}(i)
	}
	wg.Wait()

	for _, types := range results {
		assert.Equal(t, domain.SecurityTypeETF, types["VWCE.DE"])
	}
	assert.Equal(t, 1, client.callCount("VWCE.DE"),
		"overlapping resolves for the same ticker must share one in-flight lookup")
}
