package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/custodian/internal/domain"
)

// PersistentStore is the resolver's view of the durable tier. A nil store
// disables the tier entirely; a store that starts erroring mid-run is skipped
// for the remainder of that run.
type PersistentStore interface {
	GetIfFresh(ticker string) (*Entry, error)
	Get(ticker string) (*Entry, error)
	Put(entry Entry) error
	ListStale(maxAge time.Duration) ([]string, error)
	Delete(ticker string) error
}

// ResolverConfig tunes the lookup chain.
type ResolverConfig struct {
	MemorySize        int           // bounded LFU capacity
	EntryTTL          time.Duration // lifetime of authoritative/persistent answers
	HeuristicTTL      time.Duration // memory-only lifetime of provisional answers
	LookupConcurrency int           // max in-flight authoritative calls
	BatchTimeout      time.Duration // overall budget for one Resolve call
}

// Resolver resolves tickers to security types through the tier chain
// memory -> persistent -> authoritative -> heuristic. It is safe for
// concurrent callers: the memory tier is lock-guarded and concurrent
// authoritative lookups for the same ticker are collapsed into one call.
type Resolver struct {
	cfg    ResolverConfig
	memory *memoryCache
	store  PersistentStore
	client AuthoritativeClient
	sf     singleflight.Group
	sem    chan struct{}
	log    zerolog.Logger
}

// NewResolver creates a resolver. store and client may be nil, which
// disables their tiers; every miss then falls through to the heuristic.
func NewResolver(cfg ResolverConfig, store PersistentStore, client AuthoritativeClient, log zerolog.Logger) *Resolver {
	if cfg.LookupConcurrency <= 0 {
		cfg.LookupConcurrency = 8
	}
	return &Resolver{
		cfg:    cfg,
		memory: newMemoryCache(cfg.MemorySize),
		store:  store,
		client: client,
		sem:    make(chan struct{}, cfg.LookupConcurrency),
		log:    log.With().Str("component", "classification_resolver").Logger(),
	}
}

// Resolve classifies a batch of tickers. Every ticker gets an answer; tier
// failures degrade to the next tier and surface as warnings, never as
// errors. hints carries provider-reported types for the heuristic tier and
// may be nil.
func (r *Resolver) Resolve(ctx context.Context, tickers []string, hints map[string]domain.SecurityType) (map[string]domain.SecurityType, []domain.Warning) {
	now := time.Now()
	results := make(map[string]domain.SecurityType, len(tickers))
	var warnings []domain.Warning

	// Dedupe, preserving first-seen order.
	seen := make(map[string]bool, len(tickers))
	var distinct []string
	for _, t := range tickers {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		distinct = append(distinct, t)
	}

	// Tiers 1 and 2 are local and cheap; walk them sequentially.
	storeDown := false
	var pending []string
	for _, ticker := range distinct {
		if entry, ok := r.memory.Get(ticker); ok && !entry.Stale(now) {
			results[ticker] = entry.SecurityType
			continue
		}

		if r.store != nil && !storeDown {
			entry, err := r.store.GetIfFresh(ticker)
			if err != nil {
				// One store error disables the tier for the whole run.
				storeDown = true
				warnings = append(warnings, domain.Warningf(
					domain.WarnPersistentStoreUnavailable, "", "",
					"persistent tier skipped for this run: %v", err))
			} else if entry != nil {
				// Write through upward so the next run hits tier 1.
				r.memory.Put(*entry)
				results[ticker] = entry.SecurityType
				continue
			}
		}

		pending = append(pending, ticker)
	}

	if len(pending) == 0 {
		return results, warnings
	}

	// Tiers 3 and 4, fanned out under the batch budget. Expiry of the batch
	// deadline sends the stragglers to the heuristic, it never loses them.
	batchCtx, cancel := context.WithTimeout(ctx, r.cfg.BatchTimeout)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, ticker := range pending {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()

			securityType, warns := r.resolveSlow(batchCtx, ticker, hints[ticker], storeDown)

			mu.Lock()
			results[ticker] = securityType
			warnings = append(warnings, warns...)
			mu.Unlock()
		}(ticker)
	}
	wg.Wait()

	return results, warnings
}

// resolveSlow runs the authoritative and heuristic tiers for one ticker.
func (r *Resolver) resolveSlow(ctx context.Context, ticker string, hint domain.SecurityType, storeDown bool) (domain.SecurityType, []domain.Warning) {
	var warnings []domain.Warning

	if r.client != nil {
		entry, err := r.lookupAuthoritative(ctx, ticker)
		if err == nil {
			// Commit only after a successful resolution, persistent first so
			// a crash between writes can only lose the cheaper memory copy.
			if r.store != nil && !storeDown {
				if putErr := r.store.Put(entry); putErr != nil {
					r.log.Warn().Err(putErr).Str("ticker", ticker).Msg("Failed to persist classification")
				}
			}
			r.memory.Put(entry)
			return entry.SecurityType, nil
		}

		code := domain.WarnAuthoritativeLookupFailure
		if isTimeout(err) {
			code = domain.WarnAuthoritativeLookupTimeout
		}
		warnings = append(warnings, domain.Warningf(code, ticker, "", "%v", err))

		// Stale persistent data beats a guess when the service is down.
		if r.store != nil && !storeDown {
			if stale, staleErr := r.store.Get(ticker); staleErr == nil && stale != nil {
				provisional := *stale
				provisional.TTL = r.cfg.HeuristicTTL
				provisional.ResolvedAt = time.Now()
				r.memory.Put(provisional)
				return stale.SecurityType, warnings
			}
		}
	}

	securityType := HeuristicClassify(ticker, hint)

	// Cache briefly in memory to avoid re-deriving within a run, but never
	// persist a guess.
	r.memory.Put(Entry{
		Ticker:       ticker,
		SecurityType: securityType,
		SourceTier:   TierHeuristic,
		ResolvedAt:   time.Now(),
		TTL:          r.cfg.HeuristicTTL,
	})

	return securityType, warnings
}

// lookupAuthoritative performs a deduplicated, concurrency-bounded lookup.
func (r *Resolver) lookupAuthoritative(ctx context.Context, ticker string) (Entry, error) {
	// Acquire a fan-out slot, or give up when the batch budget is spent.
	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}

	// Concurrent callers asking for the same ticker share one external call.
	v, err, _ := r.sf.Do(ticker, func() (interface{}, error) {
		return r.client.Lookup(ctx, ticker)
	})
	if err != nil {
		return Entry{}, err
	}

	result := v.(*LookupResult)
	return Entry{
		Ticker:       ticker,
		SecurityType: result.SecurityType(),
		SourceTier:   TierAuthoritative,
		ResolvedAt:   time.Now(),
		TTL:          r.cfg.EntryTTL,
	}, nil
}

// ForceRefresh bypasses every cache tier and re-resolves a ticker against
// the authoritative service, writing the fresh entry through both tiers.
// Used by the administrative surface and the bulk refresh job.
func (r *Resolver) ForceRefresh(ctx context.Context, ticker string) (Entry, error) {
	if r.client == nil {
		return Entry{}, fmt.Errorf("authoritative lookup not configured")
	}

	entry, err := r.lookupAuthoritative(ctx, ticker)
	if err != nil {
		return Entry{}, fmt.Errorf("refresh %s: %w", ticker, err)
	}

	if r.store != nil {
		if err := r.store.Put(entry); err != nil {
			return Entry{}, fmt.Errorf("persist refreshed entry for %s: %w", ticker, err)
		}
	}
	r.memory.Put(entry)

	return entry, nil
}

// RefreshStale re-resolves every persisted entry older than maxAge.
// Returns the number of entries refreshed; individual failures are logged
// and skipped so one dead ticker cannot stall the sweep.
func (r *Resolver) RefreshStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if r.store == nil {
		return 0, fmt.Errorf("persistent store not configured")
	}

	tickers, err := r.store.ListStale(maxAge)
	if err != nil {
		return 0, fmt.Errorf("list stale entries: %w", err)
	}

	refreshed := 0
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, err := r.ForceRefresh(ctx, ticker); err != nil {
			r.log.Warn().Err(err).Str("ticker", ticker).Msg("Stale refresh failed, keeping old entry")
			continue
		}
		refreshed++
	}

	r.log.Info().Int("stale", len(tickers)).Int("refreshed", refreshed).Msg("Stale classification refresh completed")
	return refreshed, nil
}

// CachedEntry returns the current cached entry for a ticker without
// triggering any resolution: memory first, then the persistent store
// (stale entries included). Returns nil when the ticker is unknown.
func (r *Resolver) CachedEntry(ticker string) (*Entry, error) {
	if entry, ok := r.memory.Get(ticker); ok {
		return &entry, nil
	}
	if r.store == nil {
		return nil, nil
	}
	return r.store.Get(ticker)
}

// Invalidate drops a ticker from both cache tiers.
func (r *Resolver) Invalidate(ticker string) error {
	r.memory.Delete(ticker)
	if r.store == nil {
		return nil
	}
	return r.store.Delete(ticker)
}

// isTimeout distinguishes deadline expiry from other failures so the right
// warning code is emitted.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
