package catalog

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"

	"go.uber.org/zap"

	pgerrors "github.com/peergramhq/peergram/pkg/errors"
	"github.com/peergramhq/peergram/pkg/logging"
	"github.com/peergramhq/peergram/pkg/state"
)

// Fetcher is the read side of the registry contract: the entry count and
// per-id entry queries the loader consumes.
type Fetcher interface {
	Count(ctx context.Context) (uint64, error)
	EntryAt(ctx context.Context, id uint64) (state.Entry, error)
}

// Loader retrieves the full entry catalog from the registry and publishes
// it into the application state ranked by tip amount.
type Loader struct {
	fetcher Fetcher
	store   *state.Store
	logger  *logging.ColoredLogger

	// concurrency is the number of in-flight fetches. At 1 (the default)
	// fetching is strictly sequential, ids ascending, and every fetched
	// entry is reflected into the state store before the next fetch begins.
	concurrency int
}

// NewLoader creates a catalog loader. concurrency values below 1 are
// treated as 1.
func NewLoader(fetcher Fetcher, store *state.Store, logger *logging.ColoredLogger, concurrency int) *Loader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Loader{
		fetcher:     fetcher,
		store:       store,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Load fetches all entries and replaces the store's catalog with the ranked
// sequence. The busy flag is cleared on every exit path: a load that fails
// must never leave the client stuck in its loading state. Individual fetch
// failures are collected and reported together rather than aborting the
// remaining ids; a cancelled context aborts immediately.
func (l *Loader) Load(ctx context.Context) error {
	defer l.store.SetBusy(false)

	count, err := l.fetcher.Count(ctx)
	if err != nil {
		return pgerrors.NewFetchError(0, err)
	}

	l.logger.ComponentInfo(logging.ComponentCatalog, "loading catalog",
		zap.Uint64("count", count),
		zap.Int("concurrency", l.concurrency),
	)

	// A reload starts from an empty catalog: the progressive appends below
	// must never mix with a previously published ranking.
	l.store.SetEntries(nil)

	var entries []state.Entry
	var errs []error

	if l.concurrency == 1 {
		entries, errs = l.loadSequential(ctx, count)
	} else {
		entries, errs = l.loadConcurrent(ctx, count)
	}

	// Publish the ranked result even when cancelled mid-load, so the store
	// never holds a partial unranked sequence.
	l.store.SetEntries(Rank(entries))

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if len(errs) > 0 {
		l.logger.ComponentWarn(logging.ComponentCatalog, "catalog loaded with failures",
			zap.Int("loaded", len(entries)),
			zap.Int("failed", len(errs)),
		)
		return errors.Join(errs...)
	}

	l.logger.ComponentInfo(logging.ComponentCatalog, "catalog loaded", zap.Int("entries", len(entries)))
	return nil
}

// loadSequential fetches ids 1..count one at a time, appending each result
// into the state store as it arrives so partial progress is observable.
func (l *Loader) loadSequential(ctx context.Context, count uint64) ([]state.Entry, []error) {
	entries := make([]state.Entry, 0, count)
	var errs []error

	for id := uint64(1); id <= count; id++ {
		if ctx.Err() != nil {
			return entries, errs
		}
		entry, err := l.fetcher.EntryAt(ctx, id)
		if err != nil {
			errs = append(errs, pgerrors.NewFetchError(id, err))
			continue
		}
		entries = append(entries, entry)
		l.store.AppendEntry(entry)
	}
	return entries, errs
}

// loadConcurrent fetches with a bounded number of in-flight requests for
// very large catalogs. Results keep ascending-id order; the store is only
// updated once at the end, so there is no per-entry progressive view in
// this mode.
func (l *Loader) loadConcurrent(ctx context.Context, count uint64) ([]state.Entry, []error) {
	type result struct {
		entry state.Entry
		err   error
		ok    bool
	}

	results := make([]result, count)
	sem := make(chan struct{}, l.concurrency)
	var wg sync.WaitGroup

	for id := uint64(1); id <= count; id++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(id uint64) {
			defer wg.Done()
			defer func() { <-sem }()

			entry, err := l.fetcher.EntryAt(ctx, id)
			if err != nil {
				results[id-1] = result{err: pgerrors.NewFetchError(id, err)}
				return
			}
			results[id-1] = result{entry: entry, ok: true}
		}(id)
	}
	wg.Wait()

	entries := make([]state.Entry, 0, count)
	var errs []error
	for _, r := range results {
		if r.ok {
			entries = append(entries, r.entry)
		} else if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	return entries, errs
}

// Rank returns the entries sorted by tip amount descending. The sort is
// stable: entries with equal tip amounts keep their relative (ascending-id
// fetch) order.
func Rank(entries []state.Entry) []state.Entry {
	ranked := append([]state.Entry(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return tipOf(ranked[i]).Cmp(tipOf(ranked[j])) > 0
	})
	return ranked
}

func tipOf(e state.Entry) *big.Int {
	if e.TipAmount == nil {
		return big.NewInt(0)
	}
	return e.TipAmount
}
