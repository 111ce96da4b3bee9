package app

import (
	"context"
	"fmt"
	"io"
	"math/big"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peergramhq/peergram/pkg/catalog"
	pgerrors "github.com/peergramhq/peergram/pkg/errors"
	"github.com/peergramhq/peergram/pkg/ledger"
	"github.com/peergramhq/peergram/pkg/logging"
	"github.com/peergramhq/peergram/pkg/state"
)

// Provider is the execution context the client binds at startup. A nil
// provider means no compatible execution context exists; every
// ledger-dependent operation then reports itself unavailable instead of
// crashing.
type Provider interface {
	Accounts(ctx context.Context) ([]string, error)
	NetworkID(ctx context.Context) (string, error)
}

// PermissionRequester is implemented by providers that need an explicit
// one-time access grant. Legacy providers without it are bound using their
// existing connection.
type PermissionRequester interface {
	RequestPermission(ctx context.Context) error
}

// Registry is the contract handle the orchestrators operate against
type Registry interface {
	catalog.Fetcher
	Register(ctx context.Context, contentHash, description string) (ledger.TxHandle, error)
	Tip(ctx context.Context, id uint64, amount *big.Int) (ledger.TxHandle, error)
}

// Storer submits a blob to the content-addressed storage network
type Storer interface {
	Store(ctx context.Context, data []byte, name string) (string, error)
}

// Retriever is optionally implemented by storage clients that can read
// published content back out of the storage network
type Retriever interface {
	Get(ctx context.Context, contentID string) (io.ReadCloser, error)
}

// RegistryResolver resolves the registry handle for a network reference and
// signing identity. ok=false is the valid "not deployed here" outcome.
type RegistryResolver func(network, identity string) (registry Registry, ok bool, err error)

// Options configures an App. Provider, ResolveRegistry and Storage are the
// injected external collaborators; tests substitute doubles for all three.
type Options struct {
	Provider        Provider
	ResolveRegistry RegistryResolver
	Storage         Storer
	Store           *state.Store
	Cache           *catalog.Cache // optional catalog snapshot cache
	Logger          *logging.ColoredLogger

	// FetchConcurrency is handed to the catalog loader; 1 keeps the
	// strictly sequential fetch.
	FetchConcurrency int

	// LegacyBusyOnStoreFailure leaves busy set when the storage upload of a
	// publish fails, for deployments that depend on the old behavior. The
	// corrected default clears busy on every publish exit path.
	LegacyBusyOnStoreFailure bool
}

// App sequences the client's workflows: startup (identity, network context,
// catalog load), publish staging, the store-then-register publish sequence,
// and tipping. All state flows through the single shared Store.
type App struct {
	provider Provider
	resolve  RegistryResolver
	storage  Storer
	store    *state.Store
	cache    *catalog.Cache
	logger   *logging.ColoredLogger

	registry         Registry
	fetchConcurrency int
	legacyBusy       bool
}

// New creates the application core
func New(opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.Storage == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if opts.ResolveRegistry == nil {
		opts.ResolveRegistry = func(string, string) (Registry, bool, error) { return nil, false, nil }
	}

	return &App{
		provider:         opts.Provider,
		resolve:          opts.ResolveRegistry,
		storage:          opts.Storage,
		store:            opts.Store,
		cache:            opts.Cache,
		logger:           opts.Logger,
		fetchConcurrency: opts.FetchConcurrency,
		legacyBusy:       opts.LegacyBusyOnStoreFailure,
	}, nil
}

// Store exposes the application state for the render boundary
func (a *App) Store() *state.Store {
	return a.store
}

// Start runs the startup sequence exactly once: bind the execution context,
// resolve identity and network, resolve the registry deployment, and load
// the catalog. Every failure along the way is a non-fatal advisory; the
// busy/loading flag is cleared on all paths so the view can render.
func (a *App) Start(ctx context.Context) error {
	if !a.bindExecutionContext(ctx) {
		a.store.SetBusy(false)
		return nil
	}

	if !a.loadNetworkContext(ctx) {
		a.store.SetBusy(false)
		return nil
	}

	a.loadCatalog(ctx)
	return nil
}

// bindExecutionContext is the identity-resolver phase. Returns false when no
// usable execution context exists; ledger features stay disabled.
func (a *App) bindExecutionContext(ctx context.Context) bool {
	if a.provider == nil {
		a.advise(logging.ComponentWallet, "no compatible execution context")
		return false
	}

	if requester, ok := a.provider.(PermissionRequester); ok {
		if err := requester.RequestPermission(ctx); err != nil {
			a.advise(logging.ComponentWallet, "no compatible execution context", zap.Error(err))
			return false
		}
		a.logger.ComponentInfo(logging.ComponentWallet, "execution context bound with permission")
	} else {
		a.logger.ComponentInfo(logging.ComponentWallet, "legacy execution context bound")
	}
	return true
}

// loadNetworkContext is the network-context-loader phase. Returns false when
// the registry is not deployed on the connected network.
func (a *App) loadNetworkContext(ctx context.Context) bool {
	accounts, err := a.provider.Accounts(ctx)
	if err != nil || len(accounts) == 0 {
		a.advise(logging.ComponentWallet, "no account available in execution context", zap.Error(err))
		return false
	}
	identity := accounts[0]
	a.store.SetIdentity(identity)

	network, err := a.provider.NetworkID(ctx)
	if err != nil {
		a.advise(logging.ComponentLedger, "failed to determine connected network", zap.Error(err))
		return false
	}
	a.store.SetNetwork(network)

	registry, ok, err := a.resolve(network, identity)
	if err != nil {
		a.advise(logging.ComponentLedger, "failed to bind registry contract", zap.Error(err))
		return false
	}
	if !ok {
		a.advise(logging.ComponentLedger, "registry not deployed to this network", zap.String("network", network))
		a.store.SetRegistryAvailable(false)
		return false
	}

	a.registry = registry
	a.store.SetRegistryAvailable(true)
	a.logger.ComponentInfo(logging.ComponentLedger, "registry bound",
		zap.String("network", network),
		zap.String("identity", identity),
	)
	return true
}

// loadCatalog runs the catalog loader and maintains the cache. Load clears
// the busy flag itself on every path.
func (a *App) loadCatalog(ctx context.Context) {
	loader := catalog.NewLoader(a.registry, a.store, a.logger, a.fetchConcurrency)

	if err := loader.Load(ctx); err != nil {
		a.advise(logging.ComponentCatalog, "catalog load failed", zap.Error(err))
		a.serveCachedCatalog(ctx)
		return
	}

	if a.cache != nil {
		if err := a.cache.Save(ctx, a.store.Network(), a.store.Entries()); err != nil {
			a.logger.ComponentWarn(logging.ComponentCatalog, "failed to cache catalog", zap.Error(err))
		}
	}
}

// serveCachedCatalog falls back to the last cached ranking after a failed
// load, so the user still sees something instead of an empty view.
func (a *App) serveCachedCatalog(ctx context.Context) {
	if a.cache == nil {
		return
	}
	cached, err := a.cache.Load(ctx, a.store.Network())
	if err != nil {
		a.logger.ComponentWarn(logging.ComponentCatalog, "failed to read catalog cache", zap.Error(err))
		return
	}
	if len(cached) == 0 {
		return
	}
	a.store.SetEntries(cached)
	a.advise(logging.ComponentCatalog, "showing cached catalog", zap.Int("entries", len(cached)))
}

// RefreshCatalog re-runs the full catalog load. Publishing and tipping never
// refresh the catalog themselves; new entries and updated rankings become
// visible only through this full reload.
func (a *App) RefreshCatalog(ctx context.Context) error {
	if a.registry == nil {
		return pgerrors.ErrRegistryUnavailable
	}
	a.store.SetBusy(true)
	loader := catalog.NewLoader(a.registry, a.store, a.logger, a.fetchConcurrency)
	if err := loader.Load(ctx); err != nil {
		a.advise(logging.ComponentCatalog, "catalog reload failed", zap.Error(err))
		return err
	}
	if a.cache != nil {
		if err := a.cache.Save(ctx, a.store.Network(), a.store.Entries()); err != nil {
			a.logger.ComponentWarn(logging.ComponentCatalog, "failed to cache catalog", zap.Error(err))
		}
	}
	return nil
}

// SelectFile handles the file-selected intent: one awaited read of the
// payload bytes, then an unconditional replace of the staged payload.
// Concurrent selections are last-write-wins; whichever read completes last
// owns the staging buffer, regardless of selection order.
func (a *App) SelectFile(ctx context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return pgerrors.Wrap(err, "failed to read selected file")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	seq := a.store.SetStagedPayload(data)
	a.logger.ComponentInfo(logging.ComponentApp, "payload staged",
		zap.Int("bytes", len(data)),
		zap.Uint64("staging_seq", seq),
	)
	return nil
}

// OpenMedia reads a published payload back from the storage network by its
// content identifier. The caller owns the returned reader.
func (a *App) OpenMedia(ctx context.Context, contentID string) (io.ReadCloser, error) {
	retriever, ok := a.storage.(Retriever)
	if !ok {
		return nil, pgerrors.New("storage client does not support retrieval")
	}
	return retriever.Get(ctx, contentID)
}

// Publish handles the publish-requested intent: upload the staged payload
// to the storage network, then register the returned content identifier
// with the description on the ledger. Upload strictly precedes
// registration; registration is never attempted without a content
// identifier.
func (a *App) Publish(ctx context.Context, description string) (ledger.TxHandle, error) {
	if a.registry == nil {
		return ledger.TxHandle{}, pgerrors.ErrRegistryUnavailable
	}
	if a.store.Identity() == "" {
		return ledger.TxHandle{}, pgerrors.ErrNoExecutionContext
	}

	payload, seq := a.store.StagedPayload()
	if len(payload) == 0 {
		return ledger.TxHandle{}, pgerrors.ErrNoStagedPayload
	}

	workflow := uuid.NewString()
	a.logger.ComponentInfo(logging.ComponentApp, "publish started",
		zap.String("workflow", workflow),
		zap.Uint64("staging_seq", seq),
		zap.Int("bytes", len(payload)),
	)

	a.store.SetBusy(true)

	contentHash, err := a.storage.Store(ctx, payload, workflow)
	if err != nil {
		a.advise(logging.ComponentStorage, "storage upload failed",
			zap.String("workflow", workflow), zap.Error(err))
		if !a.legacyBusy {
			a.store.SetBusy(false)
		}
		return ledger.TxHandle{}, err
	}

	handle, err := a.registry.Register(ctx, contentHash, description)
	if err != nil {
		a.advise(logging.ComponentLedger, "registration rejected",
			zap.String("workflow", workflow), zap.Error(err))
		a.store.SetBusy(false)
		return ledger.TxHandle{}, err
	}

	a.store.SetBusy(false)
	a.logger.ComponentInfo(logging.ComponentApp, "publish accepted",
		zap.String("workflow", workflow),
		zap.String("content_hash", contentHash),
		zap.String("tx", handle.Hash),
	)
	return handle, nil
}

// Tip handles the tip-requested intent: transfer value to the owner of the
// entry with the given id. The id is the caller's responsibility; no local
// existence check is performed and the local catalog is never touched. The
// new ranking becomes visible only on the next full catalog reload.
func (a *App) Tip(ctx context.Context, id uint64, amount *big.Int) (ledger.TxHandle, error) {
	if a.registry == nil {
		return ledger.TxHandle{}, pgerrors.ErrRegistryUnavailable
	}
	if amount == nil || amount.Sign() <= 0 {
		return ledger.TxHandle{}, pgerrors.NewValidationError("amount", "tip amount must be positive", amount)
	}

	a.store.SetBusy(true)

	handle, err := a.registry.Tip(ctx, id, amount)
	if err != nil {
		a.advise(logging.ComponentLedger, "tip rejected",
			zap.Uint64("entry_id", id), zap.Error(err))
		a.store.SetBusy(false)
		return ledger.TxHandle{}, err
	}

	a.store.SetBusy(false)
	a.logger.ComponentInfo(logging.ComponentApp, "tip accepted",
		zap.Uint64("entry_id", id),
		zap.String("amount", amount.String()),
		zap.String("tx", handle.Hash),
	)
	return handle, nil
}

// advise records a user-visible advisory and logs it
func (a *App) advise(component logging.Component, message string, fields ...zap.Field) {
	a.store.RecordAdvisory(message)
	a.logger.ComponentWarn(component, message, fields...)
}
