// Package session implements the cart reconciliation engine: one logical
// cart session that loads the persisted cart, merges it with the server cart
// after login, applies mutations optimistically and syncs them in the
// background.
//
// A Session is the single owner of the in-memory cart. All mutations pass
// through AddToCart, RemoveFromCart, UpdateQuantity, Reload, Login and
// Logout; readers get deep copies.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"cart-sync/internal/gateway"
	"cart-sync/internal/localcart"
	"cart-sync/internal/model"
	"cart-sync/internal/reconcile"
	"cart-sync/internal/storage"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrClosed is returned by operations on a disposed Session.
var ErrClosed = errors.New("session closed")

const (
	DefaultSyncTimeout  = 15 * time.Second
	DefaultNoticeBuffer = 32

	// maxConcurrentPushes bounds delta pushes after a merge.
	maxConcurrentPushes = 4

	reloadKey = "reload"
)

// Validator extracts the subject of a usable credential.
// *token.Validator satisfies it.
type Validator interface {
	SubjectID(token string) (string, bool)
}

// Options tunes engine behavior.
type Options struct {
	// SerializeLineSync runs network calls for the same (product, size) line
	// one at a time in call order. When false, calls race at the server.
	SerializeLineSync bool

	// SyncTimeout bounds each gateway call. Default: 15s.
	SyncTimeout time.Duration

	// NoticeBuffer is the capacity of the Notices channel. Default: 32.
	NoticeBuffer int
}

// Config holds the collaborators of a Session.
type Config struct {
	// Store holds the credential under storage.KeyToken. When it also
	// implements storage.Watcher, credential changes made by other
	// instances trigger a reload.
	Store storage.Storage

	// Local persists the cart. Default: localcart over Store.
	Local *localcart.Store

	Validator Validator
	Gateway   gateway.Gateway
	Logger    *slog.Logger
	Options   Options
}

// Session is the cart reconciliation engine.
type Session struct {
	store     storage.Storage
	local     *localcart.Store
	validator Validator
	gateway   gateway.Gateway
	logger    *slog.Logger
	opts      Options

	mu      sync.Mutex
	state   State
	cart    model.Cart
	subject string
	loaded  bool                          // first load cycle completed
	pending []func(model.Cart) model.Cart // mutations made while loading
	held    []func()                      // their syncs, started once the load completes
	gen     uint64                        // bumped by each load cycle and by Logout

	notices   chan Notice
	stopWatch func()

	reloads singleflight.Group
	syncs   sync.WaitGroup
	lines   *lineQueues // nil unless SerializeLineSync
}

// New creates a Session. Call Start to run the first load.
func New(cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if cfg.Validator == nil {
		return nil, errors.New("session: validator is required")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("session: gateway is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	local := cfg.Local
	if local == nil {
		local = localcart.New(cfg.Store, logger)
	}

	opts := cfg.Options
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = DefaultSyncTimeout
	}
	if opts.NoticeBuffer <= 0 {
		opts.NoticeBuffer = DefaultNoticeBuffer
	}

	s := &Session{
		store:     cfg.Store,
		local:     local,
		validator: cfg.Validator,
		gateway:   cfg.Gateway,
		logger:    logger,
		opts:      opts,
		state:     StateUninitialized,
		cart:      model.Cart{},
		notices:   make(chan Notice, opts.NoticeBuffer),
	}
	if opts.SerializeLineSync {
		s.lines = newLineQueues()
	}
	return s, nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start subscribes to credential changes from other instances and runs the
// initial load. It may be called once.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("session: cannot start in state %s", st)
	}
	s.mu.Unlock()

	if w, ok := s.store.(storage.Watcher); ok {
		stop, err := w.Watch(context.WithoutCancel(ctx), s.onStorageChange)
		if err != nil {
			return fmt.Errorf("session: watching storage: %w", err)
		}
		s.mu.Lock()
		s.stopWatch = stop
		s.mu.Unlock()
	}

	return s.Reload(ctx)
}

// onStorageChange reloads when another instance changed the credential.
func (s *Session) onStorageChange(c storage.Change) {
	if c.Key != storage.KeyToken {
		return
	}
	s.logger.Info("credential changed externally, reloading cart",
		slog.Bool("removed", c.Removed))

	// A newer credential must not join a reload that read the old one.
	s.reloads.Forget(reloadKey)

	s.syncs.Add(1)
	go func() {
		defer s.syncs.Done()
		if err := s.Reload(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
			s.logger.Error("reload after storage change", slog.String("error", err.Error()))
		}
	}()
}

// Close unsubscribes from storage changes and disposes the session.
// In-flight network calls finish in the background; their results no
// longer produce notices. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateDisposed
	stop := s.stopWatch
	s.stopWatch = nil
	close(s.notices)
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.logger.Debug("session disposed")
	return nil
}

// Flush blocks until background syncs started so far have finished.
// It must not be called concurrently with new mutations.
func (s *Session) Flush() {
	s.syncs.Wait()
}

// =============================================================================
// LOAD AND MERGE
// =============================================================================

// Reload runs the initialization sequence: read the credential, load the
// local cart, merge it with the server cart when logged in, persist the
// result and push local-only quantities to the server. Concurrent calls
// share one run. Network failures never surface as errors; they fall back
// to the local cart.
func (s *Session) Reload(ctx context.Context) error {
	_, err, _ := s.reloads.Do(reloadKey, func() (any, error) {
		return nil, s.reload(ctx)
	})
	return err
}

func (s *Session) reload(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = StateLoading
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	tok, subject, ok := s.credential()
	localCart := s.local.Load()

	if !ok {
		s.logger.Debug("no valid credential, using local cart", slog.Int("count", reconcile.Count(localCart)))
		s.finishLoad(gen, localCart, "", false)
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.SyncTimeout)
	serverCart, err := s.gateway.FetchCart(fetchCtx, subject, tok)
	cancel()

	switch {
	case err == nil:
		merged := reconcile.Merge(localCart, serverCart)
		deltas := reconcile.PushDeltas(localCart, serverCart)
		s.logger.Info("cart merged",
			slog.String("subject", subject),
			slog.Int("local", reconcile.Count(localCart)),
			slog.Int("server", reconcile.Count(serverCart)),
			slog.Int("merged", reconcile.Count(merged)),
			slog.Int("deltas", len(deltas)))

		if s.finishLoad(gen, merged, subject, true) && len(deltas) > 0 {
			s.pushDeltas(ctx, subject, tok, deltas)
		}

	case model.IsUnauthorized(err):
		s.logger.Warn("server rejected credential during load", slog.String("error", err.Error()))
		s.purgeCredential(tok)
		s.emit(Notice{Kind: NoticeSessionExpired, Message: "your session has expired, please login again", Err: err})
		s.finishLoad(gen, localCart, "", true)

	default:
		s.logger.Warn("fetching server cart failed, using local cart", slog.String("error", err.Error()))
		s.finishLoad(gen, localCart, subject, true)
	}

	return nil
}

// finishLoad installs the loaded cart, replays mutations made while loading,
// starts their syncs and transitions to Ready. It reports false and changes
// nothing when the session was disposed, logged out or reloaded again since
// the load cycle gen began.
func (s *Session) finishLoad(gen uint64, cart model.Cart, subject string, persist bool) bool {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return false
	}
	if s.gen != gen {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded load")
		return false
	}

	replayed := len(s.pending) > 0
	for _, apply := range s.pending {
		cart = apply(cart)
	}
	s.pending = nil
	held := s.held
	s.held = nil

	s.cart = cart
	s.subject = subject
	s.loaded = true
	s.state = StateReady
	if persist || replayed {
		s.local.Save(s.cart)
	}
	count := reconcile.Count(s.cart)
	s.mu.Unlock()

	// Held syncs start only once the server cart has been read.
	for _, start := range held {
		start()
	}
	s.logger.Debug("cart ready", slog.Int("count", count))
	return true
}

// pushDeltas raises server quantities to the merged result in the
// background. Failures are logged and reported once; nothing is rolled back.
func (s *Session) pushDeltas(ctx context.Context, subject, tok string, deltas []model.CartLine) {
	s.syncs.Add(1)
	go func() {
		defer s.syncs.Done()

		pushCtx := context.WithoutCancel(ctx)
		var g errgroup.Group
		g.SetLimit(maxConcurrentPushes)

		for _, d := range deltas {
			g.Go(func() error {
				callCtx, cancel := context.WithTimeout(pushCtx, s.opts.SyncTimeout)
				defer cancel()

				err := s.gateway.AddLine(callCtx, subject, tok, d.ProductID, d.Size, d.Quantity)
				if err != nil {
					s.logger.Warn("pushing merged line failed",
						slog.String("product_id", d.ProductID),
						slog.String("size", d.Size),
						slog.Int("quantity", d.Quantity),
						slog.String("error", err.Error()))
					return err
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			s.handleSyncResult("merged cart", "", "", tok, err)
			return
		}
		s.logger.Debug("merged lines pushed", slog.Int("lines", len(deltas)))
	}()
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AddToCart adds quantity units of (productID, size). The in-memory cart and
// the persisted cart change immediately; the server is updated in the
// background. Returns an InvalidInput or LoginRequired error without
// mutating anything when preconditions fail. Network failures are reported
// through Notices, never returned.
func (s *Session) AddToCart(ctx context.Context, productID, size string, quantity int) error {
	if err := s.validateLine(productID, size); err != nil {
		return err
	}
	if quantity < 1 {
		return s.rejectInput(productID, size, model.NewValidationError("quantity", "must be at least 1"))
	}

	return s.mutate(ctx, productID, size,
		func(c model.Cart) model.Cart { return reconcile.AddLine(c, productID, size, quantity) },
		s.addLineTask(productID, size, quantity))
}

// RemoveFromCart removes one unit of (productID, size). A line reaching zero
// is deleted, and so is a product left without sizes. Removing a line that
// is not in the cart is a no-op.
func (s *Session) RemoveFromCart(ctx context.Context, productID, size string) error {
	if err := s.validateLine(productID, size); err != nil {
		return err
	}

	return s.mutate(ctx, productID, size,
		func(c model.Cart) model.Cart {
			next, _ := reconcile.RemoveUnit(c, productID, size)
			return next
		},
		s.removeLineTask(productID, size, 1))
}

// UpdateQuantity sets (productID, size) to quantity. An increase is synced as
// a single addLine of the difference; a decrease as one removeLine per unit.
func (s *Session) UpdateQuantity(ctx context.Context, productID, size string, quantity int) error {
	if err := s.validateLine(productID, size); err != nil {
		return err
	}
	if quantity < 1 {
		return s.rejectInput(productID, size, model.NewValidationError("quantity", "must be at least 1"))
	}

	s.mu.Lock()
	current := s.cart.Quantity(productID, size)
	s.mu.Unlock()

	delta := quantity - current
	switch {
	case delta > 0:
		return s.AddToCart(ctx, productID, size, delta)
	case delta < 0:
		units := -delta
		return s.mutate(ctx, productID, size,
			func(c model.Cart) model.Cart {
				for range units {
					c, _ = reconcile.RemoveUnit(c, productID, size)
				}
				return c
			},
			s.removeLineTask(productID, size, units))
	default:
		return nil
	}
}

func (s *Session) validateLine(productID, size string) error {
	if productID == "" {
		return s.rejectInput(productID, size, model.NewValidationError("productId", "must not be empty"))
	}
	if size == "" {
		return s.rejectInput(productID, size, model.NewValidationError("size", "select a product size"))
	}
	return nil
}

func (s *Session) rejectInput(productID, size string, err *model.APIError) error {
	s.emit(Notice{Kind: NoticeInvalidInput, Message: err.Message, ProductID: productID, Size: size, Err: err})
	return err
}

// syncTask performs the network side of a mutation.
type syncTask func(ctx context.Context, subject, tok string)

// mutate checks the credential, applies the mutation optimistically,
// persists it and schedules the sync.
func (s *Session) mutate(ctx context.Context, productID, size string, apply func(model.Cart) model.Cart, task syncTask) error {
	tok, subject, ok := s.credential()
	if !ok {
		err := model.NewLoginRequiredError()
		s.emit(Notice{Kind: NoticeLoginRequired, Message: err.Message, ProductID: productID, Size: size, Err: err})
		return err
	}

	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return ErrClosed
	}
	before := s.cart.Quantity(productID, size)
	next := apply(s.cart)
	after := next.Quantity(productID, size)
	if before == after {
		s.mu.Unlock()
		return nil
	}
	s.cart = next

	start := func() {
		s.dispatch(lineKey(productID, size), func() {
			callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SyncTimeout)
			defer cancel()
			task(callCtx, subject, tok)
		})
	}

	// While loading, the mutation is replayed on the loaded cart and its sync
	// waits for the load to finish. Persisting happens in finishLoad.
	ready := s.state == StateReady
	if ready {
		s.local.Save(s.cart)
	} else {
		s.pending = append(s.pending, apply)
		s.held = append(s.held, start)
	}
	s.mu.Unlock()

	s.logger.Debug("cart line changed",
		slog.String("product_id", productID),
		slog.String("size", size),
		slog.Int("from", before),
		slog.Int("to", after))

	if ready {
		start()
	}
	return nil
}

func (s *Session) addLineTask(productID, size string, quantity int) syncTask {
	return func(ctx context.Context, subject, tok string) {
		err := s.gateway.AddLine(ctx, subject, tok, productID, size, quantity)
		s.handleSyncResult("add to cart", productID, size, tok, err)
	}
}

func (s *Session) removeLineTask(productID, size string, units int) syncTask {
	return func(ctx context.Context, subject, tok string) {
		for range units {
			if err := s.gateway.RemoveLine(ctx, subject, tok, productID, size); err != nil {
				s.handleSyncResult("remove from cart", productID, size, tok, err)
				return
			}
		}
		s.handleSyncResult("remove from cart", productID, size, tok, nil)
	}
}

// dispatch runs task in the background, serialized per line when enabled.
func (s *Session) dispatch(key string, task func()) {
	s.syncs.Add(1)
	run := func() {
		defer s.syncs.Done()
		task()
	}
	if s.lines != nil {
		s.lines.enqueue(key, run)
		return
	}
	go run()
}

// handleSyncResult converts a gateway result into a notice. Local state is
// never reverted.
func (s *Session) handleSyncResult(op, productID, size, tok string, err error) {
	switch {
	case err == nil:
		s.emit(Notice{Kind: NoticeSynced, Message: op + " synced", ProductID: productID, Size: size})

	case model.IsUnauthorized(err):
		s.logger.Warn("server rejected credential during sync",
			slog.String("op", op),
			slog.String("error", err.Error()))
		s.purgeCredential(tok)
		s.emit(Notice{Kind: NoticeSessionExpired, Message: "your session has expired, please login again",
			ProductID: productID, Size: size, Err: err})

	default:
		syncErr := model.NewSyncFailedError(op, err)
		s.logger.Warn("background sync failed",
			slog.String("op", op),
			slog.String("product_id", productID),
			slog.String("size", size),
			slog.String("error", err.Error()))
		s.emit(Notice{Kind: NoticeSyncFailed, Message: syncErr.Message, ProductID: productID, Size: size, Err: syncErr})
	}
}

// =============================================================================
// AUTH
// =============================================================================

// Login stores tok and reloads the cart, merging the local cart into the
// user's server cart. An unusable token is purged and rejected.
func (s *Session) Login(ctx context.Context, tok string) error {
	if _, ok := s.validator.SubjectID(tok); !ok {
		s.purgeCredential("")
		return model.NewUnauthorizedError("invalid or expired token")
	}

	s.mu.Lock()
	disposed := s.state == StateDisposed
	s.mu.Unlock()
	if disposed {
		return ErrClosed
	}

	if err := s.store.Set(storage.KeyToken, tok); err != nil {
		return model.NewInternalError(fmt.Errorf("storing credential: %w", err))
	}
	s.logger.Info("logged in")

	s.reloads.Forget(reloadKey)
	return s.Reload(ctx)
}

// Logout purges the credential and clears both the persisted and the
// in-memory cart.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cart = model.Cart{}
	s.subject = ""
	s.pending = nil
	s.held = nil
	s.loaded = true
	s.state = StateReady
	s.gen++
	s.local.Clear()
	s.mu.Unlock()

	s.purgeCredential("")
	s.logger.Info("logged out")
	return nil
}

// credential returns the stored token and its subject when usable. An
// invalid stored token is purged.
func (s *Session) credential() (tok, subject string, ok bool) {
	tok, found, err := s.store.Get(storage.KeyToken)
	if err != nil {
		s.logger.Error("reading credential", slog.String("error", err.Error()))
		return "", "", false
	}
	if !found || tok == "" {
		return "", "", false
	}

	subject, ok = s.validator.SubjectID(tok)
	if !ok {
		s.logger.Info("stored credential is invalid or expired, purging")
		s.purgeCredential(tok)
		return "", "", false
	}
	return tok, subject, true
}

// purgeCredential removes the stored token. When tok is non-empty the token
// is only removed if it is still the stored one, so a newer login survives a
// late rejection of an older token.
func (s *Session) purgeCredential(tok string) {
	if tok != "" {
		current, found, err := s.store.Get(storage.KeyToken)
		if err == nil && (!found || current != tok) {
			return
		}
	}
	if err := s.store.Remove(storage.KeyToken); err != nil {
		s.logger.Error("purging credential", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	s.subject = ""
	s.mu.Unlock()
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Snapshot is a consistent view of the session for the presentation layer.
type Snapshot struct {
	Cart    model.Cart
	Count   int
	Loading bool
	State   State
}

// Snapshot returns the cart, its count and the loading flag read together.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Cart:    s.cart.Clone(),
		Count:   reconcile.Count(s.cart),
		Loading: s.state == StateLoading,
		State:   s.state,
	}
}

// Cart returns a deep copy of the in-memory cart.
func (s *Session) Cart() model.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Count returns the sum of all quantities in the cart.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reconcile.Count(s.cart)
}

// IsLoading reports whether the initialization sequence is running.
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateLoading
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SubjectID returns the logged-in subject, or "" when logged out.
func (s *Session) SubjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

// Notices returns the notification channel. It is closed by Close.
func (s *Session) Notices() <-chan Notice {
	return s.notices
}

// emit delivers n without blocking. Notices are dropped when the buffer is
// full or the session is disposed.
func (s *Session) emit(n Notice) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return
	}
	select {
	case s.notices <- n:
	default:
		s.logger.Warn("notice buffer full, dropping notice", slog.String("kind", string(n.Kind)))
	}
}
