// Package store holds the session cart in memory and keeps it in sync with a
// persistence.KV.
//
// A CartStore must be initialized before it accepts mutations; mutations
// issued earlier fail with an error matching apperrors.ErrNotReady.
// Mutations are serialized: each one computes the next cart from the current
// one, publishes it to observers and then writes it to storage before the
// next mutation starts. A failed write is not retried and does not roll the
// in-memory cart back; Status reports the divergence until a later write
// succeeds.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/gomarketplace/internal/domain"
	"github.com/utafrali/gomarketplace/internal/persistence"
	"github.com/utafrali/gomarketplace/internal/snapshot"
	apperrors "github.com/utafrali/gomarketplace/pkg/errors"
	"github.com/utafrali/gomarketplace/pkg/logger"
)

// Operation names used in logs, spans and metrics.
const (
	OpAdd       = "add"
	OpIncrement = "increment"
	OpDecrement = "decrement"
	OpSync      = "sync"
	OpClear     = "clear"
)

// ErrPersist marks a mutation whose snapshot write failed. The in-memory cart
// already reflects the mutation.
var ErrPersist = errors.New("persist cart snapshot")

// Observer receives every cart the store publishes, in mutation order.
// Observers run while the store is locked and must not call back into it.
type Observer func(domain.Cart)

// Recorder receives store events for metrics.
type Recorder interface {
	Loaded(c domain.Cart)
	Mutation(op string, c domain.Cart)
	Persisted(op string, err error)
}

// Status describes the store lifecycle and how the in-memory cart relates
// to the persisted snapshot.
type Status struct {
	Ready           bool       `json:"ready"`
	Layout          string     `json:"layout"`
	Dirty           bool       `json:"dirty"`
	LastError       string     `json:"last_error,omitempty"`
	LastPersistedAt *time.Time `json:"last_persisted_at,omitempty"`
	LoadedItems     int        `json:"loaded_items"`
	LoadError       string     `json:"load_error,omitempty"`
}

// Option configures a CartStore.
type Option func(*CartStore)

// WithRecorder reports store events to r.
func WithRecorder(r Recorder) Option {
	return func(s *CartStore) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithPersistTimeout bounds every storage call. Zero leaves the caller's
// context in charge.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *CartStore) {
		s.persistTimeout = d
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *CartStore) {
		s.tracer = t
	}
}

// CartStore is the session cart.
type CartStore struct {
	kv             persistence.KV
	layout         snapshot.Layout
	logger         *slog.Logger
	recorder       Recorder
	tracer         trace.Tracer
	persistTimeout time.Duration

	cart  atomic.Pointer[domain.Cart]
	ready atomic.Bool

	// mu serializes Initialize, mutations, Sync and Clear.
	mu          sync.Mutex
	initialized bool

	obsMu     sync.RWMutex
	observers []subscription
	nextObsID int

	statusMu sync.RWMutex
	status   Status
}

// New creates a store persisting through layout into kv. The cart starts
// empty and not ready.
func New(kv persistence.KV, layout snapshot.Layout, log *slog.Logger, opts ...Option) *CartStore {
	s := &CartStore{
		kv:       kv,
		layout:   layout,
		logger:   log,
		recorder: noopRecorder{},
		tracer:   otel.Tracer("github.com/utafrali/gomarketplace/internal/store"),
		status:   Status{Layout: layout.Name()},
	}
	for _, opt := range opts {
		opt(s)
	}
	empty := domain.Cart{}
	s.cart.Store(&empty)
	return s
}

// Initialize loads the persisted cart and marks the store ready. Missing or
// corrupt data leaves the cart empty; the cause is logged and kept in
// Status().LoadError. Only the first call loads; later calls return
// immediately.
func (s *CartStore) Initialize(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "CartStore.Initialize",
		trace.WithAttributes(attribute.String("cart.layout", s.layout.Name())),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return
	}

	log := logger.WithContext(ctx, s.logger)

	loadCtx, cancel := s.storageContext(ctx)
	cart, err := s.layout.Load(loadCtx, s.kv)
	cancel()

	s.statusMu.Lock()
	if err != nil {
		s.status.LoadError = err.Error()
	}
	s.status.LoadedItems = cart.Len()
	s.status.Ready = true
	s.statusMu.Unlock()

	if err != nil {
		span.RecordError(err)
		log.WarnContext(ctx, "cart snapshot could not be fully loaded",
			slog.String("layout", s.layout.Name()),
			slog.Int("recovered_items", cart.Len()),
			slog.String("error", err.Error()),
		)
	}

	s.cart.Store(&cart)
	s.initialized = true
	s.ready.Store(true)
	s.recorder.Loaded(cart)
	s.publish(cart)

	log.InfoContext(ctx, "cart loaded",
		slog.String("layout", s.layout.Name()),
		slog.Int("items", cart.Len()),
		slog.Int("units", cart.ItemCount()),
	)
}

// Ready reports whether Initialize has completed.
func (s *CartStore) Ready() bool {
	return s.ready.Load()
}

// Cart returns the current cart.
func (s *CartStore) Cart() domain.Cart {
	return *s.cart.Load()
}

// Products returns the current line items in cart order.
func (s *CartStore) Products() []domain.LineItem {
	return s.Cart().Items()
}

// Status returns a snapshot of the store status.
func (s *CartStore) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	st := s.status
	if st.LastPersistedAt != nil {
		at := *st.LastPersistedAt
		st.LastPersistedAt = &at
	}
	return st
}

type subscription struct {
	id int
	fn Observer
}

// Subscribe registers fn for every published cart and returns a function
// removing it. Observers are called in registration order.
func (s *CartStore) Subscribe(fn Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers = append(s.observers, subscription{id: id, fn: fn})
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			defer s.obsMu.Unlock()
			for i, sub := range s.observers {
				if sub.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// AddToCart adds one unit of p. A line already in the cart keeps its stored
// title, image and price.
func (s *CartStore) AddToCart(ctx context.Context, p domain.Product) (domain.Cart, error) {
	return s.mutate(ctx, OpAdd, p.ID, func(c domain.Cart) (domain.Cart, domain.LineItem, bool) {
		next, item := c.WithAdded(p)
		return next, item, true
	})
}

// Increment adds one unit of the line id. An unknown id is a no-op.
func (s *CartStore) Increment(ctx context.Context, id string) (domain.Cart, error) {
	return s.mutate(ctx, OpIncrement, id, func(c domain.Cart) (domain.Cart, domain.LineItem, bool) {
		return c.WithIncremented(id)
	})
}

// Decrement removes one unit of the line id, dropping the line when it
// reaches zero. An unknown id is a no-op.
func (s *CartStore) Decrement(ctx context.Context, id string) (domain.Cart, error) {
	return s.mutate(ctx, OpDecrement, id, func(c domain.Cart) (domain.Cart, domain.LineItem, bool) {
		return c.WithDecremented(id)
	})
}

// Sync rewrites the whole current cart to storage. The store never retries
// a failed write on its own; Sync is how a caller does.
func (s *CartStore) Sync(ctx context.Context) error {
	if !s.ready.Load() {
		return apperrors.NotReady("cart store")
	}

	ctx, span := s.tracer.Start(ctx, "CartStore.Sync")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	cart := *s.cart.Load()
	if err := s.persist(ctx, span, OpSync, snapshot.Change{Cart: cart}); err != nil {
		return err
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "cart synced",
		slog.Int("items", cart.Len()),
	)
	return nil
}

// Clear empties the cart and removes every key the layout owns.
func (s *CartStore) Clear(ctx context.Context) (domain.Cart, error) {
	empty := domain.Cart{}
	if !s.ready.Load() {
		return s.Cart(), apperrors.NotReady("cart store")
	}

	ctx, span := s.tracer.Start(ctx, "CartStore.Clear")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart.Store(&empty)
	s.publish(empty)
	s.recorder.Mutation(OpClear, empty)

	storageCtx, cancel := s.storageContext(ctx)
	err := s.layout.Clear(storageCtx, s.kv)
	cancel()
	s.recordPersist(ctx, span, OpClear, err)
	if err != nil {
		return empty, fmt.Errorf("%w (%s): %w", ErrPersist, OpClear, err)
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "cart cleared")
	return empty, nil
}

// mutate applies fn to the current cart, publishes the result and persists
// it. fn reports false when the target line does not exist.
func (s *CartStore) mutate(
	ctx context.Context,
	op, id string,
	fn func(domain.Cart) (domain.Cart, domain.LineItem, bool),
) (domain.Cart, error) {
	if !s.ready.Load() {
		return s.Cart(), apperrors.NotReady("cart store")
	}

	ctx, span := s.tracer.Start(ctx, "CartStore."+op,
		trace.WithAttributes(attribute.String("cart.item_id", id)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.WithContext(ctx, s.logger)

	current := *s.cart.Load()
	next, item, ok := fn(current)
	if !ok {
		span.SetAttributes(attribute.Bool("cart.noop", true))
		log.DebugContext(ctx, "cart mutation ignored for unknown item",
			slog.String("op", op),
			slog.String("product_id", id),
		)
		return current, nil
	}

	s.cart.Store(&next)
	s.publish(next)
	s.recorder.Mutation(op, next)

	change := snapshot.Change{Cart: next, Item: &item}
	if s.Status().Dirty {
		// Storage missed an earlier change; write everything so it catches up.
		change.Item = nil
	}
	err := s.persist(ctx, span, op, change)

	log.InfoContext(ctx, "cart updated",
		slog.String("op", op),
		slog.String("product_id", id),
		slog.Int("quantity", item.Quantity),
		slog.Int("items", next.Len()),
		slog.Bool("persisted", err == nil),
	)

	return next, err
}

// persist writes change and records the outcome. Callers hold s.mu.
func (s *CartStore) persist(ctx context.Context, span trace.Span, op string, change snapshot.Change) error {
	storageCtx, cancel := s.storageContext(ctx)
	defer cancel()

	err := s.layout.Save(storageCtx, s.kv, change)
	s.recordPersist(ctx, span, op, err)
	if err != nil {
		return fmt.Errorf("%w (%s): %w", ErrPersist, op, err)
	}
	return nil
}

func (s *CartStore) recordPersist(ctx context.Context, span trace.Span, op string, err error) {
	s.recorder.Persisted(op, err)

	s.statusMu.Lock()
	if err != nil {
		s.status.Dirty = true
		s.status.LastError = err.Error()
	} else {
		now := time.Now().UTC()
		s.status.Dirty = false
		s.status.LastError = ""
		s.status.LastPersistedAt = &now
	}
	s.statusMu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		logger.WithContext(ctx, s.logger).ErrorContext(ctx, "failed to persist cart",
			slog.String("op", op),
			slog.String("layout", s.layout.Name()),
			slog.String("error", err.Error()),
		)
	}
}

// publish hands c to every observer. Callers hold s.mu.
func (s *CartStore) publish(c domain.Cart) {
	s.obsMu.RLock()
	observers := make([]Observer, 0, len(s.observers))
	for _, sub := range s.observers {
		observers = append(observers, sub.fn)
	}
	s.obsMu.RUnlock()

	for _, fn := range observers {
		fn(c)
	}
}

func (s *CartStore) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.persistTimeout > 0 {
		return context.WithTimeout(ctx, s.persistTimeout)
	}
	return ctx, func() {}
}

type noopRecorder struct{}

func (noopRecorder) Loaded(domain.Cart)           {}
func (noopRecorder) Mutation(string, domain.Cart) {}
func (noopRecorder) Persisted(string, error)      {}
