// Package event forwards published carts to Kafka.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/utafrali/gomarketplace/internal/domain"
	pkgkafka "github.com/utafrali/gomarketplace/pkg/kafka"
)

// Kafka topic for cart events.
const TopicCartUpdated = "gomarketplace.cart.updated"

// EventTypeCartUpdated is the event_type of every message on TopicCartUpdated.
const EventTypeCartUpdated = "cart.updated"

// Aggregate type constant.
const AggregateTypeCart = "cart"

// SourceCartStore identifies events emitted by this service.
const SourceCartStore = "cart-store"

// DefaultQueueSize is used when NewProducer gets a non-positive size.
const DefaultQueueSize = 64

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("event producer closed")

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	SessionID string         `json:"session_id"`
	Items     []CartItemData `json:"items"`
	ItemCount int            `json:"item_count"`
	Total     float64        `json:"total"`
}

// CartItemData is one line within a cart event.
type CartItemData struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Publisher sends an event to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer turns published carts into cart.updated events. Carts are queued
// and sent by a single goroutine, so Observe never waits on Kafka; when the
// queue is full the cart is dropped and counted.
type Producer struct {
	publisher Publisher
	sessionID string
	logger    *slog.Logger

	queue chan domain.Cart
	done  chan struct{}

	mu     sync.Mutex
	closed bool

	seq       atomic.Uint64
	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewProducer starts the send loop. sessionID keys every event.
func NewProducer(publisher Publisher, sessionID string, queueSize int, logger *slog.Logger) *Producer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	p := &Producer{
		publisher: publisher,
		sessionID: sessionID,
		logger:    logger,
		queue:     make(chan domain.Cart, queueSize),
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

// Observe queues c for publishing. It matches store.Observer.
func (p *Producer) Observe(c domain.Cart) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	select {
	case p.queue <- c:
	default:
		p.dropped.Add(1)
		p.logger.Warn("cart event queue full, dropping update",
			slog.Int("items", c.Len()),
		)
	}
}

// Stats returns counters of published, dropped and failed events.
func (p *Producer) Stats() (published, dropped, failed int64) {
	return p.published.Load(), p.dropped.Load(), p.failed.Load()
}

// Close stops accepting carts and waits until queued ones are sent or ctx
// ends.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain cart events: %w", ctx.Err())
	}
}

func (p *Producer) run() {
	defer close(p.done)
	for c := range p.queue {
		if err := p.PublishCartUpdated(context.Background(), c); err != nil {
			p.failed.Add(1)
			continue
		}
		p.published.Add(1)
	}
}

// PublishCartUpdated sends c as a cart.updated event right away.
func (p *Producer) PublishCartUpdated(ctx context.Context, c domain.Cart) error {
	lines := c.Items()
	items := make([]CartItemData, len(lines))
	for i, item := range lines {
		items[i] = CartItemData{
			ProductID: item.ID,
			Title:     item.Title,
			Price:     item.Price,
			Quantity:  item.Quantity,
		}
	}

	data := CartUpdatedData{
		SessionID: p.sessionID,
		Items:     items,
		ItemCount: c.ItemCount(),
		Total:     c.Total(),
	}

	event, err := pkgkafka.NewEvent(EventTypeCartUpdated,
		pkgkafka.Aggregate{Type: AggregateTypeCart, ID: p.sessionID},
		data,
		pkgkafka.WithSource(SourceCartStore),
		pkgkafka.WithSequence(p.seq.Add(1)),
	)
	if err != nil {
		return fmt.Errorf("create cart.updated event: %w", err)
	}

	if err := p.publisher.Publish(ctx, TopicCartUpdated, event); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("session_id", p.sessionID),
		slog.Uint64("sequence", event.Sequence),
		slog.Int("item_count", data.ItemCount),
	)
	return nil
}
