package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/logger"
)

// Publisher publishes booking events.
type Publisher interface {
	Publish(ctx context.Context, ev BookingEvent) error
}

// NopPublisher drops every event.  Used when the broker is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, BookingEvent) error { return nil }

// Connection defaults for AMQPPublisher.
const (
	DefaultDialTimeout   = 2 * time.Second
	DefaultRedialBackoff = 5 * time.Second
)

// ErrBrokerUnavailable is returned without dialling while the publisher is
// backing off after a failed connection attempt.
var ErrBrokerUnavailable = errors.New("rabbitmq unavailable")

// AMQPPublisher publishes events to BookingQueue on the default exchange.
// The connection is opened lazily and re-dialled after a failure; messages
// are marked persistent.  A failed dial suppresses further dials for the
// redial backoff so callers fail fast while the broker is down.
type AMQPPublisher struct {
	url         string
	log         *logger.Logger
	dialTimeout time.Duration
	backoff     time.Duration
	now         func() time.Time

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	nextDial time.Time
}

// PublisherOption configures an AMQPPublisher.
type PublisherOption func(*AMQPPublisher)

// WithDialTimeout bounds the TCP connect and AMQP handshake of one dial.
func WithDialTimeout(d time.Duration) PublisherOption {
	return func(p *AMQPPublisher) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// WithRedialBackoff sets how long to wait after a failed dial before the
// next one.
func WithRedialBackoff(d time.Duration) PublisherOption {
	return func(p *AMQPPublisher) {
		if d >= 0 {
			p.backoff = d
		}
	}
}

// WithPublisherClock overrides the clock used for the redial backoff.
func WithPublisherClock(now func() time.Time) PublisherOption {
	return func(p *AMQPPublisher) {
		if now != nil {
			p.now = now
		}
	}
}

// NewAMQPPublisher returns a publisher for the broker at url.  No connection
// is attempted until the first Publish.
func NewAMQPPublisher(url string, log *logger.Logger, opts ...PublisherOption) *AMQPPublisher {
	if log == nil {
		log = logger.Nop()
	}
	p := &AMQPPublisher{
		url:         url,
		log:         log.Named("booking-publisher"),
		dialTimeout: DefaultDialTimeout,
		backoff:     DefaultRedialBackoff,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends ev.  A failed publish drops the cached channel so the next
// call dials again.
func (p *AMQPPublisher) Publish(ctx context.Context, ev BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		if !errors.Is(err, ErrBrokerUnavailable) {
			p.log.Warn("rabbitmq connect failed", zap.Error(err))
		}
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Type:         string(ev.Type),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",           // default exchange
		BookingQueue, // routing key = queue name
		false,        // mandatory
		false,        // immediate
		pub,
	); err != nil {
		p.log.Warn("rabbitmq publish failed", zap.String("type", string(ev.Type)), zap.Uint64("booking_id", ev.BookingID), zap.Error(err))
		p.reset()
		return err
	}
	return nil
}

// Close releases the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}

// channel must be called with mu held.
func (p *AMQPPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	if until := p.nextDial; p.now().Before(until) {
		return nil, fmt.Errorf("%w: next dial at %s", ErrBrokerUnavailable, until.Format(time.RFC3339))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, ch, err := p.dial(ctx)
	if err != nil {
		p.nextDial = p.now().Add(p.backoff)
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// dial connects within the dial timeout or the ctx deadline, whichever is
// sooner, and declares the booking queue.
func (p *AMQPPublisher) dial(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	timeout := p.dialTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, nil, fmt.Errorf("dial: %w", context.DeadlineExceeded)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Dial:   amqp.DefaultDial(timeout),
		Locale: "en_US",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	if err := declareBookingQueue(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// declareBookingQueue declares the durable queue.  Idempotent.
func declareBookingQueue(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(
		BookingQueue, // name
		true,         // durable
		false,        // autoDelete
		false,        // exclusive
		false,        // noWait
		nil,          // args
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}
