package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/logger"
)

// AuditConsumer drains BookingQueue and writes one structured log line per
// event.
type AuditConsumer struct {
	url string
	log *logger.Logger
}

// NewAuditConsumer returns a consumer for the broker at url.
func NewAuditConsumer(url string, log *logger.Logger) *AuditConsumer {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditConsumer{url: url, log: log.Named("booking-audit")}
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is canceled.  It only returns ctx.Err().
func (c *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.Error(err))
	}
	if err := declareBookingQueue(ch); err != nil {
		return err
	}
	msgs, err := ch.Consume(BookingQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				c.log.Error("handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message body and logs it.
func (c *AuditConsumer) Handle(body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.BookingID == 0 {
		return fmt.Errorf("malformed event: type=%q booking_id=%d", ev.Type, ev.BookingID)
	}
	c.log.Info("booking event",
		zap.String("type", string(ev.Type)),
		zap.Uint64("booking_id", ev.BookingID),
		zap.Uint64("user_id", ev.UserID),
		zap.Uint64("showtime_id", ev.ShowtimeID),
		zap.Uint64("seat_id", ev.SeatID),
		zap.Int64("seat_price", ev.SeatPrice),
		zap.String("payment_status", string(ev.PaymentStatus)),
		zap.String("transaction_id", ev.TransactionID),
		zap.Time("occurred_at", ev.OccurredAt),
	)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
