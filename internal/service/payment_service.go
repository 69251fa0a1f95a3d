package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/queue"
	"github.com/iliyamo/showtime-booking/internal/repository"
)

// DefaultGatewayURL is the base of the mock payment page used when the
// caller supplies no return URL.
const DefaultGatewayURL = "https://fake-gateway.local"

// PaymentIntent describes where the customer should be sent to pay.
type PaymentIntent struct {
	BookingID  uint64              `json:"booking_id"`
	SeatPrice  int64               `json:"seat_price"`
	Method     model.PaymentMethod `json:"method"`
	PaymentURL string              `json:"payment_url"`
	Reference  string              `json:"reference"`
}

// CallbackInput is the gateway's report of a payment attempt.  ResultCode 0
// means success; any other value is a failure.
type CallbackInput struct {
	BookingID     uint64
	TransactionID string
	ResultCode    int
	Method        model.PaymentMethod
}

// PaymentStatusView is the read-only payment projection of a booking.
type PaymentStatusView struct {
	BookingID       uint64               `json:"booking_id"`
	PaymentStatus   model.PaymentStatus  `json:"payment_status"`
	PaymentMethod   *model.PaymentMethod `json:"payment_method"`
	TransactionID   *string              `json:"transaction_id"`
	PaidAt          *time.Time           `json:"paid_at"`
	IsBooked        bool                 `json:"is_booked"`
	BookingDateTime *time.Time           `json:"booking_date_time"`
	SeatPrice       int64                `json:"seat_price"`
}

// PaymentService initiates payments and reconciles gateway callbacks.
type PaymentService struct {
	base
	store      BookingStore
	gatewayURL string
}

// NewPaymentService wires a PaymentService.  An empty gatewayURL selects
// DefaultGatewayURL.
func NewPaymentService(store BookingStore, gatewayURL string, opts ...Option) *PaymentService {
	if gatewayURL == "" {
		gatewayURL = DefaultGatewayURL
	}
	return &PaymentService{
		base:       newBase("payment-service", opts),
		store:      store,
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
	}
}

// Initiate records the chosen method on a PENDING booking and returns the
// payment descriptor.  The booking stays PENDING.
func (s *PaymentService) Initiate(ctx context.Context, bookingID uint64, method model.PaymentMethod, returnURL string) (*PaymentIntent, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unsupported payment method %q", repository.ErrInvalidInput, method)
	}

	var booking *model.Booking
	err := s.do(ctx, func(ctx context.Context) error {
		b, err := s.store.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := pendingHold(b); err != nil {
			return err
		}
		ok, err := s.store.AttachPaymentMethod(ctx, bookingID, method, s.clock())
		if err != nil {
			return err
		}
		if !ok {
			return s.rejectSettled(ctx, bookingID)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	intent := &PaymentIntent{
		BookingID: bookingID,
		SeatPrice: booking.SeatPrice,
		Method:    method,
		Reference: uuid.NewString(),
	}
	intent.PaymentURL = returnURL
	if intent.PaymentURL == "" {
		intent.PaymentURL = s.mockPaymentURL(intent)
	}

	s.log.Info("payment initiated",
		zap.Uint64("booking_id", bookingID),
		zap.String("method", string(method)),
		zap.String("reference", intent.Reference),
	)
	return intent, nil
}

func (s *PaymentService) mockPaymentURL(in *PaymentIntent) string {
	q := url.Values{}
	q.Set("bookingId", strconv.FormatUint(in.BookingID, 10))
	q.Set("method", string(in.Method))
	q.Set("seatPrice", strconv.FormatInt(in.SeatPrice, 10))
	q.Set("ref", in.Reference)
	return s.gatewayURL + "/pay?" + q.Encode()
}

// HandleCallback applies a gateway result to a PENDING booking.  Success
// marks it PAID; failure cancels it and releases the seat.  Redelivery of a
// callback that already settled the booking returns the stored booking
// without changing it.  A callback for a booking that is already settled
// otherwise fails with repository.ErrAlreadySettled.  A callback that read
// the booking as PENDING but whose conditional write then lost to a
// concurrent settlement (another callback, a user cancel or the expiry
// sweep) is a no-op: it returns the winning state without an error.
func (s *PaymentService) HandleCallback(ctx context.Context, in CallbackInput) (*model.Booking, error) {
	if strings.TrimSpace(in.TransactionID) == "" {
		return nil, fmt.Errorf("%w: transaction id is required", repository.ErrInvalidInput)
	}
	if in.Method != "" && !in.Method.Valid() {
		return nil, fmt.Errorf("%w: unsupported payment method %q", repository.ErrInvalidInput, in.Method)
	}
	success := in.ResultCode == 0

	var (
		result  *model.Booking
		applied bool
		lost    bool
	)
	err := s.do(ctx, func(ctx context.Context) error {
		applied, lost = false, false
		b, err := s.store.GetByID(ctx, in.BookingID)
		if err != nil {
			return err
		}
		if b.PaymentStatus != model.PaymentPending {
			if settledBy(b, in.TransactionID, success) {
				result = b
				return nil
			}
			return fmt.Errorf("%w: booking is %s", repository.ErrAlreadySettled, b.PaymentStatus)
		}

		now := s.clock()
		var ok bool
		if success {
			ok, err = s.store.MarkPaid(ctx, in.BookingID, in.TransactionID, callbackMethod(in.Method, b.PaymentMethod), now)
		} else {
			ok, err = s.store.MarkPaymentFailed(ctx, in.BookingID, in.TransactionID, now)
		}
		if err != nil {
			return err
		}

		after, err := s.store.GetByID(ctx, in.BookingID)
		if err != nil {
			return err
		}
		result, applied = after, ok
		lost = !ok && !settledBy(after, in.TransactionID, success)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if lost {
		s.log.Warn("payment callback lost to concurrent settlement",
			zap.Uint64("booking_id", in.BookingID),
			zap.String("transaction_id", in.TransactionID),
			zap.String("payment_status", string(result.PaymentStatus)),
		)
		return result, nil
	}
	if !applied {
		s.log.Info("payment callback replayed",
			zap.Uint64("booking_id", in.BookingID),
			zap.String("transaction_id", in.TransactionID),
		)
		return result, nil
	}
	s.log.Info("payment callback applied",
		zap.Uint64("booking_id", in.BookingID),
		zap.String("transaction_id", in.TransactionID),
		zap.Int("result_code", in.ResultCode),
		zap.String("payment_status", string(result.PaymentStatus)),
	)
	if success {
		s.publish(ctx, queue.BookingPaid, result)
	} else {
		s.publish(ctx, queue.BookingPaymentFailed, result)
	}
	return result, nil
}

// GetStatus returns the payment projection of a booking.
func (s *PaymentService) GetStatus(ctx context.Context, bookingID uint64) (*PaymentStatusView, error) {
	b, err := s.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &PaymentStatusView{
		BookingID:       b.ID,
		PaymentStatus:   b.PaymentStatus,
		PaymentMethod:   b.PaymentMethod,
		TransactionID:   b.TransactionID,
		PaidAt:          b.PaidAt,
		IsBooked:        b.IsBooked,
		BookingDateTime: b.BookingDateTime,
		SeatPrice:       b.SeatPrice,
	}, nil
}

// rejectSettled re-reads a booking whose PENDING-guarded write missed and
// reports the state that won.
func (s *PaymentService) rejectSettled(ctx context.Context, id uint64) error {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := pendingHold(b); err != nil {
		return err
	}
	return repository.ErrConflict
}

// settledBy reports whether b is already in the terminal state that a
// callback with txID and the given outcome would produce.
func settledBy(b *model.Booking, txID string, success bool) bool {
	if !b.SameTransaction(txID) {
		return false
	}
	if success {
		return b.PaymentStatus == model.PaymentPaid
	}
	return b.PaymentStatus == model.PaymentCanceled
}

// callbackMethod picks the method to record on success: the callback's,
// then the one stored at initiation, then the default.
func callbackMethod(reported model.PaymentMethod, stored *model.PaymentMethod) model.PaymentMethod {
	if reported != "" {
		return reported
	}
	if stored != nil && *stored != "" {
		return *stored
	}
	return model.DefaultPaymentMethod
}
