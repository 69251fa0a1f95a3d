package config

import (
	"time"

	"github.com/iliyamo/showtime-booking/internal/retry"
	"github.com/iliyamo/showtime-booking/internal/worker"
)

// BookingConfig tunes the hold lifecycle, the payment gateway and the store
// retry policy.
type BookingConfig struct {
	HoldDuration  time.Duration // BOOKING_HOLD_DURATION
	SweepInterval time.Duration // BOOKING_SWEEP_INTERVAL
	SweepBatch    int           // BOOKING_SWEEP_BATCH
	GatewayURL    string        // PAYMENT_GATEWAY_URL

	RetryMax         int           // STORE_RETRY_MAX
	RetryInitial     time.Duration // STORE_RETRY_INITIAL
	RetryMaxInterval time.Duration // STORE_RETRY_MAX_INTERVAL
}

// LoadBookingConfig reads BookingConfig with its defaults: a ten minute hold
// swept every minute, 500 rows per sweep round, three store retries.
func LoadBookingConfig() BookingConfig {
	c := BookingConfig{
		HoldDuration:     envDur("BOOKING_HOLD_DURATION", 10*time.Minute),
		SweepInterval:    envDur("BOOKING_SWEEP_INTERVAL", time.Minute),
		SweepBatch:       envInt("BOOKING_SWEEP_BATCH", 500),
		GatewayURL:       envStr("PAYMENT_GATEWAY_URL", "https://fake-gateway.local"),
		RetryMax:         envInt("STORE_RETRY_MAX", 3),
		RetryInitial:     envDur("STORE_RETRY_INITIAL", 50*time.Millisecond),
		RetryMaxInterval: envDur("STORE_RETRY_MAX_INTERVAL", time.Second),
	}
	if c.HoldDuration <= 0 {
		c.HoldDuration = 10 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.SweepBatch < 1 {
		c.SweepBatch = 500
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	return c
}

// Sweeper returns the expiry sweeper settings.
func (c BookingConfig) Sweeper() worker.Config {
	return worker.Config{
		HoldDuration:  c.HoldDuration,
		SweepInterval: c.SweepInterval,
		BatchSize:     c.SweepBatch,
	}
}

// Retry returns the store retry policy.
func (c BookingConfig) Retry() retry.Config {
	r := retry.DefaultConfig()
	r.MaxRetries = c.RetryMax
	if c.RetryInitial > 0 {
		r.InitialInterval = c.RetryInitial
	}
	if c.RetryMaxInterval > 0 {
		r.MaxInterval = c.RetryMaxInterval
	}
	return r
}
