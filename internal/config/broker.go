package config

import "time"

// BrokerConfig points at the RabbitMQ broker that carries booking events.
type BrokerConfig struct {
	URL     string // RABBITMQ_URL, falls back to AMQP_URL
	Enabled bool   // BOOKING_EVENTS_ENABLED
	Audit   bool   // BOOKING_AUDIT_ENABLED, runs the audit consumer in-process

	DialTimeout   time.Duration // RABBITMQ_DIAL_TIMEOUT
	RedialBackoff time.Duration // RABBITMQ_REDIAL_BACKOFF
}

// LoadBrokerConfig reads BrokerConfig.  Events are disabled unless a broker
// URL is set.
func LoadBrokerConfig() BrokerConfig {
	url := envStr("RABBITMQ_URL", envStr("AMQP_URL", ""))
	enabled := envBool("BOOKING_EVENTS_ENABLED", url != "")
	return BrokerConfig{
		URL:           url,
		Enabled:       enabled && url != "",
		Audit:         envBool("BOOKING_AUDIT_ENABLED", false) && url != "",
		DialTimeout:   envDur("RABBITMQ_DIAL_TIMEOUT", 2*time.Second),
		RedialBackoff: envDur("RABBITMQ_REDIAL_BACKOFF", 5*time.Second),
	}
}
