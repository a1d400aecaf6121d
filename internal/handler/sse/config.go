package sse

import "time"

// Config holds configuration for change-feed streams
type Config struct {
	// KeepAliveInterval is how often to send keep-alive pings so proxies do
	// not drop idle connections. 10-15 seconds suits most proxies.
	KeepAliveInterval time.Duration

	// BufferSize is how many events may queue for one slow client before
	// the stream is closed.
	BufferSize int
}

// DefaultConfig returns the default stream configuration
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 10 * time.Second,
		BufferSize:        64,
	}
}
