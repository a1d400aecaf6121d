package config

import "time"

const (
	// MaxItemIDLength is the maximum length for item ids.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255).
	MaxItemIDLength = 255

	// MaxTreeIDLength is the maximum length for tree ids.
	MaxTreeIDLength = 128

	// MaxSeedDepth bounds seed nesting. Deeper seeds are rejected rather than
	// recursed into.
	MaxSeedDepth = 64

	// DefaultAutoExpandDelay is how long a make-child hover must rest over a
	// closed parent before it opens.
	DefaultAutoExpandDelay = 500 * time.Millisecond

	// DefaultConfirmTimeout bounds a single backing store confirmation.
	DefaultConfirmTimeout = 30 * time.Second

	// MaxLogFiles is how many timestamped log files a log dir keeps.
	MaxLogFiles = 10
)
