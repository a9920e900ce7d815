package app

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option customizes the services in this package.
type Option func(*options)

type options struct {
	log        *zap.Logger
	now        func() time.Time
	newID      func() string
	maxRetries int
}

func defaultOptions() options {
	return options{
		log:        zap.NewNop(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		maxRetries: 3,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the structured logger. A nil logger keeps the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithMaxRetries bounds how often attempt creation re-runs after losing an insert race.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}
