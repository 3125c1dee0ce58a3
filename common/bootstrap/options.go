package bootstrap

import (
	"github.com/vaultiq/mediavault/common/clock"
	"github.com/vaultiq/mediavault/common/config"
	"github.com/vaultiq/mediavault/common/db"
	"github.com/vaultiq/mediavault/common/logger"
)

// Option configures the bootstrap process
type Option func(*options)

type options struct {
	skipDB      bool
	skipRedis   bool
	skipMetrics bool
	customLogger *logger.Logger
	customConfig *config.Config
	customClock  clock.Clock
	dbInitHook   func(*db.DB) error
}

// WithoutDB skips database initialization
func WithoutDB() Option {
	return func(o *options) {
		o.skipDB = true
	}
}

// WithoutRedis skips redis initialization
func WithoutRedis() Option {
	return func(o *options) {
		o.skipRedis = true
	}
}

// WithoutMetrics skips the metrics endpoint
func WithoutMetrics() Option {
	return func(o *options) {
		o.skipMetrics = true
	}
}

// WithCustomLogger uses a custom logger instead of creating one
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithCustomConfig uses a custom config instead of loading from env
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.customConfig = cfg
	}
}

// WithClock injects a clock (tests use a fake)
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.customClock = clk
	}
}

// WithDBInitHook runs a custom function after DB initialization
// Useful for running migrations, seeding data, etc.
func WithDBInitHook(hook func(*db.DB) error) Option {
	return func(o *options) {
		o.dbInitHook = hook
	}
}

func defaultOptions() *options {
	return &options{}
}
