package engine

import (
	"github.com/w-h-a/caus/internal/config"
	"github.com/w-h-a/caus/internal/logging"
	"github.com/w-h-a/caus/internal/metrics"
)

type Option func(*Options)

type Options struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *metrics.Metrics
}

func WithConfig(cfg *config.Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

func WithLogger(l logging.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetrics records requests and test counts on m. Without it nothing is
// recorded.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Config: config.Default(),
		Logger: logging.NewNoOpLogger(),
	}

	for _, fn := range opts {
		fn(&options)
	}

	if options.Config == nil {
		options.Config = config.Default()
	}
	options.Logger = logging.OrNoOp(options.Logger)

	return options
}
