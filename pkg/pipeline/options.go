package pipeline

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnykmshr/flowpipe/pkg/logging"
)

// Option configures an engine.
type Option func(*options)

type options struct {
	logger   Logger
	newCache func() ResultCache
	tracer   trace.Tracer
	hooks    []Hooks
}

func defaultOptions() options {
	return options{
		logger:   logging.New(logging.Config{Level: "warn"}, "pipeline"),
		newCache: func() ResultCache { return NewMemoryCache() },
		tracer:   otel.Tracer(instrumentationName),
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithLogger sets the sink for engine warnings. A nil logger discards them.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = logging.Nop()
			return
		}
		o.logger = logger
	}
}

// WithCache sets the constructor for the engine's result cache. It is called
// once per engine, including clones, so each engine gets its own store.
func WithCache(newCache func() ResultCache) Option {
	return func(o *options) {
		if newCache != nil {
			o.newCache = newCache
		}
	}
}

// WithTracer sets the OpenTelemetry tracer. The global tracer provider is used by default.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithHooks registers execution callbacks. It may be given more than once.
func WithHooks(hooks Hooks) Option {
	return func(o *options) {
		hs := make([]Hooks, len(o.hooks), len(o.hooks)+1)
		copy(hs, o.hooks)
		o.hooks = append(hs, hooks)
	}
}
