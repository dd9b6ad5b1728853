package reader

import (
	"log/slog"

	"github.com/tsawler/gutenberg/core"
	"github.com/tsawler/gutenberg/internal/filters"
)

// FilterFunc decodes stream data for one filter. limit bounds the output
// size in bytes.
type FilterFunc = filters.Func

// FilterParams holds the decode parameters of one filter, keyed by name.
type FilterParams = filters.Params

// Option configures a Document.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	observer       func(Event)
	limits         core.Limits
	registry       *filters.Registry
	rawUnsupported bool
	mmap           bool
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		limits: core.DefaultLimits(),
		mmap:   true,
	}
}

// WithLogger sets the logger used for diagnostics. Messages are logged at
// debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers a function that receives structural events while
// the document is opened and used. It is called synchronously and never
// while the document holds a lock, so fn may call accessors such as Trailer
// or XRefSections. It must not load the object whose load raised the event.
func WithObserver(fn func(Event)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// WithLimits bounds the work done on the file. Zero fields keep their
// defaults.
func WithLimits(l core.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithFilter registers a stream filter under name and its abbreviations,
// replacing any standard filter of that name for this document.
func WithFilter(name string, fn FilterFunc, aliases ...string) Option {
	return func(o *options) {
		if o.registry == nil {
			o.registry = filters.Default().Clone()
		}
		o.registry.Register(name, fn, aliases...)
	}
}

// WithRawUnsupportedFilters makes Decode return the undecoded bytes of a
// stream whose filter is not supported instead of failing.
func WithRawUnsupportedFilters() Option {
	return func(o *options) {
		o.rawUnsupported = true
	}
}

// WithoutMmap makes Open read the file with ReadAt instead of mapping it
// into memory.
func WithoutMmap() Option {
	return func(o *options) {
		o.mmap = false
	}
}
