package gutenberg

import (
	"log/slog"

	"github.com/tsawler/gutenberg/core"
	"github.com/tsawler/gutenberg/reader"
)

// filterSpec is a stream filter registered through WithFilter.
type filterSpec struct {
	name    string
	fn      reader.FilterFunc
	aliases []string
}

// InspectOptions holds configuration for opening and inspecting a file.
type InspectOptions struct {
	// Page selection (1-indexed in API, stored as-is)
	pages []int

	// Document options
	logger         *slog.Logger
	limits         *core.Limits
	filters        []filterSpec
	rawUnsupported bool
	noMmap         bool
}

// defaultOptions returns the default inspection options.
func defaultOptions() InspectOptions {
	return InspectOptions{
		pages: nil, // nil means all pages
	}
}

// clone creates a deep copy of InspectOptions.
func (o InspectOptions) clone() InspectOptions {
	newOpts := InspectOptions{
		logger:         o.logger,
		rawUnsupported: o.rawUnsupported,
		noMmap:         o.noMmap,
	}

	if o.pages != nil {
		newOpts.pages = make([]int, len(o.pages))
		copy(newOpts.pages, o.pages)
	}
	if o.limits != nil {
		l := *o.limits
		newOpts.limits = &l
	}
	if o.filters != nil {
		newOpts.filters = append([]filterSpec(nil), o.filters...)
	}

	return newOpts
}

// readerOptions converts the options into reader options. observe receives
// the document's events.
func (o InspectOptions) readerOptions(observe func(reader.Event)) []reader.Option {
	opts := []reader.Option{reader.WithObserver(observe)}
	if o.logger != nil {
		opts = append(opts, reader.WithLogger(o.logger))
	}
	if o.limits != nil {
		opts = append(opts, reader.WithLimits(*o.limits))
	}
	for _, f := range o.filters {
		opts = append(opts, reader.WithFilter(f.name, f.fn, f.aliases...))
	}
	if o.rawUnsupported {
		opts = append(opts, reader.WithRawUnsupportedFilters())
	}
	if o.noMmap {
		opts = append(opts, reader.WithoutMmap())
	}
	return opts
}
