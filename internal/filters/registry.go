package filters

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnsupported is returned for filters that are known but cannot be
	// decoded here, such as encrypted Crypt filters.
	ErrUnsupported = errors.New("filters: unsupported filter")

	// ErrOutputLimit is returned when decoded output would exceed the limit
	// passed to a Func.
	ErrOutputLimit = errors.New("filters: decoded output exceeds limit")
)

// Func decodes data with the given parameters. limit bounds the size of the
// output in bytes; zero or negative means unbounded.
type Func func(data []byte, params Params, limit int64) ([]byte, error)

// Registry maps filter names to decoders. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the shared registry holding the standard filters. Callers
// that want to add filters should Clone it first.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		registerStandard(defaultRegistry)
	})
	return defaultRegistry
}

// Register adds fn under name and any abbreviations, replacing previous
// registrations.
func (r *Registry) Register(name string, fn Func, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	for _, a := range aliases {
		r.funcs[a] = fn
	}
}

// Lookup returns the decoder registered for name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewRegistry()
	for n, fn := range r.funcs {
		c.funcs[n] = fn
	}
	return c
}

func registerStandard(r *Registry) {
	r.Register("FlateDecode", flateDecode, "Fl")
	r.Register("LZWDecode", lzwDecode, "LZW")
	r.Register("ASCIIHexDecode", asciiHexDecode, "AHx")
	r.Register("ASCII85Decode", ascii85Decode, "A85")
	r.Register("RunLengthDecode", runLengthDecode, "RL")
	r.Register("CCITTFaxDecode", ccittFaxDecode, "CCF")

	// Image codecs are left to the consumer.
	r.Register("DCTDecode", passThrough, "DCT")
	r.Register("JPXDecode", passThrough)

	r.Register("Crypt", cryptDecode)
}

func passThrough(data []byte, _ Params, _ int64) ([]byte, error) {
	return data, nil
}

// cryptDecode accepts only the Identity crypt filter.
func cryptDecode(data []byte, params Params, _ int64) ([]byte, error) {
	name, _ := params["Name"].(string)
	if name == "" || name == "Identity" {
		return data, nil
	}
	return nil, fmt.Errorf("%w: Crypt filter %q", ErrUnsupported, name)
}
