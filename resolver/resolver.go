package resolver

import (
	"errors"
	"fmt"

	"github.com/tsawler/gutenberg/core"
)

var (
	// ErrCircularReference is returned when expansion reaches a reference
	// that is already being expanded further up the same branch.
	ErrCircularReference = errors.New("resolver: circular reference")

	// ErrMaxDepth is returned when expansion nests deeper than allowed.
	ErrMaxDepth = errors.New("resolver: maximum depth exceeded")

	// ErrTooManyReferences is returned when one expansion would load more
	// distinct references than allowed.
	ErrTooManyReferences = errors.New("resolver: too many references")
)

// Source loads the object behind an indirect reference.
// *reader.Document and *core.Index both satisfy it.
type Source interface {
	ResolveReference(ref core.IndirectRef) (core.Object, error)
}

// Resolver follows indirect references through a Source. It holds no
// per-call state and is safe for concurrent use when the Source is.
type Resolver struct {
	src      Source
	maxDepth int
	maxRefs  int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth bounds how deeply containers and reference chains may nest
// (default 100).
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		r.maxDepth = depth
	}
}

// WithMaxReferences bounds the number of distinct references one call may
// load. Zero, the default, means unbounded.
func WithMaxReferences(n int) Option {
	return func(r *Resolver) {
		r.maxRefs = n
	}
}

// New returns a Resolver reading from src.
func New(src Source, opts ...Option) *Resolver {
	r := &Resolver{src: src, maxDepth: 100}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve follows obj while it is an indirect reference and returns the
// first direct object reached. Containers are returned as they are.
func (r *Resolver) Resolve(obj core.Object) (core.Object, error) {
	seen := make(map[core.IndirectRef]bool)
	for depth := 0; ; depth++ {
		ref, ok := obj.(core.IndirectRef)
		if !ok {
			return obj, nil
		}
		if seen[ref] {
			return nil, fmt.Errorf("%w: %s", ErrCircularReference, ref)
		}
		if depth >= r.maxDepth {
			return nil, fmt.Errorf("%w (%d)", ErrMaxDepth, r.maxDepth)
		}
		seen[ref] = true

		next, err := r.src.ResolveReference(ref)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", ref, err)
		}
		obj = next
	}
}

// Expand returns a copy of obj with every indirect reference inside
// dictionaries, arrays and stream dictionaries replaced by its expanded
// target. The input is never modified. A reference met twice on different
// branches is loaded once and its expansion shared.
func (r *Resolver) Expand(obj core.Object) (core.Object, error) {
	w := &walk{
		Resolver: r,
		active:   make(map[core.IndirectRef]bool),
		done:     make(map[core.IndirectRef]core.Object),
	}
	return w.expand(obj, 0)
}

// ExpandDict expands every value of dict.
func (r *Resolver) ExpandDict(dict core.Dict) (core.Dict, error) {
	out, err := r.Expand(dict)
	if err != nil {
		return nil, err
	}
	return out.(core.Dict), nil
}

// ExpandArray expands every element of arr.
func (r *Resolver) ExpandArray(arr core.Array) (core.Array, error) {
	out, err := r.Expand(arr)
	if err != nil {
		return nil, err
	}
	return out.(core.Array), nil
}

// walk is the state of one Expand call.
type walk struct {
	*Resolver
	active map[core.IndirectRef]bool // references on the current branch
	done   map[core.IndirectRef]core.Object
}

func (w *walk) expand(obj core.Object, depth int) (core.Object, error) {
	if depth > w.maxDepth {
		return nil, fmt.Errorf("%w (%d)", ErrMaxDepth, w.maxDepth)
	}

	switch v := obj.(type) {
	case core.IndirectRef:
		return w.expandRef(v, depth)

	case core.Dict:
		out := make(core.Dict, len(v))
		for _, key := range v.Keys() {
			e, err := w.expand(v[key], depth+1)
			if err != nil {
				return nil, fmt.Errorf("/%s: %w", key, err)
			}
			out[key] = e
		}
		return out, nil

	case core.Array:
		out := make(core.Array, len(v))
		for i, elem := range v {
			e, err := w.expand(elem, depth+1)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = e
		}
		return out, nil

	case *core.Stream:
		dict, err := w.expand(v.Dict, depth+1)
		if err != nil {
			return nil, fmt.Errorf("stream dictionary: %w", err)
		}
		s := *v
		s.Dict = dict.(core.Dict)
		return &s, nil
	}
	return obj, nil
}

func (w *walk) expandRef(ref core.IndirectRef, depth int) (core.Object, error) {
	if obj, ok := w.done[ref]; ok {
		return obj, nil
	}
	if w.active[ref] {
		return nil, fmt.Errorf("%w: %s", ErrCircularReference, ref)
	}
	if w.maxRefs > 0 && len(w.done)+len(w.active) >= w.maxRefs {
		return nil, fmt.Errorf("%w (%d)", ErrTooManyReferences, w.maxRefs)
	}

	target, err := w.src.ResolveReference(ref)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}

	w.active[ref] = true
	obj, err := w.expand(target, depth+1)
	delete(w.active, ref)
	if err != nil {
		return nil, err
	}
	w.done[ref] = obj
	return obj, nil
}
