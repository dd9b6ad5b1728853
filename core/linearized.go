package core

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
)

// LinearizationHints are the entries of a linearization parameter
// dictionary.
type LinearizationHints struct {
	L int64   // file length
	O int     // object number of the first page
	E int64   // offset of the end of the first page section
	N int     // number of pages
	T int64   // offset of the main cross-reference table
	H []int64 // hint stream offsets and lengths, recorded only
}

// ParseLinearizationHints reads and validates the hints of dict against the
// actual file size. Failures wrap ErrLinearizationHintInvalid.
func ParseLinearizationHints(dict Dict, fileSize int64) (LinearizationHints, error) {
	var h LinearizationHints
	invalid := func(format string, args ...interface{}) (LinearizationHints, error) {
		return h, fmt.Errorf("%w: %s", ErrLinearizationHintInvalid, fmt.Sprintf(format, args...))
	}

	if !dict.Has("Linearized") {
		return invalid("not a linearization dictionary")
	}

	l, ok := ToInt64(dict.Get("L"))
	if !ok {
		return invalid("missing L")
	}
	h.L = l
	if h.L != fileSize {
		return invalid("L is %d but the file has %d bytes", h.L, fileSize)
	}

	o, ok := ToInt64(dict.Get("O"))
	if !ok || o <= 0 {
		return invalid("missing or invalid O")
	}
	h.O = int(o)

	n, ok := ToInt64(dict.Get("N"))
	if !ok || n <= 0 {
		return invalid("missing or invalid N")
	}
	h.N = int(n)

	e, ok := ToInt64(dict.Get("E"))
	if !ok || e <= 0 || e > h.L {
		return invalid("E outside the file")
	}
	h.E = e

	if t, ok := ToInt64(dict.Get("T")); ok {
		h.T = t
	}
	if arr, ok := dict.GetArray("H"); ok {
		for _, v := range arr {
			if x, ok := ToInt64(v); ok {
				h.H = append(h.H, x)
			}
		}
	}
	return h, nil
}

// LinearizedPhase is the state of the linearized fast path.
type LinearizedPhase int

const (
	LinearizedUninitialized LinearizedPhase = iota
	LinearizedActive                        // serving hinted objects
	LinearizedFallbackBuilt                 // classic index built; terminal
)

// String returns the name of the phase.
func (p LinearizedPhase) String() string {
	switch p {
	case LinearizedUninitialized:
		return "uninitialized"
	case LinearizedActive:
		return "active"
	case LinearizedFallbackBuilt:
		return "fallback"
	default:
		return "unknown"
	}
}

// LinearizedState serves objects of a linearized file from its first-page
// section without building a cross-reference index. The first request
// outside that section builds the classic index, after which every request
// goes through it.
type LinearizedState struct {
	src    io.ReaderAt
	size   int64
	limits Limits
	logger *slog.Logger
	dict   Dict

	mu      sync.Mutex
	phase   LinearizedPhase
	hints   LinearizationHints
	objects map[IndirectRef]Object
	trailer Dict
	root    IndirectRef
	index   *Index

	fallback   func() (*Index, error)
	onFallback func(reason string)
}

// NewLinearizedState creates the fast path for a file whose first object is
// the linearization dictionary dict.
func NewLinearizedState(r io.ReaderAt, size int64, dict Dict) *LinearizedState {
	ls := &LinearizedState{
		src:     r,
		size:    size,
		limits:  DefaultLimits(),
		logger:  slog.Default(),
		dict:    dict,
		objects: make(map[IndirectRef]Object),
	}
	ls.fallback = func() (*Index, error) {
		table, err := BuildXRef(ls.src, ls.size, ls.limits)
		if err != nil {
			return nil, err
		}
		ix := NewIndex(ls.src, ls.size, table)
		ix.SetLimits(ls.limits)
		ix.SetLogger(ls.logger)
		return ix, nil
	}
	return ls
}

// SetLimits replaces the limits. Zero fields keep their defaults.
func (ls *LinearizedState) SetLimits(limits Limits) {
	ls.limits = limits.withDefaults()
}

// SetLogger sets the logger for diagnostics.
func (ls *LinearizedState) SetLogger(l *slog.Logger) {
	ls.logger = l
}

// SetFallback replaces the function that builds the classic index. build
// runs with the state locked and must not call back into ls.
func (ls *LinearizedState) SetFallback(build func() (*Index, error)) {
	ls.fallback = build
}

// OnFallback registers a function called once when the fallback happens,
// after the state is unlocked.
func (ls *LinearizedState) OnFallback(fn func(reason string)) {
	ls.onFallback = fn
}

// Activate validates the hints and parses the first-page section. On error
// the state stays uninitialized and the caller should fall back.
func (ls *LinearizedState) Activate() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.phase != LinearizedUninitialized {
		return nil
	}

	hints, err := ParseLinearizationHints(ls.dict, ls.size)
	if err != nil {
		return err
	}
	if err := ls.scanFirstPage(hints.E); err != nil {
		ls.objects = make(map[IndirectRef]Object)
		ls.trailer = nil
		return fmt.Errorf("%w: first page section: %v", ErrLinearizationHintInvalid, err)
	}

	ls.hints = hints
	ls.phase = LinearizedActive
	ls.logger.Debug("linearized fast path active", "pages", hints.N, "first_page", hints.O, "objects", len(ls.objects))
	return nil
}

// scanFirstPage parses [0, end) sequentially, recording every object and
// the first-page trailer. It never reads objects starting at or past end.
func (ls *LinearizedState) scanFirstPage(end int64) error {
	lex := NewLexer(ls.src, ls.size)
	parser := NewParser(lex)
	parser.SetLimits(ls.limits)

	for {
		if err := lex.SkipWhitespace(); err != nil {
			return err
		}
		if lex.Position() >= end {
			break
		}

		tok, err := lex.PeekToken()
		if err != nil {
			return err
		}

		switch {
		case tok.Type == TokenInteger:
			obj, err := parser.ParseIndirectObject()
			if err != nil {
				return err
			}
			ls.objects[obj.Ref] = obj.Object
			if s, ok := obj.Object.(*Stream); ok && s.Dict.TypeName() == "XRef" && ls.trailer == nil {
				ls.trailer = s.Dict
			}

		case tok.IsKeyword("xref"):
			// Entries are not needed; the trailer follows them
			at, ok := lex.IndexFrom([]byte("trailer"), ls.size)
			if !ok {
				return malformed("first page xref without trailer")
			}
			lex.SeekTo(at + int64(len("trailer")))
			obj, err := parser.ParseObject()
			if err != nil {
				return err
			}
			dict, ok := obj.(Dict)
			if !ok {
				return malformed("first page trailer is not a dictionary")
			}
			ls.trailer = dict

		case tok.IsKeyword("startxref"):
			lex.SeekTo(tok.Pos + int64(len(tok.Value)))
			if _, err := lex.NextToken(); err != nil {
				return err
			}

		default:
			return errorAt("scan first page", tok.Pos, malformed("unexpected %v %q", tok.Type, tok.Value))
		}
	}

	if ls.trailer == nil {
		return malformed("no first page trailer")
	}
	root, ok := ls.trailer.GetIndirectRef("Root")
	if !ok {
		return malformed("first page trailer has no Root")
	}
	ls.root = root
	return nil
}

// Phase returns the current phase.
func (ls *LinearizedState) Phase() LinearizedPhase {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.phase
}

// Hints returns the validated hints. They are zero before activation.
func (ls *LinearizedState) Hints() LinearizationHints {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.hints
}

// Trailer returns the first-page trailer.
func (ls *LinearizedState) Trailer() Dict {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.trailer
}

// Root returns the catalog reference from the first-page trailer.
func (ls *LinearizedState) Root() IndirectRef {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.root
}

// PageCount returns the N hint.
func (ls *LinearizedState) PageCount() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.hints.N
}

// FirstPage returns the reference of the first page object (the O hint).
func (ls *LinearizedState) FirstPage() (IndirectRef, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for ref := range ls.objects {
		if ref.Number == ls.hints.O {
			return ref, true
		}
	}
	return IndirectRef{Number: ls.hints.O}, false
}

// Hinted returns an object from the first-page section without triggering
// the fallback.
func (ls *LinearizedState) Hinted(ref IndirectRef) (Object, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.phase != LinearizedActive {
		return nil, false
	}
	obj, ok := ls.objects[ref]
	return obj, ok
}

// HintedRefs returns the references parsed from the first-page section in
// ascending order.
func (ls *LinearizedState) HintedRefs() []IndirectRef {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	refs := make([]IndirectRef, 0, len(ls.objects))
	for ref := range ls.objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Number != refs[j].Number {
			return refs[i].Number < refs[j].Number
		}
		return refs[i].Generation < refs[j].Generation
	})
	return refs
}

// GetObject returns a hinted object, or resolves ref through the classic
// index, building it first if needed.
func (ls *LinearizedState) GetObject(ref IndirectRef) (Object, error) {
	if obj, ok := ls.Hinted(ref); ok {
		return obj, nil
	}
	ix, err := ls.Fallback(fmt.Sprintf("object %s outside first page section", ref))
	if err != nil {
		return nil, err
	}
	return ix.Load(ref)
}

// Index returns the classic index, or nil before the fallback.
func (ls *LinearizedState) Index() *Index {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.index
}

// Fallback builds the classic index if it does not exist yet and returns it.
// A failed build leaves the state unchanged so a later call can retry.
func (ls *LinearizedState) Fallback(reason string) (*Index, error) {
	ls.mu.Lock()
	if ls.index != nil {
		ix := ls.index
		ls.mu.Unlock()
		return ix, nil
	}
	ix, err := ls.fallback()
	if err != nil {
		ls.mu.Unlock()
		return nil, fmt.Errorf("linearized fallback: %w", err)
	}
	ls.index = ix
	ls.phase = LinearizedFallbackBuilt
	ls.objects = make(map[IndirectRef]Object)
	ls.mu.Unlock()

	ls.logger.Debug("linearized fallback", "reason", reason, "sections", len(ix.Sections()))
	if ls.onFallback != nil {
		ls.onFallback(reason)
	}
	return ix, nil
}
