package reader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/tsawler/gutenberg/core"
	"github.com/tsawler/gutenberg/pages"
	"github.com/tsawler/gutenberg/resolver"
)

// ErrNoSuchPage is returned by GetPage for an index outside the document.
// The document stays usable.
var ErrNoSuchPage = pages.ErrNoSuchPage

// ErrClosed is returned for requests that need the file after Close.
var ErrClosed = errors.New("document is closed")

var errMmapUnavailable = errors.New("memory mapping unavailable")

// headerWindow is how far into the file the %PDF- signature is searched.
const headerWindow = 1024

// PDFVersion represents a PDF version
type PDFVersion struct {
	Major int
	Minor int
}

// String returns the version as a string (e.g., "1.7")
func (v PDFVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func (v PDFVersion) less(o PDFVersion) bool {
	return v.Major < o.Major || (v.Major == o.Major && v.Minor < o.Minor)
}

type resolutionMode int

const (
	modeClassic resolutionMode = iota
	modeLinearized
)

func (m resolutionMode) String() string {
	if m == modeLinearized {
		return "linearized"
	}
	return "classic"
}

// Document is an open PDF file. Objects are loaded on request and cached by
// reference for the lifetime of the Document, so repeated requests return
// the same value. A Document is safe for concurrent use.
type Document struct {
	src     io.ReaderAt
	closed  atomic.Bool
	size    int64
	closers []func() error

	opts    options
	logger  *slog.Logger
	version PDFVersion
	decoder core.StreamDecoder

	// Set during open and not changed afterwards.
	mode       resolutionMode
	linearized bool                  // the first object declared /Linearized
	index      *core.Index           // classic mode
	linear     *core.LinearizedState // linearized mode
	first      *core.IndirectObject  // first object of the file, if it is a catalog

	trailer core.Dict
	cache   *objectCache

	mu         sync.Mutex
	catalogRef core.IndirectRef
	catalog    *pages.Catalog
	tree       *pages.PageTree
}

var (
	_ pages.ObjectResolver   = (*Document)(nil)
	_ core.ReferenceResolver = (*Document)(nil)
)

// Open opens a PDF file. On unix the file is memory mapped unless
// WithoutMmap is given.
func Open(filename string, opts ...Option) (*Document, error) {
	o := buildOptions(opts)

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	size := info.Size()

	var src io.ReaderAt = file
	closers := []func() error{file.Close}
	if o.mmap {
		data, unmap, err := mapFile(file, size)
		if err == nil {
			src = bytes.NewReader(data)
			closers = []func() error{unmap, file.Close}
		} else {
			o.logger.Debug("reading without mmap", "path", filename, "error", err)
		}
	}

	doc, err := newDocument(src, size, o)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, err
	}
	doc.closers = closers
	return doc, nil
}

// NewDocument opens the PDF held in the first size bytes of r. r must stay
// valid until the Document is no longer used; Close does not close it.
func NewDocument(r io.ReaderAt, size int64, opts ...Option) (*Document, error) {
	return newDocument(r, size, buildOptions(opts))
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newDocument(r io.ReaderAt, size int64, o options) (*Document, error) {
	d := &Document{
		size:   size,
		opts:   o,
		logger: o.logger,
		cache:  newObjectCache(),
	}
	d.src = &openReader{r: r, closed: &d.closed}
	d.decoder = core.StreamDecoder{
		Registry:         o.registry,
		Resolver:         d,
		Limits:           o.limits,
		RawOnUnsupported: o.rawUnsupported,
		Logger:           o.logger,
	}

	version, start, err := readHeader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	d.version = version

	first := d.scanFirst(start)
	if first != nil {
		if dict, ok := first.Object.(core.Dict); ok && dict.Has("Linearized") {
			d.linearized = true
			err := d.openLinearized(dict)
			if err == nil {
				d.emit(Event{Kind: EventOpen, Offset: -1, Detail: d.mode.String()})
				return d, nil
			}
			d.logger.Debug("linearized path rejected", "error", err)
			d.emit(Event{Kind: EventFallback, Offset: -1, Detail: err.Error()})
		}
		// Exact match only: a /Type of "catalog" or "Catalog2" is not a catalog.
		if dict, ok := first.Object.(core.Dict); ok && dict.TypeName() == "Catalog" {
			d.first = first
		}
	}

	if err := d.openClassic(); err != nil {
		return nil, err
	}
	d.emit(Event{Kind: EventOpen, Offset: -1, Detail: d.mode.String()})
	return d, nil
}

// readHeader finds the %PDF-x.y signature near the start of the file and
// returns the version and the offset of the signature.
func readHeader(r io.ReaderAt, size int64) (PDFVersion, int64, error) {
	n := int64(headerWindow)
	if n > size {
		n = size
	}
	buf := make([]byte, n)
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		return PDFVersion{}, 0, fmt.Errorf("failed to read header: %w", err)
	}

	idx := bytes.Index(buf, []byte("%PDF-"))
	if idx < 0 {
		return PDFVersion{}, 0, fmt.Errorf("%w: no %%PDF- signature in the first %d bytes", core.ErrMalformedObject, n)
	}
	v, ok := parseVersion(buf[idx+len("%PDF-"):])
	if !ok {
		return PDFVersion{}, 0, fmt.Errorf("%w: invalid version format in header", core.ErrMalformedObject)
	}
	return v, int64(idx), nil
}

// parseVersion parses "major.minor" at the start of b.
func parseVersion(b []byte) (PDFVersion, bool) {
	digits := func(b []byte) (int, []byte, bool) {
		i := 0
		for i < len(b) && b[i] >= '0' && b[i] <= '9' {
			i++
		}
		if i == 0 {
			return 0, b, false
		}
		n, err := strconv.Atoi(string(b[:i]))
		return n, b[i:], err == nil
	}

	major, rest, ok := digits(b)
	if !ok || len(rest) == 0 || rest[0] != '.' {
		return PDFVersion{}, false
	}
	minor, _, ok := digits(rest[1:])
	if !ok {
		return PDFVersion{}, false
	}
	return PDFVersion{Major: major, Minor: minor}, true
}

// scanFirst parses the first object after the header. A failure is not an
// error: the object is only used to detect linearization and the catalog.
func (d *Document) scanFirst(start int64) *core.IndirectObject {
	obj, err := core.ReadObjectAt(d.src, d.size, start, d.opts.limits)
	if err != nil {
		d.logger.Debug("first object unreadable", "offset", start, "error", err)
		return nil
	}
	return obj
}

func (d *Document) openLinearized(dict core.Dict) error {
	ls := core.NewLinearizedState(d.src, d.size, dict)
	ls.SetLimits(d.opts.limits)
	ls.SetLogger(d.logger)
	ls.SetFallback(d.buildIndex)
	// Runs after the state lock is released, so observers may call back
	// into the document.
	ls.OnFallback(func(reason string) {
		d.emitSections(ls.Index())
		d.emit(Event{Kind: EventFallback, Offset: -1, Detail: reason})
	})
	if err := ls.Activate(); err != nil {
		return err
	}

	d.mode = modeLinearized
	d.linear = ls
	d.trailer = ls.Trailer()

	root := ls.Root()
	if obj, ok := ls.Hinted(root); ok {
		if cat, ok := obj.(core.Dict); ok {
			d.setCatalog(root, cat)
		}
	}
	return nil
}

func (d *Document) openClassic() error {
	ix, err := d.buildIndex()
	if err != nil {
		return fmt.Errorf("failed to load xref: %w", err)
	}
	d.mode = modeClassic
	d.index = ix
	d.trailer = ix.Trailer()
	d.emitSections(ix)

	if _, err := d.Catalog(); err != nil {
		return err
	}
	if _, err := d.pageTree(); err != nil {
		return err
	}
	return nil
}

// buildIndex runs the cross-reference first pass and returns an index whose
// object streams are loaded through the document cache.
func (d *Document) buildIndex() (*core.Index, error) {
	x := core.NewXRefParser(d.src, d.size)
	x.SetDecoder(&core.StreamDecoder{Registry: d.opts.registry, Logger: d.logger})
	x.SetLimits(d.opts.limits)
	x.SetLogger(d.logger)
	table, err := x.Build()
	if err != nil {
		return nil, err
	}
	if table.Repaired {
		d.logger.Debug("cross-reference rebuilt from object headers", "objects", table.Size())
	}

	ix := core.NewIndex(d.src, d.size, table)
	ix.SetLimits(d.opts.limits)
	ix.SetDecoder(core.StreamDecoder{Registry: d.opts.registry, Logger: d.logger})
	ix.SetLogger(d.logger)
	ix.SetResolver(d)
	return ix, nil
}

// emitSections reports the subsections of ix. It is called outside of any
// lock once the index is in place, never from buildIndex.
func (d *Document) emitSections(ix *core.Index) {
	if ix == nil {
		return
	}
	for _, s := range ix.Sections() {
		d.emit(Event{Kind: EventXRefSection, Offset: s.Offset, Detail: fmt.Sprintf("objects %d-%d", s.Start, s.Start+s.Count-1)})
	}
}

func (d *Document) emit(e Event) {
	if d.opts.observer != nil {
		d.opts.observer(e)
	}
}

// openReader fails every read once the document is closed, so a mapping
// is never read after it was released.
type openReader struct {
	r      io.ReaderAt
	closed *atomic.Bool
}

func (o *openReader) ReadAt(p []byte, off int64) (int, error) {
	if o.closed.Load() {
		return 0, ErrClosed
	}
	return o.r.ReadAt(p, off)
}

// Close releases the file. Documents created by NewDocument hold nothing to
// release. Afterwards objects not loaded before fail with ErrClosed.
func (d *Document) Close() error {
	d.closed.Store(true)
	var errs []error
	for _, c := range d.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// Version returns the PDF version. A catalog /Version newer than the header
// wins once the catalog is loaded.
func (d *Document) Version() PDFVersion {
	v := d.version
	d.mu.Lock()
	cat := d.catalog
	d.mu.Unlock()
	if cat != nil {
		if cv, ok := parseVersion([]byte(cat.Version())); ok && v.less(cv) {
			v = cv
		}
	}
	return v
}

// Linearized reports whether the first object of the file declares the
// document linearized. It stays true after a fallback to the classic index,
// including one taken at open because the hints were invalid.
func (d *Document) Linearized() bool {
	return d.linearized
}

// Trailer returns the effective trailer dictionary. For a linearized
// document it is the first-page trailer until the classic index is built.
func (d *Document) Trailer() core.Dict {
	if d.mode == modeLinearized {
		if ix := d.linear.Index(); ix != nil {
			return ix.Trailer()
		}
	}
	return d.trailer
}

// XRefSections returns the cross-reference subsections indexed so far. It is
// empty for a linearized document that has not fallen back.
func (d *Document) XRefSections() []core.XRefSection {
	switch d.mode {
	case modeLinearized:
		if ix := d.linear.Index(); ix != nil {
			return ix.Sections()
		}
		return nil
	default:
		return d.index.Sections()
	}
}

// GetObject loads an object by reference.
// Each reference is loaded at most once; failures are not cached.
func (d *Document) GetObject(ref core.IndirectRef) (core.Object, error) {
	return d.cache.get(ref, d.load)
}

func (d *Document) load(ref core.IndirectRef) (core.Object, error) {
	if d.closed.Load() {
		return nil, fmt.Errorf("failed to load %s: %w", ref, ErrClosed)
	}
	var (
		obj core.Object
		err error
	)
	switch d.mode {
	case modeLinearized:
		obj, err = d.linear.GetObject(ref)
	default:
		obj, err = d.index.Load(ref)
	}
	if err != nil {
		return nil, err
	}

	if s, ok := obj.(*core.Stream); ok && s.LengthRecovered {
		d.logger.Debug("stream length recovered from endstream marker", "ref", ref.String(), "offset", s.Offset)
		d.emit(Event{Kind: EventLengthRecovered, Ref: ref, Offset: s.Offset})
	}
	return obj, nil
}

// ResolveReference resolves an indirect reference
func (d *Document) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	return d.GetObject(ref)
}

// Resolve resolves an object if it's an indirect reference, otherwise returns it as-is
func (d *Document) Resolve(obj core.Object) (core.Object, error) {
	if ref, ok := obj.(core.IndirectRef); ok {
		return d.ResolveReference(ref)
	}
	return obj, nil
}

// ResolveDeep returns a copy of obj with every indirect reference replaced
// by its target, recursively. Reference cycles are an error.
func (d *Document) ResolveDeep(obj core.Object) (core.Object, error) {
	depth := d.opts.limits.MaxNestingDepth
	if depth <= 0 {
		depth = core.DefaultLimits().MaxNestingDepth
	}
	return resolver.New(d, resolver.WithMaxDepth(depth)).Expand(obj)
}

// Decode returns the decoded data of a stream. Indirect filter parameters
// are resolved through the document.
func (d *Document) Decode(s *core.Stream) ([]byte, error) {
	return d.decoder.Decode(s)
}

// Catalog returns the document catalog. A catalog found as the first object
// of the file wins; the trailer /Root is read only when there is none. The
// first object is taken in its newest revision when the index has it.
func (d *Document) Catalog() (*pages.Catalog, error) {
	d.mu.Lock()
	cat := d.catalog
	d.mu.Unlock()
	if cat != nil {
		return cat, nil
	}

	if d.first != nil {
		dict := d.first.Object.(core.Dict)
		if obj, err := d.GetObject(d.first.Ref); err == nil {
			if newest, ok := obj.(core.Dict); ok {
				dict = newest
			}
		}
		d.logger.Debug("using first object as catalog", "ref", d.first.Ref.String())
		return d.setCatalog(d.first.Ref, dict), nil
	}

	root, ok := d.Trailer().GetIndirectRef("Root")
	if !ok {
		return nil, fmt.Errorf("%w: trailer missing /Root entry", core.ErrMalformedObject)
	}

	obj, err := d.GetObject(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog: %w", err)
	}
	dict, ok := obj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("%w: catalog is %v, not a dictionary", core.ErrMalformedObject, obj.Type())
	}
	return d.setCatalog(root, dict), nil
}

func (d *Document) setCatalog(ref core.IndirectRef, dict core.Dict) *pages.Catalog {
	d.mu.Lock()
	found := d.catalog == nil
	if found {
		d.catalog = pages.NewCatalog(dict, d)
		d.catalogRef = ref
	}
	cat := d.catalog
	d.mu.Unlock()

	if found {
		d.emit(Event{Kind: EventCatalogFound, Ref: ref, Offset: -1})
	}
	return cat
}

// pageTree returns the page tree, locating its root on first use.
func (d *Document) pageTree() (*pages.PageTree, error) {
	d.mu.Lock()
	tree := d.tree
	d.mu.Unlock()
	if tree != nil {
		return tree, nil
	}

	cat, err := d.Catalog()
	if err != nil {
		return nil, err
	}
	root, err := cat.Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to get page tree: %w", err)
	}
	tree = pages.NewPageTree(root, d)
	ref, indirect := cat.PagesRef()
	if indirect {
		tree.SetRootRef(ref)
	}

	d.mu.Lock()
	found := d.tree == nil
	if found {
		d.tree = tree
	}
	tree = d.tree
	d.mu.Unlock()

	if found {
		d.emit(Event{Kind: EventPageTreeFound, Ref: ref, Offset: -1})
	}
	return tree, nil
}

// hintedActive reports whether requests are still served by the linearized
// fast path.
func (d *Document) hintedActive() bool {
	return d.mode == modeLinearized && d.linear.Phase() == core.LinearizedActive
}

// PageCount returns the number of pages. A linearized document answers from
// its hints without reading the page tree.
func (d *Document) PageCount() (int, error) {
	if d.hintedActive() {
		return d.linear.PageCount(), nil
	}
	tree, err := d.pageTree()
	if err != nil {
		return 0, err
	}
	return tree.Len()
}

// GetPage returns the page at the given index (0-based)
func (d *Document) GetPage(index int) (*pages.Page, error) {
	if d.hintedActive() {
		n := d.linear.PageCount()
		if index < 0 || index >= n {
			return nil, fmt.Errorf("%w: page index %d out of range [0, %d)", ErrNoSuchPage, index, n)
		}
		if index == 0 {
			if p, ok := d.firstPage(); ok {
				return p, nil
			}
		}
		if _, err := d.linear.Fallback(fmt.Sprintf("page %d requested", index)); err != nil {
			return nil, err
		}
	}

	tree, err := d.pageTree()
	if err != nil {
		return nil, err
	}
	return tree.GetPage(index)
}

// firstPage builds page 0 of a linearized document from hinted objects only.
// Attributes are inherited from ancestors that are hinted too.
func (d *Document) firstPage() (*pages.Page, bool) {
	ref, ok := d.linear.FirstPage()
	if !ok {
		return nil, false
	}
	if _, hinted := d.linear.Hinted(ref); !hinted {
		return nil, false
	}
	obj, err := d.GetObject(ref)
	if err != nil {
		return nil, false
	}
	dict, ok := obj.(core.Dict)
	if !ok {
		return nil, false
	}

	var ancestors []core.Dict
	seen := map[core.IndirectRef]bool{ref: true}
	parent, ok := dict.GetIndirectRef("Parent")
	for ok && !seen[parent] {
		seen[parent] = true
		pobj, hinted := d.linear.Hinted(parent)
		if !hinted {
			break
		}
		pdict, isDict := pobj.(core.Dict)
		if !isDict {
			break
		}
		ancestors = append(ancestors, pdict)
		parent, ok = pdict.GetIndirectRef("Parent")
	}

	var inherited core.Dict
	for i := len(ancestors) - 1; i >= 0; i-- {
		inherited = pages.InheritFrom(inherited, ancestors[i])
	}
	return pages.NewPageAt(dict, ref, 0, inherited, d), true
}

// Pages returns every page in order.
func (d *Document) Pages() ([]*pages.Page, error) {
	n, err := d.PageCount()
	if err != nil {
		return nil, err
	}
	out := make([]*pages.Page, 0, n)
	for i := 0; i < n; i++ {
		p, err := d.GetPage(i)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// NumObjects returns the /Size entry of the trailer.
func (d *Document) NumObjects() int {
	size, _ := d.Trailer().GetInt("Size")
	return int(size)
}

// FileSize returns the size of the PDF file in bytes
func (d *Document) FileSize() int64 {
	return d.size
}

// CacheSize returns the number of cached objects
func (d *Document) CacheSize() int {
	return d.cache.len()
}
