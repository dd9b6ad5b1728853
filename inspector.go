package gutenberg

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tsawler/gutenberg/core"
	"github.com/tsawler/gutenberg/reader"
)

// warningLog collects warnings from document events. Events can arrive from
// any goroutine using the document.
type warningLog struct {
	mu       sync.Mutex
	warnings []Warning
}

func (l *warningLog) observe(e reader.Event) {
	w, ok := warningFromEvent(e)
	if !ok {
		return
	}
	l.add(w)
}

func (l *warningLog) add(w Warning) {
	l.mu.Lock()
	l.warnings = append(l.warnings, w)
	l.mu.Unlock()
}

func (l *warningLog) snapshot() []Warning {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Warning(nil), l.warnings...)
}

// Inspector provides a fluent interface for inspecting the structure of a
// PDF file. Each configuration method returns a new Inspector instance,
// allowing method chaining.
type Inspector struct {
	// Source
	filename string
	doc      *reader.Document

	// Lifecycle
	ownsDoc   bool // true if we opened the document and should close it
	docOpened bool // true if document has been opened

	// Configuration
	options InspectOptions

	// Accumulated error (fail-fast)
	err error

	log *warningLog
}

// Summary describes a file as a whole.
type Summary struct {
	Version      string
	Linearized   bool
	PageCount    int
	NumObjects   int // trailer /Size
	FileSize     int64
	XRefSections int // cross-reference subsections indexed
	Info         reader.Info
}

// PageInfo describes one page.
type PageInfo struct {
	Number   int // 1-indexed
	Ref      core.IndirectRef
	MediaBox []float64
	Width    float64
	Height   float64
	Rotate   int
	XObjects []reader.XObject
}

// clone creates a shallow copy of the Inspector with a deep copy of options.
func (i *Inspector) clone() *Inspector {
	return &Inspector{
		filename:  i.filename,
		doc:       i.doc,
		ownsDoc:   i.ownsDoc,
		docOpened: i.docOpened,
		options:   i.options.clone(),
		err:       i.err,
		log:       i.log,
	}
}

// ensureDocument opens the document if not already open.
func (i *Inspector) ensureDocument() error {
	if i.docOpened {
		return nil
	}
	if i.filename == "" {
		return fmt.Errorf("no filename specified")
	}

	log := &warningLog{}
	doc, err := reader.Open(i.filename, i.options.readerOptions(log.observe)...)
	if err != nil {
		return fmt.Errorf("failed to open PDF: %w", err)
	}
	i.doc = doc
	i.log = log
	i.ownsDoc = true
	i.docOpened = true
	return nil
}

// warnings returns the warnings collected so far.
func (i *Inspector) warnings() []Warning {
	if i.log == nil {
		return nil
	}
	return i.log.snapshot()
}

// Close releases resources associated with the Inspector.
// It is safe to call Close multiple times.
func (i *Inspector) Close() error {
	if i.ownsDoc && i.doc != nil {
		err := i.doc.Close()
		i.doc = nil
		i.ownsDoc = false
		i.docOpened = false
		return err
	}
	return nil
}

// ============================================================================
// Configuration Methods (return new Inspector instance)
// ============================================================================

// Pages specifies which pages to inspect (1-indexed).
// Multiple calls are cumulative.
//
// Example:
//
//	infos, _, err := gutenberg.Open("doc.pdf").Pages(1, 3, 5).PageInfos()
func (i *Inspector) Pages(pages ...int) *Inspector {
	n := i.clone()
	n.options.pages = append(n.options.pages, pages...)
	return n
}

// PageRange specifies a range of pages to inspect (1-indexed, inclusive).
func (i *Inspector) PageRange(start, end int) *Inspector {
	n := i.clone()
	for p := start; p <= end; p++ {
		n.options.pages = append(n.options.pages, p)
	}
	return n
}

// WithLogger sets the logger for diagnostics. It has no effect once the
// document is open.
func (i *Inspector) WithLogger(l *slog.Logger) *Inspector {
	n := i.clone()
	n.options.logger = l
	return n
}

// WithLimits bounds the work done on the file. Zero fields keep their
// defaults.
func (i *Inspector) WithLimits(l core.Limits) *Inspector {
	n := i.clone()
	n.options.limits = &l
	return n
}

// WithFilter registers a stream filter under name and its abbreviations.
func (i *Inspector) WithFilter(name string, fn reader.FilterFunc, aliases ...string) *Inspector {
	n := i.clone()
	n.options.filters = append(n.options.filters, filterSpec{name: name, fn: fn, aliases: aliases})
	return n
}

// RawUnsupportedFilters makes stream decoding return undecoded bytes for
// filters that are not supported.
func (i *Inspector) RawUnsupportedFilters() *Inspector {
	n := i.clone()
	n.options.rawUnsupported = true
	return n
}

// WithoutMmap reads the file with ReadAt instead of mapping it into memory.
func (i *Inspector) WithoutMmap() *Inspector {
	n := i.clone()
	n.options.noMmap = true
	return n
}

// ============================================================================
// Terminal Operations
// ============================================================================

// Document opens the file if needed and returns the underlying Document.
// The Inspector keeps ownership; closing the Inspector closes it.
func (i *Inspector) Document() (*reader.Document, error) {
	if i.err != nil {
		return nil, i.err
	}
	if err := i.ensureDocument(); err != nil {
		return nil, err
	}
	return i.doc, nil
}

// PageCount returns the number of pages.
// Note: This does NOT close the document, allowing further operations.
//
// Example:
//
//	ins := gutenberg.Open("document.pdf")
//	defer ins.Close()
//	count, err := ins.PageCount()
func (i *Inspector) PageCount() (int, error) {
	if i.err != nil {
		return 0, i.err
	}
	if err := i.ensureDocument(); err != nil {
		return 0, err
	}
	return i.doc.PageCount()
}

// Object loads the object num gen R. It does not close the document.
func (i *Inspector) Object(num, gen int) (core.Object, error) {
	if i.err != nil {
		return nil, i.err
	}
	if err := i.ensureDocument(); err != nil {
		return nil, err
	}
	return i.doc.GetObject(core.IndirectRef{Number: num, Generation: gen})
}

// Summary describes the file. This is a terminal operation that closes the
// document if the Inspector opened it.
//
// Example:
//
//	summary, warnings, err := gutenberg.Open("document.pdf").Summary()
func (i *Inspector) Summary() (Summary, []Warning, error) {
	if i.err != nil {
		return Summary{}, nil, i.err
	}
	if err := i.ensureDocument(); err != nil {
		return Summary{}, nil, err
	}
	defer i.Close()

	count, err := i.doc.PageCount()
	if err != nil {
		return Summary{}, i.warnings(), fmt.Errorf("failed to get page count: %w", err)
	}
	info, err := i.doc.Info()
	if err != nil {
		return Summary{}, i.warnings(), fmt.Errorf("failed to read document info: %w", err)
	}
	// The catalog may carry a newer version than the header
	if _, err := i.doc.Catalog(); err != nil {
		return Summary{}, i.warnings(), fmt.Errorf("failed to read catalog: %w", err)
	}

	s := Summary{
		Version:      i.doc.Version().String(),
		Linearized:   i.doc.Linearized(),
		PageCount:    count,
		NumObjects:   i.doc.NumObjects(),
		FileSize:     i.doc.FileSize(),
		XRefSections: len(i.doc.XRefSections()),
		Info:         info,
	}
	return s, i.warnings(), nil
}

// PageInfos describes the selected pages, or every page when none were
// selected. Pages that cannot be read are skipped with a warning. This is a
// terminal operation that closes the document if the Inspector opened it.
func (i *Inspector) PageInfos() ([]PageInfo, []Warning, error) {
	if i.err != nil {
		return nil, nil, i.err
	}
	if err := i.ensureDocument(); err != nil {
		return nil, nil, err
	}
	defer i.Close()

	indices, err := i.resolvePages()
	if err != nil {
		return nil, i.warnings(), err
	}

	var out []PageInfo
	for _, idx := range indices {
		info, err := i.pageInfo(idx)
		if err != nil {
			i.addWarning(Warning{Kind: WarningPageSkipped, Page: idx + 1, Message: err.Error()})
			continue
		}
		out = append(out, info)
	}
	return out, i.warnings(), nil
}

func (i *Inspector) addWarning(w Warning) {
	if i.log == nil {
		i.log = &warningLog{}
	}
	i.log.add(w)
}

func (i *Inspector) pageInfo(idx int) (PageInfo, error) {
	page, err := i.doc.GetPage(idx)
	if err != nil {
		return PageInfo{}, err
	}
	box, err := page.MediaBox()
	if err != nil {
		return PageInfo{}, err
	}
	width, _ := page.Width()
	height, _ := page.Height()
	xobjs, err := i.doc.PageXObjects(page)
	if err != nil {
		return PageInfo{}, err
	}
	return PageInfo{
		Number:   idx + 1,
		Ref:      page.Ref(),
		MediaBox: box,
		Width:    width,
		Height:   height,
		Rotate:   page.Rotate(),
		XObjects: xobjs,
	}, nil
}

// ============================================================================
// Internal helpers
// ============================================================================

// resolvePages converts 1-indexed page numbers to 0-indexed and validates them.
// If no pages specified, returns all pages.
func (i *Inspector) resolvePages() ([]int, error) {
	pageCount, err := i.doc.PageCount()
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}

	if len(i.options.pages) == 0 {
		pageIndices := make([]int, pageCount)
		for p := 0; p < pageCount; p++ {
			pageIndices[p] = p
		}
		return pageIndices, nil
	}

	seen := make(map[int]bool)
	var pageIndices []int
	for _, p := range i.options.pages {
		if p < 1 || p > pageCount {
			return nil, fmt.Errorf("page %d out of range (1-%d)", p, pageCount)
		}
		if !seen[p-1] {
			seen[p-1] = true
			pageIndices = append(pageIndices, p-1)
		}
	}

	sort.Ints(pageIndices)
	return pageIndices, nil
}
