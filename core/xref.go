package core

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
)

// XRefEntryType identifies how an object slot is stored.
type XRefEntryType int

const (
	XRefEntryFree       XRefEntryType = iota // slot is unused
	XRefEntryInUse                           // object stored directly at Offset
	XRefEntryCompressed                      // object stored inside an object stream
)

// String returns the name of the entry type.
func (t XRefEntryType) String() string {
	switch t {
	case XRefEntryFree:
		return "free"
	case XRefEntryInUse:
		return "in-use"
	case XRefEntryCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// XRefEntry represents a single cross-reference entry.
type XRefEntry struct {
	Type       XRefEntryType
	Offset     int64 // Byte offset in file (in use) or next free object number (free)
	Generation int   // Generation number; always 0 for compressed objects
	Container  int   // Object number of the containing object stream (compressed)
	Index      int   // Index within the containing object stream (compressed)
}

// XRefSection is one contiguous run of object numbers declared by a
// subsection header of an xref table or an Index pair of an xref stream.
type XRefSection struct {
	Start  int   // first object number
	Count  int   // number of entries
	Offset int64 // offset of the xref keyword or xref stream object
}

// Contains reports whether objNum falls inside the section.
func (s XRefSection) Contains(objNum int) bool {
	return objNum >= s.Start && objNum < s.Start+s.Count
}

// XRefTable represents a PDF cross-reference table. A table produced by
// ParseXRef describes one revision; MergeXRefTables combines revisions.
type XRefTable struct {
	Entries  map[int]XRefEntry // Map from object number to XRef entry
	Sections []XRefSection
	Trailer  Dict

	// Offset is the position the table was read from, or for a merged table
	// the position of the newest revision.
	Offset int64

	// Repaired is set when no usable cross-reference data existed and the
	// entries were reconstructed from object headers.
	Repaired bool

	trailerAt int64 // offset of the trailer keyword consumed, -1 if none
}

// NewXRefTable creates a new empty XRef table
func NewXRefTable() *XRefTable {
	return &XRefTable{
		Entries:   make(map[int]XRefEntry),
		Trailer:   make(Dict),
		Offset:    -1,
		trailerAt: -1,
	}
}

// Get retrieves an XRef entry by object number
func (x *XRefTable) Get(objNum int) (XRefEntry, bool) {
	entry, ok := x.Entries[objNum]
	return entry, ok
}

// Set adds or updates an XRef entry
func (x *XRefTable) Set(objNum int, entry XRefEntry) {
	x.Entries[objNum] = entry
}

// Size returns the number of entries in the table
func (x *XRefTable) Size() int {
	return len(x.Entries)
}

// XRefParser builds cross-reference tables from a file.
type XRefParser struct {
	src     io.ReaderAt
	size    int64
	limits  Limits
	decoder *StreamDecoder
	logger  *slog.Logger
}

// NewXRefParser creates a new XRef parser over the first size bytes of r.
func NewXRefParser(r io.ReaderAt, size int64) *XRefParser {
	return &XRefParser{
		src:     r,
		size:    size,
		limits:  DefaultLimits(),
		decoder: &StreamDecoder{},
		logger:  slog.Default(),
	}
}

// SetLimits replaces the limits. Zero fields keep their defaults.
func (x *XRefParser) SetLimits(limits Limits) {
	x.limits = limits.withDefaults()
	x.decoder.Limits = x.limits
}

// SetDecoder sets the decoder used for xref streams.
func (x *XRefParser) SetDecoder(d *StreamDecoder) {
	x.decoder = d
}

// SetLogger sets the logger for diagnostics about skipped or damaged data.
func (x *XRefParser) SetLogger(l *slog.Logger) {
	x.logger = l
}

func (x *XRefParser) newLexer(offset int64) (*Lexer, error) {
	lex := NewLexer(x.src, x.size)
	if err := lex.SeekTo(offset); err != nil {
		return nil, err
	}
	return lex, nil
}

// FindXRef finds the byte offset of the XRef table by scanning back from EOF.
// PDFs end with "startxref\n<offset>\n%%EOF"
func (x *XRefParser) FindXRef() (int64, error) {
	lex := NewLexer(x.src, x.size)

	// The marker is normally in the last 1024 bytes; fall back to the whole file
	idx, ok := lex.LastIndex([]byte("startxref"), x.size-1024, x.size)
	if !ok {
		idx, ok = lex.LastIndex([]byte("startxref"), 0, x.size)
	}
	if !ok {
		return 0, errorAt("find xref", -1, malformed("startxref not found"))
	}

	lex.SeekTo(idx + int64(len("startxref")))
	tok, err := lex.NextToken()
	if err != nil {
		return 0, err
	}
	offset, err := strconv.ParseInt(string(tok.Value), 10, 64)
	if tok.Type != TokenInteger || err != nil {
		return 0, errorAt("find xref", tok.Pos, malformed("invalid xref offset %q", tok.Value))
	}
	return offset, nil
}

// ParseXRef parses the cross-reference data at offset: either a classic
// table starting with the xref keyword or an xref stream object.
func (x *XRefParser) ParseXRef(offset int64) (*XRefTable, error) {
	lex, err := x.newLexer(offset)
	if err != nil {
		return nil, err
	}
	tok, err := lex.PeekToken()
	if err != nil {
		return nil, err
	}

	switch {
	case tok.IsKeyword("xref"):
		lex.SeekTo(tok.Pos + int64(len(tok.Value)))
		return x.parseTable(lex, tok.Pos)
	case tok.Type == TokenInteger:
		return x.parseStream(lex, tok.Pos)
	}
	return nil, errorAt("parse xref", offset, malformed("expected 'xref' or xref stream, got %v %q", tok.Type, tok.Value))
}

// parseTable parses the subsections of a classic table and the trailer that
// follows them. The xref keyword has been consumed.
func (x *XRefParser) parseTable(lex *Lexer, start int64) (*XRefTable, error) {
	table := NewXRefTable()
	table.Offset = start

	for {
		tok, err := lex.NextToken()
		if err != nil {
			return nil, fmt.Errorf("xref table at %d missing trailer: %w", start, err)
		}

		if tok.IsKeyword("trailer") {
			parser := NewParser(lex)
			parser.SetLimits(x.limits)
			obj, err := parser.ParseObject()
			if err != nil {
				return nil, fmt.Errorf("failed to parse trailer: %w", err)
			}
			dict, ok := obj.(Dict)
			if !ok {
				return nil, errorAt("parse trailer", tok.Pos, malformed("trailer is not a dictionary, got %v", obj.Type()))
			}
			table.Trailer = dict
			table.trailerAt = tok.Pos
			return table, nil
		}

		// Subsection header: first object number and count
		first, err1 := tokenInt(tok)
		countTok, err := lex.NextToken()
		if err != nil {
			return nil, err
		}
		count, err2 := tokenInt(countTok)
		if err1 != nil || err2 != nil || first < 0 || count < 0 {
			return nil, errorAt("parse xref", tok.Pos, malformed("invalid subsection header %q %q", tok.Value, countTok.Value))
		}

		table.Sections = append(table.Sections, XRefSection{Start: int(first), Count: int(count), Offset: start})
		for i := 0; i < int(count); i++ {
			entry, err := parseTableEntry(lex)
			if err != nil {
				return nil, fmt.Errorf("failed to parse xref entry %d: %w", int(first)+i, err)
			}
			table.Set(int(first)+i, entry)
		}
	}
}

// parseTableEntry reads one "nnnnnnnnnn ggggg n" entry. Entries are read as
// tokens so the 19- and 21-byte variants written by some producers parse too.
func parseTableEntry(lex *Lexer) (XRefEntry, error) {
	offTok, err := lex.NextToken()
	if err != nil {
		return XRefEntry{}, err
	}
	genTok, err := lex.NextToken()
	if err != nil {
		return XRefEntry{}, err
	}
	flagTok, err := lex.NextToken()
	if err != nil {
		return XRefEntry{}, err
	}

	offset, err1 := tokenInt(offTok)
	gen, err2 := tokenInt(genTok)
	if err1 != nil || err2 != nil {
		return XRefEntry{}, errorAt("parse xref entry", offTok.Pos, malformed("invalid entry %q %q", offTok.Value, genTok.Value))
	}

	switch {
	case flagTok.IsKeyword("n"):
		return XRefEntry{Type: XRefEntryInUse, Offset: offset, Generation: int(gen)}, nil
	case flagTok.IsKeyword("f"):
		return XRefEntry{Type: XRefEntryFree, Offset: offset, Generation: int(gen)}, nil
	}
	return XRefEntry{}, errorAt("parse xref entry", flagTok.Pos, malformed("invalid in-use flag %q", flagTok.Value))
}

func tokenInt(tok Token) (int64, error) {
	if tok.Type != TokenInteger {
		return 0, fmt.Errorf("not an integer: %q", tok.Value)
	}
	return strconv.ParseInt(string(tok.Value), 10, 64)
}

// parseStream parses an xref stream object (Type /XRef). Its dictionary
// doubles as the trailer of the revision.
func (x *XRefParser) parseStream(lex *Lexer, start int64) (*XRefTable, error) {
	parser := NewParser(lex)
	parser.SetLimits(x.limits)
	obj, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse xref stream: %w", err)
	}
	stream, ok := obj.Object.(*Stream)
	if !ok || stream.Dict.TypeName() != "XRef" {
		return nil, errorAt("parse xref stream", start, malformed("object %s is not an xref stream", obj.Ref))
	}

	size, ok := stream.Dict.GetInt("Size")
	if !ok || size < 0 {
		return nil, errorAt("parse xref stream", start, malformed("xref stream missing Size"))
	}

	w, err := xrefWidths(stream.Dict)
	if err != nil {
		return nil, errorAt("parse xref stream", start, err)
	}

	index := Array{Int(0), size}
	if arr, ok := stream.Dict.GetArray("Index"); ok {
		index = arr
	}
	if len(index)%2 != 0 {
		return nil, errorAt("parse xref stream", start, malformed("invalid Index array %v", index))
	}

	data, err := x.decoder.Decode(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to decode xref stream: %w", err)
	}

	table := NewXRefTable()
	table.Offset = start
	table.Trailer = stream.Dict

	for ; len(index) > 0; index = index[2:] {
		first, ok1 := index[0].(Int)
		count, ok2 := index[1].(Int)
		if !ok1 || !ok2 || first < 0 || count < 0 {
			return nil, errorAt("parse xref stream", start, malformed("malformed Index pair %v %v", index[0], index[1]))
		}
		table.Sections = append(table.Sections, XRefSection{Start: int(first), Count: int(count), Offset: start})

		for i := 0; i < int(count); i++ {
			entry, n, err := parseXRefStreamEntry(data, w)
			if err != nil {
				return nil, errorAt("parse xref stream", start, fmt.Errorf("%w: entry %d: %v", ErrMalformedObject, int(first)+i, err))
			}
			data = data[n:]
			if entry.Type < 0 {
				// Unknown entry types are references to the null object
				continue
			}
			table.Set(int(first)+i, entry)
		}
	}
	return table, nil
}

// xrefWidths reads the W array of an xref stream.
func xrefWidths(dict Dict) ([]int, error) {
	arr, ok := dict.GetArray("W")
	if !ok || len(arr) < 3 {
		return nil, malformed("xref stream missing W array")
	}
	w := make([]int, 3)
	for i := range w {
		v, ok := arr[i].(Int)
		if !ok || v < 0 || v > 8 {
			return nil, malformed("invalid W array %v", arr)
		}
		w[i] = int(v)
	}
	return w, nil
}

// parseXRefStreamEntry decodes one binary entry and returns it with the
// number of bytes consumed. A zero-width type field defaults to in-use.
// Unknown types are returned with a negative Type.
func parseXRefStreamEntry(data []byte, w []int) (XRefEntry, int, error) {
	total := w[0] + w[1] + w[2]
	if len(data) < total {
		return XRefEntry{}, 0, fmt.Errorf("need %d bytes, have %d", total, len(data))
	}

	typ := int64(1)
	if w[0] > 0 {
		typ = readBigEndianInt(data, w[0])
	}
	f2 := readBigEndianInt(data[w[0]:], w[1])
	f3 := readBigEndianInt(data[w[0]+w[1]:], w[2])

	switch typ {
	case 0:
		return XRefEntry{Type: XRefEntryFree, Offset: f2, Generation: int(f3)}, total, nil
	case 1:
		return XRefEntry{Type: XRefEntryInUse, Offset: f2, Generation: int(f3)}, total, nil
	case 2:
		return XRefEntry{Type: XRefEntryCompressed, Container: int(f2), Index: int(f3)}, total, nil
	}
	return XRefEntry{Type: -1}, total, nil
}

// readBigEndianInt reads a big-endian unsigned integer of width bytes.
func readBigEndianInt(data []byte, width int) int64 {
	var v int64
	for i := 0; i < width; i++ {
		v = v<<8 | int64(data[i])
	}
	return v
}

// MergeXRefTables merges multiple XRef tables (from incremental updates).
// Tables are given oldest first: later entries override earlier ones, and
// trailer keys of newer revisions override older ones while older keys fill
// gaps. Sections are concatenated.
func MergeXRefTables(tables ...*XRefTable) *XRefTable {
	merged := NewXRefTable()

	for _, table := range tables {
		for objNum, entry := range table.Entries {
			merged.Set(objNum, entry)
		}
		merged.Sections = append(merged.Sections, table.Sections...)
		for k, v := range table.Trailer {
			merged.Trailer[k] = v
		}
		merged.Offset = table.Offset
	}

	return merged
}

// scanResult holds the markers found by the line scan.
type scanResult struct {
	xrefs     []int64 // offsets of xref keywords
	trailers  []int64 // offsets of trailer keywords
	startxref int64   // value of the last startxref, -1 if none
	objects   []objectHeader
}

// objectHeader is an "n g obj" line found while scanning.
type objectHeader struct {
	ref    IndirectRef
	offset int64
}

// scan reads the file line by line and records the structural markers.
// Every line is consumed in full but only its first bytes are kept.
func (x *XRefParser) scan() scanResult {
	res := scanResult{startxref: -1}
	lex := NewLexer(x.src, x.size)

	for lex.Position() < lex.Size() {
		lineStart := lex.Position()
		line, err := lex.nextLine(64)
		if err != nil {
			break
		}
		trimmed := bytes.TrimLeft([]byte(line), " \t\f\x00")
		at := lineStart + int64(len(line)-len(trimmed))

		switch {
		case hasKeyword(trimmed, "startxref"):
			rest := bytes.TrimSpace(trimmed[len("startxref"):])
			if len(rest) == 0 {
				next, err := lex.nextLine(64)
				if err != nil {
					break
				}
				rest = bytes.TrimSpace([]byte(next))
			}
			if v, err := strconv.ParseInt(string(leadingDigits(rest)), 10, 64); err == nil {
				res.startxref = v
			}
		case hasKeyword(trimmed, "xref"):
			res.xrefs = append(res.xrefs, at)
		case hasKeyword(trimmed, "trailer"):
			res.trailers = append(res.trailers, at)
		default:
			if ref, ok := parseObjectLine(trimmed); ok {
				res.objects = append(res.objects, objectHeader{ref: ref, offset: at})
			}
		}
	}
	return res
}

// hasKeyword reports whether line starts with kw followed by a non-regular
// character or the end of the line.
func hasKeyword(line []byte, kw string) bool {
	if !bytes.HasPrefix(line, []byte(kw)) {
		return false
	}
	if len(line) == len(kw) {
		return true
	}
	c := line[len(kw)]
	return isWhitespace(c) || isDelimiter(c)
}

func leadingDigits(b []byte) []byte {
	i := 0
	for i < len(b) && isDigit(b[i]) {
		i++
	}
	return b[:i]
}

// parseObjectLine matches a line beginning "n g obj".
func parseObjectLine(line []byte) (IndirectRef, bool) {
	num := leadingDigits(line)
	if len(num) == 0 || len(num) == len(line) || !isWhitespace(line[len(num)]) {
		return IndirectRef{}, false
	}
	rest := bytes.TrimLeft(line[len(num):], " \t")
	gen := leadingDigits(rest)
	if len(gen) == 0 || len(gen) == len(rest) || !isWhitespace(rest[len(gen)]) {
		return IndirectRef{}, false
	}
	rest = bytes.TrimLeft(rest[len(gen):], " \t")
	if !hasKeyword(rest, "obj") {
		return IndirectRef{}, false
	}
	n, err1 := strconv.Atoi(string(num))
	g, err2 := strconv.Atoi(string(gen))
	if err1 != nil || err2 != nil {
		return IndirectRef{}, false
	}
	return IndirectRef{Number: n, Generation: g}, true
}

// Build runs the structural first pass and returns the merged table of the
// whole file.
//
// Every xref and trailer found by a line scan is recorded. Revisions are
// then ordered by following the Prev chain from startxref, cycle guarded and
// bounded by MaxXRefDepth, and merged oldest first so the newest revision
// wins. Sections off the chain are merged first with the lowest priority.
// When startxref is unusable the scanned sections are merged in file order,
// and when there are none at all the entries are rebuilt from object headers.
func (x *XRefParser) Build() (*XRefTable, error) {
	res := x.scan()

	scanned := make(map[int64]*XRefTable)
	var order []int64
	for _, off := range res.xrefs {
		t, err := x.ParseXRef(off)
		if err != nil {
			x.logger.Debug("skipping unreadable xref section", "offset", off, "error", err)
			continue
		}
		scanned[off] = t
		order = append(order, off)
	}

	start := res.startxref
	if start < 0 {
		if off, err := x.FindXRef(); err == nil {
			start = off
		}
	}
	chain := x.followChain(start, scanned)

	var tables []*XRefTable
	onChain := make(map[int64]bool)
	for _, t := range chain {
		onChain[t.Offset] = true
	}
	for _, off := range order {
		if !onChain[off] {
			tables = append(tables, scanned[off])
		}
	}
	for i := len(chain) - 1; i >= 0; i-- {
		tables = append(tables, chain[i])
	}

	if len(tables) == 0 {
		return x.repair(res)
	}

	merged := MergeXRefTables(tables...)
	if len(chain) > 0 {
		merged.Offset = chain[0].Offset
	}
	x.mergeOrphanTrailers(merged, res, tables)
	return merged, nil
}

// followChain walks the Prev links from start and returns the revisions
// newest first. Hybrid revisions have their XRefStm entries folded in.
func (x *XRefParser) followChain(start int64, scanned map[int64]*XRefTable) []*XRefTable {
	var chain []*XRefTable
	visited := make(map[int64]bool)

	for off := start; off >= 0 && off < x.size; {
		if visited[off] {
			x.logger.Debug("xref Prev chain contains cycle", "offset", off)
			break
		}
		if len(chain) > x.limits.MaxXRefDepth {
			x.logger.Debug("xref Prev chain too long", "limit", x.limits.MaxXRefDepth)
			break
		}
		visited[off] = true

		t, ok := scanned[off]
		if !ok {
			var err error
			t, err = x.ParseXRef(off)
			if err != nil {
				x.logger.Debug("unreadable xref revision", "offset", off, "error", err)
				break
			}
		}

		if stmOff, ok := t.Trailer.GetInt("XRefStm"); ok {
			if stm, err := x.ParseXRef(int64(stmOff)); err == nil {
				t = withHybridEntries(t, stm)
			} else {
				x.logger.Debug("unreadable XRefStm", "offset", int64(stmOff), "error", err)
			}
		}
		chain = append(chain, t)

		prev, ok := t.Trailer.GetInt("Prev")
		if !ok {
			break
		}
		off = int64(prev)
	}
	return chain
}

// withHybridEntries returns a copy of table with the entries of its XRefStm
// stream added where the table has no entry or only a free one.
func withHybridEntries(table, stm *XRefTable) *XRefTable {
	out := NewXRefTable()
	out.Offset = table.Offset
	out.Trailer = table.Trailer
	out.trailerAt = table.trailerAt
	out.Sections = append(append(out.Sections, table.Sections...), stm.Sections...)
	for n, e := range table.Entries {
		out.Entries[n] = e
	}
	for n, e := range stm.Entries {
		if cur, ok := out.Entries[n]; !ok || cur.Type == XRefEntryFree {
			out.Entries[n] = e
		}
	}
	return out
}

// mergeOrphanTrailers fills trailer keys from trailers that do not belong to
// any parsed table. They have the lowest priority.
func (x *XRefParser) mergeOrphanTrailers(merged *XRefTable, res scanResult, tables []*XRefTable) {
	owned := make(map[int64]bool)
	for _, t := range tables {
		owned[t.trailerAt] = true
	}
	for _, off := range res.trailers {
		if owned[off] {
			continue
		}
		dict, err := x.parseTrailerAt(off)
		if err != nil {
			x.logger.Debug("skipping unreadable trailer", "offset", off, "error", err)
			continue
		}
		for k, v := range dict {
			if !merged.Trailer.Has(k) {
				merged.Trailer[k] = v
			}
		}
	}
}

// parseTrailerAt parses the dictionary after the trailer keyword at off.
func (x *XRefParser) parseTrailerAt(off int64) (Dict, error) {
	lex, err := x.newLexer(off + int64(len("trailer")))
	if err != nil {
		return nil, err
	}
	parser := NewParser(lex)
	parser.SetLimits(x.limits)
	obj, err := parser.ParseObject()
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(Dict)
	if !ok {
		return nil, errorAt("parse trailer", off, malformed("trailer is not a dictionary"))
	}
	return dict, nil
}

// repair rebuilds the entries from the "n g obj" lines found by the scan.
// The last occurrence of an object number wins, matching incremental saves.
// Orphan trailers supply the trailer; Size is derived when none exists.
func (x *XRefParser) repair(res scanResult) (*XRefTable, error) {
	if len(res.objects) == 0 {
		return nil, errorAt("build xref", -1, malformed("no cross-reference data or objects found"))
	}
	x.logger.Debug("rebuilding xref from object headers", "objects", len(res.objects))

	table := NewXRefTable()
	table.Repaired = true
	maxNum := 0
	for _, h := range res.objects {
		table.Set(h.ref.Number, XRefEntry{Type: XRefEntryInUse, Offset: h.offset, Generation: h.ref.Generation})
		if h.ref.Number > maxNum {
			maxNum = h.ref.Number
		}
	}
	x.mergeOrphanTrailers(table, res, nil)
	if !table.Trailer.Has("Size") {
		table.Trailer["Size"] = Int(maxNum + 1)
	}
	return table, nil
}

// BuildXRef runs the first pass over the first size bytes of r with the
// given limits.
func BuildXRef(r io.ReaderAt, size int64, limits Limits) (*XRefTable, error) {
	x := NewXRefParser(r, size)
	x.SetLimits(limits)
	return x.Build()
}

// sortedNumbers returns the object numbers of the table in ascending order.
func (x *XRefTable) sortedNumbers() []int {
	nums := make([]int, 0, len(x.Entries))
	for n := range x.Entries {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}
