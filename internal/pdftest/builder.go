// Package pdftest builds small, well-formed PDF files for tests. Offsets in
// cross-reference tables are computed from the bytes actually written, so
// fixtures stay valid when their contents change.
package pdftest

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"sort"
	"strings"
)

type entryKind int

const (
	kindInUse entryKind = iota
	kindFree
	kindCompressed
)

type entry struct {
	kind      entryKind
	offset    int64
	gen       int
	container int
	index     int
}

// Builder writes a PDF file incrementally. Objects written since the last
// cross-reference section belong to the current revision.
type Builder struct {
	buf      bytes.Buffer
	revision map[int]entry
	offsets  map[int]int64
	maxNum   int
	prev     int64 // offset of the previous cross-reference section, -1 if none
	first    bool
}

// New starts a file with a %PDF- header and a binary comment line.
func New(version string) *Builder {
	b := &Builder{
		revision: make(map[int]entry),
		offsets:  make(map[int]int64),
		prev:     -1,
		first:    true,
	}
	fmt.Fprintf(&b.buf, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", version)
	return b
}

// Raw appends s verbatim.
func (b *Builder) Raw(s string) *Builder {
	b.buf.WriteString(s)
	return b
}

// Len returns the number of bytes written so far.
func (b *Builder) Len() int64 {
	return int64(b.buf.Len())
}

// Offset returns the offset of the last header written for object num.
func (b *Builder) Offset(num int) int64 {
	return b.offsets[num]
}

// Object writes "num 0 obj body endobj".
func (b *Builder) Object(num int, body string) *Builder {
	return b.ObjectGen(num, 0, body)
}

// ObjectGen writes an object with the given generation.
func (b *Builder) ObjectGen(num, gen int, body string) *Builder {
	off := b.Len()
	fmt.Fprintf(&b.buf, "%d %d obj\n%s\nendobj\n", num, gen, body)
	b.record(num, entry{kind: kindInUse, offset: off, gen: gen})
	return b
}

// Stream writes a stream object. dict holds the dictionary entries without
// the enclosing brackets; a direct /Length matching data is appended.
func (b *Builder) Stream(num int, dict string, data []byte) *Builder {
	return b.RawStream(num, fmt.Sprintf("%s /Length %d", dict, len(data)), data)
}

// RawStream writes a stream object with dict taken as is, so /Length can be
// wrong, indirect or missing.
func (b *Builder) RawStream(num int, dict string, data []byte) *Builder {
	off := b.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n<< %s >>\nstream\n", num, dict)
	b.buf.Write(data)
	b.buf.WriteString("\nendstream\nendobj\n")
	b.record(num, entry{kind: kindInUse, offset: off})
	return b
}

// Free marks num as free in the current revision.
func (b *Builder) Free(num, nextGen int) *Builder {
	b.record(num, entry{kind: kindFree, gen: nextGen})
	return b
}

func (b *Builder) record(num int, e entry) {
	b.revision[num] = e
	if e.kind == kindInUse {
		b.offsets[num] = e.offset
	}
	if num > b.maxNum {
		b.maxNum = num
	}
}

// Flate compresses data with zlib.
func Flate(data []byte) []byte {
	var out bytes.Buffer
	w := zlib.NewWriter(&out)
	w.Write(data)
	w.Close()
	return out.Bytes()
}

// ObjStm writes object stream num holding bodies keyed by object number, in
// ascending order. The contained objects are recorded as compressed entries
// of the current revision. With flate set the stream is FlateDecode
// compressed.
func (b *Builder) ObjStm(num int, bodies map[int]string, flate bool) *Builder {
	nums := make([]int, 0, len(bodies))
	for n := range bodies {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var header, body strings.Builder
	for _, n := range nums {
		fmt.Fprintf(&header, "%d %d ", n, body.Len())
		body.WriteString(bodies[n])
		body.WriteString("\n")
	}
	first := header.Len()
	data := []byte(header.String() + body.String())

	dict := fmt.Sprintf("/Type /ObjStm /N %d /First %d", len(nums), first)
	if flate {
		dict += " /Filter /FlateDecode"
		data = Flate(data)
	}
	b.Stream(num, dict, data)

	for i, n := range nums {
		b.record(n, entry{kind: kindCompressed, container: num, index: i})
	}
	return b
}

// sections groups the revision's object numbers into contiguous runs.
func (b *Builder) sections(withZero bool) [][]int {
	nums := make([]int, 0, len(b.revision)+1)
	for n := range b.revision {
		nums = append(nums, n)
	}
	if withZero {
		if _, ok := b.revision[0]; !ok {
			nums = append(nums, 0)
		}
	}
	sort.Ints(nums)

	var out [][]int
	for _, n := range nums {
		if len(out) > 0 {
			last := out[len(out)-1]
			if last[len(last)-1] == n-1 {
				out[len(out)-1] = append(last, n)
				continue
			}
		}
		out = append(out, []int{n})
	}
	return out
}

func (b *Builder) entryFor(n int) entry {
	if e, ok := b.revision[n]; ok {
		return e
	}
	return entry{kind: kindFree, gen: 65535}
}

// Xref writes a classic cross-reference table for the current revision and
// a trailer holding extra (dictionary entries without brackets), /Size and
// /Prev, then startxref and %%EOF. It returns the offset of the table.
func (b *Builder) Xref(extra string) int64 {
	off := b.Len()
	b.buf.WriteString("xref\n")
	for _, sec := range b.sections(b.first) {
		fmt.Fprintf(&b.buf, "%d %d\n", sec[0], len(sec))
		for _, n := range sec {
			e := b.entryFor(n)
			switch e.kind {
			case kindInUse:
				fmt.Fprintf(&b.buf, "%010d %05d n\r\n", e.offset, e.gen)
			default:
				fmt.Fprintf(&b.buf, "%010d %05d f\r\n", 0, e.gen)
			}
		}
	}
	fmt.Fprintf(&b.buf, "trailer\n<< %s >>\nstartxref\n%d\n%%%%EOF\n", b.trailerKeys(extra), off)
	b.endRevision(off)
	return off
}

func (b *Builder) trailerKeys(extra string) string {
	keys := fmt.Sprintf("%s /Size %d", extra, b.maxNum+1)
	if b.prev >= 0 {
		keys += fmt.Sprintf(" /Prev %d", b.prev)
	}
	return strings.TrimSpace(keys)
}

func (b *Builder) endRevision(off int64) {
	b.revision = make(map[int]entry)
	b.prev = off
	b.first = false
}

// XrefStream writes the current revision as cross-reference stream num,
// including an entry for itself, with extra added to its dictionary. The
// entries are FlateDecode compressed when flate is set. It returns the offset
// of the stream object.
func (b *Builder) XrefStream(num int, extra string, flate bool) int64 {
	off := b.Len()
	b.record(num, entry{kind: kindInUse, offset: off})

	var data bytes.Buffer
	var index []string
	for _, sec := range b.sections(b.first) {
		index = append(index, fmt.Sprintf("%d %d", sec[0], len(sec)))
		for _, n := range sec {
			e := b.entryFor(n)
			switch e.kind {
			case kindInUse:
				data.Write([]byte{1, byte(e.offset >> 24), byte(e.offset >> 16), byte(e.offset >> 8), byte(e.offset), byte(e.gen >> 8), byte(e.gen)})
			case kindCompressed:
				data.Write([]byte{2, byte(e.container >> 24), byte(e.container >> 16), byte(e.container >> 8), byte(e.container), byte(e.index >> 8), byte(e.index)})
			default:
				data.Write([]byte{0, 0, 0, 0, 0, byte(e.gen >> 8), byte(e.gen)})
			}
		}
	}

	dict := fmt.Sprintf("/Type /XRef /W [1 4 2] /Index [%s] %s", strings.Join(index, " "), b.trailerKeys(extra))
	raw := data.Bytes()
	if flate {
		dict += " /Filter /FlateDecode"
		raw = Flate(raw)
	}
	b.Stream(num, dict, raw)
	fmt.Fprintf(&b.buf, "startxref\n%d\n%%%%EOF\n", off)
	b.endRevision(off)
	return off
}

// Bytes returns the file written so far.
func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}

// Minimal returns a classic single-revision file with one empty page: the
// catalog is object 1, the page tree root 2 and the page 3.
func Minimal() []byte {
	b := New("1.4")
	b.Object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Object(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Object(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	b.Xref("/Root 1 0 R")
	return b.Bytes()
}

// Pages returns a classic file with n pages under a flat page tree. Page i
// is object 10+i and has /Rotate 90*i so pages can be told apart.
func Pages(n int) []byte {
	b := New("1.7")
	var kids []string
	for i := 0; i < n; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 10+i))
	}
	b.Object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Object(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>", strings.Join(kids, " "), n))
	for i := 0; i < n; i++ {
		b.Object(10+i, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Rotate %d >>", (90*i)%360))
	}
	b.Xref("/Root 1 0 R")
	return b.Bytes()
}
