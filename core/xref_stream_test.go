package core

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tsawler/gutenberg/internal/pdftest"
)

// xrefStreamFile wraps an xref stream object with the given dictionary
// entries and data in a minimal file and returns the file and its offset.
func xrefStreamFile(dict string, data []byte) ([]byte, int64) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	off := int64(buf.Len())
	fmt.Fprintf(&buf, "9 0 obj\n<< /Type /XRef %s /Length %d >>\nstream\n", dict, len(data))
	buf.Write(data)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", off)
	return buf.Bytes(), off
}

func parseXRefStream(t *testing.T, dict string, data []byte) (*XRefTable, error) {
	t.Helper()
	file, off := xrefStreamFile(dict, data)
	x := NewXRefParser(bytes.NewReader(file), int64(len(file)))
	return x.ParseXRef(off)
}

func TestParseXRefStream(t *testing.T) {
	tests := []struct {
		name string
		dict string
		data []byte
		want map[int]XRefEntry
		secs []XRefSection
	}{
		{
			name: "default index",
			dict: "/Size 3 /W [1 2 1]",
			data: []byte{0, 0, 0, 255, 1, 0, 15, 0, 2, 0, 9, 4},
			want: map[int]XRefEntry{
				0: {Type: XRefEntryFree, Generation: 255},
				1: {Type: XRefEntryInUse, Offset: 15},
				2: {Type: XRefEntryCompressed, Container: 9, Index: 4},
			},
			secs: []XRefSection{{Start: 0, Count: 3}},
		},
		{
			name: "index pairs",
			dict: "/Size 12 /W [1 2 1] /Index [3 1 10 2]",
			data: []byte{1, 0, 30, 0, 1, 1, 0, 0, 1, 1, 16, 2},
			want: map[int]XRefEntry{
				3:  {Type: XRefEntryInUse, Offset: 30},
				10: {Type: XRefEntryInUse, Offset: 256},
				11: {Type: XRefEntryInUse, Offset: 272, Generation: 2},
			},
			secs: []XRefSection{{Start: 3, Count: 1}, {Start: 10, Count: 2}},
		},
		{
			name: "zero-width type field means in use",
			dict: "/Size 1 /W [0 3 0]",
			data: []byte{0x01, 0x00, 0x00},
			want: map[int]XRefEntry{0: {Type: XRefEntryInUse, Offset: 65536}},
			secs: []XRefSection{{Start: 0, Count: 1}},
		},
		{
			name: "unknown type is skipped",
			dict: "/Size 2 /W [1 1 1]",
			data: []byte{7, 1, 1, 1, 20, 0},
			want: map[int]XRefEntry{1: {Type: XRefEntryInUse, Offset: 20}},
			secs: []XRefSection{{Start: 0, Count: 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := parseXRefStream(t, tt.dict, tt.data)
			if err != nil {
				t.Fatalf("ParseXRef() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, table.Entries); diff != "" {
				t.Errorf("entries mismatch (-want +got):\n%s", diff)
			}
			for i := range tt.secs {
				tt.secs[i].Offset = table.Offset
			}
			if diff := cmp.Diff(tt.secs, table.Sections); diff != "" {
				t.Errorf("sections mismatch (-want +got):\n%s", diff)
			}
			if table.Trailer.TypeName() != "XRef" {
				t.Error("stream dictionary is not the trailer")
			}
		})
	}
}

func TestParseXRefStreamErrors(t *testing.T) {
	tests := []struct {
		name string
		dict string
		data []byte
	}{
		{"missing size", "/W [1 2 1]", []byte{1, 0, 0, 0}},
		{"missing W", "/Size 1", []byte{1, 0, 0, 0}},
		{"short W", "/Size 1 /W [1 2]", []byte{1, 0, 0}},
		{"oversized width", "/Size 1 /W [1 9 1]", make([]byte, 11)},
		{"odd index", "/Size 1 /W [1 2 1] /Index [0]", []byte{1, 0, 0, 0}},
		{"negative index", "/Size 1 /W [1 2 1] /Index [-1 1]", []byte{1, 0, 0, 0}},
		{"truncated data", "/Size 2 /W [1 2 1]", []byte{1, 0, 0, 0, 1}},
		{"undecodable", "/Size 1 /W [1 2 1] /Filter /FlateDecode", []byte("junk")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseXRefStream(t, tt.dict, tt.data); !errors.Is(err, ErrMalformedObject) {
				t.Errorf("ParseXRef() error = %v, want ErrMalformedObject", err)
			}
		})
	}

	// An ordinary stream at the offset is not an xref stream
	b := pdftest.New("1.5")
	b.Stream(1, "/Type /Metadata", []byte("x"))
	data := b.Bytes()
	x := NewXRefParser(bytes.NewReader(data), int64(len(data)))
	if _, err := x.ParseXRef(b.Offset(1)); !errors.Is(err, ErrMalformedObject) {
		t.Errorf("ParseXRef(metadata stream) error = %v", err)
	}
}

func TestParseXRefStreamEntry(t *testing.T) {
	tests := []struct {
		data []byte
		w    []int
		want XRefEntry
		n    int
	}{
		{[]byte{1, 0, 0, 1, 0, 0, 0}, []int{1, 4, 2}, XRefEntry{Type: XRefEntryInUse, Offset: 256}, 7},
		{[]byte{2, 0, 5, 3}, []int{1, 2, 1}, XRefEntry{Type: XRefEntryCompressed, Container: 5, Index: 3}, 4},
		{[]byte{0, 0, 7, 0, 1}, []int{1, 2, 2}, XRefEntry{Type: XRefEntryFree, Offset: 7, Generation: 1}, 5},
		{[]byte{0xff, 0xff}, []int{0, 2, 0}, XRefEntry{Type: XRefEntryInUse, Offset: 65535}, 2},
	}

	for _, tt := range tests {
		got, n, err := parseXRefStreamEntry(tt.data, tt.w)
		if err != nil {
			t.Fatalf("parseXRefStreamEntry(%v) error: %v", tt.data, err)
		}
		if got != tt.want || n != tt.n {
			t.Errorf("parseXRefStreamEntry(%v) = %+v, %d, want %+v, %d", tt.data, got, n, tt.want, tt.n)
		}
	}

	if _, _, err := parseXRefStreamEntry([]byte{1}, []int{1, 2, 1}); err == nil {
		t.Error("short entry parsed without error")
	}
}

func TestReadBigEndianInt(t *testing.T) {
	tests := []struct {
		data  []byte
		width int
		want  int64
	}{
		{[]byte{}, 0, 0},
		{[]byte{0x12}, 1, 0x12},
		{[]byte{0x12, 0x34}, 2, 0x1234},
		{[]byte{0x00, 0x01, 0x00, 0x00}, 4, 65536},
		{[]byte{0x01, 0x02, 0x03, 0x04, 0x05}, 5, 0x0102030405},
	}
	for _, tt := range tests {
		if got := readBigEndianInt(tt.data, tt.width); got != tt.want {
			t.Errorf("readBigEndianInt(%v, %d) = %d, want %d", tt.data, tt.width, got, tt.want)
		}
	}
}

func TestBuildXRefStreamFile(t *testing.T) {
	b := pdftest.New("1.7")
	b.Object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.ObjStm(3, map[int]string{2: "<< /Type /Pages /Kids [] /Count 0 >>", 4: "42"}, true)
	b.XrefStream(5, "/Root 1 0 R", true)
	data := b.Bytes()

	table := buildXRef(t, data, Limits{})
	want := map[int]XRefEntry{
		0: {Type: XRefEntryFree, Generation: 65535},
		1: {Type: XRefEntryInUse, Offset: b.Offset(1)},
		2: {Type: XRefEntryCompressed, Container: 3, Index: 0},
		3: {Type: XRefEntryInUse, Offset: b.Offset(3)},
		4: {Type: XRefEntryCompressed, Container: 3, Index: 1},
		5: {Type: XRefEntryInUse, Offset: b.Offset(5)},
	}
	if diff := cmp.Diff(want, table.Entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	if root, _ := table.Trailer.GetIndirectRef("Root"); root.Number != 1 {
		t.Errorf("trailer Root = %v", table.Trailer.Get("Root"))
	}
}

func TestXRefStreamDecoderLimits(t *testing.T) {
	raw := bytes.Repeat([]byte{1, 0, 0, 0}, 500)
	file, off := xrefStreamFile("/Size 500 /W [1 2 1] /Filter /FlateDecode", zlibCompress(raw))

	x := NewXRefParser(bytes.NewReader(file), int64(len(file)))
	x.SetLimits(Limits{MaxDecodedSize: 100})
	if _, err := x.ParseXRef(off); !errors.Is(err, ErrMalformedObject) {
		t.Errorf("ParseXRef() error = %v, want the decoded size limit", err)
	}

	x.SetLimits(Limits{})
	table, err := x.ParseXRef(off)
	if err != nil {
		t.Fatalf("ParseXRef() error: %v", err)
	}
	if table.Size() != 500 {
		t.Errorf("Size() = %d", table.Size())
	}
}
