package core

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tsawler/gutenberg/internal/pdftest"
)

func newIndex(t *testing.T, data []byte) *Index {
	t.Helper()
	table := buildXRef(t, data, Limits{})
	return NewIndex(bytes.NewReader(data), int64(len(data)), table)
}

// countingResolver counts the container loads an Index makes through it.
type countingResolver struct {
	ix    *Index
	loads atomic.Int32
}

func (c *countingResolver) ResolveReference(ref IndirectRef) (Object, error) {
	c.loads.Add(1)
	return c.ix.Load(ref)
}

func TestIndexLoad(t *testing.T) {
	b := pdftest.New("1.4")
	b.Object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Object(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	b.ObjectGen(3, 2, "(three)")
	b.Object(4, "42")
	b.Xref("/Root 1 0 R")
	b.Free(4, 1)
	b.Xref("/Root 1 0 R")
	ix := newIndex(t, b.Bytes())

	obj, err := ix.Load(IndirectRef{Number: 2})
	if err != nil {
		t.Fatalf("Load(2) error: %v", err)
	}
	if diff := cmp.Diff(Dict{"Type": Name("Pages"), "Kids": Array{}, "Count": Int(0)}, obj); diff != "" {
		t.Errorf("Load(2) mismatch (-want +got):\n%s", diff)
	}

	if obj, err := ix.Load(IndirectRef{Number: 3, Generation: 2}); err != nil || obj != String("three") {
		t.Errorf("Load(3 2 R) = %v, %v", obj, err)
	}

	// Freed in the newest revision
	if obj, err := ix.Load(IndirectRef{Number: 4}); err != nil || !IsNull(obj) {
		t.Errorf("Load(free 4) = %v, %v", obj, err)
	}

	if len(ix.Sections()) == 0 || ix.Trailer().Get("Root") == nil {
		t.Errorf("Sections() = %v, Trailer() = %v", ix.Sections(), ix.Trailer())
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, ix.ObjectNumbers()); diff != "" {
		t.Errorf("ObjectNumbers() mismatch (-want +got):\n%s", diff)
	}
	if e, ok := ix.Entry(3); !ok || e.Generation != 2 {
		t.Errorf("Entry(3) = %+v, %v", e, ok)
	}
}

func TestIndexLoadErrors(t *testing.T) {
	b := pdftest.New("1.4")
	b.Object(1, "<< /Type /Catalog >>")
	b.ObjectGen(2, 1, "true")
	b.Xref("/Root 1 0 R")
	data := b.Bytes()
	ix := newIndex(t, data)

	tests := []struct {
		name string
		ref  IndirectRef
		want error
	}{
		{"no entry", IndirectRef{Number: 50}, ErrDanglingReference},
		{"header generation differs", IndirectRef{Number: 2}, ErrGenerationMismatch},
		{"header number differs", IndirectRef{Number: 1, Generation: 1}, ErrGenerationMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ix.Load(tt.ref)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Load(%v) error = %v, want %v", tt.ref, err, tt.want)
			}
			var perr *Error
			if !errors.As(err, &perr) {
				t.Errorf("error %v is not an *Error", err)
			}
		})
	}
}

func TestIndexCompressed(t *testing.T) {
	b := pdftest.New("1.7")
	b.Object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.ObjStm(3, map[int]string{2: "<< /Type /Pages /Kids [] /Count 0 >>", 4: "(four)", 5: "[1 2]"}, true)
	b.XrefStream(6, "/Root 1 0 R", true)
	data := b.Bytes()
	ix := newIndex(t, data)

	res := &countingResolver{ix: ix}
	ix.SetResolver(res)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if obj, err := ix.Load(IndirectRef{Number: 4}); err != nil || obj != String("four") {
				t.Errorf("Load(4) = %v, %v", obj, err)
			}
		}()
	}
	wg.Wait()

	obj, err := ix.Load(IndirectRef{Number: 5})
	if err != nil {
		t.Fatalf("Load(5) error: %v", err)
	}
	if diff := cmp.Diff(Array{Int(1), Int(2)}, obj); diff != "" {
		t.Errorf("Load(5) mismatch (-want +got):\n%s", diff)
	}
	if n := res.loads.Load(); n != 1 {
		t.Errorf("container loaded %d times, want 1", n)
	}

	if _, err := ix.Load(IndirectRef{Number: 4, Generation: 1}); !errors.Is(err, ErrGenerationMismatch) {
		t.Errorf("Load(4 1 R) error = %v, want ErrGenerationMismatch", err)
	}
}

func TestIndexContainerErrors(t *testing.T) {
	b := pdftest.New("1.7")
	b.Object(1, "<< /Type /Catalog >>")
	b.Object(2, "<< /Not /AStream >>")
	b.Stream(3, "/Type /Metadata", []byte("x"))
	data := b.Bytes()

	table := NewXRefTable()
	table.Set(1, XRefEntry{Type: XRefEntryInUse, Offset: b.Offset(1)})
	table.Set(2, XRefEntry{Type: XRefEntryInUse, Offset: b.Offset(2)})
	table.Set(3, XRefEntry{Type: XRefEntryInUse, Offset: b.Offset(3)})
	table.Set(7, XRefEntry{Type: XRefEntryCompressed, Container: 2})
	table.Set(8, XRefEntry{Type: XRefEntryCompressed, Container: 3})
	table.Set(9, XRefEntry{Type: XRefEntryCompressed, Container: 10})
	table.Set(10, XRefEntry{Type: XRefEntryCompressed, Container: 3})
	table.Set(11, XRefEntry{Type: XRefEntryCompressed, Container: 11})
	ix := NewIndex(bytes.NewReader(data), int64(len(data)), table)

	tests := []struct {
		name string
		num  int
	}{
		{"container is not a stream", 7},
		{"container is not an object stream", 8},
		{"container is itself compressed", 9},
		{"object contains itself", 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ix.Load(IndirectRef{Number: tt.num}); !errors.Is(err, ErrMalformedContainer) {
				t.Errorf("Load(%d) error = %v, want ErrMalformedContainer", tt.num, err)
			}
		})
	}
}

func TestIndexLimits(t *testing.T) {
	b := pdftest.New("1.7")
	b.Object(1, "<< /Type /Catalog >>")
	b.ObjStm(2, map[int]string{3: "1", 4: "2", 5: "3"}, false)
	b.XrefStream(6, "/Root 1 0 R", false)
	ix := newIndex(t, b.Bytes())

	ix.SetLimits(Limits{MaxContainerObjects: 2})
	if _, err := ix.Load(IndirectRef{Number: 3}); !errors.Is(err, ErrMalformedContainer) {
		t.Errorf("Load(3) error = %v, want ErrMalformedContainer", err)
	}
}
