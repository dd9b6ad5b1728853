package pages

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tsawler/gutenberg/core"
)

// mockResolver is a mock ObjectResolver for testing
type mockResolver struct {
	objects map[core.IndirectRef]core.Object
	loads   map[core.IndirectRef]int
}

func newMockResolver() *mockResolver {
	return &mockResolver{
		objects: make(map[core.IndirectRef]core.Object),
		loads:   make(map[core.IndirectRef]int),
	}
}

func (m *mockResolver) AddObject(num int, obj core.Object) {
	m.objects[core.IndirectRef{Number: num}] = obj
}

func (m *mockResolver) Resolve(obj core.Object) (core.Object, error) {
	if ref, ok := obj.(core.IndirectRef); ok {
		return m.ResolveReference(ref)
	}
	return obj, nil
}

func (m *mockResolver) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	m.loads[ref]++
	obj, ok := m.objects[ref]
	if !ok {
		return nil, fmt.Errorf("object %s not found", ref)
	}
	return obj, nil
}

func ref(n int) core.IndirectRef {
	return core.IndirectRef{Number: n}
}

func letter() core.Array {
	return core.Array{core.Int(0), core.Int(0), core.Int(612), core.Int(792)}
}

func TestCatalog(t *testing.T) {
	resolver := newMockResolver()
	resolver.AddObject(2, core.Dict{"Type": core.Name("Pages"), "Count": core.Int(0), "Kids": core.Array{}})
	resolver.AddObject(10, &core.Stream{Dict: core.Dict{"Type": core.Name("Metadata")}, Data: []byte("metadata")})

	catalog := NewCatalog(core.Dict{
		"Type":     core.Name("Catalog"),
		"Version":  core.Name("1.7"),
		"Pages":    ref(2),
		"Metadata": ref(10),
	}, resolver)

	if catalog.Type() != "Catalog" {
		t.Errorf("expected Type=Catalog, got %s", catalog.Type())
	}
	if catalog.Version() != "1.7" {
		t.Errorf("expected version 1.7, got %s", catalog.Version())
	}
	if r, ok := catalog.PagesRef(); !ok || r != ref(2) {
		t.Errorf("PagesRef() = %v, %v", r, ok)
	}

	pages, err := catalog.Pages()
	if err != nil {
		t.Fatalf("failed to get pages: %v", err)
	}
	if pages.TypeName() != "Pages" {
		t.Errorf("expected Type=Pages, got %v", pages.Get("Type"))
	}

	metadata, err := catalog.Metadata()
	if err != nil {
		t.Fatalf("failed to get metadata: %v", err)
	}
	if string(metadata.Data) != "metadata" {
		t.Errorf("unexpected metadata: %s", metadata.Data)
	}
}

func TestCatalogErrors(t *testing.T) {
	resolver := newMockResolver()
	resolver.AddObject(2, core.Int(5))

	if _, err := NewCatalog(core.Dict{}, resolver).Pages(); err == nil {
		t.Error("expected error for missing /Pages")
	}
	if _, err := NewCatalog(core.Dict{"Pages": ref(2)}, resolver).Pages(); err == nil {
		t.Error("expected error for non-dictionary /Pages")
	}
	if _, err := NewCatalog(core.Dict{"Pages": ref(3)}, resolver).Pages(); err == nil {
		t.Error("expected error for unresolvable /Pages")
	}
	if m, err := NewCatalog(core.Dict{}, resolver).Metadata(); m != nil || err != nil {
		t.Errorf("Metadata() without entry = %v, %v", m, err)
	}
}

// TestPageTreeFlatStructure tests a flat page tree
func TestPageTreeFlatStructure(t *testing.T) {
	resolver := newMockResolver()
	for n := 10; n <= 12; n++ {
		resolver.AddObject(n, core.Dict{"Type": core.Name("Page"), "MediaBox": letter()})
	}

	tree := NewPageTree(core.Dict{
		"Type":  core.Name("Pages"),
		"Count": core.Int(3),
		"Kids":  core.Array{ref(10), ref(11), ref(12)},
	}, resolver)

	count, err := tree.Count()
	if err != nil {
		t.Fatalf("failed to get count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count=3, got %d", count)
	}

	pages, err := tree.Pages()
	if err != nil {
		t.Fatalf("failed to get pages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	for i, p := range pages {
		if p.Index() != i {
			t.Errorf("page %d has index %d", i, p.Index())
		}
		if p.Ref() != ref(10+i) {
			t.Errorf("page %d has ref %s", i, p.Ref())
		}
	}
}

// TestPageTreeNestedStructure tests a nested page tree
func TestPageTreeNestedStructure(t *testing.T) {
	resolver := newMockResolver()
	for n := 10; n <= 13; n++ {
		resolver.AddObject(n, core.Dict{"Type": core.Name("Page")})
	}
	resolver.AddObject(20, core.Dict{"Type": core.Name("Pages"), "Count": core.Int(2), "Kids": core.Array{ref(10), ref(11)}})
	resolver.AddObject(21, core.Dict{"Type": core.Name("Pages"), "Count": core.Int(2), "Kids": core.Array{ref(12), ref(13)}})

	tree := NewPageTree(core.Dict{
		"Type":  core.Name("Pages"),
		"Count": core.Int(4),
		"Kids":  core.Array{ref(20), ref(21)},
	}, resolver)

	refs, err := tree.Refs()
	if err != nil {
		t.Fatalf("Refs() error: %v", err)
	}
	want := []core.IndirectRef{ref(10), ref(11), ref(12), ref(13)}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Errorf("Refs() mismatch (-want +got):\n%s", diff)
	}

	// The walk reads every leaf once; building pages reads none again.
	for i := range want {
		if _, err := tree.GetPage(i); err != nil {
			t.Fatalf("GetPage(%d) error: %v", i, err)
		}
	}
	if _, err := tree.GetPage(2); err != nil {
		t.Fatalf("GetPage(2) error: %v", err)
	}
	for _, r := range want {
		if resolver.loads[r] != 1 {
			t.Errorf("%s loaded %d times, want 1", r, resolver.loads[r])
		}
	}
}

func TestPageTreeKidsDecideIntermediateNodes(t *testing.T) {
	resolver := newMockResolver()
	// An intermediate node without /Type and a leaf with a wrong /Type.
	resolver.AddObject(20, core.Dict{"Kids": core.Array{ref(10)}})
	resolver.AddObject(10, core.Dict{"Type": core.Name("Pages")})
	// A direct leaf dictionary.
	direct := core.Dict{"Type": core.Name("Page"), "Rotate": core.Int(180)}

	tree := NewPageTree(core.Dict{"Kids": core.Array{ref(20), direct}}, resolver)
	n, err := tree.Len()
	if err != nil {
		t.Fatalf("Len() error: %v", err)
	}
	if n != 2 {
		t.Fatalf("Len() = %d, want 2", n)
	}
	p, err := tree.GetPage(1)
	if err != nil {
		t.Fatalf("GetPage(1) error: %v", err)
	}
	if p.Ref() != (core.IndirectRef{}) || p.Rotate() != 180 {
		t.Errorf("direct page: ref %s rotate %d", p.Ref(), p.Rotate())
	}
}

func TestPageTreeCycle(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *mockResolver) *PageTree
	}{
		{
			name: "kid points back at root",
			setup: func(r *mockResolver) *PageTree {
				root := core.Dict{"Type": core.Name("Pages"), "Kids": core.Array{ref(10), ref(2)}}
				r.AddObject(2, root)
				r.AddObject(10, core.Dict{"Type": core.Name("Page")})
				tree := NewPageTree(root, r)
				tree.SetRootRef(ref(2))
				return tree
			},
		},
		{
			name: "two intermediate nodes point at each other",
			setup: func(r *mockResolver) *PageTree {
				r.AddObject(20, core.Dict{"Kids": core.Array{ref(21)}})
				r.AddObject(21, core.Dict{"Kids": core.Array{ref(20)}})
				return NewPageTree(core.Dict{"Kids": core.Array{ref(20)}}, r)
			},
		},
		{
			name: "node references itself",
			setup: func(r *mockResolver) *PageTree {
				r.AddObject(20, core.Dict{"Kids": core.Array{ref(20)}})
				return NewPageTree(core.Dict{"Kids": core.Array{ref(20)}}, r)
			},
		},
		{
			name: "same leaf twice",
			setup: func(r *mockResolver) *PageTree {
				r.AddObject(10, core.Dict{"Type": core.Name("Page")})
				return NewPageTree(core.Dict{"Kids": core.Array{ref(10), ref(10)}}, r)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := tt.setup(newMockResolver())
			_, err := tree.Pages()
			if !errors.Is(err, core.ErrPageTreeCycle) {
				t.Fatalf("Pages() error = %v, want ErrPageTreeCycle", err)
			}
			if _, err := tree.Len(); !errors.Is(err, core.ErrPageTreeCycle) {
				t.Errorf("Len() error = %v, want ErrPageTreeCycle", err)
			}
		})
	}
}

func TestPageTreeInheritance(t *testing.T) {
	resolver := newMockResolver()
	resources := core.Dict{"Font": core.Dict{}}
	resolver.AddObject(30, resources)
	resolver.AddObject(10, core.Dict{"Type": core.Name("Page")})
	resolver.AddObject(11, core.Dict{"Type": core.Name("Page"), "MediaBox": core.Array{core.Int(0), core.Int(0), core.Int(100), core.Int(200)}})
	resolver.AddObject(20, core.Dict{"Kids": core.Array{ref(10), ref(11)}, "Rotate": core.Int(-90)})

	tree := NewPageTree(core.Dict{
		"Kids":      core.Array{ref(20)},
		"MediaBox":  letter(),
		"Resources": ref(30),
	}, resolver)

	pages, err := tree.Pages()
	if err != nil {
		t.Fatalf("Pages() error: %v", err)
	}

	tests := []struct {
		page   int
		width  float64
		rotate int
	}{
		{0, 612, 270},
		{1, 100, 270},
	}
	for _, tt := range tests {
		p := pages[tt.page]
		w, err := p.Width()
		if err != nil {
			t.Fatalf("page %d Width() error: %v", tt.page, err)
		}
		if w != tt.width {
			t.Errorf("page %d width = %v, want %v", tt.page, w, tt.width)
		}
		if p.Rotate() != tt.rotate {
			t.Errorf("page %d rotate = %d, want %d", tt.page, p.Rotate(), tt.rotate)
		}
		res, err := p.Resources()
		if err != nil {
			t.Fatalf("page %d Resources() error: %v", tt.page, err)
		}
		if !res.Has("Font") {
			t.Errorf("page %d did not inherit resources", tt.page)
		}
	}
}

// TestPageTreeOutOfBounds tests index out of bounds
func TestPageTreeOutOfBounds(t *testing.T) {
	resolver := newMockResolver()
	resolver.AddObject(10, core.Dict{"Type": core.Name("Page"), "MediaBox": letter()})
	tree := NewPageTree(core.Dict{"Type": core.Name("Pages"), "Count": core.Int(1), "Kids": core.Array{ref(10)}}, resolver)

	for _, idx := range []int{5, 1, -1} {
		if _, err := tree.GetPage(idx); !errors.Is(err, ErrNoSuchPage) {
			t.Errorf("GetPage(%d) error = %v, want ErrNoSuchPage", idx, err)
		}
	}
	// An out-of-range request does not disturb later ones.
	if _, err := tree.GetPage(0); err != nil {
		t.Errorf("GetPage(0) error: %v", err)
	}
}

func TestPageTreeLoadFailureNotRemembered(t *testing.T) {
	resolver := newMockResolver()
	tree := NewPageTree(core.Dict{"Kids": core.Array{ref(10)}}, resolver)

	if _, err := tree.Pages(); err == nil {
		t.Fatal("expected error for missing page object")
	}
	resolver.AddObject(10, core.Dict{"Type": core.Name("Page")})
	if _, err := tree.Pages(); err != nil {
		t.Errorf("Pages() after fix: %v", err)
	}
}

func TestPageBoxes(t *testing.T) {
	resolver := newMockResolver()

	tests := []struct {
		name     string
		dict     core.Dict
		parent   core.Dict
		wantMB   []float64
		wantCB   []float64
		wantMBEr bool
	}{
		{
			name:   "own boxes",
			dict:   core.Dict{"MediaBox": letter(), "CropBox": core.Array{core.Int(10), core.Int(10), core.Int(602), core.Int(782)}},
			wantMB: []float64{0, 0, 612, 792},
			wantCB: []float64{10, 10, 602, 782},
		},
		{
			name:   "crop box defaults to media box",
			dict:   core.Dict{"MediaBox": letter()},
			wantMB: []float64{0, 0, 612, 792},
			wantCB: []float64{0, 0, 612, 792},
		},
		{
			name:   "inherited media box with reals",
			dict:   core.Dict{},
			parent: core.Dict{"MediaBox": core.Array{core.Real(0), core.Real(0), core.Real(595.5), core.Int(842)}},
			wantMB: []float64{0, 0, 595.5, 842},
			wantCB: []float64{0, 0, 595.5, 842},
		},
		{
			name:     "missing media box",
			dict:     core.Dict{},
			wantMBEr: true,
		},
		{
			name:     "short media box",
			dict:     core.Dict{"MediaBox": core.Array{core.Int(0), core.Int(0)}},
			wantMBEr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := NewPage(tt.dict, tt.parent, resolver)
			mb, err := page.MediaBox()
			if tt.wantMBEr {
				if err == nil {
					t.Fatal("expected MediaBox error")
				}
				return
			}
			if err != nil {
				t.Fatalf("MediaBox() error: %v", err)
			}
			if diff := cmp.Diff(tt.wantMB, mb); diff != "" {
				t.Errorf("MediaBox mismatch (-want +got):\n%s", diff)
			}
			cb, err := page.CropBox()
			if err != nil {
				t.Fatalf("CropBox() error: %v", err)
			}
			if diff := cmp.Diff(tt.wantCB, cb); diff != "" {
				t.Errorf("CropBox mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestPageContents tests getting contents from page
func TestPageContents(t *testing.T) {
	resolver := newMockResolver()
	resolver.AddObject(40, &core.Stream{Dict: core.Dict{}, Data: []byte("part1")})

	tests := []struct {
		name     string
		contents core.Object
		want     int
	}{
		{"absent", nil, 0},
		{"single stream", &core.Stream{Dict: core.Dict{}, Data: []byte("content data")}, 1},
		{"array", core.Array{ref(40), &core.Stream{Dict: core.Dict{}, Data: []byte("part2")}}, 2},
		{"reference", ref(40), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dict := core.Dict{"Type": core.Name("Page")}
			if tt.contents != nil {
				dict["Contents"] = tt.contents
			}
			contents, err := NewPage(dict, nil, resolver).Contents()
			if err != nil {
				t.Fatalf("Contents() error: %v", err)
			}
			if len(contents) != tt.want {
				t.Errorf("got %d content streams, want %d", len(contents), tt.want)
			}
		})
	}
}

func TestPageRotate(t *testing.T) {
	tests := []struct {
		rotate core.Object
		want   int
	}{
		{nil, 0},
		{core.Int(90), 90},
		{core.Int(450), 90},
		{core.Int(-90), 270},
		{core.Int(45), 0},
		{core.Name("x"), 0},
	}

	for _, tt := range tests {
		dict := core.Dict{"Type": core.Name("Page")}
		if tt.rotate != nil {
			dict["Rotate"] = tt.rotate
		}
		if got := NewPage(dict, nil, newMockResolver()).Rotate(); got != tt.want {
			t.Errorf("Rotate(%v) = %d, want %d", tt.rotate, got, tt.want)
		}
	}
}

// TestPageWidthHeight tests page dimensions
func TestPageWidthHeight(t *testing.T) {
	page := NewPage(core.Dict{"Type": core.Name("Page"), "MediaBox": letter()}, nil, newMockResolver())

	width, err := page.Width()
	if err != nil {
		t.Fatalf("failed to get width: %v", err)
	}
	if width != 612 {
		t.Errorf("expected width 612, got %f", width)
	}

	height, err := page.Height()
	if err != nil {
		t.Fatalf("failed to get height: %v", err)
	}
	if height != 792 {
		t.Errorf("expected height 792, got %f", height)
	}
}

func TestInheritFrom(t *testing.T) {
	parent := core.Dict{"MediaBox": letter(), "Rotate": core.Int(90)}
	node := core.Dict{"Rotate": core.Int(180), "Count": core.Int(3), "Resources": core.Dict{}}

	got := InheritFrom(parent, node)
	want := core.Dict{"MediaBox": letter(), "Rotate": core.Int(180), "Resources": core.Dict{}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("InheritFrom mismatch (-want +got):\n%s", diff)
	}
	if parent.Get("Rotate") != core.Int(90) {
		t.Error("InheritFrom modified its input")
	}
}

func TestPageMissingAttribute(t *testing.T) {
	page := NewPage(core.Dict{"Type": core.Name("Page")}, nil, newMockResolver())

	if _, err := page.Resources(); !errors.Is(err, ErrNoAttribute) {
		t.Errorf("Resources() error = %v, want ErrNoAttribute", err)
	}
	if _, err := page.MediaBox(); !errors.Is(err, ErrNoAttribute) {
		t.Errorf("MediaBox() error = %v, want ErrNoAttribute", err)
	}

	bad := NewPage(core.Dict{"Resources": core.Int(1)}, nil, newMockResolver())
	if _, err := bad.Resources(); err == nil || errors.Is(err, ErrNoAttribute) {
		t.Errorf("Resources() error = %v, want a type error", err)
	}
}

func TestPageMethodsDocumented(t *testing.T) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "page.go", nil, parser.ParseComments)
	if err != nil {
		t.Fatalf("ParseFile() error: %v", err)
	}
	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || !fn.Name.IsExported() {
			continue
		}
		if fn.Doc == nil {
			t.Errorf("%s has no doc comment", fn.Name.Name)
		}
	}
}
