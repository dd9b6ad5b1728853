package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tsawler/gutenberg/internal/pdftest"
)

// linearizedState opens the fast path of a pdftest linearized file.
func linearizedState(t *testing.T, opts pdftest.LinearizedOptions) (*LinearizedState, []byte) {
	t.Helper()
	data, _ := pdftest.Linearized(opts)
	off := int64(bytes.Index(data, []byte("1 0 obj")))
	obj, err := ReadObjectAt(bytes.NewReader(data), int64(len(data)), off, Limits{})
	if err != nil {
		t.Fatalf("ReadObjectAt() error: %v", err)
	}
	dict, ok := obj.Object.(Dict)
	if !ok {
		t.Fatalf("object 1 is %v, not a dictionary", obj.Object.Type())
	}
	return NewLinearizedState(bytes.NewReader(data), int64(len(data)), dict), data
}

func TestParseLinearizationHints(t *testing.T) {
	valid := Dict{
		"Linearized": Real(1), "L": Int(1000), "O": Int(4), "E": Int(500),
		"N": Int(3), "T": Int(900), "H": Array{Int(10), Int(20)},
	}
	got, err := ParseLinearizationHints(valid, 1000)
	if err != nil {
		t.Fatalf("ParseLinearizationHints() error: %v", err)
	}
	want := LinearizationHints{L: 1000, O: 4, E: 500, N: 3, T: 900, H: []int64{10, 20}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("hints mismatch (-want +got):\n%s", diff)
	}

	without := func(key string) Dict {
		d := Dict{}
		for k, v := range valid {
			if k != key {
				d[k] = v
			}
		}
		return d
	}
	with := func(key string, v Object) Dict {
		d := without(key)
		d[key] = v
		return d
	}

	tests := []struct {
		name string
		dict Dict
	}{
		{"not linearized", without("Linearized")},
		{"missing L", without("L")},
		{"L differs from file size", with("L", Int(999))},
		{"missing O", without("O")},
		{"zero O", with("O", Int(0))},
		{"missing N", without("N")},
		{"missing E", without("E")},
		{"E past the end", with("E", Int(1001))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseLinearizationHints(tt.dict, 1000); !errors.Is(err, ErrLinearizationHintInvalid) {
				t.Errorf("ParseLinearizationHints() error = %v, want ErrLinearizationHintInvalid", err)
			}
		})
	}
}

func TestLinearizedPhaseString(t *testing.T) {
	tests := map[LinearizedPhase]string{
		LinearizedUninitialized: "uninitialized",
		LinearizedActive:        "active",
		LinearizedFallbackBuilt: "fallback",
		LinearizedPhase(7):      "unknown",
	}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(p), got, want)
		}
	}
}

func TestLinearizedStateActivate(t *testing.T) {
	ls, _ := linearizedState(t, pdftest.LinearizedOptions{Pages: 3})
	if ls.Phase() != LinearizedUninitialized {
		t.Fatalf("Phase() = %v before Activate", ls.Phase())
	}
	if err := ls.Activate(); err != nil {
		t.Fatalf("Activate() error: %v", err)
	}

	if ls.Phase() != LinearizedActive {
		t.Errorf("Phase() = %v", ls.Phase())
	}
	if ls.PageCount() != 3 || ls.Hints().O != 4 {
		t.Errorf("PageCount() = %d, Hints() = %+v", ls.PageCount(), ls.Hints())
	}
	if ls.Root() != (IndirectRef{Number: 2}) {
		t.Errorf("Root() = %v", ls.Root())
	}
	if first, ok := ls.FirstPage(); !ok || first != (IndirectRef{Number: 4}) {
		t.Errorf("FirstPage() = %v, %v", first, ok)
	}

	refs := []IndirectRef{{Number: 1}, {Number: 2}, {Number: 3}, {Number: 4}, {Number: 5}}
	if diff := cmp.Diff(refs, ls.HintedRefs()); diff != "" {
		t.Errorf("HintedRefs() mismatch (-want +got):\n%s", diff)
	}

	obj, ok := ls.Hinted(IndirectRef{Number: 5})
	if !ok {
		t.Fatal("content stream not hinted")
	}
	if s, ok := obj.(*Stream); !ok || !strings.Contains(string(s.Data), "(first) Tj") {
		t.Errorf("Hinted(5) = %v", obj)
	}
	if _, ok := ls.Hinted(IndirectRef{Number: 6}); ok {
		t.Error("object after the first page section is hinted")
	}
	if ls.Index() != nil {
		t.Error("Index() built during activation")
	}

	// Activating twice is a no-op
	if err := ls.Activate(); err != nil {
		t.Errorf("second Activate() error: %v", err)
	}
}

func TestLinearizedStateFallback(t *testing.T) {
	ls, _ := linearizedState(t, pdftest.LinearizedOptions{Pages: 3})
	if err := ls.Activate(); err != nil {
		t.Fatalf("Activate() error: %v", err)
	}

	var reasons []string
	ls.OnFallback(func(reason string) { reasons = append(reasons, reason) })

	// Hinted objects never build the index
	if _, err := ls.GetObject(IndirectRef{Number: 4}); err != nil {
		t.Fatalf("GetObject(4) error: %v", err)
	}
	if len(reasons) != 0 {
		t.Fatalf("fallback for a hinted object: %v", reasons)
	}

	obj, err := ls.GetObject(IndirectRef{Number: 7})
	if err != nil {
		t.Fatalf("GetObject(7) error: %v", err)
	}
	if rot, _ := obj.(Dict).GetInt("Rotate"); rot != 90 {
		t.Errorf("GetObject(7) = %v", obj)
	}
	if _, err := ls.GetObject(IndirectRef{Number: 6}); err != nil {
		t.Fatalf("GetObject(6) error: %v", err)
	}

	if len(reasons) != 1 || !strings.Contains(reasons[0], "7 0 R") {
		t.Errorf("fallback reasons = %v, want one for 7 0 R", reasons)
	}
	if ls.Phase() != LinearizedFallbackBuilt || ls.Index() == nil {
		t.Errorf("Phase() = %v, Index() = %v", ls.Phase(), ls.Index())
	}
	if _, ok := ls.Hinted(IndirectRef{Number: 4}); ok {
		t.Error("Hinted() still serves objects after the fallback")
	}
	if obj, err := ls.GetObject(IndirectRef{Number: 4}); err != nil || obj.(Dict).TypeName() != "Page" {
		t.Errorf("GetObject(4) after fallback = %v, %v", obj, err)
	}
}

func TestLinearizedStateFallbackRetry(t *testing.T) {
	ls, _ := linearizedState(t, pdftest.LinearizedOptions{Pages: 2})
	if err := ls.Activate(); err != nil {
		t.Fatalf("Activate() error: %v", err)
	}

	errBuild := errors.New("build failed")
	ls.SetFallback(func() (*Index, error) { return nil, errBuild })
	if _, err := ls.Fallback("test"); !errors.Is(err, errBuild) {
		t.Fatalf("Fallback() error = %v", err)
	}
	if ls.Phase() != LinearizedActive {
		t.Errorf("Phase() = %v after a failed fallback", ls.Phase())
	}

	ls.SetFallback(func() (*Index, error) { return NewIndex(nil, 0, NewXRefTable()), nil })
	if ix, err := ls.Fallback("test"); err != nil || ix == nil {
		t.Errorf("Fallback() = %v, %v", ix, err)
	}
}

func TestLinearizedStateInvalidHints(t *testing.T) {
	ls, _ := linearizedState(t, pdftest.LinearizedOptions{Pages: 2, LengthDelta: 7})
	if err := ls.Activate(); !errors.Is(err, ErrLinearizationHintInvalid) {
		t.Fatalf("Activate() error = %v, want ErrLinearizationHintInvalid", err)
	}
	if ls.Phase() != LinearizedUninitialized {
		t.Errorf("Phase() = %v", ls.Phase())
	}

	// The classic index still serves every object
	obj, err := ls.GetObject(IndirectRef{Number: 6})
	if err != nil {
		t.Fatalf("GetObject(6) error: %v", err)
	}
	if obj.(Dict).TypeName() != "Page" {
		t.Errorf("GetObject(6) = %v", obj)
	}
	if ls.Phase() != LinearizedFallbackBuilt {
		t.Errorf("Phase() = %v", ls.Phase())
	}
}
