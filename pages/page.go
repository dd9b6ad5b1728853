package pages

import (
	"errors"
	"fmt"

	"github.com/tsawler/gutenberg/core"
)

// ErrNoAttribute is returned when a required page attribute is missing
// from the page and all of its ancestors.
var ErrNoAttribute = errors.New("pages: attribute not found")

// Page is one leaf of the page tree together with the inheritable
// attributes collected from its ancestors while the tree was flattened.
type Page struct {
	dict      core.Dict
	ref       core.IndirectRef
	index     int
	inherited core.Dict
	resolver  ObjectResolver
}

// NewPage wraps a page dictionary that is not addressed by reference.
func NewPage(dict core.Dict, inherited core.Dict, resolver ObjectResolver) *Page {
	return NewPageAt(dict, core.IndirectRef{}, 0, inherited, resolver)
}

// NewPageAt wraps the page at position index whose dictionary is ref.
func NewPageAt(dict core.Dict, ref core.IndirectRef, index int, inherited core.Dict, resolver ObjectResolver) *Page {
	return &Page{dict: dict, ref: ref, index: index, inherited: inherited, resolver: resolver}
}

// Dict returns the page's own dictionary, without inherited attributes.
func (p *Page) Dict() core.Dict { return p.dict }

// Ref is zero for a page dictionary stored directly in its parent's Kids.
func (p *Page) Ref() core.IndirectRef { return p.ref }

// Index is the 0-based position of the page in document order.
func (p *Page) Index() int { return p.index }

// Type returns the /Type name of the page dictionary, normally "Page".
func (p *Page) Type() string { return p.dict.TypeName() }

// lookup returns the page's own value for key, falling back to the
// inherited value, resolved through the document.
func (p *Page) lookup(key string) (core.Object, error) {
	obj := p.dict.Get(key)
	if obj == nil {
		obj = p.inherited.Get(key)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: /%s", ErrNoAttribute, key)
	}
	v, err := p.resolver.Resolve(obj)
	if err != nil {
		return nil, fmt.Errorf("page /%s: %w", key, err)
	}
	return v, nil
}

// MediaBox returns the inherited or own media box as [llx lly urx ury].
func (p *Page) MediaBox() ([]float64, error) {
	return p.rect("MediaBox")
}

// CropBox returns the crop box, or the media box when the page has none.
func (p *Page) CropBox() ([]float64, error) {
	if box, err := p.rect("CropBox"); err == nil {
		return box, nil
	}
	return p.MediaBox()
}

func (p *Page) rect(key string) ([]float64, error) {
	obj, err := p.lookup(key)
	if err != nil {
		return nil, err
	}
	arr, ok := obj.(core.Array)
	if !ok || len(arr) != 4 {
		return nil, fmt.Errorf("page /%s: want an array of 4 numbers, got %v", key, obj)
	}
	box := make([]float64, len(arr))
	for i := range arr {
		elem, err := p.resolver.Resolve(arr[i])
		if err != nil {
			return nil, fmt.Errorf("page /%s[%d]: %w", key, i, err)
		}
		v, ok := core.ToFloat64(elem)
		if !ok {
			return nil, fmt.Errorf("page /%s[%d]: %v is not a number", key, i, elem)
		}
		box[i] = v
	}
	return box, nil
}

// Resources returns the resource dictionary in effect for the page.
func (p *Page) Resources() (core.Dict, error) {
	obj, err := p.lookup("Resources")
	if err != nil {
		return nil, err
	}
	res, ok := obj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("page /Resources: %v is not a dictionary", obj.Type())
	}
	return res, nil
}

// Contents returns the page's content streams in order. A page without
// Contents is empty, not an error. Contents is not inheritable.
func (p *Page) Contents() ([]core.Object, error) {
	if p.dict.Get("Contents") == nil {
		return nil, nil
	}
	obj, err := p.resolver.Resolve(p.dict.Get("Contents"))
	if err != nil {
		return nil, fmt.Errorf("page /Contents: %w", err)
	}

	var parts core.Array
	switch v := obj.(type) {
	case *core.Stream:
		return []core.Object{v}, nil
	case core.Array:
		parts = v
	default:
		return nil, fmt.Errorf("page /Contents: unexpected %v", obj.Type())
	}

	streams := make([]core.Object, 0, len(parts))
	for i, part := range parts {
		s, err := p.resolver.Resolve(part)
		if err != nil {
			return nil, fmt.Errorf("page /Contents[%d]: %w", i, err)
		}
		streams = append(streams, s)
	}
	return streams, nil
}

// Rotate returns the clockwise rotation in degrees, normalized to 0, 90,
// 180 or 270. Values that are not multiples of 90 count as 0.
func (p *Page) Rotate() int {
	obj, err := p.lookup("Rotate")
	if err != nil {
		return 0
	}
	n, ok := obj.(core.Int)
	if !ok || n%90 != 0 {
		return 0
	}
	return int(((n % 360) + 360) % 360)
}

// Width is the horizontal extent of the media box.
func (p *Page) Width() (float64, error) {
	box, err := p.MediaBox()
	if err != nil {
		return 0, err
	}
	return box[2] - box[0], nil
}

// Height is the vertical extent of the media box.
func (p *Page) Height() (float64, error) {
	box, err := p.MediaBox()
	if err != nil {
		return 0, err
	}
	return box[3] - box[1], nil
}
