package reader

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tsawler/gutenberg/core"
	"github.com/tsawler/gutenberg/pages"
)

// XObject describes an external object named in a page's resources. Image
// fields are zero for other subtypes.
type XObject struct {
	Name             string // resource name (e.g., "Im1")
	Ref              core.IndirectRef
	Subtype          string // Image, Form or PS
	Width            int
	Height           int
	ColorSpace       string // DeviceGray, DeviceRGB, ICCBased, ...
	BitsPerComponent int
	Filters          []string
	Stream           *core.Stream
}

// PageXObjects returns the external objects of a page's resources, sorted by
// name. Entries that do not resolve to a stream are skipped. Pass an XObject's
// Stream to Decode to get its data.
func (d *Document) PageXObjects(page *pages.Page) ([]XObject, error) {
	resources, err := page.Resources()
	if errors.Is(err, pages.ErrNoAttribute) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	xobjectObj := resources.Get("XObject")
	if xobjectObj == nil {
		return nil, nil
	}

	resolved, err := d.Resolve(xobjectObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve XObject dictionary: %w", err)
	}
	xobjects, ok := resolved.(core.Dict)
	if !ok {
		return nil, nil
	}

	var out []XObject
	for _, name := range xobjects.Keys() {
		entry := xobjects.Get(name)
		obj, err := d.Resolve(entry)
		if err != nil {
			d.logger.Debug("skipping unresolvable xobject", "name", name, "error", err)
			continue
		}
		stream, ok := obj.(*core.Stream)
		if !ok {
			continue
		}

		x := XObject{Name: name, Stream: stream, Filters: d.filterNames(stream.Dict)}
		if ref, ok := entry.(core.IndirectRef); ok {
			x.Ref = ref
		}
		if subtype, ok := stream.Dict.GetName("Subtype"); ok {
			x.Subtype = string(subtype)
		}
		if x.Subtype == "Image" {
			d.describeImage(&x)
		}
		out = append(out, x)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *Document) describeImage(x *XObject) {
	dict := x.Stream.Dict
	if w, ok := core.ToInt64(d.resolveQuiet(dict.Get("Width"))); ok {
		x.Width = int(w)
	}
	if h, ok := core.ToInt64(d.resolveQuiet(dict.Get("Height"))); ok {
		x.Height = int(h)
	}

	// Image masks are 1 bit without a color space
	x.BitsPerComponent = 8
	if mask, ok := dict.Get("ImageMask").(core.Bool); ok && bool(mask) {
		x.BitsPerComponent = 1
	}
	if bpc, ok := core.ToInt64(d.resolveQuiet(dict.Get("BitsPerComponent"))); ok {
		x.BitsPerComponent = int(bpc)
	}

	x.ColorSpace = "DeviceGray"
	if cs := dict.Get("ColorSpace"); cs != nil {
		x.ColorSpace = d.colorSpaceName(cs, 0)
	}
}

// colorSpaceName returns the family of a color space. Indexed spaces report
// their base.
func (d *Document) colorSpaceName(obj core.Object, depth int) string {
	resolved := d.resolveQuiet(obj)

	switch v := resolved.(type) {
	case core.Name:
		return string(v)
	case core.Array:
		if len(v) == 0 {
			break
		}
		name, ok := v[0].(core.Name)
		if !ok {
			break
		}
		if name == "Indexed" && len(v) > 1 && depth < 4 {
			return d.colorSpaceName(v[1], depth+1)
		}
		return string(name)
	}
	return "DeviceGray"
}

// filterNames returns the names of the stream's filter pipeline.
func (d *Document) filterNames(dict core.Dict) []string {
	switch f := d.resolveQuiet(dict.Get("Filter")).(type) {
	case core.Name:
		return []string{string(f)}
	case core.Array:
		var names []string
		for _, elem := range f {
			if n, ok := d.resolveQuiet(elem).(core.Name); ok {
				names = append(names, string(n))
			}
		}
		return names
	}
	return nil
}

// resolveQuiet resolves obj, returning nil when it cannot be resolved.
func (d *Document) resolveQuiet(obj core.Object) core.Object {
	if obj == nil {
		return nil
	}
	v, err := d.Resolve(obj)
	if err != nil {
		return nil
	}
	return v
}
