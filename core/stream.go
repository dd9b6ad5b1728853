package core

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tsawler/gutenberg/internal/filters"
)

// StreamDecoder applies the filter pipeline named by a stream dictionary.
// The zero value uses the standard filters and default limits.
type StreamDecoder struct {
	// Registry supplies the filter implementations. Nil means filters.Default().
	Registry *filters.Registry

	// Resolver resolves indirect Filter and DecodeParms values. When nil,
	// indirect values are rejected as malformed.
	Resolver ReferenceResolver

	Limits Limits

	// RawOnUnsupported makes Decode return the undecoded data instead of
	// ErrUnsupportedFilter when a filter has no decoder.
	RawOnUnsupported bool

	Logger *slog.Logger
}

// Decode decodes the stream data according to the Filter(s) specified in the
// stream dictionary, applying filter chains in order.
func (s *Stream) Decode() ([]byte, error) {
	var d StreamDecoder
	return d.Decode(s)
}

// Decode returns the decoded data of s.
func (d *StreamDecoder) Decode(s *Stream) ([]byte, error) {
	if err := checkDeclaredLength(s); err != nil {
		return nil, err
	}

	names, params, err := d.pipeline(s.Dict)
	if err != nil {
		return nil, errorAt("decode stream", s.Offset, err)
	}
	if len(names) == 0 {
		return s.Data, nil
	}

	registry := d.Registry
	if registry == nil {
		registry = filters.Default()
	}
	limit := d.Limits.withDefaults().MaxDecodedSize

	data := s.Data
	for i, name := range names {
		fn, ok := registry.Lookup(name)
		if !ok {
			return d.unsupported(s, name, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name))
		}
		data, err = fn(data, params[i], limit)
		if errors.Is(err, filters.ErrUnsupported) {
			return d.unsupported(s, name, fmt.Errorf("%w: %v", ErrUnsupportedFilter, err))
		}
		if err != nil {
			return nil, errorAt("decode stream", s.Offset, fmt.Errorf("%w: filter %d (%s) failed: %v", ErrMalformedObject, i, name, err))
		}
	}
	return data, nil
}

func (d *StreamDecoder) unsupported(s *Stream, name string, err error) ([]byte, error) {
	if d.RawOnUnsupported {
		d.logger().Debug("unsupported filter, returning raw data", "filter", name, "offset", s.Offset)
		return s.Data, nil
	}
	return nil, errorAt("decode stream", s.Offset, err)
}

func (d *StreamDecoder) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// checkDeclaredLength verifies that a direct Length agrees with the captured
// data. Recovered streams already disagree and are accepted.
func checkDeclaredLength(s *Stream) error {
	if s.LengthRecovered {
		return nil
	}
	length, ok := s.Dict.GetInt("Length")
	if !ok || int64(length) == int64(len(s.Data)) {
		return nil
	}
	return errorAt("decode stream", s.Offset, fmt.Errorf("%w: Length %d, captured %d bytes", ErrStreamLengthMismatch, length, len(s.Data)))
}

// pipeline returns the filter names and their parameters in application order.
func (d *StreamDecoder) pipeline(dict Dict) ([]string, []filters.Params, error) {
	filterObj, err := d.resolve(dict.Get("Filter"))
	if err != nil {
		return nil, nil, err
	}
	paramsObj, err := d.resolve(dict.Get("DecodeParms"))
	if err != nil {
		return nil, nil, err
	}

	var names []string
	switch f := filterObj.(type) {
	case nil, Null:
		return nil, nil, nil
	case Name:
		names = []string{string(f)}
	case Array:
		for i, item := range f {
			item, err := d.resolve(item)
			if err != nil {
				return nil, nil, err
			}
			name, ok := item.(Name)
			if !ok {
				return nil, nil, malformed("filter %d is not a name: %v", i, item.Type())
			}
			names = append(names, string(name))
		}
	default:
		return nil, nil, malformed("invalid Filter type: %v", filterObj.Type())
	}

	params := make([]filters.Params, len(names))
	for i := range names {
		var p Object
		if arr, ok := paramsObj.(Array); ok {
			p = arr.Get(i)
		} else {
			// A single dictionary applies to every filter
			p = paramsObj
		}
		p, err := d.resolve(p)
		if err != nil {
			return nil, nil, err
		}
		if pd, ok := p.(Dict); ok {
			params[i] = dictToParams(pd)
		}
	}
	return names, params, nil
}

// resolve follows obj when it is an indirect reference.
func (d *StreamDecoder) resolve(obj Object) (Object, error) {
	ref, ok := obj.(IndirectRef)
	if !ok {
		return obj, nil
	}
	if d.Resolver == nil {
		return nil, malformed("indirect filter value %s without resolver", ref)
	}
	return d.Resolver.ResolveReference(ref)
}

// dictToParams converts a core.Dict to filters.Params, translating PDF object
// types to Go primitive types (Int->int, Real->float64, Bool->bool, etc.).
func dictToParams(dict Dict) filters.Params {
	if dict == nil {
		return nil
	}

	params := make(filters.Params)
	for k, v := range dict {
		switch obj := v.(type) {
		case Int:
			params[k] = int(obj)
		case Real:
			params[k] = float64(obj)
		case Bool:
			params[k] = bool(obj)
		case String:
			params[k] = string(obj)
		case Name:
			params[k] = string(obj)
		default:
			params[k] = v
		}
	}
	return params
}
