package core

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Index resolves object references through a cross-reference table.
//
// Object streams are unpacked at most once and kept for the lifetime of the
// Index. Each load reads through its own Lexer, so an Index is safe for
// concurrent use as long as the underlying io.ReaderAt is.
type Index struct {
	src     io.ReaderAt
	size    int64
	table   *XRefTable
	limits  Limits
	decoder StreamDecoder
	logger  *slog.Logger

	// resolver loads container streams. It is normally the owning document
	// so containers share its object cache; nil means Load.
	resolver ReferenceResolver

	mu         sync.RWMutex
	containers map[int]map[int]Object
	group      singleflight.Group
}

// NewIndex creates an index over the first size bytes of r using table.
func NewIndex(r io.ReaderAt, size int64, table *XRefTable) *Index {
	return &Index{
		src:        r,
		size:       size,
		table:      table,
		limits:     DefaultLimits(),
		logger:     slog.Default(),
		containers: make(map[int]map[int]Object),
	}
}

// SetLimits replaces the limits. Zero fields keep their defaults.
func (ix *Index) SetLimits(limits Limits) {
	ix.limits = limits.withDefaults()
}

// SetDecoder sets the decoder configuration used for object streams. Its
// Resolver and RawOnUnsupported fields are ignored.
func (ix *Index) SetDecoder(d StreamDecoder) {
	ix.decoder = d
}

// SetLogger sets the logger for diagnostics.
func (ix *Index) SetLogger(l *slog.Logger) {
	ix.logger = l
}

// SetResolver sets the resolver used to fetch object streams.
func (ix *Index) SetResolver(r ReferenceResolver) {
	ix.resolver = r
}

// Table returns the cross-reference table.
func (ix *Index) Table() *XRefTable {
	return ix.table
}

// Trailer returns the effective trailer dictionary.
func (ix *Index) Trailer() Dict {
	return ix.table.Trailer
}

// Sections returns the cross-reference sections of every revision.
func (ix *Index) Sections() []XRefSection {
	return ix.table.Sections
}

// Entry returns the entry for an object number.
func (ix *Index) Entry(objNum int) (XRefEntry, bool) {
	return ix.table.Get(objNum)
}

// ObjectNumbers returns every object number with an entry, ascending.
func (ix *Index) ObjectNumbers() []int {
	return ix.table.sortedNumbers()
}

// Load reads the object identified by ref. It does not cache direct objects.
//
// A free entry resolves to Null. A number with no entry fails with
// ErrDanglingReference, and a header that does not match ref with
// ErrGenerationMismatch. Compressed objects are taken from their object
// stream, which must itself be stored directly.
func (ix *Index) Load(ref IndirectRef) (Object, error) {
	entry, ok := ix.table.Get(ref.Number)
	if !ok {
		return nil, errorFor("load object", ref, -1, ErrDanglingReference)
	}

	switch entry.Type {
	case XRefEntryFree:
		return Null{}, nil

	case XRefEntryInUse:
		obj, err := ReadObjectAt(ix.src, ix.size, entry.Offset, ix.limits)
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", ref, err)
		}
		if obj.Ref != ref {
			return nil, errorFor("load object", ref, entry.Offset, fmt.Errorf("%w: found %s", ErrGenerationMismatch, obj.Ref))
		}
		return obj.Object, nil

	case XRefEntryCompressed:
		if ref.Generation != 0 {
			return nil, errorFor("load object", ref, -1, fmt.Errorf("%w: compressed objects have generation 0", ErrGenerationMismatch))
		}
		objs, err := ix.container(entry.Container, ref)
		if err != nil {
			return nil, err
		}
		obj, ok := objs[ref.Number]
		if !ok {
			return nil, errorFor("load object", ref, -1, fmt.Errorf("%w: object not found in container %d", ErrMalformedContainer, entry.Container))
		}
		return obj, nil
	}

	return nil, errorFor("load object", ref, -1, malformed("unknown xref entry type %v", entry.Type))
}

// ResolveReference implements ReferenceResolver using Load.
func (ix *Index) ResolveReference(ref IndirectRef) (Object, error) {
	return ix.Load(ref)
}

// container returns the unpacked objects of the object stream num. Only a
// directly stored stream can be a container, which keeps resolution one
// level deep.
func (ix *Index) container(num int, ref IndirectRef) (map[int]Object, error) {
	if num == ref.Number {
		return nil, errorFor("load object", ref, -1, fmt.Errorf("%w: object claims to contain itself", ErrMalformedContainer))
	}
	centry, ok := ix.table.Get(num)
	if !ok || centry.Type != XRefEntryInUse {
		return nil, errorFor("load object", ref, -1, fmt.Errorf("%w: container %d is not stored directly", ErrMalformedContainer, num))
	}

	ix.mu.RLock()
	objs, ok := ix.containers[num]
	ix.mu.RUnlock()
	if ok {
		return objs, nil
	}

	v, err, _ := ix.group.Do(strconv.Itoa(num), func() (interface{}, error) {
		ix.mu.RLock()
		objs, ok := ix.containers[num]
		ix.mu.RUnlock()
		if ok {
			return objs, nil
		}

		cref := IndirectRef{Number: num, Generation: centry.Generation}
		objs, err := ix.unpack(cref)
		if err != nil {
			return nil, err
		}

		ix.mu.Lock()
		ix.containers[num] = objs
		ix.mu.Unlock()
		ix.logger.Debug("unpacked object stream", "ref", cref.String(), "objects", len(objs))
		return objs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[int]Object), nil
}

func (ix *Index) unpack(cref IndirectRef) (map[int]Object, error) {
	obj, err := ix.resolve(cref)
	if err != nil {
		return nil, fmt.Errorf("container %s: %w", cref, err)
	}
	stream, ok := obj.(*Stream)
	if !ok {
		return nil, errorFor("unpack container", cref, -1, fmt.Errorf("%w: container is %v, not a stream", ErrMalformedContainer, obj.Type()))
	}

	ostm, err := NewObjectStream(stream)
	if err != nil {
		return nil, errorFor("unpack container", cref, stream.Offset, err)
	}
	d := ix.decoder
	d.Resolver = directOnly{ix}
	d.RawOnUnsupported = false
	d.Limits = ix.limits
	ostm.SetDecoder(&d)

	objs, err := ostm.Unpack()
	if err != nil {
		return nil, errorFor("unpack container", cref, stream.Offset, err)
	}
	return objs, nil
}

func (ix *Index) resolve(ref IndirectRef) (Object, error) {
	if ix.resolver != nil {
		return ix.resolver.ResolveReference(ref)
	}
	return ix.Load(ref)
}

// directOnly resolves filter parameters of a container. Only directly
// stored objects are allowed there, so decoding a container can never wait
// on another container.
type directOnly struct {
	ix *Index
}

func (r directOnly) ResolveReference(ref IndirectRef) (Object, error) {
	if e, ok := r.ix.table.Get(ref.Number); !ok || e.Type != XRefEntryInUse {
		return nil, errorFor("resolve filter parameter", ref, -1, fmt.Errorf("%w: container filter parameters must be stored directly", ErrMalformedContainer))
	}
	return r.ix.resolve(ref)
}

// ReadObjectAt parses the indirect object whose header starts at offset.
func ReadObjectAt(r io.ReaderAt, size, offset int64, limits Limits) (*IndirectObject, error) {
	lex := NewLexer(r, size)
	if err := lex.SeekTo(offset); err != nil {
		return nil, err
	}
	parser := NewParser(lex)
	parser.SetLimits(limits)
	return parser.ParseIndirectObject()
}
