package core

import (
	"fmt"
)

// ObjectStream is an unpacker for a /Type /ObjStm container. The container
// data starts with N pairs "number offset" followed, from byte First, by the
// object bodies. Bodies are parsed on demand and kept.
//
// An ObjectStream is not safe for concurrent use; Index serializes access.
type ObjectStream struct {
	stream  *Stream
	n       int
	first   int
	extends *IndirectRef
	decoder *StreamDecoder

	data   []byte      // decoded container, nil until loaded
	slots  []objSlot   // header pairs in header order
	byNum  map[int]int // object number -> slot index
	parsed map[int]Object
}

type objSlot struct {
	num int
	off int // relative to First
}

// NewObjectStream checks the container dictionary (/Type /ObjStm, /N,
// /First, optional /Extends) without decoding any data. Errors wrap
// ErrMalformedContainer.
func NewObjectStream(stream *Stream) (*ObjectStream, error) {
	if stream == nil {
		return nil, fmt.Errorf("%w: stream is nil", ErrMalformedContainer)
	}
	if t := stream.Dict.TypeName(); t != "ObjStm" {
		return nil, fmt.Errorf("%w: /Type is %q, want ObjStm", ErrMalformedContainer, t)
	}

	n, err := containerInt(stream.Dict, "N")
	if err != nil {
		return nil, err
	}
	first, err := containerInt(stream.Dict, "First")
	if err != nil {
		return nil, err
	}

	s := &ObjectStream{stream: stream, n: n, first: first}
	if ext := stream.Dict.Get("Extends"); ext != nil {
		ref, ok := ext.(IndirectRef)
		if !ok {
			return nil, fmt.Errorf("%w: /Extends is %v, want a reference", ErrMalformedContainer, ext.Type())
		}
		s.extends = &ref
	}
	return s, nil
}

func containerInt(d Dict, key string) (int, error) {
	v, ok := d.GetInt(key)
	if !ok {
		return 0, fmt.Errorf("%w: /%s missing or not an integer", ErrMalformedContainer, key)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: negative /%s %d", ErrMalformedContainer, key, v)
	}
	return int(v), nil
}

// SetDecoder sets the decoder for the container data. Without one the
// default StreamDecoder is used.
func (s *ObjectStream) SetDecoder(d *StreamDecoder) {
	s.decoder = d
}

// N returns the /N entry: the number of objects the stream declares.
func (s *ObjectStream) N() int { return s.n }

// First returns the /First entry: the offset of the first object body
// within the decoded data.
func (s *ObjectStream) First() int { return s.first }

// Extends returns the container this one extends, or nil.
func (s *ObjectStream) Extends() *IndirectRef { return s.extends }

// load decodes the container and reads the whole header before any body,
// so a duplicate number or an offset outside the data fails up front.
func (s *ObjectStream) load() error {
	if s.data != nil {
		return nil
	}

	d := s.decoder
	if d == nil {
		d = &StreamDecoder{}
	}
	if limit := d.Limits.withDefaults().MaxContainerObjects; s.n > limit {
		return fmt.Errorf("%w: /N %d exceeds limit %d", ErrMalformedContainer, s.n, limit)
	}

	data, err := d.Decode(s.stream)
	if err != nil {
		return fmt.Errorf("decode object stream: %w", err)
	}
	if s.first > len(data) {
		return fmt.Errorf("%w: /First %d beyond %d decoded bytes", ErrMalformedContainer, s.first, len(data))
	}

	header := NewBytesParser(data[:s.first])
	bodyLen := len(data) - s.first
	slots := make([]objSlot, s.n)
	byNum := make(map[int]int, s.n)
	for i := range slots {
		num, err := headerInt(header, i, "object number")
		if err != nil {
			return err
		}
		off, err := headerInt(header, i, "offset")
		if err != nil {
			return err
		}
		if _, dup := byNum[num]; dup {
			return fmt.Errorf("%w: object %d listed twice in header", ErrMalformedContainer, num)
		}
		if off >= bodyLen {
			return fmt.Errorf("%w: offset %d of object %d outside data (%d bytes)", ErrMalformedContainer, off, num, bodyLen)
		}
		slots[i] = objSlot{num: num, off: off}
		byNum[num] = i
	}

	if data == nil {
		data = []byte{}
	}
	s.data, s.slots, s.byNum = data, slots, byNum
	s.parsed = make(map[int]Object, s.n)
	return nil
}

func headerInt(p *Parser, pair int, what string) (int, error) {
	obj, err := p.parseValue()
	if err != nil {
		return 0, fmt.Errorf("%w: header pair %d %s: %v", ErrMalformedContainer, pair, what, err)
	}
	v, ok := obj.(Int)
	if !ok || v < 0 {
		return 0, fmt.Errorf("%w: header pair %d %s is %v, want a non-negative integer", ErrMalformedContainer, pair, what, obj)
	}
	return int(v), nil
}

// body returns the bytes of slot i: up to the next slot's offset, or to the
// end of the data when offsets are not ascending.
func (s *ObjectStream) body(i int) []byte {
	start := s.first + s.slots[i].off
	end := len(s.data)
	if i+1 < len(s.slots) {
		if next := s.first + s.slots[i+1].off; next > start {
			end = next
		}
	}
	return s.data[start:end]
}

// GetObjectByIndex parses the object in header position index and returns
// it with its object number.
func (s *ObjectStream) GetObjectByIndex(index int) (Object, int, error) {
	if err := s.load(); err != nil {
		return nil, 0, err
	}
	if index < 0 || index >= len(s.slots) {
		return nil, 0, fmt.Errorf("object stream index %d out of range [0, %d)", index, len(s.slots))
	}
	num := s.slots[index].num
	if obj, ok := s.parsed[index]; ok {
		return obj, num, nil
	}

	p := NewBytesParser(s.body(index))
	obj, err := p.parseValue()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: object %d at index %d: %v", ErrMalformedContainer, num, index, err)
	}
	// Streams may not be stored in a container.
	if _, ok := obj.(Dict); ok {
		if tok, err := p.lexer.PeekToken(); err == nil && tok.IsKeyword("stream") {
			return nil, 0, fmt.Errorf("%w: stream object %d stored inside object stream", ErrMalformedContainer, num)
		}
	}

	s.parsed[index] = obj
	return obj, num, nil
}

// GetObjectByNumber returns object num and its header position.
func (s *ObjectStream) GetObjectByNumber(num int) (Object, int, error) {
	if err := s.load(); err != nil {
		return nil, 0, err
	}
	i, ok := s.byNum[num]
	if !ok {
		return nil, 0, fmt.Errorf("object %d is not in this object stream", num)
	}
	obj, _, err := s.GetObjectByIndex(i)
	return obj, i, err
}

// Unpack parses every object and returns them keyed by object number.
func (s *ObjectStream) Unpack() (map[int]Object, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	out := make(map[int]Object, len(s.slots))
	for i := range s.slots {
		obj, num, err := s.GetObjectByIndex(i)
		if err != nil {
			return nil, err
		}
		out[num] = obj
	}
	return out, nil
}

// ObjectNumbers lists the object numbers in header order.
func (s *ObjectStream) ObjectNumbers() ([]int, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	nums := make([]int, 0, len(s.slots))
	for _, slot := range s.slots {
		nums = append(nums, slot.num)
	}
	return nums, nil
}

// ContainsObject reports whether the header lists object number num,
// decoding the stream on first use.
func (s *ObjectStream) ContainsObject(num int) (bool, error) {
	if err := s.load(); err != nil {
		return false, err
	}
	_, ok := s.byNum[num]
	return ok, nil
}
