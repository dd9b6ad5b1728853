package core

import (
	"sort"
	"strconv"
	"strings"
)

// Object is a PDF value: Null, Bool, Int, Real, String, Name, Array, Dict,
// IndirectRef or *Stream. Parsed values never hold a nil Object.
type Object interface {
	Type() ObjectType
	String() string
}

// ObjectType identifies the concrete kind of an Object.
type ObjectType int

const (
	ObjNull ObjectType = iota
	ObjBool
	ObjInt
	ObjReal
	ObjString
	ObjName
	ObjArray
	ObjDict
	ObjStream
	ObjIndirect
)

var objectTypeNames = [...]string{
	ObjNull:     "Null",
	ObjBool:     "Bool",
	ObjInt:      "Int",
	ObjReal:     "Real",
	ObjString:   "String",
	ObjName:     "Name",
	ObjArray:    "Array",
	ObjDict:     "Dict",
	ObjStream:   "Stream",
	ObjIndirect: "IndirectRef",
}

func (t ObjectType) String() string {
	if t < 0 || int(t) >= len(objectTypeNames) {
		return "Unknown"
	}
	return objectTypeNames[t]
}

// Null is the PDF null object. A missing dictionary entry and an explicit
// null mean the same thing.
type Null struct{}

func (Null) Type() ObjectType { return ObjNull }
func (Null) String() string   { return "null" }

type Bool bool

func (Bool) Type() ObjectType  { return ObjBool }
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

type Int int64

func (Int) Type() ObjectType  { return ObjInt }
func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

type Real float64

func (Real) Type() ObjectType  { return ObjReal }
func (r Real) String() string { return strconv.FormatFloat(float64(r), 'f', -1, 64) }

// String holds the raw bytes of a literal or hexadecimal string, with
// escapes already applied. Text decodes it for display.
type String string

func (String) Type() ObjectType  { return ObjString }
func (s String) String() string { return string(s) }

// Name is a PDF name without its leading slash, with #xx escapes applied.
type Name string

func (Name) Type() ObjectType  { return ObjName }
func (n Name) String() string { return "/" + string(n) }

type Array []Object

func (Array) Type() ObjectType { return ObjArray }

func (a Array) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, obj := range a {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(obj.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

// Len returns the number of elements.
func (a Array) Len() int { return len(a) }

// Get returns the element at index, or nil when index is out of range.
func (a Array) Get(index int) Object {
	if index < 0 || index >= len(a) {
		return nil
	}
	return a[index]
}

// GetInt and GetName return the element at index when it has that type.
func (a Array) GetInt(index int) (Int, bool)   { return as[Int](a.Get(index)) }
func (a Array) GetName(index int) (Name, bool) { return as[Name](a.Get(index)) }

// Dict is a PDF dictionary keyed by name without the leading slash.
type Dict map[string]Object

func (Dict) Type() ObjectType { return ObjDict }

// String renders the dictionary with its keys sorted, so equal dictionaries
// print the same.
func (d Dict) String() string {
	var sb strings.Builder
	sb.WriteString("<<")
	for i, key := range d.Keys() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte('/')
		sb.WriteString(key)
		sb.WriteByte(' ')
		sb.WriteString(d[key].String())
	}
	sb.WriteString(">>")
	return sb.String()
}

// Get returns the value for key, or nil.
func (d Dict) Get(key string) Object { return d[key] }

// Has reports whether key is present.
func (d Dict) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// The typed getters return the value for key when it has that type. They
// do not resolve indirect references.
func (d Dict) GetName(key string) (Name, bool)               { return as[Name](d[key]) }
func (d Dict) GetInt(key string) (Int, bool)                 { return as[Int](d[key]) }
func (d Dict) GetDict(key string) (Dict, bool)               { return as[Dict](d[key]) }
func (d Dict) GetArray(key string) (Array, bool)             { return as[Array](d[key]) }
func (d Dict) GetString(key string) (String, bool)           { return as[String](d[key]) }
func (d Dict) GetIndirectRef(key string) (IndirectRef, bool) { return as[IndirectRef](d[key]) }

// Keys returns the keys in sorted order.
func (d Dict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TypeName returns the /Type name, or "" when there is none.
func (d Dict) TypeName() string {
	name, _ := d.GetName("Type")
	return string(name)
}

// as asserts obj to T without following references.
func as[T Object](obj Object) (T, bool) {
	v, ok := obj.(T)
	return v, ok
}

// Stream is a stream dictionary together with the raw bytes between the
// stream and endstream keywords.
type Stream struct {
	Dict   Dict
	Data   []byte
	Offset int64 // file offset of Data[0], -1 when not read from a file

	// LengthRecovered is set when the declared Length disagreed with the
	// endstream marker and Data was re-derived from the marker.
	LengthRecovered bool
}

func (*Stream) Type() ObjectType { return ObjStream }

func (s *Stream) String() string {
	return "stream " + s.Dict.String() + " (" + strconv.Itoa(len(s.Data)) + " bytes)"
}

// IndirectRef names one revision of one object slot. It is comparable and
// serves as a map key throughout the resolver.
type IndirectRef struct {
	Number     int
	Generation int
}

func (IndirectRef) Type() ObjectType { return ObjIndirect }

func (r IndirectRef) String() string {
	return strconv.Itoa(r.Number) + " " + strconv.Itoa(r.Generation) + " R"
}

// IndirectObject is the body of an "n g obj ... endobj" block.
type IndirectObject struct {
	Ref    IndirectRef
	Object Object
	Offset int64 // offset of the "n g obj" header
}

// ToInt64 converts an Int, or a Real with an integral value, to int64.
func ToInt64(obj Object) (int64, bool) {
	switch v := obj.(type) {
	case Int:
		return int64(v), true
	case Real:
		if i := int64(v); float64(i) == float64(v) {
			return i, true
		}
	}
	return 0, false
}

// ToFloat64 converts an Int or Real to float64.
func ToFloat64(obj Object) (float64, bool) {
	switch v := obj.(type) {
	case Int:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}

// IsNull reports whether obj is nil or Null.
func IsNull(obj Object) bool {
	switch obj.(type) {
	case nil, Null:
		return true
	}
	return false
}
