package raw

import (
	"github.com/wudi/pdfcore/device"
	"github.com/wudi/pdfcore/pdferr"
)

// Name object
type NameObj struct{ Val string }

func (n NameObj) Type() string     { return "name" }
func (n NameObj) IsIndirect() bool { return false }
func (n NameObj) Value() string    { return n.Val }

// Number object
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string     { return "number" }
func (n NumberObj) IsIndirect() bool { return false }
func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}
func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}
func (n NumberObj) IsInteger() bool { return n.IsInt }

// Boolean object
type BoolObj struct{ V bool }

func (b BoolObj) Type() string     { return "boolean" }
func (b BoolObj) IsIndirect() bool { return false }
func (b BoolObj) Value() bool      { return b.V }

// Null object
type NullObj struct{}

func (n NullObj) Type() string     { return "null" }
func (n NullObj) IsIndirect() bool { return false }

// String object. Hex records the input spelling so a rewrite can keep it.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string     { return "string" }
func (s StringObj) IsIndirect() bool { return false }
func (s StringObj) Value() []byte    { return s.Bytes }
func (s StringObj) IsHex() bool      { return s.Hex }

// Array object
type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string     { return "array" }
func (a *ArrayObj) IsIndirect() bool { return false }
func (a *ArrayObj) Get(i int) (Object, bool) {
	if i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}
func (a *ArrayObj) Len() int        { return len(a.Items) }
func (a *ArrayObj) Append(o Object) { a.Items = append(a.Items, o) }

// DictObj is a dictionary that preserves insertion order of its keys.
type DictObj struct {
	keys []string
	kv   map[string]Object
}

func (d *DictObj) Type() string     { return "dict" }
func (d *DictObj) IsIndirect() bool { return false }

func (d *DictObj) Get(key Name) (Object, bool) {
	o, ok := d.kv[key.Value()]
	return o, ok
}

func (d *DictObj) Set(key Name, value Object) {
	k := key.Value()
	if d.kv == nil {
		d.kv = make(map[string]Object)
	}
	if _, exists := d.kv[k]; !exists {
		d.keys = append(d.keys, k)
	}
	d.kv[k] = value
}

func (d *DictObj) Remove(key Name) bool {
	k := key.Value()
	if _, ok := d.kv[k]; !ok {
		return false
	}
	delete(d.kv, k)
	for i, existing := range d.keys {
		if existing == k {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

func (d *DictObj) Keys() []Name {
	keys := make([]Name, len(d.keys))
	for i, k := range d.keys {
		keys[i] = NameObj{Val: k}
	}
	return keys
}

func (d *DictObj) Len() int { return len(d.keys) }

// GetKey looks up a string key directly.
func (d *DictObj) GetKey(key string) (Object, bool) {
	o, ok := d.kv[key]
	return o, ok
}

// GetName returns the value of key when it is a name.
func (d *DictObj) GetName(key string) (string, bool) {
	if o, ok := d.kv[key]; ok {
		if n, ok := o.(Name); ok {
			return n.Value(), true
		}
	}
	return "", false
}

// GetInt returns the value of key when it is an integer.
func (d *DictObj) GetInt(key string) (int64, bool) {
	if o, ok := d.kv[key]; ok {
		if n, ok := o.(Number); ok && n.IsInteger() {
			return n.Int(), true
		}
	}
	return 0, false
}

// GetDict returns the value of key when it is a dictionary.
func (d *DictObj) GetDict(key string) (*DictObj, bool) {
	if o, ok := d.kv[key]; ok {
		if sub, ok := o.(*DictObj); ok {
			return sub, true
		}
	}
	return nil, false
}

// GetArray returns the value of key when it is an array.
func (d *DictObj) GetArray(key string) (*ArrayObj, bool) {
	if o, ok := d.kv[key]; ok {
		if arr, ok := o.(*ArrayObj); ok {
			return arr, true
		}
	}
	return nil, false
}

// StreamObj is a stream whose body either lives in an owned buffer or is a
// byte range into the source device, loaded the first time it is asked for.
type StreamObj struct {
	Dict *DictObj

	data   []byte
	loaded bool

	dev    *device.Device
	begin  int64
	length int64
}

func (s *StreamObj) Type() string           { return "stream" }
func (s *StreamObj) IsIndirect() bool       { return false }
func (s *StreamObj) Dictionary() Dictionary { return s.Dict }

// Length returns the body length in bytes, or -1 while it is still unknown.
func (s *StreamObj) Length() int64 {
	if s.loaded {
		return int64(len(s.data))
	}
	return s.length
}

// BodyRange returns the byte range into the device, valid only for
// range-backed streams that have not been loaded.
func (s *StreamObj) BodyRange() (begin, length int64, ok bool) {
	if s.loaded || s.dev == nil {
		return 0, 0, false
	}
	return s.begin, s.length, true
}

// Loaded reports whether the body bytes are resident.
func (s *StreamObj) Loaded() bool { return s.loaded }

// RawData returns the undecoded body, reading it from the device on first
// use for range-backed streams.
func (s *StreamObj) RawData() ([]byte, error) {
	if s.loaded {
		return s.data, nil
	}
	if s.dev == nil {
		return nil, pdferr.New(pdferr.InternalLogic, "stream has neither body nor source range")
	}
	if s.length < 0 {
		return nil, pdferr.New(pdferr.InvalidObject, "stream length unresolved")
	}
	buf := make([]byte, s.length)
	if s.length > 0 {
		if _, err := s.dev.ReadAt(buf, s.begin); err != nil {
			return nil, pdferr.Wrap(err, pdferr.UnexpectedEOF, "stream body read at offset %d", s.begin)
		}
	}
	s.data = buf
	s.loaded = true
	return s.data, nil
}

// SetData replaces the body with an owned buffer.
func (s *StreamObj) SetData(data []byte) {
	s.data = data
	s.loaded = true
	s.dev = nil
}

// Reference object
type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string     { return "ref" }
func (r RefObj) IsIndirect() bool { return true }
func (r RefObj) Ref() ObjectRef   { return r.R }

// Indirect couples a parsed value with its identity and a dirty flag the
// writer consults on incremental save.
type Indirect struct {
	Ref   ObjectRef
	Value Object
	Dirty bool
}

// Helpers
func NameLiteral(v string) NameObj    { return NameObj{Val: v} }
func NumberInt(i int64) NumberObj     { return NumberObj{I: i, IsInt: true} }
func NumberFloat(f float64) NumberObj { return NumberObj{F: f, IsInt: false} }
func Bool(v bool) BoolObj             { return BoolObj{V: v} }
func Str(bytes []byte) StringObj      { return StringObj{Bytes: bytes} }
func HexStr(bytes []byte) StringObj   { return StringObj{Bytes: bytes, Hex: true} }
func NewArray(items ...Object) *ArrayObj {
	return &ArrayObj{Items: items}
}
func Dict() *DictObj { return &DictObj{kv: make(map[string]Object)} }
func NewStream(dict *DictObj, data []byte) *StreamObj {
	return &StreamObj{Dict: dict, data: data, loaded: true}
}
func NewStreamRange(dict *DictObj, dev *device.Device, begin, length int64) *StreamObj {
	return &StreamObj{Dict: dict, dev: dev, begin: begin, length: length}
}
func Ref(num, gen int) RefObj { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }
