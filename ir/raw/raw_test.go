package raw

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfcore/device"
	"github.com/wudi/pdfcore/pdferr"
	"github.com/wudi/pdfcore/scanner"
)

func parseOne(t *testing.T, input string) Object {
	t.Helper()
	sc := scanner.New(device.FromBytes([]byte(input)), scanner.Config{})
	obj, err := ParseValue(NewTokenReader(sc), 0)
	if err != nil {
		t.Fatalf("parse %q: %v", input, err)
	}
	return obj
}

func TestParseValueKinds(t *testing.T) {
	cases := []struct {
		name  string
		input string
		check func(t *testing.T, obj Object)
	}{
		{"integer", "42", func(t *testing.T, obj Object) {
			n := obj.(NumberObj)
			if !n.IsInteger() || n.Int() != 42 {
				t.Fatalf("got %+v", n)
			}
		}},
		{"real", "-1.25", func(t *testing.T, obj Object) {
			n := obj.(NumberObj)
			if n.IsInteger() || n.Float() != -1.25 {
				t.Fatalf("got %+v", n)
			}
		}},
		{"name", "/Root", func(t *testing.T, obj Object) {
			if obj.(NameObj).Value() != "Root" {
				t.Fatalf("got %+v", obj)
			}
		}},
		{"literal string", "(hi)", func(t *testing.T, obj Object) {
			s := obj.(StringObj)
			if string(s.Value()) != "hi" || s.IsHex() {
				t.Fatalf("got %+v", s)
			}
		}},
		{"hex string", "<6869>", func(t *testing.T, obj Object) {
			s := obj.(StringObj)
			if string(s.Value()) != "hi" || !s.IsHex() {
				t.Fatalf("got %+v", s)
			}
		}},
		{"bool", "true", func(t *testing.T, obj Object) {
			if !obj.(BoolObj).Value() {
				t.Fatalf("got %+v", obj)
			}
		}},
		{"null", "null", func(t *testing.T, obj Object) {
			if _, ok := obj.(NullObj); !ok {
				t.Fatalf("got %T", obj)
			}
		}},
		{"reference", "3 1 R", func(t *testing.T, obj Object) {
			if obj.(RefObj).Ref() != (ObjectRef{Num: 3, Gen: 1}) {
				t.Fatalf("got %+v", obj)
			}
		}},
		{"array", "[1 (a) /N]", func(t *testing.T, obj Object) {
			a := obj.(*ArrayObj)
			if a.Len() != 3 {
				t.Fatalf("len = %d", a.Len())
			}
		}},
		{"nested dict", "<< /A << /B 1 >> >>", func(t *testing.T, obj Object) {
			d := obj.(*DictObj)
			sub, ok := d.GetDict("A")
			if !ok {
				t.Fatal("missing /A")
			}
			if v, _ := sub.GetInt("B"); v != 1 {
				t.Fatalf("B = %d", v)
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, parseOne(t, tc.input))
		})
	}
}

func TestDictOrderPreserved(t *testing.T) {
	obj := parseOne(t, "<< /C 1 /A 2 /B 3 >>")
	d := obj.(*DictObj)
	var got []string
	for _, k := range d.Keys() {
		got = append(got, k.Value())
	}
	want := []string{"C", "A", "B"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("key order (-want +got):\n%s", diff)
	}

	// Overwriting a key keeps its slot, removing drops it.
	d.Set(NameLiteral("A"), NumberInt(9))
	if len(d.Keys()) != 3 {
		t.Fatalf("overwrite grew dict to %d keys", len(d.Keys()))
	}
	if !d.Remove(NameLiteral("C")) {
		t.Fatal("remove C failed")
	}
	if d.Remove(NameLiteral("C")) {
		t.Fatal("second remove should report absent")
	}
	if d.Keys()[0].Value() != "A" {
		t.Fatalf("first key = %q after remove", d.Keys()[0].Value())
	}
}

func TestDictTypedGetters(t *testing.T) {
	obj := parseOne(t, "<< /N 7 /F 1.5 /T /Page /Kids [1 0 R] /Sub << >> >>")
	d := obj.(*DictObj)
	if v, ok := d.GetInt("N"); !ok || v != 7 {
		t.Fatalf("GetInt N = %d, %v", v, ok)
	}
	if _, ok := d.GetInt("F"); ok {
		t.Fatal("GetInt on a real should fail")
	}
	if v, ok := d.GetName("T"); !ok || v != "Page" {
		t.Fatalf("GetName T = %q, %v", v, ok)
	}
	if _, ok := d.GetName("N"); ok {
		t.Fatal("GetName on a number should fail")
	}
	if a, ok := d.GetArray("Kids"); !ok || a.Len() != 1 {
		t.Fatal("GetArray Kids failed")
	}
	if _, ok := d.GetDict("Sub"); !ok {
		t.Fatal("GetDict Sub failed")
	}
	if _, ok := d.GetKey("Missing"); ok {
		t.Fatal("GetKey on absent key should fail")
	}
}

func TestWriteValueRoundTrip(t *testing.T) {
	d := Dict()
	d.Set(NameLiteral("Type"), NameLiteral("Catalog"))
	d.Set(NameLiteral("Kids"), NewArray(Ref(1, 0), Ref(2, 0)))
	d.Set(NameLiteral("Count"), NumberInt(2))
	d.Set(NameLiteral("Title"), Str([]byte("Li(ne)\nend")))
	d.Set(NameLiteral("ID"), HexStr([]byte{0xAB, 0xCD}))
	d.Set(NameLiteral("Open"), Bool(true))
	d.Set(NameLiteral("Nothing"), NullObj{})
	d.Set(NameLiteral("Scale"), NumberFloat(0.5))

	var buf bytes.Buffer
	if err := WriteValue(&buf, d); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := parseOne(t, buf.String())
	if diff := cmp.Diff(Object(d), got, cmp.AllowUnexported(DictObj{})); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestWriteNameEscapes(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteValue(&buf, NameLiteral("A B/C#")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "/A#20B#2FC#23" {
		t.Fatalf("serialized name = %q", buf.String())
	}
	back := parseOne(t, buf.String())
	if back.(NameObj).Value() != "A B/C#" {
		t.Fatalf("reparsed name = %q", back.(NameObj).Value())
	}
}

func TestWriteStringSpelling(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteValue(&buf, HexStr([]byte{0x01, 0xFF})); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "<01FF>" {
		t.Fatalf("hex spelling = %q", buf.String())
	}
	buf.Reset()
	if err := WriteValue(&buf, Str([]byte("a(b)\\c"))); err != nil {
		t.Fatalf("write: %v", err)
	}
	back := parseOne(t, buf.String())
	if string(back.(StringObj).Value()) != "a(b)\\c" {
		t.Fatalf("reparsed string = %q", back.(StringObj).Value())
	}
}

func TestParseDepthLimit(t *testing.T) {
	input := strings.Repeat("[", 600) + strings.Repeat("]", 600)
	sc := scanner.New(device.FromBytes([]byte(input)), scanner.Config{})
	_, err := ParseValue(NewTokenReader(sc), 0)
	if !pdferr.IsCode(err, pdferr.RecursionLimit) {
		t.Fatalf("err = %v, want RecursionLimit", err)
	}
}

func TestParseDictKeyMustBeName(t *testing.T) {
	sc := scanner.New(device.FromBytes([]byte("<< 1 2 >>")), scanner.Config{})
	_, err := ParseValue(NewTokenReader(sc), 0)
	if !pdferr.IsCode(err, pdferr.InvalidDataType) {
		t.Fatalf("err = %v, want InvalidDataType", err)
	}
}

func TestParseTruncatedInput(t *testing.T) {
	for _, input := range []string{"", "[1 2", "<< /A 1"} {
		sc := scanner.New(device.FromBytes([]byte(input)), scanner.Config{})
		_, err := ParseValue(NewTokenReader(sc), 0)
		if !pdferr.IsCode(err, pdferr.UnexpectedEOF) {
			t.Fatalf("parse %q: err = %v, want UnexpectedEOF", input, err)
		}
	}
}

func TestTokenReaderUnread(t *testing.T) {
	sc := scanner.New(device.FromBytes([]byte("1 2")), scanner.Config{})
	tr := NewTokenReader(sc)
	tok, err := tr.Next()
	if err != nil || tok.Int != 1 {
		t.Fatalf("next = %+v, %v", tok, err)
	}
	tr.Unread(tok)
	tok, err = tr.Next()
	if err != nil || tok.Int != 1 {
		t.Fatalf("after unread = %+v, %v", tok, err)
	}
	tok, err = tr.Next()
	if err != nil || tok.Int != 2 {
		t.Fatalf("second = %+v, %v", tok, err)
	}
}

func TestStreamRangeLazyLoad(t *testing.T) {
	dev := device.FromBytes([]byte("prefixBODYsuffix"))
	s := NewStreamRange(Dict(), dev, 6, 4)
	if s.Loaded() {
		t.Fatal("range stream reported loaded before first read")
	}
	begin, length, ok := s.BodyRange()
	if !ok || begin != 6 || length != 4 {
		t.Fatalf("body range = %d, %d, %v", begin, length, ok)
	}
	if s.Length() != 4 {
		t.Fatalf("length = %d", s.Length())
	}
	data, err := s.RawData()
	if err != nil {
		t.Fatalf("raw data: %v", err)
	}
	if string(data) != "BODY" {
		t.Fatalf("data = %q", data)
	}
	if !s.Loaded() {
		t.Fatal("stream not marked loaded")
	}
	if _, _, ok := s.BodyRange(); ok {
		t.Fatal("loaded stream still reports a range")
	}
}

func TestStreamUnresolvedLength(t *testing.T) {
	s := NewStreamRange(Dict(), device.FromBytes([]byte("x")), 0, -1)
	if s.Length() != -1 {
		t.Fatalf("length = %d, want -1", s.Length())
	}
	if _, err := s.RawData(); !pdferr.IsCode(err, pdferr.InvalidObject) {
		t.Fatalf("err = %v, want InvalidObject", err)
	}
}

func TestStreamSetData(t *testing.T) {
	s := NewStreamRange(Dict(), device.FromBytes([]byte("old")), 0, 3)
	s.SetData([]byte("new body"))
	data, err := s.RawData()
	if err != nil || string(data) != "new body" {
		t.Fatalf("data = %q, %v", data, err)
	}
	if s.Length() != 8 {
		t.Fatalf("length = %d", s.Length())
	}
}
