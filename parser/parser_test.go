package parser

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/rc4"
	"fmt"
	"testing"

	"github.com/wudi/pdfcore/device"
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/pdferr"
)

type fileBuilder struct {
	buf bytes.Buffer
}

func (b *fileBuilder) add(s string) int64 {
	off := int64(b.buf.Len())
	b.buf.WriteString(s)
	return off
}

func (b *fileBuilder) addBytes(p []byte) int64 {
	off := int64(b.buf.Len())
	b.buf.Write(p)
	return off
}

func (b *fileBuilder) len() int64 { return int64(b.buf.Len()) }

func (b *fileBuilder) dev() *device.Device { return device.FromBytes(b.buf.Bytes()) }

func entry(off int64, gen int, typ byte) string {
	return fmt.Sprintf("%010d %05d %c\r\n", off, gen, typ)
}

// buildClassical writes a one page document with a content stream.
func buildClassical() fileBuilder {
	var b fileBuilder
	b.add("%PDF-1.4\n")
	o1 := b.add("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	o2 := b.add("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	o3 := b.add("3 0 obj\n<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>\nendobj\n")
	o4 := b.add("4 0 obj\n<< /Length 15 >>\nstream\nBT /F1 12 Tf ET\nendstream\nendobj\n")
	x := b.add("xref\n0 5\n")
	b.add(entry(0, 65535, 'f'))
	for _, off := range []int64{o1, o2, o3, o4} {
		b.add(entry(off, 0, 'n'))
	}
	b.add(fmt.Sprintf("trailer\n<< /Size 5 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", x))
	return b
}

func parseDoc(t *testing.T, cfg Config, b *fileBuilder) *Document {
	t.Helper()
	doc, err := NewDocumentParser(cfg).Parse(context.Background(), b.dev())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func contentStream(t *testing.T, doc *Document) *raw.StreamObj {
	t.Helper()
	obj, err := doc.Store.MustGet(raw.ObjectRef{Num: 4, Gen: 0})
	if err != nil {
		t.Fatalf("content object: %v", err)
	}
	s, ok := obj.Value.(*raw.StreamObj)
	if !ok {
		t.Fatalf("object 4 = %T", obj.Value)
	}
	return s
}

func TestParseClassicalDocument(t *testing.T) {
	b := buildClassical()
	doc := parseDoc(t, Config{}, &b)
	if doc.Version != "1.4" {
		t.Fatalf("version = %q", doc.Version)
	}
	if doc.Encrypted || doc.HasXRefStreams || doc.IncrementalUpdates != 0 {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.Store.Len() != 4 {
		t.Fatalf("store holds %d objects", doc.Store.Len())
	}
	s := contentStream(t, doc)
	if !s.Loaded() {
		t.Fatal("eager parse left the stream body on disk")
	}
	data, err := s.RawData()
	if err != nil || string(data) != "BT /F1 12 Tf ET" {
		t.Fatalf("body = %q, %v", data, err)
	}
	cat, err := doc.Store.MustGet(raw.ObjectRef{Num: 1, Gen: 0})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if typ, _ := cat.Value.(*raw.DictObj).GetName("Type"); typ != "Catalog" {
		t.Fatalf("catalog Type = %q", typ)
	}
}

func TestParseLoadOnDemand(t *testing.T) {
	b := buildClassical()
	doc := parseDoc(t, Config{LoadOnDemand: true}, &b)
	s := contentStream(t, doc)
	if s.Loaded() {
		t.Fatal("demand loading still materialized the body")
	}
	if _, _, ok := s.BodyRange(); !ok {
		t.Fatal("range-backed stream reports no range")
	}
	data, err := s.RawData()
	if err != nil || string(data) != "BT /F1 12 Tf ET" {
		t.Fatalf("body = %q, %v", data, err)
	}
}

func TestParseIncrementalUpdate(t *testing.T) {
	var b fileBuilder
	b.add("%PDF-1.4\n")
	o1 := b.add("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	o2 := b.add("2 0 obj\n(old)\nendobj\n")
	x1 := b.add("xref\n0 3\n")
	b.add(entry(0, 65535, 'f'))
	b.add(entry(o1, 0, 'n'))
	b.add(entry(o2, 0, 'n'))
	b.add(fmt.Sprintf("trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", x1))
	o2b := b.add("2 0 obj\n(new)\nendobj\n")
	x2 := b.add("xref\n2 1\n")
	b.add(entry(o2b, 0, 'n'))
	b.add(fmt.Sprintf("trailer\n<< /Size 3 /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", x1, x2))

	doc := parseDoc(t, Config{}, &b)
	if doc.IncrementalUpdates != 1 {
		t.Fatalf("incremental updates = %d", doc.IncrementalUpdates)
	}
	obj, err := doc.Store.MustGet(raw.ObjectRef{Num: 2, Gen: 0})
	if err != nil {
		t.Fatalf("object 2: %v", err)
	}
	if got := string(obj.Value.(raw.StringObj).Value()); got != "new" {
		t.Fatalf("object 2 = %q, want the updated value", got)
	}
}

func TestParseIndirectStreamLength(t *testing.T) {
	var b fileBuilder
	b.add("%PDF-1.4\n")
	o1 := b.add("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	o2 := b.add("2 0 obj\n<< /Length 3 0 R >>\nstream\npayload bytes\nendstream\nendobj\n")
	o3 := b.add("3 0 obj\n13\nendobj\n")
	x := b.add("xref\n0 4\n")
	b.add(entry(0, 65535, 'f'))
	b.add(entry(o1, 0, 'n'))
	b.add(entry(o2, 0, 'n'))
	b.add(entry(o3, 0, 'n'))
	b.add(fmt.Sprintf("trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", x))

	doc := parseDoc(t, Config{}, &b)
	obj, err := doc.Store.MustGet(raw.ObjectRef{Num: 2, Gen: 0})
	if err != nil {
		t.Fatalf("object 2: %v", err)
	}
	data, err := obj.Value.(*raw.StreamObj).RawData()
	if err != nil || string(data) != "payload bytes" {
		t.Fatalf("body = %q, %v", data, err)
	}
}

func streamRec(typ byte, f2, f3 int64) []byte {
	return []byte{typ, byte(f2 >> 8), byte(f2), byte(f3 >> 8), byte(f3)}
}

func TestParseObjectStreams(t *testing.T) {
	var b fileBuilder
	b.add("%PDF-1.5\n")

	prologue := "1 0 4 21 "
	payload := prologue + "<< /Type /Catalog >> (packed)"
	container := b.add(fmt.Sprintf("2 0 obj\n<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n%s\nendstream\nendobj\n",
		len(prologue), len(payload), payload))

	stm := b.len()
	var recs []byte
	recs = append(recs, streamRec(0, 0, 65535)...)
	recs = append(recs, streamRec(2, 2, 0)...)
	recs = append(recs, streamRec(1, container, 0)...)
	recs = append(recs, streamRec(1, stm, 0)...)
	recs = append(recs, streamRec(2, 2, 1)...)
	b.add(fmt.Sprintf("3 0 obj\n<< /Type /XRef /Size 5 /W [1 2 2] /Root 1 0 R /Length %d >>\nstream\n", len(recs)))
	b.addBytes(recs)
	b.add("\nendstream\nendobj\n")
	b.add(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", stm))

	doc := parseDoc(t, Config{}, &b)
	if !doc.HasXRefStreams {
		t.Fatal("stream table not flagged")
	}
	cat, err := doc.Store.MustGet(raw.ObjectRef{Num: 1, Gen: 0})
	if err != nil {
		t.Fatalf("packed catalog: %v", err)
	}
	if typ, _ := cat.Value.(*raw.DictObj).GetName("Type"); typ != "Catalog" {
		t.Fatalf("catalog Type = %q", typ)
	}
	packed, err := doc.Store.MustGet(raw.ObjectRef{Num: 4, Gen: 0})
	if err != nil {
		t.Fatalf("packed string: %v", err)
	}
	if got := string(packed.Value.(raw.StringObj).Value()); got != "packed" {
		t.Fatalf("packed string = %q", got)
	}
	if !doc.Store.IsCompressedStream(2) {
		t.Fatal("container not registered as an object stream")
	}
}

func TestParseCatalogVersionOverride(t *testing.T) {
	build := func(ver string) fileBuilder {
		var b fileBuilder
		b.add("%PDF-1.4\n")
		o1 := b.add(fmt.Sprintf("1 0 obj\n<< /Type /Catalog /Version /%s >>\nendobj\n", ver))
		x := b.add("xref\n0 2\n")
		b.add(entry(0, 65535, 'f'))
		b.add(entry(o1, 0, 'n'))
		b.add(fmt.Sprintf("trailer\n<< /Size 2 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", x))
		return b
	}

	b := build("1.6")
	if doc := parseDoc(t, Config{}, &b); doc.Version != "1.6" {
		t.Fatalf("version = %q, want the catalog override", doc.Version)
	}
	b = build("1.2")
	if doc := parseDoc(t, Config{}, &b); doc.Version != "1.4" {
		t.Fatalf("version = %q, older catalog name must not win", doc.Version)
	}
}

func TestParseRebuildsBrokenChain(t *testing.T) {
	var b fileBuilder
	b.add("%PDF-1.4\n")
	o1 := b.add("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	b.add("2 0 obj\n(kept)\nendobj\n")
	// The announced offset lands inside the first object.
	b.add(fmt.Sprintf("trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", o1+10))

	doc := parseDoc(t, Config{}, &b)
	obj, err := doc.Store.MustGet(raw.ObjectRef{Num: 2, Gen: 0})
	if err != nil {
		t.Fatalf("object 2: %v", err)
	}
	if got := string(obj.Value.(raw.StringObj).Value()); got != "kept" {
		t.Fatalf("object 2 = %q", got)
	}
}

var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPwd(p string) []byte {
	out := make([]byte, 32)
	n := copy(out, p)
	copy(out[n:], passwordPad)
	return out
}

func rc4Apply(t *testing.T, key, data []byte) []byte {
	t.Helper()
	c, err := rc4.NewCipher(key)
	if err != nil {
		t.Fatalf("rc4: %v", err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

func rc4ObjectKey(fileKey []byte, num, gen int) []byte {
	h := md5.New()
	h.Write(fileKey)
	h.Write([]byte{byte(num), byte(num >> 8), byte(num >> 16), byte(gen), byte(gen >> 8)})
	return h.Sum(nil)[:10]
}

func TestParseEncryptedDocument(t *testing.T) {
	// 40-bit RC4 with an empty user password, built the way a revision 2
	// writer would.
	id := []byte("0123456789abcdef")
	ownerKey := md5.Sum(padPwd("hunter2"))
	o := rc4Apply(t, ownerKey[:5], padPwd(""))
	h := md5.New()
	h.Write(padPwd(""))
	h.Write(o)
	h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	h.Write(id)
	fileKey := h.Sum(nil)[:5]
	u := rc4Apply(t, fileKey, passwordPad)
	secret := rc4Apply(t, rc4ObjectKey(fileKey, 2, 0), []byte("secret"))

	var b fileBuilder
	b.add("%PDF-1.4\n")
	o1 := b.add("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	o2 := b.add(fmt.Sprintf("2 0 obj\n<%X>\nendobj\n", secret))
	o5 := b.add(fmt.Sprintf("5 0 obj\n<< /Filter /Standard /V 1 /R 2 /P -1 /O <%X> /U <%X> >>\nendobj\n", o, u))
	x := b.add("xref\n0 3\n")
	b.add(entry(0, 65535, 'f'))
	b.add(entry(o1, 0, 'n'))
	b.add(entry(o2, 0, 'n'))
	b.add("5 1\n")
	b.add(entry(o5, 0, 'n'))
	b.add(fmt.Sprintf("trailer\n<< /Size 6 /Root 1 0 R /Encrypt 5 0 R /ID [<%X> <%X>] >>\nstartxref\n%d\n%%%%EOF\n",
		id, id, x))

	p := NewDocumentParser(Config{Password: "wrong"})
	dev := b.dev()
	if _, err := p.Parse(context.Background(), dev); !pdferr.IsCode(err, pdferr.InvalidPassword) {
		t.Fatalf("err = %v, want InvalidPassword", err)
	}

	p.SetPassword("")
	doc, err := p.Parse(context.Background(), dev)
	if err != nil {
		t.Fatalf("retry parse: %v", err)
	}
	if !doc.Encrypted {
		t.Fatal("document not flagged encrypted")
	}
	obj, err := doc.Store.MustGet(raw.ObjectRef{Num: 2, Gen: 0})
	if err != nil {
		t.Fatalf("object 2: %v", err)
	}
	if got := string(obj.Value.(raw.StringObj).Value()); got != "secret" {
		t.Fatalf("decrypted string = %q", got)
	}
	// The encryption dictionary itself never reaches the store.
	if _, ok := doc.Store.Get(raw.ObjectRef{Num: 5, Gen: 0}); ok {
		t.Fatal("encryption dictionary leaked into the store")
	}
}
