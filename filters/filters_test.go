package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"testing"

	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/pdferr"
)

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func rawDeflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("deflate writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func TestFlateDecode(t *testing.T) {
	plain := []byte("some body of stream data that compresses")
	dec := NewFlateDecoder()

	out, err := dec.Decode(context.Background(), zlibCompress(t, plain), nil)
	if err != nil {
		t.Fatalf("zlib body: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatalf("decoded %q", out)
	}

	// Bodies without the zlib header still decode.
	out, err = dec.Decode(context.Background(), rawDeflate(t, plain), nil)
	if err != nil {
		t.Fatalf("bare deflate body: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatalf("decoded %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	dec := NewASCIIHexDecoder()
	cases := []struct {
		name  string
		input string
		want  []byte
	}{
		{"plain", "48656C6C6F>", []byte("Hello")},
		{"whitespace", "48 65\n6C 6C 6F>", []byte("Hello")},
		{"odd digit pads", "486>", []byte{0x48, 0x60}},
		{"no eod marker", "4865", []byte{0x48, 0x65}},
		{"data after eod ignored", "48>zzz", []byte{0x48}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := dec.Decode(context.Background(), []byte(tc.input), nil)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !bytes.Equal(out, tc.want) {
				t.Fatalf("decoded % x, want % x", out, tc.want)
			}
		})
	}
	if _, err := dec.Decode(context.Background(), []byte("4G>"), nil); !pdferr.IsCode(err, pdferr.InvalidDataType) {
		t.Fatalf("bad byte err = %v, want InvalidDataType", err)
	}
}

func TestASCII85Decode(t *testing.T) {
	plain := []byte("ascii85 round trip payload")
	enc := make([]byte, stdascii85.MaxEncodedLen(len(plain)))
	n := stdascii85.Encode(enc, plain)
	input := append(append([]byte("<~"), enc[:n]...), []byte("~>")...)

	out, err := NewASCII85Decoder().Decode(context.Background(), input, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatalf("decoded %q", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	dec := NewRunLengthDecoder()
	cases := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{"literal run", []byte{2, 'a', 'b', 'c', 128}, []byte("abc")},
		{"repeat run", []byte{255, 'x', 128}, []byte("xx")},
		{"mixed", []byte{0, 'a', 254, 'b', 128}, []byte("abbb")},
		{"eod stops decode", []byte{128, 0, 'q'}, nil},
		{"missing eod", []byte{1, 'h', 'i'}, []byte("hi")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := dec.Decode(context.Background(), tc.input, nil)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !bytes.Equal(out, tc.want) {
				t.Fatalf("decoded %q, want %q", out, tc.want)
			}
		})
	}
	if _, err := dec.Decode(context.Background(), []byte{5, 'a'}, nil); !pdferr.IsCode(err, pdferr.UnexpectedEOF) {
		t.Fatalf("truncated literal err = %v, want UnexpectedEOF", err)
	}
	if _, err := dec.Decode(context.Background(), []byte{200}, nil); !pdferr.IsCode(err, pdferr.UnexpectedEOF) {
		t.Fatalf("truncated repeat err = %v, want UnexpectedEOF", err)
	}
}

func predictorParams(predictor, columns, colors int) *raw.DictObj {
	d := raw.Dict()
	d.Set(raw.NameLiteral("Predictor"), raw.NumberInt(int64(predictor)))
	d.Set(raw.NameLiteral("Columns"), raw.NumberInt(int64(columns)))
	if colors > 1 {
		d.Set(raw.NameLiteral("Colors"), raw.NumberInt(int64(colors)))
	}
	return d
}

func TestPNGUpPredictor(t *testing.T) {
	// Two rows of four columns, both tagged Up. The first row has an all-zero
	// previous row, so it passes through; the second adds the first.
	data := []byte{
		2, 1, 2, 3, 4,
		2, 10, 10, 10, 10,
	}
	out, err := applyPredictor(data, predictorParams(12, 4, 1))
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	want := []byte{1, 2, 3, 4, 11, 12, 13, 14}
	if !bytes.Equal(out, want) {
		t.Fatalf("out = %v, want %v", out, want)
	}
}

func TestPNGSubAndPaethPredictors(t *testing.T) {
	// Row 1 Sub: each byte adds its left neighbor. Row 2 Paeth.
	data := []byte{
		1, 1, 1, 1,
		4, 1, 1, 1,
	}
	out, err := applyPredictor(data, predictorParams(15, 3, 1))
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	want := []byte{1, 2, 3, 2, 3, 4}
	if !bytes.Equal(out, want) {
		t.Fatalf("out = %v, want %v", out, want)
	}
}

func TestTIFFPredictor(t *testing.T) {
	data := []byte{1, 1, 1, 5, 0, 0}
	out, err := applyPredictor(data, predictorParams(2, 3, 1))
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	want := []byte{1, 2, 3, 5, 5, 5}
	if !bytes.Equal(out, want) {
		t.Fatalf("out = %v, want %v", out, want)
	}
}

func TestPredictorErrors(t *testing.T) {
	if _, err := applyPredictor([]byte{2, 0, 0}, predictorParams(12, 4, 1)); !pdferr.IsCode(err, pdferr.InvalidObject) {
		t.Fatalf("short row err = %v, want InvalidObject", err)
	}
	if _, err := applyPredictor([]byte{9, 0}, predictorParams(12, 1, 1)); !pdferr.IsCode(err, pdferr.InvalidObject) {
		t.Fatalf("bad tag err = %v, want InvalidObject", err)
	}
	if _, err := applyPredictor([]byte{0}, predictorParams(5, 1, 1)); !pdferr.IsCode(err, pdferr.ValueOutOfRange) {
		t.Fatalf("unknown predictor err = %v, want ValueOutOfRange", err)
	}
}

func TestPipelineChain(t *testing.T) {
	plain := []byte("chained through two filters")
	compressed := zlibCompress(t, plain)
	hexed := make([]byte, 0, len(compressed)*2+1)
	const digits = "0123456789ABCDEF"
	for _, b := range compressed {
		hexed = append(hexed, digits[b>>4], digits[b&0x0F])
	}
	hexed = append(hexed, '>')

	p := NewDefaultPipeline(Limits{})
	out, err := p.Decode(context.Background(), hexed, []string{"ASCIIHexDecode", "FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatalf("decoded %q", out)
	}
}

func TestPipelineUnknownFilter(t *testing.T) {
	p := NewDefaultPipeline(Limits{})
	_, err := p.Decode(context.Background(), []byte("x"), []string{"DCTDecode"}, nil)
	if !pdferr.IsCode(err, pdferr.InvalidObject) {
		t.Fatalf("err = %v, want InvalidObject", err)
	}
}

func TestPipelineSizeLimit(t *testing.T) {
	plain := bytes.Repeat([]byte{'z'}, 4096)
	p := NewDefaultPipeline(Limits{MaxDecompressedSize: 128})
	_, err := p.Decode(context.Background(), zlibCompress(t, plain), []string{"FlateDecode"}, nil)
	if !pdferr.IsCode(err, pdferr.ValueOutOfRange) {
		t.Fatalf("err = %v, want ValueOutOfRange", err)
	}
}

func TestDecodeStreamUsesDict(t *testing.T) {
	plain := []byte("stream body via dictionary")
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	stream := raw.NewStream(dict, zlibCompress(t, plain))

	p := NewDefaultPipeline(Limits{})
	out, err := p.DecodeStream(context.Background(), stream)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatalf("decoded %q", out)
	}
}

func TestExtractFilters(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Filter"), raw.NewArray(raw.NameLiteral("ASCIIHexDecode"), raw.NameLiteral("FlateDecode")))
	parms := raw.Dict()
	parms.Set(raw.NameLiteral("Predictor"), raw.NumberInt(12))
	dict.Set(raw.NameLiteral("DecodeParms"), raw.NewArray(raw.NullObj{}, parms))

	names, params := ExtractFilters(dict)
	if len(names) != 2 || names[0] != "ASCIIHexDecode" || names[1] != "FlateDecode" {
		t.Fatalf("names = %v", names)
	}
	if len(params) != 2 || params[0] != nil || params[1] == nil {
		t.Fatalf("params = %v", params)
	}

	single := raw.Dict()
	single.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	single.Set(raw.NameLiteral("DP"), parms)
	names, params = ExtractFilters(single)
	if len(names) != 1 || len(params) != 1 || params[0] == nil {
		t.Fatalf("single form names = %v params = %v", names, params)
	}

	none, noneParams := ExtractFilters(raw.Dict())
	if len(none) != 0 || len(noneParams) != 0 {
		t.Fatalf("unfiltered dict yielded %v %v", none, noneParams)
	}
}
