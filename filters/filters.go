// Package filters implements the stream decode filters the parser needs to
// read cross-reference and object streams, behind a Pipeline the core
// consumes as an interface.
package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"io"
	"time"

	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/pdferr"
)

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params raw.Dictionary) ([]byte, error)
}

// Limits bounds decode work.
type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

// DefaultLimits returns the caps applied when the caller passes zero Limits.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 256 << 20,
		MaxDecodeTime:       30 * time.Second,
	}
}

type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

// NewPipeline builds a pipeline over the given decoders.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	if limits.MaxDecompressedSize <= 0 {
		limits.MaxDecompressedSize = DefaultLimits().MaxDecompressedSize
	}
	if limits.MaxDecodeTime <= 0 {
		limits.MaxDecodeTime = DefaultLimits().MaxDecodeTime
	}
	return &Pipeline{decoders: decoders, limits: limits}
}

// NewDefaultPipeline builds a pipeline with every decoder in this package.
func NewDefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(),
		NewLZWDecoder(),
		NewASCIIHexDecoder(),
		NewASCII85Decoder(),
		NewRunLengthDecoder(),
	}, limits)
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Decode runs input through the named filter chain in order, applying each
// filter's DecodeParms.
func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []raw.Dictionary) ([]byte, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, pdferr.New(pdferr.InvalidObject, "unknown filter %q", name)
		}
		var param raw.Dictionary
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, pdferr.Wrap(err, pdferr.InvalidObject, "filter %s", name)
		}
		if int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, pdferr.New(pdferr.ValueOutOfRange, "decoded size %d exceeds limit %d", len(out), p.limits.MaxDecompressedSize)
		}
		data = out
	}
	return data, nil
}

// DecodeStream decodes a stream body using the Filter and DecodeParms
// entries of its own dictionary.
func (p *Pipeline) DecodeStream(ctx context.Context, stream raw.Stream) ([]byte, error) {
	body, err := stream.RawData()
	if err != nil {
		return nil, err
	}
	names, params := ExtractFilters(stream.Dictionary())
	return p.Decode(ctx, body, names, params)
}

type flateDecoder struct{}

func NewFlateDecoder() Decoder    { return flateDecoder{} }
func (flateDecoder) Name() string { return "FlateDecode" }

func (flateDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(in))
	var out []byte
	if err == nil {
		defer r.Close()
		out, err = io.ReadAll(r)
	}
	if err != nil {
		// Some producers emit a bare deflate body without the zlib header.
		fr := flate.NewReader(bytes.NewReader(in))
		defer fr.Close()
		out, err = io.ReadAll(fr)
		if err != nil {
			return nil, err
		}
	}
	return applyPredictor(out, params)
}

type lzwDecoder struct{}

func NewLZWDecoder() Decoder    { return lzwDecoder{} }
func (lzwDecoder) Name() string { return "LZWDecode" }

func (lzwDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, err
	}
	return applyPredictor(out, params)
}

type asciiHexDecoder struct{}

func NewASCIIHexDecoder() Decoder    { return asciiHexDecoder{} }
func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	out := make([]byte, 0, len(in)/2)
	var hi byte
	haveHi := false
	for _, c := range in {
		if c == '>' {
			break
		}
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		case c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20:
			continue
		default:
			return nil, pdferr.New(pdferr.InvalidDataType, "non-hex byte %q", c)
		}
		if haveHi {
			out = append(out, hi<<4|v)
			haveHi = false
		} else {
			hi = v
			haveHi = true
		}
	}
	if haveHi {
		out = append(out, hi<<4)
	}
	return out, nil
}

type ascii85Decoder struct{}

func NewASCII85Decoder() Decoder    { return ascii85Decoder{} }
func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	if bytes.HasPrefix(trimmed, []byte("<~")) {
		trimmed = trimmed[2:]
	}
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type runLengthDecoder struct{}

func NewRunLengthDecoder() Decoder    { return runLengthDecoder{} }
func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (runLengthDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	out := make([]byte, 0, len(in))
	i := 0
	for i < len(in) {
		n := in[i]
		i++
		if n == 128 {
			return out, nil
		}
		if n < 128 {
			count := int(n) + 1
			if i+count > len(in) {
				return nil, pdferr.New(pdferr.UnexpectedEOF, "run-length literal truncated")
			}
			out = append(out, in[i:i+count]...)
			i += count
			continue
		}
		if i >= len(in) {
			return nil, pdferr.New(pdferr.UnexpectedEOF, "run-length repeat truncated")
		}
		count := 257 - int(n)
		for j := 0; j < count; j++ {
			out = append(out, in[i])
		}
		i++
	}
	return out, nil
}
