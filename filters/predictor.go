package filters

import (
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/pdferr"
)

// applyPredictor undoes the PNG or TIFF predictor named in DecodeParms.
// Cross-reference streams are almost always written with PNG Up prediction.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	if params == nil {
		return data, nil
	}
	predictor := dictInt(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := dictInt(params, "Colors", 1)
	bpc := dictInt(params, "BitsPerComponent", 8)
	columns := dictInt(params, "Columns", 1)
	if colors < 1 || bpc < 1 || columns < 1 {
		return nil, pdferr.New(pdferr.ValueOutOfRange, "predictor parameters Colors=%d BitsPerComponent=%d Columns=%d", colors, bpc, columns)
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8

	if predictor == 2 {
		return applyTIFFPredictor(data, bpp, rowLen, bpc)
	}
	if predictor < 10 || predictor > 15 {
		return nil, pdferr.New(pdferr.ValueOutOfRange, "unsupported predictor %d", predictor)
	}

	stride := rowLen + 1
	if len(data)%stride != 0 {
		return nil, pdferr.New(pdferr.InvalidObject, "predicted data length %d not a multiple of row size %d", len(data), stride)
	}
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	row := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		tag := data[r*stride]
		copy(row, data[r*stride+1:(r+1)*stride])
		switch tag {
		case 0:
		case 1:
			for i := bpp; i < rowLen; i++ {
				row[i] += row[i-bpp]
			}
		case 2:
			for i := 0; i < rowLen; i++ {
				row[i] += prev[i]
			}
		case 3:
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = row[i-bpp]
				}
				row[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4:
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = row[i-bpp]
					upLeft = prev[i-bpp]
				}
				row[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, pdferr.New(pdferr.InvalidObject, "bad PNG filter tag %d in row %d", tag, r)
		}
		out = append(out, row...)
		copy(prev, row)
	}
	return out, nil
}

func applyTIFFPredictor(data []byte, bpp, rowLen, bpc int) ([]byte, error) {
	if bpc != 8 {
		return nil, pdferr.New(pdferr.ValueOutOfRange, "TIFF predictor supports 8 bits per component, got %d", bpc)
	}
	if rowLen <= 0 || len(data)%rowLen != 0 {
		return nil, pdferr.New(pdferr.InvalidObject, "TIFF predicted data length %d not a multiple of row size %d", len(data), rowLen)
	}
	out := make([]byte, len(data))
	copy(out, data)
	for r := 0; r < len(out); r += rowLen {
		for i := bpp; i < rowLen; i++ {
			out[r+i] += out[r+i-bpp]
		}
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func dictInt(d raw.Dictionary, key string, def int) int {
	if o, ok := d.Get(raw.NameObj{Val: key}); ok {
		if n, ok := o.(raw.Number); ok && n.IsInteger() {
			return int(n.Int())
		}
	}
	return def
}
