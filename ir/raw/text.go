package raw

import (
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// IsTextUTF16 reports whether b starts with the UTF-16BE byte order mark.
func IsTextUTF16(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF
}

// IsTextUTF8 reports whether b starts with the UTF-8 byte order mark
// admitted for text strings since PDF 2.0.
func IsTextUTF8(b []byte) bool {
	return len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF
}

// DecodeTextString converts the bytes of a PDF text string to a Go string.
// UTF-16BE and UTF-8 are detected by their byte order marks; everything else
// is decoded as PDFDocEncoding.
func DecodeTextString(b []byte) string {
	switch {
	case IsTextUTF16(b):
		return decodeUTF16BE(b[2:])
	case IsTextUTF8(b):
		return norm.NFKC.String(string(b[3:]))
	default:
		return decodePDFDoc(b)
	}
}

func decodeUTF16BE(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return norm.NFKC.String(string(utf16.Decode(units)))
}

// pdfDocDiffs lists the code points where PDFDocEncoding departs from
// Latin-1.
var pdfDocDiffs = map[byte]rune{
	0x18: '˘', 0x19: 'ˇ', 0x1A: 'ˆ', 0x1B: '˙',
	0x1C: '˝', 0x1D: '˛', 0x1E: '˚', 0x1F: '˜',
	0x80: '•', 0x81: '†', 0x82: '‡', 0x83: '…',
	0x84: '—', 0x85: '–', 0x86: 'ƒ', 0x87: '⁄',
	0x88: '‹', 0x89: '›', 0x8A: '−', 0x8B: '‰',
	0x8C: '„', 0x8D: '“', 0x8E: '”', 0x8F: '‘',
	0x90: '’', 0x91: '‚', 0x92: '™', 0x93: 'ﬁ',
	0x94: 'ﬂ', 0x95: 'Ł', 0x96: 'Œ', 0x97: 'Š',
	0x98: 'Ÿ', 0x99: 'Ž', 0x9A: 'ı', 0x9B: 'ł',
	0x9C: 'œ', 0x9D: 'š', 0x9E: 'ž', 0xA0: '€',
}

func decodePDFDoc(b []byte) string {
	runes := make([]rune, 0, len(b))
	for _, c := range b {
		if r, ok := pdfDocDiffs[c]; ok {
			runes = append(runes, r)
			continue
		}
		if c == 0x9F {
			runes = append(runes, '�')
			continue
		}
		runes = append(runes, rune(c))
	}
	return string(runes)
}
