package raw

import (
	"fmt"
	"io"
	"strconv"

	"github.com/wudi/pdfcore/pdferr"
)

// WriteValue serializes obj in PDF syntax. Dictionaries keep their key
// order, so a parse of the output compares equal to the input value.
func WriteValue(w io.Writer, obj Object) error {
	switch v := obj.(type) {
	case NullObj:
		_, err := io.WriteString(w, "null")
		return err
	case BoolObj:
		_, err := io.WriteString(w, strconv.FormatBool(v.V))
		return err
	case NumberObj:
		if v.IsInt {
			_, err := io.WriteString(w, strconv.FormatInt(v.I, 10))
			return err
		}
		_, err := io.WriteString(w, strconv.FormatFloat(v.F, 'f', -1, 64))
		return err
	case NameObj:
		return writeName(w, v.Val)
	case StringObj:
		if v.Hex {
			return writeHexString(w, v.Bytes)
		}
		return writeLiteralString(w, v.Bytes)
	case RefObj:
		_, err := fmt.Fprintf(w, "%d %d R", v.R.Num, v.R.Gen)
		return err
	case *ArrayObj:
		if _, err := io.WriteString(w, "["); err != nil {
			return err
		}
		for i, item := range v.Items {
			if i > 0 {
				if _, err := io.WriteString(w, " "); err != nil {
					return err
				}
			}
			if err := WriteValue(w, item); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "]")
		return err
	case *DictObj:
		return writeDict(w, v)
	case *StreamObj:
		if err := writeDict(w, v.Dict); err != nil {
			return err
		}
		body, err := v.RawData()
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\nstream\n"); err != nil {
			return err
		}
		if _, err := w.Write(body); err != nil {
			return err
		}
		_, err = io.WriteString(w, "\nendstream")
		return err
	}
	return pdferr.New(pdferr.InternalLogic, "cannot serialize %T", obj)
}

func writeDict(w io.Writer, d *DictObj) error {
	if _, err := io.WriteString(w, "<<"); err != nil {
		return err
	}
	for _, key := range d.keys {
		if err := writeName(w, key); err != nil {
			return err
		}
		if _, err := io.WriteString(w, " "); err != nil {
			return err
		}
		if err := WriteValue(w, d.kv[key]); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, ">>")
	return err
}

func writeName(w io.Writer, name string) error {
	buf := make([]byte, 0, len(name)+1)
	buf = append(buf, '/')
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b <= 0x20 || b >= 0x7F || b == '#' ||
			b == '(' || b == ')' || b == '<' || b == '>' ||
			b == '[' || b == ']' || b == '{' || b == '}' || b == '/' || b == '%' {
			buf = append(buf, '#', hexDigit(b>>4), hexDigit(b&0x0F))
			continue
		}
		buf = append(buf, b)
	}
	_, err := w.Write(buf)
	return err
}

func writeLiteralString(w io.Writer, data []byte) error {
	buf := make([]byte, 0, len(data)+2)
	buf = append(buf, '(')
	for _, b := range data {
		switch b {
		case '(', ')', '\\':
			buf = append(buf, '\\', b)
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		default:
			buf = append(buf, b)
		}
	}
	buf = append(buf, ')')
	_, err := w.Write(buf)
	return err
}

func writeHexString(w io.Writer, data []byte) error {
	buf := make([]byte, 0, len(data)*2+2)
	buf = append(buf, '<')
	for _, b := range data {
		buf = append(buf, hexDigit(b>>4), hexDigit(b&0x0F))
	}
	buf = append(buf, '>')
	_, err := w.Write(buf)
	return err
}

func hexDigit(v byte) byte {
	if v < 10 {
		return '0' + v
	}
	return 'A' + v - 10
}
