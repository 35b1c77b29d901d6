package raw

import (
	"io"

	"github.com/wudi/pdfcore/pdferr"
	"github.com/wudi/pdfcore/scanner"
)

// TokenReader wraps a scanner with single-token pushback, the lookahead the
// recursive-descent value parser needs.
type TokenReader struct {
	S   *scanner.Scanner
	buf []scanner.Token
}

func NewTokenReader(s *scanner.Scanner) *TokenReader {
	return &TokenReader{S: s}
}

func (r *TokenReader) Next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.S.Next()
}

func (r *TokenReader) Unread(tok scanner.Token) {
	r.buf = append(r.buf, tok)
}

// ParseValue reads one complete value from tr. Composite nesting deeper
// than maxDepth fails with RecursionLimit; maxDepth <= 0 means 500.
func ParseValue(tr *TokenReader, maxDepth int) (Object, error) {
	if maxDepth <= 0 {
		maxDepth = 500
	}
	return parseValue(tr, maxDepth)
}

func parseValue(tr *TokenReader, depth int) (Object, error) {
	if depth <= 0 {
		return nil, pdferr.New(pdferr.RecursionLimit, "value nesting too deep")
	}
	tok, err := tr.Next()
	if err != nil {
		if err == io.EOF {
			return nil, pdferr.New(pdferr.UnexpectedEOF, "input ends inside value")
		}
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return NumberObj{F: tok.Real}, nil
	case scanner.TokenBool:
		return BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return NullObj{}, nil
	case scanner.TokenString:
		return StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenRef:
		return RefObj{R: ObjectRef{Num: tok.Num, Gen: tok.Gen}}, nil
	case scanner.TokenArrayStart:
		return parseArray(tr, depth-1)
	case scanner.TokenDictStart:
		return parseDict(tr, depth-1)
	}
	return nil, pdferr.New(pdferr.InvalidDataType, "unexpected %s token at offset %d", tok.Type, tok.Pos)
}

func parseArray(tr *TokenReader, depth int) (Object, error) {
	arr := &ArrayObj{}
	for {
		tok, err := tr.Next()
		if err != nil {
			if err == io.EOF {
				return nil, pdferr.New(pdferr.UnexpectedEOF, "input ends inside array")
			}
			return nil, err
		}
		if tok.Type == scanner.TokenArrayEnd {
			return arr, nil
		}
		tr.Unread(tok)
		item, err := parseValue(tr, depth)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func parseDict(tr *TokenReader, depth int) (Object, error) {
	d := Dict()
	for {
		tok, err := tr.Next()
		if err != nil {
			if err == io.EOF {
				return nil, pdferr.New(pdferr.UnexpectedEOF, "input ends inside dictionary")
			}
			return nil, err
		}
		if tok.Type == scanner.TokenDictEnd {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, pdferr.New(pdferr.InvalidDataType, "dictionary key must be a name, got %s at offset %d", tok.Type, tok.Pos)
		}
		val, err := parseValue(tr, depth)
		if err != nil {
			return nil, err
		}
		d.Set(NameObj{Val: tok.Str}, val)
	}
}
