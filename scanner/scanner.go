// Package scanner tokenizes PDF syntax read from a device.Device. It emits
// typed tokens for numbers, names, strings, structure delimiters and
// keywords, and provides the stream-body capture used by the object loader.
//
// Errors inside a token are funneled through the configured recovery
// strategy: strict mode fails, lenient mode applies the documented repair
// and continues.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/wudi/pdfcore/device"
	"github.com/wudi/pdfcore/pdferr"
	"github.com/wudi/pdfcore/recovery"
)

// TokenType identifies the kind of a scanned token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenName
	TokenString
	TokenBool
	TokenNull
	TokenArrayStart
	TokenArrayEnd
	TokenDictStart
	TokenDictEnd
	TokenRef
	TokenKeyword
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenNumber:
		return "number"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenBool:
		return "bool"
	case TokenNull:
		return "null"
	case TokenArrayStart:
		return "["
	case TokenArrayEnd:
		return "]"
	case TokenDictStart:
		return "<<"
	case TokenDictEnd:
		return ">>"
	case TokenRef:
		return "ref"
	case TokenKeyword:
		return "keyword"
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is one lexical unit. Only the fields for its Type are meaningful:
// numbers fill Int/Real/IsInt, names and keywords fill Str, strings fill
// Bytes plus Hex, booleans fill Bool, references fill Num/Gen.
type Token struct {
	Type  TokenType
	Pos   int64
	Str   string
	Bytes []byte
	Hex   bool
	Int   int64
	Real  float64
	IsInt bool
	Bool  bool
	Num   int
	Gen   int
}

// Config bounds the scanner and selects its error policy.
type Config struct {
	MaxNameLength   int
	MaxStringLength int
	Recovery        recovery.Strategy
}

// DefaultConfig returns the limits used when the caller passes a zero Config.
func DefaultConfig() Config {
	return Config{
		MaxNameLength:   4096,
		MaxStringLength: 32 << 20,
		Recovery:        recovery.NewStrictStrategy(),
	}
}

// Scanner tokenizes one device. It is not safe for concurrent use.
type Scanner struct {
	dev     *device.Device
	cfg     Config
	ctx     context.Context
	loc     recovery.Location
	scratch []byte
}

// New builds a Scanner over dev. Zero Config fields fall back to defaults.
func New(dev *device.Device, cfg Config) *Scanner {
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = DefaultConfig().MaxNameLength
	}
	if cfg.MaxStringLength <= 0 {
		cfg.MaxStringLength = DefaultConfig().MaxStringLength
	}
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewStrictStrategy()
	}
	return &Scanner{dev: dev, cfg: cfg, ctx: context.Background(), scratch: make([]byte, 0, 256)}
}

// SetContext installs the context passed to the recovery strategy.
func (s *Scanner) SetContext(ctx context.Context) {
	if ctx != nil {
		s.ctx = ctx
	}
}

// SetRecoveryLocation records which object subsequent errors belong to.
func (s *Scanner) SetRecoveryLocation(loc recovery.Location) { s.loc = loc }

// Device returns the underlying device.
func (s *Scanner) Device() *device.Device { return s.dev }

// Position returns the cursor offset tokens are read from.
func (s *Scanner) Position() int64 { return s.dev.Position() }

// SeekTo repositions the scanner at an absolute offset.
func (s *Scanner) SeekTo(offset int64) error {
	return s.dev.Seek(offset, device.Begin)
}

// IsWhitespace reports whether b is PDF whitespace.
func IsWhitespace(b byte) bool {
	switch b {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

// IsDelimiter reports whether b is a PDF delimiter character.
func IsDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(b byte) bool { return !IsWhitespace(b) && !IsDelimiter(b) }

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func hexVal(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}

func (s *Scanner) recover(err error, component string) recovery.Action {
	loc := s.loc
	loc.ByteOffset = s.dev.Position()
	loc.Component = component
	return s.cfg.Recovery.OnError(s.ctx, err, loc)
}

// SkipWhitespace advances past whitespace and %-comments.
func (s *Scanner) SkipWhitespace() error {
	for {
		b, err := s.dev.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if IsWhitespace(b) {
			continue
		}
		if b == '%' {
			for {
				c, err := s.dev.ReadByte()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if c == '\r' || c == '\n' {
					break
				}
			}
			continue
		}
		return s.dev.Seek(-1, device.Current)
	}
}

// Next scans the next token. At end of input it returns a TokenEOF token
// together with io.EOF.
func (s *Scanner) Next() (Token, error) {
	if err := s.SkipWhitespace(); err != nil {
		return Token{Type: TokenEOF}, err
	}
	pos := s.dev.Position()
	b, err := s.dev.ReadByte()
	if err == io.EOF {
		return Token{Type: TokenEOF, Pos: pos}, io.EOF
	}
	if err != nil {
		return Token{}, err
	}

	switch {
	case b == '/':
		return s.scanName(pos)
	case b == '(':
		return s.scanLiteralString(pos)
	case b == '<':
		nb, err := s.dev.Peek(1)
		if err == nil && len(nb) == 1 && nb[0] == '<' {
			s.dev.Seek(1, device.Current)
			return Token{Type: TokenDictStart, Pos: pos}, nil
		}
		return s.scanHexString(pos)
	case b == '>':
		nb, err := s.dev.Peek(1)
		if err == nil && len(nb) == 1 && nb[0] == '>' {
			s.dev.Seek(1, device.Current)
			return Token{Type: TokenDictEnd, Pos: pos}, nil
		}
		perr := pdferr.New(pdferr.InvalidDataType, "stray '>' at offset %d", pos)
		if s.recover(perr, "scanner") == recovery.ActionFail {
			return Token{}, perr
		}
		return s.Next()
	case b == '[':
		return Token{Type: TokenArrayStart, Pos: pos}, nil
	case b == ']':
		return Token{Type: TokenArrayEnd, Pos: pos}, nil
	case b == '{' || b == '}':
		perr := pdferr.New(pdferr.InvalidDataType, "unexpected %q at offset %d", b, pos)
		if s.recover(perr, "scanner") == recovery.ActionFail {
			return Token{}, perr
		}
		return s.Next()
	case isDigit(b) || b == '+' || b == '-' || b == '.':
		s.dev.Seek(-1, device.Current)
		return s.scanNumberOrRef(pos)
	default:
		s.dev.Seek(-1, device.Current)
		return s.scanKeyword(pos)
	}
}

// Peek scans one token and restores the cursor to where it was.
func (s *Scanner) Peek() (Token, error) {
	save := s.dev.Position()
	tok, err := s.Next()
	s.dev.Seek(save, device.Begin)
	return tok, err
}

func (s *Scanner) scanName(pos int64) (Token, error) {
	s.scratch = s.scratch[:0]
	for {
		b, err := s.dev.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Token{}, err
		}
		if !isRegular(b) {
			s.dev.Seek(-1, device.Current)
			break
		}
		if b == '#' {
			pair, err := s.dev.Peek(2)
			if err == nil && len(pair) == 2 {
				hi, okHi := hexVal(pair[0])
				lo, okLo := hexVal(pair[1])
				if okHi && okLo {
					s.dev.Seek(2, device.Current)
					s.scratch = append(s.scratch, hi<<4|lo)
					continue
				}
			}
			perr := pdferr.New(pdferr.InvalidName, "bad #-escape in name at offset %d", pos)
			if s.recover(perr, "scanner:name") == recovery.ActionFail {
				return Token{}, perr
			}
			// Lenient: the '#' stays a literal byte.
		}
		s.scratch = append(s.scratch, b)
		if len(s.scratch) > s.cfg.MaxNameLength {
			return Token{}, pdferr.New(pdferr.InvalidName, "name exceeds %d bytes at offset %d", s.cfg.MaxNameLength, pos)
		}
	}
	return Token{Type: TokenName, Pos: pos, Str: string(s.scratch)}, nil
}

func (s *Scanner) scanLiteralString(pos int64) (Token, error) {
	out := make([]byte, 0, 64)
	depth := 1
	for {
		b, err := s.dev.ReadByte()
		if err == io.EOF {
			perr := pdferr.New(pdferr.UnexpectedEOF, "unterminated literal string at offset %d", pos)
			if s.recover(perr, "scanner:string") == recovery.ActionFail {
				return Token{}, perr
			}
			break
		}
		if err != nil {
			return Token{}, err
		}
		switch b {
		case '(':
			depth++
			out = append(out, b)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Pos: pos, Bytes: out}, nil
			}
			out = append(out, b)
		case '\\':
			e, err := s.dev.ReadByte()
			if err != nil {
				perr := pdferr.New(pdferr.UnexpectedEOF, "escape at end of input in string at offset %d", pos)
				if s.recover(perr, "scanner:string") == recovery.ActionFail {
					return Token{}, perr
				}
				return Token{Type: TokenString, Pos: pos, Bytes: out}, nil
			}
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\r':
				// Line continuation; swallow an optional LF.
				if nb, err := s.dev.Peek(1); err == nil && len(nb) == 1 && nb[0] == '\n' {
					s.dev.Seek(1, device.Current)
				}
			case '\n':
				// Line continuation.
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2; i++ {
						nb, err := s.dev.Peek(1)
						if err != nil || len(nb) != 1 || nb[0] < '0' || nb[0] > '7' {
							break
						}
						v = v*8 + int(nb[0]-'0')
						s.dev.Seek(1, device.Current)
					}
					out = append(out, byte(v))
				} else {
					// Unknown escape: the backslash is dropped.
					out = append(out, e)
				}
			}
		case '\r':
			// End-of-line inside a string reads as a single LF.
			if nb, err := s.dev.Peek(1); err == nil && len(nb) == 1 && nb[0] == '\n' {
				s.dev.Seek(1, device.Current)
			}
			out = append(out, '\n')
		default:
			out = append(out, b)
		}
		if len(out) > s.cfg.MaxStringLength {
			return Token{}, pdferr.New(pdferr.ValueOutOfRange, "string exceeds %d bytes at offset %d", s.cfg.MaxStringLength, pos)
		}
	}
	return Token{Type: TokenString, Pos: pos, Bytes: out}, nil
}

func (s *Scanner) scanHexString(pos int64) (Token, error) {
	out := make([]byte, 0, 32)
	var hi byte
	haveHi := false
	for {
		b, err := s.dev.ReadByte()
		if err == io.EOF {
			perr := pdferr.New(pdferr.UnexpectedEOF, "unterminated hex string at offset %d", pos)
			if s.recover(perr, "scanner:hex") == recovery.ActionFail {
				return Token{}, perr
			}
			break
		}
		if err != nil {
			return Token{}, err
		}
		if b == '>' {
			break
		}
		if IsWhitespace(b) {
			continue
		}
		v, ok := hexVal(b)
		if !ok {
			perr := pdferr.New(pdferr.InvalidDataType, "non-hex byte %q in hex string at offset %d", b, pos)
			if s.recover(perr, "scanner:hex") == recovery.ActionFail {
				return Token{}, perr
			}
			continue
		}
		if haveHi {
			out = append(out, hi<<4|v)
			haveHi = false
		} else {
			hi = v
			haveHi = true
		}
		if len(out) > s.cfg.MaxStringLength {
			return Token{}, pdferr.New(pdferr.ValueOutOfRange, "hex string exceeds %d bytes at offset %d", s.cfg.MaxStringLength, pos)
		}
	}
	if haveHi {
		// Odd digit count pads with zero.
		out = append(out, hi<<4)
	}
	return Token{Type: TokenString, Pos: pos, Bytes: out, Hex: true}, nil
}

// scanNumberOrRef reads a number, then looks ahead for "G R" to collapse an
// indirect reference into a single token. The cursor is restored when the
// lookahead does not match.
func (s *Scanner) scanNumberOrRef(pos int64) (Token, error) {
	tok, err := s.scanNumber(pos)
	if err != nil {
		return Token{}, err
	}
	if !tok.IsInt || tok.Int < 0 {
		return tok, nil
	}
	save := s.dev.Position()
	if err := s.SkipWhitespace(); err != nil {
		return tok, nil
	}
	genPos := s.dev.Position()
	nb, err := s.dev.Peek(1)
	if err != nil || len(nb) != 1 || !isDigit(nb[0]) {
		s.dev.Seek(save, device.Begin)
		return tok, nil
	}
	gen, err := s.scanNumber(genPos)
	if err != nil || !gen.IsInt || gen.Int < 0 {
		s.dev.Seek(save, device.Begin)
		return tok, nil
	}
	if err := s.SkipWhitespace(); err != nil {
		s.dev.Seek(save, device.Begin)
		return tok, nil
	}
	rb, err := s.dev.Peek(2)
	if err != nil || len(rb) < 1 || rb[0] != 'R' {
		s.dev.Seek(save, device.Begin)
		return tok, nil
	}
	if len(rb) == 2 && isRegular(rb[1]) {
		// "R" starts a longer keyword here, not a reference closer.
		s.dev.Seek(save, device.Begin)
		return tok, nil
	}
	s.dev.Seek(1, device.Current)
	return Token{Type: TokenRef, Pos: pos, Num: int(tok.Int), Gen: int(gen.Int)}, nil
}

// ScanNumber reads a single numeric token without reference lookahead.
func (s *Scanner) ScanNumber() (Token, error) {
	if err := s.SkipWhitespace(); err != nil {
		return Token{}, err
	}
	return s.scanNumber(s.dev.Position())
}

func (s *Scanner) scanNumber(pos int64) (Token, error) {
	s.scratch = s.scratch[:0]
	seenDot := false
	seenDigit := false
	for {
		b, err := s.dev.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Token{}, err
		}
		switch {
		case isDigit(b):
			seenDigit = true
			s.scratch = append(s.scratch, b)
		case b == '+' || b == '-':
			if len(s.scratch) != 0 {
				s.dev.Seek(-1, device.Current)
				return s.finishNumber(pos, seenDot, seenDigit)
			}
			s.scratch = append(s.scratch, b)
		case b == '.':
			if seenDot {
				perr := pdferr.New(pdferr.InvalidNumber, "second '.' in number at offset %d", pos)
				if s.recover(perr, "scanner:number") == recovery.ActionFail {
					return Token{}, perr
				}
				// Lenient: extra dots are dropped.
				continue
			}
			seenDot = true
			s.scratch = append(s.scratch, b)
		default:
			s.dev.Seek(-1, device.Current)
			return s.finishNumber(pos, seenDot, seenDigit)
		}
	}
	return s.finishNumber(pos, seenDot, seenDigit)
}

func (s *Scanner) finishNumber(pos int64, seenDot, seenDigit bool) (Token, error) {
	if !seenDigit {
		if seenDot {
			// "." and "-." parse as zero.
			return Token{Type: TokenNumber, Pos: pos, Real: 0, IsInt: false}, nil
		}
		return Token{}, pdferr.New(pdferr.InvalidNumber, "no digits in number at offset %d", pos)
	}
	if !seenDot {
		n, err := parseInt(s.scratch)
		if err != nil {
			return Token{}, pdferr.New(pdferr.InvalidNumber, "integer %q at offset %d", s.scratch, pos)
		}
		return Token{Type: TokenNumber, Pos: pos, Int: n, IsInt: true}, nil
	}
	f, err := parseFloat(s.scratch)
	if err != nil {
		return Token{}, pdferr.New(pdferr.InvalidNumber, "real %q at offset %d", s.scratch, pos)
	}
	return Token{Type: TokenNumber, Pos: pos, Real: f, IsInt: false}, nil
}

func (s *Scanner) scanKeyword(pos int64) (Token, error) {
	s.scratch = s.scratch[:0]
	for {
		b, err := s.dev.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Token{}, err
		}
		if !isRegular(b) {
			s.dev.Seek(-1, device.Current)
			break
		}
		s.scratch = append(s.scratch, b)
		if len(s.scratch) > 32 {
			return Token{}, pdferr.New(pdferr.InvalidDataType, "keyword exceeds 32 bytes at offset %d", pos)
		}
	}
	if len(s.scratch) == 0 {
		b, _ := s.dev.ReadByte()
		perr := pdferr.New(pdferr.InvalidDataType, "unexpected byte %q at offset %d", b, pos)
		if s.recover(perr, "scanner") == recovery.ActionFail {
			return Token{}, perr
		}
		return s.Next()
	}
	kw := string(s.scratch)
	switch kw {
	case "true":
		return Token{Type: TokenBool, Pos: pos, Bool: true}, nil
	case "false":
		return Token{Type: TokenBool, Pos: pos, Bool: false}, nil
	case "null":
		return Token{Type: TokenNull, Pos: pos}, nil
	}
	return Token{Type: TokenKeyword, Pos: pos, Str: kw}, nil
}

// ExpectKeyword consumes the next token and checks it is the given keyword.
func (s *Scanner) ExpectKeyword(kw string) error {
	tok, err := s.Next()
	if err != nil {
		return err
	}
	if tok.Type != TokenKeyword || tok.Str != kw {
		return pdferr.New(pdferr.InvalidObject, "expected %q at offset %d, got %s %q", kw, tok.Pos, tok.Type, tok.Str)
	}
	return nil
}

// ScanStreamBody is called immediately after the "stream" keyword token. It
// consumes the required end-of-line, then determines the body range. A
// non-negative length hint is verified against a following "endstream"; when
// the hint is missing or does not line up, the body is recovered by scanning
// forward for the next "endstream" keyword.
//
// The returned range is [begin, begin+length) into the device. The cursor is
// left after the "endstream" keyword.
func (s *Scanner) ScanStreamBody(lengthHint int64) (begin, length int64, err error) {
	b, err := s.dev.ReadByte()
	if err != nil {
		return 0, 0, pdferr.New(pdferr.UnexpectedEOF, "input ends after stream keyword")
	}
	switch b {
	case '\r':
		nb, err := s.dev.Peek(1)
		if err == nil && len(nb) == 1 && nb[0] == '\n' {
			s.dev.Seek(1, device.Current)
		} else {
			perr := pdferr.New(pdferr.InvalidObject, "stream keyword followed by lone CR at offset %d", s.dev.Position())
			if s.recover(perr, "scanner:stream") == recovery.ActionFail {
				return 0, 0, perr
			}
		}
	case '\n':
	default:
		perr := pdferr.New(pdferr.InvalidObject, "stream keyword not followed by EOL at offset %d", s.dev.Position())
		if s.recover(perr, "scanner:stream") == recovery.ActionFail {
			return 0, 0, perr
		}
		s.dev.Seek(-1, device.Current)
	}
	begin = s.dev.Position()

	if lengthHint >= 0 && begin+lengthHint <= s.dev.Size() {
		if err := s.dev.Seek(begin+lengthHint, device.Begin); err == nil {
			save := s.dev.Position()
			if err := s.SkipWhitespace(); err == nil {
				if kw, err := s.dev.Peek(9); err == nil && bytes.HasPrefix(kw, []byte("endstream")) {
					s.dev.Seek(int64(len("endstream")), device.Current)
					return begin, lengthHint, nil
				}
			}
			s.dev.Seek(save, device.Begin)
		}
		perr := pdferr.New(pdferr.InvalidObject, "/Length %d does not reach endstream at offset %d", lengthHint, begin)
		if s.recover(perr, "scanner:stream") == recovery.ActionFail {
			return 0, 0, perr
		}
	}

	s.dev.Seek(begin, device.Begin)
	end, err := s.findEndstream(begin)
	if err != nil {
		return 0, 0, err
	}
	return begin, end - begin, nil
}

// findEndstream scans forward from begin for the endstream keyword and
// returns the offset where the body ends, excluding the EOL that precedes
// the keyword when one is present.
func (s *Scanner) findEndstream(begin int64) (int64, error) {
	const chunk = 4096
	needle := []byte("endstream")
	buf := make([]byte, chunk+len(needle))
	off := begin
	for off < s.dev.Size() {
		n, err := s.dev.ReadAt(buf, off)
		if n == 0 {
			break
		}
		if i := bytes.Index(buf[:n], needle); i >= 0 {
			end := off + int64(i)
			end = trimStreamEOL(s.dev, begin, end)
			s.dev.Seek(off+int64(i)+int64(len(needle)), device.Begin)
			return end, nil
		}
		adv := int64(n) - int64(len(needle))
		if adv <= 0 {
			break
		}
		off += adv
		if err == io.EOF {
			break
		}
	}
	return 0, pdferr.New(pdferr.UnexpectedEOF, "endstream not found after offset %d", begin)
}

func trimStreamEOL(dev *device.Device, begin, end int64) int64 {
	var tail [2]byte
	if end-begin >= 2 {
		if _, err := dev.ReadAt(tail[:], end-2); err == nil && tail[0] == '\r' && tail[1] == '\n' {
			return end - 2
		}
	}
	if end-begin >= 1 {
		if _, err := dev.ReadAt(tail[:1], end-1); err == nil && (tail[0] == '\n' || tail[0] == '\r') {
			return end - 1
		}
	}
	return end
}

func parseInt(b []byte) (int64, error) {
	neg := false
	i := 0
	if len(b) > 0 && (b[0] == '+' || b[0] == '-') {
		neg = b[0] == '-'
		i = 1
	}
	if i == len(b) {
		return 0, fmt.Errorf("empty integer")
	}
	var n int64
	for ; i < len(b); i++ {
		d := int64(b[i] - '0')
		if n > (1<<62)/10 {
			return 0, fmt.Errorf("integer overflow")
		}
		n = n*10 + d
	}
	if neg {
		n = -n
	}
	return n, nil
}

func parseFloat(b []byte) (float64, error) {
	neg := false
	i := 0
	if len(b) > 0 && (b[0] == '+' || b[0] == '-') {
		neg = b[0] == '-'
		i = 1
	}
	var whole, frac float64
	scale := 1.0
	seenDot := false
	for ; i < len(b); i++ {
		c := b[i]
		if c == '.' {
			seenDot = true
			continue
		}
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("bad real")
		}
		if seenDot {
			scale /= 10
			frac += float64(c-'0') * scale
		} else {
			whole = whole*10 + float64(c-'0')
		}
	}
	f := whole + frac
	if neg {
		f = -f
	}
	return f, nil
}
