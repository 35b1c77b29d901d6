package xref

import (
	"bytes"
	"context"
	"io"

	"github.com/wudi/pdfcore/device"
	"github.com/wudi/pdfcore/filters"
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/observability"
	"github.com/wudi/pdfcore/pdferr"
	"github.com/wudi/pdfcore/recovery"
	"github.com/wudi/pdfcore/scanner"
)

// searchWindow is how far back from end of file the startxref keyword is
// looked for. The fallback scan for a misplaced xref section uses four times
// this window.
const searchWindow = 512

// maxSubsections caps the subsection count of one classical section.
const maxSubsections = 512

// ResolverConfig controls cross-reference resolution.
type ResolverConfig struct {
	// Strict fails on any structural irregularity instead of repairing it.
	Strict bool

	Recovery recovery.Strategy
	Logger   observability.Logger

	// Filters decodes cross-reference stream bodies.
	Filters *filters.Pipeline

	// MaxXRefDepth bounds the Prev chain length.
	MaxXRefDepth int

	// MaxObjectCount bounds the object numbers the table will hold.
	MaxObjectCount int

	// EnforceTrailerSize drops entries beyond the trailer /Size instead of
	// keeping them with a warning.
	EnforceTrailerSize bool

	// HybridXRefStmWins reads a hybrid file's /XRefStm before following
	// /Prev. Entries already written by the classical section still win.
	HybridXRefStmWins bool
}

// DefaultResolverConfig returns the lenient defaults.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Recovery:          recovery.NewLenientStrategy(),
		Logger:            observability.NopLogger{},
		Filters:           filters.NewDefaultPipeline(filters.Limits{}),
		MaxXRefDepth:      50,
		MaxObjectCount:    (1 << 23) - 1,
		HybridXRefStmWins: true,
	}
}

// Result is the resolved cross-reference state of a document.
type Result struct {
	Entries *Entries
	Trailer *raw.DictObj

	// Version is the header version, e.g. "1.7". MagicOffset is the byte
	// position of the %PDF- magic; offsets written in the file are relative
	// to it, and Entries holds them already shifted to absolute positions.
	Version     string
	MagicOffset int64

	// StartXRef is the offset announced by the last startxref keyword.
	StartXRef int64

	HasXRefStreams     bool
	IncrementalUpdates int
}

// Resolver walks a document's cross-reference chain.
type Resolver struct {
	cfg ResolverConfig
}

// NewResolver builds a resolver. Zero numeric fields and nil interfaces fall
// back to defaults; the boolean flags are used as given.
func NewResolver(cfg ResolverConfig) *Resolver {
	def := DefaultResolverConfig()
	if cfg.Recovery == nil {
		if cfg.Strict {
			cfg.Recovery = recovery.NewStrictStrategy()
		} else {
			cfg.Recovery = def.Recovery
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Filters == nil {
		cfg.Filters = def.Filters
	}
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = def.MaxXRefDepth
	}
	if cfg.MaxObjectCount <= 0 {
		cfg.MaxObjectCount = def.MaxObjectCount
	}
	return &Resolver{cfg: cfg}
}

type resolveState struct {
	ctx     context.Context
	dev     *device.Device
	sc      *scanner.Scanner
	entries *Entries
	trailer *raw.DictObj
	visited map[int64]bool
	result  *Result
	depth   int
	follow  bool
}

// Resolve locates the trailer and merges every revision's cross-reference
// section into one table.
func (r *Resolver) Resolve(ctx context.Context, dev *device.Device) (*Result, error) {
	return r.resolve(ctx, dev, true)
}

func (r *Resolver) resolve(ctx context.Context, dev *device.Device, followPrev bool) (*Result, error) {
	res := &Result{Entries: NewEntries(0)}
	st := &resolveState{
		ctx:     ctx,
		dev:     dev,
		sc:      scanner.New(dev, scanner.Config{Recovery: r.cfg.Recovery}),
		entries: res.Entries,
		visited: make(map[int64]bool),
		result:  res,
		follow:  followPrev,
	}
	st.sc.SetContext(ctx)

	if err := r.readHeader(st); err != nil {
		return nil, err
	}
	if err := r.checkEOF(st); err != nil {
		return nil, err
	}
	start, err := r.findStartXRef(st)
	if err != nil {
		if r.cfg.Strict {
			return nil, err
		}
		r.cfg.Logger.Warn("startxref not found, rebuilding table",
			observability.Error("error", err))
		if err := r.repairInto(st); err != nil {
			return nil, err
		}
		return r.finish(st)
	}
	res.StartXRef = start

	if err := r.readXRefContents(st, start); err != nil {
		if r.cfg.Strict {
			return nil, err
		}
		r.cfg.Logger.Warn("cross-reference chain unreadable, rebuilding table",
			observability.Error("error", err))
		if rerr := r.repairInto(st); rerr != nil {
			return nil, err
		}
	}
	return r.finish(st)
}

func (r *Resolver) finish(st *resolveState) (*Result, error) {
	res := st.result
	res.Trailer = st.trailer
	if res.Trailer == nil {
		return nil, pdferr.New(pdferr.InvalidTrailer, "no trailer found")
	}
	if size, ok := res.Trailer.GetInt("Size"); ok && int(size) < res.Entries.Len() {
		r.cfg.Logger.Warn("entries beyond trailer /Size",
			observability.Int64("size", size),
			observability.Int("entries", res.Entries.Len()))
		if r.cfg.EnforceTrailerSize {
			trimmed := NewEntries(int(size))
			for i := 0; i < int(size); i++ {
				if e := res.Entries.At(i); e != nil {
					*trimmed.At(i) = *e
				}
			}
			res.Entries = trimmed
		}
	}
	return res, nil
}

// readHeader locates the %PDF- magic in the first kilobyte. Offsets in the
// file are relative to it when leading garbage precedes the header.
func (r *Resolver) readHeader(st *resolveState) error {
	n := int64(1024)
	if n > st.dev.Size() {
		n = st.dev.Size()
	}
	head := make([]byte, n)
	if n > 0 {
		if _, err := st.dev.ReadAt(head, 0); err != nil && err != io.EOF {
			return err
		}
	}
	i := bytes.Index(head, []byte("%PDF-"))
	if i < 0 {
		perr := pdferr.New(pdferr.InvalidPDF, "missing %%PDF- header")
		if r.cfg.Strict {
			return perr
		}
		r.cfg.Logger.Warn("missing header magic")
		return nil
	}
	st.result.MagicOffset = int64(i)
	ver := head[i+5:]
	end := 0
	for end < len(ver) && !scanner.IsWhitespace(ver[end]) {
		end++
	}
	st.result.Version = string(ver[:end])
	return nil
}

// checkEOF verifies the %%EOF marker near the end of the file.
func (r *Resolver) checkEOF(st *resolveState) error {
	size := st.dev.Size()
	n := int64(searchWindow * 2)
	if n > size {
		n = size
	}
	tail := make([]byte, n)
	if n > 0 {
		if _, err := st.dev.ReadAt(tail, size-n); err != nil && err != io.EOF {
			return err
		}
	}
	if bytes.LastIndex(tail, []byte("%%EOF")) < 0 {
		perr := pdferr.New(pdferr.InvalidEOFToken, "missing %%%%EOF marker")
		if r.cfg.Strict {
			return perr
		}
		r.cfg.Logger.Warn("missing %%EOF marker")
	}
	return nil
}

// findStartXRef scans backward from end of file for the startxref keyword
// and parses the offset after it. In lenient mode the historical misspelling
// "startref" is also accepted.
func (r *Resolver) findStartXRef(st *resolveState) (int64, error) {
	pos, kwLen, found := r.findLastKeywordBackward(st.dev, []byte("startxref"))
	if !found && !r.cfg.Strict {
		pos, kwLen, found = r.findLastKeywordBackward(st.dev, []byte("startref"))
		if found {
			r.cfg.Logger.Warn("accepting misspelled startref keyword",
				observability.Int64("offset", pos))
		}
	}
	if !found {
		return 0, pdferr.New(pdferr.InvalidEOFToken, "startxref not found in final %d bytes", searchWindow)
	}
	if err := st.sc.SeekTo(pos + int64(kwLen)); err != nil {
		return 0, err
	}
	tok, err := st.sc.ScanNumber()
	if err != nil {
		return 0, pdferr.Wrap(err, pdferr.InvalidXRef, "offset after startxref")
	}
	if !tok.IsInt || tok.Int < 0 {
		return 0, pdferr.New(pdferr.InvalidXRef, "startxref offset %v not a non-negative integer", tok.Int)
	}
	return tok.Int, nil
}

func (r *Resolver) findLastKeywordBackward(dev *device.Device, kw []byte) (pos int64, kwLen int, found bool) {
	size := dev.Size()
	window := int64(searchWindow)
	if window > size {
		window = size
	}
	buf := make([]byte, window)
	if window > 0 {
		if _, err := dev.ReadAt(buf, size-window); err != nil && err != io.EOF {
			return 0, 0, false
		}
	}
	if i := bytes.LastIndex(buf, kw); i >= 0 {
		return size - window + int64(i), len(kw), true
	}
	return 0, 0, false
}

// readXRefContents reads the section at offset and recursively follows its
// Prev chain, guarding against cycles and unbounded depth.
func (r *Resolver) readXRefContents(st *resolveState, offset int64) error {
	st.depth++
	defer func() { st.depth-- }()
	if st.depth > r.cfg.MaxXRefDepth {
		return pdferr.New(pdferr.InvalidXRef, "cross-reference chain deeper than %d", r.cfg.MaxXRefDepth)
	}
	if st.visited[offset] {
		perr := pdferr.New(pdferr.InvalidXRef, "cross-reference cycle at offset %d", offset)
		if r.cfg.Strict {
			return perr
		}
		r.cfg.Logger.Warn("cross-reference cycle, chain truncated",
			observability.Int64("offset", offset))
		return nil
	}
	st.visited[offset] = true

	actual := offset + st.result.MagicOffset
	if actual < 0 || actual >= st.dev.Size() {
		fixed, err := r.fallbackFindXRef(st)
		if err != nil {
			return pdferr.Wrap(err, pdferr.InvalidXRef, "offset %d beyond file size %d", offset, st.dev.Size())
		}
		r.cfg.Logger.Warn("xref offset out of range, recovered by scan",
			observability.Int64("bad", offset),
			observability.Int64("recovered", fixed))
		actual = fixed
	}

	if err := st.sc.SeekTo(actual); err != nil {
		return err
	}
	tok, err := st.sc.Next()
	if err != nil {
		return pdferr.Wrap(err, pdferr.InvalidXRef, "at offset %d", actual)
	}
	switch {
	case tok.Type == scanner.TokenKeyword && tok.Str == "xref":
		return r.readClassicalSection(st)
	case tok.Type == scanner.TokenNumber && tok.IsInt:
		return r.readXRefStreamAt(st, actual)
	}
	return pdferr.New(pdferr.InvalidXRef, "neither xref keyword nor stream object at offset %d", actual)
}

// fallbackFindXRef handles a startxref offset pointing beyond the file:
// re-find the startxref keyword, then backward-scan an enlarged window for
// the xref section itself. Strict mode does not repair.
func (r *Resolver) fallbackFindXRef(st *resolveState) (int64, error) {
	if r.cfg.Strict {
		return 0, pdferr.New(pdferr.InvalidXRef, "offset out of range")
	}
	size := st.dev.Size()
	window := int64(searchWindow * 4)
	if window > size {
		window = size
	}
	buf := make([]byte, window)
	if window > 0 {
		if _, err := st.dev.ReadAt(buf, size-window); err != nil && err != io.EOF {
			return 0, err
		}
	}
	if i := bytes.LastIndex(buf, []byte("xref")); i >= 0 {
		// "startxref" also contains "xref"; step over it.
		pos := size - window + int64(i)
		if i >= 5 && bytes.Equal(buf[i-5:i+4], []byte("startxref")) {
			if j := bytes.LastIndex(buf[:i-5], []byte("xref")); j >= 0 {
				return size - window + int64(j), nil
			}
			return 0, pdferr.New(pdferr.InvalidXRef, "no xref section in final %d bytes", window)
		}
		return pos, nil
	}
	return 0, pdferr.New(pdferr.InvalidXRef, "no xref section in final %d bytes", window)
}

// readClassicalSection parses subsections of 20-byte entries, then the
// trailer dictionary, a hybrid /XRefStm if present, and the /Prev chain.
func (r *Resolver) readClassicalSection(st *resolveState) error {
	subsections := 0
	for {
		tok, err := st.sc.Peek()
		if err != nil {
			return pdferr.Wrap(err, pdferr.InvalidXRef, "inside xref section")
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			st.sc.Next()
			break
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return pdferr.New(pdferr.InvalidXRef, "expected subsection header at offset %d", tok.Pos)
		}
		subsections++
		if subsections > maxSubsections {
			return pdferr.New(pdferr.InvalidEOFToken, "more than %d xref subsections", maxSubsections)
		}
		if err := r.readSubsection(st); err != nil {
			return err
		}
	}
	return r.readTrailer(st)
}

func (r *Resolver) readSubsection(st *resolveState) error {
	startTok, err := st.sc.ScanNumber()
	if err != nil {
		return err
	}
	countTok, err := st.sc.ScanNumber()
	if err != nil {
		return err
	}
	if !startTok.IsInt || !countTok.IsInt || startTok.Int < 0 || countTok.Int < 0 {
		return pdferr.New(pdferr.InvalidXRef, "bad subsection header at offset %d", startTok.Pos)
	}
	first, count := int(startTok.Int), int(countTok.Int)
	if first+count > r.cfg.MaxObjectCount {
		return pdferr.New(pdferr.ValueOutOfRange, "subsection %d+%d exceeds object cap %d", first, count, r.cfg.MaxObjectCount)
	}

	// Entries start on the line after the header.
	if err := skipEntryLead(st.dev); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		num := first + i
		off, gen, typ, err := r.readTableEntry(st)
		if err != nil {
			return pdferr.Push(err, "xref", "entry %d", num)
		}
		switch typ {
		case 'n':
			if off == 0 && gen == 0 {
				if r.cfg.Strict {
					return pdferr.New(pdferr.InvalidXRef, "in-use entry %d with zero offset", num)
				}
				r.cfg.Logger.Debug("in-use entry with zero offset treated as free",
					observability.Int("object", num))
				st.entries.SetIfUnparsed(num, Entry{Type: EntryFree, Generation: gen})
				continue
			}
			st.entries.SetIfUnparsed(num, Entry{
				Type:       EntryInUse,
				Offset:     off + st.result.MagicOffset,
				Generation: gen,
			})
		case 'f':
			st.entries.SetIfUnparsed(num, Entry{Type: EntryFree, Generation: gen})
		default:
			return pdferr.New(pdferr.InvalidXRef, "entry %d has type %q", num, typ)
		}
	}
	return nil
}

// skipEntryLead consumes the end of the subsection header line so the fixed
// 20-byte records start at the cursor.
func skipEntryLead(dev *device.Device) error {
	for {
		b, err := dev.Peek(1)
		if err != nil || len(b) != 1 {
			return pdferr.New(pdferr.UnexpectedEOF, "input ends before xref entries")
		}
		if b[0] == ' ' || b[0] == '\r' || b[0] == '\n' {
			dev.Seek(1, device.Current)
			continue
		}
		return nil
	}
}

// readTableEntry reads one 20-byte record "nnnnnnnnnn ggggg t??". Strict
// mode validates the exact layout including the two-byte line end; lenient
// mode re-reads a malformed record with the tokenizer.
func (r *Resolver) readTableEntry(st *resolveState) (off int64, gen int, typ byte, err error) {
	pos := st.dev.Position()
	var rec [20]byte
	n, rerr := st.dev.ReadAt(rec[:], pos)
	if n == 20 && rec[10] == ' ' && rec[16] == ' ' && validEntryEOL(rec[18], rec[19]) {
		off, okOff := parseFixedDigits(rec[0:10])
		gen64, okGen := parseFixedDigits(rec[11:16])
		if okOff && okGen && (rec[17] == 'n' || rec[17] == 'f') {
			st.dev.Seek(pos+20, device.Begin)
			return off, int(gen64), rec[17], nil
		}
	}
	perr := pdferr.New(pdferr.InvalidXRef, "malformed 20-byte entry at offset %d", pos)
	if r.cfg.Strict {
		if rerr != nil && n < 20 {
			return 0, 0, 0, pdferr.New(pdferr.UnexpectedEOF, "xref entry truncated at offset %d", pos)
		}
		return 0, 0, 0, perr
	}
	r.cfg.Logger.Debug("re-tokenizing malformed xref entry", observability.Int64("offset", pos))
	st.sc.SeekTo(pos)
	offTok, err := st.sc.ScanNumber()
	if err != nil {
		return 0, 0, 0, perr
	}
	genTok, err := st.sc.ScanNumber()
	if err != nil {
		return 0, 0, 0, perr
	}
	typTok, err := st.sc.Next()
	if err != nil || typTok.Type != scanner.TokenKeyword || (typTok.Str != "n" && typTok.Str != "f") {
		return 0, 0, 0, perr
	}
	return offTok.Int, int(genTok.Int), typTok.Str[0], nil
}

// validEntryEOL accepts the four two-byte line ends the format allows.
func validEntryEOL(e1, e2 byte) bool {
	switch {
	case e1 == '\r' && e2 == '\n':
		return true
	case e1 == '\n' && e2 == '\r':
		return true
	case e1 == ' ' && e2 == '\r':
		return true
	case e1 == ' ' && e2 == '\n':
		return true
	}
	return false
}

func parseFixedDigits(b []byte) (int64, bool) {
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}

// readTrailer parses the dictionary after the trailer keyword, merges it,
// reads a hybrid /XRefStm, and follows /Prev.
func (r *Resolver) readTrailer(st *resolveState) error {
	tr := raw.NewTokenReader(st.sc)
	obj, err := raw.ParseValue(tr, 0)
	if err != nil {
		return pdferr.Wrap(err, pdferr.InvalidTrailer, "trailer dictionary")
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return pdferr.New(pdferr.InvalidTrailer, "trailer is %s, not a dictionary", obj.Type())
	}
	r.mergeTrailer(st, dict)

	xrefStm, hasStm := dict.GetInt("XRefStm")
	prev, hasPrev := dict.GetInt("Prev")

	if hasStm && r.cfg.HybridXRefStmWins {
		if err := r.readXRefContents(st, xrefStm); err != nil {
			return pdferr.Push(err, "xref", "hybrid /XRefStm at %d", xrefStm)
		}
	}
	if hasPrev {
		st.result.IncrementalUpdates++
		if st.follow {
			if err := r.readXRefContents(st, prev); err != nil {
				return pdferr.Push(err, "xref", "/Prev at %d", prev)
			}
		}
	}
	if hasStm && !r.cfg.HybridXRefStmWins {
		if err := r.readXRefContents(st, xrefStm); err != nil {
			return pdferr.Push(err, "xref", "hybrid /XRefStm at %d", xrefStm)
		}
	}
	return nil
}

// mergeTrailer keeps the newest revision's trailer and fills the identity
// keys from older revisions only where absent.
func (r *Resolver) mergeTrailer(st *resolveState, dict *raw.DictObj) {
	if st.trailer == nil {
		clone := raw.Dict()
		for _, key := range dict.Keys() {
			v, _ := dict.Get(key)
			clone.Set(key, v)
		}
		st.trailer = clone
		return
	}
	for _, key := range []string{"Size", "Root", "Encrypt", "Info", "ID"} {
		if _, ok := st.trailer.GetKey(key); ok {
			continue
		}
		if v, ok := dict.GetKey(key); ok {
			st.trailer.Set(raw.NameObj{Val: key}, v)
		}
	}
}

// PreviousRevisionOffset parses the newest cross-reference section without
// following /Prev and reports the end of the previous revision: the lowest
// in-use byte offset the newest section wrote. ok is false for single
// revision documents.
func (r *Resolver) PreviousRevisionOffset(ctx context.Context, dev *device.Device) (offset int64, ok bool, err error) {
	res, err := r.resolve(ctx, dev, false)
	if err != nil {
		return 0, false, err
	}
	if _, hasPrev := res.Trailer.GetInt("Prev"); !hasPrev {
		return 0, false, nil
	}
	min := int64(-1)
	for i := 0; i < res.Entries.Len(); i++ {
		e := res.Entries.At(i)
		if e.Parsed && e.Type == EntryInUse {
			if min < 0 || e.Offset < min {
				min = e.Offset
			}
		}
	}
	if min < 0 {
		return 0, false, nil
	}
	return min, true, nil
}
