package xref

import (
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/observability"
	"github.com/wudi/pdfcore/pdferr"
	"github.com/wudi/pdfcore/scanner"
)

// readXRefStreamAt parses a cross-reference stream object at offset: the
// object header, the stream dictionary with its W widths and Index ranges,
// then the decoded body as fixed-width big-endian records.
func (r *Resolver) readXRefStreamAt(st *resolveState, offset int64) error {
	if err := st.sc.SeekTo(offset); err != nil {
		return err
	}
	numTok, err := st.sc.ScanNumber()
	if err != nil {
		return pdferr.Wrap(err, pdferr.InvalidXRef, "xref stream object number at offset %d", offset)
	}
	genTok, err := st.sc.ScanNumber()
	if err != nil {
		return pdferr.Wrap(err, pdferr.InvalidXRef, "xref stream generation at offset %d", offset)
	}
	if !numTok.IsInt || !genTok.IsInt {
		return pdferr.New(pdferr.InvalidXRef, "non-integer object header at offset %d", offset)
	}
	if err := st.sc.ExpectKeyword("obj"); err != nil {
		return pdferr.Wrap(err, pdferr.InvalidXRef, "xref stream at offset %d", offset)
	}

	tr := raw.NewTokenReader(st.sc)
	obj, err := raw.ParseValue(tr, 0)
	if err != nil {
		return pdferr.Wrap(err, pdferr.InvalidXRef, "xref stream dictionary at offset %d", offset)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return pdferr.New(pdferr.InvalidXRef, "xref stream object is %s, not a dictionary", obj.Type())
	}

	if typ, _ := dict.GetName("Type"); typ != "XRef" {
		perr := pdferr.New(pdferr.InvalidXRef, "stream at offset %d has /Type %q, want XRef", offset, typ)
		if r.cfg.Strict {
			return perr
		}
		r.cfg.Logger.Warn("xref stream missing /Type /XRef",
			observability.Int64("offset", offset))
	}

	stmTok, err := tr.Next()
	if err != nil {
		return pdferr.Wrap(err, pdferr.InvalidXRef, "after xref stream dictionary")
	}
	if stmTok.Type != scanner.TokenKeyword || stmTok.Str != "stream" {
		return pdferr.New(pdferr.InvalidXRef, "expected stream keyword at offset %d", stmTok.Pos)
	}

	// The length must be direct here. No table exists yet to resolve a
	// reference through.
	lengthHint := int64(-1)
	if length, ok := dict.GetInt("Length"); ok {
		lengthHint = length
	} else if _, isRef := dict.GetKey("Length"); isRef && r.cfg.Strict {
		return pdferr.New(pdferr.InvalidXRef, "xref stream /Length is not a direct integer")
	}
	begin, length, err := st.sc.ScanStreamBody(lengthHint)
	if err != nil {
		return pdferr.Wrap(err, pdferr.InvalidXRef, "xref stream body")
	}
	stream := raw.NewStreamRange(dict, st.dev, begin, length)
	data, err := r.cfg.Filters.DecodeStream(st.ctx, stream)
	if err != nil {
		return pdferr.Wrap(err, pdferr.InvalidXRef, "decoding xref stream at offset %d", offset)
	}

	widths, err := streamWidths(dict)
	if err != nil {
		return err
	}
	size, ok := dict.GetInt("Size")
	if !ok || size < 0 {
		return pdferr.New(pdferr.InvalidXRef, "xref stream missing /Size")
	}
	index, err := streamIndex(dict, size)
	if err != nil {
		return err
	}

	if err := r.applyStreamEntries(st, data, widths, index); err != nil {
		return err
	}
	st.result.HasXRefStreams = true
	r.mergeTrailer(st, dict)

	// Stream trailers carry no /XRefStm, only /Prev.
	if prev, hasPrev := dict.GetInt("Prev"); hasPrev {
		st.result.IncrementalUpdates++
		if st.follow {
			if err := r.readXRefContents(st, prev); err != nil {
				return pdferr.Push(err, "xref", "/Prev at %d", prev)
			}
		}
	}
	return nil
}

// streamWidths reads the three-element W array. A zero first width means
// every record is an in-use entry.
func streamWidths(dict *raw.DictObj) ([3]int, error) {
	var widths [3]int
	arr, ok := dict.GetArray("W")
	if !ok || arr.Len() != 3 {
		return widths, pdferr.New(pdferr.InvalidXRef, "xref stream /W is not a three-element array")
	}
	for i := 0; i < 3; i++ {
		item, _ := arr.Get(i)
		num, ok := item.(raw.Number)
		if !ok || !num.IsInteger() || num.Int() < 0 || num.Int() > 8 {
			return widths, pdferr.New(pdferr.InvalidXRef, "xref stream /W[%d] is not an integer in [0,8]", i)
		}
		widths[i] = int(num.Int())
	}
	if widths[1] == 0 {
		return widths, pdferr.New(pdferr.InvalidXRef, "xref stream /W[1] must be positive")
	}
	return widths, nil
}

// streamIndex reads the Index array of first/count pairs, defaulting to one
// range covering every object.
func streamIndex(dict *raw.DictObj, size int64) ([][2]int, error) {
	arr, ok := dict.GetArray("Index")
	if !ok {
		return [][2]int{{0, int(size)}}, nil
	}
	if arr.Len()%2 != 0 {
		return nil, pdferr.New(pdferr.InvalidXRef, "xref stream /Index has odd length %d", arr.Len())
	}
	pairs := make([][2]int, 0, arr.Len()/2)
	for i := 0; i < arr.Len(); i += 2 {
		a, _ := arr.Get(i)
		b, _ := arr.Get(i + 1)
		first, ok1 := a.(raw.Number)
		count, ok2 := b.(raw.Number)
		if !ok1 || !ok2 || !first.IsInteger() || !count.IsInteger() || first.Int() < 0 || count.Int() < 0 {
			return nil, pdferr.New(pdferr.InvalidXRef, "xref stream /Index pair %d is not two non-negative integers", i/2)
		}
		pairs = append(pairs, [2]int{int(first.Int()), int(count.Int())})
	}
	return pairs, nil
}

// applyStreamEntries walks the decoded body and writes one table slot per
// record. Field one selects the entry type, defaulting to in-use when its
// width is zero.
func (r *Resolver) applyStreamEntries(st *resolveState, data []byte, widths [3]int, index [][2]int) error {
	recLen := widths[0] + widths[1] + widths[2]
	pos := 0
	for _, rng := range index {
		first, count := rng[0], rng[1]
		if first+count > r.cfg.MaxObjectCount {
			return pdferr.New(pdferr.ValueOutOfRange, "index range %d+%d exceeds object cap %d", first, count, r.cfg.MaxObjectCount)
		}
		for i := 0; i < count; i++ {
			if pos+recLen > len(data) {
				perr := pdferr.New(pdferr.InvalidXRef, "xref stream body ends at record %d of range %d+%d", i, first, count)
				if r.cfg.Strict {
					return perr
				}
				r.cfg.Logger.Warn("xref stream body truncated",
					observability.Int("object", first+i))
				return nil
			}
			typ := int64(1)
			if widths[0] > 0 {
				typ = beInt(data[pos : pos+widths[0]])
			}
			f2 := beInt(data[pos+widths[0] : pos+widths[0]+widths[1]])
			f3 := beInt(data[pos+widths[0]+widths[1] : pos+recLen])
			pos += recLen

			num := first + i
			switch typ {
			case 0:
				st.entries.SetIfUnparsed(num, Entry{Type: EntryFree, Generation: int(f3)})
			case 1:
				st.entries.SetIfUnparsed(num, Entry{
					Type:       EntryInUse,
					Offset:     f2 + st.result.MagicOffset,
					Generation: int(f3),
				})
			case 2:
				st.entries.SetIfUnparsed(num, Entry{
					Type:          EntryCompressed,
					StreamNum:     int(f2),
					IndexInStream: int(f3),
				})
			default:
				perr := pdferr.New(pdferr.InvalidXRef, "object %d has entry type %d", num, typ)
				if r.cfg.Strict {
					return perr
				}
				r.cfg.Logger.Debug("skipping unknown xref stream entry type",
					observability.Int("object", num),
					observability.Int("type", int(typ)))
			}
		}
	}
	return nil
}

func beInt(b []byte) int64 {
	var n int64
	for _, c := range b {
		n = n<<8 | int64(c)
	}
	return n
}
