package xref

import (
	"errors"
	"io"

	"github.com/wudi/pdfcore/device"
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/observability"
	"github.com/wudi/pdfcore/pdferr"
	"github.com/wudi/pdfcore/scanner"
)

// repairInto rebuilds the table by scanning the whole file for object
// headers and trailer dictionaries. A later definition of the same object
// overwrites an earlier one, so the newest copy in the file wins. Entries
// the broken chain already produced are replaced as well.
func (r *Resolver) repairInto(st *resolveState) error {
	if err := st.sc.SeekTo(0); err != nil {
		return err
	}
	found := 0
	var lastTrailer *raw.DictObj

	for {
		if err := st.ctx.Err(); err != nil {
			return err
		}
		tok, err := st.sc.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Damaged bytes between objects are exactly what brought us
			// here. Step over one byte and keep scanning.
			st.dev.Seek(1, device.Current)
			continue
		}
		switch {
		case tok.Type == scanner.TokenEOF:
			goto done
		case tok.Type == scanner.TokenNumber && tok.IsInt && tok.Int >= 0:
			genTok, err := st.sc.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					goto done
				}
				continue
			}
			if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
				// genTok itself may begin the next object header.
				st.sc.SeekTo(genTok.Pos)
				continue
			}
			kwTok, err := st.sc.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					goto done
				}
				continue
			}
			if kwTok.Type == scanner.TokenKeyword && kwTok.Str == "obj" {
				num := int(tok.Int)
				if num > r.cfg.MaxObjectCount {
					r.cfg.Logger.Warn("rebuilt object number beyond cap, skipped",
						observability.Int("object", num))
					continue
				}
				st.entries.Enlarge(num + 1)
				*st.entries.At(num) = Entry{
					Type:       EntryInUse,
					Offset:     tok.Pos,
					Generation: int(genTok.Int),
					Parsed:     true,
				}
				found++
				r.skipObjectBody(st)
				continue
			}
			st.sc.SeekTo(genTok.Pos)
		case tok.Type == scanner.TokenKeyword && tok.Str == "trailer":
			resume := st.sc.Position()
			tr := raw.NewTokenReader(st.sc)
			obj, err := raw.ParseValue(tr, 0)
			if err != nil {
				st.sc.SeekTo(resume)
				continue
			}
			if dict, ok := obj.(*raw.DictObj); ok {
				lastTrailer = dict
			}
		}
	}
done:
	if found == 0 {
		return pdferr.New(pdferr.InvalidXRef, "rebuild found no objects")
	}
	r.cfg.Logger.Info("cross-reference table rebuilt",
		observability.Int("objects", found))

	if lastTrailer != nil {
		if st.trailer == nil {
			st.trailer = lastTrailer
		} else {
			r.mergeTrailer(st, lastTrailer)
		}
	}
	if st.trailer == nil {
		st.trailer = raw.Dict()
	}
	if _, ok := st.trailer.GetKey("Size"); !ok {
		st.trailer.Set(raw.NameObj{Val: "Size"}, raw.NumberInt(int64(st.entries.Len())))
	}
	return nil
}

// skipObjectBody advances past the body of a rebuilt object so stream bytes
// are never tokenized. It stops after endobj, before the next object header,
// or at end of input.
func (r *Resolver) skipObjectBody(st *resolveState) {
	for {
		save := st.sc.Position()
		tok, err := st.sc.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			st.dev.Seek(1, device.Current)
			continue
		}
		switch {
		case tok.Type == scanner.TokenEOF:
			return
		case tok.Type == scanner.TokenKeyword && tok.Str == "endobj":
			return
		case tok.Type == scanner.TokenKeyword && tok.Str == "stream":
			if _, _, err := st.sc.ScanStreamBody(-1); err != nil {
				return
			}
		case tok.Type == scanner.TokenKeyword && tok.Str == "trailer":
			st.sc.SeekTo(save)
			return
		case tok.Type == scanner.TokenNumber && tok.IsInt:
			// Possibly the next object header when endobj was dropped.
			genTok, err := st.sc.Next()
			if err == nil && genTok.Type == scanner.TokenNumber && genTok.IsInt {
				kwTok, err := st.sc.Next()
				if err == nil && kwTok.Type == scanner.TokenKeyword && kwTok.Str == "obj" {
					st.sc.SeekTo(save)
					return
				}
			}
			st.sc.SeekTo(save)
			st.sc.Next()
		}
	}
}
