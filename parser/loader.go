package parser

import (
	"context"

	"github.com/wudi/pdfcore/device"
	"github.com/wudi/pdfcore/filters"
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/observability"
	"github.com/wudi/pdfcore/pdferr"
	"github.com/wudi/pdfcore/scanner"
	"github.com/wudi/pdfcore/security"
	"github.com/wudi/pdfcore/store"
	"github.com/wudi/pdfcore/xref"
)

// objectLoader reads indirect objects off the device using the resolved
// entry table and fills the store.
type objectLoader struct {
	cfg     Config
	dev     *device.Device
	entries *xref.Entries
	magic   int64
	store   *store.Store
	sec     security.Handler
	encNum  int
	objStms map[int]*objStm

	sc *scanner.Scanner
}

func (ld *objectLoader) scanner() *scanner.Scanner {
	if ld.sc == nil {
		ld.sc = scanner.New(ld.dev, scanner.Config{
			MaxStringLength: int(ld.cfg.Limits.MaxStringLength),
			Recovery:        ld.cfg.Recovery,
		})
	}
	return ld.sc
}

// loadAll walks the entry table: in-use objects first, then the objects
// packed inside object streams, then an eager body pass unless demand
// loading is on.
func (ld *objectLoader) loadAll(ctx context.Context) error {
	var compressed []int
	for num := 0; num < ld.entries.Len(); num++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := ld.entries.At(num)
		switch {
		case !e.Parsed:
			// A slot no revision wrote joins the free list so the
			// allocator can hand the number out again.
			if num != 0 {
				ld.store.AddFree(raw.ObjectRef{Num: num, Gen: 1})
			}
		case e.Type == xref.EntryFree:
			ld.store.AddFree(raw.ObjectRef{Num: num, Gen: e.Generation})
		case e.Type == xref.EntryInUse:
			if num == ld.encNum {
				continue
			}
			ref := raw.ObjectRef{Num: num, Gen: e.Generation}
			val, err := ld.loadObjectAt(ctx, ref, e.Offset)
			if err != nil {
				if ld.cfg.Strict {
					return pdferr.Push(err, "parser", "object %s", ref)
				}
				ld.cfg.Logger.Warn("broken object skipped, slot freed",
					observability.String("ref", ref.String()),
					observability.Error("error", err))
				ld.store.AddFree(raw.ObjectRef{Num: num, Gen: e.Generation + 1})
				continue
			}
			if err := ld.push(ref, val); err != nil {
				return err
			}
		case e.Type == xref.EntryCompressed:
			compressed = append(compressed, num)
		}
	}

	for _, num := range compressed {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := ld.entries.At(num)
		val, err := ld.loadCompressed(ctx, num, e.StreamNum, e.IndexInStream)
		if err != nil {
			if ld.cfg.Strict {
				return pdferr.Push(err, "parser", "object %d in stream %d", num, e.StreamNum)
			}
			ld.cfg.Logger.Warn("broken compressed object skipped",
				observability.Int("object", num),
				observability.Error("error", err))
			ld.store.AddFree(raw.ObjectRef{Num: num, Gen: 1})
			continue
		}
		// Packed objects are never encrypted themselves, only their
		// container body was.
		ld.store.Push(&raw.Indirect{Ref: raw.ObjectRef{Num: num}, Value: val})
	}

	if !ld.cfg.LoadOnDemand {
		if err := ld.materializeStreams(ctx); err != nil {
			return err
		}
	}
	return nil
}

// push stores val under ref, decrypting its strings and stream body first
// when an encryption session is active. Cross-reference streams stay as
// stored, they were written before encryption applies.
func (ld *objectLoader) push(ref raw.ObjectRef, val raw.Object) error {
	if ld.sec.IsEncrypted() && !isXRefStream(val) {
		decrypted, err := ld.decryptValue(ref, val)
		if err != nil {
			return pdferr.Push(err, "parser", "decrypting object %s", ref)
		}
		val = decrypted
	}
	ld.store.Push(&raw.Indirect{Ref: ref, Value: val})
	return nil
}

func isXRefStream(val raw.Object) bool {
	s, ok := val.(*raw.StreamObj)
	if !ok {
		return false
	}
	typ, _ := s.Dict.GetName("Type")
	return typ == "XRef"
}

// loadRef loads a single object by reference without storing it.
func (ld *objectLoader) loadRef(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	e := ld.entries.At(ref.Num)
	if e == nil || !e.Parsed || e.Type != xref.EntryInUse {
		return nil, pdferr.New(pdferr.ObjectNotFound, "no in-use entry for object %s", ref)
	}
	return ld.loadObjectAt(ctx, ref, e.Offset)
}

// loadObjectAt parses "num gen obj <value> [stream ... endstream] endobj" at
// offset. Stream bodies are captured as ranges into the device.
func (ld *objectLoader) loadObjectAt(ctx context.Context, ref raw.ObjectRef, offset int64) (raw.Object, error) {
	sc := ld.scanner()
	sc.SetContext(ctx)
	if err := sc.SeekTo(offset); err != nil {
		return nil, err
	}
	numTok, err := sc.ScanNumber()
	if err != nil {
		return nil, pdferr.Wrap(err, pdferr.InvalidObject, "object header at offset %d", offset)
	}
	genTok, err := sc.ScanNumber()
	if err != nil {
		return nil, pdferr.Wrap(err, pdferr.InvalidObject, "object header at offset %d", offset)
	}
	if err := sc.ExpectKeyword("obj"); err != nil {
		return nil, err
	}
	if !numTok.IsInt || int(numTok.Int) != ref.Num || !genTok.IsInt || int(genTok.Int) != ref.Gen {
		perr := pdferr.New(pdferr.InvalidObject, "header says %d %d, table says %s", numTok.Int, genTok.Int, ref)
		if ld.cfg.Strict {
			return nil, perr
		}
		ld.cfg.Logger.Warn("object header disagrees with table",
			observability.String("ref", ref.String()),
			observability.Int64("header", numTok.Int))
	}

	tr := raw.NewTokenReader(sc)
	val, err := raw.ParseValue(tr, ld.cfg.Limits.MaxNestingDepth)
	if err != nil {
		return nil, err
	}

	tok, err := tr.Next()
	if err != nil {
		ld.cfg.Logger.Warn("object not terminated", observability.String("ref", ref.String()))
		return val, nil
	}
	switch {
	case tok.Type == scanner.TokenKeyword && tok.Str == "endobj":
		return val, nil
	case tok.Type == scanner.TokenKeyword && tok.Str == "stream":
		dict, ok := val.(*raw.DictObj)
		if !ok {
			return nil, pdferr.New(pdferr.InvalidObject, "stream after %s value in object %s", val.Type(), ref)
		}
		stream, err := ld.captureStream(ctx, ref, dict)
		if err != nil {
			return nil, err
		}
		if err := sc.ExpectKeyword("endobj"); err != nil {
			if ld.cfg.Strict {
				return nil, err
			}
			ld.cfg.Logger.Warn("missing endobj after stream",
				observability.String("ref", ref.String()))
		}
		return stream, nil
	}
	perr := pdferr.New(pdferr.InvalidObject, "unexpected %s %q after object %s", tok.Type, tok.Str, ref)
	if ld.cfg.Strict {
		return nil, perr
	}
	ld.cfg.Logger.Warn("unexpected token after object value",
		observability.String("ref", ref.String()))
	return val, nil
}

// captureStream records the body range after the stream keyword. The length
// hint comes from /Length, resolved through the table when indirect.
func (ld *objectLoader) captureStream(ctx context.Context, ref raw.ObjectRef, dict *raw.DictObj) (*raw.StreamObj, error) {
	sc := ld.scanner()
	hint := int64(-1)
	if length, ok := dict.GetInt("Length"); ok {
		hint = length
	} else if lenObj, ok := dict.GetKey("Length"); ok {
		if lenRef, ok := lenObj.(raw.Reference); ok {
			if resolved, err := ld.resolveLength(ctx, lenRef.Ref(), 0); err == nil {
				hint = resolved
			} else {
				ld.cfg.Logger.Warn("indirect /Length unresolved",
					observability.String("ref", ref.String()),
					observability.Error("error", err))
			}
		}
	}
	if max := ld.cfg.Limits.MaxStreamLength; max > 0 && hint > max {
		return nil, pdferr.New(pdferr.ValueOutOfRange, "stream length %d exceeds limit %d", hint, max)
	}
	begin, length, err := sc.ScanStreamBody(hint)
	if err != nil {
		return nil, err
	}
	if max := ld.cfg.Limits.MaxStreamLength; max > 0 && length > max {
		return nil, pdferr.New(pdferr.ValueOutOfRange, "stream length %d exceeds limit %d", length, max)
	}
	return raw.NewStreamRange(dict, ld.dev, begin, length), nil
}

// resolveLength loads the integer object an indirect /Length points at. The
// scanner position is restored afterwards so stream capture can continue.
func (ld *objectLoader) resolveLength(ctx context.Context, ref raw.ObjectRef, depth int) (int64, error) {
	if depth > ld.cfg.Limits.MaxIndirectDepth {
		return 0, pdferr.New(pdferr.RecursionLimit, "indirect chain deeper than %d", ld.cfg.Limits.MaxIndirectDepth)
	}
	sc := ld.scanner()
	save := sc.Position()
	defer sc.SeekTo(save)

	e := ld.entries.At(ref.Num)
	if e == nil || !e.Parsed || e.Type != xref.EntryInUse {
		return 0, pdferr.New(pdferr.ObjectNotFound, "no in-use entry for length object %s", ref)
	}
	if err := sc.SeekTo(e.Offset); err != nil {
		return 0, err
	}
	if _, err := sc.ScanNumber(); err != nil {
		return 0, err
	}
	if _, err := sc.ScanNumber(); err != nil {
		return 0, err
	}
	if err := sc.ExpectKeyword("obj"); err != nil {
		return 0, err
	}
	tr := raw.NewTokenReader(sc)
	val, err := raw.ParseValue(tr, ld.cfg.Limits.MaxNestingDepth)
	if err != nil {
		return 0, err
	}
	switch v := val.(type) {
	case raw.Number:
		if !v.IsInteger() || v.Int() < 0 {
			return 0, pdferr.New(pdferr.InvalidObject, "length object %s is not a non-negative integer", ref)
		}
		return v.Int(), nil
	case raw.Reference:
		return ld.resolveLength(ctx, v.Ref(), depth+1)
	}
	return 0, pdferr.New(pdferr.InvalidObject, "length object %s is %s", ref, val.Type())
}

// decryptValue rewrites strings and stream bodies of one indirect object
// through the encryption handler.
func (ld *objectLoader) decryptValue(ref raw.ObjectRef, val raw.Object) (raw.Object, error) {
	switch v := val.(type) {
	case raw.StringObj:
		data, err := ld.sec.Decrypt(ref.Num, ref.Gen, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: data, Hex: v.Hex}, nil
	case *raw.ArrayObj:
		for i, item := range v.Items {
			dec, err := ld.decryptValue(ref, item)
			if err != nil {
				return nil, err
			}
			v.Items[i] = dec
		}
		return v, nil
	case *raw.DictObj:
		for _, key := range v.Keys() {
			item, _ := v.Get(key)
			dec, err := ld.decryptValue(ref, item)
			if err != nil {
				return nil, err
			}
			v.Set(key, dec)
		}
		return v, nil
	case *raw.StreamObj:
		if err := ld.decryptStreamBody(ref, v); err != nil {
			return nil, err
		}
		if _, err := ld.decryptValue(ref, v.Dict); err != nil {
			return nil, err
		}
		return v, nil
	}
	return val, nil
}

func (ld *objectLoader) decryptStreamBody(ref raw.ObjectRef, s *raw.StreamObj) error {
	body, err := s.RawData()
	if err != nil {
		return err
	}
	class := security.DataClassStream
	if typ, _ := s.Dict.GetName("Type"); typ == "Metadata" {
		class = security.DataClassMetadataStream
	}
	var data []byte
	names, params := filters.ExtractFilters(s.Dict)
	if len(names) > 0 && names[0] == "Crypt" {
		filter := "Identity"
		if len(params) > 0 && params[0] != nil {
			if nameObj, ok := params[0].Get(raw.NameObj{Val: "Name"}); ok {
				if n, ok := nameObj.(raw.Name); ok {
					filter = n.Value()
				}
			}
		}
		data, err = ld.sec.DecryptWithFilter(ref.Num, ref.Gen, body, class, filter)
	} else {
		data, err = ld.sec.Decrypt(ref.Num, ref.Gen, body, class)
	}
	if err != nil {
		return err
	}
	ld.store.BeginAppendStream(s)
	s.SetData(data)
	ld.store.EndAppendStream(s)
	return nil
}

// materializeStreams forces every range-backed stream body into memory.
func (ld *objectLoader) materializeStreams(ctx context.Context) error {
	for _, ref := range ld.store.Refs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj, _ := ld.store.Get(ref)
		s, ok := obj.Value.(*raw.StreamObj)
		if !ok || s.Loaded() {
			continue
		}
		ld.store.BeginAppendStream(s)
		_, err := s.RawData()
		ld.store.EndAppendStream(s)
		if err != nil {
			if ld.cfg.Strict {
				return pdferr.Push(err, "parser", "stream body of %s", ref)
			}
			ld.cfg.Logger.Warn("stream body unreadable",
				observability.String("ref", ref.String()),
				observability.Error("error", err))
		}
	}
	return nil
}
