package parser

import (
	"context"

	"github.com/wudi/pdfcore/device"
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/observability"
	"github.com/wudi/pdfcore/pdferr"
	"github.com/wudi/pdfcore/scanner"
	"github.com/wudi/pdfcore/xref"
)

// objStm is a decoded object stream: the body bytes and the prologue's
// object number / relative offset pairs.
type objStm struct {
	data  []byte
	first int64
	pairs [][2]int64
}

// loadCompressed materializes one object out of an object stream, decoding
// and caching the container on first use.
func (ld *objectLoader) loadCompressed(ctx context.Context, num, streamNum, index int) (raw.Object, error) {
	stm, err := ld.loadObjStm(ctx, streamNum)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(stm.pairs) {
		return nil, pdferr.New(pdferr.ObjectNotFound, "object stream %d has %d objects, index %d requested", streamNum, len(stm.pairs), index)
	}
	pair := stm.pairs[index]
	if int(pair[0]) != num {
		perr := pdferr.New(pdferr.InvalidObject, "object stream %d index %d holds object %d, table says %d", streamNum, index, pair[0], num)
		if ld.cfg.Strict {
			return nil, perr
		}
		ld.cfg.Logger.Warn("object stream prologue disagrees with table",
			observability.Int("object", num),
			observability.Int64("prologue", pair[0]))
	}
	offset := stm.first + pair[1]
	if offset < 0 || offset > int64(len(stm.data)) {
		return nil, pdferr.New(pdferr.InvalidObject, "object %d offset %d outside stream %d body", num, offset, streamNum)
	}

	dev := device.FromBytes(stm.data)
	sc := scanner.New(dev, scanner.Config{
		MaxStringLength: int(ld.cfg.Limits.MaxStringLength),
		Recovery:        ld.cfg.Recovery,
	})
	sc.SetContext(ctx)
	if err := sc.SeekTo(offset); err != nil {
		return nil, err
	}
	// Packed objects carry no obj/endobj wrapper, the value starts at the
	// recorded offset.
	val, err := raw.ParseValue(raw.NewTokenReader(sc), ld.cfg.Limits.MaxNestingDepth)
	if err != nil {
		return nil, pdferr.Push(err, "parser", "object %d in stream %d", num, streamNum)
	}
	return val, nil
}

// loadObjStm fetches the container from the store, decodes its body and
// reads the N pair prologue.
func (ld *objectLoader) loadObjStm(ctx context.Context, streamNum int) (*objStm, error) {
	if stm, ok := ld.objStms[streamNum]; ok {
		return stm, nil
	}
	e := ld.entries.At(streamNum)
	if e == nil || !e.Parsed || e.Type != xref.EntryInUse {
		return nil, pdferr.New(pdferr.ObjectNotFound, "no in-use entry for object stream %d", streamNum)
	}
	obj, err := ld.store.MustGet(raw.ObjectRef{Num: streamNum, Gen: e.Generation})
	if err != nil {
		return nil, err
	}
	container, ok := obj.Value.(*raw.StreamObj)
	if !ok {
		return nil, pdferr.New(pdferr.InvalidObject, "object %d is %s, not an object stream", streamNum, obj.Value.Type())
	}
	if typ, _ := container.Dict.GetName("Type"); typ != "ObjStm" {
		perr := pdferr.New(pdferr.InvalidObject, "object %d has /Type %q, want ObjStm", streamNum, typ)
		if ld.cfg.Strict {
			return nil, perr
		}
		ld.cfg.Logger.Warn("container missing /Type /ObjStm",
			observability.Int("object", streamNum))
	}
	n, ok := container.Dict.GetInt("N")
	if !ok || n < 0 {
		return nil, pdferr.New(pdferr.InvalidObject, "object stream %d missing /N", streamNum)
	}
	first, ok := container.Dict.GetInt("First")
	if !ok || first < 0 {
		return nil, pdferr.New(pdferr.InvalidObject, "object stream %d missing /First", streamNum)
	}

	data, err := ld.cfg.Filters.DecodeStream(ctx, container)
	if err != nil {
		return nil, pdferr.Push(err, "parser", "decoding object stream %d", streamNum)
	}

	sc := scanner.New(device.FromBytes(data), scanner.Config{Recovery: ld.cfg.Recovery})
	sc.SetContext(ctx)
	pairs := make([][2]int64, 0, n)
	for i := int64(0); i < n; i++ {
		objNum, err := sc.ScanNumber()
		if err != nil {
			return nil, pdferr.Wrap(err, pdferr.InvalidObject, "object stream %d prologue pair %d", streamNum, i)
		}
		rel, err := sc.ScanNumber()
		if err != nil {
			return nil, pdferr.Wrap(err, pdferr.InvalidObject, "object stream %d prologue pair %d", streamNum, i)
		}
		if !objNum.IsInt || !rel.IsInt || objNum.Int < 0 || rel.Int < 0 {
			return nil, pdferr.New(pdferr.InvalidObject, "object stream %d prologue pair %d is not two non-negative integers", streamNum, i)
		}
		pairs = append(pairs, [2]int64{objNum.Int, rel.Int})
	}

	stm := &objStm{data: data, first: first, pairs: pairs}
	ld.objStms[streamNum] = stm
	ld.store.AddCompressedStream(streamNum)
	return stm, nil
}
