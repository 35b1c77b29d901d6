// Package parser turns a byte device into a parsed document: it resolves the
// cross-reference chain, authenticates encryption, loads every indirect
// object into a store and materializes compressed object streams.
package parser

import (
	"context"
	"strconv"
	"strings"

	"github.com/wudi/pdfcore/device"
	"github.com/wudi/pdfcore/filters"
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/observability"
	"github.com/wudi/pdfcore/pdferr"
	"github.com/wudi/pdfcore/recovery"
	"github.com/wudi/pdfcore/security"
	"github.com/wudi/pdfcore/store"
	"github.com/wudi/pdfcore/xref"
)

// Config controls a document parse.
type Config struct {
	// Strict fails on any structural irregularity instead of repairing it.
	Strict bool

	// LoadOnDemand leaves stream bodies as byte ranges into the device,
	// loaded on first access. Encrypted documents always load eagerly, the
	// body has to be decrypted while the file key is at hand.
	LoadOnDemand bool

	// Password is tried as both user and owner password.
	Password string

	Limits   security.Limits
	Recovery recovery.Strategy
	Logger   observability.Logger
	Filters  *filters.Pipeline

	// Security overrides the handler built from the trailer /Encrypt entry.
	Security security.Handler
}

// DefaultConfig returns the lenient parser defaults.
func DefaultConfig() Config {
	limits := security.DefaultLimits()
	return Config{
		Limits:   limits,
		Recovery: recovery.NewLenientStrategy(),
		Logger:   observability.NopLogger{},
		Filters:  limitsPipeline(limits),
	}
}

// limitsPipeline builds the default decoder pipeline with the decode caps
// taken from limits.
func limitsPipeline(limits security.Limits) *filters.Pipeline {
	return filters.NewDefaultPipeline(filters.Limits{
		MaxDecompressedSize: limits.MaxDecompressedSize,
		MaxDecodeTime:       limits.MaxDecodeTime,
	})
}

// Document is the result of a parse.
type Document struct {
	Store   *store.Store
	Trailer *raw.DictObj

	// Version is the header version, overridden by a newer catalog /Version.
	Version string

	IncrementalUpdates int
	HasXRefStreams     bool
	Encrypted          bool
	Permissions        security.Permissions
}

// DocumentParser parses documents. After an InvalidPassword failure the
// resolved cross-reference state is kept, so SetPassword plus a second Parse
// call on the same device retries authentication without re-reading the
// chain.
type DocumentParser struct {
	cfg Config

	dev     *device.Device
	xres    *xref.Result
	encDict *raw.DictObj
	encNum  int
}

// NewDocumentParser builds a parser. Zero config fields fall back to
// defaults.
func NewDocumentParser(cfg Config) *DocumentParser {
	def := DefaultConfig()
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
	zero := security.Limits{}
	if cfg.Limits == zero {
		cfg.Limits = def.Limits
	}
	if cfg.Filters == nil {
		cfg.Filters = limitsPipeline(cfg.Limits)
	}
	return &DocumentParser{cfg: cfg, encNum: -1}
}

// SetPassword replaces the password for the next Parse call.
func (p *DocumentParser) SetPassword(pwd string) { p.cfg.Password = pwd }

// Parse reads the whole document from dev.
func (p *DocumentParser) Parse(ctx context.Context, dev *device.Device) (*Document, error) {
	if p.cfg.Limits.MaxParseTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Limits.MaxParseTime)
		defer cancel()
	}
	if p.dev != dev {
		p.dev = dev
		p.xres = nil
		p.encDict = nil
		p.encNum = -1
	}
	if p.xres == nil {
		res, err := xref.NewResolver(p.xrefConfig()).Resolve(ctx, dev)
		if err != nil {
			return nil, pdferr.Push(err, "parser", "resolving cross-reference chain")
		}
		p.xres = res
	}

	handler, err := p.setupSecurity(ctx)
	if err != nil {
		return nil, err
	}

	st := store.New(store.Config{
		MaxObjectCount: p.cfg.Limits.MaxObjectCount,
		Logger:         p.cfg.Logger,
	})
	ld := &objectLoader{
		cfg:     p.cfg,
		dev:     dev,
		entries: p.xres.Entries,
		magic:   p.xres.MagicOffset,
		store:   st,
		sec:     handler,
		encNum:  p.encNum,
		objStms: make(map[int]*objStm),
	}
	if err := ld.loadAll(ctx); err != nil {
		return nil, err
	}

	doc := &Document{
		Store:              st,
		Trailer:            p.xres.Trailer,
		Version:            p.xres.Version,
		IncrementalUpdates: p.xres.IncrementalUpdates,
		HasXRefStreams:     p.xres.HasXRefStreams,
		Encrypted:          handler.IsEncrypted(),
		Permissions:        handler.Permissions(),
	}
	if err := p.applyCatalogVersion(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *DocumentParser) xrefConfig() xref.ResolverConfig {
	return xref.ResolverConfig{
		Strict:         p.cfg.Strict,
		Recovery:       p.cfg.Recovery,
		Logger:         p.cfg.Logger,
		Filters:        p.cfg.Filters,
		MaxXRefDepth:   p.cfg.Limits.MaxXRefDepth,
		MaxObjectCount: p.cfg.Limits.MaxObjectCount,

		HybridXRefStmWins: true,
	}
}

// setupSecurity builds and authenticates the encryption handler. The
// encryption dictionary is read with decryption off and its table slot is
// cleared so the object loader never stores or decrypts it.
func (p *DocumentParser) setupSecurity(ctx context.Context) (security.Handler, error) {
	if p.cfg.Security != nil {
		return p.cfg.Security, nil
	}
	trailer := p.xres.Trailer
	encObj, ok := trailer.GetKey("Encrypt")
	if !ok {
		return security.NoopHandler(), nil
	}
	if p.encDict == nil {
		switch v := encObj.(type) {
		case *raw.DictObj:
			p.encDict = v
		case raw.Reference:
			ref := v.Ref()
			ld := &objectLoader{
				cfg:     p.cfg,
				dev:     p.dev,
				entries: p.xres.Entries,
				magic:   p.xres.MagicOffset,
				sec:     security.NoopHandler(),
				encNum:  -1,
				objStms: make(map[int]*objStm),
			}
			obj, err := ld.loadRef(ctx, ref)
			if err != nil {
				return nil, pdferr.Wrap(err, pdferr.InvalidEncryptionDict, "loading /Encrypt object %s", ref)
			}
			dict, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, pdferr.New(pdferr.InvalidEncryptionDict, "/Encrypt object %s is %s, not a dictionary", ref, obj.Type())
			}
			p.encDict = dict
			p.encNum = ref.Num
			if e := p.xres.Entries.At(ref.Num); e != nil {
				*e = xref.Entry{}
			}
		default:
			return nil, pdferr.New(pdferr.InvalidEncryptionDict, "trailer /Encrypt is %s", encObj.Type())
		}
	}
	handler, err := security.NewHandlerBuilder().
		WithEncryptDict(p.encDict).
		WithTrailer(trailer).
		WithFileID(fileIDFromTrailer(trailer)).
		Build()
	if err != nil {
		return nil, err
	}
	result, err := handler.Authenticate(p.cfg.Password)
	if err != nil {
		return nil, err
	}
	if result == security.AuthFailed {
		return nil, pdferr.New(pdferr.InvalidPassword, "password rejected")
	}
	return handler, nil
}

func fileIDFromTrailer(trailer *raw.DictObj) []byte {
	arr, ok := trailer.GetArray("ID")
	if !ok || arr.Len() == 0 {
		return nil
	}
	first, _ := arr.Get(0)
	if s, ok := first.(raw.String); ok {
		return s.Value()
	}
	return nil
}

// applyCatalogVersion lets a newer catalog /Version name win over the header
// version.
func (p *DocumentParser) applyCatalogVersion(doc *Document) error {
	rootObj, ok := doc.Trailer.GetKey("Root")
	if !ok {
		return nil
	}
	ref, ok := rootObj.(raw.Reference)
	if !ok {
		return nil
	}
	cat, ok := doc.Store.Get(ref.Ref())
	if !ok {
		return nil
	}
	dict, ok := cat.Value.(*raw.DictObj)
	if !ok {
		return nil
	}
	verObj, ok := dict.GetKey("Version")
	if !ok {
		return nil
	}
	name, ok := verObj.(raw.Name)
	if !ok {
		if p.cfg.Strict {
			return pdferr.New(pdferr.InvalidName, "catalog /Version is %s, not a name", verObj.Type())
		}
		p.cfg.Logger.Warn("catalog /Version is not a name, ignored")
		return nil
	}
	if versionNewer(name.Value(), doc.Version) {
		doc.Version = name.Value()
	}
	return nil
}

// versionNewer compares dotted version names like "1.7".
func versionNewer(candidate, current string) bool {
	cMaj, cMin, ok1 := splitVersion(candidate)
	hMaj, hMin, ok2 := splitVersion(current)
	if !ok1 {
		return false
	}
	if !ok2 {
		return true
	}
	if cMaj != hMaj {
		return cMaj > hMaj
	}
	return cMin > hMin
}

func splitVersion(v string) (major, minor int, ok bool) {
	parts := strings.SplitN(v, ".", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return major, minor, true
}
