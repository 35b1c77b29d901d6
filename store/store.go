// Package store owns the indirect objects of one document: a keyed
// container with a free-list allocator, a compressed-stream registry and a
// reachability garbage collector.
package store

import (
	"sort"

	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/observability"
	"github.com/wudi/pdfcore/pdferr"
)

// maxGeneration is the generation ceiling. A number whose generation reaches
// it is retired to the unavailable set and never allocated again.
const maxGeneration = 65535

// Observer is notified while a stream body is appended to the document.
type Observer interface {
	BeginAppendStream(s *raw.StreamObj)
	EndAppendStream(s *raw.StreamObj)
}

// Config controls a store.
type Config struct {
	// MaxObjectCount caps allocatable object numbers. Default: 2^31 - 1.
	MaxObjectCount int

	Logger observability.Logger
}

// DefaultConfig returns the store defaults.
func DefaultConfig() Config {
	return Config{
		MaxObjectCount: (1 << 31) - 1,
		Logger:         observability.NopLogger{},
	}
}

// Store holds every indirect object of a document. It is not safe for
// concurrent use; parallel parses need one store each.
type Store struct {
	cfg Config

	objects     map[raw.ObjectRef]*raw.Indirect
	freeList    []raw.ObjectRef
	unavailable map[int]bool
	compressed  map[int]bool
	maxObj      int

	observers []Observer
}

// New builds an empty store. Zero config fields fall back to defaults.
func New(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.MaxObjectCount <= 0 {
		cfg.MaxObjectCount = def.MaxObjectCount
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	return &Store{
		cfg:         cfg,
		objects:     make(map[raw.ObjectRef]*raw.Indirect),
		unavailable: make(map[int]bool),
		compressed:  make(map[int]bool),
	}
}

// Len returns the number of stored objects.
func (s *Store) Len() int { return len(s.objects) }

// MaxObjectNumber returns the highest object number ever inserted.
func (s *Store) MaxObjectNumber() int { return s.maxObj }

// Refs returns every stored reference in ascending order.
func (s *Store) Refs() []raw.ObjectRef {
	refs := make([]raw.ObjectRef, 0, len(s.objects))
	for ref := range s.objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	return refs
}

// Get returns the object stored under ref.
func (s *Store) Get(ref raw.ObjectRef) (*raw.Indirect, bool) {
	obj, ok := s.objects[ref]
	return obj, ok
}

// MustGet returns the object stored under ref or an ObjectNotFound error.
func (s *Store) MustGet(ref raw.ObjectRef) (*raw.Indirect, error) {
	obj, ok := s.objects[ref]
	if !ok {
		return nil, pdferr.New(pdferr.ObjectNotFound, "object %s not in store", ref)
	}
	return obj, nil
}

// Push inserts obj under its own reference, replacing any object already
// stored there.
func (s *Store) Push(obj *raw.Indirect) {
	s.objects[obj.Ref] = obj
	if obj.Ref.Num > s.maxObj {
		s.maxObj = obj.Ref.Num
	}
}

// InsertValue allocates a fresh reference, wraps v and stores it dirty.
func (s *Store) InsertValue(v raw.Object) (*raw.Indirect, error) {
	ref, err := s.allocate()
	if err != nil {
		return nil, err
	}
	obj := &raw.Indirect{Ref: ref, Value: v, Dirty: true}
	s.Push(obj)
	return obj, nil
}

// InsertNewDict allocates a dictionary object, filling /Type and /Subtype
// when non-empty.
func (s *Store) InsertNewDict(typ, subtype string) (*raw.Indirect, error) {
	dict := raw.Dict()
	if typ != "" {
		dict.Set(raw.NameObj{Val: "Type"}, raw.NameObj{Val: typ})
	}
	if subtype != "" {
		dict.Set(raw.NameObj{Val: "Subtype"}, raw.NameObj{Val: subtype})
	}
	return s.InsertValue(dict)
}

// InsertNewArray allocates an empty array object.
func (s *Store) InsertNewArray() (*raw.Indirect, error) {
	return s.InsertValue(raw.NewArray())
}

// Remove deletes the object stored under ref and returns its value. With
// markFree the reference is recycled: the number joins the free list with
// generation+1, or the unavailable set once the generation cap is reached.
// Removing a compressed object stream container is refused, other objects
// still live inside it.
func (s *Store) Remove(ref raw.ObjectRef, markFree bool) (raw.Object, error) {
	if s.compressed[ref.Num] {
		return nil, pdferr.New(pdferr.InternalLogic, "object %s is a compressed object stream container", ref)
	}
	obj, ok := s.objects[ref]
	if !ok {
		return nil, nil
	}
	delete(s.objects, ref)
	if markFree {
		if ref.Gen+1 >= maxGeneration {
			s.unavailable[ref.Num] = true
		} else {
			s.AddFree(raw.ObjectRef{Num: ref.Num, Gen: ref.Gen + 1})
		}
	}
	return obj.Value, nil
}

// AddFree inserts ref into the sorted free list. Duplicates and retired
// numbers are ignored.
func (s *Store) AddFree(ref raw.ObjectRef) {
	if ref.Gen >= maxGeneration {
		s.unavailable[ref.Num] = true
		return
	}
	if s.unavailable[ref.Num] {
		return
	}
	i := sort.Search(len(s.freeList), func(i int) bool { return s.freeList[i].Num >= ref.Num })
	if i < len(s.freeList) && s.freeList[i].Num == ref.Num {
		s.cfg.Logger.Debug("duplicate free-list entry ignored",
			observability.String("ref", ref.String()))
		return
	}
	s.freeList = append(s.freeList, raw.ObjectRef{})
	copy(s.freeList[i+1:], s.freeList[i:])
	s.freeList[i] = ref
	if ref.Num > s.maxObj {
		s.maxObj = ref.Num
	}
}

// FreeRefs returns a copy of the free list, ascending by object number.
func (s *Store) FreeRefs() []raw.ObjectRef {
	out := make([]raw.ObjectRef, len(s.freeList))
	copy(out, s.freeList)
	return out
}

// AddCompressedStream marks object number num as an object stream container.
func (s *Store) AddCompressedStream(num int) { s.compressed[num] = true }

// IsCompressedStream reports whether num is an object stream container.
func (s *Store) IsCompressedStream(num int) bool { return s.compressed[num] }

// allocate hands out the next reference: the front of the free list when it
// is non-empty, else the number after maxObj, skipping retired numbers.
func (s *Store) allocate() (raw.ObjectRef, error) {
	if len(s.freeList) > 0 {
		ref := s.freeList[0]
		s.freeList = s.freeList[1:]
		return ref, nil
	}
	num := s.maxObj + 1
	for s.unavailable[num] {
		num++
	}
	if num > s.cfg.MaxObjectCount {
		return raw.ObjectRef{}, pdferr.New(pdferr.ValueOutOfRange, "object number %d exceeds cap %d", num, s.cfg.MaxObjectCount)
	}
	return raw.ObjectRef{Num: num, Gen: 0}, nil
}

// Attach registers an observer. Attaching one twice is a no-op.
func (s *Store) Attach(o Observer) {
	for _, existing := range s.observers {
		if existing == o {
			return
		}
	}
	s.observers = append(s.observers, o)
}

// Detach removes a previously attached observer.
func (s *Store) Detach(o Observer) {
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// BeginAppendStream tells every observer a stream body append starts.
func (s *Store) BeginAppendStream(stream *raw.StreamObj) {
	for _, o := range s.observers {
		o.BeginAppendStream(stream)
	}
}

// EndAppendStream tells every observer a stream body append finished.
func (s *Store) EndAppendStream(stream *raw.StreamObj) {
	for _, o := range s.observers {
		o.EndAppendStream(stream)
	}
}
