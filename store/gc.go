package store

import (
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/observability"
	"github.com/wudi/pdfcore/pdferr"
)

// gcMaxDepth caps the reachability walk.
const gcMaxDepth = 500

// CollectGarbage removes every object the trailer cannot reach. Compressed
// object stream containers are kept regardless, and the references in
// their own dictionaries count as roots too. Freed numbers go to the free list. It returns how many
// objects were removed.
func (s *Store) CollectGarbage(trailer *raw.DictObj) (int, error) {
	reachable := make(map[raw.ObjectRef]bool)
	if trailer != nil {
		if err := s.mark(trailer, reachable, 0); err != nil {
			return 0, err
		}
	}
	for ref, obj := range s.objects {
		if !s.compressed[ref.Num] {
			continue
		}
		reachable[ref] = true
		if err := s.mark(obj.Value, reachable, 0); err != nil {
			return 0, err
		}
	}

	removed := 0
	for _, ref := range s.Refs() {
		if reachable[ref] || s.compressed[ref.Num] {
			continue
		}
		if _, err := s.Remove(ref, true); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		s.cfg.Logger.Debug("garbage collection done",
			observability.Int("removed", removed))
	}
	return removed, nil
}

// mark walks value, recording every reference it can reach.
func (s *Store) mark(value raw.Object, reachable map[raw.ObjectRef]bool, depth int) error {
	if depth > gcMaxDepth {
		return pdferr.New(pdferr.RecursionLimit, "reachability walk deeper than %d", gcMaxDepth)
	}
	switch v := value.(type) {
	case raw.Reference:
		ref := v.Ref()
		if reachable[ref] {
			return nil
		}
		reachable[ref] = true
		if obj, ok := s.objects[ref]; ok {
			return s.mark(obj.Value, reachable, depth+1)
		}
	case *raw.ArrayObj:
		for _, item := range v.Items {
			if err := s.mark(item, reachable, depth+1); err != nil {
				return err
			}
		}
	case *raw.DictObj:
		for _, key := range v.Keys() {
			item, _ := v.Get(key)
			if err := s.mark(item, reachable, depth+1); err != nil {
				return err
			}
		}
	case *raw.StreamObj:
		return s.mark(v.Dict, reachable, depth+1)
	}
	return nil
}
