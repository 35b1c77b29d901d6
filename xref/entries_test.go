package xref

import "testing"

func TestEntriesSetIfUnparsed(t *testing.T) {
	e := NewEntries(0)
	if !e.SetIfUnparsed(2, Entry{Type: EntryInUse, Offset: 100}) {
		t.Fatal("first write must land")
	}
	if e.Len() != 3 {
		t.Fatalf("len = %d, want 3", e.Len())
	}
	// Sections are read newest first, so a later write loses.
	if e.SetIfUnparsed(2, Entry{Type: EntryInUse, Offset: 999}) {
		t.Fatal("second write must be rejected")
	}
	if got := e.At(2); got.Offset != 100 || !got.Parsed {
		t.Fatalf("entry = %+v", got)
	}
	if e.SetIfUnparsed(-1, Entry{}) {
		t.Fatal("negative object number accepted")
	}
}

func TestEntriesAtAndEnlarge(t *testing.T) {
	e := NewEntries(2)
	if e.At(2) != nil {
		t.Fatal("out-of-range slot must be nil")
	}
	if e.At(-1) != nil {
		t.Fatal("negative slot must be nil")
	}
	e.Enlarge(5)
	if e.Len() != 5 {
		t.Fatalf("len = %d after enlarge", e.Len())
	}
	e.Enlarge(3)
	if e.Len() != 5 {
		t.Fatal("enlarge must never shrink")
	}
	if e.At(4) == nil || e.At(4).Parsed {
		t.Fatal("new slots start unparsed")
	}
}

func TestEntriesParsedCount(t *testing.T) {
	e := NewEntries(4)
	e.SetIfUnparsed(0, Entry{Type: EntryFree})
	e.SetIfUnparsed(3, Entry{Type: EntryInUse, Offset: 9})
	if n := e.ParsedCount(); n != 2 {
		t.Fatalf("parsed count = %d, want 2", n)
	}
}

func TestEntryTypeString(t *testing.T) {
	for typ, want := range map[EntryType]string{
		EntryUnparsed:   "unparsed",
		EntryFree:       "free",
		EntryInUse:      "in-use",
		EntryCompressed: "compressed",
	} {
		if got := typ.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", typ, got, want)
		}
	}
}
