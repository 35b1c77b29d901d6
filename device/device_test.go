package device

import (
	"bytes"
	"io"
	"testing"
)

func TestSeekAndRead(t *testing.T) {
	d := FromBytes([]byte("hello world"))
	if d.Size() != 11 {
		t.Fatalf("size = %d, want 11", d.Size())
	}
	if err := d.Seek(6, Begin); err != nil {
		t.Fatalf("seek: %v", err)
	}
	buf := make([]byte, 5)
	n, err := d.Read(buf)
	if err != nil || n != 5 {
		t.Fatalf("read = %d, %v", n, err)
	}
	if !bytes.Equal(buf, []byte("world")) {
		t.Fatalf("read %q, want world", buf)
	}
	if d.Position() != 11 {
		t.Fatalf("position = %d, want 11", d.Position())
	}
	if _, err := d.Read(buf); err != io.EOF {
		t.Fatalf("read past end: err = %v, want io.EOF", err)
	}
}

func TestSeekWhence(t *testing.T) {
	d := FromBytes([]byte("0123456789"))
	cases := []struct {
		name   string
		offset int64
		whence Whence
		want   int64
	}{
		{"begin", 3, Begin, 3},
		{"current forward", 2, Current, 5},
		{"current backward", -1, Current, 4},
		{"end", -4, End, 6},
		{"end exact", 0, End, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := d.Seek(tc.offset, tc.whence); err != nil {
				t.Fatalf("seek: %v", err)
			}
			if d.Position() != tc.want {
				t.Fatalf("position = %d, want %d", d.Position(), tc.want)
			}
		})
	}
}

func TestSeekOutOfRange(t *testing.T) {
	d := FromBytes([]byte("abc"))
	if err := d.Seek(4, Begin); err == nil {
		t.Fatal("seek beyond size should fail")
	}
	if err := d.Seek(-1, Begin); err == nil {
		t.Fatal("negative seek should fail")
	}
	if d.Position() != 0 {
		t.Fatalf("failed seek moved position to %d", d.Position())
	}
}

func TestPeek(t *testing.T) {
	d := FromBytes([]byte("abcdef"))
	b, err := d.Peek(3)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if !bytes.Equal(b, []byte("abc")) {
		t.Fatalf("peek %q, want abc", b)
	}
	if d.Position() != 0 {
		t.Fatalf("peek moved position to %d", d.Position())
	}
	d.Seek(4, Begin)
	b, err = d.Peek(5)
	if err != nil {
		t.Fatalf("short peek: %v", err)
	}
	if !bytes.Equal(b, []byte("ef")) {
		t.Fatalf("short peek %q, want ef", b)
	}
}

func TestReadByte(t *testing.T) {
	d := FromBytes([]byte("xy"))
	for _, want := range []byte{'x', 'y'} {
		b, err := d.ReadByte()
		if err != nil {
			t.Fatalf("read byte: %v", err)
		}
		if b != want {
			t.Fatalf("byte = %q, want %q", b, want)
		}
	}
	if _, err := d.ReadByte(); err != io.EOF {
		t.Fatalf("read byte at end: %v, want io.EOF", err)
	}
}
