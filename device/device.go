// Package device provides the random-access input abstraction the tokenizer
// and cross-reference resolver read from. A Device wraps an io.ReaderAt with
// an explicit cursor so callers can seek from either end, peek without
// consuming, and ask for the total size up front.
package device

import (
	"io"

	"github.com/wudi/pdfcore/pdferr"
)

// Whence selects the origin of a Seek.
type Whence int

const (
	// Begin seeks from the start of the input.
	Begin Whence = iota
	// Current seeks relative to the cursor.
	Current
	// End seeks from the end of the input.
	End
)

// Device is a seekable view over a fixed-size input.
type Device struct {
	r    io.ReaderAt
	size int64
	pos  int64
}

// New wraps an io.ReaderAt of known size.
func New(r io.ReaderAt, size int64) *Device {
	return &Device{r: r, size: size}
}

// FromBytes builds a Device over an in-memory buffer.
func FromBytes(data []byte) *Device {
	return &Device{r: byteReaderAt(data), size: int64(len(data))}
}

type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total input length in bytes.
func (d *Device) Size() int64 { return d.size }

// Position returns the current cursor offset.
func (d *Device) Position() int64 { return d.pos }

// Seek moves the cursor. Offsets beyond either end are rejected with
// ValueOutOfRange; the cursor is left unchanged on error.
func (d *Device) Seek(offset int64, whence Whence) error {
	var abs int64
	switch whence {
	case Begin:
		abs = offset
	case Current:
		abs = d.pos + offset
	case End:
		abs = d.size + offset
	default:
		return pdferr.New(pdferr.InternalLogic, "bad seek whence %d", whence)
	}
	if abs < 0 || abs > d.size {
		return pdferr.New(pdferr.ValueOutOfRange, "seek to %d outside [0,%d]", abs, d.size)
	}
	d.pos = abs
	return nil
}

// Read fills p from the cursor, advancing it. Returns io.EOF at end of input.
func (d *Device) Read(p []byte) (int, error) {
	if d.pos >= d.size {
		return 0, io.EOF
	}
	n, err := d.r.ReadAt(p, d.pos)
	d.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// ReadByte returns the byte at the cursor and advances past it.
func (d *Device) ReadByte() (byte, error) {
	var buf [1]byte
	n, err := d.r.ReadAt(buf[:], d.pos)
	if n == 1 {
		d.pos++
		return buf[0], nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

// Peek returns up to n bytes at the cursor without moving it. Fewer bytes are
// returned near end of input.
func (d *Device) Peek(n int) ([]byte, error) {
	if d.pos >= d.size {
		return nil, io.EOF
	}
	if rem := d.size - d.pos; int64(n) > rem {
		n = int(rem)
	}
	buf := make([]byte, n)
	got, err := d.r.ReadAt(buf, d.pos)
	if got > 0 {
		return buf[:got], nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

// ReadAt exposes the underlying random access without touching the cursor.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	return d.r.ReadAt(p, off)
}
