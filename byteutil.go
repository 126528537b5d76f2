package cimrepo

import (
	"bytes"
	"encoding/binary"
	"math"
)

// byteDecoder is a forward cursor over a record or page. Every read is bounds
// checked and fails with ErrTruncated instead of panicking.
type byteDecoder struct {
	Orig []byte
	Buf  []byte
}

func makeByteDecoder(buf []byte) byteDecoder {
	return byteDecoder{buf, buf}
}

func (d *byteDecoder) Off() int {
	return len(d.Orig) - len(d.Buf)
}

func (d *byteDecoder) Remaining() int {
	return len(d.Buf)
}

func (d *byteDecoder) Seek(off int) error {
	if off < 0 || off > len(d.Orig) {
		return dataErrf(d.Orig, d.Off(), ErrTruncated, "cannot seek to 0x%x", off)
	}
	d.Buf = d.Orig[off:]
	return nil
}

func (d *byteDecoder) Raw(n int) ([]byte, error) {
	if n < 0 || len(d.Buf) < n {
		return nil, dataErrf(d.Orig, d.Off(), ErrTruncated, "not enough data: %d bytes remaining, %d wanted", len(d.Buf), n)
	}
	v := d.Buf[:n]
	d.Buf = d.Buf[n:]
	return v, nil
}

func (d *byteDecoder) Skip(n int) error {
	_, err := d.Raw(n)
	return err
}

func (d *byteDecoder) Uint8() (uint8, error) {
	b, err := d.Raw(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *byteDecoder) Uint16() (uint16, error) {
	b, err := d.Raw(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *byteDecoder) Uint32() (uint32, error) {
	b, err := d.Raw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *byteDecoder) Uint64() (uint64, error) {
	b, err := d.Raw(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// SizedSkip reads a u32 length that counts from its own first byte and skips
// that many bytes. A length smaller than the prefix itself only skips the
// prefix.
func (d *byteDecoder) SizedSkip() error {
	start := d.Off()
	n, err := d.Uint32()
	if err != nil {
		return err
	}
	if n < 4 {
		return nil
	}
	if uint64(start)+uint64(n) > uint64(len(d.Orig)) {
		return dataErrf(d.Orig, start, ErrTruncated, "skipped block of %d bytes overruns record", n)
	}
	return d.Seek(start + int(n))
}

// ByteSizedSkip is SizedSkip with a one byte length.
func (d *byteDecoder) ByteSizedSkip() error {
	start := d.Off()
	n, err := d.Uint8()
	if err != nil {
		return err
	}
	if n < 1 {
		return nil
	}
	if start+int(n) > len(d.Orig) {
		return dataErrf(d.Orig, start, ErrTruncated, "skipped block of %d bytes overruns record", n)
	}
	return d.Seek(start + int(n))
}

// blobSizeMask clears the two reserved high bits of size words.
const blobSizeMask = 0x3FFFFFFF

// window is a region of a record (typically the trailing data blob) that
// other structures address by relative offset.
type window struct {
	rec  []byte
	base int
	size int
}

func makeWindow(rec []byte, base, size int) (window, error) {
	if base < 0 || size < 0 || base+size > len(rec) {
		return window{}, dataErrf(rec, base, ErrTruncated, "blob of %d bytes does not fit the record", size)
	}
	return window{rec, base, size}, nil
}

func (w window) check(off, n uint64) error {
	if off > math.MaxInt32 || n > math.MaxInt32 || off+n > uint64(w.size) {
		return dataErrf(w.rec, w.base+int(min(off, uint64(w.size))), ErrTruncated, "range 0x%x+%d outside blob of %d bytes", off, n, w.size)
	}
	return nil
}

func (w window) Uint32(off uint32) (uint32, error) {
	if err := w.check(uint64(off), 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(w.rec[w.base+int(off):]), nil
}

// CString locates the NUL-terminated string stored one reserved byte past
// off. It returns the record-relative start and length of the string body.
func (w window) CString(off uint32) (start, n int, err error) {
	if err := w.check(uint64(off), 1); err != nil {
		return 0, 0, err
	}
	start = w.base + int(off) + 1
	end := w.base + w.size
	i := bytes.IndexByte(w.rec[start:end], 0)
	if i < 0 {
		return 0, 0, dataErrf(w.rec, start, ErrTruncated, "unterminated string in blob")
	}
	return start, i, nil
}

// Abs converts a window-relative range to a record-relative one.
func (w window) Abs(off, n uint64) (int, error) {
	if err := w.check(off, n); err != nil {
		return 0, err
	}
	return w.base + int(off), nil
}

func bitmapBytes(count int) int {
	return (count*2 + 7) / 8
}

func twoBitFlag(bitmap []byte, i int) byte {
	return (bitmap[i/4] >> (2 * (i % 4))) & 3
}
