package cimrepo

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

const checksumSize = 8

// encodeExportValue encodes v with msgpack and prefixes the payload with its
// xxhash checksum.
func encodeExportValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(make([]byte, checksumSize))
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T using MsgPack: %w", v, err)
	}
	b := buf.Bytes()
	binary.BigEndian.PutUint64(b, xxhash.Sum64(b[checksumSize:]))
	return b, nil
}

// decodeExportValue verifies the checksum of buf and decodes the payload
// into ptr.
func decodeExportValue(buf []byte, ptr any) error {
	if len(buf) < checksumSize {
		return dataErrf(buf, 0, ErrTruncated, "export value too short")
	}
	payload := buf[checksumSize:]
	if got, want := xxhash.Sum64(payload), binary.BigEndian.Uint64(buf); got != want {
		return dataErrf(buf, 0, ErrDecode, "checksum %016x, wanted %016x", got, want)
	}
	var r bytes.Reader
	r.Reset(payload)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	err := dec.Decode(ptr)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(buf, checksumSize, err, "failed to decode msgpack into %T", ptr)
	}
	return nil
}

// valueChecksum returns the checksum stored in front of an encoded value.
func valueChecksum(buf []byte) uint64 {
	if len(buf) < checksumSize {
		return 0
	}
	return binary.BigEndian.Uint64(buf)
}
