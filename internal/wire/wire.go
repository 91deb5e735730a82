// Package wire frames cached payloads for storage in a provider.
//
// Entry: magic(4) | ver(1) | cachedAt(i64 be, unix nanos) | urlLen(u16 be) | url | vlen(u32 be) | payload(vlen)
//
// The url is stored so a shared provider entry can be checked against the key
// it was found under, and cachedAt so age survives a process restart.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const version byte = 1

const headerLen = 4 + 1 + 8 + 2

var (
	ErrCorrupt    = errors.New("pagecache: corrupt entry")
	ErrURLTooLong = errors.New("pagecache: url too long for entry framing")
	magic4        = [...]byte{'P', 'G', 'C', 'E'}
)

// Entry is a decoded provider value. Payload aliases the input buffer.
type Entry struct {
	CachedAt time.Time
	URL      string
	Payload  []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

func EncodeEntry(cachedAt time.Time, url string, payload []byte) ([]byte, error) {
	if len(url) == 0 || len(url) > 0xFFFF {
		return nil, ErrURLTooLong
	}
	var buf bytes.Buffer
	buf.Grow(headerLen + len(url) + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(cachedAt.UnixNano()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(url)))
	buf.Write(u2[:])
	buf.WriteString(url)

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)

	return buf.Bytes(), nil
}

func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version {
		return Entry{}, ErrCorrupt
	}
	off := 5

	nanos := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	ulen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if ulen == 0 || ulen > len(b)-off {
		return Entry{}, ErrCorrupt
	}
	url := string(b[off : off+ulen])
	off += ulen

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// strict framing: payload must end exactly at the buffer end
	if vlen < 0 || vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	return Entry{
		CachedAt: time.Unix(0, nanos),
		URL:      url,
		Payload:  b[off : off+vlen],
	}, nil
}
