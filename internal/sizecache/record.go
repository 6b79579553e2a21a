package sizecache

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/valyala/bytebufferpool"
)

type recordType byte

const (
	recordPut recordType = iota + 1
	recordDelete
)

const flagPartial byte = 1

// maxRecordHeaderSize is the largest header an entry can have.
//
// type  flags  keySize  size  modTime  scannedAt  filter
//
// 1   +  1   +   5    + 10  +   10   +   10    +  10  = 47
const maxRecordHeaderSize = 2 + binary.MaxVarintLen32 + binary.MaxVarintLen64*4

// encodeRecord appends the record for entry to buf.
// +------+-------+----------+----------+----------+-----------+----------+------+
// | type | flags | key size |   size   | mod time | scannedAt |  filter  | key  |
// +------+-------+----------+----------+----------+-----------+----------+------+
//
//	1 byte  1 byte  uvarint    uvarint    varint     varint      uvarint   data
func encodeRecord(kind recordType, entry Entry, header []byte, buf *bytebufferpool.ByteBuffer) []byte {
	header[0] = byte(kind)
	header[1] = 0
	if entry.Partial {
		header[1] |= flagPartial
	}
	index := 2
	index += binary.PutUvarint(header[index:], uint64(len(entry.Path)))
	index += binary.PutUvarint(header[index:], entry.AggregateSize)
	index += binary.PutVarint(header[index:], unixNano(entry.ModTime))
	index += binary.PutVarint(header[index:], unixNano(entry.ScannedAt))
	index += binary.PutUvarint(header[index:], entry.Filter)

	_, _ = buf.Write(header[:index])
	_, _ = buf.WriteString(entry.Path)
	return buf.Bytes()
}

func decodeRecord(data []byte) (recordType, Entry, error) {
	if len(data) < 2 {
		return 0, Entry{}, fmt.Errorf("%w: record of %d bytes", ErrCorrupt, len(data))
	}
	kind := recordType(data[0])
	if kind != recordPut && kind != recordDelete {
		return 0, Entry{}, fmt.Errorf("%w: record type %d", ErrCorrupt, kind)
	}
	entry := Entry{Partial: data[1]&flagPartial != 0}
	index := 2

	keySize, n := binary.Uvarint(data[index:])
	if n <= 0 {
		return 0, Entry{}, fmt.Errorf("%w: key size", ErrCorrupt)
	}
	index += n
	if entry.AggregateSize, n = binary.Uvarint(data[index:]); n <= 0 {
		return 0, Entry{}, fmt.Errorf("%w: aggregate size", ErrCorrupt)
	}
	index += n
	modTime, n := binary.Varint(data[index:])
	if n <= 0 {
		return 0, Entry{}, fmt.Errorf("%w: mod time", ErrCorrupt)
	}
	index += n
	scannedAt, n := binary.Varint(data[index:])
	if n <= 0 {
		return 0, Entry{}, fmt.Errorf("%w: scan time", ErrCorrupt)
	}
	index += n
	if entry.Filter, n = binary.Uvarint(data[index:]); n <= 0 {
		return 0, Entry{}, fmt.Errorf("%w: filter", ErrCorrupt)
	}
	index += n
	if uint64(len(data)-index) != keySize {
		return 0, Entry{}, fmt.Errorf("%w: key length %d, want %d", ErrCorrupt, len(data)-index, keySize)
	}
	entry.Path = string(data[index:])
	entry.ModTime = timeFrom(modTime)
	entry.ScannedAt = timeFrom(scannedAt)
	return kind, entry, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
