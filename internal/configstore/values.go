package configstore

import (
	"encoding/binary"
	"time"

	"github.com/iudanet/confsync/internal/crdt"
)

// Префиксы ключей записей в namespace, где хранятся записи разных типов.
const (
	prefixOneToOne    = "1"
	prefixCommunity   = "o"
	prefixLegacyGroup = "C"
)

// Нулевое значение кодируется пустым срезом: отсутствующее поле и поле
// с нулевым значением неразличимы.

func encodeInt(v int64) []byte {
	if v == 0 {
		return nil
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func decodeInt(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func encodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return nil
}

func decodeBool(b []byte) bool {
	return len(b) > 0 && b[0] != 0
}

func encodeTime(t time.Time) []byte {
	if t.IsZero() {
		return nil
	}
	return encodeInt(t.UnixMilli())
}

func decodeTime(b []byte) time.Time {
	ms := decodeInt(b)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func encodeSeconds(d time.Duration) []byte {
	return encodeInt(int64(d / time.Second))
}

func decodeSeconds(b []byte) time.Duration {
	return time.Duration(decodeInt(b)) * time.Second
}

func value(r *crdt.Record, name string) []byte {
	return r.Fields[name].Value
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
