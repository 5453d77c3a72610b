package codec

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/iudanet/confsync/internal/crdt"
)

// Номера полей бинарного представления документа.
// Document: repeated record = 1.
// Record: key = 1, repeated field = 2.
// Field: name = 1, seqno = 2, value = 3.
const (
	docRecordNum   protowire.Number = 1
	recordKeyNum   protowire.Number = 1
	recordFieldNum protowire.Number = 2
	fieldNameNum   protowire.Number = 1
	fieldSeqnoNum  protowire.Number = 2
	fieldValueNum  protowire.Number = 3
)

// EncodeDocument сериализует документ.
// Записи и поля упорядочены по ключу, поэтому одинаковое содержимое
// всегда дает байт-в-байт одинаковый результат.
// Неизвестные поля, прочитанные DecodeDocument, дописываются без изменений.
func EncodeDocument(doc *crdt.Document) []byte {
	var out []byte
	for _, key := range doc.Keys() {
		r, _ := doc.Record(key)
		out = protowire.AppendTag(out, docRecordNum, protowire.BytesType)
		out = protowire.AppendBytes(out, encodeRecord(key, r))
	}
	return append(out, doc.Unknown()...)
}

func encodeRecord(key string, r *crdt.Record) []byte {
	var out []byte
	out = protowire.AppendTag(out, recordKeyNum, protowire.BytesType)
	out = protowire.AppendString(out, key)
	for _, name := range r.FieldNames() {
		f := r.Fields[name]

		var field []byte
		field = protowire.AppendTag(field, fieldNameNum, protowire.BytesType)
		field = protowire.AppendString(field, name)
		field = protowire.AppendTag(field, fieldSeqnoNum, protowire.VarintType)
		field = protowire.AppendVarint(field, uint64(f.Seqno))
		field = protowire.AppendTag(field, fieldValueNum, protowire.BytesType)
		field = protowire.AppendBytes(field, f.Value)

		out = protowire.AppendTag(out, recordFieldNum, protowire.BytesType)
		out = protowire.AppendBytes(out, field)
	}
	return append(out, r.Unknown...)
}

// DecodeDocument разбирает документ, сериализованный EncodeDocument.
// На произвольном входе возвращает ErrParse и никогда не паникует.
func DecodeDocument(data []byte) (*crdt.Document, error) {
	doc := crdt.NewDocument()
	var unknown []byte
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, parseError(n, "document tag")
		}

		if num == docRecordNum && typ == protowire.BytesType {
			raw, m := protowire.ConsumeBytes(data[n:])
			if m < 0 {
				return nil, parseError(m, "record")
			}
			key, r, err := decodeRecord(raw)
			if err != nil {
				return nil, err
			}
			if doc.Has(key) {
				return nil, errors.Wrapf(ErrParse, "duplicate record %q", key)
			}
			doc.PutRecord(key, r)
			data = data[n+m:]
			continue
		}

		m := protowire.ConsumeFieldValue(num, typ, data[n:])
		if m < 0 {
			return nil, parseError(m, "unknown document field")
		}
		unknown = append(unknown, data[:n+m]...)
		data = data[n+m:]
	}

	if len(unknown) > 0 {
		doc.SetUnknown(unknown)
	}
	return doc, nil
}

func decodeRecord(data []byte) (string, *crdt.Record, error) {
	var (
		key    string
		hasKey bool
		r      = crdt.NewRecord()
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", nil, parseError(n, "record tag")
		}

		switch {
		case num == recordKeyNum && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(data[n:])
			if m < 0 {
				return "", nil, parseError(m, "record key")
			}
			key, hasKey = v, true
			data = data[n+m:]
		case num == recordFieldNum && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(data[n:])
			if m < 0 {
				return "", nil, parseError(m, "record field")
			}
			name, f, err := decodeField(raw)
			if err != nil {
				return "", nil, err
			}
			r.Fields[name] = f
			data = data[n+m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data[n:])
			if m < 0 {
				return "", nil, parseError(m, "unknown record field")
			}
			r.Unknown = append(r.Unknown, data[:n+m]...)
			data = data[n+m:]
		}
	}

	if !hasKey {
		return "", nil, errors.Wrap(ErrParse, "record without key")
	}
	return key, r, nil
}

func decodeField(data []byte) (string, crdt.Field, error) {
	var (
		name    string
		hasName bool
		f       crdt.Field
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", f, parseError(n, "field tag")
		}

		var m int
		switch {
		case num == fieldNameNum && typ == protowire.BytesType:
			name, m = protowire.ConsumeString(data[n:])
			hasName = true
		case num == fieldSeqnoNum && typ == protowire.VarintType:
			var v uint64
			v, m = protowire.ConsumeVarint(data[n:])
			f.Seqno = int64(v)
		case num == fieldValueNum && typ == protowire.BytesType:
			var v []byte
			v, m = protowire.ConsumeBytes(data[n:])
			f.Value = append([]byte(nil), v...)
		default:
			// неизвестные атрибуты поля пропускаем
			m = protowire.ConsumeFieldValue(num, typ, data[n:])
		}
		if m < 0 {
			return "", f, parseError(m, "field value")
		}
		data = data[n+m:]
	}

	if !hasName {
		return "", f, errors.Wrap(ErrParse, "field without name")
	}
	if f.Seqno < 0 {
		return "", f, errors.Wrap(ErrParse, "negative seqno")
	}
	return name, f, nil
}

func parseError(n int, what string) error {
	return errors.Wrapf(ErrParse, "%s: %v", what, protowire.ParseError(n))
}
