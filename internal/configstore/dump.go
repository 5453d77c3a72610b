package configstore

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/iudanet/confsync/internal/codec"
	"github.com/iudanet/confsync/internal/crdt"
	"github.com/iudanet/confsync/internal/models"
)

// DumpVersion - версия формата dump. Dump'ы более старых версий читаются,
// неизвестные поля сохраняются при повторной записи.
const DumpVersion = 1

const (
	dumpVersionNum   protowire.Number = 1
	dumpNamespaceNum protowire.Number = 2
	dumpOwnerNum     protowire.Number = 3
	dumpSeqnoNum     protowire.Number = 4
	dumpCurrentNum   protowire.Number = 5
	dumpObsoleteNum  protowire.Number = 6
	dumpDocumentNum  protowire.Number = 7
	dumpCleanNum     protowire.Number = 8
)

// Dump сериализует полное состояние объекта.
// Возвращает также поколение состояния, которое нужно передать в MarkDumped
// после успешной записи на диск.
func (o *Object) Dump() ([]byte, uint64, error) {
	if o == nil {
		return nil, 0, ErrNilConfigObject
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	if err := o.check(); err != nil {
		return nil, 0, err
	}

	var out []byte
	out = protowire.AppendTag(out, dumpVersionNum, protowire.VarintType)
	out = protowire.AppendVarint(out, DumpVersion)
	out = protowire.AppendTag(out, dumpNamespaceNum, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(o.namespace))
	out = protowire.AppendTag(out, dumpOwnerNum, protowire.BytesType)
	out = protowire.AppendString(out, o.owner)
	out = protowire.AppendTag(out, dumpSeqnoNum, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(o.clock.Confirmed()))
	for _, h := range o.current.sorted() {
		out = protowire.AppendTag(out, dumpCurrentNum, protowire.BytesType)
		out = protowire.AppendString(out, h)
	}
	for _, h := range o.obsolete.sorted() {
		out = protowire.AppendTag(out, dumpObsoleteNum, protowire.BytesType)
		out = protowire.AppendString(out, h)
	}
	out = protowire.AppendTag(out, dumpDocumentNum, protowire.BytesType)
	out = protowire.AppendBytes(out, codec.EncodeDocument(o.doc))
	out = protowire.AppendTag(out, dumpCleanNum, protowire.BytesType)
	out = protowire.AppendString(out, o.cleanDigest)
	out = append(out, o.dumpUnknown...)

	return out, o.generation, nil
}

// MarkDumped отмечает, что состояние поколения gen сохранено.
// Если объект изменился после Dump, он остается dirty for dump.
func (o *Object) MarkDumped(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen == o.generation {
		o.dumpedGen = gen
	}
}

// Restore восстанавливает объект из dump.
// Восстановленный объект не требует dump; он требует push только если
// dump содержал неотправленные изменения.
func Restore(data []byte) (*Object, error) {
	var (
		version  uint64
		ns       models.Namespace
		owner    string
		seqno    int64
		current  = make(hashSet)
		obsolete = make(hashSet)
		doc      *crdt.Document
		clean    string
		unknown  []byte
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, dumpError(n, "tag")
		}

		var m int
		switch {
		case num == dumpVersionNum && typ == protowire.VarintType:
			version, m = protowire.ConsumeVarint(data[n:])
		case num == dumpNamespaceNum && typ == protowire.VarintType:
			var v uint64
			v, m = protowire.ConsumeVarint(data[n:])
			ns = models.Namespace(v)
		case num == dumpOwnerNum && typ == protowire.BytesType:
			owner, m = protowire.ConsumeString(data[n:])
		case num == dumpSeqnoNum && typ == protowire.VarintType:
			var v uint64
			v, m = protowire.ConsumeVarint(data[n:])
			seqno = int64(v)
		case num == dumpCurrentNum && typ == protowire.BytesType:
			var h string
			h, m = protowire.ConsumeString(data[n:])
			current[h] = struct{}{}
		case num == dumpObsoleteNum && typ == protowire.BytesType:
			var h string
			h, m = protowire.ConsumeString(data[n:])
			obsolete[h] = struct{}{}
		case num == dumpDocumentNum && typ == protowire.BytesType:
			var raw []byte
			raw, m = protowire.ConsumeBytes(data[n:])
			if m >= 0 {
				decoded, err := codec.DecodeDocument(raw)
				if err != nil {
					return nil, errors.Mark(errors.Wrap(err, "dump document"), ErrInvalidDump)
				}
				doc = decoded
			}
		case num == dumpCleanNum && typ == protowire.BytesType:
			clean, m = protowire.ConsumeString(data[n:])
		default:
			m = protowire.ConsumeFieldValue(num, typ, data[n:])
			if m >= 0 {
				unknown = append(unknown, data[:n+m]...)
			}
		}
		if m < 0 {
			return nil, dumpError(m, "field")
		}
		data = data[n+m:]
	}

	switch {
	case version == 0:
		return nil, errors.Wrap(ErrInvalidDump, "missing version")
	case version > DumpVersion:
		return nil, errors.Wrapf(ErrInvalidDump, "unsupported dump version %d", version)
	case !ns.Valid():
		return nil, errors.Wrapf(ErrInvalidDump, "unknown namespace %d", ns)
	case doc == nil:
		return nil, errors.Wrap(ErrInvalidDump, "missing document")
	case seqno < 0:
		return nil, errors.Wrap(ErrInvalidDump, "negative seqno")
	}

	o := NewObject(ns, owner)
	o.doc = doc
	o.clock = crdt.NewSeqnoClock(seqno)
	o.current = current
	o.obsolete = obsolete
	o.dumpUnknown = unknown
	if clean != "" {
		o.cleanDigest = clean
	} else {
		o.cleanDigest = documentDigest(doc)
	}
	return o, nil
}

func dumpError(n int, what string) error {
	return errors.Wrapf(ErrInvalidDump, "%s: %v", what, protowire.ParseError(n))
}
