package codec

import (
	"github.com/cockroachdb/errors"

	"github.com/iudanet/confsync/internal/crdt"
)

// MaxPayloadSize - максимальный размер сообщения, принимаемого swarm
const MaxPayloadSize = 76800

// Limits задает максимальную длину значения для имени поля.
// Поля, отсутствующие в Limits, ограничены только MaxPayloadSize.
type Limits map[string]int

// Check проверяет все поля документа.
func (l Limits) Check(doc *crdt.Document) error {
	for _, key := range doc.Keys() {
		r, _ := doc.Record(key)
		for name, f := range r.Fields {
			limit, ok := l[name]
			if ok && len(f.Value) > limit {
				return errors.Wrapf(ErrFieldTooLarge, "record %q field %q: %d bytes, max %d",
					key, name, len(f.Value), limit)
			}
		}
	}
	return nil
}
