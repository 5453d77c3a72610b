package crdt

import "bytes"

// Policy определяет правило разрешения конфликта для поля.
type Policy int

const (
	// PolicyLWW - побеждает значение с большим seqno,
	// при равных seqno - лексикографически большее значение.
	PolicyLWW Policy = iota
	// PolicyMax - побеждает лексикографически большее значение независимо от seqno
	// (используется для времени последнего прочтения: значение хранится big-endian).
	PolicyMax
)

// PolicyFunc возвращает правило для поля по его идентификатору.
type PolicyFunc func(field string) Policy

// DefaultPolicy применяет LWW ко всем полям, включая неизвестные.
func DefaultPolicy(string) Policy {
	return PolicyLWW
}

// Field - LWW-регистр: значение поля и seqno push, в котором оно было записано.
type Field struct {
	Value []byte
	Seqno int64
}

// Wins сообщает, что f строго побеждает other по заданному правилу.
// Отношение является строгим полным порядком, поэтому слияние
// коммутативно, ассоциативно и идемпотентно.
func (f Field) Wins(other Field, policy Policy) bool {
	cmp := bytes.Compare(f.Value, other.Value)
	if policy == PolicyMax {
		if cmp != 0 {
			return cmp > 0
		}
		return f.Seqno > other.Seqno
	}

	if f.Seqno != other.Seqno {
		return f.Seqno > other.Seqno
	}
	return cmp > 0
}

// Equal сравнивает поля по seqno и значению.
func (f Field) Equal(other Field) bool {
	return f.Seqno == other.Seqno && bytes.Equal(f.Value, other.Value)
}

// Clone создает копию поля.
func (f Field) Clone() Field {
	return Field{Seqno: f.Seqno, Value: append([]byte(nil), f.Value...)}
}
