package crdt

import (
	"bytes"
	"sort"
)

// Record - запись конфигурации: набор именованных LWW-полей.
// Unknown хранит байты полей записи, которые текущая версия не понимает,
// чтобы они сохранялись при повторной сериализации.
type Record struct {
	Fields  map[string]Field
	Unknown []byte
}

// NewRecord создает пустую запись.
func NewRecord() *Record {
	return &Record{Fields: make(map[string]Field)}
}

// Clone создает глубокую копию записи.
func (r *Record) Clone() *Record {
	clone := &Record{
		Fields:  make(map[string]Field, len(r.Fields)),
		Unknown: append([]byte(nil), r.Unknown...),
	}
	for name, f := range r.Fields {
		clone.Fields[name] = f.Clone()
	}
	return clone
}

// FieldNames возвращает имена полей в лексикографическом порядке.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Document - state-based CRDT: отображение ключ записи -> запись.
// Слияние выполняется по каждому полю независимо, поэтому результат
// не зависит от порядка и количества слияний.
//
// Document не потокобезопасен: доступ синхронизирует владеющий им объект конфигурации.
type Document struct {
	records map[string]*Record
	unknown []byte
}

// NewDocument создает пустой документ.
func NewDocument() *Document {
	return &Document{records: make(map[string]*Record)}
}

// Len возвращает количество записей.
func (d *Document) Len() int {
	return len(d.records)
}

// Keys возвращает ключи записей в лексикографическом порядке.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.records))
	for key := range d.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Record возвращает запись по ключу (без копирования).
func (d *Document) Record(key string) (*Record, bool) {
	r, ok := d.records[key]
	return r, ok
}

// Has сообщает о наличии записи.
func (d *Document) Has(key string) bool {
	_, ok := d.records[key]
	return ok
}

// Field возвращает поле записи.
func (d *Document) Field(key, name string) (Field, bool) {
	r, ok := d.records[key]
	if !ok {
		return Field{}, false
	}
	f, ok := r.Fields[name]
	return f, ok
}

// Set записывает значение поля с заданным seqno (локальное изменение).
// Если значение не изменилось, поле не трогается и возвращается false.
func (d *Document) Set(key, name string, value []byte, seqno int64) bool {
	r, ok := d.records[key]
	if !ok {
		r = NewRecord()
		d.records[key] = r
	}
	if existing, ok := r.Fields[name]; ok && bytes.Equal(existing.Value, value) {
		return false
	}
	r.Fields[name] = Field{Seqno: seqno, Value: append([]byte(nil), value...)}
	return true
}

// PutRecord заменяет запись целиком (используется декодером).
func (d *Document) PutRecord(key string, r *Record) {
	d.records[key] = r
}

// Delete физически удаляет запись. Используется только для записей без tombstone.
func (d *Document) Delete(key string) bool {
	if _, ok := d.records[key]; !ok {
		return false
	}
	delete(d.records, key)
	return true
}

// Unknown возвращает неизвестные байты верхнего уровня.
func (d *Document) Unknown() []byte {
	return d.unknown
}

// SetUnknown задает неизвестные байты верхнего уровня.
func (d *Document) SetUnknown(raw []byte) {
	d.unknown = append([]byte(nil), raw...)
}

// Merge объединяет текущий документ с другим.
// Для каждого поля применяется правило policy(name); отсутствующие записи и поля добавляются.
// Возвращает ключи записей, содержимое которых изменилось.
func (d *Document) Merge(other *Document, policy PolicyFunc) []string {
	if policy == nil {
		policy = DefaultPolicy
	}

	var changed []string
	for _, key := range other.Keys() {
		otherRecord := other.records[key]
		existing, exists := d.records[key]

		// Если записи нет - добавляем
		if !exists {
			d.records[key] = otherRecord.Clone()
			changed = append(changed, key)
			continue
		}

		recordChanged := false
		for name, otherField := range otherRecord.Fields {
			current, ok := existing.Fields[name]
			if !ok || otherField.Wins(current, policy(name)) {
				existing.Fields[name] = otherField.Clone()
				recordChanged = true
			}
		}
		if bytes.Compare(otherRecord.Unknown, existing.Unknown) > 0 {
			existing.Unknown = append([]byte(nil), otherRecord.Unknown...)
			recordChanged = true
		}
		if recordChanged {
			changed = append(changed, key)
		}
	}

	if bytes.Compare(other.unknown, d.unknown) > 0 {
		d.unknown = append([]byte(nil), other.unknown...)
	}

	return changed
}

// Contributes сообщает, что хотя бы одно поле other совпадает
// с победившим значением в d. Используется после слияния, чтобы понять,
// какие удаленные сообщения все еще представляют актуальное состояние.
func (d *Document) Contributes(other *Document) bool {
	for key, otherRecord := range other.records {
		r, ok := d.records[key]
		if !ok {
			continue
		}
		for name, f := range otherRecord.Fields {
			if current, ok := r.Fields[name]; ok && current.Equal(f) {
				return true
			}
		}
	}
	return false
}

// Equal сравнивает документы по содержимому.
func (d *Document) Equal(other *Document) bool {
	if len(d.records) != len(other.records) || !bytes.Equal(d.unknown, other.unknown) {
		return false
	}
	for key, r := range d.records {
		o, ok := other.records[key]
		if !ok || len(r.Fields) != len(o.Fields) || !bytes.Equal(r.Unknown, o.Unknown) {
			return false
		}
		for name, f := range r.Fields {
			of, ok := o.Fields[name]
			if !ok || !f.Equal(of) {
				return false
			}
		}
	}
	return true
}

// Clone создает глубокую копию документа.
func (d *Document) Clone() *Document {
	clone := &Document{
		records: make(map[string]*Record, len(d.records)),
		unknown: append([]byte(nil), d.unknown...),
	}
	for key, r := range d.records {
		clone.records[key] = r.Clone()
	}
	return clone
}
