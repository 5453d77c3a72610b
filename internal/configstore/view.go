package configstore

import (
	"iter"
	"sort"
	"strings"

	"github.com/iudanet/confsync/internal/crdt"
)

// Visible - предикат для Iterate, пропускающий скрытые (tombstone) записи.
func Visible[T interface{ Hidden() bool }](entry T) bool {
	return !entry.Hidden()
}

// lookup читает и декодирует запись.
func lookup[T any](o *Object, key string, decode func(key string, r *crdt.Record) T) (T, bool, error) {
	var (
		entry T
		found bool
	)
	err := o.View(func(doc *crdt.Document) error {
		r, ok := doc.Record(key)
		if ok {
			entry, found = decode(key, r), true
		}
		return nil
	})
	return entry, found, err
}

// iterate возвращает ленивую последовательность записей с заданным префиксом ключа.
// Последовательность можно обходить повторно: каждый обход видит актуальное состояние.
// Блокировка объекта не удерживается во время yield, поэтому внутри цикла
// можно изменять объект.
func iterate[T any](o *Object, prefix string, decode func(key string, r *crdt.Record) T, pred func(T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		var keys []string
		err := o.View(func(doc *crdt.Document) error {
			for _, key := range doc.Keys() {
				if strings.HasPrefix(key, prefix) {
					keys = append(keys, key)
				}
			}
			return nil
		})
		if err != nil {
			return
		}

		for _, key := range keys {
			entry, found, err := lookup(o, key, decode)
			if err != nil {
				return
			}
			if !found || (pred != nil && !pred(entry)) {
				continue
			}
			if !yield(entry) {
				return
			}
		}
	}
}

// Collect собирает последовательность в срез.
func Collect[T any](seq iter.Seq[T]) []T {
	var out []T
	for entry := range seq {
		out = append(out, entry)
	}
	return out
}

// fieldsWithPrefix возвращает имена полей записи с префиксом в порядке сортировки.
func fieldsWithPrefix(r *crdt.Record, prefix string) []string {
	var names []string
	for name := range r.Fields {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
