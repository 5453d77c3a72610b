package crdt

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrSeqnoMismatch возвращается при подтверждении push с seqno,
// который не совпадает с ожидающим подтверждения.
var ErrSeqnoMismatch = errors.New("seqno does not match pending push")

// SeqnoClock отслеживает seqno объекта конфигурации.
// Seqno увеличивается ровно на единицу при каждом подтвержденном push
// и служит подсказкой о причинности, а не логическими часами:
// конфликты между устройствами с равным seqno разрешаются по содержимому.
type SeqnoClock struct {
	confirmed int64      // последний подтвержденный или слитый seqno
	pending   int64      // seqno отправленного, но не подтвержденного push (0 - нет)
	mu        sync.Mutex // мьютекс для потокобезопасности
}

// NewSeqnoClock создает часы с заданным подтвержденным seqno.
// Используется при создании объекта (0) и при восстановлении из dump.
func NewSeqnoClock(confirmed int64) *SeqnoClock {
	return &SeqnoClock{confirmed: confirmed}
}

// Confirmed возвращает последний подтвержденный seqno.
func (c *SeqnoClock) Confirmed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.confirmed
}

// Pending возвращает seqno push, ожидающего подтверждения.
func (c *SeqnoClock) Pending() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pending, c.pending != 0
}

// Next возвращает seqno, которым помечается локальная запись поля.
// Это seqno ближайшего push, который еще не отправлен:
// если push уже в полете, запись попадет только в следующий.
func (c *SeqnoClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return max(c.confirmed, c.pending) + 1
}

// BeginPush резервирует seqno для push.
// Повторные вызовы без подтверждения возвращают тот же seqno.
func (c *SeqnoClock) BeginPush() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == 0 {
		c.pending = c.confirmed + 1
	}
	return c.pending
}

// Confirm фиксирует push с заданным seqno.
func (c *SeqnoClock) Confirm(seqno int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == 0 || c.pending != seqno {
		return errors.Wrapf(ErrSeqnoMismatch, "pending %d, confirmed %d", c.pending, seqno)
	}
	c.confirmed = max(c.confirmed, seqno)
	c.pending = 0
	return nil
}

// Abort отменяет ожидающий push (сетевая ошибка, ошибка кодека).
func (c *SeqnoClock) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = 0
}

// Observe учитывает seqno, полученный при слиянии удаленного состояния:
// confirmed = max(confirmed, remote).
func (c *SeqnoClock) Observe(remote int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote > c.confirmed {
		c.confirmed = remote
	}
	return c.confirmed
}
