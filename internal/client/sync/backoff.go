package sync

import (
	"math/rand/v2"
	gosync "sync"
	"time"
)

// Backoff - экспоненциальная задержка с jitter. Число попыток не ограничено,
// ограничена только сама задержка.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	factor  float64
	jitter  float64

	mu       gosync.Mutex
	current  time.Duration
	attempts int
}

// NewBackoff создает Backoff; некорректные параметры заменяются значениями по умолчанию.
func NewBackoff(initial, max time.Duration, factor, jitter float64) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 5 * time.Minute
	}
	if factor <= 1 {
		factor = 2.0
	}
	if jitter < 0 || jitter > 1 {
		jitter = 0.1
	}

	return &Backoff{
		initial: initial,
		max:     max,
		factor:  factor,
		jitter:  jitter,
		current: initial,
	}
}

// DefaultBackoff: 1s, 2s, 4s ... до 5 минут, jitter 10%.
func DefaultBackoff() *Backoff {
	return NewBackoff(time.Second, 5*time.Minute, 2.0, 0.1)
}

// Next возвращает задержку перед следующей попыткой.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	duration := b.current
	if b.jitter > 0 {
		jitterRange := float64(duration) * b.jitter
		duration = time.Duration(float64(duration) + (rand.Float64()*2-1)*jitterRange)
	}

	b.attempts++
	b.current = time.Duration(float64(b.current) * b.factor)
	if b.current > b.max {
		b.current = b.max
	}

	return duration
}

// Reset возвращает Backoff в начальное состояние.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = b.initial
	b.attempts = 0
}

// Attempts возвращает число попыток с последнего Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
