package sync

import (
	"context"
	gosync "sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMinInterval - минимальная пауза между проходами синхронизации.
const DefaultMinInterval = 3 * time.Second

// Runner выполняет один проход синхронизации.
type Runner interface {
	Run(ctx context.Context) Result
}

// SchedulerOption настраивает Scheduler.
type SchedulerOption func(*Scheduler)

// WithMinInterval задает минимальную паузу между проходами.
func WithMinInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.minInterval = d
	}
}

// WithBackoff задает задержки повторов после временных сбоев.
func WithBackoff(b *Backoff) SchedulerOption {
	return func(s *Scheduler) {
		s.backoff = b
	}
}

// WithResultHook вызывается после каждого прохода.
func WithResultHook(fn func(Result)) SchedulerOption {
	return func(s *Scheduler) {
		s.onResult = fn
	}
}

// Scheduler запускает проходы синхронизации по запросу.
// Запросы, пришедшие пока проход ожидает запуска, объединяются в один;
// проходы не чаще minInterval; после временного сбоя проход повторяется
// с экспоненциальной задержкой без ограничения числа попыток.
type Scheduler struct {
	runner      Runner
	backoff     *Backoff
	logger      *zap.Logger
	onResult    func(Result)
	wake        chan struct{}
	next        time.Time // время запланированного прохода, zero - не запланирован
	lastDone    time.Time
	minInterval time.Duration
	mu          gosync.Mutex
}

// NewScheduler создает Scheduler.
func NewScheduler(runner Runner, logger *zap.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:      runner,
		logger:      logger,
		minInterval: DefaultMinInterval,
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.backoff == nil {
		s.backoff = DefaultBackoff()
	}
	return s
}

// Schedule запрашивает проход. Если проход уже запланирован, запрос
// объединяется с ним; иначе проход запускается не раньше minInterval
// после завершения предыдущего.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	if !s.next.IsZero() {
		s.mu.Unlock()
		return
	}
	s.next = s.earliestLocked(time.Now())
	s.mu.Unlock()

	s.signal()
}

// Pending возвращает время запланированного прохода.
func (s *Scheduler) Pending() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next, !s.next.IsZero()
}

// Run выполняет запланированные проходы до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		s.mu.Lock()
		next := s.next
		s.mu.Unlock()

		var fire <-chan time.Time
		if !next.IsZero() {
			timer.Reset(time.Until(next))
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
			timer.Stop()
			continue
		case <-fire:
		}

		s.mu.Lock()
		s.next = time.Time{}
		s.mu.Unlock()

		result := s.runner.Run(ctx)
		s.handle(result)
		if s.onResult != nil {
			s.onResult(result)
		}
	}
}

func (s *Scheduler) handle(result Result) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch result.Status {
	case StatusSent:
		s.backoff.Reset()
		s.lastDone = now
		if result.Pending && s.next.IsZero() {
			s.next = s.earliestLocked(now)
		}
	case StatusRetry:
		s.lastDone = now
		delay := s.backoff.Next()
		s.next = now.Add(delay)
		s.logger.Warn("config sync will be retried",
			zap.String("run_id", result.RunID),
			zap.Duration("delay", delay),
			zap.Int("attempt", s.backoff.Attempts()),
			zap.Error(result.Err))
		return
	case StatusPermanentFailure:
		s.lastDone = now
		s.logger.Error("config sync rejected",
			zap.String("run_id", result.RunID),
			zap.Error(result.Err))
	case StatusDeferred:
		if s.next.IsZero() {
			s.next = now.Add(s.minInterval)
		}
	}

	// Запросы, пришедшие во время прохода, ждут minInterval
	if !s.next.IsZero() {
		if earliest := s.earliestLocked(now); s.next.Before(earliest) {
			s.next = earliest
		}
	}
}

func (s *Scheduler) earliestLocked(now time.Time) time.Time {
	if s.lastDone.IsZero() {
		return now
	}
	if earliest := s.lastDone.Add(s.minInterval); earliest.After(now) {
		return earliest
	}
	return now
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
