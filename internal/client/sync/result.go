package sync

import (
	"github.com/iudanet/confsync/internal/configstore"
)

// Status - итог прохода синхронизации.
type Status int

const (
	// StatusSent - все изменения отправлены и подтверждены.
	StatusSent Status = iota + 1
	// StatusRetry - временный сбой, проход нужно повторить с задержкой.
	StatusRetry
	// StatusPermanentFailure - swarm отклонил запрос; повтор не поможет.
	StatusPermanentFailure
	// StatusDeferred - проход не выполнялся: уже идет другой.
	StatusDeferred
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusRetry:
		return "retry"
	case StatusPermanentFailure:
		return "permanent_failure"
	case StatusDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Result - итог Reconciler.Run.
type Result struct {
	Err     error // причина Retry или PermanentFailure
	RunID   string
	Pushed  []configstore.Key
	Skipped []configstore.Key // объекты с локальной ошибкой (подпись, размер), пропущены в этом проходе
	Deleted int
	Status  Status
	// Pending - есть изменения, появившиеся во время прохода
	Pending bool
}
