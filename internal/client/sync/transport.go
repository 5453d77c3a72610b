package sync

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/iudanet/confsync/internal/merge"
	"github.com/iudanet/confsync/internal/models"
)

var (
	// ErrTransient - временный сбой: сеть, rate limit, недоступный узел swarm.
	ErrTransient = errors.New("transient transport failure")
	// ErrPermanent - запрос отклонен и повтор не поможет.
	ErrPermanent = errors.New("permanent transport failure")
)

// IsTransient сообщает, стоит ли повторять операцию.
// Ошибки без пометки считаются временными: синхронизация не должна сдаваться.
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, ErrPermanent)
}

// Destination - swarm, в который отправляются объекты одного владельца.
type Destination struct {
	PubKey string
}

// StoreRequest - сохранение одного конфигурационного сообщения.
type StoreRequest struct {
	Payload   []byte
	Seqno     int64
	Namespace models.Namespace
}

// Batch - все изменения одного swarm, отправляемые одним запросом.
type Batch struct {
	Stores []StoreRequest
	Delete []string
}

// StoreResult - результат сохранения, в порядке Batch.Stores.
type StoreResult struct {
	Err  error
	Hash string
}

// BatchResult - ответ swarm на Batch.
// Deleted содержит хеши, которых больше нет в swarm (удалены сейчас или раньше).
type BatchResult struct {
	Stores  []StoreResult
	Deleted []string
}

// FetchResult - сообщения namespace, сохраненные после курсора.
type FetchResult struct {
	Messages []merge.RemoteMessage
	Cursor   int64
}

// Transport доставляет сообщения в swarm и забирает их оттуда.
type Transport interface {
	SendBatch(ctx context.Context, dest Destination, batch *Batch) (*BatchResult, error)
	Fetch(ctx context.Context, dest Destination, namespace models.Namespace, since int64) (*FetchResult, error)
}
