package api

import (
	"github.com/cockroachdb/errors"

	clientsync "github.com/iudanet/confsync/internal/client/sync"
)

var (
	// ErrNetwork - узел swarm недоступен или ответ не получен.
	ErrNetwork = errors.Mark(errors.New("swarm unreachable"), clientsync.ErrTransient)
	// ErrRateLimited - узел swarm ограничил частоту запросов.
	ErrRateLimited = errors.Mark(errors.New("swarm rate limit exceeded"), clientsync.ErrTransient)
	// ErrUnavailable - внутренняя ошибка узла swarm.
	ErrUnavailable = errors.Mark(errors.New("swarm node unavailable"), clientsync.ErrTransient)
	// ErrRejected - узел отклонил запрос; повтор того же запроса не поможет.
	ErrRejected = errors.Mark(errors.New("swarm rejected request"), clientsync.ErrPermanent)
	// ErrUnauthorized - токен доступа отклонен.
	ErrUnauthorized = errors.Mark(errors.New("swarm authorization failed"), clientsync.ErrPermanent)
)
