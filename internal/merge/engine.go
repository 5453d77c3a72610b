package merge

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/codec"
	"github.com/iudanet/confsync/internal/configstore"
	"github.com/iudanet/confsync/internal/models"
)

// Opener проверяет и разбирает сообщения одного namespace.
type Opener interface {
	Open(payload []byte) (*codec.Message, error)
}

// RemoteMessage - сообщение, полученное из swarm.
type RemoteMessage struct {
	Hash    string
	Payload []byte
}

// Event описывает изменения объекта для слушателей.
type Event struct {
	Object    *configstore.Object
	Owner     string
	Changed   []string // ключи измененных записей
	Hashes    []string
	Namespace models.Namespace
}

// Listener получает уведомления о результатах синхронизации.
// Используется слоем проекции в локальную БД.
type Listener interface {
	OnMergeCompleted(ctx context.Context, event Event)
	OnPushConfirmed(ctx context.Context, event Event)
}

// NopListener игнорирует все уведомления.
type NopListener struct{}

// OnMergeCompleted ничего не делает.
func (NopListener) OnMergeCompleted(context.Context, Event) {
}

// OnPushConfirmed ничего не делает.
func (NopListener) OnPushConfirmed(context.Context, Event) {
}

// Result - итог слияния.
type Result struct {
	Outcome   *configstore.MergeOutcome
	Discarded []string // хеши сообщений, не прошедших проверку
}

// Engine сливает удаленные состояния в объекты конфигурации.
type Engine struct {
	logger   *zap.Logger
	listener Listener
}

// NewEngine создает движок слияния.
func NewEngine(logger *zap.Logger, listener Listener) *Engine {
	if listener == nil {
		listener = NopListener{}
	}
	return &Engine{logger: logger, listener: listener}
}

// Merge проверяет каждое сообщение независимо и вливает прошедшие проверку в obj.
// Сообщения с неверной подписью или поврежденные отбрасываются без ошибки:
// чужая или испорченная запись не должна прерывать слияние.
// Вызывающий передает полный набор доступных сообщений; движок ничего не кэширует.
func (e *Engine) Merge(ctx context.Context, obj *configstore.Object, opener Opener, messages []RemoteMessage) (*Result, error) {
	if obj == nil {
		return nil, configstore.ErrNilConfigObject
	}

	result := &Result{}
	remotes := make([]configstore.Remote, 0, len(messages))
	for _, msg := range messages {
		hash := msg.Hash
		if hash == "" {
			hash = codec.MessageHash(msg.Payload)
		}

		opened, err := opener.Open(msg.Payload)
		if err != nil {
			if !errors.Is(err, codec.ErrVerificationFailed) && !errors.Is(err, codec.ErrParse) {
				return nil, errors.Wrapf(err, "failed to open message %s", hash)
			}
			e.logger.Warn("discarding remote config message",
				zap.String("namespace", obj.Namespace().String()),
				zap.String("hash", hash),
				zap.Error(err))
			result.Discarded = append(result.Discarded, hash)
			continue
		}

		remotes = append(remotes, configstore.Remote{
			Hash:     hash,
			Seqno:    opened.Seqno,
			Document: opened.Document,
		})
	}

	outcome, err := obj.Merge(remotes)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to merge %s", obj.Namespace())
	}
	result.Outcome = outcome

	e.logger.Debug("config merged",
		zap.String("namespace", obj.Namespace().String()),
		zap.Int("messages", len(messages)),
		zap.Int("discarded", len(result.Discarded)),
		zap.Int("changed", len(outcome.Changed)),
		zap.Int64("seqno", outcome.Seqno))

	if len(outcome.Changed) > 0 {
		e.listener.OnMergeCompleted(ctx, Event{
			Namespace: obj.Namespace(),
			Owner:     obj.Owner(),
			Object:    obj,
			Changed:   outcome.Changed,
			Hashes:    outcome.Current,
		})
	}

	return result, nil
}

// NotifyPushConfirmed сообщает слушателю о подтвержденном push.
func (e *Engine) NotifyPushConfirmed(ctx context.Context, obj *configstore.Object, hashes []string) {
	e.listener.OnPushConfirmed(ctx, Event{
		Namespace: obj.Namespace(),
		Owner:     obj.Owner(),
		Object:    obj,
		Hashes:    hashes,
	})
}
