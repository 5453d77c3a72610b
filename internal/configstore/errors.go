package configstore

import (
	"github.com/cockroachdb/errors"

	"github.com/iudanet/confsync/internal/crdt"
)

var (
	// ErrNilConfigObject - операция над уничтоженным объектом.
	// Это ошибка конфигурации: молча игнорировать ее нельзя, иначе данные потеряются.
	ErrNilConfigObject = errors.New("config object is nil or destroyed")
	// ErrNotFound - запись отсутствует
	ErrNotFound = errors.New("config entry not found")
	// ErrSeqnoMismatch - подтверждение push с неожиданным seqno
	ErrSeqnoMismatch = crdt.ErrSeqnoMismatch
	// ErrNotPushing - подтверждение или отмена push без push в полете
	ErrNotPushing = errors.New("config object is not pushing")
	// ErrNotDirty - push запрошен для объекта без изменений
	ErrNotDirty = errors.New("config object has nothing to push")
	// ErrInvalidKey - некорректный ключ записи
	ErrInvalidKey = errors.New("invalid config entry key")
	// ErrInvalidDump - dump поврежден или создан несовместимой версией
	ErrInvalidDump = errors.New("invalid config dump")
)
