package cli

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/client/api"
	"github.com/iudanet/confsync/internal/client/identity"
	"github.com/iudanet/confsync/internal/client/projection"
	clientsync "github.com/iudanet/confsync/internal/client/sync"
	"github.com/iudanet/confsync/internal/configstore"
	"github.com/iudanet/confsync/internal/merge"
)

// session - разблокированная учетная запись: реестр объектов,
// синхронизация и проекция в локальную БД.
type session struct {
	id         *identity.Identity
	registry   *configstore.Registry
	projector  *projection.Projector
	reconciler *clientsync.Reconciler
	logger     *zap.Logger
}

func (c *Cli) startSession(ctx context.Context, id *identity.Identity) (*session, error) {
	if err := c.storage.SetDumpKey(id.DumpKey()); err != nil {
		return nil, err
	}

	logger := c.logger.With(zap.String("account", shortID(id.PublicKey())))

	projector, err := projection.Open(ctx, c.cfg.ProjectionPath, id.PublicKey(), logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open projection database")
	}

	transport := api.NewClient(c.cfg.SwarmURL, id.SigningKey(), logger,
		api.WithTimeout(c.cfg.SwarmTimeout),
		api.WithRateLimit(c.cfg.SwarmRate, c.cfg.SwarmBurst))

	registry := configstore.NewRegistry(id.PublicKey(), logger)
	reconciler := clientsync.NewReconciler(clientsync.Deps{
		Registry:  registry,
		Keyring:   id,
		Transport: transport,
		Engine:    merge.NewEngine(logger, projector),
		Dumps:     c.storage,
		Metadata:  c.storage,
		Logger:    logger,
	})

	restored, err := reconciler.Restore(ctx)
	if err != nil {
		_ = projector.Close()
		return nil, errors.Wrap(err, "failed to restore config")
	}
	if err := projector.Rebuild(ctx, registry); err != nil {
		// Проекция пересобирается из реестра, рассинхронизация не критична
		logger.Warn("failed to rebuild projection", zap.Error(err))
	}
	logger.Debug("account unlocked", zap.Int("restored", restored))

	return &session{
		id:         id,
		registry:   registry,
		projector:  projector,
		reconciler: reconciler,
		logger:     logger,
	}, nil
}

// commit сохраняет локальное изменение объекта и обновляет проекцию.
// В swarm изменение уходит при следующем sync.
func (s *session) commit(ctx context.Context, obj *configstore.Object) error {
	s.reconciler.DumpDirty(ctx)
	if obj.NeedsDump() {
		return errors.Newf("failed to save %s", obj.Namespace())
	}
	return s.projector.Project(ctx, obj)
}

func (s *session) close(ctx context.Context) {
	s.reconciler.DumpDirty(ctx)
	if err := s.projector.Close(); err != nil {
		s.logger.Warn("failed to close projection database", zap.Error(err))
	}
	s.registry.Close()
	s.id.Wipe()
}
