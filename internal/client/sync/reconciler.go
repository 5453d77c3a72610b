// Package sync отправляет локальные изменения конфигурации в swarm и забирает чужие.
package sync

import (
	"context"
	"sort"
	gosync "sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/client/storage"
	"github.com/iudanet/confsync/internal/codec"
	"github.com/iudanet/confsync/internal/configstore"
	"github.com/iudanet/confsync/internal/merge"
	"github.com/iudanet/confsync/internal/models"
)

// Keyring выдает ключи подписи и шифрования для объекта.
type Keyring interface {
	Sealer(owner string, namespace models.Namespace) (*codec.Sealer, error)
}

// Deps - зависимости Reconciler.
type Deps struct {
	Registry  *configstore.Registry
	Keyring   Keyring
	Transport Transport
	Engine    *merge.Engine
	Dumps     storage.DumpStorage
	Metadata  storage.MetadataStorage
	Logger    *zap.Logger
	// Now - часы для очистки старых записей о прочтении; по умолчанию time.Now.
	Now func() time.Time
}

// Reconciler выполняет проходы синхронизации учетной записи.
// Одновременно выполняется не больше одного прохода.
type Reconciler struct {
	registry  *configstore.Registry
	keyring   Keyring
	transport Transport
	engine    *merge.Engine
	dumps     storage.DumpStorage
	metadata  storage.MetadataStorage
	logger    *zap.Logger
	now       func() time.Time
	running   gosync.Mutex
}

// NewReconciler создает Reconciler.
func NewReconciler(d Deps) *Reconciler {
	engine := d.Engine
	if engine == nil {
		engine = merge.NewEngine(d.Logger, nil)
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		registry:  d.Registry,
		keyring:   d.Keyring,
		transport: d.Transport,
		engine:    engine,
		dumps:     d.Dumps,
		metadata:  d.Metadata,
		logger:    d.Logger,
		now:       now,
	}
}

type pendingPush struct {
	obj  *configstore.Object
	data *configstore.PushData
}

type destinationOutcome struct {
	err     error
	pushed  []configstore.Key
	skipped []configstore.Key
	deleted int
}

// Run отправляет все неотправленные изменения, сгруппированные по swarm,
// и удаляет устаревшие сообщения. Изменения, сделанные во время прохода,
// попадают в следующий проход.
func (r *Reconciler) Run(ctx context.Context) Result {
	runID := uuid.NewString()
	if !r.running.TryLock() {
		return Result{RunID: runID, Status: StatusDeferred}
	}
	defer r.running.Unlock()

	log := r.logger.With(zap.String("run_id", runID))
	result := Result{RunID: runID, Status: StatusSent}

	r.pruneVolatile(log)

	byDest := make(map[string][]*configstore.Object)
	byDest[r.registry.Owner()] = nil
	for _, obj := range r.registry.Objects() {
		byDest[obj.Owner()] = append(byDest[obj.Owner()], obj)
	}
	dests := make([]string, 0, len(byDest))
	for dest := range byDest {
		dests = append(dests, dest)
	}
	sort.Strings(dests)

	var retryErr, permanentErr error
	for _, dest := range dests {
		out := r.pushDestination(ctx, log, dest, byDest[dest])
		result.Pushed = append(result.Pushed, out.pushed...)
		result.Skipped = append(result.Skipped, out.skipped...)
		result.Deleted += out.deleted
		if out.err == nil {
			continue
		}
		if IsTransient(out.err) {
			retryErr = errors.CombineErrors(retryErr, out.err)
		} else {
			permanentErr = errors.CombineErrors(permanentErr, out.err)
		}
	}

	r.dumpDirty(ctx, log)

	switch {
	case retryErr != nil:
		result.Status = StatusRetry
		result.Err = retryErr
	case permanentErr != nil:
		result.Status = StatusPermanentFailure
		result.Err = permanentErr
	default:
		if err := r.metadata.SaveLastSyncTimestamp(ctx, time.Now().UnixMilli()); err != nil {
			log.Warn("failed to save last sync timestamp", zap.Error(err))
		}
	}

	skipped := make(map[configstore.Key]struct{}, len(result.Skipped))
	for _, key := range result.Skipped {
		skipped[key] = struct{}{}
	}
	for _, obj := range r.registry.NeedsPush() {
		if _, ok := skipped[keyOf(obj)]; !ok {
			result.Pending = true
			break
		}
	}

	log.Info("config sync finished",
		zap.Stringer("status", result.Status),
		zap.Int("pushed", len(result.Pushed)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("deleted", result.Deleted),
		zap.Bool("pending", result.Pending),
		zap.Error(result.Err))
	return result
}

func (r *Reconciler) pushDestination(ctx context.Context, log *zap.Logger, dest string, objs []*configstore.Object) destinationOutcome {
	var out destinationOutcome
	log = log.With(zap.String("destination", dest))

	backlog, err := r.metadata.GetPendingDeletions(ctx, dest)
	if err != nil {
		log.Warn("failed to load pending deletions", zap.Error(err))
	}

	deletes := make(map[string]struct{})
	for _, h := range backlog {
		deletes[h] = struct{}{}
	}

	var pushes []pendingPush
	for _, obj := range objs {
		if !obj.NeedsPush() {
			for _, h := range obj.ObsoleteHashes() {
				deletes[h] = struct{}{}
			}
			continue
		}

		data, err := r.computePush(obj)
		if err != nil {
			// Локальная ошибка: объект пропускается, остальные отправляются
			log.Error("failed to prepare config push",
				zap.Stringer("namespace", obj.Namespace()),
				zap.Error(err))
			out.skipped = append(out.skipped, keyOf(obj))
			continue
		}
		if data == nil {
			continue
		}
		pushes = append(pushes, pendingPush{obj: obj, data: data})
		for _, h := range data.ObsoleteHashes {
			deletes[h] = struct{}{}
		}
	}

	if len(pushes) == 0 && len(deletes) == 0 {
		return out
	}

	batch := &Batch{Delete: sortedSet(deletes)}
	for _, p := range pushes {
		batch.Stores = append(batch.Stores, StoreRequest{
			Namespace: p.data.Namespace,
			Seqno:     p.data.Seqno,
			Payload:   p.data.Payload,
		})
	}

	res, err := r.transport.SendBatch(ctx, Destination{PubKey: dest}, batch)
	if err == nil && len(res.Stores) != len(batch.Stores) {
		err = errors.Wrapf(ErrTransient, "swarm returned %d results for %d messages", len(res.Stores), len(batch.Stores))
	}
	if err != nil {
		for _, p := range pushes {
			if ferr := p.obj.PushFailed(p.data.Seqno); ferr != nil {
				log.Warn("failed to abort push", zap.Stringer("namespace", p.obj.Namespace()), zap.Error(ferr))
			}
		}
		out.err = errors.Wrapf(err, "send batch to %s", dest)
		log.Warn("config batch failed", zap.Error(err))
		return out
	}

	deleted := make(map[string]struct{}, len(res.Deleted))
	for _, h := range res.Deleted {
		deleted[h] = struct{}{}
	}
	out.deleted = len(deleted)

	for i, p := range pushes {
		stored := res.Stores[i]
		if stored.Err != nil || stored.Hash == "" {
			serr := stored.Err
			if serr == nil {
				serr = errors.Wrap(ErrTransient, "swarm returned no hash")
			}
			if ferr := p.obj.PushFailed(p.data.Seqno); ferr != nil {
				log.Warn("failed to abort push", zap.Stringer("namespace", p.obj.Namespace()), zap.Error(ferr))
			}
			out.err = errors.CombineErrors(out.err, errors.Wrapf(serr, "store %s", p.obj.Namespace()))
			continue
		}

		var confirmed []string
		for _, h := range p.data.ObsoleteHashes {
			if _, ok := deleted[h]; ok {
				confirmed = append(confirmed, h)
			}
		}
		if err := p.obj.ConfirmPush(p.data.Seqno, stored.Hash, confirmed); err != nil {
			log.Error("failed to confirm push", zap.Stringer("namespace", p.obj.Namespace()), zap.Error(err))
			continue
		}
		r.engine.NotifyPushConfirmed(ctx, p.obj, []string{stored.Hash})
		out.pushed = append(out.pushed, keyOf(p.obj))
		log.Debug("config pushed",
			zap.Stringer("namespace", p.obj.Namespace()),
			zap.Int64("seqno", p.data.Seqno),
			zap.String("hash", stored.Hash))
	}

	if len(deleted) > 0 {
		for _, obj := range objs {
			if err := obj.ForgetObsolete(res.Deleted); err != nil {
				log.Warn("failed to forget obsolete hashes", zap.Stringer("namespace", obj.Namespace()), zap.Error(err))
			}
		}
	}

	if len(backlog) > 0 {
		var remaining []string
		for _, h := range backlog {
			if _, ok := deleted[h]; !ok {
				remaining = append(remaining, h)
			}
		}
		if len(remaining) != len(backlog) {
			if err := r.metadata.SavePendingDeletions(ctx, dest, remaining); err != nil {
				log.Warn("failed to save pending deletions", zap.Error(err))
			}
		}
	}

	return out
}

// pruneVolatile удаляет записи о прочтении старше VolatileMaxAge
// до отправки, чтобы они не копились в swarm.
func (r *Reconciler) pruneVolatile(log *zap.Logger) {
	obj, ok := r.registry.Get(models.NamespaceConvoInfoVolatile, r.registry.Owner())
	if !ok {
		return
	}
	removed, err := configstore.NewConvoInfoVolatile(obj).Prune(r.now().Add(-configstore.VolatileMaxAge))
	if err != nil {
		log.Warn("failed to prune read state", zap.Error(err))
		return
	}
	if removed > 0 {
		log.Debug("pruned read state", zap.Int("removed", removed))
	}
}

// computePush готовит push объекта; nil без ошибки - объект уже чист.
func (r *Reconciler) computePush(obj *configstore.Object) (*configstore.PushData, error) {
	sealer, err := r.keyring.Sealer(obj.Owner(), obj.Namespace())
	if err != nil {
		return nil, err
	}
	data, err := obj.ComputePush(sealer)
	if errors.Is(err, configstore.ErrNotDirty) {
		return nil, nil
	}
	return data, err
}

// Pull забирает новые сообщения swarm учетной записи и вливает их в объекты.
// Неверно подписанные сообщения отбрасываются движком слияния.
func (r *Reconciler) Pull(ctx context.Context) (*PullResult, error) {
	result := &PullResult{}
	owner := r.registry.Owner()
	dest := Destination{PubKey: owner}

	var errs error
	for _, ns := range models.UserNamespaces {
		out, err := r.pullNamespace(ctx, dest, ns)
		if err != nil {
			r.logger.Warn("config pull failed", zap.Stringer("namespace", ns), zap.Error(err))
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "pull %s", ns))
			continue
		}
		result.Fetched += out.fetched
		result.Discarded += out.discarded
		if len(out.changed) > 0 {
			if result.Changed == nil {
				result.Changed = make(map[models.Namespace][]string)
			}
			result.Changed[ns] = out.changed
		}
	}

	r.dumpDirty(ctx, r.logger)
	return result, errs
}

// PullResult - итог Pull.
type PullResult struct {
	Changed   map[models.Namespace][]string
	Fetched   int
	Discarded int
}

type namespacePull struct {
	changed   []string
	fetched   int
	discarded int
}

func (r *Reconciler) pullNamespace(ctx context.Context, dest Destination, ns models.Namespace) (*namespacePull, error) {
	sealer, err := r.keyring.Sealer(dest.PubKey, ns)
	if err != nil {
		return nil, err
	}

	cursor, err := r.metadata.GetCursor(ctx, dest.PubKey, ns)
	if err != nil {
		return nil, err
	}

	fetched, err := r.transport.Fetch(ctx, dest, ns, cursor)
	if err != nil {
		return nil, err
	}

	out := &namespacePull{fetched: len(fetched.Messages)}
	if len(fetched.Messages) > 0 {
		obj := r.registry.GetOrConstruct(ns, dest.PubKey)
		merged, err := r.engine.Merge(ctx, obj, sealer, fetched.Messages)
		if err != nil {
			return nil, err
		}
		out.changed = merged.Outcome.Changed
		out.discarded = len(merged.Discarded)
	}

	if fetched.Cursor != cursor {
		if err := r.metadata.SaveCursor(ctx, dest.PubKey, ns, fetched.Cursor); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Forget удаляет объект с устройства; его сообщения будут удалены из swarm
// при следующем проходе.
func (r *Reconciler) Forget(ctx context.Context, namespace models.Namespace, owner string) error {
	obj, ok := r.registry.Get(namespace, owner)
	if !ok {
		return nil
	}

	hashes := append(obj.CurrentHashes(), obj.ObsoleteHashes()...)
	if len(hashes) > 0 {
		backlog, err := r.metadata.GetPendingDeletions(ctx, owner)
		if err != nil {
			return err
		}
		if err := r.metadata.SavePendingDeletions(ctx, owner, append(backlog, hashes...)); err != nil {
			return err
		}
	}

	r.registry.Remove(namespace, owner)
	return r.dumps.DeleteDump(ctx, namespace, owner)
}

// Restore загружает все сохраненные dump'ы в реестр.
func (r *Reconciler) Restore(ctx context.Context) (int, error) {
	infos, err := r.dumps.ListDumps(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, info := range infos {
		data, err := r.dumps.GetDump(ctx, info.Namespace, info.Owner)
		if err != nil {
			return restored, errors.Wrapf(err, "load dump %s", info.Namespace)
		}
		if _, err := r.registry.Restore(data); err != nil {
			// Поврежденный dump не должен блокировать остальные
			r.logger.Error("failed to restore config dump",
				zap.Stringer("namespace", info.Namespace),
				zap.String("owner", info.Owner),
				zap.Error(err))
			continue
		}
		restored++
	}
	return restored, nil
}

// DumpDirty сохраняет объекты с несохраненным состоянием.
func (r *Reconciler) DumpDirty(ctx context.Context) {
	r.dumpDirty(ctx, r.logger)
}

func (r *Reconciler) dumpDirty(ctx context.Context, log *zap.Logger) {
	for _, obj := range r.registry.NeedsDump() {
		data, gen, err := obj.Dump()
		if err != nil {
			log.Error("failed to dump config", zap.Stringer("namespace", obj.Namespace()), zap.Error(err))
			continue
		}
		if err := r.dumps.SaveDump(ctx, obj.Namespace(), obj.Owner(), data); err != nil {
			log.Error("failed to save config dump", zap.Stringer("namespace", obj.Namespace()), zap.Error(err))
			continue
		}
		obj.MarkDumped(gen)
	}
}

func keyOf(obj *configstore.Object) configstore.Key {
	return configstore.Key{Owner: obj.Owner(), Namespace: obj.Namespace()}
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
