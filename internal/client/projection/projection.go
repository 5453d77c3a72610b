// Package projection материализует состояние объектов конфигурации
// в локальную SQLite базу, из которой читает CLI.
package projection

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/iudanet/confsync/internal/configstore"
	"github.com/iudanet/confsync/internal/merge"
	"github.com/iudanet/confsync/internal/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Виды записей read_state
const (
	KindOneToOne    = "one_to_one"
	KindCommunity   = "community"
	KindLegacyGroup = "legacy_group"
)

// Projector применяет результаты слияния к локальной БД.
// Каждое событие пересобирает таблицы namespace целиком в одной транзакции,
// поэтому читатели никогда не видят частично примененное слияние.
type Projector struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
	owner  string
}

var _ merge.Listener = (*Projector)(nil)

// Open открывает (или создает) БД проекции и применяет миграции.
// owner - публичный ключ учетной записи: проецируются только ее объекты.
func Open(ctx context.Context, dbPath, owner string, logger *zap.Logger) (*Projector, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open projection database")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping projection database")
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "failed to set pragma %q", pragma)
		}
	}

	if err := migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db, owner, logger), nil
}

// New создает Projector поверх уже подготовленной БД.
func New(db *sql.DB, owner string, logger *zap.Logger) *Projector {
	return &Projector{db: db, owner: owner, logger: logger, now: time.Now}
}

func migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "projection migrations")
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		return errors.Wrap(err, "goose provider")
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "goose up failed")
	}
	for _, r := range results {
		logger.Debug("projection migration applied",
			zap.String("source", r.Source.Path),
			zap.Duration("duration", r.Duration))
	}
	return nil
}

// Close закрывает БД.
func (p *Projector) Close() error {
	return p.db.Close()
}

// OnMergeCompleted пересобирает проекцию namespace после слияния.
// Ошибка записи не влияет на синхронизацию: проекция будет пересобрана
// при следующем слиянии или через Rebuild.
func (p *Projector) OnMergeCompleted(ctx context.Context, event merge.Event) {
	if err := p.Project(ctx, event.Object); err != nil {
		p.logger.Error("failed to project merged config",
			zap.Stringer("namespace", event.Namespace),
			zap.Int("changed", len(event.Changed)),
			zap.Error(err))
	}
}

// OnPushConfirmed записывает подтвержденные хеши в журнал.
func (p *Projector) OnPushConfirmed(ctx context.Context, event merge.Event) {
	if len(event.Hashes) == 0 {
		return
	}

	err := p.inTx(ctx, func(tx *sql.Tx) error {
		confirmedAt := p.now().Unix()
		for _, hash := range event.Hashes {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO push_log (namespace, owner, hash, confirmed_at) VALUES (?, ?, ?, ?)`,
				int(event.Namespace), event.Owner, hash, confirmedAt)
			if err != nil {
				return errors.Wrap(err, "insert push log")
			}
		}
		return nil
	})
	if err != nil {
		p.logger.Warn("failed to record confirmed push",
			zap.Stringer("namespace", event.Namespace),
			zap.Error(err))
	}
}

// Project пересобирает таблицы, соответствующие namespace объекта.
// Объекты других учетных записей и групповые namespace пропускаются.
func (p *Projector) Project(ctx context.Context, obj *configstore.Object) error {
	if obj == nil {
		return configstore.ErrNilConfigObject
	}
	if obj.Owner() != p.owner {
		return nil
	}

	var apply func(ctx context.Context, tx *sql.Tx) error
	switch obj.Namespace() {
	case models.NamespaceContacts:
		apply = projectContacts(configstore.NewContacts(obj))
	case models.NamespaceUserGroups:
		apply = projectUserGroups(configstore.NewUserGroups(obj))
	case models.NamespaceConvoInfoVolatile:
		apply = projectVolatile(configstore.NewConvoInfoVolatile(obj))
	case models.NamespaceUserProfile:
		apply = projectProfile(configstore.NewUserProfile(obj))
	default:
		p.logger.Debug("namespace is not projected", zap.Stringer("namespace", obj.Namespace()))
		return nil
	}

	if err := p.inTx(ctx, func(tx *sql.Tx) error { return apply(ctx, tx) }); err != nil {
		return errors.Wrapf(err, "project %s", obj.Namespace())
	}
	return nil
}

// Rebuild пересобирает проекцию из всех объектов реестра.
// Вызывается после восстановления dump'ов при старте.
func (p *Projector) Rebuild(ctx context.Context, registry *configstore.Registry) error {
	var errs error
	for _, obj := range registry.Objects() {
		if err := p.Project(ctx, obj); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

// Clear удаляет все спроецированные данные и журнал push.
func (p *Projector) Clear(ctx context.Context) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{
			"contacts", "group_members", "legacy_groups", "communities",
			"read_state", "profile", "push_log",
		} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return errors.Wrapf(err, "clear %s", table)
			}
		}
		return nil
	})
}

func (p *Projector) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func projectContacts(view *configstore.Contacts) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM contacts`); err != nil {
			return errors.Wrap(err, "clear contacts")
		}

		for c := range view.Iterate(nil) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO contacts (session_id, name, nickname, picture_url, priority,
					approved, approved_me, blocked, expiration_mode, expiration_timer, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.SessionID, c.Name, c.Nickname, c.Picture.URL, c.Priority,
				c.Approved, c.ApprovedMe, c.Blocked,
				int64(c.ExpirationMode), int64(c.ExpirationTimer/time.Second), unixOrZero(c.CreatedAt))
			if err != nil {
				return errors.Wrapf(err, "insert contact %s", c.SessionID)
			}
		}
		return nil
	}
}

func projectUserGroups(view *configstore.UserGroups) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, table := range []string{"group_members", "legacy_groups", "communities"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return errors.Wrapf(err, "clear %s", table)
			}
		}

		for g := range view.LegacyGroups(nil) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO legacy_groups (id, name, priority, disappearing_timer, notify_mode, mute_until, joined_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				g.ID, g.Name, g.Priority, int64(g.DisappearingTimer/time.Second),
				int64(g.NotifyMode), unixOrZero(g.MuteUntil), unixOrZero(g.JoinedAt))
			if err != nil {
				return errors.Wrapf(err, "insert legacy group %s", g.ID)
			}

			for _, member := range g.SortedMembers() {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO group_members (group_id, session_id, admin) VALUES (?, ?, ?)`,
					g.ID, member, g.Members[member])
				if err != nil {
					return errors.Wrapf(err, "insert member of %s", g.ID)
				}
			}
		}

		for c := range view.Communities(nil) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO communities (community_key, base_url, room, pubkey, priority)
				VALUES (?, ?, ?, ?, ?)`,
				c.Key(), c.BaseURL, c.Room, hexKey(c.PubKey), c.Priority)
			if err != nil {
				return errors.Wrapf(err, "insert community %s", c.Key())
			}
		}
		return nil
	}
}

func projectVolatile(view *configstore.ConvoInfoVolatile) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM read_state`); err != nil {
			return errors.Wrap(err, "clear read state")
		}

		insert := func(kind, conversation string, state models.ReadState) error {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO read_state (kind, conversation, last_read_ms, unread) VALUES (?, ?, ?, ?)`,
				kind, conversation, state.LastReadMs, state.Unread)
			return errors.Wrapf(err, "insert read state %s/%s", kind, conversation)
		}

		for e := range view.OneToOnes(nil) {
			if err := insert(KindOneToOne, e.SessionID, e.ReadState); err != nil {
				return err
			}
		}
		for e := range view.LegacyGroups(nil) {
			if err := insert(KindLegacyGroup, e.GroupID, e.ReadState); err != nil {
				return err
			}
		}
		for e := range view.Communities(nil) {
			if err := insert(KindCommunity, e.Key(), e.ReadState); err != nil {
				return err
			}
		}
		return nil
	}
}

func projectProfile(view *configstore.UserProfile) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		profile, err := view.Get()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO profile (id, name, picture_url, note_to_self_priority) VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				picture_url = excluded.picture_url,
				note_to_self_priority = excluded.note_to_self_priority`,
			profile.Name, profile.Picture.URL, profile.NoteToSelfPriority)
		return errors.Wrap(err, "upsert profile")
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
