package projection

import (
	"context"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
)

// ContactRow - контакт в проекции.
type ContactRow struct {
	SessionID  string
	Name       string
	Nickname   string
	Priority   int64
	Approved   bool
	ApprovedMe bool
	Blocked    bool
}

// GroupRow - legacy-группа с количеством участников.
type GroupRow struct {
	ID                string
	Name              string
	DisappearingTimer time.Duration
	Priority          int64
	Members           int
	Admins            int
}

// CommunityRow - community в проекции.
type CommunityRow struct {
	BaseURL  string
	Room     string
	PubKey   string
	Priority int64
}

// ReadStateRow - состояние прочтения разговора.
type ReadStateRow struct {
	Kind         string
	Conversation string
	LastReadMs   int64
	Unread       bool
}

// Thread - видимый разговор.
type Thread struct {
	Kind     string
	ID       string
	Title    string
	Priority int64
}

// ProfileRow - профиль пользователя.
type ProfileRow struct {
	Name       string
	PictureURL string
}

// Contacts возвращает контакты, включая скрытые, если hidden == true.
func (p *Projector) Contacts(ctx context.Context, hidden bool) ([]ContactRow, error) {
	query := `SELECT session_id, name, nickname, priority, approved, approved_me, blocked
		FROM contacts`
	if !hidden {
		query += ` WHERE priority >= 0`
	}
	query += ` ORDER BY session_id`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "query contacts")
	}
	defer rows.Close()

	var out []ContactRow
	for rows.Next() {
		var c ContactRow
		if err := rows.Scan(&c.SessionID, &c.Name, &c.Nickname, &c.Priority,
			&c.Approved, &c.ApprovedMe, &c.Blocked); err != nil {
			return nil, errors.Wrap(err, "scan contact")
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "iterate contacts")
}

// Groups возвращает видимые legacy-группы.
func (p *Projector) Groups(ctx context.Context) ([]GroupRow, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.disappearing_timer, g.priority,
			COALESCE(SUM(CASE WHEN m.admin = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN m.admin = 1 THEN 1 ELSE 0 END), 0)
		FROM legacy_groups g
		LEFT JOIN group_members m ON m.group_id = g.id
		WHERE g.priority >= 0
		GROUP BY g.id
		ORDER BY g.priority DESC, g.name`)
	if err != nil {
		return nil, errors.Wrap(err, "query groups")
	}
	defer rows.Close()

	var out []GroupRow
	for rows.Next() {
		var (
			g     GroupRow
			timer int64
		)
		if err := rows.Scan(&g.ID, &g.Name, &timer, &g.Priority, &g.Members, &g.Admins); err != nil {
			return nil, errors.Wrap(err, "scan group")
		}
		g.DisappearingTimer = time.Duration(timer) * time.Second
		out = append(out, g)
	}
	return out, errors.Wrap(rows.Err(), "iterate groups")
}

// GroupMembers возвращает участников группы: session ID -> isAdmin.
func (p *Projector) GroupMembers(ctx context.Context, groupID string) (map[string]bool, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT session_id, admin FROM group_members WHERE group_id = ?`, groupID)
	if err != nil {
		return nil, errors.Wrap(err, "query group members")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var (
			id    string
			admin bool
		)
		if err := rows.Scan(&id, &admin); err != nil {
			return nil, errors.Wrap(err, "scan group member")
		}
		out[id] = admin
	}
	return out, errors.Wrap(rows.Err(), "iterate group members")
}

// Communities возвращает видимые communities.
func (p *Projector) Communities(ctx context.Context) ([]CommunityRow, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT base_url, room, pubkey, priority FROM communities
		WHERE priority >= 0
		ORDER BY priority DESC, community_key`)
	if err != nil {
		return nil, errors.Wrap(err, "query communities")
	}
	defer rows.Close()

	var out []CommunityRow
	for rows.Next() {
		var c CommunityRow
		if err := rows.Scan(&c.BaseURL, &c.Room, &c.PubKey, &c.Priority); err != nil {
			return nil, errors.Wrap(err, "scan community")
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "iterate communities")
}

// ReadState возвращает состояние прочтения разговора.
func (p *Projector) ReadState(ctx context.Context, kind, conversation string) (*ReadStateRow, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT last_read_ms, unread FROM read_state WHERE kind = ? AND conversation = ?`,
		kind, conversation)

	state := &ReadStateRow{Kind: kind, Conversation: conversation}
	if err := row.Scan(&state.LastReadMs, &state.Unread); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state, nil
		}
		return nil, errors.Wrap(err, "query read state")
	}
	return state, nil
}

// Threads возвращает видимые разговоры: закрепленные первыми.
func (p *Projector) Threads(ctx context.Context) ([]Thread, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT kind, id, title, priority FROM visible_threads ORDER BY priority DESC, kind, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query threads")
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.Kind, &t.ID, &t.Title, &t.Priority); err != nil {
			return nil, errors.Wrap(err, "scan thread")
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "iterate threads")
}

// Profile возвращает профиль; пустой, если он еще не проецировался.
func (p *Projector) Profile(ctx context.Context) (*ProfileRow, error) {
	profile := &ProfileRow{}
	err := p.db.QueryRowContext(ctx, `SELECT name, picture_url FROM profile WHERE id = 1`).
		Scan(&profile.Name, &profile.PictureURL)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "query profile")
	}
	return profile, nil
}

// ConfirmedPushes возвращает количество подтвержденных push в журнале.
func (p *Projector) ConfirmedPushes(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM push_log`).Scan(&n)
	return n, errors.Wrap(err, "count push log")
}

func hexKey(key []byte) string {
	return hex.EncodeToString(key)
}
