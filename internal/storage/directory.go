package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups for rows that do not exist.
var ErrNotFound = errors.New("storage: not found")

type Guild struct {
	ID       string
	Name     string
	Prefix   string
	JoinedAt time.Time
}

type Member struct {
	UserID      string
	GuildID     string
	DisplayName string
	AvatarURL   string
	IsBot       bool
	IsAdmin     bool
	IsMod       bool
}

type Role struct {
	GuildID  string
	RoleID   string
	Name     string
	ColorR   int
	ColorG   int
	ColorB   int
	Position int
	IsBase   bool
}

type Channel struct {
	GuildID   string
	ChannelID string
	Name      string
}

func (s *Store) GetGuild(ctx context.Context, guildID string) (Guild, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT g_id, name, prefix, joined_at FROM guilds WHERE g_id = ?`), guildID)

	var g Guild
	var joined int64
	if err := row.Scan(&g.ID, &g.Name, &g.Prefix, &joined); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Guild{}, ErrNotFound
		}
		return Guild{}, err
	}
	g.JoinedAt = time.Unix(joined, 0)
	return g, nil
}

// UpsertGuild creates the guild on first contact and refreshes the name on
// every later observation. An empty observed name keeps the stored one, since
// callers working from a cold state cache only know the guild ID. The stored
// prefix is never overwritten here.
func (s *Store) UpsertGuild(ctx context.Context, g Guild) error {
	if g.Prefix == "" {
		g.Prefix = "!"
	}
	if g.JoinedAt.IsZero() {
		g.JoinedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO guilds (g_id, name, prefix, joined_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(g_id) DO UPDATE SET name = COALESCE(NULLIF(excluded.name, ''), guilds.name)
	`), g.ID, g.Name, g.Prefix, g.JoinedAt.Unix())
	return err
}

func (s *Store) SetGuildPrefix(ctx context.Context, guildID, prefix string) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE guilds SET prefix = ? WHERE g_id = ?`), prefix, guildID)
	return err
}

func (s *Store) GetMember(ctx context.Context, userID, guildID string) (Member, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT u_id, g_id, display_name, avatar_url, is_bot, is_admin, is_mod
		FROM members WHERE u_id = ? AND g_id = ?`), userID, guildID)

	var m Member
	var isBot, isAdmin, isMod int
	if err := row.Scan(&m.UserID, &m.GuildID, &m.DisplayName, &m.AvatarURL, &isBot, &isAdmin, &isMod); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, err
	}
	m.IsBot = isBot == 1
	m.IsAdmin = isAdmin == 1
	m.IsMod = isMod == 1
	return m, nil
}

// UpsertMember refreshes display fields on every observation. The mod and
// admin flags are managed by SetMemberMod and are left untouched on conflict.
func (s *Store) UpsertMember(ctx context.Context, m Member) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO members (u_id, g_id, display_name, avatar_url, is_bot, is_admin, is_mod)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(u_id, g_id) DO UPDATE SET
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			is_bot = excluded.is_bot
	`), m.UserID, m.GuildID, m.DisplayName, m.AvatarURL, boolToInt(m.IsBot), boolToInt(m.IsAdmin), boolToInt(m.IsMod))
	return err
}

func (s *Store) SetMemberMod(ctx context.Context, userID, guildID string, mod bool) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE members SET is_mod = ? WHERE u_id = ? AND g_id = ?`), boolToInt(mod), userID, guildID)
	return err
}

func (s *Store) ListModMembers(ctx context.Context, guildID string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT u_id, g_id, display_name, avatar_url, is_bot, is_admin, is_mod
		FROM members WHERE g_id = ? AND is_mod = 1 ORDER BY display_name`), guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		var isBot, isAdmin, isMod int
		if err := rows.Scan(&m.UserID, &m.GuildID, &m.DisplayName, &m.AvatarURL, &isBot, &isAdmin, &isMod); err != nil {
			return nil, err
		}
		m.IsBot = isBot == 1
		m.IsAdmin = isAdmin == 1
		m.IsMod = isMod == 1
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) UpsertRole(ctx context.Context, r Role) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO roles (g_id, role_id, name, color_r, color_g, color_b, position, is_base)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(g_id, role_id) DO UPDATE SET
			name = excluded.name,
			color_r = excluded.color_r,
			color_g = excluded.color_g,
			color_b = excluded.color_b,
			position = excluded.position
	`), r.GuildID, r.RoleID, r.Name, r.ColorR, r.ColorG, r.ColorB, r.Position, boolToInt(r.IsBase))
	return err
}

func (s *Store) ListRoles(ctx context.Context, guildID string) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT g_id, role_id, name, color_r, color_g, color_b, position, is_base
		FROM roles WHERE g_id = ? ORDER BY position DESC, role_id`), guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		var isBase int
		if err := rows.Scan(&r.GuildID, &r.RoleID, &r.Name, &r.ColorR, &r.ColorG, &r.ColorB, &r.Position, &isBase); err != nil {
			return nil, err
		}
		r.IsBase = isBase == 1
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (s *Store) UpsertChannel(ctx context.Context, c Channel) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO channels (g_id, channel_id, name) VALUES (?, ?, ?)
		ON CONFLICT(g_id, channel_id) DO UPDATE SET name = excluded.name
	`), c.GuildID, c.ChannelID, c.Name)
	return err
}

// AddModRole marks a role as conferring moderator status. Adding the same
// role twice leaves exactly one binding.
func (s *Store) AddModRole(ctx context.Context, guildID, roleID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO mod_roles (g_id, role_id) VALUES (?, ?)
		ON CONFLICT(g_id, role_id) DO NOTHING`), guildID, roleID)
	return err
}

func (s *Store) RemoveModRole(ctx context.Context, guildID, roleID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		DELETE FROM mod_roles WHERE g_id = ? AND role_id = ?`), guildID, roleID)
	return err
}

func (s *Store) ClearModRoles(ctx context.Context, guildID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM mod_roles WHERE g_id = ?`), guildID)
	return err
}

func (s *Store) ListModRoles(ctx context.Context, guildID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT role_id FROM mod_roles WHERE g_id = ? ORDER BY role_id`), guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		roles = append(roles, id)
	}
	return roles, rows.Err()
}
