package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type CommandLog struct {
	ID         int64
	GuildID    string
	Command    string
	Category   string
	UserID     string
	Parameters string
	CreatedAt  time.Time
}

type MembershipEvent struct {
	ID        int64
	JoinedID  string
	LeftID    string
	Delta     int
	Total     int64
	RelatedID *int64
	CreatedAt time.Time
}

func (s *Store) UpsertCategory(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO categories (name) VALUES (?) ON CONFLICT(name) DO NOTHING`), name)
	return err
}

func (s *Store) UpsertCommand(ctx context.Context, name, category string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO commands (name, category) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET category = excluded.category`), name, category)
	return err
}

func (s *Store) AddCommandLog(ctx context.Context, log CommandLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO command_log (g_id, command, category, u_id, parameters, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), nullable(log.GuildID), log.Command, log.Category, nullable(log.UserID), log.Parameters, log.CreatedAt.Unix())
	return err
}

func (s *Store) CountCommandUses(ctx context.Context, guildID string, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT command, COUNT(*) FROM command_log
		WHERE g_id = ? AND created_at >= ?
		GROUP BY command ORDER BY command
	`), guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var command string
		var count int
		if err := rows.Scan(&command, &count); err != nil {
			return nil, err
		}
		counts[command] = count
	}
	return counts, rows.Err()
}

// AddJoinEvent records the bot being added to a guild and returns the row id
// so a later leave event can reference it.
func (s *Store) AddJoinEvent(ctx context.Context, guildID string, total int64) (int64, error) {
	now := time.Now().Unix()
	if s.driver == "pgx" {
		var id int64
		err := s.db.QueryRowContext(ctx, s.q(`
			INSERT INTO membership_events (joined_g_id, delta, total, created_at)
			VALUES (?, ?, ?, ?) RETURNING id`), guildID, 1, total, now).Scan(&id)
		return id, err
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO membership_events (joined_g_id, delta, total, created_at)
		VALUES (?, ?, ?, ?)`), guildID, 1, total, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddLeaveEvent records the bot being removed, back-referencing the latest
// join event for the same guild when one exists.
func (s *Store) AddLeaveEvent(ctx context.Context, guildID string, total int64) error {
	var related *int64
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id FROM membership_events WHERE joined_g_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`), guildID)
	var id int64
	if err := row.Scan(&id); err == nil {
		related = &id
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO membership_events (left_g_id, delta, total, related_id, created_at)
		VALUES (?, ?, ?, ?, ?)`), guildID, -1, total, related, time.Now().Unix())
	return err
}

func (s *Store) ListMembershipEvents(ctx context.Context, since time.Time) ([]MembershipEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, COALESCE(joined_g_id, ''), COALESCE(left_g_id, ''), delta, total, related_id, created_at
		FROM membership_events WHERE created_at >= ? ORDER BY created_at, id
	`), since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []MembershipEvent
	for rows.Next() {
		var ev MembershipEvent
		var related sql.NullInt64
		var created int64
		if err := rows.Scan(&ev.ID, &ev.JoinedID, &ev.LeftID, &ev.Delta, &ev.Total, &related, &created); err != nil {
			return nil, err
		}
		if related.Valid {
			value := related.Int64
			ev.RelatedID = &value
		}
		ev.CreatedAt = time.Unix(created, 0)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
