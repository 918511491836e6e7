package storage

import (
	"context"
	"time"
)

type ErrorRecord struct {
	ID        int64
	GuildID   string
	CmdString string
	Kind      string
	Message   string
	Trace     string
	CreatedAt time.Time
}

func (s *Store) AddError(ctx context.Context, rec ErrorRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO errors (g_id, cmd_string, kind, message, trace, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), nullable(rec.GuildID), rec.CmdString, rec.Kind, rec.Message, rec.Trace, rec.CreatedAt.Unix())
	return err
}

func (s *Store) ListErrors(ctx context.Context, since time.Time) ([]ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, COALESCE(g_id, ''), cmd_string, kind, message, trace, created_at
		FROM errors WHERE created_at >= ? ORDER BY created_at, id
	`), since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ErrorRecord
	for rows.Next() {
		var rec ErrorRecord
		var created int64
		if err := rows.Scan(&rec.ID, &rec.GuildID, &rec.CmdString, &rec.Kind, &rec.Message, &rec.Trace, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(created, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}
