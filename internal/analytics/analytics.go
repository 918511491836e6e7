package analytics

import (
	"context"
	"time"

	"concord/internal/storage"

	"go.uber.org/zap"
)

// Service answers usage, error, and membership questions from the store.
type Service struct {
	store  *storage.Store
	logger *zap.Logger
}

func New(store *storage.Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CommandTotals returns per-command invocation counts for a guild since the
// given time.
func (s *Service) CommandTotals(ctx context.Context, guildID string, since time.Time) (map[string]int, error) {
	return s.store.CountCommandUses(ctx, guildID, since)
}

// ErrorsSince returns the persisted error records of the last N days in
// chronological order.
func (s *Service) ErrorsSince(ctx context.Context, days int) ([]storage.ErrorRecord, error) {
	if days < 1 {
		days = 1
	}
	return s.store.ListErrors(ctx, time.Now().AddDate(0, 0, -days))
}

// MembershipSummary aggregates the join/leave event stream.
type MembershipSummary struct {
	Joins   int
	Leaves  int
	Net     int
	Current int64
}

// Membership folds every membership event since the given time. Current is
// the running total carried by the most recent event, or zero when there is
// none.
func (s *Service) Membership(ctx context.Context, since time.Time) (MembershipSummary, error) {
	events, err := s.store.ListMembershipEvents(ctx, since)
	if err != nil {
		return MembershipSummary{}, err
	}

	var summary MembershipSummary
	for _, ev := range events {
		switch {
		case ev.JoinedID != "":
			summary.Joins++
		case ev.LeftID != "":
			summary.Leaves++
		}
		summary.Net += ev.Delta
		summary.Current = ev.Total
	}
	return summary, nil
}
