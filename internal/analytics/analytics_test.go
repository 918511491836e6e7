package analytics

import (
	"context"
	"testing"
	"time"

	"concord/internal/storage"

	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.New("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(store, zap.NewNop()), store
}

func TestMembershipSummary(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	if _, err := store.AddJoinEvent(ctx, "g1", 1); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := store.AddJoinEvent(ctx, "g2", 2); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := store.AddLeaveEvent(ctx, "g1", 1); err != nil {
		t.Fatalf("leave: %v", err)
	}

	summary, err := service.Membership(ctx, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("membership: %v", err)
	}
	if summary.Joins != 2 || summary.Leaves != 1 {
		t.Fatalf("unexpected join/leave counts: %+v", summary)
	}
	if summary.Net != 1 {
		t.Fatalf("expected net +1, got %+v", summary)
	}
	if summary.Current != 1 {
		t.Fatalf("expected running total from last event, got %+v", summary)
	}
}

func TestErrorsSinceWindow(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	stale := storage.ErrorRecord{CmdString: "!old", Kind: "Unclassified", Message: "old", CreatedAt: time.Now().AddDate(0, 0, -30)}
	fresh := storage.ErrorRecord{CmdString: "!new", Kind: "Unclassified", Message: "new"}
	if err := store.AddError(ctx, stale); err != nil {
		t.Fatalf("add error: %v", err)
	}
	if err := store.AddError(ctx, fresh); err != nil {
		t.Fatalf("add error: %v", err)
	}

	records, err := service.ErrorsSince(ctx, 7)
	if err != nil {
		t.Fatalf("errors since: %v", err)
	}
	if len(records) != 1 || records[0].CmdString != "!new" {
		t.Fatalf("expected only the fresh record, got %+v", records)
	}

	// A nonsense window is clamped rather than rejected.
	if _, err := service.ErrorsSince(ctx, 0); err != nil {
		t.Fatalf("clamped window: %v", err)
	}
}

func TestCommandTotalsDelegates(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	if err := store.AddCommandLog(ctx, storage.CommandLog{GuildID: "g1", Command: "ping", Category: "General"}); err != nil {
		t.Fatalf("add log: %v", err)
	}
	totals, err := service.CommandTotals(ctx, "g1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals["ping"] != 1 {
		t.Fatalf("unexpected totals: %v", totals)
	}
}
