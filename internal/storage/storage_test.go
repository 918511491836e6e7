package storage

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestUpsertGuildKeepsPrefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertGuild(ctx, Guild{ID: "g1", Name: "old name"}); err != nil {
		t.Fatalf("upsert guild: %v", err)
	}
	if err := store.SetGuildPrefix(ctx, "g1", ";"); err != nil {
		t.Fatalf("set prefix: %v", err)
	}
	if err := store.UpsertGuild(ctx, Guild{ID: "g1", Name: "new name"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := store.GetGuild(ctx, "g1")
	if err != nil {
		t.Fatalf("get guild: %v", err)
	}
	if got.Name != "new name" {
		t.Fatalf("expected refreshed name, got %q", got.Name)
	}
	if got.Prefix != ";" {
		t.Fatalf("expected prefix to survive upsert, got %q", got.Prefix)
	}
}

func TestUpsertGuildEmptyNameKeepsStored(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertGuild(ctx, Guild{ID: "g1", Name: "real name"}); err != nil {
		t.Fatalf("upsert guild: %v", err)
	}
	// A cold state cache yields guilds with only an ID set.
	if err := store.UpsertGuild(ctx, Guild{ID: "g1"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := store.GetGuild(ctx, "g1")
	if err != nil {
		t.Fatalf("get guild: %v", err)
	}
	if got.Name != "real name" {
		t.Fatalf("expected stored name to survive empty observation, got %q", got.Name)
	}
}

func TestGetGuildNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetGuild(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertMemberRefreshesDisplayFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	member := Member{UserID: "u1", GuildID: "g1", DisplayName: "alice", AvatarURL: "a.png"}
	if err := store.UpsertMember(ctx, member); err != nil {
		t.Fatalf("upsert member: %v", err)
	}
	if err := store.SetMemberMod(ctx, "u1", "g1", true); err != nil {
		t.Fatalf("set mod: %v", err)
	}

	member.DisplayName = "alice2"
	if err := store.UpsertMember(ctx, member); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := store.GetMember(ctx, "u1", "g1")
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if got.DisplayName != "alice2" {
		t.Fatalf("expected refreshed display name, got %q", got.DisplayName)
	}
	if !got.IsMod {
		t.Fatalf("expected mod flag to survive upsert")
	}
}

func TestAddModRoleIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AddModRole(ctx, "g1", "r1"); err != nil {
		t.Fatalf("add mod role: %v", err)
	}
	if err := store.AddModRole(ctx, "g1", "r1"); err != nil {
		t.Fatalf("second add: %v", err)
	}

	roles, err := store.ListModRoles(ctx, "g1")
	if err != nil {
		t.Fatalf("list mod roles: %v", err)
	}
	if len(roles) != 1 || roles[0] != "r1" {
		t.Fatalf("expected exactly one binding, got %v", roles)
	}

	if err := store.RemoveModRole(ctx, "g1", "r1"); err != nil {
		t.Fatalf("remove mod role: %v", err)
	}
	roles, _ = store.ListModRoles(ctx, "g1")
	if len(roles) != 0 {
		t.Fatalf("expected no bindings after remove, got %v", roles)
	}
}

func TestMembershipEventBackReference(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	joinID, err := store.AddJoinEvent(ctx, "g1", 1)
	if err != nil {
		t.Fatalf("add join event: %v", err)
	}
	if err := store.AddLeaveEvent(ctx, "g1", 0); err != nil {
		t.Fatalf("add leave event: %v", err)
	}

	events, err := store.ListMembershipEvents(ctx, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	leave := events[1]
	if leave.LeftID != "g1" || leave.Delta != -1 {
		t.Fatalf("unexpected leave event: %+v", leave)
	}
	if leave.RelatedID == nil || *leave.RelatedID != joinID {
		t.Fatalf("expected back-reference to join %d, got %v", joinID, leave.RelatedID)
	}
}

func TestCommandLogCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.AddCommandLog(ctx, CommandLog{GuildID: "g1", Command: "help", Category: "General", UserID: "u1"}); err != nil {
			t.Fatalf("add command log: %v", err)
		}
	}
	if err := store.AddCommandLog(ctx, CommandLog{GuildID: "g1", Command: "ping", Category: "General"}); err != nil {
		t.Fatalf("add command log: %v", err)
	}

	counts, err := store.CountCommandUses(ctx, "g1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("count command uses: %v", err)
	}
	if counts["help"] != 3 || counts["ping"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestListErrorsSince(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := ErrorRecord{GuildID: "g1", CmdString: "!setup", Kind: "Unclassified", Message: "boom", CreatedAt: time.Now().AddDate(0, 0, -10)}
	recent := ErrorRecord{GuildID: "g1", CmdString: "!help", Kind: "ForbiddenOperation", Message: "denied"}
	if err := store.AddError(ctx, old); err != nil {
		t.Fatalf("add error: %v", err)
	}
	if err := store.AddError(ctx, recent); err != nil {
		t.Fatalf("add error: %v", err)
	}

	records, err := store.ListErrors(ctx, time.Now().AddDate(0, 0, -3))
	if err != nil {
		t.Fatalf("list errors: %v", err)
	}
	if len(records) != 1 || records[0].Kind != "ForbiddenOperation" {
		t.Fatalf("expected only the recent record, got %+v", records)
	}
}
