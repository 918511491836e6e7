package worker

import (
	"context"
	"testing"
	"time"

	"concord/internal/config"
	"concord/internal/directory"
	"concord/internal/notify"
	"concord/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type fakeSource struct {
	guilds []*discordgo.Guild
}

func (f *fakeSource) Guilds() []*discordgo.Guild { return f.guilds }

type nullTransport struct{}

func (nullTransport) Send(channelID, content string) (string, error) { return "m1", nil }
func (nullTransport) DMChannel(userID string) (string, error)        { return "dm", nil }

func newTestWorker(t *testing.T, source GuildSource) (*Worker, *storage.Store) {
	t.Helper()
	store, err := storage.New("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	dir := directory.New(store, "!", zap.NewNop())
	notifier := notify.New(nullTransport{}, config.OwnerConfig{}, zap.NewNop())
	return New(source, dir, store, notifier, time.Hour, zap.NewNop()), store
}

func TestRunOnceMirrorsGuilds(t *testing.T) {
	source := &fakeSource{guilds: []*discordgo.Guild{
		{ID: "g1", Name: "one", Roles: []*discordgo.Role{{ID: "g1", Name: "@everyone"}}},
		{ID: "g2", Name: "two"},
	}}
	w, store := newTestWorker(t, source)

	w.RunOnce(context.Background())

	for _, id := range []string{"g1", "g2"} {
		if _, err := store.GetGuild(context.Background(), id); err != nil {
			t.Fatalf("guild %s not mirrored: %v", id, err)
		}
	}
}

func TestRunOncePersistsFailures(t *testing.T) {
	// A guild without an ID cannot be mirrored; the sweep must carry on and
	// record the failure.
	source := &fakeSource{guilds: []*discordgo.Guild{
		{},
		{ID: "g2", Name: "two"},
	}}
	w, store := newTestWorker(t, source)

	w.RunOnce(context.Background())

	if _, err := store.GetGuild(context.Background(), "g2"); err != nil {
		t.Fatalf("healthy guild skipped after failure: %v", err)
	}
	records, err := store.ListErrors(context.Background(), time.Unix(0, 0))
	if err != nil {
		t.Fatalf("list errors: %v", err)
	}
	if len(records) != 1 || records[0].CmdString != "directory refresh" {
		t.Fatalf("expected one refresh failure record, got %+v", records)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	w, _ := newTestWorker(t, &fakeSource{})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail while running")
	}

	w.Stop()
	w.Stop() // idempotent

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	w.Stop()
}

func TestStopWaitsForSweep(t *testing.T) {
	w, _ := newTestWorker(t, &fakeSource{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
}
