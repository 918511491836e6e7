package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"concord/internal/directory"
	"concord/internal/notify"
	"concord/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// GuildSource yields the guilds currently known to the gateway session.
type GuildSource interface {
	Guilds() []*discordgo.Guild
}

// Worker periodically re-mirrors every known guild into the directory.
// One coordinator owns the loop; Start and Stop bracket a single task handle
// and starting twice is an error.
type Worker struct {
	source   GuildSource
	dir      *directory.Service
	store    *storage.Store
	notifier *notify.Notifier
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(source GuildSource, dir *directory.Service, store *storage.Store, notifier *notify.Notifier, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Worker{
		source:   source,
		dir:      dir,
		store:    store,
		notifier: notifier,
		interval: interval,
		logger:   logger,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return errors.New("worker: already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for the in-flight sweep to finish. Calling
// Stop on a stopped worker is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps every known guild. Per-guild failures are persisted and
// escalated but never stop the sweep.
func (w *Worker) RunOnce(ctx context.Context) {
	guilds := w.source.Guilds()
	w.logger.Info("directory refresh started", zap.Int("guilds", len(guilds)))

	refreshed := 0
	for _, guild := range guilds {
		if ctx.Err() != nil {
			return
		}
		if err := w.dir.RefreshGuild(ctx, guild); err != nil {
			w.report(ctx, guild, err)
			continue
		}
		refreshed++
	}
	w.logger.Info("directory refresh finished", zap.Int("refreshed", refreshed))
}

func (w *Worker) report(ctx context.Context, guild *discordgo.Guild, err error) {
	guildID := ""
	if guild != nil {
		guildID = guild.ID
	}
	w.logger.Error("guild refresh failed", zap.String("guild_id", guildID), zap.Error(err))

	rec := storage.ErrorRecord{
		GuildID:   guildID,
		CmdString: "directory refresh",
		Kind:      "Unclassified",
		Message:   err.Error(),
		Trace:     fmt.Sprintf("%+v", err),
	}
	if storeErr := w.store.AddError(ctx, rec); storeErr != nil {
		w.logger.Error("persisting refresh failure failed", zap.Error(storeErr))
	}
	w.notifier.NotifyError(rec)
}
