package usage

import (
	"context"
	"fmt"

	"concord/internal/storage"

	"go.uber.org/zap"
)

// Recorder appends one audit row per permitted command invocation, keeping
// the category and command registry rows up to date as a side effect.
type Recorder struct {
	store  *storage.Store
	logger *zap.Logger
}

func NewRecorder(store *storage.Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record writes the invocation before the command body runs. A failure here
// is reported to the caller but must never abort the user-visible command;
// the dispatcher routes it like any other fault and carries on.
func (r *Recorder) Record(ctx context.Context, guildID, command, category, actorID, params string) error {
	if err := r.store.UpsertCategory(ctx, category); err != nil {
		return fmt.Errorf("usage: upsert category %q: %w", category, err)
	}
	if err := r.store.UpsertCommand(ctx, command, category); err != nil {
		return fmt.Errorf("usage: upsert command %q: %w", command, err)
	}
	err := r.store.AddCommandLog(ctx, storage.CommandLog{
		GuildID:    guildID,
		Command:    command,
		Category:   category,
		UserID:     actorID,
		Parameters: params,
	})
	if err != nil {
		return fmt.Errorf("usage: append log for %q: %w", command, err)
	}
	r.logger.Debug("command recorded",
		zap.String("guild_id", guildID),
		zap.String("command", command),
		zap.String("user_id", actorID))
	return nil
}
