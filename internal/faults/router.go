package faults

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"concord/internal/notify"
	"concord/internal/storage"

	"go.uber.org/zap"
)

// Messenger is the slice of the chat transport the router needs to answer
// the invoking channel or fall back to the actor's DMs.
type Messenger interface {
	Send(channelID, content string) (messageID string, err error)
	DMChannel(userID string) (channelID string, err error)
}

// Context carries what the router needs to answer and attribute a failure.
type Context struct {
	GuildID     string
	ChannelID   string
	AuthorID    string
	CommandLine string
	Usage       string
	// Trace holds a captured stack when the failure was a recovered panic.
	Trace string
}

// Router is the single command-error boundary. Route never returns an error
// and never panics; a command failure cannot take the process down with it.
type Router struct {
	store    *storage.Store
	notifier *notify.Notifier
	msgr     Messenger
	logger   *zap.Logger
}

func NewRouter(store *storage.Store, notifier *notify.Notifier, msgr Messenger, logger *zap.Logger) *Router {
	return &Router{store: store, notifier: notifier, msgr: msgr, logger: logger}
}

// Route classifies err and runs the per-kind action: exactly one user-visible
// message, plus persistence and owner escalation for the kinds that warrant
// them.
func (r *Router) Route(ctx context.Context, err error, c Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("error router panicked",
				zap.Any("panic", rec), zap.String("command", c.CommandLine))
		}
	}()
	if err == nil {
		return
	}

	kind := Classify(err)
	r.logger.Info("command failed",
		zap.String("kind", kind.String()),
		zap.String("guild_id", c.GuildID),
		zap.String("command", c.CommandLine),
		zap.Error(err))

	switch kind {
	case PermissionDenied:
		r.send(c.ChannelID, "You are not allowed to use this command.")

	case MissingCapability:
		var tagged *CommandError
		missing := "unknown"
		if errors.As(err, &tagged) && len(tagged.Missing) > 0 {
			missing = "`" + strings.Join(tagged.Missing, "`, `") + "`"
		}
		r.send(c.ChannelID, "I am missing the following permissions to run this command: "+missing)
		r.escalate(ctx, err, kind, c)

	case MissingArgument:
		r.send(c.ChannelID, withUsage("A required argument is missing.", c.Usage))

	case BadArgument:
		r.send(c.ChannelID, withUsage("I could not understand one of the arguments.", c.Usage))

	case OperationTimeout:
		r.send(c.ChannelID, "Timeout. Please try again.")

	case ForbiddenOperation:
		// The channel itself may be the thing we cannot talk to.
		if !r.send(c.ChannelID, "I am not allowed to do that.") {
			r.dmActor(c.AuthorID, fmt.Sprintf("I could not complete `%s`: I am not allowed to do that.", c.CommandLine))
		}
		r.escalate(ctx, err, kind, c)

	default:
		r.send(c.ChannelID, "An unexpected error occurred. The bot owner has been notified.")
		r.escalate(ctx, err, kind, c)
	}
}

// escalate persists the failure and notifies the operator, best-effort.
func (r *Router) escalate(ctx context.Context, err error, kind Kind, c Context) {
	rec := storage.ErrorRecord{
		GuildID:   c.GuildID,
		CmdString: c.CommandLine,
		Kind:      kind.String(),
		Message:   err.Error(),
		Trace:     c.Trace,
	}
	if rec.Trace == "" {
		rec.Trace = fmt.Sprintf("%+v", err)
	}
	if storeErr := r.store.AddError(ctx, rec); storeErr != nil {
		r.logger.Error("persisting error record failed", zap.Error(storeErr))
	}
	r.notifier.NotifyError(rec)
}

func (r *Router) send(channelID, content string) bool {
	if channelID == "" {
		return false
	}
	if _, err := r.msgr.Send(channelID, content); err != nil {
		r.logger.Debug("answering channel failed", zap.String("channel_id", channelID), zap.Error(err))
		return false
	}
	return true
}

func (r *Router) dmActor(userID, content string) {
	if userID == "" {
		return
	}
	dm, err := r.msgr.DMChannel(userID)
	if err != nil {
		r.logger.Debug("opening actor DM failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if _, err := r.msgr.Send(dm, content); err != nil {
		r.logger.Debug("actor DM failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func withUsage(message, usage string) string {
	if usage == "" {
		return message
	}
	return message + "\nUsage: `" + usage + "`"
}
