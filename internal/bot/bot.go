package bot

import (
	"context"
	"fmt"
	"time"

	"concord/internal/analytics"
	"concord/internal/config"
	"concord/internal/directory"
	"concord/internal/faults"
	"concord/internal/help"
	"concord/internal/notify"
	"concord/internal/permissions"
	"concord/internal/prompt"
	"concord/internal/storage"
	"concord/internal/usage"
	"concord/internal/worker"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Options selects which halves of the process this instance runs. A combined
// deployment runs both; a split deployment runs commands in one process and
// the refresh loop in another.
type Options struct {
	EnableCommands bool
	EnableWorker   bool
}

// Bot owns the gateway session and wires every service around it.
type Bot struct {
	cfg     config.Config
	opts    Options
	logger  *zap.Logger
	session *discordgo.Session

	store    *storage.Store
	dir      *directory.Service
	resolver *permissions.Resolver
	recorder *usage.Recorder
	notifier *notify.Notifier
	router   *faults.Router
	broker   *prompt.Broker
	prompter *prompt.Prompter
	pager    *help.Pager
	reports  *analytics.Service
	refresh  *worker.Worker
	throttle *limiter

	commands []*Command
}

func New(cfg config.Config, store *storage.Store, logger *zap.Logger, opts Options) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("bot: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	session.StateEnabled = true

	msgr := sessionMessenger{session: session}
	broker := prompt.NewBroker()
	notifier := notify.New(msgr, cfg.Owner, logger)
	dir := directory.New(store, cfg.DefaultPrefix, logger)

	b := &Bot{
		cfg:      cfg,
		opts:     opts,
		logger:   logger,
		session:  session,
		store:    store,
		dir:      dir,
		resolver: permissions.NewResolver(store, cfg.Owner.IDs, logger),
		recorder: usage.NewRecorder(store, logger),
		notifier: notifier,
		router:   faults.NewRouter(store, notifier, msgr, logger),
		broker:   broker,
		prompter: prompt.New(msgr, broker, prompt.Timeouts{
			YesNo:    time.Duration(cfg.Prompts.YesNoSeconds) * time.Second,
			Choose:   time.Duration(cfg.Prompts.ChooseSeconds) * time.Second,
			Response: time.Duration(cfg.Prompts.ResponseSeconds) * time.Second,
		}, logger),
		pager:    help.New(msgr, broker, time.Duration(cfg.Prompts.HelpSeconds)*time.Second, logger),
		reports:  analytics.New(store, logger),
		throttle: newLimiter(5, 10*time.Second),
	}
	b.commands = b.registry()
	b.refresh = worker.New(stateGuilds{session}, dir, store, notifier,
		time.Duration(cfg.Worker.RefreshMinutes)*time.Minute, logger)

	session.AddHandler(b.onReady)
	if opts.EnableCommands {
		session.AddHandler(b.onMessageCreate)
		session.AddHandler(b.onReactionAdd)
	}
	session.AddHandler(b.onGuildCreate)
	session.AddHandler(b.onGuildDelete)

	return b, nil
}

// Start opens the gateway connection and, when enabled, the refresh loop.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("bot: open gateway: %w", err)
	}
	if b.opts.EnableWorker {
		if err := b.refresh.Start(ctx); err != nil {
			return err
		}
	}
	b.logger.Info("gateway connected",
		zap.Bool("commands", b.opts.EnableCommands),
		zap.Bool("worker", b.opts.EnableWorker))
	return nil
}

// Stop tears the session down, waiting out the refresh loop first.
func (b *Bot) Stop(ctx context.Context) error {
	if b.opts.EnableWorker {
		b.refresh.Stop()
	}
	done := make(chan error, 1)
	go func() { done <- b.session.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stateGuilds exposes the session's guild list to the refresh loop.
type stateGuilds struct {
	session *discordgo.Session
}

func (s stateGuilds) Guilds() []*discordgo.Guild {
	if s.session == nil || s.session.State == nil {
		return nil
	}
	s.session.State.RLock()
	defer s.session.State.RUnlock()
	return append([]*discordgo.Guild(nil), s.session.State.Guilds...)
}

// guild resolves a guild from session state, degrading to a bare shell so
// first-contact paths still work before the state cache warms up.
func (b *Bot) guild(guildID string) *discordgo.Guild {
	if guildID == "" {
		return nil
	}
	if g, err := b.session.State.Guild(guildID); err == nil {
		return g
	}
	return &discordgo.Guild{ID: guildID}
}

func (b *Bot) guildCount() int64 {
	if b.session.State == nil {
		return 0
	}
	b.session.State.RLock()
	defer b.session.State.RUnlock()
	return int64(len(b.session.State.Guilds))
}
