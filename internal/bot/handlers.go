package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"concord/internal/faults"
	"concord/internal/prompt"
	"concord/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("session ready",
		zap.String("user", r.User.Username),
		zap.Int("guilds", len(r.Guilds)))
	if err := s.UpdateGameStatus(0, b.cfg.DefaultPrefix+"help"); err != nil {
		b.logger.Debug("setting presence failed", zap.Error(err))
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	// Feed waiting free-text prompts before trying to dispatch a command.
	b.broker.PublishMessage(prompt.Message{
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		AuthorID:    m.Author.ID,
		Content:     m.Content,
		Attachments: len(m.Attachments),
	})

	if m.GuildID == "" {
		b.relayDM(m)
	}
	b.dispatch(m)
}

// relayDM mirrors direct messages to the operator's relay channel, and any
// attachments to the images channel. Both channels are optional.
func (b *Bot) relayDM(m *discordgo.MessageCreate) {
	relay := b.cfg.Owner.DMRelayChannel
	if relay != "" && m.Content != "" {
		text := fmt.Sprintf("**%s** (%s): %s", m.Author.Username, m.Author.ID, m.Content)
		if _, err := b.session.ChannelMessageSend(relay, text); err != nil {
			b.logger.Debug("DM relay failed", zap.Error(err))
		}
	}

	images := b.cfg.Owner.ImagesChannel
	if images == "" {
		images = relay
	}
	if images == "" {
		return
	}
	for _, attachment := range m.Attachments {
		text := fmt.Sprintf("**%s** (%s) sent %s", m.Author.Username, m.Author.ID, attachment.URL)
		if _, err := b.session.ChannelMessageSend(images, text); err != nil {
			b.logger.Debug("attachment relay failed", zap.Error(err))
		}
	}
}

// dispatch runs the full pipeline for one inbound message: prefix, lookup,
// permission gate, usage record, bot capability check, then the command body.
// Every failure funnels into the router; nothing escapes.
func (b *Bot) dispatch(m *discordgo.MessageCreate) {
	ctx := context.Background()

	prefix := b.cfg.DefaultPrefix
	if m.GuildID != "" {
		row, err := b.dir.ObserveGuild(ctx, b.guild(m.GuildID))
		if err != nil {
			b.logger.Warn("guild observation failed", zap.String("guild_id", m.GuildID), zap.Error(err))
		} else {
			prefix = row.Prefix
		}
	}
	if !strings.HasPrefix(m.Content, prefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(m.Content, prefix))
	if len(fields) == 0 {
		return
	}
	cmd := b.lookup(fields[0])
	if cmd == nil {
		return
	}
	if !b.throttle.allow(m.Author.ID, time.Now()) {
		b.logger.Debug("command throttled",
			zap.String("user_id", m.Author.ID), zap.String("command", cmd.Name))
		return
	}

	member := b.resolveMember(m)
	guild := b.guild(m.GuildID)
	level := b.resolver.Resolve(ctx, guild, member)
	if m.GuildID != "" && member != nil {
		if _, err := b.dir.ObserveMember(ctx, m.GuildID, member); err != nil {
			b.logger.Warn("member observation failed", zap.String("user_id", m.Author.ID), zap.Error(err))
		}
	}

	fc := faults.Context{
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		AuthorID:    m.Author.ID,
		CommandLine: m.Content,
		Usage:       usageLine(prefix, cmd),
	}

	if level < cmd.MinLevel {
		b.router.Route(ctx, faults.Denied(), fc)
		return
	}

	if err := b.recorder.Record(ctx, m.GuildID, cmd.Name, cmd.Category, m.Author.ID, strings.Join(fields[1:], " ")); err != nil {
		// Recording must never block the command itself.
		b.router.Route(ctx, err, fc)
	}

	if missing := b.missingBotCapabilities(m.ChannelID, cmd.BotPerms); len(missing) > 0 {
		b.router.Route(ctx, faults.NeedsCapabilities(missing...), fc)
		return
	}

	inv := &Invocation{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		Args:      fields[1:],
		Level:     level,
		Prefix:    prefix,
		Line:      m.Content,
	}

	defer func() {
		if rec := recover(); rec != nil {
			fc.Trace = string(debug.Stack())
			b.router.Route(ctx, fmt.Errorf("panic: %v", rec), fc)
		}
	}()
	if err := cmd.Run(ctx, inv); err != nil {
		b.router.Route(ctx, err, fc)
	}
}

// resolveMember builds the richest member object available for this message.
// DM authors become a bare member so bot owners keep their level there.
func (b *Bot) resolveMember(m *discordgo.MessageCreate) *discordgo.Member {
	member := m.Member
	if member != nil {
		if member.User == nil {
			member.User = m.Author
		}
		return member
	}
	if m.GuildID != "" {
		if cached, err := b.session.State.Member(m.GuildID, m.Author.ID); err == nil {
			return cached
		}
	}
	return &discordgo.Member{GuildID: m.GuildID, User: m.Author}
}

func (b *Bot) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if s.State.User != nil && r.UserID == s.State.User.ID {
		return
	}
	bot := false
	if r.Member != nil && r.Member.User != nil {
		bot = r.Member.User.Bot
	}
	b.broker.PublishReaction(prompt.Reaction{
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.Name,
		Bot:       bot,
	})
}

// onGuildCreate fires for new joins and for every reconnect sync; only a
// guild the store has never seen counts as a join.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	ctx := context.Background()

	_, err := b.store.GetGuild(ctx, g.ID)
	isNew := errors.Is(err, storage.ErrNotFound)

	if err := b.dir.RefreshGuild(ctx, g.Guild); err != nil {
		b.logger.Warn("guild mirror failed", zap.String("guild_id", g.ID), zap.Error(err))
	}
	if !isNew {
		return
	}

	if _, err := b.store.AddJoinEvent(ctx, g.ID, b.guildCount()); err != nil {
		b.logger.Error("recording join event failed", zap.String("guild_id", g.ID), zap.Error(err))
	}
	b.notifier.NotifyJoinLeave(
		fmt.Sprintf("Joined guild **%s** (%d members). Now serving %d guild(s).", g.Name, g.MemberCount, b.guildCount()),
		g.ID)
	b.logger.Info("joined guild", zap.String("guild_id", g.ID), zap.String("name", g.Name))
}

func (b *Bot) onGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	// Unavailable means an outage, not a removal.
	if g.Unavailable {
		return
	}
	ctx := context.Background()

	if err := b.store.AddLeaveEvent(ctx, g.ID, b.guildCount()); err != nil {
		b.logger.Error("recording leave event failed", zap.String("guild_id", g.ID), zap.Error(err))
	}
	b.notifier.NotifyJoinLeave(
		fmt.Sprintf("Left guild %s. Now serving %d guild(s).", g.ID, b.guildCount()),
		g.ID)
	b.logger.Info("left guild", zap.String("guild_id", g.ID))
}

var capabilityNames = map[int64]string{
	discordgo.PermissionAddReactions:   "add_reactions",
	discordgo.PermissionSendMessages:   "send_messages",
	discordgo.PermissionManageMessages: "manage_messages",
	discordgo.PermissionManageRoles:    "manage_roles",
	discordgo.PermissionBanMembers:     "ban_members",
	discordgo.PermissionEmbedLinks:     "embed_links",
}

// missingBotCapabilities diffs the bot's effective channel permissions
// against what the command requires. An unverifiable channel (DM, cold
// state) blocks nothing.
func (b *Bot) missingBotCapabilities(channelID string, required int64) []string {
	if required == 0 || b.session.State == nil || b.session.State.User == nil {
		return nil
	}
	held, err := b.session.State.UserChannelPermissions(b.session.State.User.ID, channelID)
	if err != nil {
		return nil
	}
	if held&discordgo.PermissionAdministrator != 0 {
		return nil
	}

	var missing []string
	for bit, name := range capabilityNames {
		if required&bit != 0 && held&bit == 0 {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func usageLine(prefix string, cmd *Command) string {
	if cmd.Signature == "" {
		return prefix + cmd.Name
	}
	return prefix + cmd.Name + " " + cmd.Signature
}
