package directory

import (
	"context"
	"fmt"

	"concord/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Service keeps denormalized mirrors of guilds, members, roles, and channels
// in the store, refreshed from the gateway objects that pass through the bot.
type Service struct {
	store         *storage.Store
	defaultPrefix string
	logger        *zap.Logger
}

func New(store *storage.Store, defaultPrefix string, logger *zap.Logger) *Service {
	if defaultPrefix == "" {
		defaultPrefix = "!"
	}
	return &Service{store: store, defaultPrefix: defaultPrefix, logger: logger}
}

// ObserveGuild mirrors a guild on first contact and refreshes its name on
// every later sighting, then returns the stored row (prefix included).
func (s *Service) ObserveGuild(ctx context.Context, g *discordgo.Guild) (storage.Guild, error) {
	if g == nil || g.ID == "" {
		return storage.Guild{}, fmt.Errorf("directory: guild missing")
	}
	if err := s.store.UpsertGuild(ctx, storage.Guild{ID: g.ID, Name: g.Name, Prefix: s.defaultPrefix}); err != nil {
		return storage.Guild{}, fmt.Errorf("directory: upsert guild %s: %w", g.ID, err)
	}
	return s.store.GetGuild(ctx, g.ID)
}

// Prefix returns the guild's stored command prefix, or the default when the
// guild is unknown or the lookup fails.
func (s *Service) Prefix(ctx context.Context, guildID string) string {
	if guildID == "" {
		return s.defaultPrefix
	}
	guild, err := s.store.GetGuild(ctx, guildID)
	if err != nil {
		return s.defaultPrefix
	}
	return guild.Prefix
}

// ObserveMember mirrors a member, refreshing display name, avatar, and bot
// flag while leaving the locally managed mod and admin flags alone.
func (s *Service) ObserveMember(ctx context.Context, guildID string, m *discordgo.Member) (storage.Member, error) {
	if m == nil || m.User == nil {
		return storage.Member{}, fmt.Errorf("directory: member missing")
	}
	display := m.Nick
	if display == "" {
		display = m.User.Username
	}
	row := storage.Member{
		UserID:      m.User.ID,
		GuildID:     guildID,
		DisplayName: display,
		AvatarURL:   m.User.AvatarURL(""),
		IsBot:       m.User.Bot,
	}
	if err := s.store.UpsertMember(ctx, row); err != nil {
		return storage.Member{}, fmt.Errorf("directory: upsert member %s/%s: %w", m.User.ID, guildID, err)
	}
	return s.store.GetMember(ctx, m.User.ID, guildID)
}

// ObserveRole mirrors a role, decomposing the packed color into channels.
// The guild's implicit base role carries the guild's own ID.
func (s *Service) ObserveRole(ctx context.Context, guildID string, r *discordgo.Role) error {
	if r == nil {
		return fmt.Errorf("directory: role missing")
	}
	return s.store.UpsertRole(ctx, storage.Role{
		GuildID:  guildID,
		RoleID:   r.ID,
		Name:     r.Name,
		ColorR:   (r.Color >> 16) & 0xFF,
		ColorG:   (r.Color >> 8) & 0xFF,
		ColorB:   r.Color & 0xFF,
		Position: r.Position,
		IsBase:   r.ID == guildID,
	})
}

func (s *Service) ObserveChannel(ctx context.Context, c *discordgo.Channel) error {
	if c == nil {
		return fmt.Errorf("directory: channel missing")
	}
	return s.store.UpsertChannel(ctx, storage.Channel{
		GuildID:   c.GuildID,
		ChannelID: c.ID,
		Name:      c.Name,
	})
}

// RefreshGuild re-mirrors everything the gateway object carries: the guild
// row, its roles and channels, and whichever members are populated. Partial
// failures are logged and the first one is returned after the sweep.
func (s *Service) RefreshGuild(ctx context.Context, g *discordgo.Guild) error {
	if _, err := s.ObserveGuild(ctx, g); err != nil {
		return err
	}

	var first error
	record := func(err error) {
		if err == nil {
			return
		}
		s.logger.Warn("directory refresh step failed", zap.String("guild_id", g.ID), zap.Error(err))
		if first == nil {
			first = err
		}
	}

	for _, role := range g.Roles {
		record(s.ObserveRole(ctx, g.ID, role))
	}
	for _, channel := range g.Channels {
		record(s.ObserveChannel(ctx, channel))
	}
	for _, member := range g.Members {
		_, err := s.ObserveMember(ctx, g.ID, member)
		record(err)
	}
	return first
}
