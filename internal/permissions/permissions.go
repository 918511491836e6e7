package permissions

import (
	"context"
	"errors"

	"concord/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Level is the authorization tier of an actor within a guild. Levels are
// totally ordered; a command passes its gate iff the resolved level is at
// least the command's minimum.
type Level int

const (
	LevelUser Level = iota
	LevelMod
	LevelOwner
	LevelBotOwner
)

func (l Level) String() string {
	switch l {
	case LevelBotOwner:
		return "BotOwner"
	case LevelOwner:
		return "Owner"
	case LevelMod:
		return "Mod"
	default:
		return "User"
	}
}

type Resolver struct {
	store    *storage.Store
	ownerIDs map[string]struct{}
	logger   *zap.Logger
}

func NewResolver(store *storage.Store, ownerIDs []string, logger *zap.Logger) *Resolver {
	set := make(map[string]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		set[id] = struct{}{}
	}
	return &Resolver{store: store, ownerIDs: set, logger: logger}
}

// Resolve computes the actor's level, first match wins. An unresolvable
// actor (webhook, missing member) resolves to User rather than failing.
func (r *Resolver) Resolve(ctx context.Context, guild *discordgo.Guild, member *discordgo.Member) Level {
	if member == nil || member.User == nil {
		return LevelUser
	}
	if _, ok := r.ownerIDs[member.User.ID]; ok {
		return LevelBotOwner
	}

	perms := memberPermissions(guild, member)
	if perms&(discordgo.PermissionAdministrator|discordgo.PermissionManageRoles) != 0 {
		return LevelOwner
	}
	if r.isMod(ctx, guild, member, perms) {
		return LevelMod
	}
	return LevelUser
}

func (r *Resolver) isMod(ctx context.Context, guild *discordgo.Guild, member *discordgo.Member, perms int64) bool {
	if perms&discordgo.PermissionBanMembers != 0 {
		return true
	}
	if guild == nil {
		return false
	}

	stored, err := r.store.GetMember(ctx, member.User.ID, guild.ID)
	if err == nil && stored.IsMod {
		return true
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		r.logger.Warn("member lookup failed", zap.String("guild_id", guild.ID), zap.Error(err))
	}

	bound, err := r.store.ListModRoles(ctx, guild.ID)
	if err != nil {
		r.logger.Warn("mod role lookup failed", zap.String("guild_id", guild.ID), zap.Error(err))
		return false
	}
	boundSet := make(map[string]struct{}, len(bound))
	for _, id := range bound {
		boundSet[id] = struct{}{}
	}
	for _, roleID := range member.Roles {
		if _, ok := boundSet[roleID]; ok {
			return true
		}
	}
	return false
}

// memberPermissions folds the guild's base role and the member's roles into
// a permission bitmask. The guild owner holds every capability.
func memberPermissions(guild *discordgo.Guild, member *discordgo.Member) int64 {
	if guild == nil || member == nil || member.User == nil {
		return 0
	}
	if guild.OwnerID == member.User.ID {
		return discordgo.PermissionAll
	}

	perms := int64(0)
	roleMap := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		roleMap[role.ID] = role
		if role.ID == guild.ID {
			perms |= role.Permissions
		}
	}
	for _, roleID := range member.Roles {
		if role := roleMap[roleID]; role != nil {
			perms |= role.Permissions
		}
	}
	return perms
}
