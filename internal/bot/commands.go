package bot

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"concord/internal/faults"
	"concord/internal/help"
	"concord/internal/notify"
	"concord/internal/permissions"
	"concord/internal/prompt"

	"github.com/bwmarrin/discordgo"
)

// Command is one registry entry. The registry is an explicit static list;
// nothing is discovered by reflection.
type Command struct {
	Name        string
	Category    string
	Brief       string
	Description string
	Signature   string
	MinLevel    permissions.Level
	// BotPerms lists capability bits the bot itself needs before running.
	BotPerms int64
	Run      func(ctx context.Context, inv *Invocation) error
}

// Invocation carries one parsed command event through gate, record, and run.
type Invocation struct {
	GuildID   string
	ChannelID string
	AuthorID  string
	Args      []string
	Level     permissions.Level
	Prefix    string
	Line      string
}

func (b *Bot) registry() []*Command {
	return []*Command{
		{
			Name:     "help",
			Category: "General",
			Brief:    "browse commands by category",
			Description: "Shows the commands you can use, grouped by category. " +
				"Pass a command name for its detail view.",
			Signature: "[command]",
			MinLevel:  permissions.LevelUser,
			Run:       b.cmdHelp,
		},
		{
			Name:     "ping",
			Category: "General",
			Brief:    "measure gateway latency",
			MinLevel: permissions.LevelUser,
			Run:      b.cmdPing,
		},
		{
			Name:     "mods",
			Category: "Mod",
			Brief:    "list moderator roles and members",
			MinLevel: permissions.LevelMod,
			Run:      b.cmdMods,
		},
		{
			Name:      "set_prefix",
			Category:  "Owner",
			Brief:     "change this guild's command prefix",
			Signature: "<prefix>",
			MinLevel:  permissions.LevelOwner,
			Run:       b.cmdSetPrefix,
		},
		{
			Name:      "add_mod",
			Category:  "Owner",
			Brief:     "grant a member the moderator flag",
			Signature: "<member>",
			MinLevel:  permissions.LevelOwner,
			Run:       b.cmdAddMod,
		},
		{
			Name:      "rm_mod",
			Category:  "Owner",
			Brief:     "revoke a member's moderator flag",
			Signature: "<member>",
			MinLevel:  permissions.LevelOwner,
			Run:       b.cmdRemoveMod,
		},
		{
			Name:      "add_mod_role",
			Category:  "Owner",
			Brief:     "bind a role to moderator status",
			Signature: "<role>",
			MinLevel:  permissions.LevelOwner,
			Run:       b.cmdAddModRole,
		},
		{
			Name:      "rm_mod_role",
			Category:  "Owner",
			Brief:     "unbind a moderator role, or all of them",
			Signature: "<role|all>",
			MinLevel:  permissions.LevelOwner,
			Run:       b.cmdRemoveModRole,
		},
		{
			Name:     "setup",
			Category: "Owner",
			Brief:    "guided guild setup",
			Description: "Walks through prefix and moderator-role setup with " +
				"reaction prompts. Each step can be skipped.",
			MinLevel: permissions.LevelOwner,
			BotPerms: discordgo.PermissionAddReactions,
			Run:      b.cmdSetup,
		},
		{
			Name:      "show_errors",
			Category:  "BotOwner",
			Brief:     "list recent error records",
			Signature: "[days]",
			MinLevel:  permissions.LevelBotOwner,
			Run:       b.cmdShowErrors,
		},
		{
			Name:     "botstats",
			Category: "BotOwner",
			Brief:    "guild membership totals",
			MinLevel: permissions.LevelBotOwner,
			Run:      b.cmdBotStats,
		},
	}
}

func (b *Bot) lookup(name string) *Command {
	for _, cmd := range b.commands {
		if cmd.Name == name {
			return cmd
		}
	}
	return nil
}

func (b *Bot) helpCommands() []help.Command {
	out := make([]help.Command, 0, len(b.commands))
	for _, cmd := range b.commands {
		out = append(out, help.Command{
			Name:        cmd.Name,
			Category:    cmd.Category,
			Brief:       cmd.Brief,
			Description: cmd.Description,
			Signature:   cmd.Signature,
			MinLevel:    cmd.MinLevel,
		})
	}
	return out
}

func (b *Bot) cmdHelp(ctx context.Context, inv *Invocation) error {
	commands := b.helpCommands()
	if len(inv.Args) > 0 {
		cmd, ok := help.Find(commands, inv.Args[0], inv.Level)
		if !ok {
			return faults.BadArg(fmt.Sprintf("no command named %q", inv.Args[0]))
		}
		return b.pager.ShowCommand(inv.ChannelID, inv.Prefix, cmd)
	}
	return b.pager.Show(ctx, inv.ChannelID, inv.AuthorID, inv.Prefix, commands, inv.Level)
}

func (b *Bot) cmdPing(ctx context.Context, inv *Invocation) error {
	latency := b.session.HeartbeatLatency().Round(time.Millisecond)
	_, err := b.session.ChannelMessageSend(inv.ChannelID, fmt.Sprintf("Pong! %s", latency))
	return err
}

func (b *Bot) cmdMods(ctx context.Context, inv *Invocation) error {
	roles, err := b.store.ListModRoles(ctx, inv.GuildID)
	if err != nil {
		return err
	}
	members, err := b.store.ListModMembers(ctx, inv.GuildID)
	if err != nil {
		return err
	}

	var lines []string
	if len(roles) > 0 {
		names := make([]string, 0, len(roles))
		for _, roleID := range roles {
			names = append(names, "<@&"+roleID+">")
		}
		lines = append(lines, "Moderator roles: "+strings.Join(names, ", "))
	}
	if len(members) > 0 {
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, m.DisplayName)
		}
		sort.Strings(names)
		lines = append(lines, "Flagged moderators: "+strings.Join(names, ", "))
	}
	if len(lines) == 0 {
		lines = append(lines, "No moderator roles or members are set up here.")
	}
	_, err = b.session.ChannelMessageSend(inv.ChannelID, strings.Join(lines, "\n"))
	return err
}

const maxPrefixLength = 5

func (b *Bot) cmdSetPrefix(ctx context.Context, inv *Invocation) error {
	if len(inv.Args) == 0 {
		return faults.MissingArg("prefix")
	}
	prefix := inv.Args[0]
	if err := validatePrefix(prefix); err != nil {
		return err
	}
	if err := b.store.SetGuildPrefix(ctx, inv.GuildID, prefix); err != nil {
		return err
	}
	_, err := b.session.ChannelMessageSend(inv.ChannelID, fmt.Sprintf("Prefix changed to `%s`.", prefix))
	return err
}

func validatePrefix(prefix string) error {
	if prefix == "" || len([]rune(prefix)) > maxPrefixLength {
		return faults.BadArg(fmt.Sprintf("prefix must be 1-%d characters", maxPrefixLength))
	}
	if strings.ContainsAny(prefix, " \t\n") {
		return faults.BadArg("prefix must not contain whitespace")
	}
	return nil
}

func (b *Bot) cmdAddMod(ctx context.Context, inv *Invocation) error {
	return b.setModFlag(ctx, inv, true)
}

func (b *Bot) cmdRemoveMod(ctx context.Context, inv *Invocation) error {
	return b.setModFlag(ctx, inv, false)
}

func (b *Bot) setModFlag(ctx context.Context, inv *Invocation, mod bool) error {
	if len(inv.Args) == 0 {
		return faults.MissingArg("member")
	}
	userID, ok := parseUserID(inv.Args[0])
	if !ok {
		return faults.BadArg(fmt.Sprintf("%q is not a member mention or ID", inv.Args[0]))
	}

	member, err := b.session.GuildMember(inv.GuildID, userID)
	if err != nil {
		return err
	}
	if _, err := b.dir.ObserveMember(ctx, inv.GuildID, member); err != nil {
		return err
	}
	if err := b.store.SetMemberMod(ctx, userID, inv.GuildID, mod); err != nil {
		return err
	}

	verb := "now"
	if !mod {
		verb = "no longer"
	}
	_, err = b.session.ChannelMessageSend(inv.ChannelID, fmt.Sprintf("<@%s> is %s a moderator.", userID, verb))
	return err
}

func (b *Bot) cmdAddModRole(ctx context.Context, inv *Invocation) error {
	if len(inv.Args) == 0 {
		return faults.MissingArg("role")
	}
	roleID, ok := parseRoleID(inv.Args[0])
	if !ok {
		return faults.BadArg(fmt.Sprintf("%q is not a role mention or ID", inv.Args[0]))
	}

	if role := b.guildRole(inv.GuildID, roleID); role != nil {
		if err := b.dir.ObserveRole(ctx, inv.GuildID, role); err != nil {
			return err
		}
	}
	if err := b.store.AddModRole(ctx, inv.GuildID, roleID); err != nil {
		return err
	}
	_, err := b.session.ChannelMessageSend(inv.ChannelID, fmt.Sprintf("<@&%s> now confers moderator status.", roleID))
	return err
}

func (b *Bot) cmdRemoveModRole(ctx context.Context, inv *Invocation) error {
	if len(inv.Args) == 0 {
		return faults.MissingArg("role")
	}
	if strings.EqualFold(inv.Args[0], "all") {
		if err := b.store.ClearModRoles(ctx, inv.GuildID); err != nil {
			return err
		}
		_, err := b.session.ChannelMessageSend(inv.ChannelID, "All moderator role bindings removed.")
		return err
	}

	roleID, ok := parseRoleID(inv.Args[0])
	if !ok {
		return faults.BadArg(fmt.Sprintf("%q is not a role mention or ID", inv.Args[0]))
	}
	if err := b.store.RemoveModRole(ctx, inv.GuildID, roleID); err != nil {
		return err
	}
	_, err := b.session.ChannelMessageSend(inv.ChannelID, fmt.Sprintf("<@&%s> no longer confers moderator status.", roleID))
	return err
}

func (b *Bot) cmdSetup(ctx context.Context, inv *Invocation) error {
	decision, err := b.prompter.YesNo(ctx, inv.ChannelID, inv.AuthorID,
		"Do you want to set a custom command prefix?", prompt.YesNoOptions{Skip: true, QuietCancel: true})
	if err != nil {
		return err
	}
	if decision == prompt.Confirmed {
		answer, _, err := b.prompter.Response(ctx, inv.ChannelID, inv.AuthorID,
			fmt.Sprintf("Which prefix? (1-%d characters, no whitespace)", maxPrefixLength),
			nil,
			func(content string) (string, error) {
				trimmed := strings.TrimSpace(content)
				if err := validatePrefix(trimmed); err != nil {
					return "", err
				}
				return trimmed, nil
			})
		if err != nil {
			return err
		}
		if err := b.store.SetGuildPrefix(ctx, inv.GuildID, answer); err != nil {
			return err
		}
		if _, err := b.session.ChannelMessageSend(inv.ChannelID, fmt.Sprintf("Prefix changed to `%s`.", answer)); err != nil {
			return err
		}
	}

	decision, err = b.prompter.YesNo(ctx, inv.ChannelID, inv.AuthorID,
		"Do you want to bind a moderator role?", prompt.YesNoOptions{Skip: true, QuietCancel: true})
	if err != nil {
		return err
	}
	if decision == prompt.Confirmed {
		answer, _, err := b.prompter.Response(ctx, inv.ChannelID, inv.AuthorID,
			"Which role? Mention it or paste its ID.",
			nil,
			func(content string) (string, error) {
				roleID, ok := parseRoleID(strings.TrimSpace(content))
				if !ok {
					return "", fmt.Errorf("not a role mention or ID")
				}
				return roleID, nil
			})
		if err != nil {
			return err
		}
		if err := b.store.AddModRole(ctx, inv.GuildID, answer); err != nil {
			return err
		}
		if _, err := b.session.ChannelMessageSend(inv.ChannelID, fmt.Sprintf("<@&%s> now confers moderator status.", answer)); err != nil {
			return err
		}
	}

	_, err = b.session.ChannelMessageSend(inv.ChannelID, "Setup finished.")
	return err
}

func (b *Bot) cmdShowErrors(ctx context.Context, inv *Invocation) error {
	days := 7
	if len(inv.Args) > 0 {
		parsed, err := strconv.Atoi(inv.Args[0])
		if err != nil || parsed < 1 {
			return faults.BadArg(fmt.Sprintf("%q is not a positive day count", inv.Args[0]))
		}
		days = parsed
	}

	records, err := b.reports.ErrorsSince(ctx, days)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		_, err := b.session.ChannelMessageSend(inv.ChannelID, fmt.Sprintf("No errors recorded in the last %d day(s).", days))
		return err
	}

	var table strings.Builder
	table.WriteString("```\n")
	for _, rec := range records {
		fmt.Fprintf(&table, "%s  %-18s  %-20s  %s\n",
			rec.CreatedAt.Format("2006-01-02 15:04"), rec.Kind, rec.CmdString, rec.Message)
	}
	table.WriteString("```")

	for _, chunk := range notify.Chunk(table.String(), notify.ChunkLimit) {
		if _, err := b.session.ChannelMessageSend(inv.ChannelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) cmdBotStats(ctx context.Context, inv *Invocation) error {
	summary, err := b.reports.Membership(ctx, time.Unix(0, 0))
	if err != nil {
		return err
	}
	_, err = b.session.ChannelMessageSend(inv.ChannelID, fmt.Sprintf(
		"Serving %d guild(s). Lifetime: %d joined, %d left (net %+d).",
		b.guildCount(), summary.Joins, summary.Leaves, summary.Net))
	return err
}

var (
	userMention = regexp.MustCompile(`^<@!?(\d+)>$`)
	roleMention = regexp.MustCompile(`^<@&(\d+)>$`)
	snowflake   = regexp.MustCompile(`^\d{15,21}$`)
)

func parseUserID(arg string) (string, bool) {
	if m := userMention.FindStringSubmatch(arg); m != nil {
		return m[1], true
	}
	if snowflake.MatchString(arg) {
		return arg, true
	}
	return "", false
}

func parseRoleID(arg string) (string, bool) {
	if m := roleMention.FindStringSubmatch(arg); m != nil {
		return m[1], true
	}
	if snowflake.MatchString(arg) {
		return arg, true
	}
	return "", false
}

func (b *Bot) guildRole(guildID, roleID string) *discordgo.Role {
	guild := b.guild(guildID)
	if guild == nil {
		return nil
	}
	for _, role := range guild.Roles {
		if role.ID == roleID {
			return role
		}
	}
	return nil
}
