package help

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"concord/internal/permissions"
	"concord/internal/prompt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Command is the help-facing description of one registered command.
type Command struct {
	Name        string
	Category    string
	Brief       string
	Description string
	Signature   string
	MinLevel    permissions.Level
}

// Messenger is the slice of the chat transport the pager needs.
type Messenger interface {
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) (messageID string, err error)
	React(channelID, messageID, emoji string) error
	Delete(channelID, messageID string) error
}

// Pager renders emoji-indexed help menus and drills into the invoker's picks.
type Pager struct {
	msgr    Messenger
	broker  *prompt.Broker
	timeout time.Duration
	logger  *zap.Logger
}

func New(msgr Messenger, broker *prompt.Broker, timeout time.Duration, logger *zap.Logger) *Pager {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Pager{msgr: msgr, broker: broker, timeout: timeout, logger: logger}
}

// Show opens the top-level menu: one entry per category the invoker's level
// can use. Picking a category lists its commands; picking a command shows its
// detail. An expired menu is deleted without further notice.
func (p *Pager) Show(ctx context.Context, channelID, userID, prefix string, commands []Command, level permissions.Level) error {
	visible := visibleCommands(commands, level)
	if len(visible) == 0 {
		return nil
	}

	categories := categoriesOf(visible)
	if len(categories) == 1 {
		return p.showCategory(ctx, channelID, userID, prefix, visible, categories[0])
	}

	pick, err := p.menu(ctx, channelID, userID, &discordgo.MessageEmbed{
		Title:       "Help",
		Description: "React with a letter to pick a category.",
	}, categories)
	if err != nil {
		return err
	}
	if pick == "" {
		return nil
	}
	return p.showCategory(ctx, channelID, userID, prefix, visible, pick)
}

// ShowCommand renders one command's detail view. No menu is attached.
func (p *Pager) ShowCommand(channelID, prefix string, cmd Command) error {
	description := cmd.Description
	if description == "" {
		description = cmd.Brief
	}
	embed := &discordgo.MessageEmbed{
		Title:       prefix + signature(cmd),
		Description: description,
		Footer:      &discordgo.MessageEmbedFooter{Text: cmd.Category + " · requires " + cmd.MinLevel.String()},
	}
	_, err := p.msgr.SendEmbed(channelID, embed)
	return err
}

// Find returns the named visible command, if any.
func Find(commands []Command, name string, level permissions.Level) (Command, bool) {
	for _, cmd := range visibleCommands(commands, level) {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return Command{}, false
}

func (p *Pager) showCategory(ctx context.Context, channelID, userID, prefix string, commands []Command, category string) error {
	var members []Command
	var labels []string
	for _, cmd := range commands {
		if cmd.Category != category {
			continue
		}
		members = append(members, cmd)
		label := cmd.Name
		if cmd.Brief != "" {
			label += " — " + cmd.Brief
		}
		labels = append(labels, label)
	}
	if len(members) == 0 {
		return nil
	}

	pick, err := p.menu(ctx, channelID, userID, &discordgo.MessageEmbed{
		Title:       category,
		Description: "React with a letter to pick a command.",
	}, labels)
	if err != nil {
		return err
	}
	if pick == "" {
		return nil
	}
	for i, label := range labels {
		if label == pick {
			return p.ShowCommand(channelID, prefix, members[i])
		}
	}
	return nil
}

// menu sends one embed listing entries tagged with letter emoji, seeds the
// reactions, and waits for the invoker's pick. It returns the picked entry,
// or "" on timeout (the menu message is deleted quietly).
func (p *Pager) menu(ctx context.Context, channelID, userID string, embed *discordgo.MessageEmbed, entries []string) (string, error) {
	if len(entries) > len(prompt.Alphabet) {
		entries = entries[:len(prompt.Alphabet)]
	}

	var lines []string
	if embed.Description != "" {
		lines = append(lines, embed.Description, "")
	}
	for i, entry := range entries {
		lines = append(lines, prompt.Alphabet[i]+": "+entry)
	}
	embed.Description = strings.Join(lines, "\n")

	messageID, err := p.msgr.SendEmbed(channelID, embed)
	if err != nil {
		return "", err
	}
	for i := range entries {
		if err := p.msgr.React(channelID, messageID, prompt.Alphabet[i]); err != nil {
			p.logger.Debug("seeding menu reaction failed", zap.Error(err))
		}
	}

	reaction, err := p.broker.AwaitReaction(ctx, func(r prompt.Reaction) bool {
		if r.MessageID != messageID || r.UserID != userID || r.Bot {
			return false
		}
		idx := prompt.AlphabetIndex(r.Emoji)
		return idx >= 0 && idx < len(entries)
	}, p.timeout)
	if errors.Is(err, prompt.ErrTimeout) {
		if deleteErr := p.msgr.Delete(channelID, messageID); deleteErr != nil {
			p.logger.Debug("deleting expired menu failed", zap.Error(deleteErr))
		}
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return entries[prompt.AlphabetIndex(reaction.Emoji)], nil
}

func visibleCommands(commands []Command, level permissions.Level) []Command {
	var out []Command
	for _, cmd := range commands {
		if cmd.MinLevel <= level {
			out = append(out, cmd)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func categoriesOf(commands []Command) []string {
	seen := make(map[string]struct{})
	var categories []string
	for _, cmd := range commands {
		if _, ok := seen[cmd.Category]; ok {
			continue
		}
		seen[cmd.Category] = struct{}{}
		categories = append(categories, cmd.Category)
	}
	sort.Strings(categories)
	return categories
}

func signature(cmd Command) string {
	if cmd.Signature != "" {
		return cmd.Name + " " + cmd.Signature
	}
	return cmd.Name
}
