package help

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"concord/internal/permissions"
	"concord/internal/prompt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	embeds    []*discordgo.MessageEmbed
	reactions map[string][]string
	deleted   []string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{reactions: make(map[string][]string)}
}

func (f *fakeMessenger) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.embeds = append(f.embeds, embed)
	return fmt.Sprintf("m%d", f.nextID), nil
}

func (f *fakeMessenger) React(channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[messageID] = append(f.reactions[messageID], emoji)
	return nil
}

func (f *fakeMessenger) Delete(channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessenger) embedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.embeds)
}

func testCommands() []Command {
	return []Command{
		{Name: "ping", Category: "General", Brief: "round trip", MinLevel: permissions.LevelUser},
		{Name: "help", Category: "General", Brief: "this menu", MinLevel: permissions.LevelUser},
		{Name: "setup", Category: "Owner", Brief: "guided setup", Description: "Walks through guild setup.", Signature: "<channel>", MinLevel: permissions.LevelOwner},
	}
}

func keepPublishing(t *testing.T, broker *prompt.Broker, reactions []prompt.Reaction) {
	t.Helper()
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			for _, r := range reactions {
				broker.PublishReaction(r)
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()
}

func TestShowHidesEntriesAboveLevel(t *testing.T) {
	msgr := newFakeMessenger()
	broker := prompt.NewBroker()
	pager := New(msgr, broker, 20*time.Millisecond, zap.NewNop())

	// A plain user sees a single category, so the pager goes straight to it.
	if err := pager.Show(context.Background(), "c1", "u1", "!", testCommands(), permissions.LevelUser); err != nil {
		t.Fatalf("show: %v", err)
	}

	if got := msgr.embedCount(); got != 1 {
		t.Fatalf("expected one menu embed, got %d", got)
	}
	body := msgr.embeds[0].Description
	if !strings.Contains(body, "ping") || !strings.Contains(body, "help") {
		t.Fatalf("menu missing visible commands: %q", body)
	}
	if strings.Contains(body, "setup") {
		t.Fatalf("owner command leaked to a user menu: %q", body)
	}
	if len(msgr.deleted) != 1 {
		t.Fatalf("expected the expired menu to be deleted, got %v", msgr.deleted)
	}
}

func TestShowDrillsIntoDetail(t *testing.T) {
	msgr := newFakeMessenger()
	broker := prompt.NewBroker()
	pager := New(msgr, broker, time.Second, zap.NewNop())

	// The first menu (m1) lists categories sorted General then Owner, so the
	// second letter picks Owner. The second menu (m2) holds only setup.
	keepPublishing(t, broker, []prompt.Reaction{
		{MessageID: "m1", UserID: "u1", Emoji: prompt.Alphabet[1]},
		{MessageID: "m2", UserID: "u1", Emoji: prompt.Alphabet[0]},
	})

	if err := pager.Show(context.Background(), "c1", "u1", "!", testCommands(), permissions.LevelOwner); err != nil {
		t.Fatalf("show: %v", err)
	}

	if got := msgr.embedCount(); got != 3 {
		t.Fatalf("expected category menu, command menu, and detail, got %d embeds", got)
	}
	detail := msgr.embeds[2]
	if detail.Title != "!setup <channel>" {
		t.Fatalf("unexpected detail title: %q", detail.Title)
	}
	if !strings.Contains(detail.Description, "guild setup") {
		t.Fatalf("unexpected detail body: %q", detail.Description)
	}
	if detail.Footer == nil || !strings.Contains(detail.Footer.Text, "Owner") {
		t.Fatalf("expected the required level in the footer, got %+v", detail.Footer)
	}
}

func TestShowIgnoresOtherUsersReactions(t *testing.T) {
	msgr := newFakeMessenger()
	broker := prompt.NewBroker()
	pager := New(msgr, broker, 30*time.Millisecond, zap.NewNop())

	keepPublishing(t, broker, []prompt.Reaction{
		{MessageID: "m1", UserID: "intruder", Emoji: prompt.Alphabet[0]},
	})

	if err := pager.Show(context.Background(), "c1", "u1", "!", testCommands(), permissions.LevelOwner); err != nil {
		t.Fatalf("show: %v", err)
	}
	// Only the category menu went out; the intruder's pick never resolved.
	if got := msgr.embedCount(); got != 1 {
		t.Fatalf("expected the menu to expire untouched, got %d embeds", got)
	}
}

func TestMenuCapacityIsBounded(t *testing.T) {
	msgr := newFakeMessenger()
	broker := prompt.NewBroker()
	pager := New(msgr, broker, 20*time.Millisecond, zap.NewNop())

	var commands []Command
	for i := 0; i < 30; i++ {
		commands = append(commands, Command{
			Name:     fmt.Sprintf("cmd%02d", i),
			Category: "General",
			MinLevel: permissions.LevelUser,
		})
	}
	if err := pager.Show(context.Background(), "c1", "u1", "!", commands, permissions.LevelUser); err != nil {
		t.Fatalf("show: %v", err)
	}
	if got := len(msgr.reactions["m1"]); got != len(prompt.Alphabet) {
		t.Fatalf("expected the menu capped at %d reactions, got %d", len(prompt.Alphabet), got)
	}
}

func TestFindRespectsLevel(t *testing.T) {
	commands := testCommands()

	if _, ok := Find(commands, "setup", permissions.LevelUser); ok {
		t.Fatal("user-level lookup found an owner command")
	}
	cmd, ok := Find(commands, "setup", permissions.LevelOwner)
	if !ok || cmd.Signature != "<channel>" {
		t.Fatalf("owner lookup failed: %+v ok=%t", cmd, ok)
	}
	if _, ok := Find(commands, "nonexistent", permissions.LevelBotOwner); ok {
		t.Fatal("found a command that does not exist")
	}
}
