package notify

import (
	"fmt"
	"strings"

	"concord/internal/config"
	"concord/internal/storage"

	"go.uber.org/zap"
)

// ChunkLimit keeps each message safely under the platform's 2000-character
// cap, leaving room for fence repair.
const ChunkLimit = 1900

// Messenger is the slice of the chat transport the notifier needs.
type Messenger interface {
	Send(channelID, content string) (messageID string, err error)
	DMChannel(userID string) (channelID string, err error)
}

// Notifier delivers operator notifications. Delivery is best-effort: the
// configured info channel first, then a direct message to each configured
// owner, then nothing. It never returns an error so a failing notification
// cannot cascade into another one.
type Notifier struct {
	msgr   Messenger
	owner  config.OwnerConfig
	logger *zap.Logger
}

func New(msgr Messenger, owner config.OwnerConfig, logger *zap.Logger) *Notifier {
	return &Notifier{msgr: msgr, owner: owner, logger: logger}
}

// Notify sends text to the owner's info channel. Events originating from the
// owner's own guild are skipped unless alwaysSend is set, since the operator
// already sees them first-hand.
func (n *Notifier) Notify(text, originGuildID string, alwaysSend bool) {
	if !alwaysSend && originGuildID != "" && originGuildID == n.owner.GuildID {
		return
	}
	n.deliver(n.owner.InfoChannel, text)
}

// NotifyJoinLeave sends text to the join/leave channel, falling back to the
// info channel when none is configured.
func (n *Notifier) NotifyJoinLeave(text, originGuildID string) {
	if originGuildID != "" && originGuildID == n.owner.GuildID {
		return
	}
	channel := n.owner.JoinLeaveChannel
	if channel == "" {
		channel = n.owner.InfoChannel
	}
	n.deliver(channel, text)
}

// NotifyError formats a persisted error record for the info channel. Error
// escalations always send, even for the owner's own guild.
func (n *Notifier) NotifyError(rec storage.ErrorRecord) {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** while handling `%s`", rec.Kind, rec.CmdString)
	if rec.GuildID != "" {
		fmt.Fprintf(&b, " in guild %s", rec.GuildID)
	}
	b.WriteString("\n")
	b.WriteString(rec.Message)
	if rec.Trace != "" && rec.Trace != rec.Message {
		fmt.Fprintf(&b, "\n```\n%s\n```", rec.Trace)
	}
	n.deliver(n.owner.InfoChannel, b.String())
}

// deliver runs the fallback chain: channel once, then one DM per owner,
// swallowing every failure along the way.
func (n *Notifier) deliver(channelID, text string) {
	chunks := Chunk(text, ChunkLimit)

	if channelID != "" {
		err := n.sendChunks(channelID, chunks)
		if err == nil {
			return
		}
		n.logger.Warn("owner channel notification failed",
			zap.String("channel_id", channelID), zap.Error(err))
	}

	for _, ownerID := range n.owner.IDs {
		dm, err := n.msgr.DMChannel(ownerID)
		if err != nil {
			n.logger.Debug("opening owner DM failed", zap.String("owner_id", ownerID), zap.Error(err))
			continue
		}
		if err := n.sendChunks(dm, chunks); err != nil {
			n.logger.Debug("owner DM failed", zap.String("owner_id", ownerID), zap.Error(err))
		}
	}
}

func (n *Notifier) sendChunks(channelID string, chunks []string) error {
	for _, chunk := range chunks {
		if _, err := n.msgr.Send(channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// Chunk splits text into rune-bounded pieces. A code fence left open at a
// split point is closed at the end of the chunk and reopened at the start of
// the next, so every piece renders as valid markdown on its own.
func Chunk(text string, limit int) []string {
	if limit <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		n := limit
		if len(runes) < n {
			n = len(runes)
		}
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}

	open := false
	for i := range chunks {
		chunk := chunks[i]
		if open {
			chunk = "```\n" + chunk
		}
		if strings.Count(chunk, "```")%2 != 0 {
			chunk += "\n```"
			open = true
		} else {
			open = false
		}
		chunks[i] = chunk
	}
	return chunks
}
