package bot

import (
	"github.com/bwmarrin/discordgo"
)

// sessionMessenger adapts a live gateway session to the narrow transport
// interfaces the prompt, help, notify, and fault packages consume.
type sessionMessenger struct {
	session *discordgo.Session
}

func (m sessionMessenger) Send(channelID, content string) (string, error) {
	msg, err := m.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (m sessionMessenger) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error) {
	msg, err := m.session.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (m sessionMessenger) React(channelID, messageID, emoji string) error {
	return m.session.MessageReactionAdd(channelID, messageID, emoji)
}

func (m sessionMessenger) ClearReactions(channelID, messageID string) error {
	return m.session.MessageReactionsRemoveAll(channelID, messageID)
}

func (m sessionMessenger) Delete(channelID, messageID string) error {
	return m.session.ChannelMessageDelete(channelID, messageID)
}

func (m sessionMessenger) DMChannel(userID string) (string, error) {
	channel, err := m.session.UserChannelCreate(userID)
	if err != nil {
		return "", err
	}
	return channel.ID, nil
}
