package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrTooManyOptions is returned when a choice menu exceeds the alphabet.
var ErrTooManyOptions = fmt.Errorf("prompt: a menu carries at most %d options", len(Alphabet))

// ErrMismatchedValues is returned when option labels and values diverge.
var ErrMismatchedValues = errors.New("prompt: options and values must have equal length")

// Messenger is the slice of the chat transport the prompts need. The bot
// backs it with a live session; tests back it with a fake.
type Messenger interface {
	Send(channelID, content string) (messageID string, err error)
	React(channelID, messageID, emoji string) error
	ClearReactions(channelID, messageID string) error
	Delete(channelID, messageID string) error
}

// Decision is the outcome of a yes/no prompt. Skipped is distinct from both
// confirmation and cancellation so optional steps can tell "declined" from
// "not answered".
type Decision int

const (
	Cancelled Decision = iota
	Confirmed
	Skipped
)

func (d Decision) String() string {
	switch d {
	case Confirmed:
		return "confirmed"
	case Skipped:
		return "skipped"
	default:
		return "cancelled"
	}
}

type Timeouts struct {
	YesNo    time.Duration
	Choose   time.Duration
	Response time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		YesNo:    200 * time.Second,
		Choose:   120 * time.Second,
		Response: 120 * time.Second,
	}
}

// Prompter runs reaction- and message-driven dialogues against a channel.
type Prompter struct {
	msgr     Messenger
	broker   *Broker
	timeouts Timeouts
	logger   *zap.Logger
}

func New(msgr Messenger, broker *Broker, timeouts Timeouts, logger *zap.Logger) *Prompter {
	defaults := DefaultTimeouts()
	if timeouts.YesNo <= 0 {
		timeouts.YesNo = defaults.YesNo
	}
	if timeouts.Choose <= 0 {
		timeouts.Choose = defaults.Choose
	}
	if timeouts.Response <= 0 {
		timeouts.Response = defaults.Response
	}
	return &Prompter{msgr: msgr, broker: broker, timeouts: timeouts, logger: logger}
}

type YesNoOptions struct {
	// Skip offers a fast-forward reaction alongside confirm and cancel.
	Skip bool
	// QuietTimeout suppresses the notice sent when the prompt expires.
	QuietTimeout bool
	// QuietCancel suppresses the notice sent on explicit cancellation.
	QuietCancel bool
}

// YesNo posts text and waits for the asking user to react. An expired prompt
// counts as cancelled, or as skipped when skipping was offered.
func (p *Prompter) YesNo(ctx context.Context, channelID, userID, text string, opts YesNoOptions) (Decision, error) {
	messageID, err := p.msgr.Send(channelID, text)
	if err != nil {
		return Cancelled, err
	}

	emoji := []string{EmojiConfirm, EmojiCancel}
	if opts.Skip {
		emoji = append(emoji, EmojiSkip)
	}
	p.addReactions(channelID, messageID, emoji)

	reaction, err := p.broker.AwaitReaction(ctx, func(r Reaction) bool {
		return r.MessageID == messageID && r.UserID == userID && contains(emoji, r.Emoji)
	}, p.timeouts.YesNo)
	if errors.Is(err, ErrTimeout) {
		if clearErr := p.msgr.ClearReactions(channelID, messageID); clearErr != nil {
			p.logger.Debug("clearing reactions failed", zap.Error(clearErr))
		}
		if !opts.QuietTimeout {
			p.send(channelID, "Sorry, you timed out.")
		}
		if opts.Skip {
			return Skipped, nil
		}
		return Cancelled, nil
	}
	if err != nil {
		return Cancelled, err
	}

	switch reaction.Emoji {
	case EmojiConfirm:
		return Confirmed, nil
	case EmojiSkip:
		return Skipped, nil
	default:
		if !opts.QuietCancel {
			p.send(channelID, "Cancelled.")
		}
		return Cancelled, nil
	}
}

// Choose posts a lettered menu and waits for the asking user to pick one
// option by reaction. The menu message is removed once the dialogue ends.
// When values is nil the option labels double as values.
func (p *Prompter) Choose(ctx context.Context, channelID, userID, text string, options, values []string) (string, error) {
	if len(options) > len(Alphabet) {
		return "", ErrTooManyOptions
	}
	if values == nil {
		values = options
	}
	if len(values) != len(options) {
		return "", ErrMismatchedValues
	}

	var body strings.Builder
	body.WriteString(text)
	for i, option := range options {
		body.WriteString("\n")
		body.WriteString(Alphabet[i])
		body.WriteString(": ")
		body.WriteString(option)
	}

	messageID, err := p.msgr.Send(channelID, body.String())
	if err != nil {
		return "", err
	}
	p.addReactions(channelID, messageID, Alphabet[:len(options)])

	reaction, err := p.broker.AwaitReaction(ctx, func(r Reaction) bool {
		if r.MessageID != messageID || r.UserID != userID || r.Bot {
			return false
		}
		idx := AlphabetIndex(r.Emoji)
		return idx >= 0 && idx < len(options)
	}, p.timeouts.Choose)

	if deleteErr := p.msgr.Delete(channelID, messageID); deleteErr != nil {
		p.logger.Debug("deleting menu failed", zap.Error(deleteErr))
	}
	if errors.Is(err, ErrTimeout) {
		p.send(channelID, "Sorry, you timed out.")
		return "", ErrTimeout
	}
	if err != nil {
		return "", err
	}
	return values[AlphabetIndex(reaction.Emoji)], nil
}

const responseRetries = 5

// Response asks a question and waits for the asking user's next matching
// message. An optional check narrows which messages qualify; an optional
// parse validates the content, re-asking on failure until the retry budget
// runs out.
func (p *Prompter) Response(ctx context.Context, channelID, userID, question string, check func(Message) bool, parse func(string) (string, error)) (string, Message, error) {
	if _, err := p.msgr.Send(channelID, question); err != nil {
		return "", Message{}, err
	}

	pred := func(m Message) bool {
		if m.ChannelID != channelID || m.AuthorID != userID || m.Bot {
			return false
		}
		return check == nil || check(m)
	}

	tries := 0
	for {
		message, err := p.broker.AwaitMessage(ctx, pred, p.timeouts.Response)
		if err != nil {
			return "", Message{}, err
		}
		if parse == nil {
			return message.Content, message, nil
		}

		answer, parseErr := parse(message.Content)
		if parseErr == nil {
			return answer, message, nil
		}
		tries++
		if tries >= responseRetries {
			p.send(channelID, "Too many tries. Stopping.")
			return "", Message{}, ErrTimeout
		}
		p.send(channelID, "Sorry, I couldn't understand that. Please try again.")
	}
}

func (p *Prompter) addReactions(channelID, messageID string, emoji []string) {
	for _, e := range emoji {
		if err := p.msgr.React(channelID, messageID, e); err != nil {
			p.logger.Debug("adding reaction failed", zap.String("emoji", e), zap.Error(err))
		}
	}
}

func (p *Prompter) send(channelID, content string) {
	if _, err := p.msgr.Send(channelID, content); err != nil {
		p.logger.Debug("sending notice failed", zap.Error(err))
	}
}

func contains(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}
