package prompt

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when a wait expires before a matching event arrives.
var ErrTimeout = errors.New("prompt: timed out waiting for a response")

// Reaction is the slice of a gateway reaction event the prompts care about.
type Reaction struct {
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
	Bot       bool
}

// Message is the slice of a gateway message event the prompts care about.
type Message struct {
	ChannelID   string
	MessageID   string
	AuthorID    string
	Content     string
	Attachments int
	Bot         bool
}

// Broker matches published gateway events against pending predicate waits.
// A wait suspends only the calling goroutine; concurrent commands each hold
// their own wait.
type Broker struct {
	mu            sync.Mutex
	nextID        int
	reactionWaits map[int]*reactionWait
	messageWaits  map[int]*messageWait
}

type reactionWait struct {
	pred func(Reaction) bool
	ch   chan Reaction
}

type messageWait struct {
	pred func(Message) bool
	ch   chan Message
}

func NewBroker() *Broker {
	return &Broker{
		reactionWaits: make(map[int]*reactionWait),
		messageWaits:  make(map[int]*messageWait),
	}
}

// AwaitReaction blocks until a published reaction satisfies pred, the timeout
// elapses, or ctx is done.
func (b *Broker) AwaitReaction(ctx context.Context, pred func(Reaction) bool, timeout time.Duration) (Reaction, error) {
	wait := &reactionWait{pred: pred, ch: make(chan Reaction, 1)}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.reactionWaits[id] = wait
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.reactionWaits, id)
		b.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reaction := <-wait.ch:
		return reaction, nil
	case <-timer.C:
		return Reaction{}, ErrTimeout
	case <-ctx.Done():
		return Reaction{}, ctx.Err()
	}
}

// AwaitMessage blocks until a published message satisfies pred, the timeout
// elapses, or ctx is done.
func (b *Broker) AwaitMessage(ctx context.Context, pred func(Message) bool, timeout time.Duration) (Message, error) {
	wait := &messageWait{pred: pred, ch: make(chan Message, 1)}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.messageWaits[id] = wait
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.messageWaits, id)
		b.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case message := <-wait.ch:
		return message, nil
	case <-timer.C:
		return Message{}, ErrTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// PublishReaction hands a gateway reaction to the first matching wait.
func (b *Broker) PublishReaction(reaction Reaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, wait := range b.reactionWaits {
		if !wait.pred(reaction) {
			continue
		}
		select {
		case wait.ch <- reaction:
			delete(b.reactionWaits, id)
		default:
		}
		return
	}
}

// PublishMessage hands a gateway message to the first matching wait.
func (b *Broker) PublishMessage(message Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, wait := range b.messageWaits {
		if !wait.pred(message) {
			continue
		}
		select {
		case wait.ch <- message:
			delete(b.messageWaits, id)
		default:
		}
		return
	}
}
