// Package notify carries named actions from the check cycle to page
// dispatchers and status views.
package notify

import (
	"sync"

	"github.com/nhle/otp-autofill/internal/model"
)

// Action names a message kind.
type Action string

const (
	ActionFillCode       Action = "fillCode"
	ActionNoCodeFound    Action = "noCodeFound"
	ActionCheckingStatus Action = "checkingStatus"
)

// Message is a JSON-serializable notification.
type Message struct {
	Action Action            `json:"action"`
	Code   string            `json:"code,omitempty"`
	Status model.CheckStatus `json:"status,omitempty"`
	Detail string            `json:"detail,omitempty"`
}

// FillCode builds a fillCode message.
func FillCode(code string) Message {
	return Message{Action: ActionFillCode, Code: code}
}

// NoCodeFound builds a noCodeFound message.
func NoCodeFound(detail string) Message {
	return Message{Action: ActionNoCodeFound, Detail: detail}
}

// Status builds a checkingStatus message.
func Status(status model.CheckStatus, detail string) Message {
	return Message{Action: ActionCheckingStatus, Status: status, Detail: detail}
}

// Publisher accepts messages.
type Publisher interface {
	Publish(msg Message)
}

// Bus fans messages out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the message.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Message
	next   int
	closed bool
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Message)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers msg to every subscriber with room for it.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
