// Package pubsub fans installation events out to status clients.
package pubsub

import (
	"sync"

	"github.com/lucsky/cuid"
)

// Topic represents a subscription topic.
type Topic string

const (
	// TopicPadState carries a sequencer.PadStatus for every pad change.
	TopicPadState Topic = "PAD_STATE_CHANGED"
	// TopicGateArmed carries the index of the newly armed gate.
	TopicGateArmed Topic = "GATE_ARMED"
	// TopicLayout is published after a layout (re)load.
	TopicLayout Topic = "LAYOUT_LOADED"
	// TopicFailure carries collaborator failures (lighting, audio).
	TopicFailure Topic = "OUTPUT_FAILURE"
)

// Subscriber represents a subscription channel.
type Subscriber struct {
	ID      string
	Topic   Topic
	Filter  string // optional gate index
	Channel chan interface{}
}

// PubSub manages subscriptions and message distribution.
type PubSub struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*Subscriber
	closed      bool
}

// New creates a new PubSub instance.
func New() *PubSub {
	return &PubSub{
		subscribers: make(map[Topic][]*Subscriber),
	}
}

// Subscribe creates a new subscription for a topic. Subscribing to a
// closed PubSub returns a subscriber whose channel is already closed.
func (ps *PubSub) Subscribe(topic Topic, filter string, bufferSize int) *Subscriber {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub := &Subscriber{
		ID:      cuid.New(),
		Topic:   topic,
		Filter:  filter,
		Channel: make(chan interface{}, bufferSize),
	}
	if ps.closed {
		close(sub.Channel)
		return sub
	}

	ps.subscribers[topic] = append(ps.subscribers[topic], sub)
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (ps *PubSub) Unsubscribe(sub *Subscriber) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	subs := ps.subscribers[sub.Topic]
	for i, s := range subs {
		if s.ID == sub.ID {
			close(s.Channel)
			ps.subscribers[sub.Topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish sends a message to all subscribers of a topic.
// If filter is non-empty, only sends to subscribers with matching filter or empty filter.
// Slow subscribers miss messages rather than block the publisher.
func (ps *PubSub) Publish(topic Topic, filter string, message interface{}) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, sub := range ps.subscribers[topic] {
		if sub.Filter == "" || filter == "" || sub.Filter == filter {
			select {
			case sub.Channel <- message:
			default:
			}
		}
	}
}

// PublishAll sends a message to all subscribers of a topic regardless of filter.
func (ps *PubSub) PublishAll(topic Topic, message interface{}) {
	ps.Publish(topic, "", message)
}

// SubscriberCount returns the number of subscribers for a topic.
func (ps *PubSub) SubscriberCount(topic Topic) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}

// Close closes every subscriber channel. Later publishes are dropped.
func (ps *PubSub) Close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return
	}
	ps.closed = true
	for topic, subs := range ps.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(ps.subscribers, topic)
	}
}
