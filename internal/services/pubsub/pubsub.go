// Package pubsub fans fixture state and DMX input events out to stream clients.
package pubsub

import (
	"sync"

	"github.com/lucsky/cuid"
)

// Topic represents a subscription topic.
type Topic string

const (
	// TopicFixtureState carries simulation snapshots; the filter is a fixture ID.
	TopicFixtureState Topic = "FIXTURE_STATE_UPDATED"
	// TopicDMXInput carries universe updates; the filter is the universe number.
	TopicDMXInput Topic = "DMX_INPUT_CHANGED"
	// TopicPatchUpdated announces fixtures being added to or removed from the engine.
	TopicPatchUpdated Topic = "PATCH_UPDATED"
)

// Subscriber represents a subscription channel.
type Subscriber struct {
	ID      string
	Topic   Topic
	Filter  string // Optional filter value (fixture ID or universe)
	Channel chan interface{}
}

// PubSub manages subscriptions and message distribution.
type PubSub struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*Subscriber
}

// New creates a new PubSub instance.
func New() *PubSub {
	return &PubSub{
		subscribers: make(map[Topic][]*Subscriber),
	}
}

// Subscribe creates a new subscription for a topic.
func (ps *PubSub) Subscribe(topic Topic, filter string, bufferSize int) *Subscriber {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub := &Subscriber{
		ID:      cuid.New(),
		Topic:   topic,
		Filter:  filter,
		Channel: make(chan interface{}, bufferSize),
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
			remaining := make([]*Subscriber, 0, len(subs)-1)
			remaining = append(remaining, subs[:i]...)
			ps.subscribers[sub.Topic] = append(remaining, subs[i+1:]...)
			return
		}
	}
}

// Publish sends a message to all subscribers of a topic.
// If filter is non-empty, only sends to subscribers with matching filter or empty filter.
// Sends never block; a full subscriber misses the message.
func (ps *PubSub) Publish(topic Topic, filter string, message interface{}) {
	// The read lock is held while sending so Unsubscribe cannot close a
	// channel mid-send.
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

// SubscriberCount returns the number of subscribers for a topic. The health
// endpoint reports it as the number of connected stream clients.
func (ps *PubSub) SubscriberCount(topic Topic) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}
