package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"support-chat/contract"
	"support-chat/domain/event"
	"support-chat/errors"
)

const DefaultSubscriberBuffer = 64

type subscriberSet map[*subscription]struct{}

// Registry is the in-process change feed: topic -> subscribers.
// Delivery is best effort. A subscriber whose buffer is full misses the
// event and is expected to re-fetch on its poll interval.
type Registry struct {
	mu         sync.RWMutex
	topics     map[string]subscriberSet
	bufferSize int
	log        *slog.Logger
	dropped    atomic.Uint64
}

var (
	_ contract.IPublisher  = (*Registry)(nil)
	_ contract.ISubscriber = (*Registry)(nil)
)

func NewRegistry(log *slog.Logger, bufferSize int) *Registry {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Registry{
		topics:     make(map[string]subscriberSet),
		bufferSize: bufferSize,
		log:        log,
	}
}

// Subscribe registers a new handle on topic. The caller owns it and must Close it.
func (r *Registry) Subscribe(topic string) (contract.Subscription, error) {
	if err := event.ValidateTopic(topic); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrSubscriptionFailed, err)
	}
	sub := &subscription{
		topic:    topic,
		events:   make(chan event.ChangeEvent, r.bufferSize),
		registry: r,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.topics[topic]; !ok {
		r.topics[topic] = make(subscriberSet)
	}
	r.topics[topic][sub] = struct{}{}
	return sub, nil
}

// Publish delivers e on every topic it belongs to without blocking.
func (r *Registry) Publish(_ context.Context, e event.ChangeEvent) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, topic := range e.Topics() {
		for sub := range r.topics[topic] {
			select {
			case sub.events <- e:
			default:
				r.dropped.Add(1)
				r.log.Warn("Subscriber buffer full, dropping change event",
					"topic", topic, "entity", e.Entity, "id", e.ID)
			}
		}
	}
	return nil
}

// Subscribers counts the live handles on topic.
func (r *Registry) Subscribers(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// Load samples every topic: handle count and the fullest buffer.
func (r *Registry) Load() []event.TopicLoad {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loads := make([]event.TopicLoad, 0, len(r.topics))
	for topic, subs := range r.topics {
		load := event.TopicLoad{Topic: topic, Subscribers: len(subs), Capacity: r.bufferSize}
		for sub := range subs {
			load.Buffered = max(load.Buffered, len(sub.events))
		}
		loads = append(loads, load)
	}
	sort.Slice(loads, func(i, j int) bool { return loads[i].Topic < loads[j].Topic })
	return loads
}

// Dropped counts events lost to full buffers since start.
func (r *Registry) Dropped() uint64 {
	return r.dropped.Load()
}

// remove runs under the write lock, so no Publish is sending on the channel
// while it is closed.
func (r *Registry) remove(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs, ok := r.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(r.topics, sub.topic)
		}
	}
	close(sub.events)
}

type subscription struct {
	topic    string
	events   chan event.ChangeEvent
	registry *Registry
	once     sync.Once
}

func (s *subscription) Events() <-chan event.ChangeEvent {
	return s.events
}

// Close is idempotent. The events channel is closed once unregistered.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.registry.remove(s)
	})
}
