package pubsub

import (
	"sync"

	"github.com/entityrt/entityrt/internal/entityid"
)

// Subscription is one live publish/subscribe link: Subscriber watches
// Target's Topic, and Target addresses deliveries (and Kick) to Subscriber
// using SubscriberChan (the value Subscriber originally chose as its
// InChannelID).
type Subscription struct {
	Subscriber     entityid.EntityId
	Target         entityid.EntityId
	Topic          string
	SubscriberChan int64
}

type channelKey struct {
	target entityid.EntityId
	chanID int64
}

// Registry indexes live Subscriptions both by (target, topic) — for
// Publish fan-out — and by (target, subscriberChan) — for Unsubscribe/Kick
// lookups that only carry the channel handle.
type Registry struct {
	mu sync.Mutex

	byTopic   map[entityid.EntityId]map[string][]Subscription
	byChannel map[channelKey]Subscription
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byTopic:   make(map[entityid.EntityId]map[string][]Subscription),
		byChannel: make(map[channelKey]Subscription),
	}
}

// Add records a new subscription.
func (r *Registry) Add(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byTopic[sub.Target] == nil {
		r.byTopic[sub.Target] = make(map[string][]Subscription)
	}
	r.byTopic[sub.Target][sub.Topic] = append(
		r.byTopic[sub.Target][sub.Topic], sub)

	r.byChannel[channelKey{sub.Target, sub.SubscriberChan}] = sub
}

// RemoveByChannel removes and returns the subscription addressed by
// (target, subscriberChan), if any.
func (r *Registry) RemoveByChannel(target entityid.EntityId,
	subscriberChan int64,
) (Subscription, bool) {

	r.mu.Lock()
	defer r.mu.Unlock()

	key := channelKey{target, subscriberChan}
	sub, ok := r.byChannel[key]
	if !ok {
		return Subscription{}, false
	}

	delete(r.byChannel, key)
	r.removeFromTopicLocked(sub)

	return sub, true
}

func (r *Registry) removeFromTopicLocked(sub Subscription) {
	subs := r.byTopic[sub.Target][sub.Topic]
	for i, s := range subs {
		if s.Subscriber == sub.Subscriber &&
			s.SubscriberChan == sub.SubscriberChan {

			r.byTopic[sub.Target][sub.Topic] = append(
				subs[:i], subs[i+1:]...)

			break
		}
	}

	if len(r.byTopic[sub.Target][sub.Topic]) == 0 {
		delete(r.byTopic[sub.Target], sub.Topic)
	}
	if len(r.byTopic[sub.Target]) == 0 {
		delete(r.byTopic, sub.Target)
	}
}

// SubscribersOf returns every live subscription on (target, topic).
func (r *Registry) SubscribersOf(target entityid.EntityId,
	topic string,
) []Subscription {

	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.byTopic[target][topic]

	return append([]Subscription(nil), subs...)
}

// RemoveAllForEntity tears down every subscription where id is either the
// target or the subscriber, returning the removed subscriptions split by
// id's role so the caller can notify the other side appropriately
// (UnsubscribeAck-shaped cleanup for targets id was subscribed to, and
// SubscriberKicked-shaped cleanup for subscribers id had).
func (r *Registry) RemoveAllForEntity(
	id entityid.EntityId,
) (asTarget, asSubscriber []Subscription) {

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.byTopic[id] {
		asTarget = append(asTarget, sub...)
	}
	delete(r.byTopic, id)

	for key, sub := range r.byChannel {
		if key.target == id {
			delete(r.byChannel, key)
		}
	}

	for target, topics := range r.byTopic {
		for topic, subs := range topics {
			kept := subs[:0]
			for _, sub := range subs {
				if sub.Subscriber == id {
					asSubscriber = append(asSubscriber, sub)
					delete(r.byChannel,
						channelKey{target, sub.SubscriberChan})

					continue
				}

				kept = append(kept, sub)
			}

			if len(kept) == 0 {
				delete(topics, topic)
			} else {
				topics[topic] = kept
			}
		}

		if len(topics) == 0 {
			delete(r.byTopic, target)
		}
	}

	return asTarget, asSubscriber
}
