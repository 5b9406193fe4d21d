package services

import (
	"log/slog"
	"sync"
)

// Subscriber is anything that can receive published frames. Send must not
// block for long; connections queue into a buffered channel.
type Subscriber interface {
	ID() string
	Send(msg []byte) error
}

// ChannelRegistry maps channel names to their live subscribers. It is owned
// by main and shared by the gateway and the event fan-out.
type ChannelRegistry struct {
	mu          sync.RWMutex
	channels    map[string]map[string]Subscriber
	memberships map[string]map[string]struct{}
	closed      bool
	log         *slog.Logger
}

func NewChannelRegistry(log *slog.Logger) *ChannelRegistry {
	return &ChannelRegistry{
		channels:    make(map[string]map[string]Subscriber),
		memberships: make(map[string]map[string]struct{}),
		log:         log,
	}
}

// Subscribe adds sub to channel. Subscribing twice is harmless.
func (r *ChannelRegistry) Subscribe(channel string, sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	subs, ok := r.channels[channel]
	if !ok {
		subs = make(map[string]Subscriber)
		r.channels[channel] = subs
	}
	subs[sub.ID()] = sub

	m, ok := r.memberships[sub.ID()]
	if !ok {
		m = make(map[string]struct{})
		r.memberships[sub.ID()] = m
	}
	m[channel] = struct{}{}
	return true
}

// Unsubscribe removes sub from channel; it is a no-op when sub is absent.
func (r *ChannelRegistry) Unsubscribe(channel string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(channel, sub.ID())
}

// UnsubscribeAll drops sub from every channel it joined.
func (r *ChannelRegistry) UnsubscribeAll(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked(sub.ID())
}

func (r *ChannelRegistry) dropLocked(id string) {
	for channel := range r.memberships[id] {
		r.removeLocked(channel, id)
	}
	delete(r.memberships, id)
}

func (r *ChannelRegistry) removeLocked(channel, id string) {
	if subs, ok := r.channels[channel]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(r.channels, channel)
		}
	}
	if m, ok := r.memberships[id]; ok {
		delete(m, channel)
		if len(m) == 0 {
			delete(r.memberships, id)
		}
	}
}

// Publish delivers msg to every subscriber of channel and returns how many
// accepted it. Subscribers whose Send fails are removed from all channels.
func (r *ChannelRegistry) Publish(channel string, msg []byte) int {
	r.mu.RLock()
	subs := make([]Subscriber, 0, len(r.channels[channel]))
	for _, s := range r.channels[channel] {
		subs = append(subs, s)
	}
	r.mu.RUnlock()

	delivered := 0
	var dead []Subscriber
	for _, s := range subs {
		if err := s.Send(msg); err != nil {
			dead = append(dead, s)
			continue
		}
		delivered++
	}

	if len(dead) > 0 {
		r.mu.Lock()
		for _, s := range dead {
			r.dropLocked(s.ID())
		}
		r.mu.Unlock()
		r.log.Debug("reaped dead subscribers", "channel", channel, "count", len(dead))
	}
	return delivered
}

// Count reports the number of subscribers on channel.
func (r *ChannelRegistry) Count(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

// Channels lists the channels sub is currently in.
func (r *ChannelRegistry) Channels(sub Subscriber) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.memberships[sub.ID()]))
	for ch := range r.memberships[sub.ID()] {
		out = append(out, ch)
	}
	return out
}

// Close empties the registry and refuses new subscriptions.
func (r *ChannelRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.channels = make(map[string]map[string]Subscriber)
	r.memberships = make(map[string]map[string]struct{})
}
