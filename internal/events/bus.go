// Package events is the pub/sub fan-out between script-triggered
// notifications (and hot-reload diagnostics) and the sessions/admin
// surfaces subscribed to them.
package events

import (
	"sync"

	"github.com/lattice-mud/lattice/internal/reload"
	"github.com/lattice-mud/lattice/internal/world"
)

// Kind discriminates what an Event carries.
type Kind int

const (
	KindNotify Kind = iota
	KindReload
)

// Event is one message the bus fans out. Text is the player-visible
// payload for KindNotify; ReloadOK/ReloadVerbs/ReloadDiagnostics carry
// a hot-reload outcome for KindReload.
type Event struct {
	Kind              Kind
	Target            world.ID
	Text              string
	ReloadOK          bool
	ReloadVerbs       int
	ReloadDiagnostics []reload.Diagnostic
}

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a per-player pub/sub event bus with a separate set of global
// subscribers (administrator sessions watching reload diagnostics).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[world.ID][]Subscriber
	global      []Subscriber
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[world.ID][]Subscriber)}
}

// Subscribe registers sub for events targeting player.
func (b *Bus) Subscribe(player world.ID, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[player] = append(b.subscribers[player], sub)
}

// Unsubscribe removes sub from player's subscriber list.
func (b *Bus) Unsubscribe(player world.ID, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[player]
	for i, s := range subs {
		if s == sub {
			b.subscribers[player] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[player]) == 0 {
		delete(b.subscribers, player)
	}
}

// SubscribeGlobal registers sub to receive every event regardless of
// target, used by administrator sessions watching reload diagnostics.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Notify implements the dispatcher's `notify(target, text)` builtin
// sink: deliver a KindNotify event to target's subscribers.
func (b *Bus) Notify(target world.ID, text string) {
	b.emit(Event{Kind: KindNotify, Target: target, Text: text})
}

// NotifyReload implements reload.EventSubscriber: fan a hot-reload
// outcome out to every global subscriber (nobody targets a reload event
// at a specific player).
func (b *Bus) NotifyReload(ok bool, verbCount int, diagnostics []reload.Diagnostic) {
	b.emit(Event{Kind: KindReload, ReloadOK: ok, ReloadVerbs: verbCount, ReloadDiagnostics: diagnostics})
}

func (b *Bus) emit(ev Event) {
	b.mu.RLock()
	subs := b.subscribers[ev.Target]
	globals := b.global
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// Cleanup drops closed subscribers from every list, to be called
// periodically so a long-lived bus doesn't accumulate dead sessions.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for player, subs := range b.subscribers {
		active := subs[:0]
		for _, s := range subs {
			if !s.Closed() {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			delete(b.subscribers, player)
		} else {
			b.subscribers[player] = active
		}
	}

	active := b.global[:0]
	for _, s := range b.global {
		if !s.Closed() {
			active = append(active, s)
		}
	}
	b.global = active
}
