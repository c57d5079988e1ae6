package engine

import (
	"context"
	"sync"
)

// Registry owns the set of live per-chat actors, lazily creating one on
// first use and guaranteeing exactly one actor exists per chat_id at a
// time. Lookups and inserts are guarded by a single mutex; the mutex is
// never held across a call into an actor, so a busy chat never blocks work
// on any other chat.
type Registry struct {
	deps   Deps
	cfg    Config
	events chan<- Event

	mu     sync.Mutex
	actors map[string]*Actor
}

// NewRegistry constructs a Registry. events receives every Event emitted by
// every actor it creates; callers typically give it to the facade to drain.
func NewRegistry(deps Deps, cfg Config, events chan<- Event) *Registry {
	return &Registry{
		deps:   deps,
		cfg:    cfg,
		events: events,
		actors: make(map[string]*Actor),
	}
}

// Get returns the actor for chatID, creating and starting one if this is
// the first message ever addressed to that chat.
func (r *Registry) Get(chatID string) *Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.actors[chatID]; ok {
		return a
	}
	a := newActor(chatID, r.deps, r.cfg, r.events)
	r.actors[chatID] = a
	if r.deps.Metrics != nil {
		r.deps.Metrics.ActiveChats.Add(context.Background(), 1)
	}
	return a
}

// Lookup returns the actor for chatID without creating one.
func (r *Registry) Lookup(chatID string) (*Actor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[chatID]
	return a, ok
}

// Stop tears down chatID's actor, if one exists, and removes it from the
// registry. Calling Stop for a chat with no actor — including one that has
// already stopped — is a no-op.
func (r *Registry) Stop(chatID string) {
	r.mu.Lock()
	a, ok := r.actors[chatID]
	if ok {
		delete(r.actors, chatID)
	}
	r.mu.Unlock()
	if ok {
		a.Send(Stop{})
		if r.deps.Metrics != nil {
			r.deps.Metrics.ActiveChats.Add(context.Background(), -1)
		}
	}
}

// ChatIDs returns the chat_ids with a live actor, for diagnostics.
func (r *Registry) ChatIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.actors))
	for id := range r.actors {
		ids = append(ids, id)
	}
	return ids
}
