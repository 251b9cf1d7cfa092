// Copyright 2025 DeFlow
//
// Package eventbus dispatches chain and workflow events to registered event
// trigger listeners. Grounded on pkg/anchor/event_watcher.go's
// callback-registry-plus-filter shape, generalized from Accumulate anchor
// events to arbitrary typed DeFlow events (balance changes, price crosses,
// pool phase transitions, execution completions).

package eventbus

import (
	"context"
	"log"
	"sync"
)

// Event is a single occurrence dispatched to listeners. Type identifies the
// event's shape (e.g. "balance.changed", "price.crossed", "pool.phase_changed");
// Data carries type-specific fields the same way workflow.Node.Config does.
type Event struct {
	Type string
	Data map[string]interface{}
}

// Listener is registered against a workflow's event trigger: WorkflowID
// names the workflow to fire, Filter is matched against an incoming Event's
// Data with MatchFilter before the workflow fires.
type Listener struct {
	ID         string
	WorkflowID string
	EventType  string
	Filter     map[string]interface{}
}

// FireFunc is invoked once per listener whose filter matches an emitted
// event.
type FireFunc func(ctx context.Context, l Listener, evt Event)

// Bus holds the registered listeners and dispatches incoming events to the
// ones whose EventType and Filter match.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string]Listener // keyed by Listener.ID
	fire      FireFunc
	logger    *log.Logger
}

// NewBus creates an event bus. fire is invoked synchronously for every
// listener a matching event fires; listeners are held in a map, so the
// order between them is not defined.
func NewBus(fire FireFunc, logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.New(log.Writer(), "[EventBus] ", log.LstdFlags)
	}
	return &Bus{
		listeners: make(map[string]Listener),
		fire:      fire,
		logger:    logger,
	}
}

// Register adds or replaces a listener.
func (b *Bus) Register(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[l.ID] = l
}

// Unregister removes a listener by id.
func (b *Bus) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, id)
}

// Listeners returns a snapshot of every registered listener.
func (b *Bus) Listeners() []Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		out = append(out, l)
	}
	return out
}

// Emit dispatches evt to every listener whose EventType matches and whose
// Filter is satisfied; the order across listeners is not defined.
func (b *Bus) Emit(ctx context.Context, evt Event) {
	b.mu.RLock()
	matched := make([]Listener, 0, 4)
	for _, l := range b.listeners {
		if l.EventType != evt.Type {
			continue
		}
		if MatchFilter(l.Filter, evt.Data) {
			matched = append(matched, l)
		}
	}
	b.mu.RUnlock()

	for _, l := range matched {
		if b.fire == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Printf("listener %s panicked handling event %s: %v", l.ID, evt.Type, r)
				}
			}()
			b.fire(ctx, l, evt)
		}()
	}
}

// epsilon is the tolerance used when comparing numeric filter values, since
// event data that round-trips through JSON arrives as float64 and direct
// equality on floats derived from on-chain integer amounts can miss by a
// rounding ULP.
const epsilon = 1e-9

// MatchFilter reports whether every key/value pair in filter is present and
// equal in data. Numeric comparisons (float64 on both sides, as produced by
// JSON decoding) use an epsilon tolerance; everything else uses ==. An empty
// or nil filter always matches.
func MatchFilter(filter, data map[string]interface{}) bool {
	for k, want := range filter {
		got, ok := data[k]
		if !ok {
			return false
		}
		if !valuesEqual(want, got) {
			return false
		}
	}
	return true
}

func valuesEqual(want, got interface{}) bool {
	wf, wok := want.(float64)
	gf, gok := got.(float64)
	if wok && gok {
		diff := wf - gf
		if diff < 0 {
			diff = -diff
		}
		return diff <= epsilon
	}
	return want == got
}
