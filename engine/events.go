package engine

import (
	"sync"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/numi-chain/numi-core/common"
)

// TipEvent is one element of the subscribe_new_tips() stream (spec.md
// §4.8).
type TipEvent struct {
	Hash   common.Hash
	Height uint64
}

// Subscription is a live subscribe_new_tips() handle. Events is closed
// when Close is called.
type Subscription struct {
	ID     string
	Events <-chan TipEvent

	hub *tipHub
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s.ID)
}

// tipHub fans a single consensus.NewTipSubscriber callback out to any
// number of subscribe_new_tips() callers, each with its own bounded,
// coalescing channel so one slow RPC consumer can never block another or
// the consensus writer that publishes through it (spec.md §5 "receivers
// may coalesce").
type tipHub struct {
	mu   sync.Mutex
	subs map[string]chan TipEvent
}

func newTipHub() *tipHub {
	return &tipHub{subs: make(map[string]chan TipEvent)}
}

// subscribeBuffer is the coalescing channel's depth: one slot is enough
// because publish always drains a stale pending event before sending the
// new one, so the channel never needs to hold more than the latest tip.
const subscribeBuffer = 1

// Subscribe registers a new subscribe_new_tips() stream and returns its
// handle. The subscription ID comes from hashicorp/go-uuid, the same
// generator the teacher's subscription/session bookkeeping uses elsewhere
// in the pack, so callers (RPC sessions) have a stable external handle
// distinct from the engine's own internal subscriber keys.
func (h *tipHub) subscribe() (*Subscription, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}
	ch := make(chan TipEvent, subscribeBuffer)
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return &Subscription{ID: id, Events: ch, hub: h}, nil
}

func (h *tipHub) remove(id string) {
	h.mu.Lock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

// publish matches consensus.NewTipSubscriber and is registered once, in
// New, against the wrapped Chain. It never blocks: a subscriber that
// hasn't drained its previous tip has that stale event replaced rather
// than queued, so the consensus writer publishing new tips is never
// slowed down by a lagging RPC consumer.
func (h *tipHub) publish(hash common.Hash, height uint64) {
	event := TipEvent{Hash: hash, Height: height}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// SubscribeNewTips implements spec.md §4.8 subscribe_new_tips. Call
// Subscription.Close when done to release the channel.
func (e *Engine) SubscribeNewTips() (*Subscription, error) {
	return e.hub.subscribe()
}
