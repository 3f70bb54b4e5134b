package transcript

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultSubscriberBuffer = 64

// Fragment is one piece of live transcript for a call.
type Fragment struct {
	CallID string    `json:"call_id"`
	Text   string    `json:"text"`
	Source string    `json:"source,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher receives fragments. Publish must not block the caller.
type Publisher interface {
	Publish(ctx context.Context, f Fragment)
}

// Publishers fans a fragment out to every publisher in order.
type Publishers []Publisher

func (p Publishers) Publish(ctx context.Context, f Fragment) {
	for _, pub := range p {
		if pub != nil {
			pub.Publish(ctx, f)
		}
	}
}

type subscriber struct {
	send chan Fragment
}

// Hub broadcasts fragments to the subscribers of each call.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[*subscriber]struct{}
	bufferSize int
}

var _ Publisher = (*Hub)(nil)

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultSubscriberBuffer
	}
	return &Hub{
		subs:       make(map[string]map[*subscriber]struct{}),
		bufferSize: bufferSize,
	}
}

// Subscribe returns a channel of fragments for callID and a cancel func that
// closes it. The channel drops fragments when the reader falls behind.
func (h *Hub) Subscribe(callID string) (<-chan Fragment, func()) {
	callID = strings.TrimSpace(callID)
	sub := &subscriber{send: make(chan Fragment, h.bufferSize)}

	h.mu.Lock()
	set, ok := h.subs[callID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[callID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[callID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, callID)
				}
			}
			close(sub.send)
		})
	}
	return sub.send, cancel
}

func (h *Hub) Publish(ctx context.Context, f Fragment) {
	if f.At.IsZero() {
		f.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[f.CallID] {
		select {
		case sub.send <- f:
		default:
			log.Debug().Str("call_id", f.CallID).Msg("transcript subscriber slow, fragment dropped")
		}
	}
}

// Subscribers reports the number of subscribers of a call.
func (h *Hub) Subscribers(callID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[callID])
}
