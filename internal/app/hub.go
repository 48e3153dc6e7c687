package app

import (
	"sync"

	"pair-quiz-service/internal/domain"
)

// Hub fans game views out to subscribers of a game.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.GameView]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan domain.GameView]struct{})}
}

func (h *Hub) subscribe(gameID string, initial domain.GameView) (<-chan domain.GameView, func()) {
	ch := make(chan domain.GameView, 8)
	ch <- initial

	h.mu.Lock()
	subs, ok := h.subscribers[gameID]
	if !ok {
		subs = make(map[chan domain.GameView]struct{})
		h.subscribers[gameID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[gameID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, gameID)
		}
	}
	return ch, cancel
}

func (h *Hub) publish(view domain.GameView) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[view.ID] {
		select {
		case ch <- view:
		default:
			// slow subscriber: replace the oldest queued view with the newest one
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}

func (h *Hub) subscriberCount(gameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[gameID])
}
