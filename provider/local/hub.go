package local

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrEthical07/authflow"
)

type subscriber struct {
	handler authflow.EventHandler
	kinds   map[authflow.EventKind]struct{}
	ch      chan authflow.Event
}

func (s *subscriber) wants(kind authflow.EventKind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// hub fans provider events out to subscribers. Each subscriber has its own
// queue and delivery goroutine, so a slow handler never blocks publishers
// or other subscribers.
type hub struct {
	logger *slog.Logger
	buffer int

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
	wg     sync.WaitGroup
}

func newHub(buffer int, logger *slog.Logger) *hub {
	return &hub{
		logger: logger,
		buffer: buffer,
		subs:   make(map[uint64]*subscriber),
	}
}

func (h *hub) subscribe(handler authflow.EventHandler, kinds ...authflow.EventKind) func() {
	sub := &subscriber{
		handler: handler,
		kinds:   make(map[authflow.EventKind]struct{}, len(kinds)),
		ch:      make(chan authflow.Event, h.buffer),
	}
	for _, k := range kinds {
		sub.kinds[k] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = sub

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for ev := range sub.ch {
			sub.handler(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if s, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(s.ch)
			}
		})
	}
}

func (h *hub) publish(ev authflow.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if !sub.wants(ev.Kind) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.LogAttrs(context.Background(), slog.LevelWarn, "event dropped for slow subscriber",
				slog.String("kind", ev.Kind.String()),
			)
		}
	}
}

// close stops every subscriber after its queued events are delivered.
func (h *hub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
	h.mu.Unlock()

	h.wg.Wait()
}
