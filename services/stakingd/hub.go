package stakingd

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/tuturu-tech/nft-staking/core/events"
	"github.com/tuturu-tech/nft-staking/core/types"
	"github.com/tuturu-tech/nft-staking/observability"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 64
)

// Hub fans ledger events out to websocket subscribers. Slow subscribers lose
// events rather than stalling the ledger.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
}

type subscriber struct {
	ch     chan *types.Event
	filter map[string]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscriber)}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if len(sub.filter) > 0 {
			if _, ok := sub.filter[payload.Type]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- payload:
		default:
			observability.Events().RecordDropped("ws")
		}
	}
}

// Subscribe registers a listener for the given event types, or all types
// when none are supplied.
func (h *Hub) Subscribe(eventTypes ...string) (<-chan *types.Event, func()) {
	sub := &subscriber{ch: make(chan *types.Event, subscriberBuffer)}
	if len(eventTypes) > 0 {
		sub.filter = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.filter[t] = struct{}{}
		}
	}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams events until the client goes
// away. The optional "types" query parameter is a comma separated filter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var filter []string
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter = append(filter, t)
		}
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	updates, cancel := h.Subscribe(filter...)
	defer cancel()
	if err := stream(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func stream(ctx context.Context, conn *websocket.Conn, updates <-chan *types.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// metricsEmitter counts every event by type.
type metricsEmitter struct{}

func (metricsEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	observability.Events().RecordEmitted(evt.EventType())
}
