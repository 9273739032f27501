package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"flashvault/core/events"
	"flashvault/core/types"
	"flashvault/native/flashloan"
	"flashvault/observability"
)

// EventHub fans engine events out to websocket subscribers. It implements
// events.Emitter so the engine can be pointed straight at it.
type EventHub struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func NewEventHub(log *slog.Logger) *EventHub {
	if log == nil {
		log = slog.Default()
	}
	return &EventHub{log: log, subs: make(map[chan []byte]struct{})}
}

// Emit satisfies events.Emitter. Slow subscribers are skipped rather than
// blocking the engine's operation path.
func (h *EventHub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	if executed, ok := evt.(flashloan.LoanExecuted); ok {
		observability.EngineMetrics().AddLoanVolume(executed.Asset, executed.Amount)
	}
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	payload, err := json.Marshal(carrier.Event())
	if err != nil {
		h.log.Warn("failed to marshal event", "type", evt.EventType(), "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

func (h *EventHub) subscribe() chan []byte {
	sub := make(chan []byte, 64)
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *EventHub) unsubscribe(sub chan []byte) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

func (h *EventHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub := h.subscribe()
	defer h.unsubscribe(sub)

	// The stream is write-only; CloseRead surfaces client disconnects.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-sub:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
