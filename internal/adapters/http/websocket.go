package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/samirrijal/cadastre/internal/core/domain"
	"github.com/samirrijal/cadastre/internal/core/ports"
	"github.com/samirrijal/cadastre/internal/pkg/metrics"
)

// wsMessage is sent from client to follow or stop following a plan.
type wsMessage struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	Plan   string `json:"plan"`
}

// WebSocketHandler relays survey events to connected clients.
// A ?plan=<id> query subscribes on connect; clients may add more plans with
// {"action":"subscribe","plan":"<id>"}.
func WebSocketHandler(events ports.EventSubscriber) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		slog.Info("ws client connected", "remote", remoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var mu sync.Mutex
		subs := make(map[string]func())

		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subscribe := func(planID string) {
			if _, err := uuid.Parse(planID); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid plan id: " + planID})
				return
			}
			if _, exists := subs[planID]; exists {
				_ = writeJSON(map[string]string{"status": "already subscribed", "plan": planID})
				return
			}
			stop, err := events.SubscribePlan(ctx, planID, func(_ context.Context, ev *domain.SurveyEvent) error {
				return writeJSON(ev)
			})
			if err != nil {
				_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
				return
			}
			subs[planID] = stop
			_ = writeJSON(map[string]string{"status": "subscribed", "plan": planID})
		}

		if events == nil {
			_ = writeJSON(map[string]string{"error": "event stream not configured"})
			return
		}
		if plan, ok := c.Locals("plan").(string); ok && plan != "" {
			subscribe(plan)
		}

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			switch m.Action {
			case "subscribe":
				subscribe(m.Plan)
			case "unsubscribe":
				if stop, exists := subs[m.Plan]; exists {
					stop()
					delete(subs, m.Plan)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "plan": m.Plan})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + m.Plan})
				}
			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, stop := range subs {
			stop()
		}
		slog.Info("ws client disconnected", "remote", remoteAddr, "plans", len(subs))
	}
}
