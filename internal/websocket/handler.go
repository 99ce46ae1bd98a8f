package websocket

import (
	"context"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/pawlog/internal/view"
)

// Calendar streams view.Calendar month views. The initial month comes from
// the "month" query parameter; clients switch with {"month":"YYYY-MM"}.
func Calendar(hub *Hub, cal *view.Calendar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pet := r.PathValue("pet")
		serve(hub, w, r, Request{Month: r.URL.Query().Get("month")}, func(ctx context.Context, req Request) (<-chan Message, error) {
			views, err := cal.Watch(ctx, pet, req.Month)
			if err != nil {
				return nil, err
			}
			out := make(chan Message)
			go func() {
				defer close(out)
				for v := range views {
					msg := Message{Type: TypeCalendar, Pet: pet, Data: v}
					if v.Err != nil {
						msg = Message{Type: TypeError, Pet: pet, Error: v.Err.Error()}
					}
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				}
			}()
			return out, nil
		})
	}
}

// Trend streams view.Trend weight views. Clients switch with {"range":"6m"}.
func Trend(hub *Hub, trend *view.Trend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pet := r.PathValue("pet")
		serve(hub, w, r, Request{Range: r.URL.Query().Get("range")}, func(ctx context.Context, req Request) (<-chan Message, error) {
			rng, err := view.ParseRange(req.Range)
			if err != nil {
				return nil, err
			}
			views, err := trend.Watch(ctx, pet, rng)
			if err != nil {
				return nil, err
			}
			out := make(chan Message)
			go func() {
				defer close(out)
				for v := range views {
					msg := Message{Type: TypeTrend, Pet: pet, Data: v}
					if v.Err != nil {
						msg = Message{Type: TypeError, Pet: pet, Error: v.Err.Error()}
					}
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				}
			}()
			return out, nil
		})
	}
}

func serve(hub *Hub, w http.ResponseWriter, r *http.Request, initial Request, subscribe Subscribe) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true, // Bearer tokens, not cookies, authorize the stream
	})
	if err != nil {
		hub.logger.Warn("websocket accept", "error", err)
		return
	}
	defer conn.CloseNow()

	client := NewClient(hub, conn, subscribe)
	client.Run(r.Context(), initial)
	conn.Close(ws.StatusNormalClosure, "")
}
