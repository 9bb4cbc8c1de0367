package api

import (
    "encoding/json"
    "net/http"
    "sync"
    "time"

    "github.com/gorilla/websocket"
)

// Minimal graphql-transport-ws style protocol streaming plan events over
// WebSocket for clients that cannot hold SSE connections open.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
    Type    string          `json:"type"`
    ID      string          `json:"id,omitempty"`
    Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribePayload struct {
    Variables map[string]any `json:"variables"`
}

// PlanEventsWSHandler handles /v1/plans/events/ws. Clients send
// connection_init, then subscribe with a {"date":"YYYY-MM-DD"} variable to
// receive plan.completed and routes.applied events for that day.
func (s *Server) PlanEventsWSHandler(w http.ResponseWriter, r *http.Request) {
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    type sub struct {
        date string
        ch   chan SSEEvent
    }
    subs := map[string]sub{}

    conn.SetReadLimit(1 << 20)
    _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
    conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

    // gorilla/websocket allows one writer at a time; the keepalive and
    // fan-out goroutines share the connection with the read loop.
    var writeMu sync.Mutex
    write := func(v any) error {
        writeMu.Lock()
        defer writeMu.Unlock()
        return conn.WriteJSON(v)
    }

    for {
        var msg wsMessage
        if err := conn.ReadJSON(&msg); err != nil {
            break
        }
        switch msg.Type {
        case "connection_init":
            _ = write(wsMessage{Type: "connection_ack"})
            go func() {
                ticker := time.NewTicker(20 * time.Second)
                defer ticker.Stop()
                for range ticker.C {
                    if err := write(wsMessage{Type: "ping"}); err != nil {
                        return
                    }
                }
            }()
        case "ping":
            _ = write(wsMessage{Type: "pong"})
        case "subscribe":
            var pl wsSubscribePayload
            _ = json.Unmarshal(msg.Payload, &pl)
            date := ""
            if pl.Variables != nil {
                if v, ok := pl.Variables["date"].(string); ok {
                    date = v
                }
            }
            if date == "" {
                _ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"date required"}`)})
                _ = write(wsMessage{Type: "complete", ID: msg.ID})
                continue
            }
            if _, err := time.Parse(dateLayout, date); err != nil {
                _ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"invalid date"}`)})
                _ = write(wsMessage{Type: "complete", ID: msg.ID})
                continue
            }
            // dispatchers and admins see everything; technicians can watch
            // the day their own route lands on
            pr := s.getPrincipal(r)
            if !(pr.CanPlan() || pr.Role == "technician") {
                _ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"forbidden"}`)})
                _ = write(wsMessage{Type: "complete", ID: msg.ID})
                continue
            }
            ch := s.Broker.Subscribe(date)
            subs[msg.ID] = sub{date: date, ch: ch}
            go func(id string, c chan SSEEvent) {
                for evt := range c {
                    data := map[string]any{"planEvents": map[string]any{"type": evt.Type, "data": evt.Data}}
                    payload, _ := json.Marshal(map[string]any{"data": data})
                    _ = write(wsMessage{Type: "next", ID: id, Payload: payload})
                }
                _ = write(wsMessage{Type: "complete", ID: id})
            }(msg.ID, ch)
        case "complete":
            if s0, ok := subs[msg.ID]; ok {
                s.Broker.Unsubscribe(s0.date, s0.ch)
                delete(subs, msg.ID)
            }
        default:
            // ignore
        }
    }
    for id, s0 := range subs {
        s.Broker.Unsubscribe(s0.date, s0.ch)
        delete(subs, id)
    }
}
