package api

import (
    "testing"
    "time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    date := "2026-09-01"
    ch := b.Subscribe(date)

    evt := SSEEvent{Type: "plan.completed", Data: map[string]any{"routes": 3}}
    b.Publish(date, evt)

    select {
    case got := <-ch:
        if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
        if got.Data["routes"].(int) != 3 { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }

    b.Unsubscribe(date, ch)
    select {
    case _, ok := <-ch:
        if ok { t.Fatal("channel should be closed after unsubscribe") }
    case <-time.After(50 * time.Millisecond):
        // acceptable if already drained and closed
    }
}

func TestBrokerTopicsIsolated(t *testing.T) {
    b := NewBroker()
    a := b.Subscribe("2026-09-01")
    c := b.Subscribe("2026-09-02")
    defer b.Unsubscribe("2026-09-01", a)
    defer b.Unsubscribe("2026-09-02", c)

    b.Publish("2026-09-01", SSEEvent{Type: "routes.applied", Data: map[string]any{}})

    select {
    case <-a:
    case <-time.After(200 * time.Millisecond):
        t.Fatal("subscriber on published topic got nothing")
    }
    select {
    case evt := <-c:
        t.Fatalf("cross-topic leak: %+v", evt)
    case <-time.After(50 * time.Millisecond):
    }
}
