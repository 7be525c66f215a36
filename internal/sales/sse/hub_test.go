package sse

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"
)

func TestNotifyReachesOnlyTargetUser(t *testing.T) {
	h := NewHub(zap.NewNop())
	alice := &Client{ID: "a1", UserID: "alice", Events: make(chan Event, 4)}
	bob := &Client{ID: "b1", UserID: "bob", Events: make(chan Event, 4)}
	h.Register(alice)
	h.Register(bob)

	h.Notify("alice", Notice{Level: LevelError, Title: "下推失败", Message: "库存不足", OrderID: 9})

	select {
	case ev := <-alice.Events:
		if ev.EventType != "notice" {
			t.Fatalf("event type = %s", ev.EventType)
		}
		var n Notice
		if err := json.Unmarshal([]byte(ev.Data), &n); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n.OrderID != 9 || n.Level != LevelError {
			t.Errorf("notice = %+v", n)
		}
	default:
		t.Fatal("alice got nothing")
	}
	if len(bob.Events) != 0 {
		t.Errorf("bob should not receive alice's notice")
	}
}

func TestBufferFullDoesNotBlock(t *testing.T) {
	h := NewHub(nil)
	c := &Client{ID: "c1", UserID: "u", Events: make(chan Event, 1)}
	h.Register(c)

	if n := h.SendToUser("u", Event{EventType: "x"}); n != 1 {
		t.Fatalf("first delivery = %d", n)
	}
	if n := h.SendToUser("u", Event{EventType: "y"}); n != 0 {
		t.Fatalf("full buffer should report 0 deliveries, got %d", n)
	}
}

func TestUnregisterClosesChannel(t *testing.T) {
	h := NewHub(nil)
	c := &Client{ID: "c1", UserID: "u", Events: make(chan Event, 1)}
	h.Register(c)
	h.Unregister("c1")
	if _, ok := <-c.Events; ok {
		t.Fatal("channel should be closed")
	}
	if h.Clients() != 0 {
		t.Fatalf("clients = %d", h.Clients())
	}
	h.Unregister("c1")
}
