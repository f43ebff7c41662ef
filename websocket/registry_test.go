package websocket

import (
	"encoding/json"
	"errors"
	"testing"

	"debatesite/logger"
)

func TestRegistrySend(t *testing.T) {
	r := NewRegistry(nil, logger.Nop())
	c := newClient(nil, "alice", 2, nil)
	if _, err := r.Register(c); err != nil {
		t.Fatal(err)
	}

	if !r.Send("alice", map[string]string{"type": "ping"}) {
		t.Fatal("Send to connected user failed")
	}
	var got map[string]string
	if err := json.Unmarshal(<-c.send, &got); err != nil || got["type"] != "ping" {
		t.Errorf("queued frame = %v, err %v", got, err)
	}
	if r.Send("bob", map[string]string{"type": "ping"}) {
		t.Error("Send to unknown user reported delivery")
	}
	if r.Count() != 1 || !r.IsConnected("alice") {
		t.Errorf("count = %d", r.Count())
	}
}

func TestRegistryDropsSlowClient(t *testing.T) {
	r := NewRegistry(nil, logger.Nop())
	c := newClient(nil, "alice", 1, nil)
	r.Register(c)

	if !r.Send("alice", 1) {
		t.Fatal("first send refused")
	}
	if r.Send("alice", 2) {
		t.Fatal("send to a full buffer reported delivery")
	}
	<-c.ctx.Done()
}

func TestRegistryReplacesConnection(t *testing.T) {
	r := NewRegistry(nil, logger.Nop())
	first := newClient(nil, "alice", 1, nil)
	second := newClient(nil, "alice", 1, nil)

	r.Register(first)
	replaced, _ := r.Register(second)
	if !replaced {
		t.Error("second registration did not replace the first")
	}
	<-first.ctx.Done()

	if r.Unregister(first) {
		t.Error("stale connection unregistered the live one")
	}
	if !r.IsConnected("alice") {
		t.Fatal("user lost the live connection")
	}
	if !r.Unregister(second) {
		t.Error("live connection not unregistered")
	}
	if r.Count() != 0 {
		t.Errorf("count = %d", r.Count())
	}
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry(nil, logger.Nop())
	c := newClient(nil, "alice", 1, nil)
	r.Register(c)
	r.Close()

	<-c.ctx.Done()
	if _, err := r.Register(newClient(nil, "bob", 1, nil)); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Register after Close = %v", err)
	}
}
