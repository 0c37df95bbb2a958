package realtime

import (
	"encoding/json"
	"testing"
)

func newTestClient(id string) *Client {
	return &Client{ID: id, send: make(chan WSMessage, 8)}
}

func drain(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestBroadcastReachesOnlySessionMembers(t *testing.T) {
	hub := NewHub(nil)
	a, b, other := newTestClient("a"), newTestClient("b"), newTestClient("other")
	hub.Subscribe(a, "s1")
	hub.Subscribe(b, "s1")
	hub.Subscribe(other, "s2")

	hub.BroadcastToSession("s1", "server:session_update", json.RawMessage(`{"id":"s1"}`))

	for _, c := range []*Client{a, b} {
		msgs := drain(c)
		if len(msgs) != 1 || msgs[0].Event != "server:session_update" {
			t.Fatalf("client %s got %+v", c.ID, msgs)
		}
		if string(msgs[0].Data) != `{"id":"s1"}` {
			t.Errorf("client %s payload %s", c.ID, msgs[0].Data)
		}
	}
	if msgs := drain(other); len(msgs) != 0 {
		t.Errorf("client in another session received %+v", msgs)
	}
}

func TestSubscribeMovesBetweenSessions(t *testing.T) {
	hub := NewHub(nil)
	c := newTestClient("c")
	hub.Subscribe(c, "s1")
	hub.Subscribe(c, "s2")

	if n := hub.SessionClientCount("s1"); n != 0 {
		t.Errorf("old session still holds %d clients", n)
	}
	if n := hub.SessionClientCount("s2"); n != 1 {
		t.Errorf("new session holds %d clients, want 1", n)
	}

	hub.BroadcastToSession("s1", "x", nil)
	hub.BroadcastToSession("s2", "y", nil)
	msgs := drain(c)
	if len(msgs) != 1 || msgs[0].Event != "y" {
		t.Fatalf("expected only the new session's broadcast, got %+v", msgs)
	}
}

func TestNotifyParticipantTargetsBinding(t *testing.T) {
	hub := NewHub(nil)
	ann, ben := newTestClient("ann"), newTestClient("ben")
	hub.Subscribe(ann, "s1")
	hub.Subscribe(ben, "s1")
	hub.BindParticipant(ann, "p-ann")
	hub.BindParticipant(ben, "p-ben")

	hub.NotifyParticipant("s1", "p-ben", "student:kicked", "bye")

	if msgs := drain(ann); len(msgs) != 0 {
		t.Errorf("unrelated participant received %+v", msgs)
	}
	msgs := drain(ben)
	if len(msgs) != 1 || msgs[0].Event != "student:kicked" {
		t.Fatalf("target got %+v", msgs)
	}

	// unknown bindings are a no-op
	hub.NotifyParticipant("s1", "p-missing", "student:kicked", nil)
	hub.NotifyParticipant("missing", "p-ben", "student:kicked", nil)
}

func TestBindWithoutSubscribeIsIgnored(t *testing.T) {
	hub := NewHub(nil)
	c := newTestClient("c")
	hub.BindParticipant(c, "p1")

	hub.NotifyParticipant("", "p1", "x", nil)
	if msgs := drain(c); len(msgs) != 0 {
		t.Errorf("unsubscribed client should not be bindable, got %+v", msgs)
	}
}

func TestDisconnectParticipantFlushesQueuedMessages(t *testing.T) {
	hub := NewHub(nil)
	c := newTestClient("c")
	hub.Subscribe(c, "s1")
	hub.BindParticipant(c, "p1")

	hub.NotifyParticipant("s1", "p1", "student:kicked", "bye")
	hub.DisconnectParticipant("s1", "p1")

	// the queued notification must still be readable before channel close
	msg, ok := <-c.send
	if !ok || msg.Event != "student:kicked" {
		t.Fatalf("queued message lost: %+v ok=%v", msg, ok)
	}
	if _, ok := <-c.send; ok {
		t.Fatal("send channel should be closed after disconnect")
	}

	// repeat disconnect must not panic on the closed channel
	hub.DisconnectParticipant("s1", "p1")
}

func TestBroadcastSkipsClosedClient(t *testing.T) {
	hub := NewHub(nil)
	c := newTestClient("c")
	hub.Subscribe(c, "s1")
	hub.BindParticipant(c, "p1")
	hub.DisconnectParticipant("s1", "p1")
	drain(c)

	hub.BroadcastToSession("s1", "server:session_update", nil)
	hub.SendToClient(c, "server:error", nil)
}

func TestBroadcastSkipsFullBuffer(t *testing.T) {
	hub := NewHub(nil)
	c := &Client{ID: "c", send: make(chan WSMessage, 1)}
	hub.Subscribe(c, "s1")

	hub.BroadcastToSession("s1", "first", nil)
	hub.BroadcastToSession("s1", "second", nil) // dropped, buffer full

	msgs := drain(c)
	if len(msgs) != 1 || msgs[0].Event != "first" {
		t.Fatalf("expected only the first message, got %+v", msgs)
	}
}

func TestUnsubscribeReturnsBindingAndIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	c := newTestClient("c")
	hub.Subscribe(c, "s1")
	hub.BindParticipant(c, "p1")

	sessionID, participantID := hub.Unsubscribe(c)
	if sessionID != "s1" || participantID != "p1" {
		t.Fatalf("Unsubscribe = %q, %q; want s1, p1", sessionID, participantID)
	}
	if n := hub.SessionClientCount("s1"); n != 0 {
		t.Errorf("session still holds %d clients", n)
	}

	sessionID, participantID = hub.Unsubscribe(c)
	if sessionID != "" || participantID != "" {
		t.Errorf("second Unsubscribe = %q, %q; want empty", sessionID, participantID)
	}

	// a former member no longer receives broadcasts or kick notifications
	hub.BroadcastToSession("s1", "x", nil)
	hub.NotifyParticipant("s1", "p1", "student:kicked", nil)
	if msgs := drain(c); len(msgs) != 0 {
		t.Errorf("unsubscribed client received %+v", msgs)
	}
}

func TestToRawVariants(t *testing.T) {
	if got := toRaw(nil); got != nil {
		t.Errorf("toRaw(nil) = %s", got)
	}
	if got := toRaw(json.RawMessage(`{"a":1}`)); string(got) != `{"a":1}` {
		t.Errorf("toRaw(raw) = %s", got)
	}
	if got := toRaw(map[string]int{"a": 1}); string(got) != `{"a":1}` {
		t.Errorf("toRaw(value) = %s", got)
	}
}
