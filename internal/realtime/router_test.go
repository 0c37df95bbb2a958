package realtime

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/classpulse/backend/internal/chat"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/polls"
	"github.com/classpulse/backend/internal/sessions"
)

type routerFixture struct {
	hub    *Hub
	roster *sessions.Service
	polls  *polls.Service
	chat   *chat.Service
	router *Router
	sess   *models.Session
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	hub := NewHub(nil)
	store := sessions.NewStore(nil)
	roster := sessions.NewService(store, hub, nil, nil)
	pollSvc := polls.NewService(store, hub, nil, nil)
	chatSvc := chat.NewService(hub, nil)

	sess, err := roster.Create("teacher-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return &routerFixture{
		hub:    hub,
		roster: roster,
		polls:  pollSvc,
		chat:   chatSvc,
		router: NewRouter(hub, roster, pollSvc, chatSvc, nil),
		sess:   sess,
	}
}

func event(t *testing.T, name, dataFormat string, args ...interface{}) WSMessage {
	t.Helper()
	data := fmt.Sprintf(dataFormat, args...)
	if !json.Valid([]byte(data)) {
		t.Fatalf("test event payload is not valid JSON: %s", data)
	}
	return WSMessage{Event: name, Data: json.RawMessage(data)}
}

func findEvent(msgs []WSMessage, name string) (WSMessage, bool) {
	for _, m := range msgs {
		if m.Event == name {
			return m, true
		}
	}
	return WSMessage{}, false
}

func TestStudentJoinHappyPath(t *testing.T) {
	fx := newRouterFixture(t)
	c := newTestClient("ws-1")

	fx.router.HandleEvent(c, event(t, "student:join", `{"name":"Ann","sessionId":%q}`, fx.sess.ID))

	msgs := drain(c)
	joined, ok := findEvent(msgs, "student:joined")
	if !ok {
		t.Fatalf("no student:joined reply in %+v", msgs)
	}
	var p models.Participant
	if err := json.Unmarshal(joined.Data, &p); err != nil {
		t.Fatalf("decode participant: %v", err)
	}
	if p.ID == "" || p.Name != "Ann" {
		t.Errorf("participant = %+v", p)
	}

	// the joiner receives its own roster update
	update, ok := findEvent(msgs, "server:session_update")
	if !ok {
		t.Fatalf("no session update in %+v", msgs)
	}
	var snap models.Session
	if err := json.Unmarshal(update.Data, &snap); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if _, present := snap.Students[p.ID]; !present {
		t.Error("joiner missing from broadcast roster")
	}
	if fx.hub.SessionClientCount(fx.sess.ID) != 1 {
		t.Error("client should remain subscribed after joining")
	}
}

func TestStudentJoinErrors(t *testing.T) {
	fx := newRouterFixture(t)
	taken := newTestClient("ws-taken")
	fx.router.HandleEvent(taken, event(t, "student:join", `{"name":"Ann","sessionId":%q}`, fx.sess.ID))
	drain(taken)

	kicked := newTestClient("ws-kicked")
	fx.router.HandleEvent(kicked, event(t, "student:join", `{"name":"Ben","sessionId":%q}`, fx.sess.ID))
	msgs := drain(kicked)
	joined, _ := findEvent(msgs, "student:joined")
	var ben models.Participant
	_ = json.Unmarshal(joined.Data, &ben)
	fx.roster.Kick(fx.sess.ID, ben.ID)

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"missing name", fmt.Sprintf(`{"sessionId":%q}`, fx.sess.ID), "Missing name or session ID"},
		{"missing session", `{"name":"Zoe"}`, "Missing name or session ID"},
		{"unknown session", `{"name":"Zoe","sessionId":"missing"}`, "Session not found"},
		{"name taken", fmt.Sprintf(`{"name":"Ann","sessionId":%q}`, fx.sess.ID), "Name already taken in this session"},
		{"kicked name", fmt.Sprintf(`{"name":"Ben","sessionId":%q}`, fx.sess.ID), "You have been kicked from this session and cannot rejoin."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient("ws-" + tt.name)
			fx.router.HandleEvent(c, WSMessage{Event: "student:join", Data: json.RawMessage(tt.payload)})

			errMsg, ok := findEvent(drain(c), "server:error")
			if !ok {
				t.Fatal("expected a server:error reply")
			}
			var got string
			if err := json.Unmarshal(errMsg.Data, &got); err != nil {
				t.Fatalf("decode error payload: %v", err)
			}
			if got != tt.want {
				t.Errorf("error = %q, want %q", got, tt.want)
			}
		})
	}

	// a rejected joiner must not stay in the group
	count := fx.hub.SessionClientCount(fx.sess.ID)
	if count != 2 { // Ann's connection plus Ben's still-subscribed one
		t.Errorf("session has %d clients, want 2", count)
	}
}

func TestTeacherJoinReceivesSnapshot(t *testing.T) {
	fx := newRouterFixture(t)
	student := newTestClient("ws-student")
	fx.router.HandleEvent(student, event(t, "student:join", `{"name":"Ann","sessionId":%q}`, fx.sess.ID))
	drain(student)

	teacher := newTestClient("ws-teacher")
	fx.router.HandleEvent(teacher, event(t, "teacher:join", `{"sessionId":%q}`, fx.sess.ID))

	update, ok := findEvent(drain(teacher), "server:session_update")
	if !ok {
		t.Fatal("teacher should receive the current session state on join")
	}
	var snap models.Session
	if err := json.Unmarshal(update.Data, &snap); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if len(snap.Students) != 1 {
		t.Errorf("snapshot roster size = %d, want 1", len(snap.Students))
	}

	// joining an unknown session subscribes but sends nothing back
	other := newTestClient("ws-other")
	fx.router.HandleEvent(other, event(t, "teacher:join", `{"sessionId":"missing"}`))
	if msgs := drain(other); len(msgs) != 0 {
		t.Errorf("unexpected reply for unknown session: %+v", msgs)
	}
}

func TestPollLifecycleOverEvents(t *testing.T) {
	fx := newRouterFixture(t)
	teacher := newTestClient("ws-teacher")
	fx.router.HandleEvent(teacher, event(t, "teacher:join", `{"sessionId":%q}`, fx.sess.ID))
	student := newTestClient("ws-student")
	fx.router.HandleEvent(student, event(t, "student:join", `{"name":"Ann","sessionId":%q}`, fx.sess.ID))
	joined, _ := findEvent(drain(student), "student:joined")
	var ann models.Participant
	_ = json.Unmarshal(joined.Data, &ann)
	drain(teacher)

	fx.router.HandleEvent(teacher, event(t, "teacher:create_poll",
		`{"question":"Pick a color?","options":["Red","Blue"],"duration":30,"sessionId":%q}`, fx.sess.ID))

	pollMsg, ok := findEvent(drain(student), "server:poll_update")
	if !ok {
		t.Fatal("students should receive the new poll")
	}
	var poll models.Poll
	if err := json.Unmarshal(pollMsg.Data, &poll); err != nil {
		t.Fatalf("decode poll: %v", err)
	}
	if !poll.IsActive || len(poll.Options) != 2 {
		t.Fatalf("poll = %+v", poll)
	}

	fx.router.HandleEvent(student, event(t, "student:submit_answer",
		`{"sessionId":%q,"pollId":%q,"studentId":%q,"optionId":%q}`,
		fx.sess.ID, poll.ID, ann.ID, poll.Options[0].ID))

	msgs := drain(teacher)
	if _, ok := findEvent(msgs, "server:results_update"); !ok {
		t.Fatalf("last answer should close the poll, teacher got %+v", msgs)
	}
	tally, _ := findEvent(msgs, "server:poll_update")
	var updated models.Poll
	_ = json.Unmarshal(tally.Data, &updated)
	if updated.Options[0].Votes != 1 {
		t.Errorf("tally = %d, want 1", updated.Options[0].Votes)
	}
	drain(student)

	// re-arm via start_poll and confirm the ledger is empty again
	fx.router.HandleEvent(teacher, event(t, "teacher:start_poll", `{"pollId":%q,"sessionId":%q}`, poll.ID, fx.sess.ID))
	rearm, ok := findEvent(drain(student), "server:poll_update")
	if !ok {
		t.Fatal("restart should broadcast the re-armed poll")
	}
	var rearmed models.Poll
	_ = json.Unmarshal(rearm.Data, &rearmed)
	if !rearmed.IsActive || len(rearmed.Responses) != 0 || rearmed.Options[0].Votes != 0 {
		t.Errorf("re-armed poll = %+v", rearmed)
	}
}

func TestCreatePollErrors(t *testing.T) {
	fx := newRouterFixture(t)
	teacher := newTestClient("ws-teacher")

	fx.router.HandleEvent(teacher, event(t, "teacher:create_poll", `{"question":"x"}`))
	errMsg, ok := findEvent(drain(teacher), "server:error")
	if !ok {
		t.Fatal("expected server:error for incomplete poll data")
	}
	var got string
	_ = json.Unmarshal(errMsg.Data, &got)
	if got != "Missing poll data or session ID" {
		t.Errorf("error = %q", got)
	}

	fx.router.HandleEvent(teacher, event(t, "teacher:create_poll",
		`{"question":"Pick?","options":["only one"],"sessionId":%q}`, fx.sess.ID))
	if _, ok := findEvent(drain(teacher), "server:error"); !ok {
		t.Error("expected server:error for single-option poll")
	}
}

func TestKickStudentOverEvents(t *testing.T) {
	fx := newRouterFixture(t)
	student := newTestClient("ws-student")
	fx.router.HandleEvent(student, event(t, "student:join", `{"name":"Ben","sessionId":%q}`, fx.sess.ID))
	joined, _ := findEvent(drain(student), "student:joined")
	var ben models.Participant
	_ = json.Unmarshal(joined.Data, &ben)

	teacher := newTestClient("ws-teacher")
	fx.router.HandleEvent(teacher, event(t, "teacher:join", `{"sessionId":%q}`, fx.sess.ID))
	drain(teacher)

	fx.router.HandleEvent(teacher, event(t, "teacher:kick_student", `{"sessionId":%q,"studentId":%q}`, fx.sess.ID, ben.ID))

	kickMsg, ok := findEvent(drain(student), "student:kicked")
	if !ok {
		t.Fatal("kicked student should be notified before the socket closes")
	}
	var text string
	_ = json.Unmarshal(kickMsg.Data, &text)
	if text != "You have been kicked from the session by the teacher." {
		t.Errorf("kick message = %q", text)
	}
	if _, open := <-student.send; open {
		t.Error("kicked student's send channel should be closed")
	}
	update, ok := findEvent(drain(teacher), "server:session_update")
	if !ok {
		t.Fatal("remaining members should receive the smaller roster")
	}
	var snap models.Session
	_ = json.Unmarshal(update.Data, &snap)
	if len(snap.Students) != 0 || !snap.IsKicked("Ben") {
		t.Errorf("post-kick snapshot = %+v", snap)
	}
}

func TestChatOverEvents(t *testing.T) {
	fx := newRouterFixture(t)
	a := newTestClient("ws-a")
	fx.router.HandleEvent(a, event(t, "student:join", `{"name":"Ann","sessionId":%q}`, fx.sess.ID))
	b := newTestClient("ws-b")
	fx.router.HandleEvent(b, event(t, "student:join", `{"name":"Ben","sessionId":%q}`, fx.sess.ID))
	drain(a)
	drain(b)

	fx.router.HandleEvent(a, event(t, "chat:send_message",
		`{"sessionId":%q,"senderType":"student","senderId":"p1","senderName":"Ann","message":"hi"}`, fx.sess.ID))

	for _, c := range []*Client{a, b} {
		msg, ok := findEvent(drain(c), "chat:new_message")
		if !ok {
			t.Fatalf("client %s missed the chat broadcast", c.ID)
		}
		var cm models.ChatMessage
		if err := json.Unmarshal(msg.Data, &cm); err != nil {
			t.Fatalf("decode chat message: %v", err)
		}
		if cm.Message != "hi" || cm.SenderName != "Ann" {
			t.Errorf("chat message = %+v", cm)
		}
	}

	late := newTestClient("ws-late")
	fx.router.HandleEvent(late, event(t, "chat:get_history", `{"sessionId":%q}`, fx.sess.ID))
	reply, ok := findEvent(drain(late), "chat:history")
	if !ok {
		t.Fatal("expected a chat:history reply")
	}
	var history []models.ChatMessage
	if err := json.Unmarshal(reply.Data, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 || history[0].Message != "hi" {
		t.Errorf("history = %+v", history)
	}
}

func TestDisconnectRemovesParticipantFromRoster(t *testing.T) {
	fx := newRouterFixture(t)
	c := newTestClient("ws-1")
	fx.router.HandleEvent(c, event(t, "student:join", `{"name":"Ann","sessionId":%q}`, fx.sess.ID))
	joined, _ := findEvent(drain(c), "student:joined")
	var ann models.Participant
	_ = json.Unmarshal(joined.Data, &ann)

	fx.router.HandleDisconnect(c)

	_ = fx.roster.Store().WithSession(fx.sess.ID, func(s *models.Session) error {
		if _, ok := s.Students[ann.ID]; ok {
			t.Error("disconnected participant still on the roster")
		}
		return nil
	})
	if fx.hub.SessionClientCount(fx.sess.ID) != 0 {
		t.Error("connection should leave the group on disconnect")
	}

	// a connection that never joined disconnects cleanly
	fx.router.HandleDisconnect(newTestClient("ws-stranger"))
}

func TestUnknownAndMalformedEventsIgnored(t *testing.T) {
	fx := newRouterFixture(t)
	c := newTestClient("ws-1")

	fx.router.HandleEvent(c, WSMessage{Event: "does:not_exist", Data: json.RawMessage(`{}`)})
	fx.router.HandleEvent(c, WSMessage{Event: "student:submit_answer", Data: json.RawMessage(`not json`)})
	fx.router.HandleEvent(c, WSMessage{Event: "teacher:start_poll", Data: json.RawMessage(`not json`)})
	fx.router.HandleEvent(c, WSMessage{Event: "chat:send_message", Data: json.RawMessage(`not json`)})

	if msgs := drain(c); len(msgs) != 0 {
		t.Errorf("ignored events must not reply, got %+v", msgs)
	}
}
