package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/relay"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type testServer struct {
	relay   *relay.Relay
	gateway *Gateway
	srv     *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	r := relay.New(relay.Options{Logger: zerolog.Nop()})
	g := New(r, Options{SendBuffer: 32, PongTimeout: 5 * time.Second}, zerolog.Nop())

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		g.Serve(conn, req.URL.Query().Get("teacher"))
	}))
	t.Cleanup(srv.Close)
	return &testServer{relay: r, gateway: g, srv: srv}
}

func (ts *testServer) dial(t *testing.T, teacherID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/?teacher=" + teacherID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event, code string, data interface{}) {
	t.Helper()
	msg := map[string]interface{}{"event": event}
	if code != "" {
		msg["session_code"] = code
	}
	if data != nil {
		msg["data"] = data
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func next(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func expect(t *testing.T, conn *websocket.Conn, event string, into interface{}) {
	t.Helper()
	f := next(t, conn)
	if f.Event != event {
		t.Fatalf("got %s %s, want %s", f.Event, f.Data, event)
	}
	if into != nil {
		if err := json.Unmarshal(f.Data, into); err != nil {
			t.Fatalf("decode %s: %v", event, err)
		}
	}
}

func TestGatewayRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	teacher := ts.dial(t, "teacher-1")
	student := ts.dial(t, "")

	send(t, teacher, "teacher-start-session", "", nil)
	var started relay.SessionStartedPayload
	expect(t, teacher, "session-started", &started)
	if !relay.ValidCode(started.SessionCode) {
		t.Fatalf("bad code %q", started.SessionCode)
	}

	// codes typed by students are normalized
	send(t, student, "student-join", strings.ToLower(started.SessionCode), map[string]string{"student_name": "Alice"})
	var joined relay.JoinedPayload
	expect(t, student, "joined", &joined)
	expect(t, student, "participants-list", nil)
	expect(t, teacher, "participant-joined", nil)

	send(t, teacher, "teacher-start-question", started.SessionCode, map[string]interface{}{
		"question_id": "q1", "question_text": "2+2?", "max_points": 5,
	})
	expect(t, teacher, "question-started", nil)
	expect(t, student, "question-started", nil)

	send(t, student, "student-respond", started.SessionCode, map[string]interface{}{
		"participant_id": joined.Participant.ID, "elapsed_millis": 900,
	})
	var accepted relay.ResponseAcceptedPayload
	expect(t, student, "response-accepted", &accepted)
	if accepted.Rank != 1 || accepted.ElapsedMillis != 900 {
		t.Fatalf("accepted = %+v", accepted)
	}
	var nr relay.NewResponsePayload
	expect(t, teacher, "new-response", &nr)
	if nr.DisplayName != "Alice" || len(nr.Responses) != 1 {
		t.Fatalf("new-response = %+v", nr)
	}

	send(t, teacher, "teacher-award-points", started.SessionCode, map[string]interface{}{
		"participant_id": joined.Participant.ID, "points": 5,
	})
	expect(t, student, "points-awarded", nil)
	expect(t, student, "question-ended", nil)
	expect(t, teacher, "points-awarded", nil)
	expect(t, teacher, "question-ended", nil)

	send(t, teacher, "teacher-end-session", started.SessionCode, nil)
	var ended relay.SessionEndedPayload
	expect(t, student, "session-ended", &ended)
	if ended.Winner == nil || ended.Winner.TotalPoints != 5 {
		t.Fatalf("winner = %+v", ended.Winner)
	}
	expect(t, teacher, "session-ended", nil)
}

func TestGatewayRejectsBadFrames(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var perr relay.ErrorPayload
	expect(t, conn, "error", &perr)
	if perr.Code != relay.CodeInvalidPayload {
		t.Fatalf("code = %s", perr.Code)
	}

	send(t, conn, "teacher-dance", "", nil)
	expect(t, conn, "error", &perr)
	if perr.Code != relay.CodeUnknownEvent || perr.Event != "teacher-dance" {
		t.Fatalf("payload = %+v", perr)
	}

	send(t, conn, "student-join", "ZZZZZZ", map[string]string{"student_name": "Bob"})
	expect(t, conn, "error", &perr)
	if perr.Code != relay.CodeSessionNotFound {
		t.Fatalf("code = %s", perr.Code)
	}

	// students cannot open sessions
	send(t, conn, "teacher-start-session", "", nil)
	expect(t, conn, "error", &perr)
	if perr.Code != relay.CodeUnauthorizedRole {
		t.Fatalf("code = %s", perr.Code)
	}

	send(t, conn, "ping", "", nil)
	expect(t, conn, "pong", nil)
}

func TestGatewayDisconnectNotifiesRoom(t *testing.T) {
	ts := newTestServer(t)
	teacher := ts.dial(t, "teacher-1")
	student := ts.dial(t, "")

	send(t, teacher, "teacher-start-session", "", nil)
	var started relay.SessionStartedPayload
	expect(t, teacher, "session-started", &started)

	send(t, student, "student-join", started.SessionCode, map[string]string{"student_name": "Alice"})
	expect(t, student, "joined", nil)
	expect(t, teacher, "participant-joined", nil)

	student.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	student.Close()

	var left relay.ParticipantLeftPayload
	expect(t, teacher, "participant-left", &left)
	if left.DisplayName != "Alice" {
		t.Fatalf("left = %+v", left)
	}
}

func TestGatewayShutdownFlushesSessionEnded(t *testing.T) {
	ts := newTestServer(t)
	teacher := ts.dial(t, "teacher-1")
	student := ts.dial(t, "")

	send(t, teacher, "teacher-start-session", "", nil)
	var started relay.SessionStartedPayload
	expect(t, teacher, "session-started", &started)
	send(t, student, "student-join", started.SessionCode, map[string]string{"student_name": "Alice"})
	expect(t, student, "joined", nil)
	expect(t, student, "participants-list", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := ts.gateway.Shutdown(ctx, relay.ReasonServerClosing); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	var ended relay.SessionEndedPayload
	expect(t, student, "session-ended", &ended)
	if ended.Reason != relay.ReasonServerClosing {
		t.Fatalf("reason = %q", ended.Reason)
	}

	student.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := student.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.CloseGoingAway {
		t.Fatalf("expected going-away close, got %v", err)
	}
}

func TestClientEnqueueNeverBlocks(t *testing.T) {
	c := newClient("c1", nil, "", 1)
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, []byte(`{}`))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	if !c.enqueue(pm) {
		t.Fatal("first enqueue must fit")
	}
	if c.enqueue(pm) {
		t.Fatal("second enqueue must report a full buffer")
	}

	c.close(websocket.ClosePolicyViolation, "slow consumer")
	c.close(websocket.CloseNormalClosure, "")
	if code, text := c.closeReason(); code != websocket.ClosePolicyViolation || text != "slow consumer" {
		t.Fatalf("close reason = %d %q, want the first one", code, text)
	}
}
