package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/gateway"
	"github.com/stemsi/quizlive-backend/internal/model"
	"github.com/stemsi/quizlive-backend/internal/relay"
)

// startGateway serves the relay over a real websocket. The token query value
// is used directly as the teacher identity.
func startGateway(t *testing.T, opts relay.Options) string {
	t.Helper()
	opts.Logger = zerolog.Nop()
	r := relay.New(opts)
	g := gateway.New(r, gateway.Options{}, zerolog.Nop())

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		g.Serve(conn, req.URL.Query().Get("token"))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/quiz"
}

func dial(t *testing.T, ctx context.Context, url, token string) *Conn {
	t.Helper()
	c, err := Dial(ctx, url, token, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAdapterClassroomFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := startGateway(t, relay.Options{})

	teacher := NewTeacher(dial(t, ctx, url, "teacher-1"))
	started, err := teacher.StartSession(ctx, "")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	alice := NewStudent(dial(t, ctx, url, ""))
	bob := NewStudent(dial(t, ctx, url, ""))
	a, err := alice.Join(ctx, started.SessionCode, "Alice")
	if err != nil {
		t.Fatalf("alice join: %v", err)
	}
	b, err := bob.Join(ctx, started.SessionCode, "Bob")
	if err != nil {
		t.Fatalf("bob join: %v", err)
	}

	if err := teacher.StartQuestion(ctx, model.LiveQuestion{ID: "q1", Text: "Largest planet?", MaxPoints: 10}); err != nil {
		t.Fatalf("start question: %v", err)
	}
	if _, err := alice.WaitForQuestion(ctx); err != nil {
		t.Fatalf("alice wait: %v", err)
	}
	if _, err := bob.WaitForQuestion(ctx); err != nil {
		t.Fatalf("bob wait: %v", err)
	}

	slow, fast := int64(2400), int64(800)
	if _, err := alice.Respond(ctx, &slow); err != nil {
		t.Fatalf("alice respond: %v", err)
	}
	accepted, err := bob.Respond(ctx, &fast)
	if err != nil {
		t.Fatalf("bob respond: %v", err)
	}
	if accepted.Rank != 1 {
		t.Fatalf("bob rank = %d, want 1", accepted.Rank)
	}

	if _, err := alice.Respond(ctx, &fast); !errors.Is(err, relay.ErrDuplicateResponse) {
		t.Fatalf("duplicate respond: %v", err)
	}

	total, err := teacher.AwardPoints(ctx, b.ID, 10)
	if err != nil || total != 10 {
		t.Fatalf("award = %d, %v", total, err)
	}
	if _, err := teacher.AwardPoints(ctx, a.ID, 2); err != nil {
		t.Fatalf("award without open question: %v", err)
	}

	if err := teacher.EndQuestion(ctx); !errors.Is(err, relay.ErrNoActiveQuestion) {
		t.Fatalf("end question after award closed it: %v", err)
	}

	result, err := teacher.EndSession(ctx)
	if err != nil {
		t.Fatalf("end session: %v", err)
	}
	if result.Winner == nil || result.Winner.ID != b.ID {
		t.Fatalf("winner = %+v, want Bob", result.Winner)
	}
	final, err := alice.WaitForEnd(ctx)
	if err != nil {
		t.Fatalf("alice end: %v", err)
	}
	if len(final.Leaderboard) != 2 || final.Leaderboard[1].TotalPoints != 2 {
		t.Fatalf("leaderboard = %+v", final.Leaderboard)
	}

	st := teacher.State()
	if !st.Ended || len(st.Responses) != 2 || st.Responses[0].ParticipantID != b.ID {
		t.Fatalf("teacher state = %+v", st)
	}
}

func TestAdapterStudentReconnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := startGateway(t, relay.Options{AwardPolicy: relay.AwardKeepsQuestionOpen})

	teacher := NewTeacher(dial(t, ctx, url, "teacher-1"))
	started, err := teacher.StartSession(ctx, "")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	first := NewStudent(dial(t, ctx, url, ""))
	p, err := first.Join(ctx, started.SessionCode, "Sam")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := teacher.AwardPoints(ctx, p.ID, 5); err != nil {
		t.Fatalf("award: %v", err)
	}
	first.Close()

	again := Rejoin(dial(t, ctx, url, ""), started.SessionCode, first.ParticipantID())
	back, err := again.Join(ctx, started.SessionCode, "Sam")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if back.ID != p.ID || back.TotalPoints != 5 {
		t.Fatalf("rejoined as %+v", back)
	}
	if st := again.State(); st.Self == nil || st.Self.ID != p.ID || len(st.Participants) != 1 {
		t.Fatalf("state after rejoin = %+v", st)
	}
}

func TestAdapterPauseKeepsQuestionClosable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := startGateway(t, relay.Options{})

	teacher := NewTeacher(dial(t, ctx, url, "teacher-1"))
	if _, err := teacher.StartSession(ctx, ""); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := teacher.StartQuestion(ctx, model.LiveQuestion{ID: "q1", Text: "?", MaxPoints: 1}); err != nil {
		t.Fatalf("start question: %v", err)
	}
	if err := teacher.PauseQuestion(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := teacher.StartQuestion(ctx, model.LiveQuestion{ID: "q2", Text: "?", MaxPoints: 1}); err != nil {
		t.Fatalf("second question: %v", err)
	}
	if err := teacher.EndQuestion(ctx); err != nil {
		t.Fatalf("end question: %v", err)
	}
	if err := teacher.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestAdapterTeacherResume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := startGateway(t, relay.Options{OwnerGrace: time.Minute})

	teacher := NewTeacher(dial(t, ctx, url, "teacher-1"))
	started, err := teacher.StartSession(ctx, "")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	student := NewStudent(dial(t, ctx, url, ""))
	if _, err := student.Join(ctx, started.SessionCode, "Sam"); err != nil {
		t.Fatalf("join: %v", err)
	}

	teacher.Close()
	if _, err := student.Wait(ctx, relay.OutTeacherDisconnected); err != nil {
		t.Fatalf("student did not see the teacher leave: %v", err)
	}

	resumed := NewTeacher(dial(t, ctx, url, "teacher-1"))
	snap, err := resumed.ResumeSession(ctx, started.SessionCode)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(snap.Participants) != 1 || !snap.OwnerConnected {
		t.Fatalf("snapshot = %+v", snap)
	}
	if _, err := student.Wait(ctx, relay.OutTeacherReconnected); err != nil {
		t.Fatalf("student did not see the teacher return: %v", err)
	}

	intruder := NewTeacher(dial(t, ctx, url, "teacher-2"))
	if _, err := intruder.ResumeSession(ctx, started.SessionCode); !errors.Is(err, relay.ErrUnauthorizedRole) {
		t.Fatalf("intruder resume: %v", err)
	}
}
