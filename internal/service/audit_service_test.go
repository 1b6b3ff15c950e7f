package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/model"
	"github.com/stemsi/quizlive-backend/internal/relay"
)

var _ relay.Recorder = (*AuditService)(nil)

func drainQueue(s *AuditService) []model.AuditRecord {
	var out []model.AuditRecord
	for {
		select {
		case rec := <-s.queue:
			out = append(out, rec)
		default:
			return out
		}
	}
}

func TestAuditServiceBuildsRecords(t *testing.T) {
	s := NewAuditService(nil, 16, zerolog.Nop())
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	alice := model.Participant{ID: "p1", DisplayName: "Alice", TotalPoints: 7, JoinedAt: fixed}
	s.SessionStarted(model.SessionSnapshot{ID: "s1", Code: "ABC123", TeacherID: "t1", QuizID: "quiz", CreatedAt: fixed})
	s.ParticipantJoined("s1", alice)
	opened := fixed.Add(-5 * time.Second)
	s.ResponseRecorded("s1", "q1", opened, model.Response{ParticipantID: "p1", ElapsedMillis: 800, RespondedAt: fixed}, 1)
	s.PointsAwarded("s1", "p1", "q1", 7, 7)
	s.SessionEnded("s1", &alice, []model.Participant{alice})
	s.SessionEnded("s2", nil, nil)

	recs := drainQueue(s)
	kinds := []model.AuditKind{
		model.AuditSessionStarted,
		model.AuditParticipantJoined,
		model.AuditResponseRecorded,
		model.AuditPointsAwarded,
		model.AuditSessionEnded,
		model.AuditSessionEnded,
	}
	if len(recs) != len(kinds) {
		t.Fatalf("got %d records, want %d", len(recs), len(kinds))
	}
	for i, k := range kinds {
		if recs[i].Kind != k {
			t.Fatalf("record %d kind = %s, want %s", i, recs[i].Kind, k)
		}
	}
	if recs[0].SessionCode != "ABC123" || recs[0].TeacherID != "t1" || recs[0].QuizID != "quiz" {
		t.Fatalf("session started = %+v", recs[0])
	}
	if recs[2].ParticipantID != "p1" || recs[2].Rank != 1 || recs[2].Response.ElapsedMillis != 800 {
		t.Fatalf("response = %+v", recs[2])
	}
	if !recs[2].QuestionStartedAt.Equal(opened) {
		t.Fatalf("question started at = %v, want %v", recs[2].QuestionStartedAt, opened)
	}
	seen := map[string]bool{}
	for i, rec := range recs {
		if _, err := uuid.Parse(rec.EventID); err != nil || seen[rec.EventID] {
			t.Fatalf("record %d event id = %q", i, rec.EventID)
		}
		seen[rec.EventID] = true
	}
	if recs[3].Points != 7 || recs[3].TotalPoints != 7 || !recs[3].At.Equal(fixed) {
		t.Fatalf("award = %+v", recs[3])
	}
	if recs[4].WinnerID != "p1" || len(recs[4].Leaderboard) != 1 {
		t.Fatalf("ended = %+v", recs[4])
	}
	if recs[5].WinnerID != "" {
		t.Fatalf("winnerless end = %+v", recs[5])
	}
}

func TestAuditServiceDropsWhenFull(t *testing.T) {
	s := NewAuditService(nil, 2, zerolog.Nop())
	for i := 0; i < 5; i++ {
		s.PointsAwarded("s1", "p1", "", 1, i+1)
	}
	recs := drainQueue(s)
	if len(recs) != 2 || recs[1].TotalPoints != 2 {
		t.Fatalf("records = %+v", recs)
	}
}

func TestEncodeRecordsKeepsOrder(t *testing.T) {
	batch := []model.AuditRecord{
		{Kind: model.AuditSessionStarted, SessionID: "s1"},
		{Kind: model.AuditSessionEnded, SessionID: "s1"},
	}
	values := encodeRecords(batch, zerolog.Nop())
	if len(values) != 2 {
		t.Fatalf("values = %d", len(values))
	}
	var first model.AuditRecord
	if err := json.Unmarshal(values[0].([]byte), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Kind != model.AuditSessionStarted {
		t.Fatalf("first kind = %s", first.Kind)
	}
}
