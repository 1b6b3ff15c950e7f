package relay

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/quizlive-backend/internal/model"
)

// DefaultCodeAttempts bounds code generation retries when none is configured.
const DefaultCodeAttempts = 10

type openQuestion struct {
	question  model.LiveQuestion
	startedAt time.Time
	responses []model.Response
	responded map[string]struct{}
}

type session struct {
	code           string
	id             string
	quizID         string
	teacherID      string
	status         model.SessionStatus
	ownerConnected bool
	createdAt      time.Time
	question       *openQuestion
	lastResponses  []model.Response
	participants   []*model.Participant
	byID           map[string]*model.Participant
}

// StoreOptions configures a Store. Zero values pick production defaults.
type StoreOptions struct {
	Generate    CodeGenerator
	MaxAttempts int
	Now         func() time.Time
	NewID       func() string
}

// Store is the Session Store: the authoritative in-memory state of every
// active session. It is mutated only by the Relay.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	generate    CodeGenerator
	maxAttempts int
	now         func() time.Time
	newID       func() string
}

// NewStore creates an empty Store.
func NewStore(opts StoreOptions) *Store {
	s := &Store{
		sessions:    make(map[string]*session),
		generate:    opts.Generate,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
		newID:       opts.NewID,
	}
	if s.generate == nil {
		s.generate = RandomCode
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultCodeAttempts
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}
	return s
}

// CreateSession allocates a fresh code and registers a waiting session.
func (s *Store) CreateSession(teacherID, quizID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return "", fmt.Errorf("generate session code: %w", err)
		}
		if _, taken := s.sessions[code]; taken {
			continue
		}
		s.sessions[code] = &session{
			code:           code,
			id:             s.newID(),
			quizID:         quizID,
			teacherID:      teacherID,
			status:         model.SessionStatusWaiting,
			ownerConnected: true,
			createdAt:      s.now(),
			byID:           make(map[string]*model.Participant),
		}
		return code, nil
	}
	return "", ErrCodeGenerationExhausted
}

// AddOrReconnectParticipant collapses join and rejoin into one path. A known
// participantID is marked connected and returned unchanged in points and
// name; anything else mints a new participant. The boolean reports a reconnect.
func (s *Store) AddOrReconnectParticipant(code, participantID, displayName string) (model.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(code)
	if err != nil {
		return model.Participant{}, false, err
	}

	if participantID != "" {
		if p, ok := sess.byID[participantID]; ok {
			p.Connected = true
			return *p, true, nil
		}
	}

	p := &model.Participant{
		ID:          s.newID(),
		DisplayName: displayName,
		Connected:   true,
		JoinedAt:    s.now(),
	}
	sess.participants = append(sess.participants, p)
	sess.byID[p.ID] = p
	return *p, false, nil
}

// SetConnection records the transport connection currently representing a participant.
func (s *Store) SetConnection(code, participantID, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.participantLocked(code, participantID)
	if err != nil {
		return err
	}
	p.ConnID = connID
	return nil
}

// MarkDisconnected clears the connectivity flag. Points and identity survive.
func (s *Store) MarkDisconnected(code, participantID string) (model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.participantLocked(code, participantID)
	if err != nil {
		return model.Participant{}, err
	}
	p.Connected = false
	p.ConnID = ""
	return *p, nil
}

// StartQuestion opens q. The first question moves the session to active.
func (s *Store) StartQuestion(code string, q model.LiveQuestion) (model.OpenQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(code)
	if err != nil {
		return model.OpenQuestion{}, err
	}
	if sess.question != nil {
		return model.OpenQuestion{}, ErrQuestionAlreadyActive
	}

	sess.question = &openQuestion{
		question:  q,
		startedAt: s.now(),
		responded: make(map[string]struct{}),
	}
	sess.lastResponses = nil
	sess.status = model.SessionStatusActive
	return sess.question.view(), nil
}

// RecordResponse inserts a response keeping ascending elapsed order, ties
// after existing equal entries. It returns the response and its 1-based rank.
func (s *Store) RecordResponse(code, participantID string, elapsedMillis int64) (model.Response, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(code)
	if err != nil {
		return model.Response{}, 0, err
	}
	q := sess.question
	if q == nil {
		return model.Response{}, 0, ErrNoActiveQuestion
	}
	p, ok := sess.byID[participantID]
	if !ok {
		return model.Response{}, 0, ErrUnknownParticipant
	}
	if _, dup := q.responded[participantID]; dup {
		return model.Response{}, 0, ErrDuplicateResponse
	}

	resp := model.Response{
		ParticipantID: participantID,
		DisplayName:   p.DisplayName,
		ElapsedMillis: elapsedMillis,
		RespondedAt:   s.now(),
	}
	idx := sort.Search(len(q.responses), func(i int) bool {
		return q.responses[i].ElapsedMillis > elapsedMillis
	})
	q.responses = append(q.responses, model.Response{})
	copy(q.responses[idx+1:], q.responses[idx:])
	q.responses[idx] = resp
	q.responded[participantID] = struct{}{}

	return resp, idx + 1, nil
}

// Responses returns the ordered responses of the open question.
func (s *Store) Responses(code string) ([]model.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[code]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.question == nil {
		return nil, ErrNoActiveQuestion
	}
	return append([]model.Response(nil), sess.question.responses...), nil
}

// CloseQuestion empties the question slot and returns what was in it. With
// keepResponses the responses stay on the session for teacher review.
func (s *Store) CloseQuestion(code string, keepResponses bool) (model.OpenQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[code]
	if !ok {
		return model.OpenQuestion{}, ErrSessionNotFound
	}
	if sess.question == nil {
		return model.OpenQuestion{}, ErrNoActiveQuestion
	}

	closed := sess.question.view()
	sess.question = nil
	if keepResponses {
		sess.lastResponses = closed.Responses
	} else {
		sess.lastResponses = nil
	}
	return closed, nil
}

// OpenQuestion returns the question in flight, if any.
func (s *Store) OpenQuestion(code string) (model.OpenQuestion, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[code]
	if !ok {
		return model.OpenQuestion{}, false, ErrSessionNotFound
	}
	if sess.question == nil {
		return model.OpenQuestion{}, false, nil
	}
	return sess.question.view(), true, nil
}

// AwardPoints adds points to a participant's cumulative total. It never
// closes the question; that is a Relay policy.
func (s *Store) AwardPoints(code, participantID string, points int) (model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.participantLocked(code, participantID)
	if err != nil {
		return model.Participant{}, err
	}
	p.TotalPoints += points
	return *p, nil
}

// EndSession marks the session ended and returns the winner (nil without
// participants) and the final leaderboard.
func (s *Store) EndSession(code string) (*model.Participant, []model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[code]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	sess.status = model.SessionStatusEnded
	sess.question = nil

	board := leaderboard(sess)
	if len(board) == 0 {
		return nil, board, nil
	}
	winner := board[0]
	return &winner, board, nil
}

// Leaderboard ranks participants by points descending, join order on ties.
func (s *Store) Leaderboard(code string) ([]model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[code]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return leaderboard(sess), nil
}

// Participants lists participants in arrival order.
func (s *Store) Participants(code string) ([]model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[code]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copyParticipants(sess.participants), nil
}

// Participant returns a single participant.
func (s *Store) Participant(code, participantID string) (model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.participantLocked(code, participantID)
	if err != nil {
		return model.Participant{}, err
	}
	return *p, nil
}

// HasParticipant implements ParticipantIndex.
func (s *Store) HasParticipant(code, participantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[code]
	if !ok {
		return false
	}
	_, ok = sess.byID[participantID]
	return ok
}

// SetOwnerConnected tracks whether the owning teacher currently has a connection.
func (s *Store) SetOwnerConnected(code string, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[code]
	if !ok {
		return ErrSessionNotFound
	}
	sess.ownerConnected = connected
	return nil
}

// Snapshot returns a detached copy of a session.
func (s *Store) Snapshot(code string) (model.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[code]
	if !ok {
		return model.SessionSnapshot{}, ErrSessionNotFound
	}

	snap := model.SessionSnapshot{
		Code:           sess.code,
		ID:             sess.id,
		QuizID:         sess.quizID,
		TeacherID:      sess.teacherID,
		Status:         sess.status,
		OwnerConnected: sess.ownerConnected,
		CreatedAt:      sess.createdAt,
		LastResponses:  append([]model.Response(nil), sess.lastResponses...),
		Participants:   copyParticipants(sess.participants),
	}
	if sess.question != nil {
		q := sess.question.view()
		snap.Question = &q
	}
	return snap, nil
}

// SessionID returns the durable identifier behind a session code.
func (s *Store) SessionID(code string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[code]
	if !ok {
		return "", ErrSessionNotFound
	}
	return sess.id, nil
}

// Remove evicts a session. It reports whether the session existed.
func (s *Store) Remove(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[code]; !ok {
		return false
	}
	delete(s.sessions, code)
	return true
}

// Len reports the number of sessions held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Codes lists the codes of every held session, sorted.
func (s *Store) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.sessions))
	for code := range s.sessions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (s *Store) liveLocked(code string) (*session, error) {
	sess, ok := s.sessions[code]
	if !ok || sess.status == model.SessionStatusEnded {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Store) participantLocked(code, participantID string) (*model.Participant, error) {
	sess, ok := s.sessions[code]
	if !ok {
		return nil, ErrSessionNotFound
	}
	p, ok := sess.byID[participantID]
	if !ok {
		return nil, ErrUnknownParticipant
	}
	return p, nil
}

func (q *openQuestion) view() model.OpenQuestion {
	return model.OpenQuestion{
		Question:  q.question,
		StartedAt: q.startedAt,
		Responses: append([]model.Response{}, q.responses...),
	}
}

func leaderboard(sess *session) []model.Participant {
	board := copyParticipants(sess.participants)
	// participants are stored in join order, so a stable sort keeps it on ties
	sort.SliceStable(board, func(i, j int) bool {
		return board[i].TotalPoints > board[j].TotalPoints
	})
	return board
}

func copyParticipants(in []*model.Participant) []model.Participant {
	out := make([]model.Participant, len(in))
	for i, p := range in {
		out[i] = *p
	}
	return out
}
