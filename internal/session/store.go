// Package session owns per-conversation state. Sessions are mutated only
// through named store operations so the timestamp invariant holds, and the
// store hands out a per-call-id lock capability so that concurrent turns for
// the same call are serialized.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fsalinas26/Guido/internal/logging"
	"github.com/fsalinas26/Guido/internal/models"
)

// Update is a partial session update applied by Store.Update. Nil fields
// are left untouched.
type Update struct {
	WorkerName        *string
	Station           *string
	CurrentDocumentID *string
	CurrentStep       *int
	Status            *models.SessionStatus
}

// Store is the session repository. All reads return deep copies; callers
// never hold references into live store state.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*models.ConversationState
	locks    map[string]*callLock
	clock    func() time.Time
	logger   *logging.Logger
}

type callLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore creates an empty session store using the wall clock.
func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock creates a session store with an injectable clock, used
// by tests to make timestamps deterministic.
func NewStoreWithClock(clock func() time.Time) *Store {
	return &Store{
		sessions: make(map[string]*models.ConversationState),
		locks:    make(map[string]*callLock),
		clock:    clock,
		logger:   logging.GetLogger("session"),
	}
}

// Create creates a new session for the call id. Fails with ErrSessionExists
// when a live session is already bound to the id.
func (s *Store) Create(callID, workerName, station string) (*models.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[callID]; ok {
		return nil, models.ErrSessionExists
	}
	sess := s.newSessionLocked(callID, workerName, station)
	s.sessions[callID] = sess
	s.logger.InfoWithFields("session created",
		logging.Field("call_id", callID),
		logging.Field("session_id", sess.SessionID),
	)
	return sess.Clone(), nil
}

// Get returns the session for the call id, or nil if absent.
func (s *Store) Get(callID string) *models.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[callID].Clone()
}

// GetOrCreate returns the live session for the call id, creating one with
// the given defaults if absent. This is the only implicitly-creating
// operation; it is idempotent with respect to session identity.
func (s *Store) GetOrCreate(callID, workerName, station string) *models.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[callID]; ok {
		return sess.Clone()
	}
	sess := s.newSessionLocked(callID, workerName, station)
	s.sessions[callID] = sess
	return sess.Clone()
}

// Update merges a partial update into the session and bumps the timestamp.
func (s *Store) Update(callID string, update Update) (*models.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[callID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if update.WorkerName != nil {
		sess.WorkerName = *update.WorkerName
	}
	if update.Station != nil {
		sess.Station = *update.Station
	}
	if update.CurrentDocumentID != nil {
		sess.CurrentDocumentID = *update.CurrentDocumentID
	}
	if update.CurrentStep != nil {
		step := *update.CurrentStep
		sess.CurrentStep = &step
	}
	if update.Status != nil {
		sess.Status = *update.Status
	}
	s.bumpLocked(sess)
	return sess.Clone(), nil
}

// AppendMessage appends a conversation message to the session.
func (s *Store) AppendMessage(callID string, role models.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[callID]
	if !ok {
		return models.ErrSessionNotFound
	}
	sess.ConversationHistory = append(sess.ConversationHistory, models.Message{
		Role:      role,
		Content:   content,
		Timestamp: s.clock(),
	})
	s.bumpLocked(sess)
	return nil
}

// AppendAction records an executed tool call on the session.
func (s *Store) AppendAction(callID, toolName string, parameters map[string]interface{}, result interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[callID]
	if !ok {
		return models.ErrSessionNotFound
	}
	params := make(map[string]interface{}, len(parameters))
	for k, v := range parameters {
		params[k] = v
	}
	sess.ActionsExecuted = append(sess.ActionsExecuted, models.ActionRecord{
		ToolName:   toolName,
		Parameters: params,
		Result:     result,
		Timestamp:  s.clock(),
	})
	s.bumpLocked(sess)
	return nil
}

// AppendDecision records a decision on the session's decision history.
func (s *Store) AppendDecision(callID string, step int, decision string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[callID]
	if !ok {
		return models.ErrSessionNotFound
	}
	sess.DecisionHistory = append(sess.DecisionHistory, models.DecisionRecord{
		Step:      step,
		Decision:  decision,
		Timestamp: s.clock(),
	})
	s.bumpLocked(sess)
	return nil
}

// MergeMeasurements merges collected measurements into the session.
func (s *Store) MergeMeasurements(callID string, measurements map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[callID]
	if !ok {
		return models.ErrSessionNotFound
	}
	for k, v := range measurements {
		sess.Measurements[k] = v
	}
	s.bumpLocked(sess)
	return nil
}

// Delete removes the session for the call id. Deleting an absent session is
// a no-op.
func (s *Store) Delete(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[callID]; ok {
		delete(s.sessions, callID)
		s.logger.Info("session deleted for call %s", callID)
	}
}

// ListAll returns copies of all live sessions.
func (s *Store) ListAll() []*models.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.ConversationState, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// LockCall acquires the per-call-id turn lock and returns its release
// function. One turn's deltas are fully committed before the next turn for
// the same call id begins; turns for different call ids do not contend.
func (s *Store) LockCall(callID string) func() {
	s.mu.Lock()
	l, ok := s.locks[callID]
	if !ok {
		l = &callLock{}
		s.locks[callID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, callID)
		}
		s.mu.Unlock()
	}
}

// ReapIdle deletes sessions whose last update is older than ttl and returns
// the ids removed.
func (s *Store) ReapIdle(ttl time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock().Add(-ttl)
	var reaped []string
	for callID, sess := range s.sessions {
		if sess.TimestampLastUpdate.Before(cutoff) {
			delete(s.sessions, callID)
			reaped = append(reaped, callID)
		}
	}
	return reaped
}

func (s *Store) newSessionLocked(callID, workerName, station string) *models.ConversationState {
	now := s.clock()
	return &models.ConversationState{
		SessionID:           uuid.NewString(),
		WorkerName:          workerName,
		Station:             station,
		Measurements:        make(map[string]string),
		Status:              models.StatusActive,
		CallID:              callID,
		TimestampStart:      now,
		TimestampLastUpdate: now,
	}
}

// bumpLocked advances the last-update timestamp, keeping it monotonically
// non-decreasing even if the clock steps backwards.
func (s *Store) bumpLocked(sess *models.ConversationState) {
	now := s.clock()
	if now.After(sess.TimestampLastUpdate) {
		sess.TimestampLastUpdate = now
	}
}
