package assistant

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joelkehle/patent-assistant/internal/patentqa"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the conversation state the front end owns. The question
// pipeline never reads Turns; they exist for display only.
type Session struct {
	ID        string                      `json:"id"`
	Model     string                      `json:"model"`
	IndexID   string                      `json:"index_id"`
	Turns     []patentqa.ConversationTurn `json:"turns"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

func (s *Session) clone() Session {
	out := *s
	out.Turns = append([]patentqa.ConversationTurn(nil), s.Turns...)
	return out
}

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (s *SessionStore) Create(model, indexID string) Session {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		Model:     model,
		IndexID:   indexID,
		Turns:     []patentqa.ConversationTurn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess.clone()
}

func (s *SessionStore) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess.clone(), nil
}

// Configure applies a model and/or index selection. Switching to a different
// model starts the conversation over.
func (s *SessionStore) Configure(id, model, indexID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if model != "" && model != sess.Model {
		sess.Model = model
		sess.Turns = []patentqa.ConversationTurn{}
	}
	if indexID != "" {
		sess.IndexID = indexID
	}
	sess.UpdatedAt = s.now()
	return sess.clone(), nil
}

func (s *SessionStore) Append(id string, turns ...patentqa.ConversationTurn) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	sess.Turns = append(sess.Turns, turns...)
	sess.UpdatedAt = s.now()
	return sess.clone(), nil
}

func (s *SessionStore) Reset(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	sess.Turns = []patentqa.ConversationTurn{}
	sess.UpdatedAt = s.now()
	return sess.clone(), nil
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Snapshot copies every session for persistence.
func (s *SessionStore) Snapshot() map[string]*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Session, len(s.sessions))
	for id, sess := range s.sessions {
		c := sess.clone()
		out[id] = &c
	}
	return out
}

func (s *SessionStore) Restore(sessions map[string]*Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range sessions {
		if sess == nil || id == "" {
			continue
		}
		c := sess.clone()
		c.ID = id
		if c.Turns == nil {
			c.Turns = []patentqa.ConversationTurn{}
		}
		s.sessions[id] = &c
	}
}
