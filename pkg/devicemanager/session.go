package devicemanager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/neurascale/neural-engine/pkg/ingestion"
)

// SessionStatus is the recording session's lifecycle state, serialized
// onto the wire as pkg/api.SessionResponse.Status.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusAborted   SessionStatus = "aborted"
)

// Session is the manager's notion of a single recording session: a
// logical grouping of one or more device streams sharing a lifetime.
type Session struct {
	ID        string
	Metadata  map[string]string
	Status    SessionStatus
	StartedAt int64
	EndedAt   int64
}

// StartSession opens a new session; if one is already active it returns
// the active session's id without opening a new one (spec.md §4.4: "a
// current session, or none").
func (m *Manager) StartSession(ctx context.Context, metadata map[string]string) (string, error) {
	m.mu.Lock()
	if m.session != nil && m.session.Status == SessionStatusActive {
		sessionID := m.session.ID
		m.mu.Unlock()
		m.recordAction(ctx, "start_session", sessionID, true)
		return sessionID, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("devicemanager: generate session id: %w", err)
	}
	m.session = &Session{
		ID:        id.String(),
		Metadata:  m.anonymizeSessionMetadata(metadata),
		Status:    SessionStatusActive,
		StartedAt: time.Now().UnixNano(),
	}
	sessionID := m.session.ID
	m.mu.Unlock()

	m.recordAction(ctx, "start_session", sessionID, false)
	return sessionID, nil
}

// EndSession closes the active session, if any. Ending when no session
// is active, or ending a session other than the active one, succeeds
// without effect (idempotent w.r.t. the end state).
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	if m.session == nil || m.session.ID != sessionID || m.session.Status != SessionStatusActive {
		m.mu.Unlock()
		m.recordAction(ctx, "end_session", sessionID, true)
		return nil
	}
	m.session.Status = SessionStatusCompleted
	m.session.EndedAt = time.Now().UnixNano()
	m.mu.Unlock()

	m.recordAction(ctx, "end_session", sessionID, false)
	return nil
}

// anonymizeSessionMetadata strips PII fields from metadata and, if a
// user_id field was present, replaces it with its anonymized form
// (spec.md §4.5 step 2, applied here at session creation since
// Session.Metadata is the only place user_id-bearing data persists in
// the device manager).
func (m *Manager) anonymizeSessionMetadata(metadata map[string]string) map[string]string {
	userID, hadUserID := metadata["user_id"]
	clean := ingestion.StripPII(metadata)
	if hadUserID {
		clean["user_id_anon"] = ingestion.AnonymizeUserID(userID, m.processSalt)
	}
	return clean
}

// CurrentSession returns the manager's active session, if any.
func (m *Manager) CurrentSession() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}
