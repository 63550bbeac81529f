package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crossorg/migrator/internal/domain"
	"github.com/crossorg/migrator/internal/repository"
)

// EventKind classifies tracker lifecycle events.
type EventKind string

const (
	EventSessionCreated   EventKind = "session-created"
	EventSessionStarted   EventKind = "session-started"
	EventSessionCompleted EventKind = "session-completed"
	EventSessionFailed    EventKind = "session-failed"
	EventSessionCancelled EventKind = "session-cancelled"
	EventRecordProcessed  EventKind = "record-processed"
)

// Event is emitted on every session lifecycle change and record outcome.
type Event struct {
	Kind    EventKind
	Session domain.MigrationSession
}

// Listener receives tracker events. It must not block.
type Listener func(Event)

// Tracker owns the migration session state machine. All session mutation
// flows through it: status transitions are checked against the state machine,
// and every record outcome appends a MigrationRecord and bumps the session
// counters through the repository's single atomic operation.
type Tracker struct {
	repo     repository.SessionRepository
	listener Listener

	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.MigrationSession
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithListener registers an event listener.
func WithListener(l Listener) TrackerOption {
	return func(t *Tracker) { t.listener = l }
}

// NewTracker creates a tracker over the given session store.
func NewTracker(repo repository.SessionRepository, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		repo:     repo,
		sessions: make(map[uuid.UUID]*domain.MigrationSession),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) emit(kind EventKind, session domain.MigrationSession) {
	if t.listener != nil {
		t.listener(Event{Kind: kind, Session: session})
	}
}

// CreateSession creates and persists a PENDING session for one object type.
func (t *Tracker) CreateSession(ctx context.Context, projectID uuid.UUID, objectType string) (domain.MigrationSession, error) {
	session := domain.NewMigrationSession(projectID, objectType)
	if err := t.repo.Create(ctx, session); err != nil {
		return domain.MigrationSession{}, fmt.Errorf("create session for %s: %w", objectType, err)
	}

	t.mu.Lock()
	t.sessions[session.ID] = &session
	t.mu.Unlock()

	t.emit(EventSessionCreated, session)
	return session, nil
}

// transition applies a status change after checking the state machine.
func (t *Tracker) transition(ctx context.Context, sessionID uuid.UUID, next domain.SessionStatus, kind EventKind) error {
	t.mu.Lock()
	session, ok := t.sessions[sessionID]
	if !ok {
		t.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	if !session.Status.CanTransitionTo(next) {
		err := &domain.InvalidStateTransitionError{From: session.Status, To: next}
		t.mu.Unlock()
		return err
	}

	now := time.Now()
	session.Status = next
	session.UpdatedAt = now
	switch next {
	case domain.SessionStatusRunning:
		session.StartedAt = &now
	case domain.SessionStatusCompleted, domain.SessionStatusFailed, domain.SessionStatusCancelled:
		session.CompletedAt = &now
	}
	snapshot := *session
	t.mu.Unlock()

	if err := t.repo.UpdateStatus(ctx, snapshot); err != nil {
		return fmt.Errorf("persist session %s status: %w", sessionID, err)
	}
	t.emit(kind, snapshot)
	return nil
}

// StartSession moves a PENDING session to RUNNING.
func (t *Tracker) StartSession(ctx context.Context, sessionID uuid.UUID) error {
	return t.transition(ctx, sessionID, domain.SessionStatusRunning, EventSessionStarted)
}

// CompleteSession moves a RUNNING session to COMPLETED.
func (t *Tracker) CompleteSession(ctx context.Context, sessionID uuid.UUID) error {
	return t.transition(ctx, sessionID, domain.SessionStatusCompleted, EventSessionCompleted)
}

// FailSession moves any non-terminal session to FAILED.
func (t *Tracker) FailSession(ctx context.Context, sessionID uuid.UUID) error {
	return t.transition(ctx, sessionID, domain.SessionStatusFailed, EventSessionFailed)
}

// CancelSession moves any non-terminal session to CANCELLED.
func (t *Tracker) CancelSession(ctx context.Context, sessionID uuid.UUID) error {
	return t.transition(ctx, sessionID, domain.SessionStatusCancelled, EventSessionCancelled)
}

// SetTotal records the expected record count for progress computation.
func (t *Tracker) SetTotal(ctx context.Context, sessionID uuid.UUID, total int) error {
	t.mu.Lock()
	session, ok := t.sessions[sessionID]
	if ok {
		session.TotalRecords = total
	}
	t.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := t.repo.SetTotal(ctx, sessionID, total); err != nil {
		return fmt.Errorf("persist session %s total: %w", sessionID, err)
	}
	return nil
}

// RecordSuccess appends a SUCCESS record and increments the processed and
// successful counters as one atomic unit. alreadyExisted records that the
// upsert matched an existing target record rather than inserting one.
func (t *Tracker) RecordSuccess(ctx context.Context, sessionID uuid.UUID, sourceID, targetID string, alreadyExisted bool, sourceData map[string]any) error {
	record := domain.NewSuccessRecord(sessionID, sourceID, targetID, alreadyExisted, sourceData)
	return t.appendRecord(ctx, record)
}

// RecordFailure appends a FAILED record and increments the processed and
// failed counters as one atomic unit.
func (t *Tracker) RecordFailure(ctx context.Context, sessionID uuid.UUID, sourceID, message string, sourceData map[string]any) error {
	record := domain.NewFailureRecord(sessionID, sourceID, message, sourceData)
	return t.appendRecord(ctx, record)
}

func (t *Tracker) appendRecord(ctx context.Context, record domain.MigrationRecord) error {
	if err := t.repo.AppendRecord(ctx, record); err != nil {
		return fmt.Errorf("append record %s: %w", record.SourceRecordID, err)
	}

	t.mu.Lock()
	session, ok := t.sessions[record.SessionID]
	var snapshot domain.MigrationSession
	if ok {
		session.ProcessedRecords++
		if record.Status == domain.RecordStatusSuccess {
			session.SuccessfulRecords++
		} else {
			session.FailedRecords++
		}
		session.UpdatedAt = time.Now()
		snapshot = *session
	}
	t.mu.Unlock()

	if ok {
		t.emit(EventRecordProcessed, snapshot)
	}
	return nil
}

// AddError appends one entry to the session's error log without changing its
// state.
func (t *Tracker) AddError(ctx context.Context, sessionID uuid.UUID, recordID, message, details string) error {
	entry := domain.SessionError{
		Timestamp: time.Now(),
		RecordID:  recordID,
		Message:   message,
		Details:   details,
	}

	t.mu.Lock()
	if session, ok := t.sessions[sessionID]; ok {
		session.Errors = append(session.Errors, entry)
	}
	t.mu.Unlock()

	if err := t.repo.AppendError(ctx, sessionID, entry); err != nil {
		return fmt.Errorf("append error to session %s: %w", sessionID, err)
	}
	return nil
}

// Session returns the tracker's live view of a session.
func (t *Tracker) Session(sessionID uuid.UUID) (domain.MigrationSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[sessionID]
	if !ok {
		return domain.MigrationSession{}, false
	}
	return *session, true
}
