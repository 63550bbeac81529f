package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a migration session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusRunning   SessionStatus = "RUNNING"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusFailed    SessionStatus = "FAILED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// IsTerminal reports whether the status permits no further transitions.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the session state machine:
// PENDING -> RUNNING -> {COMPLETED, FAILED, CANCELLED}. FAILED and CANCELLED
// are also reachable directly from PENDING.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case SessionStatusRunning:
		return s == SessionStatusPending
	case SessionStatusCompleted:
		return s == SessionStatusRunning
	case SessionStatusFailed, SessionStatusCancelled:
		return true
	}
	return false
}

// SessionError is one entry in a session's accumulated error log.
type SessionError struct {
	Timestamp time.Time `json:"timestamp"`
	RecordID  string    `json:"record_id,omitempty"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

// MigrationSession tracks the migration of one object type within a project
// run. Counters and the error log are owned by the session tracker; once the
// status reaches a terminal value the session is immutable.
type MigrationSession struct {
	ID                uuid.UUID      `json:"id"`
	ProjectID         uuid.UUID      `json:"project_id"`
	ObjectType        string         `json:"object_type"`
	Status            SessionStatus  `json:"status"`
	TotalRecords      int            `json:"total_records"`
	ProcessedRecords  int            `json:"processed_records"`
	SuccessfulRecords int            `json:"successful_records"`
	FailedRecords     int            `json:"failed_records"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	Errors            []SessionError `json:"errors,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// NewMigrationSession creates a pending session for one object type.
func NewMigrationSession(projectID uuid.UUID, objectType string) MigrationSession {
	now := time.Now()
	return MigrationSession{
		ID:         uuid.New(),
		ProjectID:  projectID,
		ObjectType: objectType,
		Status:     SessionStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Progress returns the completed fraction in [0, 1]. A session with no known
// total reports 0.
func (m MigrationSession) Progress() float64 {
	if m.TotalRecords == 0 {
		return 0
	}
	return float64(m.ProcessedRecords) / float64(m.TotalRecords)
}

// EstimatedRemaining extrapolates the remaining duration from the observed
// per-record rate. The second return is false until at least one record has
// been processed or when the session has not started.
func (m MigrationSession) EstimatedRemaining(now time.Time) (time.Duration, bool) {
	if m.ProcessedRecords == 0 || m.StartedAt == nil {
		return 0, false
	}
	elapsed := now.Sub(*m.StartedAt)
	perRecord := elapsed / time.Duration(m.ProcessedRecords)
	remaining := m.TotalRecords - m.ProcessedRecords
	if remaining < 0 {
		remaining = 0
	}
	return perRecord * time.Duration(remaining), true
}
