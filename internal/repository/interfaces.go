package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/crossorg/migrator/internal/domain"
)

// ProjectRepository persists migration projects.
type ProjectRepository interface {
	Create(ctx context.Context, project domain.MigrationProject) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.MigrationProject, error)
	List(ctx context.Context) ([]domain.MigrationProject, error)
}

// SessionRepository persists sessions, their append-only record log, and
// their error log. AppendRecord is the one atomic unit that keeps session
// counters in step with the record log.
type SessionRepository interface {
	Create(ctx context.Context, session domain.MigrationSession) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.MigrationSession, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.MigrationSession, error)
	// UpdateStatus persists a status transition along with the started-at /
	// completed-at timestamps that accompany it.
	UpdateStatus(ctx context.Context, session domain.MigrationSession) error
	// SetTotal records the expected record count before batch iteration.
	SetTotal(ctx context.Context, sessionID uuid.UUID, total int) error
	// AppendRecord inserts the record and increments the session's
	// processed plus success-or-failure counters in a single transaction.
	AppendRecord(ctx context.Context, record domain.MigrationRecord) error
	// AppendError adds one entry to the session's error log.
	AppendError(ctx context.Context, sessionID uuid.UUID, entry domain.SessionError) error
	ListRecords(ctx context.Context, sessionID uuid.UUID) ([]domain.MigrationRecord, error)
}
