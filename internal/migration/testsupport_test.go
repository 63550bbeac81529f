package migration

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/crossorg/migrator/internal/domain"
	"github.com/crossorg/migrator/internal/remote"
)

// fakeClient implements remote.Client with per-call hooks. Unset hooks return
// zero values. Every query string is recorded for assertions.
type fakeClient struct {
	queryFn    func(ctx context.Context, soql string) (remote.QueryResult, error)
	describeFn func(ctx context.Context, objectType string) (domain.ObjectSchema, error)
	createFn   func(ctx context.Context, objectType string, record map[string]any) (remote.SaveResult, error)
	upsertFn   func(ctx context.Context, objectType string, record map[string]any, externalIDField string) (remote.SaveResult, error)
	bulkFn     func(ctx context.Context, objectType string, records []map[string]any) ([]remote.SaveResult, error)

	mu      sync.Mutex
	queries []string
}

func (c *fakeClient) recordQuery(soql string) {
	c.mu.Lock()
	c.queries = append(c.queries, soql)
	c.mu.Unlock()
}

func (c *fakeClient) queryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

func (c *fakeClient) Query(ctx context.Context, soql string) (remote.QueryResult, error) {
	c.recordQuery(soql)
	if c.queryFn == nil {
		return remote.QueryResult{}, nil
	}
	return c.queryFn(ctx, soql)
}

func (c *fakeClient) Describe(ctx context.Context, objectType string) (domain.ObjectSchema, error) {
	if c.describeFn == nil {
		return domain.ObjectSchema{ObjectType: objectType}, nil
	}
	return c.describeFn(ctx, objectType)
}

func (c *fakeClient) Create(ctx context.Context, objectType string, record map[string]any) (remote.SaveResult, error) {
	if c.createFn == nil {
		return remote.SaveResult{ID: uuid.NewString(), Success: true, Created: true}, nil
	}
	return c.createFn(ctx, objectType, record)
}

func (c *fakeClient) Upsert(ctx context.Context, objectType string, record map[string]any, externalIDField string) (remote.SaveResult, error) {
	if c.upsertFn == nil {
		return remote.SaveResult{ID: uuid.NewString(), Success: true}, nil
	}
	return c.upsertFn(ctx, objectType, record, externalIDField)
}

func (c *fakeClient) BulkInsert(ctx context.Context, objectType string, records []map[string]any) ([]remote.SaveResult, error) {
	if c.bulkFn == nil {
		results := make([]remote.SaveResult, len(records))
		for i := range records {
			results[i] = remote.SaveResult{ID: uuid.NewString(), Success: true, Created: true}
		}
		return results, nil
	}
	return c.bulkFn(ctx, objectType, records)
}

// memorySessionRepo is an in-memory repository.SessionRepository.
type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.MigrationSession
	records  map[uuid.UUID][]domain.MigrationRecord
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{
		sessions: make(map[uuid.UUID]*domain.MigrationSession),
		records:  make(map[uuid.UUID][]domain.MigrationRecord),
	}
}

func (r *memorySessionRepo) Create(ctx context.Context, session domain.MigrationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *memorySessionRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.MigrationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return domain.MigrationSession{}, domain.ErrSessionNotFound
	}
	return *session, nil
}

func (r *memorySessionRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.MigrationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sessions []domain.MigrationSession
	for _, session := range r.sessions {
		if session.ProjectID == projectID {
			sessions = append(sessions, *session)
		}
	}
	return sessions, nil
}

func (r *memorySessionRepo) UpdateStatus(ctx context.Context, session domain.MigrationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	stored.Status = session.Status
	stored.StartedAt = session.StartedAt
	stored.CompletedAt = session.CompletedAt
	stored.UpdatedAt = session.UpdatedAt
	return nil
}

func (r *memorySessionRepo) SetTotal(ctx context.Context, sessionID uuid.UUID, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	stored.TotalRecords = total
	return nil
}

func (r *memorySessionRepo) AppendRecord(ctx context.Context, record domain.MigrationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[record.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	r.records[record.SessionID] = append(r.records[record.SessionID], record)
	stored.ProcessedRecords++
	if record.Status == domain.RecordStatusSuccess {
		stored.SuccessfulRecords++
	} else {
		stored.FailedRecords++
	}
	return nil
}

func (r *memorySessionRepo) AppendError(ctx context.Context, sessionID uuid.UUID, entry domain.SessionError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	stored.Errors = append(stored.Errors, entry)
	return nil
}

func (r *memorySessionRepo) ListRecords(ctx context.Context, sessionID uuid.UUID) ([]domain.MigrationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.MigrationRecord(nil), r.records[sessionID]...), nil
}

func (r *memorySessionRepo) statusOf(id uuid.UUID) domain.SessionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		return session.Status
	}
	return ""
}

// textField builds a writable string field description.
func textField(name string) domain.FieldDescription {
	return domain.FieldDescription{
		Name:       name,
		Type:       domain.FieldTypeString,
		Createable: true,
		Updateable: true,
	}
}

// refField builds a writable reference field description.
func refField(name, referenceTo string) domain.FieldDescription {
	return domain.FieldDescription{
		Name:        name,
		Type:        domain.FieldTypeReference,
		Createable:  true,
		Updateable:  true,
		ReferenceTo: []string{referenceTo},
	}
}

func fakeRecords(prefix string, n int) []map[string]any {
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{
			"Id":   fmt.Sprintf("%s%03d", prefix, i),
			"Name": fmt.Sprintf("Record %d", i),
		}
	}
	return records
}
