package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/crossorg/migrator/internal/db"
	"github.com/crossorg/migrator/internal/domain"
)

type sessionRepository struct {
	conn *db.Connection
}

// NewSessionRepository creates a pgx-backed session repository.
func NewSessionRepository(conn *db.Connection) SessionRepository {
	return &sessionRepository{conn: conn}
}

func (r *sessionRepository) Create(ctx context.Context, session domain.MigrationSession) error {
	_, err := r.conn.Pool.Exec(ctx, `
		INSERT INTO migration_sessions
			(id, project_id, object_type, status, total_records, processed_records,
			 successful_records, failed_records, started_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		session.ID, session.ProjectID, session.ObjectType, session.Status,
		session.TotalRecords, session.ProcessedRecords, session.SuccessfulRecords,
		session.FailedRecords, session.StartedAt, session.CompletedAt,
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration session: %w", err)
	}
	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.MigrationSession, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT id, project_id, object_type, status, total_records, processed_records,
		       successful_records, failed_records, started_at, completed_at, created_at, updated_at
		FROM migration_sessions WHERE id = $1`, id)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MigrationSession{}, domain.ErrSessionNotFound
		}
		return domain.MigrationSession{}, fmt.Errorf("failed to get migration session: %w", err)
	}

	session.Errors, err = r.listErrors(ctx, id)
	if err != nil {
		return domain.MigrationSession{}, err
	}
	return session, nil
}

func (r *sessionRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.MigrationSession, error) {
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT id, project_id, object_type, status, total_records, processed_records,
		       successful_records, failed_records, started_at, completed_at, created_at, updated_at
		FROM migration_sessions WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.MigrationSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *sessionRepository) UpdateStatus(ctx context.Context, session domain.MigrationSession) error {
	tag, err := r.conn.Pool.Exec(ctx, `
		UPDATE migration_sessions
		SET status = $2, started_at = $3, completed_at = $4, updated_at = now()
		WHERE id = $1`,
		session.ID, session.Status, session.StartedAt, session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *sessionRepository) SetTotal(ctx context.Context, sessionID uuid.UUID, total int) error {
	_, err := r.conn.Pool.Exec(ctx, `
		UPDATE migration_sessions SET total_records = $2, updated_at = now() WHERE id = $1`,
		sessionID, total,
	)
	if err != nil {
		return fmt.Errorf("failed to set session total: %w", err)
	}
	return nil
}

// AppendRecord writes the record and bumps the session counters inside one
// transaction so processed always equals successful+failed and matches the
// record log length.
func (r *sessionRepository) AppendRecord(ctx context.Context, record domain.MigrationRecord) error {
	sourceJSON, err := json.Marshal(record.SourceData)
	if err != nil {
		return fmt.Errorf("marshal source data: %w", err)
	}

	successDelta := 0
	failureDelta := 0
	if record.Status == domain.RecordStatusSuccess {
		successDelta = 1
	} else {
		failureDelta = 1
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO migration_records
				(id, session_id, source_record_id, target_record_id, status, error_message, already_existed, source_data, created_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8, $9)`,
			record.ID, record.SessionID, record.SourceRecordID, record.TargetRecordID,
			record.Status, record.ErrorMessage, record.AlreadyExisted, sourceJSON, record.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert migration record: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE migration_sessions
			SET processed_records = processed_records + 1,
			    successful_records = successful_records + $2,
			    failed_records = failed_records + $3,
			    updated_at = now()
			WHERE id = $1`,
			record.SessionID, successDelta, failureDelta,
		)
		if err != nil {
			return fmt.Errorf("failed to increment session counters: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrSessionNotFound
		}
		return nil
	})
}

func (r *sessionRepository) AppendError(ctx context.Context, sessionID uuid.UUID, entry domain.SessionError) error {
	_, err := r.conn.Pool.Exec(ctx, `
		INSERT INTO session_errors (session_id, occurred_at, record_id, message, details)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''))`,
		sessionID, entry.Timestamp, entry.RecordID, entry.Message, entry.Details,
	)
	if err != nil {
		return fmt.Errorf("failed to append session error: %w", err)
	}
	return nil
}

func (r *sessionRepository) ListRecords(ctx context.Context, sessionID uuid.UUID) ([]domain.MigrationRecord, error) {
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT id, session_id, source_record_id, COALESCE(target_record_id, ''),
		       status, COALESCE(error_message, ''), already_existed, source_data, created_at
		FROM migration_records WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration records: %w", err)
	}
	defer rows.Close()

	var records []domain.MigrationRecord
	for rows.Next() {
		var (
			record     domain.MigrationRecord
			sourceJSON []byte
		)
		err := rows.Scan(&record.ID, &record.SessionID, &record.SourceRecordID,
			&record.TargetRecordID, &record.Status, &record.ErrorMessage,
			&record.AlreadyExisted, &sourceJSON, &record.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration record: %w", err)
		}
		if len(sourceJSON) > 0 {
			if err := json.Unmarshal(sourceJSON, &record.SourceData); err != nil {
				return nil, fmt.Errorf("unmarshal source data: %w", err)
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *sessionRepository) listErrors(ctx context.Context, sessionID uuid.UUID) ([]domain.SessionError, error) {
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT occurred_at, COALESCE(record_id, ''), message, COALESCE(details, '')
		FROM session_errors WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session errors: %w", err)
	}
	defer rows.Close()

	var entries []domain.SessionError
	for rows.Next() {
		var entry domain.SessionError
		if err := rows.Scan(&entry.Timestamp, &entry.RecordID, &entry.Message, &entry.Details); err != nil {
			return nil, fmt.Errorf("failed to scan session error: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanSession(row pgx.Row) (domain.MigrationSession, error) {
	var session domain.MigrationSession
	err := row.Scan(&session.ID, &session.ProjectID, &session.ObjectType, &session.Status,
		&session.TotalRecords, &session.ProcessedRecords, &session.SuccessfulRecords,
		&session.FailedRecords, &session.StartedAt, &session.CompletedAt,
		&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return domain.MigrationSession{}, err
	}
	return session, nil
}
