package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the terminal outcome of migrating one source record.
type RecordStatus string

const (
	RecordStatusSuccess RecordStatus = "SUCCESS"
	RecordStatusFailed  RecordStatus = "FAILED"
)

// MigrationRecord captures the outcome for a single source record. Records
// are append-only: one is written per outcome and never mutated afterwards.
// SourceData keeps a snapshot of the extracted record for audit and retry.
type MigrationRecord struct {
	ID             uuid.UUID      `json:"id"`
	SessionID      uuid.UUID      `json:"session_id"`
	SourceRecordID string         `json:"source_record_id"`
	TargetRecordID string         `json:"target_record_id,omitempty"`
	Status         RecordStatus   `json:"status"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	// AlreadyExisted marks a success whose upsert matched an existing
	// target record instead of inserting a new one.
	AlreadyExisted bool           `json:"already_existed,omitempty"`
	SourceData     map[string]any `json:"source_data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewSuccessRecord builds a SUCCESS outcome linking source and target ids.
// alreadyExisted distinguishes an upsert that matched an existing target
// record from a fresh insert.
func NewSuccessRecord(sessionID uuid.UUID, sourceID, targetID string, alreadyExisted bool, sourceData map[string]any) MigrationRecord {
	return MigrationRecord{
		ID:             uuid.New(),
		SessionID:      sessionID,
		SourceRecordID: sourceID,
		TargetRecordID: targetID,
		Status:         RecordStatusSuccess,
		AlreadyExisted: alreadyExisted,
		SourceData:     sourceData,
		CreatedAt:      time.Now(),
	}
}

// NewFailureRecord builds a FAILED outcome carrying the error message.
func NewFailureRecord(sessionID uuid.UUID, sourceID, message string, sourceData map[string]any) MigrationRecord {
	return MigrationRecord{
		ID:             uuid.New(),
		SessionID:      sessionID,
		SourceRecordID: sourceID,
		Status:         RecordStatusFailed,
		ErrorMessage:   message,
		SourceData:     sourceData,
		CreatedAt:      time.Now(),
	}
}
