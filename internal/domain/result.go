package domain

import (
	"time"

	"github.com/google/uuid"
)

// LoadError describes one failed write during a load.
type LoadError struct {
	BatchIndex int      `json:"batch_index"`
	RecordID   string   `json:"record_id,omitempty"`
	Message    string   `json:"message"`
	Code       string   `json:"code,omitempty"`
	Fields     []string `json:"fields,omitempty"`
}

// LoadResult aggregates the outcome of loading one record set.
type LoadResult struct {
	SuccessCount int         `json:"success_count"`
	ErrorCount   int         `json:"error_count"`
	Errors       []LoadError `json:"errors,omitempty"`
	// IDMapping maps source record ids to the target ids created or
	// matched for them.
	IDMapping map[string]string `json:"id_mapping"`
	// Created maps source record ids to whether the write inserted a new
	// target record; false means an upsert matched an existing one.
	Created map[string]bool `json:"created,omitempty"`
}

// MigrationResult is the structured outcome the engine always returns to its
// caller, success or not. SessionIDs are in execution (dependency) order.
type MigrationResult struct {
	ProjectID         uuid.UUID      `json:"project_id"`
	SessionIDs        []uuid.UUID    `json:"session_ids"`
	Success           bool           `json:"success"`
	TotalRecords      int            `json:"total_records"`
	SuccessfulRecords int            `json:"successful_records"`
	FailedRecords     int            `json:"failed_records"`
	Duration          time.Duration  `json:"duration"`
	Errors            []SessionError `json:"errors,omitempty"`
}
