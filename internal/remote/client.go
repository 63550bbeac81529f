// Package remote defines the contract the migration engine has with the data
// API of an organisation. Auth, session refresh, and connection pooling are
// the concrete client's concern; the engine only sees these calls.
package remote

import (
	"context"

	"github.com/crossorg/migrator/internal/domain"
)

// QueryResult is the response to a structured query.
type QueryResult struct {
	Records   []map[string]any
	TotalSize int
}

// SaveResult is the per-record response to a write.
type SaveResult struct {
	ID      string
	Success bool
	// Created distinguishes a fresh insert from an upsert that matched an
	// existing record.
	Created bool
	Message string
	Code    string
	Fields  []string
}

// Client is the remote data API for one organisation.
type Client interface {
	// Query runs a SOQL-shaped query and returns matching records.
	Query(ctx context.Context, soql string) (QueryResult, error)
	// Describe returns field metadata for an object type.
	Describe(ctx context.Context, objectType string) (domain.ObjectSchema, error)
	// Create inserts one record.
	Create(ctx context.Context, objectType string, record map[string]any) (SaveResult, error)
	// Upsert writes one record keyed by the given external-id field.
	Upsert(ctx context.Context, objectType string, record map[string]any, externalIDField string) (SaveResult, error)
	// BulkInsert writes many records in one call, returning one result per
	// input record in order.
	BulkInsert(ctx context.Context, objectType string, records []map[string]any) ([]SaveResult, error)
}
