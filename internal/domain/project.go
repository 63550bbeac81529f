package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrgConnection identifies one organisation endpoint taking part in a
// migration. Credentials live with the remote client, not here.
type OrgConnection struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	InstanceURL string    `json:"instance_url"`
	// Namespace is the managed package prefix used by this org's custom
	// fields (e.g. "tc9_pr"), empty when the org runs unmanaged.
	Namespace string    `json:"namespace"`
	CreatedAt time.Time `json:"created_at"`
}

// MigrationOptions tunes a single migration run. Zero values are replaced by
// engine defaults at execution time.
type MigrationOptions struct {
	BatchSize             int  `json:"batch_size"`
	BulkThreshold         int  `json:"bulk_threshold"`
	PreserveRelationships bool `json:"preserve_relationships"`
	AllowPartialSuccess   bool `json:"allow_partial_success"`
	MaxConcurrentBatches  int  `json:"max_concurrent_batches"`
}

// MigrationProject is the immutable per-run input: which orgs, which object
// types, and how to run. It is read-only once execution starts.
type MigrationProject struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	SourceOrg   OrgConnection    `json:"source_org"`
	TargetOrg   OrgConnection    `json:"target_org"`
	ObjectTypes []string         `json:"object_types"`
	Options     MigrationOptions `json:"options"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NewMigrationProject creates a project with a fresh id and a defensive copy
// of the object type list.
func NewMigrationProject(name string, source, target OrgConnection, objectTypes []string, options MigrationOptions) MigrationProject {
	types := make([]string, len(objectTypes))
	copy(types, objectTypes)
	return MigrationProject{
		ID:          uuid.New(),
		Name:        name,
		SourceOrg:   source,
		TargetOrg:   target,
		ObjectTypes: types,
		Options:     options,
		CreatedAt:   time.Now(),
	}
}
