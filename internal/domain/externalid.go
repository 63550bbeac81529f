package domain

// IdentityStrategy says how the external-id field pair was chosen.
type IdentityStrategy string

const (
	// IdentityStrategyAuto means the resolver probed for candidate fields.
	IdentityStrategyAuto IdentityStrategy = "auto-detect"
	// IdentityStrategyManual means the template pinned the fields.
	IdentityStrategyManual IdentityStrategy = "manual"
	// IdentityStrategyCrossEnvironment marks runs where source and target
	// resolved to different identity fields, so queries must use the
	// source-side name and writes the target-side name.
	IdentityStrategyCrossEnvironment IdentityStrategy = "cross-environment"
)

// ExternalIdConfig records, for one object type, which field acts as the
// durable cross-environment natural key on each side. When a source record
// carries no business identity value, its own record id is written into the
// target's identity field so repeated runs upsert instead of duplicating.
type ExternalIdConfig struct {
	ObjectType     string           `json:"object_type"`
	SourceField    string           `json:"source_field"`
	TargetField    string           `json:"target_field"`
	ManagedField   string           `json:"managed_field"`
	UnmanagedField string           `json:"unmanaged_field"`
	FallbackField  string           `json:"fallback_field"`
	Strategy       IdentityStrategy `json:"strategy"`
}
