package domain

import "time"

// LoadOperation selects the write verb for a template's load step.
type LoadOperation string

const (
	LoadOperationInsert LoadOperation = "insert"
	LoadOperationUpsert LoadOperation = "upsert"
)

// HookPoint is a fixed lifecycle point at which a template may name an extra
// step. Hooks are data dispatched by the engine, never injected callbacks.
type HookPoint string

const (
	HookBeforeExtract HookPoint = "before-extract"
	HookAfterExtract  HookPoint = "after-extract"
	HookBeforeLoad    HookPoint = "before-load"
	HookAfterLoad     HookPoint = "after-load"
)

// CheckKind classifies a validation rule.
type CheckKind string

const (
	// CheckDependency asserts a referenced record exists in the target,
	// identified by its external id.
	CheckDependency CheckKind = "dependency"
	// CheckDataIntegrity is a query-shaped assertion expected to return an
	// empty result set.
	CheckDataIntegrity CheckKind = "data-integrity"
	// CheckPicklist asserts source values appear in the target picklist.
	CheckPicklist CheckKind = "picklist"
)

// Severity separates blocking errors from advisory warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationRule is one declarative check in a template's rule set.
type ValidationRule struct {
	Name     string    `json:"name"`
	Kind     CheckKind `json:"kind"`
	Severity Severity  `json:"severity"`
	// Field scopes dependency and picklist checks to one field.
	Field string `json:"field,omitempty"`
	// ReferenceObject names the target object a dependency check resolves
	// against.
	ReferenceObject string `json:"reference_object,omitempty"`
	// Query holds the assertion for data-integrity checks.
	Query string `json:"query,omitempty"`
}

// QueryShape describes the extraction query for a template without embedding
// a literal query string.
type QueryShape struct {
	Fields  []string `json:"fields,omitempty"`
	Where   string   `json:"where,omitempty"`
	OrderBy string   `json:"order_by,omitempty"`
}

// RetryPolicy bounds retries for transient remote failures. Only errors whose
// code appears in RetryableCodes are retried.
type RetryPolicy struct {
	MaxRetries     int           `json:"max_retries"`
	Wait           time.Duration `json:"wait"`
	RetryableCodes []string      `json:"retryable_codes"`
}

// ShouldRetry reports whether the given remote error code is retryable.
func (p RetryPolicy) ShouldRetry(code string) bool {
	for _, c := range p.RetryableCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Template is the declarative ETL configuration for one object type: what to
// extract, how to map it, how to load it, and which checks to run. Templates
// are plain data consumed by the engine; authoring them is out of scope.
type Template struct {
	ObjectType string     `json:"object_type"`
	Query      QueryShape `json:"query"`
	// FieldOverrides pins mappings the generator must not change, keyed by
	// source field name.
	FieldOverrides map[string]FieldMapping `json:"field_overrides,omitempty"`
	// LookupOverrides pins source reference field -> target reference field.
	LookupOverrides map[string]string `json:"lookup_overrides,omitempty"`
	Operation       LoadOperation     `json:"operation"`
	ExternalID      *ExternalIdConfig `json:"external_id,omitempty"`
	Retry           RetryPolicy       `json:"retry"`
	Rules           []ValidationRule  `json:"rules,omitempty"`
	// Hooks maps lifecycle points to named steps the engine dispatches.
	Hooks map[HookPoint]string `json:"hooks,omitempty"`
}
