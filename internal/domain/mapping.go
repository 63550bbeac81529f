package domain

// TransformationKind says how a source value becomes a target value.
type TransformationKind string

const (
	// TransformDirect copies the source value unchanged.
	TransformDirect TransformationKind = "direct"
	// TransformLookup substitutes a previously migrated target id for the
	// source foreign key. Unresolvable lookups are dropped.
	TransformLookup TransformationKind = "lookup"
	// TransformFormula applies a named pure string transform.
	TransformFormula TransformationKind = "formula"
	// TransformConstant emits the configured default regardless of input.
	TransformConstant TransformationKind = "constant"
	// TransformSkip drops the field entirely.
	TransformSkip TransformationKind = "skip"
)

// FormulaKind names the supported pure string transforms.
type FormulaKind string

const (
	FormulaUppercase FormulaKind = "uppercase"
	FormulaLowercase FormulaKind = "lowercase"
	FormulaTrim      FormulaKind = "trim"
)

// FieldMapping maps one source field onto one target field.
type FieldMapping struct {
	TargetField string             `json:"target_field"`
	Kind        TransformationKind `json:"kind"`
	Required    bool               `json:"required"`
	Default     any                `json:"default,omitempty"`
	Formula     FormulaKind        `json:"formula,omitempty"`
	// ReferenceTo carries the referenced object type for lookup mappings.
	ReferenceTo string `json:"reference_to,omitempty"`
}

// ObjectMapping is the computed field correspondence between a source and a
// target object schema. It is derived once per object type per run and cached
// for the run's duration; schemas can change between runs so it is never
// persisted.
type ObjectMapping struct {
	SourceObjectType string `json:"source_object_type"`
	TargetObjectType string `json:"target_object_type"`
	// Fields is keyed by source field name.
	Fields map[string]FieldMapping `json:"fields"`
	// Relationships maps a source reference field to its target reference
	// field, used for parent-id remapping during load.
	Relationships map[string]string `json:"relationships"`
}

// LookupFields returns the source field names mapped as lookups.
func (m ObjectMapping) LookupFields() []string {
	var names []string
	for name, fm := range m.Fields {
		if fm.Kind == TransformLookup {
			names = append(names, name)
		}
	}
	return names
}
