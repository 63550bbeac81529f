package domain

import "strings"

// FieldType classifies a described field. The values mirror the remote
// API's describe metadata rather than Go types.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeTextarea  FieldType = "textarea"
	FieldTypeEmail     FieldType = "email"
	FieldTypePhone     FieldType = "phone"
	FieldTypeURL       FieldType = "url"
	FieldTypePicklist  FieldType = "picklist"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeCheckbox  FieldType = "checkbox"
	FieldTypeInt       FieldType = "int"
	FieldTypeDouble    FieldType = "double"
	FieldTypeCurrency  FieldType = "currency"
	FieldTypePercent   FieldType = "percent"
	FieldTypeDate      FieldType = "date"
	FieldTypeDatetime  FieldType = "datetime"
	FieldTypeReference FieldType = "reference"
	FieldTypeID        FieldType = "id"
)

// FieldDescription is one field from an object describe call.
type FieldDescription struct {
	Name           string    `json:"name"`
	Label          string    `json:"label"`
	Type           FieldType `json:"type"`
	Createable     bool      `json:"createable"`
	Updateable     bool      `json:"updateable"`
	Required       bool      `json:"required"`
	ReferenceTo    []string  `json:"reference_to,omitempty"`
	PicklistValues []string  `json:"picklist_values,omitempty"`
}

// IsReference reports whether the field holds a foreign key to another object.
func (f FieldDescription) IsReference() bool {
	return f.Type == FieldTypeReference
}

// Writable reports whether the remote API accepts this field on create.
func (f FieldDescription) Writable() bool {
	return f.Createable
}

// ObjectSchema is the describe result for one object type in one org.
type ObjectSchema struct {
	ObjectType string             `json:"object_type"`
	Fields     []FieldDescription `json:"fields"`
}

// FieldByName looks a field up case-insensitively.
func (s ObjectSchema) FieldByName(name string) (FieldDescription, bool) {
	for _, f := range s.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return FieldDescription{}, false
}

// ReferenceFields returns the fields that point at other object types, in
// declaration order.
func (s ObjectSchema) ReferenceFields() []FieldDescription {
	var refs []FieldDescription
	for _, f := range s.Fields {
		if f.IsReference() {
			refs = append(refs, f)
		}
	}
	return refs
}
