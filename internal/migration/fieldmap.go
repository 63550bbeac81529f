package migration

import (
	"strings"
	"time"

	"github.com/crossorg/migrator/internal/domain"
	"github.com/crossorg/migrator/pkg/fieldmatch"
)

// systemFieldSkipList holds the source fields never carried across orgs:
// record id, audit stamps/actors, the soft-delete flag, and the setup owner.
// Comparison is case-insensitive.
var systemFieldSkipList = map[string]bool{
	"id":               true,
	"createddate":      true,
	"createdbyid":      true,
	"lastmodifieddate": true,
	"lastmodifiedbyid": true,
	"systemmodstamp":   true,
	"isdeleted":        true,
	"setupownerid":     true,
}

// IsSystemField reports whether the named field is on the skip list.
func IsSystemField(name string) bool {
	return systemFieldSkipList[strings.ToLower(name)]
}

// compatibilityGroups is the explicit symmetric type compatibility table: two
// field types may map onto each other exactly when they share a group.
var compatibilityGroups = [][]domain.FieldType{
	{domain.FieldTypeString, domain.FieldTypeTextarea, domain.FieldTypeEmail, domain.FieldTypePhone, domain.FieldTypeURL, domain.FieldTypePicklist},
	{domain.FieldTypeInt, domain.FieldTypeDouble, domain.FieldTypeCurrency, domain.FieldTypePercent},
	{domain.FieldTypeBoolean, domain.FieldTypeCheckbox},
	{domain.FieldTypeDate, domain.FieldTypeDatetime},
	{domain.FieldTypeReference},
	{domain.FieldTypeID},
}

var compatibilityIndex = buildCompatibilityIndex()

func buildCompatibilityIndex() map[domain.FieldType]int {
	idx := make(map[domain.FieldType]int)
	for group, types := range compatibilityGroups {
		for _, t := range types {
			idx[t] = group
		}
	}
	return idx
}

// Compatible reports whether a source value of type a may be written into a
// target field of type b.
func Compatible(a, b domain.FieldType) bool {
	ga, okA := compatibilityIndex[a]
	gb, okB := compatibilityIndex[b]
	return okA && okB && ga == gb
}

// defaultForType returns the placeholder used to satisfy a required target
// field that has no usable source mapping.
func defaultForType(t domain.FieldType) any {
	switch t {
	case domain.FieldTypeInt, domain.FieldTypeDouble, domain.FieldTypeCurrency, domain.FieldTypePercent:
		return 0
	case domain.FieldTypeBoolean, domain.FieldTypeCheckbox:
		return false
	case domain.FieldTypeDate, domain.FieldTypeDatetime:
		return time.Now().Format("2006-01-02")
	case domain.FieldTypeEmail:
		return "placeholder@example.com"
	default:
		return ""
	}
}

// GenerateMapping computes the field correspondence between a source and a
// target object schema, honouring template overrides. Reference fields become
// lookup mappings and are never pointed at raw foreign keys; required target
// fields with no usable source get a constant default.
func GenerateMapping(source, target domain.ObjectSchema, tmpl domain.Template) domain.ObjectMapping {
	mapping := domain.ObjectMapping{
		SourceObjectType: source.ObjectType,
		TargetObjectType: target.ObjectType,
		Fields:           make(map[string]domain.FieldMapping),
		Relationships:    make(map[string]string),
	}

	targetNames := make([]string, 0, len(target.Fields))
	for _, f := range target.Fields {
		targetNames = append(targetNames, f.Name)
	}

	mappedTargets := make(map[string]bool)

	for _, sourceField := range source.Fields {
		if IsSystemField(sourceField.Name) {
			continue
		}

		if override, ok := tmpl.FieldOverrides[sourceField.Name]; ok {
			mapping.Fields[sourceField.Name] = override
			if override.TargetField != "" {
				mappedTargets[strings.ToLower(override.TargetField)] = true
			}
			continue
		}

		if sourceField.IsReference() {
			targetRef := tmpl.LookupOverrides[sourceField.Name]
			if targetRef == "" {
				targetRef = matchReferenceField(sourceField, target)
			}
			if targetRef == "" {
				// No counterpart in the target: the foreign key is
				// meaningless there, so the field is dropped.
				continue
			}
			referenceTo := ""
			if len(sourceField.ReferenceTo) > 0 {
				referenceTo = sourceField.ReferenceTo[0]
			}
			mapping.Fields[sourceField.Name] = domain.FieldMapping{
				TargetField: targetRef,
				Kind:        domain.TransformLookup,
				ReferenceTo: referenceTo,
			}
			mapping.Relationships[sourceField.Name] = targetRef
			mappedTargets[strings.ToLower(targetRef)] = true
			continue
		}

		candidate, ok := fieldmatch.BestMatch(sourceField.Name, targetNames)
		if !ok {
			continue
		}
		targetField, _ := target.FieldByName(candidate)
		if !targetField.Writable() || !Compatible(sourceField.Type, targetField.Type) {
			continue
		}
		mapping.Fields[sourceField.Name] = domain.FieldMapping{
			TargetField: targetField.Name,
			Kind:        domain.TransformDirect,
			Required:    targetField.Required,
		}
		mappedTargets[strings.ToLower(targetField.Name)] = true
	}

	// Required target fields nobody mapped still need a value.
	for _, targetField := range target.Fields {
		if !targetField.Required || !targetField.Writable() || targetField.IsReference() {
			continue
		}
		if mappedTargets[strings.ToLower(targetField.Name)] {
			continue
		}
		if _, taken := mapping.Fields[targetField.Name]; taken {
			continue
		}
		mapping.Fields[targetField.Name] = domain.FieldMapping{
			TargetField: targetField.Name,
			Kind:        domain.TransformConstant,
			Required:    true,
			Default:     defaultForType(targetField.Type),
		}
	}

	return mapping
}

// matchReferenceField finds the target reference field corresponding to a
// source reference field by name, restricted to reference-typed candidates.
func matchReferenceField(sourceField domain.FieldDescription, target domain.ObjectSchema) string {
	refs := target.ReferenceFields()
	names := make([]string, 0, len(refs))
	for _, f := range refs {
		names = append(names, f.Name)
	}
	match, ok := fieldmatch.BestMatch(sourceField.Name, names)
	if !ok {
		return ""
	}
	return match
}
