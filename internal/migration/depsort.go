package migration

import (
	"github.com/crossorg/migrator/internal/domain"
)

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// Order sorts object types so that no type is migrated before the types it
// references. Only references between requested types count; references to
// anything outside the set are treated as pre-existing in the target. Types
// with no dependency relationship keep their input order. A reference cycle
// yields a CircularDependencyError naming a type on the cycle.
func Order(objectTypes []string, schemaByType map[string]domain.ObjectSchema) ([]string, error) {
	requested := make(map[string]bool, len(objectTypes))
	for _, t := range objectTypes {
		requested[t] = true
	}

	// deps[t] lists the requested types t references, in declaration order.
	deps := make(map[string][]string, len(objectTypes))
	for _, t := range objectTypes {
		schema, ok := schemaByType[t]
		if !ok {
			continue
		}
		seen := make(map[string]bool)
		for _, field := range schema.ReferenceFields() {
			for _, ref := range field.ReferenceTo {
				// Self-references cannot be ordered away and are
				// resolved by the relationship-preservation pass.
				if ref == t || !requested[ref] || seen[ref] {
					continue
				}
				seen[ref] = true
				deps[t] = append(deps[t], ref)
			}
		}
	}

	state := make(map[string]visitState, len(objectTypes))
	ordered := make([]string, 0, len(objectTypes))

	var visit func(t string) error
	visit = func(t string) error {
		switch state[t] {
		case visited:
			return nil
		case visiting:
			return &domain.CircularDependencyError{ObjectType: t}
		}
		state[t] = visiting
		for _, dep := range deps[t] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[t] = visited
		ordered = append(ordered, t)
		return nil
	}

	for _, t := range objectTypes {
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
