package migration

import (
	"strings"

	"github.com/crossorg/migrator/internal/domain"
)

// TransformRecord applies an object mapping to one source record. Null and
// absent source values are omitted from the output rather than written as
// null, except where a required field's configured default must still be
// populated. Lookup values are substituted from idRemap and dropped when no
// remapping exists.
func TransformRecord(record map[string]any, mapping domain.ObjectMapping, idRemap map[string]string) map[string]any {
	out := make(map[string]any)

	for sourceField, fm := range mapping.Fields {
		switch fm.Kind {
		case domain.TransformSkip:
			continue
		case domain.TransformConstant:
			out[fm.TargetField] = fm.Default
			continue
		}

		value, present := record[sourceField]
		if !present || value == nil {
			if fm.Required && fm.Default != nil {
				out[fm.TargetField] = fm.Default
			}
			continue
		}

		switch fm.Kind {
		case domain.TransformDirect:
			out[fm.TargetField] = value
		case domain.TransformLookup:
			sourceID, ok := value.(string)
			if !ok {
				continue
			}
			if targetID, ok := idRemap[sourceID]; ok {
				out[fm.TargetField] = targetID
			}
			// Unresolvable foreign keys are dropped: ids never survive
			// an org boundary on their own.
		case domain.TransformFormula:
			out[fm.TargetField] = applyFormula(fm.Formula, value)
		}
	}

	return out
}

// applyFormula runs one of the named pure string transforms. Non-string
// values pass through untouched.
func applyFormula(formula domain.FormulaKind, value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	switch formula {
	case domain.FormulaUppercase:
		return strings.ToUpper(s)
	case domain.FormulaLowercase:
		return strings.ToLower(s)
	case domain.FormulaTrim:
		return strings.TrimSpace(s)
	}
	return s
}
