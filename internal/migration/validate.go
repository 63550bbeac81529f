package migration

import (
	"context"
	"fmt"

	"github.com/crossorg/migrator/internal/domain"
	"github.com/crossorg/migrator/internal/remote"
)

// ValidationIssue is one failed check, at error or warning severity.
type ValidationIssue struct {
	Rule     string           `json:"rule"`
	Kind     domain.CheckKind `json:"kind"`
	Severity domain.Severity  `json:"severity"`
	Field    string           `json:"field,omitempty"`
	RecordID string           `json:"record_id,omitempty"`
	Message  string           `json:"message"`
}

// ValidationResult aggregates the issues from one validation pass.
type ValidationResult struct {
	Issues []ValidationIssue
}

// IsValid reports whether no error-severity check failed. Warnings are
// surfaced but never block execution.
func (r ValidationResult) IsValid() bool {
	for _, issue := range r.Issues {
		if issue.Severity == domain.SeverityError {
			return false
		}
	}
	return true
}

// Warnings returns only the advisory issues.
func (r ValidationResult) Warnings() []ValidationIssue {
	var warnings []ValidationIssue
	for _, issue := range r.Issues {
		if issue.Severity == domain.SeverityWarning {
			warnings = append(warnings, issue)
		}
	}
	return warnings
}

// IdentityFieldFunc resolves the identity field of an object type in the
// target org, used by dependency checks to look referenced records up.
type IdentityFieldFunc func(ctx context.Context, objectType string) (string, error)

// Validator runs the pre-flight checks a template declares: dependency
// existence, data-integrity assertions, and picklist legality. Pre-validation
// queries are cached under their query string for reuse across record-level
// checks within one run.
type Validator struct {
	target        remote.Client
	identityField IdentityFieldFunc
	queryCache    map[string]remote.QueryResult
}

// NewValidator builds a validator against the target org.
func NewValidator(target remote.Client, identityField IdentityFieldFunc) *Validator {
	return &Validator{
		target:        target,
		identityField: identityField,
		queryCache:    make(map[string]remote.QueryResult),
	}
}

func (v *Validator) cachedQuery(ctx context.Context, soql string) (remote.QueryResult, error) {
	if result, ok := v.queryCache[soql]; ok {
		return result, nil
	}
	result, err := v.target.Query(ctx, soql)
	if err != nil {
		return remote.QueryResult{}, err
	}
	v.queryCache[soql] = result
	return result, nil
}

// ValidateBatch screens one record batch against the template's rule set.
// The records are source-shaped (pre-transform) so rules refer to source
// field names.
func (v *Validator) ValidateBatch(ctx context.Context, tmpl domain.Template, records []map[string]any, targetSchema domain.ObjectSchema) (ValidationResult, error) {
	var result ValidationResult
	for _, rule := range tmpl.Rules {
		var (
			issues []ValidationIssue
			err    error
		)
		switch rule.Kind {
		case domain.CheckDependency:
			issues, err = v.checkDependency(ctx, rule, records)
		case domain.CheckDataIntegrity:
			issues, err = v.checkDataIntegrity(ctx, rule)
		case domain.CheckPicklist:
			issues = checkPicklist(rule, records, targetSchema)
		default:
			err = fmt.Errorf("unknown validation check kind %q", rule.Kind)
		}
		if err != nil {
			return ValidationResult{}, fmt.Errorf("validation rule %s: %w", rule.Name, err)
		}
		result.Issues = append(result.Issues, issues...)
	}
	return result, nil
}

// checkDependency verifies that every referenced record already exists in the
// target, identified by its external id.
func (v *Validator) checkDependency(ctx context.Context, rule domain.ValidationRule, records []map[string]any) ([]ValidationIssue, error) {
	identityField, err := v.identityField(ctx, rule.ReferenceObject)
	if err != nil {
		return nil, fmt.Errorf("resolve identity field for %s: %w", rule.ReferenceObject, err)
	}

	seen := make(map[string]bool)
	var wanted []string
	for _, record := range records {
		value, ok := record[rule.Field].(string)
		if !ok || value == "" || seen[value] {
			continue
		}
		seen[value] = true
		wanted = append(wanted, value)
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	existing := make(map[string]bool, len(wanted))
	for _, chunk := range remote.ChunkIDs(wanted, remote.INClauseLimit) {
		soql := remote.SelectQuery([]string{identityField}, rule.ReferenceObject, remote.InClause(identityField, chunk), "", 0, 0)
		result, err := v.cachedQuery(ctx, soql)
		if err != nil {
			return nil, fmt.Errorf("query %s for dependency check: %w", rule.ReferenceObject, err)
		}
		for _, rec := range result.Records {
			if id, ok := rec[identityField].(string); ok {
				existing[id] = true
			}
		}
	}

	var issues []ValidationIssue
	for _, record := range records {
		value, ok := record[rule.Field].(string)
		if !ok || value == "" || existing[value] {
			continue
		}
		recordID, _ := record["Id"].(string)
		issues = append(issues, ValidationIssue{
			Rule:     rule.Name,
			Kind:     rule.Kind,
			Severity: rule.Severity,
			Field:    rule.Field,
			RecordID: recordID,
			Message:  fmt.Sprintf("referenced %s %q does not exist in target", rule.ReferenceObject, value),
		})
	}
	return issues, nil
}

// checkDataIntegrity runs a query-shaped assertion expected to return an
// empty result set.
func (v *Validator) checkDataIntegrity(ctx context.Context, rule domain.ValidationRule) ([]ValidationIssue, error) {
	result, err := v.cachedQuery(ctx, rule.Query)
	if err != nil {
		return nil, fmt.Errorf("integrity query: %w", err)
	}
	if result.TotalSize == 0 && len(result.Records) == 0 {
		return nil, nil
	}
	count := result.TotalSize
	if count == 0 {
		count = len(result.Records)
	}
	return []ValidationIssue{{
		Rule:     rule.Name,
		Kind:     rule.Kind,
		Severity: rule.Severity,
		Message:  fmt.Sprintf("integrity assertion returned %d rows, expected none", count),
	}}, nil
}

// checkPicklist verifies source values appear in the target picklist's
// currently configured value set. Mismatches are never coerced.
func checkPicklist(rule domain.ValidationRule, records []map[string]any, targetSchema domain.ObjectSchema) []ValidationIssue {
	severity := rule.Severity
	if severity == "" {
		severity = domain.SeverityWarning
	}

	field, ok := targetSchema.FieldByName(rule.Field)
	if !ok || len(field.PicklistValues) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(field.PicklistValues))
	for _, v := range field.PicklistValues {
		allowed[v] = true
	}

	var issues []ValidationIssue
	for _, record := range records {
		value, ok := record[rule.Field].(string)
		if !ok || value == "" || allowed[value] {
			continue
		}
		recordID, _ := record["Id"].(string)
		issues = append(issues, ValidationIssue{
			Rule:     rule.Name,
			Kind:     rule.Kind,
			Severity: severity,
			Field:    rule.Field,
			RecordID: recordID,
			Message:  fmt.Sprintf("picklist value %q is not configured on target field %s", value, field.Name),
		})
	}
	return issues
}
