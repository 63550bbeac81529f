// Package fieldmatch implements namespace-insensitive field name matching
// between two schema naming conventions. Managed packages prefix custom
// fields with an org namespace ("tc9_pr__Rate__c"); unmanaged orgs use the
// bare name ("Rate__c"). Matching is a pure function over names so it can be
// tested without any schema plumbing.
package fieldmatch

import "strings"

const customFieldSuffix = "__c"

// StripNamespace removes a leading package namespace from a custom field
// name. "tc9_pr__Rate__c" becomes "Rate__c"; names without a namespace are
// returned unchanged.
func StripNamespace(name string) string {
	if !strings.HasSuffix(strings.ToLower(name), customFieldSuffix) {
		return name
	}
	base := name[:len(name)-len(customFieldSuffix)]
	idx := strings.Index(base, "__")
	if idx <= 0 {
		return name
	}
	return base[idx+2:] + name[len(name)-len(customFieldSuffix):]
}

// normalizeUnderscores lowercases and drops underscores, so "First_Name"
// matches "FirstName".
func normalizeUnderscores(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "")
}

// BestMatch finds the candidate that corresponds to sourceField, trying in
// order: exact match, case-insensitive match, underscore-stripped match, and
// finally namespace-stripped match. The second return is false when nothing
// matches.
func BestMatch(sourceField string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if c == sourceField {
			return c, true
		}
	}
	for _, c := range candidates {
		if strings.EqualFold(c, sourceField) {
			return c, true
		}
	}
	normalized := normalizeUnderscores(sourceField)
	for _, c := range candidates {
		if normalizeUnderscores(c) == normalized {
			return c, true
		}
	}
	stripped := strings.ToLower(StripNamespace(sourceField))
	for _, c := range candidates {
		if strings.ToLower(StripNamespace(c)) == stripped {
			return c, true
		}
	}
	return "", false
}
