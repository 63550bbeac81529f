package migration

import (
	"time"

	"github.com/crossorg/migrator/internal/domain"
)

// DefaultRetryableCodes are the remote error codes treated as transient when
// a template does not declare its own retry policy.
var DefaultRetryableCodes = []string{
	"UNABLE_TO_LOCK_ROW",
	"REQUEST_LIMIT_EXCEEDED",
	"INSUFFICIENT_ACCESS_ON_CROSS_REFERENCE_ENTITY",
}

// DefaultRetryPolicy bounds retries when a template stays silent.
func DefaultRetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxRetries:     3,
		Wait:           2 * time.Second,
		RetryableCodes: DefaultRetryableCodes,
	}
}

// DefaultTemplate is the template used for object types nobody configured:
// upsert everything, retry transient codes, no extra rules.
func DefaultTemplate(objectType string) domain.Template {
	return domain.Template{
		ObjectType: objectType,
		Operation:  domain.LoadOperationUpsert,
		Retry:      DefaultRetryPolicy(),
	}
}

// TemplateRegistry holds the declarative ETL templates for a run. It is
// constructed once at startup and passed to the engine explicitly; there is
// no package-level registry.
type TemplateRegistry struct {
	templates map[string]domain.Template
	policy    domain.RetryPolicy
}

// NewTemplateRegistry builds a registry from the given templates, applying
// the default retry policy to templates that declare none.
func NewTemplateRegistry(templates ...domain.Template) *TemplateRegistry {
	return NewTemplateRegistryWithPolicy(DefaultRetryPolicy(), templates...)
}

// NewTemplateRegistryWithPolicy builds a registry whose templates fall back
// to the given retry policy instead of the package default. A zero policy is
// replaced with the default.
func NewTemplateRegistryWithPolicy(policy domain.RetryPolicy, templates ...domain.Template) *TemplateRegistry {
	if policy.MaxRetries == 0 && len(policy.RetryableCodes) == 0 {
		policy = DefaultRetryPolicy()
	}
	r := &TemplateRegistry{
		templates: make(map[string]domain.Template),
		policy:    policy,
	}
	for _, t := range templates {
		r.Register(t)
	}
	return r
}

// Register adds or replaces the template for its object type. Templates
// without a retry policy of their own inherit the registry's.
func (r *TemplateRegistry) Register(t domain.Template) {
	if t.Retry.MaxRetries == 0 && len(t.Retry.RetryableCodes) == 0 {
		t.Retry = r.policy
	}
	r.templates[t.ObjectType] = t
}

// Resolve returns the registered template for the object type, or the
// default one when none exists.
func (r *TemplateRegistry) Resolve(objectType string) domain.Template {
	if t, ok := r.templates[objectType]; ok {
		return t
	}
	t := DefaultTemplate(objectType)
	t.Retry = r.policy
	return t
}
