package migration

import (
	"testing"
	"time"

	"github.com/crossorg/migrator/internal/domain"
)

func TestRegistryAppliesConfiguredRetryPolicy(t *testing.T) {
	policy := domain.RetryPolicy{
		MaxRetries:     5,
		Wait:           500 * time.Millisecond,
		RetryableCodes: []string{"UNABLE_TO_LOCK_ROW"},
	}
	registry := NewTemplateRegistryWithPolicy(policy,
		domain.Template{ObjectType: "Account"})

	// A registered template without its own policy inherits the configured one.
	got := registry.Resolve("Account").Retry
	if got.MaxRetries != 5 || got.Wait != 500*time.Millisecond {
		t.Fatalf("registered template retry = %+v, want configured policy", got)
	}

	// So does the fallback template for unconfigured object types.
	got = registry.Resolve("Contact").Retry
	if got.MaxRetries != 5 || got.Wait != 500*time.Millisecond {
		t.Fatalf("default template retry = %+v, want configured policy", got)
	}
}

func TestRegistryKeepsTemplateOwnRetryPolicy(t *testing.T) {
	registry := NewTemplateRegistryWithPolicy(domain.RetryPolicy{MaxRetries: 5, Wait: time.Second},
		domain.Template{
			ObjectType: "Account",
			Retry:      domain.RetryPolicy{MaxRetries: 1, Wait: 10 * time.Second},
		})

	got := registry.Resolve("Account").Retry
	if got.MaxRetries != 1 || got.Wait != 10*time.Second {
		t.Fatalf("retry = %+v, want the template's own policy kept", got)
	}
}

func TestRegistryZeroPolicyFallsBackToDefault(t *testing.T) {
	registry := NewTemplateRegistryWithPolicy(domain.RetryPolicy{})

	got := registry.Resolve("Account").Retry
	if got.MaxRetries != 3 || got.Wait != 2*time.Second {
		t.Fatalf("retry = %+v, want the package default for a zero policy", got)
	}
	if len(got.RetryableCodes) != len(DefaultRetryableCodes) {
		t.Fatalf("retryable codes = %v", got.RetryableCodes)
	}
}
