package migration

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/crossorg/migrator/internal/domain"
	"github.com/crossorg/migrator/internal/remote"
)

// probeClient answers identity probes: queries selecting a field in available
// succeed, everything else fails as an unknown field.
func probeClient(available ...string) *fakeClient {
	return &fakeClient{
		queryFn: func(ctx context.Context, soql string) (remote.QueryResult, error) {
			for _, field := range available {
				if strings.HasPrefix(soql, "SELECT "+field+" ") {
					return remote.QueryResult{}, nil
				}
			}
			return remote.QueryResult{}, &remote.Error{Code: "INVALID_FIELD", Message: "no such column"}
		},
	}
}

func org(name, namespace string) domain.OrgConnection {
	return domain.OrgConnection{ID: uuid.New(), Name: name, Namespace: namespace}
}

func TestResolveFieldPrefersManaged(t *testing.T) {
	client := probeClient("tc9_pr__External_Id__c", "External_Id__c")
	resolver := NewIdentityResolver()

	field, err := resolver.ResolveField(context.Background(), client, org("src", "tc9_pr"), "Account")
	if err != nil {
		t.Fatalf("ResolveField returned error: %v", err)
	}
	if field != "tc9_pr__External_Id__c" {
		t.Fatalf("field = %q, want managed field first", field)
	}
}

func TestResolveFieldFallsBack(t *testing.T) {
	client := probeClient("ExternalId__c")
	resolver := NewIdentityResolver()

	field, err := resolver.ResolveField(context.Background(), client, org("src", "tc9_pr"), "Account")
	if err != nil {
		t.Fatalf("ResolveField returned error: %v", err)
	}
	if field != "ExternalId__c" {
		t.Fatalf("field = %q, want ExternalId__c", field)
	}
}

func TestResolveFieldNoneFound(t *testing.T) {
	client := probeClient()
	resolver := NewIdentityResolver()

	_, err := resolver.ResolveField(context.Background(), client, org("src", "tc9_pr"), "Account")
	if err == nil {
		t.Fatal("expected NoIdentityFieldError, got nil")
	}
	var noID *domain.NoIdentityFieldError
	if !errors.As(err, &noID) {
		t.Fatalf("error type = %T, want *domain.NoIdentityFieldError", err)
	}
	if len(noID.Tried) != 3 {
		t.Fatalf("tried %v, want all three candidates", noID.Tried)
	}
}

func TestResolveFieldCachesPerOrg(t *testing.T) {
	client := probeClient("External_Id__c")
	resolver := NewIdentityResolver()
	source := org("src", "")

	if _, err := resolver.ResolveField(context.Background(), client, source, "Account"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	probes := client.queryCount()
	if _, err := resolver.ResolveField(context.Background(), client, source, "Account"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if client.queryCount() != probes {
		t.Fatalf("second resolve issued %d extra probes, want 0", client.queryCount()-probes)
	}
}

func TestResolveCrossEnvironmentStrategy(t *testing.T) {
	source := probeClient("tc9_pr__External_Id__c")
	target := probeClient("External_Id__c")
	resolver := NewIdentityResolver()

	cfg, err := resolver.Resolve(context.Background(), source, target, org("src", "tc9_pr"), org("tgt", ""), "Account")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if cfg.SourceField != "tc9_pr__External_Id__c" {
		t.Errorf("source field = %q", cfg.SourceField)
	}
	if cfg.TargetField != "External_Id__c" {
		t.Errorf("target field = %q", cfg.TargetField)
	}
	if cfg.Strategy != domain.IdentityStrategyCrossEnvironment {
		t.Fatalf("strategy = %s, want cross-environment", cfg.Strategy)
	}
}

func TestResolveMatchingFieldsAuto(t *testing.T) {
	source := probeClient("External_Id__c")
	target := probeClient("External_Id__c")
	resolver := NewIdentityResolver()

	cfg, err := resolver.Resolve(context.Background(), source, target, org("src", ""), org("tgt", ""), "Account")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if cfg.Strategy != domain.IdentityStrategyAuto {
		t.Fatalf("strategy = %s, want auto-detect", cfg.Strategy)
	}
}
