package migration

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/crossorg/migrator/internal/domain"
	"github.com/crossorg/migrator/internal/remote"
)

const (
	unmanagedIdentityField = "External_Id__c"
	fallbackIdentityField  = "ExternalId__c"
)

// managedIdentityField is the packaged identity field name for an org with
// the given namespace prefix.
func managedIdentityField(namespace string) string {
	if namespace == "" {
		return ""
	}
	return fmt.Sprintf("%s__%s", namespace, unmanagedIdentityField)
}

type identityCacheKey struct {
	orgID      uuid.UUID
	objectType string
}

// IdentityResolver determines which field acts as the cross-environment
// natural key for an object in an org. Detection probes candidate fields with
// a minimal query and treats any failure as "field absent". Outcomes are
// cached per (object type, org) for the run.
type IdentityResolver struct {
	mu    sync.Mutex
	cache map[identityCacheKey]string
}

// NewIdentityResolver creates a resolver with an empty per-run cache.
func NewIdentityResolver() *IdentityResolver {
	return &IdentityResolver{cache: make(map[identityCacheKey]string)}
}

// ResolveField finds the identity field for one object type in one org,
// trying the packaged field, the unnamespaced field, then the generic
// fallback. When none exists it returns a NoIdentityFieldError.
func (r *IdentityResolver) ResolveField(ctx context.Context, client remote.Client, org domain.OrgConnection, objectType string) (string, error) {
	key := identityCacheKey{orgID: org.ID, objectType: objectType}
	r.mu.Lock()
	if field, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return field, nil
	}
	r.mu.Unlock()

	var tried []string
	candidates := []string{managedIdentityField(org.Namespace), unmanagedIdentityField, fallbackIdentityField}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		tried = append(tried, candidate)
		if _, err := client.Query(ctx, remote.ProbeQuery(candidate, objectType)); err != nil {
			// A failed probe means the field does not exist in this org.
			continue
		}
		r.mu.Lock()
		r.cache[key] = candidate
		r.mu.Unlock()
		return candidate, nil
	}

	return "", &domain.NoIdentityFieldError{ObjectType: objectType, OrgName: org.Name, Tried: tried}
}

// Resolve determines the identity configuration for migrating objectType from
// the source org to the target org. When the two orgs resolve to different
// fields the config carries the cross-environment strategy so queries use the
// source-side field and writes the target-side field.
func (r *IdentityResolver) Resolve(ctx context.Context, source, target remote.Client, sourceOrg, targetOrg domain.OrgConnection, objectType string) (domain.ExternalIdConfig, error) {
	sourceField, err := r.ResolveField(ctx, source, sourceOrg, objectType)
	if err != nil {
		return domain.ExternalIdConfig{}, err
	}
	targetField, err := r.ResolveField(ctx, target, targetOrg, objectType)
	if err != nil {
		return domain.ExternalIdConfig{}, err
	}

	strategy := domain.IdentityStrategyAuto
	if sourceField != targetField {
		strategy = domain.IdentityStrategyCrossEnvironment
	}

	return domain.ExternalIdConfig{
		ObjectType:     objectType,
		SourceField:    sourceField,
		TargetField:    targetField,
		ManagedField:   managedIdentityField(targetOrg.Namespace),
		UnmanagedField: unmanagedIdentityField,
		FallbackField:  fallbackIdentityField,
		Strategy:       strategy,
	}, nil
}
