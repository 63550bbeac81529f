package migration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/crossorg/migrator/internal/domain"
	"github.com/crossorg/migrator/internal/remote"
)

// ClientFactory yields the remote data API client for an organisation. The
// factory is expected to hand back rate-limited clients.
type ClientFactory func(org domain.OrgConnection) remote.Client

// HookFunc is a named lifecycle step a template can reference by name.
type HookFunc func(ctx context.Context, objectType string) error

// Defaults fill in project options the caller left at zero.
type Defaults struct {
	BatchSize     int
	BulkThreshold int
}

// Engine orchestrates a migration run: dependency ordering, batched
// extraction, mapping, validation, loading, and session tracking. One run per
// project may be active at a time.
type Engine struct {
	registry *TemplateRegistry
	tracker  *Tracker
	clients  ClientFactory
	defaults Defaults
	hooks    map[string]HookFunc

	running sync.Map // project id -> *runHandle
}

// runHandle carries the cancellation flag for one active run. Cancellation
// is a flag rather than a context so already-issued batch operations are
// never aborted mid-flight.
type runHandle struct {
	cancelled atomic.Bool
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithHook registers a named lifecycle step templates may dispatch.
func WithHook(name string, fn HookFunc) EngineOption {
	return func(e *Engine) { e.hooks[name] = fn }
}

// NewEngine wires an engine from its collaborators.
func NewEngine(registry *TemplateRegistry, tracker *Tracker, clients ClientFactory, defaults Defaults, opts ...EngineOption) *Engine {
	if defaults.BatchSize <= 0 {
		defaults.BatchSize = 200
	}
	if defaults.BulkThreshold <= 0 {
		defaults.BulkThreshold = 500
	}
	e := &Engine{
		registry: registry,
		tracker:  tracker,
		clients:  clients,
		defaults: defaults,
		hooks:    make(map[string]HookFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cancel requests cooperative cancellation of the project's active run. The
// signal is honoured between batches; in-flight batch operations finish.
func (e *Engine) Cancel(projectID uuid.UUID) bool {
	value, ok := e.running.Load(projectID)
	if !ok {
		return false
	}
	value.(*runHandle).cancelled.Store(true)
	return true
}

// run carries the per-run state shared across object types.
type run struct {
	project   domain.MigrationProject
	options   domain.MigrationOptions
	source    remote.Client
	target    remote.Client
	resolver  *IdentityResolver
	validator *Validator

	sourceSchemas map[string]domain.ObjectSchema
	targetSchemas map[string]domain.ObjectSchema

	// remaps accumulates sourceId -> targetId per migrated object type, so
	// later types can substitute parent ids.
	remaps map[string]map[string]string
}

// ExecuteMigration runs the whole project and always returns a structured
// result, never a panic or a bare error.
func (e *Engine) ExecuteMigration(ctx context.Context, project domain.MigrationProject) (result domain.MigrationResult) {
	start := time.Now()
	result = domain.MigrationResult{ProjectID: project.ID}

	defer func() {
		if p := recover(); p != nil {
			result.Success = false
			result.Errors = append(result.Errors, domain.SessionError{
				Timestamp: time.Now(),
				Message:   fmt.Sprintf("migration aborted: %v", p),
			})
		}
		result.Duration = time.Since(start)
	}()

	handle := &runHandle{}
	if _, loaded := e.running.LoadOrStore(project.ID, handle); loaded {
		result.Errors = append(result.Errors, domain.SessionError{
			Timestamp: time.Now(),
			Message:   "a migration is already running for this project",
		})
		return result
	}
	defer e.running.Delete(project.ID)

	options := project.Options
	if options.BatchSize <= 0 {
		options.BatchSize = e.defaults.BatchSize
	}
	if options.BulkThreshold <= 0 {
		options.BulkThreshold = e.defaults.BulkThreshold
	}

	r := &run{
		project:       project,
		options:       options,
		source:        e.clients(project.SourceOrg),
		target:        e.clients(project.TargetOrg),
		resolver:      NewIdentityResolver(),
		sourceSchemas: make(map[string]domain.ObjectSchema),
		targetSchemas: make(map[string]domain.ObjectSchema),
		remaps:        make(map[string]map[string]string),
	}
	r.validator = NewValidator(r.target, func(ctx context.Context, objectType string) (string, error) {
		return r.resolver.ResolveField(ctx, r.target, project.TargetOrg, objectType)
	})

	// Configuration errors abort before any write.
	for _, objectType := range project.ObjectTypes {
		sourceSchema, err := r.source.Describe(ctx, objectType)
		if err != nil {
			return e.fatal(result, fmt.Errorf("describe %s in source org: %w", objectType, err))
		}
		targetSchema, err := r.target.Describe(ctx, objectType)
		if err != nil {
			return e.fatal(result, fmt.Errorf("describe %s in target org: %w", objectType, err))
		}
		r.sourceSchemas[objectType] = sourceSchema
		r.targetSchemas[objectType] = targetSchema
	}

	// Dependency cycles abort before extraction.
	ordered, err := Order(project.ObjectTypes, r.sourceSchemas)
	if err != nil {
		return e.fatal(result, err)
	}
	log.Printf("[ENGINE] project %s: migrating %d object types in order %v", project.ID, len(ordered), ordered)

	for _, objectType := range ordered {
		session, sessionOK := e.migrateObjectType(ctx, handle, r, objectType)
		result.SessionIDs = append(result.SessionIDs, session.ID)
		result.TotalRecords += session.TotalRecords
		result.SuccessfulRecords += session.SuccessfulRecords
		result.FailedRecords += session.FailedRecords
		result.Errors = append(result.Errors, session.Errors...)

		if session.Status == domain.SessionStatusCancelled {
			break
		}
		if !sessionOK && !options.AllowPartialSuccess {
			// First failed object type stops the whole project.
			break
		}
	}

	result.Success = result.FailedRecords == 0 && !handle.cancelled.Load() &&
		ctx.Err() == nil && allCompleted(e.tracker, result.SessionIDs)
	return result
}

func allCompleted(tracker *Tracker, sessionIDs []uuid.UUID) bool {
	for _, id := range sessionIDs {
		session, ok := tracker.Session(id)
		if !ok || session.Status != domain.SessionStatusCompleted {
			return false
		}
	}
	return true
}

func (e *Engine) fatal(result domain.MigrationResult, err error) domain.MigrationResult {
	log.Printf("[ENGINE] fatal: %v", err)
	result.Success = false
	result.Errors = append(result.Errors, domain.SessionError{Timestamp: time.Now(), Message: err.Error()})
	return result
}

// migrateObjectType runs one session end to end. The returned bool is false
// when the session failed.
func (e *Engine) migrateObjectType(ctx context.Context, handle *runHandle, r *run, objectType string) (domain.MigrationSession, bool) {
	// Tracker persistence must survive caller cancellation so terminal
	// states are always recorded.
	persistCtx := context.WithoutCancel(ctx)

	session, err := e.tracker.CreateSession(persistCtx, r.project.ID, objectType)
	if err != nil {
		log.Printf("[ENGINE] %s: %v", objectType, err)
		return domain.MigrationSession{ObjectType: objectType, Status: domain.SessionStatusFailed}, false
	}
	fail := func(err error) (domain.MigrationSession, bool) {
		_ = e.tracker.AddError(persistCtx, session.ID, "", err.Error(), "")
		// A caller-cancelled context is a cancellation, not a failure.
		if errors.Is(err, context.Canceled) {
			_ = e.tracker.CancelSession(persistCtx, session.ID)
		} else {
			_ = e.tracker.FailSession(persistCtx, session.ID)
		}
		final, _ := e.tracker.Session(session.ID)
		return final, false
	}

	tmpl := e.registry.Resolve(objectType)

	extID, err := e.resolveIdentity(ctx, r, tmpl, objectType)
	if err != nil {
		return fail(err)
	}

	mapping := GenerateMapping(r.sourceSchemas[objectType], r.targetSchemas[objectType], tmpl)
	extractor := NewExtractor(r.source, objectType, extractionQuery(tmpl, mapping, extID), r.options.BatchSize)

	total, err := extractor.Count(ctx)
	if err != nil {
		return fail(err)
	}
	if err := e.tracker.SetTotal(persistCtx, session.ID, total); err != nil {
		return fail(err)
	}
	if err := e.tracker.StartSession(persistCtx, session.ID); err != nil {
		return fail(err)
	}

	loader := NewLoader(r.target, LoaderConfig{
		Operation:           tmpl.Operation,
		Retry:               tmpl.Retry,
		BatchSize:           r.options.BatchSize,
		BulkThreshold:       r.options.BulkThreshold,
		AllowPartialSuccess: r.options.AllowPartialSuccess,
	})

	remapOut := make(map[string]string)
	r.remaps[objectType] = remapOut

	e.dispatchHook(ctx, persistCtx, tmpl, domain.HookBeforeExtract, session.ID, objectType)

	cancelled := false
	iterator := extractor.Batches()
	for {
		// Cancellation is checked between batches, never mid-batch.
		if handle.cancelled.Load() || ctx.Err() != nil {
			cancelled = true
			break
		}
		batch, err := iterator.Next(ctx)
		if err != nil {
			return fail(err)
		}
		if batch == nil {
			break
		}
		e.dispatchHook(ctx, persistCtx, tmpl, domain.HookAfterExtract, session.ID, objectType)

		verdict, err := r.validator.ValidateBatch(ctx, tmpl, batch, r.targetSchemas[objectType])
		if err != nil {
			return fail(err)
		}
		for _, warning := range verdict.Warnings() {
			_ = e.tracker.AddError(persistCtx, session.ID, warning.RecordID, warning.Message, string(warning.Severity))
		}
		if !verdict.IsValid() {
			return fail(fmt.Errorf("validation failed for %s: %d blocking issue(s)", objectType, len(verdict.Issues)-len(verdict.Warnings())))
		}

		// The lookup remap is rebuilt per batch so self-references resolve
		// against the ids earlier batches of this object type produced.
		items, snapshots := buildLoadItems(batch, mapping, r.lookupRemap(mapping), extID)

		e.dispatchHook(ctx, persistCtx, tmpl, domain.HookBeforeLoad, session.ID, objectType)
		loadResult := loader.Load(ctx, objectType, items, extID.TargetField)
		e.dispatchHook(ctx, persistCtx, tmpl, domain.HookAfterLoad, session.ID, objectType)

		for _, item := range items {
			targetID, ok := loadResult.IDMapping[item.SourceID]
			if !ok {
				continue
			}
			if targetID != "" {
				remapOut[item.SourceID] = targetID
			}
			alreadyExisted := !loadResult.Created[item.SourceID]
			if err := e.tracker.RecordSuccess(persistCtx, session.ID, item.SourceID, targetID, alreadyExisted, snapshots[item.SourceID]); err != nil {
				return fail(err)
			}
		}
		for _, loadErr := range loadResult.Errors {
			if err := e.tracker.RecordFailure(persistCtx, session.ID, loadErr.RecordID, loadErr.Message, snapshots[loadErr.RecordID]); err != nil {
				return fail(err)
			}
			_ = e.tracker.AddError(persistCtx, session.ID, loadErr.RecordID, loadErr.Message, loadErr.Code)
		}

		if loadResult.ErrorCount > 0 && !r.options.AllowPartialSuccess {
			return fail(fmt.Errorf("load failed for %s: %d record(s) in error", objectType, loadResult.ErrorCount))
		}
	}

	if cancelled {
		_ = e.tracker.CancelSession(persistCtx, session.ID)
		final, _ := e.tracker.Session(session.ID)
		return final, false
	}

	if err := e.tracker.CompleteSession(persistCtx, session.ID); err != nil {
		return fail(err)
	}
	final, _ := e.tracker.Session(session.ID)
	return final, true
}

// resolveIdentity honours a template's pinned identity config and falls back
// to probing both orgs.
func (e *Engine) resolveIdentity(ctx context.Context, r *run, tmpl domain.Template, objectType string) (domain.ExternalIdConfig, error) {
	if tmpl.ExternalID != nil {
		cfg := *tmpl.ExternalID
		cfg.ObjectType = objectType
		cfg.Strategy = domain.IdentityStrategyManual
		return cfg, nil
	}
	return r.resolver.Resolve(ctx, r.source, r.target, r.project.SourceOrg, r.project.TargetOrg, objectType)
}

// lookupRemap merges the id mappings of every object type this mapping's
// lookup fields reference, plus this object type's own remap so
// self-references see the batches already loaded. Callers re-invoke it per
// batch to pick up fresh ids.
func (r *run) lookupRemap(mapping domain.ObjectMapping) map[string]string {
	merged := make(map[string]string)
	if !r.options.PreserveRelationships {
		return merged
	}
	for _, fm := range mapping.Fields {
		if fm.Kind != domain.TransformLookup || fm.ReferenceTo == "" {
			continue
		}
		for sourceID, targetID := range r.remaps[fm.ReferenceTo] {
			merged[sourceID] = targetID
		}
	}
	for sourceID, targetID := range r.remaps[mapping.SourceObjectType] {
		merged[sourceID] = targetID
	}
	return merged
}

// buildLoadItems transforms a batch and stamps cross-environment identity
// values, keeping the source snapshots for audit.
func buildLoadItems(batch []map[string]any, mapping domain.ObjectMapping, idRemap map[string]string, extID domain.ExternalIdConfig) ([]LoadItem, map[string]map[string]any) {
	items := make([]LoadItem, 0, len(batch))
	snapshots := make(map[string]map[string]any, len(batch))
	for _, record := range batch {
		sourceID, _ := record["Id"].(string)
		transformed := TransformRecord(record, mapping, idRemap)
		// Carry the business identity value across naming conventions;
		// the loader falls back to the source record id when absent.
		if value, ok := record[extID.SourceField].(string); ok && value != "" {
			transformed[extID.TargetField] = value
		}
		items = append(items, LoadItem{SourceID: sourceID, Record: transformed})
		snapshots[sourceID] = record
	}
	return items, snapshots
}

// extractionQuery derives the source query shape: template-pinned fields when
// present, else the mapped source fields plus the identity field.
func extractionQuery(tmpl domain.Template, mapping domain.ObjectMapping, extID domain.ExternalIdConfig) domain.QueryShape {
	query := tmpl.Query
	if query.OrderBy == "" {
		// Offset paging needs a stable order.
		query.OrderBy = "Id"
	}
	if len(query.Fields) > 0 {
		return query
	}
	wanted := make(map[string]bool)
	for sourceField, fm := range mapping.Fields {
		switch fm.Kind {
		case domain.TransformDirect, domain.TransformLookup, domain.TransformFormula:
			wanted[sourceField] = true
		}
	}
	if extID.SourceField != "" {
		wanted[extID.SourceField] = true
	}
	fields := make([]string, 0, len(wanted))
	for field := range wanted {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	query.Fields = fields
	return query
}

// dispatchHook runs the named step a template binds to a lifecycle point.
// Hook failures are logged against the session but never abort the run.
func (e *Engine) dispatchHook(ctx, persistCtx context.Context, tmpl domain.Template, point domain.HookPoint, sessionID uuid.UUID, objectType string) {
	name, ok := tmpl.Hooks[point]
	if !ok {
		return
	}
	fn, ok := e.hooks[name]
	if !ok {
		log.Printf("[ENGINE] %s: hook %q at %s is not registered", objectType, name, point)
		return
	}
	if err := fn(ctx, objectType); err != nil {
		_ = e.tracker.AddError(persistCtx, sessionID, "", fmt.Sprintf("hook %s at %s: %v", name, point, err), "")
	}
}
