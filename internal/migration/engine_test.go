package migration

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/crossorg/migrator/internal/domain"
	"github.com/crossorg/migrator/internal/remote"
)

// multiClient serves several object types' record sets with COUNT, probe, and
// LIMIT/OFFSET paging semantics.
func multiClient(data map[string][]map[string]any) *fakeClient {
	return &fakeClient{
		queryFn: func(ctx context.Context, soql string) (remote.QueryResult, error) {
			objectType := objectTypeOf(soql)
			records := data[objectType]
			if strings.HasPrefix(soql, "SELECT COUNT()") {
				return remote.QueryResult{TotalSize: len(records)}, nil
			}
			limit := len(records)
			offset := 0
			if v, ok := clauseValue(soql, " LIMIT "); ok {
				limit = v
			}
			if v, ok := clauseValue(soql, " OFFSET "); ok {
				offset = v
			}
			if offset >= len(records) {
				return remote.QueryResult{TotalSize: len(records)}, nil
			}
			end := offset + limit
			if end > len(records) {
				end = len(records)
			}
			page := make([]map[string]any, end-offset)
			for i, record := range records[offset:end] {
				copied := make(map[string]any, len(record))
				for k, v := range record {
					copied[k] = v
				}
				page[i] = copied
			}
			return remote.QueryResult{Records: page, TotalSize: len(records)}, nil
		},
	}
}

func objectTypeOf(soql string) string {
	idx := strings.Index(soql, " FROM ")
	if idx == -1 {
		return ""
	}
	rest := soql[idx+len(" FROM "):]
	if end := strings.IndexByte(rest, ' '); end != -1 {
		rest = rest[:end]
	}
	return rest
}

// upsertTarget records every upsert and answers with deterministic target
// ids. The first upsert of each key counts as a fresh insert; repeats match
// the existing record.
type upsertTarget struct {
	mu       sync.Mutex
	upserted map[string][]map[string]any
	seen     map[string]bool
}

func newUpsertTarget() *upsertTarget {
	return &upsertTarget{
		upserted: make(map[string][]map[string]any),
		seen:     make(map[string]bool),
	}
}

func (u *upsertTarget) client(schemas map[string]domain.ObjectSchema) *fakeClient {
	return &fakeClient{
		describeFn: func(ctx context.Context, objectType string) (domain.ObjectSchema, error) {
			return schemas[objectType], nil
		},
		upsertFn: func(ctx context.Context, objectType string, record map[string]any, ext string) (remote.SaveResult, error) {
			key, _ := record[ext].(string)
			u.mu.Lock()
			u.upserted[objectType] = append(u.upserted[objectType], record)
			created := !u.seen[objectType+"/"+key]
			u.seen[objectType+"/"+key] = true
			u.mu.Unlock()
			return remote.SaveResult{ID: "T-" + key, Success: true, Created: created}, nil
		},
	}
}

func migrationSchemas() map[string]domain.ObjectSchema {
	return map[string]domain.ObjectSchema{
		"Parent__c": {
			ObjectType: "Parent__c",
			Fields: []domain.FieldDescription{
				{Name: "Id", Type: domain.FieldTypeID},
				textField("Name"),
				textField("External_Id__c"),
			},
		},
		"Child__c": {
			ObjectType: "Child__c",
			Fields: []domain.FieldDescription{
				{Name: "Id", Type: domain.FieldTypeID},
				textField("Name"),
				textField("External_Id__c"),
				refField("Parent__c", "Parent__c"),
			},
		},
	}
}

func testProject(options domain.MigrationOptions, objectTypes ...string) domain.MigrationProject {
	return domain.NewMigrationProject("test-run", org("src", ""), org("tgt", ""), objectTypes, options)
}

func engineFixture(source, target *fakeClient, schemas map[string]domain.ObjectSchema, opts ...EngineOption) (*Engine, *Tracker, *memorySessionRepo) {
	if source.describeFn == nil {
		source.describeFn = func(ctx context.Context, objectType string) (domain.ObjectSchema, error) {
			return schemas[objectType], nil
		}
	}
	repo := newMemorySessionRepo()
	tracker := NewTracker(repo)
	factory := func(o domain.OrgConnection) remote.Client {
		if o.Name == "src" {
			return source
		}
		return target
	}
	engine := NewEngine(NewTemplateRegistry(), tracker, factory, Defaults{}, opts...)
	return engine, tracker, repo
}

func TestExecuteMigrationEndToEnd(t *testing.T) {
	schemas := migrationSchemas()
	source := multiClient(map[string][]map[string]any{
		"Parent__c": {
			{"Id": "P1", "Name": "Parent One", "External_Id__c": "EXT-P1"},
			{"Id": "P2", "Name": "Parent Two", "External_Id__c": "EXT-P2"},
		},
		"Child__c": {
			{"Id": "C1", "Name": "Child One", "External_Id__c": "EXT-C1", "Parent__c": "P1"},
			{"Id": "C2", "Name": "Child Two", "External_Id__c": "EXT-C2", "Parent__c": "P2"},
		},
	})
	target := newUpsertTarget()
	engine, tracker, repo := engineFixture(source, target.client(schemas), schemas)

	project := testProject(domain.MigrationOptions{
		BatchSize:             10,
		PreserveRelationships: true,
	}, "Child__c", "Parent__c")

	result := engine.ExecuteMigration(context.Background(), project)
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.TotalRecords != 4 || result.SuccessfulRecords != 4 || result.FailedRecords != 0 {
		t.Fatalf("counters = %d/%d/%d, want 4/4/0", result.TotalRecords, result.SuccessfulRecords, result.FailedRecords)
	}
	if len(result.SessionIDs) != 2 {
		t.Fatalf("sessions = %d, want one per object type", len(result.SessionIDs))
	}

	// Parents must migrate before the children that reference them.
	first, _ := tracker.Session(result.SessionIDs[0])
	if first.ObjectType != "Parent__c" {
		t.Fatalf("first session = %s, want Parent__c", first.ObjectType)
	}
	for _, id := range result.SessionIDs {
		if repo.statusOf(id) != domain.SessionStatusCompleted {
			t.Fatalf("session %s status = %s, want COMPLETED", id, repo.statusOf(id))
		}
	}

	children := target.upserted["Child__c"]
	if len(children) != 2 {
		t.Fatalf("child upserts = %d, want 2", len(children))
	}
	for _, child := range children {
		parentRef, _ := child["Parent__c"].(string)
		if !strings.HasPrefix(parentRef, "T-EXT-P") {
			t.Fatalf("child parent reference = %q, want remapped target id", parentRef)
		}
	}
}

func TestExecuteMigrationSelfReferenceRemap(t *testing.T) {
	schemas := map[string]domain.ObjectSchema{
		"Node__c": {
			ObjectType: "Node__c",
			Fields: []domain.FieldDescription{
				{Name: "Id", Type: domain.FieldTypeID},
				textField("Name"),
				textField("External_Id__c"),
				refField("Parent__c", "Node__c"),
			},
		},
	}
	source := multiClient(map[string][]map[string]any{
		"Node__c": {
			{"Id": "N1", "Name": "Root", "External_Id__c": "EXT-N1"},
			{"Id": "N2", "Name": "Leaf", "External_Id__c": "EXT-N2", "Parent__c": "N1"},
		},
	})
	target := newUpsertTarget()
	engine, _, _ := engineFixture(source, target.client(schemas), schemas)

	// One record per batch, so the child's parent id only resolves if later
	// batches see the ids loaded by earlier ones.
	project := testProject(domain.MigrationOptions{
		BatchSize:             1,
		PreserveRelationships: true,
	}, "Node__c")

	result := engine.ExecuteMigration(context.Background(), project)
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	nodes := target.upserted["Node__c"]
	if len(nodes) != 2 {
		t.Fatalf("upserts = %d, want 2", len(nodes))
	}
	if ref, _ := nodes[1]["Parent__c"].(string); ref != "T-EXT-N1" {
		t.Fatalf("child parent reference = %q, want T-EXT-N1", ref)
	}
}

func TestExecuteMigrationSecondRunMarksExistingRecords(t *testing.T) {
	schemas := migrationSchemas()
	data := map[string][]map[string]any{
		"Parent__c": {
			{"Id": "P1", "Name": "Parent One", "External_Id__c": "EXT-P1"},
			{"Id": "P2", "Name": "Parent Two", "External_Id__c": "EXT-P2"},
		},
	}
	target := newUpsertTarget()

	runOnce := func() (domain.MigrationResult, *memorySessionRepo) {
		engine, _, repo := engineFixture(multiClient(data), target.client(schemas), schemas)
		result := engine.ExecuteMigration(context.Background(), testProject(domain.MigrationOptions{}, "Parent__c"))
		return result, repo
	}

	first, firstRepo := runOnce()
	if !first.Success {
		t.Fatalf("first run = %+v, want success", first)
	}
	firstRecords, _ := firstRepo.ListRecords(context.Background(), first.SessionIDs[0])
	for _, record := range firstRecords {
		if record.AlreadyExisted {
			t.Fatalf("first run record %s wrongly marked as existing", record.SourceRecordID)
		}
	}

	second, secondRepo := runOnce()
	if !second.Success {
		t.Fatalf("re-running an upsert migration must succeed: %+v", second)
	}
	secondRecords, _ := secondRepo.ListRecords(context.Background(), second.SessionIDs[0])
	if len(secondRecords) != 2 {
		t.Fatalf("second run records = %d, want 2", len(secondRecords))
	}
	for _, record := range secondRecords {
		if record.Status != domain.RecordStatusSuccess {
			t.Fatalf("second run record %s = %s, want SUCCESS", record.SourceRecordID, record.Status)
		}
		if !record.AlreadyExisted {
			t.Fatalf("second run record %s not reported as already existing", record.SourceRecordID)
		}
	}
}

func TestExecuteMigrationCycleFailsBeforeExtraction(t *testing.T) {
	schemas := map[string]domain.ObjectSchema{
		"A__c": {ObjectType: "A__c", Fields: []domain.FieldDescription{refField("B__c", "B__c")}},
		"B__c": {ObjectType: "B__c", Fields: []domain.FieldDescription{refField("A__c", "A__c")}},
	}
	source := multiClient(nil)
	target := newUpsertTarget()
	engine, _, repo := engineFixture(source, target.client(schemas), schemas)

	project := testProject(domain.MigrationOptions{}, "A__c", "B__c")
	result := engine.ExecuteMigration(context.Background(), project)

	if result.Success {
		t.Fatal("cycle must fail the run")
	}
	if len(result.Errors) == 0 {
		t.Fatal("want a structured error naming the cycle")
	}
	if len(result.SessionIDs) != 0 {
		t.Fatal("configuration errors must abort before any session is created")
	}
	if len(repo.sessions) != 0 {
		t.Fatal("no sessions may be persisted for an aborted configuration")
	}
}

func TestExecuteMigrationStopsAfterFailedObjectType(t *testing.T) {
	schemas := migrationSchemas()
	source := multiClient(map[string][]map[string]any{
		"Parent__c": {{"Id": "P1", "Name": "Parent", "External_Id__c": "EXT-P1"}},
		"Child__c":  {{"Id": "C1", "Name": "Child", "External_Id__c": "EXT-C1", "Parent__c": "P1"}},
	})
	target := &fakeClient{
		describeFn: func(ctx context.Context, objectType string) (domain.ObjectSchema, error) {
			return schemas[objectType], nil
		},
		upsertFn: func(ctx context.Context, objectType string, record map[string]any, ext string) (remote.SaveResult, error) {
			return remote.SaveResult{}, &remote.Error{Code: "INVALID_FIELD", Message: "rejected"}
		},
	}
	engine, tracker, _ := engineFixture(source, target, schemas)

	project := testProject(domain.MigrationOptions{}, "Parent__c", "Child__c")
	result := engine.ExecuteMigration(context.Background(), project)

	if result.Success {
		t.Fatal("run with failures must not report success")
	}
	if len(result.SessionIDs) != 1 {
		t.Fatalf("sessions = %d, want the run to stop after the first failed type", len(result.SessionIDs))
	}
	session, _ := tracker.Session(result.SessionIDs[0])
	if session.Status != domain.SessionStatusFailed {
		t.Fatalf("session status = %s, want FAILED", session.Status)
	}
}

func TestExecuteMigrationPartialSuccessContinues(t *testing.T) {
	schemas := migrationSchemas()
	source := multiClient(map[string][]map[string]any{
		"Parent__c": {{"Id": "P1", "Name": "Parent", "External_Id__c": "EXT-P1"}},
		"Child__c":  {{"Id": "C1", "Name": "Child", "External_Id__c": "EXT-C1", "Parent__c": "P1"}},
	})
	target := &fakeClient{
		describeFn: func(ctx context.Context, objectType string) (domain.ObjectSchema, error) {
			return schemas[objectType], nil
		},
		upsertFn: func(ctx context.Context, objectType string, record map[string]any, ext string) (remote.SaveResult, error) {
			if objectType == "Parent__c" {
				return remote.SaveResult{}, &remote.Error{Code: "INVALID_FIELD", Message: "rejected"}
			}
			key, _ := record[ext].(string)
			return remote.SaveResult{ID: "T-" + key, Success: true}, nil
		},
	}
	engine, tracker, _ := engineFixture(source, target, schemas)

	project := testProject(domain.MigrationOptions{AllowPartialSuccess: true}, "Parent__c", "Child__c")
	result := engine.ExecuteMigration(context.Background(), project)

	if result.Success {
		t.Fatal("run with failures must not report success even under partial success")
	}
	if len(result.SessionIDs) != 2 {
		t.Fatalf("sessions = %d, want both types attempted", len(result.SessionIDs))
	}
	second, _ := tracker.Session(result.SessionIDs[1])
	if second.Status != domain.SessionStatusCompleted {
		t.Fatalf("second session = %s, want COMPLETED despite the first failing", second.Status)
	}
}

func TestExecuteMigrationCancellation(t *testing.T) {
	schemas := migrationSchemas()
	source := multiClient(map[string][]map[string]any{
		"Parent__c": {
			{"Id": "P1", "Name": "Parent One", "External_Id__c": "EXT-P1"},
			{"Id": "P2", "Name": "Parent Two", "External_Id__c": "EXT-P2"},
		},
	})
	target := newUpsertTarget()

	project := testProject(domain.MigrationOptions{BatchSize: 1}, "Parent__c")

	var engine *Engine
	var tracker *Tracker
	engine, tracker, _ = engineFixture(source, target.client(schemas), schemas,
		WithHook("request-cancel", func(ctx context.Context, objectType string) error {
			engine.Cancel(project.ID)
			return nil
		}))
	engine.registry.Register(domain.Template{
		ObjectType: "Parent__c",
		Operation:  domain.LoadOperationUpsert,
		Hooks:      map[domain.HookPoint]string{domain.HookAfterLoad: "request-cancel"},
	})

	result := engine.ExecuteMigration(context.Background(), project)
	if result.Success {
		t.Fatal("cancelled run must not report success")
	}
	session, _ := tracker.Session(result.SessionIDs[0])
	if session.Status != domain.SessionStatusCancelled {
		t.Fatalf("session status = %s, want CANCELLED", session.Status)
	}
	// The in-flight batch finished before the cancel point was honoured.
	if len(target.upserted["Parent__c"]) != 1 {
		t.Fatalf("upserts = %d, want exactly the first batch", len(target.upserted["Parent__c"]))
	}
}

func TestExecuteMigrationCancelFinishesInFlightBatch(t *testing.T) {
	schemas := migrationSchemas()
	source := multiClient(map[string][]map[string]any{
		"Parent__c": {
			{"Id": "P1", "Name": "Parent One", "External_Id__c": "EXT-P1"},
			{"Id": "P2", "Name": "Parent Two", "External_Id__c": "EXT-P2"},
		},
	})
	project := testProject(domain.MigrationOptions{BatchSize: 2}, "Parent__c")

	var engine *Engine
	var writeCtxErrs []error
	target := &fakeClient{
		describeFn: func(ctx context.Context, objectType string) (domain.ObjectSchema, error) {
			return schemas[objectType], nil
		},
		upsertFn: func(ctx context.Context, objectType string, record map[string]any, ext string) (remote.SaveResult, error) {
			// Cancellation lands while the batch is mid-write.
			engine.Cancel(project.ID)
			writeCtxErrs = append(writeCtxErrs, ctx.Err())
			key, _ := record[ext].(string)
			return remote.SaveResult{ID: "T-" + key, Success: true, Created: true}, nil
		},
	}
	var tracker *Tracker
	engine, tracker, _ = engineFixture(source, target, schemas)

	result := engine.ExecuteMigration(context.Background(), project)
	if result.Success {
		t.Fatal("cancelled run must not report success")
	}
	session, _ := tracker.Session(result.SessionIDs[0])
	if session.Status != domain.SessionStatusCancelled {
		t.Fatalf("session status = %s, want CANCELLED", session.Status)
	}
	// The whole in-flight batch finishes even though the cancel arrived on
	// its first write.
	if session.SuccessfulRecords != 2 || session.FailedRecords != 0 {
		t.Fatalf("counters = %d/%d, want 2 successes and no spurious failures",
			session.SuccessfulRecords, session.FailedRecords)
	}
	for _, err := range writeCtxErrs {
		if err != nil {
			t.Fatal("write context must stay live after a cancel request")
		}
	}
}

func TestExecuteMigrationRejectsConcurrentRun(t *testing.T) {
	schemas := migrationSchemas()
	project := testProject(domain.MigrationOptions{}, "Parent__c")

	release := make(chan struct{})
	started := make(chan struct{})
	source := &fakeClient{
		describeFn: func(ctx context.Context, objectType string) (domain.ObjectSchema, error) {
			close(started)
			<-release
			return schemas[objectType], nil
		},
	}
	target := newUpsertTarget()
	engine, _, _ := engineFixture(source, target.client(schemas), schemas)

	done := make(chan domain.MigrationResult, 1)
	go func() { done <- engine.ExecuteMigration(context.Background(), project) }()
	<-started

	second := engine.ExecuteMigration(context.Background(), project)
	if second.Success || len(second.Errors) == 0 {
		t.Fatalf("second concurrent run = %+v, want rejection", second)
	}

	close(release)
	<-done
}
