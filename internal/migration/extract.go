package migration

import (
	"context"
	"fmt"

	"github.com/crossorg/migrator/internal/domain"
	"github.com/crossorg/migrator/internal/remote"
)

// Extractor pulls records for one object type from the source org.
type Extractor struct {
	client     remote.Client
	objectType string
	query      domain.QueryShape
	batchSize  int
}

// NewExtractor builds an extractor. The field list always includes Id so the
// engine can track source record identity.
func NewExtractor(client remote.Client, objectType string, query domain.QueryShape, batchSize int) *Extractor {
	return &Extractor{
		client:     client,
		objectType: objectType,
		query:      query,
		batchSize:  batchSize,
	}
}

func (e *Extractor) fields() []string {
	fields := e.query.Fields
	if len(fields) == 0 {
		fields = []string{"FIELDS(ALL)"}
	}
	for _, f := range fields {
		if f == "Id" {
			return fields
		}
	}
	return append([]string{"Id"}, fields...)
}

// Count runs the COUNT() query used for progress totals before batch
// iteration begins.
func (e *Extractor) Count(ctx context.Context) (int, error) {
	result, err := e.client.Query(ctx, remote.CountQuery(e.objectType, e.query.Where))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s records: %w", e.objectType, err)
	}
	return result.TotalSize, nil
}

// BatchIterator yields successive record batches via offset paging. It is a
// finite, non-restartable sequence: iteration halts after the first batch
// shorter than the batch size, without issuing a further query.
type BatchIterator struct {
	extractor *Extractor
	offset    int
	done      bool
}

// Batches starts bounded-batch streaming from offset zero.
func (e *Extractor) Batches() *BatchIterator {
	return &BatchIterator{extractor: e}
}

// Next returns the next batch, or nil once the sequence is exhausted.
func (it *BatchIterator) Next(ctx context.Context) ([]map[string]any, error) {
	if it.done {
		return nil, nil
	}
	e := it.extractor
	soql := remote.SelectQuery(e.fields(), e.objectType, e.query.Where, e.query.OrderBy, e.batchSize, it.offset)
	result, err := e.client.Query(ctx, soql)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s batch at offset %d: %w", e.objectType, it.offset, err)
	}
	if len(result.Records) < e.batchSize {
		it.done = true
	}
	it.offset += len(result.Records)
	if len(result.Records) == 0 {
		return nil, nil
	}
	return result.Records, nil
}

// RelationshipInfo describes, for one reference field, the referenced object
// type and the distinct referenced ids actually present in a record set.
type RelationshipInfo struct {
	Field            string
	ReferencedObject string
	IDs              []string
}

// ScanRelationships inspects the configured reference fields of a record set
// and collects the distinct ids they point at, preserving first-seen order.
func ScanRelationships(records []map[string]any, schema domain.ObjectSchema) []RelationshipInfo {
	var infos []RelationshipInfo
	for _, field := range schema.ReferenceFields() {
		if len(field.ReferenceTo) == 0 {
			continue
		}
		seen := make(map[string]bool)
		var ids []string
		for _, record := range records {
			value, ok := record[field.Name].(string)
			if !ok || value == "" || seen[value] {
				continue
			}
			seen[value] = true
			ids = append(ids, value)
		}
		if len(ids) == 0 {
			continue
		}
		infos = append(infos, RelationshipInfo{
			Field:            field.Name,
			ReferencedObject: field.ReferenceTo[0],
			IDs:              ids,
		})
	}
	return infos
}

// ResolveReferences fetches minimal records for every referenced id, chunking
// id lists to the remote IN-clause limit. The result maps reference field
// name to referenced id to record.
func (e *Extractor) ResolveReferences(ctx context.Context, infos []RelationshipInfo) (map[string]map[string]map[string]any, error) {
	resolved := make(map[string]map[string]map[string]any, len(infos))
	for _, info := range infos {
		byID := make(map[string]map[string]any, len(info.IDs))
		for _, chunk := range remote.ChunkIDs(info.IDs, remote.INClauseLimit) {
			soql := remote.SelectQuery([]string{"Id", "Name"}, info.ReferencedObject, remote.InClause("Id", chunk), "", 0, 0)
			result, err := e.client.Query(ctx, soql)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s references for field %s: %w", info.ReferencedObject, info.Field, err)
			}
			for _, record := range result.Records {
				id, _ := record["Id"].(string)
				if id != "" {
					byID[id] = record
				}
			}
		}
		resolved[info.Field] = byID
	}
	return resolved, nil
}

// ExtractAll performs a full scan of the object type and, when the schema is
// supplied, resolves its relationship graph as well.
func (e *Extractor) ExtractAll(ctx context.Context, schema *domain.ObjectSchema) ([]map[string]any, map[string]map[string]map[string]any, error) {
	var all []map[string]any
	it := e.Batches()
	for {
		batch, err := it.Next(ctx)
		if err != nil {
			return nil, nil, err
		}
		if batch == nil {
			break
		}
		all = append(all, batch...)
	}
	if schema == nil {
		return all, nil, nil
	}
	infos := ScanRelationships(all, *schema)
	resolved, err := e.ResolveReferences(ctx, infos)
	if err != nil {
		return nil, nil, err
	}
	return all, resolved, nil
}
