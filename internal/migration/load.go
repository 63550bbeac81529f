package migration

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/crossorg/migrator/internal/domain"
	"github.com/crossorg/migrator/internal/remote"
)

// LoadItem is one transformed record ready for the target org, still paired
// with its source record id for outcome tracking.
type LoadItem struct {
	SourceID string
	Record   map[string]any
}

// Loader writes transformed records into the target org, choosing between a
// low-latency per-record path and a high-throughput bulk path by volume.
type Loader struct {
	client        remote.Client
	operation     domain.LoadOperation
	policy        domain.RetryPolicy
	batchSize     int
	bulkThreshold int
	allowPartial  bool

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// LoaderConfig collects the knobs a Loader needs.
type LoaderConfig struct {
	Operation           domain.LoadOperation
	Retry               domain.RetryPolicy
	BatchSize           int
	BulkThreshold       int
	AllowPartialSuccess bool
}

// NewLoader builds a loader for one target client.
func NewLoader(client remote.Client, cfg LoaderConfig) *Loader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.BulkThreshold <= 0 {
		cfg.BulkThreshold = 500
	}
	return &Loader{
		client:        client,
		operation:     cfg.Operation,
		policy:        cfg.Retry,
		batchSize:     cfg.BatchSize,
		bulkThreshold: cfg.BulkThreshold,
		allowPartial:  cfg.AllowPartialSuccess,
		sleep:         time.Sleep,
	}
}

// Load writes the items into objectType. Every record's identity field is
// stamped before the write so repeated runs upsert instead of duplicating:
// the external-id value is the record's business key when present, else the
// source record's own id.
func (l *Loader) Load(ctx context.Context, objectType string, items []LoadItem, externalIDField string) domain.LoadResult {
	result := domain.LoadResult{
		IDMapping: make(map[string]string),
		Created:   make(map[string]bool),
	}
	if len(items) == 0 {
		return result
	}

	for _, item := range items {
		stampIdentity(item, externalIDField)
	}

	if len(items) >= l.bulkThreshold {
		l.bulkLoad(ctx, objectType, items, &result)
		return result
	}
	l.batchLoad(ctx, objectType, items, externalIDField, &result)
	return result
}

// stampIdentity guarantees the identity field carries a durable natural key.
func stampIdentity(item LoadItem, externalIDField string) {
	if externalIDField == "" {
		return
	}
	if v, ok := item.Record[externalIDField].(string); ok && v != "" {
		return
	}
	item.Record[externalIDField] = item.SourceID
}

// batchLoad is the per-record path: fixed-size batches of individual writes.
// A failure marks the rest of its batch failed with the batch-level error;
// without partial success the remaining batches are marked failed too and
// the load stops.
func (l *Loader) batchLoad(ctx context.Context, objectType string, items []LoadItem, externalIDField string, result *domain.LoadResult) {
	batches := chunkItems(items, l.batchSize)
	for batchIndex, batch := range batches {
		batchFailed := false
		for i, item := range batch {
			res, err := l.writeWithRetry(ctx, objectType, item.Record, externalIDField)
			if err != nil {
				l.failBatchTail(batch[i:], batchIndex, err, result)
				batchFailed = true
				break
			}
			result.SuccessCount++
			result.IDMapping[item.SourceID] = res.ID
			result.Created[item.SourceID] = res.Created
		}
		if batchFailed && !l.allowPartial {
			for tailIndex := batchIndex + 1; tailIndex < len(batches); tailIndex++ {
				l.failBatchTail(batches[tailIndex], tailIndex, fmt.Errorf("load aborted by earlier batch failure"), result)
			}
			return
		}
	}
}

// bulkLoad is the high-throughput path: one bulk call per batch-sized chunk,
// with per-record outcomes from the remote API.
func (l *Loader) bulkLoad(ctx context.Context, objectType string, items []LoadItem, result *domain.LoadResult) {
	for batchIndex, batch := range chunkItems(items, l.batchSize) {
		records := make([]map[string]any, len(batch))
		for i, item := range batch {
			records[i] = item.Record
		}

		outcomes, err := l.bulkWithRetry(ctx, objectType, records)
		if err != nil {
			l.failBatchTail(batch, batchIndex, err, result)
			if !l.allowPartial {
				return
			}
			continue
		}

		for i, item := range batch {
			if i >= len(outcomes) {
				break
			}
			outcome := outcomes[i]
			if outcome.Success {
				result.SuccessCount++
				result.IDMapping[item.SourceID] = outcome.ID
				result.Created[item.SourceID] = outcome.Created
				continue
			}
			result.ErrorCount++
			result.Errors = append(result.Errors, domain.LoadError{
				BatchIndex: batchIndex,
				RecordID:   item.SourceID,
				Message:    outcome.Message,
				Code:       outcome.Code,
				Fields:     outcome.Fields,
			})
		}
	}
}

// failBatchTail marks every remaining item of a batch failed with the
// batch-level error.
func (l *Loader) failBatchTail(items []LoadItem, batchIndex int, err error, result *domain.LoadResult) {
	for _, item := range items {
		result.ErrorCount++
		result.Errors = append(result.Errors, domain.LoadError{
			BatchIndex: batchIndex,
			RecordID:   item.SourceID,
			Message:    err.Error(),
			Code:       remote.ErrorCode(err),
			Fields:     remote.ErrorFields(err),
		})
	}
}

// writeWithRetry performs one per-record write, retrying only the error codes
// the template declares retryable, with a fixed wait between attempts.
func (l *Loader) writeWithRetry(ctx context.Context, objectType string, record map[string]any, externalIDField string) (remote.SaveResult, error) {
	var lastErr error
	for attempt := 0; attempt <= l.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[LOAD] retrying %s write (attempt %d/%d)", objectType, attempt, l.policy.MaxRetries)
			l.sleep(l.policy.Wait)
		}

		res, err := l.write(ctx, objectType, record, externalIDField)
		if err == nil && res.Success {
			return res, nil
		}
		if err == nil {
			err = &remote.Error{Code: res.Code, Message: res.Message, Fields: res.Fields}
		}
		lastErr = err
		if !l.policy.ShouldRetry(remote.ErrorCode(err)) {
			return remote.SaveResult{}, err
		}
	}
	// Retries exhausted: demoted to a normal per-record failure.
	return remote.SaveResult{}, lastErr
}

func (l *Loader) write(ctx context.Context, objectType string, record map[string]any, externalIDField string) (remote.SaveResult, error) {
	if l.operation == domain.LoadOperationUpsert && externalIDField != "" {
		return l.client.Upsert(ctx, objectType, record, externalIDField)
	}
	return l.client.Create(ctx, objectType, record)
}

func (l *Loader) bulkWithRetry(ctx context.Context, objectType string, records []map[string]any) ([]remote.SaveResult, error) {
	var lastErr error
	for attempt := 0; attempt <= l.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[LOAD] retrying %s bulk insert (attempt %d/%d)", objectType, attempt, l.policy.MaxRetries)
			l.sleep(l.policy.Wait)
		}

		outcomes, err := l.client.BulkInsert(ctx, objectType, records)
		if err == nil {
			return outcomes, nil
		}
		lastErr = err
		if !l.policy.ShouldRetry(remote.ErrorCode(err)) {
			return nil, err
		}
	}
	return nil, lastErr
}

func chunkItems(items []LoadItem, size int) [][]LoadItem {
	var chunks [][]LoadItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
