package remote

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/crossorg/migrator/internal/domain"
)

// LimitedClient funnels every call through a per-organisation token bucket.
// A saturated bucket defers the call until a token is available (or the
// context is cancelled); it never fails the call outright.
type LimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewLimitedClient wraps a client with a requests-per-second gate.
func NewLimitedClient(inner Client, requestsPerSecond float64, burst int) *LimitedClient {
	if burst < 1 {
		burst = 1
	}
	return &LimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (c *LimitedClient) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

func (c *LimitedClient) Query(ctx context.Context, soql string) (QueryResult, error) {
	if err := c.wait(ctx); err != nil {
		return QueryResult{}, err
	}
	return c.inner.Query(ctx, soql)
}

func (c *LimitedClient) Describe(ctx context.Context, objectType string) (domain.ObjectSchema, error) {
	if err := c.wait(ctx); err != nil {
		return domain.ObjectSchema{}, err
	}
	return c.inner.Describe(ctx, objectType)
}

func (c *LimitedClient) Create(ctx context.Context, objectType string, record map[string]any) (SaveResult, error) {
	if err := c.wait(ctx); err != nil {
		return SaveResult{}, err
	}
	return c.inner.Create(ctx, objectType, record)
}

func (c *LimitedClient) Upsert(ctx context.Context, objectType string, record map[string]any, externalIDField string) (SaveResult, error) {
	if err := c.wait(ctx); err != nil {
		return SaveResult{}, err
	}
	return c.inner.Upsert(ctx, objectType, record, externalIDField)
}

func (c *LimitedClient) BulkInsert(ctx context.Context, objectType string, records []map[string]any) ([]SaveResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.BulkInsert(ctx, objectType, records)
}
