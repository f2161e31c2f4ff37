package ctxdex

import (
	"context"
	"fmt"
	"time"

	dombatch "github.com/kailas-cloud/ctxdex/internal/domain/batch"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
)

// Upsert embeds and stores a record, replacing any record with the same id.
// Returns true when the record was created.
func (c *Client) Upsert(ctx context.Context, tenant string, rec Context) (_ bool, err error) {
	start := time.Now()
	defer func() { c.obs.observe("upsert", start, err, "tenant", tenant, "id", rec.ID) }()

	created, err := c.ingestSvc.Upsert(ctx, rec.toAttrs(tenant))
	if err != nil {
		return false, fmt.Errorf("upsert %s: %w", rec.ID, err)
	}
	return created, nil
}

// Load upserts records one by one and reports each outcome in input order.
// A failed record does not stop the load.
func (c *Client) Load(ctx context.Context, tenant string, recs []Context) []LoadResult {
	start := time.Now()

	items := make([]knowledge.Attrs, len(recs))
	for i := range recs {
		items[i] = recs[i].toAttrs(tenant)
	}

	results := c.ingestSvc.Load(ctx, items)
	out := make([]LoadResult, len(results))
	failed := 0
	for i, r := range results {
		out[i] = LoadResult{ID: r.ID(), Created: r.OK() && r.Status() == dombatch.StatusCreated, Err: r.Err()}
		if !r.OK() {
			failed++
		}
	}

	var err error
	if failed > 0 {
		err = fmt.Errorf("%d of %d records failed", failed, len(recs))
	}
	c.obs.observe("load", start, err, "tenant", tenant, "records", len(recs))
	return out
}

// Get returns a stored record.
func (c *Client) Get(ctx context.Context, tenant, id string) (_ Context, err error) {
	start := time.Now()
	defer func() { c.obs.observe("get", start, err, "tenant", tenant, "id", id) }()

	rec, err := c.ingestSvc.Get(ctx, tenant, id)
	if err != nil {
		return Context{}, fmt.Errorf("get %s: %w", id, err)
	}
	return contextFromDomain(&rec), nil
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, tenant, id string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("delete", start, err, "tenant", tenant, "id", id) }()

	if err := c.ingestSvc.Delete(ctx, tenant, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}
