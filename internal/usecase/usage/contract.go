package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/ctxdex/internal/domain/usage"
)

// Sink persists usage records. Write runs on a pool worker, never on the request path.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec domusage.Record) error
}

// SummaryReader aggregates stored records of one tenant.
type SummaryReader interface {
	Summarize(ctx context.Context, tenantID string, from, to time.Time) (domusage.Summary, error)
}

// BudgetReader provides read-only access to token budget state.
type BudgetReader interface {
	Snapshot(period domusage.Period) domusage.Budget
}
