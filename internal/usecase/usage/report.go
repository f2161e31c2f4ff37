package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/ctxdex/internal/domain"
	domusage "github.com/kailas-cloud/ctxdex/internal/domain/usage"
)

// Report is a tenant usage summary plus the shared embedding budget.
type Report struct {
	Summary domusage.Summary
	// Budget is nil when no token limits are configured.
	Budget *domusage.Budget
}

// Service handles usage reporting.
type Service struct {
	summaries SummaryReader
	br        BudgetReader
	now       func() time.Time
}

// New creates a Service. br can be nil (unlimited mode).
func New(summaries SummaryReader, br BudgetReader) *Service {
	return &Service{summaries: summaries, br: br, now: time.Now}
}

// GetReport builds a usage report of tenantID for the given period.
func (s *Service) GetReport(ctx context.Context, tenantID string, period domusage.Period) (Report, error) {
	if tenantID == "" {
		return Report{}, domain.ErrTenantRequired
	}
	if !period.IsValid() {
		return Report{}, fmt.Errorf("%w: %q", domain.ErrInvalidPeriod, period)
	}

	now := s.now().UTC()
	sum, err := s.summaries.Summarize(ctx, tenantID, period.Start(now), now)
	if err != nil {
		return Report{}, fmt.Errorf("summarize usage: %w", err)
	}
	sum.Period = period

	r := Report{Summary: sum}
	if s.br != nil {
		b := s.br.Snapshot(period)
		if b.TokensLimit > 0 {
			r.Budget = &b
		}
	}
	return r, nil
}
