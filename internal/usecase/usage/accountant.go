package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	domusage "github.com/kailas-cloud/ctxdex/internal/domain/usage"
	"github.com/kailas-cloud/ctxdex/internal/metrics"
)

// Defaults for the dispatch pool.
const (
	DefaultPoolSize     = 4
	DefaultWriteTimeout = 2 * time.Second
)

// Accountant hands usage records to its sinks on a bounded worker pool.
// Record never blocks: when every worker is busy the record is dropped and counted.
type Accountant struct {
	pool         *ants.Pool
	sinks        []Sink
	logger       *zap.Logger
	writeTimeout time.Duration
	newID        func() string
	now          func() time.Time

	// mu orders wg.Add in Record before wg.Wait in Close.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// AccountantOption configures an Accountant.
type AccountantOption func(*Accountant)

// WithLogger sets the logger for sink failures.
func WithLogger(l *zap.Logger) AccountantOption {
	return func(a *Accountant) { a.logger = l }
}

// WithWriteTimeout bounds a single sink write.
func WithWriteTimeout(d time.Duration) AccountantOption {
	return func(a *Accountant) {
		if d > 0 {
			a.writeTimeout = d
		}
	}
}

// NewAccountant creates an Accountant with poolSize workers (DefaultPoolSize when ≤ 0).
func NewAccountant(poolSize int, sinks []Sink, opts ...AccountantOption) (*Accountant, error) {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("usage pool: %w", err)
	}

	a := &Accountant{
		pool:         pool,
		sinks:        sinks,
		logger:       zap.NewNop(),
		writeTimeout: DefaultWriteTimeout,
		newID:        uuid.NewString,
		now:          time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Record assigns an id and dispatches rec to every sink. Returns "" when the record was dropped.
func (a *Accountant) Record(rec domusage.Record) string {
	if rec.ID == "" {
		rec.ID = a.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = a.now().UTC()
	}

	err := a.submit(rec)
	if err != nil {
		status := "dropped"
		if errors.Is(err, ants.ErrPoolClosed) {
			status = "closed"
		}
		metrics.UsageRecordsTotal.WithLabelValues("pool", status).Inc()
		a.logger.Warn("Usage record dropped",
			zap.String("usage_id", rec.ID),
			zap.String("operation", rec.Operation),
			zap.Error(err),
		)
		return ""
	}
	return rec.ID
}

func (a *Accountant) submit(rec domusage.Record) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ants.ErrPoolClosed
	}

	a.wg.Add(1)
	err := a.pool.Submit(func() {
		defer a.wg.Done()
		a.write(rec)
	})
	if err != nil {
		a.wg.Done()
		return err //nolint:wrapcheck // matched with errors.Is by Record
	}
	return nil
}

func (a *Accountant) write(rec domusage.Record) {
	for _, s := range a.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
		err := s.Write(ctx, rec)
		cancel()

		if err != nil {
			metrics.UsageRecordsTotal.WithLabelValues(s.Name(), "error").Inc()
			a.logger.Warn("Usage sink write failed",
				zap.String("sink", s.Name()),
				zap.String("usage_id", rec.ID),
				zap.Error(err),
			)
			continue
		}
		metrics.UsageRecordsTotal.WithLabelValues(s.Name(), "ok").Inc()
	}
}

// Close waits for in-flight records up to ctx's deadline, then releases the pool.
func (a *Accountant) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("drain usage pool: %w", ctx.Err())
	}
	a.pool.Release()
	return err
}

// LogSink writes every record as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(l *zap.Logger) *LogSink {
	return &LogSink{logger: l}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Write implements Sink.
func (s *LogSink) Write(_ context.Context, rec domusage.Record) error {
	s.logger.Info("Embedding usage",
		zap.String("usage_id", rec.ID),
		zap.String("operation", rec.Operation),
		zap.String("tenant_id", rec.TenantID),
		zap.String("context_id", rec.ContextID),
		zap.String("provider", rec.Provider),
		zap.String("model", rec.Model),
		zap.Int("tokens", rec.Tokens.Total),
		zap.Float64("cost", rec.Cost.Amount),
		zap.String("currency", rec.Cost.Currency),
		zap.Bool("fallback", rec.Fallback),
		zap.Duration("latency", rec.Latency),
	)
	return nil
}
