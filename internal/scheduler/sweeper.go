package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/kassa/internal/clock"
	"github.com/smallbiznis/kassa/internal/config"
	"github.com/smallbiznis/kassa/internal/events"
	obsmetrics "github.com/smallbiznis/kassa/internal/observability/metrics"
	synclogrepo "github.com/smallbiznis/kassa/internal/synclog/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobLedgerSweep  = "ledger_sweep"
	jobOutboxSweep  = "outbox_sweep"
	sweepJobTimeout = 5 * time.Minute
	hoursPerDay     = 24
)

// Sweeper removes expired idempotency ledger rows and delivered
// outbox rows on an interval. A swept operation ID can be resubmitted
// as new, which is the accepted tradeoff of TTL-based dedupe:
// terminals are expected to drain their queues well inside the
// retention window.
type Sweeper struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	policy  *config.SyncPolicyHolder
	ledger  synclogrepo.Repository
	metrics *obsmetrics.Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Policy  *config.SyncPolicyHolder
	Ledger  synclogrepo.Repository
	Metrics *obsmetrics.Metrics
}

func NewSweeper(p Params) *Sweeper {
	return &Sweeper{
		db:      p.DB,
		log:     p.Log.Named("scheduler.sweeper"),
		clock:   p.Clock,
		policy:  p.Policy,
		ledger:  p.Ledger,
		metrics: p.Metrics,
		done:    make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.loop(ctx)
}

func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)
	for {
		interval := time.Duration(s.policy.Get().SweepIntervalMin) * time.Minute
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Warn("retention sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce deletes expired ledger rows and stale delivered outbox
// rows in batches until both tables are drained or the job times out.
// It reports the total number of rows removed.
func (s *Sweeper) SweepOnce(parent context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(parent, sweepJobTimeout)
	defer cancel()

	policy := s.policy.Get()
	now := s.clock.Now()

	ledgerRemoved, err := s.runJob(ctx, jobLedgerSweep, policy.SweepBatchSize, func(batch int) (int64, error) {
		return s.ledger.DeleteExpired(ctx, s.db, now, batch)
	})
	if err != nil {
		return ledgerRemoved, err
	}
	s.metrics.RecordLedgerSweep(ctx, ledgerRemoved)
	if ledgerRemoved > 0 {
		s.log.Info("ledger sweep completed",
			zap.Int64("rows_removed", ledgerRemoved),
			zap.Time("cutoff", now),
		)
	}

	outboxCutoff := now.Add(-time.Duration(policy.RetentionDays) * hoursPerDay * time.Hour)
	outboxRemoved, err := s.runJob(ctx, jobOutboxSweep, policy.SweepBatchSize, func(batch int) (int64, error) {
		return events.PurgeDelivered(ctx, s.db, outboxCutoff, batch)
	})
	if err != nil {
		return ledgerRemoved + outboxRemoved, err
	}
	if outboxRemoved > 0 {
		s.log.Info("outbox sweep completed",
			zap.Int64("rows_removed", outboxRemoved),
			zap.Time("cutoff", outboxCutoff),
		)
	}

	return ledgerRemoved + outboxRemoved, nil
}

func (s *Sweeper) runJob(ctx context.Context, job string, batchSize int, deleteBatch func(int) (int64, error)) (int64, error) {
	start := time.Now()
	sweepMetrics := obsmetrics.Sweeper()
	sweepMetrics.IncJobRun(job)

	var total int64
	for {
		removed, err := deleteBatch(batchSize)
		if err != nil {
			sweepMetrics.ObserveJobDuration(job, time.Since(start))
			sweepMetrics.IncJobError(job, classifySweepError(err))
			return total, err
		}
		total += removed
		if removed < int64(batchSize) {
			break
		}
	}

	sweepMetrics.ObserveJobDuration(job, time.Since(start))
	sweepMetrics.AddRowsRemoved(job, total)
	return total, nil
}

func classifySweepError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return obsmetrics.SweepErrorTypeDeadlineExceeded
	}
	return obsmetrics.SweepErrorTypeDB
}
