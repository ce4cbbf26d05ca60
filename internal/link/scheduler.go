package link

import (
	"context"
	"sync"
	"time"

	"github.com/e-CODEX/connector-sub004/internal/logger"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
	"github.com/e-CODEX/connector-sub004/pkg/metrics"
)

// PullScheduler runs the periodic pull loop of PULL-mode partners. Jobs are
// keyed by partner name; scheduling a name again replaces the previous job.
type PullScheduler struct {
	logger logger.Logger

	mu   sync.Mutex
	jobs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

func NewPullScheduler(log logger.Logger) *PullScheduler {
	return &PullScheduler{
		logger: log,
		jobs:   make(map[string]context.CancelFunc),
	}
}

// Schedule starts the partner's pull ticker. An existing job under the same
// name is cancelled first, so re-activation never leaves two tickers running.
func (s *PullScheduler) Schedule(partnerName string, interval time.Duration, pull func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.jobs[partnerName]; ok {
		cancel()
		delete(s.jobs, partnerName)
		metrics.ScheduledPullJobs.Dec()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.jobs[partnerName] = cancel
	metrics.ScheduledPullJobs.Inc()

	s.wg.Add(1)
	go s.run(ctx, partnerName, interval, pull)

	s.logger.Infow("Pull job scheduled",
		"link_partner", partnerName,
		"interval", interval.String(),
	)
}

func (s *PullScheduler) run(ctx context.Context, partnerName string, interval time.Duration, pull func(ctx context.Context) error) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.safePull(ctx, pull); err != nil {
				s.logger.ErrorwCtx(ctx, "Pull run failed",
					"link_partner", partnerName,
					"error", err,
				)
				metrics.IncPullRun(partnerName, "error")
				continue
			}
			metrics.IncPullRun(partnerName, "success")
		}
	}
}

// safePull shields the loop from a panicking plugin pull.
func (s *PullScheduler) safePull(ctx context.Context, pull func(ctx context.Context) error) (err error) {
	defer func() {
		if rErr := pkgerrors.RecoverPanic(recover()); rErr != nil {
			err = rErr
		}
	}()
	return pull(ctx)
}

// Cancel stops the partner's pull job. Unknown names are a no-op.
func (s *PullScheduler) Cancel(partnerName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.jobs[partnerName]; ok {
		cancel()
		delete(s.jobs, partnerName)
		metrics.ScheduledPullJobs.Dec()
		s.logger.Infow("Pull job cancelled", "link_partner", partnerName)
	}
}

// Shutdown cancels every job and waits for the pull goroutines to drain.
func (s *PullScheduler) Shutdown() {
	s.mu.Lock()
	for name, cancel := range s.jobs {
		cancel()
		delete(s.jobs, name)
		metrics.ScheduledPullJobs.Dec()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// JobCount reports the number of scheduled jobs.
func (s *PullScheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
