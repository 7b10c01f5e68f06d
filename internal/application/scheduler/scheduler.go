// Package scheduler runs quiet periodic drains so that work left behind by a
// missed trigger is eventually picked up.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/syncengine"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
)

// Syncer is the part of the sync engine the scheduler drives.
type Syncer interface {
	SyncWithTrigger(ctx context.Context, showToast bool, trigger string) syncengine.DrainResult
}

// Scheduler fires a drain on a cron schedule. Spec strings use the standard
// five-field syntax or descriptors such as "@every 30s".
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	syncer   Syncer
	logger   *logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	runs    int
	cancel  context.CancelFunc
}

// New parses spec and creates a stopped scheduler.
func New(spec string, syncer Syncer, logger *logging.Logger) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, domainErrors.NewError(domainErrors.CodeConfiguration,
			fmt.Sprintf("invalid sync schedule %q", spec), err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Scheduler{
		spec:     spec,
		schedule: schedule,
		syncer:   syncer,
		logger:   logger.With("component", "scheduler"),
	}, nil
}

// Start begins firing drains. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s.entryID = s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.run(ctx) }))
	s.cron.Start()

	s.logger.Info("periodic sync scheduled", "schedule", s.spec, "next_run", s.schedule.Next(time.Now()))
}

// Stop halts the schedule and waits for a running drain to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
}

// Next returns the next scheduled run, or the zero time when stopped.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Runs returns how many times the schedule has fired.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *Scheduler) run(ctx context.Context) {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()

	res := s.syncer.SyncWithTrigger(ctx, false, syncengine.TriggerPeriodic)
	if res.Skipped != syncengine.SkipNone {
		s.logger.Debug("periodic sync skipped", "reason", res.Skipped)
		return
	}
	if res.Attempted > 0 {
		s.logger.Info("periodic sync finished",
			"succeeded", res.Succeeded,
			"failed", res.Failed,
			"remaining", res.Remaining,
		)
	}
}
