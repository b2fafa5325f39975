package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/featureflags"
	"licensing-controlplane/pkg/taskname"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type entry struct {
	task     string
	schedule string
}

// Scheduler enqueues the license tasks on their cron schedules. The queue's
// uniqueness window keeps two replicas from running the same sweep twice.
type Scheduler struct {
	service *Service
	flags   featureflags.FeatureFlag
	entries []entry
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

type SchedulerParams struct {
	fx.In
	Config  *config.Config
	Service *Service
	Flags   featureflags.FeatureFlag `optional:"true"`
}

func NewScheduler(p SchedulerParams) (*Scheduler, error) {
	cfg := p.Config
	entries := []entry{
		{task: taskname.LicenseStatusRefresh, schedule: cfg.Scheduler.RefreshCron},
		{task: taskname.LicenseSweepExpired, schedule: cfg.Scheduler.ExpiredCron},
		{task: taskname.LicenseSweepPending, schedule: cfg.Scheduler.PendingCron},
	}

	s := &Scheduler{
		service: p.Service,
		flags:   p.Flags,
		cron:    cron.New(cron.WithParser(parser), cron.WithLocation(cfg.Location())),
	}
	for _, e := range entries {
		if e.schedule == "" {
			zap.L().Info("[Scheduler] task disabled", zap.String("task", e.task))
			continue
		}
		name := e.task
		if _, err := s.cron.AddFunc(e.schedule, func() { s.fire(name) }); err != nil {
			return nil, fmt.Errorf("invalid schedule for %s: %w", e.task, err)
		}
		s.entries = append(s.entries, e)
	}
	return s, nil
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.cron.Start()
	s.running = true

	for _, ce := range s.cron.Entries() {
		zap.L().Info("[Scheduler] next run scheduled", zap.Time("next_run", ce.Next))
	}
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	zap.L().Warn("[Scheduler] stopped")
}

func (s *Scheduler) fire(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if s.flags != nil && !s.flags.Enabled(ctx, name) {
		zap.L().Info("[Scheduler] task switched off by feature flag", zap.String("task", name))
		return
	}

	if _, err := s.service.Enqueue(ctx, name, "schedule"); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue task", zap.String("task", name), zap.Error(err))
	}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			return nil
		},
	})
}
