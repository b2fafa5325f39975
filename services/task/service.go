package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"licensing-controlplane/pkg/config"
	applog "licensing-controlplane/pkg/logger"
	pkgtask "licensing-controlplane/pkg/task"
	"licensing-controlplane/pkg/taskname"
	"licensing-controlplane/services/license"
	"licensing-controlplane/services/notification"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrUnknownTask = errors.New("unknown task")

type Sweeper interface {
	ExpiredSweep(ctx context.Context) (*notification.SweepResult, error)
	PendingSweep(ctx context.Context) (*notification.SweepResult, error)
}

type StatusRefresher interface {
	RefreshStatuses(ctx context.Context) (*license.RefreshResult, error)
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	config    *config.Config
	enqueuer  pkgtask.Enqueuer
	sweeper   Sweeper
	refresher StatusRefresher
	clock     func() time.Time
}

type Params struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Config    *config.Config
	Enqueuer  pkgtask.Enqueuer `optional:"true"`
	Sweeper   Sweeper
	Refresher StatusRefresher
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		config:    p.Config,
		enqueuer:  p.Enqueuer,
		sweeper:   p.Sweeper,
		refresher: p.Refresher,
		clock:     time.Now,
	}
}

// Enqueue records a pending run and hands the task to the queue. Tasks carry
// no payload, so the queue's unique key is the task name alone and a second
// enqueue inside the uniqueness window is rejected. Such a run is recorded as
// skipped.
func (s *Service) Enqueue(ctx context.Context, name, trigger string) (*SweepRun, error) {
	if !known(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if s.enqueuer == nil {
		return nil, errors.New("task queue is not configured")
	}

	run := &SweepRun{
		ID:      s.node.Generate().String(),
		Task:    name,
		Trigger: trigger,
		Status:  RunPending,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}

	opts := []asynq.Option{asynq.MaxRetry(0), asynq.Queue("default")}
	if ttl := s.config.Scheduler.UniqueFor; ttl > 0 {
		opts = append(opts, asynq.Unique(ttl))
	}

	info, err := s.enqueuer.Enqueue(ctx, asynq.NewTask(name, nil), opts...)
	if err != nil {
		status := RunFailed
		if errors.Is(err, asynq.ErrDuplicateTask) {
			status = RunSkipped
			zap.L().Info("task already queued, skipping", zap.String("task", name), zap.String("run_id", run.ID))
		}
		s.finish(ctx, run, status, nil, err)
		return run, err
	}

	zap.L().Info("enqueued task",
		zap.String("task", name),
		zap.String("run_id", run.ID),
		zap.String("queue", info.Queue),
	)
	return run, nil
}

// HandleTask is the asynq handler for every license task. It picks up the
// oldest pending run of the task, or records a new one when there is none.
func (s *Service) HandleTask(ctx context.Context, t *asynq.Task) error {
	zap.L().Info("Processing task", zap.String("task", t.Type()))

	run, err := s.claimRun(ctx, t.Type())
	if err != nil {
		return err
	}
	if err := s.execRun(ctx, run); err != nil {
		return err
	}

	zap.L().Info("Finished task", zap.String("task", t.Type()), zap.String("run_id", run.ID))
	return nil
}

// Run executes a task in-process under a fresh run record.
func (s *Service) Run(ctx context.Context, name, trigger string) (*SweepRun, error) {
	if !known(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	now := s.clock()
	run := &SweepRun{
		ID:        s.node.Generate().String(),
		Task:      name,
		Trigger:   trigger,
		Status:    RunRunning,
		StartedAt: &now,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, s.execRun(ctx, run)
}

func (s *Service) execRun(ctx context.Context, run *SweepRun) error {
	zapLog := applog.FromContext(ctx).With(zap.String("task", run.Task), zap.String("run_id", run.ID))

	result, err := s.execute(ctx, run.Task)
	if err != nil {
		zapLog.Error("task failed", zap.Error(err))
		s.finish(ctx, run, RunFailed, result, err)
		return err
	}

	s.finish(ctx, run, RunSuccess, result, nil)
	zapLog.Info("task finished")
	return nil
}

func (s *Service) execute(ctx context.Context, name string) (any, error) {
	switch name {
	case taskname.LicenseStatusRefresh:
		res, err := s.refresher.RefreshStatuses(ctx)
		if res == nil {
			return nil, err
		}
		return res, err
	case taskname.LicenseSweepExpired, taskname.LicenseSweepPending:
		sweep := s.sweeper.ExpiredSweep
		if name == taskname.LicenseSweepPending {
			sweep = s.sweeper.PendingSweep
		}
		res, err := sweep(ctx)
		if res == nil {
			return nil, err
		}
		return res, err
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
}

// claimRun moves the oldest pending run of the task to running.
func (s *Service) claimRun(ctx context.Context, name string) (*SweepRun, error) {
	now := s.clock()
	db := s.db.WithContext(ctx)

	var run SweepRun
	err := db.Where("task = ? AND status = ?", name, RunPending).
		Order("created_at ASC").Order("id ASC").
		First(&run).Error
	switch {
	case err == nil:
		res := db.Model(&SweepRun{}).
			Where("id = ? AND status = ?", run.ID, RunPending).
			Updates(map[string]any{"status": RunRunning, "started_at": now})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			run.Status = RunRunning
			run.StartedAt = &now
			return &run, nil
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	zap.L().Warn("no pending run for task, recording a new one", zap.String("task", name))
	fresh := &SweepRun{
		ID:        s.node.Generate().String(),
		Task:      name,
		Trigger:   "queue",
		Status:    RunRunning,
		StartedAt: &now,
	}
	if err := db.Create(fresh).Error; err != nil {
		return nil, err
	}
	return fresh, nil
}

func (s *Service) finish(ctx context.Context, run *SweepRun, status RunStatus, result any, cause error) {
	now := s.clock()
	updates := map[string]any{
		"status":       status,
		"completed_at": now,
	}
	if cause != nil {
		updates["error_msg"] = cause.Error()
	}
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			updates["metadata"] = datatypes.JSON(b)
		}
	}

	if err := s.db.WithContext(ctx).Model(&SweepRun{}).Where("id = ?", run.ID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to record run result", zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	run.Status = status
	run.CompletedAt = &now
	if cause != nil {
		run.ErrorMsg = cause.Error()
	}
	if b, ok := updates["metadata"].(datatypes.JSON); ok {
		run.Metadata = b
	}
}

// Runs lists the most recent runs of a task, newest first.
func (s *Service) Runs(ctx context.Context, name string, limit int) ([]*SweepRun, error) {
	var runs []*SweepRun
	q := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if name != "" {
		q = q.Where("task = ?", name)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	return runs, q.Find(&runs).Error
}

func known(name string) bool {
	return slices.Contains(taskname.All, name)
}
