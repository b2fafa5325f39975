package task

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"licensing-controlplane/pkg/config"
	pkgtask "licensing-controlplane/pkg/task"
	"licensing-controlplane/pkg/taskname"
	"licensing-controlplane/services/license"
	"licensing-controlplane/services/notification"
	"licensing-controlplane/services/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, t)
	return &asynq.TaskInfo{ID: "t1", Queue: "default", Type: t.Type()}, nil
}

type fakeSweeper struct {
	expired, pending int
	err              error
}

func (f *fakeSweeper) ExpiredSweep(context.Context) (*notification.SweepResult, error) {
	f.expired++
	if f.err != nil {
		return nil, f.err
	}
	return &notification.SweepResult{Kind: notification.KindExpired, Found: 3, Sent: 2, Skipped: 1}, nil
}

func (f *fakeSweeper) PendingSweep(context.Context) (*notification.SweepResult, error) {
	f.pending++
	return &notification.SweepResult{Kind: notification.KindPending, Found: 1, Sent: 1}, f.err
}

type fakeRefresher struct{ calls int }

func (f *fakeRefresher) RefreshStatuses(context.Context) (*license.RefreshResult, error) {
	f.calls++
	return &license.RefreshResult{Scanned: 10, Updated: 4}, nil
}

type fixture struct {
	svc       *Service
	db        *gorm.DB
	enqueuer  *fakeEnqueuer
	sweeper   *fakeSweeper
	refresher *fakeRefresher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, &SweepRun{})
	cfg := &config.Config{}
	cfg.Scheduler.UniqueFor = time.Hour

	f := &fixture{db: db, enqueuer: &fakeEnqueuer{}, sweeper: &fakeSweeper{}, refresher: &fakeRefresher{}}
	f.svc = NewService(Params{
		DB:        db,
		Node:      testutil.NewNode(t),
		Config:    cfg,
		Enqueuer:  f.enqueuer,
		Sweeper:   f.sweeper,
		Refresher: f.refresher,
	})
	f.svc.clock = testutil.FixedClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	return f
}

func (f *fixture) load(t *testing.T, id string) *SweepRun {
	t.Helper()
	var run SweepRun
	require.NoError(t, f.db.First(&run, "id = ?", id).Error)
	return &run
}

func TestRun_RecordsResult(t *testing.T) {
	f := newFixture(t)

	run, err := f.svc.Run(context.Background(), taskname.LicenseSweepExpired, "manual")
	require.NoError(t, err)
	require.Equal(t, 1, f.sweeper.expired)

	stored := f.load(t, run.ID)
	require.Equal(t, RunSuccess, stored.Status)
	require.Equal(t, "manual", stored.Trigger)
	require.NotNil(t, stored.StartedAt)
	require.NotNil(t, stored.CompletedAt)

	var res notification.SweepResult
	require.NoError(t, json.Unmarshal(stored.Metadata, &res))
	require.Equal(t, 3, res.Found)
	require.Equal(t, 2, res.Sent)
	require.Equal(t, 1, res.Skipped)
}

func TestRun_Refresh(t *testing.T) {
	f := newFixture(t)

	run, err := f.svc.Run(context.Background(), taskname.LicenseStatusRefresh, "manual")
	require.NoError(t, err)
	require.Equal(t, 1, f.refresher.calls)
	require.JSONEq(t, `{"scanned":10,"updated":4,"failed":0}`, string(f.load(t, run.ID).Metadata))
}

func TestRun_Failure(t *testing.T) {
	f := newFixture(t)
	f.sweeper.err = errors.New("smtp down")

	run, err := f.svc.Run(context.Background(), taskname.LicenseSweepExpired, "manual")
	require.Error(t, err)

	stored := f.load(t, run.ID)
	require.Equal(t, RunFailed, stored.Status)
	require.Equal(t, "smtp down", stored.ErrorMsg)
}

func TestRun_UnknownTask(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Run(context.Background(), "license:unknown", "manual")
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestEnqueue(t *testing.T) {
	f := newFixture(t)

	run, err := f.svc.Enqueue(context.Background(), taskname.LicenseSweepPending, "schedule")
	require.NoError(t, err)
	require.Equal(t, RunPending, f.load(t, run.ID).Status)

	require.Len(t, f.enqueuer.tasks, 1)
	require.Equal(t, taskname.LicenseSweepPending, f.enqueuer.tasks[0].Type())
	require.Empty(t, f.enqueuer.tasks[0].Payload())
}

func TestEnqueue_DuplicateInsideUniqueWindow(t *testing.T) {
	f := newFixture(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	f.svc.enqueuer = pkgtask.NewEnqueuer(asynq.NewClientFromRedisClient(rdb))

	ctx := context.Background()
	first, err := f.svc.Enqueue(ctx, taskname.LicenseSweepExpired, "schedule")
	require.NoError(t, err)

	second, err := f.svc.Enqueue(ctx, taskname.LicenseSweepExpired, "api")
	require.ErrorIs(t, err, asynq.ErrDuplicateTask)
	require.NotEqual(t, first.ID, second.ID)

	require.Equal(t, RunPending, f.load(t, first.ID).Status)
	stored := f.load(t, second.ID)
	require.Equal(t, RunSkipped, stored.Status)
	require.NotEmpty(t, stored.ErrorMsg)

	// other tasks have their own window
	_, err = f.svc.Enqueue(ctx, taskname.LicenseSweepPending, "schedule")
	require.NoError(t, err)
}

func TestEnqueue_QueueFailure(t *testing.T) {
	f := newFixture(t)
	f.enqueuer.err = errors.New("redis: connection refused")

	run, err := f.svc.Enqueue(context.Background(), taskname.LicenseSweepExpired, "schedule")
	require.Error(t, err)
	require.Equal(t, RunFailed, f.load(t, run.ID).Status)
}

func TestEnqueue_UnknownTask(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Enqueue(context.Background(), "license:unknown", "schedule")
	require.ErrorIs(t, err, ErrUnknownTask)
	require.Empty(t, f.enqueuer.tasks)
}

func TestHandleTask_CompletesQueuedRun(t *testing.T) {
	f := newFixture(t)

	run, err := f.svc.Enqueue(context.Background(), taskname.LicenseSweepPending, "schedule")
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleTask(context.Background(), f.enqueuer.tasks[0]))
	require.Equal(t, 1, f.sweeper.pending)

	stored := f.load(t, run.ID)
	require.Equal(t, RunSuccess, stored.Status)
	require.Equal(t, "schedule", stored.Trigger)

	runs, err := f.svc.Runs(context.Background(), taskname.LicenseSweepPending, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestHandleTask_ClaimsOldestPendingRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired, err := f.svc.Enqueue(ctx, taskname.LicenseSweepExpired, "schedule")
	require.NoError(t, err)
	older, err := f.svc.Enqueue(ctx, taskname.LicenseSweepPending, "schedule")
	require.NoError(t, err)
	newer, err := f.svc.Enqueue(ctx, taskname.LicenseSweepPending, "api")
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleTask(ctx, asynq.NewTask(taskname.LicenseSweepPending, nil)))

	require.Equal(t, RunSuccess, f.load(t, older.ID).Status)
	require.Equal(t, RunPending, f.load(t, newer.ID).Status)
	require.Equal(t, RunPending, f.load(t, expired.ID).Status)
}

func TestHandleTask_WithoutPendingRun(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.HandleTask(context.Background(), asynq.NewTask(taskname.LicenseStatusRefresh, nil)))
	require.Equal(t, 1, f.refresher.calls)

	runs, err := f.svc.Runs(context.Background(), taskname.LicenseStatusRefresh, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, RunSuccess, runs[0].Status)
	require.Equal(t, "queue", runs[0].Trigger)
}

func TestNewScheduler(t *testing.T) {
	f := newFixture(t)

	cfg := &config.Config{}
	cfg.Scheduler.RefreshCron = "0 1 * * *"
	cfg.Scheduler.ExpiredCron = "0 8 * * *"
	s, err := NewScheduler(SchedulerParams{Config: cfg, Service: f.svc})
	require.NoError(t, err)
	require.Len(t, s.entries, 2)

	cfg.Scheduler.PendingCron = "every morning"
	_, err = NewScheduler(SchedulerParams{Config: cfg, Service: f.svc})
	require.Error(t, err)
}

func TestScheduler_RestartKeepsEntries(t *testing.T) {
	f := newFixture(t)

	cfg := &config.Config{}
	cfg.Scheduler.ExpiredCron = "0 8 * * *"
	cfg.Scheduler.PendingCron = "30 8 * * *"
	s, err := NewScheduler(SchedulerParams{Config: cfg, Service: f.svc})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	s.Stop()
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	require.Len(t, s.cron.Entries(), 2)
}

type switches map[string]bool

func (s switches) Enabled(_ context.Context, name string) bool {
	on, ok := s[name]
	return !ok || on
}

func TestScheduler_Fire(t *testing.T) {
	f := newFixture(t)

	s, err := NewScheduler(SchedulerParams{
		Config:  &config.Config{},
		Service: f.svc,
		Flags:   switches{taskname.LicenseSweepPending: false},
	})
	require.NoError(t, err)
	s.fire(taskname.LicenseStatusRefresh)
	s.fire(taskname.LicenseSweepPending)

	require.Len(t, f.enqueuer.tasks, 1)
	require.Equal(t, taskname.LicenseStatusRefresh, f.enqueuer.tasks[0].Type())
}
