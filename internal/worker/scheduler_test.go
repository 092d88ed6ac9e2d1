package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/service"
)

type stubSweeper struct {
	mu        sync.Mutex
	calls     int
	limits    []int
	err       error
	deadline  bool
	panicking bool
}

func (s *stubSweeper) Run(ctx context.Context, limit int) (*service.SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.limits = append(s.limits, limit)
	_, s.deadline = ctx.Deadline()
	if s.panicking {
		panic("sweep exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &service.SweepReport{Scanned: 1}, nil
}

func (s *stubSweeper) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubAuditor struct {
	calls int
	err   error
}

func (a *stubAuditor) Audit(ctx context.Context, campaignID *string) (*service.AuditReport, error) {
	a.calls++
	return &service.AuditReport{}, a.err
}

func quietLogger() *logging.Logger {
	l := logging.NewLogger(logging.LevelError, logging.FormatJSON)
	l.SetOutput(&bytes.Buffer{})
	return l
}

func TestNewScheduler_Validation(t *testing.T) {
	_, err := NewScheduler(&SchedulerConfig{})
	assert.Error(t, err)

	_, err = NewScheduler(&SchedulerConfig{Sweeper: &stubSweeper{}, SweepSchedule: "not a schedule", Logger: quietLogger()})
	assert.Error(t, err)

	_, err = NewScheduler(&SchedulerConfig{Sweeper: &stubSweeper{}, Logger: quietLogger()})
	assert.Error(t, err, "a job without a schedule leaves nothing to run")

	s, err := NewScheduler(&SchedulerConfig{
		Sweeper:       &stubSweeper{},
		Auditor:       &stubAuditor{},
		SweepSchedule: "@every 30s",
		AuditSchedule: "*/10 * * * *",
		Logger:        quietLogger(),
	})
	require.NoError(t, err)
	status := s.GetStatus()
	assert.False(t, status.Running)
	require.Len(t, status.Jobs, 2)
	assert.Equal(t, jobSweep, status.Jobs[0].Name)
	assert.Equal(t, jobAudit, status.Jobs[1].Name)
}

func TestScheduler_ManualRunsRecordStatus(t *testing.T) {
	sweeper := &stubSweeper{}
	auditor := &stubAuditor{err: errors.New("postgres down")}
	s, err := NewScheduler(&SchedulerConfig{
		Sweeper:       sweeper,
		Auditor:       auditor,
		SweepSchedule: "@every 1h",
		AuditSchedule: "@every 1h",
		SweepLimit:    25,
		RunTimeout:    time.Second,
		Logger:        quietLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, s.RunSweep(context.Background()))
	assert.Equal(t, []int{25}, sweeper.limits)
	assert.True(t, sweeper.deadline, "runs are bounded by the run timeout")

	assert.Error(t, s.RunAudit(context.Background()))

	status := s.GetStatus()
	assert.Equal(t, 1, status.Jobs[0].Runs)
	assert.Empty(t, status.Jobs[0].LastError)
	assert.Equal(t, 1, status.Jobs[1].Runs)
	assert.Equal(t, "postgres down", status.Jobs[1].LastError)
}

func TestScheduler_StartStop(t *testing.T) {
	sweeper := &stubSweeper{panicking: true}
	s, err := NewScheduler(&SchedulerConfig{
		Sweeper:       sweeper,
		SweepSchedule: "@every 1s",
		Logger:        quietLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	assert.True(t, s.GetStatus().Running)
	assert.False(t, s.GetStatus().Jobs[0].NextRun.IsZero())

	// a panicking run is recovered and the schedule keeps firing
	assert.Eventually(t, func() bool { return sweeper.callCount() >= 2 }, 5*time.Second, 50*time.Millisecond)
	assert.Eventually(t, func() bool { return sweeper.callCount() >= 3 }, 5*time.Second, 50*time.Millisecond)
	assert.Contains(t, s.GetStatus().Jobs[0].LastError, "sweep exploded")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Error(t, s.Stop(ctx))
	assert.False(t, s.GetStatus().Running)
}

func TestScheduler_PanickingRunIsRecordedAsFailure(t *testing.T) {
	sweeper := &stubSweeper{panicking: true}
	s, err := NewScheduler(&SchedulerConfig{
		Sweeper:       sweeper,
		SweepSchedule: "@every 1h",
		Logger:        quietLogger(),
	})
	require.NoError(t, err)

	err = s.RunSweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: sweep exploded")

	sweeper.panicking = false
	require.NoError(t, s.RunSweep(context.Background()))
	status := s.GetStatus()
	assert.Equal(t, 2, status.Jobs[0].Runs)
	assert.Empty(t, status.Jobs[0].LastError)
	assert.Equal(t, 2, sweeper.callCount())
}
