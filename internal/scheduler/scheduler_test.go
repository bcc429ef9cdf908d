package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/susu/internal/config"
	"github.com/mmynk/susu/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeRunner struct {
	cycles, reminders, promotions atomic.Int32
	cycleErr                      error
}

func (f *fakeRunner) OpenDueCycles(context.Context) (int, error) {
	f.cycles.Add(1)
	return 2, f.cycleErr
}

func (f *fakeRunner) SweepGraceExpiring(context.Context) (int, error) {
	f.reminders.Add(1)
	return 0, nil
}

func (f *fakeRunner) PromoteDuePayouts(context.Context) (int, error) {
	f.promotions.Add(1)
	return 1, nil
}

func TestScheduler_Start(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		jobs      config.Jobs
		wantErr   bool
		wantNames []string
	}{
		{
			name:      "all jobs scheduled",
			jobs:      config.DefaultPolicy().Jobs,
			wantNames: []string{JobGraceReminders, JobOpenCycles, JobPromotePayouts},
		},
		{
			name:      "empty spec disables a job",
			jobs:      config.Jobs{OpenCycles: "*/5 * * * *"},
			wantNames: []string{JobOpenCycles},
		},
		{
			name:    "invalid spec fails",
			jobs:    config.Jobs{OpenCycles: "every now and then"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := New(&fakeRunner{}, tt.jobs, nil, discardLogger())
			err := s.Start(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(s.Stop)

			entries := s.Entries()
			assert.Len(t, entries, len(tt.wantNames))
			for _, name := range tt.wantNames {
				assert.Contains(t, entries, name)
			}
		})
	}
}

func TestScheduler_Run(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := &fakeRunner{cycleErr: errors.New("database is locked")}
	s := New(r, config.Jobs{}, metrics.New(reg), discardLogger())

	n, err := s.Run(context.Background(), JobPromotePayouts)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Run(context.Background(), JobOpenCycles)
	require.Error(t, err)

	_, err = s.Run(context.Background(), "vacuum")
	require.Error(t, err)

	assert.Equal(t, int32(1), r.promotions.Load())
	assert.Equal(t, int32(1), r.cycles.Load())

	expected := `
# HELP susu_scheduler_job_runs_total Background job runs by outcome
# TYPE susu_scheduler_job_runs_total counter
susu_scheduler_job_runs_total{job="open_cycles",outcome="error"} 1
susu_scheduler_job_runs_total{job="promote_payouts",outcome="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "susu_scheduler_job_runs_total"))
}

func TestScheduler_FiresJobs(t *testing.T) {
	r := &fakeRunner{}
	s := New(r, config.Jobs{GraceReminders: "@every 1s"}, nil, discardLogger())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool { return r.reminders.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	assert.Zero(t, r.cycles.Load())
}
