package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
	boom bool
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	if j.boom {
		panic("boom")
	}
	return j.err
}

type stubPurger struct {
	n   int64
	err error
}

func (s stubPurger) PurgeExpiredPending(ctx context.Context) (int64, error) {
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("missing deadline")
	}
	return s.n, s.err
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())

	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"Descriptor", "@every 5m", false},
		{"FiveFields", "*/5 * * * *", false},
		{"SixFields", "0 */5 * * * *", false},
		{"Garbage", "whenever", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.AddJob(tt.schedule, &countingJob{})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}
	failing := &countingJob{err: errors.New("nope")}
	panicking := &countingJob{boom: true}
	require.NoError(t, s.AddJob("@every 1s", job))
	require.NoError(t, s.AddJob("@every 1s", failing))
	require.NoError(t, s.AddJob("@every 1s", panicking))

	s.Start()
	assert.Eventually(t, func() bool {
		return job.runs.Load() > 0 && failing.runs.Load() > 0 && panicking.runs.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestPurgePendingJob(t *testing.T) {
	job := NewPurgePendingJob(stubPurger{n: 3}, time.Second, zerolog.Nop())
	assert.Equal(t, "purge_pending", job.Name())
	assert.NoError(t, job.Run())

	s := New(zerolog.Nop())
	failing := NewPurgePendingJob(stubPurger{err: errors.New("db down")}, 0, zerolog.Nop())
	assert.EqualError(t, s.RunNow(failing), "db down")
}
