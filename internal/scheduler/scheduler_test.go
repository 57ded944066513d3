package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayAndNight_Windows(t *testing.T) {
	day := Day(10*time.Hour, 22*time.Hour)
	night := Night(10*time.Hour, 22*time.Hour)

	tests := []struct {
		name  string
		tod   time.Duration
		inDay bool
	}{
		{"just before open", 9*time.Hour + 59*time.Minute, false},
		{"at open", 10 * time.Hour, true},
		{"midday", 15 * time.Hour, true},
		{"just before close", 21*time.Hour + 59*time.Minute, true},
		{"at close", 22 * time.Hour, false},
		{"midnight", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.inDay, day(tt.tod))
			assert.Equal(t, !tt.inDay, night(tt.tod))
		})
	}
}

func TestAlways_AlwaysTrue(t *testing.T) {
	assert.True(t, Always(0))
	assert.True(t, Always(23*time.Hour))
}

func newTestSupervisor() *Supervisor {
	return New(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})))
}

func TestSupervisor_StartIsIdempotent(t *testing.T) {
	sup := newTestSupervisor()
	var runs int32
	started := make(chan struct{}, 10)

	sup.Register("stage", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		started <- struct{}{}
		<-ctx.Done()
		return nil
	}, Always)

	st, ok := sup.Start(context.Background(), "stage")
	require.True(t, ok)
	assert.True(t, st.Running)

	<-started

	// starting again while already running must be a no-op
	st2, ok := sup.Start(context.Background(), "stage")
	require.True(t, ok)
	assert.True(t, st2.Running)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	sup.Stop("stage")
}

func TestSupervisor_UnknownStage(t *testing.T) {
	sup := newTestSupervisor()
	_, ok := sup.Start(context.Background(), "nope")
	assert.False(t, ok)
	_, ok = sup.Stop("nope")
	assert.False(t, ok)
	_, ok = sup.Status("nope")
	assert.False(t, ok)
}

func TestSupervisor_StopCancelsStage(t *testing.T) {
	sup := newTestSupervisor()
	started := make(chan struct{})
	stopped := make(chan struct{})

	sup.Register("stage", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(stopped)
		return nil
	}, Always)

	sup.Start(context.Background(), "stage")
	<-started

	st, ok := sup.Stop("stage")
	require.True(t, ok)
	assert.False(t, st.Running)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stage did not observe cancellation")
	}
}

func TestSupervisor_StatusAll(t *testing.T) {
	sup := newTestSupervisor()
	sup.Register("a", func(ctx context.Context) error { <-ctx.Done(); return nil }, Always)
	sup.Register("b", func(ctx context.Context) error { <-ctx.Done(); return nil }, Always)

	all := sup.StatusAll()
	assert.Len(t, all, 2)
	assert.False(t, all["a"].Running)
	assert.False(t, all["b"].Running)
}
