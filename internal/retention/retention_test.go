package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus_realtime/internal/domain"
	"campus_realtime/internal/metrics"
)

type fakePurger struct {
	before []time.Time
	n      int64
	err    error
}

func (f *fakePurger) PurgeReadBefore(_ context.Context, before time.Time) (int64, error) {
	f.before = append(f.before, before)
	return f.n, f.err
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_Validates(t *testing.T) {
	_, err := New(&fakePurger{}, "not a cron", time.Hour, nil, quiet())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = New(&fakePurger{}, "0 3 * * *", 0, nil, quiet())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	j, err := New(&fakePurger{}, "", time.Hour, nil, quiet())
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", j.cron)
}

func TestRunOnce_UsesCutoff(t *testing.T) {
	store := &fakePurger{n: 4}
	m := metrics.New(nil)
	j, err := New(store, "0 3 * * *", 30*24*time.Hour, m, quiet())
	require.NoError(t, err)
	now := time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.Len(t, store.before, 1)
	assert.True(t, time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC).Equal(store.before[0]))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.RetentionPurged))

	store.err = errors.New("locked")
	_, err = j.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestNext(t *testing.T) {
	j, err := New(&fakePurger{}, "0 3 * * *", time.Hour, nil, quiet())
	require.NoError(t, err)

	next, err := j.Next(time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 4, 2, 3, 0, 0, 0, time.UTC).Equal(next), "got %s", next)
}

func TestRun_StopsOnCancel(t *testing.T) {
	j, err := New(&fakePurger{}, "0 3 * * *", time.Hour, nil, quiet())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
