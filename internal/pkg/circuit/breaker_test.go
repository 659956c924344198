package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New("polygon", 2, time.Minute)
	cb.SetClock(func() time.Time { return now })

	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
	assert.Equal(t, now.Add(time.Minute), cb.Snapshot().RetryAt)

	now = now.Add(time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Snapshot().RetryAt.IsZero())
}

func TestBreakerAdmitsSingleProbe(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New("binance", 1, time.Second)
	cb.SetClock(func() time.Time { return now })

	cb.RecordFailure()
	now = now.Add(time.Second)
	require.True(t, cb.Allow())
	assert.False(t, cb.Allow(), "second caller must wait for the probe")
	cb.RecordSuccess()
	assert.True(t, cb.Allow())
	assert.True(t, cb.Allow())
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	cb := New("tiingo", 2, time.Minute)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Snapshot().Failures)
	assert.Equal(t, "tiingo", cb.Name())
}

func TestBreakerNotifiesStateChanges(t *testing.T) {
	changes := make(chan State, 4)
	cb := New("polygon", 1, time.Hour)
	cb.SetStateChangeHandler(func(name string, from, to State) {
		assert.Equal(t, "polygon", name)
		changes <- to
	})
	cb.RecordFailure()
	select {
	case to := <-changes:
		assert.Equal(t, StateOpen, to)
	case <-time.After(time.Second):
		t.Fatal("no state change delivered")
	}
}
