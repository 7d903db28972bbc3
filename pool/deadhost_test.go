package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeadHostTracker_AllowedInitially(t *testing.T) {
	tr := newDeadHostTracker("a:1", 10*time.Millisecond, time.Second)
	assert.True(t, tr.Allowed())
}

func TestDeadHostTracker_FailureOpensWindow(t *testing.T) {
	tr := newDeadHostTracker("a:1", 50*time.Millisecond, time.Second)
	tr.RecordFailure()
	assert.False(t, tr.Allowed())
}

func TestDeadHostTracker_WindowExpires(t *testing.T) {
	tr := newDeadHostTracker("a:1", 10*time.Millisecond, time.Second)
	tr.RecordFailure()
	require := assert.New(t)
	require.False(tr.Allowed())
	time.Sleep(30 * time.Millisecond)
	require.True(tr.Allowed())
}

func TestDeadHostTracker_SuccessClearsStreak(t *testing.T) {
	tr := newDeadHostTracker("a:1", 10*time.Millisecond, time.Second)
	tr.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require2 := assert.New(t)
	require2.True(tr.Allowed())
	tr.RecordSuccess()
	assert.Equal(t, 10*time.Millisecond, tr.timeout)
}

func TestDeadHostTracker_BackoffDoublesOnRepeatedFailure(t *testing.T) {
	tr := newDeadHostTracker("a:1", 10*time.Millisecond, time.Second)
	tr.RecordFailure()
	initial := tr.timeout
	time.Sleep(20 * time.Millisecond) // let the window expire into half-open

	tr.RecordFailure() // trial fails again: this should double the window
	assert.Equal(t, initial*2, tr.timeout)
	assert.False(t, tr.Allowed())
}

func TestDeadHostTracker_BackoffCapsAtMax(t *testing.T) {
	tr := newDeadHostTracker("a:1", 10*time.Millisecond, 15*time.Millisecond)
	tr.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	tr.RecordFailure()
	assert.Equal(t, 15*time.Millisecond, tr.timeout)
}
