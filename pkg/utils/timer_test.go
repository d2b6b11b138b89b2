package utils

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimer_Disabled(t *testing.T) {
	timer := NewTimer("build", WithEnabled(false))
	ran := false
	d, err := timer.Time("write", func() error {
		ran = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, ran)
	assert.Zero(t, d)
	assert.Empty(t, timer.Phases())
}

func TestTimer_Phases(t *testing.T) {
	clock := NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	timer := NewTimer("build", WithClock(clock))

	step := func(d time.Duration) func() error {
		return func() error {
			clock.Advance(d)
			return nil
		}
	}
	_, _ = timer.Time("resolve", step(100*time.Millisecond))
	_, _ = timer.Time("write", step(200*time.Millisecond))
	_, _ = timer.Time("write", step(50*time.Millisecond))

	assert.Equal(t, 100*time.Millisecond, timer.Duration("resolve"))
	assert.Equal(t, 250*time.Millisecond, timer.Duration("write"))
	assert.Zero(t, timer.Duration("missing"))
	assert.Equal(t, 350*time.Millisecond, timer.Total())
	assert.Equal(t, []Phase{
		{Name: "resolve", Duration: 100 * time.Millisecond},
		{Name: "write", Duration: 200 * time.Millisecond},
		{Name: "write", Duration: 50 * time.Millisecond},
	}, timer.Phases())
}

func TestTimer_Error(t *testing.T) {
	clock := NewManualClock(time.Now())
	timer := NewTimer("build", WithClock(clock))
	boom := errors.New("boom")

	d, err := timer.Time("write", func() error {
		clock.Advance(50 * time.Millisecond)
		return boom
	})
	assert.Equal(t, 50*time.Millisecond, d)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, timer.Phases(), 1)
}

func TestTimer_PrintSummary(t *testing.T) {
	buf := &bytes.Buffer{}
	clock := NewManualClock(time.Now())
	timer := NewTimer("build", WithClock(clock), WithLogger(NewDefaultLogger(LevelInfo, buf)))

	_, _ = timer.Time("resolve", func() error {
		clock.Advance(10 * time.Millisecond)
		return nil
	})
	timer.PrintSummary()

	out := buf.String()
	assert.Contains(t, out, "timer=build")
	assert.Contains(t, out, "phase 1 resolve: 10ms")
	assert.Contains(t, out, "total: 10ms")
}
