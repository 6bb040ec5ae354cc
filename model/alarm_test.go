package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDifficultyDerivedGates(t *testing.T) {
	cases := []struct {
		level       int
		snooze      bool
		qr          bool
		waitSeconds int
	}{
		{1, true, false, 0},
		{2, true, false, 10},
		{3, true, true, 0},
		{4, false, true, 10},
	}

	for _, tc := range cases {
		a := &Alarm{DifficultyLevel: tc.level}
		assert.Equal(t, tc.snooze, a.SnoozeAllowed(), "level %d snooze", tc.level)
		assert.Equal(t, tc.qr, a.QRRequiredForDifficulty(), "level %d qr", tc.level)
		assert.Equal(t, tc.waitSeconds, a.WaitSeconds(), "level %d wait", tc.level)
	}
}

func TestNextFireTimeOneShot(t *testing.T) {
	a := &Alarm{Hour: 7, Minute: 30}
	a.SetWeekdays(nil)

	t.Run("before the alarm time fires today", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
		got := a.NextFireTime(now)
		assert.Equal(t, time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC), got)
	})

	t.Run("after the alarm time fires tomorrow", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
		got := a.NextFireTime(now)
		assert.Equal(t, time.Date(2026, 3, 11, 7, 30, 0, 0, time.UTC), got)
	})

	t.Run("exactly at the alarm time fires tomorrow", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC)
		got := a.NextFireTime(now)
		assert.Equal(t, time.Date(2026, 3, 11, 7, 30, 0, 0, time.UTC), got)
	})
}

func TestNextFireTimeRepeating(t *testing.T) {
	a := &Alarm{Hour: 7, Minute: 0}
	a.SetWeekdays([]time.Weekday{time.Monday, time.Friday})

	// 2026-03-10 is a Tuesday.
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	got := a.NextFireTime(now)
	assert.Equal(t, time.Friday, got.Weekday())
	assert.Equal(t, time.Date(2026, 3, 13, 7, 0, 0, 0, time.UTC), got)

	t.Run("same weekday later today", func(t *testing.T) {
		a := &Alarm{Hour: 23, Minute: 0}
		a.SetWeekdays([]time.Weekday{time.Tuesday})

		got := a.NextFireTime(now)
		assert.Equal(t, time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC), got)
	})

	t.Run("same weekday already passed waits a week", func(t *testing.T) {
		a := &Alarm{Hour: 7, Minute: 0}
		a.SetWeekdays([]time.Weekday{time.Tuesday})

		got := a.NextFireTime(now)
		assert.Equal(t, time.Date(2026, 3, 17, 7, 0, 0, 0, time.UTC), got)
	})
}

func TestWeekdaysRoundTrip(t *testing.T) {
	a := &Alarm{}
	a.SetWeekdays([]time.Weekday{time.Sunday, time.Wednesday})

	assert.Equal(t, []time.Weekday{time.Sunday, time.Wednesday}, a.Weekdays())
	assert.True(t, a.IsRepeating())

	a.SetWeekdays(nil)
	assert.Empty(t, a.Weekdays())
	assert.False(t, a.IsRepeating())
}

func TestRingingSessionChecklist(t *testing.T) {
	now := time.Now()

	t.Run("no gates completes immediately", func(t *testing.T) {
		s := NewRingingSession(1, &Alarm{DifficultyLevel: 1}, now)
		assert.True(t, s.IsProofCompleted())
	})

	t.Run("gate flags derive from alarm and difficulty", func(t *testing.T) {
		s := NewRingingSession(1, &Alarm{DifficultyLevel: 4, RequiresPhoto: true}, now)
		assert.True(t, s.PhotoNeeded)
		assert.True(t, s.QRNeeded)
		assert.True(t, s.WaitNeeded)
		assert.Equal(t, 10, s.WaitRemaining)
		assert.False(t, s.IsProofCompleted())
	})

	t.Run("completion gate re-derives from the checklist", func(t *testing.T) {
		s := NewRingingSession(1, &Alarm{DifficultyLevel: 4, RequiresPhoto: true}, now)

		s.PhotoMet = true
		assert.False(t, s.IsProofCompleted())
		s.QRMet = true
		assert.False(t, s.IsProofCompleted())
		s.WaitMet = true
		assert.True(t, s.IsProofCompleted())
	})

	t.Run("wait is gated behind the photo", func(t *testing.T) {
		s := NewRingingSession(1, &Alarm{DifficultyLevel: 2, RequiresPhoto: true}, now)
		assert.False(t, s.WaitShouldRun())

		s.PhotoMet = true
		assert.True(t, s.WaitShouldRun())

		s.WaitMet = true
		assert.False(t, s.WaitShouldRun())
	})
}
