package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStreakMessageBuckets(t *testing.T) {
	// Bucket boundaries; adjacent streaks inside one bucket share a template.
	assert.Equal(t, streakMessage(3), streakMessage(4))
	assert.Equal(t, streakMessage(8), streakMessage(13))
	assert.NotEqual(t, streakMessage(6), streakMessage(7))
	assert.NotEqual(t, streakMessage(13), streakMessage(14))
	assert.NotEqual(t, streakMessage(29), streakMessage(30))

	assert.Contains(t, streakMessage(1), "Day one")
	assert.Contains(t, streakMessage(7), "week")
	assert.Contains(t, streakMessage(30), "Thirty days")
	assert.Contains(t, streakMessage(365), "365")
	assert.Contains(t, streakMessage(500), "500")
}

func TestTemplateGeneratorFallsBackToWeekday(t *testing.T) {
	gen := templateGenerator{}

	msg, err := gen.Generate(MessageContext{Streak: 0, Weekday: time.Monday})
	assert.NoError(t, err)
	assert.Contains(t, msg, "week")

	for day := time.Sunday; day <= time.Saturday; day++ {
		msg, err := gen.Generate(MessageContext{Weekday: day})
		assert.NoError(t, err)
		assert.NotEmpty(t, msg)
	}
}

type failingGenerator struct{}

func (failingGenerator) Generate(MessageContext) (string, error) {
	return "", errors.New("model unavailable")
}

func TestMessageFallsBackOnGeneratorFailure(t *testing.T) {
	svc := &MotivationService{}
	svc.SetGenerator(failingGenerator{})
	assert.NoError(t, svc.Start())

	msg := svc.Message(MessageContext{Streak: 7, Weekday: time.Friday})
	assert.Equal(t, streakMessage(7), msg)
}

func TestTimeOfDayBucket(t *testing.T) {
	assert.Equal(t, "night", TimeOfDayBucket(3))
	assert.Equal(t, "morning", TimeOfDayBucket(7))
	assert.Equal(t, "afternoon", TimeOfDayBucket(13))
	assert.Equal(t, "evening", TimeOfDayBucket(22))
}
