// services/motivation.go
package services

import (
	"fmt"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
)

// MessageContext is the small struct a text generator receives.
type MessageContext struct {
	Streak           int
	Weekday          time.Weekday
	TimeOfDay        string
	Label            string
	YesterdayOnTime  bool
	TotalCompletions int
	MissedCount      int
}

// TextGenerator produces a short motivational string. Implementations may be
// model-backed; the core tolerates absence or failure without blocking.
type TextGenerator interface {
	Generate(mc MessageContext) (string, error)
}

// MotivationService selects its generator at construction: an injected
// model-backed one when available, otherwise the deterministic template
// fallback keyed by streak bucket (or weekday when there is no streak).
type MotivationService struct {
	context.DefaultService

	generator TextGenerator
}

const MOTIVATION_SVC = "motivation_svc"

func (svc MotivationService) Id() string {
	return MOTIVATION_SVC
}

// SetGenerator installs a model-backed generator before Start. Unset, the
// template fallback serves every request.
func (svc *MotivationService) SetGenerator(g TextGenerator) {
	svc.generator = g
}

func (svc *MotivationService) Start() error {
	if svc.generator == nil {
		svc.generator = templateGenerator{}
	}
	return nil
}

// Message never fails: generator errors fall back to the templates.
func (svc *MotivationService) Message(mc MessageContext) string {
	msg, err := svc.generator.Generate(mc)
	if err != nil || msg == "" {
		if err != nil {
			log.WithError(err).Debug("Text generator failed, using template fallback")
		}
		msg, _ = templateGenerator{}.Generate(mc)
	}
	return msg
}

type templateGenerator struct{}

func (templateGenerator) Generate(mc MessageContext) (string, error) {
	if mc.Streak > 0 {
		return streakMessage(mc.Streak), nil
	}
	return weekdayMessage(mc.Weekday), nil
}

// streakMessage buckets: 1, 2, 3-4, 5-6, 7, 8-13, 14, 15-20, 21-29, 30,
// 31-59, 60-89, 90-364, >=365.
func streakMessage(streak int) string {
	switch {
	case streak == 1:
		return "Day one. Every streak starts with a single morning."
	case streak == 2:
		return "Two in a row. Don't break the chain now."
	case streak <= 4:
		return fmt.Sprintf("%d days strong. Momentum is building.", streak)
	case streak <= 6:
		return fmt.Sprintf("%d days and counting. The week is almost yours.", streak)
	case streak == 7:
		return "One full week! That's a habit taking root."
	case streak <= 13:
		return fmt.Sprintf("%d days. Past a week and still going.", streak)
	case streak == 14:
		return "Two weeks straight. Seriously impressive."
	case streak <= 20:
		return fmt.Sprintf("%d days. You're in rare territory now.", streak)
	case streak <= 29:
		return fmt.Sprintf("%d days. A month is within reach.", streak)
	case streak == 30:
		return "Thirty days! A whole month of early mornings."
	case streak <= 59:
		return fmt.Sprintf("%d days. This isn't luck anymore, it's who you are.", streak)
	case streak <= 89:
		return fmt.Sprintf("%d days. Two months down, unstoppable.", streak)
	case streak <= 364:
		return fmt.Sprintf("%d days. Quarter-year club and beyond.", streak)
	default:
		return fmt.Sprintf("%d days. A year or more of showing up. Legendary.", streak)
	}
}

func weekdayMessage(day time.Weekday) string {
	switch day {
	case time.Monday:
		return "Fresh week, fresh start. Up you get."
	case time.Tuesday:
		return "Tuesday won't wake itself. Go get it."
	case time.Wednesday:
		return "Halfway through the week. Rise and shine."
	case time.Thursday:
		return "Almost there. Make this morning count."
	case time.Friday:
		return "It's Friday. Finish the week on your feet."
	case time.Saturday:
		return "Weekend mornings are the best ones. Enjoy it awake."
	default:
		return "A calm Sunday start beats a rushed one."
	}
}

// TimeOfDayBucket maps an hour to the coarse label generators receive.
func TimeOfDayBucket(hour int) string {
	switch {
	case hour < 5:
		return "night"
	case hour < 12:
		return "morning"
	case hour < 18:
		return "afternoon"
	default:
		return "evening"
	}
}
