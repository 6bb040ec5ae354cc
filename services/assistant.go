// services/assistant.go
package services

import (
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/CristianProdius/ProAlarm/dto"
	"github.com/CristianProdius/ProAlarm/model"
)

// AssistantService is the read-mostly surface for widgets, shortcuts and
// voice queries. It composes answers from the other services without holding
// state of its own.
type AssistantService struct {
	context.DefaultService

	alarmSvc   *AlarmService
	streakSvc  *StreakService
	mediaSvc   *MediaService
	settingSvc *SettingsService
}

const ASSISTANT_SVC = "assistant_svc"

func (svc AssistantService) Id() string {
	return ASSISTANT_SVC
}

func (svc *AssistantService) Start() error {
	if svc.alarmSvc == nil {
		svc.alarmSvc = svc.Service(ALARM_SVC).(*AlarmService)
	}
	if svc.streakSvc == nil {
		svc.streakSvc = svc.Service(STREAK_SVC).(*StreakService)
	}
	if svc.mediaSvc == nil {
		svc.mediaSvc = svc.Service(MEDIA_SVC).(*MediaService)
	}
	if svc.settingSvc == nil {
		svc.settingSvc = svc.Service(SETTINGS_SVC).(*SettingsService)
	}
	return nil
}

func (svc *AssistantService) CurrentStreak() (int, error) {
	state, err := svc.streakSvc.State()
	if err != nil {
		return 0, err
	}
	return state.CurrentStreak, nil
}

// NextFireTime returns the earliest upcoming fire across enabled alarms, or
// nil when nothing is scheduled.
func (svc *AssistantService) NextFireTime(now time.Time) (*time.Time, error) {
	alarms, err := svc.alarmSvc.List()
	if err != nil {
		return nil, err
	}

	var next *time.Time
	for i := range alarms {
		if !alarms[i].Enabled {
			continue
		}
		at := alarms[i].NextFireTime(now)
		if next == nil || at.Before(*next) {
			next = &at
		}
	}
	return next, nil
}

// ListAlarms renders the alarm set for widgets, including the derived
// difficulty gates and the next occurrence of enabled alarms.
func (svc *AssistantService) ListAlarms(now time.Time) ([]dto.AlarmResponse, error) {
	alarms, err := svc.alarmSvc.List()
	if err != nil {
		return nil, err
	}

	out := make([]dto.AlarmResponse, 0, len(alarms))
	for i := range alarms {
		a := &alarms[i]

		days := a.Weekdays()
		repeat := make([]int, 0, len(days))
		for _, d := range days {
			repeat = append(repeat, int(d))
		}

		resp := dto.AlarmResponse{
			ID:              a.ID,
			Hour:            a.Hour,
			Minute:          a.Minute,
			RepeatDays:      repeat,
			Label:           a.Label,
			Enabled:         a.Enabled,
			RequiresPhoto:   a.RequiresPhoto,
			RequiresQRCode:  a.RequiresQRCode || a.QRRequiredForDifficulty(),
			DifficultyLevel: a.DifficultyLevel,
			SnoozeAllowed:   a.SnoozeAllowed(),
			WaitSeconds:     a.WaitSeconds(),
		}
		if a.Enabled {
			next := a.NextFireTime(now)
			resp.NextFireTime = &next
		}
		out = append(out, resp)
	}
	return out, nil
}

func (svc *AssistantService) Stats() (*dto.StatsResponse, error) {
	state, err := svc.streakSvc.State()
	if err != nil {
		return nil, err
	}

	next, err := svc.NextFireTime(time.Now())
	if err != nil {
		return nil, err
	}

	return &dto.StatsResponse{
		CurrentStreak:    state.CurrentStreak,
		LongestStreak:    state.LongestStreak,
		TotalCompletions: state.TotalCompletions,
		MissedCount:      state.MissedCount,
		NextFireTime:     next,
	}, nil
}

func (svc *AssistantService) Achievements() ([]dto.AchievementResponse, error) {
	unlocked, err := svc.streakSvc.Achievements()
	if err != nil {
		return nil, err
	}

	out := make([]dto.AchievementResponse, 0, len(unlocked))
	for _, a := range unlocked {
		out = append(out, dto.AchievementResponse{Kind: a.Kind, UnlockedAt: a.UnlockedAt})
	}
	return out, nil
}

// SetAlarmEnabled toggles an alarm by spoken label ("turn off my work alarm").
func (svc *AssistantService) SetAlarmEnabled(labelQuery string, enabled bool) (*model.Alarm, error) {
	alarm, err := svc.alarmSvc.FindByLabel(labelQuery)
	if err != nil {
		return nil, err
	}
	return svc.alarmSvc.SetEnabled(alarm.ID, enabled)
}

// OnForeground runs the lazy housekeeping tied to app activation: missed-day
// detection and photo retention cleanup.
func (svc *AssistantService) OnForeground(now time.Time) {
	if _, err := svc.streakSvc.CheckForMissedDay(now); err != nil {
		log.WithError(err).Warn("Missed-day check failed")
	}

	settings, err := svc.settingSvc.Get()
	if err != nil {
		log.WithError(err).Warn("Could not load settings for retention cleanup")
		return
	}
	svc.mediaSvc.CleanupExpired(settings.RetentionDays, now)
}
