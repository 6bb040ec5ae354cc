// services/streak.go
package services

import (
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/CristianProdius/ProAlarm/model"
	"github.com/CristianProdius/ProAlarm/shared"
)

// StreakService owns streak continuation, adaptive difficulty and achievement
// unlocks. The calendar rules live in pure functions over StreakState; the
// service adds persistence.
type StreakService struct {
	context.DefaultService

	sqlSvc *SqliteService
}

const STREAK_SVC = "streak_svc"

func (svc StreakService) Id() string {
	return STREAK_SVC
}

func (svc *StreakService) Start() error {
	if svc.sqlSvc == nil {
		svc.sqlSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// applyCompletion advances the streak for a completion at now. Same-day
// re-entry is a no-op: the day is already counted.
func applyCompletion(state *model.StreakState, now time.Time) {
	today := startOfDay(now)

	if state.LastCompletionDate == nil {
		state.CurrentStreak = 1
	} else {
		lastDay := startOfDay(*state.LastCompletionDate)

		switch {
		case lastDay.Equal(today):
			return
		case lastDay.AddDate(0, 0, 1).Equal(today):
			state.CurrentStreak++
		default:
			// A gap of two or more calendar days breaks the streak.
			state.CurrentStreak = 1
		}
	}

	if state.CurrentStreak > state.LongestStreak {
		state.LongestStreak = state.CurrentStreak
	}
	state.LastCompletionDate = &now
	state.TotalCompletions++
}

// applyMissedDayCheck lazily detects a missed day; called on app foreground,
// not continuously. Reports whether a miss was recorded.
func applyMissedDayCheck(state *model.StreakState, now time.Time) bool {
	if state.LastCompletionDate == nil {
		return false
	}
	today := startOfDay(now)
	lastDay := startOfDay(*state.LastCompletionDate)

	if today.After(lastDay.AddDate(0, 0, 1)) {
		state.CurrentStreak = 0
		state.MissedCount++
		return true
	}
	return false
}

// recommendedDifficultyChange returns +1 when yesterday was missed relative
// to now, -1 when the streak has reached three days, else 0.
func recommendedDifficultyChange(state *model.StreakState, now time.Time) int {
	if state.LastCompletionDate != nil {
		yesterday := startOfDay(now).AddDate(0, 0, -1)
		if startOfDay(*state.LastCompletionDate).Before(yesterday) {
			return 1
		}
	}
	if state.CurrentStreak >= 3 {
		return -1
	}
	return 0
}

// applyDifficultyChange clamps the level to [1,4]. The streak guard on
// decreases is re-checked here, not only at recommendation time.
func applyDifficultyChange(alarm *model.Alarm, change int, currentStreak int) {
	if change > 0 && alarm.DifficultyLevel < shared.DifficultyMax {
		alarm.DifficultyLevel++
	}
	if change < 0 && currentStreak >= 3 && alarm.DifficultyLevel > shared.DifficultyMin {
		alarm.DifficultyLevel--
	}
}

// RecordCompletion updates and persists the streak for a completion at now.
func (svc *StreakService) RecordCompletion(now time.Time) (*model.StreakState, error) {
	state, err := svc.sqlSvc.Streaks().Get()
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}

	applyCompletion(state, now)

	if err := svc.sqlSvc.Streaks().Save(state); err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}
	return state, nil
}

// CheckForMissedDay runs the lazy missed-day detection, persisting only when
// something changed.
func (svc *StreakService) CheckForMissedDay(now time.Time) (*model.StreakState, error) {
	state, err := svc.sqlSvc.Streaks().Get()
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}

	if !applyMissedDayCheck(state, now) {
		return state, nil
	}

	log.WithFields(log.Fields{
		"missed_count": state.MissedCount,
	}).Info("Missed day detected, streak reset")

	if err := svc.sqlSvc.Streaks().Save(state); err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}
	return state, nil
}

func (svc *StreakService) RecommendedDifficultyChange(state *model.StreakState, now time.Time) int {
	return recommendedDifficultyChange(state, now)
}

func (svc *StreakService) ApplyDifficultyChange(alarm *model.Alarm, change int, currentStreak int) {
	applyDifficultyChange(alarm, change, currentStreak)
}

func (svc *StreakService) State() (*model.StreakState, error) {
	state, err := svc.sqlSvc.Streaks().Get()
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}
	return state, nil
}

// EvaluateAchievements unlocks every newly-satisfied kind in one pass and
// returns the new kinds. Already-unlocked kinds are skipped, never
// re-evaluated.
func (svc *StreakService) EvaluateAchievements(state *model.StreakState, latest *model.CompletionRecord, now time.Time) ([]string, error) {
	alreadyUnlocked, err := svc.sqlSvc.Achievements().UnlockedKinds()
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}

	records, err := svc.sqlSvc.Completions().ListAll()
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}

	settings, err := svc.sqlSvc.Settings().Get()
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}
	if !settings.CountBypassed {
		records = filterBypassed(records)
	}

	newKinds := evaluateAchievements(state, records, alreadyUnlocked)

	for _, kind := range newKinds {
		if err := svc.sqlSvc.Achievements().Unlock(kind, now); err != nil {
			log.WithError(err).WithField("kind", kind).Error("Failed to persist achievement unlock")
			return nil, svc.sqlSvc.HandleError(err)
		}
		log.WithField("kind", kind).Info("Achievement unlocked")
	}

	return newKinds, nil
}

func (svc *StreakService) Achievements() ([]model.UnlockedAchievement, error) {
	unlocked, err := svc.sqlSvc.Achievements().List()
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}
	return unlocked, nil
}

func filterBypassed(records []model.CompletionRecord) []model.CompletionRecord {
	kept := records[:0:0]
	for _, r := range records {
		if !r.ValidationBypassed {
			kept = append(kept, r)
		}
	}
	return kept
}

// evaluateAchievements checks every kind independently; predicates are not
// mutually exclusive. records must be sorted most recent first.
func evaluateAchievements(state *model.StreakState, records []model.CompletionRecord, alreadyUnlocked map[string]bool) []string {
	var newKinds []string

	unlock := func(kind string, satisfied bool) {
		if satisfied && !alreadyUnlocked[kind] {
			newKinds = append(newKinds, kind)
		}
	}

	onTime := 0
	anyMaxDifficulty := false
	for _, r := range records {
		if r.WasOnTime {
			onTime++
		}
		if r.DifficultyLevel >= shared.DifficultyMax {
			anyMaxDifficulty = true
		}
	}

	unlock(shared.AchievementFirstSip, len(records) > 0)
	unlock(shared.AchievementEarlyBird, onTime >= 5)
	unlock(shared.AchievementWeekWarrior, state.CurrentStreak >= 7 || state.LongestStreak >= 7)
	unlock(shared.AchievementMonthMaster, state.CurrentStreak >= 30 || state.LongestStreak >= 30)
	unlock(shared.AchievementPerfectScore, anyMaxDifficulty)
	unlock(shared.AchievementNoExcuses, consecutiveOnTimeDays(records) >= 14)

	return newKinds
}

// consecutiveOnTimeDays walks the history backward from the most recent day
// and counts calendar days that each contain at least one on-time record.
// The walk breaks on the first absent day or a day whose only records were
// snoozed.
func consecutiveOnTimeDays(records []model.CompletionRecord) int {
	if len(records) == 0 {
		return 0
	}

	type dayStats struct {
		anyOnTime bool
	}
	days := make(map[time.Time]*dayStats)
	for _, r := range records {
		day := startOfDay(r.CompletedAt)
		stats, ok := days[day]
		if !ok {
			stats = &dayStats{}
			days[day] = stats
		}
		if r.WasOnTime {
			stats.anyOnTime = true
		}
	}

	day := startOfDay(records[0].CompletedAt)
	count := 0
	for {
		stats, ok := days[day]
		if !ok || !stats.anyOnTime {
			break
		}
		count++
		day = day.AddDate(0, 0, -1)
	}
	return count
}
