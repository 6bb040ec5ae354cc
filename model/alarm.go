// model/alarm.go
package model

import (
	"encoding/json"
	"time"

	"github.com/CristianProdius/ProAlarm/shared"
)

// Alarm is a scheduled wake target. RepeatDays holds a JSON array of
// time.Weekday values; empty means a one-shot alarm.
type Alarm struct {
	ID               string          `json:"id" gorm:"primaryKey"`
	Hour             int             `json:"hour" gorm:"not null"`
	Minute           int             `json:"minute" gorm:"not null"`
	RepeatDays       json.RawMessage `json:"repeat_days" gorm:"type:text"`
	Enabled          bool            `json:"enabled" gorm:"default:true"`
	Label            string          `json:"label"`
	RequiresPhoto    bool            `json:"requires_photo"`
	RequiresQRCode   bool            `json:"requires_qr_code"`
	QRCodeIdentifier string          `json:"qr_code_identifier"`
	DifficultyLevel  int             `json:"difficulty_level" gorm:"default:1"`
	SnoozeUsed       bool            `json:"snooze_used" gorm:"default:false"`
	ScheduleToken    string          `json:"schedule_token"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// SnoozeAllowed reports whether this alarm's difficulty permits snoozing at all.
// The per-cycle SnoozeUsed flag is checked separately by the ringing session.
func (a *Alarm) SnoozeAllowed() bool {
	return a.DifficultyLevel < shared.DifficultyMax
}

// QRRequiredForDifficulty forces a QR scan at the two hardest levels even when
// the alarm itself was not configured with one.
func (a *Alarm) QRRequiredForDifficulty() bool {
	return a.DifficultyLevel >= shared.DifficultyQRThreshold
}

// WaitSeconds is the mandatory wait interval derived from difficulty.
func (a *Alarm) WaitSeconds() int {
	if a.DifficultyLevel == 2 || a.DifficultyLevel == 4 {
		return shared.DifficultyWaitSeconds
	}
	return 0
}

func (a *Alarm) Weekdays() []time.Weekday {
	var days []time.Weekday
	if a.RepeatDays != nil {
		if err := shared.JSON.Unmarshal(a.RepeatDays, &days); err != nil {
			return nil
		}
	}
	return days
}

func (a *Alarm) SetWeekdays(days []time.Weekday) {
	if len(days) == 0 {
		a.RepeatDays = json.RawMessage("[]")
		return
	}
	a.RepeatDays = shared.MustMarshal(days)
}

func (a *Alarm) IsRepeating() bool {
	return len(a.Weekdays()) > 0
}

// NextFireTime returns the next wall-clock occurrence strictly after now.
// One-shot alarms fire today at Hour:Minute, or tomorrow if that has passed.
// Repeating alarms fire on the next configured weekday.
func (a *Alarm) NextFireTime(now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), a.Hour, a.Minute, 0, 0, now.Location())

	days := a.Weekdays()
	if len(days) == 0 {
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at
	}

	repeats := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		repeats[d] = true
	}

	for offset := 0; offset <= 7; offset++ {
		candidate := at.AddDate(0, 0, offset)
		if repeats[candidate.Weekday()] && candidate.After(now) {
			return candidate
		}
	}

	// Unreachable with a non-empty repeat set; keep the one-shot fallback.
	return at.AddDate(0, 0, 1)
}

// CompletionRecord is an immutable fact: one per finished ringing cycle.
// Records are never mutated or deleted; retention cleanup may only clear the
// photo reference.
type CompletionRecord struct {
	ID                 string    `json:"id" gorm:"primaryKey"`
	AlarmID            string    `json:"alarm_id" gorm:"not null;index"`
	CompletedAt        time.Time `json:"completed_at" gorm:"not null;index"`
	PhotoRef           string    `json:"photo_ref"`
	QRScanned          bool      `json:"qr_scanned"`
	DifficultyLevel    int       `json:"difficulty_level"`
	WasOnTime          bool      `json:"was_on_time"`
	AwakenessScore     *float64  `json:"awakeness_score"`
	ValidationBypassed bool      `json:"validation_bypassed"`
	CreatedAt          time.Time `json:"created_at"`
}
