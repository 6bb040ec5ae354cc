// model/streak.go
package model

import (
	"time"

	"github.com/CristianProdius/ProAlarm/shared"
)

const StreakStateID = "streak"

// StreakState is a singleton aggregate over the completion history.
// Invariant: LongestStreak >= CurrentStreak after every update.
type StreakState struct {
	ID                 string     `json:"id" gorm:"primaryKey"`
	CurrentStreak      int        `json:"current_streak" gorm:"default:0"`
	LongestStreak      int        `json:"longest_streak" gorm:"default:0"`
	LastCompletionDate *time.Time `json:"last_completion_date"`
	TotalCompletions   int        `json:"total_completions" gorm:"default:0"`
	MissedCount        int        `json:"missed_count" gorm:"default:0"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func NewStreakState() *StreakState {
	return &StreakState{ID: StreakStateID}
}

// UnlockedAchievement is an append-only record, one per achievement kind.
type UnlockedAchievement struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Kind       string    `json:"kind" gorm:"uniqueIndex;not null"`
	UnlockedAt time.Time `json:"unlocked_at"`
	CreatedAt  time.Time `json:"created_at"`
}

const SettingsID = "settings"

// Settings is the singleton of user-configurable behavior.
type Settings struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	AwakenessEnabled bool      `json:"awakeness_enabled" gorm:"default:true"`
	Sensitivity      float64   `json:"sensitivity" gorm:"default:0.7"`
	CountBypassed    bool      `json:"count_bypassed" gorm:"default:true"`
	RetentionDays    int       `json:"retention_days" gorm:"default:30"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func NewSettings() *Settings {
	return &Settings{
		ID:               SettingsID,
		AwakenessEnabled: true,
		Sensitivity:      shared.DefaultSensitivity,
		CountBypassed:    true,
		RetentionDays:    shared.DefaultRetentionDays,
	}
}
