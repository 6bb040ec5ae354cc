package dto

import "time"

type StatsResponse struct {
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	TotalCompletions int        `json:"total_completions"`
	MissedCount      int        `json:"missed_count"`
	NextFireTime     *time.Time `json:"next_fire_time,omitempty"`
}

type AchievementResponse struct {
	Kind       string    `json:"kind"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

type CompletionResult struct {
	RecordID          string   `json:"record_id"`
	WasOnTime         bool     `json:"was_on_time"`
	CurrentStreak     int      `json:"current_streak"`
	DifficultyChange  int      `json:"difficulty_change"`
	NewDifficulty     int      `json:"new_difficulty"`
	NewAchievements   []string `json:"new_achievements"`
	NextFireScheduled bool     `json:"next_fire_scheduled"`
}
