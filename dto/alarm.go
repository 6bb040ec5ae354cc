package dto

import "time"

type CreateAlarmRequest struct {
	Hour             int    `json:"hour" validate:"min=0,max=23"`
	Minute           int    `json:"minute" validate:"min=0,max=59"`
	RepeatDays       []int  `json:"repeat_days" validate:"max=7,dive,min=0,max=6"`
	Label            string `json:"label" validate:"max=64"`
	RequiresPhoto    bool   `json:"requires_photo"`
	RequiresQRCode   bool   `json:"requires_qr_code"`
	QRCodeIdentifier string `json:"qr_code_identifier" validate:"max=256"`
	DifficultyLevel  int    `json:"difficulty_level" validate:"min=1,max=4"`
	Enabled          bool   `json:"enabled"`
}

type UpdateAlarmRequest struct {
	Hour             *int    `json:"hour" validate:"omitempty,min=0,max=23"`
	Minute           *int    `json:"minute" validate:"omitempty,min=0,max=59"`
	RepeatDays       []int   `json:"repeat_days" validate:"omitempty,max=7,dive,min=0,max=6"`
	Label            *string `json:"label" validate:"omitempty,max=64"`
	RequiresPhoto    *bool   `json:"requires_photo"`
	RequiresQRCode   *bool   `json:"requires_qr_code"`
	QRCodeIdentifier *string `json:"qr_code_identifier" validate:"omitempty,max=256"`
	DifficultyLevel  *int    `json:"difficulty_level" validate:"omitempty,min=1,max=4"`
	Enabled          *bool   `json:"enabled"`
}

type AlarmResponse struct {
	ID              string     `json:"id"`
	Hour            int        `json:"hour"`
	Minute          int        `json:"minute"`
	RepeatDays      []int      `json:"repeat_days"`
	Label           string     `json:"label"`
	Enabled         bool       `json:"enabled"`
	RequiresPhoto   bool       `json:"requires_photo"`
	RequiresQRCode  bool       `json:"requires_qr_code"`
	DifficultyLevel int        `json:"difficulty_level"`
	SnoozeAllowed   bool       `json:"snooze_allowed"`
	WaitSeconds     int        `json:"wait_seconds"`
	NextFireTime    *time.Time `json:"next_fire_time,omitempty"`
}

type UpdateSettingsRequest struct {
	AwakenessEnabled *bool    `json:"awakeness_enabled"`
	Sensitivity      *float64 `json:"sensitivity" validate:"omitempty,sensitivity"`
	CountBypassed    *bool    `json:"count_bypassed"`
	RetentionDays    *int     `json:"retention_days" validate:"omitempty,min=1,max=3650"`
}

// RingingStatusResponse is the snapshot a view layer renders while an alarm
// is ringing.
type RingingStatusResponse struct {
	AlarmID          string `json:"alarm_id"`
	Label            string `json:"label"`
	PhotoNeeded      bool   `json:"photo_needed"`
	PhotoMet         bool   `json:"photo_met"`
	QRNeeded         bool   `json:"qr_needed"`
	QRMet            bool   `json:"qr_met"`
	WaitNeeded       bool   `json:"wait_needed"`
	WaitMet          bool   `json:"wait_met"`
	WaitRemaining    int    `json:"wait_remaining"`
	ValidationState  string `json:"validation_state"`
	ValidationReason string `json:"validation_reason,omitempty"`
	RetryCount       int    `json:"retry_count"`
	BypassAvailable  bool   `json:"bypass_available"`
	SnoozeAvailable  bool   `json:"snooze_available"`
	ProofCompleted   bool   `json:"proof_completed"`
	Message          string `json:"message,omitempty"`
}
