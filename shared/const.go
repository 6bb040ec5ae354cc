package shared

const (
	DifficultyMin = 1
	DifficultyMax = 4

	// Difficulty levels 3 and 4 force a QR scan on top of any per-alarm setting.
	DifficultyQRThreshold = 3

	// Seconds the user must stay on the ringing screen at levels 2 and 4.
	DifficultyWaitSeconds = 10

	SnoozeMinutes        = 3
	MaxValidationRetries = 3
	DefaultSensitivity   = 0.7
	DefaultRetentionDays = 30
)

// Achievement kinds. Unlocks are append-only; a kind is never re-evaluated
// once present.
const (
	AchievementFirstSip     = "first_sip"
	AchievementEarlyBird    = "early_bird"
	AchievementWeekWarrior  = "week_warrior"
	AchievementMonthMaster  = "month_master"
	AchievementPerfectScore = "perfect_score"
	AchievementNoExcuses    = "no_excuses"
)

// RejectionReason classifies why a wake-up photo was not accepted.
type RejectionReason string

const (
	ReasonNoFaceDetected RejectionReason = "no_face_detected"
	ReasonMultipleFaces  RejectionReason = "multiple_faces"
	ReasonPoorQuality    RejectionReason = "poor_quality"
	ReasonFaceTooSmall   RejectionReason = "face_too_small"
	ReasonEyesClosed     RejectionReason = "eyes_closed"
)
