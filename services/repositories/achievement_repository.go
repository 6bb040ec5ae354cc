package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CristianProdius/ProAlarm/model"
)

// AchievementRepository handles the append-only unlocked-achievement set.
type AchievementRepository struct {
	BaseRepository
}

func NewAchievementRepository(db *gorm.DB) *AchievementRepository {
	return &AchievementRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

func (ds *AchievementRepository) List() ([]model.UnlockedAchievement, error) {
	var unlocked []model.UnlockedAchievement
	if err := ds.db.Order("unlocked_at").Find(&unlocked).Error; err != nil {
		return nil, err
	}
	return unlocked, nil
}

func (ds *AchievementRepository) UnlockedKinds() (map[string]bool, error) {
	unlocked, err := ds.List()
	if err != nil {
		return nil, err
	}
	kinds := make(map[string]bool, len(unlocked))
	for _, ua := range unlocked {
		kinds[ua.Kind] = true
	}
	return kinds, nil
}

// Unlock appends a kind once; re-unlocking an existing kind is a no-op.
func (ds *AchievementRepository) Unlock(kind string, at time.Time) error {
	ua := &model.UnlockedAchievement{
		ID:         uuid.New().String(),
		Kind:       kind,
		UnlockedAt: at,
		CreatedAt:  time.Now(),
	}
	return ds.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}},
		DoNothing: true,
	}).Create(ua).Error
}
