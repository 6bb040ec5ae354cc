package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/CristianProdius/ProAlarm/model"
)

// StreakRepository handles the singleton streak aggregate.
type StreakRepository struct {
	BaseRepository
}

func NewStreakRepository(db *gorm.DB) *StreakRepository {
	return &StreakRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Get returns the streak state, creating the zero-valued singleton on first use.
func (ds *StreakRepository) Get() (*model.StreakState, error) {
	var state model.StreakState
	err := ds.db.Where("id = ?", model.StreakStateID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fresh := model.NewStreakState()
		if err := ds.db.Create(fresh).Error; err != nil {
			return nil, err
		}
		return fresh, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (ds *StreakRepository) Save(state *model.StreakState) error {
	state.UpdatedAt = time.Now()
	return ds.db.Save(state).Error
}
