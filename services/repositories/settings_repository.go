package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/CristianProdius/ProAlarm/model"
)

// SettingsRepository handles the singleton user settings row.
type SettingsRepository struct {
	BaseRepository
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

func (ds *SettingsRepository) Get() (*model.Settings, error) {
	var settings model.Settings
	err := ds.db.Where("id = ?", model.SettingsID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fresh := model.NewSettings()
		if err := ds.db.Create(fresh).Error; err != nil {
			return nil, err
		}
		return fresh, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (ds *SettingsRepository) Save(settings *model.Settings) error {
	settings.UpdatedAt = time.Now()
	return ds.db.Save(settings).Error
}
