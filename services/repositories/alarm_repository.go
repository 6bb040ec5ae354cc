package repositories

import (
	"time"

	"gorm.io/gorm"

	"github.com/CristianProdius/ProAlarm/model"
)

// AlarmRepository handles alarm persistence.
type AlarmRepository struct {
	BaseRepository
}

func NewAlarmRepository(db *gorm.DB) *AlarmRepository {
	return &AlarmRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

func (ds *AlarmRepository) Get(alarmID string) (*model.Alarm, error) {
	var alarm model.Alarm
	if err := ds.db.Where("id = ?", alarmID).First(&alarm).Error; err != nil {
		return nil, err
	}
	return &alarm, nil
}

func (ds *AlarmRepository) List() ([]model.Alarm, error) {
	var alarms []model.Alarm
	if err := ds.db.Order("hour, minute").Find(&alarms).Error; err != nil {
		return nil, err
	}
	return alarms, nil
}

func (ds *AlarmRepository) ListEnabled() ([]model.Alarm, error) {
	var alarms []model.Alarm
	if err := ds.db.Where("enabled = ?", true).Order("hour, minute").Find(&alarms).Error; err != nil {
		return nil, err
	}
	return alarms, nil
}

func (ds *AlarmRepository) Create(alarm *model.Alarm) error {
	now := time.Now()
	alarm.CreatedAt = now
	alarm.UpdatedAt = now
	return ds.db.Create(alarm).Error
}

func (ds *AlarmRepository) Update(alarm *model.Alarm) error {
	alarm.UpdatedAt = time.Now()
	return ds.db.Save(alarm).Error
}

func (ds *AlarmRepository) Delete(alarmID string) error {
	return ds.db.Where("id = ?", alarmID).Delete(&model.Alarm{}).Error
}

// UpdateToken records the external schedule token. An empty token marks the
// alarm as unscheduled; at most one token exists per alarm.
func (ds *AlarmRepository) UpdateToken(alarmID, token string) error {
	return ds.db.Model(&model.Alarm{}).Where("id = ?", alarmID).Updates(map[string]interface{}{
		"schedule_token": token,
		"updated_at":     time.Now(),
	}).Error
}

func (ds *AlarmRepository) UpdateSnoozeUsed(alarmID string, used bool) error {
	return ds.db.Model(&model.Alarm{}).Where("id = ?", alarmID).Updates(map[string]interface{}{
		"snooze_used": used,
		"updated_at":  time.Now(),
	}).Error
}
