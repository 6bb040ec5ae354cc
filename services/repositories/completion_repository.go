package repositories

import (
	"time"

	"gorm.io/gorm"

	"github.com/CristianProdius/ProAlarm/model"
)

// CompletionRepository handles the append-only completion history.
type CompletionRepository struct {
	BaseRepository
}

func NewCompletionRepository(db *gorm.DB) *CompletionRepository {
	return &CompletionRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

func (ds *CompletionRepository) Create(record *model.CompletionRecord) error {
	record.CreatedAt = time.Now()
	return ds.db.Create(record).Error
}

// ListAll returns every record, most recent first.
func (ds *CompletionRepository) ListAll() ([]model.CompletionRecord, error) {
	var records []model.CompletionRecord
	if err := ds.db.Order("completed_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (ds *CompletionRepository) ListByAlarm(alarmID string) ([]model.CompletionRecord, error) {
	var records []model.CompletionRecord
	if err := ds.db.Where("alarm_id = ?", alarmID).Order("completed_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (ds *CompletionRepository) CountOnTime() (int64, error) {
	var count int64
	err := ds.db.Model(&model.CompletionRecord{}).Where("was_on_time = ?", true).Count(&count).Error
	return count, err
}

// ClearPhotoRefsBefore blanks photo references on records older than the
// cutoff. Records themselves are never deleted.
func (ds *CompletionRepository) ClearPhotoRefsBefore(cutoff time.Time) error {
	return ds.db.Model(&model.CompletionRecord{}).
		Where("completed_at < ? AND photo_ref <> ''", cutoff).
		Update("photo_ref", "").Error
}
