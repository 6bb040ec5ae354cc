package services

import (
	"errors"
	"os"
	"strings"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/CristianProdius/ProAlarm/model"
	"github.com/CristianProdius/ProAlarm/services/repositories"
	"github.com/CristianProdius/ProAlarm/shared"
)

type SqliteService struct {
	context.DefaultService
	db *gorm.DB

	database string

	alarmRepo       *repositories.AlarmRepository
	completionRepo  *repositories.CompletionRepository
	streakRepo      *repositories.StreakRepository
	achievementRepo *repositories.AchievementRepository
	settingsRepo    *repositories.SettingsRepository
}

const SQLITE_SVC = "sqlite_svc"

// Id returns Service ID
func (ds SqliteService) Id() string {
	return SQLITE_SVC
}

// Db Access to raw SqliteService db
func (ds *SqliteService) Db() *gorm.DB {
	return ds.db
}

func (ds *SqliteService) Alarms() *repositories.AlarmRepository {
	return ds.alarmRepo
}

func (ds *SqliteService) Completions() *repositories.CompletionRepository {
	return ds.completionRepo
}

func (ds *SqliteService) Streaks() *repositories.StreakRepository {
	return ds.streakRepo
}

func (ds *SqliteService) Achievements() *repositories.AchievementRepository {
	return ds.achievementRepo
}

func (ds *SqliteService) Settings() *repositories.SettingsRepository {
	return ds.settingsRepo
}

// Configure the service
func (ds *SqliteService) Configure(ctx *context.Context) error {
	ds.database = os.Getenv("DB_DATABASE")
	if ds.database == "" {
		ds.database = "proalarm.db"
	}

	return ds.DefaultService.Configure(ctx)
}

// Start the service and open connection to the database
// Migrate any tables that have changed since last runtime
func (ds *SqliteService) Start() (err error) {
	ds.db, err = gorm.Open(sqlite.Open(ds.database), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return err
	}

	models := []interface{}{
		&model.Alarm{},
		&model.CompletionRecord{},
		&model.StreakState{},
		&model.UnlockedAchievement{},
		&model.Settings{},
	}

	err = ds.db.AutoMigrate(models...)
	if err != nil {
		log.WithError(err).Error("Failed to migrate database")
		return err
	}

	ds.alarmRepo = repositories.NewAlarmRepository(ds.db)
	ds.completionRepo = repositories.NewCompletionRepository(ds.db)
	ds.streakRepo = repositories.NewStreakRepository(ds.db)
	ds.achievementRepo = repositories.NewAchievementRepository(ds.db)
	ds.settingsRepo = repositories.NewSettingsRepository(ds.db)

	log.Println("Database connected and migrated successfully")
	return nil
}

func (ds *SqliteService) Shutdown() {
}

// HandleError maps storage errors onto the AppError taxonomy.
func (ds *SqliteService) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var mapped *shared.AppError

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		mapped = shared.NewNotFoundError(err, "Not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		mapped = shared.NewConflictError(err, "Conflict")
	case errors.Is(err, gorm.ErrInvalidTransaction):
		mapped = shared.NewInternalError(err, "Transaction error")
	default:
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			mapped = shared.NewConflictError(err, "Conflict")
		} else {
			mapped = shared.NewInternalError(err, "Storage error")
		}
	}

	logEntry := log.WithFields(log.Fields{
		"status_code": mapped.StatusCode,
		"error":       err.Error(),
	})

	if mapped.StatusCode >= 500 {
		logEntry.Error("Database error occurred")
	} else {
		logEntry.Warn("Database operation failed")
	}

	return mapped
}
