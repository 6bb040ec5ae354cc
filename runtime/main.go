package main

import (
	"github.com/CristianProdius/ProAlarm/services"

	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	ctx, err := context.NewCtx(
		&services.SqliteService{},
		&services.SettingsService{},
		&services.SchedulerService{},
		&services.AwakenessService{},
		&services.StreakService{},
		&services.MotivationService{},
		&services.MediaService{},
		&services.AlarmService{},
		&services.RingingService{},
		&services.AssistantService{},

		&services.MonitoringService{},
	)
	if err != nil {
		log.Fatal().Err(err)
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err)
		return
	}
}
