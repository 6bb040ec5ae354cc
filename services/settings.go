package services

import (
	"github.com/alphabatem/common/context"

	"github.com/CristianProdius/ProAlarm/dto"
	"github.com/CristianProdius/ProAlarm/model"
	"github.com/CristianProdius/ProAlarm/shared"
)

// SettingsService fronts the persisted user-settings singleton.
type SettingsService struct {
	context.DefaultService

	sqlSvc *SqliteService
}

const SETTINGS_SVC = "settings_svc"

func (svc SettingsService) Id() string {
	return SETTINGS_SVC
}

func (svc *SettingsService) Start() error {
	if svc.sqlSvc == nil {
		svc.sqlSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	}
	return nil
}

func (svc *SettingsService) Get() (*model.Settings, error) {
	settings, err := svc.sqlSvc.Settings().Get()
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}
	return settings, nil
}

func (svc *SettingsService) Update(req dto.UpdateSettingsRequest) (*model.Settings, error) {
	if err := dto.GetValidator().Struct(req); err != nil {
		appErr := shared.NewBadRequestError(err, "Invalid settings")
		appErr.Data = dto.FormatValidationErrors(err)
		return nil, appErr
	}

	settings, err := svc.Get()
	if err != nil {
		return nil, err
	}

	if req.AwakenessEnabled != nil {
		settings.AwakenessEnabled = *req.AwakenessEnabled
	}
	if req.Sensitivity != nil {
		settings.Sensitivity = *req.Sensitivity
	}
	if req.CountBypassed != nil {
		settings.CountBypassed = *req.CountBypassed
	}
	if req.RetentionDays != nil {
		settings.RetentionDays = *req.RetentionDays
	}

	if err := svc.sqlSvc.Settings().Save(settings); err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}
	return settings, nil
}
