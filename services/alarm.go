// services/alarm.go
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/CristianProdius/ProAlarm/dto"
	"github.com/CristianProdius/ProAlarm/model"
	"github.com/CristianProdius/ProAlarm/shared"
)

// AlarmService owns the alarm set and its scheduling lifecycle: an enabled
// alarm is scheduled on save, unscheduled on disable or delete, and carries
// at most one external token at any time.
type AlarmService struct {
	context.DefaultService

	sqlSvc   *SqliteService
	schedSvc *SchedulerService

	// Set by the ringing service so a disable/delete tears down an
	// in-progress session for the same alarm.
	onTeardown func(alarmID string)
}

const ALARM_SVC = "alarm_svc"

func (svc AlarmService) Id() string {
	return ALARM_SVC
}

func (svc *AlarmService) Start() error {
	if svc.sqlSvc == nil {
		svc.sqlSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	}
	if svc.schedSvc == nil {
		svc.schedSvc = svc.Service(SCHEDULER_SVC).(*SchedulerService)
	}

	return svc.rescheduleEnabled()
}

// rescheduleEnabled restores tokens for enabled alarms after a restart.
// Tokens do not survive the process; the stored ones are stale.
func (svc *AlarmService) rescheduleEnabled() error {
	alarms, err := svc.sqlSvc.Alarms().ListEnabled()
	if err != nil {
		return svc.sqlSvc.HandleError(err)
	}

	for i := range alarms {
		alarm := &alarms[i]
		alarm.ScheduleToken = ""
		if err := svc.ScheduleAlarm(alarm); err != nil {
			log.WithError(err).WithField("alarm_id", alarm.ID).Error("Failed to restore alarm schedule")
		}
	}
	return nil
}

func (svc *AlarmService) setTeardownHook(hook func(alarmID string)) {
	svc.onTeardown = hook
}

func (svc *AlarmService) Create(req dto.CreateAlarmRequest) (*model.Alarm, error) {
	if err := dto.GetValidator().Struct(req); err != nil {
		return nil, invalidAlarmError(err)
	}

	alarm := &model.Alarm{
		ID:               uuid.New().String(),
		Hour:             req.Hour,
		Minute:           req.Minute,
		Label:            req.Label,
		Enabled:          req.Enabled,
		RequiresPhoto:    req.RequiresPhoto,
		RequiresQRCode:   req.RequiresQRCode,
		QRCodeIdentifier: req.QRCodeIdentifier,
		DifficultyLevel:  req.DifficultyLevel,
	}
	alarm.SetWeekdays(toWeekdays(req.RepeatDays))

	if err := svc.sqlSvc.Alarms().Create(alarm); err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}

	if alarm.Enabled {
		if err := svc.ScheduleAlarm(alarm); err != nil {
			return alarm, err
		}
	}
	return alarm, nil
}

func (svc *AlarmService) Update(alarmID string, req dto.UpdateAlarmRequest) (*model.Alarm, error) {
	if err := dto.GetValidator().Struct(req); err != nil {
		return nil, invalidAlarmError(err)
	}

	alarm, err := svc.GetAlarm(alarmID)
	if err != nil {
		return nil, err
	}

	if req.Hour != nil {
		alarm.Hour = *req.Hour
	}
	if req.Minute != nil {
		alarm.Minute = *req.Minute
	}
	if req.RepeatDays != nil {
		alarm.SetWeekdays(toWeekdays(req.RepeatDays))
	}
	if req.Label != nil {
		alarm.Label = *req.Label
	}
	if req.RequiresPhoto != nil {
		alarm.RequiresPhoto = *req.RequiresPhoto
	}
	if req.RequiresQRCode != nil {
		alarm.RequiresQRCode = *req.RequiresQRCode
	}
	if req.QRCodeIdentifier != nil {
		alarm.QRCodeIdentifier = *req.QRCodeIdentifier
	}
	if req.DifficultyLevel != nil {
		alarm.DifficultyLevel = *req.DifficultyLevel
	}

	wasEnabled := alarm.Enabled
	if req.Enabled != nil {
		alarm.Enabled = *req.Enabled
	}

	if err := svc.sqlSvc.Alarms().Update(alarm); err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}

	switch {
	case alarm.Enabled:
		if err := svc.ScheduleAlarm(alarm); err != nil {
			return alarm, err
		}
	case wasEnabled:
		svc.unschedule(alarm)
		svc.teardown(alarm.ID)
	}

	return alarm, nil
}

func (svc *AlarmService) SetEnabled(alarmID string, enabled bool) (*model.Alarm, error) {
	return svc.Update(alarmID, dto.UpdateAlarmRequest{Enabled: &enabled})
}

func (svc *AlarmService) Delete(alarmID string) error {
	alarm, err := svc.GetAlarm(alarmID)
	if err != nil {
		return err
	}

	svc.unschedule(alarm)
	svc.teardown(alarm.ID)

	if err := svc.sqlSvc.Alarms().Delete(alarmID); err != nil {
		return svc.sqlSvc.HandleError(err)
	}
	return nil
}

func (svc *AlarmService) GetAlarm(alarmID string) (*model.Alarm, error) {
	alarm, err := svc.sqlSvc.Alarms().Get(alarmID)
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}
	return alarm, nil
}

func (svc *AlarmService) List() ([]model.Alarm, error) {
	alarms, err := svc.sqlSvc.Alarms().List()
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}
	return alarms, nil
}

// ScheduleAlarm requests an external token for the alarm's next occurrence,
// cancelling any previous token first so the one-token invariant holds.
// Scheduling failures surface to the caller and are not retried.
func (svc *AlarmService) ScheduleAlarm(alarm *model.Alarm) error {
	if alarm.ScheduleToken != "" {
		svc.schedSvc.Cancel(alarm.ScheduleToken)
		alarm.ScheduleToken = ""
	}

	fireAt := alarm.NextFireTime(time.Now())
	token, err := svc.schedSvc.Schedule(time.Until(fireAt), ScheduleAttributes{
		AlarmID: alarm.ID,
		Label:   alarm.Label,
	})
	if err != nil {
		// Leave the alarm unscheduled; the caller surfaces the message.
		if uerr := svc.sqlSvc.Alarms().UpdateToken(alarm.ID, ""); uerr != nil {
			log.WithError(uerr).WithField("alarm_id", alarm.ID).Error("Failed to clear schedule token")
		}
		return err
	}

	alarm.ScheduleToken = token
	if err := svc.sqlSvc.Alarms().UpdateToken(alarm.ID, token); err != nil {
		return svc.sqlSvc.HandleError(err)
	}

	log.WithFields(log.Fields{
		"alarm_id": alarm.ID,
		"fire_at":  fireAt.Format(time.RFC3339),
	}).Info("Alarm scheduled for next occurrence")
	return nil
}

func (svc *AlarmService) unschedule(alarm *model.Alarm) {
	if alarm.ScheduleToken == "" {
		return
	}
	svc.schedSvc.Cancel(alarm.ScheduleToken)
	alarm.ScheduleToken = ""
	if err := svc.sqlSvc.Alarms().UpdateToken(alarm.ID, ""); err != nil {
		log.WithError(err).WithField("alarm_id", alarm.ID).Error("Failed to clear schedule token")
	}
}

func (svc *AlarmService) teardown(alarmID string) {
	if svc.onTeardown != nil {
		svc.onTeardown(alarmID)
	}
}

// FindByLabel resolves a fuzzy label query for the voice/shortcut surface:
// exact match first, then unique case-insensitive substring.
func (svc *AlarmService) FindByLabel(query string) (*model.Alarm, error) {
	alarms, err := svc.List()
	if err != nil {
		return nil, err
	}

	var matches []*model.Alarm
	for i := range alarms {
		if strings.EqualFold(alarms[i].Label, query) {
			return &alarms[i], nil
		}
		if strings.Contains(strings.ToLower(alarms[i].Label), strings.ToLower(query)) {
			matches = append(matches, &alarms[i])
		}
	}

	switch len(matches) {
	case 0:
		return nil, shared.NewNotFoundError(fmt.Errorf("no alarm matching %q", query), "No alarm found with that name")
	case 1:
		return matches[0], nil
	default:
		return nil, shared.NewBadRequestError(fmt.Errorf("%d alarms matching %q", len(matches), query), "More than one alarm matches that name")
	}
}

func invalidAlarmError(err error) *shared.AppError {
	appErr := shared.NewBadRequestError(err, "Invalid alarm")
	appErr.Data = dto.FormatValidationErrors(err)
	return appErr
}

func toWeekdays(days []int) []time.Weekday {
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, time.Weekday(d))
	}
	return out
}
