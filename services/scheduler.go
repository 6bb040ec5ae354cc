// services/scheduler.go
package services

import (
	"errors"
	"os"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/CristianProdius/ProAlarm/shared"
	"github.com/CristianProdius/ProAlarm/timer"
)

// ScheduleAttributes travel with a scheduled fire so the ringing side can
// reconstruct the cycle without a lookup race.
type ScheduleAttributes struct {
	AlarmID string
	Label   string
	Snooze  bool
}

// FireEvent is one delivery on the fire stream. Events arrive in schedule
// order and are consumed by a single listener.
type FireEvent struct {
	Token string
	At    time.Time
	Attrs ScheduleAttributes
}

// AlarmScheduler is the contract the core holds against the platform's
// alarm service.
type AlarmScheduler interface {
	RequestAuthorization() error
	Schedule(fireIn time.Duration, attrs ScheduleAttributes) (string, error)
	Cancel(token string)
	Fires() <-chan FireEvent
}

var ErrAuthorizationDenied = errors.New("alarm scheduling authorization denied")

// SchedulerService is the local AlarmScheduler implementation: a min-heap
// timer manager dispatching fire events onto a buffered channel. Authorization
// is queried lazily before the first schedule and cached.
type SchedulerService struct {
	context.DefaultService

	manager *timer.Manager
	fires   chan FireEvent

	denied     bool
	authorized *bool
}

const SCHEDULER_SVC = "scheduler_svc"

func (svc SchedulerService) Id() string {
	return SCHEDULER_SVC
}

func (svc *SchedulerService) Configure(ctx *context.Context) error {
	// Lets tests and dev setups exercise the denied-authorization path.
	svc.denied = os.Getenv("SCHEDULING_DENIED") == "true"

	return svc.DefaultService.Configure(ctx)
}

func (svc *SchedulerService) Start() error {
	svc.manager = timer.NewManager()
	svc.fires = make(chan FireEvent, 16)
	svc.manager.Start()
	return nil
}

func (svc *SchedulerService) Shutdown() {
	if svc.manager != nil {
		svc.manager.Stop()
	}
}

func (svc *SchedulerService) RequestAuthorization() error {
	if svc.authorized == nil {
		granted := !svc.denied
		svc.authorized = &granted
		log.WithField("granted", granted).Info("Alarm scheduling authorization resolved")
	}
	if !*svc.authorized {
		return shared.NewForbiddenError(ErrAuthorizationDenied, "Alarm permission denied. Enable alarms in system settings.")
	}
	return nil
}

func (svc *SchedulerService) Schedule(fireIn time.Duration, attrs ScheduleAttributes) (string, error) {
	if err := svc.RequestAuthorization(); err != nil {
		return "", err
	}

	token := uuid.New().String()
	at := time.Now().Add(fireIn)

	err := svc.manager.Schedule(token, at, func() {
		// Runs on the timer dispatch goroutine; a full buffer must never
		// wedge it, so overflow is dropped.
		select {
		case svc.fires <- FireEvent{Token: token, At: at, Attrs: attrs}:
		default:
			log.WithField("alarm_id", attrs.AlarmID).Warn("Fire buffer full, event dropped")
		}
	})
	if err != nil {
		return "", shared.NewUnavailableError(err, "Could not schedule the alarm. Try again.")
	}

	log.WithFields(log.Fields{
		"alarm_id": attrs.AlarmID,
		"fire_in":  fireIn.String(),
		"snooze":   attrs.Snooze,
	}).Info("Alarm scheduled")

	return token, nil
}

func (svc *SchedulerService) Cancel(token string) {
	if token == "" {
		return
	}
	svc.manager.Cancel(token)
}

func (svc *SchedulerService) Fires() <-chan FireEvent {
	return svc.fires
}
