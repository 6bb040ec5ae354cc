// services/ringing.go
package services

import (
	"fmt"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/CristianProdius/ProAlarm/dto"
	"github.com/CristianProdius/ProAlarm/model"
	"github.com/CristianProdius/ProAlarm/shared"
)

// RingingService drives the active-alarm state machine. All session state is
// owned by a single run loop; public methods post closures onto the calls
// channel and wait for the loop to execute them, so no lock guards the
// session. Async work (photo validation, wait ticks) re-enters the loop with
// the generation it was started under and is discarded when stale.
type RingingService struct {
	context.DefaultService

	sqlSvc        *SqliteService
	alarmSvc      *AlarmService
	schedSvc      *SchedulerService
	awakeSvc      *AwakenessService
	streakSvc     *StreakService
	settingsSvc   *SettingsService
	motivationSvc *MotivationService
	mediaSvc      *MediaService
	monitorSvc    *MonitoringService

	// Platform face-landmark extractor. Absent in headless runs; extraction
	// then fails closed as a poor-quality rejection.
	extractor GeometryExtractor

	calls chan func()
	done  chan struct{}

	generation uint64
	session    *model.RingingSession
	waitStop   chan struct{}

	waitTickInterval time.Duration
}

const RINGING_SVC = "ringing_svc"

func (svc RingingService) Id() string {
	return RINGING_SVC
}

func (svc *RingingService) SetExtractor(e GeometryExtractor) {
	svc.extractor = e
}

func (svc *RingingService) Start() error {
	if svc.sqlSvc == nil {
		svc.sqlSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	}
	if svc.alarmSvc == nil {
		svc.alarmSvc = svc.Service(ALARM_SVC).(*AlarmService)
	}
	if svc.schedSvc == nil {
		svc.schedSvc = svc.Service(SCHEDULER_SVC).(*SchedulerService)
	}
	if svc.awakeSvc == nil {
		svc.awakeSvc = svc.Service(AWAKENESS_SVC).(*AwakenessService)
	}
	if svc.streakSvc == nil {
		svc.streakSvc = svc.Service(STREAK_SVC).(*StreakService)
	}
	if svc.settingsSvc == nil {
		svc.settingsSvc = svc.Service(SETTINGS_SVC).(*SettingsService)
	}
	if svc.motivationSvc == nil {
		svc.motivationSvc = svc.Service(MOTIVATION_SVC).(*MotivationService)
	}
	if svc.mediaSvc == nil {
		svc.mediaSvc = svc.Service(MEDIA_SVC).(*MediaService)
	}
	if svc.monitorSvc == nil {
		if m, ok := svc.Service(MONITORING_SVC).(*MonitoringService); ok {
			svc.monitorSvc = m
		}
	}

	return svc.boot()
}

// boot spins up the run loop once collaborators are wired.
func (svc *RingingService) boot() error {
	if svc.waitTickInterval == 0 {
		svc.waitTickInterval = time.Second
	}

	svc.calls = make(chan func(), 16)
	svc.done = make(chan struct{})

	svc.alarmSvc.setTeardownHook(svc.Teardown)

	go svc.run()
	return nil
}

func (svc *RingingService) Shutdown() {
	close(svc.done)
}

func (svc *RingingService) run() {
	for {
		select {
		case <-svc.done:
			svc.stopWaitTimer()
			return
		case fn := <-svc.calls:
			fn()
		case ev := <-svc.schedSvc.Fires():
			svc.handleFire(ev)
		}
	}
}

// post hands a closure to the run loop without waiting.
func (svc *RingingService) post(fn func()) {
	select {
	case svc.calls <- fn:
	case <-svc.done:
	}
}

// do hands a closure to the run loop and blocks until it has executed.
func (svc *RingingService) do(fn func()) {
	executed := make(chan struct{})
	svc.post(func() {
		fn()
		close(executed)
	})
	select {
	case <-executed:
	case <-svc.done:
	}
}

// ---- fire handling ----

func (svc *RingingService) handleFire(ev FireEvent) {
	if svc.session != nil {
		log.WithFields(log.Fields{
			"alarm_id": ev.Attrs.AlarmID,
			"active":   svc.session.Alarm.ID,
		}).Warn("Fire event while another alarm rings, dropped")
		return
	}

	alarm, err := svc.sqlSvc.Alarms().Get(ev.Attrs.AlarmID)
	if err != nil {
		log.WithError(err).WithField("alarm_id", ev.Attrs.AlarmID).Warn("Fire event for unknown alarm, dropped")
		return
	}
	if !alarm.Enabled {
		return
	}

	now := time.Now()
	svc.generation++
	svc.session = model.NewRingingSession(svc.generation, alarm, now)

	svc.session.Message = svc.wakeMessage(alarm, now)

	if svc.session.WaitShouldRun() {
		svc.startWaitTimer()
	}

	svc.monitorSvc.RecordAlarmFired()
	log.WithFields(log.Fields{
		"alarm_id":   alarm.ID,
		"difficulty": alarm.DifficultyLevel,
		"snooze":     ev.Attrs.Snooze,
	}).Info("Alarm ringing")
}

func (svc *RingingService) wakeMessage(alarm *model.Alarm, now time.Time) string {
	mc := MessageContext{
		Weekday:   now.Weekday(),
		TimeOfDay: TimeOfDayBucket(now.Hour()),
		Label:     alarm.Label,
	}
	if state, err := svc.streakSvc.State(); err == nil {
		mc.Streak = state.CurrentStreak
		mc.TotalCompletions = state.TotalCompletions
		mc.MissedCount = state.MissedCount
	}
	return svc.motivationSvc.Message(mc)
}

// ---- wait countdown ----

func (svc *RingingService) startWaitTimer() {
	if svc.waitStop != nil {
		return
	}
	stop := make(chan struct{})
	svc.waitStop = stop
	gen := svc.session.Generation

	go func() {
		ticker := time.NewTicker(svc.waitTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-svc.done:
				return
			case <-ticker.C:
				svc.post(func() { svc.tickWait(gen) })
			}
		}
	}()
}

func (svc *RingingService) stopWaitTimer() {
	if svc.waitStop != nil {
		close(svc.waitStop)
		svc.waitStop = nil
	}
}

func (svc *RingingService) tickWait(gen uint64) {
	if svc.session == nil || svc.session.Generation != gen || svc.session.WaitMet {
		return
	}
	svc.session.WaitRemaining--
	if svc.session.WaitRemaining <= 0 {
		svc.session.WaitRemaining = 0
		svc.session.WaitMet = true
		svc.stopWaitTimer()
	}
}

// ---- public operations ----

// Status returns a snapshot of the ringing checklist, or a not-found error
// when no alarm is ringing.
func (svc *RingingService) Status() (*dto.RingingStatusResponse, error) {
	var resp *dto.RingingStatusResponse
	var err error
	svc.do(func() {
		if svc.session == nil {
			err = shared.NewNotFoundError(fmt.Errorf("no ringing session"), "No alarm is ringing")
			return
		}
		resp = svc.snapshot()
	})
	return resp, err
}

func (svc *RingingService) snapshot() *dto.RingingStatusResponse {
	s := svc.session
	resp := &dto.RingingStatusResponse{
		AlarmID:         s.Alarm.ID,
		Label:           s.Alarm.Label,
		PhotoNeeded:     s.PhotoNeeded,
		PhotoMet:        s.PhotoMet,
		QRNeeded:        s.QRNeeded,
		QRMet:           s.QRMet,
		WaitNeeded:      s.WaitNeeded,
		WaitMet:         s.WaitMet,
		WaitRemaining:   s.WaitRemaining,
		RetryCount:      s.RetryCount,
		BypassAvailable: !s.PhotoMet && s.BypassAvailable(),
		SnoozeAvailable: s.Alarm.SnoozeAllowed() && !s.Alarm.SnoozeUsed,
		ProofCompleted:  s.IsProofCompleted(),
		Message:         s.Message,
	}

	switch v := s.Validation.(type) {
	case model.ValidationIdle:
		resp.ValidationState = "idle"
	case model.ValidationRunning:
		resp.ValidationState = "running"
	case model.ValidationPassed:
		resp.ValidationState = "passed"
	case model.ValidationFailed:
		resp.ValidationState = "failed"
		resp.ValidationReason = string(v.Reason)
	}
	return resp
}

// CapturePhoto stores the image and kicks off asynchronous awakeness
// validation. The session shows validation running until the verdict closure
// re-enters the loop.
func (svc *RingingService) CapturePhoto(image []byte) (*dto.RingingStatusResponse, error) {
	var resp *dto.RingingStatusResponse
	var err error
	svc.do(func() {
		resp, err = svc.capturePhoto(image)
	})
	return resp, err
}

func (svc *RingingService) capturePhoto(image []byte) (*dto.RingingStatusResponse, error) {
	s := svc.session
	if s == nil {
		return nil, shared.NewNotFoundError(fmt.Errorf("no ringing session"), "No alarm is ringing")
	}
	if !s.PhotoNeeded {
		return nil, shared.NewBadRequestError(fmt.Errorf("photo not required"), "This alarm does not need a photo")
	}
	if s.PhotoMet {
		return nil, shared.NewConflictError(fmt.Errorf("photo already verified"), "Photo already verified")
	}
	if _, running := s.Validation.(model.ValidationRunning); running {
		return nil, shared.NewConflictError(fmt.Errorf("validation in progress"), "Hold on, checking your last photo")
	}
	if len(image) == 0 {
		return nil, shared.NewBadRequestError(fmt.Errorf("empty image"), "Empty photo")
	}

	ref, err := svc.mediaSvc.StorePhoto(s.Alarm.ID, image, time.Now())
	if err != nil {
		return nil, err
	}
	s.PhotoRef = ref

	settings, err := svc.settingsSvc.Get()
	if err != nil {
		return nil, err
	}

	if !settings.AwakenessEnabled {
		// Verification off: the capture itself satisfies the requirement.
		score := 1.0
		s.PhotoMet = true
		s.Validation = model.ValidationPassed{Score: score}
		s.AwakenessScore = &score
		s.Message = "Photo saved. Good morning."
		if s.WaitShouldRun() {
			svc.startWaitTimer()
		}
		return svc.snapshot(), nil
	}

	s.Validation = model.ValidationRunning{}
	gen := s.Generation
	extractor := svc.extractor
	sensitivity := settings.Sensitivity

	go func() {
		verdict := svc.validate(extractor, image, sensitivity)
		svc.post(func() { svc.applyVerdict(gen, ref, verdict) })
	}()

	return svc.snapshot(), nil
}

// validate runs off the loop; it touches no session state.
func (svc *RingingService) validate(extractor GeometryExtractor, image []byte, sensitivity float64) Verdict {
	if extractor == nil {
		return svc.awakeSvc.Evaluate(nil, sensitivity)
	}
	geo, err := extractor.Extract(image)
	if err != nil {
		log.WithError(err).Warn("Face geometry extraction failed")
		return svc.awakeSvc.Evaluate(nil, sensitivity)
	}
	return svc.awakeSvc.Evaluate(geo, sensitivity)
}

func (svc *RingingService) applyVerdict(gen uint64, ref string, verdict Verdict) {
	if svc.session == nil || svc.session.Generation != gen {
		// Session ended while validating; the photo has no owner now.
		svc.mediaSvc.DeletePhoto(ref)
		return
	}
	s := svc.session

	if verdict.Accepted {
		score := verdict.Score
		s.PhotoMet = true
		s.Validation = model.ValidationPassed{Score: score}
		s.AwakenessScore = &score
		s.Message = verdict.Message
		svc.monitorSvc.RecordVerdict("accepted", "")
		if s.WaitShouldRun() {
			svc.startWaitTimer()
		}
		return
	}

	s.RetryCount++
	s.Validation = model.ValidationFailed{Reason: verdict.Reason, RetryCount: s.RetryCount}
	s.Message = verdict.Message
	s.PhotoRef = ""
	svc.mediaSvc.DeletePhoto(ref)
	svc.monitorSvc.RecordVerdict("rejected", string(verdict.Reason))

	log.WithFields(log.Fields{
		"alarm_id": s.Alarm.ID,
		"reason":   verdict.Reason,
		"retries":  s.RetryCount,
	}).Info("Photo rejected")
}

// BypassValidation force-accepts the photo requirement after the retry
// budget is exhausted. Bypassed completions carry no awakeness score.
func (svc *RingingService) BypassValidation() (*dto.RingingStatusResponse, error) {
	var resp *dto.RingingStatusResponse
	var err error
	svc.do(func() {
		s := svc.session
		if s == nil {
			err = shared.NewNotFoundError(fmt.Errorf("no ringing session"), "No alarm is ringing")
			return
		}
		if s.PhotoMet {
			err = shared.NewConflictError(fmt.Errorf("photo already verified"), "Photo already verified")
			return
		}
		if !s.BypassAvailable() {
			err = shared.NewForbiddenError(fmt.Errorf("bypass before %d failures", shared.MaxValidationRetries), "Keep trying, a few more attempts first")
			return
		}

		s.PhotoMet = true
		s.Bypassed = true
		s.Validation = model.ValidationPassed{Score: 0}
		s.Message = "Okay, we'll trust you this time."
		if s.WaitShouldRun() {
			svc.startWaitTimer()
		}
		resp = svc.snapshot()
	})
	return resp, err
}

// ScanQR checks the scanned payload against the alarm's registered code. An
// alarm forced into QR by difficulty with no registered code accepts any
// non-empty scan.
func (svc *RingingService) ScanQR(payload string) (*dto.RingingStatusResponse, error) {
	var resp *dto.RingingStatusResponse
	var err error
	svc.do(func() {
		s := svc.session
		if s == nil {
			err = shared.NewNotFoundError(fmt.Errorf("no ringing session"), "No alarm is ringing")
			return
		}
		if !s.QRNeeded {
			err = shared.NewBadRequestError(fmt.Errorf("qr not required"), "This alarm does not need a QR scan")
			return
		}
		if s.QRMet {
			err = shared.NewConflictError(fmt.Errorf("qr already scanned"), "Code already scanned")
			return
		}
		if payload == "" {
			err = shared.NewBadRequestError(fmt.Errorf("empty qr payload"), "Nothing scanned")
			return
		}
		if s.Alarm.QRCodeIdentifier != "" && payload != s.Alarm.QRCodeIdentifier {
			err = shared.NewBadRequestError(fmt.Errorf("qr mismatch"), "Wrong code. Scan the one you registered.")
			return
		}

		s.QRMet = true
		resp = svc.snapshot()
	})
	return resp, err
}

// RequestSnooze postpones the ringing alarm by the fixed snooze interval.
// One snooze per cycle; the flag resets only on completion.
func (svc *RingingService) RequestSnooze() error {
	var err error
	svc.do(func() {
		err = svc.requestSnooze()
	})
	return err
}

func (svc *RingingService) requestSnooze() error {
	s := svc.session
	if s == nil {
		return shared.NewNotFoundError(fmt.Errorf("no ringing session"), "No alarm is ringing")
	}
	if !s.Alarm.SnoozeAllowed() {
		return shared.NewForbiddenError(fmt.Errorf("snooze blocked at difficulty %d", s.Alarm.DifficultyLevel), "No snoozing at this difficulty")
	}
	if s.Alarm.SnoozeUsed {
		return shared.NewForbiddenError(fmt.Errorf("snooze already used"), "You already snoozed this one")
	}

	token, err := svc.schedSvc.Schedule(shared.SnoozeMinutes*time.Minute, ScheduleAttributes{
		AlarmID: s.Alarm.ID,
		Label:   s.Alarm.Label,
		Snooze:  true,
	})
	if err != nil {
		return err
	}

	if err := svc.sqlSvc.Alarms().UpdateSnoozeUsed(s.Alarm.ID, true); err != nil {
		svc.schedSvc.Cancel(token)
		return svc.sqlSvc.HandleError(err)
	}
	if err := svc.sqlSvc.Alarms().UpdateToken(s.Alarm.ID, token); err != nil {
		log.WithError(err).WithField("alarm_id", s.Alarm.ID).Error("Failed to store snooze token")
	}

	log.WithField("alarm_id", s.Alarm.ID).Info("Alarm snoozed")
	svc.monitorSvc.RecordSnooze()

	svc.clearSession()
	return nil
}

// RequestCompletion finishes the cycle once every proof gate is met. The
// completion record is written first; if that write fails the session stays
// and the user retries. Everything after the record is best effort in a fixed
// order.
func (svc *RingingService) RequestCompletion() (*dto.CompletionResult, error) {
	var result *dto.CompletionResult
	var err error
	svc.do(func() {
		result, err = svc.requestCompletion()
	})
	return result, err
}

func (svc *RingingService) requestCompletion() (*dto.CompletionResult, error) {
	s := svc.session
	if s == nil {
		return nil, shared.NewNotFoundError(fmt.Errorf("no ringing session"), "No alarm is ringing")
	}
	if !s.IsProofCompleted() {
		return nil, shared.NewForbiddenError(fmt.Errorf("proof incomplete"), missingGates(s))
	}

	now := time.Now()
	wasOnTime := !s.Alarm.SnoozeUsed

	record := &model.CompletionRecord{
		ID:                 uuid.New().String(),
		AlarmID:            s.Alarm.ID,
		CompletedAt:        now,
		PhotoRef:           s.PhotoRef,
		QRScanned:          s.QRMet,
		DifficultyLevel:    s.Alarm.DifficultyLevel,
		WasOnTime:          wasOnTime,
		AwakenessScore:     s.AwakenessScore,
		ValidationBypassed: s.Bypassed,
	}
	if err := svc.sqlSvc.Completions().Create(record); err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}

	// The recommendation reflects the streak the user woke up to, before this
	// completion moves it.
	change := 0
	if prior, err := svc.streakSvc.State(); err == nil {
		change = svc.streakSvc.RecommendedDifficultyChange(prior, now)
	} else {
		log.WithError(err).Error("Failed to load streak state for difficulty recommendation")
	}

	state, err := svc.streakSvc.RecordCompletion(now)
	if err != nil {
		log.WithError(err).Error("Failed to update streak after completion")
		state, _ = svc.streakSvc.State()
	}

	// The stored alarm may have been edited mid-ring and may carry a newer
	// schedule token; persist and reschedule against the fresh row, never the
	// session's copy.
	alarm, aerr := svc.sqlSvc.Alarms().Get(s.Alarm.ID)
	if aerr != nil {
		log.WithError(aerr).WithField("alarm_id", s.Alarm.ID).Error("Failed to reload alarm after completion")
		alarm = nil
	}

	if alarm != nil {
		if change != 0 && state != nil {
			svc.streakSvc.ApplyDifficultyChange(alarm, change, state.CurrentStreak)
		}
		alarm.SnoozeUsed = false
		if err := svc.sqlSvc.Alarms().Update(alarm); err != nil {
			log.WithError(err).WithField("alarm_id", alarm.ID).Error("Failed to persist post-completion alarm state")
		}
	}

	var newKinds []string
	if state != nil {
		newKinds, err = svc.streakSvc.EvaluateAchievements(state, record, now)
		if err != nil {
			log.WithError(err).Error("Failed to evaluate achievements")
		}
	}

	newDifficulty := s.Alarm.DifficultyLevel
	if alarm != nil {
		newDifficulty = alarm.DifficultyLevel
	}

	svc.clearSession()

	rescheduled := false
	if alarm != nil {
		if alarm.IsRepeating() {
			// ScheduleAlarm cancels the live token before issuing a new one.
			if err := svc.alarmSvc.ScheduleAlarm(alarm); err != nil {
				log.WithError(err).WithField("alarm_id", alarm.ID).Error("Failed to reschedule repeating alarm")
			} else {
				rescheduled = true
			}
		} else {
			// One-shot alarms retire after a completed cycle.
			svc.schedSvc.Cancel(alarm.ScheduleToken)
			alarm.Enabled = false
			alarm.ScheduleToken = ""
			if err := svc.sqlSvc.Alarms().Update(alarm); err != nil {
				log.WithError(err).WithField("alarm_id", alarm.ID).Error("Failed to disable one-shot alarm")
			}
		}
	}

	svc.monitorSvc.RecordCompletion(wasOnTime)
	if state != nil {
		svc.monitorSvc.SetCurrentStreak(state.CurrentStreak)
	}
	for range newKinds {
		svc.monitorSvc.RecordAchievementUnlock()
	}

	result := &dto.CompletionResult{
		RecordID:          record.ID,
		WasOnTime:         wasOnTime,
		DifficultyChange:  change,
		NewDifficulty:     newDifficulty,
		NewAchievements:   newKinds,
		NextFireScheduled: rescheduled,
	}
	if state != nil {
		result.CurrentStreak = state.CurrentStreak
	}

	log.WithFields(log.Fields{
		"alarm_id": record.AlarmID,
		"on_time":  wasOnTime,
		"streak":   result.CurrentStreak,
	}).Info("Wake-up cycle completed")

	return result, nil
}

// Teardown ends any active session belonging to the alarm. Called when the
// alarm is disabled or deleted mid-ring.
func (svc *RingingService) Teardown(alarmID string) {
	svc.do(func() {
		if svc.session == nil || svc.session.Alarm.ID != alarmID {
			return
		}
		log.WithField("alarm_id", alarmID).Info("Ringing session torn down")
		svc.clearSession()
	})
}

// clearSession bumps the generation so in-flight async results become stale.
func (svc *RingingService) clearSession() {
	svc.stopWaitTimer()
	svc.session = nil
	svc.generation++
}

func missingGates(s *model.RingingSession) string {
	msg := "Not done yet:"
	if s.PhotoNeeded && !s.PhotoMet {
		msg += " take your photo."
	}
	if s.QRNeeded && !s.QRMet {
		msg += " scan your code."
	}
	if s.WaitNeeded && !s.WaitMet {
		msg += fmt.Sprintf(" wait %d more seconds.", s.WaitRemaining)
	}
	return msg
}
