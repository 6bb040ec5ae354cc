package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CristianProdius/ProAlarm/dto"
	"github.com/CristianProdius/ProAlarm/model"
	"github.com/CristianProdius/ProAlarm/shared"
)

type stubExtractor struct {
	mu    sync.Mutex
	geo   *FaceGeometry
	err   error
	delay time.Duration
}

func (s *stubExtractor) Extract([]byte) (*FaceGeometry, error) {
	s.mu.Lock()
	geo, err, delay := s.geo, s.err, s.delay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return geo, err
}

func (s *stubExtractor) set(geo *FaceGeometry, err error) {
	s.mu.Lock()
	s.geo, s.err = geo, err
	s.mu.Unlock()
}

type ringingHarness struct {
	sql         *SqliteService
	sched       *SchedulerService
	alarmSvc    *AlarmService
	settingsSvc *SettingsService
	ring        *RingingService
	ext         *stubExtractor
}

func newRingingHarness(t *testing.T) *ringingHarness {
	t.Helper()

	sql := &SqliteService{database: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())}
	require.NoError(t, sql.Start())

	sched := &SchedulerService{}
	require.NoError(t, sched.Start())
	t.Cleanup(sched.Shutdown)

	media := &MediaService{sqlSvc: sql, dataDir: t.TempDir()}
	require.NoError(t, media.Start())

	motivation := &MotivationService{}
	require.NoError(t, motivation.Start())

	alarmSvc := &AlarmService{sqlSvc: sql, schedSvc: sched}
	require.NoError(t, alarmSvc.Start())

	settingsSvc := &SettingsService{sqlSvc: sql}
	ext := &stubExtractor{geo: goodGeometry()}

	ring := &RingingService{
		sqlSvc:           sql,
		alarmSvc:         alarmSvc,
		schedSvc:         sched,
		awakeSvc:         &AwakenessService{},
		streakSvc:        &StreakService{sqlSvc: sql},
		settingsSvc:      settingsSvc,
		motivationSvc:    motivation,
		mediaSvc:         media,
		extractor:        ext,
		waitTickInterval: 5 * time.Millisecond,
	}
	require.NoError(t, ring.boot())
	t.Cleanup(ring.Shutdown)

	return &ringingHarness{
		sql:         sql,
		sched:       sched,
		alarmSvc:    alarmSvc,
		settingsSvc: settingsSvc,
		ring:        ring,
		ext:         ext,
	}
}

func (h *ringingHarness) createAlarm(t *testing.T, req dto.CreateAlarmRequest) *model.Alarm {
	t.Helper()
	if req.Hour == 0 && req.Minute == 0 {
		req.Hour = 7
	}
	if req.DifficultyLevel == 0 {
		req.DifficultyLevel = 1
	}
	req.Enabled = true
	alarm, err := h.alarmSvc.Create(req)
	require.NoError(t, err)
	return alarm
}

func (h *ringingHarness) fire(alarmID string, snooze bool) {
	h.sched.fires <- FireEvent{
		Token: uuid.NewString(),
		At:    time.Now(),
		Attrs: ScheduleAttributes{AlarmID: alarmID, Snooze: snooze},
	}
}

func (h *ringingHarness) waitRinging(t *testing.T) *dto.RingingStatusResponse {
	t.Helper()
	var status *dto.RingingStatusResponse
	require.Eventually(t, func() bool {
		s, err := h.ring.Status()
		if err != nil {
			return false
		}
		status = s
		return true
	}, 2*time.Second, 5*time.Millisecond, "alarm never started ringing")
	return status
}

func (h *ringingHarness) waitStatus(t *testing.T, cond func(*dto.RingingStatusResponse) bool) *dto.RingingStatusResponse {
	t.Helper()
	var status *dto.RingingStatusResponse
	require.Eventually(t, func() bool {
		s, err := h.ring.Status()
		if err != nil {
			return false
		}
		status = s
		return cond(s)
	}, 2*time.Second, 5*time.Millisecond, "session never reached the expected state")
	return status
}

func statusCode(err error) int {
	appErr, ok := shared.GetAppError(err)
	if !ok {
		return 0
	}
	return appErr.StatusCode
}

func TestFireOpensRingingSession(t *testing.T) {
	h := newRingingHarness(t)
	alarm := h.createAlarm(t, dto.CreateAlarmRequest{Label: "Morning", RequiresPhoto: true})

	h.fire(alarm.ID, false)
	status := h.waitRinging(t)

	assert.Equal(t, alarm.ID, status.AlarmID)
	assert.True(t, status.PhotoNeeded)
	assert.False(t, status.QRNeeded)
	assert.False(t, status.WaitNeeded)
	assert.True(t, status.SnoozeAvailable)
	assert.False(t, status.ProofCompleted)
	assert.NotEmpty(t, status.Message)
	assert.Equal(t, "idle", status.ValidationState)
}

func TestPhotoOnlyCycle(t *testing.T) {
	h := newRingingHarness(t)
	alarm := h.createAlarm(t, dto.CreateAlarmRequest{RequiresPhoto: true})

	h.fire(alarm.ID, false)
	h.waitRinging(t)

	_, err := h.ring.CapturePhoto([]byte("selfie"))
	require.NoError(t, err)

	status := h.waitStatus(t, func(s *dto.RingingStatusResponse) bool { return s.PhotoMet })
	assert.Equal(t, "passed", status.ValidationState)
	assert.True(t, status.ProofCompleted)

	result, err := h.ring.RequestCompletion()
	require.NoError(t, err)
	assert.True(t, result.WasOnTime)
	assert.Equal(t, 1, result.CurrentStreak)
	assert.Contains(t, result.NewAchievements, shared.AchievementFirstSip)
	assert.False(t, result.NextFireScheduled)

	_, err = h.ring.Status()
	assert.Equal(t, 404, statusCode(err))

	// One-shot alarms retire after completion.
	stored, err := h.sql.Alarms().Get(alarm.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)

	records, err := h.sql.Completions().ListAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].WasOnTime)
	assert.NotEmpty(t, records[0].PhotoRef)
	require.NotNil(t, records[0].AwakenessScore)
	assert.Equal(t, 1.0, *records[0].AwakenessScore)
}

func TestRepeatingAlarmReschedules(t *testing.T) {
	h := newRingingHarness(t)
	alarm := h.createAlarm(t, dto.CreateAlarmRequest{RepeatDays: []int{0, 1, 2, 3, 4, 5, 6}})

	h.fire(alarm.ID, false)
	h.waitRinging(t)

	result, err := h.ring.RequestCompletion()
	require.NoError(t, err)
	assert.True(t, result.NextFireScheduled)

	stored, err := h.sql.Alarms().Get(alarm.ID)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
	assert.NotEmpty(t, stored.ScheduleToken)
}

func (h *ringingHarness) seedStreak(t *testing.T, streak int, lastCompletion time.Time) {
	t.Helper()
	state, err := h.sql.Streaks().Get()
	require.NoError(t, err)
	state.CurrentStreak = streak
	state.LongestStreak = streak
	state.TotalCompletions = streak
	state.LastCompletionDate = &lastCompletion
	require.NoError(t, h.sql.Streaks().Save(state))
}

func TestMissedDaysRaiseDifficultyOnCompletion(t *testing.T) {
	h := newRingingHarness(t)
	h.seedStreak(t, 2, time.Now().AddDate(0, 0, -3))

	alarm := h.createAlarm(t, dto.CreateAlarmRequest{DifficultyLevel: 1})
	h.fire(alarm.ID, false)
	h.waitRinging(t)

	// The recommendation must see the pre-completion state, where yesterday
	// was missed; completing today would otherwise hide the gap.
	result, err := h.ring.RequestCompletion()
	require.NoError(t, err)
	assert.Equal(t, 1, result.DifficultyChange)
	assert.Equal(t, 2, result.NewDifficulty)
	assert.Equal(t, 1, result.CurrentStreak, "the gap resets the streak")

	stored, err := h.sql.Alarms().Get(alarm.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.DifficultyLevel)
}

func TestSteadyStreakLowersDifficultyOnCompletion(t *testing.T) {
	h := newRingingHarness(t)
	h.seedStreak(t, 3, time.Now().AddDate(0, 0, -1))

	alarm := h.createAlarm(t, dto.CreateAlarmRequest{DifficultyLevel: 3})
	h.fire(alarm.ID, false)
	h.waitRinging(t)

	_, err := h.ring.ScanQR("somewhere")
	require.NoError(t, err)
	h.waitStatus(t, func(s *dto.RingingStatusResponse) bool { return s.WaitMet })

	result, err := h.ring.RequestCompletion()
	require.NoError(t, err)
	assert.Equal(t, -1, result.DifficultyChange)
	assert.Equal(t, 2, result.NewDifficulty)
	assert.Equal(t, 4, result.CurrentStreak)
}

func TestMidRingEditSurvivesCompletion(t *testing.T) {
	h := newRingingHarness(t)
	alarm := h.createAlarm(t, dto.CreateAlarmRequest{RepeatDays: []int{0, 1, 2, 3, 4, 5, 6}})

	h.fire(alarm.ID, false)
	h.waitRinging(t)

	// Editing an enabled alarm while it rings replaces its schedule token
	// without tearing down the session.
	hour := 9
	_, err := h.alarmSvc.Update(alarm.ID, dto.UpdateAlarmRequest{Hour: &hour})
	require.NoError(t, err)

	result, err := h.ring.RequestCompletion()
	require.NoError(t, err)
	assert.True(t, result.NextFireScheduled)

	stored, err := h.sql.Alarms().Get(alarm.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, stored.Hour, "the mid-ring edit must not be clobbered")
	assert.NotEmpty(t, stored.ScheduleToken)
	assert.Equal(t, 1, h.sched.manager.Pending(), "exactly one live schedule per alarm")
}

func TestCompletionBlockedUntilGatesMet(t *testing.T) {
	h := newRingingHarness(t)
	alarm := h.createAlarm(t, dto.CreateAlarmRequest{RequiresPhoto: true, DifficultyLevel: 2})

	h.fire(alarm.ID, false)
	status := h.waitRinging(t)
	assert.True(t, status.WaitNeeded)

	_, err := h.ring.RequestCompletion()
	assert.Equal(t, 403, statusCode(err))

	// The wait countdown must not tick before the photo is verified.
	time.Sleep(100 * time.Millisecond)
	status, err = h.ring.Status()
	require.NoError(t, err)
	assert.Equal(t, shared.DifficultyWaitSeconds, status.WaitRemaining)

	_, err = h.ring.CapturePhoto([]byte("selfie"))
	require.NoError(t, err)
	h.waitStatus(t, func(s *dto.RingingStatusResponse) bool { return s.PhotoMet })

	h.waitStatus(t, func(s *dto.RingingStatusResponse) bool { return s.WaitMet })

	result, err := h.ring.RequestCompletion()
	require.NoError(t, err)
	assert.True(t, result.WasOnTime)
}

func TestWaitRunsImmediatelyWithoutPhoto(t *testing.T) {
	h := newRingingHarness(t)
	alarm := h.createAlarm(t, dto.CreateAlarmRequest{DifficultyLevel: 2})

	h.fire(alarm.ID, false)
	status := h.waitRinging(t)
	assert.True(t, status.WaitNeeded)
	assert.False(t, status.PhotoNeeded)

	h.waitStatus(t, func(s *dto.RingingStatusResponse) bool { return s.WaitMet })

	_, err := h.ring.RequestCompletion()
	require.NoError(t, err)
}

func TestValidationRetriesThenBypass(t *testing.T) {
	h := newRingingHarness(t)
	closed := goodGeometry()
	closed.LeftEye = closedEye()
	closed.RightEye = closedEye()
	h.ext.set(closed, nil)

	alarm := h.createAlarm(t, dto.CreateAlarmRequest{RequiresPhoto: true})
	h.fire(alarm.ID, false)
	h.waitRinging(t)

	_, err := h.ring.BypassValidation()
	assert.Equal(t, 403, statusCode(err), "bypass must stay locked before the retry budget is spent")

	for i := 1; i <= shared.MaxValidationRetries; i++ {
		_, err := h.ring.CapturePhoto([]byte("sleepy"))
		require.NoError(t, err)

		retries := i
		status := h.waitStatus(t, func(s *dto.RingingStatusResponse) bool { return s.RetryCount == retries })
		assert.Equal(t, "failed", status.ValidationState)
		assert.Equal(t, string(shared.ReasonEyesClosed), status.ValidationReason)
	}

	status, err := h.ring.Status()
	require.NoError(t, err)
	assert.True(t, status.BypassAvailable)

	status, err = h.ring.BypassValidation()
	require.NoError(t, err)
	assert.True(t, status.PhotoMet)

	result, err := h.ring.RequestCompletion()
	require.NoError(t, err)
	assert.NotEmpty(t, result.RecordID)

	records, err := h.sql.Completions().ListAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].ValidationBypassed)
	assert.Nil(t, records[0].AwakenessScore)
}

func TestSnoozeOncePerCycle(t *testing.T) {
	h := newRingingHarness(t)
	alarm := h.createAlarm(t, dto.CreateAlarmRequest{})

	h.fire(alarm.ID, false)
	h.waitRinging(t)

	require.NoError(t, h.ring.RequestSnooze())

	_, err := h.ring.Status()
	assert.Equal(t, 404, statusCode(err), "snooze ends the session")

	stored, err := h.sql.Alarms().Get(alarm.ID)
	require.NoError(t, err)
	assert.True(t, stored.SnoozeUsed)

	// The snooze re-fire arrives with the flag still set.
	h.fire(alarm.ID, true)
	h.waitRinging(t)

	err = h.ring.RequestSnooze()
	assert.Equal(t, 403, statusCode(err))

	result, err := h.ring.RequestCompletion()
	require.NoError(t, err)
	assert.False(t, result.WasOnTime, "a snoozed cycle is never on time")

	stored, err = h.sql.Alarms().Get(alarm.ID)
	require.NoError(t, err)
	assert.False(t, stored.SnoozeUsed, "completion resets the snooze budget")
}

func TestOnTimeFollowsPersistedSnoozeFlag(t *testing.T) {
	h := newRingingHarness(t)
	alarm := h.createAlarm(t, dto.CreateAlarmRequest{})

	h.fire(alarm.ID, false)
	h.waitRinging(t)
	require.NoError(t, h.ring.RequestSnooze())

	// A restart loses the snooze marker on the fire event; the persisted
	// alarm state is what decides on-time.
	h.fire(alarm.ID, false)
	h.waitRinging(t)

	result, err := h.ring.RequestCompletion()
	require.NoError(t, err)
	assert.False(t, result.WasOnTime)
}

func TestSnoozeForbiddenAtMaxDifficulty(t *testing.T) {
	h := newRingingHarness(t)
	alarm := h.createAlarm(t, dto.CreateAlarmRequest{DifficultyLevel: shared.DifficultyMax})

	h.fire(alarm.ID, false)
	status := h.waitRinging(t)
	assert.False(t, status.SnoozeAvailable)
	assert.True(t, status.QRNeeded, "hard difficulties force a QR scan")

	err := h.ring.RequestSnooze()
	assert.Equal(t, 403, statusCode(err))
}

func TestQRScanChecksRegisteredCode(t *testing.T) {
	h := newRingingHarness(t)
	alarm := h.createAlarm(t, dto.CreateAlarmRequest{RequiresQRCode: true, QRCodeIdentifier: "kitchen-sink"})

	h.fire(alarm.ID, false)
	h.waitRinging(t)

	_, err := h.ring.ScanQR("bathroom-mirror")
	assert.Equal(t, 400, statusCode(err))

	status, err := h.ring.ScanQR("kitchen-sink")
	require.NoError(t, err)
	assert.True(t, status.QRMet)

	_, err = h.ring.ScanQR("kitchen-sink")
	assert.Equal(t, 409, statusCode(err))
}

func TestDifficultyForcedQRAcceptsAnyCode(t *testing.T) {
	h := newRingingHarness(t)
	alarm := h.createAlarm(t, dto.CreateAlarmRequest{DifficultyLevel: 3})

	h.fire(alarm.ID, false)
	status := h.waitRinging(t)
	require.True(t, status.QRNeeded)

	status, err := h.ring.ScanQR("whatever-code")
	require.NoError(t, err)
	assert.True(t, status.QRMet)
}

func TestDisabledPhotoCheckAcceptsCapture(t *testing.T) {
	h := newRingingHarness(t)
	off := false
	_, err := h.settingsSvc.Update(dto.UpdateSettingsRequest{AwakenessEnabled: &off})
	require.NoError(t, err)

	alarm := h.createAlarm(t, dto.CreateAlarmRequest{RequiresPhoto: true})
	h.fire(alarm.ID, false)
	h.waitRinging(t)

	status, err := h.ring.CapturePhoto([]byte("selfie"))
	require.NoError(t, err)
	assert.True(t, status.PhotoMet, "capture alone satisfies the gate when verification is off")
	assert.Equal(t, "passed", status.ValidationState)
}

func TestTeardownDiscardsLateVerdict(t *testing.T) {
	h := newRingingHarness(t)
	h.ext.mu.Lock()
	h.ext.delay = 50 * time.Millisecond
	h.ext.mu.Unlock()

	alarm := h.createAlarm(t, dto.CreateAlarmRequest{RequiresPhoto: true})
	h.fire(alarm.ID, false)
	h.waitRinging(t)

	_, err := h.ring.CapturePhoto([]byte("selfie"))
	require.NoError(t, err)

	h.ring.Teardown(alarm.ID)
	_, err = h.ring.Status()
	assert.Equal(t, 404, statusCode(err))

	// Re-fire and make sure the stale verdict does not leak into the new
	// session.
	h.fire(alarm.ID, false)
	h.waitRinging(t)
	time.Sleep(100 * time.Millisecond)

	status, err := h.ring.Status()
	require.NoError(t, err)
	assert.False(t, status.PhotoMet)
	assert.Equal(t, "idle", status.ValidationState)
}

func TestSecondFireDroppedWhileRinging(t *testing.T) {
	h := newRingingHarness(t)
	first := h.createAlarm(t, dto.CreateAlarmRequest{Label: "First"})
	second := h.createAlarm(t, dto.CreateAlarmRequest{Label: "Second", Hour: 8})

	h.fire(first.ID, false)
	h.waitRinging(t)

	h.fire(second.ID, false)
	time.Sleep(50 * time.Millisecond)

	status, err := h.ring.Status()
	require.NoError(t, err)
	assert.Equal(t, first.ID, status.AlarmID)
}

func TestDisablingAlarmTearsDownSession(t *testing.T) {
	h := newRingingHarness(t)
	alarm := h.createAlarm(t, dto.CreateAlarmRequest{})

	h.fire(alarm.ID, false)
	h.waitRinging(t)

	_, err := h.alarmSvc.SetEnabled(alarm.ID, false)
	require.NoError(t, err)

	_, err = h.ring.Status()
	assert.Equal(t, 404, statusCode(err))
}

func TestOperationsWithoutSession(t *testing.T) {
	h := newRingingHarness(t)

	_, err := h.ring.CapturePhoto([]byte("x"))
	assert.Equal(t, 404, statusCode(err))

	_, err = h.ring.ScanQR("x")
	assert.Equal(t, 404, statusCode(err))

	assert.Equal(t, 404, statusCode(h.ring.RequestSnooze()))

	_, err = h.ring.RequestCompletion()
	assert.Equal(t, 404, statusCode(err))
}
