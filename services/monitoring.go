package services

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	MONITORING_SVC          = "monitoring_svc"
	SERVICE_NAME            = "proalarm_core"
	DEFAULT_PROMETHEUS_PORT = 2112
)

// Wake-cycle metrics
var (
	alarmsFiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alarms_fired_total",
			Help: "Total alarm fire events that opened a ringing session",
		},
	)

	completionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completions_total",
			Help: "Total completed wake-up cycles",
		},
		[]string{"on_time"},
	)

	snoozesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snoozes_total",
			Help: "Total snoozes taken",
		},
	)

	photoVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_verdicts_total",
			Help: "Awakeness verdicts by result and rejection reason",
		},
		[]string{"result", "reason"},
	)

	currentStreakDays = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "current_streak_days",
			Help: "Current consecutive-day wake-up streak",
		},
	)

	achievementsUnlockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "achievements_unlocked_total",
			Help: "Total achievements unlocked",
		},
	)
)

// System metrics
var (
	heapAllocBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heap_alloc_bytes",
			Help: "Heap memory allocated in bytes",
		},
	)

	heapSysBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heap_sys_bytes",
			Help: "Heap memory obtained from system in bytes",
		},
	)

	gcTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gc_total",
			Help: "Total number of garbage collections",
		},
	)
)

// MonitoringService exposes a localhost-only diagnostic surface: Prometheus
// metrics and a health probe. It never serves application data. All Record
// methods tolerate a nil receiver so callers need no monitoring in tests.
type MonitoringService struct {
	context.DefaultService

	port     int
	register *prometheus.Registry

	closed      chan struct{}
	server      *fiber.App
	lastGCCount uint32
}

func (svc MonitoringService) Id() string {
	return MONITORING_SVC
}

func (svc *MonitoringService) Start() error {
	svc.closed = make(chan struct{}, 1)

	portStr := os.Getenv("PROMETHEUS_PORT")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = DEFAULT_PROMETHEUS_PORT
	}
	svc.port = port

	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg.MustRegister(
		alarmsFiredTotal,
		completionsTotal,
		snoozesTotal,
		photoVerdictsTotal,
		currentStreakDays,
		achievementsUnlockedTotal,
		heapAllocBytes,
		heapSysBytes,
		gcTotal,
	)

	svc.register = reg

	go svc.updateMemoryMetrics()

	config := fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
		},
	}

	svc.server = fiber.New(config)
	svc.server.Use(recover.New())

	svc.server.Get("/metrics", svc.metricsHandler)
	svc.server.Get("/health", svc.healthHandler)

	log.Info().Int("port", svc.port).Msg("Prometheus metrics server started")
	return svc.server.Listen(fmt.Sprintf("127.0.0.1:%v", svc.port))
}

func (svc *MonitoringService) Shutdown() {
	svc.closed <- struct{}{}
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

func (svc *MonitoringService) metricsHandler(c *fiber.Ctx) error {
	handler := promhttp.HandlerFor(svc.register, promhttp.HandlerOpts{})
	return adaptor.HTTPHandler(handler)(c)
}

func (svc *MonitoringService) healthHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "healthy",
		"service":   SERVICE_NAME,
		"timestamp": time.Now().Unix(),
	})
}

// updateMemoryMetrics refreshes memory-related metrics every 15 seconds
func (svc *MonitoringService) updateMemoryMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			heapAllocBytes.Set(float64(m.Alloc))
			heapSysBytes.Set(float64(m.Sys))

			if m.NumGC > svc.lastGCCount {
				gcTotal.Add(float64(m.NumGC - svc.lastGCCount))
				svc.lastGCCount = m.NumGC
			}

		case <-svc.closed:
			return
		}
	}
}

func (svc *MonitoringService) RecordAlarmFired() {
	if svc == nil {
		return
	}
	alarmsFiredTotal.Inc()
}

func (svc *MonitoringService) RecordCompletion(onTime bool) {
	if svc == nil {
		return
	}
	completionsTotal.WithLabelValues(strconv.FormatBool(onTime)).Inc()
}

func (svc *MonitoringService) RecordSnooze() {
	if svc == nil {
		return
	}
	snoozesTotal.Inc()
}

func (svc *MonitoringService) RecordVerdict(result, reason string) {
	if svc == nil {
		return
	}
	photoVerdictsTotal.WithLabelValues(result, reason).Inc()
}

func (svc *MonitoringService) SetCurrentStreak(days int) {
	if svc == nil {
		return
	}
	currentStreakDays.Set(float64(days))
}

func (svc *MonitoringService) RecordAchievementUnlock() {
	if svc == nil {
		return
	}
	achievementsUnlockedTotal.Inc()
}
