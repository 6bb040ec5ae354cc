// services/media.go
package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/CristianProdius/ProAlarm/shared"
)

// MediaService stores wake-up photos as opaque local files, content-addressed
// by alarm id and capture timestamp. Photos are the only artifact subject to
// retention cleanup; completion records survive it.
type MediaService struct {
	context.DefaultService

	sqlSvc *SqliteService

	dataDir string
}

const MEDIA_SVC = "media_svc"

func (svc MediaService) Id() string {
	return MEDIA_SVC
}

func (svc *MediaService) Configure(ctx *context.Context) error {
	svc.dataDir = os.Getenv("DATA_DIR")
	if svc.dataDir == "" {
		svc.dataDir = "data"
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *MediaService) Start() error {
	if svc.sqlSvc == nil {
		svc.sqlSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	}
	return os.MkdirAll(svc.photoDir(), 0o755)
}

func (svc *MediaService) photoDir() string {
	return filepath.Join(svc.dataDir, "photos")
}

// StorePhoto writes the captured image and returns its reference.
func (svc *MediaService) StorePhoto(alarmID string, image []byte, capturedAt time.Time) (string, error) {
	name := fmt.Sprintf("%s_%d.jpg", alarmID, capturedAt.Unix())
	path := filepath.Join(svc.photoDir(), name)

	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", shared.NewInternalError(err, "Could not save the photo")
	}
	return name, nil
}

// DeletePhoto discards a rejected capture. Missing files are fine.
func (svc *MediaService) DeletePhoto(ref string) {
	if ref == "" {
		return
	}
	if err := os.Remove(filepath.Join(svc.photoDir(), ref)); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("ref", ref).Warn("Failed to delete photo")
	}
}

// CleanupExpired removes photos older than the retention window and blanks
// their references on completion records. Best effort: cleanup failures are
// logged, never surfaced.
func (svc *MediaService) CleanupExpired(retentionDays int, now time.Time) {
	cutoff := now.AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(svc.photoDir())
	if err != nil {
		log.WithError(err).Warn("Failed to scan photo directory")
		return
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := captureTime(entry.Name())
		if !ok || !ts.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(svc.photoDir(), entry.Name())); err != nil {
			log.WithError(err).WithField("ref", entry.Name()).Warn("Failed to remove expired photo")
			continue
		}
		removed++
	}

	if err := svc.sqlSvc.Completions().ClearPhotoRefsBefore(cutoff); err != nil {
		log.WithError(err).Warn("Failed to clear expired photo references")
	}

	if removed > 0 {
		log.WithField("removed", removed).Info("Expired photos cleaned up")
	}
}

// captureTime parses the unix timestamp out of "<alarmID>_<unix>.jpg".
func captureTime(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(base[idx+1:], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}
