package services

import (
	"math"

	"github.com/alphabatem/common/context"

	"github.com/CristianProdius/ProAlarm/shared"
)

// Thresholds of the eye-openness heuristic. This is a coarse wakefulness
// check, not a liveness detector.
const (
	minCaptureQuality = 0.3
	minFaceArea       = 0.15
	earOpenThreshold  = 0.25
	minSensitivity    = 0.5
	maxSensitivity    = 0.9
)

type Point struct {
	X float64
	Y float64
}

// FaceGeometry is the output of the external landmark extractor for the
// primary detected face. Eye slices hold the 6-point eye contour in
// normalized coordinates; nil means the eye was undetectable.
type FaceGeometry struct {
	FaceCount       int
	BoundingBoxArea float64
	LeftEye         []Point
	RightEye        []Point
	Quality         float64
}

type Verdict struct {
	Accepted bool
	Score    float64
	Reason   shared.RejectionReason
	Message  string
}

// GeometryExtractor is the external collaborator turning an image into facial
// geometry. Extraction failure maps to a poor_quality rejection, never a pass.
type GeometryExtractor interface {
	Extract(image []byte) (*FaceGeometry, error)
}

type AwakenessService struct {
	context.DefaultService
}

const AWAKENESS_SVC = "awakeness_svc"

func (svc AwakenessService) Id() string {
	return AWAKENESS_SVC
}

func (svc *AwakenessService) Start() error {
	return nil
}

// Evaluate converts facial geometry into an accept/reject verdict. Pure:
// identical input and sensitivity always produce the identical verdict.
func (svc *AwakenessService) Evaluate(geo *FaceGeometry, sensitivity float64) Verdict {
	if geo == nil {
		return reject(shared.ReasonPoorQuality, 0)
	}

	if geo.FaceCount == 0 {
		return reject(shared.ReasonNoFaceDetected, 0)
	}
	if geo.FaceCount > 1 {
		return reject(shared.ReasonMultipleFaces, 0)
	}
	if geo.Quality < minCaptureQuality {
		return reject(shared.ReasonPoorQuality, 0)
	}
	if geo.BoundingBoxArea < minFaceArea {
		return reject(shared.ReasonFaceTooSmall, 0)
	}

	eyeScore := svc.eyeScore(geo)

	sensitivity = clamp(sensitivity, minSensitivity, maxSensitivity)
	adjustedThreshold := 0.5 + (sensitivity-0.5)*0.5

	if eyeScore < adjustedThreshold {
		return reject(shared.ReasonEyesClosed, eyeScore)
	}

	return Verdict{
		Accepted: true,
		Score:    eyeScore,
		Message:  feedbackMessage(eyeScore),
	}
}

// eyeScore is 1.0 with both eyes open, 0.5 with exactly one, 0.0 with none.
// An undetectable eye gets the benefit of the doubt and counts as open.
func (svc *AwakenessService) eyeScore(geo *FaceGeometry) float64 {
	open := 0
	if eyeOpen(geo.LeftEye) {
		open++
	}
	if eyeOpen(geo.RightEye) {
		open++
	}
	return float64(open) / 2
}

func eyeOpen(contour []Point) bool {
	if len(contour) != 6 {
		return true
	}
	return eyeAspectRatio(contour) > earOpenThreshold
}

// eyeAspectRatio computes EAR = (|p2-p6| + |p3-p5|) / (2*|p1-p4|) over the
// 6-point eye contour.
func eyeAspectRatio(p []Point) float64 {
	vertical := dist(p[1], p[5]) + dist(p[2], p[4])
	horizontal := dist(p[0], p[3])
	if horizontal == 0 {
		return 0
	}
	return vertical / (2 * horizontal)
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func reject(reason shared.RejectionReason, score float64) Verdict {
	return Verdict{
		Accepted: false,
		Score:    score,
		Reason:   reason,
		Message:  rejectionMessage(reason),
	}
}

func feedbackMessage(score float64) string {
	switch {
	case score >= 0.9:
		return "Wide awake! Great start."
	case score >= 0.7:
		return "Looking good, you're up."
	case score >= 0.5:
		return "Just barely awake. Keep those eyes open."
	default:
		return "Verified."
	}
}

func rejectionMessage(reason shared.RejectionReason) string {
	switch reason {
	case shared.ReasonNoFaceDetected:
		return "No face found. Point the camera at yourself."
	case shared.ReasonMultipleFaces:
		return "More than one face in frame. Try again alone."
	case shared.ReasonPoorQuality:
		return "Photo too blurry or dark. Take another one."
	case shared.ReasonFaceTooSmall:
		return "Move closer to the camera."
	case shared.ReasonEyesClosed:
		return "Eyes look closed. Open them and retake."
	default:
		return "Could not verify the photo. Take another one."
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
