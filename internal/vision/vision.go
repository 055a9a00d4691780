// Package vision holds the face-region and classification collaborators used
// by sessions. Implementations are built once at startup and shared read-only
// across all sessions.
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/ent0n29/facemood/internal/emotion"
)

var (
	// ErrClassification wraps any failure of the external classifier.
	ErrClassification = errors.New("classification failed")
	// ErrUnavailable is returned when a backend was not compiled in.
	ErrUnavailable = errors.New("vision backend unavailable")
)

// Detector finds zero or more face regions in a frame.
type Detector interface {
	Detect(ctx context.Context, img *image.RGBA) ([]image.Rectangle, error)
}

// Classifier maps an image to a score per emotion label.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (emotion.Scores, error)
}

// Config selects and configures backends.
type Config struct {
	ClassifierMode    string
	ClassifierURL     string
	ClassifierTimeout time.Duration
	ModelPath         string
	// Fallback wraps the http and gocv backends so the mock serves while
	// they fail.
	Fallback bool

	DetectorMode string
	CascadePath  string
}

// NewClassifier resolves the classifier backend and returns the resolved mode.
func NewClassifier(cfg Config) (Classifier, string, error) {
	c, mode, err := newClassifier(cfg)
	if err != nil {
		return nil, "", err
	}
	if cfg.Fallback && mode != "mock" {
		return NewFailoverClassifier(c, NewMockClassifier()), mode + "+mock", nil
	}
	return c, mode, nil
}

func newClassifier(cfg Config) (Classifier, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.ClassifierMode))
	if mode == "" {
		mode = "auto"
	}
	switch mode {
	case "http":
		if strings.TrimSpace(cfg.ClassifierURL) == "" {
			return nil, "", fmt.Errorf("CLASSIFIER_MODE=http requires CLASSIFIER_URL")
		}
		return NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout), "http", nil
	case "mock":
		return NewMockClassifier(), "mock", nil
	case "gocv":
		c, err := NewDNNClassifier(cfg.ModelPath)
		if err != nil {
			return nil, "", err
		}
		return c, "gocv", nil
	case "auto":
		if strings.TrimSpace(cfg.ClassifierURL) != "" {
			return NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout), "http", nil
		}
		return NewMockClassifier(), "mock", nil
	default:
		return nil, "", fmt.Errorf("invalid CLASSIFIER_MODE: %q (expected auto|http|mock|gocv)", cfg.ClassifierMode)
	}
}

// NewDetector resolves the face-region backend and returns the resolved mode.
func NewDetector(cfg Config) (Detector, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.DetectorMode))
	switch mode {
	case "", "full":
		return FullFrameDetector{}, "full", nil
	case "gocv":
		d, err := NewCascadeDetector(cfg.CascadePath)
		if err != nil {
			return nil, "", err
		}
		return d, "gocv", nil
	default:
		return nil, "", fmt.Errorf("invalid DETECTOR_MODE: %q (expected full|gocv)", cfg.DetectorMode)
	}
}

// FullFrameDetector treats the whole frame as a single region.
type FullFrameDetector struct{}

func (FullFrameDetector) Detect(_ context.Context, img *image.RGBA) ([]image.Rectangle, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, nil
	}
	return []image.Rectangle{img.Bounds()}, nil
}

// Crop returns the part of img inside r, clipped to the image bounds. The
// result shares pixels with img.
func Crop(img *image.RGBA, r image.Rectangle) (image.Image, bool) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil, false
	}
	if r == img.Bounds() {
		return img, true
	}
	return img.SubImage(r), true
}
