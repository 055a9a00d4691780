// Package emotion defines the closed label set produced by the classifier and
// the per-frame result shape sent back to clients.
package emotion

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"strings"
)

// Label is one of the fixed emotion categories.
type Label string

const (
	Angry    Label = "angry"
	Disgust  Label = "disgust"
	Fear     Label = "fear"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Surprise Label = "surprise"
	Neutral  Label = "neutral"
)

// Labels is the enumeration order. Score vectors and tie-breaking follow it.
var Labels = []Label{Angry, Disgust, Fear, Happy, Sad, Surprise, Neutral}

var colors = map[Label]string{
	Angry:    "red",
	Disgust:  "pink",
	Fear:     "lightblue",
	Happy:    "orange",
	Sad:      "gray",
	Surprise: "yellow",
	Neutral:  "lightgreen",
}

// ParseLabel resolves a label name case-insensitively.
func ParseLabel(s string) (Label, bool) {
	l := Label(strings.ToLower(strings.TrimSpace(s)))
	if Index(l) < 0 {
		return "", false
	}
	return l, true
}

// Index returns the enumeration position of l, or -1.
func Index(l Label) int {
	for i, v := range Labels {
		if v == l {
			return i
		}
	}
	return -1
}

// Color returns the display color for a label, or "" for unknown labels.
func Color(l Label) string {
	return colors[l]
}

// Scores holds one confidence per label in enumeration order.
type Scores []float64

// NewScores builds a score vector from a label keyed map. Unknown keys are
// ignored and missing labels score zero. Values are clamped into [0,1].
func NewScores(m map[string]float64) Scores {
	out := make(Scores, len(Labels))
	for k, v := range m {
		l, ok := ParseLabel(k)
		if !ok {
			continue
		}
		out[Index(l)] = clamp01(v)
	}
	return out
}

// Get returns the score for l.
func (s Scores) Get(l Label) float64 {
	i := Index(l)
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

// Dominant returns the highest scoring label. Ties go to the label that comes
// first in Labels, so the answer never depends on map iteration order.
func (s Scores) Dominant() Label {
	best := 0
	for i := 1; i < len(s) && i < len(Labels); i++ {
		if s[i] > s[best] {
			best = i
		}
	}
	return Labels[best]
}

// Map converts the vector into a label keyed map.
func (s Scores) Map() map[string]float64 {
	out := make(map[string]float64, len(Labels))
	for i, l := range Labels {
		v := 0.0
		if i < len(s) {
			v = s[i]
		}
		out[string(l)] = v
	}
	return out
}

func (s Scores) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

func (s *Scores) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("scores: %w", err)
	}
	*s = NewScores(m)
	return nil
}

// Result is the classification of one face region.
type Result struct {
	Region image.Rectangle
	Scores Scores
	Label  Label
	Color  string
}

// NewResult clamps the scores and derives the dominant label and color.
func NewResult(region image.Rectangle, scores Scores) Result {
	norm := make(Scores, len(Labels))
	for i := range norm {
		if i < len(scores) {
			norm[i] = clamp01(scores[i])
		}
	}
	label := norm.Dominant()
	return Result{
		Region: region,
		Scores: norm,
		Label:  label,
		Color:  Color(label),
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
