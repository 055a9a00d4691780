package emotion

import (
	"encoding/json"
	"image"
	"testing"
)

func TestDominantTieUsesEnumerationOrder(t *testing.T) {
	scores := NewScores(map[string]float64{"Happy": 0.4, "Sad": 0.4, "Angry": 0.2})
	if got := scores.Dominant(); got != Happy {
		t.Fatalf("Dominant() = %q, want %q", got, Happy)
	}

	// Same values inserted in the other order must not change the answer.
	scores = NewScores(map[string]float64{"sad": 0.4, "angry": 0.2, "happy": 0.4})
	if got := scores.Dominant(); got != Happy {
		t.Fatalf("Dominant() = %q, want %q", got, Happy)
	}
}

func TestDominantAllZeroIsFirstLabel(t *testing.T) {
	if got := make(Scores, len(Labels)).Dominant(); got != Angry {
		t.Fatalf("Dominant() = %q, want %q", got, Angry)
	}
}

func TestNewResultClampsAndColors(t *testing.T) {
	r := NewResult(image.Rect(0, 0, 4, 4), Scores{-1, 0, 0, 2, 0, 0, 0.5})
	if r.Label != Happy {
		t.Fatalf("Label = %q, want %q", r.Label, Happy)
	}
	if r.Color != "orange" {
		t.Fatalf("Color = %q, want orange", r.Color)
	}
	if r.Scores.Get(Angry) != 0 || r.Scores.Get(Happy) != 1 {
		t.Fatalf("scores not clamped: %v", r.Scores)
	}
}

func TestScoresJSONKeyedByLowercaseLabel(t *testing.T) {
	raw, err := json.Marshal(Scores{0.1, 0, 0, 0.7, 0, 0, 0.2})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var m map[string]float64
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(m) != len(Labels) {
		t.Fatalf("len(map) = %d, want %d", len(m), len(Labels))
	}
	if m["happy"] != 0.7 || m["angry"] != 0.1 {
		t.Fatalf("unexpected map: %v", m)
	}

	var back Scores
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal(Scores) error = %v", err)
	}
	if back.Dominant() != Happy {
		t.Fatalf("Dominant() = %q, want happy", back.Dominant())
	}
}

func TestParseLabel(t *testing.T) {
	if l, ok := ParseLabel(" Surprise "); !ok || l != Surprise {
		t.Fatalf("ParseLabel() = %q, %v", l, ok)
	}
	if _, ok := ParseLabel("bored"); ok {
		t.Fatalf("ParseLabel(bored) should fail")
	}
}
