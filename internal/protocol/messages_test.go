package protocol

import (
	"encoding/json"
	"errors"
	"image"
	"testing"

	"github.com/ent0n29/facemood/internal/emotion"
)

func TestParseInbound(t *testing.T) {
	raw := []byte(`{"data":{"image":"data:image/jpeg;base64,AAAA","username":" alice "}}`)
	msg, err := ParseInbound(raw)
	if err != nil {
		t.Fatalf("ParseInbound() error = %v", err)
	}
	if msg.Data.Image != "data:image/jpeg;base64,AAAA" || msg.Data.Username != "alice" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestParseInboundWithoutUsername(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"data":{"image":"AAAA"}}`))
	if err != nil {
		t.Fatalf("ParseInbound() error = %v", err)
	}
	if msg.Data.Username != "" {
		t.Fatalf("Username = %q, want empty", msg.Data.Username)
	}
}

func TestParseInboundRejectsInvalid(t *testing.T) {
	cases := []string{
		`not json`,
		`{}`,
		`{"data":{}}`,
		`{"data":{"image":"   "}}`,
		`{"data":"x"}`,
	}
	for _, raw := range cases {
		if _, err := ParseInbound([]byte(raw)); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("ParseInbound(%s) error = %v, want ErrInvalidMessage", raw, err)
		}
	}
}

func TestPredictionWireShape(t *testing.T) {
	res := emotion.NewResult(image.Rect(0, 0, 1, 1), emotion.Scores{0.1, 0, 0, 0.7, 0.1, 0, 0.1})
	raw, err := json.Marshal(NewPrediction(res))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["emotion"] != "happy" || got["color"] != "orange" {
		t.Fatalf("unexpected prediction: %s", raw)
	}
	preds, ok := got["predictions"].(map[string]any)
	if !ok || preds["happy"] != 0.7 || len(preds) != len(emotion.Labels) {
		t.Fatalf("predictions = %v", got["predictions"])
	}
}

func TestKeepaliveWireShape(t *testing.T) {
	raw, _ := json.Marshal(NewKeepalive())
	if string(raw) != `{"message":"ping"}` {
		t.Fatalf("keepalive = %s", raw)
	}
}

func TestKind(t *testing.T) {
	if Kind(NewKeepalive()) != "keepalive" || Kind(Prediction{}) != "prediction" || Kind(42) != "unknown" {
		t.Fatalf("Kind() mismatch")
	}
}
