package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/facemood/internal/emotion"
)

var ErrInvalidMessage = errors.New("invalid session message")

// KeepaliveText is the body of the idle keepalive.
const KeepaliveText = "ping"

// Inbound is one client frame.
type Inbound struct {
	Data InboundData `json:"data"`
}

type InboundData struct {
	Image    string `json:"image"`
	Username string `json:"username,omitempty"`
}

// Prediction is sent once per classified region.
type Prediction struct {
	Predictions emotion.Scores `json:"predictions"`
	Emotion     emotion.Label  `json:"emotion"`
	Color       string         `json:"color,omitempty"`
}

type Keepalive struct {
	Message string `json:"message"`
}

func NewPrediction(r emotion.Result) Prediction {
	return Prediction{
		Predictions: r.Scores,
		Emotion:     r.Label,
		Color:       r.Color,
	}
}

func NewKeepalive() Keepalive {
	return Keepalive{Message: KeepaliveText}
}

// ParseInbound decodes a client frame. The image must be present; the
// username is trimmed and may be empty.
func ParseInbound(raw []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	msg.Data.Image = strings.TrimSpace(msg.Data.Image)
	msg.Data.Username = strings.TrimSpace(msg.Data.Username)
	if msg.Data.Image == "" {
		return Inbound{}, fmt.Errorf("%w: missing data.image", ErrInvalidMessage)
	}
	return msg, nil
}

// Kind names an outbound message for metrics.
func Kind(msg any) string {
	switch msg.(type) {
	case Prediction, *Prediction:
		return "prediction"
	case Keepalive, *Keepalive:
		return "keepalive"
	default:
		return "unknown"
	}
}
