package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/facemood/internal/emotion"
	"github.com/ent0n29/facemood/internal/reliability"
)

// HTTPClassifier posts each region as PNG to an inference endpoint.
//
// Accepted response bodies: {"predictions": {"happy": 0.9, ...}} or the bare
// label map.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClassifier{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, img image.Image) (emotion.Scores, error) {
	var body bytes.Buffer
	if err := png.Encode(&body, img); err != nil {
		return nil, fmt.Errorf("%w: encode region: %v", ErrClassification, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrClassification, err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", ErrClassification, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("%w: classifier http status %d (retryable=%t): %s",
			ErrClassification, res.StatusCode, reliability.IsRetryableHTTPStatus(res.StatusCode), strings.TrimSpace(string(detail)))
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrClassification, err)
	}
	return parseScores(raw)
}

func parseScores(raw []byte) (emotion.Scores, error) {
	var wrapped struct {
		Predictions map[string]float64 `json:"predictions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Predictions) > 0 {
		return scoresFromMap(wrapped.Predictions)
	}
	var flat map[string]float64
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrClassification, err)
	}
	return scoresFromMap(flat)
}

func scoresFromMap(m map[string]float64) (emotion.Scores, error) {
	known := 0
	for k := range m {
		if _, ok := emotion.ParseLabel(k); ok {
			known++
		}
	}
	if known == 0 {
		return nil, fmt.Errorf("%w: response has no known labels", ErrClassification)
	}
	return emotion.NewScores(m), nil
}
