package vision

import (
	"context"
	"image"

	"github.com/ent0n29/facemood/internal/emotion"
)

// MockClassifier derives stable scores from pixel statistics. It lets the
// service run end to end without a model.
type MockClassifier struct{}

func NewMockClassifier() *MockClassifier { return &MockClassifier{} }

func (c *MockClassifier) Classify(ctx context.Context, img image.Image) (emotion.Scores, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrClassification
	}

	r, g, b := meanRGB(img)
	light := (r + g + b) / 3
	raw := emotion.Scores{
		r * (1 - g),             // angry
		g * (1 - r) * 0.5,       // disgust
		b * (1 - light),         // fear
		light * r,               // happy
		(1 - light) * (1 - r),   // sad
		abs(r-b) * light * 0.5,  // surprise
		1 - abs(r-g) - abs(g-b), // neutral
	}
	sum := 0.0
	for i, v := range raw {
		if v < 0 {
			raw[i] = 0
			v = 0
		}
		sum += v
	}
	if sum == 0 {
		raw[len(raw)-1] = 1
		return raw, nil
	}
	for i := range raw {
		raw[i] /= sum
	}
	return raw, nil
}

// meanRGB samples at most ~4k pixels and returns channel means in [0,1].
func meanRGB(img image.Image) (float64, float64, float64) {
	b := img.Bounds()
	step := 1
	for (b.Dx()/step)*(b.Dy()/step) > 4096 {
		step++
	}
	var sr, sg, sb, n float64
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r, g, bl, _ := img.At(x, y).RGBA()
			sr += float64(r)
			sg += float64(g)
			sb += float64(bl)
			n++
		}
	}
	if n == 0 {
		return 0, 0, 0
	}
	const full = 0xffff
	return sr / n / full, sg / n / full, sb / n / full
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
