//go:build gocv

package vision

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ent0n29/facemood/internal/emotion"
)

// fer2013 models take 48x48 grayscale input and emit seven logits in
// emotion.Labels order.
const dnnInputSize = 48

// CascadeDetector finds faces with an OpenCV Haar cascade.
type CascadeDetector struct {
	mu      sync.Mutex
	cascade gocv.CascadeClassifier
}

func NewCascadeDetector(path string) (*CascadeDetector, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cascade file not found: %s", path)
	}
	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(path) {
		cascade.Close()
		return nil, fmt.Errorf("failed to load cascade: %s", path)
	}
	return &CascadeDetector{cascade: cascade}, nil
}

func (d *CascadeDetector) Detect(_ context.Context, img *image.RGBA) ([]image.Rectangle, error) {
	mat, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return nil, fmt.Errorf("image to mat: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(mat, &gray, gocv.ColorRGBAToGray); err != nil {
		return nil, fmt.Errorf("convert to grayscale: %w", err)
	}

	// CascadeClassifier keeps scratch buffers and must not run concurrently.
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cascade.DetectMultiScale(gray), nil
}

func (d *CascadeDetector) Close() error {
	return d.cascade.Close()
}

// DNNClassifier runs a fer2013-style network through OpenCV's DNN module.
type DNNClassifier struct {
	mu  sync.Mutex
	net gocv.Net
}

func NewDNNClassifier(modelPath string) (*DNNClassifier, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network: %s", modelPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}
	return &DNNClassifier{net: net}, nil
}

func (c *DNNClassifier) Classify(_ context.Context, img image.Image) (emotion.Scores, error) {
	mat, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return nil, fmt.Errorf("%w: image to mat: %v", ErrClassification, err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(mat, &gray, gocv.ColorRGBAToGray); err != nil {
		return nil, fmt.Errorf("%w: convert to grayscale: %v", ErrClassification, err)
	}

	blob := gocv.BlobFromImage(gray, 1.0/255, image.Pt(dnnInputSize, dnnInputSize), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	c.mu.Lock()
	c.net.SetInput(blob, "")
	out := c.net.Forward("")
	c.mu.Unlock()
	defer out.Close()

	if out.Total() < len(emotion.Labels) {
		return nil, fmt.Errorf("%w: unexpected output size %d", ErrClassification, out.Total())
	}
	logits := make([]float64, len(emotion.Labels))
	for i := range logits {
		logits[i] = float64(out.GetFloatAt(0, i))
	}
	return softmax(logits), nil
}

func (c *DNNClassifier) Close() error {
	return c.net.Close()
}

// softmax is skipped when the network already emits a distribution.
func softmax(v []float64) emotion.Scores {
	sum := 0.0
	isDist := true
	for _, x := range v {
		if x < 0 || x > 1 {
			isDist = false
		}
		sum += x
	}
	if isDist && math.Abs(sum-1) < 1e-3 {
		return emotion.Scores(v)
	}
	maxV := v[0]
	for _, x := range v[1:] {
		maxV = math.Max(maxV, x)
	}
	out := make(emotion.Scores, len(v))
	sum = 0
	for i, x := range v {
		out[i] = math.Exp(x - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
