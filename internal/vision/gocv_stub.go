//go:build !gocv

package vision

import "fmt"

// Built without the gocv tag: OpenCV backends are not linked in.

func NewCascadeDetector(path string) (Detector, error) {
	return nil, fmt.Errorf("%w: cascade detector %q requires building with -tags gocv", ErrUnavailable, path)
}

func NewDNNClassifier(modelPath string) (Classifier, error) {
	return nil, fmt.Errorf("%w: dnn classifier %q requires building with -tags gocv", ErrUnavailable, modelPath)
}
