package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ent0n29/facemood/internal/emotion"
	"github.com/ent0n29/facemood/internal/frame"
	"github.com/ent0n29/facemood/internal/protocol"
	"github.com/ent0n29/facemood/internal/store"
	"github.com/ent0n29/facemood/internal/vision"
)

// Frame outcomes reported to the Observer.
const (
	OutcomeClassified     = "classified"
	OutcomeMalformed      = "malformed"
	OutcomeNoFace         = "no_face"
	OutcomeClassifyFailed = "classify_failed"
)

// Processing stages reported to the Observer.
const (
	StageDecode     = "decode"
	StageDetect     = "detect"
	StageClassify   = "classify"
	StageFrameTotal = "frame_total"
)

const DefaultIdleTimeout = 30 * time.Second

// Observer receives per-frame telemetry. Implementations must be safe for
// concurrent use by many sessions.
type Observer interface {
	FrameOutcome(outcome string)
	Stage(stage string, d time.Duration)
	Keepalive()
	Throttled()
}

type nopObserver struct{}

func (nopObserver) FrameOutcome(string) {}
func (nopObserver) Stage(string, time.Duration) {}
func (nopObserver) Keepalive() {}
func (nopObserver) Throttled() {}

// Runner drives the receive, classify, persist and respond loop. One Runner
// is shared by all sessions; per-session state lives on Session.
type Runner struct {
	Decoder     *frame.Decoder
	Detector    vision.Detector
	Classifier  vision.Classifier
	Recorder    *store.Recorder
	IdleTimeout time.Duration
	Observer    Observer
	Now         func() time.Time
}

// Run processes frames from inbound until it is closed or ctx is done. Each
// outbound value is a protocol message to be written by the caller. Inbound
// closing is a normal peer disconnect and returns nil.
func (r *Runner) Run(ctx context.Context, sess *Session, inbound <-chan []byte, outbound chan<- any) error {
	if sess.State() == StateConnecting {
		if err := sess.Open(); err != nil {
			return err
		}
	}
	defer sess.BeginClose()

	idle := r.idleTimeout()
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
		case <-timer.C:
			if err := send(ctx, outbound, protocol.NewKeepalive()); err != nil {
				return err
			}
			r.observer().Keepalive()
			timer.Reset(idle)
		case raw, ok := <-inbound:
			if !ok {
				return nil
			}
			if err := r.handleFrame(ctx, sess, raw, outbound); err != nil {
				return err
			}
			timer.Reset(idle)
		}
	}
}

func (r *Runner) handleFrame(ctx context.Context, sess *Session, raw []byte, outbound chan<- any) error {
	obs := r.observer()
	start := time.Now()
	defer func() { obs.Stage(StageFrameTotal, time.Since(start)) }()
	sess.frames.Add(1)

	msg, err := protocol.ParseInbound(raw)
	if err != nil {
		log.Printf("session %s: skipping frame: %v", sess.ID, err)
		obs.FrameOutcome(OutcomeMalformed)
		return nil
	}

	stageStart := time.Now()
	f, err := r.Decoder.Decode(msg.Data.Image)
	obs.Stage(StageDecode, time.Since(stageStart))
	if err != nil {
		log.Printf("session %s: skipping frame: %v", sess.ID, err)
		obs.FrameOutcome(OutcomeMalformed)
		return nil
	}

	stageStart = time.Now()
	regions, err := r.Detector.Detect(ctx, f.Image)
	obs.Stage(StageDetect, time.Since(stageStart))
	if err != nil {
		log.Printf("session %s: region detection failed: %v", sess.ID, err)
		obs.FrameOutcome(OutcomeClassifyFailed)
		return nil
	}
	if len(regions) == 0 {
		obs.FrameOutcome(OutcomeNoFace)
		return nil
	}

	subject := sess.Subject(msg.Data.Username)
	sess.noteSubject(subject)

	for _, region := range regions {
		img, ok := vision.Crop(f.Image, region)
		if !ok {
			continue
		}
		stageStart = time.Now()
		scores, err := r.Classifier.Classify(ctx, img)
		obs.Stage(StageClassify, time.Since(stageStart))
		if err != nil {
			if !errors.Is(err, vision.ErrClassification) {
				err = fmt.Errorf("%w: %v", vision.ErrClassification, err)
			}
			log.Printf("session %s: skipping region: %v", sess.ID, err)
			obs.FrameOutcome(OutcomeClassifyFailed)
			continue
		}

		res := emotion.NewResult(region, scores)
		r.maybePersist(sess, subject, res.Label)
		if err := send(ctx, outbound, protocol.NewPrediction(res)); err != nil {
			return err
		}
		obs.FrameOutcome(OutcomeClassified)
	}
	return nil
}

// maybePersist consults the throttle only when the recorder would write
// something for subject, so frames that can never be stored do not consume
// a window.
func (r *Runner) maybePersist(sess *Session, subject string, label emotion.Label) {
	if !r.Recorder.Wants(subject) {
		return
	}
	now := r.now()
	if !sess.gate.Permit(now) {
		r.observer().Throttled()
		return
	}
	if r.Recorder.Record(sess.ID, subject, label, now) {
		sess.persisted.Add(1)
	}
}

func send(ctx context.Context, outbound chan<- any, msg any) error {
	select {
	case outbound <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
	}
}

func (r *Runner) idleTimeout() time.Duration {
	if r.IdleTimeout <= 0 {
		return DefaultIdleTimeout
	}
	return r.IdleTimeout
}

func (r *Runner) observer() Observer {
	if r.Observer == nil {
		return nopObserver{}
	}
	return r.Observer
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}
