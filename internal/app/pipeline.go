package app

import (
	"errors"
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/airdrums/internal/capture"
	"github.com/ayusman/airdrums/internal/detector"
	"github.com/ayusman/airdrums/internal/kit"
	"github.com/ayusman/airdrums/internal/trigger"
)

// runPipeline is the main loop. It reads frames at the idle rate until the
// motion gate reports movement, then switches to the active rate and runs
// hand detection on every frame until the scene has been still for the idle
// timeout.
func (a *App) runPipeline(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	frameInterval := time.Second / time.Duration(a.settings.Camera.IdleFPS)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			frame, err := a.camera.ReadFrame()
			if err != nil {
				log.Printf("Error reading frame: %v", err)
				continue
			}

			now := time.Now()
			mode, changed := a.gate.Update(frame, now)
			if changed {
				fps := a.settings.Camera.IdleFPS
				if mode == capture.Active {
					fps = a.settings.Camera.ActiveFPS
				}
				a.camera.SetFPS(fps)
				ticker.Reset(time.Second / time.Duration(fps))
				if a.metrics != nil {
					a.metrics.ActiveMode.Set(boolGauge(mode == capture.Active))
				}
				log.Printf("Switched to %s mode", mode)
			}
			if a.metrics != nil {
				a.metrics.FramesTotal.WithLabelValues(mode.String()).Inc()
			}

			var observations []trigger.Observation
			if mode == capture.Active {
				observations = a.detect(frame, now)
			}

			a.renderer.Draw(frame, observations, a.Engine().Map(), now)
			a.publishPreview(frame)
			frame.Close()
		}
	}
}

// detect runs the hand detector on frame and feeds the result to the engine.
func (a *App) detect(frame *gocv.Mat, now time.Time) []trigger.Observation {
	d := a.Detector()
	if d == nil {
		return nil
	}

	start := time.Now()
	hands, err := d.Detect(frame)
	if a.metrics != nil {
		a.metrics.DetectDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		log.Printf("Error detecting hands: %v", err)
		return nil
	}

	return a.HandleHands(hands, now)
}

// HandleHands converts detected hands into observations taken at the given
// time, runs them through the engine and dispatches the resulting hits. It
// returns the observations that were accepted.
//
// Hands with an unknown handedness label are dropped without logging.
func (a *App) HandleHands(hands []detector.HandLandmarks, at time.Time) []trigger.Observation {
	engine := a.Engine()
	elapsed := at.Sub(a.epoch)
	flip := a.settings.Detector.FlipHandedness

	var observations []trigger.Observation
	for i := range hands {
		obs, err := hands[i].Observation(flip)
		if err != nil {
			if errors.Is(err, kit.ErrUnknownSide) {
				a.countObservation(ResultUnknownSide)
			} else {
				a.countObservation(ResultInvalid)
				log.Printf("Skipping hand: %v", err)
			}
			continue
		}

		events, err := engine.Process(obs, elapsed)
		if err != nil {
			a.countObservation(ResultInvalid)
			log.Printf("Skipping hand: %v", err)
			continue
		}
		a.countObservation(ResultOK)
		observations = append(observations, obs)

		for _, ev := range events {
			a.dispatch(ev, at)
		}
	}

	a.mu.Lock()
	a.observed = observations
	a.mu.Unlock()

	return observations
}

// dispatch forwards a hit to the sinks, the overlay and the listeners.
func (a *App) dispatch(ev trigger.Event, at time.Time) {
	a.sink.Emit(ev.Code)
	a.renderer.Hit(ev, at)

	a.mu.RLock()
	listeners := a.listeners
	a.mu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}
}

func (a *App) countObservation(result string) {
	if a.metrics != nil {
		a.metrics.ObservationsTotal.WithLabelValues(result).Inc()
	}
}

// publishPreview stores frame as the latest JPEG preview.
func (a *App) publishPreview(frame *gocv.Mat) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		log.Printf("Error encoding preview: %v", err)
		return
	}
	jpeg := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	a.mu.Lock()
	a.preview = jpeg
	a.mu.Unlock()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
