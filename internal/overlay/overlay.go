// Package overlay draws instrument labels onto preview frames.
package overlay

import (
	"image"
	"image/color"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/airdrums/internal/kit"
	"github.com/ayusman/airdrums/internal/trigger"
)

// Label placement in pixels relative to the hand center. Finger i is drawn
// at (cx+LabelOffsetX, cy+(i-2)*LabelSpacing), so the middle finger sits
// level with the center.
const (
	LabelOffsetX = 40
	LabelSpacing = 30
)

// DefaultHitDuration is how long the last-hit banner stays on screen.
const DefaultHitDuration = time.Second

var (
	labelColor  = color.RGBA{R: 255, G: 255, B: 0, A: 0}
	centerColor = color.RGBA{R: 255, G: 0, B: 255, A: 0}
	bannerColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
)

// Label is one piece of text to draw at a pixel position.
type Label struct {
	Text string
	At   image.Point
}

// Labels returns the labels for every extended, assigned finger of obs on a
// frame of the given size. Unassigned fingers and malformed observations
// yield nothing.
func Labels(obs trigger.Observation, m *kit.Map, width, height int) []Label {
	if len(obs.Fingers) != int(kit.NumFingers) {
		return nil
	}

	cx := int(obs.Center.X * float64(width))
	cy := int(obs.Center.Y * float64(height))

	var labels []Label
	for _, f := range m.FingersForSide(obs.Side) {
		if !obs.Fingers[f] {
			continue
		}
		b, _ := m.Lookup(obs.Side, f)
		labels = append(labels, Label{
			Text: b.Name,
			At:   image.Pt(cx+LabelOffsetX, cy+(int(f)-2)*LabelSpacing),
		})
	}
	return labels
}

// Renderer draws labels and a banner naming the most recent hit. It is safe
// to record hits from one goroutine while drawing from another.
type Renderer struct {
	hitDuration time.Duration

	mu      sync.Mutex
	lastHit string
	hitAt   time.Time
}

// NewRenderer creates a Renderer. hitDuration <= 0 selects
// DefaultHitDuration.
func NewRenderer(hitDuration time.Duration) *Renderer {
	if hitDuration <= 0 {
		hitDuration = DefaultHitDuration
	}
	return &Renderer{hitDuration: hitDuration}
}

// Hit records a trigger for the banner.
func (r *Renderer) Hit(ev trigger.Event, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastHit = ev.Side.String() + " " + ev.Finger.String() + ": " + ev.Name
	r.hitAt = at
}

// Banner returns the banner text, or false once it has expired.
func (r *Renderer) Banner(now time.Time) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastHit == "" || now.Sub(r.hitAt) > r.hitDuration {
		return "", false
	}
	return r.lastHit, true
}

// Draw annotates frame in place.
func (r *Renderer) Draw(frame *gocv.Mat, observations []trigger.Observation, m *kit.Map, now time.Time) {
	if frame == nil || frame.Empty() {
		return
	}
	width, height := frame.Cols(), frame.Rows()

	for _, obs := range observations {
		center := image.Pt(int(obs.Center.X*float64(width)), int(obs.Center.Y*float64(height)))
		gocv.Circle(frame, center, 6, centerColor, -1)

		for _, l := range Labels(obs, m, width, height) {
			gocv.PutText(frame, l.Text, l.At, gocv.FontHersheySimplex, 0.7, labelColor, 2)
		}
	}

	if text, ok := r.Banner(now); ok {
		gocv.PutText(frame, text, image.Pt(10, 30), gocv.FontHersheySimplex, 0.8, bannerColor, 2)
	}
}
