// Package detector provides hand landmark detection and the conversion of
// landmarks into per-finger observations.
package detector

import (
	"github.com/ayusman/airdrums/internal/kit"
	"github.com/ayusman/airdrums/internal/trigger"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// tipIndex maps each finger to its tip landmark.
var tipIndex = [kit.NumFingers]int{ThumbTip, IndexTip, MiddleTip, RingTip, PinkyTip}

// Point3D is a landmark position. X and Y are normalized to the image
// (0..1, Y grows downward); Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Side resolves the handedness label. When flip is set the label is
// swapped, which is needed when frames reach the detector unmirrored: the
// detector assumes a mirrored (selfie) image.
func (h *HandLandmarks) Side(flip bool) (kit.Side, error) {
	side, err := kit.ParseSide(h.Handedness)
	if err != nil {
		return 0, err
	}
	if flip {
		return opposite(side), nil
	}
	return side, nil
}

func opposite(side kit.Side) kit.Side {
	if side == kit.Left {
		return kit.Right
	}
	return kit.Left
}

// FingersUp reports which fingers are extended, in kit.Finger order. side is
// the handedness as labelled by the detector, i.e. as the hand appears in
// the image.
//
// The thumb folds sideways, so it is compared along X: for a right hand the
// tip must lie right of the IP joint, for a left hand left of it. The other
// fingers are extended when the tip is above the PIP joint.
func (h *HandLandmarks) FingersUp(side kit.Side) []bool {
	up := make([]bool, kit.NumFingers)

	thumbTip, thumbIP := h.Points[ThumbTip], h.Points[ThumbIP]
	if side == kit.Right {
		up[kit.Thumb] = thumbTip.X > thumbIP.X
	} else {
		up[kit.Thumb] = thumbTip.X < thumbIP.X
	}

	for f := kit.Index; f < kit.NumFingers; f++ {
		tip := tipIndex[f]
		up[f] = h.Points[tip].Y < h.Points[tip-2].Y
	}

	return up
}

// Center returns the center of the landmarks' bounding box.
func (h *HandLandmarks) Center() trigger.Point {
	minX, minY := h.Points[0].X, h.Points[0].Y
	maxX, maxY := minX, minY
	for _, p := range h.Points[1:] {
		minX = min(minX, p.X)
		maxX = max(maxX, p.X)
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}
	return trigger.Point{X: (minX + maxX) / 2, Y: (minY + maxY) / 2}
}

// Observation converts the landmarks into engine input. It fails with
// kit.ErrUnknownSide when the handedness label is not Left or Right.
func (h *HandLandmarks) Observation(flip bool) (trigger.Observation, error) {
	imageSide, err := h.Side(false)
	if err != nil {
		return trigger.Observation{}, err
	}
	side := imageSide
	if flip {
		side = opposite(imageSide)
	}
	return trigger.Observation{
		Side:    side,
		Center:  h.Center(),
		Fingers: h.FingersUp(imageSide),
	}, nil
}
