// Package trigger turns per-frame hand observations into debounced drum
// trigger events.
//
// Each (side, finger) pair is a two-state machine, Retracted and Extended.
// Only the Retracted to Extended transition can fire, and only when the
// previous trigger of the same pair is older than the cooldown.
package trigger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayusman/airdrums/internal/kit"
)

// DefaultCooldown is the minimum time between two triggers of the same finger.
const DefaultCooldown = 200 * time.Millisecond

// ErrInvalidObservation is returned when an observation does not carry
// exactly one flag per finger.
var ErrInvalidObservation = errors.New("invalid observation")

// Point is a 2D position, normalized to the frame (0..1).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Observation is one detected hand in one frame. Fingers holds one
// "currently extended" flag per finger, indexed by kit.Finger
// (thumb, index, middle, ring, pinky).
type Observation struct {
	Side    kit.Side
	Center  Point
	Fingers []bool
}

// Event is a single drum hit.
type Event struct {
	Side   kit.Side      `json:"side"`
	Finger kit.Finger    `json:"finger"`
	Code   int           `json:"code"`
	Name   string        `json:"name"`
	At     time.Duration `json:"at"`
}

// FingerState is the stored state of one (side, finger) pair.
type FingerState struct {
	Extended    bool
	LastTrigger time.Duration
	// Triggered is false until the pair fires for the first time; until
	// then LastTrigger is meaningless and the cooldown never applies.
	Triggered bool
}

// Observer receives engine decisions. Calls happen while the side lock is
// held and must not call back into the engine.
type Observer interface {
	Triggered(ev Event)
	Suppressed(side kit.Side, finger kit.Finger, sinceLast time.Duration)
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver attaches an Observer to the engine.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// sideState holds the fingers of one hand. Hands never share a lock.
type sideState struct {
	mu      sync.Mutex
	fingers [kit.NumFingers]FingerState
}

// Engine is the debounced rising-edge detector. The instrument map and the
// cooldown are fixed at construction.
type Engine struct {
	instruments *kit.Map
	cooldown    time.Duration
	observer    Observer
	sides       [kit.NumSides]sideState
}

// New creates an Engine for the given map. A cooldown <= 0 selects
// DefaultCooldown.
func New(m *kit.Map, cooldown time.Duration, opts ...Option) *Engine {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	e := &Engine{
		instruments: m,
		cooldown:    cooldown,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Map returns the instrument map the engine was built with.
func (e *Engine) Map() *kit.Map {
	return e.instruments
}

// Cooldown returns the configured cooldown.
func (e *Engine) Cooldown() time.Duration {
	return e.cooldown
}

// Process feeds one observation taken at now into the engine and returns the
// triggers it caused, in finger order. now must come from a monotonic clock
// and be non-decreasing per side.
//
// An observation for a side without instruments yields no events and no
// error. A malformed observation returns ErrInvalidObservation and leaves
// the engine untouched.
func (e *Engine) Process(obs Observation, now time.Duration) ([]Event, error) {
	if len(obs.Fingers) != int(kit.NumFingers) {
		return nil, fmt.Errorf("%w: got %d finger flags, want %d", ErrInvalidObservation, len(obs.Fingers), kit.NumFingers)
	}
	if !e.instruments.HasSide(obs.Side) {
		return nil, nil
	}

	st := &e.sides[obs.Side]
	st.mu.Lock()
	defer st.mu.Unlock()

	var events []Event
	for _, finger := range e.instruments.FingersForSide(obs.Side) {
		binding, _ := e.instruments.Lookup(obs.Side, finger)
		fs := &st.fingers[finger]
		isUp := obs.Fingers[finger]

		if isUp && !fs.Extended {
			since := now - fs.LastTrigger
			if !fs.Triggered || since > e.cooldown {
				ev := Event{
					Side:   obs.Side,
					Finger: finger,
					Code:   binding.Code,
					Name:   binding.Name,
					At:     now,
				}
				events = append(events, ev)
				fs.LastTrigger = now
				fs.Triggered = true
				if e.observer != nil {
					e.observer.Triggered(ev)
				}
			} else if e.observer != nil {
				e.observer.Suppressed(obs.Side, finger, since)
			}
		}

		// Tracks the observation even when the edge was suppressed, so a
		// suppressed edge cannot fire on the next frame.
		fs.Extended = isUp
	}

	return events, nil
}

// State returns the stored state of a pair. The boolean is false for pairs
// without an instrument.
func (e *Engine) State(side kit.Side, finger kit.Finger) (FingerState, bool) {
	if _, ok := e.instruments.Lookup(side, finger); !ok {
		return FingerState{}, false
	}
	st := &e.sides[side]
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.fingers[finger], true
}
