// Package kit provides the instrument map that assigns a drum sound to each
// finger of each hand.
package kit

import (
	"errors"
	"fmt"
	"strings"
)

// Side identifies which physical hand an observation belongs to.
type Side int

const (
	Left Side = iota
	Right
	// NumSides is the number of supported hand sides.
	NumSides
)

// Finger identifies a finger. The ordering matches the order of the
// "finger extended" flags produced by the hand detector.
type Finger int

const (
	Thumb Finger = iota
	Index
	Middle
	Ring
	Pinky
	// NumFingers is the number of fingers per hand.
	NumFingers
)

// Valid trigger code range. Codes are MIDI note numbers.
const (
	MinCode = 0
	MaxCode = 127
)

var (
	// ErrUnknownSide is returned when a hand side label is not recognized.
	ErrUnknownSide = errors.New("unknown hand side")
	// ErrUnknownFinger is returned when a finger name is not recognized.
	ErrUnknownFinger = errors.New("unknown finger")
	// ErrInvalidBinding is returned when a binding cannot be added to a map.
	ErrInvalidBinding = errors.New("invalid instrument binding")
)

var sideNames = [NumSides]string{"left", "right"}

var fingerNames = [NumFingers]string{"thumb", "index", "middle", "ring", "pinky"}

// Sides lists every side in order.
func Sides() []Side {
	return []Side{Left, Right}
}

// Fingers lists every finger in anatomical order.
func Fingers() []Finger {
	return []Finger{Thumb, Index, Middle, Ring, Pinky}
}

// Valid reports whether s is Left or Right.
func (s Side) Valid() bool {
	return s >= 0 && s < NumSides
}

func (s Side) String() string {
	if !s.Valid() {
		return fmt.Sprintf("side(%d)", int(s))
	}
	return sideNames[s]
}

// ParseSide parses a side name case-insensitively ("Left", "right").
func ParseSide(name string) (Side, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range sideNames {
		if s == n {
			return Side(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSide, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSide, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(text []byte) error {
	v, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Valid reports whether f is one of the five fingers.
func (f Finger) Valid() bool {
	return f >= 0 && f < NumFingers
}

func (f Finger) String() string {
	if !f.Valid() {
		return fmt.Sprintf("finger(%d)", int(f))
	}
	return fingerNames[f]
}

// ParseFinger parses a finger name case-insensitively.
func ParseFinger(name string) (Finger, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, f := range fingerNames {
		if f == n {
			return Finger(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFinger, name)
}

// MarshalText implements encoding.TextMarshaler.
func (f Finger) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFinger, int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Finger) UnmarshalText(text []byte) error {
	v, err := ParseFinger(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Binding assigns an instrument to one finger of one hand.
type Binding struct {
	Side   Side   `json:"side"`
	Finger Finger `json:"finger"`
	Code   int    `json:"code"`
	Name   string `json:"name"`
}

// Map is an immutable lookup table from (Side, Finger) to Binding.
// It is safe for concurrent use once built.
type Map struct {
	slots    [NumSides][NumFingers]Binding
	assigned [NumSides][NumFingers]bool
	count    int
}

// New builds a Map from the given bindings. Every (side, finger) pair may be
// bound at most once; pairs without a binding are left unassigned.
func New(bindings []Binding) (*Map, error) {
	m := &Map{}
	for _, b := range bindings {
		if err := validate(b); err != nil {
			return nil, err
		}
		if m.assigned[b.Side][b.Finger] {
			return nil, fmt.Errorf("%w: %s %s bound twice", ErrInvalidBinding, b.Side, b.Finger)
		}
		m.slots[b.Side][b.Finger] = b
		m.assigned[b.Side][b.Finger] = true
		m.count++
	}
	return m, nil
}

// MustNew is like New but panics on error. Intended for static tables.
func MustNew(bindings []Binding) *Map {
	m, err := New(bindings)
	if err != nil {
		panic(err)
	}
	return m
}

func validate(b Binding) error {
	if !b.Side.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrInvalidBinding, ErrUnknownSide, int(b.Side))
	}
	if !b.Finger.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrInvalidBinding, ErrUnknownFinger, int(b.Finger))
	}
	if b.Code < MinCode || b.Code > MaxCode {
		return fmt.Errorf("%w: %s %s code %d out of range %d..%d",
			ErrInvalidBinding, b.Side, b.Finger, b.Code, MinCode, MaxCode)
	}
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: %s %s has no name", ErrInvalidBinding, b.Side, b.Finger)
	}
	return nil
}

// Lookup returns the binding for the pair. The boolean is false when the
// pair has no instrument, which is not an error.
func (m *Map) Lookup(side Side, finger Finger) (Binding, bool) {
	if m == nil || !side.Valid() || !finger.Valid() {
		return Binding{}, false
	}
	if !m.assigned[side][finger] {
		return Binding{}, false
	}
	return m.slots[side][finger], true
}

// FingersForSide returns the assigned fingers of a side in anatomical order.
func (m *Map) FingersForSide(side Side) []Finger {
	if m == nil || !side.Valid() {
		return nil
	}
	var fingers []Finger
	for f := Thumb; f < NumFingers; f++ {
		if m.assigned[side][f] {
			fingers = append(fingers, f)
		}
	}
	return fingers
}

// HasSide reports whether at least one finger of the side is assigned.
func (m *Map) HasSide(side Side) bool {
	if m == nil || !side.Valid() {
		return false
	}
	for f := Thumb; f < NumFingers; f++ {
		if m.assigned[side][f] {
			return true
		}
	}
	return false
}

// Bindings returns all bindings ordered by side then finger.
func (m *Map) Bindings() []Binding {
	if m == nil {
		return nil
	}
	out := make([]Binding, 0, m.count)
	for s := Left; s < NumSides; s++ {
		for f := Thumb; f < NumFingers; f++ {
			if m.assigned[s][f] {
				out = append(out, m.slots[s][f])
			}
		}
	}
	return out
}

// Len returns the number of assigned pairs.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return m.count
}

// Default returns the ten-piece drum kit. Codes follow the General MIDI
// percussion key map.
func Default() *Map {
	return MustNew([]Binding{
		{Side: Left, Finger: Thumb, Code: 38, Name: "Snare"},
		{Side: Left, Finger: Index, Code: 41, Name: "Low Tom"},
		{Side: Left, Finger: Middle, Code: 47, Name: "Mid Tom"},
		{Side: Left, Finger: Ring, Code: 45, Name: "Tom"},
		{Side: Left, Finger: Pinky, Code: 42, Name: "Hi-Hat"},
		{Side: Right, Finger: Thumb, Code: 36, Name: "Bass"},
		{Side: Right, Finger: Index, Code: 51, Name: "Ride Cymbal"},
		{Side: Right, Finger: Middle, Code: 49, Name: "Crash 1"},
		{Side: Right, Finger: Ring, Code: 57, Name: "Crash 2"},
		{Side: Right, Finger: Pinky, Code: 55, Name: "Splash"},
	})
}
