package sink

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Note-on status nibble. The channel is or-ed into the low nibble.
const noteOn = 0x90

// MIDI defaults: the General MIDI percussion channel (10, zero based 9) at
// full velocity.
const (
	DefaultChannel  = 9
	DefaultVelocity = 127
)

// ErrInvalidMIDIConfig is returned for channel or velocity values outside
// the MIDI ranges.
var ErrInvalidMIDIConfig = errors.New("invalid midi config")

// MIDIConfig holds the fixed part of every note-on message.
type MIDIConfig struct {
	// Channel is zero based, 0..15.
	Channel int
	// Velocity is 1..127. A velocity of 0 would be read as note-off.
	Velocity int
}

// DefaultMIDIConfig returns channel 9 with velocity 127.
func DefaultMIDIConfig() MIDIConfig {
	return MIDIConfig{
		Channel:  DefaultChannel,
		Velocity: DefaultVelocity,
	}
}

// Validate checks the channel and velocity ranges.
func (c MIDIConfig) Validate() error {
	if c.Channel < 0 || c.Channel > 15 {
		return fmt.Errorf("%w: channel %d out of range 0..15", ErrInvalidMIDIConfig, c.Channel)
	}
	if c.Velocity < 1 || c.Velocity > 127 {
		return fmt.Errorf("%w: velocity %d out of range 1..127", ErrInvalidMIDIConfig, c.Velocity)
	}
	return nil
}

// NoteOn encodes a three byte note-on message. code is masked to 7 bits.
func NoteOn(channel, code, velocity int) []byte {
	return []byte{
		byte(noteOn | (channel & 0x0f)),
		byte(code & 0x7f),
		byte(velocity & 0x7f),
	}
}

// MIDI writes raw note-on messages to a byte stream, typically a MIDI
// device node such as /dev/snd/midiC1D0.
type MIDI struct {
	mu     sync.Mutex
	w      io.Writer
	config MIDIConfig
	errs   int
}

// NewMIDI creates a MIDI sink writing to w.
func NewMIDI(w io.Writer, config MIDIConfig) (*MIDI, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &MIDI{
		w:      w,
		config: config,
	}, nil
}

// OpenMIDIDevice opens a raw MIDI device for writing.
func OpenMIDIDevice(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open midi device %s: %w", path, err)
	}
	return f, nil
}

// Config returns the channel and velocity in use.
func (m *MIDI) Config() MIDIConfig {
	return m.config
}

// Emit writes one note-on message. Write errors are logged and counted.
func (m *MIDI) Emit(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.w.Write(NoteOn(m.config.Channel, code, m.config.Velocity)); err != nil {
		m.errs++
		// Only the first failure and every hundredth after it are logged so
		// an unplugged device does not flood the log.
		if m.errs%100 == 1 {
			log.Printf("sink: midi write failed (%d failures): %v", m.errs, err)
		}
	}
}

// Errors returns how many writes have failed.
func (m *MIDI) Errors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs
}

// Close closes the underlying writer if it is an io.Closer.
func (m *MIDI) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
