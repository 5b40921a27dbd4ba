// Package sink delivers trigger codes to sound outputs.
//
// A Sink is fire and forget: Emit never reports failure to the caller and
// must not block the pipeline for long. Implementations log their own
// errors.
package sink

import (
	"log"
)

// Sink accepts discrete note-on events identified by trigger code.
type Sink interface {
	Emit(code int)
}

// Func adapts an ordinary function to the Sink interface.
type Func func(code int)

// Emit calls f(code).
func (f Func) Emit(code int) {
	f(code)
}

// Multi fans every code out to each sink in order.
type Multi []Sink

// Emit forwards code to every sink.
func (m Multi) Emit(code int) {
	for _, s := range m {
		s.Emit(code)
	}
}

// Log writes each code to the standard logger.
type Log struct {
	Prefix string
}

// Emit logs the code.
func (l Log) Emit(code int) {
	log.Printf("%snote on %d", l.Prefix, code)
}

// Discard drops every code.
var Discard Sink = Func(func(int) {})
