package trigger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/airdrums/internal/kit"
)

const ms = time.Millisecond

// flags builds a five-flag slice with the given fingers extended.
func flags(up ...kit.Finger) []bool {
	f := make([]bool, kit.NumFingers)
	for _, finger := range up {
		f[finger] = true
	}
	return f
}

func obs(side kit.Side, up ...kit.Finger) Observation {
	return Observation{Side: side, Fingers: flags(up...)}
}

func mustProcess(t *testing.T, e *Engine, o Observation, now time.Duration) []Event {
	t.Helper()
	events, err := e.Process(o, now)
	if err != nil {
		t.Fatalf("Process() at %v error = %v", now, err)
	}
	return events
}

func TestEngine_ConcreteScenario(t *testing.T) {
	e := New(kit.Default(), 200*ms)

	steps := []struct {
		at       time.Duration
		up       bool
		wantFire bool
	}{
		{0, true, true},           // first observation is a rising edge
		{50 * ms, true, false},    // still extended
		{100 * ms, false, false},  // falling edge
		{150 * ms, true, false},   // 150ms since last trigger, suppressed
		{200 * ms, false, false},  // falling edge
		{350 * ms, true, true},    // last trigger still at 0, 350ms > 200ms
		{400 * ms, true, false},   // held
		{1000 * ms, true, false},  // held for a long time
		{1100 * ms, false, false}, // released
	}

	for _, s := range steps {
		var o Observation
		if s.up {
			o = obs(kit.Left, kit.Thumb)
		} else {
			o = obs(kit.Left)
		}

		events := mustProcess(t, e, o, s.at)

		if !s.wantFire {
			if len(events) != 0 {
				t.Errorf("t=%v: expected no events, got %+v", s.at, events)
			}
			continue
		}

		if len(events) != 1 {
			t.Fatalf("t=%v: expected 1 event, got %d", s.at, len(events))
		}
		ev := events[0]
		if ev.Side != kit.Left || ev.Finger != kit.Thumb {
			t.Errorf("t=%v: event for %s/%s, want left/thumb", s.at, ev.Side, ev.Finger)
		}
		if ev.Code != 38 || ev.Name != "Snare" {
			t.Errorf("t=%v: event code/name = %d/%q, want 38/Snare", s.at, ev.Code, ev.Name)
		}
		if ev.At != s.at {
			t.Errorf("t=%v: event At = %v", s.at, ev.At)
		}
	}

	st, ok := e.State(kit.Left, kit.Thumb)
	if !ok {
		t.Fatal("left thumb should have state")
	}
	if st.LastTrigger != 350*ms {
		t.Errorf("LastTrigger = %v, want 350ms", st.LastTrigger)
	}
	if st.Extended {
		t.Error("left thumb should be retracted after the final observation")
	}
}

func TestEngine_RisingEdge(t *testing.T) {
	e := New(kit.Default(), 200*ms)

	if events := mustProcess(t, e, obs(kit.Right), 0); len(events) != 0 {
		t.Fatalf("expected no events for retracted hand, got %+v", events)
	}

	events := mustProcess(t, e, obs(kit.Right, kit.Index), 10*ms)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Code != 51 || events[0].At != 10*ms {
		t.Errorf("event = %+v, want code 51 at 10ms", events[0])
	}
}

func TestEngine_Retrigger(t *testing.T) {
	tests := []struct {
		name      string
		t3        time.Duration
		wantTimes []time.Duration
	}{
		{
			name:      "within cooldown fires once",
			t3:        250 * ms,
			wantTimes: []time.Duration{100 * ms},
		},
		{
			name:      "exactly at cooldown fires once",
			t3:        300 * ms,
			wantTimes: []time.Duration{100 * ms},
		},
		{
			name:      "after cooldown fires twice",
			t3:        301 * ms,
			wantTimes: []time.Duration{100 * ms, 301 * ms},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(kit.Default(), 200*ms)

			seq := []struct {
				at time.Duration
				up bool
			}{
				{0, false},
				{100 * ms, true},
				{200 * ms, false},
				{tt.t3, true},
			}

			var got []time.Duration
			for _, s := range seq {
				o := obs(kit.Right)
				if s.up {
					o = obs(kit.Right, kit.Pinky)
				}
				for _, ev := range mustProcess(t, e, o, s.at) {
					got = append(got, ev.At)
				}
			}

			if len(got) != len(tt.wantTimes) {
				t.Fatalf("events at %v, want %v", got, tt.wantTimes)
			}
			for i := range got {
				if got[i] != tt.wantTimes[i] {
					t.Errorf("event %d at %v, want %v", i, got[i], tt.wantTimes[i])
				}
			}
		})
	}
}

func TestEngine_SustainedFiresOnce(t *testing.T) {
	e := New(kit.Default(), 50*ms)

	total := 0
	for i := 0; i < 100; i++ {
		total += len(mustProcess(t, e, obs(kit.Left, kit.Ring, kit.Pinky), time.Duration(i)*100*ms))
	}

	if total != 2 {
		t.Errorf("expected 2 events (ring + pinky once each), got %d", total)
	}
}

func TestEngine_UnassignedNeverFires(t *testing.T) {
	m := kit.MustNew([]kit.Binding{
		{Side: kit.Left, Finger: kit.Index, Code: 41, Name: "Low Tom"},
	})
	e := New(m, 10*ms)

	for i := 0; i < 20; i++ {
		now := time.Duration(i) * 100 * ms
		var o Observation
		if i%2 == 0 {
			o = obs(kit.Left, kit.Thumb, kit.Index, kit.Middle, kit.Ring, kit.Pinky)
		} else {
			o = obs(kit.Left)
		}
		for _, ev := range mustProcess(t, e, o, now) {
			if ev.Finger != kit.Index {
				t.Fatalf("unassigned finger %s fired", ev.Finger)
			}
		}
	}

	if _, ok := e.State(kit.Left, kit.Thumb); ok {
		t.Error("unassigned pair should have no state")
	}
}

func TestEngine_UnsupportedSide(t *testing.T) {
	m := kit.MustNew([]kit.Binding{
		{Side: kit.Right, Finger: kit.Thumb, Code: 36, Name: "Bass"},
	})
	e := New(m, 0)

	events, err := e.Process(obs(kit.Left, kit.Thumb), 0)
	if err != nil {
		t.Errorf("unsupported side should not be an error, got %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %+v", events)
	}

	events, err = e.Process(Observation{Side: kit.Side(9), Fingers: flags(kit.Thumb)}, 0)
	if err != nil || len(events) != 0 {
		t.Errorf("out of range side: events=%v err=%v", events, err)
	}
}

func TestEngine_InvalidObservation(t *testing.T) {
	e := New(kit.Default(), 200*ms)

	mustProcess(t, e, obs(kit.Left), 0)

	for _, n := range []int{0, 4, 6} {
		bad := Observation{Side: kit.Left, Fingers: make([]bool, n)}
		for i := range bad.Fingers {
			bad.Fingers[i] = true
		}
		events, err := e.Process(bad, 10*ms)
		if !errors.Is(err, ErrInvalidObservation) {
			t.Errorf("%d flags: error = %v, want ErrInvalidObservation", n, err)
		}
		if len(events) != 0 {
			t.Errorf("%d flags: expected no events, got %+v", n, events)
		}
	}

	for _, f := range kit.Fingers() {
		st, _ := e.State(kit.Left, f)
		if st.Extended || st.Triggered {
			t.Errorf("%s state changed by malformed observation: %+v", f, st)
		}
	}

	// The follow-up behaves as if the malformed observations never happened.
	events := mustProcess(t, e, obs(kit.Left, kit.Thumb), 20*ms)
	if len(events) != 1 || events[0].Finger != kit.Thumb {
		t.Errorf("expected left thumb to fire, got %+v", events)
	}
}

func TestEngine_FingerOrder(t *testing.T) {
	e := New(kit.Default(), 200*ms)

	events := mustProcess(t, e, obs(kit.Right, kit.Pinky, kit.Thumb, kit.Middle, kit.Index, kit.Ring), 0)
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Finger != kit.Finger(i) {
			t.Errorf("events[%d].Finger = %s, want %s", i, ev.Finger, kit.Finger(i))
		}
	}
}

func TestEngine_HandIndependence(t *testing.T) {
	type step struct {
		o  Observation
		at time.Duration
	}

	left := []step{
		{obs(kit.Left), 0},
		{obs(kit.Left, kit.Thumb), 30 * ms},
		{obs(kit.Left), 60 * ms},
		{obs(kit.Left, kit.Thumb, kit.Index), 90 * ms},
		{obs(kit.Left), 300 * ms},
		{obs(kit.Left, kit.Thumb), 330 * ms},
	}
	right := []step{
		{obs(kit.Right, kit.Pinky), 10 * ms},
		{obs(kit.Right), 40 * ms},
		{obs(kit.Right, kit.Pinky, kit.Ring), 70 * ms},
		{obs(kit.Right), 250 * ms},
		{obs(kit.Right, kit.Pinky), 260 * ms},
	}

	run := func(order []step) []Event {
		e := New(kit.Default(), 200*ms)
		var all []Event
		for _, s := range order {
			all = append(all, mustProcess(t, e, s.o, s.at)...)
		}
		return all
	}

	sequential := run(append(append([]step{}, left...), right...))

	var interleaved []step
	for i := 0; i < len(left) || i < len(right); i++ {
		if i < len(right) {
			interleaved = append(interleaved, right[i])
		}
		if i < len(left) {
			interleaved = append(interleaved, left[i])
		}
	}
	mixed := run(interleaved)

	key := func(ev Event) [4]int64 {
		return [4]int64{int64(ev.Side), int64(ev.Finger), int64(ev.Code), int64(ev.At)}
	}
	count := func(events []Event) map[[4]int64]int {
		m := make(map[[4]int64]int)
		for _, ev := range events {
			m[key(ev)]++
		}
		return m
	}

	a, b := count(sequential), count(mixed)
	if len(sequential) != len(mixed) || len(a) != len(b) {
		t.Fatalf("sequential %+v vs interleaved %+v", sequential, mixed)
	}
	for k, n := range a {
		if b[k] != n {
			t.Errorf("event %v: sequential %d, interleaved %d", k, n, b[k])
		}
	}
}

func TestEngine_ConcurrentSides(t *testing.T) {
	e := New(kit.Default(), 200*ms)

	var wg sync.WaitGroup
	counts := make([]int, kit.NumSides)
	for _, side := range kit.Sides() {
		wg.Add(1)
		go func(side kit.Side) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				o := obs(side)
				if i%2 == 1 {
					o = obs(side, kit.Thumb)
				}
				events, err := e.Process(o, time.Duration(i)*150*ms)
				if err != nil {
					t.Errorf("Process() error = %v", err)
					return
				}
				counts[side] += len(events)
			}
		}(side)
	}
	wg.Wait()

	// Rising edges every 300ms with a 200ms cooldown: all 100 fire.
	for _, side := range kit.Sides() {
		if counts[side] != 100 {
			t.Errorf("%s: %d events, want 100", side, counts[side])
		}
	}
}

type recordingObserver struct {
	triggered  []Event
	suppressed []time.Duration
}

func (r *recordingObserver) Triggered(ev Event) {
	r.triggered = append(r.triggered, ev)
}

func (r *recordingObserver) Suppressed(side kit.Side, finger kit.Finger, sinceLast time.Duration) {
	r.suppressed = append(r.suppressed, sinceLast)
}

func TestEngine_Observer(t *testing.T) {
	rec := &recordingObserver{}
	e := New(kit.Default(), 200*ms, WithObserver(rec))

	mustProcess(t, e, obs(kit.Left, kit.Middle), 0)
	mustProcess(t, e, obs(kit.Left), 50*ms)
	mustProcess(t, e, obs(kit.Left, kit.Middle), 120*ms)

	if len(rec.triggered) != 1 || rec.triggered[0].Name != "Mid Tom" {
		t.Errorf("triggered = %+v, want one Mid Tom", rec.triggered)
	}
	if len(rec.suppressed) != 1 || rec.suppressed[0] != 120*ms {
		t.Errorf("suppressed = %v, want [120ms]", rec.suppressed)
	}
}

func TestNew_DefaultCooldown(t *testing.T) {
	if got := New(kit.Default(), 0).Cooldown(); got != DefaultCooldown {
		t.Errorf("Cooldown() = %v, want %v", got, DefaultCooldown)
	}
	if got := New(kit.Default(), -time.Second).Cooldown(); got != DefaultCooldown {
		t.Errorf("Cooldown() = %v, want %v", got, DefaultCooldown)
	}
	if got := New(kit.Default(), time.Second).Cooldown(); got != time.Second {
		t.Errorf("Cooldown() = %v, want 1s", got)
	}
}
