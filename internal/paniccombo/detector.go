// Package paniccombo watches the global Press stream for a hard-coded
// escape hatch: Backspace, Escape, Enter pressed in quick succession
// triggers an immediate, clean daemon shutdown regardless of device or
// state machine.
package paniccombo

import (
	"time"

	"github.com/gildo/accentd/internal/evdevcodes"
)

// sequence is the combo the detector watches for, in order.
var sequence = [3]evdevcodes.Code{
	evdevcodes.KeyBackspace,
	evdevcodes.KeyEsc,
	evdevcodes.KeyEnter,
}

// window is the maximum elapsed time between the first and last key of
// the combo for it to count as a match.
const window = 500 * time.Millisecond

// entry is one (keycode, timestamp) pair in the ring.
type entry struct {
	code evdevcodes.Code
	at   time.Time
}

// Detector is a bounded ring of the last 3 observed Presses.
type Detector struct {
	ring [3]entry
	n    int
}

// New creates an empty detector.
func New() *Detector {
	return &Detector{}
}

// Observe records a Press and reports whether it completes the panic
// combo. Only Press actions should be offered; callers must filter.
func (d *Detector) Observe(code evdevcodes.Code, at time.Time) bool {
	d.ring[0] = d.ring[1]
	d.ring[1] = d.ring[2]
	d.ring[2] = entry{code: code, at: at}
	if d.n < 3 {
		d.n++
	}

	if d.n < 3 {
		return false
	}

	for i := 0; i < 3; i++ {
		if d.ring[i].code != sequence[i] {
			return false
		}
	}

	return d.ring[2].at.Sub(d.ring[0].at) <= window
}
