package media

import "time"

// ReadyState describes whether a capture is producing frames.
type ReadyState int

// Capture ready states.
const (
	// ReadyStateLive means the capture is running and expected to produce frames.
	ReadyStateLive ReadyState = iota

	// ReadyStateEnded means the capture is stopped or its source went away.
	ReadyStateEnded
)

// String returns a human-readable string for the state.
func (s ReadyState) String() string {
	switch s {
	case ReadyStateLive:
		return "Live"
	case ReadyStateEnded:
		return "Ended"
	default:
		return "Unknown"
	}
}

// Capture is a restartable source of outbound media frames. RTPSource is the
// production implementation; the Monitor drives this interface to recover a
// stalled source without knowing what is behind it.
type Capture interface {
	// Start begins producing frames.
	Start() error

	// Stop halts the capture. A stopped capture may be started again.
	Stop() error

	// Enabled reports whether frames are forwarded to the track.
	Enabled() bool

	// SetEnabled toggles frame forwarding without stopping the capture.
	SetEnabled(enabled bool)

	// ReadyState reports whether the capture is live.
	ReadyState() ReadyState

	// LastFrameTime returns the arrival time of the most recent complete
	// frame, or the zero time if none arrived yet.
	LastFrameTime() time.Time
}
