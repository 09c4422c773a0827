package sessiontree

import "sync"

// Interruption reports the outcome of a checkpoint evaluation.
type Interruption int

const (
	// InterruptNone means execution should proceed.
	InterruptNone Interruption = iota

	// InterruptAbort means the checkpointed node aborted its whole
	// subtree; no further work should run under it.
	InterruptAbort

	// InterruptSkip means only the named child was aborted; the rest
	// of the iteration proceeds.
	InterruptSkip
)

// String returns the string representation of the Interruption.
func (i Interruption) String() string {
	switch i {
	case InterruptAbort:
		return "abort"
	case InterruptSkip:
		return "skip"
	default:
		return "none"
	}
}

// Monitor is an optional display collaborator. The engine only triggers
// a non-blocking refresh on it at each checkpoint and never reads data
// back from it.
type Monitor interface {
	Refresh()
}

// MonitorFunc adapts a function to the Monitor interface.
type MonitorFunc func()

// Refresh invokes the wrapped function.
func (f MonitorFunc) Refresh() { f() }

// Calibrator is an external collaborator exposing a single calibration
// operation. The engine invokes it once per recalibration request and
// then discards the reference.
type Calibrator interface {
	Calibrate() error
}

// CalibratorFunc adapts a function to the Calibrator interface.
type CalibratorFunc func() error

// Calibrate invokes the wrapped function.
func (f CalibratorFunc) Calibrate() error { return f() }

// FlowSignals holds the per-node control flags mutated by external
// controllers (UI, supervisory code) and consumed by the node's own
// checkpoint logic. Setters are safe to call from another goroutine;
// flags are read and cleared only at checkpoints.
type FlowSignals struct {
	mu         sync.Mutex
	abort      bool
	pause      bool
	skip       bool
	calibrator Calibrator
}

// RequestAbort asks the node to stop its subtree at the next checkpoint.
func (s *FlowSignals) RequestAbort() {
	s.mu.Lock()
	s.abort = true
	s.mu.Unlock()
}

// RequestPause asks the node to block at its next checkpoint until the
// pause is cleared or an abort is requested.
func (s *FlowSignals) RequestPause() {
	s.mu.Lock()
	s.pause = true
	s.mu.Unlock()
}

// ClearPause releases a pending or active pause.
func (s *FlowSignals) ClearPause() {
	s.mu.Lock()
	s.pause = false
	s.mu.Unlock()
}

// RequestSkip asks the node to abort only the child named at the next
// checkpoint, leaving the rest of the iteration to proceed.
func (s *FlowSignals) RequestSkip() {
	s.mu.Lock()
	s.skip = true
	s.mu.Unlock()
}

// RequestRecalibration schedules a one-shot calibration at the next
// checkpoint. A later request replaces an unconsumed earlier one.
func (s *FlowSignals) RequestRecalibration(c Calibrator) {
	s.mu.Lock()
	s.calibrator = c
	s.mu.Unlock()
}

// AbortRequested reports whether an abort is pending.
func (s *FlowSignals) AbortRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abort
}

// PauseRequested reports whether a pause is pending or active.
func (s *FlowSignals) PauseRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pause
}

// SkipRequested reports whether a skip is pending.
func (s *FlowSignals) SkipRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skip
}

// pauseState returns the pause and abort flags in one locked read,
// used by the checkpoint busy-wait loop.
func (s *FlowSignals) pauseState() (pause, abort bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pause, s.abort
}

// takeAbort consumes a pending abort request.
func (s *FlowSignals) takeAbort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.abort
	s.abort = false
	return set
}

// takeSkip consumes a pending skip request.
func (s *FlowSignals) takeSkip() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.skip
	s.skip = false
	return set
}

// takeCalibrator consumes a pending recalibration request.
func (s *FlowSignals) takeCalibrator() Calibrator {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.calibrator
	s.calibrator = nil
	return c
}
