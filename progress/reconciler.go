// Package progress merges upload transfer progress and server-pushed
// processing progress into one ProgressState, and owns the push connection.
package progress

import (
	"math"
	"time"

	"github.com/moyoez/excel-console/tool"
	"github.com/moyoez/excel-console/types"
)

// DefaultSettleWindow is how long a completed state stays visible before reset.
const DefaultSettleWindow = 2 * time.Second

// Reconciler holds the unified progress of the active upload. It is not safe
// for concurrent use; the console loop owns it.
//
// Percentage is the maximum of everything either channel reported since
// Begin. Phase only moves forward, and reaches completed solely through a
// push-channel completed message.
type Reconciler struct {
	state     types.ProgressState
	totalRows int
	failure   error
}

func NewReconciler() *Reconciler {
	return &Reconciler{state: types.ProgressState{Phase: types.PhaseIdle}}
}

func (r *Reconciler) State() types.ProgressState {
	return r.state
}

// Failure returns why the current lifecycle failed, if it did.
func (r *Reconciler) Failure() error {
	return r.failure
}

// Active reports whether an upload is in flight and not yet terminal.
func (r *Reconciler) Active() bool {
	return r.state.Phase == types.PhaseUploading || r.state.Phase == types.PhaseProcessing
}

// Begin starts a new upload lifecycle. totalRows bounds the reported counts.
func (r *Reconciler) Begin(totalRows int) {
	r.totalRows = max(0, totalRows)
	r.failure = nil
	r.state = types.ProgressState{Phase: types.PhaseUploading}
}

// Reset returns to the idle baseline.
func (r *Reconciler) Reset() {
	r.totalRows = 0
	r.failure = nil
	r.state = types.ProgressState{Phase: types.PhaseIdle}
}

// ObserveTransfer records the byte-level percentage of the upload request.
// It never completes the upload.
func (r *Reconciler) ObserveTransfer(pct int) bool {
	if !r.Active() {
		return false
	}
	return r.raise(pct)
}

// ObservePush applies one push-channel message and reports whether the state changed.
func (r *Reconciler) ObservePush(msg types.PushMessage) bool {
	status := msg.EffectiveStatus()
	if status == types.PushConnected {
		tool.DefaultLogger.Debugf("[Progress] push channel greeting: %s", msg.Message)
		return false
	}
	if !r.Active() {
		tool.DefaultLogger.Debugf("[Progress] ignoring %q push message in phase %s", status, r.state.Phase)
		return false
	}

	changed := false
	switch status {
	case "":
		// bare progress frame
	case types.PushProcessing:
		changed = r.advance(types.PhaseProcessing) || changed
	case types.PushCompleted:
		changed = r.advance(types.PhaseCompleted) || changed
		changed = r.raise(100) || changed
	case types.PushFailed:
		reason := msg.Error
		if reason == "" {
			reason = msg.Message
		}
		r.failure = &ProcessingError{Reason: reason}
		r.state.LastError = reason
		r.advance(types.PhaseFailed)
		return true
	default:
		tool.DefaultLogger.Warnf("[Progress] unknown push status %q", status)
		return false
	}

	if msg.Percentage != nil {
		changed = r.raise(int(math.Floor(*msg.Percentage))) || changed
	}
	changed = r.applyCounts(msg.Successful, msg.Failed) || changed
	return changed
}

// TransportFailed marks the active upload failed because the upload call itself failed.
func (r *Reconciler) TransportFailed(err error, message string) bool {
	if !r.Active() {
		return false
	}
	r.failure = err
	r.state.LastError = message
	return r.advance(types.PhaseFailed)
}

func (r *Reconciler) advance(phase types.Phase) bool {
	if phase.Rank() <= r.state.Phase.Rank() {
		return false
	}
	r.state.Phase = phase
	return true
}

func (r *Reconciler) raise(pct int) bool {
	pct = max(0, min(100, pct))
	if pct <= r.state.Percentage {
		return false
	}
	r.state.Percentage = pct
	return true
}

func (r *Reconciler) applyCounts(successful, failed *int) bool {
	if successful == nil && failed == nil {
		return false
	}
	s, f := r.state.SuccessfulCount, r.state.FailedCount
	if successful != nil {
		s = max(0, *successful)
	}
	if failed != nil {
		f = max(0, *failed)
	}
	s = min(s, r.totalRows)
	f = min(f, r.totalRows-s)
	changed := !r.state.CountsReported || s != r.state.SuccessfulCount || f != r.state.FailedCount
	r.state.SuccessfulCount = s
	r.state.FailedCount = f
	r.state.CountsReported = true
	return changed
}
