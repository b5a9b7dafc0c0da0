package consensus

import "go.uber.org/multierr"

// AdmissionResult is the outcome of submitting a block to the engine
// (spec.md §4.7.1, surfaced to the façade as BlockAdmissionResult).
type AdmissionResult int

const (
	AdmissionAccepted AdmissionResult = iota
	AdmissionAlreadyKnown
	AdmissionAwaitingParent
	AdmissionRejected
	AdmissionValidationTimeout
)

func (r AdmissionResult) String() string {
	switch r {
	case AdmissionAccepted:
		return "Accepted"
	case AdmissionAlreadyKnown:
		return "AlreadyKnown"
	case AdmissionAwaitingParent:
		return "AwaitingParent"
	case AdmissionRejected:
		return "Rejected"
	case AdmissionValidationTimeout:
		return "ValidationTimeout"
	default:
		return "Unknown"
	}
}

// orphanReplayErrors collects the independent failures from re-driving a
// batch of orphaned blocks (spec.md §4.7.1 step 7): one orphan failing
// self-revalidation must not stop the others in the same batch from being
// tried, so failures accumulate rather than short-circuit.
type orphanReplayErrors struct {
	err error
}

func (o *orphanReplayErrors) add(err error) {
	if err == nil {
		return
	}
	o.err = multierr.Append(o.err, err)
}

func (o *orphanReplayErrors) errorOrNil() error { return o.err }
