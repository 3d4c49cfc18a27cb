package dispatcher

import (
	"errors"

	"linkrelay/internal/domain"
)

// Outcome is the terminal state of one handled message.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeNotFound       Outcome = "not_found" // lookup returned no media
	OutcomeGreeted        Outcome = "greeted"
	OutcomeDownloadFailed Outcome = "download_failed"
	OutcomeDeliveryFailed Outcome = "delivery_failed"
	OutcomeUnclassified   Outcome = "unclassified"
)

// Result is what HandleMessage reports back. Err is set for the three
// failure outcomes.
type Result struct {
	Kind    domain.SourceKind
	Outcome Outcome
	Err     error
}

func (r Result) Failed() bool { return r.Err != nil }

// resultFromError sorts err into the failure outcome it belongs to.
func resultFromError(kind domain.SourceKind, err error) Result {
	var derr *domain.DownloadError
	var delErr *domain.DeliveryError
	switch {
	case errors.As(err, &derr):
		return Result{Kind: kind, Outcome: OutcomeDownloadFailed, Err: err}
	case errors.As(err, &delErr):
		return Result{Kind: kind, Outcome: OutcomeDeliveryFailed, Err: err}
	default:
		return Result{Kind: kind, Outcome: OutcomeUnclassified, Err: err}
	}
}

// apology is the fixed text sent for a failure outcome.
func apology(o Outcome) string {
	if o == OutcomeDeliveryFailed {
		return TextDeliveryFailure
	}
	return TextGenericFailure
}
