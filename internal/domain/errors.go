package domain

import (
	"errors"
	"fmt"
)

// ErrNoHandler is returned when a reply targets a channel nobody registered.
var ErrNoHandler = errors.New("no outbound handler for channel")

// DownloadError reports that the video extractor could not produce a file:
// extractor failure, size cap exceeded, or no matching format.
type DownloadError struct {
	URL    string
	Reason string
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("download %s: %s", e.URL, e.Reason)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// DeliveryError reports that a reply could not be sent to the chat.
type DeliveryError struct {
	Channel string
	Kind    ReplyKind
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s via %s: %v", e.Kind, e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
