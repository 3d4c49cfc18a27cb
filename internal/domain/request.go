package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceKind is the platform a message's link was classified as.
type SourceKind string

const (
	SourceYouTube      SourceKind = "youtube"
	SourceInstagram    SourceKind = "instagram"
	SourceUnrecognized SourceKind = "unrecognized"
)

// Request is the per-message retrieval state. It never outlives a single
// HandleMessage call.
type Request struct {
	ID       string
	Text     string
	Kind     SourceKind
	FilePath string
	Started  time.Time
}

func NewRequest(text string) *Request {
	return &Request{
		ID:      uuid.NewString(),
		Text:    strings.TrimSpace(text),
		Kind:    SourceUnrecognized,
		Started: time.Now(),
	}
}

// AttachFile records a local artifact that must be removed before the
// request is discarded.
func (r *Request) AttachFile(path string) { r.FilePath = path }

func (r *Request) ClearFile() { r.FilePath = "" }

func (r *Request) HasFile() bool { return r.FilePath != "" }

// DeliveryRecord is the persisted summary of one handled message.
type DeliveryRecord struct {
	RequestID  string    `json:"request_id"`
	Channel    string    `json:"channel"`
	ChatID     string    `json:"chat_id"`
	Kind       string    `json:"kind"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
