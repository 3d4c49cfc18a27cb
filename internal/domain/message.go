package domain

import "time"

// InboundMessage is a chat message handed to the relay by a channel.
type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string
	MessageID int // channel-native id of the message, 0 if unknown
	Content   string
	Timestamp time.Time
}

// ReplyKind selects how a channel renders an OutboundMessage.
type ReplyKind string

const (
	ReplyTyping    ReplyKind = "typing"
	ReplyText      ReplyKind = "text"
	ReplyVideoFile ReplyKind = "video_file"
	ReplyVideoURL  ReplyKind = "video_url"
)

type OutboundMessage struct {
	Channel string
	ChatID  string
	Kind    ReplyKind
	Content string // text body, or caption for video replies
	Path    string // local file for ReplyVideoFile
	URL     string // remote media for ReplyVideoURL
	ReplyTo int
}
