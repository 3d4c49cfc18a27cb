package domain

import "context"

// OutboundHandler delivers a reply on one channel. A non-nil error means the
// reply did not reach the chat.
type OutboundHandler func(ctx context.Context, msg OutboundMessage) error

// MessageBus routes messages between channels and the dispatcher.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(ctx context.Context, msg OutboundMessage) error
	OnOutbound(channelName string, handler OutboundHandler)
	Close()
}
