package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"linkrelay/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based message bus for in-process communication.
type InMemoryBus struct {
	inbound  chan domain.InboundMessage
	handlers map[string]domain.OutboundHandler
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:  make(chan domain.InboundMessage, bufferSize),
		handlers: make(map[string]domain.OutboundHandler),
		logger:   logger,
	}
}

// Blocks up to 10 seconds if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(msg domain.InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- msg:
	default:
		b.logger.Warn("inbound bus full, waiting...", "channel", msg.Channel, "chat_id", msg.ChatID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- msg:
			b.logger.Info("message delivered after wait", "channel", msg.Channel)
		case <-timer.C:
			b.logger.Error("message dropped: bus full for 10s",
				"channel", msg.Channel,
				"chat_id", msg.ChatID,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// SendOutbound hands the reply to the channel's handler and returns its
// delivery error, if any.
func (b *InMemoryBus) SendOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	b.mu.RLock()
	handler, ok := b.handlers[msg.Channel]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("no handler registered for channel", "channel", msg.Channel)
		return fmt.Errorf("%w: %s", domain.ErrNoHandler, msg.Channel)
	}

	return handler(ctx, msg)
}

func (b *InMemoryBus) OnOutbound(channelName string, handler domain.OutboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channelName] = handler
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
