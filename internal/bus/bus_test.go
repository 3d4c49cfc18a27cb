package bus

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"linkrelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestPublishSubscribe(t *testing.T) {
	b := New(4, testLogger())
	defer b.Close()

	b.Publish(domain.InboundMessage{Channel: "telegram", ChatID: "1", Content: "hello"})

	msg := <-b.Subscribe()
	if msg.Content != "hello" {
		t.Fatalf("expected 'hello', got %q", msg.Content)
	}
}

func TestPublishAfterClose(t *testing.T) {
	b := New(1, testLogger())
	b.Close()
	b.Publish(domain.InboundMessage{Channel: "telegram"})

	if _, ok := <-b.Subscribe(); ok {
		t.Fatal("expected closed inbound channel")
	}
}

func TestCloseTwice(t *testing.T) {
	b := New(1, testLogger())
	b.Close()
	b.Close()
}

func TestSendOutbound_RoutesByChannel(t *testing.T) {
	b := New(1, testLogger())
	defer b.Close()

	var got []domain.OutboundMessage
	b.OnOutbound("cli", func(ctx context.Context, msg domain.OutboundMessage) error {
		got = append(got, msg)
		return nil
	})

	err := b.SendOutbound(context.Background(), domain.OutboundMessage{Channel: "cli", Kind: domain.ReplyText, Content: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(got) != 1 || got[0].Content != "hi" {
		t.Fatalf("unexpected deliveries: %+v", got)
	}
}

func TestSendOutbound_PropagatesHandlerError(t *testing.T) {
	b := New(1, testLogger())
	defer b.Close()

	boom := errors.New("payload too large")
	b.OnOutbound("telegram", func(ctx context.Context, msg domain.OutboundMessage) error {
		return boom
	})

	err := b.SendOutbound(context.Background(), domain.OutboundMessage{Channel: "telegram"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestSendOutbound_NoHandler(t *testing.T) {
	b := New(1, testLogger())
	defer b.Close()

	err := b.SendOutbound(context.Background(), domain.OutboundMessage{Channel: "discord"})
	if !errors.Is(err, domain.ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}
