package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"linkrelay/internal/domain"
)

const cliChannelName = "cli"

// CLI implements domain.Channel for the terminal. Replies are printed, and
// downloaded videos can be copied to KeepDir before the relay removes them.
type CLI struct {
	bus     domain.MessageBus
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer
	keepDir string

	mu        sync.Mutex
	waiting   bool
	waitStop  chan struct{}
	spinnerWG sync.WaitGroup
}

type CLIConfig struct {
	Logger  *slog.Logger
	In      io.Reader
	Out     io.Writer
	KeepDir string // copy downloaded videos here; empty keeps nothing
}

var _ domain.Channel = (*CLI)(nil)

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		logger:  cfg.Logger,
		in:      cfg.In,
		out:     cfg.Out,
		keepDir: cfg.KeepDir,
	}
}

func (c *CLI) Name() string { return cliChannelName }

// Register attaches the reply printer to bus without reading input.
func (c *CLI) Register(bus domain.MessageBus) {
	c.bus = bus
	bus.OnOutbound(cliChannelName, c.deliver)
}

// Inbound wraps text as a message from the terminal user.
func (c *CLI) Inbound(text string) domain.InboundMessage {
	return domain.InboundMessage{
		Channel:   cliChannelName,
		ChatID:    "local",
		SenderID:  "user",
		Content:   strings.TrimSpace(text),
		Timestamp: time.Now(),
	}
}

// Start reads one message per line and publishes it until EOF, /quit or
// ctx is cancelled.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.Register(bus)

	_, _ = fmt.Fprintln(c.out, "Paste a YouTube or Instagram link and press Enter. Type /quit to exit.")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}
		bus.Publish(c.Inbound(line))
	}
}

// Stop ends any running spinner.
func (c *CLI) Stop() error {
	c.stopWaiting()
	return nil
}

func (c *CLI) deliver(ctx context.Context, msg domain.OutboundMessage) error {
	if msg.Kind == domain.ReplyTyping {
		c.startWaiting()
		return nil
	}
	c.stopWaiting()

	var err error
	switch msg.Kind {
	case domain.ReplyText:
		_, err = fmt.Fprintln(c.out, msg.Content)
	case domain.ReplyVideoFile:
		err = c.printVideoFile(msg)
	case domain.ReplyVideoURL:
		_, err = fmt.Fprintf(c.out, "%s\n%s\n", msg.Content, msg.URL)
	default:
		err = fmt.Errorf("unsupported reply kind %q", msg.Kind)
	}
	if err != nil {
		return &domain.DeliveryError{Channel: cliChannelName, Kind: msg.Kind, Err: err}
	}
	return nil
}

func (c *CLI) printVideoFile(msg domain.OutboundMessage) error {
	if c.keepDir == "" {
		_, err := fmt.Fprintf(c.out, "%s\n%s (removed after delivery)\n", msg.Content, msg.Path)
		return err
	}
	dst, err := copyFile(msg.Path, c.keepDir)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "%s\n%s\n", msg.Content, dst)
	return err
}

// copyFile copies src into dir under the same base name.
func copyFile(src, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dst := filepath.Join(dir, filepath.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	return dst, out.Close()
}

func (c *CLI) startWaiting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiting {
		return
	}
	c.waiting = true
	c.waitStop = make(chan struct{})
	stop := c.waitStop
	c.spinnerWG.Add(1)
	go func() {
		defer c.spinnerWG.Done()
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				_, _ = fmt.Fprint(c.out, "\r\033[K")
				return
			case <-ticker.C:
				_, _ = fmt.Fprintf(c.out, "\r%s Working...", frames[i%len(frames)])
			}
		}
	}()
}

func (c *CLI) stopWaiting() {
	c.mu.Lock()
	if !c.waiting {
		c.mu.Unlock()
		return
	}
	c.waiting = false
	close(c.waitStop)
	c.mu.Unlock()
	c.spinnerWG.Wait()
}
