// Package dispatcher classifies inbound chat messages by link, runs the
// matching retriever and replies with the media. It is the only place where
// errors become user-visible text.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"linkrelay/internal/domain"
	"linkrelay/internal/metrics"
)

const (
	defaultConcurrency = 10
	historyTimeout     = 5 * time.Second
)

// VideoFetcher downloads a video and returns the local file path.
type VideoFetcher interface {
	Fetch(ctx context.Context, link string) (string, error)
}

// LinkResolver turns a post link into a direct media URL, or "" if none.
type LinkResolver interface {
	Resolve(ctx context.Context, link string) string
}

// Offloader runs blocking work away from the message loop.
type Offloader interface {
	Do(ctx context.Context, job func(ctx context.Context) error) error
}

// HistoryRecorder persists the outcome of handled messages.
type HistoryRecorder interface {
	Record(ctx context.Context, rec domain.DeliveryRecord) error
}

type Config struct {
	Bus         domain.MessageBus
	YouTube     VideoFetcher
	Instagram   LinkResolver
	Pool        Offloader
	History     HistoryRecorder // optional
	Logger      *slog.Logger
	Concurrency int // max messages handled at once (default 10)
}

type Dispatcher struct {
	bus         domain.MessageBus
	youtube     VideoFetcher
	instagram   LinkResolver
	pool        Offloader
	history     HistoryRecorder
	logger      *slog.Logger
	concurrency int

	inflight sync.WaitGroup
}

func New(cfg Config) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		bus:         cfg.Bus,
		youtube:     cfg.YouTube,
		instagram:   cfg.Instagram,
		pool:        cfg.Pool,
		history:     cfg.History,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
	}
}

// Run consumes inbound messages and handles each in its own goroutine, with
// at most Concurrency in flight. Once ctx is cancelled no new message is
// started. Callers must let Run return before calling Wait.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started", "concurrency", d.concurrency)

	sem := make(chan struct{}, d.concurrency)
	inbound := d.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				d.logger.Info("inbound channel closed, dispatcher stopping")
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			// Both select cases may be ready; cancellation wins.
			if ctx.Err() != nil {
				<-sem
				d.logger.Info("dispatcher stopping, dropping message", "channel", msg.Channel, "chat_id", msg.ChatID)
				return
			}
			d.inflight.Add(1)
			go func(m domain.InboundMessage) {
				defer d.inflight.Done()
				defer func() { <-sem }()
				d.HandleMessage(ctx, m)
			}(msg)
		}
	}
}

// Wait blocks until every message started by Run has been handled. It must
// not race with a running Run.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// HandleMessage runs one message through classify, retrieve and reply. Any
// temp file produced along the way is removed before it returns, whatever
// the outcome.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg domain.InboundMessage) (res Result) {
	req := domain.NewRequest(msg.Content)
	logger := d.logger.With("request_id", req.ID, "channel", msg.Channel, "chat_id", msg.ChatID)

	metrics.MessagesInFlight.Inc()
	defer func() {
		metrics.MessagesInFlight.Dec()
		d.cleanup(req, logger)
		d.finish(ctx, msg, req, res, logger)
	}()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Kind: req.Kind, Outcome: OutcomeUnclassified, Err: fmt.Errorf("panic: %v", r)}
			d.report(ctx, msg, res, logger)
		}
	}()

	if err := d.reply(ctx, msg, domain.OutboundMessage{Kind: domain.ReplyTyping}); err != nil {
		logger.Debug("typing action failed", "err", err)
	}

	req.Kind = Classify(req.Text)
	logger = logger.With("kind", req.Kind)

	switch req.Kind {
	case domain.SourceYouTube:
		res = d.handleYouTube(ctx, msg, req, logger)
	case domain.SourceInstagram:
		res = d.handleInstagram(ctx, msg, req)
	default:
		res = d.handleGreeting(ctx, msg)
	}

	d.report(ctx, msg, res, logger)
	return res
}

func (d *Dispatcher) handleYouTube(ctx context.Context, msg domain.InboundMessage, req *domain.Request, logger *slog.Logger) Result {
	if err := d.reply(ctx, msg, domain.OutboundMessage{Kind: domain.ReplyText, Content: TextYouTubeProgress}); err != nil {
		return resultFromError(req.Kind, err)
	}

	link := ExtractLink(req.Text, req.Kind)
	start := time.Now()
	err := d.pool.Do(ctx, func(ctx context.Context) error {
		path, err := d.youtube.Fetch(ctx, link)
		if path != "" {
			req.AttachFile(path)
		}
		return err
	})
	metrics.DownloadLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return resultFromError(req.Kind, err)
	}
	logger.Info("video ready", "path", req.FilePath)

	err = d.reply(ctx, msg, domain.OutboundMessage{
		Kind:    domain.ReplyVideoFile,
		Path:    req.FilePath,
		Content: TextSuccessCaption,
	})
	if err != nil {
		return resultFromError(req.Kind, err)
	}
	return Result{Kind: req.Kind, Outcome: OutcomeSuccess}
}

func (d *Dispatcher) handleInstagram(ctx context.Context, msg domain.InboundMessage, req *domain.Request) Result {
	if err := d.reply(ctx, msg, domain.OutboundMessage{Kind: domain.ReplyText, Content: TextInstagramProgress}); err != nil {
		return resultFromError(req.Kind, err)
	}

	mediaURL := d.instagram.Resolve(ctx, ExtractLink(req.Text, req.Kind))
	if mediaURL == "" {
		if err := d.reply(ctx, msg, domain.OutboundMessage{Kind: domain.ReplyText, Content: TextInstagramNotFound}); err != nil {
			return resultFromError(req.Kind, err)
		}
		return Result{Kind: req.Kind, Outcome: OutcomeNotFound}
	}

	err := d.reply(ctx, msg, domain.OutboundMessage{
		Kind:    domain.ReplyVideoURL,
		URL:     mediaURL,
		Content: TextSuccessCaption,
	})
	if err != nil {
		return resultFromError(req.Kind, err)
	}
	return Result{Kind: req.Kind, Outcome: OutcomeSuccess}
}

func (d *Dispatcher) handleGreeting(ctx context.Context, msg domain.InboundMessage) Result {
	if err := d.reply(ctx, msg, domain.OutboundMessage{Kind: domain.ReplyText, Content: TextGreeting}); err != nil {
		return resultFromError(domain.SourceUnrecognized, err)
	}
	return Result{Kind: domain.SourceUnrecognized, Outcome: OutcomeGreeted}
}

// report logs a failed result and sends the matching apology. A failure to
// send the apology is logged only.
func (d *Dispatcher) report(ctx context.Context, msg domain.InboundMessage, res Result, logger *slog.Logger) {
	if !res.Failed() {
		return
	}
	logger.Error("message handling failed", "outcome", res.Outcome, "err", res.Err)

	err := d.reply(ctx, msg, domain.OutboundMessage{Kind: domain.ReplyText, Content: apology(res.Outcome)})
	if err != nil {
		logger.Error("could not send failure notice", "err", err)
	}
}

// reply addresses out to the sender of msg and sends it. Every failure comes
// back as a *domain.DeliveryError.
func (d *Dispatcher) reply(ctx context.Context, msg domain.InboundMessage, out domain.OutboundMessage) error {
	out.Channel = msg.Channel
	out.ChatID = msg.ChatID
	if out.Kind != domain.ReplyTyping {
		out.ReplyTo = msg.MessageID
	}

	err := d.bus.SendOutbound(ctx, out)
	if err == nil {
		return nil
	}
	var delErr *domain.DeliveryError
	if errors.As(err, &delErr) {
		return err
	}
	return &domain.DeliveryError{Channel: msg.Channel, Kind: out.Kind, Err: err}
}

func (d *Dispatcher) cleanup(req *domain.Request, logger *slog.Logger) {
	if !req.HasFile() {
		return
	}
	path := req.FilePath
	req.ClearFile()

	err := os.Remove(path)
	switch {
	case err == nil:
		logger.Info("cleaned up file", "path", path)
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("temp file already gone", "path", path)
	default:
		metrics.CleanupFailures.Inc()
		logger.Error("error cleaning up file", "path", path, "err", err)
	}
}

func (d *Dispatcher) finish(ctx context.Context, msg domain.InboundMessage, req *domain.Request, res Result, logger *slog.Logger) {
	elapsed := time.Since(req.Started)
	metrics.RecordMessage(string(req.Kind), string(res.Outcome))
	logger.Info("message handled", "outcome", res.Outcome, "duration", elapsed)

	if d.history == nil {
		return
	}
	rec := domain.DeliveryRecord{
		RequestID:  req.ID,
		Channel:    msg.Channel,
		ChatID:     msg.ChatID,
		Kind:       string(req.Kind),
		Outcome:    string(res.Outcome),
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := d.history.Record(hctx, rec); err != nil {
		logger.Warn("history record failed", "err", err)
	}
}
