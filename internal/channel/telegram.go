package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"linkrelay/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

const (
	telegramChannelName = "telegram"
	defaultPollTimeout  = 30
	defaultSendRate     = 20 // Telegram allows about 30 messages per second per bot
	defaultSendBurst    = 5
)

// botAPI is the part of *tgbotapi.BotAPI the channel uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Telegram implements domain.Channel for a Telegram bot using long polling.
type Telegram struct {
	token       string
	allowFrom   []int64 // empty = allow all
	pollTimeout int
	debug       bool
	greeting    string
	limiter     *rate.Limiter // shared by every outgoing API call

	bot    botAPI
	bus    domain.MessageBus
	logger *slog.Logger
}

type TelegramConfig struct {
	Token       string
	AllowFrom   []string // user IDs as strings
	PollTimeout int      // seconds
	SendRate    float64  // API calls per second
	SendBurst   int
	Debug       bool
	Greeting    string // answer to /start and /help
	Logger      *slog.Logger

	// API replaces the real bot client, mainly in tests.
	API botAPI
}

var _ domain.Channel = (*Telegram)(nil)

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.SendRate <= 0 {
		cfg.SendRate = defaultSendRate
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = defaultSendBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:       cfg.Token,
		allowFrom:   allowed,
		pollTimeout: cfg.PollTimeout,
		debug:       cfg.Debug,
		greeting:    cfg.Greeting,
		limiter:     rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		bot:         cfg.API,
		logger:      cfg.Logger,
	}
}

func (t *Telegram) Name() string { return telegramChannelName }

// Start connects to Telegram, registers the reply handler and polls for
// updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	if t.bot == nil {
		bot, err := tgbotapi.NewBotAPI(t.token)
		if err != nil {
			return fmt.Errorf("telegram bot init: %w", err)
		}
		bot.Debug = t.debug
		t.logger.Info("telegram bot connected",
			"username", bot.Self.UserName,
			"id", bot.Self.ID,
		)
		t.bot = bot
	}

	bus.OnOutbound(telegramChannelName, t.deliver)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started", "timeout", t.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Stop is a no-op. StopReceivingUpdates is called when Start's context is
// cancelled and panics if called twice.
func (t *Telegram) Stop() error {
	return nil
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", update.Message.From.UserName,
		)
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	if update.Message.IsCommand() {
		t.handleCommand(chatID, update.Message)
		return
	}

	t.logger.Info("telegram message received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len(text),
	)

	t.bus.Publish(domain.InboundMessage{
		Channel:   telegramChannelName,
		ChatID:    strconv.FormatInt(chatID, 10),
		SenderID:  strconv.FormatInt(userID, 10),
		MessageID: update.Message.MessageID,
		Content:   text,
		Timestamp: time.Unix(int64(update.Message.Date), 0),
	})
}

// handleCommand answers /start and /help with the greeting. Other commands
// are ignored.
func (t *Telegram) handleCommand(chatID int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		reply := tgbotapi.NewMessage(chatID, t.greeting)
		reply.ReplyToMessageID = msg.MessageID
		if err := t.limiter.Wait(context.Background()); err != nil {
			t.logger.Error("telegram greeting throttled", "chat_id", chatID, "err", err)
			return
		}
		if _, err := t.bot.Send(reply); err != nil {
			t.logger.Error("telegram greeting failed", "chat_id", chatID, "err", err)
		}
	default:
		t.logger.Debug("ignoring telegram command", "command", msg.Command(), "chat_id", chatID)
	}
}

// deliver renders one outbound reply. Every failure is returned as a
// *domain.DeliveryError.
func (t *Telegram) deliver(ctx context.Context, msg domain.OutboundMessage) error {
	// Replies for messages already in flight still go out during shutdown.
	if err := t.limiter.Wait(context.WithoutCancel(ctx)); err != nil {
		return &domain.DeliveryError{Channel: telegramChannelName, Kind: msg.Kind, Err: err}
	}
	if err := t.send(msg); err != nil {
		return &domain.DeliveryError{Channel: telegramChannelName, Kind: msg.Kind, Err: err}
	}
	return nil
}

func (t *Telegram) send(msg domain.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.ChatID, err)
	}

	switch msg.Kind {
	case domain.ReplyTyping:
		// Chat actions answer with a bare boolean, so they go through Request.
		_, err = t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
		return err
	case domain.ReplyText:
		reply := tgbotapi.NewMessage(chatID, msg.Content)
		setReply(&reply.BaseChat, msg.ReplyTo)
		_, err = t.bot.Send(reply)
		return err
	case domain.ReplyVideoFile:
		if msg.Path == "" {
			return fmt.Errorf("video reply without a file path")
		}
		return t.sendVideo(chatID, tgbotapi.FilePath(msg.Path), msg)
	case domain.ReplyVideoURL:
		if msg.URL == "" {
			return fmt.Errorf("video reply without a URL")
		}
		return t.sendVideo(chatID, tgbotapi.FileURL(msg.URL), msg)
	default:
		return fmt.Errorf("unsupported reply kind %q", msg.Kind)
	}
}

func (t *Telegram) sendVideo(chatID int64, file tgbotapi.RequestFileData, msg domain.OutboundMessage) error {
	video := tgbotapi.NewVideo(chatID, file)
	video.Caption = msg.Content
	video.SupportsStreaming = true
	setReply(&video.BaseChat, msg.ReplyTo)

	sent, err := t.bot.Send(video)
	if err != nil {
		return err
	}
	t.logger.Debug("telegram video sent", "chat_id", chatID, "message_id", sent.MessageID)
	return nil
}

func setReply(base *tgbotapi.BaseChat, replyTo int) {
	if replyTo == 0 {
		return
	}
	base.ReplyToMessageID = replyTo
	base.AllowSendingWithoutReply = true
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}
