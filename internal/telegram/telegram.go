// Package telegram wraps a Telegram bot as a CarePing channel.
//
// Sends execute inline over the Bot API; inbound text arrives through the
// long poller and surfaces on the Responses stream. Recipient addresses
// are numeric chat IDs.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/karunahq/CarePing/internal/channel"
	"github.com/karunahq/CarePing/internal/models"
)

// Constants for Telegram channel configuration
const (
	// ChannelName is the registry key for the Telegram channel.
	ChannelName = "telegram"
	// DefaultPollTimeout is the long poller timeout.
	DefaultPollTimeout = 10 * time.Second
)

// Opts holds configuration options for the Telegram channel.
type Opts struct {
	Token       string
	PollTimeout time.Duration
}

// Option defines a configuration option for the Telegram channel.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithPollTimeout overrides the long poller timeout.
func WithPollTimeout(d time.Duration) Option {
	return func(o *Opts) { o.PollTimeout = d }
}

// Channel is the Telegram transport backed by telebot.
type Channel struct {
	channel.StatusTracker

	cfg       Opts
	bot       *tele.Bot
	responses chan models.InboundMessage
}

// New creates the Telegram channel. The bot is built and started in Start.
func New(opts ...Option) *Channel {
	cfg := Opts{PollTimeout: DefaultPollTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Channel{
		StatusTracker: channel.NewStatusTracker(),
		cfg:           cfg,
		responses:     make(chan models.InboundMessage, channel.DefaultResponseBufferSize),
	}
}

// Name returns the registry key for this channel.
func (c *Channel) Name() string { return ChannelName }

// Kind reports that Telegram sends execute inline.
func (c *Channel) Kind() models.ChannelKind { return models.ChannelKindSync }

// Responses returns the inbound message stream.
func (c *Channel) Responses() <-chan models.InboundMessage { return c.responses }

// Start builds the bot, installs the text handler, and launches the long
// poller on its own goroutine.
func (c *Channel) Start(ctx context.Context) error {
	c.SetStatus(models.ChannelStatusInitializing)

	if strings.TrimSpace(c.cfg.Token) == "" {
		c.SetStatus(models.ChannelStatusError)
		return fmt.Errorf("telegram token is empty")
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  c.cfg.Token,
		Poller: &tele.LongPoller{Timeout: c.cfg.PollTimeout},
	})
	if err != nil {
		c.SetStatus(models.ChannelStatusError)
		slog.Error("Failed to create Telegram bot", "error", err)
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}

	bot.Handle(tele.OnText, func(tc tele.Context) error {
		m := tc.Message()
		if m == nil {
			return nil
		}
		msg := models.InboundMessage{
			From: strconv.FormatInt(m.Chat.ID, 10),
			Body: m.Text,
			Time: m.Unixtime,
		}
		select {
		case c.responses <- msg:
		default:
			slog.Warn("Telegram inbound buffer full, dropping message", "from", msg.From)
		}
		return nil
	})

	c.bot = bot
	go bot.Start()
	c.SetStatus(models.ChannelStatusReady)
	slog.Info("Telegram channel ready")
	return nil
}

// Stop halts the long poller.
func (c *Channel) Stop() error {
	if c.bot != nil {
		c.bot.Stop()
		c.bot = nil
	}
	c.SetStatus(models.ChannelStatusUninitialized)
	slog.Debug("Telegram channel stopped")
	return nil
}

// Send delivers a message body to the given chat ID.
func (c *Channel) Send(ctx context.Context, recipient string, body string) error {
	if c.bot == nil {
		return models.ErrChannelNotReady
	}
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat ID %q: %w", recipient, err)
	}

	if _, err := c.bot.Send(tele.ChatID(chatID), body); err != nil {
		slog.Error("Telegram send failed", "error", err, "chatID", chatID)
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	slog.Debug("Telegram message sent", "chatID", chatID)
	return nil
}
