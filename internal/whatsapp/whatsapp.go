// Package whatsapp wraps the Whatsmeow client as a CarePing channel.
//
// WhatsApp is an asynchronous channel: its sends are marshalled onto the
// delivery orchestrator's bridge worker. Inbound messages surface on the
// Responses stream.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/karunahq/CarePing/internal/channel"
	"github.com/karunahq/CarePing/internal/models"
	"github.com/karunahq/CarePing/internal/store"
)

// Constants for WhatsApp client configuration
const (
	// ChannelName is the registry key for the WhatsApp channel.
	ChannelName = "whatsapp"
	// DefaultSQLitePath is the default path for the whatsmeow SQLite database
	DefaultSQLitePath = "/var/lib/careping/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
)

// Opts holds configuration options for the WhatsApp channel.
type Opts struct {
	DBDSN       string // whatsmeow database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the WhatsApp channel.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput instructs the client to write the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode instructs the client to use a numeric login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// Channel is the WhatsApp transport backed by whatsmeow.
type Channel struct {
	channel.StatusTracker

	cfg       Opts
	waClient  *whatsmeow.Client
	responses chan models.InboundMessage
}

// New creates the WhatsApp channel. Connection and login happen in Start.
func New(opts ...Option) *Channel {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp channel options set",
		"DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)
	return &Channel{
		StatusTracker: channel.NewStatusTracker(),
		cfg:           cfg,
		responses:     make(chan models.InboundMessage, channel.DefaultResponseBufferSize),
	}
}

// Name returns the registry key for this channel.
func (c *Channel) Name() string { return ChannelName }

// Kind reports that WhatsApp sends go through the async bridge.
func (c *Channel) Kind() models.ChannelKind { return models.ChannelKindAsync }

// Responses returns the inbound message stream.
func (c *Channel) Responses() <-chan models.InboundMessage { return c.responses }

// Start initializes the whatsmeow store, runs the QR login flow when no
// session exists, connects, and installs the inbound event handler.
func (c *Channel) Start(ctx context.Context) error {
	c.SetStatus(models.ChannelStatusInitializing)

	dbDSN := c.cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	// Auto-detect database driver based on DSN
	var dbDriver string
	if store.DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
	} else {
		dbDriver = "sqlite3"
		// whatsmeow strongly recommends foreign keys on SQLite.
		if !strings.Contains(dbDSN, "_foreign_keys") && !strings.Contains(dbDSN, "foreign_keys") {
			slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
				"Consider adding '?_foreign_keys=on' to your connection string.",
				"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
		}
	}

	logger := waLog.Stdout("Database", "INFO", true)
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, logger)
	if err != nil {
		c.SetStatus(models.ChannelStatusError)
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		c.SetStatus(models.ChannelStatusError)
		slog.Error("Failed to get first device from store", "error", err)
		return fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	clientLog := waLog.Stdout("Client", "INFO", true)
	waClient := whatsmeow.NewClient(deviceStore, clientLog)
	waClient.AddEventHandler(c.handleEvent)

	if waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(ctx)
		if err := waClient.Connect(); err != nil {
			c.SetStatus(models.ChannelStatusError)
			slog.Error("Failed to connect to WhatsApp during login", "error", err)
			return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if c.cfg.QRPath != "" {
			f, ferr := os.Create(c.cfg.QRPath)
			if ferr != nil {
				c.SetStatus(models.ChannelStatusError)
				slog.Error("Failed to create QR file", "error", ferr)
				return fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				slog.Debug("WhatsApp login code received")
				if c.cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("WhatsApp login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			c.SetStatus(models.ChannelStatusError)
			slog.Error("Failed to connect to WhatsApp server", "error", err)
			return fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}

	c.waClient = waClient
	c.SetStatus(models.ChannelStatusReady)
	slog.Info("WhatsApp channel connected successfully")
	return nil
}

// Stop disconnects from WhatsApp.
func (c *Channel) Stop() error {
	if c.waClient != nil {
		c.waClient.Disconnect()
		c.waClient = nil
	}
	c.SetStatus(models.ChannelStatusUninitialized)
	slog.Debug("WhatsApp channel stopped")
	return nil
}

// Send delivers a message body to the given phone number.
func (c *Channel) Send(ctx context.Context, recipient string, body string) error {
	if c.waClient == nil {
		return models.ErrChannelNotReady
	}
	if recipient == "" {
		return models.ErrEmptyRecipient
	}
	if body == "" {
		return models.ErrEmptyBody
	}

	slog.Debug("Sending WhatsApp message", "to", recipient, "body_length", len(body))
	jid := types.NewJID(recipient, JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}

	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "to", recipient)
		return fmt.Errorf("failed to send message to %s: %w", recipient, err)
	}
	return nil
}

// handleEvent surfaces inbound text messages on the Responses stream.
// Emits never block; a full buffer drops the message with a warning.
func (c *Channel) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		text := v.Message.GetConversation()
		if text == "" && v.Message.GetExtendedTextMessage() != nil {
			text = v.Message.GetExtendedTextMessage().GetText()
		}
		if text == "" {
			return
		}
		msg := models.InboundMessage{
			From: v.Info.Sender.User,
			Body: text,
			Time: v.Info.Timestamp.Unix(),
		}
		select {
		case c.responses <- msg:
		default:
			slog.Warn("WhatsApp inbound buffer full, dropping message", "from", msg.From)
		}
	case *events.Receipt:
		slog.Debug("WhatsApp receipt received", "type", v.Type)
	}
}
