// Package email implements an outbound-only SMTP channel.
//
// It speaks plain SMTP with optional auth via the standard library; no
// third-party mail dependency is carried for what amounts to one MAIL
// transaction per send.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/karunahq/CarePing/internal/channel"
	"github.com/karunahq/CarePing/internal/models"
)

// ChannelName is the registry key for the email channel.
const ChannelName = "email"

// Opts holds configuration options for the email channel.
type Opts struct {
	Host     string // SMTP host
	Port     int    // SMTP port
	Username string
	Password string
	From     string // sender address
	Subject  string // subject line applied to every message
}

// Option defines a configuration option for the email channel.
type Option func(*Opts)

// WithSMTP sets the SMTP host and port.
func WithSMTP(host string, port int) Option {
	return func(o *Opts) { o.Host = host; o.Port = port }
}

// WithCredentials sets the SMTP auth credentials.
func WithCredentials(username, password string) Option {
	return func(o *Opts) { o.Username = username; o.Password = password }
}

// WithFrom sets the sender address.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithSubject sets the subject line for outbound messages.
func WithSubject(subject string) Option {
	return func(o *Opts) { o.Subject = subject }
}

// Channel is the SMTP transport. Outbound only: the Responses stream never
// emits.
type Channel struct {
	channel.StatusTracker

	cfg       Opts
	responses chan models.InboundMessage
}

// New creates the email channel.
func New(opts ...Option) *Channel {
	cfg := Opts{Port: 587, Subject: "A note from CarePing"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Channel{
		StatusTracker: channel.NewStatusTracker(),
		cfg:           cfg,
		responses:     make(chan models.InboundMessage),
	}
}

// Name returns the registry key for this channel.
func (c *Channel) Name() string { return ChannelName }

// Kind reports that email sends execute inline.
func (c *Channel) Kind() models.ChannelKind { return models.ChannelKindSync }

// Responses returns a stream that never emits.
func (c *Channel) Responses() <-chan models.InboundMessage { return c.responses }

// Start validates the SMTP configuration.
func (c *Channel) Start(ctx context.Context) error {
	c.SetStatus(models.ChannelStatusInitializing)
	if c.cfg.Host == "" || c.cfg.From == "" {
		c.SetStatus(models.ChannelStatusError)
		return fmt.Errorf("SMTP host and from address must be provided")
	}
	c.SetStatus(models.ChannelStatusReady)
	slog.Info("Email channel ready", "host", c.cfg.Host, "from", c.cfg.From)
	return nil
}

// Stop returns the channel to uninitialized.
func (c *Channel) Stop() error {
	c.SetStatus(models.ChannelStatusUninitialized)
	slog.Debug("Email channel stopped")
	return nil
}

// Send delivers a message body to the given email address.
func (c *Channel) Send(ctx context.Context, recipient string, body string) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", c.cfg.Subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	if err := smtp.SendMail(addr, auth, c.cfg.From, []string{recipient}, []byte(msg.String())); err != nil {
		slog.Error("Email send failed", "error", err, "to", recipient)
		return fmt.Errorf("failed to send email to %s: %w", recipient, err)
	}
	slog.Debug("Email sent", "to", recipient)
	return nil
}
