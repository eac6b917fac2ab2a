// Package sms wraps the Twilio REST API as a CarePing channel.
//
// SMS is a synchronous, outbound-only channel: sends execute inline and
// the Responses stream never emits.
package sms

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/karunahq/CarePing/internal/channel"
	"github.com/karunahq/CarePing/internal/models"
)

// ChannelName is the registry key for the SMS channel.
const ChannelName = "sms"

// Opts holds configuration options for the Twilio SMS channel.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio SMS channel.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number in E.164 format.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// Channel is the SMS transport backed by the Twilio REST API.
type Channel struct {
	channel.StatusTracker

	cfg       Opts
	client    *twilio.RestClient
	responses chan models.InboundMessage
}

// New creates the SMS channel. Credentials missing from options fall back
// to the TWILIO_* environment variables.
func New(opts ...Option) *Channel {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio SMS config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	return &Channel{
		StatusTracker: channel.NewStatusTracker(),
		cfg:           cfg,
		responses:     make(chan models.InboundMessage),
	}
}

// Name returns the registry key for this channel.
func (c *Channel) Name() string { return ChannelName }

// Kind reports that SMS sends execute inline.
func (c *Channel) Kind() models.ChannelKind { return models.ChannelKindSync }

// Responses returns a stream that never emits; inbound SMS is not supported.
func (c *Channel) Responses() <-chan models.InboundMessage { return c.responses }

// Start validates credentials and builds the REST client.
func (c *Channel) Start(ctx context.Context) error {
	c.SetStatus(models.ChannelStatusInitializing)

	if c.cfg.AccountSID == "" || c.cfg.AuthToken == "" {
		c.SetStatus(models.ChannelStatusError)
		return fmt.Errorf("account SID and auth token must be provided")
	}
	if c.cfg.FromNumber == "" {
		c.SetStatus(models.ChannelStatusError)
		return fmt.Errorf("from number must be provided")
	}

	c.client = twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: c.cfg.AccountSID,
		Password: c.cfg.AuthToken,
	})
	c.SetStatus(models.ChannelStatusReady)
	slog.Info("SMS channel ready", "from", c.cfg.FromNumber)
	return nil
}

// Stop releases the client.
func (c *Channel) Stop() error {
	c.client = nil
	c.SetStatus(models.ChannelStatusUninitialized)
	slog.Debug("SMS channel stopped")
	return nil
}

// Send delivers a message body to the given phone number.
func (c *Channel) Send(ctx context.Context, recipient string, body string) error {
	if c.client == nil {
		return models.ErrChannelNotReady
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(c.cfg.FromNumber)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		slog.Error("Twilio SMS send failed", "to", recipient, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", recipient, err)
	}
	slog.Debug("Twilio SMS sent", "to", recipient)
	return nil
}
