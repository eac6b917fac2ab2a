// Package delivery implements the delivery orchestrator: channel
// lifecycle, send attempts with retry queueing, periodic health checks
// that restart stuck channels, and the bridge worker that lets
// synchronous callers drive asynchronous channels.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/karunahq/CarePing/internal/channel"
	"github.com/karunahq/CarePing/internal/content"
	"github.com/karunahq/CarePing/internal/models"
	"github.com/karunahq/CarePing/internal/store"
)

// Constants for orchestrator configuration defaults
const (
	// DefaultSendTimeout bounds any single channel call.
	DefaultSendTimeout = 30 * time.Second
	// DefaultRetryInterval is how often the retry loop scans for due entries.
	DefaultRetryInterval = 1 * time.Second
	// DefaultHealthInterval is how often channel health is evaluated.
	DefaultHealthInterval = 60 * time.Second
	// DefaultStuckCooldown is how long a channel may sit in error or
	// initializing before a restart is attempted.
	DefaultStuckCooldown = 5 * time.Minute
	// DefaultRestartFailureCap stops automatic restarts after this many
	// consecutive failures, pending a manual reset.
	DefaultRestartFailureCap = 3
	// DefaultBridgeQueueSize is the async bridge request buffer.
	DefaultBridgeQueueSize = 64
)

// Config tunes the orchestrator's background loops.
type Config struct {
	SendTimeout       time.Duration
	RetryInterval     time.Duration
	HealthInterval    time.Duration
	StuckCooldown     time.Duration
	RestartFailureCap int
}

// DefaultConfig returns the documented default tuning.
func DefaultConfig() Config {
	return Config{
		SendTimeout:       DefaultSendTimeout,
		RetryInterval:     DefaultRetryInterval,
		HealthInterval:    DefaultHealthInterval,
		StuckCooldown:     DefaultStuckCooldown,
		RestartFailureCap: DefaultRestartFailureCap,
	}
}

// ConversationGate is the check-in engine surface the orchestrator needs:
// enough to avoid double-starting a conversation and to mark one started
// only after a confirmed send.
type ConversationGate interface {
	Active(userID string) bool
	FirstPrompt(ctx context.Context, userID string) (string, error)
	Begin(ctx context.Context, userID string) error
	ExpireIfStale(userID string)
}

// Orchestrator owns channel lifecycle, the retry queue, and channel health
// tracking. Construct exactly one per process and pass it by reference;
// there is no global instance.
type Orchestrator struct {
	cfg      Config
	registry *channel.Registry
	store    store.Store
	content  content.Provider
	gate     ConversationGate

	mu       sync.Mutex
	configs  map[string]models.ChannelConfig
	limiters map[string]*rate.Limiter
	health   map[string]*channelHealth
	retries  map[string]*retryEntry

	bridge  *asyncBridge
	runCtx  context.Context
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// New creates an orchestrator over the given registry, store, content
// provider, and conversation gate.
func New(cfg Config, registry *channel.Registry, st store.Store, provider content.Provider, gate ConversationGate) *Orchestrator {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}
	if cfg.StuckCooldown <= 0 {
		cfg.StuckCooldown = DefaultStuckCooldown
	}
	if cfg.RestartFailureCap <= 0 {
		cfg.RestartFailureCap = DefaultRestartFailureCap
	}
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		store:    st,
		content:  provider,
		gate:     gate,
		configs:  make(map[string]models.ChannelConfig),
		limiters: make(map[string]*rate.Limiter),
		health:   make(map[string]*channelHealth),
		retries:  make(map[string]*retryEntry),
		bridge:   newAsyncBridge(DefaultBridgeQueueSize),
		stopCh:   make(chan struct{}),
	}
}

// SetChannelConfig records retry and rate tuning for a channel. Call before
// Start; channels without explicit configuration get defaults.
func (o *Orchestrator) SetChannelConfig(cfg models.ChannelConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.configs[cfg.Name] = cfg
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		o.limiters[cfg.Name] = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
}

// channelConfig returns the channel's tuning, falling back to defaults.
func (o *Orchestrator) channelConfig(ch channel.Channel) models.ChannelConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cfg, exists := o.configs[ch.Name()]; exists {
		return cfg
	}
	return models.DefaultChannelConfig(ch.Name(), ch.Kind())
}

// Start brings up all registered channels and launches the bridge worker,
// retry loop, and health check. An empty registry is a configuration error
// and fatal to the orchestrator.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.registry.Len() == 0 {
		return fmt.Errorf("no channels registered")
	}
	o.runCtx = ctx

	now := time.Now()
	for _, ch := range o.registry.All() {
		o.mu.Lock()
		o.health[ch.Name()] = &channelHealth{lastStatus: ch.Status(), statusSince: now}
		o.mu.Unlock()

		// Channel startup can block (login flows, connection setup), so it
		// must not delay the rest of the process.
		go func(ch channel.Channel) {
			slog.Info("Starting channel", "channel", ch.Name(), "kind", ch.Kind())
			if err := ch.Start(ctx); err != nil {
				slog.Error("Channel failed to start", "error", err, "channel", ch.Name())
			}
		}(ch)
	}

	o.wg.Add(3)
	go func() {
		defer o.wg.Done()
		o.bridge.run()
	}()
	go func() {
		defer o.wg.Done()
		o.retryLoop()
	}()
	go func() {
		defer o.wg.Done()
		o.healthLoop()
	}()

	slog.Info("Delivery orchestrator started", "channels", o.registry.Names())
	return nil
}

// Stop halts the background loops and stops every channel.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	o.mu.Unlock()

	close(o.stopCh)
	o.bridge.shutdown()
	o.wg.Wait()

	for _, ch := range o.registry.All() {
		if err := ch.Stop(); err != nil {
			slog.Warn("Channel stop failed", "error", err, "channel", ch.Name())
		}
	}
	slog.Info("Delivery orchestrator stopped")
}

// SendForCategory resolves the user's channel, builds the category message,
// and attempts delivery. Any active check-in conversation is expired first
// so a later reply is not misread as an answer.
func (o *Orchestrator) SendForCategory(ctx context.Context, userID string, category models.Category) (models.SendResult, error) {
	channelName, recipient, err := o.store.GetUserChannelPreference(userID)
	if err != nil {
		return models.SendResult{}, fmt.Errorf("failed to resolve channel for user %s: %w", userID, err)
	}
	body, err := o.content.BuildCategoryMessage(ctx, userID, category)
	if err != nil {
		return models.SendResult{}, fmt.Errorf("failed to build %s message: %w", category, err)
	}

	o.gate.ExpireIfStale(userID)
	return o.attemptSend(ctx, channelName, userID, recipient, body, models.JobKindMessage, nil)
}

// SendTaskReminder builds and delivers a reminder for one selected task.
func (o *Orchestrator) SendTaskReminder(ctx context.Context, userID string, task models.TaskReminderCandidate) (models.SendResult, error) {
	channelName, recipient, err := o.store.GetUserChannelPreference(userID)
	if err != nil {
		return models.SendResult{}, fmt.Errorf("failed to resolve channel for user %s: %w", userID, err)
	}
	body, err := o.content.BuildTaskReminder(ctx, userID, task)
	if err != nil {
		return models.SendResult{}, fmt.Errorf("failed to build task reminder: %w", err)
	}

	o.gate.ExpireIfStale(userID)
	return o.attemptSend(ctx, channelName, userID, recipient, body, models.JobKindTaskReminder, nil)
}

// SendCheckInPrompt delivers the first check-in question. It proceeds only
// when no conversation is active, and marks the conversation started only
// after a confirmed successful send — including a send that succeeds later
// through the retry queue — so exactly one start marker is recorded.
func (o *Orchestrator) SendCheckInPrompt(ctx context.Context, userID string) (models.SendResult, error) {
	if o.gate.Active(userID) {
		slog.Debug("Skipping check-in prompt, conversation already active", "userID", userID)
		return models.SendResult{Outcome: models.SendSkipped}, nil
	}

	channelName, recipient, err := o.store.GetUserChannelPreference(userID)
	if err != nil {
		return models.SendResult{}, fmt.Errorf("failed to resolve channel for user %s: %w", userID, err)
	}
	prompt, err := o.gate.FirstPrompt(ctx, userID)
	if err != nil {
		return models.SendResult{}, fmt.Errorf("failed to build check-in prompt: %w", err)
	}

	onDelivered := func() {
		if err := o.gate.Begin(context.Background(), userID); err != nil {
			slog.Warn("Could not mark check-in started", "error", err, "userID", userID)
		}
	}
	return o.attemptSend(ctx, channelName, userID, recipient, prompt, models.JobKindCheckIn, onDelivered)
}

// SendDirect delivers an arbitrary body to the user over their preferred
// channel. Used for conversation replies and manual test messages; it does
// not expire conversation state.
func (o *Orchestrator) SendDirect(ctx context.Context, userID, body string) (models.SendResult, error) {
	channelName, recipient, err := o.store.GetUserChannelPreference(userID)
	if err != nil {
		return models.SendResult{}, fmt.Errorf("failed to resolve channel for user %s: %w", userID, err)
	}
	return o.attemptSend(ctx, channelName, userID, recipient, body, models.JobKindMessage, nil)
}

// attemptSend tries one delivery. A channel that is not ready, times out,
// or errors never propagates a failure to the caller: the message is
// enqueued for retry and a queued result returned.
func (o *Orchestrator) attemptSend(ctx context.Context, channelName, userID, recipient, payload string, kind models.JobKind, onDelivered func()) (models.SendResult, error) {
	if recipient == "" {
		return models.SendResult{}, models.ErrEmptyRecipient
	}
	if payload == "" {
		return models.SendResult{}, models.ErrEmptyBody
	}

	ch, err := o.registry.Get(channelName)
	if err != nil {
		return models.SendResult{}, err
	}

	if !ch.IsReady() {
		slog.Warn("Channel not ready, queueing message for retry",
			"channel", channelName, "userID", userID, "status", ch.Status())
		id := o.enqueueRetry(channelName, userID, recipient, payload, kind, onDelivered)
		return models.SendResult{Outcome: models.SendQueued, RetryID: id}, nil
	}

	if err := o.doSend(ctx, ch, recipient, payload); err != nil {
		slog.Warn("Send failed, queueing message for retry",
			"error", err, "channel", channelName, "userID", userID, "kind", kind)
		id := o.enqueueRetry(channelName, userID, recipient, payload, kind, onDelivered)
		return models.SendResult{Outcome: models.SendQueued, RetryID: id}, nil
	}

	if onDelivered != nil {
		onDelivered()
	}
	slog.Debug("Message delivered", "channel", channelName, "userID", userID, "kind", kind)
	return models.SendResult{Outcome: models.SendDelivered}, nil
}

// doSend performs one channel call bounded by the send timeout. Async
// channels go through the bridge worker; sync channels execute inline.
func (o *Orchestrator) doSend(ctx context.Context, ch channel.Channel, recipient, payload string) error {
	sendCtx, cancel := context.WithTimeout(ctx, o.cfg.SendTimeout)
	defer cancel()

	if limiter := o.limiterFor(ch.Name()); limiter != nil {
		if err := limiter.Wait(sendCtx); err != nil {
			return models.ErrSendTimeout
		}
	}

	if ch.Kind() == models.ChannelKindAsync {
		return o.bridge.submit(sendCtx, func(c context.Context) error {
			return ch.Send(c, recipient, payload)
		})
	}

	done := make(chan error, 1)
	go func() { done <- ch.Send(sendCtx, recipient, payload) }()
	select {
	case err := <-done:
		return err
	case <-sendCtx.Done():
		return models.ErrSendTimeout
	}
}

func (o *Orchestrator) limiterFor(name string) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.limiters[name]
}
