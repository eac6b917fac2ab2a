package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/karunahq/CarePing/internal/channel"
	"github.com/karunahq/CarePing/internal/models"
)

// channelHealth tracks one channel's observed status over time plus the
// restart bookkeeping. Guarded by the orchestrator mutex.
type channelHealth struct {
	lastStatus      models.ChannelStatus
	statusSince     time.Time
	restartFailures int
	disabled        bool
	restarting      bool
}

// healthLoop periodically inspects every channel and restarts those stuck
// in error or initializing beyond the cooldown. Repeated restart failures
// disable a channel until a manual reset.
func (o *Orchestrator) healthLoop() {
	ticker := time.NewTicker(o.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case now := <-ticker.C:
			o.checkChannels(now)
		}
	}
}

// checkChannels runs one health pass over every registered channel.
func (o *Orchestrator) checkChannels(now time.Time) {
	for _, ch := range o.registry.All() {
		o.mu.Lock()
		h, exists := o.health[ch.Name()]
		if !exists {
			h = &channelHealth{lastStatus: ch.Status(), statusSince: now}
			o.health[ch.Name()] = h
		}

		status := ch.Status()
		if status != h.lastStatus {
			slog.Debug("Channel status changed",
				"channel", ch.Name(), "from", h.lastStatus, "to", status)
			h.lastStatus = status
			h.statusSince = now
		}
		if status == models.ChannelStatusReady && h.restartFailures > 0 {
			slog.Info("Channel recovered, clearing restart failures",
				"channel", ch.Name(), "previousFailures", h.restartFailures)
			h.restartFailures = 0
		}

		stuck := (status == models.ChannelStatusError || status == models.ChannelStatusInitializing) &&
			now.Sub(h.statusSince) >= o.cfg.StuckCooldown
		if !stuck || h.disabled || h.restarting {
			o.mu.Unlock()
			continue
		}

		h.restarting = true
		// Reset the clock so the next restart waits a full cooldown even if
		// this one leaves the channel in the same state.
		h.statusSince = now
		o.mu.Unlock()

		go o.restartChannel(ch)
	}
}

// restartChannel stops and restarts one stuck channel. A restart that does
// not bring the channel to ready counts as a failure; hitting the failure
// cap disables automatic restarts for the channel. The restart runs on the
// orchestrator's context, never a caller's: a channel login flow must
// outlive the admin request that triggered it.
func (o *Orchestrator) restartChannel(ch channel.Channel) {
	ctx := o.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	slog.Warn("Restarting stuck channel", "channel", ch.Name(), "status", ch.Status())

	if err := ch.Stop(); err != nil {
		slog.Warn("Stop during restart failed", "error", err, "channel", ch.Name())
	}
	startErr := ch.Start(ctx)

	o.mu.Lock()
	h := o.health[ch.Name()]
	h.restarting = false
	if startErr != nil || !ch.IsReady() {
		h.restartFailures++
		failures := h.restartFailures
		if failures >= o.cfg.RestartFailureCap {
			h.disabled = true
			o.mu.Unlock()
			slog.Error("Channel disabled after repeated restart failures",
				"error", startErr, "channel", ch.Name(), "failures", failures,
				"cap", o.cfg.RestartFailureCap)
			return
		}
		o.mu.Unlock()
		slog.Warn("Channel restart did not recover",
			"error", startErr, "channel", ch.Name(), "failures", failures)
		return
	}
	h.restartFailures = 0
	h.lastStatus = models.ChannelStatusReady
	h.statusSince = time.Now()
	o.mu.Unlock()

	slog.Info("Channel restarted successfully", "channel", ch.Name())
}

// ResetChannel clears a channel's disabled flag and restart failures and
// kicks off an immediate restart attempt. Called by the admin API; ctx
// bounds only the synchronous bookkeeping, the restart itself runs in the
// background on the orchestrator's context.
func (o *Orchestrator) ResetChannel(ctx context.Context, name string) error {
	ch, err := o.registry.Get(name)
	if err != nil {
		return err
	}

	o.mu.Lock()
	h, exists := o.health[name]
	if !exists {
		h = &channelHealth{lastStatus: ch.Status(), statusSince: time.Now()}
		o.health[name] = h
	}
	if h.restarting {
		o.mu.Unlock()
		return nil
	}
	h.disabled = false
	h.restartFailures = 0
	h.restarting = true
	h.statusSince = time.Now()
	o.mu.Unlock()

	slog.Info("Manual channel reset requested", "channel", name)
	go o.restartChannel(ch)
	return nil
}

// ChannelHealthSnapshot returns a read-only view of every channel's health.
func (o *Orchestrator) ChannelHealthSnapshot() []models.ChannelHealth {
	channels := o.registry.All()
	out := make([]models.ChannelHealth, 0, len(channels))

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range channels {
		snap := models.ChannelHealth{
			Name:   ch.Name(),
			Kind:   ch.Kind(),
			Status: ch.Status(),
		}
		if h, exists := o.health[ch.Name()]; exists {
			snap.StatusSince = h.statusSince
			snap.RestartFailures = h.restartFailures
			snap.Disabled = h.disabled
		}
		out = append(out, snap)
	}
	return out
}
