package delivery

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/karunahq/CarePing/internal/models"
	"github.com/karunahq/CarePing/internal/util"
)

// retryEntry wraps a queued message with the bookkeeping the dispatcher
// needs: the channel tuning in effect when it was queued, the delivery
// confirmation callback, and an in-flight guard so one entry never has two
// attempts running at once.
type retryEntry struct {
	models.RetryEntry
	cfg         models.ChannelConfig
	onDelivered func()
	inFlight    bool
}

// enqueueRetry adds a failed or deferred message to the retry queue and
// returns its retry ID. The first retry fires after the channel's base
// retry delay.
func (o *Orchestrator) enqueueRetry(channelName, userID, recipient, payload string, kind models.JobKind, onDelivered func()) string {
	ch, err := o.registry.Get(channelName)
	if err != nil {
		// Caller already resolved the channel; this cannot normally happen.
		slog.Error("Cannot queue retry for unregistered channel", "channel", channelName)
		return ""
	}
	cfg := o.channelConfig(ch)

	entry := &retryEntry{
		RetryEntry: models.RetryEntry{
			ID:            util.GenerateRetryID(),
			ChannelName:   channelName,
			UserID:        userID,
			Recipient:     recipient,
			Payload:       payload,
			Kind:          kind,
			AttemptCount:  0,
			NextAttemptAt: time.Now().Add(cfg.RetryDelay),
		},
		cfg:         cfg,
		onDelivered: onDelivered,
	}

	o.mu.Lock()
	o.retries[entry.ID] = entry
	queued := len(o.retries)
	o.mu.Unlock()

	slog.Debug("Message queued for retry",
		"retryID", entry.ID, "channel", channelName, "userID", userID,
		"kind", kind, "nextAttemptAt", entry.NextAttemptAt, "queueDepth", queued)
	return entry.ID
}

// retryLoop scans the queue every retry interval and attempts entries that
// are due and whose channel is ready. Each attempt runs on its own
// goroutine; the in-flight flag keeps attempts for one entry sequential.
func (o *Orchestrator) retryLoop() {
	ticker := time.NewTicker(o.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case now := <-ticker.C:
			for _, entry := range o.dueEntries(now) {
				go o.attemptRetry(entry)
			}
		}
	}
}

// dueEntries collects entries ready for an attempt and marks them in flight.
func (o *Orchestrator) dueEntries(now time.Time) []*retryEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	var due []*retryEntry
	for _, entry := range o.retries {
		if entry.inFlight || entry.NextAttemptAt.After(now) {
			continue
		}
		ch, err := o.registry.Get(entry.ChannelName)
		if err != nil || !ch.IsReady() {
			continue
		}
		entry.inFlight = true
		due = append(due, entry)
	}
	return due
}

// attemptRetry performs one retry attempt for a queued entry. Success
// removes the entry and fires its delivery callback. Failure increments the
// attempt count and either reschedules with exponential backoff or, once
// the channel's retry budget is spent, drops the message with an error log
// carrying full context.
func (o *Orchestrator) attemptRetry(entry *retryEntry) {
	ch, err := o.registry.Get(entry.ChannelName)
	if err != nil {
		o.removeRetry(entry.ID)
		return
	}

	ctx := o.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	sendErr := o.doSend(ctx, ch, entry.Recipient, entry.Payload)
	if sendErr == nil {
		o.removeRetry(entry.ID)
		if entry.onDelivered != nil {
			entry.onDelivered()
		}
		slog.Info("Queued message delivered on retry",
			"retryID", entry.ID, "channel", entry.ChannelName, "userID", entry.UserID,
			"kind", entry.Kind, "attempt", entry.AttemptCount+1)
		return
	}

	o.mu.Lock()
	entry.AttemptCount++
	if entry.AttemptCount >= entry.cfg.MaxRetries {
		delete(o.retries, entry.ID)
		o.mu.Unlock()
		slog.Error("Dropping message after exhausting retries",
			"error", sendErr, "retryID", entry.ID, "channel", entry.ChannelName,
			"userID", entry.UserID, "kind", entry.Kind, "attempts", entry.AttemptCount)
		return
	}
	backoff := time.Duration(float64(entry.cfg.RetryDelay) * math.Pow(entry.cfg.BackoffMultiplier, float64(entry.AttemptCount)))
	entry.NextAttemptAt = time.Now().Add(backoff)
	entry.inFlight = false
	o.mu.Unlock()

	slog.Warn("Retry attempt failed, backing off",
		"error", sendErr, "retryID", entry.ID, "channel", entry.ChannelName,
		"userID", entry.UserID, "attempt", entry.AttemptCount, "nextAttemptAt", entry.NextAttemptAt)
}

func (o *Orchestrator) removeRetry(id string) {
	o.mu.Lock()
	delete(o.retries, id)
	o.mu.Unlock()
}

// RetryQueueSnapshot returns a copy of the queued entries ordered by next
// attempt time. Exposed through the admin API.
func (o *Orchestrator) RetryQueueSnapshot() []models.RetryEntry {
	o.mu.Lock()
	entries := make([]models.RetryEntry, 0, len(o.retries))
	for _, entry := range o.retries {
		entries = append(entries, entry.RetryEntry)
	}
	o.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].NextAttemptAt.Before(entries[j].NextAttemptAt)
	})
	return entries
}

// RetryQueueLen returns the number of queued entries.
func (o *Orchestrator) RetryQueueLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.retries)
}
