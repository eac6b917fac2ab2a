// Package channel defines the capability contract every transport
// implements, plus the name-keyed registry the delivery orchestrator
// resolves channels through.
//
// The orchestrator never depends on a concrete channel type; channels are
// registered once at startup and looked up by name.
package channel

import (
	"context"
	"sync"
	"time"

	"github.com/karunahq/CarePing/internal/models"
)

// Constants for channel implementations
const (
	// DefaultResponseBufferSize defines the default buffer size for inbound message channels
	DefaultResponseBufferSize = 100
	// DefaultEmitTimeout defines the timeout for non-blocking inbound emits
	DefaultEmitTimeout = 1 * time.Second
)

// Channel is the capability contract for a message transport.
type Channel interface {
	// Name returns the registry key for this channel.
	Name() string

	// Kind reports whether sends execute inline (sync) or must be
	// marshalled onto the orchestrator's bridge worker (async).
	Kind() models.ChannelKind

	// Status returns the current lifecycle status.
	Status() models.ChannelStatus

	// IsReady reports whether the channel can accept sends right now.
	IsReady() bool

	// Start brings the channel up. It transitions the status through
	// initializing and leaves it ready on success or error on failure.
	Start(ctx context.Context) error

	// Stop tears the channel down and returns the status to uninitialized.
	Stop() error

	// Send delivers a message body to a recipient address.
	Send(ctx context.Context, recipient string, body string) error

	// Responses returns the stream of inbound messages from users.
	// Transports without an inbound side return a channel that never emits.
	Responses() <-chan models.InboundMessage
}

// StatusTracker is a small embeddable helper that owns a channel's status
// under a lock. Concrete channels embed it and drive transitions from their
// Start/Stop/Send paths.
type StatusTracker struct {
	mu     sync.RWMutex
	status models.ChannelStatus
}

// NewStatusTracker returns a tracker in the uninitialized state.
func NewStatusTracker() StatusTracker {
	return StatusTracker{status: models.ChannelStatusUninitialized}
}

// Status returns the current status.
func (t *StatusTracker) Status() models.ChannelStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// IsReady reports whether the status is ready.
func (t *StatusTracker) IsReady() bool {
	return t.Status() == models.ChannelStatusReady
}

// SetStatus records a status transition.
func (t *StatusTracker) SetStatus(s models.ChannelStatus) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}
