package channel

import (
	"context"
	"sync"

	"github.com/karunahq/CarePing/internal/models"
)

// SentMessage records one successful MockChannel send.
type SentMessage struct {
	Recipient string
	Body      string
}

// MockChannel implements Channel for tests. Failures can be injected per
// send, and inbound messages pushed through PushInbound.
//
// In tests, use NewMockChannel instead of a real transport to avoid
// network connections.
type MockChannel struct {
	StatusTracker

	name string
	kind models.ChannelKind

	mu        sync.Mutex
	sent      []SentMessage
	failNext  int   // fail this many upcoming sends
	failErr   error // error returned for injected failures
	started   int
	stopped   int
	startErr  error
	responses chan models.InboundMessage
}

// NewMockChannel creates a mock channel with the given name and kind.
func NewMockChannel(name string, kind models.ChannelKind) *MockChannel {
	return &MockChannel{
		StatusTracker: NewStatusTracker(),
		name:          name,
		kind:          kind,
		responses:     make(chan models.InboundMessage, DefaultResponseBufferSize),
	}
}

func (m *MockChannel) Name() string             { return m.name }
func (m *MockChannel) Kind() models.ChannelKind { return m.kind }

// Start marks the channel ready, or returns the injected start error and
// marks the channel errored.
func (m *MockChannel) Start(ctx context.Context) error {
	m.SetStatus(models.ChannelStatusInitializing)
	m.mu.Lock()
	m.started++
	err := m.startErr
	m.mu.Unlock()
	if err != nil {
		m.SetStatus(models.ChannelStatusError)
		return err
	}
	m.SetStatus(models.ChannelStatusReady)
	return nil
}

// Stop returns the channel to the uninitialized state.
func (m *MockChannel) Stop() error {
	m.mu.Lock()
	m.stopped++
	m.mu.Unlock()
	m.SetStatus(models.ChannelStatusUninitialized)
	return nil
}

// Send records the message, or consumes one injected failure.
func (m *MockChannel) Send(ctx context.Context, recipient, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		err := m.failErr
		if err == nil {
			err = models.ErrChannelNotReady
		}
		return err
	}
	m.sent = append(m.sent, SentMessage{Recipient: recipient, Body: body})
	return nil
}

// Responses returns the inbound message stream.
func (m *MockChannel) Responses() <-chan models.InboundMessage {
	return m.responses
}

// FailNext injects err into the next n sends.
func (m *MockChannel) FailNext(n int, err error) {
	m.mu.Lock()
	m.failNext = n
	m.failErr = err
	m.mu.Unlock()
}

// FailStart makes subsequent Start calls fail with err.
func (m *MockChannel) FailStart(err error) {
	m.mu.Lock()
	m.startErr = err
	m.mu.Unlock()
}

// Sent returns a copy of the successfully sent messages.
func (m *MockChannel) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// StartCount returns how many times Start was invoked.
func (m *MockChannel) StartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// PushInbound emits an inbound message as if a user had replied.
func (m *MockChannel) PushInbound(msg models.InboundMessage) {
	m.responses <- msg
}
