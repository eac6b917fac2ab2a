// Package router drains inbound messages from every channel, resolves the
// sender to a user, and feeds replies to the check-in engine.
package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/karunahq/CarePing/internal/channel"
	"github.com/karunahq/CarePing/internal/models"
)

// UserResolver maps a channel-level sender address to a user ID.
type UserResolver interface {
	FindUserByRecipient(channelName, recipient string) (string, error)
}

// ReplyHandler processes one conversation reply.
type ReplyHandler interface {
	HandleReply(ctx context.Context, userID, text string) (reply string, completed bool, err error)
}

// Responder sends a reply body back to the user.
type Responder interface {
	SendDirect(ctx context.Context, userID, body string) (models.SendResult, error)
}

// Router drains every registered channel's inbound stream.
type Router struct {
	registry *channel.Registry
	resolver UserResolver
	handler  ReplyHandler
	sender   Responder

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a router over the given registry, resolver, handler, and sender.
func New(registry *channel.Registry, resolver UserResolver, handler ReplyHandler, sender Responder) *Router {
	return &Router{
		registry: registry,
		resolver: resolver,
		handler:  handler,
		sender:   sender,
		stopCh:   make(chan struct{}),
	}
}

// Start launches one drain goroutine per registered channel.
func (r *Router) Start(ctx context.Context) {
	for _, ch := range r.registry.All() {
		r.wg.Add(1)
		go func(ch channel.Channel) {
			defer r.wg.Done()
			r.drain(ctx, ch)
		}(ch)
	}
	slog.Info("Inbound router started", "channels", r.registry.Names())
}

// Stop halts the drain goroutines.
func (r *Router) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	slog.Info("Inbound router stopped")
}

func (r *Router) drain(ctx context.Context, ch channel.Channel) {
	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-ch.Responses():
			if !ok {
				return
			}
			r.handle(ctx, ch.Name(), msg)
		}
	}
}

// handle routes one inbound message. Messages from unknown senders or
// outside any conversation are logged and dropped, never errored.
func (r *Router) handle(ctx context.Context, channelName string, msg models.InboundMessage) {
	userID, err := r.resolver.FindUserByRecipient(channelName, msg.From)
	if err != nil {
		if errors.Is(err, models.ErrUnknownUser) {
			slog.Debug("Inbound message from unknown sender, ignoring", "channel", channelName, "from", msg.From)
			return
		}
		slog.Error("Failed to resolve inbound sender", "error", err, "channel", channelName, "from", msg.From)
		return
	}

	reply, completed, err := r.handler.HandleReply(ctx, userID, msg.Body)
	if err != nil {
		if errors.Is(err, models.ErrNoConversation) {
			slog.Debug("Inbound message outside any conversation, ignoring", "userID", userID, "channel", channelName)
			return
		}
		slog.Error("Reply handling failed", "error", err, "userID", userID, "channel", channelName)
		return
	}
	slog.Debug("Inbound reply handled", "userID", userID, "channel", channelName, "completed", completed)

	if reply == "" {
		return
	}
	if _, err := r.sender.SendDirect(ctx, userID, reply); err != nil {
		slog.Error("Failed to send conversation reply", "error", err, "userID", userID)
	}
}
