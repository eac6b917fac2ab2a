package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/karunahq/CarePing/internal/models"
)

func TestBridgeRunsSubmittedWork(t *testing.T) {
	b := newAsyncBridge(4)
	go b.run()
	defer b.shutdown()

	ran := false
	err := b.submit(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !ran {
		t.Error("submitted work never ran")
	}
}

func TestBridgePropagatesWorkError(t *testing.T) {
	b := newAsyncBridge(4)
	go b.run()
	defer b.shutdown()

	want := errors.New("transport exploded")
	err := b.submit(context.Background(), func(ctx context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("submit error = %v, want %v", err, want)
	}
}

func TestBridgeTimeoutLeavesWorkerAlive(t *testing.T) {
	b := newAsyncBridge(4)
	go b.run()
	defer b.shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := b.submit(ctx, func(ctx context.Context) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	if !errors.Is(err, models.ErrSendTimeout) {
		t.Fatalf("submit error = %v, want ErrSendTimeout", err)
	}

	// The worker must survive the abandoned call and serve the next one.
	err = b.submit(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Errorf("submit after timeout failed: %v", err)
	}
}

func TestBridgeRejectsAfterShutdown(t *testing.T) {
	b := newAsyncBridge(4)
	go b.run()
	b.shutdown()

	// Give the worker a moment to observe the stop signal.
	time.Sleep(5 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := b.submit(ctx, func(ctx context.Context) error { return nil })
	if !errors.Is(err, models.ErrServiceStopped) && !errors.Is(err, models.ErrSendTimeout) {
		t.Errorf("submit after shutdown = %v, want ErrServiceStopped", err)
	}
}
