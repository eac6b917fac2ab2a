package channel

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/karunahq/CarePing/internal/models"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	mock := NewMockChannel("sms", models.ChannelKindSync)

	if err := r.Register(mock); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(NewMockChannel("sms", models.ChannelKindSync)); err == nil {
		t.Error("Register duplicate name expected error")
	}

	got, err := r.Get("sms")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != Channel(mock) {
		t.Error("Get returned a different channel instance")
	}

	_, err = r.Get("carrier-pigeon")
	if !errors.Is(err, models.ErrChannelNotRegistered) {
		t.Errorf("Get unknown channel error = %v, want ErrChannelNotRegistered", err)
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"whatsapp", "email", "sms"} {
		if err := r.Register(NewMockChannel(name, models.ChannelKindSync)); err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
	}
	want := []string{"email", "sms", "whatsapp"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
}

func TestStatusTrackerTransitions(t *testing.T) {
	tr := NewStatusTracker()
	if tr.Status() != models.ChannelStatusUninitialized {
		t.Errorf("initial status = %s, want uninitialized", tr.Status())
	}
	if tr.IsReady() {
		t.Error("IsReady on uninitialized tracker = true")
	}
	tr.SetStatus(models.ChannelStatusReady)
	if !tr.IsReady() {
		t.Error("IsReady after SetStatus(ready) = false")
	}
}

func TestMockChannelLifecycle(t *testing.T) {
	mock := NewMockChannel("test", models.ChannelKindSync)
	ctx := context.Background()

	if err := mock.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !mock.IsReady() {
		t.Fatal("channel not ready after Start")
	}

	mock.FailNext(1, errors.New("carrier lost"))
	if err := mock.Send(ctx, "+15551234", "hello"); err == nil {
		t.Error("Send with injected failure expected error")
	}
	if err := mock.Send(ctx, "+15551234", "hello again"); err != nil {
		t.Errorf("Send after failure consumed: %v", err)
	}
	if sent := mock.Sent(); len(sent) != 1 || sent[0].Body != "hello again" {
		t.Errorf("Sent() = %+v, want one successful message", sent)
	}

	if err := mock.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if mock.Status() != models.ChannelStatusUninitialized {
		t.Errorf("status after Stop = %s, want uninitialized", mock.Status())
	}
}
