package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/karunahq/CarePing/internal/models"
)

// fakeDelivery implements Delivery for handler tests.
type fakeDelivery struct {
	categorySends int
	checkinSends  int
	directSends   int
	resetCalls    []string
	health        []models.ChannelHealth
	retries       []models.RetryEntry
	err           error
}

func (f *fakeDelivery) SendForCategory(ctx context.Context, userID string, category models.Category) (models.SendResult, error) {
	f.categorySends++
	return models.SendResult{Outcome: models.SendDelivered}, f.err
}

func (f *fakeDelivery) SendCheckInPrompt(ctx context.Context, userID string) (models.SendResult, error) {
	f.checkinSends++
	return models.SendResult{Outcome: models.SendDelivered}, f.err
}

func (f *fakeDelivery) SendDirect(ctx context.Context, userID, body string) (models.SendResult, error) {
	f.directSends++
	return models.SendResult{Outcome: models.SendDelivered}, f.err
}

func (f *fakeDelivery) ChannelHealthSnapshot() []models.ChannelHealth { return f.health }
func (f *fakeDelivery) RetryQueueSnapshot() []models.RetryEntry      { return f.retries }

func (f *fakeDelivery) ResetChannel(ctx context.Context, name string) error {
	f.resetCalls = append(f.resetCalls, name)
	if name == "fax" {
		return models.ErrChannelNotRegistered
	}
	return nil
}

// fakeScheduling implements Scheduling for handler tests.
type fakeScheduling struct {
	scheduleAllCalls  int
	scheduleUserCalls []string
	cancelCalls       []string
	jobs              []models.Job
}

func (f *fakeScheduling) ScheduleAll() error { f.scheduleAllCalls++; return nil }
func (f *fakeScheduling) ScheduleUser(userID string) error {
	f.scheduleUserCalls = append(f.scheduleUserCalls, userID)
	return nil
}
func (f *fakeScheduling) CancelJobsFor(userID string) int {
	f.cancelCalls = append(f.cancelCalls, userID)
	return 1
}
func (f *fakeScheduling) Jobs() []models.Job { return f.jobs }

func doRequest(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp models.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("response body is not an API envelope: %v", err)
	}
	return rec, resp
}

func TestSendHandlerCategory(t *testing.T) {
	d := &fakeDelivery{}
	s := NewServer(d, &fakeScheduling{})

	rec, resp := doRequest(t, s.Handler(), http.MethodPost, "/send",
		`{"user_id":"u1","category":"motivational"}`)
	if rec.Code != http.StatusOK || resp.Status != "ok" {
		t.Fatalf("status = %d / %s, want 200 ok", rec.Code, resp.Status)
	}
	if d.categorySends != 1 {
		t.Errorf("categorySends = %d, want 1", d.categorySends)
	}
}

func TestSendHandlerCheckIn(t *testing.T) {
	d := &fakeDelivery{}
	s := NewServer(d, &fakeScheduling{})

	rec, _ := doRequest(t, s.Handler(), http.MethodPost, "/send",
		`{"user_id":"u1","category":"checkin"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if d.checkinSends != 1 || d.categorySends != 0 {
		t.Errorf("checkinSends = %d, categorySends = %d; want the check-in path", d.checkinSends, d.categorySends)
	}
}

func TestSendHandlerDirectBody(t *testing.T) {
	d := &fakeDelivery{}
	s := NewServer(d, &fakeScheduling{})

	rec, _ := doRequest(t, s.Handler(), http.MethodPost, "/send",
		`{"user_id":"u1","body":"just checking in on you"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if d.directSends != 1 {
		t.Errorf("directSends = %d, want 1", d.directSends)
	}
}

func TestSendHandlerValidation(t *testing.T) {
	s := NewServer(&fakeDelivery{}, &fakeScheduling{})
	cases := []struct {
		name string
		body string
	}{
		{"missing user", `{"category":"motivational"}`},
		{"missing category and body", `{"user_id":"u1"}`},
		{"malformed JSON", `{`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec, resp := doRequest(t, s.Handler(), http.MethodPost, "/send", c.body)
			if rec.Code != http.StatusBadRequest || resp.Status != "error" {
				t.Errorf("status = %d / %s, want 400 error", rec.Code, resp.Status)
			}
		})
	}

	rec, _ := doRequest(t, s.Handler(), http.MethodGet, "/send", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /send status = %d, want 405", rec.Code)
	}
}

func TestRescheduleHandler(t *testing.T) {
	sched := &fakeScheduling{}
	s := NewServer(&fakeDelivery{}, sched)

	rec, _ := doRequest(t, s.Handler(), http.MethodPost, "/reschedule", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sched.scheduleAllCalls != 1 {
		t.Errorf("scheduleAllCalls = %d, want 1", sched.scheduleAllCalls)
	}

	rec, _ = doRequest(t, s.Handler(), http.MethodPost, "/reschedule", `{"user_id":"u1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(sched.cancelCalls) != 1 || sched.cancelCalls[0] != "u1" {
		t.Errorf("cancelCalls = %v, want [u1]", sched.cancelCalls)
	}
	if len(sched.scheduleUserCalls) != 1 || sched.scheduleUserCalls[0] != "u1" {
		t.Errorf("scheduleUserCalls = %v, want [u1]", sched.scheduleUserCalls)
	}
}

func TestChannelsHandler(t *testing.T) {
	d := &fakeDelivery{health: []models.ChannelHealth{
		{Name: "sms", Kind: models.ChannelKindSync, Status: models.ChannelStatusReady, StatusSince: time.Now()},
	}}
	s := NewServer(d, &fakeScheduling{})

	rec, resp := doRequest(t, s.Handler(), http.MethodGet, "/channels", "")
	if rec.Code != http.StatusOK || resp.Status != "ok" {
		t.Fatalf("status = %d / %s, want 200 ok", rec.Code, resp.Status)
	}
	if resp.Result == nil {
		t.Error("result missing channel health snapshot")
	}
}

func TestResetChannelHandler(t *testing.T) {
	d := &fakeDelivery{}
	s := NewServer(d, &fakeScheduling{})

	rec, _ := doRequest(t, s.Handler(), http.MethodPost, "/channels/reset", `{"name":"sms"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(d.resetCalls) != 1 || d.resetCalls[0] != "sms" {
		t.Errorf("resetCalls = %v, want [sms]", d.resetCalls)
	}

	rec, _ = doRequest(t, s.Handler(), http.MethodPost, "/channels/reset", `{"name":"fax"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown channel status = %d, want 404", rec.Code)
	}

	rec, _ = doRequest(t, s.Handler(), http.MethodPost, "/channels/reset", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing name status = %d, want 400", rec.Code)
	}
}

func TestRetriesAndJobsHandlers(t *testing.T) {
	d := &fakeDelivery{retries: []models.RetryEntry{{ID: "rt_1", ChannelName: "sms", UserID: "u1"}}}
	sched := &fakeScheduling{jobs: []models.Job{{ID: "job_1", UserID: "u1"}}}
	s := NewServer(d, sched)

	rec, resp := doRequest(t, s.Handler(), http.MethodGet, "/retries", "")
	if rec.Code != http.StatusOK || resp.Result == nil {
		t.Errorf("GET /retries = %d, result %v", rec.Code, resp.Result)
	}

	rec, resp = doRequest(t, s.Handler(), http.MethodGet, "/jobs", "")
	if rec.Code != http.StatusOK || resp.Result == nil {
		t.Errorf("GET /jobs = %d, result %v", rec.Code, resp.Result)
	}
}
