package checkin

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/karunahq/CarePing/internal/models"
	"github.com/karunahq/CarePing/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	st.UpsertUser("u1", "sms", "+15550001")
	err := st.SetQuestions("u1", []models.QuestionSpec{
		{Key: "mood", Prompt: "How are you feeling today?", Kind: models.AnswerKindScale, ScaleMin: 1, ScaleMax: 10},
		{Key: "slept", Prompt: "Did you sleep well?", Kind: models.AnswerKindYesNo},
		{Key: "note", Prompt: "Anything on your mind?", Kind: models.AnswerKindText},
	})
	if err != nil {
		t.Fatalf("SetQuestions failed: %v", err)
	}
	return NewEngine(st), st
}

func TestFirstPromptCreatesNoState(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	prompt, err := e.FirstPrompt(ctx, "u1")
	if err != nil {
		t.Fatalf("FirstPrompt failed: %v", err)
	}
	if !strings.Contains(prompt, "How are you feeling today?") {
		t.Errorf("FirstPrompt = %q, want the first question", prompt)
	}
	if !strings.Contains(prompt, "1 to 10") {
		t.Errorf("FirstPrompt = %q, want scale guidance", prompt)
	}
	if e.Active("u1") {
		t.Error("FirstPrompt must not create conversation state")
	}
}

func TestBeginOnlyOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if err := e.Begin(ctx, "u1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !e.Active("u1") {
		t.Fatal("conversation not active after Begin")
	}
	if err := e.Begin(ctx, "u1"); !errors.Is(err, models.ErrConversationActive) {
		t.Errorf("second Begin = %v, want ErrConversationActive", err)
	}
}

func TestBeginWithoutQuestions(t *testing.T) {
	st := store.NewInMemoryStore()
	st.UpsertUser("u2", "sms", "+15550002")
	e := NewEngine(st)
	if err := e.Begin(context.Background(), "u2"); !errors.Is(err, models.ErrNoQuestions) {
		t.Errorf("Begin with no questions = %v, want ErrNoQuestions", err)
	}
}

func TestFullConversation(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	if err := e.Begin(ctx, "u1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	reply, completed, err := e.HandleReply(ctx, "u1", "7")
	if err != nil || completed {
		t.Fatalf("step 1 reply = %q, completed=%v, err=%v", reply, completed, err)
	}
	if !strings.Contains(reply, "Did you sleep well?") {
		t.Errorf("step 1 reply = %q, want second question", reply)
	}

	reply, completed, err = e.HandleReply(ctx, "u1", "yeah")
	if err != nil || completed {
		t.Fatalf("step 2 reply = %q, completed=%v, err=%v", reply, completed, err)
	}
	if !strings.Contains(reply, "Anything on your mind?") {
		t.Errorf("step 2 reply = %q, want third question", reply)
	}

	reply, completed, err = e.HandleReply(ctx, "u1", "feeling hopeful")
	if err != nil {
		t.Fatalf("final reply failed: %v", err)
	}
	if !completed {
		t.Fatal("final answer did not complete the conversation")
	}
	if e.Active("u1") {
		t.Error("conversation still active after completion")
	}

	sessions := st.GetCheckInSessions("u1")
	if len(sessions) != 1 {
		t.Fatalf("persisted sessions = %d, want exactly 1", len(sessions))
	}
	answers := sessions[0].Answers
	want := []models.Answer{
		{Key: "mood", Value: "7"},
		{Key: "slept", Value: "yes"},
		{Key: "note", Value: "feeling hopeful"},
	}
	if len(answers) != len(want) {
		t.Fatalf("answers = %+v, want %+v", answers, want)
	}
	for i := range want {
		if answers[i] != want[i] {
			t.Errorf("answer %d = %+v, want %+v", i, answers[i], want[i])
		}
	}
}

func TestInvalidAnswerDoesNotAdvance(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	if err := e.Begin(ctx, "u1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	cases := []string{"eleven", "0", "11", "-3"}
	for _, input := range cases {
		reply, completed, err := e.HandleReply(ctx, "u1", input)
		if err != nil || completed {
			t.Fatalf("invalid input %q: completed=%v, err=%v", input, completed, err)
		}
		if !strings.Contains(reply, "1 to 10") {
			t.Errorf("invalid input %q reply = %q, want guidance re-prompt", input, reply)
		}
		if got := e.StepIndex("u1"); got != 0 {
			t.Errorf("StepIndex after invalid input %q = %d, want 0", input, got)
		}
	}

	if _, _, err := e.HandleReply(ctx, "u1", "5"); err != nil {
		t.Fatalf("valid input after re-prompts failed: %v", err)
	}
	if got := e.StepIndex("u1"); got != 1 {
		t.Errorf("StepIndex after valid answer = %d, want 1", got)
	}
}

func TestCancelCommand(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	if err := e.Begin(ctx, "u1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, _, err := e.HandleReply(ctx, "u1", "7"); err != nil {
		t.Fatalf("first answer failed: %v", err)
	}

	reply, completed, err := e.HandleReply(ctx, "u1", "Cancel")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !completed {
		t.Error("cancel should end the conversation")
	}
	if reply == "" {
		t.Error("cancel should acknowledge with a reply")
	}
	if e.Active("u1") {
		t.Error("conversation still active after cancel")
	}
	if sessions := st.GetCheckInSessions("u1"); len(sessions) != 0 {
		t.Errorf("cancelled conversation persisted %d sessions, want 0", len(sessions))
	}
}

func TestReplyWithoutConversation(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, _, err := e.HandleReply(context.Background(), "u1", "hello"); !errors.Is(err, models.ErrNoConversation) {
		t.Errorf("HandleReply without conversation = %v, want ErrNoConversation", err)
	}
}

func TestExpireIfStaleDropsConversation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	if err := e.Begin(ctx, "u1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	e.ExpireIfStale("u1")
	if e.Active("u1") {
		t.Fatal("conversation still active after ExpireIfStale")
	}
	if _, _, err := e.HandleReply(ctx, "u1", "7"); !errors.Is(err, models.ErrNoConversation) {
		t.Errorf("reply after expiry = %v, want ErrNoConversation", err)
	}
}

func TestConcurrentExpiryDuringReplies(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				e.ExpireIfStale("u1")
			}
		}
	}()

	// An expiry landing between validation and state advance must surface
	// as ErrNoConversation, never corrupt or resurrect the state.
	for i := 0; i < 300; i++ {
		if err := e.Begin(ctx, "u1"); err != nil && !errors.Is(err, models.ErrConversationActive) {
			t.Fatalf("Begin failed: %v", err)
		}
		if _, _, err := e.HandleReply(ctx, "u1", "7"); err != nil && !errors.Is(err, models.ErrNoConversation) {
			t.Fatalf("HandleReply failed: %v", err)
		}
	}
	close(stop)
	wg.Wait()

	e.ExpireIfStale("u1")
	if e.Active("u1") {
		t.Error("conversation still active after final expiry")
	}
}

func TestExpireInactive(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	if err := e.Begin(ctx, "u1"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	if n := e.ExpireInactive(time.Hour); n != 0 {
		t.Errorf("ExpireInactive(1h) on fresh conversation = %d, want 0", n)
	}
	if n := e.ExpireInactive(0); n != 1 {
		t.Errorf("ExpireInactive(0) = %d, want 1", n)
	}
	if e.Active("u1") {
		t.Error("conversation still active after inactivity expiry")
	}
}

func TestYesNoValidation(t *testing.T) {
	q := models.QuestionSpec{Key: "q", Prompt: "Did you?", Kind: models.AnswerKindYesNo}
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"yes", "yes", true},
		{"Y", "yes", true},
		{"yep", "yes", true},
		{"no", "no", true},
		{"Nope", "no", true},
		{"dunno", "", false},
	}
	for _, c := range cases {
		value, reprompt := validateAnswer(q, c.in)
		if c.ok {
			if reprompt != "" || value != c.want {
				t.Errorf("validateAnswer(%q) = %q, reprompt=%q; want %q accepted", c.in, value, reprompt, c.want)
			}
		} else if reprompt == "" {
			t.Errorf("validateAnswer(%q) accepted, want re-prompt", c.in)
		}
	}
}
