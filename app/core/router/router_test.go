package router

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"crmpilot/app/core/handlers"
)

type fakeClassifier struct {
	intent string
	err    error
}

func (f *fakeClassifier) Complete(ctx context.Context, model string, system string, user string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.intent, nil
}

type recordedTurn struct {
	sessionID string
	message   string
	reply     string
	handler   string
}

type fakeHistory struct {
	turns []recordedTurn
	err   error
}

func (f *fakeHistory) AppendTurn(ctx context.Context, sessionID string, userMessage string, assistantReply string, handler string) error {
	if f.err != nil {
		return f.err
	}
	f.turns = append(f.turns, recordedTurn{sessionID: sessionID, message: userMessage, reply: assistantReply, handler: handler})
	return nil
}

type stubHandler struct {
	name  string
	reply string
	err   error
	calls int
}

func (s *stubHandler) Name() string { return s.name }

func (s *stubHandler) Handle(ctx context.Context, message string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type routerFixture struct {
	router    *Router
	history   *fakeHistory
	knowledge *stubHandler
	dataOps   *stubHandler
	workflow  *stubHandler
	fallback  *stubHandler
}

func newFixture(intent string) *routerFixture {
	return newFixtureWithClassifier(&fakeClassifier{intent: intent})
}

func newFixtureWithClassifier(classifier *fakeClassifier) *routerFixture {
	f := &routerFixture{
		history:   &fakeHistory{},
		knowledge: &stubHandler{name: handlers.NameKnowledge, reply: "kb reply"},
		dataOps:   &stubHandler{name: handlers.NameDataOps, reply: "crm reply"},
		workflow:  &stubHandler{name: handlers.NameWorkflow, reply: "wf reply"},
		fallback:  &stubHandler{name: handlers.NameFallback, reply: "fb reply"},
	}
	f.router = New(classifier, "gpt-4o", f.history, f.knowledge, f.dataOps, f.workflow, f.fallback)
	return f
}

func TestRouteDispatchByIntent(t *testing.T) {
	cases := []struct {
		intent  string
		handler string
		reply   string
	}{
		{"KB_QUESTION", handlers.NameKnowledge, "kb reply"},
		{"CRM_QUERY", handlers.NameDataOps, "crm reply"},
		{"WORKFLOW", handlers.NameWorkflow, "wf reply"},
		{"OTHER", handlers.NameFallback, "fb reply"},
		{"something unrecognizable", handlers.NameFallback, "fb reply"},
	}
	for _, tc := range cases {
		f := newFixture(tc.intent)
		reply, handlerUsed, err := f.router.Route(context.Background(), "hello", "s1")
		if err != nil {
			t.Fatalf("%s: route failed: %v", tc.intent, err)
		}
		if handlerUsed != tc.handler {
			t.Fatalf("%s: expected handler %s, got %s", tc.intent, tc.handler, handlerUsed)
		}
		if reply != tc.reply {
			t.Fatalf("%s: unexpected reply: %s", tc.intent, reply)
		}
	}
}

func TestRouteNormalizesIntentCaseAndWhitespace(t *testing.T) {
	f := newFixture("  kb_question\n")
	_, handlerUsed, err := f.router.Route(context.Background(), "what is BANT?", "s1")
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if handlerUsed != handlers.NameKnowledge {
		t.Fatalf("expected knowledge handler, got %s", handlerUsed)
	}
}

func TestRoutePrecedenceOnAmbiguousIntent(t *testing.T) {
	f := newFixture("KB_QUESTION or CRM_QUERY")
	_, handlerUsed, err := f.router.Route(context.Background(), "hm", "s1")
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if handlerUsed != handlers.NameKnowledge {
		t.Fatalf("expected KB_QUESTION to win, got %s", handlerUsed)
	}
}

func TestRoutePersistsExactlyOneTurn(t *testing.T) {
	f := newFixture("CRM_QUERY")
	_, _, err := f.router.Route(context.Background(), "show leads", "s9")
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if len(f.history.turns) != 1 {
		t.Fatalf("expected exactly one turn, got %d", len(f.history.turns))
	}
	turn := f.history.turns[0]
	if turn.sessionID != "s9" || turn.message != "show leads" || turn.reply != "crm reply" || turn.handler != handlers.NameDataOps {
		t.Fatalf("unexpected turn: %+v", turn)
	}
}

func TestRouteClassifierErrorPropagates(t *testing.T) {
	f := newFixtureWithClassifier(&fakeClassifier{err: fmt.Errorf("model unavailable")})
	_, handlerUsed, err := f.router.Route(context.Background(), "hello", "s1")
	if err == nil {
		t.Fatal("expected classification failure to fail the route")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("unexpected error: %v", err)
	}
	if handlerUsed != "" {
		t.Fatalf("no handler should be reported on classification failure, got %q", handlerUsed)
	}
	if f.fallback.calls != 0 {
		t.Fatalf("fallback must not run on classification failure, ran %d times", f.fallback.calls)
	}
	if len(f.history.turns) != 0 {
		t.Fatalf("failed route must not persist history: %+v", f.history.turns)
	}
}

func TestRouteHandlerErrorSkipsHistory(t *testing.T) {
	f := newFixture("WORKFLOW")
	f.workflow.err = fmt.Errorf("tool loop exploded")

	_, handlerUsed, err := f.router.Route(context.Background(), "run qualification", "s1")
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if handlerUsed != handlers.NameWorkflow {
		t.Fatalf("error must still report the handler: %s", handlerUsed)
	}
	if !strings.Contains(err.Error(), "tool loop exploded") {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.history.turns) != 0 {
		t.Fatalf("failed route must not persist history: %+v", f.history.turns)
	}
}

func TestRouteRejectsBlankInput(t *testing.T) {
	f := newFixture("OTHER")
	if _, _, err := f.router.Route(context.Background(), "   ", "s1"); err == nil {
		t.Fatal("expected error for blank message")
	}
	if _, _, err := f.router.Route(context.Background(), "hello", ""); err == nil {
		t.Fatal("expected error for blank session id")
	}
	if f.fallback.calls != 0 {
		t.Fatal("validation failures must not reach a handler")
	}
}

func TestRouteHistoryFailurePropagates(t *testing.T) {
	f := newFixture("OTHER")
	f.history.err = fmt.Errorf("disk full")

	_, _, err := f.router.Route(context.Background(), "hello", "s1")
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected history error, got %v", err)
	}
}
