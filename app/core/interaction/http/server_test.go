package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"crmpilot/app/core/kb"
	"crmpilot/app/core/queue"
	"crmpilot/app/core/store"
	"crmpilot/app/core/workflow"
)

type fakeChat struct {
	reply   string
	handler string
	err     error
}

func (f *fakeChat) Route(ctx context.Context, message string, sessionID string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return f.reply, f.handler, nil
}

type executedRun struct {
	name      string
	trigger   string
	wfContext workflow.Context
}

type fakeRunner struct {
	mu     sync.Mutex
	runs   []executedRun
	result workflow.Result
	done   chan struct{}
}

func (f *fakeRunner) ExecuteNamed(ctx context.Context, name string, trigger string, wfContext workflow.Context) workflow.Result {
	f.mu.Lock()
	f.runs = append(f.runs, executedRun{name: name, trigger: trigger, wfContext: wfContext})
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return f.result
}

func (f *fakeRunner) executed() []executedRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]executedRun, len(f.runs))
	copy(out, f.runs)
	return out
}

type namedWorkflow struct {
	name        string
	description string
}

func (w namedWorkflow) Name() string        { return w.name }
func (w namedWorkflow) Description() string { return w.description }
func (w namedWorkflow) Execute(ctx context.Context, wfContext workflow.Context) workflow.Result {
	return workflow.Result{Success: true, StepsExecuted: []string{}}
}

type fakeRegistry struct {
	workflows []workflow.Workflow
}

func (f *fakeRegistry) Get(name string) (workflow.Workflow, bool) {
	for _, wf := range f.workflows {
		if wf.Name() == name {
			return wf, true
		}
	}
	return nil, false
}

func (f *fakeRegistry) ListAll() []workflow.Workflow { return f.workflows }

type fakeAudit struct {
	runs []store.WorkflowRun
	err  error
}

func (f *fakeAudit) ListRuns(ctx context.Context, limit int) ([]store.WorkflowRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.runs, nil
}

type fakeHistory struct {
	turns []store.Turn
	err   error
}

func (f *fakeHistory) GetHistory(ctx context.Context, sessionID string, limit int) ([]store.Turn, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []store.Turn{}
	for _, t := range f.turns {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeHistory) CountTurns(ctx context.Context, sessionID string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	count := 0
	for _, t := range f.turns {
		if t.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

type fakeKnowledge struct {
	summary   kb.IngestSummary
	ingestErr error
	count     int
	countErr  error
}

func (f *fakeKnowledge) Ingest(ctx context.Context) (kb.IngestSummary, error) {
	if f.ingestErr != nil {
		return kb.IngestSummary{}, f.ingestErr
	}
	return f.summary, nil
}

func (f *fakeKnowledge) Count(ctx context.Context) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.count, nil
}

type serverFixture struct {
	server    *httptest.Server
	chat      *fakeChat
	runner    *fakeRunner
	registry  *fakeRegistry
	audit     *fakeAudit
	history   *fakeHistory
	knowledge *fakeKnowledge
	queue     *queue.Queue
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		chat:   &fakeChat{reply: "hello", handler: "fallback"},
		runner: &fakeRunner{result: workflow.Result{Success: true, StepsExecuted: []string{"get_lead"}, Message: "ok"}},
		registry: &fakeRegistry{workflows: []workflow.Workflow{
			namedWorkflow{name: "lead_qualification", description: "BANT scoring"},
			namedWorkflow{name: "customer_onboarding", description: "post-won onboarding"},
		}},
		audit:     &fakeAudit{},
		history:   &fakeHistory{},
		knowledge: &fakeKnowledge{summary: kb.IngestSummary{Files: 2, Chunks: 9}, count: 9},
		queue:     queue.New(8),
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := f.queue.Start(ctx, 1); err != nil {
		t.Fatalf("queue start failed: %v", err)
	}
	t.Cleanup(func() {
		_ = f.queue.Stop(time.Second)
		cancel()
	})

	srv := NewServer(0, f.chat, f.runner, f.registry, f.audit, f.history, f.knowledge, f.queue)
	f.server = httptest.NewServer(srv.Handler())
	t.Cleanup(f.server.Close)
	return f
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
}

func TestChatEndpoint(t *testing.T) {
	f := newServerFixture(t)

	resp := postJSON(t, f.server.URL+"/api/chat", `{"session_id":"s1","message":"hi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var body chatResponse
	decodeBody(t, resp, &body)
	if body.SessionID != "s1" || body.Response != "hello" || body.AgentUsed != "fallback" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestChatEndpointErrors(t *testing.T) {
	f := newServerFixture(t)

	resp := postJSON(t, f.server.URL+"/api/chat", `{bad json`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", resp.StatusCode)
	}

	f.chat.err = fmt.Errorf("router exploded")
	resp = postJSON(t, f.server.URL+"/api/chat", `{"session_id":"s1","message":"hi"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}

	getResp, err := http.Get(f.server.URL + "/api/chat")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", getResp.StatusCode)
	}
}

func TestListWorkflowsEndpoint(t *testing.T) {
	f := newServerFixture(t)

	resp, err := http.Get(f.server.URL + "/api/workflows")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var entries []workflowEntry
	decodeBody(t, resp, &entries)
	if len(entries) != 2 || entries[0].Name != "lead_qualification" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestRunWorkflowEndpoint(t *testing.T) {
	f := newServerFixture(t)

	resp := postJSON(t, f.server.URL+"/api/workflows/run", `{"workflow_name":"lead_qualification","context":{"lead_id":42}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var body workflowRunResponse
	decodeBody(t, resp, &body)
	if !body.Success || len(body.Steps) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}

	runs := f.runner.executed()
	if len(runs) != 1 {
		t.Fatalf("expected one run, got %d", len(runs))
	}
	if runs[0].trigger != "manual" {
		t.Fatalf("expected manual trigger, got %s", runs[0].trigger)
	}
	if leadID, _ := runs[0].wfContext.Int("lead_id"); leadID != 42 {
		t.Fatalf("context not forwarded: %v", runs[0].wfContext)
	}
}

func TestRunWorkflowUnknownNameIs404(t *testing.T) {
	f := newServerFixture(t)

	resp := postJSON(t, f.server.URL+"/api/workflows/run", `{"workflow_name":"bogus"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if len(f.runner.executed()) != 0 {
		t.Fatal("unknown workflow must not execute")
	}
}

func TestWebhookMapsEventAndRunsInBackground(t *testing.T) {
	f := newServerFixture(t)
	f.runner.done = make(chan struct{}, 1)

	resp := postJSON(t, f.server.URL+"/api/webhooks/odoo",
		`{"event":"lead.won","model":"crm.lead","record_id":42,"data":{"account_manager_id":7}}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var ack map[string]string
	decodeBody(t, resp, &ack)
	if ack["status"] != "accepted" || ack["event"] != "lead.won" {
		t.Fatalf("unexpected ack: %v", ack)
	}

	select {
	case <-f.runner.done:
	case <-time.After(time.Second):
		t.Fatal("webhook workflow did not run")
	}

	runs := f.runner.executed()
	if runs[0].name != "customer_onboarding" || runs[0].trigger != "webhook" {
		t.Fatalf("unexpected run: %+v", runs[0])
	}
	if leadID, _ := runs[0].wfContext.Int("lead_id"); leadID != 42 {
		t.Fatalf("record_id must map to lead_id: %v", runs[0].wfContext)
	}
	if amID, _ := runs[0].wfContext.Int("account_manager_id"); amID != 7 {
		t.Fatalf("data must merge into context: %v", runs[0].wfContext)
	}
}

func TestWebhookUnknownEventIsAcknowledged(t *testing.T) {
	f := newServerFixture(t)

	resp := postJSON(t, f.server.URL+"/api/webhooks/odoo",
		`{"event":"partner.updated","model":"res.partner","record_id":9}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	time.Sleep(50 * time.Millisecond)
	if len(f.runner.executed()) != 0 {
		t.Fatal("unknown event must not trigger a workflow")
	}
}

func TestChatHistoryEndpoint(t *testing.T) {
	f := newServerFixture(t)
	f.history.turns = []store.Turn{
		{ID: 1, SessionID: "s1", Role: "user", Content: "hi", CreatedAt: 100},
		{ID: 2, SessionID: "s1", Role: "assistant", Content: "hello", Handler: "fallback", CreatedAt: 100},
		{ID: 3, SessionID: "other", Role: "user", Content: "nope", CreatedAt: 101},
	}

	resp, err := http.Get(f.server.URL + "/api/chat/history?session_id=s1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		SessionID string       `json:"session_id"`
		Total     int          `json:"total"`
		Turns     []store.Turn `json:"turns"`
	}
	decodeBody(t, resp, &body)
	if body.SessionID != "s1" || body.Total != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if len(body.Turns) != 2 || body.Turns[1].Content != "hello" {
		t.Fatalf("unexpected turns: %+v", body.Turns)
	}
}

func TestChatHistoryRequiresSessionID(t *testing.T) {
	f := newServerFixture(t)

	resp, err := http.Get(f.server.URL + "/api/chat/history")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebhookFullQueueStillAcknowledges(t *testing.T) {
	full := queue.New(1)
	if _, err := full.TryEnqueue(queue.Job{Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("priming enqueue failed: %v", err)
	}

	runner := &fakeRunner{result: workflow.Result{Success: true}}
	srv := NewServer(0, &fakeChat{}, runner, &fakeRegistry{}, &fakeAudit{}, &fakeHistory{}, &fakeKnowledge{}, full)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Post(ts.URL+"/api/webhooks/odoo", "application/json",
		strings.NewReader(`{"event":"lead.won","model":"crm.lead","record_id":42}`))
	if err != nil {
		t.Fatalf("webhook blocked on a full queue: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if len(runner.executed()) != 0 {
		t.Fatal("dropped job must not run")
	}
}

func TestKBIngestEndpoint(t *testing.T) {
	f := newServerFixture(t)

	resp := postJSON(t, f.server.URL+"/api/kb/ingest", `{}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["chunks_ingested"] != float64(9) || body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}

	f.knowledge.ingestErr = fmt.Errorf("embeddings unavailable")
	resp = postJSON(t, f.server.URL+"/api/kb/ingest", `{}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestKBStatusEndpoint(t *testing.T) {
	f := newServerFixture(t)

	resp, err := http.Get(f.server.URL + "/api/kb/status")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["status"] != "ok" || body["chunks"] != float64(9) {
		t.Fatalf("unexpected body: %v", body)
	}

	f.knowledge.countErr = fmt.Errorf("db closed")
	resp, err = http.Get(f.server.URL + "/api/kb/status")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	decodeBody(t, resp, &body)
	if body["status"] != "error" {
		t.Fatalf("expected error status: %v", body)
	}
}

func TestStatusAndHealthEndpoints(t *testing.T) {
	f := newServerFixture(t)

	resp, err := http.Get(f.server.URL + "/api/status")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["status"] != "ok" || body["workflows"] != float64(2) {
		t.Fatalf("unexpected body: %v", body)
	}

	health, err := http.Get(f.server.URL + "/health")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("unexpected health status: %d", health.StatusCode)
	}
}
