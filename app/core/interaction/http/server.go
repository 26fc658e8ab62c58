package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"crmpilot/app/core/kb"
	"crmpilot/app/core/queue"
	"crmpilot/app/core/store"
	"crmpilot/app/core/workflow"
)

const defaultShutdownTimeout = 5 * time.Second

// webhookWorkflows maps Odoo webhook events to the workflow each one
// triggers. Unknown events are acknowledged and dropped.
var webhookWorkflows = map[string]string{
	"lead.created": "lead_qualification",
	"lead.won":     "customer_onboarding",
	"lead.lost":    "lost_lead_recovery",
}

// ChatRouter answers a user message and reports the handler used.
type ChatRouter interface {
	Route(ctx context.Context, message string, sessionID string) (string, string, error)
}

// WorkflowRunner executes a named workflow with auditing.
type WorkflowRunner interface {
	ExecuteNamed(ctx context.Context, name string, trigger string, wfContext workflow.Context) workflow.Result
}

// Registry resolves and lists workflows.
type Registry interface {
	Get(name string) (workflow.Workflow, bool)
	ListAll() []workflow.Workflow
}

// AuditLog lists past workflow runs.
type AuditLog interface {
	ListRuns(ctx context.Context, limit int) ([]store.WorkflowRun, error)
}

// History reads back persisted chat sessions.
type History interface {
	GetHistory(ctx context.Context, sessionID string, limit int) ([]store.Turn, error)
	CountTurns(ctx context.Context, sessionID string) (int, error)
}

// Knowledge ingests and reports on the knowledge base.
type Knowledge interface {
	Ingest(ctx context.Context) (kb.IngestSummary, error)
	Count(ctx context.Context) (int, error)
}

type Server struct {
	port            int
	chat            ChatRouter
	runner          WorkflowRunner
	registry        Registry
	audit           AuditLog
	history         History
	knowledge       Knowledge
	webhooks        *queue.Queue
	server          *http.Server
	shutdownTimeout time.Duration
	startedUnix     atomic.Int64
}

func NewServer(port int, chat ChatRouter, runner WorkflowRunner, registry Registry, audit AuditLog, history History, knowledge Knowledge, webhooks *queue.Queue) *Server {
	return &Server{
		port:            port,
		chat:            chat,
		runner:          runner,
		registry:        registry,
		audit:           audit,
		history:         history,
		knowledge:       knowledge,
		webhooks:        webhooks,
		shutdownTimeout: defaultShutdownTimeout,
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.startedUnix.Store(time.Now().Unix())

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}()

	log.Printf("[HTTP] Listening on port %d...", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/chat/history", s.handleChatHistory)
	mux.HandleFunc("/api/workflows", s.handleListWorkflows)
	mux.HandleFunc("/api/workflows/run", s.handleRunWorkflow)
	mux.HandleFunc("/api/workflows/runs", s.handleListRuns)
	mux.HandleFunc("/api/webhooks/odoo", s.handleOdooWebhook)
	mux.HandleFunc("/api/kb/ingest", s.handleKBIngest)
	mux.HandleFunc("/api/kb/status", s.handleKBStatus)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	AgentUsed string `json:"agent_used"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	reply, agentUsed, err := s.chat.Route(r.Context(), req.Message, req.SessionID)
	if err != nil {
		log.Printf("[HTTP] chat failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		SessionID: req.SessionID,
		Response:  reply,
		AgentUsed: agentUsed,
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	turns, err := s.history.GetHistory(r.Context(), sessionID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	total, err := s.history.CountTurns(r.Context(), sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"total":      total,
		"turns":      turns,
	})
}

type workflowEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := []workflowEntry{}
	for _, wf := range s.registry.ListAll() {
		entries = append(entries, workflowEntry{Name: wf.Name(), Description: wf.Description()})
	}
	writeJSON(w, http.StatusOK, entries)
}

type workflowRunRequest struct {
	WorkflowName string           `json:"workflow_name"`
	Context      workflow.Context `json:"context"`
}

type workflowRunResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Steps   []string `json:"steps"`
}

func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req workflowRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if _, ok := s.registry.Get(req.WorkflowName); !ok {
		http.Error(w, fmt.Sprintf("Workflow '%s' not found", req.WorkflowName), http.StatusNotFound)
		return
	}

	result := s.runner.ExecuteNamed(r.Context(), req.WorkflowName, "manual", req.Context)
	writeJSON(w, http.StatusOK, workflowRunResponse{
		Success: result.Success,
		Message: result.Message,
		Steps:   result.StepsExecuted,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	runs, err := s.audit.ListRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

type webhookPayload struct {
	Event    string                 `json:"event"`
	Model    string                 `json:"model"`
	RecordID int64                  `json:"record_id"`
	Data     map[string]interface{} `json:"data"`
}

// handleOdooWebhook acknowledges every well-formed event immediately;
// the mapped workflow runs in the background queue.
func (s *Server) handleOdooWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	log.Printf("[HTTP] webhook received: event=%s model=%s record_id=%d", payload.Event, payload.Model, payload.RecordID)

	if workflowName, ok := webhookWorkflows[payload.Event]; ok {
		wfContext := workflow.Context{"lead_id": payload.RecordID}
		for key, value := range payload.Data {
			wfContext[key] = value
		}
		if _, err := s.webhooks.TryEnqueue(queue.Job{
			Run: func(jobCtx context.Context) error {
				result := s.runner.ExecuteNamed(jobCtx, workflowName, "webhook", wfContext)
				if !result.Success {
					return fmt.Errorf("workflow %s failed: %s", workflowName, result.Err)
				}
				return nil
			},
		}); err != nil {
			log.Printf("[HTTP] webhook enqueue failed: %v", err)
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"event":  payload.Event,
	})
}

func (s *Server) handleKBIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, err := s.knowledge.Ingest(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chunks_ingested": summary.Chunks,
		"status":          "ok",
	})
}

func (s *Server) handleKBStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	count, err := s.knowledge.Count(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "chunks": count})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := int64(0)
	if started := s.startedUnix.Load(); started > 0 {
		uptime = time.Now().Unix() - started
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": uptime,
		"workflows":      len(s.registry.ListAll()),
		"webhook_queue":  s.webhooks.Stats(),
	})
}
