package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

type WorkflowRun struct {
	ID            int64                  `json:"id"`
	WorkflowName  string                 `json:"workflow_name"`
	TriggerSource string                 `json:"trigger"`
	Context       map[string]interface{} `json:"context"`
	Status        string                 `json:"status"`
	StepsExecuted []string               `json:"steps_executed"`
	Message       string                 `json:"message,omitempty"`
	StartedAt     int64                  `json:"started_at"`
	CompletedAt   int64                  `json:"completed_at,omitempty"`
}

// AuditStore persists workflow executions. Every run gets a row at
// start and an update at completion, regardless of outcome.
type AuditStore struct {
	db *DB
}

func NewAuditStore(database *DB) *AuditStore {
	return &AuditStore{db: database}
}

func (s *AuditStore) StartRun(ctx context.Context, workflowName string, triggerSource string, wfContext map[string]interface{}) (int64, error) {
	workflowName = strings.TrimSpace(workflowName)
	if workflowName == "" {
		return 0, fmt.Errorf("workflow_name is required")
	}
	if wfContext == nil {
		wfContext = map[string]interface{}{}
	}
	contextJSON, err := json.Marshal(wfContext)
	if err != nil {
		return 0, err
	}

	query := `INSERT INTO workflow_log (workflow_name, trigger_source, context_json, status, started_at) VALUES (?, ?, ?, 'running', ?)`
	result, err := s.db.Conn().ExecContext(ctx, query, workflowName, triggerSource, contextJSON, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *AuditStore) CompleteRun(ctx context.Context, runID int64, status string, steps []string, message string) error {
	if status != RunStatusSuccess && status != RunStatusFailed {
		return fmt.Errorf("invalid run status: %s", status)
	}
	if steps == nil {
		steps = []string{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return err
	}

	query := `UPDATE workflow_log SET status = ?, steps_json = ?, message = ?, completed_at = ? WHERE id = ?`
	_, err = s.db.Conn().ExecContext(ctx, query, status, stepsJSON, message, time.Now().Unix(), runID)
	return err
}

func (s *AuditStore) ListRuns(ctx context.Context, limit int) ([]WorkflowRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, workflow_name, trigger_source, context_json, status, steps_json, message, started_at, COALESCE(completed_at, 0) FROM workflow_log ORDER BY id DESC LIMIT ?`
	rows, err := s.db.Conn().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]WorkflowRun, 0, limit)
	for rows.Next() {
		var (
			run         WorkflowRun
			contextJSON []byte
			stepsJSON   []byte
		)
		if err := rows.Scan(&run.ID, &run.WorkflowName, &run.TriggerSource, &contextJSON, &run.Status, &stepsJSON, &run.Message, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		run.Context = map[string]interface{}{}
		_ = json.Unmarshal(contextJSON, &run.Context)
		run.StepsExecuted = []string{}
		_ = json.Unmarshal(stepsJSON, &run.StepsExecuted)
		items = append(items, run)
	}
	return items, rows.Err()
}

func (s *AuditStore) GetRun(ctx context.Context, runID int64) (WorkflowRun, error) {
	query := `SELECT id, workflow_name, trigger_source, context_json, status, steps_json, message, started_at, COALESCE(completed_at, 0) FROM workflow_log WHERE id = ?`
	var (
		run         WorkflowRun
		contextJSON []byte
		stepsJSON   []byte
	)
	err := s.db.Conn().QueryRowContext(ctx, query, runID).Scan(&run.ID, &run.WorkflowName, &run.TriggerSource, &contextJSON, &run.Status, &stepsJSON, &run.Message, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return WorkflowRun{}, err
	}
	run.Context = map[string]interface{}{}
	_ = json.Unmarshal(contextJSON, &run.Context)
	run.StepsExecuted = []string{}
	_ = json.Unmarshal(stepsJSON, &run.StepsExecuted)
	return run, nil
}
