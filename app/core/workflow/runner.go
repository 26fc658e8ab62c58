package workflow

import (
	"context"
	"fmt"

	"crmpilot/app/core/store"
	"crmpilot/app/pkg/logger"
)

// Runner executes registered workflows and guarantees that every run,
// including a panicking one, leaves exactly one completed audit row.
type Runner struct {
	registry *Registry
	audit    *store.AuditStore
}

func NewRunner(registry *Registry, audit *store.AuditStore) *Runner {
	return &Runner{registry: registry, audit: audit}
}

// ExecuteNamed runs the named workflow. The result describes the run
// either way; a missing workflow comes back as a failed result, not an
// error, so callers can relay it to the user.
func (r *Runner) ExecuteNamed(ctx context.Context, name string, trigger string, wfContext Context) Result {
	if wfContext == nil {
		wfContext = Context{}
	}

	runID, err := r.audit.StartRun(ctx, name, trigger, wfContext)
	if err != nil {
		logger.Error("[Runner] failed to open audit row for %s: %v", name, err)
		return failure(fmt.Sprintf("Could not start workflow '%s'", name), err.Error(), nil)
	}

	wf, ok := r.registry.Get(name)
	if !ok {
		result := failure(fmt.Sprintf("Workflow '%s' is not registered", name), "workflow not found", nil)
		r.completeRun(runID, name, result)
		return result
	}

	result := r.runGuarded(ctx, wf, wfContext)
	r.completeRun(runID, name, result)
	return result
}

func (r *Runner) runGuarded(ctx context.Context, wf Workflow, wfContext Context) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("[Runner] workflow %s panicked: %v", wf.Name(), rec)
			result = failure(fmt.Sprintf("Workflow '%s' crashed", wf.Name()), fmt.Sprintf("panic: %v", rec), result.StepsExecuted)
		}
	}()
	return wf.Execute(ctx, wfContext)
}

func (r *Runner) completeRun(runID int64, name string, result Result) {
	status := store.RunStatusSuccess
	if !result.Success {
		status = store.RunStatusFailed
	}
	// audit completion must not be cut short by a cancelled request
	if err := r.audit.CompleteRun(context.Background(), runID, status, result.StepsExecuted, result.Message); err != nil {
		logger.Error("[Runner] failed to close audit row %d for %s: %v", runID, name, err)
	}
	logger.Info("[Runner] %s finished: status=%s steps=%d", name, status, len(result.StepsExecuted))
}
