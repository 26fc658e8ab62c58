package router

import (
	"context"
	"fmt"
	"strings"

	"crmpilot/app/core/handlers"
	"crmpilot/app/core/llmlog"
	"crmpilot/app/pkg/logger"
)

// Classifier is the single-shot completion slice of the LLM client.
type Classifier interface {
	Complete(ctx context.Context, model string, system string, user string) (string, error)
}

// History persists completed exchanges.
type History interface {
	AppendTurn(ctx context.Context, sessionID string, userMessage string, assistantReply string, handler string) error
}

// Router classifies an incoming message into one intent category and
// dispatches it to the matching handler. Every completed call persists
// exactly one history turn.
type Router struct {
	classifier Classifier
	model      string
	history    History

	knowledge handlers.Handler
	dataOps   handlers.Handler
	workflow  handlers.Handler
	fallback  handlers.Handler
}

func New(classifier Classifier, model string, history History, knowledge handlers.Handler, dataOps handlers.Handler, wf handlers.Handler, fallback handlers.Handler) *Router {
	return &Router{
		classifier: classifier,
		model:      model,
		history:    history,
		knowledge:  knowledge,
		dataOps:    dataOps,
		workflow:   wf,
		fallback:   fallback,
	}
}

// Route answers a user message and returns the reply together with the
// name of the handler that produced it.
func (r *Router) Route(ctx context.Context, message string, sessionID string) (string, string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", "", fmt.Errorf("message is required")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", "", fmt.Errorf("session_id is required")
	}

	ctx = llmlog.WithMeta(ctx, llmlog.Meta{SessionID: sessionID, Stage: llmlog.StageRouter})
	intent, err := r.classify(ctx, message)
	if err != nil {
		return "", "", fmt.Errorf("intent classification failed: %w", err)
	}
	handler := r.pick(intent)
	logger.Info("[Router] session=%s handler=%s", sessionID, handler.Name())

	ctx = llmlog.WithMeta(ctx, llmlog.Meta{SessionID: sessionID, Stage: llmlog.StageHandler, Handler: handler.Name()})
	reply, err := handler.Handle(ctx, message)
	if err != nil {
		return "", handler.Name(), fmt.Errorf("%s handler failed: %w", handler.Name(), err)
	}

	if err := r.history.AppendTurn(ctx, sessionID, message, reply, handler.Name()); err != nil {
		return "", handler.Name(), fmt.Errorf("failed to persist history: %w", err)
	}
	return reply, handler.Name(), nil
}

// classify asks the model for an intent label. A transport or provider
// failure here fails the whole request; the fallback handler is only
// for messages the model labels as OTHER.
func (r *Router) classify(ctx context.Context, message string) (string, error) {
	prompt := fmt.Sprintf(
		"Classify the following user message into exactly one category:\nKB_QUESTION, CRM_QUERY, WORKFLOW, OTHER\n\nMessage: %s\n\nCategory:",
		message)
	intent, err := r.classifier.Complete(ctx, r.model, "", prompt)
	if err != nil {
		logger.Error("[Router] intent classification failed: %v", err)
		return "", err
	}
	return strings.ToUpper(strings.TrimSpace(intent)), nil
}

// pick resolves the intent with a fixed precedence so a noisy label
// like "KB_QUESTION or CRM_QUERY" still lands deterministically.
func (r *Router) pick(intent string) handlers.Handler {
	switch {
	case strings.Contains(intent, "KB_QUESTION"):
		return r.knowledge
	case strings.Contains(intent, "CRM_QUERY"):
		return r.dataOps
	case strings.Contains(intent, "WORKFLOW"):
		return r.workflow
	default:
		return r.fallback
	}
}
