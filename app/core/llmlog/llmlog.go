package llmlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	StageRouter  = "router"
	StageHandler = "handler"
	StageEmbed   = "embed"
)

type Meta struct {
	SessionID string
	Stage     string
	Handler   string
}

type metaKey struct{}

type entry struct {
	Timestamp     string `json:"timestamp"`
	SessionID     string `json:"session_id"`
	Stage         string `json:"stage"`
	Handler       string `json:"handler,omitempty"`
	Model         string `json:"model"`
	Status        string `json:"status"`
	DurationMs    int64  `json:"duration_ms"`
	PromptChars   int    `json:"prompt_chars"`
	OutputChars   int    `json:"output_chars,omitempty"`
	PromptPreview string `json:"prompt_preview,omitempty"`
	OutputPreview string `json:"output_preview,omitempty"`
	Error         string `json:"error,omitempty"`
}

var mu sync.Mutex

func WithMeta(ctx context.Context, meta Meta) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	current := GetMeta(ctx)
	merged := mergeMeta(current, meta)
	return context.WithValue(ctx, metaKey{}, merged)
}

func GetMeta(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	meta, _ := ctx.Value(metaKey{}).(Meta)
	return meta
}

// Record appends one JSONL row per model call under a dated output directory.
// Write failures are swallowed so call logging never breaks a request.
func Record(ctx context.Context, model string, prompt string, output string, runErr error, duration time.Duration) {
	_ = appendHourlyLog(time.Now(), strings.TrimSpace(model), GetMeta(ctx), prompt, output, runErr, duration)
}

func mergeMeta(base Meta, override Meta) Meta {
	out := base
	if strings.TrimSpace(override.SessionID) != "" {
		out.SessionID = strings.TrimSpace(override.SessionID)
	}
	if strings.TrimSpace(override.Stage) != "" {
		out.Stage = strings.TrimSpace(override.Stage)
	}
	if strings.TrimSpace(override.Handler) != "" {
		out.Handler = strings.TrimSpace(override.Handler)
	}
	return out
}

func appendHourlyLog(ts time.Time, model string, meta Meta, prompt string, output string, runErr error, duration time.Duration) error {
	if model == "" {
		model = "unknown"
	}
	sessionID := strings.TrimSpace(meta.SessionID)
	if sessionID == "" {
		sessionID = "unknown"
	}
	stage := strings.TrimSpace(meta.Stage)
	if stage == "" {
		stage = "unknown"
	}

	record := entry{
		Timestamp:     ts.Format(time.RFC3339Nano),
		SessionID:     sessionID,
		Stage:         stage,
		Handler:       strings.TrimSpace(meta.Handler),
		Model:         model,
		Status:        "ok",
		DurationMs:    duration.Milliseconds(),
		PromptChars:   len(prompt),
		OutputChars:   len(output),
		PromptPreview: previewText(prompt, 240),
		OutputPreview: previewText(output, 240),
	}
	if runErr != nil {
		record.Status = "error"
		record.Error = runErr.Error()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	dayDir := filepath.Join("output", "llm", ts.Format("2006-01-02"))
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		return fmt.Errorf("failed to create llm log dir: %w", err)
	}
	logPath := filepath.Join(dayDir, fmt.Sprintf("calls_%s.jsonl", ts.Format("20060102-15")))

	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(payload, '\n')); err != nil {
		return err
	}
	return nil
}

func previewText(s string, limit int) string {
	clean := strings.TrimSpace(s)
	if clean == "" || limit <= 0 {
		return ""
	}
	clean = strings.ReplaceAll(clean, "\r\n", "\n")
	clean = strings.ReplaceAll(clean, "\n", "\\n")
	runes := []rune(clean)
	if len(runes) <= limit {
		return clean
	}
	return string(runes[:limit]) + "..."
}
