package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"crmpilot/app/core/llmlog"
)

const defaultMaxToolIterations = 12

// Tool is a named capability the model may call during a reasoning loop.
// Parameters holds a JSON-schema object describing the arguments.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Run         func(ctx context.Context, args gjson.Result) (string, error)
}

type Client struct {
	api     openai.Client
	timeout time.Duration
}

func NewClient(apiKey string, baseURL string, timeout time.Duration) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		api:     openai.NewClient(opts...),
		timeout: timeout,
	}
}

// Complete issues a single non-tool chat completion.
func (c *Client) Complete(ctx context.Context, model string, system string, user string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(user))

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}, option.WithRequestTimeout(c.timeout))
	if err != nil {
		llmlog.Record(ctx, model, user, "", err, time.Since(start))
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("completion returned no choices")
		llmlog.Record(ctx, model, user, "", err, time.Since(start))
		return "", err
	}
	output := resp.Choices[0].Message.Content
	llmlog.Record(ctx, model, user, output, nil, time.Since(start))
	return output, nil
}

// RunTools drives a bounded tool-calling loop: the model proposes capability
// calls, the host executes them and feeds results back, until the model emits
// a final answer or the iteration cap is reached. Tool execution errors are
// returned to the model as tool output, never surfaced as loop failures.
func (c *Client) RunTools(ctx context.Context, model string, system string, input string, tools []Tool, maxIters int) (string, error) {
	if maxIters <= 0 {
		maxIters = defaultMaxToolIterations
	}

	byName := make(map[string]Tool, len(tools))
	toolParams := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
		toolParams = append(toolParams, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(t.Parameters),
		}))
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(input))

	for iter := 0; iter < maxIters; iter++ {
		start := time.Now()
		resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(model),
			Messages: messages,
			Tools:    toolParams,
		}, option.WithRequestTimeout(c.timeout))
		if err != nil {
			llmlog.Record(ctx, model, input, "", err, time.Since(start))
			return "", fmt.Errorf("tool loop iteration %d failed: %w", iter+1, err)
		}
		if len(resp.Choices) == 0 {
			err := fmt.Errorf("tool loop returned no choices")
			llmlog.Record(ctx, model, input, "", err, time.Since(start))
			return "", err
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			llmlog.Record(ctx, model, input, msg.Content, nil, time.Since(start))
			return msg.Content, nil
		}
		llmlog.Record(ctx, model, input, fmt.Sprintf("<%d tool calls>", len(msg.ToolCalls)), nil, time.Since(start))

		messages = append(messages, msg.ToParam())
		for _, call := range msg.ToolCalls {
			result := c.executeTool(ctx, byName, call.Function.Name, call.Function.Arguments)
			messages = append(messages, openai.ToolMessage(result, call.ID))
		}
	}

	return fmt.Sprintf("Stopped after %d tool iterations without a final answer. Please narrow the request.", maxIters), nil
}

func (c *Client) executeTool(ctx context.Context, byName map[string]Tool, name string, rawArgs string) string {
	tool, ok := byName[name]
	if !ok {
		return toolError(fmt.Sprintf("unknown tool: %s", name))
	}
	out, err := tool.Run(ctx, gjson.Parse(rawArgs))
	if err != nil {
		return toolError(err.Error())
	}
	return out
}

func toolError(message string) string {
	payload, err := sjson.Set("{}", "error", message)
	if err != nil {
		return `{"error":"tool failed"}`
	}
	return payload
}

// Embed returns one embedding vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, model string, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	start := time.Now()
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}, option.WithRequestTimeout(c.timeout))
	if err != nil {
		llmlog.Record(ctx, model, fmt.Sprintf("<%d texts>", len(texts)), "", err, time.Since(start))
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: want %d got %d", len(texts), len(resp.Data))
	}
	llmlog.Record(ctx, model, fmt.Sprintf("<%d texts>", len(texts)), fmt.Sprintf("<%d vectors>", len(resp.Data)), nil, time.Since(start))

	vectors := make([][]float64, len(resp.Data))
	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(vectors) {
			return nil, fmt.Errorf("embedding index out of range: %d", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
