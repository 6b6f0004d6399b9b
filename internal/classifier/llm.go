package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/mnemo/internal/config"
)

const systemPrompt = `You are an expert conversation analyst classifying user messages for a memory system.

Event kinds:
- INQUIRY: questions, requests for information
- FEEDBACK: opinions, reviews, satisfaction or dissatisfaction
- REQUEST: specific asks, bookings, assistance needs
- COMPLAINT: problems, issues, dissatisfaction
- TRANSACTION: purchase, payment, order-related
- SUPPORT: help requests, guidance needs
- INFORMATION: sharing information, providing details
- GENERIC_EVENT: general conversation, greetings, unclear intent

Importance score (0.0-1.0):
- 0.9-1.0: critical issues, transactions, urgent complaints
- 0.7-0.8: important requests, feedback, specific inquiries
- 0.5-0.6: general support, information requests
- 0.3-0.4: casual inquiries, general information
- 0.1-0.2: greetings, small talk, unclear messages

Respond ONLY with a JSON object: {"kind": "<event kind>", "importance": <0.0-1.0>, "payload": {<extracted fields>}}.`

// LLMClassifier calls an OpenAI-compatible chat completions endpoint. It is
// the only high-latency call in the system and carries its own timeout; on
// any failure the caller falls back to the rule classifier.
type LLMClassifier struct {
	cfg    config.ClassifierConfig
	client *http.Client
	logger *zap.Logger
}

// NewLLMClassifier builds a classifier against the configured inference
// service.
func NewLLMClassifier(cfg config.ClassifierConfig, logger *zap.Logger) *LLMClassifier {
	timeout := cfg.Timeout()
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &LLMClassifier{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify sends the message plus a context excerpt for classification.
func (c *LLMClassifier) Classify(ctx context.Context, message string, convContext map[string]interface{}) (*Result, error) {
	ctxJSON, _ := json.Marshal(convContext)
	userPrompt := fmt.Sprintf("Analyze this message:\n\nMessage: %q\n\nContext: %s\n\nRespond with JSON only.",
		message, string(ctxJSON))

	body, err := json.Marshal(&chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.Endpoint, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("classifier API error %d: %s", resp.StatusCode, string(respBody))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("empty response from classifier")
	}

	res, err := parseResult(cr.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	finalizePayload(res, message)

	c.logger.Debug("message classified",
		zap.String("kind", string(res.Kind)),
		zap.Float64("importance", res.Importance))
	return res, nil
}

// parseResult extracts and validates the classification JSON, tolerating
// models that wrap it in a markdown fence.
func parseResult(content string) (*Result, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	var res Result
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return nil, fmt.Errorf("unparsable classification: %w", err)
	}
	if !validKinds[res.Kind] {
		return nil, fmt.Errorf("unknown event kind %q", res.Kind)
	}
	if res.Importance < 0 || res.Importance > 1 {
		return nil, fmt.Errorf("importance %.2f out of range", res.Importance)
	}
	return &res, nil
}
