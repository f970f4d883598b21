// Package classifier talks to an OpenAI-compatible chat completions API to
// risk-classify incident descriptions and draft causal analyses.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

var (
	// ErrNotConfigured is returned when no API key is set
	ErrNotConfigured = errors.New("classifier is not configured")
	// ErrUnavailable wraps every transport or response failure
	ErrUnavailable = errors.New("classifier unavailable")
)

// Result is a classification answer. Values are passed through as returned;
// callers normalize the risk level.
type Result struct {
	RiskLevel        string `json:"risk_level"`
	EventType        string `json:"event_type"`
	Recommendation   string `json:"recommendation"`
	NotificationKind string `json:"notification_kind"`
}

// Config configures Client
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Client is the OpenAI-backed classifier
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a classifier client
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: client,
	}
}

// OpenAI API request/response structures
type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	MaxTokens      int               `json:"max_tokens"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

const classifyPrompt = `Você classifica notificações de segurança do paciente de um hospital.
Responda SOMENTE com um objeto JSON com os campos:
- "risk_level": um de "LEVE", "MODERADO", "GRAVE"
- "event_type": categoria curta do evento (ex.: "queda", "erro de medicação")
- "recommendation": recomendação objetiva de ação imediata
- "notification_kind": "EVENTO ADVERSO" se houve dano ou risco ao paciente, senão "NÃO CONFORMIDADE"
Use apenas o que estiver escrito na descrição.`

const causalPrompt = `Você redige análises de causa raiz de incidentes hospitalares.
Com base na descrição e nas respostas da investigação, escreva uma análise causal objetiva
em português, listando causas contribuintes. Não invente fatos.`

// Classify asks the model for risk level, event type and recommendation
func (c *Client) Classify(ctx context.Context, description string) (Result, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Result{}, fmt.Errorf("%w: empty description", ErrUnavailable)
	}

	content, err := c.complete(ctx, chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: classifyPrompt},
			{Role: "user", Content: truncateForPrompt(description, 4000)},
		},
		MaxTokens:      300,
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Result{}, err
	}

	var res Result
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &res); err != nil {
		return Result{}, fmt.Errorf("%w: malformed classification: %v", ErrUnavailable, err)
	}
	res.RiskLevel = strings.ToUpper(strings.TrimSpace(res.RiskLevel))
	res.EventType = strings.TrimSpace(res.EventType)
	res.Recommendation = strings.TrimSpace(res.Recommendation)
	res.NotificationKind = strings.ToUpper(strings.TrimSpace(res.NotificationKind))
	return res, nil
}

// DraftCausalAnalysis asks the model for a causal analysis draft
func (c *Client) DraftCausalAnalysis(ctx context.Context, description string, answers map[string]interface{}) (string, error) {
	var b strings.Builder
	b.WriteString("Descrição:\n")
	b.WriteString(truncateForPrompt(strings.TrimSpace(description), 3000))
	b.WriteString("\n\nInvestigação:\n")
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %v\n", k, answers[k])
	}

	content, err := c.complete(ctx, chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: causalPrompt},
			{Role: "user", Content: b.String()},
		},
		MaxTokens:   800,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (c *Client) complete(ctx context.Context, reqBody chatRequest) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}
	reqBody.Model = c.model

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: status %d, unparseable body", ErrUnavailable, resp.StatusCode)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, parsed.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrUnavailable)
	}
	return parsed.Choices[0].Message.Content, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// truncateForPrompt truncates a string to fit in the prompt
func truncateForPrompt(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
