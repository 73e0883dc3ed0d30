package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dtnitsch/challenge-miner/models"
)

const systemPrompt = "You identify problems and unmet needs in documents. " +
	"Return only a valid JSON array."

const userPromptTemplate = `ROLE: Challenge extractor (problem-first, no solutions).

INPUT:
- source_org: %s
- source_url: %s
- language: %s
- text_chunk: %s

TASK:
Extract ONLY challenges (problem statements) from the chunk: unmet needs,
barriers, gaps, risks, constraints, vulnerable groups, capacity limits.
Each challenge_statement is 1-2 sentences with no solution language.

OUTPUT: JSON array of objects with fields challenge_title,
challenge_statement, sdg_goals, geography, target_groups, sectors,
scale_numbers, root_causes, constraints, evidence_quotes (max 2, <=20 words
each), confidence (0.00-1.00). Return [] if no challenges are present.`

// maxChunkBytes bounds the text sent per request.
const maxChunkBytes = 3000

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// truncateChunk cuts text at the byte budget, backing up to the nearest rune
// start so a multi-byte rune is never split.
func truncateChunk(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// HTTPOracle talks to a chat-completions style endpoint. It is provider
// agnostic: the endpoint, model, and key come from configuration.
type HTTPOracle struct {
	endpoint    string
	model       string
	apiKey      string
	temperature float64
	client      *http.Client
	logger      *slog.Logger
}

// NewHTTPOracle builds the oracle client from configuration.
func NewHTTPOracle(cfg models.OracleConfig, logger *slog.Logger) *HTTPOracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPOracle{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout.Std()},
		logger:      logger,
	}
}

// Model returns the model identifier stamped onto extracted candidates.
func (o *HTTPOracle) Model() string { return o.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract sends one chunk to the oracle and returns the validated records.
func (o *HTTPOracle) Extract(ctx context.Context, req Request) ([]Record, error) {
	chunk := truncateChunk(req.ChunkText, maxChunkBytes)

	body := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPromptTemplate, req.OrgName, req.SourceURL, req.Lang, chunk)},
		},
		Temperature: o.temperature,
		MaxTokens:   2000,
	}

	raw, err := o.send(ctx, body)
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &models.SchemaViolationError{Detail: preview(raw), Cause: err}
	}
	if len(parsed.Choices) == 0 {
		return nil, &models.SchemaViolationError{Detail: "response has no choices"}
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	// Models occasionally wrap the array in prose or code fences.
	if !strings.HasPrefix(content, "[") {
		if match := jsonArrayPattern.FindString(content); match != "" {
			content = match
		}
	}

	return ParseRecords([]byte(content))
}

func (o *HTTPOracle) send(ctx context.Context, body chatRequest) ([]byte, error) {
	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode oracle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build oracle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		o.logger.Warn("oracle.http.transport_error", "req_id", reqID, "error", err)
		return nil, &models.OracleUnavailableError{Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.OracleUnavailableError{Cause: err}
	}

	o.logger.Debug("oracle.http.response", "req_id", reqID, "status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds())

	switch {
	case resp.StatusCode == http.StatusOK:
		return raw, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &models.OracleUnavailableError{
			Cause: fmt.Errorf("oracle returned status %d", resp.StatusCode),
		}
	default:
		// 4xx other than rate limiting means the request itself is broken;
		// retrying cannot help.
		return nil, fmt.Errorf("oracle rejected request: status %d: %s", resp.StatusCode, preview(raw))
	}
}
