package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taskmind-backend/pkg/ai"
)

const endpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent"

// Service is the remote classifier backed by the Gemini REST API. It
// implements ai.RemoteClassifier; the retry/backoff policy lives in the
// caller, this client only reports whether a failure is retryable.
type Service struct {
	apiKey string
	loc    *time.Location
	client *http.Client
}

func NewService(apiKey string, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		apiKey: apiKey,
		loc:    loc,
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

// apiError carries the HTTP status so the caller can tell transient
// overload/quota failures from permanent ones.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gemini API error (%d): %s", e.status, e.body)
}

func (e *apiError) Retryable() bool {
	if e.status == http.StatusTooManyRequests || e.status >= 500 {
		return true
	}
	lower := strings.ToLower(e.body)
	for _, indicator := range []string{"quota", "rate limit", "resource_exhausted", "overloaded"} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// geminiTask is the fixed response schema the model is instructed to emit.
type geminiTask struct {
	Priority         string `json:"priority"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	DueAt            string `json:"due_at"`
	Rationale        string `json:"rationale"`
}

// ClassifyMulti asks the model for one entry per distinct actionable intent.
func (s *Service) ClassifyMulti(ctx context.Context, in ai.Input) ([]ai.Result, error) {
	now := time.Now().In(s.loc)
	_, offset := now.Zone()

	prompt := fmt.Sprintf(`You are a task triage assistant. Analyze the message below and extract actionable tasks.

CURRENT TIME: %s (UTC offset %+d hours)

RULES:
1. Return STRICT JSON: an array of objects with keys priority, title, description, estimated_minutes, due_at, rationale. No prose, no markdown fences.
2. priority must be exactly one of: "urgent", "important", "normal", "skip". Use "skip" for non-actionable messages (verification codes, login alerts, automated receipts).
3. title must be short (under 8 words) and describe the concrete action, never generic phrases like "reply email".
4. due_at must be RFC 3339 with the offset above, or "" when the message has no deadline. Resolve relative phrases against CURRENT TIME: "in N minutes/hours" adds the offset, "today"/"tomorrow" default to 17:00/09:00 local, weekday names mean the next such day at 09:00 local.
5. estimated_minutes is your effort estimate; use 15 if unsure.
6. One array entry per distinct deadline or action. A message with two deadlines yields two entries.

SOURCE: %s
FROM: %s
SUBJECT: %s

MESSAGE:
%s

JSON:`, now.Format(time.RFC3339), offset/3600, in.SourceApp, in.Sender, in.Subject, truncate(in.Body, 4000))

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]interface{}{
			"temperature":      0.2,
			"responseMimeType": "application/json",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint+"?key="+s.apiKey, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{status: resp.StatusCode, body: string(respBody)}
	}

	text, err := extractText(respBody)
	if err != nil {
		return nil, err
	}

	return s.decodeTasks(text)
}

// extractText pulls candidates[0].content.parts[0].text out of the response.
func extractText(respBody []byte) (string, error) {
	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

func (s *Service) decodeTasks(text string) ([]ai.Result, error) {
	text = stripFences(text)

	var tasks []geminiTask
	if err := json.Unmarshal([]byte(text), &tasks); err != nil {
		// Some responses wrap a single object instead of an array.
		var one geminiTask
		if err2 := json.Unmarshal([]byte(text), &one); err2 != nil {
			return nil, fmt.Errorf("schema violation: %w", err)
		}
		tasks = []geminiTask{one}
	}

	results := make([]ai.Result, 0, len(tasks))
	for _, t := range tasks {
		r := ai.Result{
			Priority:         ai.Priority(strings.ToLower(strings.TrimSpace(t.Priority))),
			Title:            strings.TrimSpace(t.Title),
			Description:      strings.TrimSpace(t.Description),
			EstimatedMinutes: t.EstimatedMinutes,
			Rationale:        strings.TrimSpace(t.Rationale),
		}
		if t.DueAt != "" {
			// Invalid timestamps are dropped here; the caller re-derives the
			// due time with the deterministic parser.
			if due, err := time.Parse(time.RFC3339, t.DueAt); err == nil {
				due = due.In(s.loc)
				r.DueAt = &due
			}
		}
		results = append(results, r)
	}
	return results, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
