// Package analysis talks to the external AI analysis service. The service
// is advisory: script writes must succeed even when it is down, so every
// failure here degrades to a neutral placeholder rather than an error on
// the write path.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"scriptd/internal/logging"
	"scriptd/internal/sanitize"
)

// Free-text field limits applied to service responses before storage
const (
	maxPurposeLen    = 4000
	maxSuggestionLen = 1000
	maxSuggestions   = 20
	maxCategoryLen   = 100
)

// Outcome classifies an analysis attempt
type Outcome int

const (
	// OutcomeOK means the service returned a usable analysis
	OutcomeOK Outcome = iota
	// OutcomeDegraded means the service failed and a neutral placeholder
	// should be stored instead
	OutcomeDegraded
	// OutcomeFatal means the request itself was invalid and nothing
	// should be stored
	OutcomeFatal
)

// Record is a normalized analysis ready for storage. Free-text fields have
// already been sanitized; list fields are JSON-encoded.
type Record struct {
	Purpose          string
	ParameterDocs    string
	SecurityScore    float64
	QualityScore     float64
	RiskScore        float64
	Suggestions      string
	CommandDetails   string
	MSDocsReferences string

	// SuggestedCategory is a side channel, not part of the stored record.
	// The caller resolves it against known categories.
	SuggestedCategory string
}

// Result is the outcome of one analysis attempt
type Result struct {
	Outcome Outcome
	Record  *Record
	Err     error
}

// Client calls the analysis service over HTTP
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates an analysis client. The timeout is a hard deadline for
// the whole request including body read.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *logging.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type analyzeRequest struct {
	ScriptID      string `json:"script_id,omitempty"`
	ScriptContent string `json:"script_content"`
	APIKey        string `json:"api_key,omitempty"`
}

type analyzeResponse struct {
	Purpose          string          `json:"purpose"`
	SecurityAnalysis string          `json:"security_analysis"`
	SecurityScore    float64         `json:"security_score"`
	CodeQualityScore float64         `json:"code_quality_score"`
	RiskScore        float64         `json:"risk_score"`
	Parameters       json.RawMessage `json:"parameters"`
	Category         string          `json:"category"`
	OptimizationTips []string        `json:"optimization"`
	CommandDetails   json.RawMessage `json:"command_details"`
	MSDocsReferences json.RawMessage `json:"ms_docs_references"`
}

// Analyze submits script content for analysis. It never returns an error
// for service-side failures; those come back as OutcomeDegraded so the
// caller can store a placeholder and move on.
func (c *Client) Analyze(ctx context.Context, scriptID, content string) Result {
	if content == "" {
		return Result{Outcome: OutcomeFatal, Err: fmt.Errorf("empty script content")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(analyzeRequest{
		ScriptID:      scriptID,
		ScriptContent: content,
		APIKey:        c.apiKey,
	})
	if err != nil {
		return Result{Outcome: OutcomeFatal, Err: fmt.Errorf("failed to encode analysis request: %w", err)}
	}

	url := c.baseURL + "/analyze?include_command_details=true&fetch_ms_docs=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeFatal, Err: fmt.Errorf("failed to build analysis request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Analysis service unreachable", map[string]interface{}{
			"script_id": scriptID,
			"error":     err.Error(),
		})
		return Result{Outcome: OutcomeDegraded, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("analysis service returned %d: %s", resp.StatusCode, snippet)
		c.logger.Warn("Analysis service error", map[string]interface{}{
			"script_id": scriptID,
			"status":    resp.StatusCode,
		})
		return Result{Outcome: OutcomeDegraded, Err: err}
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Warn("Analysis response unparseable", map[string]interface{}{
			"script_id": scriptID,
			"error":     err.Error(),
		})
		return Result{Outcome: OutcomeDegraded, Err: err}
	}

	return Result{Outcome: OutcomeOK, Record: normalizeResponse(&parsed)}
}

// normalizeResponse sanitizes every free-text field from the service and
// re-encodes list fields as JSON for storage
func normalizeResponse(resp *analyzeResponse) *Record {
	suggestions := sanitize.List(resp.OptimizationTips, maxSuggestionLen, maxSuggestions)
	suggestionsJSON, _ := json.Marshal(suggestions)
	if suggestions == nil {
		suggestionsJSON = []byte("[]")
	}

	return &Record{
		Purpose:           sanitize.Truncate(sanitize.Text(resp.Purpose), maxPurposeLen),
		ParameterDocs:     rawOrEmptyArray(resp.Parameters),
		SecurityScore:     clampScore(resp.SecurityScore),
		QualityScore:      clampScore(resp.CodeQualityScore),
		RiskScore:         clampScore(resp.RiskScore),
		Suggestions:       string(suggestionsJSON),
		CommandDetails:    rawOrEmptyArray(resp.CommandDetails),
		MSDocsReferences:  rawOrEmptyArray(resp.MSDocsReferences),
		SuggestedCategory: sanitize.Line(resp.Category, maxCategoryLen),
	}
}

func rawOrEmptyArray(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "[]"
	}
	return string(raw)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// fallbackPurpose marks analyses written when the service was unavailable
const fallbackPurpose = "Analysis pending due to AI service error"

// Fallback returns the neutral placeholder stored when analysis fails.
// Scores sit at the midpoint so a missing analysis never reads as either
// safe or dangerous.
func Fallback() *Record {
	return &Record{
		Purpose:          fallbackPurpose,
		ParameterDocs:    "[]",
		SecurityScore:    5.0,
		QualityScore:     5.0,
		RiskScore:        5.0,
		Suggestions:      "[]",
		CommandDetails:   "[]",
		MSDocsReferences: "[]",
	}
}

// IsFallback reports whether a stored purpose is the placeholder
func IsFallback(purpose string) bool {
	return purpose == fallbackPurpose
}
