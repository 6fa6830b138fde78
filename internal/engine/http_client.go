package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
)

// HTTPClient calls a remote analysis engine over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient constructs a client for the engine at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type decisionResponse struct {
	Summary        string                 `json:"summary"`
	Urgency        domain.Urgency         `json:"urgency"`
	AffectedSystem string                 `json:"affected_system"`
	Confidence     float64                `json:"confidence"`
	Reason         domain.DecisionReason  `json:"decision_reason"`
	Proposal       *domain.ActionProposal `json:"action_proposal"`
	AnalyzedAt     time.Time              `json:"analyzed_at"`
}

type failureResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Analyze posts the complaint to the engine and decodes its decision.
// A 422 response is the engine declining terminally; anything else
// unexpected is a channel failure.
func (c *HTTPClient) Analyze(ctx context.Context, req Request) (*domain.Analysis, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var decision decisionResponse
		if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
			return nil, fmt.Errorf("decode engine decision: %w", err)
		}
		analyzedAt := decision.AnalyzedAt
		if analyzedAt.IsZero() {
			analyzedAt = time.Now()
		}
		return &domain.Analysis{
			Summary:        decision.Summary,
			Urgency:        decision.Urgency,
			AffectedSystem: decision.AffectedSystem,
			Confidence:     decision.Confidence,
			Reason:         decision.Reason,
			Proposal:       decision.Proposal,
			AnalyzedAt:     analyzedAt,
		}, nil
	case http.StatusUnprocessableEntity:
		var failure failureResponse
		if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
			return nil, fmt.Errorf("decode engine failure: %w", err)
		}
		return nil, &TerminalError{Code: failure.Code, Message: failure.Message}
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("engine returned %d: %s", resp.StatusCode, string(snippet))
	}
}
