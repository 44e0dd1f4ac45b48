package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/pkg/config"
	"github.com/wonny/argos/pkg/httputil"
	"github.com/wonny/argos/pkg/logger"
	"github.com/wonny/argos/pkg/metrics"
)

// Client handles communication with the analysis council service.
// One call runs a full multi-agent debate, so latencies are measured in
// minutes and calls are never retried automatically.
// ⭐ SSOT: 분석 엔진 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient creates an analysis engine client. The HTTP client should
// carry the engine timeout; retry and the API-key header are configured
// here.
func NewClient(cfg config.EngineConfig, httpClient *httputil.Client, log *logger.Logger) *Client {
	httpClient.DisableRetry()
	if cfg.APIKey != "" {
		httpClient.WithHeader("X-API-Key", cfg.APIKey)
	}

	perMinute := cfg.RateLimit
	if perMinute <= 0 {
		perMinute = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

// analyzeRequest is the wire form of one analysis call
type analyzeRequest struct {
	Symbol string          `json:"symbol"`
	Date   string          `json:"date"`
	Config json.RawMessage `json:"config,omitempty"`
}

// analyzeResponse is the council's verdict. Decision is free text until
// sanitized downstream.
type analyzeResponse struct {
	Decision   string `json:"decision"`
	Confidence string `json:"confidence"`
	Risk       string `json:"risk"`
	HoldDays   int    `json:"hold_days"`
	Rationale  string `json:"rationale"`
	Error      string `json:"error,omitempty"`
}

// Analyze runs one council debate for a symbol and returns its verdict
func (c *Client) Analyze(ctx context.Context, req contracts.AnalysisRequest) (*contracts.AnalysisResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("engine rate limit wait failed: %w", err)
	}

	payload := analyzeRequest{
		Symbol: req.Symbol,
		Date:   req.Date.Format("2006-01-02"),
		Config: json.RawMessage(req.Config),
	}

	start := time.Now()
	resp, err := c.httpClient.PostJSON(ctx, c.baseURL+"/analyze", payload)
	if err != nil {
		metrics.RecordEngineCall("error", time.Since(start))
		return nil, fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()
	duration := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		metrics.RecordEngineCall("error", duration)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.RecordEngineCall("error", duration)
		return nil, fmt.Errorf("failed to decode engine response: %w", err)
	}
	if out.Error != "" {
		metrics.RecordEngineCall("error", duration)
		return nil, fmt.Errorf("engine reported error: %s", out.Error)
	}
	if strings.TrimSpace(out.Decision) == "" {
		metrics.RecordEngineCall("error", duration)
		return nil, fmt.Errorf("engine response carries no decision")
	}

	metrics.RecordEngineCall("success", duration)

	c.logger.WithFields(map[string]interface{}{
		"symbol":    req.Symbol,
		"decision":  out.Decision,
		"hold_days": out.HoldDays,
		"duration":  duration.String(),
	}).Info("Engine analysis finished")

	return &contracts.AnalysisResult{
		Decision:   out.Decision,
		Confidence: out.Confidence,
		Risk:       out.Risk,
		HoldDays:   out.HoldDays,
		Rationale:  out.Rationale,
	}, nil
}

// Health checks whether the council service is reachable
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.httpClient.Get(ctx, c.baseURL+"/health")
	if err != nil {
		return fmt.Errorf("engine health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health check returned status %d", resp.StatusCode)
	}
	return nil
}
