package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config configures a Rewriter.
type Config struct {
	Host    string
	Model   string
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Rewriter calls a local LLM to rewrite queries. It never returns an
// error: any failure degrades to the identity fallback.
type Rewriter struct {
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

// New constructs a Rewriter. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{
		client: &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: 2}},
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Rewrite asks the configured LLM to rewrite text into keywords, a
// semantic intent restatement, and advisory filters. timeout, if
// positive, overrides the Rewriter's configured timeout for this call.
func (r *Rewriter) Rewrite(ctx context.Context, text string, timeout time.Duration) Rewrite {
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := r.call(callCtx, text)
	if err != nil {
		r.logger.Warn("query rewrite fell back to identity", slog.String("error", err.Error()))
		return fallback(text)
	}
	return result
}

func (r *Rewriter) call(ctx context.Context, text string) (Rewrite, error) {
	reqBody, err := json.Marshal(generateRequest{
		Model:  r.cfg.Model,
		Prompt: text,
		System: systemPrompt,
		Stream: false,
		Format: "json",
		Options: map[string]interface{}{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	})
	if err != nil {
		return Rewrite{}, fmt.Errorf("encode rewrite request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(r.cfg.Host, "/")+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return Rewrite{}, fmt.Errorf("build rewrite request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Rewrite{}, fmt.Errorf("call rewrite endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Rewrite{}, fmt.Errorf("rewrite endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Rewrite{}, fmt.Errorf("read rewrite response: %w", err)
	}

	var gen generateResponse
	if err := json.Unmarshal(body, &gen); err != nil {
		return Rewrite{}, fmt.Errorf("decode rewrite envelope: %w", err)
	}

	var rw Rewrite
	if err := json.Unmarshal([]byte(gen.Response), &rw); err != nil {
		return Rewrite{}, fmt.Errorf("decode rewrite payload: %w", err)
	}
	if rw.Keywords == "" || rw.SemanticIntent == "" {
		return Rewrite{}, fmt.Errorf("rewrite payload missing required fields")
	}

	return rw, nil
}
