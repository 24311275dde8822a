package llm

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

	"golang.org/x/time/rate"

	"contentmaker/internal/config"
	"contentmaker/internal/domain"
	"contentmaker/internal/ports"
)

const defaultSystemPrompt = "You are an expert news summarizer. Write a concise, accurate summary " +
	"of 100-200 words covering the main event, key stakeholders and why it matters. " +
	"Only use information stated in the supplied content. Respond in %s."

// Summarizer implements ports.Enricher backed by OpenAI-compatible APIs.
// Generation calls go through a token-bucket limiter to respect upstream
// quotas regardless of how wide the pipeline fans out.
type Summarizer struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	resolver     ports.LinkResolver
	limiter      *rate.Limiter
	httpClient   *http.Client
	logger       *slog.Logger
}

var _ ports.Enricher = (*Summarizer)(nil)

// NewSummarizer builds an enricher from configuration. The resolver is
// optional; without it summaries are generated from the item's own fields.
func NewSummarizer(cfg config.OpenAIConfig, resolver ports.LinkResolver, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}

	language := cfg.Language
	if language == "" {
		language = "English"
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = fmt.Sprintf(defaultSystemPrompt, language)
	}

	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 20
	}

	return &Summarizer{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: prompt,
		resolver:     resolver,
		limiter:      rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       logger,
	}
}

// Summarize resolves the item link best-effort, generates a summary and
// returns a copy of the item with the summary populated.
func (s *Summarizer) Summarize(ctx context.Context, item domain.Item) (domain.Item, error) {
	if s.apiKey == "" || s.endpoint == "" || s.model == "" {
		return domain.Item{}, fmt.Errorf("summarizer misconfigured")
	}

	content := s.resolveContent(ctx, item)

	if err := s.limiter.Wait(ctx); err != nil {
		return domain.Item{}, fmt.Errorf("rate limit wait: %w", err)
	}

	summary, err := s.complete(ctx, content)
	if err != nil {
		return domain.Item{}, fmt.Errorf("generate summary: %w", err)
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return domain.Item{}, fmt.Errorf("model returned an empty summary")
	}

	return item.WithSummary(summary), nil
}

// resolveContent prefers full page text; a failed resolution falls back to
// the item's abstract and title rather than failing the summarization.
func (s *Summarizer) resolveContent(ctx context.Context, item domain.Item) string {
	if s.resolver != nil && item.Link != "" {
		content, err := s.resolver.Resolve(ctx, item.Link)
		if err == nil && content.Text != "" {
			return item.Title + "\n\n" + content.Text
		}
		if err != nil {
			s.logger.Debug("link resolution failed, falling back to abstract",
				"item", item.ID, "error", err)
		}
	}

	if item.Abstract != "" {
		return item.Title + "\n\n" + item.Abstract
	}
	return item.Title
}

func (s *Summarizer) complete(ctx context.Context, content string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "system", "content": s.systemPrompt},
			{"role": "user", "content": content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("completion error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("response contained no choices")
	}

	return out.Choices[0].Message.Content, nil
}
