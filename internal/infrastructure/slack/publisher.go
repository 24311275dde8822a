package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"contentmaker/internal/domain"
	"contentmaker/internal/ports"
)

const defaultBaseURL = "https://slack.com"

// Publisher delivers summarized items to a Slack channel via chat.postMessage.
type Publisher struct {
	botToken string
	channel  string
	baseURL  string
	client   *http.Client
}

var _ ports.Sink = (*Publisher)(nil)

// NewPublisher registers bot token and target channel.
func NewPublisher(botToken, channel string) *Publisher {
	return &Publisher{
		botToken: botToken,
		channel:  channel,
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Name identifies the channel inside the pipeline.
func (p *Publisher) Name() string {
	return "slack"
}

type postMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Publish posts one item to the configured channel. Slack reports API errors
// inside a 200 response, so the ok flag is checked as well.
func (p *Publisher) Publish(ctx context.Context, item domain.Item) error {
	if p.botToken == "" || p.channel == "" {
		return fmt.Errorf("slack publisher misconfigured")
	}

	body, err := json.Marshal(postMessageRequest{
		Channel: p.channel,
		Text:    formatMessage(item),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.botToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack error: %s", resp.Status)
	}

	var result postMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("slack rejected message: %s", result.Error)
	}

	return nil
}

func formatMessage(item domain.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", item.Title)
	if item.Kind == domain.KindPaper && len(item.Authors) > 0 {
		fmt.Fprintf(&b, "%s\n\n", strings.Join(item.Authors, ", "))
	}
	b.WriteString(item.Summary)
	if item.Link != "" {
		fmt.Fprintf(&b, "\n\n%s", item.Link)
	}
	return b.String()
}
