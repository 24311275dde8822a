package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"contentmaker/internal/domain"
	"contentmaker/internal/ports"
)

const defaultBaseURL = "https://api.telegram.org"

// Publisher delivers summarized items to a Telegram chat via bot API.
type Publisher struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

var _ ports.Sink = (*Publisher)(nil)

// NewPublisher registers bot token and chat identifier.
func NewPublisher(botToken, chatID string) *Publisher {
	return &Publisher{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Name identifies the channel inside the pipeline.
func (p *Publisher) Name() string {
	return "telegram"
}

// Publish posts one item as a Markdown message.
func (p *Publisher) Publish(ctx context.Context, item domain.Item) error {
	if p.botToken == "" || p.chatID == "" || p.client == nil {
		return fmt.Errorf("telegram publisher misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", p.baseURL, p.botToken)
	form := url.Values{}
	form.Set("chat_id", p.chatID)
	form.Set("text", formatMessage(item))
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func formatMessage(item domain.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", item.Title)
	if item.Kind == domain.KindPaper && len(item.Authors) > 0 {
		fmt.Fprintf(&b, "_%s_\n\n", strings.Join(item.Authors, ", "))
	}
	b.WriteString(item.Summary)
	if item.Link != "" {
		fmt.Fprintf(&b, "\n\n%s", item.Link)
	}
	return b.String()
}
