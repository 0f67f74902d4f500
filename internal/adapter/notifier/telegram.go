package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/repository"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramNotifier delivers listings to one chat through the Bot API.
type TelegramNotifier struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
	logger  *zap.Logger
}

var _ repository.Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier creates a notifier for chatID. apiBase may be empty.
func NewTelegramNotifier(apiBase, token, chatID string, logger *zap.Logger) *TelegramNotifier {
	if apiBase == "" {
		apiBase = defaultTelegramAPI
	}
	return &TelegramNotifier{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify sends the listing as a photo with caption when an image is known,
// falling back to a plain message if the photo is rejected.
func (t *TelegramNotifier) Notify(ctx context.Context, l entity.Listing) error {
	text := ListingText(l)
	if l.ImageURL != "" {
		err := t.call(ctx, "sendPhoto", map[string]any{
			"chat_id":    t.chatID,
			"photo":      l.ImageURL,
			"caption":    text,
			"parse_mode": "HTML",
		})
		if err == nil {
			return nil
		}
		t.logger.Debug("sendPhoto rejected, sending text", zap.String("listing_id", l.ID), zap.Error(err))
	}
	return t.call(ctx, "sendMessage", map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
}

func (t *TelegramNotifier) Summary(ctx context.Context, s entity.RunSummary) error {
	return t.call(ctx, "sendMessage", map[string]any{
		"chat_id": t.chatID,
		"text":    SummaryText(s),
	})
}

func (t *TelegramNotifier) call(ctx context.Context, method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of logs.
		return fmt.Errorf("telegram %s: request failed", method)
	}
	defer resp.Body.Close()

	var out telegramResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return fmt.Errorf("telegram %s: status %d: %w", method, resp.StatusCode, err)
	}
	if !out.OK {
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, out.Description)
	}
	return nil
}

// ListingText renders a listing as a short HTML message.
func ListingText(l entity.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🆕 <b>%s</b>\n", html.EscapeString(l.Title))
	fmt.Fprintf(&b, "💰 %s\n", html.EscapeString(l.PriceText))
	fmt.Fprintf(&b, "🏷 %s", html.EscapeString(string(l.Platform)))
	if l.Brand != "" {
		fmt.Fprintf(&b, " · %s", html.EscapeString(l.Brand))
	}
	fmt.Fprintf(&b, "\n🔗 <a href=\"%s\">Open listing</a>", html.EscapeString(l.URL))
	return b.String()
}

// SummaryText renders the end-of-run counts.
func SummaryText(s entity.RunSummary) string {
	status := "✅ Search finished"
	if s.Stopped {
		status = "⏹ Search stopped"
	}
	return fmt.Sprintf("%s\n📊 Found: %d\n🆕 New: %d\n🏷 Brands: %d\n⚠️ Failed checks: %d/%d",
		status, s.Total, s.New, len(s.Brands), s.Failed, s.WorkItems)
}
