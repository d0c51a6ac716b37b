package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"market-anomaly-alerts/internal/anomaly"
)

// Notification 封装一次检测产生的新告警。
type Notification struct {
	Asset       string
	GeneratedAt time.Time
	Alerts      []anomaly.Alert
	MaxListed   int
	Channels    []string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	if len(note.Alerts) == 0 {
		return nil
	}

	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Int("alerts", len(note.Alerts)).
		Str("asset", note.Asset).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("告警已发送 (Telegram)")
	return nil
}

// RenderMessage formats the notification text shared by all channels.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	asset := note.Asset
	if asset == "" {
		asset = "market"
	}
	builder.WriteString(fmt.Sprintf("[%s Anomaly Alert]\n", strings.ToUpper(asset)))
	if !note.GeneratedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Generated: %s UTC\n", note.GeneratedAt.UTC().Format(time.RFC3339)))
	}

	counts := map[anomaly.Rule]int{}
	for _, a := range note.Alerts {
		counts[a.Rule]++
	}
	builder.WriteString(fmt.Sprintf("Alerts: %d (price_spike %d, volume_spike %d)\n",
		len(note.Alerts), counts[anomaly.RulePriceSpike], counts[anomaly.RuleVolumeSpike]))

	listed := note.Alerts
	if note.MaxListed > 0 && len(listed) > note.MaxListed {
		listed = listed[:note.MaxListed]
	}
	for _, a := range listed {
		builder.WriteString(fmt.Sprintf("%s %s price=%s volume=%s\n",
			a.Timestamp.UTC().Format(time.RFC3339), a.Rule, a.Price.StringFixed(2), a.Volume.StringFixed(0)))
	}
	if rest := len(note.Alerts) - len(listed); rest > 0 {
		builder.WriteString(fmt.Sprintf("...and %d more\n", rest))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
