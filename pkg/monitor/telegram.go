package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xksnk/selfology-core/pkg/shared/httpclient"
)

// TelegramConfig configures the Telegram-style alerter.
type TelegramConfig struct {
	BotToken        string
	AdminChatIDs    []string
	MaxPerType      int           // ALERT_MAX_PER_TYPE
	Window          time.Duration // ALERT_WINDOW_MINUTES
	GroupWindow     time.Duration // ALERT_GROUP_WINDOW
	GroupShowFirstK int
}

func DefaultTelegramConfig() TelegramConfig {
	return TelegramConfig{
		MaxPerType:      5,
		Window:          15 * time.Minute,
		GroupWindow:     2 * time.Minute,
		GroupShowFirstK: 3,
	}
}

type rateWindow struct {
	windowStart time.Time
	count       int
}

type pendingGroup struct {
	firstSeen time.Time
	alerts    []Alert
	flushed   bool
}

// TelegramAlerter sends grouped, rate-limited alert notifications to a
// fixed set of admin chat ids via the Telegram bot API.
type TelegramAlerter struct {
	cfg    TelegramConfig
	client *http.Client
	log    *logrus.Logger

	mu     sync.Mutex
	rates  map[string]*rateWindow
	groups map[string]*pendingGroup
}

func NewTelegramAlerter(cfg TelegramConfig, log *logrus.Logger) *TelegramAlerter {
	return &TelegramAlerter{
		cfg:    cfg,
		client: httpclient.NewClient(httpclient.TelegramClientConfig()),
		log:    log,
		rates:  make(map[string]*rateWindow),
		groups: make(map[string]*pendingGroup),
	}
}

// Notify applies the rate limit, adds the alert to its type's group (a new
// group opens once GroupWindow has passed since the current one opened),
// and sends a message at once for every alert the rate limit admits. Each
// message lists the group's alerts so far (the first GroupShowFirstK, then
// a count of the rest); alerts within one GroupWindow are not coalesced
// into a single message.
func (t *TelegramAlerter) Notify(a Alert) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.allow(a.Type, a.RaisedAt) {
		return
	}

	group, ok := t.groups[a.Type]
	if !ok || a.RaisedAt.Sub(group.firstSeen) > t.cfg.GroupWindow {
		group = &pendingGroup{firstSeen: a.RaisedAt}
		t.groups[a.Type] = group
	}
	group.alerts = append(group.alerts, a)
	t.send(group)
}

// allow reports whether another notification of this type may be
// recorded in the current rate window, resetting the window when it has
// elapsed.
func (t *TelegramAlerter) allow(alertType string, now time.Time) bool {
	w, ok := t.rates[alertType]
	if !ok || now.Sub(w.windowStart) > t.cfg.Window {
		w = &rateWindow{windowStart: now}
		t.rates[alertType] = w
	}
	if w.count >= t.cfg.MaxPerType {
		return false
	}
	w.count++
	return true
}

func (t *TelegramAlerter) send(group *pendingGroup) {
	text := formatGroup(group, t.cfg.GroupShowFirstK)
	for _, chatID := range t.cfg.AdminChatIDs {
		if err := t.post(chatID, text); err != nil && t.log != nil {
			t.log.WithError(err).WithField("chat_id", chatID).Warn("telegram alert delivery failed")
		}
	}
}

func formatGroup(group *pendingGroup, showFirstK int) string {
	if len(group.alerts) == 1 {
		a := group.alerts[0]
		return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(a.Severity)), a.Type, a.Message)
	}

	shown := group.alerts
	rest := 0
	if len(shown) > showFirstK {
		rest = len(shown) - showFirstK
		shown = shown[:showFirstK]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %d alerts of type %s:\n", strings.ToUpper(string(group.alerts[0].Severity)), len(group.alerts), group.alerts[0].Type)
	for _, a := range shown {
		fmt.Fprintf(&b, "- %s\n", a.Message)
	}
	if rest > 0 {
		fmt.Fprintf(&b, "+ %d more\n", rest)
	}
	return b.String()
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (t *TelegramAlerter) post(chatID, text string) error {
	if t.cfg.BotToken == "" {
		return nil
	}
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.cfg.BotToken)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}
