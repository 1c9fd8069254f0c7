package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"time"

	"lyrics-sync-go/logcolors"

	log "github.com/sirupsen/logrus"
)

const defaultTimeout = 10 * time.Second

// Notifier delivers an alert to an operator
type Notifier interface {
	Name() string
	Send(ctx context.Context, subject, message string) error
}

// EmailNotifier sends alerts over SMTP
type EmailNotifier struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	ToEmail      string
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Send(ctx context.Context, subject, message string) error {
	auth := smtp.PlainAuth("", e.SMTPUsername, e.SMTPPassword, e.SMTPHost)

	msg := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", e.FromEmail, e.ToEmail, subject, message))

	addr := e.SMTPHost + ":" + e.SMTPPort
	if err := smtp.SendMail(addr, auth, e.FromEmail, []string{e.ToEmail}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Infof("%s Email notification sent to %s", logcolors.LogNotifier, e.ToEmail)
	return nil
}

// TelegramNotifier posts alerts to a Telegram chat through a bot
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	BaseURL  string // default https://api.telegram.org
	Client   *http.Client
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Send(ctx context.Context, subject, message string) error {
	base := t.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}

	payload, err := json.Marshal(map[string]interface{}{
		"chat_id":    t.ChatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", subject, message),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/bot%s/sendMessage", base, t.BotToken), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := do(t.Client, req); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	log.Infof("%s Telegram notification sent to chat %s", logcolors.LogNotifier, t.ChatID)
	return nil
}

// NtfyNotifier publishes alerts to an ntfy topic
type NtfyNotifier struct {
	Topic  string
	Server string // default https://ntfy.sh
	Client *http.Client
}

func (n *NtfyNotifier) Name() string { return "ntfy" }

func (n *NtfyNotifier) Send(ctx context.Context, subject, message string) error {
	server := n.Server
	if server == "" {
		server = "https://ntfy.sh"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s", server, n.Topic), bytes.NewBufferString(message))
	if err != nil {
		return fmt.Errorf("failed to create ntfy request: %w", err)
	}
	req.Header.Set("Title", subject)
	req.Header.Set("Priority", "high")
	req.Header.Set("Tags", "warning")

	if err := do(n.Client, req); err != nil {
		return fmt.Errorf("ntfy: %w", err)
	}

	log.Infof("%s Ntfy notification sent to topic %s", logcolors.LogNotifier, n.Topic)
	return nil
}

func do(client *http.Client, req *http.Request) error {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
