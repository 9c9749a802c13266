package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

// Alert is one human-visible alert event, built from an /analyze reason.
type Alert struct {
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	Severity  int       `json:"severity"`
	IP        string    `json:"ip,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Transport delivers one Alert. Collapses the donor system's mix of sync
// HTTP, sync SMTP and async HTTP transports into a single abstract
// interface, per DESIGN NOTES — blocking transports run on the
// dispatcher's worker pool rather than the caller's goroutine.
type Transport interface {
	Send(ctx context.Context, alert Alert) error
	Name() string
}

// HTTPTransport posts a generic JSON payload to a webhook URL.
type HTTPTransport struct {
	URL    string
	Client *http.Client
}

func (t *HTTPTransport) Name() string { return "http" }

func (t *HTTPTransport) Send(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook transport: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// ChatTransport posts a plain-text payload to a chat incoming-webhook URL
// (Slack-style {"text": "..."} body).
type ChatTransport struct {
	URL    string
	Client *http.Client
}

func (t *ChatTransport) Name() string { return "chat" }

func (t *ChatTransport) Send(ctx context.Context, alert Alert) error {
	text := fmt.Sprintf("[severity %d] %s: %s (ip=%s)", alert.Severity, alert.Reason, alert.Message, alert.IP)
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat transport: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// SMTPTransport sends a plain-UTF-8 MIME email. No Go SMTP/mail library
// appears anywhere in the retrieved corpus (checked both the teacher and
// every other_examples manifest), mirroring the donor system's own use of
// Python's stdlib smtplib — so this uses net/smtp directly.
type SMTPTransport struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       string
}

func (t *SMTPTransport) Name() string { return "smtp" }

func (t *SMTPTransport) Send(ctx context.Context, alert Alert) error {
	subject := fmt.Sprintf("[antiscrape] %s", alert.Reason)
	body := fmt.Sprintf("Reason: %s\nSeverity: %d\nIP: %s\nMessage: %s\nTime: %s\n",
		alert.Reason, alert.Severity, alert.IP, alert.Message, alert.Timestamp.UTC().Format(time.RFC3339))

	msg := strings.Join([]string{
		"From: " + t.From,
		"To: " + t.To,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", t.Host, t.Port)
	var auth smtp.Auth
	if t.User != "" {
		auth = smtp.PlainAuth("", t.User, t.Password, t.Host)
	}

	if t.Port == 465 {
		return t.sendImplicitTLS(addr, auth, msg)
	}
	// Port 587 (and anything else): plain connect, STARTTLS upgrade.
	return smtp.SendMail(addr, auth, t.From, []string{t.To}, []byte(msg))
}

func (t *SMTPTransport) sendImplicitTLS(addr string, auth smtp.Auth, msg string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: t.Host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, t.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(t.From); err != nil {
		return err
	}
	if err := client.Rcpt(t.To); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// NoopTransport is selected when ALERT_METHOD=none.
type NoopTransport struct{}

func (NoopTransport) Name() string                             { return "none" }
func (NoopTransport) Send(context.Context, Alert) error { return nil }
