// Package notify delivers recovery passwords out-of-band. The channel is
// pluggable: console logging for development, SMTP or an HTTP webhook for
// deployments with real delivery.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/smtp"
	"time"
)

// Notice is one recovery delivery: the account and its new temporary
// password in plaintext. Notices must never be echoed back to HTTP clients.
type Notice struct {
	Correo   string `json:"correo"`
	Nombre   string `json:"nombre"`
	Password string `json:"password"`
}

// Notifier delivers a notice to the account holder.
type Notifier interface {
	Deliver(ctx context.Context, n Notice) error
}

// Console logs the notice to the server console, matching the original
// development behavior.
type Console struct{}

// Deliver writes the notice to the process log.
func (Console) Deliver(_ context.Context, n Notice) error {
	log.Printf("nueva contraseña para %s: %s", n.Correo, n.Password)
	return nil
}

// SMTP delivers the notice by email.
type SMTP struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

// Deliver sends a plain-text email with the temporary password.
func (s SMTP) Deliver(_ context.Context, n Notice) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Recuperación de contraseña\r\n\r\n"+
		"Hola %s,\r\n\r\nTu nueva contraseña temporal es: %s\r\n",
		s.From, n.Correo, n.Nombre, n.Password)
	auth := smtp.PlainAuth("", s.User, s.Password, s.Host)
	return smtp.SendMail(s.Host+":"+s.Port, auth, s.From, []string{n.Correo}, []byte(msg))
}

// Webhook posts the notice as JSON to an external delivery service.
type Webhook struct {
	URL    string
	client *http.Client
}

// NewWebhook creates a webhook notifier with a bounded request timeout.
func NewWebhook(url string) *Webhook {
	return &Webhook{URL: url, client: &http.Client{Timeout: 10 * time.Second}}
}

// Deliver posts the notice and treats any non-2xx response as failure.
func (w *Webhook) Deliver(ctx context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
