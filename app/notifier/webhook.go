package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	TemplateVerificationCode = "verification_code"
	TemplateWelcome          = "welcome"
	TemplateResetLink        = "reset_link"
	TemplateResetSuccess     = "reset_success"
	TemplateEmailChangeCode  = "email_change_code"
)

// Message is the JSON body posted to the mail relay.
type Message struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Name     string            `json:"name"`
	Data     map[string]string `json:"data,omitempty"`
}

// WebhookNotifier hands each notification to an HTTP mail relay.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) SendVerificationCode(ctx context.Context, to, name, code string) error {
	return n.post(ctx, Message{Template: TemplateVerificationCode, To: to, Name: name, Data: map[string]string{"code": code}})
}

func (n *WebhookNotifier) SendWelcome(ctx context.Context, to, name string) error {
	return n.post(ctx, Message{Template: TemplateWelcome, To: to, Name: name})
}

func (n *WebhookNotifier) SendResetLink(ctx context.Context, to, name, link string) error {
	return n.post(ctx, Message{Template: TemplateResetLink, To: to, Name: name, Data: map[string]string{"link": link}})
}

func (n *WebhookNotifier) SendResetSuccess(ctx context.Context, to, name string) error {
	return n.post(ctx, Message{Template: TemplateResetSuccess, To: to, Name: name})
}

func (n *WebhookNotifier) SendEmailChangeCode(ctx context.Context, to, name, code string) error {
	return n.post(ctx, Message{Template: TemplateEmailChangeCode, To: to, Name: name, Data: map[string]string{"code": code}})
}

func (n *WebhookNotifier) post(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", msg.Template, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send %s: mail relay responded %d", msg.Template, resp.StatusCode)
	}
	return nil
}
