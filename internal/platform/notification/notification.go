// Package notification renders and sends staff emails. Delivery state and
// retries are owned by the outbox package.
package notification

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ErrNotConfigured is returned by senders that lack credentials.
var ErrNotConfigured = errors.New("email is not configured")

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is one outbound email.
type Message struct {
	To          string
	ToName      string
	Subject     string
	Body        string
	Attachments []Attachment
}

// EmailSender delivers a Message.
type EmailSender interface {
	SendEmail(ctx context.Context, msg Message) error
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// Template is a subject and plain-text body with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateSubmissionReceived is sent to staff for every new registration.
const TemplateSubmissionReceived = "submission-received"

type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.RegisterTemplate(Template{
		ID:      TemplateSubmissionReceived,
		Subject: "New Patient Registration: {{patient_name}}",
		Body: "A new patient registration form has been submitted.\n\n" +
			"Patient Name: {{patient_name}}\n" +
			"Submission Time: {{submitted_at}}\n\n" +
			"View full submission details:\n{{detail_url}}\n\n" +
			"The complete patient registration form is attached as a PDF.\n\n" +
			"---\n{{practice_name}}\n{{practice_street}}\n{{practice_city}}\n{{practice_phone}}",
	})
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render performs {{key}} replacement. Placeholders without data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// SendGrid
// ---------------------------------------------------------------------------

const sendGridHost = "https://api.sendgrid.com"

// SendGridSender posts messages to the SendGrid v3 mail API.
type SendGridSender struct {
	apiKey   string
	from     string
	fromName string
	host     string
}

// NewSendGridSender returns a sender for the given API key and from address.
func NewSendGridSender(apiKey, from, fromName string) *SendGridSender {
	return &SendGridSender{apiKey: apiKey, from: from, fromName: fromName, host: sendGridHost}
}

// WithHost points the sender at a different API host.
func (s *SendGridSender) WithHost(host string) *SendGridSender {
	s.host = strings.TrimRight(host, "/")
	return s
}

func (s *SendGridSender) SendEmail(ctx context.Context, msg Message) error {
	if s.apiKey == "" || s.from == "" {
		return ErrNotConfigured
	}
	if msg.To == "" {
		return errors.New("recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body := msg.Body
	if body == "" {
		body = "\t"
	}
	m := mail.NewV3MailInit(
		mail.NewEmail(s.fromName, s.from), msg.Subject,
		mail.NewEmail(msg.ToName, msg.To),
		mail.NewContent("text/plain", body))
	for _, a := range msg.Attachments {
		m.Attachments = append(m.Attachments, &mail.Attachment{
			Type:        a.ContentType,
			Content:     base64.StdEncoding.EncodeToString(a.Data),
			Filename:    a.Filename,
			Name:        a.Filename,
			Disposition: "attachment",
		})
	}

	req := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	req.Method = "POST"
	req.Body = mail.GetRequestBody(m)
	resp, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Test double
// ---------------------------------------------------------------------------

// MockEmailSender records messages and optionally fails.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []Message
	ShouldFail bool
	FailError  string
}

func (m *MockEmailSender) SendEmail(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded messages.
func (m *MockEmailSender) Calls() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.calls))
	copy(out, m.calls)
	return out
}

// SetFail toggles failure mode.
func (m *MockEmailSender) SetFail(fail bool, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldFail = fail
	m.FailError = msg
}
